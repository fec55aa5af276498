// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/AleutianSentinel/services/sentinel/situation"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  4 * 1024,
	WriteBufferSize: 4 * 1024,
}

// StreamEvent is one message pushed to connected websocket clients.
type StreamEvent struct {
	Event     string               `json:"event"`
	Situation *situation.Situation `json:"situation"`
	SentAt    time.Time            `json:"sent_at"`
}

// Hub fans situation events out to connected websocket clients.
//
// Hub satisfies the notifier contract, so the cycle runner can treat a
// websocket audience like any other notification channel.
//
// # Thread Safety
//
// All methods are safe for concurrent use. Each connection has its own
// write lock; a slow client delays only its own delivery.
type Hub struct {
	logger *slog.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]*sync.Mutex
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:  logger,
		clients: make(map[*websocket.Conn]*sync.Mutex),
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Notify broadcasts a situation event to every connected client. A
// client whose write fails is dropped. Broadcasting to an empty hub
// succeeds trivially.
func (h *Hub) Notify(_ context.Context, sit *situation.Situation) error {
	event := StreamEvent{
		Event:     "situation_detected",
		Situation: sit,
		SentAt:    time.Now().UTC(),
	}

	h.mu.Lock()
	conns := make(map[*websocket.Conn]*sync.Mutex, len(h.clients))
	for conn, lock := range h.clients {
		conns[conn] = lock
	}
	h.mu.Unlock()

	for conn, lock := range conns {
		lock.Lock()
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		err := conn.WriteJSON(event)
		lock.Unlock()
		if err != nil {
			h.logger.Warn("dropping websocket client after failed write", "error", err)
			h.remove(conn)
		}
	}
	return nil
}

func (h *Hub) add(conn *websocket.Conn) {
	h.mu.Lock()
	h.clients[conn] = &sync.Mutex{}
	h.mu.Unlock()
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	_, present := h.clients[conn]
	delete(h.clients, conn)
	h.mu.Unlock()
	if present {
		_ = conn.Close()
	}
}

// StreamSituations upgrades the connection and subscribes it to
// situation events until the client disconnects.
func StreamSituations(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("failed to upgrade the websocket", "error", err)
			return
		}
		slog.Info("Websocket client connected for situation stream")
		hub.add(ws)

		// Read loop exists only to observe disconnects; clients do not
		// send application messages.
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				slog.Info("Websocket client disconnected", "error", err.Error())
				hub.remove(ws)
				return
			}
		}
	}
}
