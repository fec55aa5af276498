// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package collectors

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianSentinel/services/sentinel/signal"
)

// =============================================================================
// Email Collector
// =============================================================================

// InboxMessage is an unhandled inbound message flagged high priority by the
// mailbox's own classification.
type InboxMessage struct {
	ID         string
	From       string
	Subject    string
	ReceivedAt time.Time
}

// SentMessage is an outbound message still awaiting a reply.
type SentMessage struct {
	ID      string
	To      string
	Subject string
	SentAt  time.Time
}

// EmailSource is the read-only query boundary to the mailbox.
type EmailSource interface {
	// HighPriorityUnhandled returns flagged inbound messages received since
	// the given instant that the user has not acted on.
	HighPriorityUnhandled(ctx context.Context, since time.Time) ([]InboxMessage, error)

	// AwaitingReply returns sent messages older than the given instant with
	// no reply on the thread.
	AwaitingReply(ctx context.Context, olderThan time.Time) ([]SentMessage, error)
}

// Email emits email_priority_high and email_awaiting_reply signals.
type Email struct {
	source EmailSource

	// replyPatience is how long a sent message may wait before its silence
	// becomes a signal.
	replyPatience time.Duration
}

// NewEmail creates an email collector. replyPatience <= 0 defaults to 72h.
func NewEmail(source EmailSource, replyPatience time.Duration) *Email {
	if replyPatience <= 0 {
		replyPatience = 72 * time.Hour
	}
	return &Email{source: source, replyPatience: replyPatience}
}

// Name implements signal.Collector.
func (e *Email) Name() string { return "email" }

// Collect implements signal.Collector.
func (e *Email) Collect(ctx context.Context, w signal.Window) ([]signal.Signal, error) {
	var out []signal.Signal

	inbound, err := e.source.HighPriorityUnhandled(ctx, w.Start())
	if err != nil {
		return nil, fmt.Errorf("email: query high priority inbox: %w", err)
	}
	for _, m := range inbound {
		if m.ID == "" {
			continue
		}
		out = append(out, signal.Signal{
			ID:        uuid.NewString(),
			Type:      signal.TypeEmailPriorityHigh,
			Source:    e.Name(),
			Priority:  signal.PriorityHigh,
			Timestamp: m.ReceivedAt,
			Payload: signal.EmailPriorityHigh{
				MessageID:  m.ID,
				From:       m.From,
				Subject:    m.Subject,
				ReceivedAt: m.ReceivedAt,
			},
		})
	}

	stale, err := e.source.AwaitingReply(ctx, w.Now.Add(-e.replyPatience))
	if err != nil {
		return nil, fmt.Errorf("email: query awaiting reply: %w", err)
	}
	for _, m := range stale {
		if m.ID == "" {
			continue
		}
		days := int(w.Now.Sub(m.SentAt).Hours() / 24)
		out = append(out, signal.Signal{
			ID:        uuid.NewString(),
			Type:      signal.TypeEmailAwaitingReply,
			Source:    e.Name(),
			Priority:  signal.PriorityMedium,
			Timestamp: m.SentAt,
			Payload: signal.EmailAwaitingReply{
				MessageID:   m.ID,
				To:          m.To,
				Subject:     m.Subject,
				DaysWaiting: days,
			},
		})
	}

	return out, nil
}
