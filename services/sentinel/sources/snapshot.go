// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sources provides a file-backed implementation of every
// collector source interface.
//
// # Description
//
// External integrations (calendar sync, mail sync, transcription jobs,
// trend scrapers, ...) export their current state into one YAML snapshot
// file. A Store parses that file, serves read-only queries to the nine
// collectors, and optionally watches the file so an updated export is
// picked up without a restart.
//
// The snapshot is a deployment seam: a real installation replaces this
// package's Store with clients for live backends, one source interface
// at a time.
package sources

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianSentinel/services/sentinel/collectors"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/signal"
)

// =============================================================================
// Snapshot Document
// =============================================================================

// snapshot mirrors the YAML export layout. The types are local so the
// file format can evolve without touching the collector contracts.
type snapshot struct {
	Calendar      []calendarEvent     `yaml:"calendar"`
	InboxFlagged  []inboxMessage      `yaml:"inbox_flagged"`
	SentAwaiting  []sentMessage       `yaml:"sent_awaiting_reply"`
	Meetings      []meetingRecord     `yaml:"meetings"`
	Conversations []conversationEntry `yaml:"conversations"`
	Trends        []trendEntry        `yaml:"trends"`
	Weather       []weatherEntry      `yaml:"weather"`
	Knowledge     []knowledgeEntry    `yaml:"knowledge"`
	Tasks         []taskEntry         `yaml:"tasks"`
	Social        []socialEntry       `yaml:"social"`
}

type calendarEvent struct {
	ID          string    `yaml:"id"`
	Title       string    `yaml:"title"`
	StartsAt    time.Time `yaml:"starts_at"`
	EndsAt      time.Time `yaml:"ends_at"`
	Location    string    `yaml:"location"`
	Outdoor     bool      `yaml:"outdoor"`
	PrepMinutes int       `yaml:"prep_minutes"`
}

type inboxMessage struct {
	ID         string    `yaml:"id"`
	From       string    `yaml:"from"`
	Subject    string    `yaml:"subject"`
	ReceivedAt time.Time `yaml:"received_at"`
}

type sentMessage struct {
	ID      string    `yaml:"id"`
	To      string    `yaml:"to"`
	Subject string    `yaml:"subject"`
	SentAt  time.Time `yaml:"sent_at"`
}

type meetingRecord struct {
	ID          string          `yaml:"id"`
	Title       string          `yaml:"title"`
	ProcessedAt time.Time       `yaml:"processed_at"`
	ActionItems []meetingAction `yaml:"action_items"`
}

type meetingAction struct {
	Description string `yaml:"description"`
	Assignee    string `yaml:"assignee"`
}

type conversationEntry struct {
	ID           string    `yaml:"id"`
	Channel      string    `yaml:"channel"`
	With         string    `yaml:"with"`
	LastActivity time.Time `yaml:"last_activity"`
	FollowupDue  time.Time `yaml:"followup_due"`
}

type trendEntry struct {
	Keyword    string    `yaml:"keyword"`
	Score      float64   `yaml:"score"`
	Source     string    `yaml:"source"`
	ObservedAt time.Time `yaml:"observed_at"`
}

type weatherEntry struct {
	ID        string    `yaml:"id"`
	Condition string    `yaml:"condition"`
	Severity  string    `yaml:"severity"`
	Location  string    `yaml:"location"`
	ValidFrom time.Time `yaml:"valid_from"`
	ValidTo   time.Time `yaml:"valid_to"`
}

type knowledgeEntry struct {
	Keyword string `yaml:"keyword"`
	NoteID  string `yaml:"note_id"`
	Title   string `yaml:"title"`
}

type taskEntry struct {
	ID    string    `yaml:"id"`
	Title string    `yaml:"title"`
	DueAt time.Time `yaml:"due_at"`
}

type socialEntry struct {
	ID       string    `yaml:"id"`
	Platform string    `yaml:"platform"`
	Author   string    `yaml:"author"`
	Reach    int       `yaml:"reach"`
	PostedAt time.Time `yaml:"posted_at"`
}

// =============================================================================
// Store
// =============================================================================

// Store serves every collector source interface from one snapshot file.
//
// # Thread Safety
//
// Queries take a read lock; Reload and the watcher take the write lock.
// Safe for concurrent use by all collectors at once.
type Store struct {
	path   string
	logger *slog.Logger

	mu   sync.RWMutex
	snap snapshot

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// Load reads the snapshot file at path. A missing file yields an empty
// store, so a fresh deployment starts cleanly before the first export.
func Load(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{path: path, logger: logger}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the snapshot file and swaps the in-memory state.
func (s *Store) Reload() error {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.mu.Lock()
		s.snap = snapshot{}
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("sources: read snapshot: %w", err)
	}

	var snap snapshot
	if err := yaml.Unmarshal(raw, &snap); err != nil {
		return fmt.Errorf("sources: parse snapshot: %w", err)
	}

	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
	s.logger.Info("sources: snapshot loaded", "path", s.path)
	return nil
}

// Watch reloads the snapshot whenever the file changes on disk. The
// watch runs until Close. Exporters that write-and-rename are covered:
// the watch is on the parent directory.
func (s *Store) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("sources: create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("sources: watch %s: %w", filepath.Dir(s.path), err)
	}
	s.watcher = watcher
	s.done = make(chan struct{})

	go func() {
		for {
			select {
			case <-s.done:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(s.path) {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if err := s.Reload(); err != nil {
					// Keep serving the previous snapshot; a partial
					// write usually resolves on the next event.
					s.logger.Warn("sources: snapshot reload failed", "error", err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn("sources: watcher error", "error", err)
			}
		}
	}()
	return nil
}

// Close stops the watcher, if one is running.
func (s *Store) Close() error {
	if s.watcher == nil {
		return nil
	}
	close(s.done)
	return s.watcher.Close()
}

// Collectors builds the nine domain collectors over this store with
// default thresholds.
func (s *Store) Collectors() []signal.Collector {
	return []signal.Collector{
		collectors.NewCalendar(s),
		collectors.NewEmail(s, 0),
		collectors.NewMeetings(s),
		collectors.NewConversations(s),
		collectors.NewTrends(s, 0),
		collectors.NewWeather(s),
		collectors.NewKnowledge(s),
		collectors.NewTasks(s),
		collectors.NewSocial(s, 0),
	}
}

// =============================================================================
// Source Implementations
// =============================================================================

// EventsBetween implements collectors.CalendarSource.
func (s *Store) EventsBetween(_ context.Context, start, end time.Time) ([]collectors.CalendarEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []collectors.CalendarEvent
	for _, e := range s.snap.Calendar {
		if e.StartsAt.Before(start) || e.StartsAt.After(end) {
			continue
		}
		out = append(out, collectors.CalendarEvent{
			ID:          e.ID,
			Title:       e.Title,
			StartsAt:    e.StartsAt,
			EndsAt:      e.EndsAt,
			Location:    e.Location,
			Outdoor:     e.Outdoor,
			PrepMinutes: e.PrepMinutes,
		})
	}
	return out, nil
}

// HighPriorityUnhandled implements collectors.EmailSource.
func (s *Store) HighPriorityUnhandled(_ context.Context, since time.Time) ([]collectors.InboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []collectors.InboxMessage
	for _, m := range s.snap.InboxFlagged {
		if m.ReceivedAt.Before(since) {
			continue
		}
		out = append(out, collectors.InboxMessage{
			ID:         m.ID,
			From:       m.From,
			Subject:    m.Subject,
			ReceivedAt: m.ReceivedAt,
		})
	}
	return out, nil
}

// AwaitingReply implements collectors.EmailSource.
func (s *Store) AwaitingReply(_ context.Context, olderThan time.Time) ([]collectors.SentMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []collectors.SentMessage
	for _, m := range s.snap.SentAwaiting {
		if m.SentAt.After(olderThan) {
			continue
		}
		out = append(out, collectors.SentMessage{
			ID:      m.ID,
			To:      m.To,
			Subject: m.Subject,
			SentAt:  m.SentAt,
		})
	}
	return out, nil
}

// ProcessedSince implements collectors.MeetingSource.
func (s *Store) ProcessedSince(_ context.Context, since time.Time) ([]collectors.Meeting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []collectors.Meeting
	for _, m := range s.snap.Meetings {
		if m.ProcessedAt.Before(since) {
			continue
		}
		meeting := collectors.Meeting{
			ID:          m.ID,
			Title:       m.Title,
			ProcessedAt: m.ProcessedAt,
		}
		for _, a := range m.ActionItems {
			meeting.ActionItems = append(meeting.ActionItems, collectors.MeetingActionItem{
				Description: a.Description,
				Assignee:    a.Assignee,
			})
		}
		out = append(out, meeting)
	}
	return out, nil
}

// FollowupsDue implements collectors.ConversationSource.
func (s *Store) FollowupsDue(_ context.Context, asOf time.Time) ([]collectors.ConversationThread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []collectors.ConversationThread
	for _, c := range s.snap.Conversations {
		if c.FollowupDue.IsZero() || c.FollowupDue.After(asOf) {
			continue
		}
		out = append(out, collectors.ConversationThread{
			ID:           c.ID,
			Channel:      c.Channel,
			With:         c.With,
			LastActivity: c.LastActivity,
		})
	}
	return out, nil
}

// SpikesSince implements collectors.TrendSource.
func (s *Store) SpikesSince(_ context.Context, since time.Time) ([]collectors.TrendObservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []collectors.TrendObservation
	for _, t := range s.snap.Trends {
		if t.ObservedAt.Before(since) {
			continue
		}
		out = append(out, collectors.TrendObservation{
			Keyword:    t.Keyword,
			Score:      t.Score,
			Source:     t.Source,
			ObservedAt: t.ObservedAt,
		})
	}
	return out, nil
}

// ActiveAlerts implements collectors.WeatherSource.
func (s *Store) ActiveAlerts(_ context.Context, start, end time.Time) ([]collectors.WeatherAdvisory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []collectors.WeatherAdvisory
	for _, w := range s.snap.Weather {
		if w.ValidTo.Before(start) || w.ValidFrom.After(end) {
			continue
		}
		out = append(out, collectors.WeatherAdvisory{
			ID:        w.ID,
			Condition: w.Condition,
			Severity:  w.Severity,
			Location:  w.Location,
			ValidFrom: w.ValidFrom,
			ValidTo:   w.ValidTo,
		})
	}
	return out, nil
}

// TrackedKeywordMatches implements collectors.KnowledgeSource.
func (s *Store) TrackedKeywordMatches(_ context.Context) ([]collectors.NoteMatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []collectors.NoteMatch
	for _, k := range s.snap.Knowledge {
		out = append(out, collectors.NoteMatch{
			Keyword: k.Keyword,
			NoteID:  k.NoteID,
			Title:   k.Title,
		})
	}
	return out, nil
}

// Overdue implements collectors.TaskSource.
func (s *Store) Overdue(_ context.Context, asOf time.Time) ([]collectors.TaskRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []collectors.TaskRecord
	for _, t := range s.snap.Tasks {
		if t.DueAt.IsZero() || !t.DueAt.Before(asOf) {
			continue
		}
		out = append(out, collectors.TaskRecord{ID: t.ID, Title: t.Title, DueAt: t.DueAt})
	}
	return out, nil
}

// DueBetween implements collectors.TaskSource.
func (s *Store) DueBetween(_ context.Context, start, end time.Time) ([]collectors.TaskRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []collectors.TaskRecord
	for _, t := range s.snap.Tasks {
		if t.DueAt.Before(start) || t.DueAt.After(end) {
			continue
		}
		out = append(out, collectors.TaskRecord{ID: t.ID, Title: t.Title, DueAt: t.DueAt})
	}
	return out, nil
}

// MentionsSince implements collectors.SocialSource.
func (s *Store) MentionsSince(_ context.Context, since time.Time) ([]collectors.SocialPost, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []collectors.SocialPost
	for _, p := range s.snap.Social {
		if p.PostedAt.Before(since) {
			continue
		}
		out = append(out, collectors.SocialPost{
			ID:       p.ID,
			Platform: p.Platform,
			Author:   p.Author,
			Reach:    p.Reach,
			PostedAt: p.PostedAt,
		})
	}
	return out, nil
}
