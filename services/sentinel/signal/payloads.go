// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package signal

import "time"

// =============================================================================
// Payload Variants
// =============================================================================

// Payload is the typed data variant attached to a signal.
//
// # Description
//
// One struct implements Payload per signal Type. Kind() ties the variant to
// its type tag, Complete() reports whether every contract-required field is
// populated, and CorrelationKey() exposes the stable identity value the
// detector groups by. Identity() is the value that survives re-collection:
// for keyed payloads it equals the correlation key, for keyless ones it is
// the natural identifier the source assigned (message, alert, or post ID).
// Fingerprinting and merge dedup run on Identity; correlation runs on
// CorrelationKey, where empty means "attach by time, not by key".
// Detector rules type-switch on the concrete variant instead of probing an
// open map.
type Payload interface {
	Kind() Type
	Complete() bool
	CorrelationKey() string
	Identity() string
}

// EventUpcoming describes a calendar event starting inside the look-ahead
// window. Required: EventID, HoursUntil. Emitted as event_upcoming_24h.
type EventUpcoming struct {
	EventID    string
	Title      string
	StartsAt   time.Time
	HoursUntil float64
	Location   string
	Outdoor    bool
}

func (p EventUpcoming) Kind() Type             { return TypeEventUpcoming24h }
func (p EventUpcoming) Complete() bool         { return p.EventID != "" && p.HoursUntil > 0 }
func (p EventUpcoming) CorrelationKey() string { return p.EventID }
func (p EventUpcoming) Identity() string       { return p.EventID }

// PrepTimeNeeded flags an upcoming event that needs preparation time
// blocked out beforehand. Required: EventID.
type PrepTimeNeeded struct {
	EventID     string
	PrepMinutes int
}

func (p PrepTimeNeeded) Kind() Type             { return TypePrepTimeNeeded }
func (p PrepTimeNeeded) Complete() bool         { return p.EventID != "" }
func (p PrepTimeNeeded) CorrelationKey() string { return p.EventID }
func (p PrepTimeNeeded) Identity() string       { return p.EventID }

// EventConflict describes two calendar events that overlap in time.
// Required: EventID, OtherEventID.
type EventConflict struct {
	EventID        string
	OtherEventID   string
	OverlapMinutes int
}

func (p EventConflict) Kind() Type             { return TypeEventConflict }
func (p EventConflict) Complete() bool         { return p.EventID != "" && p.OtherEventID != "" }
func (p EventConflict) CorrelationKey() string { return p.EventID }
func (p EventConflict) Identity() string       { return p.EventID + "+" + p.OtherEventID }

// EmailPriorityHigh describes an unhandled high-priority message.
// Required: MessageID.
type EmailPriorityHigh struct {
	MessageID  string
	From       string
	Subject    string
	ReceivedAt time.Time
}

func (p EmailPriorityHigh) Kind() Type             { return TypeEmailPriorityHigh }
func (p EmailPriorityHigh) Complete() bool         { return p.MessageID != "" }
func (p EmailPriorityHigh) CorrelationKey() string { return "" }
func (p EmailPriorityHigh) Identity() string       { return p.MessageID }

// EmailAwaitingReply describes a sent message whose reply is overdue.
// Required: MessageID.
type EmailAwaitingReply struct {
	MessageID   string
	To          string
	Subject     string
	DaysWaiting int
}

func (p EmailAwaitingReply) Kind() Type             { return TypeEmailAwaitingReply }
func (p EmailAwaitingReply) Complete() bool         { return p.MessageID != "" }
func (p EmailAwaitingReply) CorrelationKey() string { return "" }
func (p EmailAwaitingReply) Identity() string       { return p.MessageID }

// MeetingProcessed indicates a meeting transcript finished processing.
// Required: MeetingID.
type MeetingProcessed struct {
	MeetingID   string
	Title       string
	ProcessedAt time.Time
}

func (p MeetingProcessed) Kind() Type             { return TypeMeetingProcessed }
func (p MeetingProcessed) Complete() bool         { return p.MeetingID != "" }
func (p MeetingProcessed) CorrelationKey() string { return p.MeetingID }
func (p MeetingProcessed) Identity() string       { return p.MeetingID }

// ActionItemsCreated indicates action items were extracted from a meeting.
// Required: MeetingID, Count > 0.
type ActionItemsCreated struct {
	MeetingID string
	Count     int
	Assignees []string
}

func (p ActionItemsCreated) Kind() Type             { return TypeActionItemsCreated }
func (p ActionItemsCreated) Complete() bool         { return p.MeetingID != "" && p.Count > 0 }
func (p ActionItemsCreated) CorrelationKey() string { return p.MeetingID }
func (p ActionItemsCreated) Identity() string       { return p.MeetingID }

// ConversationFollowup describes a conversation thread that has gone quiet
// past its follow-up deadline. Required: ThreadID.
type ConversationFollowup struct {
	ThreadID     string
	Channel      string
	With         string
	LastActivity time.Time
}

func (p ConversationFollowup) Kind() Type             { return TypeConversationFollowup }
func (p ConversationFollowup) Complete() bool         { return p.ThreadID != "" }
func (p ConversationFollowup) CorrelationKey() string { return p.ThreadID }
func (p ConversationFollowup) Identity() string       { return p.ThreadID }

// TrendSpike describes a tracked keyword whose activity score spiked.
// Required: Keyword, Score > 0.
type TrendSpike struct {
	Keyword string
	Score   float64
	Source  string
}

func (p TrendSpike) Kind() Type             { return TypeTrendSpike }
func (p TrendSpike) Complete() bool         { return p.Keyword != "" && p.Score > 0 }
func (p TrendSpike) CorrelationKey() string { return p.Keyword }
func (p TrendSpike) Identity() string       { return p.Keyword }

// WeatherAlert describes an active weather advisory for a location.
// Required: AlertID, Condition.
type WeatherAlert struct {
	AlertID   string
	Condition string
	Severity  string
	Location  string
	ValidFrom time.Time
	ValidTo   time.Time
}

func (p WeatherAlert) Kind() Type             { return TypeWeatherAlert }
func (p WeatherAlert) Complete() bool         { return p.AlertID != "" && p.Condition != "" }
func (p WeatherAlert) CorrelationKey() string { return "" }
func (p WeatherAlert) Identity() string       { return p.AlertID }

// KnowledgeMatch links a tracked keyword to notes in the knowledge base,
// signalling material the user could publish or reuse. Required: Keyword,
// NoteID.
type KnowledgeMatch struct {
	Keyword string
	NoteID  string
	Title   string
}

func (p KnowledgeMatch) Kind() Type             { return TypeKnowledgeMatch }
func (p KnowledgeMatch) Complete() bool         { return p.Keyword != "" && p.NoteID != "" }
func (p KnowledgeMatch) CorrelationKey() string { return p.Keyword }
func (p KnowledgeMatch) Identity() string       { return p.Keyword + "/" + p.NoteID }

// TaskOverdue describes a task past its due date. Required: TaskID.
type TaskOverdue struct {
	TaskID      string
	Title       string
	DueAt       time.Time
	DaysOverdue int
}

func (p TaskOverdue) Kind() Type             { return TypeTaskOverdue }
func (p TaskOverdue) Complete() bool         { return p.TaskID != "" }
func (p TaskOverdue) CorrelationKey() string { return p.TaskID }
func (p TaskOverdue) Identity() string       { return p.TaskID }

// TaskDueSoon describes a task approaching its due date. Required: TaskID.
type TaskDueSoon struct {
	TaskID     string
	Title      string
	DueAt      time.Time
	HoursUntil float64
}

func (p TaskDueSoon) Kind() Type             { return TypeTaskDueSoon }
func (p TaskDueSoon) Complete() bool         { return p.TaskID != "" }
func (p TaskDueSoon) CorrelationKey() string { return p.TaskID }
func (p TaskDueSoon) Identity() string       { return p.TaskID }

// SocialMention describes a post mentioning the user or their work.
// Required: PostID, Platform.
type SocialMention struct {
	PostID   string
	Platform string
	Author   string
	Reach    int
}

func (p SocialMention) Kind() Type             { return TypeSocialMention }
func (p SocialMention) Complete() bool         { return p.PostID != "" && p.Platform != "" }
func (p SocialMention) CorrelationKey() string { return "" }
func (p SocialMention) Identity() string       { return p.Platform + "/" + p.PostID }
