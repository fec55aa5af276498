// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package suggest maps detected situation candidates to concrete,
// executable action recommendations.
//
// # Description
//
// The suggester is a pure function of a candidate's type and its
// contributing signals. It performs no I/O and holds no mutable state:
// the same candidate always yields the same action list. Domain actions
// come from a declaration-ordered template table keyed by situation type;
// every result additionally carries a low-effort "review" action so that
// no situation is ever presented without a valid response.
//
// # Limitations
//
// Templates fill execution parameters from whatever payload data the
// cluster happens to carry. A template that finds none of its expected
// payloads still emits its action, advisory-only, with nil parameters.
package suggest

import (
	"fmt"
	"sort"

	"github.com/AleutianAI/AleutianSentinel/services/sentinel/signal"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/situation"
)

// ActionReview is the default action type attached to every situation.
const ActionReview = "review"

// =============================================================================
// Template Table
// =============================================================================

// template is one potential action for a situation type. build returns the
// human-readable description and, when the cluster carries enough data for
// an external executor, the structured parameters to run it.
type template struct {
	actionType string
	urgency    situation.Urgency
	build      func(c situation.Candidate) (string, map[string]any)
}

// Suggester produces ordered action recommendations for candidates.
type Suggester struct {
	templates map[string][]template
}

// NewSuggester returns a suggester with the built-in template table.
func NewSuggester() *Suggester {
	return &Suggester{templates: defaultTemplates()}
}

// Suggest returns the candidate's recommended actions, most significant
// first. Domain actions are ordered urgency-descending with ties broken
// by template declaration order; the review action is always last.
//
// # Inputs
//   - c: a detector candidate. Only its Type and Signals are consulted.
//
// # Outputs
//   - a non-empty, ordered action list. The final element is always the
//     review action.
func (s *Suggester) Suggest(c situation.Candidate) []situation.Action {
	var actions []situation.Action
	for _, t := range s.templates[c.Type] {
		desc, params := t.build(c)
		actions = append(actions, situation.Action{
			Type:                t.actionType,
			Description:         desc,
			Urgency:             t.urgency,
			ExecutionParameters: params,
		})
	}
	sort.SliceStable(actions, func(i, j int) bool {
		return actions[i].Urgency > actions[j].Urgency
	})

	actions = append(actions, situation.Action{
		Type:        ActionReview,
		Description: "Review this situation and dismiss it if it does not apply",
		Urgency:     situation.UrgencyLow,
	})
	return actions
}

// =============================================================================
// Payload Helpers
// =============================================================================

// firstPayload returns the first payload of type P in the cluster.
func firstPayload[P signal.Payload](c situation.Candidate) (P, bool) {
	for _, s := range c.Signals {
		if p, ok := s.Payload.(P); ok {
			return p, true
		}
	}
	var zero P
	return zero, false
}

// allPayloads returns every payload of type P in cluster order.
func allPayloads[P signal.Payload](c situation.Candidate) []P {
	var out []P
	for _, s := range c.Signals {
		if p, ok := s.Payload.(P); ok {
			out = append(out, p)
		}
	}
	return out
}

// =============================================================================
// Built-in Templates
// =============================================================================

func defaultTemplates() map[string][]template {
	return map[string][]template{
		"deadline": {
			{
				actionType: "block_prep_time",
				urgency:    situation.UrgencyHigh,
				build: func(c situation.Candidate) (string, map[string]any) {
					prep, okPrep := firstPayload[signal.PrepTimeNeeded](c)
					ev, okEv := firstPayload[signal.EventUpcoming](c)
					if !okPrep || !okEv {
						return "Block preparation time before the upcoming event", nil
					}
					return fmt.Sprintf("Block %d minutes to prepare for %q", prep.PrepMinutes, ev.Title),
						map[string]any{
							"event_id":     ev.EventID,
							"prep_minutes": prep.PrepMinutes,
							"before":       ev.StartsAt,
						}
				},
			},
			{
				actionType: "set_reminder",
				urgency:    situation.UrgencyMedium,
				build: func(c situation.Candidate) (string, map[string]any) {
					ev, ok := firstPayload[signal.EventUpcoming](c)
					if !ok {
						return "Set a reminder ahead of the event", nil
					}
					return fmt.Sprintf("Set a reminder one hour before %q", ev.Title),
						map[string]any{"event_id": ev.EventID, "offset_minutes": 60}
				},
			},
		},

		"meeting_followup": {
			{
				actionType: "send_summary",
				urgency:    situation.UrgencyHigh,
				build: func(c situation.Candidate) (string, map[string]any) {
					m, ok := firstPayload[signal.MeetingProcessed](c)
					if !ok {
						return "Send the meeting summary to attendees", nil
					}
					return fmt.Sprintf("Send the summary for %q to attendees", m.Title),
						map[string]any{"meeting_id": m.MeetingID}
				},
			},
			{
				actionType: "create_tasks",
				urgency:    situation.UrgencyMedium,
				build: func(c situation.Candidate) (string, map[string]any) {
					items, ok := firstPayload[signal.ActionItemsCreated](c)
					if !ok {
						return "Create tasks from the extracted action items", nil
					}
					return fmt.Sprintf("Create %d tasks from the meeting's action items", items.Count),
						map[string]any{
							"meeting_id": items.MeetingID,
							"count":      items.Count,
							"assignees":  items.Assignees,
						}
				},
			},
		},

		"schedule_conflict": {
			{
				actionType: "propose_reschedule",
				urgency:    situation.UrgencyHigh,
				build: func(c situation.Candidate) (string, map[string]any) {
					conf, ok := firstPayload[signal.EventConflict](c)
					if !ok {
						return "Propose rescheduling one of the conflicting events", nil
					}
					return fmt.Sprintf("Propose rescheduling: events overlap by %d minutes", conf.OverlapMinutes),
						map[string]any{
							"event_id":        conf.EventID,
							"other_event_id":  conf.OtherEventID,
							"overlap_minutes": conf.OverlapMinutes,
						}
				},
			},
		},

		"inbox_pressure": {
			{
				actionType: "draft_replies",
				urgency:    situation.UrgencyHigh,
				build: func(c situation.Candidate) (string, map[string]any) {
					emails := allPayloads[signal.EmailPriorityHigh](c)
					if len(emails) == 0 {
						return "Draft replies to the waiting high-priority messages", nil
					}
					ids := make([]string, 0, len(emails))
					for _, e := range emails {
						ids = append(ids, e.MessageID)
					}
					return fmt.Sprintf("Draft replies to %d high-priority messages", len(ids)),
						map[string]any{"message_ids": ids}
				},
			},
		},

		"content_opportunity": {
			{
				actionType: "draft_post",
				urgency:    situation.UrgencyMedium,
				build: func(c situation.Candidate) (string, map[string]any) {
					trend, okT := firstPayload[signal.TrendSpike](c)
					note, okN := firstPayload[signal.KnowledgeMatch](c)
					if !okT || !okN {
						return "Draft a post on the trending topic from your notes", nil
					}
					return fmt.Sprintf("Draft a post on %q from note %q", trend.Keyword, note.Title),
						map[string]any{
							"keyword": trend.Keyword,
							"note_id": note.NoteID,
							"score":   trend.Score,
						}
				},
			},
		},

		"weather_disruption": {
			{
				actionType: "notify_attendees",
				urgency:    situation.UrgencyHigh,
				build: func(c situation.Candidate) (string, map[string]any) {
					alert, okA := firstPayload[signal.WeatherAlert](c)
					ev, okE := firstPayload[signal.EventUpcoming](c)
					if !okA || !okE {
						return "Warn attendees about the weather advisory", nil
					}
					return fmt.Sprintf("Warn attendees of %q about %s (%s)", ev.Title, alert.Condition, alert.Severity),
						map[string]any{
							"event_id": ev.EventID,
							"alert_id": alert.AlertID,
							"severity": alert.Severity,
						}
				},
			},
			{
				actionType: "propose_reschedule",
				urgency:    situation.UrgencyMedium,
				build: func(c situation.Candidate) (string, map[string]any) {
					ev, ok := firstPayload[signal.EventUpcoming](c)
					if !ok {
						return "Propose moving the event indoors or to another day", nil
					}
					return fmt.Sprintf("Propose moving %q indoors or to another day", ev.Title),
						map[string]any{"event_id": ev.EventID}
				},
			},
		},

		"task_slip": {
			{
				actionType: "reschedule_task",
				urgency:    situation.UrgencyMedium,
				build: func(c situation.Candidate) (string, map[string]any) {
					task, ok := firstPayload[signal.TaskOverdue](c)
					if !ok {
						return "Reschedule the overdue task to a realistic date", nil
					}
					return fmt.Sprintf("Reschedule %q (%d days overdue) to a realistic date", task.Title, task.DaysOverdue),
						map[string]any{
							"task_id":      task.TaskID,
							"days_overdue": task.DaysOverdue,
						}
				},
			},
		},

		"followup_nudge": {
			{
				actionType: "draft_followup",
				urgency:    situation.UrgencyMedium,
				build: func(c situation.Candidate) (string, map[string]any) {
					conv, ok := firstPayload[signal.ConversationFollowup](c)
					if !ok {
						return "Draft a follow-up message for the quiet conversation", nil
					}
					return fmt.Sprintf("Draft a follow-up to %s on %s", conv.With, conv.Channel),
						map[string]any{
							"thread_id": conv.ThreadID,
							"channel":   conv.Channel,
						}
				},
			},
		},

		"engagement_window": {
			{
				actionType: "engage_mentions",
				urgency:    situation.UrgencyMedium,
				build: func(c situation.Candidate) (string, map[string]any) {
					mentions := allPayloads[signal.SocialMention](c)
					if len(mentions) == 0 {
						return "Respond to the recent mentions while they are fresh", nil
					}
					ids := make([]string, 0, len(mentions))
					for _, m := range mentions {
						ids = append(ids, m.PostID)
					}
					return fmt.Sprintf("Respond to %d mentions while the window is open", len(ids)),
						map[string]any{
							"post_ids": ids,
							"platform": mentions[0].Platform,
						}
				},
			},
		},
	}
}
