// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package detect

import (
	_ "embed"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianSentinel/services/sentinel/signal"
)

// DefaultRules is the embedded declarative rule table. Deployments can
// override it with a rules file; see Watcher.
//
//go:embed rules/defaults.yaml
var DefaultRules []byte

// =============================================================================
// YAML Schema
// =============================================================================

type ruleFile struct {
	Rules []ruleSpec `yaml:"rules"`
}

type ruleSpec struct {
	Name        string   `yaml:"name"`
	Title       string   `yaml:"title"`
	Required    []string `yaml:"required"`
	Optional    []string `yaml:"optional"`
	Window      string   `yaml:"window"`
	MinRequired int      `yaml:"min_required"`
	TTL         string   `yaml:"ttl"`
}

// =============================================================================
// Behavior Table
// =============================================================================

// ruleBehavior is the Go half of a rule: refinement and description.
type ruleBehavior struct {
	refine   func(cluster []signal.Signal) bool
	describe func(cluster []signal.Signal) (string, string)
}

// behaviors maps rule names to their refinement predicates and describe
// functions. A rule with no entry here gates on the YAML declaration alone
// and falls back to its static title.
var behaviors = map[string]ruleBehavior{
	"deadline": {
		describe: func(cluster []signal.Signal) (string, string) {
			ev, ok := findPayload[signal.EventUpcoming](cluster)
			if !ok {
				return "", ""
			}
			prep, _ := findPayload[signal.PrepTimeNeeded](cluster)
			return fmt.Sprintf("Prepare for %q", ev.Title),
				fmt.Sprintf("%q starts in %.0f hours and needs about %d minutes of preparation.",
					ev.Title, ev.HoursUntil, prep.PrepMinutes)
		},
	},
	"meeting_followup": {
		describe: func(cluster []signal.Signal) (string, string) {
			mt, ok := findPayload[signal.MeetingProcessed](cluster)
			if !ok {
				return "", ""
			}
			items, _ := findPayload[signal.ActionItemsCreated](cluster)
			return fmt.Sprintf("Follow up on %q", mt.Title),
				fmt.Sprintf("The transcript of %q produced %d action items awaiting review.",
					mt.Title, items.Count)
		},
	},
	"schedule_conflict": {
		describe: func(cluster []signal.Signal) (string, string) {
			c, ok := findPayload[signal.EventConflict](cluster)
			if !ok {
				return "", ""
			}
			return "Two events overlap",
				fmt.Sprintf("Events %s and %s overlap by %d minutes.",
					c.EventID, c.OtherEventID, c.OverlapMinutes)
		},
	},
	"inbox_pressure": {
		describe: func(cluster []signal.Signal) (string, string) {
			n := 0
			for _, s := range cluster {
				if s.Type == signal.TypeEmailPriorityHigh {
					n++
				}
			}
			return fmt.Sprintf("%d high-priority emails waiting", n),
				fmt.Sprintf("%d flagged messages have accumulated without a response.", n)
		},
	},
	"content_opportunity": {
		describe: func(cluster []signal.Signal) (string, string) {
			tr, ok := findPayload[signal.TrendSpike](cluster)
			if !ok {
				return "", ""
			}
			note, _ := findPayload[signal.KnowledgeMatch](cluster)
			return fmt.Sprintf("%q is trending and you have notes on it", tr.Keyword),
				fmt.Sprintf("%q spiked to %.0f on %s; your note %q covers the topic.",
					tr.Keyword, tr.Score, tr.Source, note.Title)
		},
	},
	"weather_disruption": {
		refine: func(cluster []signal.Signal) bool {
			ev, ok := findPayload[signal.EventUpcoming](cluster)
			return ok && ev.Outdoor
		},
		describe: func(cluster []signal.Signal) (string, string) {
			alert, ok := findPayload[signal.WeatherAlert](cluster)
			if !ok {
				return "", ""
			}
			ev, _ := findPayload[signal.EventUpcoming](cluster)
			return fmt.Sprintf("%s may disrupt %q", alert.Condition, ev.Title),
				fmt.Sprintf("A %s %s advisory overlaps the outdoor event %q.",
					alert.Severity, alert.Condition, ev.Title)
		},
	},
	"task_slip": {
		describe: func(cluster []signal.Signal) (string, string) {
			task, ok := findPayload[signal.TaskOverdue](cluster)
			if !ok {
				return "", ""
			}
			return fmt.Sprintf("%q is %d days overdue", task.Title, task.DaysOverdue),
				fmt.Sprintf("Task %q was due %s and is still open.",
					task.Title, task.DueAt.Format("Jan 2"))
		},
	},
	"followup_nudge": {
		describe: func(cluster []signal.Signal) (string, string) {
			th, ok := findPayload[signal.ConversationFollowup](cluster)
			if !ok {
				return "", ""
			}
			return fmt.Sprintf("Follow up with %s", th.With),
				fmt.Sprintf("The %s conversation with %s has been quiet since %s.",
					th.Channel, th.With, th.LastActivity.Format("Jan 2"))
		},
	},
	"engagement_window": {
		describe: func(cluster []signal.Signal) (string, string) {
			n := 0
			for _, s := range cluster {
				if s.Type == signal.TypeSocialMention {
					n++
				}
			}
			return fmt.Sprintf("%d recent mentions of your work", n),
				fmt.Sprintf("%d posts mentioned you inside a short window; engaging now has the most reach.", n)
		},
	},
}

// findPayload returns the first payload of type P in the cluster, in
// cluster order (timestamp then ID, so the result is deterministic).
func findPayload[P signal.Payload](cluster []signal.Signal) (P, bool) {
	for _, s := range cluster {
		if p, ok := s.Payload.(P); ok {
			return p, true
		}
	}
	var zero P
	return zero, false
}

// =============================================================================
// Loading
// =============================================================================

// LoadRegistry parses a YAML rule table, attaches behaviors, and builds a
// validated registry.
//
// # Inputs
//
//   - raw: YAML bytes in the rules/defaults.yaml schema.
//
// # Outputs
//
//   - *Registry: Validated, ordered registry.
//   - error: Non-nil on malformed YAML, unknown signal types, duplicate
//     rule names, or unparsable durations.
func LoadRegistry(raw []byte) (*Registry, error) {
	var file ruleFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("unmarshal rule table: %w", err)
	}
	if len(file.Rules) == 0 {
		return nil, fmt.Errorf("rule table declares no rules")
	}

	rules := make([]Rule, 0, len(file.Rules))
	for _, spec := range file.Rules {
		r, err := spec.toRule()
		if err != nil {
			return nil, err
		}
		if b, ok := behaviors[r.Name]; ok {
			r.Refine = b.refine
			r.Describe = b.describe
		}
		rules = append(rules, r)
	}
	return NewRegistry(rules)
}

// DefaultRegistry loads the embedded rule table. It panics on error since
// a broken embedded table is a build defect, not a runtime condition.
func DefaultRegistry() *Registry {
	reg, err := LoadRegistry(DefaultRules)
	if err != nil {
		panic(fmt.Sprintf("embedded rule table is invalid: %v", err))
	}
	return reg
}

func (s ruleSpec) toRule() (Rule, error) {
	window, err := time.ParseDuration(s.Window)
	if err != nil {
		return Rule{}, fmt.Errorf("rule %q: parse window: %w", s.Name, err)
	}
	ttl, err := time.ParseDuration(s.TTL)
	if err != nil {
		return Rule{}, fmt.Errorf("rule %q: parse ttl: %w", s.Name, err)
	}

	required, err := toSignalTypes(s.Name, s.Required)
	if err != nil {
		return Rule{}, err
	}
	optional, err := toSignalTypes(s.Name, s.Optional)
	if err != nil {
		return Rule{}, err
	}

	return Rule{
		Name:        s.Name,
		Title:       s.Title,
		Required:    required,
		Optional:    optional,
		Window:      window,
		MinRequired: s.MinRequired,
		TTL:         ttl,
	}, nil
}

func toSignalTypes(rule string, names []string) ([]signal.Type, error) {
	out := make([]signal.Type, 0, len(names))
	for _, n := range names {
		t := signal.Type(n)
		if !signal.Known(t) {
			return nil, fmt.Errorf("rule %q references unknown signal type %q", rule, n)
		}
		out = append(out, t)
	}
	return out, nil
}
