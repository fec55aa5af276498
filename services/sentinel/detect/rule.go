// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package detect implements the situation detector: a registry of
// declarative pattern rules evaluated against each cycle's signal set.
//
// # Description
//
// The gating half of every rule (required and optional signal types,
// correlation window, minimum signal count, situation TTL) lives in an
// embedded YAML table so the correlation logic stays auditable without
// reading Go code. The behavioral half (cross-type refinement predicates
// and human-readable descriptions) is a Go table keyed by rule name.
//
// Detection is fully deterministic: the same signal set always yields the
// same candidates, which the manager's fingerprint deduplication and the
// property tests both rely on.
package detect

import (
	"fmt"
	"sort"
	"time"

	"github.com/AleutianAI/AleutianSentinel/services/sentinel/signal"
)

// =============================================================================
// Rule Model
// =============================================================================

// Rule is one named correlation pattern.
//
// # Fields
//
//   - Name: Rule identifier; becomes the situation_type of every candidate
//     the rule emits.
//   - Title: Fallback headline when the rule has no describe function.
//   - Required: Signal types that must all be present (with complete
//     payloads) for the rule to fire.
//   - Optional: Signal types that enrich a cluster but do not gate it.
//   - Window: Maximum time delta between contributing signals.
//   - MinRequired: Minimum number of required-type signals per cluster.
//     Zero means one.
//   - TTL: How long a situation born from this rule stays actionable.
//   - Refine: Optional predicate applied to each clustered candidate;
//     clusters it rejects are discarded. Nil accepts everything.
//   - Describe: Optional function building the title and summary from the
//     cluster. Nil falls back to Title and a generic summary.
type Rule struct {
	Name        string
	Title       string
	Required    []signal.Type
	Optional    []signal.Type
	Window      time.Duration
	MinRequired int
	TTL         time.Duration
	Refine      func(cluster []signal.Signal) bool
	Describe    func(cluster []signal.Signal) (title, summary string)
}

// Validate checks the rule's declarative half for internal consistency.
func (r Rule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("rule has no name")
	}
	if len(r.Required) == 0 {
		return fmt.Errorf("rule %q declares no required signal types", r.Name)
	}
	if r.Window <= 0 {
		return fmt.Errorf("rule %q has non-positive correlation window", r.Name)
	}
	if r.TTL <= 0 {
		return fmt.Errorf("rule %q has non-positive ttl", r.Name)
	}
	seen := make(map[signal.Type]bool)
	for _, t := range append(append([]signal.Type{}, r.Required...), r.Optional...) {
		if seen[t] {
			return fmt.Errorf("rule %q lists signal type %q twice", r.Name, t)
		}
		seen[t] = true
	}
	return nil
}

// accepts reports whether the given signal type participates in the rule.
func (r Rule) accepts(t signal.Type) bool {
	for _, rt := range r.Required {
		if rt == t {
			return true
		}
	}
	for _, ot := range r.Optional {
		if ot == t {
			return true
		}
	}
	return false
}

// isRequired reports whether the given signal type gates the rule.
func (r Rule) isRequired(t signal.Type) bool {
	for _, rt := range r.Required {
		if rt == t {
			return true
		}
	}
	return false
}

// =============================================================================
// Registry
// =============================================================================

// Registry holds the ordered rule set for one detector instance.
//
// Order is significant: rules are evaluated in declaration order and the
// suggester's tie-breaks depend on it. The registry is immutable after
// construction; hot reloads swap the whole registry.
type Registry struct {
	rules []Rule
}

// NewRegistry builds a registry, validating every rule and rejecting
// duplicate names.
func NewRegistry(rules []Rule) (*Registry, error) {
	names := make(map[string]bool, len(rules))
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		if names[r.Name] {
			return nil, fmt.Errorf("duplicate rule name %q", r.Name)
		}
		names[r.Name] = true
	}
	return &Registry{rules: rules}, nil
}

// Rules returns the rules in declaration order. The returned slice is a
// copy; callers cannot mutate the registry.
func (reg *Registry) Rules() []Rule {
	out := make([]Rule, len(reg.rules))
	copy(out, reg.rules)
	return out
}

// Rule returns the named rule.
func (reg *Registry) Rule(name string) (Rule, bool) {
	for _, r := range reg.rules {
		if r.Name == name {
			return r, true
		}
	}
	return Rule{}, false
}

// TTLs returns the per-situation-type TTL map the manager uses to set
// expires_at on new situations.
func (reg *Registry) TTLs() map[string]time.Duration {
	out := make(map[string]time.Duration, len(reg.rules))
	for _, r := range reg.rules {
		out[r.Name] = r.TTL
	}
	return out
}

// sortSignals orders signals by timestamp then ID. Detection iterates
// signals only in this order, which keeps clustering deterministic.
func sortSignals(sigs []signal.Signal) []signal.Signal {
	out := make([]signal.Signal, len(sigs))
	copy(out, sigs)
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
