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
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/AleutianAI/AleutianSentinel/services/sentinel/signal"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/situation"
)

// =============================================================================
// Detector
// =============================================================================

// RuleOutcome reports one rule's evaluation inside a detection pass.
type RuleOutcome struct {
	Rule    string `json:"rule"`
	Matches int    `json:"matches"`
	Err     string `json:"error,omitempty"`
}

// Result is the outcome of one detection pass.
type Result struct {
	Candidates []situation.Candidate
	Rules      []RuleOutcome
}

// Detector evaluates a rule registry against signal sets.
//
// # Thread Safety
//
// Detect is read-only against both the registry and the signal list, so a
// single Detector is safe for concurrent use.
type Detector struct {
	registry *Registry
}

// NewDetector creates a detector over the given registry.
func NewDetector(registry *Registry) *Detector {
	return &Detector{registry: registry}
}

// Detect evaluates every registered rule against the signal set.
//
// # Description
//
// For each rule, in declaration order:
//  1. keep only complete signals of the rule's required/optional types;
//  2. check every required type is represented; skip the rule otherwise;
//  3. cluster the survivors by correlation key and window proximity;
//  4. merge clusters sharing a signal (a signal contributes to at most one
//     candidate per rule);
//  5. apply the rule's refinement predicate;
//  6. emit one candidate per surviving cluster with the maximum priority
//     among its contributing signals.
//
// A rule that panics is logged and skipped; remaining rules still run.
// Detection is deterministic: identical signal sets produce identical
// results, including ordering.
func (d *Detector) Detect(signals []signal.Signal) Result {
	sorted := sortSignals(signals)

	result := Result{Rules: make([]RuleOutcome, 0, len(d.registry.rules))}
	for _, rule := range d.registry.rules {
		outcome := d.evaluateIsolated(rule, sorted, &result.Candidates)
		result.Rules = append(result.Rules, outcome)
	}
	return result
}

// evaluateIsolated runs one rule inside a recover boundary so a malformed
// rule cannot abort detection for the rest of the registry.
func (d *Detector) evaluateIsolated(rule Rule, sorted []signal.Signal, out *[]situation.Candidate) (outcome RuleOutcome) {
	outcome = RuleOutcome{Rule: rule.Name}
	defer func() {
		if r := recover(); r != nil {
			outcome.Matches = 0
			outcome.Err = fmt.Sprintf("rule panicked: %v", r)
			slog.Error("detect: rule evaluation failed",
				"rule", rule.Name,
				"panic", r,
			)
		}
	}()

	candidates := evaluate(rule, sorted)
	*out = append(*out, candidates...)
	outcome.Matches = len(candidates)
	return outcome
}

// evaluate applies one rule to the pre-sorted signal set.
func evaluate(rule Rule, sorted []signal.Signal) []situation.Candidate {
	// Step 1: restrict to complete signals of participating types.
	var pool []signal.Signal
	for _, s := range sorted {
		if rule.accepts(s.Type) && s.Complete() {
			pool = append(pool, s)
		}
	}

	// Step 2: gate on required types. A required field that is missing
	// made the signal incomplete in step 1, so absence covers both cases.
	present := make(map[signal.Type]bool)
	for _, s := range pool {
		present[s.Type] = true
	}
	for _, t := range rule.Required {
		if !present[t] {
			return nil
		}
	}

	clusters := cluster(rule, pool)
	clusters = mergeSharing(clusters)

	minRequired := rule.MinRequired
	if minRequired < 1 {
		minRequired = 1
	}

	var out []situation.Candidate
	for _, cl := range clusters {
		if !clusterComplete(rule, cl, minRequired) {
			continue
		}
		if rule.Refine != nil && !rule.Refine(cl) {
			continue
		}
		out = append(out, newCandidate(rule, cl))
	}
	return out
}

// cluster groups a rule's signal pool into coherent clusters.
//
// Signals with a correlation key cluster by key: all signals sharing a key
// belong together when their timestamps fit inside the rule's window.
// Keyless signals attach to every keyed cluster whose time range they fall
// within; if the rule has no keyed signals at all, keyless signals cluster
// by window proximity alone (greedy, in timestamp order).
func cluster(rule Rule, pool []signal.Signal) [][]signal.Signal {
	byKey := make(map[string][]signal.Signal)
	var keys []string
	var keyless []signal.Signal
	for _, s := range pool {
		k := s.CorrelationKey()
		if k == "" {
			keyless = append(keyless, s)
			continue
		}
		if _, seen := byKey[k]; !seen {
			keys = append(keys, k)
		}
		byKey[k] = append(byKey[k], s)
	}
	sort.Strings(keys)

	var clusters [][]signal.Signal
	if len(keys) == 0 {
		// Purely time-based clustering.
		return windowClusters(rule, keyless)
	}

	for _, k := range keys {
		group := withinWindow(rule, byKey[k])
		if len(group) == 0 {
			continue
		}
		lo, hi := timeRange(group)
		for _, s := range keyless {
			if !s.Timestamp.Before(lo.Add(-rule.Window)) && !s.Timestamp.After(hi.Add(rule.Window)) {
				group = append(group, s)
			}
		}
		clusters = append(clusters, group)
	}
	return clusters
}

// withinWindow trims a keyed group to the signals inside the rule window
// of the group's earliest member. Stragglers beyond the window belong to
// a later cycle's correlation, not this one.
func withinWindow(rule Rule, group []signal.Signal) []signal.Signal {
	if len(group) == 0 {
		return nil
	}
	anchor := group[0].Timestamp
	var out []signal.Signal
	for _, s := range group {
		if s.Timestamp.Sub(anchor) <= rule.Window {
			out = append(out, s)
		}
	}
	return out
}

// windowClusters groups keyless signals greedily by window proximity.
func windowClusters(rule Rule, pool []signal.Signal) [][]signal.Signal {
	var clusters [][]signal.Signal
	var current []signal.Signal
	for _, s := range pool {
		if len(current) == 0 || s.Timestamp.Sub(current[0].Timestamp) <= rule.Window {
			current = append(current, s)
			continue
		}
		clusters = append(clusters, current)
		current = []signal.Signal{s}
	}
	if len(current) > 0 {
		clusters = append(clusters, current)
	}
	return clusters
}

// timeRange returns the earliest and latest timestamps in a non-empty
// group.
func timeRange(group []signal.Signal) (time.Time, time.Time) {
	lo, hi := group[0].Timestamp, group[0].Timestamp
	for _, s := range group[1:] {
		if s.Timestamp.Before(lo) {
			lo = s.Timestamp
		}
		if s.Timestamp.After(hi) {
			hi = s.Timestamp
		}
	}
	return lo, hi
}

// mergeSharing merges clusters that share a contributing signal, so a
// signal belongs to at most one emitted candidate per rule run.
func mergeSharing(clusters [][]signal.Signal) [][]signal.Signal {
	if len(clusters) < 2 {
		return clusters
	}

	owner := make(map[string]int) // signal ID -> cluster index
	parent := make([]int, len(clusters))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}

	for i, cl := range clusters {
		for _, s := range cl {
			if j, ok := owner[s.ID]; ok {
				ri, rj := find(i), find(j)
				if ri != rj {
					parent[ri] = rj
				}
			} else {
				owner[s.ID] = i
			}
		}
	}

	merged := make(map[int][]signal.Signal)
	var order []int
	for i, cl := range clusters {
		root := find(i)
		if _, seen := merged[root]; !seen {
			order = append(order, root)
		}
		merged[root] = append(merged[root], cl...)
	}

	out := make([][]signal.Signal, 0, len(order))
	for _, root := range order {
		out = append(out, dedupeSignals(merged[root]))
	}
	return out
}

// dedupeSignals removes duplicate signal IDs while preserving order.
func dedupeSignals(sigs []signal.Signal) []signal.Signal {
	seen := make(map[string]bool, len(sigs))
	out := sigs[:0]
	for _, s := range sigs {
		if seen[s.ID] {
			continue
		}
		seen[s.ID] = true
		out = append(out, s)
	}
	return out
}

// clusterComplete checks the cluster still satisfies the rule's gate after
// clustering: every required type present and enough required signals.
func clusterComplete(rule Rule, cl []signal.Signal, minRequired int) bool {
	present := make(map[signal.Type]bool)
	requiredCount := 0
	for _, s := range cl {
		present[s.Type] = true
		if rule.isRequired(s.Type) {
			requiredCount++
		}
	}
	for _, t := range rule.Required {
		if !present[t] {
			return false
		}
	}
	return requiredCount >= minRequired
}

// newCandidate builds the candidate for one surviving cluster.
func newCandidate(rule Rule, cl []signal.Signal) situation.Candidate {
	cl = sortSignals(cl)

	prio := signal.PriorityLow
	for _, s := range cl {
		prio = signal.MaxPriority(prio, s.Priority)
	}

	title, summary := rule.Title, ""
	if rule.Describe != nil {
		if t, s := rule.Describe(cl); t != "" {
			title, summary = t, s
		}
	}
	if summary == "" {
		summary = fmt.Sprintf("Correlated %d signals for %s.", len(cl), rule.Name)
	}

	return situation.Candidate{
		Type:     rule.Name,
		Title:    title,
		Summary:  summary,
		Priority: prio,
		Signals:  cl,
	}
}
