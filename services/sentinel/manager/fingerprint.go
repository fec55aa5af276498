// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package manager

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"github.com/AleutianAI/AleutianSentinel/services/sentinel/situation"
)

// Fingerprint derives the deduplication identity of a candidate.
//
// # Description
//
// SHA-256 over the situation type plus the sorted, de-duplicated stable
// identities of the contributing signals. The same real-world condition
// detected in two different cycles therefore hashes identically even
// though every cycle mints fresh signal UUIDs, while a different signal
// combination yields a different fingerprint.
//
// # Inputs
//   - c: the detector candidate. Only Type and Signals contribute.
//
// # Outputs
//   - a 64-character lowercase hex digest.
func Fingerprint(c situation.Candidate) string {
	ids := make([]string, 0, len(c.Signals))
	seen := make(map[string]bool, len(c.Signals))
	for _, s := range c.Signals {
		id := string(s.Type) + "/" + s.Identity()
		if !seen[id] {
			ids = append(ids, id)
			seen[id] = true
		}
	}
	sort.Strings(ids)

	h := sha256.New()
	h.Write([]byte(c.Type))
	for _, id := range ids {
		h.Write([]byte{0})
		h.Write([]byte(id))
	}
	return hex.EncodeToString(h.Sum(nil))
}
