// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package collector

import "sync"

const dedupCapacity = 10000

// dedupSet is a sliding set of record fingerprints bounded at dedupCapacity
// entries. It suppresses double-delivery across the WS/REST seam. When
// full it clears wholesale (replacing the map) rather than evicting by
// age, the coarse policy the spec specifies over an LRU.
type dedupSet struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func newDedupSet() *dedupSet {
	return &dedupSet{seen: make(map[string]struct{}, dedupCapacity)}
}

// seenBefore reports whether fingerprint was already recorded, recording
// it if not.
func (d *dedupSet) seenBefore(fingerprint string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[fingerprint]; ok {
		return true
	}
	if len(d.seen) >= dedupCapacity {
		d.seen = make(map[string]struct{}, dedupCapacity)
	}
	d.seen[fingerprint] = struct{}{}
	return false
}
