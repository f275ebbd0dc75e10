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

import "time"

// SubState is a Subscription's state.
type SubState int

const (
	SubPending SubState = iota
	SubSubscribed
	SubUnsubscribed
	SubFailed
)

func (s SubState) String() string {
	switch s {
	case SubPending:
		return "PENDING"
	case SubSubscribed:
		return "SUBSCRIBED"
	case SubUnsubscribed:
		return "UNSUBSCRIBED"
	case SubFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Subscription tracks one canonical symbol's subscribe state within a
// Collector. Attempts is monotonically nondecreasing.
type Subscription struct {
	Symbol      string
	State       SubState
	LastUpdated time.Time
	Attempts    int
}
