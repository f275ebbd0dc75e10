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

import "fmt"

// State is a Collector's lifecycle state.
type State int

const (
	StateInitial State = iota
	StateConnecting
	StateConnected
	StateSubscribing
	StateRunning
	StateReconnecting
	StateFallback
	StateStopping
	StateStopped
	StateError
)

func (s State) String() string {
	switch s {
	case StateInitial:
		return "INITIAL"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateSubscribing:
		return "SUBSCRIBING"
	case StateRunning:
		return "RUNNING"
	case StateReconnecting:
		return "RECONNECTING"
	case StateFallback:
		return "FALLBACK"
	case StateStopping:
		return "STOPPING"
	case StateStopped:
		return "STOPPED"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// legalTransitions is the table from spec §4.3, reproduced verbatim.
// ERROR is reachable only where a row lists it (every row except INITIAL
// and ERROR). STOPPED is additionally allowed from every state other than
// INITIAL by a separate check in canTransition, on external stop.
var legalTransitions = map[State]map[State]bool{
	StateInitial:      {StateConnecting: true, StateStopped: true},
	StateConnecting:   {StateConnected: true, StateReconnecting: true, StateError: true, StateStopping: true},
	StateConnected:    {StateSubscribing: true, StateReconnecting: true, StateError: true, StateStopping: true},
	StateSubscribing:  {StateRunning: true, StateReconnecting: true, StateError: true, StateStopping: true},
	StateRunning:      {StateReconnecting: true, StateError: true, StateStopping: true},
	StateReconnecting: {StateConnecting: true, StateFallback: true, StateError: true, StateStopping: true},
	StateFallback:     {StateConnecting: true, StateError: true, StateStopping: true},
	StateStopping:     {StateStopped: true, StateError: true},
	StateError:        {StateConnecting: true, StateStopped: true},
}

// ErrInvalidState is returned by Collector state transitions that are not
// in legalTransitions.
type ErrInvalidState struct {
	From, To State
}

func (e ErrInvalidState) Error() string {
	return fmt.Sprintf("collector: invalid transition %s -> %s", e.From, e.To)
}

func canTransition(from, to State) bool {
	if from == to {
		return false
	}
	if to == StateStopped && from != StateInitial {
		// STOPPED is reachable from any state on external stop, except the
		// table already routes INITIAL/STOPPING through their own rows.
		return true
	}
	row, ok := legalTransitions[from]
	if !ok {
		return false
	}
	return row[to]
}
