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

// Package collector implements the per-exchange-connection-group state
// machine: connection lifecycle, subscription bookkeeping, reconnect and
// REST fallback, deduplication, and the heartbeat. Everything exchange-
// specific is isolated behind the Adapter interface.
package collector

import (
	"errors"
	"time"

	"marketfeed/pkg/record"
)

// ErrTooManyStreams is returned by BuildSubscribe when the caller asks for
// more streams than the adapter's connection limit permits.
var ErrTooManyStreams = errors.New("collector: too many streams for one connection")

// ErrNoSocket is returned by send helpers when called before a socket is
// established or after it has been torn down.
var ErrNoSocket = errors.New("collector: no active socket")

// FrameKind tags the variant carried by a ParsedFrame.
type FrameKind int

const (
	FrameSubscriptionAck FrameKind = iota
	FrameSubscriptionList
	FrameOrderbook
	FramePong
	FrameIgnored
	FrameError
)

// ParsedFrame is the tagged result of Adapter.ParseFrame. Only the fields
// relevant to Kind are populated.
type ParsedFrame struct {
	Kind      FrameKind
	RequestID string
	Symbols   []string
	OK        bool
	Record    record.Book
	Reason    string
}

// ConnectionParams bundles the per-exchange connection tunables an adapter
// is authoritative over.
type ConnectionParams struct {
	URL                     string
	PingEvery               time.Duration
	PongWithin              time.Duration
	MaxStreamsPerConnection int
	MaxReconnectAttempts    int
	HandshakeTimeout        time.Duration
}

// Adapter isolates all exchange-specific knowledge. Implementations are
// pure functions over their configuration constants — no I/O, no mutable
// state — so the Collector's state machine stays exchange-agnostic and
// unit-testable with a fake Adapter.
type Adapter interface {
	// NormalizeSymbol maps an exchange-native ticker to the canonical
	// BASE-QUOTE form.
	NormalizeSymbol(raw string) (string, error)
	// Denormalize is NormalizeSymbol's inverse: Denormalize(NormalizeSymbol(x)) == x
	// for every symbol the adapter claims to support.
	Denormalize(canonical string) (string, error)
	BuildSubscribe(symbols []string, requestID string) ([]byte, error)
	BuildUnsubscribe(symbols []string, requestID string) ([]byte, error)
	BuildList(requestID string) ([]byte, error)
	ParseFrame(frame []byte) ParsedFrame
	ConnectionParams() ConnectionParams
}
