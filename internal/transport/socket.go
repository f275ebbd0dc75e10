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

// Package transport abstracts the physical network connection a Collector
// dials, so the Collector's state machine and adapters never import a
// websocket library directly. The physical transport is an external
// collaborator per spec §1 — Collector depends on the Socket interface
// only.
package transport

import (
	"context"
	"time"
)

// Socket is a single full-duplex connection to an exchange's streaming
// endpoint. Implementations must be safe for one reader goroutine and one
// writer goroutine to use concurrently; Socket itself is not required to
// support concurrent writers.
type Socket interface {
	// Send writes a single text frame.
	Send(ctx context.Context, payload []byte) error
	// Receive blocks until a frame arrives, ctx is done, or the socket
	// closes. A closed socket returns ErrClosed.
	Receive(ctx context.Context) ([]byte, error)
	// Ping writes a protocol-level ping control frame, where supported.
	Ping(ctx context.Context) error
	// Close tears down the connection. Idempotent.
	Close() error
}

// Dialer opens a Socket to url. Implementations apply their own handshake
// timeout; callers additionally bound the attempt via ctx.
type Dialer interface {
	Dial(ctx context.Context, url string) (Socket, error)
}

// Config bounds the read/write behavior of a dialed Socket.
type Config struct {
	HandshakeTimeout time.Duration
	ReadLimit        int64
	PongWait         time.Duration
	WriteWait        time.Duration
}

// DefaultConfig matches the values the reference adapters were grounded
// against (Binance's documented 60s pong window).
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 10 * time.Second,
		ReadLimit:        1 << 20,
		PongWait:         60 * time.Second,
		WriteWait:        10 * time.Second,
	}
}
