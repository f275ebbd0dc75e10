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

package transport

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketDialer dials exchange endpoints using github.com/gorilla/websocket.
type WebSocketDialer struct {
	cfg Config
}

// NewWebSocketDialer returns a Dialer configured with cfg.
func NewWebSocketDialer(cfg Config) *WebSocketDialer {
	return &WebSocketDialer{cfg: cfg}
}

func (d *WebSocketDialer) Dial(ctx context.Context, url string) (Socket, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: d.cfg.HandshakeTimeout,
		Proxy:            http.ProxyFromEnvironment,
	}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(d.cfg.ReadLimit)
	conn.SetReadDeadline(time.Now().Add(d.cfg.PongWait))
	sock := &wsSocket{conn: conn, cfg: d.cfg}
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(d.cfg.PongWait))
		return nil
	})
	return sock, nil
}

// wsSocket adapts *websocket.Conn to Socket. gorilla/websocket requires a
// single writer at a time, so writeMu serializes Send and Ping.
type wsSocket struct {
	conn    *websocket.Conn
	cfg     Config
	writeMu sync.Mutex
	closed  atomic.Bool
}

func (s *wsSocket) Send(ctx context.Context, payload []byte) error {
	if s.closed.Load() {
		return ErrClosed
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	deadline := time.Now().Add(s.cfg.WriteWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	s.conn.SetWriteDeadline(deadline)
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

func (s *wsSocket) Receive(ctx context.Context) ([]byte, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	type result struct {
		data []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		_, data, err := s.conn.ReadMessage()
		done <- result{data, err}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		if r.err != nil {
			if s.closed.Load() {
				return nil, ErrClosed
			}
			return nil, r.err
		}
		return r.data, nil
	}
}

func (s *wsSocket) Ping(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	deadline := time.Now().Add(s.cfg.WriteWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	return s.conn.WriteControl(websocket.PingMessage, nil, deadline)
}

func (s *wsSocket) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.conn.Close()
}
