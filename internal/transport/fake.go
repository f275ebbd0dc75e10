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
	"sync"
)

// FakeSocket is an in-memory Socket for unit tests. Inbound frames are fed
// via Feed; sent frames land in Sent; Close closes the inbound channel and
// causes pending/future Receive calls to return ErrClosed.
type FakeSocket struct {
	mu      sync.Mutex
	inbound chan []byte
	closed  bool
	Sent    [][]byte
	Pings   int
	DialErr error
}

// NewFakeSocket returns a ready-to-use FakeSocket with an inbound buffer
// of size buf.
func NewFakeSocket(buf int) *FakeSocket {
	return &FakeSocket{inbound: make(chan []byte, buf)}
}

// Feed enqueues a frame for a subsequent Receive. It is a no-op once the
// socket is closed.
func (f *FakeSocket) Feed(payload []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.inbound <- payload
}

func (f *FakeSocket) Send(ctx context.Context, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	f.Sent = append(f.Sent, payload)
	return nil
}

func (f *FakeSocket) Receive(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case b, ok := <-f.inbound:
		if !ok {
			return nil, ErrClosed
		}
		return b, nil
	}
}

func (f *FakeSocket) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	f.Pings++
	return nil
}

func (f *FakeSocket) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	close(f.inbound)
	return nil
}

// FakeDialer hands out pre-built FakeSockets, recording every dialed URL.
type FakeDialer struct {
	mu      sync.Mutex
	sockets []*FakeSocket
	next    int
	DialErr error
	URLs    []string
}

// NewFakeDialer returns a FakeDialer that will hand out sockets in order.
func NewFakeDialer(sockets ...*FakeSocket) *FakeDialer {
	return &FakeDialer{sockets: sockets}
}

func (d *FakeDialer) Dial(ctx context.Context, url string) (Socket, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.URLs = append(d.URLs, url)
	if d.DialErr != nil {
		return nil, d.DialErr
	}
	if d.next >= len(d.sockets) {
		return nil, ErrClosed
	}
	s := d.sockets[d.next]
	d.next++
	return s, nil
}
