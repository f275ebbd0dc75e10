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

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"marketfeed/internal/errors"
	"marketfeed/internal/eventbus"
	"marketfeed/internal/transport"
	"marketfeed/pkg/record"
	"marketfeed/pkg/ringbuffer"
)

// fakeAdapter is a minimal, deterministic Adapter for Collector tests.
type fakeAdapter struct {
	params      ConnectionParams
	streamLimit int
}

type fakeSubscribeFrame struct {
	Kind    string   `json:"kind"`
	Symbols []string `json:"symbols"`
	ReqID   string   `json:"reqId"`
}

func (a *fakeAdapter) NormalizeSymbol(raw string) (string, error) { return raw, nil }
func (a *fakeAdapter) Denormalize(canonical string) (string, error) { return canonical, nil }

func (a *fakeAdapter) BuildSubscribe(symbols []string, requestID string) ([]byte, error) {
	if a.streamLimit > 0 && len(symbols) > a.streamLimit {
		return nil, ErrTooManyStreams
	}
	return json.Marshal(fakeSubscribeFrame{Kind: "subscribe", Symbols: symbols, ReqID: requestID})
}
func (a *fakeAdapter) BuildUnsubscribe(symbols []string, requestID string) ([]byte, error) {
	return json.Marshal(fakeSubscribeFrame{Kind: "unsubscribe", Symbols: symbols, ReqID: requestID})
}
func (a *fakeAdapter) BuildList(requestID string) ([]byte, error) { return []byte("{}"), nil }

func (a *fakeAdapter) ParseFrame(frame []byte) ParsedFrame {
	var generic map[string]json.RawMessage
	if err := json.Unmarshal(frame, &generic); err != nil {
		return ParsedFrame{Kind: FrameError, Reason: "bad json"}
	}
	if _, ok := generic["ack"]; ok {
		var ack struct {
			Symbols []string `json:"ack"`
			OK      bool     `json:"ok"`
		}
		_ = json.Unmarshal(frame, &ack)
		return ParsedFrame{Kind: FrameSubscriptionAck, Symbols: ack.Symbols, OK: ack.OK}
	}
	if raw, ok := generic["orderbook"]; ok {
		var rec record.Book
		_ = json.Unmarshal(raw, &rec)
		return ParsedFrame{Kind: FrameOrderbook, Record: rec}
	}
	if _, ok := generic["pong"]; ok {
		return ParsedFrame{Kind: FramePong}
	}
	return ParsedFrame{Kind: FrameIgnored}
}

func (a *fakeAdapter) ConnectionParams() ConnectionParams { return a.params }

func ackFrame(symbols []string, ok bool) []byte {
	b, _ := json.Marshal(map[string]any{"ack": symbols, "ok": ok})
	return b
}

func orderbookFrame(rec record.Book) []byte {
	body, _ := json.Marshal(rec)
	b, _ := json.Marshal(map[string]json.RawMessage{"orderbook": body})
	return b
}

func newTestCollector(t *testing.T, symbols []string, sock *transport.FakeSocket) (*Collector, *eventbus.Bus) {
	t.Helper()
	dialer := transport.NewFakeDialer(sock)
	buf := ringbuffer.New[record.Book](ringbuffer.Config{MaxSize: 100, FlushThreshold: 100, FlushInterval: 0},
		func(ctx context.Context, items []record.Book) error { return nil }, nil)
	bus := eventbus.New(16)
	adapter := &fakeAdapter{params: ConnectionParams{
		URL: "fake://x", PingEvery: 0, PongWithin: 0, MaxStreamsPerConnection: 50,
		MaxReconnectAttempts: 2, HandshakeTimeout: time.Second,
	}}
	cfg := ReconnectConfig{MaxReconnectAttempts: 2, ReconnectInterval: 10 * time.Millisecond, MaxReconnectBackoff: 40 * time.Millisecond,
		RestInterval: 10 * time.Millisecond, MaxRestBackoff: 40 * time.Millisecond}
	reporter := errors.NewReporter(nil, nil, nil)
	c := New("c1", symbols, adapter, dialer, nil, buf, bus, nil, nil, reporter, cfg)
	return c, bus
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func TestCollectorReachesRunningOnAck(t *testing.T) {
	sock := transport.NewFakeSocket(4)
	c, _ := newTestCollector(t, []string{"A", "B"}, sock)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()

	sock.Feed(ackFrame([]string{"A", "B"}, true))
	waitFor(t, time.Second, func() bool { return c.State() == StateRunning })
}

func TestCollectorEnqueuesSubscribedOrderbook(t *testing.T) {
	sock := transport.NewFakeSocket(4)
	c, _ := newTestCollector(t, []string{"A"}, sock)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()

	sock.Feed(ackFrame([]string{"A"}, true))
	waitFor(t, time.Second, func() bool { return c.State() == StateRunning })

	rec := record.Book{ExchangeID: "x", Symbol: "A", MarketType: record.MarketSpot, EventTimeMs: time.Now().UnixMilli(),
		Bids: []record.Level{{}}}
	sock.Feed(orderbookFrame(rec))
	waitFor(t, time.Second, func() bool { return c.GetMetrics().Messages == 1 })
}

func TestCollectorDropsUnknownSymbol(t *testing.T) {
	sock := transport.NewFakeSocket(4)
	c, _ := newTestCollector(t, []string{"A"}, sock)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()

	sock.Feed(ackFrame([]string{"A"}, true))
	waitFor(t, time.Second, func() bool { return c.State() == StateRunning })

	rec := record.Book{ExchangeID: "x", Symbol: "UNKNOWN", EventTimeMs: time.Now().UnixMilli(), Bids: []record.Level{{}}}
	sock.Feed(orderbookFrame(rec))
	waitFor(t, time.Second, func() bool { return c.GetMetrics().DroppedUnexpected == 1 })
}

func TestCollectorDedupDropsSecondIdenticalRecord(t *testing.T) {
	sock := transport.NewFakeSocket(8)
	c, _ := newTestCollector(t, []string{"A"}, sock)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()

	sock.Feed(ackFrame([]string{"A"}, true))
	waitFor(t, time.Second, func() bool { return c.State() == StateRunning })

	rec := record.Book{ExchangeID: "x", Symbol: "A", EventTimeMs: 1700000000000, Bids: []record.Level{{}}}
	sock.Feed(orderbookFrame(rec))
	sock.Feed(orderbookFrame(rec))
	waitFor(t, time.Second, func() bool { return c.GetMetrics().DroppedDuplicate == 1 })
	if got := c.GetMetrics().Messages; got != 1 {
		t.Fatalf("expected exactly 1 delivered message, got %d", got)
	}
}

func TestStopIsIdempotentAndReachesStopped(t *testing.T) {
	sock := transport.NewFakeSocket(4)
	c, _ := newTestCollector(t, []string{"A"}, sock)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	c.Stop()
	c.Stop()
	c.Stop()
	if c.State() != StateStopped {
		t.Fatalf("expected STOPPED, got %v", c.State())
	}
}

func TestBackoffDelayMonotonicityMatchesSpec(t *testing.T) {
	base := 1 * time.Second
	cap := 10 * time.Second
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second}, // saturates at cap
	}
	for _, tc := range cases {
		if got := backoffDelay(base, cap, tc.attempt); got != tc.want {
			t.Fatalf("backoffDelay(attempt=%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestStateMachineRejectsIllegalTransition(t *testing.T) {
	sock := transport.NewFakeSocket(4)
	c, _ := newTestCollector(t, []string{"A"}, sock)
	if err := c.transition(StateRunning, "bad"); err == nil {
		t.Fatalf("expected INITIAL -> RUNNING to be rejected")
	}
}
