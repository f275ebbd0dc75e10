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

package coordinator

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"marketfeed/internal/collector"
	"marketfeed/internal/errors"
	"marketfeed/internal/eventbus"
	"marketfeed/internal/transport"
	"marketfeed/pkg/record"
	"marketfeed/pkg/ringbuffer"
)

type stubAdapter struct{ dialErr bool }

func (a *stubAdapter) NormalizeSymbol(raw string) (string, error)   { return raw, nil }
func (a *stubAdapter) Denormalize(canonical string) (string, error) { return canonical, nil }
func (a *stubAdapter) BuildSubscribe(symbols []string, requestID string) ([]byte, error) {
	return json.Marshal(symbols)
}
func (a *stubAdapter) BuildUnsubscribe(symbols []string, requestID string) ([]byte, error) {
	return json.Marshal(symbols)
}
func (a *stubAdapter) BuildList(requestID string) ([]byte, error) { return []byte("{}"), nil }
func (a *stubAdapter) ParseFrame(frame []byte) collector.ParsedFrame {
	return collector.ParsedFrame{Kind: collector.FrameIgnored}
}
func (a *stubAdapter) ConnectionParams() collector.ConnectionParams {
	return collector.ConnectionParams{URL: "fake://x", MaxStreamsPerConnection: 2, HandshakeTimeout: time.Second}
}

func newStubFactory(t *testing.T, dialErrFor map[string]bool) Factory {
	return func(id string, symbols []string) *collector.Collector {
		dialer := transport.NewFakeDialer(transport.NewFakeSocket(4))
		if dialErrFor[id] {
			dialer.DialErr = transport.ErrClosed
		}
		buf := ringbuffer.New[record.Book](ringbuffer.Config{MaxSize: 10, FlushThreshold: 100}, func(ctx context.Context, items []record.Book) error { return nil }, nil)
		bus := eventbus.New(8)
		reporter := errors.NewReporter(nil, nil, nil)
		cfg := collector.ReconnectConfig{MaxReconnectAttempts: 1, ReconnectInterval: 10 * time.Millisecond, MaxReconnectBackoff: 10 * time.Millisecond, RestInterval: 10 * time.Millisecond, MaxRestBackoff: 10 * time.Millisecond}
		return collector.New(id, symbols, &stubAdapter{}, dialer, nil, buf, bus, nil, nil, reporter, cfg)
	}
}

func TestChunkSplitsInDeclarationOrder(t *testing.T) {
	symbols := []string{"A", "B", "C", "D", "E"}
	groups := Chunk(symbols, 2)
	want := [][]string{{"A", "B"}, {"C", "D"}, {"E"}}
	if len(groups) != len(want) {
		t.Fatalf("got %d groups, want %d", len(groups), len(want))
	}
	for i := range want {
		if len(groups[i]) != len(want[i]) {
			t.Fatalf("group %d: got %v, want %v", i, groups[i], want[i])
		}
		for j := range want[i] {
			if groups[i][j] != want[i][j] {
				t.Fatalf("group %d: got %v, want %v", i, groups[i], want[i])
			}
		}
	}
}

func TestStartSucceedsAndAggregatesMetrics(t *testing.T) {
	symbols := []string{"A", "B", "C"}
	factory := newStubFactory(t, nil)
	co := New("ex", symbols, 2, factory, nil, errors.NewReporter(nil, nil, nil))
	if err := co.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer co.Stop()

	m := co.GetMetrics()
	if len(m.Collectors) != 2 {
		t.Fatalf("expected 2 collectors (chunks of 2 over 3 symbols), got %d", len(m.Collectors))
	}
}

func TestStartAbortsAllOnAnyFailure(t *testing.T) {
	symbols := []string{"A", "B", "C", "D"}
	factory := newStubFactory(t, map[string]bool{"ex-1": true})
	co := New("ex", symbols, 2, factory, nil, errors.NewReporter(nil, nil, nil))
	err := co.Start(context.Background())
	if err == nil {
		t.Fatalf("expected Start to fail when one collector cannot dial")
	}

	co.mu.Lock()
	running := co.running
	n := len(co.collectors)
	co.mu.Unlock()
	if running || n != 0 {
		t.Fatalf("expected no collectors registered after aborted start, got running=%v n=%d", running, n)
	}
}

func TestEscalateRestartsOnlyFailingCollectorWithPacing(t *testing.T) {
	symbols := []string{"A", "B"}
	factory := newStubFactory(t, nil)
	co := New("ex", symbols, 2, factory, nil, errors.NewReporter(nil, nil, nil))
	if err := co.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer co.Stop()

	co.Escalate("ex-0", errors.Err{Code: errors.CodeNetwork, Severity: errors.SeverityFatal, Module: "collector", Message: "boom"})
	// A second escalation for the same collector immediately after should
	// be suppressed by the pacing window.
	co.mu.Lock()
	first := co.lastRestart["ex-0"]
	co.mu.Unlock()
	co.Escalate("ex-0", errors.Err{Code: errors.CodeNetwork, Severity: errors.SeverityFatal, Module: "collector", Message: "boom again"})
	co.mu.Lock()
	second := co.lastRestart["ex-0"]
	co.mu.Unlock()
	if !first.Equal(second) {
		t.Fatalf("expected second escalation within the pacing window to be suppressed")
	}
}
