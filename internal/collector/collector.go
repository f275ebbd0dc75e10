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
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"marketfeed/internal/errors"
	"marketfeed/internal/eventbus"
	"marketfeed/internal/logging"
	"marketfeed/internal/metrics"
	"marketfeed/internal/transport"
	"marketfeed/pkg/ringbuffer"
	"marketfeed/pkg/record"
)

// ReconnectConfig bundles the backoff knobs for reconnect and REST
// fallback, taken from config.CollectorConfig.
type ReconnectConfig struct {
	MaxReconnectAttempts int
	ReconnectInterval    time.Duration
	MaxReconnectBackoff  time.Duration
	RestInterval         time.Duration
	MaxRestBackoff       time.Duration
}

// Collector owns one streaming connection and the subscription set for one
// group of symbols, per spec §4.3. It is never shared between exchanges —
// the Coordinator owns one Collector per symbol chunk.
type Collector struct {
	id      string
	adapter Adapter
	dialer  transport.Dialer
	poller  RestPoller

	buffer *ringbuffer.Buffer[record.Book]
	bus    *eventbus.Bus
	logger logging.Logger
	sink   metrics.Sink
	report *errors.Reporter
	cfg    ReconnectConfig

	stateMu sync.Mutex
	state   State
	since   time.Time

	subsMu sync.Mutex
	subs   map[string]*Subscription

	dedup *dedupSet

	socketMu sync.Mutex
	socket   transport.Socket

	lastPong atomic.Int64 // unix nanos

	reconnectAttempts int
	restAttempts      int

	messages      atomic.Int64
	droppedUnexp  atomic.Int64
	droppedDup    atomic.Int64

	stopCh    chan struct{}
	stopped   atomic.Bool
	wg        sync.WaitGroup
	disconnect chan struct{}
}

// New constructs a Collector for id, responsible for symbols. buffer is
// owned exclusively by this Collector once passed in; bus is the shared
// event bus and may be handed to other components too.
func New(id string, symbols []string, adapter Adapter, dialer transport.Dialer, poller RestPoller,
	buffer *ringbuffer.Buffer[record.Book], bus *eventbus.Bus, logger logging.Logger, sink metrics.Sink,
	report *errors.Reporter, cfg ReconnectConfig) *Collector {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	if sink == nil {
		sink = metrics.Noop{}
	}
	subs := make(map[string]*Subscription, len(symbols))
	for _, s := range symbols {
		subs[s] = &Subscription{Symbol: s, State: SubPending, LastUpdated: time.Now()}
	}
	return &Collector{
		id:         id,
		adapter:    adapter,
		dialer:     dialer,
		poller:     poller,
		buffer:     buffer,
		bus:        bus,
		logger:     logger,
		sink:       sink,
		report:     report,
		cfg:        cfg,
		state:      StateInitial,
		since:      time.Now(),
		subs:       subs,
		dedup:      newDedupSet(),
		stopCh:     make(chan struct{}),
		disconnect: make(chan struct{}, 1),
	}
}

// ID returns the Collector's identifier, unique within its Coordinator.
func (c *Collector) ID() string { return c.id }

// State returns the Collector's current lifecycle state.
func (c *Collector) State() State {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

// transition moves the Collector to next, publishing SYSTEM.STATE_CHANGE.
// An illegal transition is a programmer error surfaced as ErrInvalidState;
// it does not move the state.
func (c *Collector) transition(next State, reason string) error {
	c.stateMu.Lock()
	prev := c.state
	if !canTransition(prev, next) {
		c.stateMu.Unlock()
		return ErrInvalidState{From: prev, To: next}
	}
	c.state = next
	c.since = time.Now()
	c.stateMu.Unlock()

	c.logger.Info("collector state change",
		logging.F("collector", c.id), logging.F("from", prev.String()), logging.F("to", next.String()))
	c.sink.SetGauge("collector_state", map[string]string{"collector": c.id}, float64(next))
	c.bus.Publish(eventbus.TopicStateChange, StateChangeEvent{
		CollectorID: c.id, Prev: prev, Next: next, Timestamp: time.Now(), Reason: reason,
	})
	return nil
}

// StateChangeEvent is the payload published on eventbus.TopicStateChange.
type StateChangeEvent struct {
	CollectorID string
	Prev        State
	Next        State
	Timestamp   time.Time
	Reason      string
}

// Start opens the connection, issues the initial subscribe, and launches
// the Collector's background tasks (read loop, heartbeat, reconnect
// supervisor). It returns once the socket is open and the initial
// subscribe frame is sent — reaching RUNNING happens asynchronously as
// ACKs arrive.
func (c *Collector) Start(ctx context.Context) error {
	if err := c.transition(StateConnecting, "start"); err != nil {
		return err
	}
	if err := c.connect(ctx); err != nil {
		c.report.Report(c.id, errors.Err{Code: errors.CodeNetwork, Severity: errors.SeverityFatal,
			Module: "collector", Message: fmt.Sprintf("initial connect failed: %v", err)})
		_ = c.transition(StateError, err.Error())
		return err
	}

	c.wg.Add(2)
	go func() { defer c.wg.Done(); c.readLoop() }()
	go func() { defer c.wg.Done(); c.heartbeatLoop() }()
	c.wg.Add(1)
	go func() { defer c.wg.Done(); c.superviseLoop() }()

	return nil
}

// Stop cancels every subordinate task, closes the socket, flushes and
// disposes the buffer, and emits STOPPED. Idempotent.
func (c *Collector) Stop() {
	if !c.stopped.CompareAndSwap(false, true) {
		return
	}
	_ = c.transition(StateStopping, "stop requested")
	close(c.stopCh)

	c.socketMu.Lock()
	sock := c.socket
	c.socketMu.Unlock()
	if sock != nil {
		_ = sock.Close()
	}

	c.wg.Wait()

	_ = c.buffer.Flush(context.Background())
	c.buffer.Dispose()

	c.stateMu.Lock()
	c.state = StateStopped
	c.since = time.Now()
	c.stateMu.Unlock()
	c.bus.Publish(eventbus.TopicStateChange, StateChangeEvent{
		CollectorID: c.id, Prev: StateStopping, Next: StateStopped, Timestamp: time.Now(), Reason: "stopped",
	})
}

// newRequestID generates a correlation id for subscribe/unsubscribe frames.
func newRequestID() string { return uuid.NewString() }

// CollectorMetrics is the point-in-time snapshot GetMetrics returns.
type CollectorMetrics struct {
	ID                  string
	State               State
	Messages            int64
	DroppedUnexpected   int64
	DroppedDuplicate    int64
	Subscriptions       int
	Buffer              ringbuffer.Metrics
}

// GetMetrics returns a snapshot of this Collector's counters.
func (c *Collector) GetMetrics() CollectorMetrics {
	c.subsMu.Lock()
	n := len(c.subs)
	c.subsMu.Unlock()
	return CollectorMetrics{
		ID:                c.id,
		State:             c.State(),
		Messages:          c.messages.Load(),
		DroppedUnexpected: c.droppedUnexp.Load(),
		DroppedDuplicate:  c.droppedDup.Load(),
		Subscriptions:     n,
		Buffer:            c.buffer.Metrics(),
	}
}
