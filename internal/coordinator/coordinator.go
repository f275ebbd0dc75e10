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

// Package coordinator shards one exchange's symbol list across Collectors
// and supervises their lifecycle: parallel start with all-or-nothing
// abort, fire-and-forget stop, metrics aggregation, and paced restart of
// any Collector that escalates a FATAL error.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"marketfeed/internal/collector"
	"marketfeed/internal/errors"
	"marketfeed/internal/logging"
)

// minRestartInterval bounds how often a single Collector may be restarted,
// per spec §4.4, so a wedged adapter cannot hot-loop restarts.
const minRestartInterval = 1 * time.Second

// Factory builds one Collector for id, responsible for symbols. The
// Coordinator never constructs Collectors itself — adapter, dialer, and
// buffer wiring are exchange-specific and belong to the caller.
type Factory func(id string, symbols []string) *collector.Collector

// Chunk partitions symbols into ordered groups of at most streamLimit
// each, per spec §4.4: ceil(|S|/K) groups, declaration order preserved,
// the last group possibly smaller.
func Chunk(symbols []string, streamLimit int) [][]string {
	if streamLimit <= 0 {
		streamLimit = len(symbols)
	}
	if len(symbols) == 0 {
		return nil
	}
	var groups [][]string
	for i := 0; i < len(symbols); i += streamLimit {
		end := i + streamLimit
		if end > len(symbols) {
			end = len(symbols)
		}
		groups = append(groups, symbols[i:end])
	}
	return groups
}

// Coordinator owns every Collector for one exchange.
type Coordinator struct {
	exchangeID  string
	symbols     []string
	streamLimit int
	factory     Factory
	logger      logging.Logger
	report      *errors.Reporter

	mu         sync.Mutex
	collectors map[string]*collector.Collector
	chunks     map[string][]string
	lastRestart map[string]time.Time
	running    bool
}

// New constructs a Coordinator for exchangeID. factory is invoked once per
// symbol chunk, both at initial Start and on every restart.
func New(exchangeID string, symbols []string, streamLimit int, factory Factory,
	logger logging.Logger, report *errors.Reporter) *Coordinator {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &Coordinator{
		exchangeID:  exchangeID,
		symbols:     symbols,
		streamLimit: streamLimit,
		factory:     factory,
		logger:      logger,
		report:      report,
		collectors:  make(map[string]*collector.Collector),
		chunks:      make(map[string][]string),
		lastRestart: make(map[string]time.Time),
	}
}

func collectorID(exchangeID string, chunkIndex int) string {
	return fmt.Sprintf("%s-%d", exchangeID, chunkIndex)
}

// Start creates one Collector per symbol chunk and starts them all in
// parallel. If any Collector fails to start, every Collector created in
// this call — including ones that started successfully — is stopped and
// the first error is returned. Start is not safe to call concurrently
// with itself or with Stop.
func (co *Coordinator) Start(ctx context.Context) error {
	groups := Chunk(co.symbols, co.streamLimit)

	co.mu.Lock()
	created := make(map[string]*collector.Collector, len(groups))
	for i, group := range groups {
		id := collectorID(co.exchangeID, i)
		c := co.factory(id, group)
		created[id] = c
		co.chunks[id] = group
	}
	co.mu.Unlock()

	var wg sync.WaitGroup
	errCh := make(chan error, len(created))
	for id, c := range created {
		wg.Add(1)
		go func(id string, c *collector.Collector) {
			defer wg.Done()
			if err := c.Start(ctx); err != nil {
				errCh <- fmt.Errorf("collector %s: %w", id, err)
			}
		}(id, c)
	}
	wg.Wait()
	close(errCh)

	var firstErr error
	for err := range errCh {
		if firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		co.logger.Error("coordinator start aborted", logging.F("exchange", co.exchangeID), logging.F("error", firstErr.Error()))
		for _, c := range created {
			c.Stop()
		}
		return firstErr
	}

	co.mu.Lock()
	for id, c := range created {
		co.collectors[id] = c
	}
	co.running = true
	co.mu.Unlock()

	co.logger.Info("coordinator started", logging.F("exchange", co.exchangeID), logging.F("collectors", len(created)))
	return nil
}

// Stop is fire-and-forget best effort: every Collector is stopped
// concurrently; a Collector that is already stopped is a no-op. Errors are
// not possible from Collector.Stop, so nothing is propagated — matching
// spec §4.4's "errors are logged, not propagated".
func (co *Coordinator) Stop() {
	co.mu.Lock()
	collectors := make([]*collector.Collector, 0, len(co.collectors))
	for _, c := range co.collectors {
		collectors = append(collectors, c)
	}
	co.running = false
	co.mu.Unlock()

	var wg sync.WaitGroup
	for _, c := range collectors {
		wg.Add(1)
		go func(c *collector.Collector) {
			defer wg.Done()
			c.Stop()
		}(c)
	}
	wg.Wait()
	co.logger.Info("coordinator stopped", logging.F("exchange", co.exchangeID))
}

// CollectorMetrics is a type alias of collector.CollectorMetrics: the
// aggregate snapshot carries each Collector's metrics with the same fields.
type CollectorMetrics = collector.CollectorMetrics

// Metrics is the aggregate snapshot GetMetrics returns.
type Metrics struct {
	ExchangeID        string
	TotalMessages     int64
	ActiveConnectors  int
	Collectors        []CollectorMetrics
}

// GetMetrics aggregates every live Collector's metrics.
func (co *Coordinator) GetMetrics() Metrics {
	co.mu.Lock()
	collectors := make([]*collector.Collector, 0, len(co.collectors))
	for _, c := range co.collectors {
		collectors = append(collectors, c)
	}
	co.mu.Unlock()

	out := Metrics{ExchangeID: co.exchangeID, Collectors: make([]CollectorMetrics, 0, len(collectors))}
	for _, c := range collectors {
		m := c.GetMetrics()
		out.TotalMessages += m.Messages
		if m.State == collector.StateRunning {
			out.ActiveConnectors++
		}
		out.Collectors = append(out.Collectors, m)
	}
	return out
}

// Escalate implements errors.Escalator. It is invoked by a Collector's
// Reporter when that Collector reports a FATAL error. Per spec §4.4: if
// the Coordinator is running, restart only the failing Collector (stop
// then start), paced at least minRestartInterval apart per Collector so a
// wedged adapter cannot hot-loop restarts.
func (co *Coordinator) Escalate(componentID string, err errors.Err) {
	co.mu.Lock()
	if !co.running {
		co.mu.Unlock()
		return
	}
	last, seenBefore := co.lastRestart[componentID]
	if seenBefore && time.Since(last) < minRestartInterval {
		co.mu.Unlock()
		co.logger.Warn("restart suppressed: too soon since last attempt",
			logging.F("collector", componentID), logging.F("exchange", co.exchangeID))
		return
	}
	co.lastRestart[componentID] = time.Now()
	symbols := co.chunks[componentID]
	co.mu.Unlock()

	co.logger.Warn("restarting collector after fatal error",
		logging.F("collector", componentID), logging.F("exchange", co.exchangeID), logging.F("message", err.Message))

	go co.restart(componentID, symbols)
}

func (co *Coordinator) restart(id string, symbols []string) {
	co.mu.Lock()
	old := co.collectors[id]
	co.mu.Unlock()
	if old != nil {
		old.Stop()
	}

	next := co.factory(id, symbols)
	if err := next.Start(context.Background()); err != nil {
		co.logger.Error("collector restart failed", logging.F("collector", id), logging.F("error", err.Error()))
		return
	}

	co.mu.Lock()
	if co.running {
		co.collectors[id] = next
	} else {
		co.mu.Unlock()
		next.Stop()
		return
	}
	co.mu.Unlock()
}
