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
	"errors"
	"time"

	collerr "marketfeed/internal/errors"
	"marketfeed/internal/transport"
)

// readLoop drains the socket until it closes or the Collector is
// stopping, handing every frame to onFrame. On an unexpected close it
// signals the supervise loop to begin reconnecting.
func (c *Collector) readLoop() {
	for {
		c.socketMu.Lock()
		sock := c.socket
		c.socketMu.Unlock()
		if sock == nil {
			return
		}

		raw, err := sock.Receive(context.Background())
		if err != nil {
			if c.stopped.Load() {
				return
			}
			if errors.Is(err, transport.ErrClosed) || errors.Is(err, context.Canceled) {
				c.signalDisconnect()
				return
			}
			c.signalDisconnect()
			return
		}
		c.onFrame(raw)
	}
}

// heartbeatLoop pings on the adapter's cadence and watches for a missed
// pong, treating a miss as a RECOVERABLE error that triggers reconnect.
// While the Collector is RUNNING it also resends any PENDING or FAILED
// subscriptions once per tick, per the partial-ACK retry supplement.
func (c *Collector) heartbeatLoop() {
	params := c.adapter.ConnectionParams()
	if params.PingEvery <= 0 {
		return
	}
	ticker := time.NewTicker(params.PingEvery)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.socketMu.Lock()
			sock := c.socket
			c.socketMu.Unlock()
			if sock == nil {
				continue
			}
			last := time.Unix(0, c.lastPong.Load())
			if params.PongWithin > 0 && time.Since(last) > params.PongWithin+params.PingEvery {
				c.report.Report(c.id, collerr.Err{Code: collerr.CodeNetwork, Severity: collerr.SeverityRecoverable,
					Module: "collector", Message: "pong timeout"})
				c.signalDisconnect()
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), params.HandshakeTimeout)
			_ = sock.Ping(ctx)
			cancel()

			if c.State() == StateRunning {
				c.retrySubscribe(context.Background())
			}
		}
	}
}

// signalDisconnect wakes the supervise loop at most once per disconnect;
// additional signals while one is already pending are dropped.
func (c *Collector) signalDisconnect() {
	select {
	case c.disconnect <- struct{}{}:
	default:
	}
}

// Subscribe registers symbols as PENDING and, if RUNNING, sends the
// subscribe frame immediately. Allowed only in RUNNING per spec §4.3.
func (c *Collector) Subscribe(ctx context.Context, symbols []string) error {
	if c.State() != StateRunning {
		return ErrInvalidState{From: c.State(), To: StateSubscribing}
	}
	c.subsMu.Lock()
	for _, s := range symbols {
		c.subs[s] = &Subscription{Symbol: s, State: SubPending, LastUpdated: time.Now()}
	}
	c.subsMu.Unlock()
	frame, err := c.adapter.BuildSubscribe(symbols, newRequestID())
	if err != nil {
		return err
	}
	return c.send(ctx, frame)
}

// Unsubscribe marks symbols UNSUBSCRIBED and sends the unsubscribe frame.
// Allowed only in RUNNING per spec §4.3.
func (c *Collector) Unsubscribe(ctx context.Context, symbols []string) error {
	if c.State() != StateRunning {
		return ErrInvalidState{From: c.State(), To: StateRunning}
	}
	c.subsMu.Lock()
	for _, sym := range symbols {
		if s, ok := c.subs[sym]; ok {
			s.State = SubUnsubscribed
			s.LastUpdated = time.Now()
		}
	}
	c.subsMu.Unlock()
	frame, err := c.adapter.BuildUnsubscribe(symbols, newRequestID())
	if err != nil {
		return err
	}
	return c.send(ctx, frame)
}
