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
	"time"
)

// superviseLoop reacts to disconnect signals from the read/heartbeat
// loops by driving reconnect, and eventually REST fallback, until the
// Collector is stopped.
func (c *Collector) superviseLoop() {
	for {
		select {
		case <-c.stopCh:
			return
		case <-c.disconnect:
			if c.stopped.Load() {
				return
			}
			c.handleDisconnect()
		}
	}
}

// backoffDelay implements the spec's retry context: delay = min(base *
// 2^(attempt-1), cap), attempt is 1-indexed. cap <= 0 means no cap: growth
// is left unbounded rather than clamped to zero. Config-supplied caps
// default to 30s, so this only matters for a caller-constructed zero value.
func backoffDelay(base, cap time.Duration, attempt int) time.Duration {
	if attempt <= 1 {
		if base > cap && cap > 0 {
			return cap
		}
		return base
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if cap > 0 && d > cap {
			return cap
		}
	}
	return d
}

func (c *Collector) sleepOrStop(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-c.stopCh:
		return false
	}
}

// handleDisconnect drives the RECONNECTING state: close the dead socket,
// back off, and retry connect() until either success, the stop signal, or
// the reconnect budget is exhausted (at which point the Collector falls
// back to REST polling).
func (c *Collector) handleDisconnect() {
	c.socketMu.Lock()
	if c.socket != nil {
		_ = c.socket.Close()
		c.socket = nil
	}
	c.socketMu.Unlock()

	if err := c.transition(StateReconnecting, "connection lost"); err != nil {
		return
	}

	for {
		if c.stopped.Load() {
			return
		}
		c.reconnectAttempts++
		if c.reconnectAttempts > c.cfg.MaxReconnectAttempts {
			c.enterFallback()
			return
		}
		delay := backoffDelay(c.cfg.ReconnectInterval, c.cfg.MaxReconnectBackoff, c.reconnectAttempts)
		if !c.sleepOrStop(delay) {
			return
		}

		if err := c.transition(StateConnecting, "reconnect attempt"); err != nil {
			return
		}
		if err := c.attemptConnect(); err == nil {
			c.reconnectAttempts = 0
			return
		}
		if c.stopped.Load() {
			return
		}
		_ = c.transition(StateReconnecting, "reconnect attempt failed")
	}
}

// attemptConnect dials and re-subscribes the union of SUBSCRIBED and
// PENDING symbols, then relaunches the read loop. Callers must already be
// in CONNECTING.
func (c *Collector) attemptConnect() error {
	ctx, cancel := context.WithTimeout(context.Background(), c.adapter.ConnectionParams().HandshakeTimeout)
	defer cancel()

	c.subsMu.Lock()
	for _, s := range c.subs {
		if s.State == SubSubscribed {
			s.State = SubPending
		}
	}
	c.subsMu.Unlock()

	if err := c.connect(ctx); err != nil {
		return err
	}
	c.wg.Add(1)
	go func() { defer c.wg.Done(); c.readLoop() }()
	return nil
}

// enterFallback transitions to FALLBACK and starts REST polling. It
// returns once the fallback loop has been launched; the loop itself runs
// until it reconnects or the Collector stops.
func (c *Collector) enterFallback() {
	if err := c.transition(StateFallback, "reconnect budget exhausted"); err != nil {
		return
	}
	c.restAttempts = 0
	c.wg.Add(1)
	go func() { defer c.wg.Done(); c.fallbackLoop() }()
}

// fallbackLoop polls the REST endpoint on restInterval with its own
// exponential backoff on failure, hydrating the buffer identically to
// streamed frames. Each tick it also tries to re-establish the streaming
// connection; success exits fallback mode and stops REST polling within
// one restInterval, per spec §4.3.
func (c *Collector) fallbackLoop() {
	interval := c.cfg.RestInterval
	for {
		if !c.sleepOrStop(interval) {
			return
		}
		if c.stopped.Load() {
			return
		}

		c.subsMu.Lock()
		var symbols []string
		for _, s := range c.subs {
			if s.State == SubSubscribed || s.State == SubPending {
				symbols = append(symbols, s.Symbol)
			}
		}
		c.subsMu.Unlock()

		if c.poller != nil {
			records, err := c.poller.Poll(context.Background(), symbols)
			if err != nil {
				c.restAttempts++
				interval = backoffDelay(c.cfg.RestInterval, c.cfg.MaxRestBackoff, c.restAttempts)
			} else {
				c.restAttempts = 0
				interval = c.cfg.RestInterval
				for _, rec := range records {
					c.handleOrderbook(rec)
				}
			}
		}

		if err := c.transition(StateConnecting, "fallback reconnect attempt"); err == nil {
			if connErr := c.attemptConnect(); connErr == nil {
				return
			}
			_ = c.transition(StateFallback, "fallback reconnect attempt failed")
		}
	}
}
