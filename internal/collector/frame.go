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

	"marketfeed/internal/errors"
	"marketfeed/internal/eventbus"
	"marketfeed/pkg/record"
	"marketfeed/pkg/ringbuffer"
)

const futureSkew = 5 * time.Second

// onFrame parses raw and dispatches on its kind. It never blocks on I/O
// beyond the buffer push, which itself only blocks for a synchronous
// flush of a full buffer.
func (c *Collector) onFrame(raw []byte) {
	parsed := c.adapter.ParseFrame(raw)
	switch parsed.Kind {
	case FrameSubscriptionAck:
		c.handleAck(parsed)
	case FrameSubscriptionList:
		// informational; nothing to reconcile against today.
	case FrameOrderbook:
		c.handleOrderbook(parsed.Record)
	case FramePong:
		c.lastPong.Store(time.Now().UnixNano())
	case FrameIgnored:
		// no-op by contract
	case FrameError:
		c.report.Report(c.id, errors.Err{Code: errors.CodeValidation, Severity: errors.SeverityRecoverable,
			Module: "collector", Message: "malformed frame: " + parsed.Reason})
	}
}

func (c *Collector) handleAck(parsed ParsedFrame) {
	c.subsMu.Lock()
	allSettled := true
	for _, symbol := range parsed.Symbols {
		if s, ok := c.subs[symbol]; ok {
			if parsed.OK {
				s.State = SubSubscribed
			} else {
				s.State = SubFailed
			}
			s.LastUpdated = time.Now()
		}
	}
	for _, s := range c.subs {
		if s.State == SubPending {
			allSettled = false
		}
	}
	c.subsMu.Unlock()

	if allSettled && c.State() == StateSubscribing {
		_ = c.transition(StateRunning, "subscriptions settled")
	}
}

// handleOrderbook validates the record's symbol is subscribed, applies
// dedup, and enqueues it on the Ring Buffer. Unknown symbols and
// duplicates are dropped silently (counted, never propagated as errors).
func (c *Collector) handleOrderbook(rec record.Book) {
	c.subsMu.Lock()
	sub, known := c.subs[rec.Symbol]
	subscribed := known && sub.State == SubSubscribed
	c.subsMu.Unlock()

	if !subscribed {
		c.droppedUnexp.Add(1)
		return
	}
	if err := rec.Validate(time.Now(), futureSkew); err != nil {
		c.report.Report(c.id, errors.Err{Code: errors.CodeValidation, Severity: errors.SeverityRecoverable,
			Module: "collector", Message: "invalid record: " + err.Error()})
		return
	}
	if c.dedup.seenBefore(rec.Fingerprint()) {
		c.droppedDup.Add(1)
		return
	}

	c.messages.Add(1)
	result, err := c.buffer.Push(context.Background(), rec)
	if err != nil {
		return
	}
	if result == ringbuffer.DroppedFull {
		c.bus.Publish(eventbus.TopicBufferFull, rec.Symbol)
		return
	}
	c.bus.Publish(eventbus.TopicMarketData, rec)
}
