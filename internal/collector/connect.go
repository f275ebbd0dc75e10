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

// connect dials the socket, sends the initial subscribe frame for every
// known symbol, and advances the state through CONNECTED to SUBSCRIBING.
// The caller is responsible for having already transitioned to CONNECTING.
func (c *Collector) connect(ctx context.Context) error {
	params := c.adapter.ConnectionParams()
	dialCtx, cancel := context.WithTimeout(ctx, params.HandshakeTimeout)
	defer cancel()

	sock, err := c.dialer.Dial(dialCtx, params.URL)
	if err != nil {
		return err
	}
	c.socketMu.Lock()
	c.socket = sock
	c.socketMu.Unlock()
	c.lastPong.Store(time.Now().UnixNano())

	if err := c.transition(StateConnected, "socket open"); err != nil {
		return err
	}

	if err := c.sendSubscribeForPending(ctx); err != nil {
		return err
	}
	return c.transition(StateSubscribing, "subscribe sent")
}

// sendSubscribeForPending sends one subscribe frame covering every
// PENDING or FAILED subscription. FAILED entries are retried rather than
// abandoned, matching the partial-ACK retry supplement.
func (c *Collector) sendSubscribeForPending(ctx context.Context) error {
	c.subsMu.Lock()
	var symbols []string
	for _, s := range c.subs {
		if s.State == SubPending || s.State == SubFailed {
			s.State = SubPending
			s.Attempts++
			s.LastUpdated = time.Now()
			symbols = append(symbols, s.Symbol)
		}
	}
	c.subsMu.Unlock()

	if len(symbols) == 0 {
		return nil
	}
	frame, err := c.adapter.BuildSubscribe(symbols, newRequestID())
	if err != nil {
		return err
	}
	return c.send(ctx, frame)
}

// retrySubscribe resends only PENDING/FAILED entries on a heartbeat tick,
// per the original_source-derived supplement documented in the component
// design: a partially-ACKed batch does not get resent in full.
func (c *Collector) retrySubscribe(ctx context.Context) {
	_ = c.sendSubscribeForPending(ctx)
}

func (c *Collector) send(ctx context.Context, frame []byte) error {
	c.socketMu.Lock()
	sock := c.socket
	c.socketMu.Unlock()
	if sock == nil {
		return ErrNoSocket
	}
	return sock.Send(ctx, frame)
}
