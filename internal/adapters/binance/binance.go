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

// Package binance is the reference Adapter: a combined-stream depth-update
// feed, object-framed, ack'd by an {"id":...,"result":null} envelope. It
// is the wire format spec scenario S2 exercises literally.
package binance

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"marketfeed/internal/collector"
	"marketfeed/pkg/record"
)

// Adapter implements collector.Adapter for Binance's combined-stream
// depth channel.
type Adapter struct {
	MarketType              record.MarketType
	StreamLimitPerConnection int
	BaseWSURL               string
}

// New returns an Adapter. baseWSURL is typically
// "wss://stream.binance.com:9443/ws".
func New(marketType record.MarketType, streamLimit int, baseWSURL string) *Adapter {
	return &Adapter{MarketType: marketType, StreamLimitPerConnection: streamLimit, BaseWSURL: baseWSURL}
}

// NormalizeSymbol converts "BTCUSDT" to canonical "BTC-USDT". Binance
// ticker symbols carry no separator, so the adapter relies on a fixed set
// of known quote assets, longest match first.
var quoteAssets = []string{"USDT", "BUSD", "USDC", "BTC", "ETH", "BNB"}

func (a *Adapter) NormalizeSymbol(raw string) (string, error) {
	upper := strings.ToUpper(raw)
	for _, quote := range quoteAssets {
		if strings.HasSuffix(upper, quote) && len(upper) > len(quote) {
			base := upper[:len(upper)-len(quote)]
			return base + "-" + quote, nil
		}
	}
	return "", fmt.Errorf("binance: cannot normalize symbol %q", raw)
}

func (a *Adapter) Denormalize(canonical string) (string, error) {
	parts := strings.SplitN(canonical, "-", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("binance: malformed canonical symbol %q", canonical)
	}
	return parts[0] + parts[1], nil
}

func (a *Adapter) streamName(canonical string) (string, error) {
	raw, err := a.Denormalize(canonical)
	if err != nil {
		return "", err
	}
	return strings.ToLower(raw) + "@depth", nil
}

type subscribeFrame struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     string   `json:"id"`
}

func (a *Adapter) buildFrame(method string, symbols []string, requestID string) ([]byte, error) {
	if a.StreamLimitPerConnection > 0 && len(symbols) > a.StreamLimitPerConnection {
		return nil, collector.ErrTooManyStreams
	}
	params := make([]string, 0, len(symbols))
	for _, s := range symbols {
		name, err := a.streamName(s)
		if err != nil {
			return nil, err
		}
		params = append(params, name)
	}
	return json.Marshal(subscribeFrame{Method: method, Params: params, ID: requestID})
}

func (a *Adapter) BuildSubscribe(symbols []string, requestID string) ([]byte, error) {
	return a.buildFrame("SUBSCRIBE", symbols, requestID)
}

func (a *Adapter) BuildUnsubscribe(symbols []string, requestID string) ([]byte, error) {
	return a.buildFrame("UNSUBSCRIBE", symbols, requestID)
}

func (a *Adapter) BuildList(requestID string) ([]byte, error) {
	return json.Marshal(subscribeFrame{Method: "LIST_SUBSCRIPTIONS", ID: requestID})
}

// ackEnvelope is Binance's subscribe/unsubscribe acknowledgment shape.
type ackEnvelope struct {
	ID     json.RawMessage `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	} `json:"error"`
}

// depthEvent is the combined-stream depth-update payload, per spec
// scenario S2: {stream, data:{s,E,b,a}}.
type depthEvent struct {
	Stream string `json:"stream"`
	Data   struct {
		EventType string      `json:"e"`
		EventTime int64       `json:"E"`
		Symbol    string      `json:"s"`
		Bids      [][2]string `json:"b"`
		Asks      [][2]string `json:"a"`
	} `json:"data"`
}

func (a *Adapter) ParseFrame(frame []byte) collector.ParsedFrame {
	var ack ackEnvelope
	if err := json.Unmarshal(frame, &ack); err == nil && ack.ID != nil {
		if ack.Error != nil {
			return collector.ParsedFrame{Kind: collector.FrameSubscriptionAck, OK: false, Reason: ack.Error.Msg}
		}
		return collector.ParsedFrame{Kind: collector.FrameSubscriptionAck, OK: true}
	}

	var evt depthEvent
	if err := json.Unmarshal(frame, &evt); err != nil || evt.Stream == "" {
		return collector.ParsedFrame{Kind: collector.FrameError, Reason: "unrecognized frame shape"}
	}
	canonical, err := a.NormalizeSymbol(evt.Data.Symbol)
	if err != nil {
		return collector.ParsedFrame{Kind: collector.FrameError, Reason: err.Error()}
	}
	bids, err := record.ParseLevels(evt.Data.Bids)
	if err != nil {
		return collector.ParsedFrame{Kind: collector.FrameError, Reason: err.Error()}
	}
	asks, err := record.ParseLevels(evt.Data.Asks)
	if err != nil {
		return collector.ParsedFrame{Kind: collector.FrameError, Reason: err.Error()}
	}
	return collector.ParsedFrame{
		Kind: collector.FrameOrderbook,
		Record: record.Book{
			ExchangeID:     "binance",
			MarketType:     a.MarketType,
			Symbol:         canonical,
			ExchangeTicker: evt.Data.Symbol,
			EventTimeMs:    evt.Data.EventTime,
			Bids:           bids,
			Asks:           asks,
		},
	}
}

func (a *Adapter) ConnectionParams() collector.ConnectionParams {
	return collector.ConnectionParams{
		URL:       a.BaseWSURL,
		PingEvery: 20 * time.Second,
		// Binance acknowledges pings with a control-level pong handled by
		// the transport layer, not an application frame; PongWithin is left
		// at 0 so the heartbeat loop does not watch for a FramePong that
		// will never arrive, and instead relies on the read deadline.
		PongWithin:              0,
		MaxStreamsPerConnection: a.StreamLimitPerConnection,
		MaxReconnectAttempts:    5,
		HandshakeTimeout:        10 * time.Second,
	}
}
