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

// Package kraken is a second, smaller Adapter, added to prove the Adapter
// interface is exchange-agnostic. Unlike binance's object frames, Kraken
// frames data updates as heterogeneous JSON arrays and acknowledges
// subscriptions with a distinct event-tagged object.
package kraken

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"marketfeed/internal/collector"
	"marketfeed/pkg/record"
)

// Adapter implements collector.Adapter for Kraken's book channel.
type Adapter struct {
	MarketType               record.MarketType
	StreamLimitPerConnection int
	BaseWSURL                string
}

// New returns an Adapter. baseWSURL is typically "wss://ws.kraken.com".
func New(marketType record.MarketType, streamLimit int, baseWSURL string) *Adapter {
	return &Adapter{MarketType: marketType, StreamLimitPerConnection: streamLimit, BaseWSURL: baseWSURL}
}

// NormalizeSymbol converts Kraken's "XBT/USD" to canonical "BTC-USD".
func (a *Adapter) NormalizeSymbol(raw string) (string, error) {
	parts := strings.SplitN(raw, "/", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("kraken: malformed pair %q", raw)
	}
	base, quote := krakenToCanonicalAsset(parts[0]), parts[1]
	return base + "-" + quote, nil
}

// Denormalize is NormalizeSymbol's inverse.
func (a *Adapter) Denormalize(canonical string) (string, error) {
	parts := strings.SplitN(canonical, "-", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("kraken: malformed canonical symbol %q", canonical)
	}
	return canonicalToKrakenAsset(parts[0]) + "/" + parts[1], nil
}

func krakenToCanonicalAsset(a string) string {
	if a == "XBT" {
		return "BTC"
	}
	return a
}

func canonicalToKrakenAsset(a string) string {
	if a == "BTC" {
		return "XBT"
	}
	return a
}

type subscribePayload struct {
	Event        string              `json:"event"`
	Pair         []string            `json:"pair"`
	Subscription subscriptionDetails `json:"subscription"`
	RequestID    string              `json:"reqid,omitempty"`
}

type subscriptionDetails struct {
	Name string `json:"name"`
}

func (a *Adapter) buildFrame(event string, symbols []string, requestID string) ([]byte, error) {
	if a.StreamLimitPerConnection > 0 && len(symbols) > a.StreamLimitPerConnection {
		return nil, collector.ErrTooManyStreams
	}
	pairs := make([]string, 0, len(symbols))
	for _, s := range symbols {
		raw, err := a.Denormalize(s)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, raw)
	}
	return json.Marshal(subscribePayload{
		Event: event, Pair: pairs, Subscription: subscriptionDetails{Name: "book"}, RequestID: requestID,
	})
}

func (a *Adapter) BuildSubscribe(symbols []string, requestID string) ([]byte, error) {
	return a.buildFrame("subscribe", symbols, requestID)
}

func (a *Adapter) BuildUnsubscribe(symbols []string, requestID string) ([]byte, error) {
	return a.buildFrame("unsubscribe", symbols, requestID)
}

func (a *Adapter) BuildList(requestID string) ([]byte, error) {
	return json.Marshal(map[string]string{"event": "ping", "reqid": requestID})
}

type subscriptionStatus struct {
	Event        string `json:"event"`
	Status       string `json:"status"`
	Pair         string `json:"pair"`
	ErrorMessage string `json:"errorMessage"`
}

func (a *Adapter) ParseFrame(frame []byte) collector.ParsedFrame {
	trimmed := strings.TrimSpace(string(frame))
	if strings.HasPrefix(trimmed, "{") {
		var status subscriptionStatus
		if err := json.Unmarshal(frame, &status); err != nil {
			return collector.ParsedFrame{Kind: collector.FrameError, Reason: "malformed object frame"}
		}
		switch status.Event {
		case "subscriptionStatus":
			canonical, _ := a.NormalizeSymbol(status.Pair)
			return collector.ParsedFrame{
				Kind: collector.FrameSubscriptionAck, OK: status.Status == "subscribed",
				Symbols: []string{canonical}, Reason: status.ErrorMessage,
			}
		case "pong":
			return collector.ParsedFrame{Kind: collector.FramePong}
		case "heartbeat":
			return collector.ParsedFrame{Kind: collector.FrameIgnored}
		default:
			return collector.ParsedFrame{Kind: collector.FrameIgnored}
		}
	}

	return a.parseArrayFrame(frame)
}

// parseArrayFrame handles Kraken's data-update shape:
// [channelID, {"b":[[price,vol,ts],...],"a":[...]}, "book-10", "XBT/USD"].
func (a *Adapter) parseArrayFrame(frame []byte) collector.ParsedFrame {
	var raw []json.RawMessage
	if err := json.Unmarshal(frame, &raw); err != nil || len(raw) < 4 {
		return collector.ParsedFrame{Kind: collector.FrameError, Reason: "not a 4-element array frame"}
	}
	var pair string
	if err := json.Unmarshal(raw[len(raw)-1], &pair); err != nil {
		return collector.ParsedFrame{Kind: collector.FrameError, Reason: "missing pair element"}
	}
	canonical, err := a.NormalizeSymbol(pair)
	if err != nil {
		return collector.ParsedFrame{Kind: collector.FrameError, Reason: err.Error()}
	}

	var book struct {
		Bids [][3]string `json:"b"`
		Asks [][3]string `json:"a"`
	}
	if err := json.Unmarshal(raw[1], &book); err != nil {
		return collector.ParsedFrame{Kind: collector.FrameError, Reason: "malformed book payload"}
	}
	bids, err := toLevelPairs(book.Bids)
	if err != nil {
		return collector.ParsedFrame{Kind: collector.FrameError, Reason: err.Error()}
	}
	asks, err := toLevelPairs(book.Asks)
	if err != nil {
		return collector.ParsedFrame{Kind: collector.FrameError, Reason: err.Error()}
	}
	bidLevels, err := record.ParseLevels(bids)
	if err != nil {
		return collector.ParsedFrame{Kind: collector.FrameError, Reason: err.Error()}
	}
	askLevels, err := record.ParseLevels(asks)
	if err != nil {
		return collector.ParsedFrame{Kind: collector.FrameError, Reason: err.Error()}
	}

	eventTimeMs := latestTripleTimestampMs(book.Bids, book.Asks)

	return collector.ParsedFrame{
		Kind: collector.FrameOrderbook,
		Record: record.Book{
			ExchangeID:     "kraken",
			MarketType:     a.MarketType,
			Symbol:         canonical,
			ExchangeTicker: pair,
			EventTimeMs:    eventTimeMs,
			Bids:           bidLevels,
			Asks:           askLevels,
		},
	}
}

// latestTripleTimestampMs extracts the exchange-supplied timestamp (the
// third tuple element, seconds with fractional precision) from whichever
// side carries an entry, falling back to the local clock if neither does.
func latestTripleTimestampMs(sides ...[][3]string) int64 {
	for _, side := range sides {
		for _, t := range side {
			sec, err := decimalSeconds(t[2])
			if err == nil {
				return int64(sec * 1000)
			}
		}
	}
	return time.Now().UnixMilli()
}

func decimalSeconds(s string) (float64, error) {
	var sec float64
	_, err := fmt.Sscanf(s, "%f", &sec)
	return sec, err
}

// toLevelPairs drops Kraken's third (timestamp) tuple element, keeping the
// [price, volume] pair ParseLevels expects.
func toLevelPairs(triples [][3]string) ([][2]string, error) {
	out := make([][2]string, len(triples))
	for i, t := range triples {
		out[i] = [2]string{t[0], t[1]}
	}
	return out, nil
}

func (a *Adapter) ConnectionParams() collector.ConnectionParams {
	return collector.ConnectionParams{
		URL:                     a.BaseWSURL,
		PingEvery:               15 * time.Second,
		PongWithin:              10 * time.Second,
		MaxStreamsPerConnection: a.StreamLimitPerConnection,
		MaxReconnectAttempts:    5,
		HandshakeTimeout:        10 * time.Second,
	}
}
