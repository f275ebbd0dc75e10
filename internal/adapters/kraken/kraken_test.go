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

package kraken

import (
	"testing"

	"marketfeed/internal/collector"
	"marketfeed/pkg/record"
)

func TestSymbolRoundTrip(t *testing.T) {
	a := New(record.MarketSpot, 10, "wss://ws.kraken.com")
	canonical, err := a.NormalizeSymbol("XBT/USD")
	if err != nil || canonical != "BTC-USD" {
		t.Fatalf("NormalizeSymbol = %q, %v", canonical, err)
	}
	back, err := a.Denormalize(canonical)
	if err != nil || back != "XBT/USD" {
		t.Fatalf("Denormalize = %q, %v", back, err)
	}
}

func TestBuildSubscribeTooManyStreams(t *testing.T) {
	a := New(record.MarketSpot, 1, "wss://x")
	if _, err := a.BuildSubscribe([]string{"BTC-USD", "ETH-USD"}, "1"); err != collector.ErrTooManyStreams {
		t.Fatalf("expected ErrTooManyStreams, got %v", err)
	}
}

func TestParseArrayFrame(t *testing.T) {
	a := New(record.MarketSpot, 10, "wss://x")
	frame := []byte(`[340,{"b":[["100.00","1","1700000000.1"]],"a":[["100.10","1","1700000000.2"]]},"book-10","XBT/USD"]`)
	parsed := a.ParseFrame(frame)
	if parsed.Kind != collector.FrameOrderbook {
		t.Fatalf("expected FrameOrderbook, got %v (%s)", parsed.Kind, parsed.Reason)
	}
	if parsed.Record.Symbol != "BTC-USD" {
		t.Fatalf("unexpected symbol %q", parsed.Record.Symbol)
	}
	if len(parsed.Record.Bids) != 1 || len(parsed.Record.Asks) != 1 {
		t.Fatalf("unexpected levels: %+v", parsed.Record)
	}
}

func TestParseSubscriptionStatus(t *testing.T) {
	a := New(record.MarketSpot, 10, "wss://x")
	parsed := a.ParseFrame([]byte(`{"event":"subscriptionStatus","status":"subscribed","pair":"XBT/USD"}`))
	if parsed.Kind != collector.FrameSubscriptionAck || !parsed.OK {
		t.Fatalf("expected successful ack, got %+v", parsed)
	}
	if len(parsed.Symbols) != 1 || parsed.Symbols[0] != "BTC-USD" {
		t.Fatalf("unexpected ack symbols: %v", parsed.Symbols)
	}
}

func TestParseSubscriptionError(t *testing.T) {
	a := New(record.MarketSpot, 10, "wss://x")
	parsed := a.ParseFrame([]byte(`{"event":"subscriptionStatus","status":"error","pair":"XBT/USD","errorMessage":"Currency pair not supported"}`))
	if parsed.Kind != collector.FrameSubscriptionAck || parsed.OK {
		t.Fatalf("expected failed ack, got %+v", parsed)
	}
}
