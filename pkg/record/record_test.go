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

package record

import (
	"errors"
	"testing"
	"time"
)

func mustLevels(t *testing.T, raw [][2]string) []Level {
	t.Helper()
	levels, err := ParseLevels(raw)
	if err != nil {
		t.Fatalf("ParseLevels(%v): %v", raw, err)
	}
	return levels
}

func TestValidate_OK(t *testing.T) {
	b := Book{
		ExchangeID:     "X",
		MarketType:     MarketSpot,
		Symbol:         "A",
		ExchangeTicker: "A",
		EventTimeMs:    1700000000000,
		Bids:           mustLevels(t, [][2]string{{"100.00", "1"}, {"99.50", "2"}}),
		Asks:           mustLevels(t, [][2]string{{"100.10", "1"}, {"100.20", "3"}}),
	}
	now := time.UnixMilli(1700000000000)
	if err := b.Validate(now, 5000*time.Millisecond); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidate_InvalidOrder(t *testing.T) {
	b := Book{
		ExchangeID:  "X",
		Symbol:      "A",
		EventTimeMs: 1700000000000,
		Bids:        mustLevels(t, [][2]string{{"99.50", "2"}, {"100.00", "1"}}),
	}
	now := time.UnixMilli(1700000000000)
	err := b.Validate(now, 5000*time.Millisecond)
	if !errors.Is(err, ErrInvalidOrder) {
		t.Fatalf("expected ErrInvalidOrder, got %v", err)
	}
}

func TestValidate_FutureTimestamp(t *testing.T) {
	b := Book{
		ExchangeID:  "X",
		Symbol:      "A",
		EventTimeMs: 1700000010000,
		Bids:        mustLevels(t, [][2]string{{"100.00", "1"}}),
	}
	now := time.UnixMilli(1700000000000)
	err := b.Validate(now, 5000*time.Millisecond)
	if !errors.Is(err, ErrFutureTimestamp) {
		t.Fatalf("expected ErrFutureTimestamp, got %v", err)
	}
}

func TestValidate_MissingPayload(t *testing.T) {
	b := Book{ExchangeID: "X", Symbol: "A", EventTimeMs: 1}
	err := b.Validate(time.UnixMilli(1), 5000*time.Millisecond)
	if !errors.Is(err, ErrMissingField) {
		t.Fatalf("expected ErrMissingField, got %v", err)
	}
}

func TestKeyLayout(t *testing.T) {
	b := Book{ExchangeID: "binance", Symbol: "BTC-USDT", EventTimeMs: 42}
	if got, want := b.Key(), "market:binance:BTC-USDT:42"; got != want {
		t.Fatalf("Key() = %q, want %q", got, want)
	}
	b.MarketType = MarketSpot
	if got, want := b.SnapshotKey(), "bookTicker:binance:spot:BTC-USDT"; got != want {
		t.Fatalf("SnapshotKey() = %q, want %q", got, want)
	}
}
