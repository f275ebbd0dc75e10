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

// Package record defines the canonical shape every exchange adapter
// normalizes into, independent of any single exchange's wire format.
package record

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// MarketType distinguishes spot and derivatives order books.
type MarketType string

const (
	MarketSpot    MarketType = "spot"
	MarketFutures MarketType = "futures"
)

// Level is a single price/quantity point in an order book side.
type Level struct {
	Price decimal.Decimal `json:"price"`
	Qty   decimal.Decimal `json:"qty"`
}

// Book is the canonical order book snapshot produced by an adapter and
// consumed by the Ring Buffer and Processor. Bids/Asks are never nil —
// a record with no liquidity on a side still carries an empty slice.
type Book struct {
	ExchangeID     string     `json:"exchangeId"`
	MarketType     MarketType `json:"marketType"`
	Symbol         string     `json:"symbol"`         // canonical, e.g. BTC-USDT
	ExchangeTicker string     `json:"exchangeTicker"` // wire string, e.g. BTCUSDT
	EventTimeMs    int64      `json:"eventTimeMs"`
	Bids           []Level    `json:"bids"`
	Asks           []Level    `json:"asks"`
}

// Key returns the store key for this record: market:{exchange}:{symbol}:{timestamp}.
func (b Book) Key() string {
	return fmt.Sprintf("market:%s:%s:%d", b.ExchangeID, b.Symbol, b.EventTimeMs)
}

// SnapshotKey returns the secondary, latest-snapshot key for this record's
// (exchange, marketType, symbol) triple.
func (b Book) SnapshotKey() string {
	return fmt.Sprintf("bookTicker:%s:%s:%s", b.ExchangeID, b.MarketType, b.Symbol)
}

// Fingerprint identifies a record for deduplication purposes: the pair
// (symbol, timestamp) is assumed unique enough within one Collector's
// dedup window (see internal/collector/dedup.go).
func (b Book) Fingerprint() string {
	return fmt.Sprintf("%s|%d", b.Symbol, b.EventTimeMs)
}

// Validate checks the invariants from the data model: positive timestamp,
// not too far in the future, non-empty payload, and correctly ordered
// levels. futureSkew bounds how far into the future EventTimeMs may sit
// relative to now (spec: 5000ms).
func (b Book) Validate(now time.Time, futureSkew time.Duration) error {
	if b.ExchangeID == "" {
		return fmt.Errorf("%w: exchangeId", ErrMissingField)
	}
	if b.Symbol == "" {
		return fmt.Errorf("%w: symbol", ErrMissingField)
	}
	if b.EventTimeMs <= 0 {
		return fmt.Errorf("%w: timestamp", ErrMissingField)
	}
	if len(b.Bids) == 0 && len(b.Asks) == 0 {
		return fmt.Errorf("%w: bids/asks", ErrMissingField)
	}
	eventTime := time.UnixMilli(b.EventTimeMs)
	if eventTime.After(now.Add(futureSkew)) {
		return ErrFutureTimestamp
	}
	for _, lvl := range b.Bids {
		if err := validateLevel(lvl); err != nil {
			return err
		}
	}
	for _, lvl := range b.Asks {
		if err := validateLevel(lvl); err != nil {
			return err
		}
	}
	if !descending(b.Bids) || !ascending(b.Asks) {
		return ErrInvalidOrder
	}
	return nil
}

func validateLevel(lvl Level) error {
	// decimal.Decimal has no NaN/Inf representation, so "finite" reduces to sign.
	if lvl.Price.IsNegative() {
		return fmt.Errorf("%w: price", ErrInvalidLevel)
	}
	if lvl.Qty.IsNegative() {
		return fmt.Errorf("%w: qty", ErrInvalidLevel)
	}
	return nil
}

func descending(levels []Level) bool {
	for i := 1; i < len(levels); i++ {
		if levels[i].Price.GreaterThanOrEqual(levels[i-1].Price) {
			return false
		}
	}
	return true
}

func ascending(levels []Level) bool {
	for i := 1; i < len(levels); i++ {
		if levels[i].Price.LessThanOrEqual(levels[i-1].Price) {
			return false
		}
	}
	return true
}
