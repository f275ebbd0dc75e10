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

package processor

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"marketfeed/internal/config"
	"marketfeed/internal/errors"
	"marketfeed/internal/eventbus"
	"marketfeed/pkg/record"

	"github.com/shopspring/decimal"
)

type fakeWriter struct {
	failCount int32
	calls     int32
	batches   [][]record.Processed
}

func (w *fakeWriter) WriteBatch(ctx context.Context, records []record.Processed) error {
	atomic.AddInt32(&w.calls, 1)
	if atomic.LoadInt32(&w.failCount) > 0 {
		atomic.AddInt32(&w.failCount, -1)
		return context.DeadlineExceeded
	}
	w.batches = append(w.batches, records)
	return nil
}
func (w *fakeWriter) Close() error { return nil }

func validBook(symbol string, ts int64) record.Book {
	return record.Book{
		ExchangeID: "x", Symbol: symbol, MarketType: record.MarketSpot, EventTimeMs: ts,
		Bids: []record.Level{{Price: decimal.NewFromInt(100), Qty: decimal.NewFromInt(1)}},
		Asks: []record.Level{{Price: decimal.NewFromInt(101), Qty: decimal.NewFromInt(1)}},
	}
}

func newTestProcessor(t *testing.T, w *fakeWriter, backupPath string) *Processor {
	t.Helper()
	bufCfg := config.BufferConfig{MaxSize: 100, FlushThreshold: 100}
	procCfg := config.ProcessorConfig{BatchSize: 20, BatchInterval: 0, MaxBufferSize: 50, BackupPath: backupPath}
	bus := eventbus.New(8)
	return New("p1", "x", bufCfg, procCfg, w, bus, nil, nil, errors.NewReporter(nil, nil, nil))
}

func TestEnqueueRejectsInvalidRecord(t *testing.T) {
	w := &fakeWriter{}
	p := newTestProcessor(t, w, "")
	bad := record.Book{} // missing everything
	p.Enqueue(context.Background(), bad)
	if got := p.GetMetrics().DroppedInvalid; got != 1 {
		t.Fatalf("expected DroppedInvalid=1, got %d", got)
	}
	if p.buffer.Len() != 0 {
		t.Fatalf("invalid record must not enter the buffer, got len=%d", p.buffer.Len())
	}
}

func TestFlushAllSuccessUpdatesMetricsAndGrowsTarget(t *testing.T) {
	w := &fakeWriter{}
	p := newTestProcessor(t, w, "")
	items := []ProcessedRecord{{Book: validBook("A", 1700000000000), ProcessedAt: time.Now(), ProcessorID: "p1"}}
	before := p.currentTarget()
	if err := p.flushAll(context.Background(), items); err != nil {
		t.Fatalf("flushAll: %v", err)
	}
	m := p.GetMetrics()
	if m.BatchesProcessed != 1 || m.RecordsProcessed != 1 {
		t.Fatalf("unexpected metrics: %+v", m)
	}
	if p.currentTarget() <= before {
		t.Fatalf("expected target to grow on a fast flush: before=%d after=%d", before, p.currentTarget())
	}
}

func TestFlushAllFailureWritesBackupAndShrinksTarget(t *testing.T) {
	dir := t.TempDir()
	backupPath := filepath.Join(dir, "backup.jsonl")
	w := &fakeWriter{failCount: 3}
	p := newTestProcessor(t, w, backupPath)
	before := p.currentTarget()

	items := []ProcessedRecord{{Book: validBook("A", 1700000000000), ProcessedAt: time.Now(), ProcessorID: "p1"}}
	if err := p.flushAll(context.Background(), items); err != nil {
		t.Fatalf("flushAll: %v", err)
	}
	if p.currentTarget() >= before {
		t.Fatalf("expected target to shrink on failure: before=%d after=%d", before, p.currentTarget())
	}
	data, err := os.ReadFile(backupPath)
	if err != nil {
		t.Fatalf("expected backup file to exist: %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("expected non-empty backup file")
	}
}

func TestDrainBackupClearsFileOnSuccess(t *testing.T) {
	dir := t.TempDir()
	backupPath := filepath.Join(dir, "backup.jsonl")
	w := &fakeWriter{}
	p := newTestProcessor(t, w, backupPath)

	items := []ProcessedRecord{{Book: validBook("A", 1700000000000), ProcessedAt: time.Now(), ProcessorID: "p1"}}
	if err := p.appendBackup(items); err != nil {
		t.Fatalf("appendBackup: %v", err)
	}
	if err := p.DrainBackup(context.Background()); err != nil {
		t.Fatalf("DrainBackup: %v", err)
	}
	if _, err := os.Stat(backupPath); !os.IsNotExist(err) {
		t.Fatalf("expected backup file to be removed after successful drain")
	}
	if len(w.batches) != 1 || len(w.batches[0]) != 1 {
		t.Fatalf("expected the drained batch to reach the store, got %+v", w.batches)
	}
}
