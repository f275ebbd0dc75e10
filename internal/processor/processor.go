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

// Package processor implements the Processor/Register: it validates
// canonical records, buffers them in its own Ring Buffer, and drains them
// to the store in adaptively-sized batches with retry, backoff, and a
// disk backup of last resort.
package processor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"marketfeed/internal/config"
	"marketfeed/internal/errors"
	"marketfeed/internal/eventbus"
	"marketfeed/internal/logging"
	"marketfeed/internal/metrics"
	"marketfeed/internal/store"
	"marketfeed/pkg/record"
	"marketfeed/pkg/ringbuffer"
)

// futureSkew bounds how far into the future a record's timestamp may sit,
// matching internal/collector's validation rule (spec's 5s).
const futureSkew = 5 * time.Second

// fastFlushThreshold is the elapsed-time cutoff below which a successful
// flush grows the adaptive batch target, per spec §4.5.
const fastFlushThreshold = 50 * time.Millisecond

const (
	growFactor       = 1.2
	shrinkFactor     = 0.8
	minBatchTarget   = 10
	retryAttempts    = 3
)

var retryBackoff = []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}

// ProcessedRecord is a Canonical Record enriched with processing metadata,
// per spec §4.5: Canonical Record ∪ {processedAt, processorId}. It is an
// alias of record.Processed so store.Writer can accept batches of it
// directly, without stripping the wrapper before persistence.
type ProcessedRecord = record.Processed

// Processor owns one Ring Buffer of ProcessedRecord and drains it to a
// store.Writer in adaptively-sized batches.
type Processor struct {
	id         string
	exchangeID string
	store      store.Writer
	bus        *eventbus.Bus
	logger     logging.Logger
	sink       metrics.Sink
	report     *errors.Reporter

	buffer *ringbuffer.Buffer[ProcessedRecord]

	batchInterval time.Duration
	maxTarget     int
	backupPath    string
	maxDataAge    time.Duration

	targetMu sync.Mutex
	target   int

	metricsMu     sync.Mutex
	avgProcessMs  float64

	backupMu sync.Mutex

	batchesProcessed atomic.Int64
	recordsProcessed atomic.Int64
	droppedInvalid   atomic.Int64

	unsubscribe func()
	stopCh      chan struct{}
	stopped     atomic.Bool
	wg          sync.WaitGroup
}

// New constructs a Processor. bufCfg sizes the intake Ring Buffer
// (capacity N, overflow behavior); procCfg controls batch cadence,
// adaptive sizing ceiling, and the backup file path.
func New(id, exchangeID string, bufCfg config.BufferConfig, procCfg config.ProcessorConfig,
	st store.Writer, bus *eventbus.Bus, logger logging.Logger, sink metrics.Sink, report *errors.Reporter) *Processor {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	if sink == nil {
		sink = metrics.Noop{}
	}
	if report == nil {
		report = errors.NewReporter(logger, sink, nil)
	}
	p := &Processor{
		id:            id,
		exchangeID:    exchangeID,
		store:         st,
		bus:           bus,
		logger:        logger,
		sink:          sink,
		report:        report,
		batchInterval: procCfg.BatchInterval,
		maxTarget:     procCfg.MaxBufferSize,
		backupPath:    procCfg.BackupPath,
		maxDataAge:    procCfg.MaxDataAge,
		target:        procCfg.BatchSize,
		stopCh:        make(chan struct{}),
	}
	p.buffer = ringbuffer.New[ProcessedRecord](ringbuffer.Config{
		MaxSize:        bufCfg.MaxSize,
		FlushThreshold: 100, // auto-flushes only when a push fills the buffer; ticks drive the normal cadence
		FlushInterval:  0,
	}, p.flushAll, nil)
	return p
}

// Start subscribes to MARKET_DATA events for this Processor's exchange and
// launches the batch-drain tick loop.
func (p *Processor) Start(ctx context.Context) {
	p.unsubscribe = p.bus.Subscribe(eventbus.TopicMarketData, func(ev eventbus.Event) {
		rec, ok := ev.Payload.(record.Book)
		if !ok || rec.ExchangeID != p.exchangeID {
			return
		}
		p.Enqueue(ctx, rec)
	})
	p.wg.Add(1)
	go func() { defer p.wg.Done(); p.tickLoop(ctx) }()
}

// Stop halts the tick loop, unsubscribes from the event bus, and makes a
// best-effort final flush of whatever remains buffered.
func (p *Processor) Stop() {
	if !p.stopped.CompareAndSwap(false, true) {
		return
	}
	if p.unsubscribe != nil {
		p.unsubscribe()
	}
	close(p.stopCh)
	p.wg.Wait()

	items := p.buffer.DrainUpTo(p.buffer.Len())
	if len(items) > 0 {
		_ = p.flushAll(context.Background(), items)
	}
	p.buffer.Dispose()
}

// Enqueue validates rec and, if valid, enqueues it as a ProcessedRecord.
// Invalid records are dropped and counted, never buffered — matching
// spec §4.5's "Rejected records do not enter the buffer".
func (p *Processor) Enqueue(ctx context.Context, rec record.Book) {
	if err := p.validate(rec); err != nil {
		p.droppedInvalid.Add(1)
		p.report.Report(p.id, errors.Err{Code: errors.CodeValidation, Severity: errors.SeverityRecoverable,
			Module: "processor", Message: "invalid record: " + err.Error()})
		return
	}
	pr := ProcessedRecord{Book: rec, ProcessedAt: time.Now(), ProcessorID: p.id}
	result, err := p.buffer.Push(ctx, pr)
	if err != nil {
		return
	}
	if result == ringbuffer.DroppedFull {
		p.bus.Publish(eventbus.TopicBufferFull, rec.Symbol)
	}
}

// validate applies spec §4.5's rules. record.Book.Validate already
// enforces non-empty required fields, order, and the 5s future skew;
// maxDataAge is a supplement recovered from original_source/ rejecting
// records stale beyond the configured retention window.
func (p *Processor) validate(rec record.Book) error {
	if err := rec.Validate(time.Now(), futureSkew); err != nil {
		return err
	}
	if p.maxDataAge > 0 {
		age := time.Since(time.UnixMilli(rec.EventTimeMs))
		if age > p.maxDataAge {
			return record.ErrStale
		}
	}
	return nil
}

// tickLoop drains up to the current adaptive batch target every
// batchInterval and flushes it to the store.
func (p *Processor) tickLoop(ctx context.Context) {
	if p.batchInterval <= 0 {
		return
	}
	ticker := time.NewTicker(p.batchInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.drainAndFlush(ctx)
		}
	}
}

func (p *Processor) currentTarget() int {
	p.targetMu.Lock()
	defer p.targetMu.Unlock()
	return p.target
}

func (p *Processor) drainAndFlush(ctx context.Context) {
	items := p.buffer.DrainUpTo(p.currentTarget())
	if len(items) == 0 {
		return
	}
	_ = p.flushAll(ctx, items)
}

// flushAll is the Processor's Ring Buffer sink and also the function the
// tick loop calls directly. It always returns nil: permanent failure is
// handled internally via the disk backup, so the generic Ring Buffer's
// own retry-on-error path (see pkg/ringbuffer) is never exercised here —
// this function already completed its own 3-attempt/backoff policy by the
// time it returns.
func (p *Processor) flushAll(ctx context.Context, items []ProcessedRecord) error {
	start := time.Now()

	var err error
	for attempt := 1; attempt <= retryAttempts; attempt++ {
		err = p.store.WriteBatch(ctx, items)
		if err == nil {
			break
		}
		if attempt < retryAttempts {
			time.Sleep(retryBackoff[attempt-1])
		}
	}
	elapsed := time.Since(start)

	if err != nil {
		p.report.Report(p.id, errors.Err{Code: errors.CodeStorage, Severity: errors.SeverityRecoverable,
			Module: "processor", Message: "store write failed after retries: " + err.Error()})
		if backupErr := p.appendBackup(items); backupErr != nil {
			p.report.Report(p.id, errors.Err{Code: errors.CodeStorage, Severity: errors.SeverityFatal,
				Module: "processor", Message: "backup write failed: " + backupErr.Error()})
		}
		p.adapt(false)
		return nil
	}

	p.batchesProcessed.Add(1)
	p.recordsProcessed.Add(int64(len(items)))
	p.updateAvg(elapsed)
	p.adapt(elapsed < fastFlushThreshold)
	p.sink.ObserveHistogram("processor_flush_duration_ms", map[string]string{"processor": p.id}, float64(elapsed.Milliseconds()))

	if drainErr := p.DrainBackup(ctx); drainErr != nil {
		p.logger.Warn("backup drain failed", logging.F("processor", p.id), logging.F("error", drainErr.Error()))
	}
	return nil
}

func (p *Processor) adapt(fast bool) {
	p.targetMu.Lock()
	defer p.targetMu.Unlock()
	if fast {
		next := int(float64(p.target) * growFactor)
		if p.maxTarget > 0 && next > p.maxTarget {
			next = p.maxTarget
		}
		p.target = next
	} else {
		next := int(float64(p.target) * shrinkFactor)
		if next < minBatchTarget {
			next = minBatchTarget
		}
		p.target = next
	}
}

func (p *Processor) updateAvg(elapsed time.Duration) {
	p.metricsMu.Lock()
	defer p.metricsMu.Unlock()
	ms := float64(elapsed.Milliseconds())
	if p.avgProcessMs == 0 {
		p.avgProcessMs = ms
		return
	}
	p.avgProcessMs = p.avgProcessMs*0.8 + ms*0.2
}

// Metrics is the point-in-time snapshot GetMetrics returns.
type Metrics struct {
	BatchesProcessed int64
	RecordsProcessed int64
	DroppedInvalid   int64
	AvgProcessingMs  float64
	BatchTarget      int
	Buffer           ringbuffer.Metrics
}

// GetMetrics returns a snapshot of this Processor's counters.
func (p *Processor) GetMetrics() Metrics {
	p.metricsMu.Lock()
	avg := p.avgProcessMs
	p.metricsMu.Unlock()
	return Metrics{
		BatchesProcessed: p.batchesProcessed.Load(),
		RecordsProcessed: p.recordsProcessed.Load(),
		DroppedInvalid:   p.droppedInvalid.Load(),
		AvgProcessingMs:  avg,
		BatchTarget:      p.currentTarget(),
		Buffer:           p.buffer.Metrics(),
	}
}
