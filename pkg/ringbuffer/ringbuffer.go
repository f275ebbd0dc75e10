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

// Package ringbuffer implements a bounded FIFO with threshold- and
// timer-driven flushing, parametric over the buffered element type. It is
// shared by every producer in the pipeline (Collector, Processor) — each
// owns its own instance, never a singleton.
package ringbuffer

import (
	"context"
	"sync"
	"time"
)

// PushResult reports the outcome of a Push call.
type PushResult int

const (
	Accepted PushResult = iota
	DroppedFull
)

// Sink receives a flushed batch. A nil error means the batch was durably
// handled. Flush calls the sink up to 3 times; if every attempt errors, the
// whole batch is discarded by the buffer and never retried by a later flush.
type Sink[T any] func(ctx context.Context, items []T) error

// Config controls capacity and flush cadence.
type Config struct {
	MaxSize        int           // N > 0
	FlushThreshold float64       // percent in (0,100]; >= triggers an immediate flush
	FlushInterval  time.Duration // 0 disables the periodic timer
}

// Metrics mirrors the buffer's externally observable counters. Size and
// UtilizationRate move up and down; the rest are monotonic.
type Metrics struct {
	Size            int
	TotalItems      int64
	DroppedItems    int64
	FlushCount      int64
	LastFlushTime   time.Time
	UtilizationRate float64
}

// ErrClosedBuffer is returned by Push after Dispose.
type ErrClosedBuffer struct{}

func (ErrClosedBuffer) Error() string { return "ringbuffer: closed" }

// EventListener receives buffer lifecycle events; implementations must not
// block (the buffer invokes them while holding no lock, but synchronously
// on the caller's goroutine).
type EventListener interface {
	OnFull()
	OnFlushed(count int)
	OnError(err error)
}

// Buffer is a bounded, mutex-guarded FIFO of T with threshold/timer flush.
type Buffer[T any] struct {
	mu   sync.Mutex
	slab []T
	head int
	tail int
	count int

	cfg      Config
	sink     Sink[T]
	listener EventListener

	totalItems   int64
	droppedItems int64
	flushCount   int64
	lastFlush    time.Time

	disposed bool
	teardown []func()

	stopTimer chan struct{}
	timerDone chan struct{}
}

// New constructs a Buffer with the given configuration and flush sink. A
// nil listener is replaced with a no-op implementation.
func New[T any](cfg Config, sink Sink[T], listener EventListener) *Buffer[T] {
	if cfg.MaxSize <= 0 {
		panic("ringbuffer: MaxSize must be > 0")
	}
	if listener == nil {
		listener = noopListener{}
	}
	b := &Buffer[T]{
		slab:     make([]T, cfg.MaxSize),
		cfg:      cfg,
		sink:     sink,
		listener: listener,
	}
	if cfg.FlushInterval > 0 {
		b.stopTimer = make(chan struct{})
		b.timerDone = make(chan struct{})
		go b.timerLoop()
	}
	return b
}

func (b *Buffer[T]) timerLoop() {
	defer close(b.timerDone)
	ticker := time.NewTicker(b.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-b.stopTimer:
			return
		case <-ticker.C:
			if b.Len() > 0 {
				_ = b.Flush(context.Background())
			}
		}
	}
}

// Push stores item at the tail, or drops it if the buffer is full. Per
// spec, a full buffer synchronously flushes before reporting DroppedFull —
// the new item is never stored.
func (b *Buffer[T]) Push(ctx context.Context, item T) (PushResult, error) {
	b.mu.Lock()
	if b.disposed {
		b.mu.Unlock()
		return DroppedFull, ErrClosedBuffer{}
	}
	if b.count == b.cfg.MaxSize {
		b.droppedItems++
		b.mu.Unlock()
		b.listener.OnFull()
		_ = b.Flush(ctx)
		return DroppedFull, nil
	}
	b.slab[b.tail] = item
	b.tail = (b.tail + 1) % b.cfg.MaxSize
	b.count++
	b.totalItems++
	ratio := float64(b.count) / float64(b.cfg.MaxSize) * 100
	shouldFlush := ratio >= b.cfg.FlushThreshold
	b.mu.Unlock()

	if shouldFlush {
		_ = b.Flush(ctx)
	}
	return Accepted, nil
}

// Flush snapshots all buffered items, empties the buffer, then invokes the
// sink with up to 3 attempts. On total failure the snapshot is discarded
// and an error event is emitted — the buffer never retries across ticks.
func (b *Buffer[T]) Flush(ctx context.Context) error {
	b.mu.Lock()
	if b.count == 0 {
		b.mu.Unlock()
		return nil
	}
	items := make([]T, b.count)
	for i := 0; i < b.count; i++ {
		items[i] = b.slab[(b.head+i)%b.cfg.MaxSize]
		var zero T
		b.slab[(b.head+i)%b.cfg.MaxSize] = zero
	}
	b.head = b.tail
	b.count = 0
	b.mu.Unlock()

	var err error
	for attempt := 0; attempt < 3; attempt++ {
		if err = b.sink(ctx, items); err == nil {
			break
		}
	}

	b.mu.Lock()
	if err == nil {
		b.flushCount++
		b.lastFlush = time.Now()
	}
	b.mu.Unlock()

	if err != nil {
		b.listener.OnError(err)
		return err
	}
	b.listener.OnFlushed(len(items))
	return nil
}

// Len returns the current element count without mutating state.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// DrainUpTo removes and returns up to n buffered items in FIFO order
// (fewer if the buffer holds less). Unlike Flush, it does not invoke the
// sink and does not count toward flushCount/lastFlushTime — it exists for
// callers that drive their own batch-sized drain cadence (see
// internal/processor's adaptive batch sizing) rather than an all-at-once
// flush.
func (b *Buffer[T]) DrainUpTo(n int) []T {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n > b.count {
		n = b.count
	}
	if n <= 0 {
		return nil
	}
	items := make([]T, n)
	for i := 0; i < n; i++ {
		items[i] = b.slab[(b.head+i)%b.cfg.MaxSize]
		var zero T
		b.slab[(b.head+i)%b.cfg.MaxSize] = zero
	}
	b.head = (b.head + n) % b.cfg.MaxSize
	b.count -= n
	return items
}

// Metrics returns a point-in-time snapshot of the buffer's counters.
func (b *Buffer[T]) Metrics() Metrics {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Metrics{
		Size:            b.count,
		TotalItems:      b.totalItems,
		DroppedItems:    b.droppedItems,
		FlushCount:      b.flushCount,
		LastFlushTime:   b.lastFlush,
		UtilizationRate: float64(b.count) / float64(b.cfg.MaxSize) * 100,
	}
}

// OnDispose registers a teardown action to run exactly once, in
// registration order, when Dispose is called.
func (b *Buffer[T]) OnDispose(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.teardown = append(b.teardown, fn)
}

// Dispose cancels the periodic timer and runs all registered teardown
// actions exactly once. Safe to call more than once.
func (b *Buffer[T]) Dispose() {
	b.mu.Lock()
	if b.disposed {
		b.mu.Unlock()
		return
	}
	b.disposed = true
	teardown := b.teardown
	b.teardown = nil
	b.mu.Unlock()

	if b.stopTimer != nil {
		close(b.stopTimer)
		<-b.timerDone
	}
	for _, fn := range teardown {
		fn()
	}
}

type noopListener struct{}

func (noopListener) OnFull()           {}
func (noopListener) OnFlushed(int)     {}
func (noopListener) OnError(error)     {}
