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

// Package errors implements the pipeline's error taxonomy and the
// Reporter every component funnels failures through. Internal fast paths
// still use plain Go error returns; the Reporter is for cross-cutting
// policy (retry, escalation, diagnostics) that no single component owns.
package errors

import (
	"sync"
	"time"

	"marketfeed/internal/logging"
	"marketfeed/internal/metrics"
)

// Code classifies the failing subsystem.
type Code string

const (
	CodeNetwork    Code = "NETWORK"
	CodeProcess    Code = "PROCESS"
	CodeStorage    Code = "STORAGE"
	CodeValidation Code = "VALIDATION"
	CodeMemory     Code = "MEMORY"
	CodeTimeout    Code = "TIMEOUT"
)

// Severity determines the Reporter's response policy.
type Severity string

const (
	SeverityFatal       Severity = "FATAL"
	SeverityRecoverable Severity = "RECOVERABLE"
	SeverityWarning     Severity = "WARNING"
)

// Err is the structured error every component reports.
type Err struct {
	Code      Code
	Severity  Severity
	Module    string
	Message   string
	Timestamp time.Time
	Retryable bool
	Data      map[string]any
}

func (e Err) Error() string { return e.Message }

// RetryPolicy controls RECOVERABLE backoff. Defaults per spec §4.6.
type RetryPolicy struct {
	MaxAttempts  int
	BaseInterval time.Duration
	Multiplier   float64
	Cap          time.Duration
}

// DefaultRetryPolicy matches spec §4.6: 3 attempts, 2x backoff, 5s base, 30s cap.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseInterval: 5 * time.Second, Multiplier: 2, Cap: 30 * time.Second}
}

// Delay returns the backoff delay before retry attempt k (1-indexed).
func (p RetryPolicy) Delay(k int) time.Duration {
	d := p.BaseInterval
	for i := 1; i < k; i++ {
		d = time.Duration(float64(d) * p.Multiplier)
		if d > p.Cap {
			return p.Cap
		}
	}
	if d > p.Cap {
		return p.Cap
	}
	return d
}

// Escalator is invoked when a FATAL error escalates beyond the reporting
// component — typically the Coordinator, which restarts the failing
// Collector.
type Escalator interface {
	Escalate(componentID string, err Err)
}

// Reporter applies severity policy and keeps a bounded per-module ring of
// recent errors for diagnostics.
type Reporter struct {
	logger    logging.Logger
	metrics   metrics.Sink
	escalator Escalator
	policy    RetryPolicy

	mu   sync.Mutex
	ring map[string][]Err
	cap  int
}

// NewReporter wires a Reporter. escalator may be nil if nothing should be
// notified of FATAL errors (e.g. a standalone Collector in tests).
func NewReporter(logger logging.Logger, sink metrics.Sink, escalator Escalator) *Reporter {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	if sink == nil {
		sink = metrics.Noop{}
	}
	return &Reporter{
		logger:    logger,
		metrics:   sink,
		escalator: escalator,
		policy:    DefaultRetryPolicy(),
		ring:      make(map[string][]Err),
		cap:       1000,
	}
}

// Report records err, applies severity policy, and returns true if the
// reporting component should transition to ERROR.
func (r *Reporter) Report(componentID string, err Err) (toError bool) {
	if err.Timestamp.IsZero() {
		err.Timestamp = time.Now()
	}
	r.record(componentID, err)
	r.metrics.IncCounter("pipeline_errors_total", map[string]string{
		"code": string(err.Code), "severity": string(err.Severity), "module": err.Module,
	}, 1)

	switch err.Severity {
	case SeverityFatal:
		r.logger.Error("fatal error", logging.F("module", err.Module), logging.F("code", err.Code), logging.F("message", err.Message))
		if r.escalator != nil {
			r.escalator.Escalate(componentID, err)
		}
		return true
	case SeverityRecoverable:
		r.logger.Warn("recoverable error", logging.F("module", err.Module), logging.F("code", err.Code), logging.F("message", err.Message))
		return false
	default:
		r.logger.Info("warning", logging.F("module", err.Module), logging.F("code", err.Code), logging.F("message", err.Message))
		return false
	}
}

func (r *Reporter) record(componentID string, err Err) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ring := append(r.ring[componentID], err)
	if len(ring) > r.cap {
		ring = ring[len(ring)-r.cap:]
	}
	r.ring[componentID] = ring
}

// Recent returns up to n most recent errors recorded for componentID, most
// recent last.
func (r *Reporter) Recent(componentID string, n int) []Err {
	r.mu.Lock()
	defer r.mu.Unlock()
	ring := r.ring[componentID]
	if n <= 0 || n > len(ring) {
		n = len(ring)
	}
	out := make([]Err, n)
	copy(out, ring[len(ring)-n:])
	return out
}

// Policy exposes the configured RECOVERABLE retry policy.
func (r *Reporter) Policy() RetryPolicy { return r.policy }
