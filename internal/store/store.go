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

// Package store provides idempotent persistence of normalized Records to a
// key/value backend. Every write lands two keys in a single pipelined
// round trip: a time-stamped snapshot under the primary key (TTL 24h) and
// the latest-value pointer under the secondary key (TTL 1h), per spec §5's
// "Shared Resources" contract with the data store.
package store

import (
	"context"
	"time"

	"marketfeed/pkg/record"
)

const (
	primaryTTL   = 24 * time.Hour
	secondaryTTL = 1 * time.Hour
)

// Writer is the minimal surface the pipeline needs from a store backend.
// Implementations must apply both keys of a single Record in the same
// pipeline/transaction so a reader never observes one without the other.
// The persisted value is the full Processed record (Book plus
// processedAt/processorId), not the bare Book, matching the data model's
// "JSON-encoded ProcessedRecord" store layout.
type Writer interface {
	WriteBatch(ctx context.Context, records []record.Processed) error
	Close() error
}
