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
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// appendBackup serializes items as one JSON array and appends it as a
// single line to the backup file, fsyncing before close so the write
// survives a crash immediately after — spec §4.5's "append-then-fsync
// semantics". Each line is one failed batch; the file accumulates lines
// across repeated failures until drained.
func (p *Processor) appendBackup(items []ProcessedRecord) error {
	if p.backupPath == "" || len(items) == 0 {
		return nil
	}
	p.backupMu.Lock()
	defer p.backupMu.Unlock()

	body, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("processor: marshal backup batch: %w", err)
	}
	f, err := os.OpenFile(p.backupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("processor: open backup file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(body, '\n')); err != nil {
		return fmt.Errorf("processor: write backup batch: %w", err)
	}
	return f.Sync()
}

// DrainBackup reads every batch recorded in the backup file and retries
// writing each to the store. It only unlinks the file once every batch in
// it has been successfully written — a partial failure leaves the file
// untouched, safe to retry later since store writes are idempotent SETs.
// Exposed for cmd/marketfeed's --drain-on-start path as well as being
// called automatically after every successful flush.
func (p *Processor) DrainBackup(ctx context.Context) error {
	if p.backupPath == "" {
		return nil
	}
	p.backupMu.Lock()
	defer p.backupMu.Unlock()

	f, err := os.Open(p.backupPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("processor: open backup file: %w", err)
	}

	var batches [][]ProcessedRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var batch []ProcessedRecord
		if err := json.Unmarshal(line, &batch); err != nil {
			f.Close()
			return fmt.Errorf("processor: decode backup line: %w", err)
		}
		batches = append(batches, batch)
	}
	scanErr := scanner.Err()
	f.Close()
	if scanErr != nil {
		return fmt.Errorf("processor: scan backup file: %w", scanErr)
	}
	if len(batches) == 0 {
		return os.Remove(p.backupPath)
	}

	for _, batch := range batches {
		if err := p.store.WriteBatch(ctx, batch); err != nil {
			return fmt.Errorf("processor: drain backup: %w", err)
		}
		p.batchesProcessed.Add(1)
		p.recordsProcessed.Add(int64(len(batch)))
	}
	return os.Remove(p.backupPath)
}
