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

package store

import (
	"context"
	"encoding/json"
	"fmt"

	redis "github.com/redis/go-redis/v9"

	"marketfeed/internal/config"
	"marketfeed/pkg/record"
)

// RedisStore writes Records to Redis using github.com/redis/go-redis/v9's
// pipelined Cmdable, batching every record's two keys (primary snapshot,
// secondary latest pointer) into one round trip per WriteBatch call.
type RedisStore struct {
	client redis.Cmdable
}

// NewRedisStore dials a Redis client from cfg.
func NewRedisStore(cfg config.StoreConfig) *RedisStore {
	return &RedisStore{client: redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})}
}

// NewRedisStoreWithClient wraps an existing client, primarily for tests
// against redis.Cmdable fakes or miniredis.
func NewRedisStoreWithClient(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

// WriteBatch queues one SET with TTL per key, per record, in a
// transactional (MULTI/EXEC) pipeline and executes the whole batch in a
// single round trip. The persisted value is the full
// Processed record (JSON-encoded, carrying processedAt/processorId), not
// the bare Book. A pipeline failure returns the first error encountered;
// records already SET before the failing command may remain in Redis —
// callers rely on the primary key's TTL, not on WriteBatch atomicity
// across records, to bound staleness.
func (s *RedisStore) WriteBatch(ctx context.Context, records []record.Processed) error {
	if len(records) == 0 {
		return nil
	}
	pipe := s.client.TxPipeline()
	for _, r := range records {
		body, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("store: marshal %s: %w", r.Key(), err)
		}
		pipe.Set(ctx, r.Key(), body, primaryTTL)
		pipe.Set(ctx, r.SnapshotKey(), body, secondaryTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store: pipeline exec: %w", err)
	}
	return nil
}

// Close releases the underlying client's connections.
func (s *RedisStore) Close() error {
	if c, ok := s.client.(*redis.Client); ok {
		return c.Close()
	}
	return nil
}
