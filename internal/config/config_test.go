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

package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleYAML = `
exchanges:
  - name: binance
    marketType: spot
    wsUrl: wss://stream.binance.com:9443/ws
    streamLimitPerConnection: 50
    symbols: ["BTCUSDT", "ETHUSDT"]
store:
  host: localhost
  port: 6379
`

func writeTemp(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return p
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTemp(t, sampleYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Buffer.MaxSize != 1000 {
		t.Fatalf("expected default buffer.maxSize 1000, got %d", cfg.Buffer.MaxSize)
	}
	if cfg.Collector.MaxReconnectAttempts != 5 {
		t.Fatalf("expected default collector.maxReconnectAttempts 5, got %d", cfg.Collector.MaxReconnectAttempts)
	}
	if len(cfg.Exchanges) != 1 || cfg.Exchanges[0].Name != "binance" {
		t.Fatalf("expected exchange binance, got %+v", cfg.Exchanges)
	}
}

func TestLoadAppliesKafkaDefaults(t *testing.T) {
	path := writeTemp(t, sampleYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Kafka.Enabled {
		t.Fatalf("expected kafka disabled by default")
	}
	if cfg.Kafka.Topic != "marketfeed.events" {
		t.Fatalf("expected default kafka topic, got %q", cfg.Kafka.Topic)
	}
}

func TestLoadEnvOverrideIsCaseInsensitive(t *testing.T) {
	path := writeTemp(t, sampleYAML)
	t.Setenv("MARKETFEED_STORE_HOST", "redis.internal")
	t.Setenv("MARKETFEED_STORE_PORT", "6380")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.Host != "redis.internal" {
		t.Fatalf("expected env override of store.host, got %q", cfg.Store.Host)
	}
	if cfg.Store.Port != 6380 {
		t.Fatalf("expected env override of store.port, got %d", cfg.Store.Port)
	}
}

func TestValidateRejectsMissingExchanges(t *testing.T) {
	path := writeTemp(t, "store:\n  host: localhost\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for config with no exchanges")
	}
}

func TestValidateRejectsMissingSymbols(t *testing.T) {
	path := writeTemp(t, `
exchanges:
  - name: binance
    wsUrl: wss://stream.binance.com:9443/ws
    streamLimitPerConnection: 50
store:
  host: localhost
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for exchange with no symbols")
	}
}
