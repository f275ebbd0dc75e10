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

// Package config loads the pipeline's single configuration bundle from a
// YAML file with case-insensitive environment-variable overrides. It is
// an external collaborator per spec §1 — the core pipeline only ever sees
// the resulting *Config struct.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ExchangeConfig describes one exchange's connection parameters and
// symbol list, per spec §6.
type ExchangeConfig struct {
	Name                     string        `mapstructure:"name"`
	MarketType               string        `mapstructure:"marketType"`
	WSUrl                    string        `mapstructure:"wsUrl"`
	RestUrl                  string        `mapstructure:"restUrl"`
	StreamLimitPerConnection int           `mapstructure:"streamLimitPerConnection"`
	Symbols                  []string      `mapstructure:"symbols"`
	PingInterval             time.Duration `mapstructure:"pingInterval"`
	PongTimeout              time.Duration `mapstructure:"pongTimeout"`
}

// StoreConfig configures the key/value store client.
type StoreConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// CollectorConfig configures reconnect/fallback policy shared by every Collector.
type CollectorConfig struct {
	MaxReconnectAttempts int           `mapstructure:"maxReconnectAttempts"`
	ReconnectInterval    time.Duration `mapstructure:"reconnectInterval"`
	MaxReconnectBackoff  time.Duration `mapstructure:"maxReconnectBackoff"`
	RestInterval         time.Duration `mapstructure:"restInterval"`
	MaxRestBackoff       time.Duration `mapstructure:"maxRestBackoff"`
}

// BufferConfig configures every Ring Buffer instance in the pipeline.
type BufferConfig struct {
	MaxSize        int           `mapstructure:"maxSize"`
	FlushThreshold float64       `mapstructure:"flushThreshold"`
	FlushInterval  time.Duration `mapstructure:"flushInterval"`
}

// ProcessorConfig configures the Processor/Register.
type ProcessorConfig struct {
	BatchSize     int           `mapstructure:"batchSize"`
	BatchInterval time.Duration `mapstructure:"batchInterval"`
	MaxBufferSize int           `mapstructure:"maxBufferSize"`
	MaxDataAge    time.Duration `mapstructure:"maxDataAge"`
	BackupPath    string        `mapstructure:"backupPath"`
}

// KafkaConfig configures the optional event-bus mirror. Brokers empty or
// Enabled false disables the mirror entirely — the Bus itself never
// depends on Kafka being reachable.
type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// Config is the single recognized configuration bundle (spec §6).
type Config struct {
	Exchanges []ExchangeConfig `mapstructure:"exchanges"`
	Store     StoreConfig      `mapstructure:"store"`
	Collector CollectorConfig  `mapstructure:"collector"`
	Buffer    BufferConfig     `mapstructure:"buffer"`
	Processor ProcessorConfig  `mapstructure:"processor"`
	Kafka     KafkaConfig      `mapstructure:"kafka"`
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("collector.maxReconnectAttempts", 5)
	v.SetDefault("collector.reconnectInterval", 5*time.Second)
	v.SetDefault("collector.maxReconnectBackoff", 30*time.Second)
	v.SetDefault("collector.restInterval", 5*time.Second)
	v.SetDefault("collector.maxRestBackoff", 30*time.Second)
	v.SetDefault("buffer.maxSize", 1000)
	v.SetDefault("buffer.flushThreshold", 75.0)
	v.SetDefault("buffer.flushInterval", 1*time.Second)
	v.SetDefault("processor.batchSize", 100)
	v.SetDefault("processor.batchInterval", 500*time.Millisecond)
	v.SetDefault("processor.maxBufferSize", 5000)
	v.SetDefault("processor.maxDataAge", 24*time.Hour)
	v.SetDefault("processor.backupPath", "backup.jsonl")
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.topic", "marketfeed.events")
}

// Load reads path (YAML) and layers environment-variable overrides on
// top: MARKETFEED_STORE_HOST overrides store.host, case-insensitively,
// matching spec §6's "environment variables override file entries
// case-insensitively by path".
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	applyDefaults(v)

	v.SetEnvPrefix("MARKETFEED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate enforces the required fields named in spec §6; a missing
// required field is a FATAL startup error.
func (c *Config) Validate() error {
	if len(c.Exchanges) == 0 {
		return fmt.Errorf("config: at least one exchange is required")
	}
	for i, ex := range c.Exchanges {
		if ex.Name == "" {
			return fmt.Errorf("config: exchanges[%d].name is required", i)
		}
		if ex.WSUrl == "" {
			return fmt.Errorf("config: exchanges[%d].wsUrl is required", i)
		}
		if ex.StreamLimitPerConnection <= 0 {
			return fmt.Errorf("config: exchanges[%d].streamLimitPerConnection must be >= 1", i)
		}
		if len(ex.Symbols) == 0 {
			return fmt.Errorf("config: exchanges[%d].symbols must be non-empty", i)
		}
	}
	if c.Store.Host == "" {
		return fmt.Errorf("config: store.host is required")
	}
	return nil
}
