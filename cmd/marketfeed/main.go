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

// Package main wires together one Coordinator and one Processor per
// configured exchange, a shared event bus and Redis store, and Prometheus
// metrics — then runs until SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"marketfeed/internal/adapters/binance"
	"marketfeed/internal/adapters/kraken"
	"marketfeed/internal/collector"
	"marketfeed/internal/config"
	"marketfeed/internal/coordinator"
	"marketfeed/internal/errors"
	"marketfeed/internal/eventbus"
	"marketfeed/internal/logging"
	"marketfeed/internal/metrics"
	"marketfeed/internal/processor"
	"marketfeed/internal/store"
	"marketfeed/internal/transport"
	"marketfeed/pkg/record"
	"marketfeed/pkg/ringbuffer"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the pipeline's YAML configuration file")
	drainOnStart := flag.Bool("drain-on-start", false, "Replay every processor's disk backup before subscribing to live data")
	dev := flag.Bool("dev", false, "Use a human-readable development logger instead of JSON production logs")
	metricsAddr := flag.String("metrics_addr", ":9090", "Address to serve Prometheus metrics on")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("marketfeed: config: %v", err)
	}

	logger, err := newLogger(*dev)
	if err != nil {
		log.Fatalf("marketfeed: logger: %v", err)
	}
	defer syncLogger(logger)

	reg := prometheus.NewRegistry()
	sink := metrics.NewPrometheus(reg)

	metricsServer := &http.Server{Addr: *metricsAddr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
	go func() {
		logger.Info("metrics server listening", logging.F("addr", *metricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", logging.F("error", err.Error()))
		}
	}()

	st := store.NewRedisStore(cfg.Store)
	bus := eventbus.New(256)

	var kafkaWriter *eventbus.KafkaWriter
	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) > 0 {
		kafkaWriter = eventbus.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		mirror := eventbus.NewMirror(kafkaWriter, logger)
		mirror.Attach(bus, eventbus.TopicMarketData)
		mirror.Attach(bus, eventbus.TopicStateChange)
		mirror.Attach(bus, eventbus.TopicErrorEscalated)
		logger.Info("kafka mirror attached", logging.F("brokers", cfg.Kafka.Brokers), logging.F("topic", cfg.Kafka.Topic))
	}

	pipelines := make([]*exchangePipeline, 0, len(cfg.Exchanges))
	for _, ex := range cfg.Exchanges {
		p, err := newExchangePipeline(ex, cfg, st, bus, logger, sink)
		if err != nil {
			logger.Error("exchange pipeline wiring failed", logging.F("exchange", ex.Name), logging.F("error", err.Error()))
			shutdownMetricsServer(metricsServer, logger)
			os.Exit(1)
		}
		pipelines = append(pipelines, p)
	}

	ctx := context.Background()
	if *drainOnStart {
		for _, p := range pipelines {
			if err := p.processor.DrainBackup(ctx); err != nil {
				logger.Warn("backup drain failed at startup", logging.F("exchange", p.exchangeID), logging.F("error", err.Error()))
			}
		}
	}

	exitCode := 0
	for _, p := range pipelines {
		p.processor.Start(ctx)
		if err := p.coordinator.Start(ctx); err != nil {
			logger.Error("coordinator start failed", logging.F("exchange", p.exchangeID), logging.F("error", err.Error()))
			exitCode = 1
		}
	}

	if exitCode != 0 {
		for _, p := range pipelines {
			p.coordinator.Stop()
			p.processor.Stop()
		}
		_ = st.Close()
		if kafkaWriter != nil {
			_ = kafkaWriter.Close()
		}
		shutdownMetricsServer(metricsServer, logger)
		os.Exit(exitCode)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutdown signal received")
	for _, p := range pipelines {
		p.coordinator.Stop()
		p.processor.Stop()
	}
	if err := st.Close(); err != nil {
		logger.Warn("store close failed", logging.F("error", err.Error()))
	}
	if kafkaWriter != nil {
		if err := kafkaWriter.Close(); err != nil {
			logger.Warn("kafka writer close failed", logging.F("error", err.Error()))
		}
	}
	shutdownMetricsServer(metricsServer, logger)
	logger.Info("marketfeed stopped cleanly")
}

// exchangePipeline bundles one exchange's Coordinator and Processor so
// main can start, drain, and stop them uniformly.
type exchangePipeline struct {
	exchangeID  string
	coordinator *coordinator.Coordinator
	processor   *processor.Processor
}

// escalatorRef is a forward reference to a Coordinator that does not exist
// yet at the point the Reporter handed to its own Collectors must be
// constructed: the Reporter is built first with escalatorRef as its
// Escalator, then co is assigned once the Coordinator itself is built.
type escalatorRef struct {
	co *coordinator.Coordinator
}

func (e *escalatorRef) Escalate(componentID string, err errors.Err) {
	if e.co != nil {
		e.co.Escalate(componentID, err)
	}
}

func newExchangePipeline(ex config.ExchangeConfig, cfg *config.Config, st store.Writer, bus *eventbus.Bus,
	logger logging.Logger, sink metrics.Sink) (*exchangePipeline, error) {
	marketType := record.MarketType(ex.MarketType)
	if marketType == "" {
		marketType = record.MarketSpot
	}

	adapter, err := buildAdapter(ex.Name, marketType, ex.StreamLimitPerConnection, ex.WSUrl)
	if err != nil {
		return nil, err
	}
	dialer := transport.NewWebSocketDialer(transport.DefaultConfig())

	exLogger := logger.With(logging.F("exchange", ex.Name))
	ref := &escalatorRef{}
	collectorReport := errors.NewReporter(exLogger, sink, ref)

	reconnectCfg := collector.ReconnectConfig{
		MaxReconnectAttempts: cfg.Collector.MaxReconnectAttempts,
		ReconnectInterval:    cfg.Collector.ReconnectInterval,
		MaxReconnectBackoff:  cfg.Collector.MaxReconnectBackoff,
		RestInterval:         cfg.Collector.RestInterval,
		MaxRestBackoff:       cfg.Collector.MaxRestBackoff,
	}

	factory := func(id string, symbols []string) *collector.Collector {
		buf := ringbuffer.New[record.Book](ringbuffer.Config{
			MaxSize:        cfg.Buffer.MaxSize,
			FlushThreshold: cfg.Buffer.FlushThreshold,
			FlushInterval:  cfg.Buffer.FlushInterval,
		}, discardBookBatch, nil)
		return collector.New(id, symbols, adapter, dialer, nil, buf, bus, exLogger, sink, collectorReport, reconnectCfg)
	}

	co := coordinator.New(ex.Name, ex.Symbols, ex.StreamLimitPerConnection, factory, exLogger, collectorReport)
	ref.co = co

	procReport := errors.NewReporter(exLogger, sink, nil)
	procCfg := cfg.Processor
	procCfg.BackupPath = perExchangeBackupPath(cfg.Processor.BackupPath, ex.Name)
	proc := processor.New(ex.Name+"-processor", ex.Name, cfg.Buffer, procCfg, st, bus, exLogger, sink, procReport)

	return &exchangePipeline{exchangeID: ex.Name, coordinator: co, processor: proc}, nil
}

// discardBookBatch is the flush sink for every Collector's Ring Buffer.
// Accepted records already reach the Processor via an individual
// eventbus.TopicMarketData publish per record (see internal/collector's
// handleOrderbook); the buffer's own threshold/periodic flush exists only
// to bound memory and trigger BUFFER.FULL, so its sink has nothing left to
// do with the batch.
func discardBookBatch(context.Context, []record.Book) error { return nil }

// perExchangeBackupPath namespaces the configured backup file per exchange
// so two Processors never interleave writes to the same file.
func perExchangeBackupPath(base, exchangeID string) string {
	if base == "" {
		return ""
	}
	if idx := strings.LastIndex(base, "."); idx > 0 {
		return base[:idx] + "-" + exchangeID + base[idx:]
	}
	return base + "-" + exchangeID
}

func buildAdapter(name string, marketType record.MarketType, streamLimit int, wsURL string) (collector.Adapter, error) {
	switch strings.ToLower(name) {
	case "binance":
		return binance.New(marketType, streamLimit, wsURL), nil
	case "kraken":
		return kraken.New(marketType, streamLimit, wsURL), nil
	default:
		return nil, fmt.Errorf("main: no adapter registered for exchange %q", name)
	}
}

func newLogger(dev bool) (*logging.ZapLogger, error) {
	if dev {
		return logging.NewDevelopment()
	}
	return logging.NewProduction()
}

func syncLogger(logger *logging.ZapLogger) {
	// Sync on stdout/stderr commonly returns an inappropriate-ioctl error
	// under a non-TTY output; it is not a real failure and is intentionally
	// swallowed here rather than surfaced at shutdown.
	_ = logger.Sync()
}

func shutdownMetricsServer(srv *http.Server, logger logging.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("metrics server shutdown failed", logging.F("error", err.Error()))
	}
}
