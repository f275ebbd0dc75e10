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

package eventbus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"marketfeed/internal/logging"
)

// Producer is the minimal abstraction over a Kafka client the mirror
// needs. The production implementation wraps *kafka.Writer; tests can
// substitute a fake.
type Producer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaWriter adapts *kafka.Writer to Producer.
type KafkaWriter struct{ w *kafka.Writer }

// NewKafkaWriter returns a Producer that publishes to topic on the given
// brokers using the least-bytes balancer.
func NewKafkaWriter(brokers []string, topic string) *KafkaWriter {
	return &KafkaWriter{w: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}}
}

func (k *KafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	return k.w.WriteMessages(ctx, msgs...)
}

// Close releases the underlying writer's resources.
func (k *KafkaWriter) Close() error { return k.w.Close() }

// Mirror subscribes to one or more Bus topics and forwards every event,
// JSON-encoded, to Kafka. It exists so downstream systems (analytics,
// archival, a second consumer group) can observe the same MARKET_DATA and
// SYSTEM.* events the in-process subscribers see, without coupling the
// Bus itself to Kafka.
type Mirror struct {
	producer Producer
	logger   logging.Logger
	timeout  time.Duration
}

// NewMirror wires a Mirror. A nil logger defaults to a no-op.
func NewMirror(producer Producer, logger logging.Logger) *Mirror {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &Mirror{producer: producer, logger: logger, timeout: 5 * time.Second}
}

// Attach subscribes the Mirror to topic on bus. Marshal failures and
// publish failures are logged and otherwise swallowed — event-bus
// publication is best-effort by contract (spec §5).
func (m *Mirror) Attach(bus *Bus, topic string) (unsubscribe func()) {
	return bus.Subscribe(topic, func(ev Event) {
		body, err := json.Marshal(ev)
		if err != nil {
			m.logger.Warn("mirror marshal failed", logging.F("topic", topic), logging.F("err", err.Error()))
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()
		key := []byte(topic)
		if err := m.producer.WriteMessages(ctx, kafka.Message{Key: key, Value: body, Time: ev.Timestamp}); err != nil {
			m.logger.Warn("mirror publish failed", logging.F("topic", topic), logging.F("err", err.Error()))
		}
	})
}
