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
	"sync"
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	bus := New(8)
	var mu sync.Mutex
	var got []Event
	unsub := bus.Subscribe(TopicMarketData, func(ev Event) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
	})
	defer unsub()

	bus.Publish(TopicMarketData, "hello")

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n == 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0].Payload != "hello" {
		t.Fatalf("expected 1 delivered event with payload 'hello', got %+v", got)
	}
}

func TestPublishOverflowDropsAndCounts(t *testing.T) {
	bus := New(1)
	block := make(chan struct{})
	bus.Subscribe("T", func(Event) { <-block })

	// first event is picked up by the subscriber goroutine and blocks it;
	// subsequent events queue then overflow once the channel buffer (1) fills.
	for i := 0; i < 5; i++ {
		bus.Publish("T", i)
	}
	time.Sleep(20 * time.Millisecond)
	close(block)

	if bus.Overflow() == 0 {
		t.Fatalf("expected some events to overflow, got 0")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := New(8)
	var mu sync.Mutex
	count := 0
	unsub := bus.Subscribe("T", func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	bus.Publish("T", 1)
	time.Sleep(10 * time.Millisecond)
	unsub()
	bus.Publish("T", 2)
	time.Sleep(10 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Fatalf("expected exactly 1 delivery before unsubscribe, got %d", count)
	}
}
