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

package record

import "time"

// Processed is a Book enriched with processing metadata — the shape the
// store persists, per the data model's "key, JSON-encoded ProcessedRecord,
// TTL" layout. Key()/SnapshotKey() are inherited from the embedded Book.
type Processed struct {
	Book
	ProcessedAt time.Time `json:"processedAt"`
	ProcessorID string    `json:"processorId"`
}
