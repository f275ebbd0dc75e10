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

package collector

import (
	"context"

	"marketfeed/pkg/record"
)

// RestPoller is the external collaborator a Collector falls back to once
// its reconnect budget is exhausted (spec §4.3 FALLBACK state). With a nil
// RestPoller the Collector still enters FALLBACK, but no REST poll is made:
// it only retries the streaming connection every RestInterval until it
// reconnects or is stopped.
type RestPoller interface {
	Poll(ctx context.Context, symbols []string) ([]record.Book, error)
}
