// Copyright 2024 The dtdigest Authors.
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

package walk

import "sync/atomic"

// Counters tracks the footer counts spec.md §7 requires: "counters files,
// dirs, ignored, errors, bytes_read are incremented accordingly and printed
// in the footer." Atomic fields are the only mutable state that needs
// synchronization per spec.md §9's design note; everything else in a
// Walker run is either immutable config or owned by the single walking
// goroutine.
type Counters struct {
	Files     atomic.Int64
	Dirs      atomic.Int64
	Ignored   atomic.Int64
	Errors    atomic.Int64
	BytesRead atomic.Int64
}

// Snapshot captures the current counter values.
type Snapshot struct {
	Files, Dirs, Ignored, Errors, BytesRead int64
}

func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		Files:     c.Files.Load(),
		Dirs:      c.Dirs.Load(),
		Ignored:   c.Ignored.Load(),
		Errors:    c.Errors.Load(),
		BytesRead: c.BytesRead.Load(),
	}
}
