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

package pipeline

import (
	"fmt"

	"github.com/creachadair/dtdigest/block"
	"github.com/creachadair/dtdigest/digest"
	"github.com/creachadair/msync"
)

// workerState is the per-file state machine described in spec.md §4.3.
type workerState int

const (
	stateIdle workerState = iota
	stateHashing
	stateFailed // hasher errored; discard PROCESS until QUIT
)

// A WorkerHandle is the Coordinator's view of one digest worker: a digest
// name, its command and event channels, and a liveness flag. One
// WorkerHandle exists per selected digest (spec.md §3) until a failed file
// makes the Pipeline replace the whole set (see abortFile); it is fed one
// file's worth of blocks at a time.
type WorkerHandle struct {
	Name string

	cmds  chan command
	out   chan event
	alive *msync.Flag[any] // set once the worker's goroutine has exited
}

// newWorker starts a Worker actor goroutine reading from a shared buffer
// pool and returns the handle the Coordinator drives it through. chanCap
// should be at least the pool size so that a full pipeline of in-flight
// blocks never blocks on the command channel itself (spec.md §5).
func newWorker(name string, pool *block.Pool, chanCap int) *WorkerHandle {
	w := &WorkerHandle{
		Name:  name,
		cmds:  make(chan command, chanCap),
		out:   make(chan event, chanCap),
		alive: msync.NewFlag[any](),
	}
	go w.run(pool)
	return w
}

// run is the Worker's message loop. It terminates only on cmdQuit,
// matching the "Terminal: on QUIT, exits the process" rule in spec.md §4.3
// (here, the goroutine rather than an OS process).
func (w *WorkerHandle) run(pool *block.Pool) {
	defer w.alive.Set(nil)

	state := stateIdle
	var hasher digest.Incremental

	for cmd := range w.cmds {
		switch cmd.tag {
		case cmdInit:
			h, ok := digest.New(cmd.digest)
			if !ok {
				w.out <- event{kind: evError, name: w.Name, err: fmt.Errorf("unknown digest %q", cmd.digest)}
				state = stateFailed
				continue
			}
			hasher = h
			state = stateHashing

		case cmdProcess:
			if state != stateHashing {
				continue // discarded per spec.md §4.3 failure handling
			}
			if err := w.update(hasher, pool, cmd.block); err != nil {
				w.out <- event{kind: evError, name: w.Name, err: err}
				state = stateFailed
				continue
			}
			w.out <- event{kind: evAck, seq: cmd.block.Seq}

		case cmdFree:
			// Advisory only: by the time FREE arrives the Worker has
			// already ACKed the corresponding block and must not touch
			// the buffer again before the next PROCESS.

		case cmdResult:
			if state != stateHashing {
				continue
			}
			w.out <- event{kind: evDigest, name: w.Name, hex: hasher.Finalize()}
			state = stateIdle
			hasher = nil

		case cmdQuit:
			return
		}
	}
}

// update feeds one block into hasher, converting any panic raised by the
// underlying hash implementation into a returned error (spec.md §4.3:
// "any exception raised by the hasher turns into a WORKER_ERROR").
func (w *WorkerHandle) update(hasher digest.Incremental, pool *block.Pool, b block.Descriptor) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker %s: hashing block %d: %v", w.Name, b.Seq, r)
		}
	}()
	hasher.Update(pool.Bytes(b.Buffer)[:b.Len])
	return nil
}
