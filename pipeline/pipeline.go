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

// Package pipeline implements the parallel streaming digest pipeline:
// a producer that reads a file in fixed-size blocks into a bounded pool of
// shared buffers, one Worker per selected digest that incrementally hashes
// the blocks it is handed, and a Coordinator that drives the two and
// assembles the result. See spec.md §§2-5 for the full design.
package pipeline

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/creachadair/dtdigest/block"
	"github.com/creachadair/dtdigest/digest"
)

// Sentinel errors, one per spec.md §7 error kind that originates in this
// package.
var (
	// ErrRead is wrapped around an I/O failure encountered mid-file.
	ErrRead = errors.New("pipeline: read error")
	// ErrWorker is wrapped around a hasher failure reported by a Worker.
	ErrWorker = errors.New("pipeline: worker error")
	// ErrProtocol indicates a Worker violated the ordering contract, e.g.
	// acknowledging the wrong sequence number. It should never happen; its
	// presence is a BufferError-class bug, fatal to the Pipeline.
	ErrProtocol = errors.New("pipeline: protocol violation")
	// ErrWorkerTimeout indicates a Worker failed to respond within the
	// configured grace period (spec.md §5).
	ErrWorkerTimeout = errors.New("pipeline: worker timeout")
	// ErrBuffer indicates a buffer pool invariant was violated (spec.md §7's
	// BufferError row). Unlike the other errors in this list, it is fatal:
	// callers should tear the Pipeline down rather than continue the walk.
	ErrBuffer = errors.New("pipeline: buffer error")
)

// DefaultWorkerGrace is used when Config.WorkerGrace is zero.
const DefaultWorkerGrace = 30 * time.Second

// Config is the Pipeline's immutable configuration, fixed at
// initialization time; per spec.md §9's design note, it is kept separate
// from the Pipeline's mutable runtime state (the buffer pool, the worker
// set, and counters owned by the caller).
type Config struct {
	// BlockSize is the size, in bytes, of each block read from a file and
	// published to every worker. Must be positive.
	BlockSize int

	// Buffers is the number of buffers in the pool, bounding how many
	// blocks may be in flight at once. Must be between [block.MinBuffers]
	// and [block.MaxBuffers].
	Buffers int

	// Digests lists the digest names to run, in the order they should
	// appear in report output. Unsupported names are dropped (see
	// digest.Validate); the list must contain at least one supported name.
	Digests []string

	// WorkerGrace bounds how long the Coordinator waits for a Worker to
	// acknowledge a block or return a result before declaring it stuck. If
	// zero, DefaultWorkerGrace is used.
	WorkerGrace time.Duration
}

// FileResult is returned by [Pipeline.DigestFile]: the digest string for
// every requested algorithm and the number of bytes consumed.
type FileResult struct {
	Digests   map[string]string
	BytesRead int64
}

// A Pipeline owns a buffer pool and one Worker per selected digest for the
// life of the process (spec.md §3, "Pipeline"). Initialize with [New],
// drive files through it with [Pipeline.DigestFile], and release its
// resources with [Pipeline.Teardown].
type Pipeline struct {
	cfg  Config
	pool *block.Pool

	mu      sync.Mutex // guards workers during abort/reset
	workers []*WorkerHandle
}

// New initializes a Pipeline. warn, if non-nil, is called once per
// unsupported digest name in cfg.Digests (spec.md §4.2 validation policy).
func New(cfg Config, warn func(name string)) (*Pipeline, error) {
	names, err := digest.Validate(cfg.Digests, warn)
	if err != nil {
		return nil, err
	}
	if cfg.WorkerGrace <= 0 {
		cfg.WorkerGrace = DefaultWorkerGrace
	}
	pool, err := block.NewPool(cfg.Buffers, cfg.BlockSize)
	if err != nil {
		return nil, err
	}
	cfg.Digests = names

	p := &Pipeline{cfg: cfg, pool: pool}
	p.workers = p.spawnWorkers()
	return p, nil
}

func (p *Pipeline) spawnWorkers() []*WorkerHandle {
	out := make([]*WorkerHandle, len(p.cfg.Digests))
	for i, name := range p.cfg.Digests {
		out[i] = newWorker(name, p.pool, p.cfg.Buffers)
	}
	return out
}

// Digests reports the validated, deduplicated digest names this Pipeline
// runs, in invocation order.
func (p *Pipeline) Digests() []string { return append([]string(nil), p.cfg.Digests...) }

// BlockSize reports the configured block size in bytes.
func (p *Pipeline) BlockSize() int { return p.cfg.BlockSize }

// PoolSize reports the configured buffer count.
func (p *Pipeline) PoolSize() int { return p.pool.Size() }

// Teardown sends QUIT to every worker and waits up to grace for each to
// exit before returning. It must be called exactly once, after the last
// DigestFile call, per spec.md §3's Pipeline lifecycle.
func (p *Pipeline) Teardown(grace time.Duration) error {
	p.mu.Lock()
	workers := p.workers
	p.workers = nil
	p.mu.Unlock()

	return quitAndWait(workers, grace)
}

// quitAndWait sends QUIT to every worker (best effort) and waits up to
// grace for each to report its liveness flag. Workers that do not exit in
// time are abandoned rather than force-terminated, since a goroutine
// cannot be killed from the outside; this mirrors spec.md §5's
// "force-terminate" step as closely as the Go runtime allows.
func quitAndWait(workers []*WorkerHandle, grace time.Duration) error {
	for _, w := range workers {
		select {
		case w.cmds <- command{tag: cmdQuit}:
		default:
			// Command channel full: QUIT is dropped for this worker, which
			// then does not exit and is abandoned once grace elapses.
		}
	}
	deadline := time.After(grace)
	for _, w := range workers {
		select {
		case <-w.alive.Ready():
		case <-deadline:
			return fmt.Errorf("%w: worker %s did not exit within grace period", ErrWorkerTimeout, w.Name)
		}
	}
	return nil
}

// abortFile discards the current worker set (which may hold inconsistent
// partial hash state after a read or worker error, spec.md §4.4) and
// replaces it with a freshly spawned set, so the next DigestFile call
// starts every worker from a clean INIT. The old workers are sent QUIT in
// the background; they are not reused.
func (p *Pipeline) abortFile() {
	p.mu.Lock()
	defer p.mu.Unlock()
	old := p.workers
	p.workers = p.spawnWorkers()
	go quitAndWait(old, p.cfg.WorkerGrace)
}

func (p *Pipeline) currentWorkers() []*WorkerHandle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.workers
}
