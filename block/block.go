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

// Package block defines the buffer pool and block-descriptor types shared
// by the digest pipeline's producer, coordinator, and workers.
//
// A [Pool] owns a fixed set of fixed-capacity buffers. The pipeline reads a
// file's bytes sequentially into pool buffers, one block at a time, and
// publishes each filled buffer to every digest worker as a [Descriptor].
// Buffers are recycled once every worker has acknowledged consuming the
// block they describe; the pool never grows, so peak memory for a scan is
// bounded by buffer count times buffer capacity regardless of file size.
package block

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/creachadair/mds/mapset"
)

// MinBuffers and MaxBuffers bound the number of buffers a [Pool] may be
// constructed with.
const (
	MinBuffers = 2
	MaxBuffers = 32
)

// ErrInvalidBuffer is returned by [Pool.Release] when the given id does not
// name a buffer that is currently checked out.
var ErrInvalidBuffer = errors.New("block: invalid buffer")

// A Descriptor identifies one filled block: the buffer holding its bytes,
// how many of those bytes are valid, and the block's position in the
// file's sequence. Sequence numbers start at 0 and increase by 1 per block
// within a file; every worker must observe them in that exact order with
// no gaps and no duplicates.
type Descriptor struct {
	Seq    int // sequence number within the current file
	Buffer int // buffer id holding the block's bytes
	Len    int // number of valid bytes in the buffer, 0 < Len <= block size
}

// A Pool is a fixed set of reusable byte buffers. It is safe for concurrent
// use, though the pipeline design calls for exactly one acquirer (the
// Coordinator) at a time.
type Pool struct {
	blockSize int
	bufs      [][]byte

	free chan int // ids of buffers currently free for acquisition

	mu  sync.Mutex      // guards out
	out mapset.Set[int] // ids currently checked out
}

// NewPool constructs a pool of n buffers, each blockSize bytes. n must be
// between [MinBuffers] and [MaxBuffers] inclusive, and blockSize must be
// positive.
func NewPool(n, blockSize int) (*Pool, error) {
	if n < MinBuffers || n > MaxBuffers {
		return nil, fmt.Errorf("block: buffer count %d out of range [%d,%d]", n, MinBuffers, MaxBuffers)
	}
	if blockSize <= 0 {
		return nil, fmt.Errorf("block: invalid block size %d", blockSize)
	}
	p := &Pool{
		blockSize: blockSize,
		bufs:      make([][]byte, n),
		free:      make(chan int, n),
		out:       mapset.New[int](),
	}
	for i := range p.bufs {
		p.bufs[i] = make([]byte, blockSize)
		p.free <- i
	}
	return p, nil
}

// Size reports the configured number of buffers in the pool.
func (p *Pool) Size() int { return cap(p.free) }

// BlockSize reports the capacity of each buffer, in bytes.
func (p *Pool) BlockSize() int { return p.blockSize }

// CheckedOut reports how many buffers are currently leased out. It exists
// chiefly to support the bounded-memory property test (spec.md §8 item 3);
// callers on the hot path have no need of it.
func (p *Pool) CheckedOut() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.out.Len()
}

// Acquire blocks until a buffer is free, then marks it checked out and
// returns its id. It returns ctx.Err() if ctx is done before a buffer
// becomes available.
func (p *Pool) Acquire(ctx context.Context) (int, error) {
	select {
	case id := <-p.free:
		p.mu.Lock()
		p.out.Add(id)
		p.mu.Unlock()
		return id, nil
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}

// Release returns buffer id to the free set. It reports [ErrInvalidBuffer]
// if id is not currently checked out.
func (p *Pool) Release(id int) error {
	p.mu.Lock()
	if !p.out.Has(id) {
		p.mu.Unlock()
		return fmt.Errorf("%w: id %d", ErrInvalidBuffer, id)
	}
	p.out.Remove(id)
	p.mu.Unlock()
	p.free <- id
	return nil
}

// Bytes returns the full-capacity backing slice for buffer id. Callers must
// only read or write the bytes of a buffer they currently hold checked out,
// per the pool's handoff protocol (see package pipeline).
func (p *Pool) Bytes(id int) []byte { return p.bufs[id] }

// WithBuffer acquires a buffer, invokes f with its id, and releases the
// buffer on every exit path from f, including a panic propagated out of f.
func (p *Pool) WithBuffer(ctx context.Context, f func(id int) error) error {
	id, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer p.Release(id)
	return f(id)
}
