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
	"context"
	"fmt"
	"io"
	"time"

	"github.com/creachadair/dtdigest/block"
)

// DigestFile runs the per-file Coordinator protocol of spec.md §4.5 over r:
// broadcast INIT, read and publish blocks leasing buffers from the pool,
// await an ACK from every worker per block before recycling its buffer,
// then broadcast RESULT and collect the final digests.
//
// Reads are pipelined with hashing up to the pool size (spec.md §4.5,
// "Pipelining"): the Coordinator keeps reading new blocks into free
// buffers without waiting for their ACKs, only blocking on the oldest
// still-unacknowledged block once every buffer is checked out or the file
// has reached EOF. With pool size P, at most P blocks are in flight at
// once; P=1 degrades to strict fill/hash/release.
//
// On a read error or a worker failure, the current worker set is discarded
// (see abortFile) and the returned error wraps [ErrRead] or [ErrWorker]
// respectively; callers should treat the file as unreadable (spec.md §7)
// and continue the walk. A context cancellation observed between blocks,
// while waiting for a buffer, or while waiting on a worker aborts the file
// the same way and returns ctx.Err(); a read already in progress is not
// interrupted, and an error it returns is wrapped in [ErrRead]. Every
// abort path releases the buffers of blocks still pending.
func (p *Pipeline) DigestFile(ctx context.Context, r io.Reader) (FileResult, error) {
	workers := p.currentWorkers()

	for _, w := range workers {
		w.cmds <- command{tag: cmdInit, digest: w.Name}
	}

	prod := newProducer(r)
	pending := make([]block.Descriptor, 0, p.pool.Size())
	var bytesRead int64
	seq := 0
	eof := false

	releasePending := func() {
		for _, d := range pending {
			p.pool.Release(d.Buffer)
		}
		pending = nil
	}

	for !eof || len(pending) > 0 {
		if err := ctx.Err(); err != nil {
			releasePending()
			p.abortFile()
			return FileResult{}, err
		}

		if !eof && len(pending) < p.pool.Size() {
			buf, err := p.pool.Acquire(ctx) // never blocks: len(pending) < Size guarantees a free buffer
			if err != nil {
				releasePending()
				p.abortFile()
				return FileResult{}, err
			}
			n, rerr := prod.readInto(p.pool.Bytes(buf))
			if rerr != nil {
				p.pool.Release(buf)
				releasePending()
				p.abortFile()
				return FileResult{}, fmt.Errorf("%w: %v", ErrRead, rerr)
			}
			if n == 0 {
				p.pool.Release(buf)
				eof = true
				continue
			}
			desc := block.Descriptor{Seq: seq, Buffer: buf, Len: n}
			for _, w := range workers {
				w.cmds <- command{tag: cmdProcess, block: desc}
			}
			pending = append(pending, desc)
			bytesRead += int64(n)
			seq++
			continue
		}

		// Every buffer is checked out, or there is nothing left to read:
		// drain the oldest still-unacknowledged block before making
		// progress any other way.
		oldest := pending[0]
		pending = pending[1:]
		if err := p.awaitAcks(ctx, workers, oldest.Seq); err != nil {
			p.pool.Release(oldest.Buffer)
			releasePending()
			p.abortFile()
			return FileResult{}, err
		}
		for _, w := range workers {
			w.cmds <- command{tag: cmdFree, buffer: oldest.Buffer}
		}
		if err := p.pool.Release(oldest.Buffer); err != nil {
			// A double-release or unknown buffer id is a pool invariant
			// violation: fatal, per spec.md §7's BufferError row.
			return FileResult{}, fmt.Errorf("%w: %v", ErrBuffer, err)
		}
	}

	for _, w := range workers {
		w.cmds <- command{tag: cmdResult}
	}
	results, err := p.awaitResults(ctx, workers)
	if err != nil {
		p.abortFile()
		return FileResult{}, err
	}

	return FileResult{Digests: results, BytesRead: bytesRead}, nil
}

// awaitAcks waits for every worker to acknowledge block seq, in worker
// order. Workers are independent actors with their own FIFO output
// channel, so receiving from them one at a time (rather than via a
// fan-in select) still observes each worker's events in the order that
// worker produced them; spec.md §4.5 step (e) allows ACKs to arrive "in
// any order" across workers, which this satisfies since no worker is kept
// waiting on another's channel.
func (p *Pipeline) awaitAcks(ctx context.Context, workers []*WorkerHandle, seq int) error {
	for _, w := range workers {
		ev, err := p.recv(ctx, w)
		if err != nil {
			return err
		}
		switch ev.kind {
		case evAck:
			if ev.seq != seq {
				return fmt.Errorf("%w: worker %s acked seq %d, want %d", ErrProtocol, w.Name, ev.seq, seq)
			}
		case evError:
			return fmt.Errorf("%w: %s: %v", ErrWorker, w.Name, ev.err)
		default:
			return fmt.Errorf("%w: worker %s sent unexpected event while awaiting ACK", ErrProtocol, w.Name)
		}
	}
	return nil
}

// awaitResults waits for every worker's final digest after RESULT.
func (p *Pipeline) awaitResults(ctx context.Context, workers []*WorkerHandle) (map[string]string, error) {
	results := make(map[string]string, len(workers))
	for _, w := range workers {
		ev, err := p.recv(ctx, w)
		if err != nil {
			return nil, err
		}
		switch ev.kind {
		case evDigest:
			results[ev.name] = ev.hex
		case evError:
			return nil, fmt.Errorf("%w: %s: %v", ErrWorker, w.Name, ev.err)
		default:
			return nil, fmt.Errorf("%w: worker %s sent unexpected event while awaiting RESULT", ErrProtocol, w.Name)
		}
	}
	return results, nil
}

// recv waits for the next event from w, bounded by ctx and the
// Pipeline's configured worker grace period (spec.md §5).
func (p *Pipeline) recv(ctx context.Context, w *WorkerHandle) (event, error) {
	timer := time.NewTimer(p.cfg.WorkerGrace)
	defer timer.Stop()
	select {
	case ev := <-w.out:
		return ev, nil
	case <-ctx.Done():
		return event{}, ctx.Err()
	case <-timer.C:
		return event{}, fmt.Errorf("%w: worker %s", ErrWorkerTimeout, w.Name)
	}
}
