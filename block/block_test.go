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

package block_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/creachadair/dtdigest/block"
)

func TestNewPoolBounds(t *testing.T) {
	tests := []struct {
		n    int
		want bool
	}{
		{1, false},
		{2, true},
		{32, true},
		{33, false},
	}
	for _, tc := range tests {
		_, err := block.NewPool(tc.n, 16)
		if got := err == nil; got != tc.want {
			t.Errorf("NewPool(%d, 16): err=%v, want ok=%v", tc.n, err, tc.want)
		}
	}
}

func TestAcquireRelease(t *testing.T) {
	p, err := block.NewPool(2, 8)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	ctx := context.Background()

	id1, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if got := p.CheckedOut(); got != 1 {
		t.Errorf("CheckedOut = %d, want 1", got)
	}
	id2, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if id1 == id2 {
		t.Fatalf("Acquire returned the same id twice: %d", id1)
	}

	// Pool is now fully checked out; a third acquire must block until a
	// release happens.
	done := make(chan int, 1)
	go func() {
		id, err := p.Acquire(ctx)
		if err != nil {
			t.Errorf("Acquire: %v", err)
			return
		}
		done <- id
	}()

	select {
	case <-done:
		t.Fatal("Acquire returned before any buffer was released")
	case <-time.After(20 * time.Millisecond):
	}

	if err := p.Release(id1); err != nil {
		t.Fatalf("Release: %v", err)
	}

	select {
	case id := <-done:
		if id != id1 {
			t.Errorf("Acquire after release = %d, want %d", id, id1)
		}
	case <-time.After(time.Second):
		t.Fatal("Acquire did not unblock after Release")
	}
}

func TestReleaseInvalid(t *testing.T) {
	p, err := block.NewPool(2, 8)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	if err := p.Release(0); !errors.Is(err, block.ErrInvalidBuffer) {
		t.Errorf("Release of free buffer: err=%v, want ErrInvalidBuffer", err)
	}

	id, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := p.Release(id); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := p.Release(id); !errors.Is(err, block.ErrInvalidBuffer) {
		t.Errorf("double Release: err=%v, want ErrInvalidBuffer", err)
	}
}

func TestAcquireCancellation(t *testing.T) {
	p, err := block.NewPool(2, 8)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if _, err := p.Acquire(ctx); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if _, err := p.Acquire(ctx); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	cancel()
	if _, err := p.Acquire(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Acquire after cancel: err=%v, want context.Canceled", err)
	}
}

func TestWithBufferAlwaysReleases(t *testing.T) {
	p, err := block.NewPool(2, 8)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	ctx := context.Background()
	boom := errors.New("boom")
	if err := p.WithBuffer(ctx, func(id int) error { return boom }); !errors.Is(err, boom) {
		t.Errorf("WithBuffer error = %v, want %v", err, boom)
	}
	if got := p.CheckedOut(); got != 0 {
		t.Errorf("CheckedOut after failing WithBuffer = %d, want 0", got)
	}
}

func TestNeverExceedsPoolSize(t *testing.T) {
	const size = 4
	p, err := block.NewPool(size, 4)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	ctx := context.Background()
	var wg sync.WaitGroup
	var mu sync.Mutex
	maxSeen := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := p.Acquire(ctx)
			if err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			mu.Lock()
			if n := p.CheckedOut(); n > maxSeen {
				maxSeen = n
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			p.Release(id)
		}()
	}
	wg.Wait()
	if maxSeen > size {
		t.Errorf("observed %d buffers checked out at once, want <= %d", maxSeen, size)
	}
}
