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

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/creachadair/dtdigest/pipeline"
	"github.com/creachadair/dtdigest/report"
)

func TestExcludeSetMatches(t *testing.T) {
	es := NewExcludeSet([]string{"*.tmp", "cache/**"}, false)
	tests := []struct {
		path string
		want bool
	}{
		{"a.tmp", true},
		{"dir/a.tmp", false}, // "*.tmp" does not cross a path separator
		{"cache/x/y.txt", true},
		{"src/main.go", false},
	}
	for _, tc := range tests {
		if got := es.Matches(tc.path); got != tc.want {
			t.Errorf("Matches(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}

func TestExcludeSetNoCase(t *testing.T) {
	es := NewExcludeSet([]string{"*.TMP"}, true)
	if !es.Matches("a.tmp") {
		t.Errorf("expected case-insensitive match")
	}
}

func TestDefaultPatternsMatchAtAnyDepth(t *testing.T) {
	es := NewExcludeSet(DefaultPatterns(DefaultExcludedDirs), false)
	for _, rel := range []string{"System Volume Information", "data/System Volume Information"} {
		if !es.Matches(rel) {
			t.Errorf("Matches(%q) = false, want true", rel)
		}
	}
	if es.Matches("data/kept") {
		t.Errorf("Matches(%q) = true, want false", "data/kept")
	}
}

func TestNilExcludeSetNeverMatches(t *testing.T) {
	var es *ExcludeSet
	if es.Matches("anything") {
		t.Errorf("nil ExcludeSet should never match")
	}
}

func newTestPipeline(t *testing.T) *pipeline.Pipeline {
	t.Helper()
	p, err := pipeline.New(pipeline.Config{
		BlockSize: 4096,
		Buffers:   2,
		Digests:   []string{"md5", "sha256"},
	}, nil)
	if err != nil {
		t.Fatalf("pipeline.New() failed: %v", err)
	}
	t.Cleanup(func() { p.Teardown(0) })
	return p
}

func TestWalkerProducesEntriesForFilesAndDirs(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "sub", "hello.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "ignored.tmp"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := newTestPipeline(t)
	w := New(Config{
		Root:         root,
		ExcludeFiles: NewExcludeSet([]string{"*.tmp"}, false),
	}, p)

	rep := report.NewWriter(root, report.FileColumnHeader(p.Digests()))
	if err := w.Run(context.Background(), rep, nil); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	snap := w.Counters().Snapshot()
	if snap.Files != 1 {
		t.Errorf("Files = %d, want 1", snap.Files)
	}
	if snap.Dirs != 1 {
		t.Errorf("Dirs = %d, want 1", snap.Dirs)
	}
	if snap.Ignored != 1 {
		t.Errorf("Ignored = %d, want 1", snap.Ignored)
	}
	if snap.BytesRead != 5 {
		t.Errorf("BytesRead = %d, want 5", snap.BytesRead)
	}
}

// TestDigestOneSkipsEntryOnInterrupt covers spec.md §8 scenario S6: a file
// that was mid-flight when the context was cancelled gets no report line at
// all, unlike a ReadError or WorkerError which still produce a "?" line.
func TestDigestOneSkipsEntryOnInterrupt(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}

	p := newTestPipeline(t)
	w := New(Config{Root: root}, p)
	rep := report.NewWriter(root, report.FileColumnHeader(p.Digests()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w.digestOne(ctx, rep, nil, candidate{path: path, rel: "a.txt"}, prefetched{info: info})

	outPath := filepath.Join(root, "out.thd")
	snap := w.Counters().Snapshot()
	if err := rep.Close(outPath, snap.Files, snap.Dirs, snap.Ignored, snap.Errors, snap.BytesRead); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "a.txt") {
		t.Errorf("report contains a line for the interrupted file:\n%s", data)
	}
	if snap.Files != 0 {
		t.Errorf("Files = %d, want 0 (interrupted file must not be counted as processed)", snap.Files)
	}
	if snap.Errors != 0 {
		t.Errorf("Errors = %d, want 0 (interrupted file is not a ReadError/WorkerError)", snap.Errors)
	}
}

func TestWalkerReusesBaseline(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(filepath.Join(root, "a.txt"))
	if err != nil {
		t.Fatal(err)
	}
	_, mtime, _ := fileTimes(info)

	baseline := &report.Baseline{
		Root: root,
		Entries: map[string]report.Entry{
			"a.txt": report.NewFileEntry([]string{"md5", "sha256"},
				map[string]string{"md5": strings.Repeat("d", 32), "sha256": strings.Repeat("c", 64)},
				0, mtime, 0, 0, 0, info.Size(), "a.txt"),
		},
	}

	p := newTestPipeline(t)
	w := New(Config{Root: root, Baseline: baseline}, p)

	rep := report.NewWriter(root, report.FileColumnHeader(p.Digests()))
	if err := w.Run(context.Background(), rep, nil); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if snap := w.Counters().Snapshot(); snap.BytesRead != 0 {
		t.Errorf("BytesRead = %d, want 0 (file should have been reused from baseline, not re-read)", snap.BytesRead)
	}
}
