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
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/creachadair/dtdigest/digest"
	"github.com/creachadair/dtdigest/pipeline"
	"github.com/creachadair/dtdigest/report"
	"github.com/creachadair/taskgroup"
)

// PrefetchWidth bounds how many files' metadata the Walker stats
// concurrently ahead of the sequential digest pass (see Run).
const PrefetchWidth = 8

// Config configures a Walker.
type Config struct {
	Root         string
	ExcludeFiles *ExcludeSet
	ExcludeDirs  *ExcludeSet
	NoCase       bool

	// AltDigest, if non-empty, must be one of Pipeline.Digests(); a second
	// line using only this digest is written, for every entry, to the alt
	// writer passed to Run.
	AltDigest string

	// Baseline, if non-nil, is consulted before re-digesting a file whose
	// size and modify time are unchanged (spec.md §9: "best effort,
	// size+mtime match only, digest recomputed on any mismatch").
	Baseline *report.Baseline
}

// Walker drives a pipeline.Pipeline over the tree rooted at Config.Root,
// writing one report.Entry per filesystem entry and tracking Counters.
// It is the "surrounding directory-walk driver" spec.md §1 calls an
// external collaborator to the pipeline core.
type Walker struct {
	cfg      Config
	pipeline *pipeline.Pipeline
	counters Counters
}

// New builds a Walker that drives p.
func New(cfg Config, p *pipeline.Pipeline) *Walker {
	return &Walker{cfg: cfg, pipeline: p}
}

// Counters returns the running counters for this Walker's Run.
func (w *Walker) Counters() *Counters { return &w.counters }

type candidate struct {
	path string
	rel  string
}

type prefetched struct {
	info fs.FileInfo
	err  error
}

// Run walks Config.Root, writing directory lines to rep (and alt, if
// non-nil) as they are discovered, then digesting regular files one at a
// time through the Pipeline — strictly sequentially, per spec.md §5's
// "files are processed one at a time through the same Worker set" — after
// a bounded pool of goroutines has stat'ed every file ahead of that
// sequential pass. Errors reading individual files are folded into the
// Errors counter and "?" report lines, and errors walking the tree into the
// Errors counter alone (no report line), rather than aborting the whole
// run. A fatal pipeline error ([pipeline.ErrBuffer], [pipeline.ErrProtocol])
// stops the run and is returned, as is ctx.Err() if ctx was cancelled.
func (w *Walker) Run(ctx context.Context, rep, alt *report.Writer) error {
	var files []candidate

	root := w.cfg.Root
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			w.counters.Errors.Add(1)
			return nil
		}
		rel := report.RelativePath(root, filepath.ToSlash(path))

		if d.IsDir() {
			if path == root {
				return nil
			}
			if w.cfg.ExcludeDirs.Matches(rel) {
				w.counters.Ignored.Add(1)
				return filepath.SkipDir
			}
			w.counters.Dirs.Add(1)
			w.writeDirEntry(rep, alt, rel)
			return nil
		}

		if !d.Type().IsRegular() {
			w.counters.Ignored.Add(1)
			return nil
		}
		if w.cfg.ExcludeFiles.Matches(rel) {
			w.counters.Ignored.Add(1)
			return nil
		}
		files = append(files, candidate{path: path, rel: rel})
		return nil
	})
	if err != nil {
		return err
	}

	prefetch := make([]prefetched, len(files))
	g, run := taskgroup.New(nil).Limit(PrefetchWidth)
	for i, c := range files {
		i, c := i, c
		run(func() error {
			info, err := os.Lstat(c.path)
			prefetch[i] = prefetched{info: info, err: err}
			return nil
		})
	}
	g.Wait()

	for i, c := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.digestOne(ctx, rep, alt, c, prefetch[i]); err != nil {
			return err
		}
	}
	return ctx.Err()
}

func (w *Walker) writeDirEntry(rep, alt *report.Writer, rel string) {
	names := w.pipeline.Digests()
	lens := w.hexLens(names)
	e := report.NewSentinelEntry(report.TypeDirectory, names, lens, 0, 0, 0, 0, 0, rel)
	rep.WriteEntry(e)
	if alt != nil && w.cfg.AltDigest != "" {
		ae := report.NewSentinelEntry(report.TypeDirectory, []string{w.cfg.AltDigest}, lens, 0, 0, 0, 0, 0, rel)
		alt.WriteEntry(ae)
	}
}

func (w *Walker) writeUnreadable(rep, alt *report.Writer, rel string) {
	w.counters.Errors.Add(1)
	names := w.pipeline.Digests()
	lens := w.hexLens(names)
	e := report.NewSentinelEntry(report.TypeUnreadable, names, lens, 0, 0, 0, 0, 0, rel)
	rep.WriteEntry(e)
	if alt != nil && w.cfg.AltDigest != "" {
		ae := report.NewSentinelEntry(report.TypeUnreadable, []string{w.cfg.AltDigest}, lens, 0, 0, 0, 0, 0, rel)
		alt.WriteEntry(ae)
	}
}

// hexLens reports each name's output hex length by finalizing a fresh,
// empty hasher, so sentinel rows pad with the right number of '-'/'?'
// characters per digest (spec.md §6).
func (w *Walker) hexLens(names []string) map[string]int {
	lens := make(map[string]int, len(names))
	for _, n := range names {
		if h, ok := digest.New(n); ok {
			lens[n] = len(h.Finalize())
		}
	}
	return lens
}

func (w *Walker) digestOne(ctx context.Context, rep, alt *report.Writer, c candidate, pf prefetched) error {
	info := pf.info
	if pf.err != nil {
		w.writeUnreadable(rep, alt, c.rel)
		return nil
	}

	if base, ok := w.reuseBaseline(c.rel, info); ok {
		w.counters.Files.Add(1)
		rep.WriteEntry(base)
		if alt != nil && w.cfg.AltDigest != "" {
			w.writeAltFromEntry(alt, base)
		}
		return nil
	}

	f, err := os.Open(c.path)
	if err != nil {
		w.writeUnreadable(rep, alt, c.rel)
		return nil
	}
	result, err := w.pipeline.DigestFile(ctx, f)
	f.Close()
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			// Interrupted (spec.md §7): unlike ReadError/WorkerError, the
			// file in flight when the signal arrived gets no report line
			// at all, per spec.md §8 scenario S6.
			return nil
		}
		if errors.Is(err, pipeline.ErrBuffer) || errors.Is(err, pipeline.ErrProtocol) {
			return err // fatal to the Pipeline: no line, stop the walk
		}
		w.writeUnreadable(rep, alt, c.rel)
		return nil
	}

	w.counters.Files.Add(1)
	w.counters.BytesRead.Add(result.BytesRead)

	atime, mtime, ctime := fileTimes(info)
	names := w.pipeline.Digests()
	e := report.NewFileEntry(names, result.Digests, atime, mtime, ctime, standardAttrBits(info), osAttrBits(info), result.BytesRead, c.rel)
	rep.WriteEntry(e)
	if alt != nil && w.cfg.AltDigest != "" {
		w.writeAltFromEntry(alt, e)
	}
	return nil
}

func (w *Walker) writeAltFromEntry(alt *report.Writer, e report.Entry) {
	alt.WriteEntry(report.NewFileEntry([]string{w.cfg.AltDigest}, map[string]string{w.cfg.AltDigest: e.Digests[w.cfg.AltDigest]},
		e.AccessTime, e.ModifyTime, e.CreateTime, e.AttrStd, e.AttrOS, e.Size, e.RelPath))
}

// reuseBaseline looks up rel in the --update baseline and, if its size and
// modify time match the current filesystem state exactly and it holds every
// digest this run selects, returns the stored entry (listing this run's
// digests) to reuse in place of re-digesting the file.
func (w *Walker) reuseBaseline(rel string, info fs.FileInfo) (report.Entry, bool) {
	if w.cfg.Baseline == nil {
		return report.Entry{}, false
	}
	prior, ok := w.cfg.Baseline.Entries[rel]
	if !ok || prior.Type != report.TypeFile {
		return report.Entry{}, false
	}
	_, mtime, _ := fileTimes(info)
	if prior.Size != info.Size() || prior.ModifyTime != mtime {
		return report.Entry{}, false
	}
	names := w.pipeline.Digests()
	for _, n := range names {
		if prior.Digests[n] == "" {
			return report.Entry{}, false
		}
	}
	prior.Names = names
	return prior, true
}
