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

// Program dtdigest walks a directory tree and writes a report line per
// entry containing one or more cryptographic digests plus filesystem
// metadata. See spec.md for the full design of the streaming digest
// pipeline this program drives.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/creachadair/ctrl"
	"github.com/creachadair/dtdigest/digest"
	"github.com/creachadair/dtdigest/pipeline"
	"github.com/creachadair/dtdigest/report"
	"github.com/creachadair/dtdigest/walk"
)

var (
	selectedDigests = flag.String("digests", "md5,sha1,sha256,sha3_256", "digests to run, comma-separated")
	altDigest       = flag.String("altdigest", "", "alternate single-digest report")
	title           = flag.String("title", "", "alternate output title")
	tstamp          = flag.String("tstamp", "", "alternate output timestamp")
	blockSizeMB     = flag.Int("blocksize", 16, "block size in MB")
	numBuffers      = flag.Int("buffers", 4, "number of pool buffers")
	noCase          = flag.Bool("nocase", false, "case-insensitive exclusion matching")
	debug           = flag.Bool("debug", false, "accepted for compatibility; has no effect")
	xFiles          = flag.String("xfiles", "", "additional excluded file globs, comma-separated")
	xDirs           = flag.String("xdirs", "", "additional excluded directory globs, comma-separated")
	updateFile      = flag.String("update", "", "prior report to reuse as a baseline")
)

func init() {
	flag.Usage = func() {
		names := digest.Names()
		fmt.Fprintf(os.Stderr, `Usage: %[1]s [options] ROOTPATH

Walk the directory tree at ROOTPATH and write a digest report.

Digests available: %[2]s

Options:
`, filepath.Base(os.Args[0]), strings.Join(names, ", "))
		flag.PrintDefaults()
	}
}

func main() {
	flag.Parse()
	ctrl.Run(func() error {
		root := flag.Arg(0)
		if root == "" {
			flag.Usage()
			ctrl.Exitf(1, "a ROOTPATH argument is required")
		}
		info, err := os.Stat(root)
		if err != nil || !info.IsDir() {
			ctrl.Exitf(1, "root %q is not a directory", root)
		}
		root, err = filepath.Abs(root)
		if err != nil {
			ctrl.Exitf(1, "resolving root: %v", err)
		}

		if *blockSizeMB < 1 || *blockSizeMB >= 1024 {
			ctrl.Exitf(1, "-blocksize must be >= 1 and < 1024 MB")
		}
		if *numBuffers < 2 || *numBuffers > 32 {
			ctrl.Exitf(1, "-buffers must be between 2 and 32")
		}

		names := splitCSV(*selectedDigests)
		p, err := pipeline.New(pipeline.Config{
			BlockSize: *blockSizeMB * 1024 * 1024,
			Buffers:   *numBuffers,
			Digests:   names,
		}, func(name string) {
			log.Printf("warning: unsupported digest %q ignored", name)
		})
		if err != nil {
			ctrl.Exitf(1, "%v", err)
		}
		defer func() {
			if err := p.Teardown(pipeline.DefaultWorkerGrace); err != nil {
				log.Printf("warning: pipeline teardown: %v", err)
			}
		}()
		log.Printf("digests to run: %s", strings.Join(p.Digests(), ", "))

		alt := strings.ToLower(*altDigest)
		if alt != "" && !contains(p.Digests(), alt) {
			ctrl.Exitf(1, "-altdigest %q must be one of the selected digests", alt)
		}

		outTitle := *title
		if outTitle == "" {
			outTitle = "dtdigest-" + sanitizeForFilename(root)
		}
		outTstamp := *tstamp
		if outTstamp == "" {
			outTstamp = time.Now().UTC().Format("20060102_150405")
		}
		outName := fmt.Sprintf("%s.%s.thd", outTitle, outTstamp)
		var altName string
		if alt != "" {
			altName = fmt.Sprintf("%s.%s.%s.thd", outTitle, alt, outTstamp)
		}

		var baseline *report.Baseline
		if *updateFile != "" {
			f, err := os.Open(*updateFile)
			if err != nil {
				ctrl.Exitf(1, "opening -update file: %v", err)
			}
			b, err := report.ReadBaseline(f)
			f.Close()
			if err != nil {
				ctrl.Exitf(1, "reading -update file: %v", err)
			}
			baseline = &b
			log.Printf("update baseline: %d entries from %s", len(b.Entries), *updateFile)
		}

		xfiles := append(walk.DefaultPatterns(walk.DefaultExcludedFiles), splitCSV(*xFiles)...)
		xdirs := append(walk.DefaultPatterns(walk.DefaultExcludedDirs), splitCSV(*xDirs)...)
		w := walk.New(walk.Config{
			Root:         root,
			ExcludeFiles: walk.NewExcludeSet(xfiles, *noCase),
			ExcludeDirs:  walk.NewExcludeSet(xdirs, *noCase),
			NoCase:       *noCase,
			AltDigest:    alt,
			Baseline:     baseline,
		}, p)

		rep := report.NewWriter(root, report.FileColumnHeader(p.Digests()))
		var altWriter *report.Writer
		if alt != "" {
			altWriter = report.NewWriter(root, report.AltColumnHeader(alt))
		}

		ctx, cancel := context.WithCancel(context.Background())
		sig := make(chan os.Signal, 2)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			if _, ok := <-sig; ok {
				log.Printf("received interrupt: stopping walk")
				cancel()
			}
		}()

		start := time.Now()
		runErr := w.Run(ctx, rep, altWriter)
		elapsed := time.Since(start)
		signal.Stop(sig)

		snap := w.Counters().Snapshot()
		if err := rep.Close(outName, snap.Files, snap.Dirs, snap.Ignored, snap.Errors, snap.BytesRead); err != nil {
			log.Printf("warning: writing report: %v", err)
		}
		if altWriter != nil {
			if err := altWriter.Close(altName, snap.Files, snap.Dirs, snap.Ignored, snap.Errors, snap.BytesRead); err != nil {
				log.Printf("warning: writing alt report: %v", err)
			}
		}

		log.Printf("processed %d file(s), %d folder(s) (%d ignored, %d errors) comprising %d bytes in %s",
			snap.Files, snap.Dirs, snap.Ignored, snap.Errors, snap.BytesRead, elapsed.Round(time.Millisecond))
		fmt.Println()
		fmt.Printf("Main output: %s\n", outName)
		if altWriter != nil {
			fmt.Printf("Alt  output: %s\n", altName)
		}

		if runErr != nil {
			ctrl.Exitf(1, "walk stopped: %v", runErr)
		}
		return nil
	})
}

func splitCSV(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.ToLower(part))
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func sanitizeForFilename(root string) string {
	r := strings.ReplaceAll(root, ":", "$")
	r = strings.ReplaceAll(r, "/", "_")
	return r
}
