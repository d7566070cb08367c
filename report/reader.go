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

package report

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

var (
	elementPat  = regexp.MustCompile(`^(.+?);\{(.+?)\};(.+?);(.+?);(.+?);(.+?);(.+?);(.+?);(.*)$`)
	legacyPat   = regexp.MustCompile(`^(.+?);(.+?);(.+?);(.+?);(.+?);(.+?);(.*)$`)
	basePathPat = regexp.MustCompile(`^#\s+Base path:\s*(.*)$`)
)

// Baseline is the result of reading a prior report for --update: the root
// path it was generated from, and its entries keyed by relative path.
type Baseline struct {
	Root    string
	Entries map[string]Entry
}

// ReadBaseline parses a report written by [Writer] or by the legacy tool,
// for --update's best-effort baseline reuse (spec.md §9's Open Question:
// "best effort, size+mtime match only"). It accepts either grammar, but not
// a mix: once a line of one grammar has been seen, lines matching the other
// grammar are skipped with no error, mirroring read_dtd_report's
// IS_LEGACY/MIXED_NONCE handling in original_source/python3/dirtreedigest/utils.py.
func ReadBaseline(r io.Reader) (Baseline, error) {
	b := Baseline{Entries: make(map[string]Entry)}

	var isLegacy int // 0 = undetermined, 1 = new, -1 = legacy
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for scanner.Scan() {
		line := strings.TrimLeft(strings.TrimRight(scanner.Text(), "\n"), " \t")
		if line == "" {
			continue
		}

		if m := elementPat.FindStringSubmatch(line); m != nil {
			if isLegacy == -1 {
				continue
			}
			isLegacy = 1
			e, err := parseCurrentLine(m)
			if err != nil {
				return Baseline{}, err
			}
			b.Entries[e.RelPath] = e
			continue
		}

		if m := legacyPat.FindStringSubmatch(line); m != nil {
			if isLegacy == 1 {
				continue
			}
			isLegacy = -1
			e, err := parseLegacyLine(m)
			if err != nil {
				return Baseline{}, err
			}
			b.Entries[e.RelPath] = e
			continue
		}

		if m := basePathPat.FindStringSubmatch(line); m != nil {
			b.Root = m[1]
			continue
		}
		// Otherwise a plain comment line; ignored.
	}
	if err := scanner.Err(); err != nil {
		return Baseline{}, fmt.Errorf("report: reading baseline: %w", err)
	}
	return b, nil
}

func parseCurrentLine(m []string) (Entry, error) {
	e := Entry{
		Type:    Type(m[1][0]),
		Digests: map[string]string{},
	}
	for _, pair := range strings.Split(m[2], ",") {
		kv := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(kv) != 2 {
			return Entry{}, fmt.Errorf("report: malformed digest pair %q", pair)
		}
		e.Digests[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
		e.Names = append(e.Names, strings.TrimSpace(kv[0]))
	}
	var err error
	if e.AccessTime, err = parseHex32(m[3]); err != nil {
		return Entry{}, err
	}
	if e.ModifyTime, err = parseHex32(m[4]); err != nil {
		return Entry{}, err
	}
	if e.CreateTime, err = parseHex32(m[5]); err != nil {
		return Entry{}, err
	}
	if e.AttrStd, err = parseHex16(m[6]); err != nil {
		return Entry{}, err
	}
	if e.AttrOS, err = parseHex16(m[7]); err != nil {
		return Entry{}, err
	}
	size, err := strconv.ParseInt(strings.TrimSpace(m[8]), 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("report: invalid size field %q: %w", m[8], err)
	}
	e.Size = size
	e.RelPath = m[9]
	return e, nil
}

// parseLegacyLine parses the seven-field legacy grammar:
// md5hex;atime;mtime;ctime;wattr;size;name. A leading '?' or '-' in the md5
// field denotes an unreadable entry or a directory, respectively
// (original_source/python3/dirtreedigest/utils.py, read_dtd_report).
func parseLegacyLine(m []string) (Entry, error) {
	md5 := m[1]
	typ := TypeFile
	switch {
	case strings.HasPrefix(md5, "?"):
		typ = TypeUnreadable
	case strings.HasPrefix(md5, "-"):
		typ = TypeDirectory
	}
	e := Entry{
		Type:    typ,
		Digests: map[string]string{"md5": md5},
		Names:   []string{"md5"},
	}
	var err error
	if e.AccessTime, err = parseHex32(m[2]); err != nil {
		return Entry{}, err
	}
	if e.ModifyTime, err = parseHex32(m[3]); err != nil {
		return Entry{}, err
	}
	if e.CreateTime, err = parseHex32(m[4]); err != nil {
		return Entry{}, err
	}
	if e.AttrOS, err = parseHex16(m[5]); err != nil {
		return Entry{}, err
	}
	size, err := strconv.ParseInt(strings.TrimSpace(m[6]), 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("report: invalid size field %q: %w", m[6], err)
	}
	e.Size = size
	e.RelPath = m[7]
	return e, nil
}
