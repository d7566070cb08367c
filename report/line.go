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

// Package report implements the Digest Report Line Builder (spec.md §4.6,
// C6) and the reader/writer for the report grammars described in spec.md
// §6: the current digest-pair grammar and the legacy single-md5 grammar
// consumed only by --update.
package report

import (
	"fmt"
	"path"
	"strconv"
	"strings"
)

// Type discriminates an Entry's kind (spec.md §6 column T).
type Type byte

const (
	TypeFile      Type = 'F'
	TypeDirectory Type = 'D'
	TypeUnreadable Type = '?'
)

// Entry is one report line's decoded content.
type Entry struct {
	Type Type

	// Digests holds digest name -> hex string, in Names order. For
	// TypeDirectory and TypeUnreadable entries the values are sentinels
	// (see sentinelFor).
	Digests map[string]string
	Names   []string // the order digests were selected, and appear, in

	AccessTime uint32 // seconds since epoch
	ModifyTime uint32
	CreateTime uint32
	AttrStd    uint16
	AttrOS     uint16
	Size       int64

	// RelPath is POSIX-style, relative to the scan root.
	RelPath string
}

// sentinelFor returns the placeholder value an entry of typ uses for a
// digest slot of the given hex length, per spec.md §6 "Sentinels for
// non-file entries".
func sentinelFor(typ Type, hexLen int) string {
	switch typ {
	case TypeDirectory:
		return strings.Repeat("-", hexLen)
	case TypeUnreadable:
		return strings.Repeat("?", hexLen)
	default:
		return ""
	}
}

// BuildLine assembles one report line for e following spec.md §6's grammar:
//
//	T;{D1:hex,D2:hex,...};aaaaaaaa;mmmmmmmm;cccccccc;SSSS;WWWW;      size;relative/name
func BuildLine(e Entry) string {
	var digestPairs []string
	for _, name := range e.Names {
		val := e.Digests[name]
		digestPairs = append(digestPairs, name+":"+val)
	}

	return fmt.Sprintf("%c;{%s};%08x;%08x;%08x;%04x;%04x;%10d;%s",
		e.Type,
		strings.Join(digestPairs, ","),
		e.AccessTime,
		e.ModifyTime,
		e.CreateTime,
		e.AttrStd,
		e.AttrOS,
		e.Size,
		unixifyPath(e.RelPath),
	)
}

// NewFileEntry builds an Entry of TypeFile from the given digests (in
// names order) and metadata.
func NewFileEntry(names []string, digests map[string]string, atime, mtime, ctime uint32, attrStd, attrOS uint16, size int64, relPath string) Entry {
	return Entry{
		Type:       TypeFile,
		Names:      names,
		Digests:    digests,
		AccessTime: atime,
		ModifyTime: mtime,
		CreateTime: ctime,
		AttrStd:    attrStd,
		AttrOS:     attrOS,
		Size:       size,
		RelPath:    relPath,
	}
}

// NewSentinelEntry builds a directory or unreadable-entry marker line: every
// digest slot carries the sentinel value for typ, sized to that digest's
// own hex length via hexLens (spec.md §6: "each digest slot carries a
// string of '-'/'?' characters matching its hex length").
func NewSentinelEntry(typ Type, names []string, hexLens map[string]int, atime, mtime, ctime uint32, attrStd, attrOS uint16, relPath string) Entry {
	digests := make(map[string]string, len(names))
	for _, n := range names {
		digests[n] = sentinelFor(typ, hexLens[n])
	}
	return Entry{
		Type:       typ,
		Names:      names,
		Digests:    digests,
		AccessTime: atime,
		ModifyTime: mtime,
		CreateTime: ctime,
		AttrStd:    attrStd,
		AttrOS:     attrOS,
		RelPath:    relPath,
	}
}

func unixifyPath(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}

// RelativePath computes elem's path relative to root, POSIX-style, matching
// the original's get_relative_path (original_source python3/dirtreedigest/utils.py).
func RelativePath(root, elem string) string {
	root = unixifyPath(path.Clean(root))
	elem = unixifyPath(path.Clean(elem))
	rel := strings.TrimPrefix(elem, root)
	if rel != "/" {
		rel = strings.Trim(rel, "/")
	}
	return rel
}

// parseHex32 parses an 8-hex-digit field into a uint32, used by the reader.
func parseHex32(s string) (uint32, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 16, 32)
	if err != nil {
		return 0, fmt.Errorf("report: invalid hex field %q: %w", s, err)
	}
	return uint32(v), nil
}

func parseHex16(s string) (uint16, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 16, 16)
	if err != nil {
		return 0, fmt.Errorf("report: invalid hex field %q: %w", s, err)
	}
	return uint16(v), nil
}
