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

// Package walk implements the directory-walk driver spec.md §1 treats as an
// external collaborator: it discovers files under a scan root, applies
// exclusion globs, feeds regular files to pipeline.Pipeline.DigestFile one
// at a time, and writes one report.Entry per entry.
package walk

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ExcludeSet holds glob patterns for --xfiles/--xdirs (spec.md §6). Patterns
// are matched with doublestar against the entry's relative path, since the
// teacher's own path package (fpath) has no wildcard matcher of its own.
type ExcludeSet struct {
	patterns []string
	nocase   bool
}

// DefaultExcludedFiles and DefaultExcludedDirs are the names --xfiles and
// --xdirs append to (spec.md §6: "append to default exclusion lists"),
// adapted from the original's control_data['ignored_files']/['ignored_dirs']
// (original_source/python3/dirtreedigest/__config__.py) to be cross-platform
// rather than Windows-specific: the Windows system-reserved paths are kept
// since they're harmless no-ops elsewhere, and common macOS/Unix volume
// clutter is added alongside them.
var (
	DefaultExcludedFiles = []string{"pagefile.sys", "hiberfil.sys", ".DS_Store"}
	DefaultExcludedDirs  = []string{
		"$Recycle.Bin", "Recycled", "Recycler", "System Volume Information", "Temp",
		".Trash", ".Trashes", ".Spotlight-V100",
	}
)

// DefaultPatterns turns a list of bare names (as in DefaultExcludedFiles and
// DefaultExcludedDirs) into doublestar patterns that match that name at any
// depth under the scan root, not just at the root itself.
func DefaultPatterns(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = "**/" + n
	}
	return out
}

// NewExcludeSet builds an ExcludeSet from the given glob patterns. nocase
// lower-cases both pattern and candidate before matching, for --nocase.
func NewExcludeSet(patterns []string, nocase bool) *ExcludeSet {
	es := &ExcludeSet{nocase: nocase}
	for _, p := range patterns {
		if nocase {
			p = strings.ToLower(p)
		}
		es.patterns = append(es.patterns, p)
	}
	return es
}

// Matches reports whether relPath (POSIX-style, relative to the scan root)
// matches any configured pattern.
func (es *ExcludeSet) Matches(relPath string) bool {
	if es == nil {
		return false
	}
	cand := relPath
	if es.nocase {
		cand = strings.ToLower(cand)
	}
	for _, p := range es.patterns {
		if ok, err := doublestar.Match(p, cand); err == nil && ok {
			return true
		}
	}
	return false
}
