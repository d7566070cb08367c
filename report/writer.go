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
	"fmt"
	"strings"

	"github.com/creachadair/atomicfile"
)

// Writer accumulates report lines in memory and commits them to disk in one
// atomic write, so an interrupted run (spec.md §5, S6) never leaves a
// truncated report file behind: either the whole report lands, or the
// previous file (if any) is untouched.
type Writer struct {
	lines []string
}

// NewWriter starts a report with the header block spec.md §6 describes: a
// comment banner, the mandatory "# Base path: <root>" line --update parses,
// and a column-header comment line naming the digests in columnTitle.
func NewWriter(root, columnTitle string) *Writer {
	w := &Writer{}
	rule := "#" + strings.Repeat("-", 78)
	w.lines = append(w.lines,
		rule,
		"#",
		"#  Base path: "+unixifyPath(root),
		"#",
		rule,
		columnTitle,
		rule,
		"",
	)
	return w
}

// WriteEntry appends one data line for e.
func (w *Writer) WriteEntry(e Entry) {
	w.lines = append(w.lines, BuildLine(e))
}

// Close appends the processed-counts footer and commits the report to path
// atomically (spec.md §7's footer counters).
func (w *Writer) Close(path string, files, dirs, ignored, errs int64, bytesRead int64) error {
	rule := "#" + strings.Repeat("-", 78)
	w.lines = append(w.lines,
		"",
		rule,
		"#",
		fmt.Sprintf("#  Processed: %d file(s), %d folder(s) (%d ignored, %d errors) comprising %d bytes",
			files, dirs, ignored, errs, bytesRead),
		"#",
		rule,
	)
	body := strings.Join(w.lines, "\n") + "\n"
	return atomicfile.WriteData(path, []byte(body), 0o644)
}

// FileColumnHeader builds the comment line spec.md §6 places above the main
// report's data rows, naming every selected digest.
func FileColumnHeader(names []string) string {
	return fmt.Sprintf("#         %-18s |accessT |modifyT |createT |attr|watr|   size   |relative name",
		strings.Join(names, ","))
}

// AltColumnHeader builds the equivalent header for the single-digest
// alternate report (spec.md §6 "Alternate report").
func AltColumnHeader(name string) string {
	return fmt.Sprintf("#        %s signature          |accessT |modifyT |createT |watr|   size   |relative name", name)
}
