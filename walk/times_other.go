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

//go:build !unix

package walk

import "io/fs"

// fileTimes falls back to ModTime for all three columns on platforms
// without a syscall.Stat_t (spec.md §6's platform normalization is
// explicitly out of scope for the pipeline core; this driver keeps the
// report well-formed everywhere without claiming unix-only metadata).
func fileTimes(info fs.FileInfo) (atime, mtime, ctime uint32) {
	mtime = uint32(info.ModTime().Unix())
	return mtime, mtime, mtime
}

func standardAttrBits(info fs.FileInfo) uint16 { return 0 }
func osAttrBits(info fs.FileInfo) uint16       { return 0 }
