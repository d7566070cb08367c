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

import "github.com/creachadair/dtdigest/block"

// commandTag discriminates the cases of the command sum type sent from the
// Coordinator to a Worker (spec.md §3, "Command"). Replacing the Python
// original's Cmd enum (INIT PROCESS FREE RESULT QUIT), carried on a typed
// Go channel instead of a multiprocessing queue.
type commandTag int

const (
	cmdInit commandTag = iota
	cmdProcess
	cmdFree
	cmdResult
	cmdQuit
)

// command is the message a Worker's input channel carries. Only the fields
// relevant to tag are populated.
type command struct {
	tag    commandTag
	digest string           // cmdInit: digest name to begin hashing with
	block  block.Descriptor // cmdProcess: the block to consume
	buffer int              // cmdFree: the buffer id being recycled
}

// eventKind discriminates the cases of a Worker's output events.
type eventKind int

const (
	evAck    eventKind = iota // ACK(seq): block fully consumed
	evDigest                  // DIGEST(name, hex): RESULT response
	evError                   // WORKER_ERROR(name, err)
)

// event is the message a Worker's output channel carries.
type event struct {
	kind eventKind
	seq  int    // evAck
	name string // evDigest, evError: the worker's digest name
	hex  string // evDigest
	err  error  // evError
}
