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

// Package digest maps digest names to incremental-hash factories for the
// pipeline's workers, and validates user-supplied digest selections.
package digest

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"hash"
	"hash/adler32"
	"hash/crc32"
	"sort"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/blake2s"
	"golang.org/x/crypto/sha3"
)

// An Incremental hash consumes bytes in order and yields a lowercase hex
// digest once all bytes have been supplied. It corresponds to the
// update/finalize pair from spec.md §4.2; reuse is by recreation, not by
// an explicit reset method.
type Incremental interface {
	// Update feeds p into the running hash. It never returns an error for
	// the digests this registry provides; hashers that need to report one
	// should panic, which the pipeline's worker loop converts into a
	// worker error event.
	Update(p []byte)

	// Finalize returns the hex-encoded digest of all bytes seen so far.
	// It must be called at most once.
	Finalize() string
}

// A Factory produces a fresh [Incremental] hasher, ready to consume the
// bytes of one file from the start.
type Factory func() Incremental

// NoopName is the pseudo-digest used for pipeline benchmarking: it consumes
// bytes without hashing them and always finalizes to the same string.
const NoopName = "noop"

// NoopResult is the constant value returned by the noop digest.
const NoopResult = "0000000000000000000000000000000000000000000000000000000000000000"

// registry holds the built-in digest factories, keyed by lowercase name.
var registry = map[string]Factory{
	NoopName: func() Incremental { return noopHash{} },

	"crc32":   func() Incremental { return wrap32(crc32.NewIEEE()) },
	"adler32": func() Incremental { return wrap32(adler32.New()) },

	"md5":    func() Incremental { return wrap(md5.New()) },
	"sha1":   func() Incremental { return wrap(sha1.New()) },
	"sha224": func() Incremental { return wrap(sha256.New224()) },
	"sha256": func() Incremental { return wrap(sha256.New()) },
	"sha384": func() Incremental { return wrap(sha512.New384()) },
	"sha512": func() Incremental { return wrap(sha512.New()) },

	"sha3_224": func() Incremental { return wrap(sha3.New224()) },
	"sha3_256": func() Incremental { return wrap(sha3.New256()) },
	"sha3_384": func() Incremental { return wrap(sha3.New384()) },
	"sha3_512": func() Incremental { return wrap(sha3.New512()) },

	"blake2b": func() Incremental {
		h, err := blake2b.New512(nil)
		if err != nil {
			panic(err) // cannot happen with a nil key
		}
		return wrap(h)
	},
	"blake2s": func() Incremental {
		h, err := blake2s.New256(nil)
		if err != nil {
			panic(err) // cannot happen with a nil key
		}
		return wrap(h)
	},

	"xxh64": func() Incremental { return wrap64(xxhash.New()) },
}

// Names returns the sorted list of digest names this package supports.
func Names() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// New returns a fresh incremental hasher for name, or false if name is not
// a supported digest.
func New(name string) (Incremental, bool) {
	f, ok := registry[name]
	if !ok {
		return nil, false
	}
	return f(), true
}

// ErrNoDigests is returned by [Validate] when no name in the requested list
// names a supported digest.
var ErrNoDigests = errors.New("digest: no valid digests selected")

// Validate filters names down to the supported, order-preserving,
// deduplicated subset. Unknown names are reported to warn (if non-nil) and
// dropped rather than causing an error; an empty result after filtering is
// itself an error, per spec.md §4.2.
func Validate(names []string, warn func(name string)) ([]string, error) {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		if _, ok := registry[name]; !ok {
			if warn != nil {
				warn(name)
			}
			continue
		}
		out = append(out, name)
	}
	if len(out) == 0 {
		return nil, ErrNoDigests
	}
	return out, nil
}

// wrap adapts a standard [hash.Hash] to the [Incremental] interface.
type stdHash struct{ h hash.Hash }

func wrap(h hash.Hash) Incremental { return stdHash{h} }

func (s stdHash) Update(p []byte)  { s.h.Write(p) }
func (s stdHash) Finalize() string { return hex.EncodeToString(s.h.Sum(nil)) }

// wrap32 adapts a [hash.Hash32] (crc32, adler32) to the [Incremental]
// interface, since those digests are conventionally reported as plain hex
// of their 32-bit sum rather than of a byte slice built some other way.
type stdHash32 struct{ h hash.Hash32 }

func wrap32(h hash.Hash32) Incremental { return stdHash32{h} }

func (s stdHash32) Update(p []byte)  { s.h.Write(p) }
func (s stdHash32) Finalize() string { return hex.EncodeToString(s.h.Sum(nil)) }

// wrap64 adapts a [hash.Hash64] (xxhash) to the [Incremental] interface.
type stdHash64 struct{ h hash.Hash64 }

func wrap64(h hash.Hash64) Incremental { return stdHash64{h} }

func (s stdHash64) Update(p []byte)  { s.h.Write(p) }
func (s stdHash64) Finalize() string { return hex.EncodeToString(s.h.Sum(nil)) }

// noopHash implements [Incremental] without touching the bytes it is given,
// for isolating pipeline overhead from hashing cost during benchmarking.
type noopHash struct{}

func (noopHash) Update([]byte)    {}
func (noopHash) Finalize() string { return NoopResult }
