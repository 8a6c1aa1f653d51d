// Copyright 2025 Google LLC
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

// Package chunker implements content-defined chunking (FastCDC-style) and
// the CAS membership index that backs exact-match dedup (spec.md §4.2).
package chunker

import (
	"github.com/dreamware/distfs/internal/fingerprint"
)

// gearTable is a fixed pseudo-random table used by the FastCDC rolling
// hash. It must be identical across every replica producing chunks for the
// same data (determinism is the whole point of content-defined chunking).
var gearTable = buildGearTable()

func buildGearTable() [256]uint64 {
	var t [256]uint64
	// A simple deterministic PRNG (splitmix64) seeds the table so every
	// build of this package produces the same gear values without
	// shipping a 2KB literal.
	seed := uint64(0x9E3779B97F4A7C15)
	next := func() uint64 {
		seed += 0x9E3779B97F4A7C15
		z := seed
		z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
		z = (z ^ (z >> 27)) * 0x94D049BB133111EB
		return z ^ (z >> 31)
	}
	for i := range t {
		t[i] = next()
	}
	return t
}

// Options bounds the chunker's output sizes.
type Options struct {
	MinSize uint32
	AvgSize uint32
	MaxSize uint32
}

// DefaultOptions mirrors config.DefaultChunker's values.
func DefaultOptions() Options {
	return Options{MinSize: 4 << 10, AvgSize: 16 << 10, MaxSize: 64 << 10}
}

// Chunk is one content-defined slice of an input stream.
type Chunk struct {
	Hash   fingerprint.ChunkHash
	Offset uint64
	Bytes  []byte
}

// maskBits returns floor(log2(avgSize)), at least 1: the number of mask
// bits whose cut mask has an expected run length of about avgSize.
func maskBits(avgSize uint32) uint {
	bits := uint(0)
	for v := avgSize; v > 1; v >>= 1 {
		bits++
	}
	if bits < 1 {
		bits = 1
	}
	return bits
}

// Split performs content-defined chunking over data, emitting chunks whose
// boundaries are determined by a rolling gear hash, not by fixed offsets.
func Split(data []byte, opts Options) []Chunk {
	if opts.MinSize == 0 {
		opts = DefaultOptions()
	}

	mask := uint64(1)<<maskBits(opts.AvgSize) - 1

	var chunks []Chunk
	start := 0
	n := len(data)

	for start < n {
		end := cut(data, start, opts, mask)
		piece := data[start:end]
		chunks = append(chunks, Chunk{
			Hash:   fingerprint.Hash(piece),
			Offset: uint64(start),
			Bytes:  piece,
		})
		start = end
	}

	return chunks
}

// cut finds the next chunk boundary starting at start, honoring Min/Max
// size and the rolling-hash cut condition.
func cut(data []byte, start int, opts Options, mask uint64) int {
	n := len(data)
	minEnd := start + int(opts.MinSize)
	maxEnd := start + int(opts.MaxSize)
	if maxEnd > n {
		maxEnd = n
	}
	if minEnd >= maxEnd {
		return maxEnd
	}

	var h uint64
	for i := start; i < maxEnd; i++ {
		h = (h << 1) + gearTable[data[i]]
		if i+1 >= minEnd && h&mask == 0 {
			return i + 1
		}
	}
	return maxEnd
}
