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

// Package fingerprint computes the two content summaries the reduction
// pipeline relies on: a BLAKE3 identity hash for exact-match dedup (C2/C3)
// and a four-value MinHash "Super-Features" summary for similarity-based
// Tier-2 dedup (C6).
package fingerprint

import (
	"encoding/binary"
	"math/bits"

	"lukechampine.com/blake3"
)

// ChunkHash is the 32-byte BLAKE3 digest identifying a chunk's content.
type ChunkHash [32]byte

// Hash computes the ChunkHash of a chunk's bytes.
func Hash(data []byte) ChunkHash {
	return ChunkHash(blake3.Sum256(data))
}

// NumSuperFeatures is the number of equal regions a chunk is partitioned
// into for MinHash summarization.
const NumSuperFeatures = 4

// SimilarityThreshold is the minimum number of shared Super-Feature values
// for two chunks to be considered similar.
const SimilarityThreshold = 3

// SuperFeatures is a four-value MinHash summary of a chunk, used for
// Tier-2 similarity-based dedup. Deterministic across replicas: the same
// bytes always yield the same SuperFeatures.
type SuperFeatures [NumSuperFeatures]uint64

// Compute partitions data into NumSuperFeatures equal regions, computes a
// rolling 64-bit mix of each, and keeps the minimum value seen per region
// (a MinHash over a sliding window of windowSize bytes). windowSize must be
// at least 1; a zero or negative value defaults to 8.
func Compute(data []byte, windowSize int) SuperFeatures {
	if windowSize <= 0 {
		windowSize = 8
	}

	var sf SuperFeatures
	for i := range sf {
		sf[i] = ^uint64(0)
	}

	if len(data) == 0 {
		return sf
	}

	regionSize := (len(data) + NumSuperFeatures - 1) / NumSuperFeatures
	if regionSize == 0 {
		regionSize = 1
	}

	for region := 0; region < NumSuperFeatures; region++ {
		start := region * regionSize
		if start >= len(data) {
			break
		}
		end := start + regionSize
		if end > len(data) {
			end = len(data)
		}

		minVal := ^uint64(0)
		chunk := data[start:end]
		for off := 0; off < len(chunk); off++ {
			w := chunk[off:]
			if len(w) > windowSize {
				w = w[:windowSize]
			}
			v := mix(w, uint64(off))
			if v < minVal {
				minVal = v
			}
		}
		sf[region] = minVal
	}

	return sf
}

// mix is a stable, order-sensitive 64-bit hash of a short byte window. It
// has no cryptographic goal — only the determinism and avalanche behavior
// the spec requires of the rolling feature function.
func mix(window []byte, salt uint64) uint64 {
	var buf [8]byte
	h := 0xcbf29ce484222325 ^ salt // FNV-1a offset basis, salted by position
	const prime = 0x100000001b3
	for _, b := range window {
		h ^= uint64(b)
		h *= prime
	}
	binary.LittleEndian.PutUint64(buf[:], h)
	h = binary.LittleEndian.Uint64(buf[:])
	h ^= h >> 33
	h *= 0xff51afd7ed558ccd
	h ^= h >> 33
	h = bits.RotateLeft64(h, 17)
	return h
}

// Similarity counts how many Super-Feature values a and b share.
func Similarity(a, b SuperFeatures) int {
	count := 0
	for _, v := range a {
		for _, w := range b {
			if v == w {
				count++
				break
			}
		}
	}
	return count
}

// IsSimilar reports whether a and b meet the similarity threshold.
func IsSimilar(a, b SuperFeatures) bool {
	return Similarity(a, b) >= SimilarityThreshold
}
