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

// Package similarity implements Tier-2 MinHash similarity dedup
// (spec.md §4.5): an inverted index from feature value to candidate
// chunks, a find_similar query, and a background worker that applies
// index updates and reference-counted GC off the hot write path.
package similarity

import (
	"time"

	"github.com/dreamware/distfs/internal/fingerprint"
)

// entry is one chunk's record in the similarity index.
type entry struct {
	hash      fingerprint.ChunkHash
	features  fingerprint.SuperFeatures
	bytes     []byte
	refCount  int
	insertSeq uint64
	zeroSince time.Time // set when refCount first reaches 0
}

// Index is an inverted index from each of the four feature values to the
// candidate chunks that produced it. Not safe for concurrent use directly
// -- callers serialize access through Worker's single goroutine, matching
// the spec's "background worker owns the index" design.
type Index struct {
	entries map[fingerprint.ChunkHash]*entry
	byFeat  map[uint64][]*entry
	nextSeq uint64
}

// NewIndex constructs an empty Index.
func NewIndex() *Index {
	return &Index{
		entries: make(map[fingerprint.ChunkHash]*entry),
		byFeat:  make(map[uint64][]*entry),
	}
}

// Insert records a new chunk's hash, features, and reference bytes. If
// the hash is already present, only its refCount is bumped.
func (idx *Index) Insert(hash fingerprint.ChunkHash, features fingerprint.SuperFeatures, bytes []byte) {
	if e, ok := idx.entries[hash]; ok {
		e.refCount++
		e.zeroSince = time.Time{}
		return
	}

	e := &entry{
		hash:      hash,
		features:  features,
		bytes:     bytes,
		refCount:  1,
		insertSeq: idx.nextSeq,
	}
	idx.nextSeq++
	idx.entries[hash] = e

	for _, f := range features {
		idx.byFeat[f] = append(idx.byFeat[f], e)
	}
}

// Match is a find_similar result.
type Match struct {
	Hash        fingerprint.ChunkHash
	ReferenceBytes []byte
	SharedCount int
}

// FindSimilar counts shared feature values across every candidate chunk
// indexed under any of q's features, and returns the first candidate that
// reaches fingerprint.SimilarityThreshold shared features. Ties (equal
// shared count reaching threshold at the same scan position) are broken
// by earliest insertion, which falls out naturally from scanning
// candidates in insertion order and returning on first qualifying match.
func (idx *Index) FindSimilar(q fingerprint.SuperFeatures) (Match, bool) {
	counts := make(map[fingerprint.ChunkHash]int)
	var candidates []*entry

	seen := make(map[fingerprint.ChunkHash]bool)
	for _, f := range q {
		for _, e := range idx.byFeat[f] {
			if !seen[e.hash] {
				seen[e.hash] = true
				candidates = append(candidates, e)
			}
			counts[e.hash]++
		}
	}

	// Scan in insertion order so the first entry to cross the threshold
	// is the earliest-inserted one, per the tie-break rule.
	sortByInsertSeq(candidates)

	for _, e := range candidates {
		c := counts[e.hash]
		if c >= fingerprint.SimilarityThreshold {
			return Match{Hash: e.hash, ReferenceBytes: e.bytes, SharedCount: c}, true
		}
	}
	return Match{}, false
}

func sortByInsertSeq(es []*entry) {
	// Small N (bounded by shared-feature fan-out); insertion sort avoids
	// pulling in sort.Slice's closure allocation on the hot dedup path.
	for i := 1; i < len(es); i++ {
		for j := i; j > 0 && es[j].insertSeq < es[j-1].insertSeq; j-- {
			es[j], es[j-1] = es[j-1], es[j]
		}
	}
}

// Release decrements a chunk's reference count, marking the time it first
// reaches zero so GC can apply its grace period.
func (idx *Index) Release(hash fingerprint.ChunkHash, now time.Time) {
	e, ok := idx.entries[hash]
	if !ok || e.refCount == 0 {
		return
	}
	e.refCount--
	if e.refCount == 0 {
		e.zeroSince = now
	}
}

// GC reclaims entries with refCount == 0 whose zero-time is older than
// grace, unless their hash appears in reachable (a set rebuilt by a
// mark phase outside this package). It returns the hashes removed.
func (idx *Index) GC(now time.Time, grace time.Duration, reachable map[fingerprint.ChunkHash]bool) []fingerprint.ChunkHash {
	var removed []fingerprint.ChunkHash
	for hash, e := range idx.entries {
		if e.refCount != 0 {
			continue
		}
		if reachable != nil && reachable[hash] {
			continue
		}
		if e.zeroSince.IsZero() || now.Sub(e.zeroSince) < grace {
			continue
		}
		idx.removeLocked(e)
		removed = append(removed, hash)
	}
	return removed
}

func (idx *Index) removeLocked(e *entry) {
	delete(idx.entries, e.hash)
	for _, f := range e.features {
		list := idx.byFeat[f]
		for i, cand := range list {
			if cand == e {
				idx.byFeat[f] = append(list[:i], list[i+1:]...)
				break
			}
		}
		if len(idx.byFeat[f]) == 0 {
			delete(idx.byFeat, f)
		}
	}
}

// Len reports how many chunks are currently indexed.
func (idx *Index) Len() int { return len(idx.entries) }
