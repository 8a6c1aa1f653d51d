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

package chunker

import (
	"sync"

	"github.com/dreamware/distfs/internal/fingerprint"
)

// CASIndex is the content-addressable-storage membership set: an O(1)
// lookup of which chunk hashes already have stored payload. It never
// removes entries itself — entries are only dropped by the GC component
// (similarity.GC), which has already established the hash is unreachable.
//
// Sharded with one RWMutex per shard so concurrent writers touching
// unrelated hashes don't serialize on each other.
type CASIndex struct {
	shards []casShard

	inserts   counter
	dedupHits counter
}

type casShard struct {
	mu sync.RWMutex
	m  map[fingerprint.ChunkHash]struct{}
}

type counter struct {
	mu sync.Mutex
	n  uint64
}

func (c *counter) inc() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *counter) load() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

// NewCASIndex constructs a CASIndex with the given shard count. A shard
// count of 0 defaults to 16.
func NewCASIndex(numShards int) *CASIndex {
	if numShards <= 0 {
		numShards = 16
	}
	idx := &CASIndex{shards: make([]casShard, numShards)}
	for i := range idx.shards {
		idx.shards[i].m = make(map[fingerprint.ChunkHash]struct{})
	}
	return idx
}

func (idx *CASIndex) shardFor(h fingerprint.ChunkHash) *casShard {
	var x uint64
	for i := 0; i < 8; i++ {
		x = x<<8 | uint64(h[i])
	}
	return &idx.shards[x%uint64(len(idx.shards))]
}

// Contains reports whether h's payload is already stored.
func (idx *CASIndex) Contains(h fingerprint.ChunkHash) bool {
	s := idx.shardFor(h)
	s.mu.RLock()
	_, ok := s.m[h]
	s.mu.RUnlock()
	return ok
}

// Insert records h as present. It returns true if this is the chunk's
// first appearance (payload must be written) and false if h was already
// present (the pipeline's "no payload" duplicate branch applies).
func (idx *CASIndex) Insert(h fingerprint.ChunkHash) (firstSeen bool) {
	s := idx.shardFor(h)
	s.mu.Lock()
	_, exists := s.m[h]
	if !exists {
		s.m[h] = struct{}{}
	}
	s.mu.Unlock()

	if exists {
		idx.dedupHits.inc()
		return false
	}
	idx.inserts.inc()
	return true
}

// Remove drops h from the index. Only the GC component may call this,
// after determining h is unreachable from any live inode.
func (idx *CASIndex) Remove(h fingerprint.ChunkHash) {
	s := idx.shardFor(h)
	s.mu.Lock()
	delete(s.m, h)
	s.mu.Unlock()
}

// Stats reports the index's current population and lifetime insert/dedup
// counters, for the pipeline's Stats aggregation.
type Stats struct {
	Population uint64
	Inserts    uint64
	DedupHits  uint64
}

func (idx *CASIndex) Stats() Stats {
	var pop uint64
	for i := range idx.shards {
		idx.shards[i].mu.RLock()
		pop += uint64(len(idx.shards[i].m))
		idx.shards[i].mu.RUnlock()
	}
	return Stats{
		Population: pop,
		Inserts:    idx.inserts.load(),
		DedupHits:  idx.dedupHits.load(),
	}
}
