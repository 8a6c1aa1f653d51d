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

// Package writebuffer coalesces small FUSE writes per inode before they
// reach the reduction pipeline (spec.md §4.12), the way gcsproxy's
// mutable object batches writes into one staged local file before Sync.
package writebuffer

import (
	"sort"
	"sync"

	"github.com/dreamware/distfs/internal/types"
)

// Range is one pending byte range, [Offset, Offset+len(Bytes)).
type Range struct {
	Offset uint64
	Bytes  []byte
}

func (r Range) end() uint64 { return r.Offset + uint64(len(r.Bytes)) }

// Buffer accumulates per-ino pending write ranges until flush_threshold
// bytes have been buffered.
type Buffer struct {
	mu             sync.Mutex
	flushThreshold uint64
	maxCoalesceGap uint64
	ranges         map[types.InodeId][]Range
	pendingBytes   map[types.InodeId]uint64
}

// New constructs a Buffer with the given flush threshold and maximum gap
// two ranges may still be coalesced across.
func New(flushThreshold, maxCoalesceGap uint64) *Buffer {
	return &Buffer{
		flushThreshold: flushThreshold,
		maxCoalesceGap: maxCoalesceGap,
		ranges:         make(map[types.InodeId][]Range),
		pendingBytes:   make(map[types.InodeId]uint64),
	}
}

// BufferWrite appends a range to ino's pending list and reports whether
// the cumulative buffered byte count has crossed flush_threshold.
func (b *Buffer) BufferWrite(ino types.InodeId, offset uint64, bytes []byte) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	cp := make([]byte, len(bytes))
	copy(cp, bytes)
	b.ranges[ino] = append(b.ranges[ino], Range{Offset: offset, Bytes: cp})
	b.pendingBytes[ino] += uint64(len(bytes))

	return b.pendingBytes[ino] >= b.flushThreshold
}

// Coalesce merges any of ino's ranges whose gap is at most
// max_coalesce_gap, letting later-written bytes win at overlapping
// positions, and leaves the result sorted by offset.
func (b *Buffer) Coalesce(ino types.InodeId) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ranges[ino] = coalesce(b.ranges[ino], b.maxCoalesceGap)
}

func coalesce(ranges []Range, maxGap uint64) []Range {
	if len(ranges) < 2 {
		return ranges
	}

	// Fold ranges in write order so each later range overlays whatever it
	// touches, then sort the merged result by offset.
	var out []Range
	for _, r := range ranges {
		kept := make([]Range, 0, len(out)+1)
		for _, o := range out {
			if o.Offset > r.end()+maxGap || r.Offset > o.end()+maxGap {
				kept = append(kept, o)
				continue
			}
			r = mergeInto(o, r)
		}
		out = append(kept, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Offset < out[j].Offset })
	return out
}

// mergeInto overlays r onto base, extending base's span and letting r's
// bytes overwrite base's at any overlapping offset (r is the later write).
func mergeInto(base, r Range) Range {
	start := base.Offset
	if r.Offset < start {
		start = r.Offset
	}
	end := base.end()
	if r.end() > end {
		end = r.end()
	}

	merged := make([]byte, end-start)
	copy(merged[base.Offset-start:], base.Bytes)
	copy(merged[r.Offset-start:], r.Bytes)

	return Range{Offset: start, Bytes: merged}
}

// TakeDirty hands off every pending range for ino and zeroes its
// accounting.
func (b *Buffer) TakeDirty(ino types.InodeId) []Range {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := b.ranges[ino]
	delete(b.ranges, ino)
	delete(b.pendingBytes, ino)
	return out
}

// PendingBytes reports ino's current buffered byte count.
func (b *Buffer) PendingBytes(ino types.InodeId) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pendingBytes[ino]
}
