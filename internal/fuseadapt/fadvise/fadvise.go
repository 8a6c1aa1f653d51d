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

// Package fadvise tracks POSIX_FADV_* read hints per inode (spec.md
// §4.12), bounded by an LRU on map size so a client that advises many
// inodes and forgets them can't grow this table without bound.
package fadvise

import (
	"sync"

	"github.com/dreamware/distfs/internal/lrucache"
	"github.com/dreamware/distfs/internal/types"
)

// Hint is a POSIX_FADV_* readahead hint.
type Hint int

const (
	Normal Hint = iota
	Sequential
	Random
	WillNeed
	DontNeed
	NoReuse
)

// ReadaheadMultiplier maps a hint to its readahead size multiplier.
func (h Hint) ReadaheadMultiplier() int {
	switch h {
	case Normal:
		return 1
	case Sequential:
		return 4
	case Random:
		return 0
	case WillNeed:
		return 2
	case DontNeed:
		return 0
	case NoReuse:
		return 0
	default:
		return 1
	}
}

// SuppressesReadahead reports whether h disables readahead entirely.
func (h Hint) SuppressesReadahead() bool {
	return h == Random || h == DontNeed || h == NoReuse
}

// Advice is the last hint recorded for an inode.
type Advice struct {
	Hint   Hint
	Offset uint64
	Len    uint64
}

// Tracker is a bounded LRU of per-ino Advice, adapted from the teacher's
// internal/lrucache (generalized this session to an entry-count bound).
type Tracker struct {
	mu    sync.Mutex
	cache *lrucache.Cache[types.InodeId, Advice]
}

// NewTracker constructs a Tracker holding advice for at most capacity
// inodes.
func NewTracker(capacity int) *Tracker {
	return &Tracker{cache: lrucache.New[types.InodeId, Advice](capacity)}
}

// Advise records hint for ino, evicting the least-recently-advised inode
// if the tracker is at capacity.
func (t *Tracker) Advise(ino types.InodeId, hint Hint, offset, length uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cache.Insert(ino, Advice{Hint: hint, Offset: offset, Len: length})
}

// Get returns ino's last recorded advice.
func (t *Tracker) Get(ino types.InodeId) (Advice, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cache.LookUp(ino)
}

// ShouldEvictAfterRead reports whether ino's current advice means its
// pages should be dropped from cache right after being read.
func (t *Tracker) ShouldEvictAfterRead(ino types.InodeId) bool {
	a, ok := t.Get(ino)
	if !ok {
		return false
	}
	return a.Hint == NoReuse || a.Hint == DontNeed
}

// ShouldPrefetchNow reports whether ino's advice requests an immediate
// prefetch.
func (t *Tracker) ShouldPrefetchNow(ino types.InodeId) bool {
	a, ok := t.Get(ino)
	if !ok {
		return false
	}
	return a.Hint == WillNeed
}

// Len reports how many inodes currently have recorded advice.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cache.Len()
}
