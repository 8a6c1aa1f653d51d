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

package handle

import (
	"sync"
	"time"

	"github.com/dreamware/distfs/clock"
	"github.com/dreamware/distfs/internal/types"
)

// NegativeKey is a (parent, name) lookup that is known, as of RecordedAt,
// to not resolve to a child.
type NegativeKey struct {
	Parent types.InodeId
	Name   string
}

type negativeEntry struct {
	recordedAt time.Time
}

// NegativeCache is a bounded, TTL-keyed cache of failed child lookups
// (spec.md §4.8), adapted from the teacher's ttlcache.Cache generic but
// driven by a clock.Clock instead of a background ticker goroutine, so
// expiry and eviction are deterministic under test.
type NegativeCache struct {
	mu       sync.RWMutex
	clk      clock.Clock
	ttl      time.Duration
	capacity int
	items    map[NegativeKey]negativeEntry
}

// NewNegativeCache builds a cache holding at most capacity entries, each
// valid for ttl after insertion.
func NewNegativeCache(clk clock.Clock, ttl time.Duration, capacity int) *NegativeCache {
	return &NegativeCache{
		clk:      clk,
		ttl:      ttl,
		capacity: capacity,
		items:    make(map[NegativeKey]negativeEntry),
	}
}

// Record notes that (parent, name) did not resolve as of now.
func (c *NegativeCache) Record(parent types.InodeId, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.items) >= c.capacity {
		c.evictLocked()
	}

	c.items[NegativeKey{Parent: parent, Name: name}] = negativeEntry{recordedAt: c.clk.Now()}
}

// Probe reports whether (parent, name) is currently recorded as a known
// miss. A stale (expired) entry counts as absent.
func (c *NegativeCache) Probe(parent types.InodeId, name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.items[NegativeKey{Parent: parent, Name: name}]
	if !ok {
		return false
	}
	return c.clk.Now().Sub(e.recordedAt) < c.ttl
}

// Invalidate drops any recorded miss for (parent, name), called on
// create/rename/delete in the parent.
func (c *NegativeCache) Invalidate(parent types.InodeId, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, NegativeKey{Parent: parent, Name: name})
}

// InvalidateParent drops every recorded miss under parent, for rename and
// rmdir paths that invalidate an entire directory's negative entries.
func (c *NegativeCache) InvalidateParent(parent types.InodeId) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.items {
		if k.Parent == parent {
			delete(c.items, k)
		}
	}
}

// evictLocked drops expired entries first; if that doesn't free room, it
// falls back to the single oldest entry. Caller holds c.mu.
func (c *NegativeCache) evictLocked() {
	now := c.clk.Now()
	for k, e := range c.items {
		if now.Sub(e.recordedAt) >= c.ttl {
			delete(c.items, k)
		}
	}
	if len(c.items) < c.capacity {
		return
	}

	var oldestKey NegativeKey
	var oldestTime time.Time
	first := true
	for k, e := range c.items {
		if first || e.recordedAt.Before(oldestTime) {
			oldestKey, oldestTime = k, e.recordedAt
			first = false
		}
	}
	if !first {
		delete(c.items, oldestKey)
	}
}

// Len reports the number of entries currently held, expired or not.
func (c *NegativeCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
