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

// Package dirnotify tracks per-directory bounded FIFOs of filesystem
// change events, drained by FUSE clients polling for invalidations
// (spec.md §4.12). Each directory's queue reuses the teacher's generic
// common.Queue[T] linked-list queue, the same structure
// internal/similarity's background worker is built on.
package dirnotify

import (
	"sync"

	"github.com/dreamware/distfs/common"
	"github.com/dreamware/distfs/internal/types"
)

// EventKind is the kind of directory-visible change being posted.
type EventKind int

const (
	EventCreated EventKind = iota
	EventDeleted
	EventRenamed
	EventAttrib
)

// Event is a single posted change.
type Event struct {
	Kind EventKind
	Name string
}

// Tracker maps a watched directory inode to its bounded FIFO of pending
// events.
type Tracker struct {
	mu       sync.Mutex
	capacity int
	queues   map[types.InodeId]common.Queue[Event]
}

// NewTracker constructs a Tracker whose per-directory queues hold at most
// capacity events before dropping the oldest.
func NewTracker(capacity int) *Tracker {
	return &Tracker{capacity: capacity, queues: make(map[types.InodeId]common.Queue[Event])}
}

// Watch begins tracking dir, a no-op if already watched.
func (t *Tracker) Watch(dir types.InodeId) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.queues[dir]; !ok {
		t.queues[dir] = common.NewLinkedListQueue[Event]()
	}
}

// Unwatch stops tracking dir and discards any pending events.
func (t *Tracker) Unwatch(dir types.InodeId) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.queues, dir)
}

// Post appends ev to dir's queue, dropping the oldest event if full.
// Posting to an unwatched directory is a no-op.
func (t *Tracker) Post(dir types.InodeId, ev Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	q, ok := t.queues[dir]
	if !ok {
		return
	}
	if q.Len() >= t.capacity {
		q.Pop()
	}
	q.Push(ev)
}

// Drain returns and clears all pending events for dir, in insertion
// order. Draining an unwatched directory returns nil.
func (t *Tracker) Drain(dir types.InodeId) []Event {
	t.mu.Lock()
	defer t.mu.Unlock()

	q, ok := t.queues[dir]
	if !ok {
		return nil
	}
	out := make([]Event, 0, q.Len())
	for !q.IsEmpty() {
		out = append(out, q.Pop())
	}
	return out
}

// Pending reports how many events dir has queued.
func (t *Tracker) Pending(dir types.InodeId) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	q, ok := t.queues[dir]
	if !ok {
		return 0
	}
	return q.Len()
}
