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

package similarity

import (
	"sync"
	"time"

	"github.com/dreamware/distfs/common"
	"github.com/dreamware/distfs/clock"
	"github.com/dreamware/distfs/internal/fingerprint"
)

// ChunkEvent is a new chunk observation handed to the background worker,
// off the hot write path.
type ChunkEvent struct {
	Hash     fingerprint.ChunkHash
	Features fingerprint.SuperFeatures
	Bytes    []byte
}

// GCRequest asks the worker to reclaim unreferenced entries older than
// GracePeriod, excluding anything in Reachable (the result of a mark
// phase run by the inode/journal layer).
type GCRequest struct {
	Reachable   map[fingerprint.ChunkHash]bool
	GracePeriod time.Duration
}

// workItem is the queue's wire type: exactly one of the two fields set.
type workItem struct {
	event *ChunkEvent
	gc    *GCRequest
}

// Worker owns an Index exclusively and applies ChunkEvents/GCRequests
// sequentially off a bounded queue, so the index never needs its own
// lock. Queue is common.Queue, the teacher's generic linked-list queue,
// reused here as the worker's bounded event channel's backing buffer.
type Worker struct {
	idx   *Index
	clock clock.Clock

	mu      sync.Mutex
	cond    *sync.Cond
	queue   common.Queue[workItem]
	maxLen  int
	closed  bool
	removed []fingerprint.ChunkHash // last GC's reclaimed hashes, for tests/observers
}

// NewWorker constructs a Worker bounded to maxLen queued items. Enqueue
// blocks once the bound is reached, applying backpressure to producers.
func NewWorker(idx *Index, clk clock.Clock, maxLen int) *Worker {
	if maxLen <= 0 {
		maxLen = 1024
	}
	w := &Worker{
		idx:    idx,
		clock:  clk,
		queue:  common.NewLinkedListQueue[workItem](),
		maxLen: maxLen,
	}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// EnqueueEvent submits a new-chunk observation for indexing.
func (w *Worker) EnqueueEvent(e ChunkEvent) {
	w.enqueue(workItem{event: &e})
}

// EnqueueGC submits a GC sweep request.
func (w *Worker) EnqueueGC(req GCRequest) {
	w.enqueue(workItem{gc: &req})
}

func (w *Worker) enqueue(item workItem) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for w.queue.Len() >= w.maxLen && !w.closed {
		w.cond.Wait()
	}
	if w.closed {
		return
	}
	w.queue.Push(item)
	w.cond.Signal()
}

// Run drains the queue until Close is called. Intended to run in its own
// goroutine.
func (w *Worker) Run() {
	for {
		item, ok := w.dequeue()
		if !ok {
			return
		}
		w.apply(item)
	}
}

func (w *Worker) dequeue() (workItem, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for w.queue.IsEmpty() && !w.closed {
		w.cond.Wait()
	}
	if w.queue.IsEmpty() {
		return workItem{}, false
	}
	item := w.queue.Pop()
	w.cond.Signal()
	return item, true
}

func (w *Worker) apply(item workItem) {
	switch {
	case item.event != nil:
		w.idx.Insert(item.event.Hash, item.event.Features, item.event.Bytes)
	case item.gc != nil:
		removed := w.idx.GC(w.clock.Now(), item.gc.GracePeriod, item.gc.Reachable)
		w.mu.Lock()
		w.removed = removed
		w.mu.Unlock()
	}
}

// LastGCRemoved returns the hashes reclaimed by the most recently applied
// GC request.
func (w *Worker) LastGCRemoved() []fingerprint.ChunkHash {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.removed
}

// Close stops Run and wakes any blocked Enqueue/dequeue calls.
func (w *Worker) Close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	w.cond.Broadcast()
}

// QueueLen reports how many items are currently queued, for tests and
// monitoring.
func (w *Worker) QueueLen() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.queue.Len()
}
