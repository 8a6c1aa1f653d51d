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

// Package journal implements the metadata journal and per-site
// replication cursor tracker (spec.md §4.10): an append-only, strictly
// monotonic sequence of committed types.MetaOp entries, batched for
// replication and compactable once every remote has acknowledged past a
// sequence. Entries serialize with fxamacker/cbor, the teacher's own
// wire-encoding dependency, the same way gcsproxy marshals its staged
// object metadata.
package journal

import (
	"sync"

	"github.com/fxamacker/cbor/v2"

	"github.com/dreamware/distfs/internal/distfserrors"
	"github.com/dreamware/distfs/internal/metrics"
	"github.com/dreamware/distfs/internal/types"
)

// Journal is an append-only, capacity-bounded ring of committed
// JournalEntry records, with one cursor per remote site.
type Journal struct {
	mu       sync.Mutex
	capacity int
	entries  []types.JournalEntry // ordered by Sequence ascending
	nextSeq  uint64
	cursors  map[types.SiteId]uint64

	metrics *metrics.Collector
}

// New constructs an empty Journal bounded to capacity entries.
func New(capacity int) *Journal {
	return &Journal{
		capacity: capacity,
		cursors:  make(map[types.SiteId]uint64),
		nextSeq:  1,
	}
}

// WithMetrics attaches a Collector that Append and CompactBefore report
// outcomes to. A nil Collector (the default) makes that reporting a
// no-op.
func (j *Journal) WithMetrics(c *metrics.Collector) *Journal {
	j.metrics = c
	return j
}

func (j *Journal) recordOp(op string) {
	if j.metrics == nil {
		return
	}
	j.metrics.OpsTotal.WithLabelValues(op).Inc()
}

func (j *Journal) recordErr(kind string) {
	if j.metrics == nil {
		return
	}
	j.metrics.ErrorsTotal.WithLabelValues(kind).Inc()
}

// Append records op as the next sequence number and returns the entry.
func (j *Journal) Append(op types.MetaOp, committedAt types.Timestamp, logIndex types.LogIndex, vc types.VectorClock) types.JournalEntry {
	j.mu.Lock()
	defer j.mu.Unlock()

	e := types.JournalEntry{
		Sequence:    j.nextSeq,
		Op:          op,
		CommittedAt: committedAt,
		LogIndex:    logIndex,
		VectorClock: vc,
	}
	j.nextSeq++
	j.entries = append(j.entries, e)

	if len(j.entries) > j.capacity {
		j.entries = j.entries[len(j.entries)-j.capacity:]
	}
	j.recordOp("journal_append")
	return e
}

// Marshal encodes e with CBOR, the wire form used for conduit transport.
func Marshal(e types.JournalEntry) ([]byte, error) {
	return cbor.Marshal(e)
}

// Unmarshal decodes a CBOR-encoded JournalEntry.
func Unmarshal(data []byte) (types.JournalEntry, error) {
	var e types.JournalEntry
	err := cbor.Unmarshal(data, &e)
	return e, err
}

// RegisterSite adds site to the cursor tracker at cursor 0 (nothing
// acknowledged yet), a no-op if already registered.
func (j *Journal) RegisterSite(site types.SiteId) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, ok := j.cursors[site]; !ok {
		j.cursors[site] = 0
	}
}

// AckCursor records that site has acknowledged everything up to and
// including seq.
func (j *Journal) AckCursor(site types.SiteId, seq uint64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if seq > j.cursors[site] {
		j.cursors[site] = seq
	}
}

// Cursor reports the last sequence site has acknowledged.
func (j *Journal) Cursor(site types.SiteId) uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.cursors[site]
}

// PendingEntries returns up to limit entries with Sequence strictly
// greater than site's cursor, in ascending sequence order.
func (j *Journal) PendingEntries(site types.SiteId, limit int) []types.JournalEntry {
	j.mu.Lock()
	defer j.mu.Unlock()

	cursor := j.cursors[site]
	var out []types.JournalEntry
	for _, e := range j.entries {
		if e.Sequence <= cursor {
			continue
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out
}

// Compact applies batch compaction to entries: within the slice, a
// create of inode X followed anywhere later by a delete of the same X
// cancels both, in a single left-to-right pass. Compaction
// preserves the relative order of surviving entries and never cancels
// across different inodes.
func Compact(entries []types.JournalEntry) []types.JournalEntry {
	deleted := make(map[int]bool)
	createIdx := make(map[types.InodeId]int)

	for i, e := range entries {
		if e.Op.CreatesIno() {
			createIdx[e.Op.Ino] = i
			continue
		}
		if e.Op.DeletesIno() {
			if ci, ok := createIdx[e.Op.Ino]; ok {
				deleted[ci] = true
				deleted[i] = true
				delete(createIdx, e.Op.Ino)
			}
		}
	}

	out := make([]types.JournalEntry, 0, len(entries))
	for i, e := range entries {
		if !deleted[i] {
			out = append(out, e)
		}
	}
	return out
}

// CompactBefore removes every retained entry with Sequence < seq,
// refusing if seq would pass the slowest remote's cursor -- compacting
// past an un-acked sequence would starve that remote's replication feed.
func (j *Journal) CompactBefore(seq uint64) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	first := true
	var minCursor uint64
	for _, cursor := range j.cursors {
		if first || cursor < minCursor {
			minCursor, first = cursor, false
		}
	}
	if !first && seq > minCursor+1 {
		j.recordErr("invalid_argument")
		return distfserrors.NewInvalidArgument("compact_before would pass the slowest site's cursor")
	}

	i := 0
	for ; i < len(j.entries); i++ {
		if j.entries[i].Sequence >= seq {
			break
		}
	}
	j.entries = j.entries[i:]
	j.recordOp("journal_compact_before")
	return nil
}

// Len reports how many entries the journal currently retains.
func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.entries)
}
