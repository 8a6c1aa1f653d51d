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

package journal

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/distfs/internal/metrics"
	"github.com/dreamware/distfs/internal/types"
)

func appendOp(j *Journal, kind types.MetaOpKind, ino types.InodeId) types.JournalEntry {
	return j.Append(types.MetaOp{Kind: kind, Ino: ino}, types.Now(), 0, types.VectorClock{})
}

func TestAppendAssignsStrictlyMonotonicSequence(t *testing.T) {
	j := New(100)
	e1 := appendOp(j, types.MetaOpCreate, 1)
	e2 := appendOp(j, types.MetaOpCreate, 2)
	e3 := appendOp(j, types.MetaOpCreate, 3)

	assert.Less(t, e1.Sequence, e2.Sequence)
	assert.Less(t, e2.Sequence, e3.Sequence)
}

func TestPendingEntriesReturnsOnlyPastCursor(t *testing.T) {
	j := New(100)
	site := types.SiteId(1)
	j.RegisterSite(site)

	e1 := appendOp(j, types.MetaOpCreate, 1)
	appendOp(j, types.MetaOpCreate, 2)

	j.AckCursor(site, e1.Sequence)

	pending := j.PendingEntries(site, 10)
	require.Len(t, pending, 1)
	assert.Equal(t, types.InodeId(2), pending[0].Op.Ino)
}

func TestPendingEntriesRespectsLimit(t *testing.T) {
	j := New(100)
	site := types.SiteId(1)
	j.RegisterSite(site)

	for i := 0; i < 5; i++ {
		appendOp(j, types.MetaOpCreate, types.InodeId(i))
	}

	pending := j.PendingEntries(site, 2)
	assert.Len(t, pending, 2)
}

func TestCompactCancelsCreateThenDeleteOfSameInode(t *testing.T) {
	entries := []types.JournalEntry{
		{Sequence: 1, Op: types.MetaOp{Kind: types.MetaOpCreate, Ino: 1}},
		{Sequence: 2, Op: types.MetaOp{Kind: types.MetaOpCreate, Ino: 2}},
		{Sequence: 3, Op: types.MetaOp{Kind: types.MetaOpUnlink, Ino: 1}},
	}

	compacted := Compact(entries)
	require.Len(t, compacted, 1)
	assert.Equal(t, types.InodeId(2), compacted[0].Op.Ino)
}

func TestCompactNeverCancelsAcrossDifferentInodes(t *testing.T) {
	entries := []types.JournalEntry{
		{Sequence: 1, Op: types.MetaOp{Kind: types.MetaOpCreate, Ino: 1}},
		{Sequence: 2, Op: types.MetaOp{Kind: types.MetaOpUnlink, Ino: 2}},
	}

	compacted := Compact(entries)
	assert.Len(t, compacted, 2)
}

func TestCompactPreservesOrderOfSurvivors(t *testing.T) {
	entries := []types.JournalEntry{
		{Sequence: 1, Op: types.MetaOp{Kind: types.MetaOpCreate, Ino: 1}},
		{Sequence: 2, Op: types.MetaOp{Kind: types.MetaOpSetAttr, Ino: 1}},
		{Sequence: 3, Op: types.MetaOp{Kind: types.MetaOpCreate, Ino: 2}},
		{Sequence: 4, Op: types.MetaOp{Kind: types.MetaOpUnlink, Ino: 2}},
		{Sequence: 5, Op: types.MetaOp{Kind: types.MetaOpSetAttr, Ino: 3}},
	}

	compacted := Compact(entries)
	require.Len(t, compacted, 3)
	assert.Equal(t, uint64(1), compacted[0].Sequence)
	assert.Equal(t, uint64(2), compacted[1].Sequence)
	assert.Equal(t, uint64(5), compacted[2].Sequence)
}

func TestCompactBeforeRefusesToPassSlowestCursor(t *testing.T) {
	j := New(100)
	fast := types.SiteId(1)
	slow := types.SiteId(2)
	j.RegisterSite(fast)
	j.RegisterSite(slow)

	for i := 0; i < 5; i++ {
		appendOp(j, types.MetaOpCreate, types.InodeId(i))
	}

	j.AckCursor(fast, 5)
	j.AckCursor(slow, 2)

	err := j.CompactBefore(4)
	assert.Error(t, err)

	require.NoError(t, j.CompactBefore(3))
	assert.Equal(t, 3, j.Len())
}

func TestCapacityBoundsRetainedEntries(t *testing.T) {
	j := New(3)
	for i := 0; i < 10; i++ {
		appendOp(j, types.MetaOpCreate, types.InodeId(i))
	}
	assert.Equal(t, 3, j.Len())
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	j := New(10)
	e := appendOp(j, types.MetaOpRename, 7)

	data, err := Marshal(e)
	require.NoError(t, err)

	got, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, e.Sequence, got.Sequence)
	assert.Equal(t, e.Op, got.Op)
}

func TestMetricsRecordAppendAndCompactFailure(t *testing.T) {
	mc := metrics.New()
	j := New(10).WithMetrics(mc)

	appendOp(j, types.MetaOpCreate, 1)
	assert.Equal(t, float64(1), testutil.ToFloat64(mc.OpsTotal.WithLabelValues("journal_append")))

	j.RegisterSite(types.SiteId(1))
	err := j.CompactBefore(2)
	assert.Error(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(mc.ErrorsTotal.WithLabelValues("invalid_argument")))
}
