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

package inode

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/distfs/internal/config"
	"github.com/dreamware/distfs/internal/metrics"
	"github.com/dreamware/distfs/internal/types"
)

func TestManagerAllocThenLookupRoundTrip(t *testing.T) {
	cfg := config.InodeTable{NumShards: 4, MaxXattrs: 16, NameMax: 255}
	m := NewManager(cfg, 0, 0, 0o755)

	var inos []types.InodeId
	for i := 0; i < 20; i++ {
		ino, err := m.Alloc(types.RootInodeId, nameFor(i), types.FileTypeRegular, 0o644, 0, 0)
		require.NoError(t, err)
		inos = append(inos, ino)
	}

	for i, ino := range inos {
		got, found, err := m.LookupChild(types.RootInodeId, nameFor(i))
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, ino, got)

		assert.Equal(t, types.ShardOf(ino, m.NumShards()), types.ShardOf(ino, cfg.NumShards))
	}
}

func TestManagerAllocatedInodesAreUnique(t *testing.T) {
	cfg := config.InodeTable{NumShards: 4, MaxXattrs: 16, NameMax: 255}
	m := NewManager(cfg, 0, 0, 0o755)

	seen := make(map[types.InodeId]bool)
	seen[types.RootInodeId] = true
	for i := 0; i < 50; i++ {
		ino, err := m.Alloc(types.RootInodeId, nameFor(i), types.FileTypeRegular, 0o644, 0, 0)
		require.NoError(t, err)
		require.False(t, seen[ino], "allocated inode numbers must never repeat")
		seen[ino] = true
	}
}

func TestManagerRoutesOperationsToOwningShard(t *testing.T) {
	// Alloc co-locates a new inode with its parent's shard (see DESIGN.md:
	// children of a directory are allocated from that directory's own
	// shard, trading cross-shard spread for sequential-readdir locality).
	// This test checks that routing is consistent with that rule, not
	// that inodes spread across shards.
	cfg := config.InodeTable{NumShards: 4, MaxXattrs: 16, NameMax: 255}
	m := NewManager(cfg, 0, 0, 0o755)

	dirIno, err := m.Alloc(types.RootInodeId, "d", types.FileTypeDirectory, 0o755, 0, 0)
	require.NoError(t, err)
	childIno, err := m.Alloc(dirIno, "inner", types.FileTypeRegular, 0o644, 0, 0)
	require.NoError(t, err)

	assert.Equal(t, types.ShardOf(dirIno, cfg.NumShards), types.ShardOf(childIno, cfg.NumShards))

	got, found, err := m.LookupChild(dirIno, "inner")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, childIno, got)
}

func nameFor(i int) string {
	return "file-" + string(rune('a'+i%26)) + string(rune('0'+i/26))
}

func TestMetricsRecordOpsAndErrors(t *testing.T) {
	mc := metrics.New()
	cfg := config.InodeTable{NumShards: 4, MaxXattrs: 16, NameMax: 255}
	m := NewManager(cfg, 0, 0, 0o755).WithMetrics(mc)

	_, err := m.Alloc(types.RootInodeId, "f", types.FileTypeRegular, 0o644, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(mc.OpsTotal.WithLabelValues("alloc")))

	_, _, err = m.LookupChild(types.InodeId(999999), "anything")
	assert.Error(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(mc.ErrorsTotal.WithLabelValues("lookup_child")))
}
