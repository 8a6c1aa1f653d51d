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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/distfs/internal/distfserrors"
	"github.com/dreamware/distfs/internal/types"
)

func newSingleShardTable(t *testing.T) *Table {
	t.Helper()
	tbl := NewTable(0, 1, 64, 255)
	tbl.InsertRoot(0, 0, 0o755)
	return tbl
}

func TestAllocRejectsDuplicateName(t *testing.T) {
	tbl := newSingleShardTable(t)

	_, err := tbl.Alloc(types.RootInodeId, "file.txt", types.FileTypeRegular, 0o644, 1, 1)
	require.NoError(t, err)

	_, err = tbl.Alloc(types.RootInodeId, "file.txt", types.FileTypeRegular, 0o644, 1, 1)
	var alreadyExists *distfserrors.AlreadyExistsError
	assert.True(t, errors.As(err, &alreadyExists))
}

func TestAllocDirectoryIncrementsParentNlink(t *testing.T) {
	tbl := newSingleShardTable(t)

	before, err := tbl.Attr(types.RootInodeId)
	require.NoError(t, err)

	_, err = tbl.Alloc(types.RootInodeId, "subdir", types.FileTypeDirectory, 0o755, 0, 0)
	require.NoError(t, err)

	after, err := tbl.Attr(types.RootInodeId)
	require.NoError(t, err)
	assert.Equal(t, before.Nlink+1, after.Nlink)
}

func TestAllocDirectoryStartsAtNlinkTwo(t *testing.T) {
	tbl := newSingleShardTable(t)

	dirIno, err := tbl.Alloc(types.RootInodeId, "subdir", types.FileTypeDirectory, 0o755, 0, 0)
	require.NoError(t, err)

	attr, err := tbl.Attr(dirIno)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), attr.Nlink, "a fresh directory carries its own name-link plus its \".\" self-link")
}

func TestLookupChildOnNonDirectoryFails(t *testing.T) {
	tbl := newSingleShardTable(t)
	fileIno, err := tbl.Alloc(types.RootInodeId, "f", types.FileTypeRegular, 0o644, 0, 0)
	require.NoError(t, err)

	_, _, err = tbl.LookupChild(fileIno, "anything")
	assert.ErrorIs(t, err, distfserrors.ErrNotADirectory)
}

func TestRemoveFailsNotEmptyThenSucceedsAfterEmptied(t *testing.T) {
	tbl := newSingleShardTable(t)
	dirIno, err := tbl.Alloc(types.RootInodeId, "d", types.FileTypeDirectory, 0o755, 0, 0)
	require.NoError(t, err)

	childIno, err := tbl.Alloc(dirIno, "child", types.FileTypeRegular, 0o644, 0, 0)
	require.NoError(t, err)

	err = tbl.Remove(types.RootInodeId, "d", dirIno)
	assert.ErrorIs(t, err, distfserrors.ErrNotEmpty)

	require.NoError(t, tbl.Remove(dirIno, "child", childIno))
	require.NoError(t, tbl.Remove(types.RootInodeId, "d", dirIno))

	_, found, err := tbl.LookupChild(types.RootInodeId, "d")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestLinkToRejectsDirectories(t *testing.T) {
	tbl := newSingleShardTable(t)
	dirIno, err := tbl.Alloc(types.RootInodeId, "d", types.FileTypeDirectory, 0o755, 0, 0)
	require.NoError(t, err)

	err = tbl.LinkTo(dirIno, types.RootInodeId, "d2")
	assert.ErrorIs(t, err, distfserrors.ErrIsDirectory)
}

func TestLinkToIncrementsNlink(t *testing.T) {
	tbl := newSingleShardTable(t)
	fileIno, err := tbl.Alloc(types.RootInodeId, "f", types.FileTypeRegular, 0o644, 0, 0)
	require.NoError(t, err)

	require.NoError(t, tbl.LinkTo(fileIno, types.RootInodeId, "f2"))

	attr, err := tbl.Attr(fileIno)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), attr.Nlink)

	ino2, found, err := tbl.LookupChild(types.RootInodeId, "f2")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, fileIno, ino2)
}

func TestForgetRemovesAtZeroLookupCount(t *testing.T) {
	tbl := newSingleShardTable(t)
	fileIno, err := tbl.Alloc(types.RootInodeId, "f", types.FileTypeRegular, 0o644, 0, 0)
	require.NoError(t, err)
	require.NoError(t, tbl.IncrementLookup(fileIno))
	require.NoError(t, tbl.IncrementLookup(fileIno))

	require.NoError(t, tbl.Remove(types.RootInodeId, "f", fileIno))
	// still referenced by two lookups -- table keeps the node until Forget
	_, err = tbl.Attr(fileIno)
	require.NoError(t, err)

	require.NoError(t, tbl.Forget(fileIno, 1))
	_, err = tbl.Attr(fileIno)
	require.NoError(t, err, "one outstanding lookup should keep the node")

	require.NoError(t, tbl.Forget(fileIno, 1))
	_, err = tbl.Attr(fileIno)
	assert.Error(t, err, "zero lookup count and zero nlink should evict the node")
}

func TestXattrRoundTripAndCapacity(t *testing.T) {
	tbl := NewTable(0, 1, 2, 255)
	tbl.InsertRoot(0, 0, 0o755)

	require.NoError(t, tbl.SetXattr(types.RootInodeId, "user.a", []byte("1")))
	require.NoError(t, tbl.SetXattr(types.RootInodeId, "user.b", []byte("2")))

	err := tbl.SetXattr(types.RootInodeId, "user.c", []byte("3"))
	assert.Error(t, err)

	v, err := tbl.GetXattr(types.RootInodeId, "user.a")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), v)

	require.NoError(t, tbl.RemoveXattr(types.RootInodeId, "user.a"))
	_, err = tbl.GetXattr(types.RootInodeId, "user.a")
	assert.Error(t, err)
}

func TestAllocRejectsOverlongName(t *testing.T) {
	tbl := NewTable(0, 1, 64, 4)
	tbl.InsertRoot(0, 0, 0o755)

	_, err := tbl.Alloc(types.RootInodeId, "toolong", types.FileTypeRegular, 0o644, 0, 0)
	var invalidArg *distfserrors.InvalidArgumentError
	assert.True(t, errors.As(err, &invalidArg))
}

func TestReaddirListsEntries(t *testing.T) {
	tbl := newSingleShardTable(t)
	_, err := tbl.Alloc(types.RootInodeId, "a", types.FileTypeRegular, 0o644, 0, 0)
	require.NoError(t, err)
	_, err = tbl.Alloc(types.RootInodeId, "b", types.FileTypeRegular, 0o644, 0, 0)
	require.NoError(t, err)

	entries, err := tbl.Readdir(types.RootInodeId)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestModeTypeBitsAgreeOnAllocatedInode(t *testing.T) {
	tbl := newSingleShardTable(t)
	dirIno, err := tbl.Alloc(types.RootInodeId, "d", types.FileTypeDirectory, 0o755, 0, 0)
	require.NoError(t, err)

	attr, err := tbl.Attr(dirIno)
	require.NoError(t, err)
	assert.True(t, types.ModeTypeBitsAgree(types.FileTypeDirectory, attr.Mode))
}
