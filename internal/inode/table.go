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

// Package inode implements the shard-local inode table (spec.md §4.6): a
// flat map of InodeAttr plus a (parent, name) secondary index, guarded by
// a reader-writer lock so lookups proceed concurrently with each other.
package inode

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/text/unicode/norm"

	"github.com/dreamware/distfs/internal/distfserrors"
	"github.com/dreamware/distfs/internal/types"
)

// node is a live inode's table-owned state.
type node struct {
	attr        types.InodeAttr
	children    map[string]types.InodeId // only populated for directories
	xattrs      map[string][]byte
	lookupCount uint64
}

// Table is one shard of the distributed inode table. Its zero value is
// not usable; construct with NewTable.
type Table struct {
	shard     types.ShardId
	numShards uint64
	maxXattrs int
	nameMax   int

	mu    sync.RWMutex
	nodes map[types.InodeId]*node
	next  uint64 // next per-shard allocation counter, GUARDED_BY(mu)
}

// NewTable constructs an empty shard with the given shard id. numShards
// must match the table-wide shard count so Alloc only ever produces
// inode numbers that hash back to this shard.
func NewTable(shard types.ShardId, numShards uint16, maxXattrs, nameMax int) *Table {
	t := &Table{
		shard:     shard,
		numShards: uint64(numShards),
		maxXattrs: maxXattrs,
		nameMax:   nameMax,
		nodes:     make(map[types.InodeId]*node),
	}

	// Seed the allocation counter at the first positive multiple of
	// numShards offset by shard, so every Alloc'd ino hashes back to this
	// shard (ino mod numShards == shard). Ino 0 and the root ino are both
	// reserved, so a shard owning either starts one stride further out.
	base := uint64(shard)
	if base == 0 {
		base = t.numShards
	}
	if uint64(shard) == uint64(types.RootInodeId)%t.numShards {
		base += t.numShards
	}
	t.next = base
	return t
}

func normalizeName(name string) string {
	return norm.NFC.String(name)
}

// checkInvariants panics if the table's internal bookkeeping has drifted
// from the data model's invariants. Mirrors the teacher's
// checkInvariants-on-Unlock idiom, but hand-rolled over RWMutex since
// jacobsa/syncutil.InvariantMutex offers no concurrent-read variant.
func (t *Table) checkInvariants() {
	for ino, n := range t.nodes {
		if n.attr.Ino != ino {
			panic(fmt.Sprintf("inode: node keyed at %v has Ino=%v", ino, n.attr.Ino))
		}
		if !n.attr.IsDir() && n.children != nil {
			panic(fmt.Sprintf("inode: non-directory %v has children map", ino))
		}
		if len(n.xattrs) > t.maxXattrs {
			panic(fmt.Sprintf("inode: %v exceeds max xattr count", ino))
		}
	}
}

func (t *Table) unlock() {
	t.checkInvariants()
	t.mu.Unlock()
}

// Alloc creates a new inode as a child of parent, rejecting an existing
// entry of the same name. If kind is a directory, parent.Nlink is
// incremented (the new directory's own ".." link) and the new directory
// itself starts at Nlink 2 (its name-link from parent, plus its own "."
// self-link).
func (t *Table) Alloc(parent types.InodeId, name string, kind types.FileType, mode uint32, uid, gid uint32) (types.InodeId, error) {
	name = normalizeName(name)
	if len(name) > t.nameMax {
		return 0, distfserrors.NewInvalidArgument(fmt.Sprintf("name exceeds %d bytes", t.nameMax))
	}

	t.mu.Lock()
	defer t.unlock()

	p, ok := t.nodes[parent]
	if !ok {
		return 0, distfserrors.NewNotFound(distfserrors.NotFoundInode, parent.String())
	}
	if !p.attr.IsDir() {
		return 0, distfserrors.ErrNotADirectory
	}
	if _, exists := p.children[name]; exists {
		return 0, distfserrors.NewAlreadyExists(name)
	}

	ino := types.InodeId(t.next)
	t.next += t.numShards

	nlink := uint32(1)
	if kind == types.FileTypeDirectory {
		nlink = 2 // its name-link from parent, plus its own "." self-link
	}
	n := &node{
		attr: types.InodeAttr{
			Ino:       ino,
			FileType:  kind,
			Mode:      modeFor(kind, mode),
			Nlink:     nlink,
			Uid:       uid,
			Gid:       gid,
			Atime:     types.Now(),
			Mtime:     types.Now(),
			Ctime:     types.Now(),
			Crtime:    types.Now(),
			ReplState: types.ReplicationLocal,
		},
	}
	if kind == types.FileTypeDirectory {
		n.children = make(map[string]types.InodeId)
	}
	t.nodes[ino] = n

	if p.children == nil {
		p.children = make(map[string]types.InodeId)
	}
	p.children[name] = ino
	if kind == types.FileTypeDirectory {
		p.attr.Nlink++
	}

	return ino, nil
}

// LookupChild resolves name within parent. Only valid on directories.
func (t *Table) LookupChild(parent types.InodeId, name string) (types.InodeId, bool, error) {
	name = normalizeName(name)

	t.mu.RLock()
	defer t.mu.RUnlock()

	p, ok := t.nodes[parent]
	if !ok {
		return 0, false, distfserrors.NewNotFound(distfserrors.NotFoundInode, parent.String())
	}
	if !p.attr.IsDir() {
		return 0, false, distfserrors.ErrNotADirectory
	}

	ino, found := p.children[name]
	return ino, found, nil
}

// Attr returns a copy of ino's attribute record.
func (t *Table) Attr(ino types.InodeId) (types.InodeAttr, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n, ok := t.nodes[ino]
	if !ok {
		return types.InodeAttr{}, distfserrors.NewNotFound(distfserrors.NotFoundInode, ino.String())
	}
	return n.attr, nil
}

// SetAttr applies mutate to ino's attribute record under the table lock.
func (t *Table) SetAttr(ino types.InodeId, mutate func(*types.InodeAttr)) error {
	t.mu.Lock()
	defer t.unlock()

	n, ok := t.nodes[ino]
	if !ok {
		return distfserrors.NewNotFound(distfserrors.NotFoundInode, ino.String())
	}
	mutate(&n.attr)
	return nil
}

// Remove detaches ino from parent and removes it from the table. Fails
// NotEmpty if ino is a non-empty directory.
func (t *Table) Remove(parent types.InodeId, name string, ino types.InodeId) error {
	name = normalizeName(name)

	t.mu.Lock()
	defer t.unlock()

	p, ok := t.nodes[parent]
	if !ok {
		return distfserrors.NewNotFound(distfserrors.NotFoundInode, parent.String())
	}
	n, ok := t.nodes[ino]
	if !ok {
		return distfserrors.NewNotFound(distfserrors.NotFoundInode, ino.String())
	}
	if n.attr.IsDir() && len(n.children) > 0 {
		return distfserrors.ErrNotEmpty
	}

	delete(p.children, name)
	if n.attr.IsDir() {
		p.attr.Nlink--
		n.attr.Nlink -= 2 // loses its name-link from parent and its own "." self-link
	} else {
		n.attr.Nlink--
	}
	if n.lookupCount == 0 && n.attr.Nlink == 0 {
		delete(t.nodes, ino)
	}
	return nil
}

// LinkTo adds an additional name for an existing non-directory inode.
func (t *Table) LinkTo(ino, newParent types.InodeId, name string) error {
	name = normalizeName(name)

	t.mu.Lock()
	defer t.unlock()

	n, ok := t.nodes[ino]
	if !ok {
		return distfserrors.NewNotFound(distfserrors.NotFoundInode, ino.String())
	}
	if n.attr.IsDir() {
		return distfserrors.ErrIsDirectory
	}
	p, ok := t.nodes[newParent]
	if !ok {
		return distfserrors.NewNotFound(distfserrors.NotFoundInode, newParent.String())
	}
	if !p.attr.IsDir() {
		return distfserrors.ErrNotADirectory
	}
	if _, exists := p.children[name]; exists {
		return distfserrors.NewAlreadyExists(name)
	}

	if p.children == nil {
		p.children = make(map[string]types.InodeId)
	}
	p.children[name] = ino
	n.attr.Nlink++
	return nil
}

// Forget decrements ino's kernel lookup count by n; at zero (and no
// remaining link), the entry is evicted from the table.
func (t *Table) Forget(ino types.InodeId, n uint64) error {
	t.mu.Lock()
	defer t.unlock()

	nd, ok := t.nodes[ino]
	if !ok {
		return distfserrors.NewNotFound(distfserrors.NotFoundInode, ino.String())
	}
	if n > nd.lookupCount {
		nd.lookupCount = 0
	} else {
		nd.lookupCount -= n
	}
	if nd.lookupCount == 0 && nd.attr.Nlink == 0 {
		delete(t.nodes, ino)
	}
	return nil
}

// IncrementLookup bumps ino's kernel lookup count, called whenever a
// lookup/create/mkdir hands a new reference to the kernel.
func (t *Table) IncrementLookup(ino types.InodeId) error {
	t.mu.Lock()
	defer t.unlock()

	nd, ok := t.nodes[ino]
	if !ok {
		return distfserrors.NewNotFound(distfserrors.NotFoundInode, ino.String())
	}
	nd.lookupCount++
	return nil
}

// SetXattr sets (ino, name) -> value, enforcing the per-inode bound.
func (t *Table) SetXattr(ino types.InodeId, name string, value []byte) error {
	t.mu.Lock()
	defer t.unlock()

	n, ok := t.nodes[ino]
	if !ok {
		return distfserrors.NewNotFound(distfserrors.NotFoundInode, ino.String())
	}
	if n.xattrs == nil {
		n.xattrs = make(map[string][]byte)
	}
	if _, exists := n.xattrs[name]; !exists && len(n.xattrs) >= t.maxXattrs {
		return distfserrors.NewCapacity(distfserrors.CapacityOutOfSpace, "xattr count limit reached")
	}
	n.xattrs[name] = append([]byte(nil), value...)
	return nil
}

// GetXattr returns a copy of (ino, name)'s value.
func (t *Table) GetXattr(ino types.InodeId, name string) ([]byte, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n, ok := t.nodes[ino]
	if !ok {
		return nil, distfserrors.NewNotFound(distfserrors.NotFoundInode, ino.String())
	}
	v, ok := n.xattrs[name]
	if !ok {
		return nil, distfserrors.NewNotFound(distfserrors.NotFoundEntry, name)
	}
	return append([]byte(nil), v...), nil
}

// RemoveXattr deletes (ino, name).
func (t *Table) RemoveXattr(ino types.InodeId, name string) error {
	t.mu.Lock()
	defer t.unlock()

	n, ok := t.nodes[ino]
	if !ok {
		return distfserrors.NewNotFound(distfserrors.NotFoundInode, ino.String())
	}
	if _, exists := n.xattrs[name]; !exists {
		return distfserrors.NewNotFound(distfserrors.NotFoundEntry, name)
	}
	delete(n.xattrs, name)
	return nil
}

// Readdir returns a snapshot of parent's directory entries.
func (t *Table) Readdir(parent types.InodeId) ([]types.DirEntry, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	p, ok := t.nodes[parent]
	if !ok {
		return nil, distfserrors.NewNotFound(distfserrors.NotFoundInode, parent.String())
	}
	if !p.attr.IsDir() {
		return nil, distfserrors.ErrNotADirectory
	}

	entries := make([]types.DirEntry, 0, len(p.children))
	for name, ino := range p.children {
		child := t.nodes[ino]
		entries = append(entries, types.DirEntry{Name: name, Ino: ino, FileType: child.attr.FileType})
	}
	return entries, nil
}

// InsertRoot seeds the table with the root directory inode. Called once
// at bootstrap by the shard owning types.RootInodeId.
func (t *Table) InsertRoot(uid, gid uint32, mode uint32) {
	t.mu.Lock()
	defer t.unlock()

	t.nodes[types.RootInodeId] = &node{
		attr: types.InodeAttr{
			Ino:       types.RootInodeId,
			FileType:  types.FileTypeDirectory,
			Mode:      modeFor(types.FileTypeDirectory, mode),
			Nlink:     2,
			Uid:       uid,
			Gid:       gid,
			Atime:     types.Now(),
			Mtime:     types.Now(),
			Ctime:     types.Now(),
			Crtime:    types.Now(),
			ReplState: types.ReplicationLocal,
		},
		children: make(map[string]types.InodeId),
	}
}

func modeFor(kind types.FileType, perm uint32) os.FileMode {
	return os.FileMode(perm)&os.ModePerm | kind.ModeBits()
}

// Len reports how many inodes this shard currently holds, for tests and
// monitoring.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.nodes)
}
