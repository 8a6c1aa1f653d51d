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

// Package handle implements the FileHandle manager (spec.md §4.7): a
// pure lifecycle tracker over open file descriptors, keyed three ways
// (by handle, by inode, by client) so disconnect cleanup and
// is-open-for-write checks are both O(1) amortized. It never inspects or
// modifies InodeAttr.
package handle

import (
	"github.com/jacobsa/syncutil"

	"github.com/dreamware/distfs/internal/distfserrors"
	"github.com/dreamware/distfs/internal/metrics"
	"github.com/dreamware/distfs/internal/types"
)

// OpenFlags mirrors the POSIX open(2) flags a FileHandle cares about.
type OpenFlags uint32

const (
	OpenRead OpenFlags = 1 << iota
	OpenWrite
	OpenAppend
)

func (f OpenFlags) wantsWrite() bool {
	return f&(OpenWrite|OpenAppend) != 0
}

// FileHandleId is a monotonically increasing handle identifier.
type FileHandleId uint64

// ClientId identifies the FUSE client (mount session) that opened a
// handle, for close_all_for_client cleanup on disconnect.
type ClientId string

// FileHandle is the manager's lifecycle record for one open descriptor.
type FileHandle struct {
	ID     FileHandleId
	Ino    types.InodeId
	Client ClientId
	Flags  OpenFlags
}

// Manager tracks open FileHandles. Guarded by
// github.com/jacobsa/syncutil.InvariantMutex -- unlike C7's inode table,
// nothing here needs concurrent reads, so the teacher's single-Mutex
// invariant-checking wrapper applies directly.
type Manager struct {
	mu syncutil.InvariantMutex

	nextID  FileHandleId // GUARDED_BY(mu)
	byID    map[FileHandleId]*FileHandle
	byIno   map[types.InodeId]map[FileHandleId]bool
	byClien map[ClientId]map[FileHandleId]bool

	metrics *metrics.Collector
}

// WithMetrics attaches a Collector that Open, Close, and
// CloseAllForClient report counts to. A nil Collector (the default)
// makes that reporting a no-op.
func (m *Manager) WithMetrics(c *metrics.Collector) *Manager {
	m.metrics = c
	return m
}

func (m *Manager) recordOp(op string) {
	if m.metrics == nil {
		return
	}
	m.metrics.OpsTotal.WithLabelValues(op).Inc()
}

func (m *Manager) recordErr(kind string) {
	if m.metrics == nil {
		return
	}
	m.metrics.ErrorsTotal.WithLabelValues(kind).Inc()
}

// NewManager constructs an empty Manager.
func NewManager() *Manager {
	m := &Manager{
		byID:    make(map[FileHandleId]*FileHandle),
		byIno:   make(map[types.InodeId]map[FileHandleId]bool),
		byClien: make(map[ClientId]map[FileHandleId]bool),
	}
	m.mu = syncutil.NewInvariantMutex(m.checkInvariants)
	return m
}

func (m *Manager) checkInvariants() {
	for id, h := range m.byID {
		if h.ID != id {
			panic("handle: byID key/value ID mismatch")
		}
		if !m.byIno[h.Ino][id] {
			panic("handle: byIno index missing entry present in byID")
		}
		if !m.byClien[h.Client][id] {
			panic("handle: byClient index missing entry present in byID")
		}
	}
}

// Open allocates a new FileHandleId for (ino, client, flags).
func (m *Manager) Open(ino types.InodeId, client ClientId, flags OpenFlags) FileHandleId {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	id := m.nextID

	h := &FileHandle{ID: id, Ino: ino, Client: client, Flags: flags}
	m.byID[id] = h

	if m.byIno[ino] == nil {
		m.byIno[ino] = make(map[FileHandleId]bool)
	}
	m.byIno[ino][id] = true

	if m.byClien[client] == nil {
		m.byClien[client] = make(map[FileHandleId]bool)
	}
	m.byClien[client][id] = true

	m.recordOp("handle_open")
	return id
}

// Close releases a single handle.
func (m *Manager) Close(id FileHandleId) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.byID[id]
	if !ok {
		m.recordErr("not_found_stream")
		return distfserrors.NewNotFound(distfserrors.NotFoundStream, "")
	}
	m.detach(h)
	m.recordOp("handle_close")
	return nil
}

func (m *Manager) detach(h *FileHandle) {
	delete(m.byID, h.ID)
	delete(m.byIno[h.Ino], h.ID)
	if len(m.byIno[h.Ino]) == 0 {
		delete(m.byIno, h.Ino)
	}
	delete(m.byClien[h.Client], h.ID)
	if len(m.byClien[h.Client]) == 0 {
		delete(m.byClien, h.Client)
	}
}

// CloseAllForClient drops every handle client owns, the disconnect
// cleanup mechanism. Returns the count closed.
func (m *Manager) CloseAllForClient(client ClientId) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := m.byClien[client]
	n := len(ids)
	for id := range ids {
		m.detach(m.byID[id])
	}
	if n > 0 {
		m.recordOp("handle_close_all_for_client")
	}
	return n
}

// IsOpenForWrite scans ino's handles for any carrying write or append.
func (m *Manager) IsOpenForWrite(ino types.InodeId) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id := range m.byIno[ino] {
		if m.byID[id].Flags.wantsWrite() {
			return true
		}
	}
	return false
}

// Lookup returns a copy of the FileHandle for id.
func (m *Manager) Lookup(id FileHandleId) (FileHandle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.byID[id]
	if !ok {
		return FileHandle{}, false
	}
	return *h, true
}

// OpenCount reports how many handles are currently open, for tests and
// monitoring.
func (m *Manager) OpenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}
