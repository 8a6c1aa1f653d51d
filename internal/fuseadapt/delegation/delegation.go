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

// Package delegation tracks client-held read/write leases on inodes
// (spec.md §4.12), the way the teacher's lease package tracks a
// reference to a file without owning its bytes: grant/recall/return/
// revoke transitions are state-machine bookkeeping only, never an I/O
// path.
package delegation

import (
	"sync"
	"time"

	"github.com/dreamware/distfs/clock"
	"github.com/dreamware/distfs/internal/distfserrors"
	"github.com/dreamware/distfs/internal/types"
)

// Kind is the delegation's access mode.
type Kind int

const (
	KindRead Kind = iota
	KindWrite
)

// State is a delegation's lifecycle stage. Active -> Recalled -> Returned
// is the cooperative path; any of the three may be force-revoked.
type State int

const (
	StateActive State = iota
	StateRecalled
	StateReturned
	StateRevoked
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateRecalled:
		return "recalled"
	case StateReturned:
		return "returned"
	case StateRevoked:
		return "revoked"
	default:
		return "unknown"
	}
}

// ID identifies a single granted delegation.
type ID uint64

// ClientID identifies the delegation holder.
type ClientID string

// Delegation is one granted lease.
type Delegation struct {
	ID        ID
	Ino       types.InodeId
	Kind      Kind
	Client    ClientID
	State     State
	GrantedAt time.Time
	Lease     time.Duration
}

func (d Delegation) expiresAt() time.Time { return d.GrantedAt.Add(d.Lease) }

// subscriberID identifies a registered Subscribe callback.
type subscriberID uint64

// Manager tracks all outstanding delegations, grouped by ino for
// conflict checks and recall.
type Manager struct {
	mu     sync.Mutex
	clk    clock.Clock
	lease  time.Duration
	nextID ID
	byIno  map[types.InodeId]map[ID]*Delegation
	byID   map[ID]*Delegation

	nextSubID   subscriberID
	subscribers map[subscriberID]func(Delegation)
}

// NewManager constructs a Manager granting leases of leaseDuration.
func NewManager(clk clock.Clock, leaseDuration time.Duration) *Manager {
	return &Manager{
		clk:         clk,
		lease:       leaseDuration,
		byIno:       make(map[types.InodeId]map[ID]*Delegation),
		byID:        make(map[ID]*Delegation),
		subscribers: make(map[subscriberID]func(Delegation)),
	}
}

// Subscribe registers fn to be called, with a copy of the delegation,
// whenever a delegation transitions to Recalled or Revoked -- so a
// client-side watcher can react without polling its owned delegations.
// It returns an unsubscribe function.
func (m *Manager) Subscribe(fn func(Delegation)) func() {
	m.mu.Lock()
	id := m.nextSubID
	m.nextSubID++
	m.subscribers[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subscribers, id)
		m.mu.Unlock()
	}
}

// notify fans d out to every current subscriber. Called after the
// triggering mutation has already been committed and mu released, so a
// subscriber callback is free to call back into the Manager.
func (m *Manager) notify(d Delegation) {
	m.mu.Lock()
	fns := make([]func(Delegation), 0, len(m.subscribers))
	for _, fn := range m.subscribers {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(d)
	}
}

// Grant issues a new delegation of kind on ino to client. It is rejected
// with ConflictingWrite if any active write delegation already exists on
// ino (for a read or write request), and ConflictingRead if granting a
// write while any active read delegation exists.
func (m *Manager) Grant(ino types.InodeId, kind Kind, client ClientID) (*Delegation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, d := range m.byIno[ino] {
		if d.State != StateActive {
			continue
		}
		if d.Kind == KindWrite {
			return nil, distfserrors.NewConflicting(distfserrors.ConflictingWrite, uint64(ino))
		}
		if kind == KindWrite {
			return nil, distfserrors.NewConflicting(distfserrors.ConflictingRead, uint64(ino))
		}
	}

	m.nextID++
	d := &Delegation{
		ID:        m.nextID,
		Ino:       ino,
		Kind:      kind,
		Client:    client,
		State:     StateActive,
		GrantedAt: m.clk.Now(),
		Lease:     m.lease,
	}
	if m.byIno[ino] == nil {
		m.byIno[ino] = make(map[ID]*Delegation)
	}
	m.byIno[ino][d.ID] = d
	m.byID[d.ID] = d
	return d, nil
}

// RecallForIno moves every active delegation on ino to Recalled, notifies
// subscribers of each, and returns the IDs it recalled.
func (m *Manager) RecallForIno(ino types.InodeId) []ID {
	m.mu.Lock()
	var recalled []Delegation
	for _, d := range m.byIno[ino] {
		if d.State == StateActive {
			d.State = StateRecalled
			recalled = append(recalled, *d)
		}
	}
	m.mu.Unlock()

	ids := make([]ID, 0, len(recalled))
	for _, d := range recalled {
		ids = append(ids, d.ID)
		m.notify(d)
	}
	return ids
}

// Return transitions id from Active or Recalled to Returned.
func (m *Manager) Return(id ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.byID[id]
	if !ok {
		return distfserrors.NewNotFound(distfserrors.NotFoundDelegation, "")
	}
	if d.State != StateActive && d.State != StateRecalled {
		return distfserrors.NewInvalidArgument("delegation not returnable from state " + d.State.String())
	}
	d.State = StateReturned
	return nil
}

// RevokeExpired moves every active delegation past its lease deadline
// (as of now) to Revoked, notifies subscribers of each,
// and returns their IDs.
func (m *Manager) RevokeExpired(now time.Time) []ID {
	m.mu.Lock()
	var revoked []Delegation
	for _, d := range m.byID {
		if d.State == StateActive && now.After(d.expiresAt()) {
			d.State = StateRevoked
			revoked = append(revoked, *d)
		}
	}
	m.mu.Unlock()

	ids := make([]ID, 0, len(revoked))
	for _, d := range revoked {
		ids = append(ids, d.ID)
		m.notify(d)
	}
	return ids
}

// Revoke force-transitions id to Revoked from any state, including
// Returned and Revoked, regardless of lease expiry, and notifies
// subscribers.
func (m *Manager) Revoke(id ID) error {
	m.mu.Lock()
	d, ok := m.byID[id]
	if !ok {
		m.mu.Unlock()
		return distfserrors.NewNotFound(distfserrors.NotFoundDelegation, "")
	}
	d.State = StateRevoked
	snapshot := *d
	m.mu.Unlock()

	m.notify(snapshot)
	return nil
}

// Get returns a copy of the delegation record for id.
func (m *Manager) Get(id ID) (Delegation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.byID[id]
	if !ok {
		return Delegation{}, false
	}
	return *d, true
}
