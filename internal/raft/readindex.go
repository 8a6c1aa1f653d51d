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

package raft

import (
	"sync"
	"time"

	"github.com/dreamware/distfs/clock"
	"github.com/dreamware/distfs/internal/metrics"
	"github.com/dreamware/distfs/internal/types"
)

// ReadStatus is the lifecycle state of a pending linearizable read.
type ReadStatus int

const (
	WaitingForQuorum ReadStatus = iota
	WaitingForApply
	Ready
	TimedOut
)

func (s ReadStatus) String() string {
	switch s {
	case WaitingForQuorum:
		return "waiting_for_quorum"
	case WaitingForApply:
		return "waiting_for_apply"
	case Ready:
		return "ready"
	case TimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// ReadID identifies a pending ReadIndex request.
type ReadID uint64

type pendingRead struct {
	readIndex    types.LogIndex
	clusterSize  int
	acks         int
	quorumMet    bool
	startedAt    time.Time
	deadline     time.Time
	timedOut     bool
}

// ReadIndexManager tracks in-flight linearizable reads across their
// quorum-then-apply lifecycle (spec.md §4.11). Each read captures the
// cluster size active when it was registered, so a membership change
// mid-flight doesn't change what counts as quorum for that read.
type ReadIndexManager struct {
	mu          sync.Mutex
	clk         clock.Clock
	timeout     time.Duration
	nextID      ReadID
	reads       map[ReadID]*pendingRead
	lastApplied types.LogIndex
	metrics     *metrics.Collector
}

// NewReadIndexManager constructs a manager. clusterSize seeds nothing by
// itself; it exists so callers constructing a Node can size peer slices
// consistently, but every read captures its own clusterSize explicitly.
func NewReadIndexManager(clusterSize int) *ReadIndexManager {
	return &ReadIndexManager{
		clk:     clock.RealClock{},
		timeout: 2 * time.Second,
		reads:   make(map[ReadID]*pendingRead),
	}
}

// WithClock overrides the manager's clock, for deterministic tests.
func (m *ReadIndexManager) WithClock(clk clock.Clock, timeout time.Duration) *ReadIndexManager {
	m.clk = clk
	m.timeout = timeout
	return m
}

// WithMetrics attaches a Collector that CheckStatus and CleanupTimedOut
// report outcomes to. A nil Collector (the default) makes that reporting
// a no-op, so attaching metrics is opt-in.
func (m *ReadIndexManager) WithMetrics(c *metrics.Collector) *ReadIndexManager {
	m.metrics = c
	return m
}

// RegisterRead begins tracking a new read at the given commit index and
// cluster size (step 1 of the ReadIndex protocol).
func (m *ReadIndexManager) RegisterRead(commitIndex types.LogIndex, clusterSize int) ReadID {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	id := m.nextID
	now := m.clk.Now()
	m.reads[id] = &pendingRead{
		readIndex:   commitIndex,
		clusterSize: clusterSize,
		acks:        1, // leader counts itself
		startedAt:   now,
		deadline:    now.Add(m.timeout),
	}
	return id
}

// ConfirmHeartbeat records one more quorum-ack for id (step 2).
func (m *ReadIndexManager) ConfirmHeartbeat(id ReadID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.reads[id]
	if !ok || r.timedOut {
		return
	}
	r.acks++
	if r.acks >= QuorumSize(r.clusterSize) {
		r.quorumMet = true
	}
}

// NotifyApplied advances the manager's view of the state machine's
// lastApplied index (step 3's precondition).
func (m *ReadIndexManager) NotifyApplied(applied types.LogIndex) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if applied > m.lastApplied {
		m.lastApplied = applied
	}
}

// CheckStatus reports id's current ReadStatus.
func (m *ReadIndexManager) CheckStatus(id ReadID) ReadStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.reads[id]
	if !ok {
		m.recordStatus(TimedOut)
		return TimedOut
	}
	if r.timedOut {
		m.recordStatus(TimedOut)
		return TimedOut
	}
	if !r.quorumMet {
		m.recordStatus(WaitingForQuorum)
		return WaitingForQuorum
	}
	if m.lastApplied < r.readIndex {
		m.recordStatus(WaitingForApply)
		return WaitingForApply
	}
	m.recordStatus(Ready)
	return Ready
}

func (m *ReadIndexManager) recordStatus(s ReadStatus) {
	if m.metrics == nil {
		return
	}
	m.metrics.ReadIndexWaits.WithLabelValues(s.String()).Inc()
}

// CleanupTimedOut sweeps every pending read past its deadline (as of the
// manager's clock) into TimedOut, and returns their IDs. Reads already
// Ready are left alone; CheckStatus for them still returns Ready even
// after this sweep runs, since completed reads don't need a timeout.
func (m *ReadIndexManager) CleanupTimedOut() []ReadID {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clk.Now()
	var timedOut []ReadID
	for id, r := range m.reads {
		if r.timedOut {
			continue
		}
		ready := r.quorumMet && m.lastApplied >= r.readIndex
		if ready {
			continue
		}
		if now.After(r.deadline) {
			r.timedOut = true
			timedOut = append(timedOut, id)
			m.recordStatus(TimedOut)
		}
	}
	return timedOut
}

// Forget drops id's bookkeeping once the caller has consumed its result.
func (m *ReadIndexManager) Forget(id ReadID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.reads, id)
}
