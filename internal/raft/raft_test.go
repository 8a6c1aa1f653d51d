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
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/distfs/internal/metrics"
	"github.com/dreamware/distfs/internal/types"
)

func newTestNode(id types.NodeId, peers []Peer) (*Node, *[]types.MetaOp) {
	applied := &[]types.MetaOp{}
	n := NewNode(id, peers, func(op types.MetaOp) {
		*applied = append(*applied, op)
	})
	return n, applied
}

func TestProposeRequiresLeader(t *testing.T) {
	n, _ := newTestNode(1, nil)
	_, err := n.Propose(types.MetaOp{Kind: types.MetaOpCreate, Ino: 1})
	assert.Error(t, err)
}

func TestProposeSucceedsOnceLeader(t *testing.T) {
	n, _ := newTestNode(1, nil)
	n.BecomeCandidate()
	n.BecomeLeader()

	idx, err := n.Propose(types.MetaOp{Kind: types.MetaOpCreate, Ino: 1})
	require.NoError(t, err)
	assert.Equal(t, types.LogIndex(1), idx)
}

func TestHandleRequestVoteGrantsOncePerTerm(t *testing.T) {
	n, _ := newTestNode(1, nil)

	reply1 := n.HandleRequestVote(RequestVoteArgs{Term: 1, CandidateID: 2})
	assert.True(t, reply1.VoteGranted)

	reply2 := n.HandleRequestVote(RequestVoteArgs{Term: 1, CandidateID: 3})
	assert.False(t, reply2.VoteGranted, "same term must not grant a second vote")
}

func TestHandleRequestVoteRejectsStaleTerm(t *testing.T) {
	n, _ := newTestNode(1, nil)
	n.StepDown(5)

	reply := n.HandleRequestVote(RequestVoteArgs{Term: 3, CandidateID: 2})
	assert.False(t, reply.VoteGranted)
	assert.Equal(t, Term(5), reply.Term)
}

func TestHandleAppendEntriesRejectsStaleTerm(t *testing.T) {
	n, _ := newTestNode(1, nil)
	n.StepDown(5)

	reply := n.HandleAppendEntries(AppendEntriesArgs{Term: 2, LeaderID: 2})
	assert.False(t, reply.Success)
}

func TestHandleAppendEntriesAppliesCommittedEntries(t *testing.T) {
	n, applied := newTestNode(1, nil)

	args := AppendEntriesArgs{
		Term: 1,
		Entries: []LogEntry{
			{Index: 1, Term: 1, Op: types.MetaOp{Kind: types.MetaOpCreate, Ino: 1}},
			{Index: 2, Term: 1, Op: types.MetaOp{Kind: types.MetaOpCreate, Ino: 2}},
		},
		LeaderCommit: 2,
	}
	reply := n.HandleAppendEntries(args)
	require.True(t, reply.Success)
	assert.Equal(t, types.LogIndex(2), n.LastApplied())
	require.Len(t, *applied, 2)
	assert.Equal(t, types.InodeId(1), (*applied)[0].Ino)
}

func TestHandleAppendEntriesRejectsLogGap(t *testing.T) {
	n, _ := newTestNode(1, nil)

	reply := n.HandleAppendEntries(AppendEntriesArgs{
		Term:         1,
		PrevLogIndex: 5,
		PrevLogTerm:  1,
	})
	assert.False(t, reply.Success)
}

func TestHandleAppendEntriesTruncatesConflictingSuffix(t *testing.T) {
	n, _ := newTestNode(1, nil)

	n.HandleAppendEntries(AppendEntriesArgs{
		Term: 1,
		Entries: []LogEntry{
			{Index: 1, Term: 1, Op: types.MetaOp{Kind: types.MetaOpCreate, Ino: 1}},
			{Index: 2, Term: 1, Op: types.MetaOp{Kind: types.MetaOpCreate, Ino: 2}},
		},
	})

	reply := n.HandleAppendEntries(AppendEntriesArgs{
		Term:         2,
		PrevLogIndex: 1,
		PrevLogTerm:  1,
		Entries: []LogEntry{
			{Index: 2, Term: 2, Op: types.MetaOp{Kind: types.MetaOpCreate, Ino: 99}},
		},
		LeaderCommit: 2,
	})
	require.True(t, reply.Success)
	assert.Equal(t, types.LogIndex(2), n.LastApplied())
}

type fakePeer struct {
	id      types.NodeId
	reply   AppendEntriesReply
	err     error
}

func (p *fakePeer) ID() types.NodeId { return p.id }

func (p *fakePeer) RequestVote(context.Context, RequestVoteArgs) (RequestVoteReply, error) {
	return RequestVoteReply{}, nil
}

func (p *fakePeer) AppendEntries(context.Context, AppendEntriesArgs) (AppendEntriesReply, error) {
	return p.reply, p.err
}

func TestBroadcastHeartbeatCountsQuorumAcks(t *testing.T) {
	peers := []Peer{
		&fakePeer{id: 2, reply: AppendEntriesReply{Term: 1, Success: true}},
		&fakePeer{id: 3, reply: AppendEntriesReply{Term: 1, Success: true}},
	}
	n, _ := newTestNode(1, peers)
	n.BecomeCandidate()
	n.BecomeLeader()

	acks, err := n.BroadcastHeartbeat(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, acks) // self + 2 peers
}

func TestBroadcastHeartbeatStepsDownOnHigherTerm(t *testing.T) {
	peers := []Peer{
		&fakePeer{id: 2, reply: AppendEntriesReply{Term: 99, Success: false}},
	}
	n, _ := newTestNode(1, peers)
	n.BecomeCandidate()
	n.BecomeLeader()

	_, err := n.BroadcastHeartbeat(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RoleFollower, n.Role())
	assert.Equal(t, Term(99), n.Term())
}

func TestQuorumSize(t *testing.T) {
	assert.Equal(t, 2, QuorumSize(3))
	assert.Equal(t, 3, QuorumSize(5))
	assert.Equal(t, 1, QuorumSize(1))
}

func TestMetricsRecordRoleTransitionsAndErrors(t *testing.T) {
	mc := metrics.New()
	n, _ := newTestNode(1, nil)
	n.WithMetrics(mc)

	n.BecomeCandidate()
	assert.Equal(t, float64(1), testutil.ToFloat64(mc.OpsTotal.WithLabelValues("raft_become_candidate")))

	n.BecomeLeader()
	assert.Equal(t, float64(1), testutil.ToFloat64(mc.OpsTotal.WithLabelValues("raft_become_leader")))

	n.StepDown(99)
	_, err := n.Propose(types.MetaOp{})
	assert.Error(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(mc.ErrorsTotal.WithLabelValues("not_leader")))

	n.HandleAppendEntries(AppendEntriesArgs{Term: 0})
	assert.Equal(t, float64(1), testutil.ToFloat64(mc.ErrorsTotal.WithLabelValues("stale_term")))
}
