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

// Package raft implements the metadata service's commit and
// linearizable-read protocol (spec.md §4.11): a follower/candidate/leader
// state machine driving a replicated log, plus the ReadIndex quorum
// protocol for read-only queries that must not stale-read the state
// machine. The wire-level RequestVote/AppendEntries exchange is a
// consumed contract (an interface this package calls, not one it
// transports) since no consensus transport ships in the corpus -- no
// hashicorp/raft, no etcd/raft -- so the state machine is hand-written,
// the way the teacher hand-writes its own FUSE op dispatch loop rather
// than importing one.
package raft

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/dreamware/distfs/internal/distfserrors"
	"github.com/dreamware/distfs/internal/metrics"
	"github.com/dreamware/distfs/internal/types"
)

// Role is a node's position in the Raft state machine.
type Role int

const (
	RoleFollower Role = iota
	RoleCandidate
	RoleLeader
)

func (r Role) String() string {
	switch r {
	case RoleFollower:
		return "follower"
	case RoleCandidate:
		return "candidate"
	case RoleLeader:
		return "leader"
	default:
		return "unknown"
	}
}

// Term is a Raft election term.
type Term uint64

// RequestVoteArgs/Reply and AppendEntriesArgs/Reply mirror the standard
// Raft RPC shapes. Transport is out of scope; a Peer implementation sends
// these over whatever internal/transport or internal/conduit provides.
type RequestVoteArgs struct {
	Term         Term
	CandidateID  types.NodeId
	LastLogIndex types.LogIndex
	LastLogTerm  Term
}

type RequestVoteReply struct {
	Term        Term
	VoteGranted bool
}

type AppendEntriesArgs struct {
	Term         Term
	LeaderID     types.NodeId
	PrevLogIndex types.LogIndex
	PrevLogTerm  Term
	Entries      []LogEntry
	LeaderCommit types.LogIndex
}

type AppendEntriesReply struct {
	Term    Term
	Success bool
	// MatchIndex lets the leader fast-forward nextIndex on success.
	MatchIndex types.LogIndex
}

// LogEntry is one slot in the replicated log.
type LogEntry struct {
	Index types.LogIndex
	Term  Term
	Op    types.MetaOp
}

// Peer is the consumed transport contract: something that can be asked to
// vote or append entries over the wire.
type Peer interface {
	ID() types.NodeId
	RequestVote(ctx context.Context, args RequestVoteArgs) (RequestVoteReply, error)
	AppendEntries(ctx context.Context, args AppendEntriesArgs) (AppendEntriesReply, error)
}

// Node is one member of a Raft cluster. It owns the in-memory log and
// applies committed entries to apply, its pluggable state machine sink.
type Node struct {
	mu sync.Mutex

	id    types.NodeId
	peers []Peer

	role        Role
	currentTerm Term
	votedFor    *types.NodeId

	log         []LogEntry // log[0] is a sentinel at index 0
	commitIndex types.LogIndex
	lastApplied types.LogIndex

	apply func(types.MetaOp)

	readIndex *ReadIndexManager
	metrics   *metrics.Collector
}

// WithMetrics attaches a Collector that role transitions and
// AppendEntries/Propose outcomes report to. A nil Collector (the
// default) makes that reporting a no-op. It also propagates to the
// node's ReadIndexManager, so a single call wires both.
func (n *Node) WithMetrics(c *metrics.Collector) *Node {
	n.metrics = c
	n.readIndex.WithMetrics(c)
	return n
}

func (n *Node) recordOp(op string) {
	if n.metrics == nil {
		return
	}
	n.metrics.OpsTotal.WithLabelValues(op).Inc()
}

func (n *Node) recordErr(kind string) {
	if n.metrics == nil {
		return
	}
	n.metrics.ErrorsTotal.WithLabelValues(kind).Inc()
}

// NewNode constructs a Node starting as a follower in term 0.
func NewNode(id types.NodeId, peers []Peer, apply func(types.MetaOp)) *Node {
	n := &Node{
		id:    id,
		peers: peers,
		role:  RoleFollower,
		log:   []LogEntry{{}}, // sentinel
		apply: apply,
	}
	n.readIndex = NewReadIndexManager(len(peers) + 1)
	return n
}

// Role reports the node's current role.
func (n *Node) Role() Role {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.role
}

// Term reports the node's current term.
func (n *Node) Term() Term {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.currentTerm
}

// BecomeCandidate transitions Follower/Candidate -> Candidate, bumping
// the term and voting for self.
func (n *Node) BecomeCandidate() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.currentTerm++
	n.role = RoleCandidate
	self := n.id
	n.votedFor = &self
	n.recordOp("raft_become_candidate")
}

// BecomeLeader transitions Candidate -> Leader after winning an election.
func (n *Node) BecomeLeader() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.role = RoleLeader
	n.recordOp("raft_become_leader")
}

// StepDown transitions any role -> Follower on observing a higher term.
func (n *Node) StepDown(term Term) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if term > n.currentTerm {
		n.currentTerm = term
		n.votedFor = nil
	}
	n.role = RoleFollower
}

// HandleRequestVote implements the voter side of leader election: grant
// exactly one vote per term, and only to a candidate whose log is at
// least as up to date as the voter's.
func (n *Node) HandleRequestVote(args RequestVoteArgs) RequestVoteReply {
	n.mu.Lock()
	defer n.mu.Unlock()

	if args.Term < n.currentTerm {
		return RequestVoteReply{Term: n.currentTerm, VoteGranted: false}
	}
	if args.Term > n.currentTerm {
		n.currentTerm = args.Term
		n.votedFor = nil
		n.role = RoleFollower
	}

	lastIdx, lastTerm := n.lastLogInfoLocked()
	logOK := args.LastLogTerm > lastTerm ||
		(args.LastLogTerm == lastTerm && args.LastLogIndex >= lastIdx)

	if (n.votedFor == nil || *n.votedFor == args.CandidateID) && logOK {
		c := args.CandidateID
		n.votedFor = &c
		return RequestVoteReply{Term: n.currentTerm, VoteGranted: true}
	}
	return RequestVoteReply{Term: n.currentTerm, VoteGranted: false}
}

// HandleAppendEntries implements the follower side of log replication and
// heartbeats (an AppendEntries with zero Entries is a heartbeat).
func (n *Node) HandleAppendEntries(args AppendEntriesArgs) AppendEntriesReply {
	n.mu.Lock()
	defer n.mu.Unlock()

	if args.Term < n.currentTerm {
		n.recordErr("stale_term")
		return AppendEntriesReply{Term: n.currentTerm, Success: false}
	}
	n.currentTerm = args.Term
	n.role = RoleFollower

	if args.PrevLogIndex > 0 {
		if int(args.PrevLogIndex) >= len(n.log) ||
			n.log[args.PrevLogIndex].Term != args.PrevLogTerm {
			n.recordErr("log_mismatch")
			return AppendEntriesReply{Term: n.currentTerm, Success: false}
		}
	}

	for _, e := range args.Entries {
		if int(e.Index) < len(n.log) {
			if n.log[e.Index].Term != e.Term {
				n.log = n.log[:e.Index]
				n.log = append(n.log, e)
			}
			// else already present, identical -- no-op
		} else {
			n.log = append(n.log, e)
		}
	}

	if args.LeaderCommit > n.commitIndex {
		lastNew := args.PrevLogIndex + types.LogIndex(len(args.Entries))
		if args.LeaderCommit < lastNew {
			n.commitIndex = args.LeaderCommit
		} else {
			n.commitIndex = lastNew
		}
	}
	n.applyCommittedLocked()

	return AppendEntriesReply{
		Term:       n.currentTerm,
		Success:    true,
		MatchIndex: types.LogIndex(len(n.log) - 1),
	}
}

func (n *Node) lastLogInfoLocked() (types.LogIndex, Term) {
	last := n.log[len(n.log)-1]
	return last.Index, last.Term
}

func (n *Node) applyCommittedLocked() {
	for n.lastApplied < n.commitIndex {
		n.lastApplied++
		n.apply(n.log[n.lastApplied].Op)
	}
}

// Propose appends op to the leader's log. Only the leader may propose;
// followers and candidates get ErrNotLeader.
func (n *Node) Propose(op types.MetaOp) (types.LogIndex, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.role != RoleLeader {
		n.recordErr("not_leader")
		return 0, distfserrors.NewNotLeader("")
	}

	idx := types.LogIndex(len(n.log))
	n.log = append(n.log, LogEntry{Index: idx, Term: n.currentTerm, Op: op})
	return idx, nil
}

// CommitIndex reports the node's current commit index, for the ReadIndex
// protocol's step 1.
func (n *Node) CommitIndex() types.LogIndex {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.commitIndex
}

// LastApplied reports how far the state machine has caught up.
func (n *Node) LastApplied() types.LogIndex {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.lastApplied
}

// BroadcastHeartbeat fans an empty AppendEntries out to every peer
// concurrently via errgroup, the teacher's fan-out idiom, and reports how
// many (including self) responded with a current-term success -- the
// quorum count ReadIndex needs for step 2.
func (n *Node) BroadcastHeartbeat(ctx context.Context) (acks int, err error) {
	n.mu.Lock()
	term := n.currentTerm
	commit := n.commitIndex
	peers := append([]Peer(nil), n.peers...)
	n.mu.Unlock()

	var mu sync.Mutex
	acks = 1 // self

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range peers {
		p := p
		g.Go(func() error {
			reply, rerr := p.AppendEntries(gctx, AppendEntriesArgs{
				Term:         term,
				LeaderID:     n.id,
				LeaderCommit: commit,
			})
			if rerr != nil {
				return nil // a failed peer just doesn't ack; not fatal to the round
			}
			if reply.Term > term {
				n.StepDown(reply.Term)
				return nil
			}
			if reply.Success {
				mu.Lock()
				acks++
				mu.Unlock()
			}
			return nil
		})
	}
	if werr := g.Wait(); werr != nil {
		return acks, werr
	}
	return acks, nil
}

// QuorumSize returns floor(N/2)+1 for a cluster of n members.
func QuorumSize(n int) int {
	return n/2 + 1
}
