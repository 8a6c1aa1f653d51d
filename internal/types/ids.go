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

// Package types holds the scalar identifiers and records shared across
// distfs's metadata, reduction, and replication subsystems. They are kept
// as distinct, non-interchangeable types per the data model so a ShardId
// can never be passed where a Term is expected.
package types

import (
	"fmt"

	"github.com/jacobsa/fuse/fuseops"
)

// InodeId identifies an inode. It is realized as fuseops.InodeID so the
// metadata layer and the FUSE adapters agree on a single wire-compatible
// inode identity, the same way the teacher's fs/inode package does.
type InodeId = fuseops.InodeID

// RootInodeId is the inode ID of the filesystem root.
const RootInodeId InodeId = fuseops.RootInodeID

// DefaultNumShards is the default number of shards the inode table spreads
// inodes across (ino mod num_shards).
const DefaultNumShards = 256

// ShardOf computes the shard ID an inode belongs to.
func ShardOf(ino InodeId, numShards uint16) ShardId {
	if numShards == 0 {
		numShards = DefaultNumShards
	}
	return ShardId(uint64(ino) % uint64(numShards))
}

// NodeId identifies a metadata server node in a Raft cluster.
type NodeId uint64

func (n NodeId) String() string { return fmt.Sprintf("node-%d", uint64(n)) }

// ShardId identifies a metadata shard.
type ShardId uint16

func (s ShardId) String() string { return fmt.Sprintf("shard-%d", uint16(s)) }

// Term is a Raft election term.
type Term uint64

// LogIndex is a position in the Raft replicated log.
type LogIndex uint64

// SiteId identifies a replication site (cluster) in cross-site replication.
type SiteId uint64
