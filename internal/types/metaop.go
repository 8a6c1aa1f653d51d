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

package types

// MetaOpKind enumerates the committed metadata operations the journal and
// Raft log carry.
type MetaOpKind int

const (
	MetaOpCreate MetaOpKind = iota
	MetaOpUnlink
	MetaOpMkdir
	MetaOpRmdir
	MetaOpRename
	MetaOpLink
	MetaOpSetAttr
	MetaOpSymlink
	MetaOpSetXattr
	MetaOpRemoveXattr
)

func (k MetaOpKind) String() string {
	switch k {
	case MetaOpCreate:
		return "Create"
	case MetaOpUnlink:
		return "Unlink"
	case MetaOpMkdir:
		return "Mkdir"
	case MetaOpRmdir:
		return "Rmdir"
	case MetaOpRename:
		return "Rename"
	case MetaOpLink:
		return "Link"
	case MetaOpSetAttr:
		return "SetAttr"
	case MetaOpSymlink:
		return "Symlink"
	case MetaOpSetXattr:
		return "SetXattr"
	case MetaOpRemoveXattr:
		return "RemoveXattr"
	default:
		return "Unknown"
	}
}

// MetaOp is a single committed metadata mutation, the unit the journal
// records and the replication conduit tails.
type MetaOp struct {
	Kind      MetaOpKind
	Ino       InodeId
	Parent    InodeId
	Name      string
	NewParent InodeId
	NewName   string
}

// CreatesIno reports whether the op is the op that brought Ino into being.
func (m MetaOp) CreatesIno() bool {
	switch m.Kind {
	case MetaOpCreate, MetaOpMkdir, MetaOpSymlink:
		return true
	default:
		return false
	}
}

// DeletesIno reports whether the op removes Ino from the namespace.
func (m MetaOp) DeletesIno() bool {
	switch m.Kind {
	case MetaOpUnlink, MetaOpRmdir:
		return true
	default:
		return false
	}
}

// JournalEntry is a single committed, sequenced record in the metadata
// journal.
type JournalEntry struct {
	Sequence    uint64
	Op          MetaOp
	CommittedAt Timestamp
	LogIndex    LogIndex
	VectorClock VectorClock
}

// PlacementHint tags a write with its target storage tier, for FDP-aware
// devices.
type PlacementHint int

const (
	PlacementMetadata PlacementHint = iota
	PlacementHotData
	PlacementWarmData
	PlacementColdData
	PlacementSnapshot
	PlacementJournal
)

// ReclaimUnitHandle returns the default FDP Reclaim Unit Handle index for a
// hint (Metadata=0, Hot=1, Warm=2, Cold=3, Snapshot=4, Journal=5).
func (p PlacementHint) ReclaimUnitHandle() int {
	return int(p)
}
