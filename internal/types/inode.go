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

import "os"

// FileType enumerates the POSIX inode kinds this filesystem tracks.
type FileType int

const (
	FileTypeRegular FileType = iota
	FileTypeDirectory
	FileTypeSymlink
	FileTypeBlockDev
	FileTypeCharDev
	FileTypeFIFO
	FileTypeSocket
)

func (ft FileType) String() string {
	switch ft {
	case FileTypeRegular:
		return "regular"
	case FileTypeDirectory:
		return "directory"
	case FileTypeSymlink:
		return "symlink"
	case FileTypeBlockDev:
		return "block-dev"
	case FileTypeCharDev:
		return "char-dev"
	case FileTypeFIFO:
		return "fifo"
	case FileTypeSocket:
		return "socket"
	default:
		return "unknown"
	}
}

// modeTypeBits returns the os.FileMode type bits matching ft, mirroring the
// invariant that an InodeAttr's mode high bits must agree with FileType.
func (ft FileType) modeTypeBits() os.FileMode {
	switch ft {
	case FileTypeDirectory:
		return os.ModeDir
	case FileTypeSymlink:
		return os.ModeSymlink
	case FileTypeBlockDev:
		return os.ModeDevice
	case FileTypeCharDev:
		return os.ModeDevice | os.ModeCharDevice
	case FileTypeFIFO:
		return os.ModeNamedPipe
	case FileTypeSocket:
		return os.ModeSocket
	default:
		return 0
	}
}

// ModeTypeBitsAgree reports whether mode's high (type) bits match ft, per
// the InodeAttr invariant in the data model.
func ModeTypeBitsAgree(ft FileType, mode os.FileMode) bool {
	return mode&os.ModeType == ft.modeTypeBits()
}

// ModeBits exposes ft's os.FileMode type bits, for callers constructing a
// full InodeAttr.Mode from a raw permission value.
func (ft FileType) ModeBits() os.FileMode { return ft.modeTypeBits() }

// ReplicationState tags an inode's cross-site replication progress.
type ReplicationState int

const (
	ReplicationLocal ReplicationState = iota
	ReplicationPending
	ReplicationReplicated
	ReplicationConflict
)

func (r ReplicationState) String() string {
	switch r {
	case ReplicationLocal:
		return "local"
	case ReplicationPending:
		return "pending"
	case ReplicationReplicated:
		return "replicated"
	case ReplicationConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// InodeAttr is the attribute record the shard-local inode table owns for
// every live inode.
type InodeAttr struct {
	Ino             InodeId
	FileType        FileType
	Mode            os.FileMode
	Nlink           uint32
	Uid             uint32
	Gid             uint32
	Size            uint64
	Blocks          uint64
	Atime           Timestamp
	Mtime           Timestamp
	Ctime           Timestamp
	Crtime          Timestamp
	ContentHash     *[32]byte
	ReplState       ReplicationState
	VectorClock     VectorClock
	Generation      uint64
	SymlinkTarget   string
}

// IsDir reports whether the attribute describes a directory.
func (a *InodeAttr) IsDir() bool { return a.FileType == FileTypeDirectory }

// DirEntry is a single (name -> ino) mapping within a directory.
type DirEntry struct {
	Name     string
	Ino      InodeId
	FileType FileType
}

// NameMax bounds DirEntry.Name length, per the data model.
const NameMax = 255
