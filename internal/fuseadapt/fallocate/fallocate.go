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

// Package fallocate decodes the Linux fallocate(2) mode mask into a
// concrete operation (spec.md §4.12), using golang.org/x/sys/unix's
// FALLOC_FL_* constants -- the same package distr1-distri and jacobsa's
// fuse package use for Linux flag bits -- instead of hand-duplicating
// them.
package fallocate

import (
	"golang.org/x/sys/unix"

	"github.com/dreamware/distfs/internal/distfserrors"
)

// Kind distinguishes the five fallocate operations the mode mask decodes
// to.
type Kind int

const (
	KindAllocate Kind = iota
	KindPunchHole
	KindZeroRange
	KindCollapseRange
	KindInsertRange
)

// Op is a decoded fallocate request.
type Op struct {
	Kind     Kind
	Offset   uint64
	Len      uint64
	KeepSize bool
}

// Decode parses a raw fallocate mode mask plus the offset/len FUSE
// supplies alongside it.
func Decode(mode uint32, offset, length uint64) (Op, error) {
	punchHole := mode&unix.FALLOC_FL_PUNCH_HOLE != 0
	keepSize := mode&unix.FALLOC_FL_KEEP_SIZE != 0
	collapse := mode&unix.FALLOC_FL_COLLAPSE_RANGE != 0
	zero := mode&unix.FALLOC_FL_ZERO_RANGE != 0
	insert := mode&unix.FALLOC_FL_INSERT_RANGE != 0

	if punchHole && !keepSize {
		return Op{}, distfserrors.NewInvalidArgument("PUNCH_HOLE requires KEEP_SIZE")
	}
	if collapse && insert {
		return Op{}, distfserrors.NewInvalidArgument("COLLAPSE_RANGE and INSERT_RANGE are mutually exclusive")
	}
	if punchHole && (collapse || insert) {
		return Op{}, distfserrors.NewInvalidArgument("PUNCH_HOLE cannot combine with COLLAPSE_RANGE or INSERT_RANGE")
	}

	switch {
	case collapse:
		return Op{Kind: KindCollapseRange, Offset: offset, Len: length}, nil
	case insert:
		return Op{Kind: KindInsertRange, Offset: offset, Len: length}, nil
	case punchHole:
		return Op{Kind: KindPunchHole, Offset: offset, Len: length, KeepSize: true}, nil
	case zero:
		return Op{Kind: KindZeroRange, Offset: offset, Len: length, KeepSize: keepSize}, nil
	default:
		return Op{Kind: KindAllocate, KeepSize: keepSize}, nil
	}
}

// IsSpaceSaving reports whether op can only shrink the file's allocated
// extent (never grows it).
func (o Op) IsSpaceSaving() bool {
	return o.Kind == KindPunchHole || o.Kind == KindCollapseRange
}

// ModifiesSize reports whether op changes the file's apparent size.
func (o Op) ModifiesSize() bool {
	switch o.Kind {
	case KindAllocate:
		return !o.KeepSize
	case KindCollapseRange, KindInsertRange:
		return true
	default:
		return false
	}
}
