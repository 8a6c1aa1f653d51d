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

import "time"

// Timestamp is a (seconds, nanoseconds) pair since the Unix epoch, totally
// ordered by (Secs, Nanos). Kept as a plain value type (rather than
// time.Time) so it serializes compactly and compares with ==.
type Timestamp struct {
	Secs  int64
	Nanos int32
}

// Now returns the current time as a Timestamp.
func Now() Timestamp {
	return FromTime(time.Now())
}

// FromTime converts a time.Time into a Timestamp.
func FromTime(t time.Time) Timestamp {
	return Timestamp{Secs: t.Unix(), Nanos: int32(t.Nanosecond())}
}

// Time converts the Timestamp back into a time.Time (UTC).
func (t Timestamp) Time() time.Time {
	return time.Unix(t.Secs, int64(t.Nanos)).UTC()
}

// Before reports whether t is strictly before o.
func (t Timestamp) Before(o Timestamp) bool {
	if t.Secs != o.Secs {
		return t.Secs < o.Secs
	}
	return t.Nanos < o.Nanos
}

// Add returns t shifted by d.
func (t Timestamp) Add(d time.Duration) Timestamp {
	return FromTime(t.Time().Add(d))
}

// VectorClock orders cross-site writes. Ordering is lexicographic on
// (Sequence, SiteId); a larger pair wins conflict resolution.
type VectorClock struct {
	SiteId   SiteId
	Sequence uint64
}

// NewVectorClock builds a VectorClock for siteID at the given sequence.
func NewVectorClock(siteID SiteId, sequence uint64) VectorClock {
	return VectorClock{SiteId: siteID, Sequence: sequence}
}

// Less reports whether v sorts before o under (Sequence, SiteId) order.
func (v VectorClock) Less(o VectorClock) bool {
	if v.Sequence != o.Sequence {
		return v.Sequence < o.Sequence
	}
	return v.SiteId < o.SiteId
}

// Dominates reports whether v should win a conflict against o (v is not
// less than o and the two differ).
func (v VectorClock) Dominates(o VectorClock) bool {
	return v != o && !v.Less(o)
}
