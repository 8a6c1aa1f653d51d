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

package pipeline

import (
	"sync"

	"github.com/google/uuid"

	"github.com/dreamware/distfs/internal/fingerprint"
)

// Segment is a sealed batch of chunk payloads, ready to hand to the block
// storage contract (spec.md §6: "a block-addressed store that accepts
// packed segments and returns them by content hash").
type Segment struct {
	ID     uuid.UUID
	Hashes []fingerprint.ChunkHash
	Bytes  []byte
}

// Packer accumulates new-chunk bytes until TargetSize is reached, then
// seals the accumulated bytes into a Segment.
type Packer struct {
	targetSize uint64

	mu      sync.Mutex
	pending []fingerprint.ChunkHash
	buf     []byte
	sealed  []Segment
}

// NewPacker constructs a Packer with the given target segment size. A
// zero targetSize defaults to 8 MiB.
func NewPacker(targetSize uint64) *Packer {
	if targetSize == 0 {
		targetSize = 8 << 20
	}
	return &Packer{targetSize: targetSize}
}

// Add appends a chunk's bytes to the packer's current segment, sealing
// and starting a new one once the target size is reached.
func (p *Packer) Add(h fingerprint.ChunkHash, payload []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.pending = append(p.pending, h)
	p.buf = append(p.buf, payload...)

	if uint64(len(p.buf)) >= p.targetSize {
		p.sealLocked()
	}
}

// Flush seals any partially-filled segment, for use at shutdown or
// unmount when waiting for the target size would lose data.
func (p *Packer) Flush() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.buf) > 0 {
		p.sealLocked()
	}
}

func (p *Packer) sealLocked() {
	seg := Segment{
		ID:     uuid.New(),
		Hashes: append([]fingerprint.ChunkHash(nil), p.pending...),
		Bytes:  append([]byte(nil), p.buf...),
	}
	p.sealed = append(p.sealed, seg)
	p.pending = nil
	p.buf = nil
}

// Sealed drains and returns every segment sealed so far.
func (p *Packer) Sealed() []Segment {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.sealed
	p.sealed = nil
	return out
}
