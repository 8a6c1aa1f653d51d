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
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dreamware/distfs/internal/fingerprint"
)

func TestPackerSealsAtTargetSize(t *testing.T) {
	p := NewPacker(16)

	p.Add(fingerprint.Hash([]byte("a")), []byte("01234567"))
	assert.Empty(t, p.Sealed())

	p.Add(fingerprint.Hash([]byte("b")), []byte("89abcdef"))
	sealed := p.Sealed()
	assert.Len(t, sealed, 1)
	assert.Equal(t, []byte("0123456789abcdef"), sealed[0].Bytes)
	assert.Len(t, sealed[0].Hashes, 2)
}

func TestPackerFlushSealsPartial(t *testing.T) {
	p := NewPacker(1 << 20)
	p.Add(fingerprint.Hash([]byte("only-one")), []byte("partial"))

	assert.Empty(t, p.Sealed())
	p.Flush()

	sealed := p.Sealed()
	assert.Len(t, sealed, 1)
	assert.Equal(t, []byte("partial"), sealed[0].Bytes)
}

func TestPackerSealedDrains(t *testing.T) {
	p := NewPacker(1)
	p.Add(fingerprint.Hash([]byte("x")), []byte("x"))

	first := p.Sealed()
	assert.Len(t, first, 1)

	second := p.Sealed()
	assert.Empty(t, second)
}

func TestNewPackerDefaultsTargetSize(t *testing.T) {
	p := NewPacker(0)
	assert.Equal(t, uint64(8<<20), p.targetSize)
}
