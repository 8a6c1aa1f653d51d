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

package fallocate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestDecodePlainAllocate(t *testing.T) {
	op, err := Decode(0, 0, 100)
	require.NoError(t, err)
	assert.Equal(t, KindAllocate, op.Kind)
	assert.False(t, op.KeepSize)
}

func TestDecodeAllocateKeepSizeDoesNotModifySize(t *testing.T) {
	op, err := Decode(unix.FALLOC_FL_KEEP_SIZE, 0, 100)
	require.NoError(t, err)
	assert.True(t, op.KeepSize)
	assert.False(t, op.ModifiesSize())
}

func TestDecodePunchHoleRequiresKeepSize(t *testing.T) {
	_, err := Decode(unix.FALLOC_FL_PUNCH_HOLE, 0, 100)
	assert.Error(t, err)

	op, err := Decode(unix.FALLOC_FL_PUNCH_HOLE|unix.FALLOC_FL_KEEP_SIZE, 10, 20)
	require.NoError(t, err)
	assert.Equal(t, KindPunchHole, op.Kind)
	assert.True(t, op.IsSpaceSaving())
}

func TestDecodeCollapseAndInsertAreMutuallyExclusive(t *testing.T) {
	_, err := Decode(unix.FALLOC_FL_COLLAPSE_RANGE|unix.FALLOC_FL_INSERT_RANGE, 0, 100)
	assert.Error(t, err)
}

func TestDecodePunchHoleCannotCombineWithCollapse(t *testing.T) {
	_, err := Decode(unix.FALLOC_FL_PUNCH_HOLE|unix.FALLOC_FL_KEEP_SIZE|unix.FALLOC_FL_COLLAPSE_RANGE, 0, 100)
	assert.Error(t, err)
}

func TestDecodeZeroRangeCarriesKeepSize(t *testing.T) {
	op, err := Decode(unix.FALLOC_FL_ZERO_RANGE, 5, 10)
	require.NoError(t, err)
	assert.Equal(t, KindZeroRange, op.Kind)
	assert.False(t, op.KeepSize)
	assert.False(t, op.ModifiesSize())
}

func TestDecodeCollapseRangeModifiesSize(t *testing.T) {
	op, err := Decode(unix.FALLOC_FL_COLLAPSE_RANGE, 0, 50)
	require.NoError(t, err)
	assert.True(t, op.ModifiesSize())
	assert.True(t, op.IsSpaceSaving())
}

func TestDecodeInsertRangeModifiesSize(t *testing.T) {
	op, err := Decode(unix.FALLOC_FL_INSERT_RANGE, 0, 50)
	require.NoError(t, err)
	assert.True(t, op.ModifiesSize())
	assert.False(t, op.IsSpaceSaving())
}
