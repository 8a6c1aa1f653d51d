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

package codec

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTripZstd(t *testing.T) {
	data := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog "), 500)

	enc, err := Encode(data, false)
	require.NoError(t, err)
	assert.Equal(t, AlgorithmZstd, enc.Algorithm)
	assert.Less(t, len(enc.Data), len(data))

	out, err := Decode(enc)
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func TestEncodeDecodeRoundTripFast(t *testing.T) {
	data := bytes.Repeat([]byte("compressible-compressible-compressible-"), 200)

	enc, err := Encode(data, true)
	require.NoError(t, err)
	assert.Equal(t, AlgorithmFast, enc.Algorithm)

	out, err := Decode(enc)
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func TestEncodeSkipsHighEntropyData(t *testing.T) {
	data := make([]byte, 8192)
	_, err := rand.Read(data)
	require.NoError(t, err)

	enc, err := Encode(data, false)
	require.NoError(t, err)
	assert.Equal(t, AlgorithmNone, enc.Algorithm)
	assert.Equal(t, data, enc.Data)

	out, err := Decode(enc)
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func TestEncodeEmptyInput(t *testing.T) {
	enc, err := Encode(nil, false)
	require.NoError(t, err)
	assert.Equal(t, AlgorithmNone, enc.Algorithm)

	out, err := Decode(enc)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestDecodeUnknownAlgorithm(t *testing.T) {
	_, err := Decode(Encoded{Algorithm: Algorithm(255), Data: []byte("x")})
	assert.Error(t, err)
}

func TestAlgorithmString(t *testing.T) {
	assert.Equal(t, "none", AlgorithmNone.String())
	assert.Equal(t, "zstd", AlgorithmZstd.String())
	assert.Equal(t, "fast", AlgorithmFast.String())
}
