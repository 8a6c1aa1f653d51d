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

package similarity

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// DeltaEncode compresses data against reference using reference as a
// Zstd dictionary, exploiting a Tier-2 similarity match to shrink a
// near-duplicate chunk to roughly the size of its differences from the
// matched chunk.
func DeltaEncode(data, reference []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderDict(reference))
	if err != nil {
		return nil, fmt.Errorf("similarity: build delta encoder: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil), nil
}

// DeltaDecode reverses DeltaEncode. The caller must supply the exact same
// reference bytes used at encode time -- the matched chunk's payload must
// still be retrievable from CAS/segment storage for this to succeed.
func DeltaDecode(encoded, reference []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil, zstd.WithDecoderDicts(reference))
	if err != nil {
		return nil, fmt.Errorf("similarity: build delta decoder: %w", err)
	}
	defer dec.Close()
	return dec.DecodeAll(encoded, nil)
}
