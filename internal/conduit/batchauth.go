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

package conduit

import (
	"crypto/hmac"
	"crypto/sha256"

	"github.com/dreamware/distfs/internal/distfserrors"
	"github.com/dreamware/distfs/internal/keymanager"
)

// batchAuthInfo is the HKDF info label DeriveSubkey uses to produce the
// batch-auth HMAC key, keeping it domain-separated from any other subkey
// derived off the same KEK.
const batchAuthInfo = "distfs-conduit-batch-auth-v1"

// DerivePeerKey derives the 32-byte HMAC key used to authenticate
// replication batches, from KEK generation kek via HKDF. The key depends
// only on kek, not on which peer site it is used with.
func DerivePeerKey(km *keymanager.Manager, kek keymanager.KeyID) ([]byte, error) {
	return km.DeriveSubkey(kek, batchAuthInfo, sha256.Size)
}

// SignBatch computes the HMAC-SHA-256 MAC of batch bytes under key.
func SignBatch(key, batch []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(batch)
	return mac.Sum(nil)
}

// VerifyBatch checks tag against the HMAC-SHA-256 of batch under key
// using a constant-time comparison.
func VerifyBatch(key, batch, tag []byte) error {
	expected := SignBatch(key, batch)
	if !hmac.Equal(expected, tag) {
		return distfserrors.NewIntegrity(distfserrors.IntegrityFingerprintMismatch)
	}
	return nil
}
