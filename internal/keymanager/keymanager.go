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

// Package keymanager implements envelope encryption for stored chunks
// (spec.md §4.4): a per-chunk data-encryption key (DEK) is generated,
// used once, and then wrapped by the current key-encryption key (KEK).
// Rotating the KEK never touches already-written ciphertext -- only the
// wrapped DEK is rewrapped.
package keymanager

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/dreamware/distfs/internal/distfserrors"
)

// KeyID identifies one generation of KEK.
type KeyID uint64

// WrappedDEK is a per-chunk data key, already wrapped under some KeyID.
// This is the only per-chunk secret persisted to storage.
type WrappedDEK struct {
	WrappingKeyID KeyID
	Nonce         [12]byte
	Ciphertext    []byte // wrapped DEK + AEAD tag
}

// Manager holds the current KEK plus enough history to unwrap DEKs
// written under older keys. Rotation is serialized behind a single
// writer lock, matching the spec's "single-writer-lock" resource policy
// for key state -- readers needing an old KEK only ever look it up, they
// never mutate history.
type Manager struct {
	mu            sync.RWMutex
	current       KeyID
	keys          map[KeyID][]byte // 32-byte KEKs
	history       []KeyID          // oldest first
	maxKeyHistory int
}

// New constructs a Manager seeded with one randomly generated KEK.
func New(maxKeyHistory int) (*Manager, error) {
	if maxKeyHistory <= 0 {
		maxKeyHistory = 10
	}
	m := &Manager{
		keys:          make(map[KeyID][]byte),
		maxKeyHistory: maxKeyHistory,
	}
	if _, err := m.RotateKey(); err != nil {
		return nil, err
	}
	return m, nil
}

// RotateKey generates a fresh KEK, makes it current, and evicts the
// oldest KEK once history exceeds maxKeyHistory. Evicted KEKs can no
// longer unwrap DEKs written under them; callers must rewrap those DEKs
// (RewrapDEK) before rotating past their generation.
func (m *Manager) RotateKey() (KeyID, error) {
	kek := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, kek); err != nil {
		return 0, fmt.Errorf("keymanager: generate KEK: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.current + 1
	m.keys[id] = kek
	m.history = append(m.history, id)
	m.current = id

	for len(m.history) > m.maxKeyHistory {
		evict := m.history[0]
		m.history = m.history[1:]
		delete(m.keys, evict)
	}

	return id, nil
}

// CurrentKeyID reports the KEK generation new DEKs are wrapped under.
func (m *Manager) CurrentKeyID() KeyID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

func (m *Manager) kek(id KeyID) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	k, ok := m.keys[id]
	return k, ok
}

// SealChunk generates a fresh DEK, encrypts plaintext under it with
// XChaCha20-Poly1305 and a random 24-byte (192-bit) nonce, not a
// 96-bit one, and wraps the DEK under the current KEK with
// AES-256-GCM (the spec's mandated wrap primitive).
func (m *Manager) SealChunk(plaintext, aad []byte) (ciphertext []byte, nonce [24]byte, wrapped WrappedDEK, err error) {
	dek := make([]byte, chacha20poly1305.KeySize)
	if _, err = io.ReadFull(rand.Reader, dek); err != nil {
		return nil, nonce, wrapped, fmt.Errorf("keymanager: generate DEK: %w", err)
	}

	aead, err := chacha20poly1305.NewX(dek)
	if err != nil {
		return nil, nonce, wrapped, fmt.Errorf("keymanager: init DEK AEAD: %w", err)
	}
	if _, err = io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, nonce, wrapped, fmt.Errorf("keymanager: generate nonce: %w", err)
	}
	ciphertext = aead.Seal(nil, nonce[:], plaintext, aad)

	wrapped, err = m.wrapDEK(dek)
	return ciphertext, nonce, wrapped, err
}

// OpenChunk reverses SealChunk: unwraps the DEK under its recorded KEK
// generation, then decrypts ciphertext.
func (m *Manager) OpenChunk(ciphertext []byte, nonce [24]byte, aad []byte, wrapped WrappedDEK) ([]byte, error) {
	dek, err := m.unwrapDEK(wrapped)
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.NewX(dek)
	if err != nil {
		return nil, fmt.Errorf("keymanager: init DEK AEAD: %w", err)
	}
	plaintext, err := aead.Open(nil, nonce[:], ciphertext, aad)
	if err != nil {
		return nil, distfserrors.NewIntegrity(distfserrors.IntegrityDecryptionAuthFail)
	}
	return plaintext, nil
}

func (m *Manager) wrapDEK(dek []byte) (WrappedDEK, error) {
	id := m.CurrentKeyID()
	kek, ok := m.kek(id)
	if !ok {
		return WrappedDEK{}, distfserrors.ErrMissingKey
	}

	block, err := aes.NewCipher(kek)
	if err != nil {
		return WrappedDEK{}, fmt.Errorf("keymanager: init KEK cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return WrappedDEK{}, fmt.Errorf("keymanager: init KEK AEAD: %w", err)
	}

	w := WrappedDEK{WrappingKeyID: id}
	if _, err := io.ReadFull(rand.Reader, w.Nonce[:]); err != nil {
		return WrappedDEK{}, fmt.Errorf("keymanager: generate wrap nonce: %w", err)
	}
	w.Ciphertext = gcm.Seal(nil, w.Nonce[:], dek, nil)
	return w, nil
}

func (m *Manager) unwrapDEK(w WrappedDEK) ([]byte, error) {
	kek, ok := m.kek(w.WrappingKeyID)
	if !ok {
		return nil, distfserrors.ErrMissingKey
	}

	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, fmt.Errorf("keymanager: init KEK cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("keymanager: init KEK AEAD: %w", err)
	}

	dek, err := gcm.Open(nil, w.Nonce[:], w.Ciphertext, nil)
	if err != nil {
		return nil, distfserrors.NewIntegrity(distfserrors.IntegrityDecryptionAuthFail)
	}
	return dek, nil
}

// RewrapDEK re-wraps a DEK under the current KEK without touching the
// chunk's ciphertext, so rotation can evict an old KEK from history
// without re-encrypting any payload.
func (m *Manager) RewrapDEK(w WrappedDEK) (WrappedDEK, error) {
	dek, err := m.unwrapDEK(w)
	if err != nil {
		return WrappedDEK{}, err
	}
	return m.wrapDEK(dek)
}

// DeriveSubkey derives a domain-separated subkey from a KEK generation
// via HKDF, for callers (e.g. the replication conduit's batch HMAC) that
// need a key tied to the same KEK lineage without exposing it directly.
func (m *Manager) DeriveSubkey(id KeyID, info string, size int) ([]byte, error) {
	kek, ok := m.kek(id)
	if !ok {
		return nil, distfserrors.ErrMissingKey
	}
	r := hkdf.New(sha256.New, kek, nil, []byte(info))
	out := make([]byte, size)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("keymanager: derive subkey: %w", err)
	}
	return out, nil
}
