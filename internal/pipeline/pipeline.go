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

// Package pipeline implements the data reduction pipeline (spec.md §4.4):
// chunk, dedup against the CAS index, compress, envelope-encrypt, and hand
// new-chunk bytes to a segment packer. Staged the way gcsproxy's
// MutableObject stages ensureLocalFile -> mutate -> Sync: each step only
// runs the work the previous step didn't already make unnecessary.
package pipeline

import (
	"fmt"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/dreamware/distfs/internal/chunker"
	"github.com/dreamware/distfs/internal/codec"
	"github.com/dreamware/distfs/internal/config"
	"github.com/dreamware/distfs/internal/distfserrors"
	"github.com/dreamware/distfs/internal/fingerprint"
	"github.com/dreamware/distfs/internal/keymanager"
	"github.com/dreamware/distfs/internal/metrics"
)

// ReducedChunk is one chunk's worth of output from ProcessWrite: either
// fresh reduced payload, or a bare reference to an already-stored chunk.
type ReducedChunk struct {
	Hash       fingerprint.ChunkHash
	Duplicate  bool
	Codec      codec.Algorithm
	Nonce      [24]byte
	WrappedDEK keymanager.WrappedDEK
	Payload    []byte // nil when Duplicate
	RawSize    int
}

// Stats reports the reduction pipeline's effect on one ProcessWrite call.
type Stats struct {
	InputBytes            int
	ChunksTotal           int
	ChunksDeduplicated    int
	BytesAfterDedup       int
	BytesAfterCompression int
	BytesAfterEncryption  int
}

// DedupRatio is the fraction of chunk bytes eliminated by exact-match
// dedup. Pipeline.AggregateStats reports the mean and standard deviation
// of this ratio across calls.
func (s Stats) DedupRatio() float64 {
	if s.InputBytes == 0 {
		return 0
	}
	return 1 - float64(s.BytesAfterDedup)/float64(s.InputBytes)
}

// CompressionRatio is the fraction eliminated by compression, relative to
// the post-dedup size.
func (s Stats) CompressionRatio() float64 {
	if s.BytesAfterDedup == 0 {
		return 0
	}
	return 1 - float64(s.BytesAfterCompression)/float64(s.BytesAfterDedup)
}

// Pipeline wires the chunker, CAS index, codec, and key manager together
// per a fixed config, and accumulates new-chunk bytes into segments via a
// Packer.
type Pipeline struct {
	cfg    config.Pipeline
	chunks config.Chunker
	cas    *chunker.CASIndex
	keys   *keymanager.Manager
	packer *Packer

	mu      sync.Mutex
	history []float64 // dedup ratios across calls, for aggregate Stats

	metrics *metrics.Collector
}

// WithMetrics attaches a Collector that ProcessWrite reports dedup and
// size-reduction outcomes to. A nil Collector (the default) makes that
// reporting a no-op; the in-process Stats/AggregateStats views already
// work independently of it.
func (p *Pipeline) WithMetrics(c *metrics.Collector) *Pipeline {
	p.metrics = c
	return p
}

// New constructs a Pipeline. keys may be nil only if cfg.EncryptionEnabled
// is false.
func New(cfg config.Pipeline, chunkerCfg config.Chunker, cas *chunker.CASIndex, keys *keymanager.Manager) *Pipeline {
	return &Pipeline{
		cfg:    cfg,
		chunks: chunkerCfg,
		cas:    cas,
		keys:   keys,
		packer: NewPacker(cfg.TargetSegmentSize),
	}
}

// ProcessWrite chunks data, dedups against CAS, compresses, and encrypts,
// handing fresh chunk bytes to the packer. It returns one ReducedChunk per
// content-defined chunk plus aggregate Stats for the call.
func (p *Pipeline) ProcessWrite(data []byte) ([]ReducedChunk, Stats, error) {
	pieces := chunker.Split(data, chunker.Options{
		MinSize: p.chunks.MinSize,
		AvgSize: p.chunks.AvgSize,
		MaxSize: p.chunks.MaxSize,
	})

	st := Stats{InputBytes: len(data), ChunksTotal: len(pieces)}
	out := make([]ReducedChunk, 0, len(pieces))

	for _, c := range pieces {
		if p.cfg.DedupEnabled && p.cas.Contains(c.Hash) {
			st.ChunksDeduplicated++
			if p.metrics != nil {
				p.metrics.ChunksDeduped.Inc()
				p.metrics.BytesReduced.Add(float64(len(c.Bytes)))
			}
			out = append(out, ReducedChunk{Hash: c.Hash, Duplicate: true, RawSize: len(c.Bytes)})
			continue
		}
		if p.cfg.DedupEnabled {
			p.cas.Insert(c.Hash)
		}
		st.BytesAfterDedup += len(c.Bytes)

		payload := c.Bytes
		alg := codec.AlgorithmNone
		if p.cfg.CompressionEnabled {
			enc, err := codec.Encode(c.Bytes, false)
			if err != nil {
				return nil, st, fmt.Errorf("pipeline: compress chunk %x: %w", c.Hash, err)
			}
			payload = enc.Data
			alg = enc.Algorithm
			if p.metrics != nil && len(payload) < len(c.Bytes) {
				p.metrics.BytesReduced.Add(float64(len(c.Bytes) - len(payload)))
			}
		}
		st.BytesAfterCompression += len(payload)

		rc := ReducedChunk{Hash: c.Hash, Codec: alg, Payload: payload, RawSize: len(c.Bytes)}

		if p.cfg.EncryptionEnabled {
			if p.keys == nil {
				return nil, st, distfserrors.ErrMissingKey
			}
			ct, nonce, wrapped, err := p.keys.SealChunk(payload, c.Hash[:])
			if err != nil {
				return nil, st, fmt.Errorf("pipeline: encrypt chunk %x: %w", c.Hash, err)
			}
			rc.Payload = ct
			rc.Nonce = nonce
			rc.WrappedDEK = wrapped
		}
		st.BytesAfterEncryption += len(rc.Payload)

		p.packer.Add(c.Hash, rc.Payload)
		out = append(out, rc)
	}

	p.mu.Lock()
	p.history = append(p.history, st.DedupRatio())
	p.mu.Unlock()

	return out, st, nil
}

// ChunkResolver looks up the stored payload for a duplicate chunk by
// hash, for ProcessRead to reconstruct bytes the write path didn't carry
// inline.
type ChunkResolver func(h fingerprint.ChunkHash) (*ReducedChunk, error)

// ProcessRead concatenates decompress(decrypt(payload)) across chunks in
// order. A duplicate with no inline payload is resolved via resolve; if
// resolve is nil or fails to find the chunk, ProcessRead fails with
// MissingChunkData.
func (p *Pipeline) ProcessRead(chunks []ReducedChunk, resolve ChunkResolver) ([]byte, error) {
	var out []byte
	for _, rc := range chunks {
		cur := rc
		if cur.Duplicate {
			if cur.Payload == nil {
				if resolve == nil {
					return nil, distfserrors.ErrMissingChunkData
				}
				resolved, err := resolve(cur.Hash)
				if err != nil {
					return nil, fmt.Errorf("pipeline: resolve duplicate %x: %w", cur.Hash, err)
				}
				if resolved == nil {
					return nil, distfserrors.ErrMissingChunkData
				}
				cur = *resolved
			}
		}

		payload := cur.Payload
		if p.cfg.EncryptionEnabled && cur.WrappedDEK.Ciphertext != nil {
			if p.keys == nil {
				return nil, distfserrors.ErrMissingKey
			}
			pt, err := p.keys.OpenChunk(payload, cur.Nonce, cur.Hash[:], cur.WrappedDEK)
			if err != nil {
				return nil, fmt.Errorf("pipeline: decrypt chunk %x: %w", cur.Hash, err)
			}
			payload = pt
		}

		plain, err := codec.Decode(codec.Encoded{Algorithm: cur.Codec, Data: payload, RawSize: cur.RawSize})
		if err != nil {
			return nil, fmt.Errorf("pipeline: decompress chunk %x: %w", cur.Hash, err)
		}
		out = append(out, plain...)
	}
	return out, nil
}

// AggregateStats summarizes dedup-ratio mean and standard deviation
// across every ProcessWrite call observed so far.
type AggregateStats struct {
	Calls         int
	MeanDedupRate float64
	StdDevDedup   float64
}

func (p *Pipeline) AggregateStats() AggregateStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.history) == 0 {
		return AggregateStats{}
	}
	mean := stat.Mean(p.history, nil)
	std := stat.StdDev(p.history, nil)
	return AggregateStats{Calls: len(p.history), MeanDedupRate: mean, StdDevDedup: std}
}

// Segments returns the pipeline's segment packer, for callers that need to
// force a flush (e.g. on unmount).
func (p *Pipeline) Segments() *Packer { return p.packer }
