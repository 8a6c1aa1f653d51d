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

// Package config holds the plain option structs that wire distfs's
// components together, in the shape of the teacher's cfg package
// (cfg/types.go) but without its cobra/viper flag and YAML-file binding —
// that CLI/config-file surface is explicitly out of scope. Callers (tests,
// or an external bootstrap binary) construct these directly.
package config

import "time"

// InodeTable configures the shard-local inode table (C7).
type InodeTable struct {
	NumShards    uint16
	MaxXattrs    int
	NameMax      int
}

// DefaultInodeTable returns the teacher-scale defaults from the data model.
func DefaultInodeTable() InodeTable {
	return InodeTable{NumShards: 256, MaxXattrs: 64, NameMax: 255}
}

// NegativeCache configures the negative-lookup cache (C8).
type NegativeCache struct {
	Capacity int
	TTL      time.Duration
}

func DefaultNegativeCache() NegativeCache {
	return NegativeCache{Capacity: 8192, TTL: 30 * time.Second}
}

// Chunker configures the FastCDC content-defined chunker (C3).
type Chunker struct {
	MinSize uint32
	AvgSize uint32
	MaxSize uint32
}

func DefaultChunker() Chunker {
	return Chunker{MinSize: 4 << 10, AvgSize: 16 << 10, MaxSize: 64 << 10}
}

// Pipeline configures the reduction pipeline (C5).
type Pipeline struct {
	DedupEnabled       bool
	CompressionEnabled bool
	EncryptionEnabled  bool
	TargetSegmentSize  uint64
}

func DefaultPipeline() Pipeline {
	return Pipeline{
		DedupEnabled:       true,
		CompressionEnabled: true,
		EncryptionEnabled:  true,
		TargetSegmentSize:  8 << 20,
	}
}

// KeyManager configures envelope-encryption key rotation (C4).
type KeyManager struct {
	MaxKeyHistory int
}

func DefaultKeyManager() KeyManager {
	return KeyManager{MaxKeyHistory: 10}
}

// WriteBuffer configures the FUSE write-coalescing buffer (C11).
type WriteBuffer struct {
	FlushThreshold uint64
	MaxCoalesceGap uint64
}

func DefaultWriteBuffer() WriteBuffer {
	return WriteBuffer{FlushThreshold: 4 << 20, MaxCoalesceGap: 4096}
}

// Reconnect configures the FUSE client reconnect backoff (C11).
type Reconnect struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	MaxAttempts  int
	Jitter       bool
}

func DefaultReconnect() Reconnect {
	return Reconnect{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		MaxAttempts:  10,
		Jitter:       true,
	}
}

// RateLimit configures the replication conduit's receive-path limiter
// (C12).
type RateLimit struct {
	WindowMS         int64
	MaxBatchesPerSec int64
	MaxEntriesPerSec int64
	BurstFactor      float64
}

func DefaultRateLimit() RateLimit {
	return RateLimit{WindowMS: 1000, MaxBatchesPerSec: 50, MaxEntriesPerSec: 50000, BurstFactor: 2.0}
}

// Transport configures the connection multiplexer (C13).
type Transport struct {
	MaxConcurrentStreams int
	BufferPoolInitial    int
	BufferPoolMax        int
	BufferAlignment      int
}

func DefaultTransport() Transport {
	return Transport{
		MaxConcurrentStreams: 256,
		BufferPoolInitial:    16,
		BufferPoolMax:        256,
		BufferAlignment:      4096,
	}
}

// Raft configures the metadata Raft shard (C10).
type Raft struct {
	ElectionTimeout  time.Duration
	HeartbeatPeriod  time.Duration
	ReadIndexTimeout time.Duration
}

func DefaultRaft() Raft {
	return Raft{
		ElectionTimeout:  300 * time.Millisecond,
		HeartbeatPeriod:  50 * time.Millisecond,
		ReadIndexTimeout: 2 * time.Second,
	}
}

// Journal configures the metadata journal and replication tracker (C9).
type Journal struct {
	Capacity int
}

func DefaultJournal() Journal {
	return Journal{Capacity: 65536}
}
