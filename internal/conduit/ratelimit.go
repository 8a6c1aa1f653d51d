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

// Package conduit implements the cross-site replication conduit's
// receive path (spec.md §4.13): rate limiting, site-registry identity
// validation, TLS policy enforcement, and batch authentication.
package conduit

import (
	"time"

	"github.com/dreamware/distfs/internal/config"
	"github.com/dreamware/distfs/internal/distfserrors"
	"github.com/dreamware/distfs/internal/metrics"
)

// Decision is the outcome of a rate-limit check.
type Decision int

const (
	Allow Decision = iota
	Throttle
	Reject
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case Throttle:
		return "throttle"
	case Reject:
		return "reject"
	default:
		return "unknown"
	}
}

// CheckResult carries a Decision plus the context a caller needs to act
// on it.
type CheckResult struct {
	Decision Decision
	Delay    time.Duration
	Reason   string
}

// Err converts a Reject decision into a CapacityError a caller can
// return directly; Allow and Throttle produce a nil error since neither
// is fatal to the caller.
func (r CheckResult) Err() error {
	if r.Decision != Reject {
		return nil
	}
	return distfserrors.NewCapacity(distfserrors.CapacityRateLimited, r.Reason)
}

// Stats mirrors the lifetime counters a caller can surface on a metrics
// dashboard.
type Stats struct {
	BatchesAllowed   uint64
	BatchesThrottled uint64
	BatchesRejected  uint64
	EntriesAllowed   uint64
	EntriesRejected  uint64
	WindowsReset     uint64
}

// RateLimiter is a sliding-window limiter guarding the conduit receive
// path against a flooding or compromised peer.
type RateLimiter struct {
	cfg config.RateLimit

	windowStart     time.Time
	batchesInWindow int64
	entriesInWindow int64
	stats           Stats

	metrics *metrics.Collector
}

// WithMetrics attaches a Collector that CheckBatch reports reject
// outcomes to; throttle outcomes are counted only in Stats. A nil
// Collector (the default) makes that reporting a no-op; the Stats
// snapshot already tracks lifetime counts independently.
func (r *RateLimiter) WithMetrics(c *metrics.Collector) *RateLimiter {
	r.metrics = c
	return r
}

func (r *RateLimiter) recordErr(kind string) {
	if r.metrics == nil {
		return
	}
	r.metrics.ErrorsTotal.WithLabelValues(kind).Inc()
}

// NewRateLimiter constructs a RateLimiter in cfg. The window is seeded
// at the Unix epoch so the very first CheckBatch call (arriving at any
// real wall-clock time) starts a fresh window, the same as the first
// call after any long idle gap.
func NewRateLimiter(cfg config.RateLimit) *RateLimiter {
	return &RateLimiter{cfg: cfg, windowStart: time.Unix(0, 0)}
}

// CheckBatch evaluates an inbound batch of entryCount entries arriving
// at now against the sliding window, updating internal counters and
// stats as a side effect.
func (r *RateLimiter) CheckBatch(entryCount int, now time.Time) CheckResult {
	windowMS := r.cfg.WindowMS
	if windowMS > 0 {
		if now.Sub(r.windowStart) >= time.Duration(windowMS)*time.Millisecond {
			r.windowStart = now
			r.batchesInWindow = 0
			r.entriesInWindow = 0
			r.stats.WindowsReset++
		}
	}

	r.batchesInWindow++
	r.entriesInWindow += int64(entryCount)

	if r.cfg.MaxEntriesPerSec > 0 {
		normalCap := r.cfg.MaxEntriesPerSec * windowMS / 1000
		burstCap := int64(float64(normalCap) * r.cfg.BurstFactor)

		if r.entriesInWindow > burstCap {
			r.stats.EntriesRejected += int64ToUint64(entryCount)
			r.stats.BatchesRejected++
			r.recordErr("capacity_rate_limited")
			return CheckResult{Decision: Reject, Reason: "entries exceeded burst limit"}
		}
	}

	if r.cfg.MaxBatchesPerSec > 0 {
		normalCap := r.cfg.MaxBatchesPerSec * windowMS / 1000
		burstCap := int64(float64(normalCap) * r.cfg.BurstFactor)

		if r.batchesInWindow > burstCap {
			r.stats.BatchesRejected++
			r.recordErr("capacity_rate_limited")
			return CheckResult{Decision: Reject, Reason: "batches exceeded burst limit"}
		}
		if r.batchesInWindow > normalCap {
			r.stats.BatchesThrottled++
			return CheckResult{Decision: Throttle, Delay: 50 * time.Millisecond}
		}
	}

	r.stats.BatchesAllowed++
	r.stats.EntriesAllowed += int64ToUint64(entryCount)
	return CheckResult{Decision: Allow}
}

func int64ToUint64(n int) uint64 {
	if n < 0 {
		return 0
	}
	return uint64(n)
}

// Reset clears the window and in-window counters without touching the
// lifetime Stats.
func (r *RateLimiter) Reset() {
	r.windowStart = time.Unix(0, 0)
	r.batchesInWindow = 0
	r.entriesInWindow = 0
}

// Stats returns a snapshot of the lifetime counters.
func (r *RateLimiter) Stats() Stats { return r.stats }
