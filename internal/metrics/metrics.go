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

// Package metrics is the process-wide metrics collector. Per the spec's
// concurrency note ("the metrics collector ... is a process-wide
// singleton; construction is explicit ... not on first use"), callers
// construct a Collector once at bootstrap and pass it down; there is no
// package-level implicit singleton and no HTTP scrape endpoint here (that
// belongs to the excluded admin API).
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector aggregates counters and per-op latency histograms across THE
// CORE's subsystems. Counters use prometheus's own atomic implementation;
// the per-op histogram additionally serializes updates behind a mutex so a
// caller can snapshot a consistent set of per-op buckets, matching the
// spec's "relaxed atomics for counters and a lock for the per-op
// histogram" resource policy.
type Collector struct {
	Registry *prometheus.Registry

	OpsTotal       *prometheus.CounterVec
	ErrorsTotal    *prometheus.CounterVec
	ChunksDeduped  prometheus.Counter
	BytesReduced   prometheus.Counter
	ReadIndexWaits *prometheus.CounterVec

	histMu  sync.Mutex
	opHists map[string]*prometheus.HistogramVec
}

// New constructs a Collector and registers its collectors with a fresh
// registry.
func New() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		Registry: reg,
		OpsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "distfs",
			Name:      "ops_total",
			Help:      "Count of metadata operations by kind.",
		}, []string{"op"}),
		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "distfs",
			Name:      "errors_total",
			Help:      "Count of errors by taxonomy kind.",
		}, []string{"kind"}),
		ChunksDeduped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "distfs",
			Name:      "chunks_deduplicated_total",
			Help:      "Count of chunks resolved as duplicates by the reduction pipeline.",
		}),
		BytesReduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "distfs",
			Name:      "bytes_reduced_total",
			Help:      "Bytes saved across dedup, compression, and encryption overhead.",
		}),
		ReadIndexWaits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "distfs",
			Name:      "readindex_status_total",
			Help:      "Count of ReadIndex status outcomes by status.",
		}, []string{"status"}),
		opHists: make(map[string]*prometheus.HistogramVec),
	}

	reg.MustRegister(c.OpsTotal, c.ErrorsTotal, c.ChunksDeduped, c.BytesReduced, c.ReadIndexWaits)
	return c
}

// ObserveLatency records a latency sample (in seconds) for the named
// operation, lazily creating its histogram under the shared lock.
func (c *Collector) ObserveLatency(op string, seconds float64) {
	c.histMu.Lock()
	h, ok := c.opHists[op]
	if !ok {
		// Every op shares one registered vec; registering a second vec
		// under the same metric name would panic.
		for _, existing := range c.opHists {
			h = existing
			break
		}
		if h == nil {
			h = prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "distfs",
				Name:      "op_latency_seconds",
				Help:      "Per-operation latency distribution.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"op"})
			c.Registry.MustRegister(h)
		}
		c.opHists[op] = h
	}
	c.histMu.Unlock()

	h.WithLabelValues(op).Observe(seconds)
}
