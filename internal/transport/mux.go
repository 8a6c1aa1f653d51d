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

// Package transport implements the connection multiplexer and pooled
// buffer allocator that sit underneath both the Raft peer transport and
// the replication conduit (spec.md §4.14): one registry of in-flight
// request/response streams per connection, and one set of reusable,
// size-classed byte buffers for the I/O hot path.
package transport

import (
	"sync"
	"sync/atomic"

	"github.com/dreamware/distfs/internal/distfserrors"
	"github.com/dreamware/distfs/internal/metrics"
)

// StreamID identifies one multiplexed request/response exchange on a
// connection.
type StreamID uint64

// Frame is an opaque response payload dispatched to a waiting stream.
type Frame struct {
	RequestID StreamID
	Payload   []byte
}

// StreamHandle lets the opener of a stream wait for its response.
type StreamHandle struct {
	id StreamID
	ch chan Frame
}

// ID reports the handle's stream id.
func (h StreamHandle) ID() StreamID { return h.id }

// Recv blocks until DispatchResponse delivers a frame for this stream or
// CancelStream tears it down, in which case the channel closes and Recv
// reports ok=false.
func (h StreamHandle) Recv() (Frame, bool) {
	f, ok := <-h.ch
	return f, ok
}

// Mux is a per-connection registry of in-flight streams, bounded by
// MaxConcurrentStreams.
type Mux struct {
	maxConcurrent int

	mu      sync.Mutex
	nextID  uint64
	waiters map[StreamID]chan Frame

	active atomic.Int64

	metrics *metrics.Collector
}

// NewMux constructs a Mux allowing at most maxConcurrent streams open at
// once.
func NewMux(maxConcurrent int) *Mux {
	return &Mux{
		maxConcurrent: maxConcurrent,
		waiters:       make(map[StreamID]chan Frame),
	}
}

// WithMetrics attaches a Collector that OpenStream reports capacity
// rejections to. A nil Collector (the default) makes that reporting a
// no-op.
func (m *Mux) WithMetrics(c *metrics.Collector) *Mux {
	m.metrics = c
	return m
}

// OpenStream allocates a new stream id and response channel. Fails with
// a CapacityError if MaxConcurrentStreams is already in flight.
func (m *Mux) OpenStream() (StreamHandle, error) {
	if int(m.active.Load()) >= m.maxConcurrent {
		if m.metrics != nil {
			m.metrics.ErrorsTotal.WithLabelValues("capacity_max_streams").Inc()
		}
		return StreamHandle{}, distfserrors.NewCapacity(distfserrors.CapacityMaxStreams, "max concurrent streams exceeded")
	}

	m.mu.Lock()
	m.nextID++
	id := StreamID(m.nextID)
	ch := make(chan Frame, 1)
	m.waiters[id] = ch
	m.mu.Unlock()

	m.active.Add(1)
	return StreamHandle{id: id, ch: ch}, nil
}

// DispatchResponse routes frame to its waiting stream. Reports false,
// silently dropping the frame, if the stream was already cancelled or
// already dispatched to.
func (m *Mux) DispatchResponse(id StreamID, frame Frame) bool {
	m.mu.Lock()
	ch, ok := m.waiters[id]
	if ok {
		delete(m.waiters, id)
	}
	m.mu.Unlock()

	if !ok {
		return false
	}

	ch <- frame
	close(ch)
	m.active.Add(-1)
	return true
}

// CancelStream removes id's slot without delivering a response, closing
// its channel so a blocked Recv returns ok=false.
func (m *Mux) CancelStream(id StreamID) bool {
	m.mu.Lock()
	ch, ok := m.waiters[id]
	if ok {
		delete(m.waiters, id)
	}
	m.mu.Unlock()

	if !ok {
		return false
	}

	close(ch)
	m.active.Add(-1)
	return true
}

// ActiveStreams reports the current number of in-flight streams.
func (m *Mux) ActiveStreams() int64 { return m.active.Load() }
