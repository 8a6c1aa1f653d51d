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

package transport

import "sync"

// Buffer size classes the pool recognizes.
const (
	Size4K  = 4 * 1024
	Size64K = 64 * 1024
	Size1M  = 1024 * 1024
	Size64M = 64 * 1024 * 1024
)

var sizeClasses = [...]int{Size4K, Size64K, Size1M, Size64M}

// classFor returns the smallest size class that fits n, or 0 if n
// exceeds every class.
func classFor(n int) int {
	for _, c := range sizeClasses {
		if n <= c {
			return c
		}
	}
	return 0
}

// PoolStats summarizes one size class's allocation accounting.
type PoolStats struct {
	TotalAllocated int
	Available      int
	InUse          int
}

type classPool struct {
	mu             sync.Mutex
	size           int
	free           [][]byte
	totalAllocated int
	inUse          int
	maxCount       int
}

func newClassPool(size, initialCount, maxCount int) *classPool {
	cp := &classPool{size: size, maxCount: maxCount}
	for i := 0; i < initialCount && i < maxCount; i++ {
		cp.free = append(cp.free, make([]byte, size))
		cp.totalAllocated++
	}
	return cp
}

func (cp *classPool) get() ([]byte, bool) {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	if n := len(cp.free); n > 0 {
		buf := cp.free[n-1]
		cp.free = cp.free[:n-1]
		cp.inUse++
		return buf, true
	}
	if cp.totalAllocated < cp.maxCount {
		cp.totalAllocated++
		cp.inUse++
		return make([]byte, cp.size), true
	}
	return nil, false
}

func (cp *classPool) put(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
	cp.mu.Lock()
	defer cp.mu.Unlock()
	cp.free = append(cp.free, buf[:cp.size])
	cp.inUse--
}

func (cp *classPool) stats() PoolStats {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	return PoolStats{TotalAllocated: cp.totalAllocated, Available: len(cp.free), InUse: cp.inUse}
}

// BufferPool manages reusable byte buffers across the four fixed size
// classes, pre-allocating InitialCount per class and growing on demand
// up to MaxCount. Returned buffers are zeroed before reuse so no
// borrower's data leaks to the next.
type BufferPool struct {
	alignment int
	classes   map[int]*classPool
}

// NewBufferPool constructs a pool with initialCount buffers pre-warmed
// per size class, each class capped at maxCount.
func NewBufferPool(initialCount, maxCount, alignment int) *BufferPool {
	p := &BufferPool{alignment: alignment, classes: make(map[int]*classPool, len(sizeClasses))}
	for _, c := range sizeClasses {
		p.classes[c] = newClassPool(c, initialCount, maxCount)
	}
	return p
}

// PooledBuffer is a buffer checked out of the pool. Callers must call
// Release when done; it is not returned automatically.
type PooledBuffer struct {
	pool  *BufferPool
	class int
	buf   []byte
	n     int
}

// Bytes returns the used portion of the buffer.
func (b *PooledBuffer) Bytes() []byte { return b.buf[:b.n] }

// SetLen sets the used length, clamped to the buffer's capacity.
func (b *PooledBuffer) SetLen(n int) {
	if n > len(b.buf) {
		n = len(b.buf)
	}
	b.n = n
}

// Cap reports the buffer's full size-class capacity.
func (b *PooledBuffer) Cap() int { return len(b.buf) }

// Release returns the buffer to its size class's free list, zeroing it
// first.
func (b *PooledBuffer) Release() {
	b.pool.classes[b.class].put(b.buf)
	b.buf = nil
}

// Get checks out a buffer able to hold at least n bytes, rounding up to
// the smallest fitting size class. Returns ok=false if n exceeds every
// class or that class is at MaxCount with nothing free.
func (p *BufferPool) Get(n int) (*PooledBuffer, bool) {
	class := classFor(n)
	if class == 0 {
		return nil, false
	}
	buf, ok := p.classes[class].get()
	if !ok {
		return nil, false
	}
	return &PooledBuffer{pool: p, class: class, buf: buf}, true
}

// Stats reports per-class allocation accounting.
func (p *BufferPool) Stats() map[int]PoolStats {
	out := make(map[int]PoolStats, len(p.classes))
	for size, cp := range p.classes {
		out[size] = cp.stats()
	}
	return out
}

// Alignment reports the configured buffer alignment (informational; Go
// slices backed by make() are not guaranteed aligned beyond the
// allocator's default, so direct-I/O callers needing page alignment
// must account for this when slicing a PooledBuffer).
func (p *BufferPool) Alignment() int { return p.alignment }
