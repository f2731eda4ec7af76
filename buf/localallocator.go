// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package buf

// defaultPerClassCacheCap is the number of entries a LocalAllocator's
// ThreadCache keeps per size class before spilling back to the Arena.
const defaultPerClassCacheCap = 64

// LocalAllocator is the per-consumer front end onto an Allocator: it pins
// one heap arena and one direct arena (chosen once, round-robin, at
// construction) behind a ThreadCache each, so a single goroutine's
// allocate/release traffic is served out of its own cache before ever
// touching the shared Arena machinery. This is component D from the
// allocator's data-flow ("obtains a buffer from arena (C) via cache (D)")
// wired to a real caller instead of sitting untouched behind Allocator.
//
// Like the ThreadCache it wraps, LocalAllocator is not safe for concurrent
// use -- exactly one goroutine (in practice, one EventLoop) may call it.
type LocalAllocator struct {
	allocator *Allocator
	heap      *ThreadCache
	direct    *ThreadCache
}

// NewLocalAllocator binds one heap arena and one direct arena from a
// (round-robin) to fresh ThreadCaches, each capped at perClassCap entries
// per size class.
func (a *Allocator) NewLocalAllocator(perClassCap int) *LocalAllocator {
	if perClassCap <= 0 {
		perClassCap = defaultPerClassCacheCap
	}
	return &LocalAllocator{
		allocator: a,
		heap:      NewThreadCache(a.nextArena(a.heapArenas), perClassCap),
		direct:    NewThreadCache(a.nextArena(a.directArenas), perClassCap),
	}
}

// Buffer allocates a cached heap buffer with the default initial and max
// capacity.
func (l *LocalAllocator) Buffer() (*ByteBuf, error) {
	return l.Buffer2(defaultInitialCapacity, defaultMaxCapacity)
}

// Buffer1 allocates a cached heap buffer with the given initial capacity
// and the default maxCapacity.
func (l *LocalAllocator) Buffer1(initialCapacity int) (*ByteBuf, error) {
	return l.Buffer2(initialCapacity, defaultMaxCapacity)
}

// Buffer2 allocates a cached heap buffer with the given initial and max
// capacity.
func (l *LocalAllocator) Buffer2(initial, max int) (*ByteBuf, error) {
	return l.heap.Allocate(initial, max)
}

// HeapBuffer allocates through this consumer's heap ThreadCache.
func (l *LocalAllocator) HeapBuffer(initial, max int) (*ByteBuf, error) {
	return l.heap.Allocate(initial, max)
}

// DirectBuffer allocates through this consumer's direct ThreadCache when
// the underlying Allocator pools direct buffers, otherwise falls back to
// an unpooled huge allocation exactly like Allocator.DirectBuffer.
func (l *LocalAllocator) DirectBuffer(initial, max int) (*ByteBuf, error) {
	if !l.allocator.IsDirectBufferPooled() {
		return l.direct.arena.allocateHuge(initial, max)
	}
	return l.direct.Allocate(initial, max)
}

// CompositeBuffer returns an empty CompositeByteBuf backed by this
// consumer's underlying Allocator.
func (l *LocalAllocator) CompositeBuffer(maxComponents int) *CompositeByteBuf {
	return l.allocator.CompositeBuffer(maxComponents)
}
