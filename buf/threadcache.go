// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package buf

import "code.hybscloud.com/netcore/internal/errs"

// defaultCacheTrimInterval is the number of allocations between automatic
// trims of idle cache entries, matching the
// io.netty.allocator.cacheTrimInterval property (see SPEC_FULL.md §6).
const defaultCacheTrimInterval = 8192

// cacheEntry is one cached, previously-allocated-and-released handle.
type cacheEntry struct {
	c *chunk
	h handle
}

// ThreadCache is a single goroutine's (in practice: a single event loop's —
// see SPEC_FULL.md §9 on why netcore binds this to the loop rather than to
// a goroutine-local slot) free-list cache in front of an Arena. It must not
// be shared across loops: a handle in the cache was allocated via its
// Arena and must not become concurrently visible elsewhere before being
// handed back out by this same cache.
//
// ThreadCache is not itself safe for concurrent use; callers run it from
// exactly one goroutine.
type ThreadCache struct {
	arena *Arena

	perClassCap int
	small       [][]cacheEntry // indexed by sizeIdx, only subpage classes populated
	normal      [][]cacheEntry // indexed by sizeIdx, only run classes populated

	allocCount   int
	trimInterval int
	idleSinceUse []int // per sizeIdx-bucket idle tick counter, decays cache occupancy
}

// NewThreadCache creates a cache in front of arena with perClassCap cached
// entries per size class.
func NewThreadCache(arena *Arena, perClassCap int) *ThreadCache {
	n := arena.sc.NSizes()
	tc := &ThreadCache{
		arena:        arena,
		perClassCap:  perClassCap,
		small:        make([][]cacheEntry, n),
		normal:       make([][]cacheEntry, n),
		trimInterval: defaultCacheTrimInterval,
		idleSinceUse: make([]int, n),
	}
	return tc
}

// Allocate serves reqCapacity from the cache when a matching free entry is
// available, otherwise delegates to the underlying Arena. The returned
// buffer's Release, when it drops the refcount to zero, offers the
// allocation back to this cache before ever reaching the Arena.
func (tc *ThreadCache) Allocate(reqCapacity, maxCapacity int) (*ByteBuf, error) {
	if reqCapacity > tc.arena.sc.ChunkSize() {
		return tc.arena.Allocate(reqCapacity, maxCapacity)
	}

	sizeIdx := tc.arena.sc.Size2SizeIdx(reqCapacity)
	bucket := tc.bucketFor(sizeIdx)
	tc.allocCount++
	if tc.allocCount%tc.trimInterval == 0 {
		tc.trim()
	}

	if n := len(*bucket); n > 0 {
		e := (*bucket)[n-1]
		*bucket = (*bucket)[:n-1]
		tc.idleSinceUse[sizeIdx] = 0
		return tc.wrap(e, sizeIdx, maxCapacity), nil
	}

	buf, err := tc.arena.Allocate(reqCapacity, maxCapacity)
	if err != nil {
		return nil, err
	}
	tc.armCacheRelease(buf, sizeIdx)
	return buf, nil
}

func (tc *ThreadCache) bucketFor(sizeIdx int) *[]cacheEntry {
	if tc.arena.sc.IsSubpage(sizeIdx) {
		return &tc.small[sizeIdx]
	}
	return &tc.normal[sizeIdx]
}

func (tc *ThreadCache) wrap(e cacheEntry, sizeIdx, maxCapacity int) *ByteBuf {
	capacity := tc.arena.sc.SizeIdx2Size(sizeIdx)
	b := &ByteBuf{
		arena:       tc.arena,
		chunk:       e.c,
		handle:      e.h,
		offset:      tc.arena.byteOffset(e.c, e.h),
		capacity:    capacity,
		maxCapacity: maxCapacity,
	}
	tc.armCacheRelease(b, sizeIdx)
	return b
}

// armCacheRelease rewires buf's deallocation callback so that Release,
// instead of going straight to the Arena, first tries add(); only on
// overflow does it relinquish the handle to the Arena.
func (tc *ThreadCache) armCacheRelease(b *ByteBuf, sizeIdx int) {
	c, h := b.chunk, b.handle
	b.initRefCnt(func() {
		if !tc.add(sizeIdx, cacheEntry{c: c, h: h}) {
			tc.arena.free(c, h)
		}
	})
}

// add pushes entry onto the matching bucket, returning false (and doing
// nothing) if the bucket is already at perClassCap — in which case the
// caller must relinquish the handle to the Arena itself.
func (tc *ThreadCache) add(sizeIdx int, entry cacheEntry) bool {
	bucket := tc.bucketFor(sizeIdx)
	if len(*bucket) >= tc.perClassCap {
		return false
	}
	*bucket = append(*bucket, entry)
	return true
}

// idleTrimThreshold is how many trim ticks a size class may go without a
// cache hit before its cached entries start decaying.
const idleTrimThreshold = 2

// trim drops cache entries for classes that have gone untouched for too
// long: each trim tick increments every class's idle counter; once a
// class's counter crosses idleTrimThreshold its bucket is halved (an
// exponential decay of cache occupancy under low load) and the dropped
// handles are returned to their arena.
func (tc *ThreadCache) trim() {
	for idx := range tc.small {
		tc.idleSinceUse[idx]++
		if tc.idleSinceUse[idx] < idleTrimThreshold {
			continue
		}
		tc.trimBucket(&tc.small[idx])
		tc.trimBucket(&tc.normal[idx])
	}
}

func (tc *ThreadCache) trimBucket(bucket *[]cacheEntry) {
	n := len(*bucket)
	if n == 0 {
		return
	}
	keep := n / 2
	for _, e := range (*bucket)[keep:] {
		tc.arena.free(e.c, e.h)
	}
	*bucket = (*bucket)[:keep]
}

// ErrChunkExhausted is surfaced by the underlying chunk/arena when no run
// or subpage can satisfy a request; re-exported here for callers that only
// import ThreadCache.
var ErrChunkExhausted = errs.ErrChunkExhausted
