// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package buf

import (
	"sync"

	"code.hybscloud.com/netcore/internal/errs"
	"code.hybscloud.com/spin"
)

// chunk owns one backing region of exactly sc.ChunkSize() bytes, subdivided
// into pages. It tracks free runs per run-size-class (runsAvail), a dual
// offset index for O(1) neighbor lookup on free (runsAvailMap), and the
// subpages currently carved out of it (subpages).
//
// All mutation of runsAvail, runsAvailMap, subpages and freeBytes is
// serialized on lock, held for the scope of one allocate/free call by the
// owning arena.
type chunk struct {
	sc    *SizeClasses
	arena *Arena

	backing []byte
	unpooled bool // true for a one-shot huge allocation, bypassing pooling

	lock sync.Mutex

	runsAvail    []runPQ        // indexed by run-size-class (len == nPSizes)
	runsAvailMap map[int]handle // keyed by both the first and last page offset of each free run

	subpages map[int]*subpage // keyed by runOffset of the owning run

	freeBytes int
	usage     int // 0..100, recomputed after every mutation
}

func newChunk(sc *SizeClasses, a *Arena) *chunk {
	c := &chunk{
		sc:           sc,
		arena:        a,
		backing:      make([]byte, sc.ChunkSize()),
		runsAvail:    make([]runPQ, sc.NPSizes()),
		runsAvailMap: make(map[int]handle),
		subpages:     make(map[int]*subpage),
		freeBytes:    sc.ChunkSize(),
	}
	totalPages := sc.ChunkSize() / sc.PageSize()
	h := newRunHandle(0, totalPages, false)
	c.insertAvailRun(h)
	return c
}

func newUnpooledChunk(size int) *chunk {
	return &chunk{
		backing:  make([]byte, size),
		unpooled: true,
	}
}

func (c *chunk) chunkSize() int {
	if c.unpooled {
		return len(c.backing)
	}
	return c.sc.ChunkSize()
}

// usagePercent returns the chunk's current occupancy, 0..100.
func (c *chunk) usagePercent() int {
	total := c.chunkSize()
	used := total - c.freeBytes
	if total == 0 {
		return 0
	}
	return used * 100 / total
}

func (c *chunk) insertAvailRun(h handle) {
	pages := h.pages()
	runOffset := h.runOffset()
	pageIdxFloor := c.sc.Pages2PageIdxFloor(pages)
	c.runsAvail[pageIdxFloor].insert(h)
	c.runsAvailMap[runOffset] = h
	c.runsAvailMap[runOffset+pages-1] = h
}

func (c *chunk) removeAvailRun(h handle) {
	pages := h.pages()
	runOffset := h.runOffset()
	pageIdxFloor := c.sc.Pages2PageIdxFloor(pages)
	c.runsAvail[pageIdxFloor].removeByOffset(runOffset)
	delete(c.runsAvailMap, runOffset)
	delete(c.runsAvailMap, runOffset+pages-1)
}

// allocateRun finds, and if necessary splits, a free run of at least
// runSize bytes. Returns errs.ErrChunkExhausted if no run is large enough.
func (c *chunk) allocateRun(runSize int) (handle, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	pages := (runSize + c.sc.PageSize() - 1) >> c.sc.PageShifts()
	startIdx := c.sc.Pages2PageIdx(pages)

	var sw spin.Wait
	for idx := startIdx; idx < c.sc.NPSizes(); idx++ {
		q := &c.runsAvail[idx]
		h, ok := q.peekMin()
		if !ok {
			continue
		}
		if h.pages() < pages {
			// Can happen only if Pages2PageIdxFloor placed a smaller run
			// in a bucket whose nominal class is >= pages; re-check.
			sw.Once()
			continue
		}
		q.popMin()
		delete(c.runsAvailMap, h.runOffset())
		delete(c.runsAvailMap, h.runOffset()+h.pages()-1)

		used := newRunHandle(h.runOffset(), pages, true)
		if h.pages() > pages {
			remainder := newRunHandle(h.runOffset()+pages, h.pages()-pages, false)
			c.insertAvailRun(remainder)
		}
		c.freeBytes -= pages * c.sc.PageSize()
		c.usage = c.usagePercent()
		return used, nil
	}
	return 0, errs.ErrChunkExhausted
}

// allocateSubpage allocates a run sized to fit sizeIdx's elemSize evenly,
// creates a subpage over it, and returns the allocation for its first
// slot. The caller (arena) is responsible for linking the subpage into the
// arena's subpage pool.
func (c *chunk) allocateSubpage(sc2 *SizeClasses, sizeIdx int) (*subpage, handle, error) {
	elemSize := sc2.SizeIdx2Size(sizeIdx)
	runSize := lcm(sc2.PageSize(), elemSize)
	maxElements := 1 << (sc2.PageShifts() - LogQuantum)
	for runSize/elemSize > maxElements {
		runSize -= sc2.PageSize()
		if runSize < sc2.PageSize() {
			runSize = sc2.PageSize()
			break
		}
	}

	runHandle, err := c.allocateRun(runSize)
	if err != nil {
		return nil, 0, err
	}
	runOffset := runHandle.runOffset()
	actualRunSize := runHandle.pages() * sc2.PageSize()

	sp := newSubpage(c, sizeIdx, runOffset, actualRunSize, elemSize)
	c.lock.Lock()
	c.subpages[runOffset] = sp
	c.lock.Unlock()

	bitmapIdx := sp.allocate()
	return sp, newSubpageHandle(runOffset, bitmapIdx), nil
}

// free releases a previously allocated handle. For a subpage handle, it
// clears the slot and, if the subpage is now fully free, unlinks it and
// returns its pages to the chunk's run index. For a run handle, or a
// subpage whose owning run thereby becomes free, it collapses the freed
// run with any adjacent free neighbor before reinserting.
func (c *chunk) free(h handle) {
	if h.isSubpage() {
		c.lock.Lock()
		sp, ok := c.subpages[h.runOffset()]
		c.lock.Unlock()
		if !ok {
			panic("buf: free of unknown subpage handle")
		}
		fullyFree := sp.free(h.bitmapIdx())
		if !fullyFree {
			return
		}
		c.lock.Lock()
		delete(c.subpages, h.runOffset())
		c.lock.Unlock()
		h = newRunHandle(sp.runOffset, sp.runSize/c.sc.PageSize(), false)
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	runOffset, pages := h.runOffset(), h.pages()
	c.freeBytes += pages * c.sc.PageSize()

	// Collapse backward: a neighbor's last-page key equals runOffset-1.
	if prev, ok := c.runsAvailMap[runOffset-1]; ok {
		c.removeAvailRun(prev)
		runOffset = prev.runOffset()
		pages += prev.pages()
	}
	// Collapse forward: a neighbor's first-page key equals runOffset+pages.
	if next, ok := c.runsAvailMap[runOffset+pages]; ok {
		c.removeAvailRun(next)
		pages += next.pages()
	}

	c.insertAvailRun(newRunHandle(runOffset, pages, false))
	c.usage = c.usagePercent()
}

// sliceAt returns the backing-memory view for a run-offset/length pair, in
// bytes, relative to the chunk's start.
func (c *chunk) sliceAt(byteOffset, length int) []byte {
	return c.backing[byteOffset : byteOffset+length : byteOffset+length]
}

func lcm(a, b int) int {
	return a / gcd(a, b) * b
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
