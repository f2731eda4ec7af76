// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package buf

import (
	"container/list"
	"sync"

	"code.hybscloud.com/netcore/internal/errs"
)

// band identifies one of the six occupancy lists a chunk can belong to.
// The overlapping ranges create hysteresis so chunks do not thrash between
// bands on small usage fluctuations.
type band int

const (
	bandQInit band = iota // [0,25)
	bandQ000               // [1,50)  -- note: chunks at exactly 0% live here only transiently
	bandQ025               // [25,75)
	bandQ050               // [50,100)
	bandQ075               // [75,100)
	bandQ100               // [100,100]
	bandCount
)

func bandFor(usage int) band {
	switch {
	case usage == 100:
		return bandQ100
	case usage >= 75:
		return bandQ075
	case usage >= 50:
		return bandQ050
	case usage >= 25:
		return bandQ025
	case usage >= 1:
		return bandQ000
	default:
		return bandQInit
	}
}

// allocation order across bands for both subpage and run requests: hot
// chunks stay hot by preferring the middle bands first.
var allocOrder = [...]band{bandQ050, bandQ025, bandQ000, bandQInit, bandQ075}

// Arena is a coordinator of chunks and subpage pools serving one or more
// goroutines. It is the Buffer allocator interface's implementation
// (§6): callers never talk to a chunk or subpage directly.
type Arena struct {
	sc *SizeClasses

	mu     sync.Mutex
	bands   [bandCount]*list.List // each element is *chunk
	elemOf  map[*chunk]*list.Element
	bandIdx map[*chunk]band

	subpagePools []subpagePoolHead // indexed by sizeIdx, len == sc.NSizes() (only subpage entries used)

	unpooledMu sync.Mutex
	unpooled   map[*chunk]struct{}
}

// NewArena creates an arena backed by the given size-class table. Chunks
// are created lazily on first allocation.
func NewArena(sc *SizeClasses) *Arena {
	a := &Arena{
		sc:           sc,
		elemOf:       make(map[*chunk]*list.Element),
		bandIdx:      make(map[*chunk]band),
		subpagePools: make([]subpagePoolHead, sc.NSizes()),
		unpooled:     make(map[*chunk]struct{}),
	}
	for i := range a.bands {
		a.bands[i] = list.New()
	}
	return a
}

// Allocate serves a request for reqCapacity bytes, returning a ByteBuf
// backed by pooled (or, for huge requests, unpooled) memory.
func (a *Arena) Allocate(reqCapacity, maxCapacity int) (*ByteBuf, error) {
	if reqCapacity > a.sc.ChunkSize() {
		return a.allocateHuge(reqCapacity, maxCapacity)
	}

	sizeIdx := a.sc.Size2SizeIdx(reqCapacity)
	if a.sc.IsSubpage(sizeIdx) {
		return a.allocateSmall(sizeIdx, maxCapacity)
	}
	return a.allocateNormal(sizeIdx, maxCapacity)
}

func (a *Arena) allocateSmall(sizeIdx, maxCapacity int) (*ByteBuf, error) {
	a.mu.Lock()
	head := &a.subpagePools[sizeIdx]
	if sp := head.first(); sp != nil && !sp.full() {
		bitmapIdx := sp.allocate()
		if sp.full() {
			head.remove(sp)
		}
		c := sp.chunk
		a.mu.Unlock()
		return a.newByteBuf(c, newSubpageHandle(sp.runOffset, bitmapIdx), sp.elemSize, maxCapacity), nil
	}
	a.mu.Unlock()

	for _, b := range allocOrder {
		c := a.firstChunk(b)
		for c != nil {
			sp, h, err := c.allocateSubpage(a.sc, sizeIdx)
			if err == nil {
				a.mu.Lock()
				if !sp.full() {
					head.addFront(sp)
				}
				a.mu.Unlock()
				a.reclassify(c)
				return a.newByteBuf(c, h, sp.elemSize, maxCapacity), nil
			}
			c = a.nextChunk(b, c)
		}
	}

	c := a.newChunk()
	sp, h, err := c.allocateSubpage(a.sc, sizeIdx)
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	if !sp.full() {
		head.addFront(sp)
	}
	a.mu.Unlock()
	a.reclassify(c)
	return a.newByteBuf(c, h, sp.elemSize, maxCapacity), nil
}

func (a *Arena) allocateNormal(sizeIdx, maxCapacity int) (*ByteBuf, error) {
	runSize := a.sc.SizeIdx2Size(sizeIdx)

	for _, b := range allocOrder {
		c := a.firstChunk(b)
		for c != nil {
			h, err := c.allocateRun(runSize)
			if err == nil {
				a.reclassify(c)
				return a.newByteBuf(c, h, h.pages()*a.sc.PageSize(), maxCapacity), nil
			}
			c = a.nextChunk(b, c)
		}
	}

	c := a.newChunk()
	h, err := c.allocateRun(runSize)
	if err != nil {
		return nil, err
	}
	a.reclassify(c)
	return a.newByteBuf(c, h, h.pages()*a.sc.PageSize(), maxCapacity), nil
}

func (a *Arena) allocateHuge(reqCapacity, maxCapacity int) (*ByteBuf, error) {
	if reqCapacity > maxCapacity {
		return nil, errs.ErrCapacityExceeded
	}
	c := newUnpooledChunk(reqCapacity)
	a.unpooledMu.Lock()
	a.unpooled[c] = struct{}{}
	a.unpooledMu.Unlock()
	return a.newByteBuf(c, newRunHandle(0, 1, true), reqCapacity, maxCapacity), nil
}

func (a *Arena) newByteBuf(c *chunk, h handle, capacity, maxCapacity int) *ByteBuf {
	offset := a.byteOffset(c, h)
	b := &ByteBuf{
		arena:       a,
		chunk:       c,
		handle:      h,
		offset:      offset,
		capacity:    capacity,
		maxCapacity: maxCapacity,
	}
	b.initRefCnt(func() { a.free(c, h) })
	return b
}

func (a *Arena) byteOffset(c *chunk, h handle) int {
	if c.unpooled {
		return 0
	}
	runOffset := h.runOffset() * a.sc.PageSize()
	if h.isSubpage() {
		a.mu.Lock()
		sp, ok := c.subpages[h.runOffset()]
		a.mu.Unlock()
		if !ok {
			panic("buf: missing subpage for handle")
		}
		return runOffset + h.bitmapIdx()*sp.elemSize
	}
	return runOffset
}

// free releases the allocation back to the owning chunk, re-links the
// owning subpage into its size class's pool if the release made it
// non-full (or unlinks it if the release emptied it), then reclassifies
// the chunk's band (or destroys it, for huge chunks and for chunks that
// return to 0% usage outside qInit).
func (a *Arena) free(c *chunk, h handle) {
	if c.unpooled {
		a.unpooledMu.Lock()
		delete(a.unpooled, c)
		a.unpooledMu.Unlock()
		return
	}

	runOffset := h.runOffset()
	var sp *subpage
	if h.isSubpage() {
		c.lock.Lock()
		sp = c.subpages[runOffset]
		c.lock.Unlock()
	}

	c.free(h)

	if sp != nil {
		c.lock.Lock()
		cur, stillOwnsRun := c.subpages[runOffset]
		c.lock.Unlock()
		// stillOwnsRun is false if the release emptied the subpage entirely
		// and its pages were already returned to the chunk's run index — it
		// must then leave the pool so no later allocation is served from it.
		a.mu.Lock()
		if !stillOwnsRun || cur != sp {
			a.subpagePools[sp.sizeIdx].remove(sp)
		} else if !sp.full() {
			a.subpagePools[sp.sizeIdx].addFront(sp)
		}
		a.mu.Unlock()
	}

	a.reclassify(c)
}

func (a *Arena) firstChunk(b band) *chunk {
	a.mu.Lock()
	defer a.mu.Unlock()
	e := a.bands[b].Front()
	if e == nil {
		return nil
	}
	return e.Value.(*chunk)
}

func (a *Arena) nextChunk(b band, c *chunk) *chunk {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.elemOf[c]
	if !ok || e.Next() == nil {
		return nil
	}
	return e.Next().Value.(*chunk)
}

func (a *Arena) newChunk() *chunk {
	c := newChunk(a.sc, a)
	a.mu.Lock()
	e := a.bands[bandQInit].PushBack(c)
	a.elemOf[c] = e
	a.bandIdx[c] = bandQInit
	a.mu.Unlock()
	return c
}

// reclassify moves c to bandFor(usage) once its usage leaves its current
// band's range, destroying it
// (dropping it from every index) if it has returned to 0% usage while
// outside qInit (prevents unbounded chunk growth under churn). A brand-new
// chunk sitting at 0% in qInit is left alone so the first allocation has
// somewhere to land.
func (a *Arena) reclassify(c *chunk) {
	usage := c.usagePercent()
	target := bandFor(usage)

	a.mu.Lock()
	defer a.mu.Unlock()

	e, ok := a.elemOf[c]
	if !ok {
		return
	}
	cur := a.bandIdx[c]

	if usage == 0 && cur != bandQInit {
		a.bands[cur].Remove(e)
		delete(a.elemOf, c)
		delete(a.bandIdx, c)
		return
	}

	if cur == target {
		return
	}
	// Stay in the current band while usage is still inside its (overlapping)
	// range: qInit [0,25), q000 [1,50), q025 [25,75), q050 [50,100),
	// q075 [75,100), q100 [100,100].
	lo := [bandCount]int{0, 1, 25, 50, 75, 100}[cur]
	hi := [bandCount]int{25, 50, 75, 100, 100, 101}[cur]
	if usage >= lo && usage < hi {
		return
	}

	a.bands[cur].Remove(e)
	ne := a.bands[target].PushBack(c)
	a.elemOf[c] = ne
	a.bandIdx[c] = target
}
