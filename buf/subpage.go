// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package buf

import "math/bits"

// subpage is a single run, subdivided into maxNumElems equal-sized slots.
// It belongs to a doubly linked list (the subpage pool) anchored in its
// arena by size class: it is linked while it has a free slot, unlinked
// when its last free slot is allocated, and re-inserted when a release
// makes it non-full; once fully free it is unlinked and its pages are
// returned to the owning chunk.
type subpage struct {
	chunk    *chunk
	sizeIdx  int
	runOffset int
	runSize  int
	elemSize int

	maxNumElems int
	numAvail    int
	bitmap      []uint64 // 1 bit per slot; 1 == free

	linked     bool // true while linked into its arena's subpagePools list
	prev, next *subpage
}

func newSubpage(c *chunk, sizeIdx, runOffset, runSize, elemSize int) *subpage {
	maxNumElems := runSize / elemSize
	words := (maxNumElems + 63) / 64
	sp := &subpage{
		chunk:       c,
		sizeIdx:     sizeIdx,
		runOffset:   runOffset,
		runSize:     runSize,
		elemSize:    elemSize,
		maxNumElems: maxNumElems,
		numAvail:    maxNumElems,
		bitmap:      make([]uint64, words),
	}
	for i := range sp.bitmap {
		sp.bitmap[i] = ^uint64(0)
	}
	if rem := maxNumElems % 64; rem != 0 {
		sp.bitmap[len(sp.bitmap)-1] = 1<<uint(rem) - 1
	}
	return sp
}

// doesNotNeedShift reports whether this subpage has more than one free
// slot, purely a diagnostic; nothing in the package calls it, and
// allocation always re-scans the bitmap.
func (sp *subpage) doesNotNeedShift() bool { return sp.numAvail > 1 }

// allocate claims the lowest-index free slot and returns its bitmapIdx.
// The caller must have already checked numAvail > 0.
func (sp *subpage) allocate() int {
	for wordIdx, w := range sp.bitmap {
		if w == 0 {
			continue
		}
		bit := bits.TrailingZeros64(w)
		sp.bitmap[wordIdx] = w &^ (1 << uint(bit))
		sp.numAvail--
		return wordIdx*64 + bit
	}
	panic("buf: subpage allocate called with no free slots")
}

// free clears the slot at bitmapIdx. Returns true if the subpage is now
// fully free (numAvail == maxNumElems), signalling the chunk may reclaim
// its pages.
func (sp *subpage) free(bitmapIdx int) (fullyFree bool) {
	wordIdx, bit := bitmapIdx/64, uint(bitmapIdx%64)
	if sp.bitmap[wordIdx]&(1<<bit) != 0 {
		panic("buf: double free of subpage slot")
	}
	sp.bitmap[wordIdx] |= 1 << bit
	sp.numAvail++
	return sp.numAvail == sp.maxNumElems
}

func (sp *subpage) full() bool { return sp.numAvail == 0 }

// subpagePoolHead is the doubly linked sentinel anchoring one size class's
// subpages within an arena. It is itself a subpage-shaped node used only
// as prev/next anchor, never allocated from.
type subpagePoolHead struct {
	prev, next *subpage
}

func newSubpagePoolHead() *subpagePoolHead {
	h := &subpagePoolHead{}
	return h
}

func (h *subpagePoolHead) addFront(sp *subpage) {
	if sp.linked {
		return
	}
	sp.prev = nil
	sp.next = h.next
	if h.next != nil {
		h.next.prev = sp
	}
	h.next = sp
	sp.linked = true
}

func (h *subpagePoolHead) remove(sp *subpage) {
	if !sp.linked {
		return
	}
	if sp.prev != nil {
		sp.prev.next = sp.next
	} else {
		h.next = sp.next
	}
	if sp.next != nil {
		sp.next.prev = sp.prev
	}
	sp.prev, sp.next = nil, nil
	sp.linked = false
}

// first returns the head subpage with at least one free slot, or nil.
func (h *subpagePoolHead) first() *subpage {
	return h.next
}
