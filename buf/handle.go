// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package buf

// handle is the 64-bit opaque allocation descriptor:
//
//	[runOffset:15 | pages:15 | used:1 | subpage:1 | bitmapIdx:32]
//
// For a run handle, pages >= 1 and runOffset+pages <= chunkSize/pageSize.
// For a subpage handle, bitmapIdx indexes a slot within the owning subpage.
type handle uint64

const (
	handleBitmapIdxBits = 32
	handleSubpageBits   = 1
	handleUsedBits      = 1
	handlePagesBits     = 15
	handleRunOffsetBits = 15

	handleBitmapIdxShift = 0
	handleSubpageShift   = handleBitmapIdxShift + handleBitmapIdxBits
	handleUsedShift      = handleSubpageShift + handleSubpageBits
	handlePagesShift     = handleUsedShift + handleUsedBits
	handleRunOffsetShift = handlePagesShift + handlePagesBits

	handleBitmapIdxMask = uint64(1)<<handleBitmapIdxBits - 1
	handlePagesMask     = uint64(1)<<handlePagesBits - 1
	handleRunOffsetMask = uint64(1)<<handleRunOffsetBits - 1

	maxPagesPerChunk = 1 << handlePagesBits
	maxRunOffset     = 1 << handleRunOffsetBits
)

func newRunHandle(runOffset, pages int, used bool) handle {
	if runOffset < 0 || runOffset >= maxRunOffset {
		panic("buf: runOffset out of range")
	}
	if pages < 1 || pages >= maxPagesPerChunk {
		panic("buf: pages out of range")
	}
	var h uint64
	h |= uint64(runOffset) << handleRunOffsetShift
	h |= uint64(pages) << handlePagesShift
	if used {
		h |= 1 << handleUsedShift
	}
	return handle(h)
}

func newSubpageHandle(runOffset, bitmapIdx int) handle {
	h := newRunHandle(runOffset, 1, true)
	return handle(uint64(h) | 1<<handleSubpageShift | uint64(bitmapIdx)<<handleBitmapIdxShift)
}

func (h handle) runOffset() int { return int(uint64(h) >> handleRunOffsetShift & handleRunOffsetMask) }
func (h handle) pages() int     { return int(uint64(h) >> handlePagesShift & handlePagesMask) }
func (h handle) used() bool     { return uint64(h)>>handleUsedShift&1 == 1 }
func (h handle) isSubpage() bool {
	return uint64(h)>>handleSubpageShift&1 == 1
}
func (h handle) bitmapIdx() int { return int(uint64(h) >> handleBitmapIdxShift & handleBitmapIdxMask) }

func (h handle) withUsed(used bool) handle {
	v := uint64(h) &^ (1 << handleUsedShift)
	if used {
		v |= 1 << handleUsedShift
	}
	return handle(v)
}

func (h handle) withPages(pages int) handle {
	v := uint64(h) &^ (handlePagesMask << handlePagesShift)
	v |= uint64(pages) << handlePagesShift
	return handle(v)
}

func (h handle) withRunOffset(runOffset int) handle {
	v := uint64(h) &^ (handleRunOffsetMask << handleRunOffsetShift)
	v |= uint64(runOffset) << handleRunOffsetShift
	return handle(v)
}
