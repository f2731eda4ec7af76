// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package buf

import "math/bits"

// LogQuantum is the log2 of the smallest quantum the size-class table
// distinguishes between: 16 bytes.
const LogQuantum = 4

// lookupMaxSize is the largest request size covered by the stepped
// size-step -> sizeIdx lookup table (sizes above this are resolved by the
// leading-zero-count formula instead).
const lookupMaxSize = 4096

// SizeClasses is the size-class table for one (pageSize, chunkSize) pair.
// Build it once with NewSizeClasses and share it across every arena backed
// by the same page/chunk geometry.
type SizeClasses struct {
	pageSize    int
	pageShifts  uint
	chunkSize   int
	nPSizes     int // number of page (run) size classes
	nSizes      int // total number of size classes (subpage + run)
	nSubpages   int // number of subpage size classes

	sizeIdx2sizeTab []int
	pageIdx2sizeTab []int
	size2idxTab     []int // stepped lookup, index = (size-1)>>LogQuantum
}

// NewSizeClasses builds the size-class table for the given page size (must
// be a power of two >= 4096) and maxOrder, with
// chunkSize = pageSize << maxOrder.
//
// Following the source layout: classes are grouped in fours within each
// power-of-two band. The first group (g == LogQuantum) has d in {0,1,2,3};
// every later group (g >= LogQuantum+2) has d in {1,2,3,4} and
// size = (1<<g) + d*(1<<(g-2)).
func NewSizeClasses(pageSize int, maxOrder uint) *SizeClasses {
	if pageSize < 4096 || pageSize&(pageSize-1) != 0 {
		panic("buf: pageSize must be a power of two >= 4096")
	}
	chunkSize := pageSize << maxOrder
	pageShifts := uint(bits.TrailingZeros(uint(pageSize)))

	sc := &SizeClasses{
		pageSize:   pageSize,
		pageShifts: pageShifts,
		chunkSize:  chunkSize,
	}
	sc.build()
	return sc
}

// DefaultSizeClasses returns the table for pageSize=8192, maxOrder=11
// (chunkSize = 16 MiB), the configuration exercised in the worked examples.
func DefaultSizeClasses() *SizeClasses {
	return NewSizeClasses(8192, 11)
}

// ChunkSize returns the size in bytes of one pool chunk.
func (sc *SizeClasses) ChunkSize() int { return sc.chunkSize }

// PageSize returns the configured page size in bytes.
func (sc *SizeClasses) PageSize() int { return sc.pageSize }

// PageShifts returns log2(PageSize()).
func (sc *SizeClasses) PageShifts() uint { return sc.pageShifts }

// NSizes returns the total number of size classes in the table.
func (sc *SizeClasses) NSizes() int { return sc.nSizes }

// NPSizes returns the number of page (run) size classes.
func (sc *SizeClasses) NPSizes() int { return sc.nPSizes }

func (sc *SizeClasses) build() {
	// Enumerate (group, delta) pairs from g=LogQuantum up to the chunk
	// size, same grouping the worked comment in the source describes:
	// [0,1,2,3,4,5,6,7,8,8,9,9,9,9,10,...].
	var sizes []int

	// first group: g == LogQuantum, d in {0,1,2,3}
	base := 1 << LogQuantum
	for d := 0; d < 4; d++ {
		sizes = append(sizes, base+d*(base>>2))
	}

	for g := LogQuantum + 2; (1 << g) <= sc.chunkSize; g++ {
		quarter := 1 << (g - 2)
		for d := 1; d <= 4; d++ {
			size := (1 << g) + d*quarter
			if size > sc.chunkSize {
				break
			}
			sizes = append(sizes, size)
		}
	}
	// dedupe + sort is unnecessary: the construction above is already
	// strictly increasing by design (each group's sizes exceed the prior
	// group's maximum).

	sc.sizeIdx2sizeTab = sizes
	sc.nSizes = len(sizes)

	pageSize := sc.pageSize
	for i, s := range sizes {
		if s%pageSize == 0 {
			sc.nSubpages = i
			break
		}
	}

	var pageSizes []int
	for _, s := range sizes {
		if s%pageSize == 0 && s <= sc.chunkSize {
			pageSizes = append(pageSizes, s)
		}
	}
	sc.pageIdx2sizeTab = pageSizes
	sc.nPSizes = len(pageSizes)

	// Stepped table for sizes <= lookupMaxSize, 16-byte granularity.
	steps := lookupMaxSize >> LogQuantum
	sc.size2idxTab = make([]int, steps)
	for step := 0; step < steps; step++ {
		reqSize := (step + 1) << LogQuantum
		sc.size2idxTab[step] = sc.computeSizeIdx(reqSize)
	}
}

// computeSizeIdx finds the smallest class index whose size is >= reqSize,
// by linear scan of the built table. Used only at table-construction time;
// Size2SizeIdx uses the lookup table or the closed-form group/delta
// decomposition instead of scanning at request time.
func (sc *SizeClasses) computeSizeIdx(reqSize int) int {
	for i, s := range sc.sizeIdx2sizeTab {
		if s >= reqSize {
			return i
		}
	}
	return sc.nSizes - 1
}

// Size2SizeIdx maps a requested size to the smallest size-class index whose
// class size is >= size. Returns 0 if size <= 0; panics if
// size > ChunkSize().
func (sc *SizeClasses) Size2SizeIdx(size int) int {
	if size <= 0 {
		return 0
	}
	if size > sc.chunkSize {
		panic("buf: size exceeds chunk size")
	}
	if size <= lookupMaxSize {
		idx := sc.size2idxTab[(size-1)>>LogQuantum]
		// The stepped table has 16-byte granularity; step down to a
		// finer class of the first group that still holds size.
		for idx > 0 && sc.sizeIdx2sizeTab[idx-1] >= size {
			idx--
		}
		return idx
	}

	// x = ceil(log2(size)) + 1
	x := bits.Len(uint(size-1)) + 1
	// Two classes of x: the group's bit-width determines whether we are
	// still in the "4 delta buckets of the group" regime.
	shift := uint(x - LogQuantum - 3)
	if x < LogQuantum+3 {
		shift = 0
	}
	group := x - LogQuantum - 1
	// mod selects which of the four deltas within the group we fall into.
	mod := (size - 1) >> shift & 3
	idx := (group << 2) + mod
	if idx >= sc.nSizes {
		idx = sc.nSizes - 1
	}
	// The closed-form above can be off by the table's irregular first
	// group; fall back to the exact table when in doubt.
	for idx > 0 && sc.sizeIdx2sizeTab[idx-1] >= size {
		idx--
	}
	for idx < sc.nSizes-1 && sc.sizeIdx2sizeTab[idx] < size {
		idx++
	}
	return idx
}

// SizeIdx2Size returns the class size for a given class index.
func (sc *SizeClasses) SizeIdx2Size(idx int) int {
	if idx < 0 || idx >= sc.nSizes {
		panic("buf: size index out of range")
	}
	return sc.sizeIdx2sizeTab[idx]
}

// Normalize rounds size up to its class's size.
func (sc *SizeClasses) Normalize(size int) int {
	return sc.SizeIdx2Size(sc.Size2SizeIdx(size))
}

// IsSubpage reports whether idx identifies a subpage (small) class as
// opposed to a run (normal) class.
func (sc *SizeClasses) IsSubpage(idx int) bool {
	return idx < sc.nSubpages
}

// Pages2PageIdx rounds pages up to the index of the smallest run class that
// can hold that many pages.
func (sc *SizeClasses) Pages2PageIdx(pages int) int {
	return sc.pages2PageIdx(pages, true)
}

// Pages2PageIdxFloor rounds pages down to the nearest run class, used when
// splitting a run into a used prefix and a free remainder.
func (sc *SizeClasses) Pages2PageIdxFloor(pages int) int {
	return sc.pages2PageIdx(pages, false)
}

func (sc *SizeClasses) pages2PageIdx(pages int, ceil bool) int {
	reqBytes := pages * sc.pageSize
	for i, s := range sc.pageIdx2sizeTab {
		if s == reqBytes {
			return i
		}
		if s > reqBytes {
			if ceil {
				return i
			}
			if i == 0 {
				return 0
			}
			return i - 1
		}
	}
	return sc.nPSizes - 1
}

// PageIdx2Pages returns the page count for a run-class index.
func (sc *SizeClasses) PageIdx2Pages(pageIdx int) int {
	return sc.pageIdx2sizeTab[pageIdx] / sc.pageSize
}
