// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package buf

import "testing"

func TestArena_AllocateSmallReusesSubpageBeforeFull(t *testing.T) {
	sc := NewSizeClasses(8192, 11)
	a := NewArena(sc)

	b1, err := a.Allocate(64, 1<<16)
	if err != nil {
		t.Fatalf("Allocate #1 error = %v", err)
	}
	b2, err := a.Allocate(64, 1<<16)
	if err != nil {
		t.Fatalf("Allocate #2 error = %v", err)
	}
	if b1.chunk != b2.chunk {
		t.Fatalf("expected both small allocations to land in the same chunk")
	}
}

func TestArena_AllocateNormalCreatesNewChunkWhenExhausted(t *testing.T) {
	sc := NewSizeClasses(8192, 11)
	a := NewArena(sc)

	totalPages := sc.ChunkSize() / sc.PageSize()
	b1, err := a.Allocate(totalPages*sc.PageSize(), sc.ChunkSize()*2)
	if err != nil {
		t.Fatalf("Allocate(full chunk) error = %v", err)
	}
	b2, err := a.Allocate(sc.PageSize(), sc.ChunkSize()*2)
	if err != nil {
		t.Fatalf("Allocate(1 page) error = %v", err)
	}
	if b1.chunk == b2.chunk {
		t.Fatalf("expected second allocation to land in a new chunk")
	}
}

func TestArena_HugeAllocationBypassesPooling(t *testing.T) {
	sc := NewSizeClasses(8192, 11)
	a := NewArena(sc)

	hugeSize := sc.ChunkSize() + 1
	b, err := a.Allocate(hugeSize, hugeSize)
	if err != nil {
		t.Fatalf("Allocate(huge) error = %v", err)
	}
	if !b.chunk.unpooled {
		t.Fatalf("expected a huge allocation to use an unpooled chunk")
	}
	if b.Capacity() != hugeSize {
		t.Fatalf("Capacity() = %d, want %d", b.Capacity(), hugeSize)
	}
	if _, err := b.Release(1); err != nil {
		t.Fatalf("Release error = %v", err)
	}
	if _, ok := a.unpooled[b.chunk]; ok {
		t.Fatalf("expected unpooled chunk to be removed from the arena's tracking set on release")
	}
}

func TestArena_ReclassifyMovesChunkBetweenBands(t *testing.T) {
	sc := NewSizeClasses(8192, 11)
	a := NewArena(sc)

	totalPages := sc.ChunkSize() / sc.PageSize()
	half := totalPages / 2

	b, err := a.Allocate(half*sc.PageSize(), sc.ChunkSize()*2)
	if err != nil {
		t.Fatalf("Allocate error = %v", err)
	}
	c := b.chunk
	if got := a.bandIdx[c]; got != bandQ050 && got != bandQ025 {
		t.Fatalf("band after ~50%% allocation = %v, want q025 or q050", got)
	}

	if _, err := b.Release(1); err != nil {
		t.Fatalf("Release error = %v", err)
	}
	if _, stillTracked := a.bandIdx[c]; stillTracked {
		t.Fatalf("expected chunk to be dropped from band tracking once it returns to 0%% usage")
	}
}
