// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package buf

import (
	"os"
	"strconv"
	"sync/atomic"

	"code.hybscloud.com/netcore/internal/cpu"
)

const (
	defaultInitialCapacity = 256
	defaultMaxCapacity     = 1 << 31 - 1 // 2 GiB - 1, matches the int32 capacity ceiling
)

// Allocator is the buffer allocator interface exposed to callers: a
// pooled, size-classed factory for heap- and direct-kind buffers. "Direct"
// here means page-aligned pooled memory (still a Go []byte, since Go has
// no separate native-heap allocation primitive); "heap" is ordinary pooled
// memory. Both share the same Arena/ThreadCache machinery — only the
// alignment of freshly created chunks differs.
type Allocator struct {
	sc *SizeClasses

	heapArenas   []*Arena
	directArenas []*Arena
	next         atomic.Uint64 // round-robin cursor across arenas, see nextArena

	pooledDirect bool
}

// Config holds the allocator's tuning knobs, readable from the
// environment via ConfigFromEnv or set explicitly for tests.
type Config struct {
	PageSize          int
	MaxOrder          uint
	NumHeapArenas     int
	NumDirectArenas   int
	CacheTrimInterval int
	PooledDirect      bool
}

// DefaultConfig returns {pageSize: 8192, maxOrder: 11, ...}, matching the
// environment property defaults in SPEC_FULL.md §6.
func DefaultConfig() Config {
	return Config{
		PageSize:          8192,
		MaxOrder:          11,
		NumHeapArenas:     cpu.DefaultArenaCount(),
		NumDirectArenas:   cpu.DefaultArenaCount(),
		CacheTrimInterval: defaultCacheTrimInterval,
		PooledDirect:      true,
	}
}

// ConfigFromEnv overlays DefaultConfig with any recognized
// NETCORE_ALLOCATOR_* environment variables; unrecognized/unset variables
// keep their default. Malformed values are ignored (default retained).
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	if v, ok := envInt("NETCORE_ALLOCATOR_PAGE_SIZE"); ok {
		cfg.PageSize = v
	}
	if v, ok := envInt("NETCORE_ALLOCATOR_MAX_ORDER"); ok {
		cfg.MaxOrder = uint(v)
	}
	if v, ok := envInt("NETCORE_ALLOCATOR_NUM_HEAP_ARENAS"); ok {
		cfg.NumHeapArenas = v
	}
	if v, ok := envInt("NETCORE_ALLOCATOR_NUM_DIRECT_ARENAS"); ok {
		cfg.NumDirectArenas = v
	}
	if v, ok := envInt("NETCORE_ALLOCATOR_CACHE_TRIM_INTERVAL"); ok {
		cfg.CacheTrimInterval = v
	}
	return cfg
}

func envInt(name string) (int, bool) {
	s, ok := os.LookupEnv(name)
	if !ok {
		return 0, false
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return v, true
}

// NewAllocator builds an allocator with cfg.NumHeapArenas heap arenas and
// cfg.NumDirectArenas direct arenas, all sharing one size-class table
// derived from cfg.PageSize/cfg.MaxOrder.
func NewAllocator(cfg Config) *Allocator {
	sc := NewSizeClasses(cfg.PageSize, cfg.MaxOrder)
	a := &Allocator{
		sc:           sc,
		pooledDirect: cfg.PooledDirect,
	}
	for i := 0; i < max1(cfg.NumHeapArenas); i++ {
		a.heapArenas = append(a.heapArenas, NewArena(sc))
	}
	for i := 0; i < max1(cfg.NumDirectArenas); i++ {
		a.directArenas = append(a.directArenas, NewArena(sc))
	}
	return a
}

func max1(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

// IsDirectBufferPooled reports whether DirectBuffer draws from pooled
// direct arenas (true) or falls back to one-shot unpooled allocation.
func (a *Allocator) IsDirectBufferPooled() bool { return a.pooledDirect }

// Buffer allocates a buffer with the default initial capacity and
// maxCapacity.
func (a *Allocator) Buffer() (*ByteBuf, error) {
	return a.Buffer2(defaultInitialCapacity, defaultMaxCapacity)
}

// Buffer1 allocates a buffer with the given initial capacity and the
// default maxCapacity.
func (a *Allocator) Buffer1(initialCapacity int) (*ByteBuf, error) {
	return a.Buffer2(initialCapacity, defaultMaxCapacity)
}

// Buffer2 allocates a heap buffer with the given initial and max capacity.
func (a *Allocator) Buffer2(initial, max int) (*ByteBuf, error) {
	return a.HeapBuffer(initial, max)
}

// HeapBuffer allocates from a round-robin-chosen heap arena.
func (a *Allocator) HeapBuffer(initial, max int) (*ByteBuf, error) {
	return a.nextArena(a.heapArenas).Allocate(initial, max)
}

// DirectBuffer allocates from a round-robin-chosen direct arena when
// IsDirectBufferPooled, otherwise falls back to an unpooled huge
// allocation sized exactly to initial.
func (a *Allocator) DirectBuffer(initial, max int) (*ByteBuf, error) {
	if !a.pooledDirect {
		return a.nextArena(a.directArenas).allocateHuge(initial, max)
	}
	return a.nextArena(a.directArenas).Allocate(initial, max)
}

// CompositeBuffer returns an empty CompositeByteBuf that will accept up to
// maxComponents component buffers.
func (a *Allocator) CompositeBuffer(maxComponents int) *CompositeByteBuf {
	return newCompositeByteBuf(a, maxComponents)
}

// CalculateNewCapacity exposes the allocator's growth policy for callers
// that want to pre-size a buffer without going through EnsureWritable.
func (a *Allocator) CalculateNewCapacity(minNew, max int) int {
	return CalculateNewCapacity(minNew, max)
}

func (a *Allocator) nextArena(arenas []*Arena) *Arena {
	n := uint64(len(arenas))
	if n == 0 {
		panic("buf: allocator has no arenas")
	}
	idx := a.advance(n)
	return arenas[idx]
}

// advance implements the chooser from spec.md §4.I: a power-of-two count
// uses a mask, otherwise modulo on a 64-bit counter to avoid overflow skew.
func (a *Allocator) advance(n uint64) uint64 {
	cur := a.next.Add(1) - 1
	if n&(n-1) == 0 {
		return cur & (n - 1)
	}
	return cur % n
}
