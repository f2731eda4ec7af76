// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package buf implements a pooled, reference-counted byte buffer
// allocator modeled after jemalloc-style size classes.
//
// # Size classes
//
// SizeClasses maps a requested byte count to a discrete allocation class
// and back. Classes below pageSize are "subpage" classes served out of a
// page subdivided into equal slots; classes at or above pageSize are "run"
// classes served out of one or more whole pages.
//
// # Chunks, runs and subpages
//
// Each Arena grows by creating 16 MiB (by default) chunks on demand. A
// chunk tracks its free page runs in a set of priority queues indexed by
// run-size class, plus a dual offset index that lets free() find and
// merge adjacent free runs in O(1). Small requests are served by carving
// one run into equal-sized slots tracked by a bitmap (subpage).
//
// # Arena occupancy bands
//
// Chunks migrate between six occupancy bands (qInit, q000, q025, q050,
// q075, q100) as they fill and drain; allocation prefers the q050 band
// first to keep already-warm chunks warm and let cold ones drain to zero
// and be reclaimed.
//
// # Reference counting
//
// ByteBuf embeds an atomic reference count with a one-shot deallocation
// callback: Retain/Release never need a caller-visible lock, and double-
// release or use-after-free is reported as ErrIllegalReferenceCount rather
// than corrupting pool state.
//
// # Thread cache
//
// ThreadCache sits in front of an Arena and recycles recently-released
// handles without going back through the chunk/subpage machinery.
// LocalAllocator pairs one heap and one direct ThreadCache behind the
// Allocator/Buffer-shaped API and is bound one-per-consumer: the executor
// package gives each EventLoop its own via Config.Allocator, so a
// pipeline handler running on that loop's goroutine allocates through a
// cache no other goroutine ever touches.
package buf
