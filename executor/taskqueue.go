// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package executor

import (
	"sync/atomic"
	"unsafe"

	"code.hybscloud.com/netcore/internal/cpu"
	"code.hybscloud.com/spin"
)

// Task is a unit of work run on an EventLoop's own goroutine.
type Task func()

// taskQueue is a bounded MPSC ring buffer: many producer goroutines call
// tryEnqueue concurrently, but only the owning EventLoop's goroutine ever
// calls tryDequeue. The per-slot turn-tagged CAS handshake is the same
// shape as the teacher's BoundedPool cursor algorithm, simplified here for
// a single consumer (no CAS needed on the dequeue side). Logical ring
// positions are scattered across the backing array by the same remap the
// teacher's BoundedPool uses (remapM/remapN/remapMask, grouped by
// cpu.CacheLineSize), so that producers racing on adjacent logical
// positions don't all hammer the same cache line's slots.
type taskQueue struct {
	mask uint64
	buf  []taskSlot

	remapM, remapN, remapMask uint64

	enqPos atomic.Uint64
	deqPos atomic.Uint64
}

type taskSlot struct {
	seq  atomic.Uint64
	task Task
}

func newTaskQueue(capacity int) *taskQueue {
	capacity = nextPowerOfTwo(capacity)
	buf := make([]taskSlot, capacity)

	remapM := uint64(cpu.CacheLineSize) / uint64(unsafe.Sizeof(atomic.Uint64{}))
	if remapM > uint64(capacity) {
		remapM = uint64(capacity)
	}
	if remapM < 1 {
		remapM = 1
	}
	remapN := uint64(capacity) / remapM
	if remapN < 1 {
		remapN = 1
	}

	q := &taskQueue{
		mask:      uint64(capacity - 1),
		buf:       buf,
		remapM:    remapM,
		remapN:    remapN,
		remapMask: remapN - 1,
	}
	for i := range buf {
		q.buf[q.remap(uint64(i))].seq.Store(uint64(i))
	}
	return q
}

// remap scatters a logical ring position (already masked into
// [0,capacity)) across the backing array the same way BoundedPool.remap
// does: group cursor into remapN groups of remapM entries, then
// transpose group and within-group index so consecutive cursors land
// remapM apart instead of adjacent.
func (q *taskQueue) remap(cursor uint64) uint64 {
	p, r := cursor/q.remapN, cursor&q.remapMask
	return r*q.remapM + p%q.remapM
}

func nextPowerOfTwo(n int) int {
	if n < 1 {
		n = 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n++
	return n
}

func (q *taskQueue) cap() int { return len(q.buf) }

// tryEnqueue appends t, returning false if the queue is full.
func (q *taskQueue) tryEnqueue(t Task) bool {
	var sw spin.Wait
	pos := q.enqPos.Load()
	for {
		slot := &q.buf[q.remap(pos&q.mask)]
		seq := slot.seq.Load()
		diff := int64(seq) - int64(pos)
		switch {
		case diff == 0:
			if q.enqPos.CompareAndSwap(pos, pos+1) {
				slot.task = t
				slot.seq.Store(pos + 1)
				return true
			}
			sw.Once()
		case diff < 0:
			return false
		default:
			pos = q.enqPos.Load()
			sw.Once()
		}
	}
}

// tryDequeue pops the oldest task. Must only be called from the queue's
// single consumer goroutine.
func (q *taskQueue) tryDequeue() (Task, bool) {
	pos := q.deqPos.Load()
	slot := &q.buf[q.remap(pos&q.mask)]
	seq := slot.seq.Load()
	diff := int64(seq) - int64(pos+1)
	if diff != 0 {
		return nil, false
	}
	t := slot.task
	slot.task = nil
	q.deqPos.Store(pos + 1)
	slot.seq.Store(pos + q.mask + 1)
	return t, true
}

// len reports an instantaneous (racy w.r.t. concurrent producers) count,
// used only for shutdown's "queue empty" check from the consumer goroutine.
func (q *taskQueue) len() int {
	return int(q.enqPos.Load() - q.deqPos.Load())
}
