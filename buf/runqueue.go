// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package buf

import "container/heap"

// runPQ is a min-heap of free-run handles ordered by runOffset, so the
// chunk always hands out the lowest-offset run of a given size class first
// (reduces long-term fragmentation, per the source's tie-break rule).
type runPQ struct {
	items []handle
}

func (q *runPQ) Len() int            { return len(q.items) }
func (q *runPQ) Less(i, j int) bool  { return q.items[i].runOffset() < q.items[j].runOffset() }
func (q *runPQ) Swap(i, j int)       { q.items[i], q.items[j] = q.items[j], q.items[i] }
func (q *runPQ) Push(x interface{})  { q.items = append(q.items, x.(handle)) }
func (q *runPQ) Pop() interface{} {
	old := q.items
	n := len(old)
	v := old[n-1]
	q.items = old[:n-1]
	return v
}

func (q *runPQ) peekMin() (handle, bool) {
	if len(q.items) == 0 {
		return 0, false
	}
	return q.items[0], true
}

func (q *runPQ) popMin() handle {
	return heap.Pop(q).(handle)
}

func (q *runPQ) insert(h handle) {
	heap.Push(q, h)
}

// removeByOffset deletes the entry with the given runOffset, if present.
// Returns false if no such entry exists.
func (q *runPQ) removeByOffset(runOffset int) bool {
	for i, h := range q.items {
		if h.runOffset() == runOffset {
			heap.Remove(q, i)
			return true
		}
	}
	return false
}
