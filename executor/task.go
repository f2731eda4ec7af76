// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package executor

import (
	"sync/atomic"
	"time"
)

// ScheduledTask is a task with a deadline and, for repeating tasks, a
// period. Ordering is by (deadlineNanos, id) ascending; id breaks ties so
// two tasks scheduled for the same deadline run in submission order.
type ScheduledTask struct {
	deadline int64 // UnixNano
	period   int64 // 0 for one-shot
	id       uint64
	task     Task

	cancelled atomic.Bool
	index     int // heap index, maintained by scheduledQueue
}

// Cancelled reports whether Cancel has been called on this task.
func (st *ScheduledTask) Cancelled() bool { return st.cancelled.Load() }

// Deadline returns the task's next scheduled execution time.
func (st *ScheduledTask) Deadline() time.Time { return time.Unix(0, st.deadline) }

// scheduledQueue is a container/heap-backed min-heap ordered by
// (deadline, id). It is single-consumer: only the owning EventLoop's
// goroutine ever touches it.
type scheduledQueue struct {
	items []*ScheduledTask
}

func (q *scheduledQueue) Len() int { return len(q.items) }
func (q *scheduledQueue) Less(i, j int) bool {
	a, b := q.items[i], q.items[j]
	if a.deadline != b.deadline {
		return a.deadline < b.deadline
	}
	return a.id < b.id
}
func (q *scheduledQueue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
	q.items[i].index = i
	q.items[j].index = j
}
func (q *scheduledQueue) Push(x interface{}) {
	st := x.(*ScheduledTask)
	st.index = len(q.items)
	q.items = append(q.items, st)
}
func (q *scheduledQueue) Pop() interface{} {
	old := q.items
	n := len(old)
	st := old[n-1]
	old[n-1] = nil
	st.index = -1
	q.items = old[:n-1]
	return st
}

func (q *scheduledQueue) peek() (*ScheduledTask, bool) {
	if len(q.items) == 0 {
		return nil, false
	}
	return q.items[0], true
}
