// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package executor

import (
	"container/heap"
	"context"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"code.hybscloud.com/iox"
	"code.hybscloud.com/netcore/buf"
	"code.hybscloud.com/netcore/internal/errs"
)

// ErrClosedExecutor is returned by Submit/Schedule once the loop has
// reached shutdown or terminated.
var ErrClosedExecutor = errs.ErrClosedExecutor

// ErrRejectedExecution is returned by Submit when the task queue is full
// and the configured reject policy is RejectThrow (the default).
var ErrRejectedExecution = errs.ErrRejectedExecution

// State is one point in an EventLoop's lifecycle.
type State int32

const (
	StateNotStarted State = iota
	StateStarted
	StateShuttingDown
	StateShutdown
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not-started"
	case StateStarted:
		return "started"
	case StateShuttingDown:
		return "shutting-down"
	case StateShutdown:
		return "shutdown"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// RejectPolicy decides what Submit does when the task queue is full.
type RejectPolicy int

const (
	// RejectThrow returns ErrRejectedExecution (the default).
	RejectThrow RejectPolicy = iota
	// RejectDrop silently discards the task.
	RejectDrop
)

const defaultMaxPendingTasks = 1 << 16

// Config holds an EventLoop's tuning knobs.
type Config struct {
	MaxPendingTasks int
	MaxIOWait       time.Duration
	TaskBudgetRatio float64 // fraction of MaxIOWait spent running tasks per iteration
	RejectPolicy    RejectPolicy

	// Allocator, if set, gives this loop its own buf.LocalAllocator
	// (accessible via EventLoop.Allocator), so a pipeline/channel handler
	// running on this loop's goroutine allocates through a cache bound to
	// this loop alone rather than going straight to the shared Allocator.
	Allocator *buf.Allocator
	// AllocatorCacheSize is the per-size-class cache depth for the loop's
	// LocalAllocator; zero uses buf's own default.
	AllocatorCacheSize int
}

// DefaultConfig matches spec.md §6's defaults: unbounded (here, a large
// fixed bound rather than true MaxInt32, to keep the ring buffer's memory
// footprint sane) pending tasks, throw on rejection.
func DefaultConfig() Config {
	return Config{
		MaxPendingTasks: defaultMaxPendingTasks,
		MaxIOWait:       100 * time.Millisecond,
		TaskBudgetRatio: 0.5,
		RejectPolicy:    RejectThrow,
	}
}

// ConfigFromEnv overlays DefaultConfig with NETCORE_EXECUTOR_MAX_PENDING_TASKS
// if set and well-formed.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	if s, ok := os.LookupEnv("NETCORE_EXECUTOR_MAX_PENDING_TASKS"); ok {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			cfg.MaxPendingTasks = v
		}
	}
	return cfg
}

// EventLoop is a single-threaded cooperative executor: one goroutine runs
// Run, processing I/O readiness and queued tasks in turn. All pipeline
// handler callbacks, scheduled tasks, and promise listeners bound to this
// loop execute on that one goroutine, serialized in submission order for
// non-scheduled tasks.
type EventLoop struct {
	poller Poller
	tasks  *taskQueue
	cfg    Config

	state atomic.Int32

	// inLoopFlag is true only while Run's goroutine is inside the core
	// loop; inLoopGoroutine reads it, but the
	// package has no true goroutine-identity primitive (Go exposes none),
	// so this is an optimization heuristic, not a safety mechanism: it
	// only ever affects whether a promise listener runs inline or via
	// Submit, never correctness of the result itself.
	inLoopFlag atomic.Bool
	execDepth  int // loop-goroutine-only, no synchronization needed

	scheduled  scheduledQueue
	nextTaskID atomic.Uint64

	lastActivity        atomic.Int64 // UnixNano of last dequeued task/event
	shutdownRequestedAt atomic.Int64
	quietPeriod         time.Duration
	shutdownTimeout     time.Duration

	shutdownHooks      []Task
	terminationPromise *Promise[struct{}]

	onInboundReady func([]ReadyEvent)

	localAlloc *buf.LocalAllocator
}

// NewEventLoop creates a loop bound to poller, not yet started. If
// cfg.Allocator is set, the loop gets its own LocalAllocator immediately
// (see Allocator).
func NewEventLoop(poller Poller, cfg Config) *EventLoop {
	if cfg.MaxPendingTasks <= 0 {
		cfg.MaxPendingTasks = defaultMaxPendingTasks
	}
	e := &EventLoop{
		poller:             poller,
		tasks:              newTaskQueue(cfg.MaxPendingTasks),
		cfg:                cfg,
		terminationPromise: NewPromise[struct{}](nil),
	}
	if cfg.Allocator != nil {
		e.localAlloc = cfg.Allocator.NewLocalAllocator(cfg.AllocatorCacheSize)
	}
	return e
}

// Allocator returns the loop's own LocalAllocator, or nil if none was
// configured. Only this loop's own goroutine may call methods on the
// returned value, matching LocalAllocator's single-goroutine contract.
func (e *EventLoop) Allocator() *buf.LocalAllocator { return e.localAlloc }

// SetInboundHandler installs the callback invoked with each Select's ready
// events. No package in this module installs one; with none set, ready
// events are not dispatched.
func (e *EventLoop) SetInboundHandler(fn func([]ReadyEvent)) {
	e.onInboundReady = fn
}

// State returns the loop's current lifecycle state.
func (e *EventLoop) State() State { return State(e.state.Load()) }

func (e *EventLoop) inLoopGoroutine() bool { return e.inLoopFlag.Load() }

// InEventLoop reports whether the calling goroutine is (heuristically)
// this loop's own Run goroutine.
func (e *EventLoop) InEventLoop() bool { return e.inLoopGoroutine() }

// Submit enqueues fn for execution on the loop's goroutine, in FIFO order
// relative to other Submit calls. Returns ErrClosedExecutor once the loop
// has shut down, or ErrRejectedExecution (RejectThrow) / nil (RejectDrop)
// if the queue is full.
func (e *EventLoop) Submit(fn Task) error {
	if e.State() >= StateShutdown {
		return ErrClosedExecutor
	}
	if e.tasks.tryEnqueue(fn) {
		e.poller.Wakeup()
		return nil
	}
	switch e.cfg.RejectPolicy {
	case RejectDrop:
		return nil
	default:
		return ErrRejectedExecution
	}
}

// SubmitWait enqueues fn, blocking with adaptive backoff (iox.Backoff)
// while the task queue is full rather than rejecting immediately -- the
// same choice the teacher's BoundedPool.Put makes for a full pool, on the
// premise that capacity is about to be freed by the loop's own goroutine
// draining tasks. Returns ErrClosedExecutor once the loop has shut down,
// or ctx's error if ctx is cancelled before a slot frees up.
func (e *EventLoop) SubmitWait(ctx context.Context, fn Task) error {
	var bo iox.Backoff
	for {
		if e.State() >= StateShutdown {
			return ErrClosedExecutor
		}
		if e.tasks.tryEnqueue(fn) {
			e.poller.Wakeup()
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		bo.Wait()
	}
}

// Schedule runs fn once, delay from now. The actual heap insertion happens
// on the loop's own goroutine (submitted as a task), so the
// single-consumer scheduled queue never needs its own lock.
func (e *EventLoop) Schedule(delay time.Duration, fn Task) (*ScheduledTask, error) {
	return e.scheduleAt(time.Now().Add(delay), 0, fn)
}

// ScheduleAtFixedRate runs fn every period, starting after initialDelay.
func (e *EventLoop) ScheduleAtFixedRate(initialDelay, period time.Duration, fn Task) (*ScheduledTask, error) {
	if period <= 0 {
		panic("executor: period must be positive")
	}
	return e.scheduleAt(time.Now().Add(initialDelay), period, fn)
}

func (e *EventLoop) scheduleAt(deadline time.Time, period time.Duration, fn Task) (*ScheduledTask, error) {
	if e.State() >= StateShutdown {
		return nil, ErrClosedExecutor
	}
	st := &ScheduledTask{
		deadline: deadline.UnixNano(),
		period:   int64(period),
		id:       e.nextTaskID.Add(1),
		task:     fn,
	}
	err := e.Submit(func() { heap.Push(&e.scheduled, st) })
	if err != nil {
		return nil, err
	}
	return st, nil
}

// Cancel cancels a scheduled task: it is marked cancelled at once, so the
// loop skips it on dequeue, and a submitted task removes it from the heap
// on the loop's own goroutine (the only goroutine that touches the heap).
func (e *EventLoop) Cancel(st *ScheduledTask) {
	st.cancelled.Store(true)
	_ = e.Submit(func() {
		if i := st.index; i >= 0 && i < e.scheduled.Len() && e.scheduled.items[i] == st {
			heap.Remove(&e.scheduled, i)
		}
	})
}

// Run executes the loop's core cycle until shutdown completes. It returns
// once the loop reaches StateTerminated.
func (e *EventLoop) Run() {
	e.state.Store(int32(StateStarted))
	e.inLoopFlag.Store(true)
	e.lastActivity.Store(time.Now().UnixNano())
	defer e.inLoopFlag.Store(false)

	for {
		if e.confirmShutdown() {
			break
		}
		e.drainExpiredScheduled()

		timeout := e.nextWaitTimeout()
		events, _ := e.poller.Select(timeout)
		if len(events) > 0 {
			e.lastActivity.Store(time.Now().UnixNano())
			if e.onInboundReady != nil {
				e.onInboundReady(events)
			}
		}

		if e.runAllTasks(e.taskBudget()) > 0 {
			e.lastActivity.Store(time.Now().UnixNano())
		}
	}
	e.finalizeShutdown()
}

// taskBudget is the wall-clock budget for one iteration's task-queue
// drain: TaskBudgetRatio of MaxIOWait, so task processing cannot starve
// I/O polling.
func (e *EventLoop) taskBudget() time.Duration {
	return time.Duration(float64(e.cfg.MaxIOWait) * e.cfg.TaskBudgetRatio)
}

// nextWaitTimeout is min(time-to-next-scheduled, MaxIOWait).
func (e *EventLoop) nextWaitTimeout() time.Duration {
	if State(e.state.Load()) == StateShuttingDown {
		// Keep polling responsively while draining towards shutdown.
		return min(e.cfg.MaxIOWait, 10*time.Millisecond)
	}
	st, ok := e.scheduled.peek()
	if !ok {
		return e.cfg.MaxIOWait
	}
	d := time.Until(time.Unix(0, st.deadline))
	if d < 0 {
		return 0
	}
	return min(d, e.cfg.MaxIOWait)
}

// drainExpiredScheduled moves every scheduled task whose deadline has
// passed into immediate execution, re-pushing periodic tasks for their
// next occurrence.
func (e *EventLoop) drainExpiredScheduled() {
	now := time.Now().UnixNano()
	for {
		st, ok := e.scheduled.peek()
		if !ok || st.deadline > now {
			return
		}
		heap.Pop(&e.scheduled)
		if st.cancelled.Load() {
			continue
		}
		st.task()
		if st.period > 0 && !st.cancelled.Load() {
			st.deadline = now + st.period
			st.id = e.nextTaskID.Add(1)
			heap.Push(&e.scheduled, st)
		}
	}
}

// runAllTasks drains the task queue for up to budget, returning the
// number of tasks run. A non-positive budget still runs at least one
// batch pass so a closed/degenerate budget cannot starve the queue
// entirely during shutdown drains.
func (e *EventLoop) runAllTasks(budget time.Duration) int {
	deadline := time.Now().Add(budget)
	n := 0
	for {
		t, ok := e.tasks.tryDequeue()
		if !ok {
			return n
		}
		t()
		n++
		if budget > 0 && time.Now().After(deadline) {
			return n
		}
	}
}

// AddShutdownHook registers fn to run once, during finalizeShutdown,
// after the task/scheduled queues have drained. Hooks may themselves
// enqueue further hooks.
func (e *EventLoop) AddShutdownHook(fn Task) {
	e.shutdownHooks = append(e.shutdownHooks, fn)
}

// ShutdownGracefully requests shutdown: the loop keeps accepting and
// running tasks until quietPeriod elapses with nothing new to do and
// both queues are empty, or timeout elapses, whichever comes first.
// Returns the loop's termination future.
func (e *EventLoop) ShutdownGracefully(quietPeriod, timeout time.Duration) Future[struct{}] {
	e.quietPeriod = quietPeriod
	e.shutdownTimeout = timeout
	e.shutdownRequestedAt.Store(time.Now().UnixNano())
	e.state.CompareAndSwap(int32(StateStarted), int32(StateShuttingDown))
	e.poller.Wakeup()
	return e.terminationPromise
}

// TerminationFuture returns the future that completes once this loop
// reaches StateTerminated.
func (e *EventLoop) TerminationFuture() Future[struct{}] { return e.terminationPromise }

func (e *EventLoop) confirmShutdown() bool {
	if State(e.state.Load()) != StateShuttingDown {
		return false
	}
	now := time.Now().UnixNano()
	quietElapsed := time.Duration(now-e.lastActivity.Load()) >= e.quietPeriod
	empty := e.tasks.len() == 0 && e.scheduled.Len() == 0
	timedOut := time.Duration(now-e.shutdownRequestedAt.Load()) >= e.shutdownTimeout
	return (quietElapsed && empty) || timedOut
}

func (e *EventLoop) finalizeShutdown() {
	e.state.Store(int32(StateShutdown))
	for e.scheduled.Len() > 0 {
		st := heap.Pop(&e.scheduled).(*ScheduledTask)
		st.cancelled.Store(true)
	}
	for i := 0; i < len(e.shutdownHooks); i++ {
		e.shutdownHooks[i]()
	}
	_ = e.poller.Close()
	e.state.Store(int32(StateTerminated))
	e.terminationPromise.TrySuccess(struct{}{})
}
