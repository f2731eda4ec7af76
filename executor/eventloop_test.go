// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package executor_test

import (
	"context"
	"testing"
	"time"

	"code.hybscloud.com/netcore/buf"
	"code.hybscloud.com/netcore/executor"
)

func newTestLoop(t *testing.T) *executor.EventLoop {
	t.Helper()
	cfg := executor.DefaultConfig()
	cfg.MaxIOWait = 10 * time.Millisecond
	loop := executor.NewEventLoop(executor.NewNopPoller(), cfg)
	go loop.Run()
	t.Cleanup(func() {
		loop.ShutdownGracefully(0, time.Second)
		_ = loop.TerminationFuture().Await(context.Background())
	})
	return loop
}

func TestEventLoop_SubmitRunsOnLoopGoroutine(t *testing.T) {
	loop := newTestLoop(t)
	done := make(chan bool, 1)
	if err := loop.Submit(func() { done <- loop.InEventLoop() }); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	select {
	case inLoop := <-done:
		if !inLoop {
			t.Fatalf("task ran but InEventLoop() reported false")
		}
	case <-time.After(time.Second):
		t.Fatalf("submitted task never ran")
	}
}

func TestEventLoop_SubmitPreservesFIFOOrder(t *testing.T) {
	loop := newTestLoop(t)
	result := make(chan int, 3)
	for i := 0; i < 3; i++ {
		i := i
		if err := loop.Submit(func() { result <- i }); err != nil {
			t.Fatalf("Submit(%d) error = %v", i, err)
		}
	}
	for i := 0; i < 3; i++ {
		select {
		case v := <-result:
			if v != i {
				t.Fatalf("task %d ran out of order, got %d", i, v)
			}
		case <-time.After(time.Second):
			t.Fatalf("task %d never ran", i)
		}
	}
}

func TestEventLoop_ScheduleRunsAfterDelay(t *testing.T) {
	loop := newTestLoop(t)
	done := make(chan time.Time, 1)
	start := time.Now()
	_, err := loop.Schedule(30*time.Millisecond, func() { done <- time.Now() })
	if err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	select {
	case when := <-done:
		if when.Sub(start) < 20*time.Millisecond {
			t.Fatalf("scheduled task ran too early: %v", when.Sub(start))
		}
	case <-time.After(time.Second):
		t.Fatalf("scheduled task never ran")
	}
}

func TestEventLoop_CancelScheduledTaskPreventsRun(t *testing.T) {
	loop := newTestLoop(t)
	ran := make(chan struct{}, 1)
	st, err := loop.Schedule(30*time.Millisecond, func() { ran <- struct{}{} })
	if err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	loop.Cancel(st)
	select {
	case <-ran:
		t.Fatalf("cancelled task ran anyway")
	case <-time.After(100 * time.Millisecond):
	}
	if !st.Cancelled() {
		t.Fatalf("Cancelled() = false after Cancel")
	}
}

func TestEventLoop_ScheduleAtFixedRateRunsRepeatedly(t *testing.T) {
	loop := newTestLoop(t)
	count := make(chan struct{}, 8)
	st, err := loop.ScheduleAtFixedRate(5*time.Millisecond, 10*time.Millisecond, func() {
		select {
		case count <- struct{}{}:
		default:
		}
	})
	if err != nil {
		t.Fatalf("ScheduleAtFixedRate() error = %v", err)
	}
	for i := 0; i < 3; i++ {
		select {
		case <-count:
		case <-time.After(time.Second):
			t.Fatalf("periodic task only fired %d times, want at least 3", i)
		}
	}
	loop.Cancel(st)
}

func TestEventLoop_SubmitWaitRunsTaskOnNonFullQueue(t *testing.T) {
	loop := newTestLoop(t)
	done := make(chan struct{})
	if err := loop.SubmitWait(context.Background(), func() { close(done) }); err != nil {
		t.Fatalf("SubmitWait() error = %v", err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("SubmitWait task never ran")
	}
}

func TestEventLoop_SubmitWaitRespectsContextCancellation(t *testing.T) {
	cfg := executor.DefaultConfig()
	cfg.MaxIOWait = 10 * time.Millisecond
	cfg.MaxPendingTasks = 1
	loop := executor.NewEventLoop(executor.NewNopPoller(), cfg)
	// Never started: Run() is never called, so the queue never drains and
	// every slot stays permanently occupied once filled.
	if err := loop.Submit(func() {}); err != nil {
		t.Fatalf("priming Submit() error = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := loop.SubmitWait(ctx, func() {}); err != context.DeadlineExceeded {
		t.Fatalf("SubmitWait() on a permanently full queue = %v, want context.DeadlineExceeded", err)
	}
}

func TestEventLoop_AllocatorNilWithoutConfig(t *testing.T) {
	loop := newTestLoop(t)
	if loop.Allocator() != nil {
		t.Fatalf("Allocator() = non-nil, want nil when Config.Allocator was never set")
	}
}

func TestEventLoop_AllocatorBoundFromConfig(t *testing.T) {
	cfg := executor.DefaultConfig()
	cfg.MaxIOWait = 10 * time.Millisecond
	bufCfg := buf.DefaultConfig()
	bufCfg.NumHeapArenas, bufCfg.NumDirectArenas = 1, 1
	cfg.Allocator = buf.NewAllocator(bufCfg)
	loop := executor.NewEventLoop(executor.NewNopPoller(), cfg)

	local := loop.Allocator()
	if local == nil {
		t.Fatalf("Allocator() = nil, want a LocalAllocator bound from Config.Allocator")
	}
	b, err := local.HeapBuffer(64, 1<<16)
	if err != nil {
		t.Fatalf("HeapBuffer() through the loop's allocator error = %v", err)
	}
	defer b.Release(1)
}

func TestEventLoop_SubmitAfterShutdownRejected(t *testing.T) {
	cfg := executor.DefaultConfig()
	cfg.MaxIOWait = 10 * time.Millisecond
	loop := executor.NewEventLoop(executor.NewNopPoller(), cfg)
	go loop.Run()

	loop.ShutdownGracefully(0, time.Second)
	if err := loop.TerminationFuture().Await(context.Background()); err != nil {
		t.Fatalf("termination future error = %v", err)
	}

	if err := loop.Submit(func() {}); err != executor.ErrClosedExecutor {
		t.Fatalf("Submit() after shutdown = %v, want ErrClosedExecutor", err)
	}
}

func TestEventLoop_ShutdownRunsHooksAfterQueueDrains(t *testing.T) {
	cfg := executor.DefaultConfig()
	cfg.MaxIOWait = 10 * time.Millisecond
	loop := executor.NewEventLoop(executor.NewNopPoller(), cfg)
	go loop.Run()

	taskRan := false
	hookRan := make(chan bool, 1)
	loop.Submit(func() { taskRan = true })
	loop.AddShutdownHook(func() { hookRan <- taskRan })

	loop.ShutdownGracefully(0, time.Second)
	if err := loop.TerminationFuture().Await(context.Background()); err != nil {
		t.Fatalf("termination future error = %v", err)
	}
	select {
	case sawTaskRan := <-hookRan:
		if !sawTaskRan {
			t.Fatalf("shutdown hook ran before the pending task")
		}
	default:
		t.Fatalf("shutdown hook never ran")
	}
	if loop.State() != executor.StateTerminated {
		t.Fatalf("State() = %v, want StateTerminated", loop.State())
	}
}

func TestEventLoop_ShutdownTimeoutForcesTermination(t *testing.T) {
	cfg := executor.DefaultConfig()
	cfg.MaxIOWait = 10 * time.Millisecond
	loop := executor.NewEventLoop(executor.NewNopPoller(), cfg)
	go loop.Run()

	start := time.Now()
	loop.ShutdownGracefully(time.Hour, 50*time.Millisecond)
	if err := loop.TerminationFuture().Await(context.Background()); err != nil {
		t.Fatalf("termination future error = %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("shutdown took too long despite a short timeout: %v", time.Since(start))
	}
}
