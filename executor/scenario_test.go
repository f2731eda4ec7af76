// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package executor_test

import (
	"context"
	"testing"
	"time"

	"code.hybscloud.com/netcore/executor"
)

// TestScenarioS4_ScheduledOrderingByDeadlineThenSubmission schedules A at
// 10ms, B at 5ms, and C at 10ms (submitted after A), and expects execution
// order B, A, C: B's earlier deadline runs first, and A/C tie on deadline
// but A was submitted first.
func TestScenarioS4_ScheduledOrderingByDeadlineThenSubmission(t *testing.T) {
	cfg := executor.DefaultConfig()
	cfg.MaxIOWait = 5 * time.Millisecond
	loop := executor.NewEventLoop(executor.NewNopPoller(), cfg)
	go loop.Run()
	defer func() {
		loop.ShutdownGracefully(0, time.Second)
		_ = loop.TerminationFuture().Await(context.Background())
	}()

	order := make(chan string, 3)
	if _, err := loop.Schedule(10*time.Millisecond, func() { order <- "A" }); err != nil {
		t.Fatalf("schedule A: %v", err)
	}
	if _, err := loop.Schedule(5*time.Millisecond, func() { order <- "B" }); err != nil {
		t.Fatalf("schedule B: %v", err)
	}
	if _, err := loop.Schedule(10*time.Millisecond, func() { order <- "C" }); err != nil {
		t.Fatalf("schedule C: %v", err)
	}

	var got []string
	for i := 0; i < 3; i++ {
		select {
		case v := <-order:
			got = append(got, v)
		case <-time.After(time.Second):
			t.Fatalf("only %d of 3 scheduled tasks ran: %v", i, got)
		}
	}
	want := []string{"B", "A", "C"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("execution order = %v, want %v", got, want)
		}
	}
}

// TestScenarioS5_ListenerAddedAfterCompletionSeesResult completes a promise
// with value 42, then adds a listener: the notification rule requires the
// listener to still be invoked, observing the already-settled result.
func TestScenarioS5_ListenerAddedAfterCompletionSeesResult(t *testing.T) {
	p := executor.NewPromise[int](nil)
	if !p.TrySuccess(42) {
		t.Fatalf("TrySuccess(42) failed on a pending promise")
	}

	seen := make(chan int, 1)
	p.AddListener(func(f executor.Future[int]) {
		v, ok := f.GetNow()
		if !ok {
			seen <- -1
			return
		}
		seen <- v
	})

	select {
	case v := <-seen:
		if v != 42 {
			t.Fatalf("listener GetNow() = %d, want 42", v)
		}
	case <-time.After(time.Second):
		t.Fatalf("listener added after completion was never invoked")
	}
}
