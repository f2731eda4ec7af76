// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package executor_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"code.hybscloud.com/netcore/executor"
)

func TestPromise_TrySuccessThenGetNow(t *testing.T) {
	p := executor.NewPromise[int](nil)
	if p.IsDone() {
		t.Fatalf("new promise should not be done")
	}
	if !p.TrySuccess(42) {
		t.Fatalf("TrySuccess should succeed on a pending promise")
	}
	if !p.IsDone() || !p.IsSuccess() {
		t.Fatalf("expected IsDone/IsSuccess true after TrySuccess")
	}
	v, ok := p.GetNow()
	if !ok || v != 42 {
		t.Fatalf("GetNow() = (%d, %v), want (42, true)", v, ok)
	}
	if p.TrySuccess(43) {
		t.Fatalf("second TrySuccess should fail: promise is monotonic")
	}
}

func TestPromise_SetSuccessAfterDoneErrors(t *testing.T) {
	p := executor.NewPromise[string](nil)
	if err := p.SetSuccess("a"); err != nil {
		t.Fatalf("first SetSuccess error = %v", err)
	}
	if err := p.SetSuccess("b"); !errors.Is(err, executor.ErrPromiseAlreadyDone) {
		t.Fatalf("second SetSuccess error = %v, want ErrPromiseAlreadyDone", err)
	}
}

func TestPromise_TryFailureSetsCause(t *testing.T) {
	p := executor.NewPromise[int](nil)
	wantErr := errors.New("boom")
	if !p.TryFailure(wantErr) {
		t.Fatalf("TryFailure should succeed on a pending promise")
	}
	if p.Cause() != wantErr {
		t.Fatalf("Cause() = %v, want %v", p.Cause(), wantErr)
	}
	if _, ok := p.GetNow(); ok {
		t.Fatalf("GetNow() ok = true on a failed promise, want false")
	}
}

func TestPromise_AwaitBlocksUntilDone(t *testing.T) {
	p := executor.NewPromise[int](nil)
	done := make(chan struct{})
	go func() {
		_ = p.Await(context.Background())
		close(done)
	}()

	select {
	case <-done:
		t.Fatalf("Await returned before the promise completed")
	case <-time.After(20 * time.Millisecond):
	}

	p.TrySuccess(7)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Await did not return after completion")
	}
}

func TestPromise_AwaitRespectsContextCancellation(t *testing.T) {
	p := executor.NewPromise[int](nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := p.Await(ctx); err == nil {
		t.Fatalf("expected Await to return the context's error once it expires")
	}
}

func TestPromise_SyncReturnsFailureCause(t *testing.T) {
	p := executor.NewPromise[int](nil)
	wantErr := errors.New("sync failure")
	p.TryFailure(wantErr)
	_, err := p.Sync(context.Background())
	if !errors.Is(err, wantErr) {
		t.Fatalf("Sync() error = %v, want %v", err, wantErr)
	}
}

func TestPromise_AddListenerOnAlreadyDonePromiseFiresImmediately(t *testing.T) {
	p := executor.NewPromise[int](nil)
	p.TrySuccess(9)

	result := make(chan int, 1)
	p.AddListener(func(f executor.Future[int]) {
		v, _ := f.GetNow()
		result <- v
	})

	select {
	case v := <-result:
		if v != 9 {
			t.Fatalf("listener saw %d, want 9", v)
		}
	case <-time.After(time.Second):
		t.Fatalf("listener was never invoked")
	}
}

func TestPromise_ListenersFireInAdditionOrder(t *testing.T) {
	p := executor.NewPromise[int](nil)
	var order []int
	done := make(chan struct{})
	for i := 0; i < 3; i++ {
		i := i
		p.AddListener(func(executor.Future[int]) {
			order = append(order, i)
			if i == 2 {
				close(done)
			}
		})
	}
	p.TrySuccess(1)
	<-done
	for i, v := range order {
		if v != i {
			t.Fatalf("listener order = %v, want [0 1 2]", order)
		}
	}
}
