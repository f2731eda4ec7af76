// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package executor

import (
	"context"
	"os"
	"strconv"
	"sync"
	"sync/atomic"

	"code.hybscloud.com/netcore/internal/errs"
)

// ErrPromiseAlreadyDone is returned by SetSuccess/SetFailure once the
// promise has already completed.
var ErrPromiseAlreadyDone = errs.ErrPromiseAlreadyDone

// ErrBlockingOpFromEventLoop is returned by Await/Sync when called from
// the goroutine of the event loop the promise belongs to.
var ErrBlockingOpFromEventLoop = errs.ErrBlockingOpFromEventLoop

const defaultMaxListenerStackDepth = 8

// maxListenerStackDepth returns NETCORE_PROMISE_MAX_LISTENER_STACK_DEPTH,
// capped at 8 (mirrors spec's default/cap pair), or the default if unset
// or malformed.
func maxListenerStackDepth() int {
	s, ok := os.LookupEnv("NETCORE_PROMISE_MAX_LISTENER_STACK_DEPTH")
	if !ok {
		return defaultMaxListenerStackDepth
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultMaxListenerStackDepth
	}
	if v > defaultMaxListenerStackDepth {
		return defaultMaxListenerStackDepth
	}
	return v
}

type resultState int32

const (
	statePending resultState = iota
	stateSuccess
	stateFailure
	stateCancelled
)

// Future is the read-only view of a Promise's eventual result.
type Future[T any] interface {
	IsDone() bool
	IsSuccess() bool
	IsCancelled() bool
	Cause() error
	GetNow() (T, bool)
	AddListener(fn func(Future[T]))
	Await(ctx context.Context) error
	Sync(ctx context.Context) (T, error)
}

// Promise is a CAS-driven, monotonic result holder with a listener chain:
// once non-pending, its outcome never changes. The zero value is not
// usable; construct with NewPromise.
type Promise[T any] struct {
	loop *EventLoop

	st   atomic.Int32
	mu   sync.Mutex
	done chan struct{}

	value     T
	err       error
	listeners []func(Future[T])
}

// NewPromise creates a pending promise bound to loop. loop may be nil for
// a promise with no executor affinity (listeners then always run inline
// on the completing goroutine).
func NewPromise[T any](loop *EventLoop) *Promise[T] {
	return &Promise[T]{loop: loop, done: make(chan struct{})}
}

// Future returns p's read-only view.
func (p *Promise[T]) Future() Future[T] { return p }

// TrySuccess completes p with v if it is still pending, returning false
// if it was already done.
func (p *Promise[T]) TrySuccess(v T) bool {
	return p.complete(stateSuccess, v, nil)
}

// TryFailure completes p with err if it is still pending.
func (p *Promise[T]) TryFailure(err error) bool {
	var zero T
	return p.complete(stateFailure, zero, err)
}

// TryCancel transitions p from pending to cancelled. Succeeds only from
// pending, per spec.
func (p *Promise[T]) TryCancel() bool {
	var zero T
	return p.complete(stateCancelled, zero, nil)
}

// SetSuccess is TrySuccess's throwing variant: returns
// ErrPromiseAlreadyDone instead of a bool.
func (p *Promise[T]) SetSuccess(v T) error {
	if !p.TrySuccess(v) {
		return ErrPromiseAlreadyDone
	}
	return nil
}

// SetFailure is TryFailure's throwing variant.
func (p *Promise[T]) SetFailure(err error) error {
	if !p.TryFailure(err) {
		return ErrPromiseAlreadyDone
	}
	return nil
}

func (p *Promise[T]) complete(st resultState, v T, err error) bool {
	if !p.st.CompareAndSwap(int32(statePending), int32(st)) {
		return false
	}
	p.mu.Lock()
	p.value = v
	p.err = err
	listeners := p.listeners
	p.listeners = nil
	p.mu.Unlock()

	close(p.done)
	p.notify(listeners)
	return true
}

// AddListener registers fn for invocation once p completes. If p is
// already done, fn is invoked immediately per the same inline/task rule
// used for any other completion-time listener.
func (p *Promise[T]) AddListener(fn func(Future[T])) {
	p.mu.Lock()
	if resultState(p.st.Load()) == statePending {
		p.listeners = append(p.listeners, fn)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	p.notify([]func(Future[T]){fn})
}

// notify runs listeners on p's loop: inline if the caller is already on
// that loop's goroutine and under the recursion bound, otherwise each
// listener is submitted as an independent task (preserving addition
// order relative to each other, but not necessarily relative to other
// work the loop is concurrently being handed).
func (p *Promise[T]) notify(listeners []func(Future[T])) {
	if len(listeners) == 0 {
		return
	}
	if p.loop == nil {
		for _, l := range listeners {
			l(p)
		}
		return
	}
	if p.loop.inLoopGoroutine() && p.loop.execDepth < maxListenerStackDepth() {
		p.loop.execDepth++
		for _, l := range listeners {
			l(p)
		}
		p.loop.execDepth--
		return
	}
	for _, l := range listeners {
		l := l
		_ = p.loop.Submit(func() { l(p) })
	}
}

// IsDone reports whether p has left the pending state.
func (p *Promise[T]) IsDone() bool { return resultState(p.st.Load()) != statePending }

// IsSuccess reports whether p completed successfully.
func (p *Promise[T]) IsSuccess() bool { return resultState(p.st.Load()) == stateSuccess }

// IsCancelled reports whether p was cancelled.
func (p *Promise[T]) IsCancelled() bool { return resultState(p.st.Load()) == stateCancelled }

// Cause returns the failure error, or nil if p did not fail.
func (p *Promise[T]) Cause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// GetNow returns the success value and true if p completed successfully;
// otherwise the zero value and false.
func (p *Promise[T]) GetNow() (T, bool) {
	if !p.IsDone() {
		var zero T
		return zero, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value, resultState(p.st.Load()) == stateSuccess
}

// Await blocks until p is done or ctx is cancelled. Calling Await from
// p's own event loop goroutine fails immediately with
// ErrBlockingOpFromEventLoop to prevent deadlock.
func (p *Promise[T]) Await(ctx context.Context) error {
	if p.loop != nil && p.loop.inLoopGoroutine() {
		return ErrBlockingOpFromEventLoop
	}
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sync is Await plus re-raising any failure.
func (p *Promise[T]) Sync(ctx context.Context) (T, error) {
	if err := p.Await(ctx); err != nil {
		var zero T
		return zero, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if resultState(p.st.Load()) == stateFailure {
		var zero T
		return zero, p.err
	}
	return p.value, nil
}
