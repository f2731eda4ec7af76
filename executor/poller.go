// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package executor

import "time"

// ReadyEvent reports one registration's I/O readiness.
type ReadyEvent struct {
	Fd       any
	Readable bool
	Writable bool
}

// Poller is the I/O readiness primitive an EventLoop polls each iteration.
// It is consumed, not implemented, by this package: platform-specific
// readiness (epoll/kqueue/IOCP/io_uring) lives outside netcore's core.
type Poller interface {
	Register(fd any) error
	Deregister(fd any) error
	// Select blocks up to timeout waiting for readiness, returning
	// whatever became ready (possibly empty on timeout).
	Select(timeout time.Duration) ([]ReadyEvent, error)
	// SelectNow is a non-blocking poll.
	SelectNow() ([]ReadyEvent, error)
	// Wakeup interrupts a goroutine blocked in Select.
	Wakeup() error
	// Close releases the poller's resources.
	Close() error
}

// NopPoller is a Poller that never reports readiness; Select just sleeps
// out the timeout (interruptible via Wakeup). It is meant for tests and
// for loops that only ever run submitted tasks, never registered I/O.
type NopPoller struct {
	wake chan struct{}
}

// NewNopPoller creates a ready-to-use NopPoller.
func NewNopPoller() *NopPoller {
	return &NopPoller{wake: make(chan struct{}, 1)}
}

func (p *NopPoller) Register(any) error   { return nil }
func (p *NopPoller) Deregister(any) error { return nil }

func (p *NopPoller) Select(timeout time.Duration) ([]ReadyEvent, error) {
	if timeout <= 0 {
		return nil, nil
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-t.C:
	case <-p.wake:
	}
	return nil, nil
}

func (p *NopPoller) SelectNow() ([]ReadyEvent, error) { return nil, nil }

func (p *NopPoller) Wakeup() error {
	select {
	case p.wake <- struct{}{}:
	default:
	}
	return nil
}

func (p *NopPoller) Close() error { return nil }
