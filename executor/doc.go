// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package executor implements a single-threaded, cooperative event-loop
// scheduler: a bounded MPSC task queue, a deadline-ordered scheduled-task
// queue, and a generic promise/future for eventual results.
//
// # Event loop
//
// Each EventLoop owns exactly one goroutine running its core loop: run
// expired scheduled tasks, poll its Poller for I/O
// readiness, dispatch ready events, then run queued tasks up to a time
// budget so task processing cannot starve I/O. Channels (see the channel
// package) are permanently bound to the loop that first registers them.
//
// # Group
//
// A Group owns a fixed set of loops and a round-robin chooser, handing out
// the next loop for a new registration.
//
// # Promise / Future
//
// Promise[T] is a CAS-driven, monotonic result holder with a listener
// chain; Future[T] is its read-only view. Listeners run on the promise's
// owning loop, inline when already on that loop under a bounded recursion
// depth, otherwise submitted as a task.
package executor
