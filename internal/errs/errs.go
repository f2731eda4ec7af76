// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package errs collects the sentinel errors shared across netcore's
// exported packages, so callers can errors.Is against one root regardless
// of which package surface they hit.
package errs

import "errors"

var (
	// ErrIllegalReferenceCount is returned by retain/release when the
	// target has already been fully released (destroyed).
	ErrIllegalReferenceCount = errors.New("netcore: illegal reference count")

	// ErrRefCntOverflow is returned by retain when the requested increment
	// would overflow the logical count.
	ErrRefCntOverflow = errors.New("netcore: reference count overflow")

	// ErrIndexOutOfBounds is returned by indexed buffer accessors and by
	// the buffer's reader/writer index setters.
	ErrIndexOutOfBounds = errors.New("netcore: index out of bounds")

	// ErrCapacityExceeded is returned when a requested capacity exceeds
	// the buffer's maxCapacity, or an allocation request exceeds what the
	// allocator can serve.
	ErrCapacityExceeded = errors.New("netcore: capacity exceeded")

	// ErrPromiseAlreadyDone is returned by setSuccess/setFailure (the
	// throwing variants) when the promise has already completed.
	ErrPromiseAlreadyDone = errors.New("netcore: promise already done")

	// ErrBlockingOpFromEventLoop is returned by Future.Await/Sync when
	// called from the thread of the event loop the promise belongs to,
	// which would otherwise deadlock.
	ErrBlockingOpFromEventLoop = errors.New("netcore: blocking operation called from event loop")

	// ErrClosedExecutor is returned by Submit/Schedule after the owning
	// event loop has reached SHUTDOWN or TERMINATED.
	ErrClosedExecutor = errors.New("netcore: executor closed")

	// ErrRejectedExecution is returned by Submit when the task queue is
	// full and the configured rejection policy is "throw".
	ErrRejectedExecution = errors.New("netcore: task rejected, queue full")

	// ErrChunkExhausted is returned internally by a pool chunk when it
	// cannot satisfy a run or subpage allocation; the arena uses this to
	// move on to the next chunk or create a new one.
	ErrChunkExhausted = errors.New("netcore: chunk cannot satisfy allocation")

	// ErrAllocationTooLarge names a requested capacity beyond the maximum
	// size the allocator can track. No function in the module returns it.
	ErrAllocationTooLarge = errors.New("netcore: allocation request too large")

	// ErrHandlerNotFound is returned by Pipeline.Remove/Replace/AddBefore/
	// AddAfter when no handler is registered under the given name.
	ErrHandlerNotFound = errors.New("netcore: handler not found")

	// ErrHandlerNameDuplicate is returned by AddFirst/AddLast/AddBefore/
	// AddAfter when the given name is already in use within the pipeline.
	ErrHandlerNameDuplicate = errors.New("netcore: handler name already in use")

	// ErrChannelClosed is returned by Channel operations once the channel
	// has reached its closed state.
	ErrChannelClosed = errors.New("netcore: channel closed")

	// ErrChannelOptionNotFound is returned when a Channel is asked for an
	// option value that was never set.
	ErrChannelOptionNotFound = errors.New("netcore: channel option not set")
)
