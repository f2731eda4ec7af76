// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package buf

import (
	"sync/atomic"

	"code.hybscloud.com/netcore/internal/errs"
)

// ErrIllegalReferenceCount is returned by Retain/Release once the object
// has already been destroyed.
var ErrIllegalReferenceCount = errs.ErrIllegalReferenceCount

// ErrRefCntOverflow is returned by Retain when the increment would overflow
// the logical count.
var ErrRefCntOverflow = errs.ErrRefCntOverflow

// refDestroyed is the sentinel stored in refCnt.v once the logical count
// has dropped to zero and dealloc has fired.
const refDestroyed = 1

// refCnt is an embeddable atomic reference counter with a one-shot
// deallocation callback, the mixin replacement for the
// AbstractReferenceCountedByteBuf inheritance chain: any struct that embeds
// refCnt and calls initRefCnt gets Retain/Release/RefCnt for free.
//
// Encoding: stored value = (logicalCount << 1) | destroyedBit. Retain
// operates via fetch-and-add on the stored value (rolling back on
// failure); Release uses a compare-and-swap loop so that exactly one
// caller moves the count to the destroyed sentinel and runs dealloc.
type refCnt struct {
	v       atomic.Int32
	dealloc func()
}

func (r *refCnt) initRefCnt(dealloc func()) {
	r.v.Store(2) // logical count 1, destroyed bit 0
	r.dealloc = dealloc
}

// RefCnt returns the current logical reference count. Returns 0 once the
// object has been destroyed.
func (r *refCnt) RefCnt() int {
	v := r.v.Load()
	if v&refDestroyed == refDestroyed {
		return 0
	}
	return int(v >> 1)
}

// Retain increments the logical reference count by n (n must be >= 1) and
// returns an error without mutating state if the object is already
// destroyed or the increment would overflow.
func (r *refCnt) Retain(n int) error {
	if n < 1 {
		panic("buf: retain increment must be >= 1")
	}
	delta := int32(n) << 1
	if delta <= 0 {
		return ErrRefCntOverflow
	}
	v := r.v.Add(delta)
	if v&refDestroyed == refDestroyed {
		// Rolled over a destroyed object: undo and fail.
		r.v.Add(-delta)
		return ErrIllegalReferenceCount
	}
	if v < delta {
		r.v.Add(-delta)
		return ErrRefCntOverflow
	}
	return nil
}

// Release decrements the logical reference count by n. Returns true if
// this call dropped the count to zero, in which case dealloc has already
// run exactly once. Returns an error if the object was already destroyed.
func (r *refCnt) Release(n int) (bool, error) {
	if n < 1 {
		panic("buf: release decrement must be >= 1")
	}
	delta := int32(n) << 1
	for {
		v := r.v.Load()
		if v&refDestroyed == refDestroyed {
			return false, ErrIllegalReferenceCount
		}
		remaining := v - delta
		if remaining>>1 < 0 {
			return false, ErrIllegalReferenceCount
		}
		if remaining>>1 == 0 {
			if !r.v.CompareAndSwap(v, refDestroyed) {
				continue
			}
			if r.dealloc != nil {
				r.dealloc()
			}
			return true, nil
		}
		if r.v.CompareAndSwap(v, remaining) {
			return false, nil
		}
	}
}
