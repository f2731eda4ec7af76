// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package buf

import (
	"errors"
	"testing"
)

func TestRefCnt_RetainRelease(t *testing.T) {
	var deallocs int
	var r refCnt
	r.initRefCnt(func() { deallocs++ })

	if got := r.RefCnt(); got != 1 {
		t.Fatalf("initial RefCnt() = %d, want 1", got)
	}

	if err := r.Retain(2); err != nil {
		t.Fatalf("Retain(2) error = %v", err)
	}
	if got := r.RefCnt(); got != 3 {
		t.Fatalf("RefCnt() after Retain(2) = %d, want 3", got)
	}

	done, err := r.Release(2)
	if err != nil || done {
		t.Fatalf("Release(2) = (%v, %v), want (false, nil)", done, err)
	}

	done, err = r.Release(1)
	if err != nil || !done {
		t.Fatalf("final Release(1) = (%v, %v), want (true, nil)", done, err)
	}
	if deallocs != 1 {
		t.Fatalf("dealloc invoked %d times, want 1", deallocs)
	}
}

func TestRefCnt_DestroyedOnceOnly(t *testing.T) {
	var r refCnt
	r.initRefCnt(func() {})

	if _, err := r.Release(1); err != nil {
		t.Fatalf("first Release(1) error = %v", err)
	}
	if got := r.RefCnt(); got != 0 {
		t.Fatalf("RefCnt() after destruction = %d, want 0", got)
	}

	if _, err := r.Release(1); !errors.Is(err, ErrIllegalReferenceCount) {
		t.Fatalf("Release on destroyed object error = %v, want ErrIllegalReferenceCount", err)
	}
	if err := r.Retain(1); !errors.Is(err, ErrIllegalReferenceCount) {
		t.Fatalf("Retain on destroyed object error = %v, want ErrIllegalReferenceCount", err)
	}
}

func TestRefCnt_DeallocExactlyOnce(t *testing.T) {
	var count int
	var r refCnt
	r.initRefCnt(func() { count++ })

	if err := r.Retain(4); err != nil {
		t.Fatalf("Retain(4) error = %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := r.Release(1); err != nil {
			t.Fatalf("Release(1) #%d error = %v", i, err)
		}
	}
	if count != 1 {
		t.Fatalf("dealloc invoked %d times across concurrent-ish releases, want 1", count)
	}
}
