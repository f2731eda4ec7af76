// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package buf_test

import (
	"testing"

	"code.hybscloud.com/netcore/buf"
)

func TestCompositeByteBuf_AddComponentAccumulatesReadableBytes(t *testing.T) {
	a := newAllocator(t)
	comp := a.CompositeBuffer(4)

	b1, err := a.Buffer1(8)
	if err != nil {
		t.Fatalf("Buffer1 error = %v", err)
	}
	if err := b1.WriteBytes([]byte("abcd")); err != nil {
		t.Fatalf("WriteBytes error = %v", err)
	}
	b2, err := a.Buffer1(8)
	if err != nil {
		t.Fatalf("Buffer1 error = %v", err)
	}
	if err := b2.WriteBytes([]byte("efg")); err != nil {
		t.Fatalf("WriteBytes error = %v", err)
	}

	if err := comp.AddComponent(b1); err != nil {
		t.Fatalf("AddComponent(b1) error = %v", err)
	}
	if err := comp.AddComponent(b2); err != nil {
		t.Fatalf("AddComponent(b2) error = %v", err)
	}

	if comp.NumComponents() != 2 {
		t.Fatalf("NumComponents() = %d, want 2", comp.NumComponents())
	}
	if comp.ReadableBytes() != 7 {
		t.Fatalf("ReadableBytes() = %d, want 7", comp.ReadableBytes())
	}

	if _, err := b1.Release(1); err != nil {
		t.Fatalf("Release(1) on b1 error = %v", err)
	}
	if b1.RefCnt() != 1 {
		t.Fatalf("b1.RefCnt() after one release = %d, want 1 (composite still holds its own retain)", b1.RefCnt())
	}

	if err := comp.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if b1.RefCnt() != 0 {
		t.Fatalf("b1.RefCnt() after composite release = %d, want 0", b1.RefCnt())
	}
}

func TestCompositeByteBuf_TooManyComponents(t *testing.T) {
	a := newAllocator(t)
	comp := a.CompositeBuffer(1)

	b1, err := a.Buffer1(8)
	if err != nil {
		t.Fatalf("Buffer1 error = %v", err)
	}
	b2, err := a.Buffer1(8)
	if err != nil {
		t.Fatalf("Buffer1 error = %v", err)
	}
	defer b2.Release(1)
	defer comp.Release()

	if err := comp.AddComponent(b1); err != nil {
		t.Fatalf("AddComponent(b1) error = %v", err)
	}
	if err := comp.AddComponent(b2); err != buf.ErrTooManyComponents {
		t.Fatalf("AddComponent(b2) error = %v, want ErrTooManyComponents", err)
	}
}
