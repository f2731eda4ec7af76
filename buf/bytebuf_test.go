// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package buf_test

import (
	"testing"

	"code.hybscloud.com/netcore/buf"
)

func newAllocator(t *testing.T) *buf.Allocator {
	t.Helper()
	cfg := buf.DefaultConfig()
	cfg.NumHeapArenas = 1
	cfg.NumDirectArenas = 1
	return buf.NewAllocator(cfg)
}

func TestByteBuf_WriteReadRoundTrip(t *testing.T) {
	a := newAllocator(t)
	b, err := a.Buffer1(16)
	if err != nil {
		t.Fatalf("Buffer1 error = %v", err)
	}
	defer b.Release(1)

	if err := b.WriteUint32(0xdeadbeef); err != nil {
		t.Fatalf("WriteUint32 error = %v", err)
	}
	v, err := b.ReadUint32()
	if err != nil {
		t.Fatalf("ReadUint32 error = %v", err)
	}
	if v != 0xdeadbeef {
		t.Fatalf("ReadUint32() = %#x, want 0xdeadbeef", v)
	}
}

func TestByteBuf_EnsureWritableGrows(t *testing.T) {
	a := newAllocator(t)
	b, err := a.Buffer2(8, 1<<20)
	if err != nil {
		t.Fatalf("Buffer2 error = %v", err)
	}
	defer b.Release(1)

	payload := make([]byte, 4096)
	for i := range payload {
		payload[i] = byte(i)
	}
	if err := b.WriteBytes(payload); err != nil {
		t.Fatalf("WriteBytes error = %v", err)
	}
	if b.Capacity() < len(payload) {
		t.Fatalf("Capacity() = %d, want >= %d", b.Capacity(), len(payload))
	}
	got, err := b.ReadBytes(len(payload))
	if err != nil {
		t.Fatalf("ReadBytes error = %v", err)
	}
	for i := range payload {
		if got[i] != payload[i] {
			t.Fatalf("byte %d = %#x, want %#x", i, got[i], payload[i])
		}
	}
}

func TestByteBuf_EnsureWritableRespectsMaxCapacity(t *testing.T) {
	a := newAllocator(t)
	b, err := a.Buffer2(8, 16)
	if err != nil {
		t.Fatalf("Buffer2 error = %v", err)
	}
	defer b.Release(1)

	if err := b.WriteBytes(make([]byte, 16)); err != nil {
		t.Fatalf("WriteBytes(16) error = %v", err)
	}
	if err := b.WriteByte(0); err == nil {
		t.Fatalf("expected ErrCapacityExceeded once maxCapacity is reached")
	}
}

func TestByteBuf_SliceIsIndependentButSharesBacking(t *testing.T) {
	a := newAllocator(t)
	b, err := a.Buffer1(32)
	if err != nil {
		t.Fatalf("Buffer1 error = %v", err)
	}
	defer b.Release(1)

	if err := b.WriteBytes([]byte("hello world")); err != nil {
		t.Fatalf("WriteBytes error = %v", err)
	}

	view, err := b.Slice(0, 5)
	if err != nil {
		t.Fatalf("Slice error = %v", err)
	}
	got, err := view.ReadBytes(5)
	if err != nil {
		t.Fatalf("ReadBytes on slice error = %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("slice content = %q, want %q", got, "hello")
	}
	if b.ReaderIndex() != 0 {
		t.Fatalf("parent ReaderIndex mutated by slice read: got %d, want 0", b.ReaderIndex())
	}

	if err := view.SetByte(0, 'H'); err != nil {
		t.Fatalf("SetByte on slice error = %v", err)
	}
	parentByte, err := b.GetByte(0)
	if err != nil {
		t.Fatalf("GetByte on parent error = %v", err)
	}
	if parentByte != 'H' {
		t.Fatalf("mutation through slice not visible on parent: got %q, want 'H'", parentByte)
	}
}

func TestByteBuf_RetainedSliceKeepsParentAlive(t *testing.T) {
	a := newAllocator(t)
	b, err := a.Buffer1(16)
	if err != nil {
		t.Fatalf("Buffer1 error = %v", err)
	}

	view, err := b.RetainedSlice(0, 4)
	if err != nil {
		t.Fatalf("RetainedSlice error = %v", err)
	}

	if _, err := b.Release(1); err != nil {
		t.Fatalf("Release parent error = %v", err)
	}
	if err := view.SetByte(0, 1); err != nil {
		t.Fatalf("SetByte on view after parent release errored = %v, want nil (parent kept alive)", err)
	}

	if _, err := view.Release(1); err != nil {
		t.Fatalf("Release view error = %v", err)
	}
}

func TestByteBuf_IndexOfForwardAndBackward(t *testing.T) {
	a := newAllocator(t)
	b, err := a.Buffer1(16)
	if err != nil {
		t.Fatalf("Buffer1 error = %v", err)
	}
	defer b.Release(1)

	if err := b.WriteBytes([]byte{0, 1, 2, 1, 0}); err != nil {
		t.Fatalf("WriteBytes error = %v", err)
	}

	if idx := b.IndexOf(0, 5, 1); idx != 1 {
		t.Fatalf("forward IndexOf(1) = %d, want 1", idx)
	}
	if idx := b.IndexOf(5, 0, 1); idx != 3 {
		t.Fatalf("backward IndexOf(1) = %d, want 3", idx)
	}
	if idx := b.IndexOf(0, 5, 9); idx != -1 {
		t.Fatalf("IndexOf(9) = %d, want -1", idx)
	}
}
