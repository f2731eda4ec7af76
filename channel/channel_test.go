// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package channel_test

import (
	"context"
	"net"
	"testing"

	"code.hybscloud.com/netcore/buf"
	"code.hybscloud.com/netcore/channel"
	"code.hybscloud.com/netcore/executor"
)

type fakeTransport struct {
	writes    [][]byte
	connected net.Addr
	closed    bool
}

func (f *fakeTransport) Read(*buf.ByteBuf) (int, error) { return 0, nil }
func (f *fakeTransport) Write(src *buf.ByteBuf) (int, error) {
	n := src.ReadableBytes()
	b, err := src.ReadBytes(n)
	if err != nil {
		return 0, err
	}
	f.writes = append(f.writes, b)
	return n, nil
}
func (f *fakeTransport) Flush() error        { return nil }
func (f *fakeTransport) Bind(net.Addr) error { return nil }
func (f *fakeTransport) Connect(addr net.Addr) (executor.Future[struct{}], error) {
	f.connected = addr
	p := executor.NewPromise[struct{}](nil)
	p.TrySuccess(struct{}{})
	return p.Future(), nil
}
func (f *fakeTransport) Disconnect() error    { return nil }
func (f *fakeTransport) Close() error         { f.closed = true; return nil }
func (f *fakeTransport) LocalAddr() net.Addr  { return nil }
func (f *fakeTransport) RemoteAddr() net.Addr { return nil }

func newAllocator(t *testing.T) *buf.Allocator {
	t.Helper()
	cfg := buf.DefaultConfig()
	cfg.NumHeapArenas = 1
	cfg.NumDirectArenas = 1
	return buf.NewAllocator(cfg)
}

func TestChannel_RegisterStartsOpenWithUniqueID(t *testing.T) {
	tr := &fakeTransport{}
	c := channel.Register(tr, nil, nil)
	if c.State() != channel.StateOpen {
		t.Fatalf("State() = %v, want StateOpen", c.State())
	}
	if c.ID() == 0 {
		t.Fatalf("ID() = 0, want a non-zero process-unique id")
	}
}

func TestChannel_ConnectSetsRemoteAddrAndActivates(t *testing.T) {
	tr := &fakeTransport{}
	c := channel.Register(tr, nil, nil)
	addr := &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9000}

	fut, err := c.Connect(addr)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := fut.Await(context.Background()); err != nil {
		t.Fatalf("Await() error = %v", err)
	}
	if c.RemoteAddr() != addr {
		t.Fatalf("RemoteAddr() = %v, want %v", c.RemoteAddr(), addr)
	}
	if c.State() != channel.StateActive {
		t.Fatalf("State() = %v, want StateActive", c.State())
	}
}

func TestChannel_WriteReachesTransport(t *testing.T) {
	tr := &fakeTransport{}
	c := channel.Register(tr, nil, nil)
	a := newAllocator(t)
	msg, _ := a.Buffer1(4)
	msg.WriteUint32(42)

	if err := c.Write(msg); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if len(tr.writes) != 1 {
		t.Fatalf("transport saw %d writes, want 1", len(tr.writes))
	}
}

func TestChannel_WriteAfterCloseFails(t *testing.T) {
	tr := &fakeTransport{}
	c := channel.Register(tr, nil, nil)
	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if c.State() != channel.StateClosed {
		t.Fatalf("State() = %v, want StateClosed", c.State())
	}
	if !tr.closed {
		t.Fatalf("transport Close was never called")
	}

	a := newAllocator(t)
	msg, _ := a.Buffer1(4)
	defer msg.Release(1)
	if err := c.Write(msg); err != channel.ErrClosed {
		t.Fatalf("Write() after close = %v, want ErrClosed", err)
	}
}

func TestChannel_OptionRoundTrip(t *testing.T) {
	tr := &fakeTransport{}
	c := channel.Register(tr, nil, nil)

	if _, err := c.Option(channel.SO_REUSEADDR); err != channel.ErrOptionNotFound {
		t.Fatalf("Option() on unset = %v, want ErrOptionNotFound", err)
	}
	c.SetOption(channel.SO_REUSEADDR, true)
	v, err := c.Option(channel.SO_REUSEADDR)
	if err != nil || v != true {
		t.Fatalf("Option() = (%v, %v), want (true, nil)", v, err)
	}
}

func TestChannel_IsWritableReflectsWaterMark(t *testing.T) {
	tr := &fakeTransport{}
	c := channel.Register(tr, nil, nil)
	if !c.IsWritable() {
		t.Fatalf("a fresh channel should be writable")
	}
}

// blockingTransport's Write returns (0, nil) -- a partial write of zero
// bytes -- while blocked is true, simulating a transport that currently
// can't accept anything without ever reporting a Write error.
type blockingTransport struct {
	*fakeTransport
	blocked bool
}

func (b *blockingTransport) Write(src *buf.ByteBuf) (int, error) {
	if b.blocked {
		return 0, nil
	}
	return b.fakeTransport.Write(src)
}

// TestChannel_WriteCrossesBothWaterMarks drives pending bytes over the
// high water mark while the transport refuses to accept anything, then
// lets it drain back under the low water mark via Flush, matching the
// enqueue-then-drain model spec.md describes for outbound writes.
func TestChannel_WriteCrossesBothWaterMarks(t *testing.T) {
	tr := &blockingTransport{fakeTransport: &fakeTransport{}, blocked: true}
	c := channel.Register(tr, nil, nil)
	a := newAllocator(t)

	chunk := make([]byte, 40*1024)
	for i := 0; i < 2; i++ {
		msg, _ := a.Buffer1(len(chunk))
		if err := msg.WriteBytes(chunk); err != nil {
			t.Fatalf("WriteBytes error = %v", err)
		}
		if err := c.Write(msg); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	if c.IsWritable() {
		t.Fatalf("channel should be unwritable once pending bytes cross the high water mark")
	}

	tr.blocked = false
	if err := c.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if !c.IsWritable() {
		t.Fatalf("channel should become writable again once pending drains under the low water mark")
	}
	if len(tr.writes) != 2 {
		t.Fatalf("transport saw %d writes after drain, want 2", len(tr.writes))
	}
}
