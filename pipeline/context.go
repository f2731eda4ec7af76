// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pipeline

import (
	"net"

	"code.hybscloud.com/netcore/buf"
	"code.hybscloud.com/netcore/executor"
)

// HandlerContext is one node in a Pipeline's doubly linked list. It pairs
// a handler with its position, its optional executor binding, and a
// capability mask computed once when the handler is added.
type HandlerContext struct {
	name     string
	handler  Handler
	pipeline *Pipeline
	loop     *executor.EventLoop // nil: run inline on whichever goroutine invokes
	mask     event
	removed  bool

	prev, next *HandlerContext
}

// Name returns the context's registration name, unique within its pipeline.
func (ctx *HandlerContext) Name() string { return ctx.name }

// Handler returns the handler object this context wraps.
func (ctx *HandlerContext) Handler() Handler { return ctx.handler }

// Pipeline returns the owning pipeline.
func (ctx *HandlerContext) Pipeline() *Pipeline { return ctx.pipeline }

func (ctx *HandlerContext) runInbound(fn func()) {
	if ctx.loop != nil && !ctx.loop.InEventLoop() {
		_ = ctx.loop.Submit(fn)
		return
	}
	fn()
}

// FireChannelRegistered propagates channelRegistered starting at ctx.next.
func (ctx *HandlerContext) FireChannelRegistered() {
	for n := ctx.next; n != nil; n = n.next {
		if n.mask&evChannelRegistered == 0 {
			continue
		}
		n.runInbound(func() { n.handler.(ChannelRegisteredHandler).ChannelRegistered(n) })
		return
	}
}

// FireChannelActive propagates channelActive starting at ctx.next.
func (ctx *HandlerContext) FireChannelActive() {
	for n := ctx.next; n != nil; n = n.next {
		if n.mask&evChannelActive == 0 {
			continue
		}
		n.runInbound(func() { n.handler.(ChannelActiveHandler).ChannelActive(n) })
		return
	}
}

// FireChannelRead propagates an inbound read starting at ctx.next. A
// handler that transforms msg and wants the result seen downstream must
// call FireChannelRead again on its own context with the new value.
func (ctx *HandlerContext) FireChannelRead(msg *buf.ByteBuf) {
	for n := ctx.next; n != nil; n = n.next {
		if n.mask&evChannelRead == 0 {
			continue
		}
		n.runInbound(func() { n.handler.(ChannelReadHandler).ChannelRead(n, msg) })
		return
	}
}

// FireChannelReadComplete propagates the end-of-batch event.
func (ctx *HandlerContext) FireChannelReadComplete() {
	for n := ctx.next; n != nil; n = n.next {
		if n.mask&evChannelReadComplete == 0 {
			continue
		}
		n.runInbound(func() { n.handler.(ChannelReadCompleteHandler).ChannelReadComplete(n) })
		return
	}
}

// FireChannelInactive propagates channel-inactive starting at ctx.next.
func (ctx *HandlerContext) FireChannelInactive() {
	for n := ctx.next; n != nil; n = n.next {
		if n.mask&evChannelInactive == 0 {
			continue
		}
		n.runInbound(func() { n.handler.(ChannelInactiveHandler).ChannelInactive(n) })
		return
	}
}

// FireExceptionCaught starts exception propagation at ctx.next, the rule
// spec.md gives for a throwing inbound handler.
func (ctx *HandlerContext) FireExceptionCaught(err error) {
	for n := ctx.next; n != nil; n = n.next {
		if n.mask&evExceptionCaught == 0 {
			continue
		}
		n.runInbound(func() { n.handler.(ExceptionCaughtHandler).ExceptionCaught(n, err) })
		return
	}
}

// runOutbound calls fn on p's bound loop and waits for it to finish before
// returning, so a caller on a different goroutine than the loop's own
// still observes fn's actual outcome (written into variables fn closes
// over) rather than racing ahead of it. If Submit itself is rejected (the
// loop is closed, or its queue is full under RejectThrow), that error is
// returned immediately and fn never runs.
func (ctx *HandlerContext) runOutbound(fn func()) error {
	if ctx.loop != nil && !ctx.loop.InEventLoop() {
		done := make(chan struct{})
		if err := ctx.loop.Submit(func() { fn(); close(done) }); err != nil {
			return err
		}
		<-done
		return nil
	}
	fn()
	return nil
}

// Bind propagates an outbound bind starting at ctx.prev.
func (ctx *HandlerContext) Bind(addr net.Addr) error {
	for p := ctx.prev; p != nil; p = p.prev {
		if p.mask&evBind == 0 {
			continue
		}
		var err error
		if subErr := p.runOutbound(func() { err = p.handler.(BindHandler).Bind(p, addr) }); subErr != nil {
			return subErr
		}
		return err
	}
	return ErrHandlerNotFound
}

// Connect propagates an outbound connect starting at ctx.prev.
func (ctx *HandlerContext) Connect(addr net.Addr) (executor.Future[struct{}], error) {
	for p := ctx.prev; p != nil; p = p.prev {
		if p.mask&evConnect == 0 {
			continue
		}
		var fut executor.Future[struct{}]
		var err error
		if subErr := p.runOutbound(func() { fut, err = p.handler.(ConnectHandler).Connect(p, addr) }); subErr != nil {
			return nil, subErr
		}
		return fut, err
	}
	return nil, ErrHandlerNotFound
}

// Write propagates an outbound write starting at ctx.prev.
func (ctx *HandlerContext) Write(msg *buf.ByteBuf) error {
	for p := ctx.prev; p != nil; p = p.prev {
		if p.mask&evWrite == 0 {
			continue
		}
		var err error
		if subErr := p.runOutbound(func() { err = p.handler.(WriteHandler).Write(p, msg) }); subErr != nil {
			return subErr
		}
		return err
	}
	return ErrHandlerNotFound
}

// Flush propagates an outbound flush starting at ctx.prev.
func (ctx *HandlerContext) Flush() error {
	for p := ctx.prev; p != nil; p = p.prev {
		if p.mask&evFlush == 0 {
			continue
		}
		var err error
		if subErr := p.runOutbound(func() { err = p.handler.(FlushHandler).Flush(p) }); subErr != nil {
			return subErr
		}
		return err
	}
	return ErrHandlerNotFound
}

// Close propagates an outbound close starting at ctx.prev.
func (ctx *HandlerContext) Close() error {
	for p := ctx.prev; p != nil; p = p.prev {
		if p.mask&evClose == 0 {
			continue
		}
		var err error
		if subErr := p.runOutbound(func() { err = p.handler.(CloseHandler).Close(p) }); subErr != nil {
			return subErr
		}
		return err
	}
	return ErrHandlerNotFound
}
