// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pipeline

import (
	"context"
	"net"
	"sync"

	"code.hybscloud.com/netcore/buf"
	"code.hybscloud.com/netcore/executor"
)

// headHandler is the pipeline's sentinel head: it forwards every outbound
// operation to the transport and has no inbound capability of its own
// (inbound reads are injected via Pipeline.FireChannelRead, which starts
// its walk at head.next). Write queues msg behind whatever a prior
// transport.Write call left unwritten, so a partial write's remainder is
// retried rather than silently dropped; pendingBytes is the queue's true
// outstanding size, not an estimate bracketed around a synchronous call.
type headHandler struct {
	transport Transport

	mu           sync.Mutex
	queue        []*buf.ByteBuf
	pendingBytes int64
}

func (h *headHandler) Bind(_ *HandlerContext, addr net.Addr) error { return h.transport.Bind(addr) }
func (h *headHandler) Connect(_ *HandlerContext, addr net.Addr) (executor.Future[struct{}], error) {
	return h.transport.Connect(addr)
}

// Write enqueues msg and drains as much of the queue as the transport
// currently accepts. A transport.Write call that returns n less than
// msg's readable bytes (including n == 0) is a partial write, not an
// error: the unconsumed remainder stays in msg, which stays at the front
// of the queue for the next Write or Flush to retry.
func (h *headHandler) Write(_ *HandlerContext, msg *buf.ByteBuf) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.queue = append(h.queue, msg)
	h.pendingBytes += int64(msg.ReadableBytes())
	return h.drainLocked()
}

// Flush retries any still-queued bytes before telling the transport to
// flush whatever it already accepted.
func (h *headHandler) Flush(*HandlerContext) error {
	h.mu.Lock()
	err := h.drainLocked()
	h.mu.Unlock()
	if err != nil {
		return err
	}
	return h.transport.Flush()
}

// drainLocked must be called with h.mu held. It writes queued buffers in
// order, stopping at the first one the transport only partially accepts
// (that buffer stays queued) or the first write error.
func (h *headHandler) drainLocked() error {
	for len(h.queue) > 0 {
		b := h.queue[0]
		n, err := h.transport.Write(b)
		h.pendingBytes -= int64(n)
		if err != nil {
			return err
		}
		if b.ReadableBytes() > 0 {
			return nil
		}
		h.queue = h.queue[1:]
	}
	return nil
}

// PendingWriteBytes reports bytes queued at the transport boundary that
// no transport.Write call has fully consumed yet.
func (h *headHandler) PendingWriteBytes() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pendingBytes
}

func (h *headHandler) Close(*HandlerContext) error { return h.transport.Close() }

// tailHandler is the pipeline's sentinel tail: it absorbs any inbound
// event nothing ahead of it handled. onUnhandledException, if set, is
// called instead of silently discarding an uncaught exceptionCaught event
// (per spec.md §7, "tail logs or discards"); nil means discard.
type tailHandler struct {
	onUnhandledException func(context.Context, error)
}

func (t *tailHandler) ChannelRead(_ *HandlerContext, msg *buf.ByteBuf)   { msg.Release() }
func (t *tailHandler) ChannelReadComplete(*HandlerContext)               {}
func (t *tailHandler) ChannelInactive(*HandlerContext)                   {}
func (t *tailHandler) ChannelRegistered(*HandlerContext)                 {}
func (t *tailHandler) ChannelActive(*HandlerContext)                     {}
func (t *tailHandler) ExceptionCaught(_ *HandlerContext, err error) {
	if t.onUnhandledException != nil {
		t.onUnhandledException(context.Background(), err)
	}
}

// Pipeline is the doubly linked handler chain for one channel. The zero
// value is not usable; construct with New.
type Pipeline struct {
	mu    sync.Mutex
	names map[string]*HandlerContext
	head  *HandlerContext
	tail  *HandlerContext

	// loop, if set, is the owning channel's event loop: structural
	// mutations (Add*/Remove/Replace) called from any other goroutine are
	// submitted to it as a task instead of applied inline, per spec.md
	// §4.J's "add/remove from outside the loop schedules the mutation as
	// a task".
	loop *executor.EventLoop
}

// New creates a pipeline bound to transport, with head and tail sentinels
// already linked. loop may be nil for a pipeline with no executor
// affinity (all structural mutations then apply inline).
func New(transport Transport, loop *executor.EventLoop, onUnhandledException func(context.Context, error)) *Pipeline {
	p := &Pipeline{names: make(map[string]*HandlerContext), loop: loop}
	p.head = &HandlerContext{name: "head", pipeline: p, handler: &headHandler{transport: transport}}
	p.head.mask = maskOf(p.head.handler)
	p.tail = &HandlerContext{name: "tail", pipeline: p, handler: &tailHandler{onUnhandledException: onUnhandledException}}
	p.tail.mask = maskOf(p.tail.handler)
	p.head.next = p.tail
	p.tail.prev = p.head
	return p
}

func (p *Pipeline) runStructural(fn func() error) error {
	if p.loop != nil && !p.loop.InEventLoop() {
		return p.loop.Submit(func() { _ = fn() })
	}
	return fn()
}

// AddFirst inserts handler immediately after the head, with no executor
// affinity.
func (p *Pipeline) AddFirst(name string, handler Handler) error {
	return p.AddFirstExecutor(name, nil, handler)
}

// AddFirstExecutor is AddFirst with an explicit executor binding.
func (p *Pipeline) AddFirstExecutor(name string, loop *executor.EventLoop, handler Handler) error {
	return p.runStructural(func() error {
		p.mu.Lock()
		ctx, err := p.insertAfter(p.head, name, loop, handler)
		p.mu.Unlock()
		if err == nil {
			ctx.invokeHandlerAdded()
		}
		return err
	})
}

// AddLast inserts handler immediately before the tail, with no executor
// affinity.
func (p *Pipeline) AddLast(name string, handler Handler) error {
	return p.AddLastExecutor(name, nil, handler)
}

// AddLastExecutor is AddLast with an explicit executor binding.
func (p *Pipeline) AddLastExecutor(name string, loop *executor.EventLoop, handler Handler) error {
	return p.runStructural(func() error {
		p.mu.Lock()
		ctx, err := p.insertAfter(p.tail.prev, name, loop, handler)
		p.mu.Unlock()
		if err == nil {
			ctx.invokeHandlerAdded()
		}
		return err
	})
}

// AddBefore inserts handler immediately before the handler named baseName.
func (p *Pipeline) AddBefore(baseName, name string, handler Handler) error {
	return p.runStructural(func() error {
		p.mu.Lock()
		base, ok := p.names[baseName]
		if !ok {
			p.mu.Unlock()
			return ErrHandlerNotFound
		}
		ctx, err := p.insertAfter(base.prev, name, nil, handler)
		p.mu.Unlock()
		if err == nil {
			ctx.invokeHandlerAdded()
		}
		return err
	})
}

// AddAfter inserts handler immediately after the handler named baseName.
func (p *Pipeline) AddAfter(baseName, name string, handler Handler) error {
	return p.runStructural(func() error {
		p.mu.Lock()
		base, ok := p.names[baseName]
		if !ok {
			p.mu.Unlock()
			return ErrHandlerNotFound
		}
		ctx, err := p.insertAfter(base, name, nil, handler)
		p.mu.Unlock()
		if err == nil {
			ctx.invokeHandlerAdded()
		}
		return err
	})
}

// insertAfter must be called with p.mu held. It links ctx into the list
// and registers its name, but does not invoke HandlerAdded: the caller
// must do that after releasing p.mu, so a handler that re-enters the
// pipeline from its own HandlerAdded callback never deadlocks on p.mu.
func (p *Pipeline) insertAfter(after *HandlerContext, name string, loop *executor.EventLoop, handler Handler) (*HandlerContext, error) {
	if _, exists := p.names[name]; exists {
		return nil, ErrHandlerNameDuplicate
	}
	ctx := &HandlerContext{name: name, handler: handler, pipeline: p, loop: loop, mask: maskOf(handler)}
	next := after.next
	ctx.prev, ctx.next = after, next
	after.next = ctx
	next.prev = ctx
	p.names[name] = ctx
	return ctx, nil
}

func (ctx *HandlerContext) invokeHandlerAdded() {
	if ctx.mask&evHandlerAdded != 0 {
		ctx.runInbound(func() { ctx.handler.(HandlerAdder).HandlerAdded(ctx) })
	}
}

func (ctx *HandlerContext) invokeHandlerRemoved() {
	if ctx.mask&evHandlerRemoved != 0 {
		ctx.runInbound(func() { ctx.handler.(HandlerRemover).HandlerRemoved(ctx) })
	}
}

// Remove removes the handler named name. Its HandlerRemoved is invoked
// exactly once, even if Remove is called while that handler is itself
// processing an event (the handler's own callback may call Remove on its
// own name; the callback runs after p.mu has been released).
func (p *Pipeline) Remove(name string) error {
	return p.runStructural(func() error {
		p.mu.Lock()
		ctx, ok := p.names[name]
		if !ok {
			p.mu.Unlock()
			return ErrHandlerNotFound
		}
		alreadyRemoved := p.unlink(ctx)
		p.mu.Unlock()
		if !alreadyRemoved {
			ctx.invokeHandlerRemoved()
		}
		return nil
	})
}

// unlink must be called with p.mu held. It returns true if ctx was
// already removed (a no-op), false if it just performed the removal --
// the caller invokes HandlerRemoved only in the latter case, and only
// after releasing p.mu.
func (p *Pipeline) unlink(ctx *HandlerContext) bool {
	if ctx.removed {
		return true
	}
	ctx.prev.next = ctx.next
	ctx.next.prev = ctx.prev
	delete(p.names, ctx.name)
	ctx.removed = true
	return false
}

// Replace swaps the handler named oldName for handler, registered under
// newName (which may equal oldName). The old handler's HandlerRemoved and
// the new handler's HandlerAdded both fire, in that order, after p.mu has
// been released.
func (p *Pipeline) Replace(oldName, newName string, handler Handler) error {
	return p.runStructural(func() error {
		p.mu.Lock()
		old, ok := p.names[oldName]
		if !ok {
			p.mu.Unlock()
			return ErrHandlerNotFound
		}
		if newName != oldName {
			if _, exists := p.names[newName]; exists {
				p.mu.Unlock()
				return ErrHandlerNameDuplicate
			}
		}
		after := old.prev
		alreadyRemoved := p.unlink(old)
		ctx, err := p.insertAfter(after, newName, old.loop, handler)
		p.mu.Unlock()
		if !alreadyRemoved {
			old.invokeHandlerRemoved()
		}
		if err == nil {
			ctx.invokeHandlerAdded()
		}
		return err
	})
}

// Context returns the context registered under name.
func (p *Pipeline) Context(name string) (*HandlerContext, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ctx, ok := p.names[name]
	return ctx, ok
}

// FireChannelRegistered injects a channelRegistered event at the head.
func (p *Pipeline) FireChannelRegistered() { p.head.FireChannelRegistered() }

// FireChannelActive injects a channelActive event at the head.
func (p *Pipeline) FireChannelActive() { p.head.FireChannelActive() }

// FireChannelRead injects an inbound read at the head, the entry point a
// Transport uses to hand the pipeline newly received bytes.
func (p *Pipeline) FireChannelRead(msg *buf.ByteBuf) { p.head.FireChannelRead(msg) }

// FireChannelReadComplete injects the end-of-batch event at the head.
func (p *Pipeline) FireChannelReadComplete() { p.head.FireChannelReadComplete() }

// FireChannelInactive injects a channelInactive event at the head.
func (p *Pipeline) FireChannelInactive() { p.head.FireChannelInactive() }

// FireExceptionCaught injects an exceptionCaught event at the head.
func (p *Pipeline) FireExceptionCaught(err error) { p.head.FireExceptionCaught(err) }

// Bind starts an outbound bind at the tail, travelling tail to head.
func (p *Pipeline) Bind(addr net.Addr) error { return p.tail.Bind(addr) }

// Connect starts an outbound connect at the tail.
func (p *Pipeline) Connect(addr net.Addr) (executor.Future[struct{}], error) { return p.tail.Connect(addr) }

// Write starts an outbound write at the tail.
func (p *Pipeline) Write(msg *buf.ByteBuf) error { return p.tail.Write(msg) }

// Flush starts an outbound flush at the tail.
func (p *Pipeline) Flush() error { return p.tail.Flush() }

// Close starts an outbound close at the tail.
func (p *Pipeline) Close() error { return p.tail.Close() }

// PendingWriteBytes returns how many outbound bytes are queued at the
// transport boundary (headHandler), still waiting for transport.Write to
// fully consume them. A Channel uses this after each Write/Flush call to
// drive its write-buffer water mark off the real queue rather than a
// synchronous before/after bracket.
func (p *Pipeline) PendingWriteBytes() int64 { return p.head.handler.(*headHandler).PendingWriteBytes() }

// Names returns the pipeline's handler names, head to tail, excluding the
// sentinels.
func (p *Pipeline) Names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, 0, len(p.names))
	for ctx := p.head.next; ctx != p.tail; ctx = ctx.next {
		names = append(names, ctx.name)
	}
	return names
}
