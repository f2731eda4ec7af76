// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pipeline

import (
	"net"

	"code.hybscloud.com/netcore/buf"
	"code.hybscloud.com/netcore/executor"
)

// Handler is any object added to a Pipeline. A handler implements whichever
// of the event interfaces below are relevant to it; unimplemented events
// simply pass through. Which events a handler implements is determined
// once, at add time, and cached as a bitmask on the handler's
// HandlerContext so dispatch never repeats the type assertions.
type Handler interface{}

// event is one bit of the per-context capability mask.
type event uint16

const (
	evHandlerAdded event = 1 << iota
	evHandlerRemoved
	evChannelRegistered
	evChannelActive
	evChannelRead
	evChannelReadComplete
	evChannelInactive
	evExceptionCaught
	evBind
	evConnect
	evWrite
	evFlush
	evClose
)

// HandlerAdder is invoked once, before any event reaches the handler.
type HandlerAdder interface {
	HandlerAdded(ctx *HandlerContext)
}

// HandlerRemover is invoked exactly once when the handler leaves the
// pipeline through Remove or Replace. Closing a channel does not remove
// its handlers and does not invoke it.
type HandlerRemover interface {
	HandlerRemoved(ctx *HandlerContext)
}

// ChannelRegisteredHandler reacts to the channel's registration with its
// event loop.
type ChannelRegisteredHandler interface {
	ChannelRegistered(ctx *HandlerContext)
}

// ChannelActiveHandler reacts to the channel becoming active (connected).
type ChannelActiveHandler interface {
	ChannelActive(ctx *HandlerContext)
}

// ChannelReadHandler reacts to an inbound read. A decoder typically
// replaces msg with a decoded value and calls ctx.FireChannelRead with it;
// a terminal handler consumes msg without re-firing.
type ChannelReadHandler interface {
	ChannelRead(ctx *HandlerContext, msg *buf.ByteBuf)
}

// ChannelReadCompleteHandler reacts to the end of one read batch.
type ChannelReadCompleteHandler interface {
	ChannelReadComplete(ctx *HandlerContext)
}

// ChannelInactiveHandler reacts to the channel going inactive.
type ChannelInactiveHandler interface {
	ChannelInactive(ctx *HandlerContext)
}

// ExceptionCaughtHandler reacts to an error surfaced by a preceding
// inbound handler or by the transport itself.
type ExceptionCaughtHandler interface {
	ExceptionCaught(ctx *HandlerContext, err error)
}

// BindHandler intercepts an outbound bind.
type BindHandler interface {
	Bind(ctx *HandlerContext, addr net.Addr) error
}

// ConnectHandler intercepts an outbound connect.
type ConnectHandler interface {
	Connect(ctx *HandlerContext, addr net.Addr) (executor.Future[struct{}], error)
}

// WriteHandler intercepts an outbound write, typically to encode msg
// before calling ctx.Write with the encoded form.
type WriteHandler interface {
	Write(ctx *HandlerContext, msg *buf.ByteBuf) error
}

// FlushHandler intercepts an outbound flush.
type FlushHandler interface {
	Flush(ctx *HandlerContext) error
}

// CloseHandler intercepts an outbound close.
type CloseHandler interface {
	Close(ctx *HandlerContext) error
}

func maskOf(h Handler) event {
	var m event
	if _, ok := h.(HandlerAdder); ok {
		m |= evHandlerAdded
	}
	if _, ok := h.(HandlerRemover); ok {
		m |= evHandlerRemoved
	}
	if _, ok := h.(ChannelRegisteredHandler); ok {
		m |= evChannelRegistered
	}
	if _, ok := h.(ChannelActiveHandler); ok {
		m |= evChannelActive
	}
	if _, ok := h.(ChannelReadHandler); ok {
		m |= evChannelRead
	}
	if _, ok := h.(ChannelReadCompleteHandler); ok {
		m |= evChannelReadComplete
	}
	if _, ok := h.(ChannelInactiveHandler); ok {
		m |= evChannelInactive
	}
	if _, ok := h.(ExceptionCaughtHandler); ok {
		m |= evExceptionCaught
	}
	if _, ok := h.(BindHandler); ok {
		m |= evBind
	}
	if _, ok := h.(ConnectHandler); ok {
		m |= evConnect
	}
	if _, ok := h.(WriteHandler); ok {
		m |= evWrite
	}
	if _, ok := h.(FlushHandler); ok {
		m |= evFlush
	}
	if _, ok := h.(CloseHandler); ok {
		m |= evClose
	}
	return m
}
