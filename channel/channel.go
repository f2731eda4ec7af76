// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package channel ties a Transport, its Pipeline, and the EventLoop it is
// permanently bound to into one addressable unit: {id, pipeline,
// eventLoop, state, localAddr, remoteAddr, config}, matching spec.md §3's
// Channel data model.
package channel

import (
	"context"
	"net"
	"sync/atomic"

	"code.hybscloud.com/netcore/buf"
	"code.hybscloud.com/netcore/executor"
	"code.hybscloud.com/netcore/internal/errs"
	"code.hybscloud.com/netcore/pipeline"
)

// ErrClosed is returned by Channel operations once the channel has
// reached StateClosed.
var ErrClosed = errs.ErrChannelClosed

// ErrOptionNotFound is returned by Channel.Option when no value has been
// set for the requested Option.
var ErrOptionNotFound = errs.ErrChannelOptionNotFound

// State is one point in a Channel's lifecycle.
type State int32

const (
	StateOpen State = iota
	StateActive
	StateInactive
	StateClosed
)

var nextChannelID atomic.Uint64

// Channel is a Transport wrapped in a Pipeline and bound permanently to
// one EventLoop, chosen once at registration and never changed (spec.md
// §4.I, "registration is permanent").
type Channel struct {
	id        uint64
	pipeline  *pipeline.Pipeline
	loop      *executor.EventLoop
	transport pipeline.Transport

	state atomic.Int32

	options  *Options
	writeBuf *writeBufferMonitor

	localAddr, remoteAddr net.Addr
}

// Register creates a Channel for transport, assigns it loop as its
// permanent event loop (typically loop = group.Next()), and builds its
// pipeline. onUnhandledException is passed straight through to the
// pipeline's tail sentinel.
func Register(transport pipeline.Transport, loop *executor.EventLoop, onUnhandledException func(context.Context, error)) *Channel {
	c := &Channel{
		id:        nextChannelID.Add(1),
		loop:      loop,
		transport: transport,
		options:   NewOptions(),
	}
	c.writeBuf = newWriteBufferMonitor(DefaultWriteBufferWaterMark())
	c.pipeline = pipeline.New(transport, loop, onUnhandledException)
	c.pipeline.FireChannelRegistered()
	return c
}

// ID returns the channel's process-unique identifier.
func (c *Channel) ID() uint64 { return c.id }

// Pipeline returns the channel's handler chain.
func (c *Channel) Pipeline() *pipeline.Pipeline { return c.pipeline }

// EventLoop returns the loop this channel is permanently bound to.
func (c *Channel) EventLoop() *executor.EventLoop { return c.loop }

// State returns the channel's current lifecycle state.
func (c *Channel) State() State { return State(c.state.Load()) }

// LocalAddr returns the channel's bound local address, if any.
func (c *Channel) LocalAddr() net.Addr { return c.localAddr }

// RemoteAddr returns the channel's connected peer address, if any.
func (c *Channel) RemoteAddr() net.Addr { return c.remoteAddr }

// IsWritable reports whether the channel's pending outbound bytes are
// currently under WRITE_BUFFER_WATER_MARK's high mark.
func (c *Channel) IsWritable() bool { return c.writeBuf.IsWritable() }

// SetOption assigns a value to a channel option (see the package-level
// Option constants: ALLOCATOR, WRITE_BUFFER_WATER_MARK, SO_KEEPALIVE, …).
func (c *Channel) SetOption(opt *Option, value any) { c.options.Set(opt, value) }

// Option returns the value assigned to opt, or ErrOptionNotFound if none.
func (c *Channel) Option(opt *Option) (any, error) {
	v, ok := c.options.Get(opt)
	if !ok {
		return nil, ErrOptionNotFound
	}
	return v, nil
}

// Connect starts an outbound connect via the pipeline (tail to head),
// updating remoteAddr and firing channelActive once it resolves.
func (c *Channel) Connect(addr net.Addr) (executor.Future[struct{}], error) {
	if c.State() == StateClosed {
		return nil, ErrClosed
	}
	fut, err := c.pipeline.Connect(addr)
	if err != nil {
		return nil, err
	}
	fut.AddListener(func(f executor.Future[struct{}]) {
		if f.IsSuccess() {
			c.remoteAddr = addr
			c.state.Store(int32(StateActive))
			c.pipeline.FireChannelActive()
		}
	})
	return fut, nil
}

// Bind starts an outbound bind via the pipeline.
func (c *Channel) Bind(addr net.Addr) error {
	if err := c.pipeline.Bind(addr); err != nil {
		return err
	}
	c.localAddr = addr
	return nil
}

// Write starts outbound write propagation at the tail. The pipeline's
// transport boundary (see pipeline.headHandler) queues bytes a partial
// transport.Write leaves unconsumed instead of dropping them, so the
// write-buffer water mark is refreshed from that queue's real size
// rather than bracketing a synchronous call that always nets to zero.
func (c *Channel) Write(msg *buf.ByteBuf) error {
	if c.State() == StateClosed {
		return ErrClosed
	}
	err := c.pipeline.Write(msg)
	c.writeBuf.set(c.pipeline.PendingWriteBytes())
	return err
}

// Flush starts outbound flush propagation at the tail, retrying any
// bytes a prior partial write left queued before the transport is told
// to flush, and refreshes the write-buffer water mark from what's left.
func (c *Channel) Flush() error {
	err := c.pipeline.Flush()
	c.writeBuf.set(c.pipeline.PendingWriteBytes())
	return err
}

// WriteAndFlush is Write followed by Flush.
func (c *Channel) WriteAndFlush(msg *buf.ByteBuf) error {
	if err := c.Write(msg); err != nil {
		return err
	}
	return c.Flush()
}

// Close starts outbound close propagation at the tail and marks the
// channel closed, firing channelInactive.
func (c *Channel) Close() error {
	if c.State() == StateClosed {
		return nil
	}
	err := c.pipeline.Close()
	c.state.Store(int32(StateClosed))
	c.pipeline.FireChannelInactive()
	return err
}

// InjectRead hands buf to the pipeline as an inbound read; a Transport's
// readiness callback calls this once per received chunk.
func (c *Channel) InjectRead(msg *buf.ByteBuf) {
	c.pipeline.FireChannelRead(msg)
}

// InjectReadComplete signals the end of one readiness-driven read batch.
func (c *Channel) InjectReadComplete() {
	c.pipeline.FireChannelReadComplete()
}
