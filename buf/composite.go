// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package buf

import "code.hybscloud.com/netcore/internal/errs"

// ErrTooManyComponents is returned by AddComponent once maxComponents has
// been reached.
var ErrTooManyComponents = errs.ErrCapacityExceeded

// CompositeByteBuf presents a sequence of component ByteBufs as one
// logical readable region, for vectored writes without copying component
// bytes together. It does not itself own pooled memory: each component
// keeps its own reference count, retained when added and released when
// the composite is released.
type CompositeByteBuf struct {
	alloc         *Allocator
	maxComponents int
	components    []*ByteBuf
	offsets       []int // start offset of each component within the logical view
	readerIdx     int
	writerIdx     int
}

func newCompositeByteBuf(alloc *Allocator, maxComponents int) *CompositeByteBuf {
	if maxComponents < 1 {
		panic("buf: maxComponents must be >= 1")
	}
	return &CompositeByteBuf{alloc: alloc, maxComponents: maxComponents}
}

// NumComponents returns the number of component buffers currently held.
func (c *CompositeByteBuf) NumComponents() int { return len(c.components) }

// ReadableBytes returns the total readable bytes across all components.
func (c *CompositeByteBuf) ReadableBytes() int { return c.writerIdx - c.readerIdx }

// AddComponent appends buf as a new component, retaining it, and extends
// the composite's writerIdx by buf's readable bytes. Returns
// ErrTooManyComponents if maxComponents would be exceeded.
func (c *CompositeByteBuf) AddComponent(b *ByteBuf) error {
	if len(c.components) >= c.maxComponents {
		return ErrTooManyComponents
	}
	if err := b.Retain(1); err != nil {
		return err
	}
	c.offsets = append(c.offsets, c.writerIdx)
	c.components = append(c.components, b)
	c.writerIdx += b.ReadableBytes()
	return nil
}

// Components returns the live component buffers in order, for vectored
// I/O (net.Buffers-style) consumption. The slice and its elements must not
// be retained past the composite's own lifetime without an explicit
// Retain on each element.
func (c *CompositeByteBuf) Components() []*ByteBuf {
	return c.components
}

// Release releases every component buffer once. Errors from individual
// components' Release are not aggregated; the first one encountered is
// returned, but all components are still attempted.
func (c *CompositeByteBuf) Release() error {
	var firstErr error
	for _, comp := range c.components {
		if _, err := comp.Release(1); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.components = nil
	c.offsets = nil
	return firstErr
}
