// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package buf

import (
	"encoding/binary"

	"code.hybscloud.com/netcore/internal/errs"
)

// ErrIndexOutOfBounds is returned by indexed accessors and by the reader
// and writer index setters. EnsureWritable reports an exceeded maxCapacity
// with ErrCapacityExceeded instead.
var ErrIndexOutOfBounds = errs.ErrIndexOutOfBounds

// ErrCapacityExceeded is returned when growth would exceed maxCapacity.
var ErrCapacityExceeded = errs.ErrCapacityExceeded

// ByteBuf is an indexed reader/writer cursor over pool-backed storage.
// Invariant: 0 <= readerIdx <= writerIdx <= capacity <= maxCapacity.
type ByteBuf struct {
	refCnt

	arena  *Arena
	chunk  *chunk
	handle handle
	offset int

	capacity    int
	maxCapacity int

	readerIdx, writerIdx       int
	markedReader, markedWriter int
}

func (b *ByteBuf) bytes() []byte {
	return b.chunk.sliceAt(b.offset, b.capacity)
}

// Capacity returns the buffer's current backing capacity.
func (b *ByteBuf) Capacity() int { return b.capacity }

// MaxCapacity returns the buffer's upper capacity bound.
func (b *ByteBuf) MaxCapacity() int { return b.maxCapacity }

// ReaderIndex returns the current read cursor.
func (b *ByteBuf) ReaderIndex() int { return b.readerIdx }

// WriterIndex returns the current write cursor.
func (b *ByteBuf) WriterIndex() int { return b.writerIdx }

// ReadableBytes returns writerIdx - readerIdx.
func (b *ByteBuf) ReadableBytes() int { return b.writerIdx - b.readerIdx }

// WritableBytes returns capacity - writerIdx.
func (b *ByteBuf) WritableBytes() int { return b.capacity - b.writerIdx }

// SetReaderIndex moves the read cursor, validating 0 <= idx <= writerIdx.
func (b *ByteBuf) SetReaderIndex(idx int) error {
	if idx < 0 || idx > b.writerIdx {
		return ErrIndexOutOfBounds
	}
	b.readerIdx = idx
	return nil
}

// SetWriterIndex moves the write cursor, validating readerIdx <= idx <= capacity.
func (b *ByteBuf) SetWriterIndex(idx int) error {
	if idx < b.readerIdx || idx > b.capacity {
		return ErrIndexOutOfBounds
	}
	b.writerIdx = idx
	return nil
}

// MarkReaderIndex saves the current reader index for a later ResetReaderIndex.
func (b *ByteBuf) MarkReaderIndex() { b.markedReader = b.readerIdx }

// ResetReaderIndex restores the reader index saved by MarkReaderIndex.
func (b *ByteBuf) ResetReaderIndex() { b.readerIdx = b.markedReader }

// MarkWriterIndex saves the current writer index for a later ResetWriterIndex.
func (b *ByteBuf) MarkWriterIndex() { b.markedWriter = b.writerIdx }

// ResetWriterIndex restores the writer index saved by MarkWriterIndex.
func (b *ByteBuf) ResetWriterIndex() { b.writerIdx = b.markedWriter }

func (b *ByteBuf) checkIndex(index, length int) error {
	if index < 0 || length < 0 || index+length > b.capacity {
		return ErrIndexOutOfBounds
	}
	return nil
}

// GetByte returns the byte at the absolute index.
func (b *ByteBuf) GetByte(index int) (byte, error) {
	if err := b.checkIndex(index, 1); err != nil {
		return 0, err
	}
	return b.bytes()[index], nil
}

// SetByte writes v at the absolute index.
func (b *ByteBuf) SetByte(index int, v byte) error {
	if err := b.checkIndex(index, 1); err != nil {
		return err
	}
	b.bytes()[index] = v
	return nil
}

// GetUint32 returns the big-endian uint32 at the absolute index.
func (b *ByteBuf) GetUint32(index int) (uint32, error) {
	if err := b.checkIndex(index, 4); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b.bytes()[index:]), nil
}

// SetUint32 writes v as big-endian at the absolute index.
func (b *ByteBuf) SetUint32(index int, v uint32) error {
	if err := b.checkIndex(index, 4); err != nil {
		return err
	}
	binary.BigEndian.PutUint32(b.bytes()[index:], v)
	return nil
}

// GetUint32LE returns the little-endian uint32 at the absolute index.
func (b *ByteBuf) GetUint32LE(index int) (uint32, error) {
	if err := b.checkIndex(index, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b.bytes()[index:]), nil
}

// SetUint32LE writes v as little-endian at the absolute index.
func (b *ByteBuf) SetUint32LE(index int, v uint32) error {
	if err := b.checkIndex(index, 4); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(b.bytes()[index:], v)
	return nil
}

// GetBytes copies length bytes starting at index into a new slice.
func (b *ByteBuf) GetBytes(index, length int) ([]byte, error) {
	if err := b.checkIndex(index, length); err != nil {
		return nil, err
	}
	out := make([]byte, length)
	copy(out, b.bytes()[index:index+length])
	return out, nil
}

// SetBytes copies src into the buffer starting at index.
func (b *ByteBuf) SetBytes(index int, src []byte) error {
	if err := b.checkIndex(index, len(src)); err != nil {
		return err
	}
	copy(b.bytes()[index:], src)
	return nil
}

// ReadByte reads one byte at readerIdx and advances it.
func (b *ByteBuf) ReadByte() (byte, error) {
	v, err := b.GetByte(b.readerIdx)
	if err != nil {
		return 0, err
	}
	b.readerIdx++
	return v, nil
}

// WriteByte writes v at writerIdx and advances it, growing capacity first
// if necessary.
func (b *ByteBuf) WriteByte(v byte) error {
	if err := b.EnsureWritable(1); err != nil {
		return err
	}
	_ = b.SetByte(b.writerIdx, v)
	b.writerIdx++
	return nil
}

// ReadUint32 reads a big-endian uint32 at readerIdx and advances it by 4.
func (b *ByteBuf) ReadUint32() (uint32, error) {
	v, err := b.GetUint32(b.readerIdx)
	if err != nil {
		return 0, err
	}
	b.readerIdx += 4
	return v, nil
}

// ReadInt reads a big-endian int32 at readerIdx and advances it by 4. This
// is the accessor exercised by scenario S1: readInt() on {0x00,0x01,0x02,0x03}
// returns 0x00010203.
func (b *ByteBuf) ReadInt() (int32, error) {
	v, err := b.ReadUint32()
	return int32(v), err
}

// WriteUint32 writes a big-endian uint32 at writerIdx and advances it by 4,
// growing capacity first if necessary.
func (b *ByteBuf) WriteUint32(v uint32) error {
	if err := b.EnsureWritable(4); err != nil {
		return err
	}
	_ = b.SetUint32(b.writerIdx, v)
	b.writerIdx += 4
	return nil
}

// ReadBytes reads length bytes at readerIdx, advancing it.
func (b *ByteBuf) ReadBytes(length int) ([]byte, error) {
	out, err := b.GetBytes(b.readerIdx, length)
	if err != nil {
		return nil, err
	}
	b.readerIdx += length
	return out, nil
}

// WriteBytes writes src at writerIdx, growing capacity first if necessary,
// and advances writerIdx by len(src).
func (b *ByteBuf) WriteBytes(src []byte) error {
	if err := b.EnsureWritable(len(src)); err != nil {
		return err
	}
	_ = b.SetBytes(b.writerIdx, src)
	b.writerIdx += len(src)
	return nil
}

// EnsureWritable grows the backing store via arena reallocation if
// writerIdx+n would exceed capacity, up to maxCapacity. Returns
// ErrCapacityExceeded if maxCapacity would be exceeded.
func (b *ByteBuf) EnsureWritable(n int) error {
	if b.writerIdx+n <= b.capacity {
		return nil
	}
	minNew := b.writerIdx + n
	if minNew > b.maxCapacity {
		return ErrCapacityExceeded
	}
	newCap := CalculateNewCapacity(minNew, b.maxCapacity)
	return b.grow(newCap)
}

func (b *ByteBuf) grow(newCapacity int) error {
	newBuf, err := b.arena.Allocate(newCapacity, b.maxCapacity)
	if err != nil {
		return err
	}
	copy(newBuf.bytes(), b.bytes()[:b.writerIdx])

	oldChunk, oldHandle := b.chunk, b.handle
	b.chunk = newBuf.chunk
	b.handle = newBuf.handle
	b.offset = newBuf.offset
	b.capacity = newBuf.capacity
	// Move newBuf's finalizer into b: ownership of its chunk/handle moves
	// into b; newBuf itself is discarded without ever being released by
	// its caller.
	b.dealloc, newBuf.dealloc = newBuf.dealloc, nil

	b.arena.free(oldChunk, oldHandle)
	return nil
}

// CalculateNewCapacity returns the smallest power-of-two >= minNew (and at
// least 64), clamped to maxCapacity; beyond a 4 MiB threshold growth switches to 4 MiB
// quantized increments to avoid doubling very large buffers.
func CalculateNewCapacity(minNew, maxCapacity int) int {
	const threshold = 4 * 1024 * 1024
	if minNew > maxCapacity {
		panic("buf: minNew exceeds maxCapacity")
	}
	if minNew == threshold {
		return threshold
	}
	if minNew > threshold {
		newCap := (minNew / threshold) * threshold
		if newCap < minNew {
			newCap += threshold
		}
		if newCap > maxCapacity {
			newCap = maxCapacity
		}
		return newCap
	}
	newCap := 64
	for newCap < minNew {
		newCap <<= 1
	}
	if newCap > maxCapacity {
		newCap = maxCapacity
	}
	return newCap
}

// ByteProcessor is called once per byte by ForEachByte; returning false
// stops the scan.
type ByteProcessor func(index int, b byte) bool

// IndexOf searches for b in [from,to). If from > to the search runs in
// descending order, from from-1 down to to. Returns -1 if not found.
func (b *ByteBuf) IndexOf(from, to int, target byte) int {
	data := b.bytes()
	if from <= to {
		for i := from; i < to; i++ {
			if data[i] == target {
				return i
			}
		}
		return -1
	}
	for i := from - 1; i >= to; i-- {
		if data[i] == target {
			return i
		}
	}
	return -1
}

// ForEachByte invokes processor for each byte in [from,to) until it
// returns false (in which case that index is returned) or the range is
// exhausted (in which case -1 is returned).
func (b *ByteBuf) ForEachByte(from, to int, processor ByteProcessor) int {
	data := b.bytes()
	for i := from; i < to; i++ {
		if !processor(i, data[i]) {
			return i
		}
	}
	return -1
}

// Slice returns a non-retained view of length bytes starting at index: it
// shares the same backing memory (mutations are mutually visible) but has
// independent indices/marks, and releasing it does not affect the parent's
// reference count.
func (b *ByteBuf) Slice(index, length int) (*ByteBuf, error) {
	if err := b.checkIndex(index, length); err != nil {
		return nil, err
	}
	view := &ByteBuf{
		arena:       b.arena,
		chunk:       b.chunk,
		handle:      b.handle,
		offset:      b.offset + index,
		capacity:    length,
		maxCapacity: length,
		writerIdx:   length,
	}
	view.v.Store(2) // non-retained view: independent no-op refcnt, never destroyed via dealloc
	return view, nil
}

// RetainedSlice is like Slice but retains the parent first; the returned
// view's Release releases the shared allocation once.
func (b *ByteBuf) RetainedSlice(index, length int) (*ByteBuf, error) {
	if err := b.Retain(1); err != nil {
		return nil, err
	}
	view, err := b.Slice(index, length)
	if err != nil {
		_, _ = b.Release(1)
		return nil, err
	}
	view.initRefCnt(func() { _, _ = b.Release(1) })
	return view, nil
}

// Duplicate returns a non-retained view over the whole readable+writable
// region, sharing content but with independent indices/marks.
func (b *ByteBuf) Duplicate() (*ByteBuf, error) {
	return b.Slice(0, b.capacity)
}

// ReadSlice returns a non-retained view of length bytes starting at
// readerIdx, and advances readerIdx past it.
func (b *ByteBuf) ReadSlice(length int) (*ByteBuf, error) {
	view, err := b.Slice(b.readerIdx, length)
	if err != nil {
		return nil, err
	}
	b.readerIdx += length
	return view, nil
}

// Copy duplicates length bytes starting at index into a freshly allocated
// buffer, independent of this buffer's backing storage and lifetime.
func (b *ByteBuf) Copy(index, length int) (*ByteBuf, error) {
	if err := b.checkIndex(index, length); err != nil {
		return nil, err
	}
	out, err := b.arena.Allocate(length, length)
	if err != nil {
		return nil, err
	}
	copy(out.bytes(), b.bytes()[index:index+length])
	out.writerIdx = length
	return out, nil
}
