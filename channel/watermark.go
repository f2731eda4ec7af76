// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package channel

import "sync/atomic"

// Default write-buffer water marks, matching common event-loop socket
// framework defaults: 32 KiB low, 64 KiB high.
const (
	DefaultWriteBufferLowWaterMark  = 32 * 1024
	DefaultWriteBufferHighWaterMark = 64 * 1024
)

// WriteBufferWaterMark is the WRITE_BUFFER_WATER_MARK option's value type:
// a pending-bytes pair the channel's writability toggles against.
type WriteBufferWaterMark struct {
	Low, High int
}

// DefaultWriteBufferWaterMark returns the library default pair.
func DefaultWriteBufferWaterMark() WriteBufferWaterMark {
	return WriteBufferWaterMark{Low: DefaultWriteBufferLowWaterMark, High: DefaultWriteBufferHighWaterMark}
}

// writeBufferMonitor tracks pending outbound bytes against a water mark
// pair and reports writability transitions. It is meant to be driven by
// one channel's own event loop goroutine only, so no locking beyond the
// atomic pending counter (read cheaply from any goroutine) is needed.
type writeBufferMonitor struct {
	mark    WriteBufferWaterMark
	pending atomic.Int64
	writable atomic.Bool
}

func newWriteBufferMonitor(mark WriteBufferWaterMark) *writeBufferMonitor {
	m := &writeBufferMonitor{mark: mark}
	m.writable.Store(true)
	return m
}

// IsWritable reports false once pending outbound bytes have exceeded the
// high water mark, and true again only after they have drained to the low
// water mark or below (hysteresis, matching Netty's semantics).
func (m *writeBufferMonitor) IsWritable() bool { return m.writable.Load() }

// Pending returns the current pending-byte count.
func (m *writeBufferMonitor) Pending() int64 { return m.pending.Load() }

// add adjusts the pending count by delta (positive when queuing a write,
// negative once the transport has flushed it) and flips writable when a
// water mark is crossed.
func (m *writeBufferMonitor) add(delta int64) {
	n := m.pending.Add(delta)
	m.refresh(n)
}

// set replaces the pending count outright with n, for a caller (Channel)
// that tracks the true outstanding queue size itself rather than
// adjusting this monitor by a delta.
func (m *writeBufferMonitor) set(n int64) {
	m.pending.Store(n)
	m.refresh(n)
}

func (m *writeBufferMonitor) refresh(n int64) {
	switch {
	case n > int64(m.mark.High):
		m.writable.Store(false)
	case n <= int64(m.mark.Low):
		m.writable.Store(true)
	}
}
