// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package channel

import "testing"

func TestWriteBufferMonitor_StartsWritable(t *testing.T) {
	m := newWriteBufferMonitor(WriteBufferWaterMark{Low: 10, High: 20})
	if !m.IsWritable() {
		t.Fatalf("a fresh monitor should be writable")
	}
}

func TestWriteBufferMonitor_CrossingHighMarkFlipsUnwritable(t *testing.T) {
	m := newWriteBufferMonitor(WriteBufferWaterMark{Low: 10, High: 20})
	m.add(25)
	if m.IsWritable() {
		t.Fatalf("monitor should be unwritable once pending exceeds the high mark")
	}
}

func TestWriteBufferMonitor_HysteresisRequiresDrainToLowMark(t *testing.T) {
	m := newWriteBufferMonitor(WriteBufferWaterMark{Low: 10, High: 20})
	m.add(25)
	m.add(-10) // 15 pending: between low and high, should stay unwritable
	if m.IsWritable() {
		t.Fatalf("monitor should remain unwritable between the low and high marks")
	}
	m.add(-6) // 9 pending: at/below low mark, should become writable again
	if !m.IsWritable() {
		t.Fatalf("monitor should become writable again once pending drains to the low mark")
	}
}

func TestWriteBufferMonitor_PendingTracksNetAdjustments(t *testing.T) {
	m := newWriteBufferMonitor(DefaultWriteBufferWaterMark())
	m.add(100)
	m.add(-40)
	if m.Pending() != 60 {
		t.Fatalf("Pending() = %d, want 60", m.Pending())
	}
}
