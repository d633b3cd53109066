// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package framecap

import (
	"sync"
	"testing"
)

func TestChannelDrainLatestKeepsNewest(t *testing.T) {
	c := NewLatestFrameChannel()
	c.Push([]byte{1})
	c.Push([]byte{2})
	c.Push([]byte{3})

	frame, ok := c.DrainLatest()
	if !ok {
		t.Fatal("DrainLatest returned no frame")
	}
	if frame[0] != 3 {
		t.Errorf("DrainLatest frame = %d, want 3", frame[0])
	}

	pushed, dropped := c.Stats()
	if pushed != 3 || dropped != 2 {
		t.Errorf("Stats() = (%d, %d), want (3, 2)", pushed, dropped)
	}

	if _, ok := c.DrainLatest(); ok {
		t.Error("second DrainLatest returned a frame from an empty channel")
	}
}

func TestChannelDrainEmpty(t *testing.T) {
	c := NewLatestFrameChannel()
	if frame, ok := c.DrainLatest(); ok || frame != nil {
		t.Errorf("DrainLatest on empty = (%v, %v), want (nil, false)", frame, ok)
	}
	if n := c.DrainDiscard(); n != 0 {
		t.Errorf("DrainDiscard on empty = %d, want 0", n)
	}
}

func TestChannelDrainDiscard(t *testing.T) {
	c := NewLatestFrameChannel()
	c.Push([]byte{1})
	c.Push([]byte{2})

	if n := c.DrainDiscard(); n != 2 {
		t.Errorf("DrainDiscard = %d, want 2", n)
	}
	if _, ok := c.DrainLatest(); ok {
		t.Error("frame survived DrainDiscard")
	}

	_, dropped := c.Stats()
	if dropped != 2 {
		t.Errorf("dropped = %d, want 2", dropped)
	}
}

func TestChannelPushAfterCloseDropped(t *testing.T) {
	c := NewLatestFrameChannel()
	c.Push([]byte{1})
	c.Close()
	c.Close() // idempotent
	c.Push([]byte{2})

	// The pre-close frame is still drainable; the post-close push is
	// silently dropped.
	frame, ok := c.DrainLatest()
	if !ok || frame[0] != 1 {
		t.Fatalf("DrainLatest after close = (%v, %v), want frame 1", frame, ok)
	}
	pushed, _ := c.Stats()
	if pushed != 1 {
		t.Errorf("pushed = %d, want 1", pushed)
	}
}

func TestChannelConcurrentLatestWins(t *testing.T) {
	const n = 500
	c := NewLatestFrameChannel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= n; i++ {
			c.Push([]byte{byte(i), byte(i >> 8)})
		}
	}()

	// A lagging consumer must only ever observe frames in push order,
	// never a duplicate or an older frame after a newer one.
	last := 0
	for last < n {
		frame, ok := c.DrainLatest()
		if !ok {
			continue
		}
		seq := int(frame[0]) | int(frame[1])<<8
		if seq <= last {
			t.Fatalf("observed frame %d after frame %d", seq, last)
		}
		last = seq
	}
	wg.Wait()

	pushed, dropped := c.Stats()
	if pushed != n {
		t.Errorf("pushed = %d, want %d", pushed, n)
	}
	if dropped >= pushed {
		t.Errorf("dropped = %d, must be less than pushed %d", dropped, pushed)
	}
}
