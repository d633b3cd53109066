// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package framecap

import (
	"sync"
)

// LatestFrameChannel carries completed frames from the producer
// goroutine to the consumer goroutine with a latest-wins backpressure
// policy: every completed frame is pushed, but a consumer that has
// fallen behind only ever sees the newest one.
//
// Push never blocks and never fails while the channel is open. The
// drain operations never block either, so neither side can stall the
// other; producer and consumer stay coupled only by one frame of
// latency.
//
// Frames are held in push order from a single producer, so "latest" is
// well defined; no frame is duplicated or reordered.
type LatestFrameChannel struct {
	mu      sync.Mutex
	pending [][]byte
	closed  bool

	// dropped counts frames discarded because the consumer was behind.
	dropped uint64
	// pushed counts all frames ever pushed.
	pushed uint64
}

// NewLatestFrameChannel creates an open, empty frame channel.
func NewLatestFrameChannel() *LatestFrameChannel {
	return &LatestFrameChannel{}
}

// Push transfers ownership of frame into the channel. Non-blocking.
// Pushing on a closed channel silently drops the frame: the producer
// may race session teardown by one tick, and that race is benign.
func (c *LatestFrameChannel) Push(frame []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.pending = append(c.pending, frame)
	c.pushed++
}

// DrainLatest removes all pending frames and returns the newest one,
// transferring its ownership to the caller. Returns (nil, false) when
// nothing is pending. Older frames are discarded, never observed.
func (c *LatestFrameChannel) DrainLatest() ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.pending)
	if n == 0 {
		return nil, false
	}
	latest := c.pending[n-1]
	c.dropped += uint64(n - 1)
	c.clearPending()
	return latest, true
}

// DrainDiscard flushes all pending frames without materializing any,
// returning the number discarded. Used while capture is not yet armed.
func (c *LatestFrameChannel) DrainDiscard() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.pending)
	c.dropped += uint64(n)
	c.clearPending()
	return n
}

// Close marks the channel closed. Subsequent pushes are dropped;
// drains keep working on whatever was pending. Idempotent.
func (c *LatestFrameChannel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

// Stats returns the total pushed and discarded frame counts.
func (c *LatestFrameChannel) Stats() (pushed, dropped uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pushed, c.dropped
}

// clearPending resets the pending list keeping its backing array.
// Caller must hold c.mu.
func (c *LatestFrameChannel) clearPending() {
	for i := range c.pending {
		c.pending[i] = nil
	}
	c.pending = c.pending[:0]
}
