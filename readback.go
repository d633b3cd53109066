// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package framecap

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// MapBridge moves copied frames out of staging buffers and into the
// frame channel. It converts the device's asynchronous map-completion
// callback into a synchronous call from the producer's point of view:
// the callback is the sole sender on a fresh one-shot rendezvous
// channel, and the producer goroutine is its sole, blocking receiver.
// No busy-polling; the wait is bounded by device progress only.
type MapBridge struct {
	device Device
	frames *LatestFrameChannel
}

// NewMapBridge creates a bridge that pushes collected frames into
// frames.
func NewMapBridge(device Device, frames *LatestFrameChannel) *MapBridge {
	return &MapBridge{device: device, frames: frames}
}

// Collect maps each enabled target's staging buffer, copies the mapped
// bytes into an owned frame, pushes it to the channel, and unmaps.
// Call once per producer tick, after CopyStage.Flush has submitted the
// copies.
//
// Mapping failure or device loss is fatal: a torn buffer map cannot be
// partially recovered, so the error propagates and the session ends.
func (m *MapBridge) Collect(targets []*Target) error {
	for _, target := range targets {
		if !target.Enabled() {
			continue
		}
		if err := m.collectOne(target); err != nil {
			return err
		}
	}
	return nil
}

// collectOne runs the map/read/unmap cycle for a single target.
func (m *MapBridge) collectOne(target *Target) error {
	// One-shot, one-value rendezvous: created fresh per map operation,
	// used exactly once. Capacity 1 so the callback never blocks even if
	// it fires before we reach the receive.
	done := make(chan MapStatus, 1)

	if err := target.staging.MapAsync(gputypes.MapModeRead, func(status MapStatus) {
		done <- status
	}); err != nil {
		return fmt.Errorf("map bridge: request map: %w", err)
	}

	// The mapping must be released on every exit path below, success or
	// not, or the buffer can never be reused for the next tick's copy.
	defer target.staging.Unmap() //nolint:errcheck // unmap on teardown path is best-effort

	// Native devices make no progress on their own; prompt the device to
	// run pending work so the callback can fire.
	if err := m.device.Poll(PollWait); err != nil {
		return fmt.Errorf("map bridge: device poll: %w", err)
	}

	// Blocks until the completion callback has fired.
	status := <-done

	switch status {
	case MapStatusSuccess:
		// Fall through to read.
	case MapStatusDeviceLost:
		return fmt.Errorf("map bridge: %w", ErrDeviceLost)
	default:
		return fmt.Errorf("map bridge: %w: status %v", ErrMapFailed, status)
	}

	mapped, err := target.staging.GetMappedRange()
	if err != nil {
		return fmt.Errorf("map bridge: mapped range: %w", err)
	}

	// The mapped view must not outlive the unmap; hand the channel an
	// owned copy. Push is non-blocking and tolerates a closed channel
	// (frame dropped, unmap still runs).
	frame := make([]byte, len(mapped))
	copy(frame, mapped)
	m.frames.Push(frame)

	return nil
}
