// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package framecap

import (
	"fmt"
)

// CopyStage issues the device-side texture-to-buffer copies for a set
// of capture targets. One Flush per producer tick: it records one copy
// command per enabled target into a single encoder and submits, then
// returns without waiting for the device.
//
// The staging buffer contents after the device executes the copy are
// Height rows of PaddedRowBytes each, row-major, with the first
// RowBytes of each row holding pixel data and the remainder undefined.
type CopyStage struct {
	device Device
	queue  Queue
}

// NewCopyStage creates a copy stage over the given device and queue.
func NewCopyStage(device Device, queue Queue) *CopyStage {
	return &CopyStage{device: device, queue: queue}
}

// Flush records and submits one copy command for every enabled target.
// Disabled targets are skipped without touching the device. If no
// target is enabled, nothing is submitted.
//
// An unresolvable source texture is a fatal precondition violation: the
// error is returned and the session must stop, never silently skip.
func (c *CopyStage) Flush(targets []*Target) error {
	var (
		encoder CommandEncoder
		err     error
	)

	for _, target := range targets {
		if !target.Enabled() {
			continue
		}
		if !target.src.Resolvable() {
			if encoder != nil {
				encoder.Discard()
			}
			return fmt.Errorf("copy stage: %w", ErrTargetLost)
		}
		if encoder == nil {
			encoder, err = c.device.CreateCommandEncoder("framecap_copy")
			if err != nil {
				return fmt.Errorf("copy stage: create encoder: %w", err)
			}
		}
		if err := encoder.CopyTextureToBuffer(target.src, target.staging, target.layout); err != nil {
			encoder.Discard()
			return fmt.Errorf("copy stage: record copy: %w", err)
		}
	}

	if encoder == nil {
		return nil
	}

	cmdBuf, err := encoder.Finish()
	if err != nil {
		return fmt.Errorf("copy stage: finish encoder: %w", err)
	}
	if err := c.queue.Submit(cmdBuf); err != nil {
		return fmt.Errorf("copy stage: submit: %w", err)
	}
	return nil
}
