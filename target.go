// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package framecap

import (
	"fmt"
	"sync/atomic"

	"github.com/gogpu/gputypes"
)

// TargetDescriptor describes the render target the external renderer
// must create for a capture session. The usage flags include CopySrc so
// the copy stage may read the texture back.
type TargetDescriptor struct {
	// Label is an optional debug label for the texture.
	Label string

	// Width and Height are the logical image dimensions in pixels.
	Width  uint32
	Height uint32

	// Format is the texture pixel format.
	Format gputypes.TextureFormat

	// Usage is the required texture usage. Always includes
	// TextureUsageCopySrc in addition to render attachment usage.
	Usage gputypes.TextureUsage
}

// Renderer is the external renderer collaborator. framecap only
// configures the render target and consumes the filled texture; it
// never issues drawing commands itself.
type Renderer interface {
	// CreateTarget creates a texture matching desc that the renderer
	// will draw into once per tick.
	CreateTarget(desc TargetDescriptor) (Texture, error)

	// RenderFrame draws the next frame into the target texture. The
	// copy stage runs after this returns on the same tick.
	RenderFrame() error
}

// Target pairs one render-target texture with the staging buffer its
// frames are copied into. The texture and buffer are owned by the
// producer goroutine for the target's whole lifetime; only copied bytes
// ever cross into the consumer.
//
// The enabled flag is the single field touched from outside the
// producer: session teardown clears it to stop new copies without
// locking. A one-tick-stale read is fine -- the flag only gates a skip
// decision.
type Target struct {
	src     Texture
	staging StagingBuffer
	layout  Layout
	enabled atomic.Bool
}

// NewTarget creates a capture target for src, allocating a staging
// buffer sized by the padded-row layout of src's dimensions and format.
// The target starts enabled.
func NewTarget(device Device, src Texture) (*Target, error) {
	if src == nil || !src.Resolvable() {
		return nil, ErrTargetLost
	}
	layout := LayoutFor(src.Width(), src.Height(), src.Format())

	staging, err := device.CreateStagingBuffer(layout.TotalSize(), "framecap_staging")
	if err != nil {
		return nil, fmt.Errorf("create staging buffer: %w", err)
	}

	t := &Target{
		src:     src,
		staging: staging,
		layout:  layout,
	}
	t.enabled.Store(true)
	return t, nil
}

// Layout returns the target's padded-row layout. Both the copy stage
// and the sequencer derive their row math from this one value.
func (t *Target) Layout() Layout {
	return t.layout
}

// Enabled reports whether the target participates in capture.
func (t *Target) Enabled() bool {
	return t.enabled.Load()
}

// SetEnabled arms or disarms the target. Safe to call from any
// goroutine; the producer observes the change on its next tick.
func (t *Target) SetEnabled(enabled bool) {
	t.enabled.Store(enabled)
}

// Destroy releases the target's staging buffer. The source texture is
// owned by the renderer and is not destroyed.
func (t *Target) Destroy() {
	t.enabled.Store(false)
	t.staging.Destroy()
}
