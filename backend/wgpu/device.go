// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package wgpu binds the framecap device interfaces to the gogpu/wgpu
// HAL, so a capture session can read frames back from real hardware
// (Vulkan, Metal, DX12, or the software rasterizer).
//
// The HAL has no callback-driven buffer mapping; maps are realized with
// MapBuffer once the copy submission completes. MapAsync registers the
// request and Poll completes it: wait for the last submission index to
// be reported done, map the buffer, copy it into a shadow, unmap,
// invoke the callback. From the pipeline's point of view this is
// indistinguishable from a native async map.
package wgpu

import (
	"errors"
	"fmt"
	"sync"
	"time"
	"unsafe"

	"github.com/gogpu/framecap"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// gpuWaitTimeout bounds the submission wait in Poll. A healthy device
// finishes a copy in microseconds; five seconds means it is gone.
const gpuWaitTimeout = 5 * time.Second

// pollInterval is the sleep between completion checks while waiting.
const pollInterval = 100 * time.Microsecond

// ErrNoHalHandles is returned by FromHandle when the host cannot
// provide raw HAL device and queue handles.
var ErrNoHalHandles = errors.New("wgpu: device handle does not expose HAL handles")

// Device implements framecap.Device over a hal.Device/hal.Queue pair
// owned by the host application.
type Device struct {
	dev   hal.Device
	queue hal.Queue

	mu        sync.Mutex
	submitted uint64 // last submission index, 0 when nothing pending
	cmdBufs   []hal.CommandBuffer
	maps      []*Buffer
}

// NewDevice wraps the host's HAL device and queue. Ownership stays with
// the host; Destroy is never called on either.
func NewDevice(dev hal.Device, queue hal.Queue) *Device {
	return &Device{dev: dev, queue: queue}
}

// FromHandle extracts HAL handles from a host device handle. The host
// must implement framecap.HalProvider with hal.Device and hal.Queue
// values.
func FromHandle(handle framecap.DeviceHandle) (*Device, error) {
	hp, ok := handle.(framecap.HalProvider)
	if !ok {
		return nil, ErrNoHalHandles
	}
	dev, ok := hp.HalDevice().(hal.Device)
	if !ok {
		return nil, fmt.Errorf("%w: device is %T", ErrNoHalHandles, hp.HalDevice())
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok {
		return nil, fmt.Errorf("%w: queue is %T", ErrNoHalHandles, hp.HalQueue())
	}
	return NewDevice(dev, queue), nil
}

// Queue returns a framecap.Queue submitting to the wrapped HAL queue.
func (d *Device) Queue() framecap.Queue {
	return &Queue{dev: d}
}

// WrapTexture adapts a HAL texture the host renders into. The texture
// must have been created with CopySrc usage and match the given
// dimensions and format.
func (d *Device) WrapTexture(tex hal.Texture, width, height uint32, format gputypes.TextureFormat) *Texture {
	return &Texture{raw: tex, width: width, height: height, format: format}
}

// CreateStagingBuffer creates a MapRead|CopyDst HAL buffer.
func (d *Device) CreateStagingBuffer(size uint64, label string) (framecap.StagingBuffer, error) {
	raw, err := d.dev.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create staging buffer: %w", err)
	}
	return &Buffer{dev: d, raw: raw, shadow: make([]byte, size)}, nil
}

// CreateCommandEncoder creates a HAL encoder with encoding begun.
func (d *Device) CreateCommandEncoder(label string) (framecap.CommandEncoder, error) {
	raw, err := d.dev.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create command encoder: %w", err)
	}
	if err := raw.BeginEncoding(label); err != nil {
		return nil, fmt.Errorf("wgpu: begin encoding: %w", err)
	}
	return &Encoder{raw: raw}, nil
}

// Poll waits for the last submission to complete, frees its command
// buffers, and completes pending buffer maps by reading each buffer
// into its shadow copy. Map callbacks fire before Poll returns.
//
// With PollNonBlocking, work still in flight is left pending for a
// later poll and no callbacks fire.
func (d *Device) Poll(mode framecap.PollMode) error {
	d.mu.Lock()
	submitted := d.submitted
	cmdBufs := d.cmdBufs
	maps := d.maps
	d.submitted = 0
	d.cmdBufs = nil
	d.maps = nil
	d.mu.Unlock()

	var waitErr error
	if submitted != 0 {
		done := d.queue.PollCompleted() >= submitted
		if !done {
			if mode == framecap.PollNonBlocking {
				d.requeue(submitted, cmdBufs, maps)
				return nil
			}
			waitErr = d.awaitSubmission(submitted)
		}
		for _, cb := range cmdBufs {
			d.dev.FreeCommandBuffer(cb)
		}
	}

	for _, b := range maps {
		if waitErr != nil {
			b.completeMap(framecap.MapStatusDeviceLost, nil)
			continue
		}
		if err := b.readBack(); err != nil {
			b.completeMap(framecap.MapStatusError, nil)
			waitErr = fmt.Errorf("wgpu: map buffer: %w", err)
			continue
		}
		b.completeMap(framecap.MapStatusSuccess, b.shadow)
	}
	return waitErr
}

// awaitSubmission blocks until the queue reports the submission index
// completed, or the wait timeout expires.
func (d *Device) awaitSubmission(index uint64) error {
	deadline := time.Now().Add(gpuWaitTimeout)
	for d.queue.PollCompleted() < index {
		if time.Now().After(deadline) {
			return fmt.Errorf("wgpu: submission %d not complete after %v", index, gpuWaitTimeout)
		}
		time.Sleep(pollInterval)
	}
	return nil
}

// requeue puts in-flight state back for a later poll.
func (d *Device) requeue(submitted uint64, cmdBufs []hal.CommandBuffer, maps []*Buffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.submitted = submitted
	d.cmdBufs = append(cmdBufs, d.cmdBufs...)
	d.maps = append(maps, d.maps...)
}

// recordSubmission stores the submission index and command buffers for
// Poll to wait on and free.
func (d *Device) recordSubmission(index uint64, cmdBufs []hal.CommandBuffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	// One submission per tick; leftover buffers mean Poll was skipped.
	for _, cb := range d.cmdBufs {
		d.dev.FreeCommandBuffer(cb)
	}
	d.submitted = index
	d.cmdBufs = cmdBufs
}

// enqueueMap registers a buffer map to complete on the next Poll.
func (d *Device) enqueueMap(b *Buffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.maps = append(d.maps, b)
}

var _ framecap.Device = (*Device)(nil)

// Queue submits finished command buffers and records the submission
// index, so Poll has something to wait on.
type Queue struct {
	dev *Device
}

// Submit submits the command buffers in one HAL submission.
func (q *Queue) Submit(buffers ...framecap.CommandBuffer) error {
	cmdBufs := make([]hal.CommandBuffer, 0, len(buffers))
	for _, cb := range buffers {
		raw, ok := cb.(hal.CommandBuffer)
		if !ok {
			return fmt.Errorf("wgpu: foreign command buffer %T", cb)
		}
		cmdBufs = append(cmdBufs, raw)
	}

	index, err := q.dev.queue.Submit(cmdBufs)
	if err != nil {
		return fmt.Errorf("wgpu: submit: %w", err)
	}
	q.dev.recordSubmission(index, cmdBufs)
	return nil
}

var _ framecap.Queue = (*Queue)(nil)

// Encoder adapts a hal.CommandEncoder.
type Encoder struct {
	raw      hal.CommandEncoder
	finished bool
}

// CopyTextureToBuffer records the aligned copy, bracketed by the
// RenderAttachment <-> CopySrc layout transitions that Vulkan and DX12
// require around a readback of a render target. The transitions are
// no-ops on Metal, GLES, and the software backend.
func (e *Encoder) CopyTextureToBuffer(src framecap.Texture, dst framecap.StagingBuffer, layout framecap.Layout) error {
	if e.finished {
		return errors.New("wgpu: encoder already finished")
	}
	tex, ok := src.(*Texture)
	if !ok {
		return fmt.Errorf("wgpu: foreign texture %T", src)
	}
	buf, ok := dst.(*Buffer)
	if !ok {
		return fmt.Errorf("wgpu: foreign buffer %T", dst)
	}

	e.raw.TransitionTextures([]hal.TextureBarrier{{
		Texture: tex.raw,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageRenderAttachment,
			NewUsage: gputypes.TextureUsageCopySrc,
		},
	}})

	e.raw.CopyTextureToBuffer(tex.raw, buf.raw, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{
			Offset:       0,
			BytesPerRow:  layout.PaddedRowBytes,
			RowsPerImage: layout.Height,
		},
		TextureBase: hal.ImageCopyTexture{Texture: tex.raw, MipLevel: 0},
		Size: hal.Extent3D{
			Width:              layout.Width,
			Height:             layout.Height,
			DepthOrArrayLayers: 1,
		},
	}})

	e.raw.TransitionTextures([]hal.TextureBarrier{{
		Texture: tex.raw,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageCopySrc,
			NewUsage: gputypes.TextureUsageRenderAttachment,
		},
	}})
	return nil
}

// Finish ends encoding and returns the HAL command buffer.
func (e *Encoder) Finish() (framecap.CommandBuffer, error) {
	if e.finished {
		return nil, errors.New("wgpu: encoder finished twice")
	}
	e.finished = true
	cmdBuf, err := e.raw.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("wgpu: end encoding: %w", err)
	}
	return cmdBuf, nil
}

// Discard cancels the recording without producing a command buffer.
func (e *Encoder) Discard() {
	if e.finished {
		return
	}
	e.finished = true
	e.raw.DiscardEncoding()
}

var _ framecap.CommandEncoder = (*Encoder)(nil)

// Texture adapts a host-owned hal.Texture.
type Texture struct {
	raw    hal.Texture
	width  uint32
	height uint32
	format gputypes.TextureFormat
}

// Width returns the texture width in pixels.
func (t *Texture) Width() uint32 { return t.width }

// Height returns the texture height in pixels.
func (t *Texture) Height() uint32 { return t.height }

// Format returns the texture pixel format.
func (t *Texture) Format() gputypes.TextureFormat { return t.format }

// Resolvable reports whether the HAL handle is present.
func (t *Texture) Resolvable() bool { return t.raw != nil }

// Raw returns the underlying HAL texture.
func (t *Texture) Raw() hal.Texture { return t.raw }

var _ framecap.Texture = (*Texture)(nil)

// Buffer adapts a hal.Buffer. The mapped range handed to the pipeline
// is a shadow copy filled from a transient HAL mapping during Poll, so
// GetMappedRange never exposes memory the HAL could move or reuse.
type Buffer struct {
	dev *Device
	raw hal.Buffer

	mu      sync.Mutex
	shadow  []byte
	mapped  []byte
	cb      func(framecap.MapStatus)
	pending bool
}

// Size returns the buffer size in bytes.
func (b *Buffer) Size() uint64 { return uint64(len(b.shadow)) }

// MapAsync registers a read-map request completed on the next Poll.
func (b *Buffer) MapAsync(mode gputypes.MapMode, callback func(framecap.MapStatus)) error {
	if mode != gputypes.MapModeRead {
		return fmt.Errorf("wgpu: unsupported map mode %v", mode)
	}
	b.mu.Lock()
	if b.pending || b.mapped != nil {
		b.mu.Unlock()
		return errors.New("wgpu: buffer already mapped or map pending")
	}
	b.pending = true
	b.cb = callback
	b.mu.Unlock()

	b.dev.enqueueMap(b)
	return nil
}

// readBack maps the HAL buffer, copies its contents into the shadow,
// and unmaps. Only called from Device.Poll after the copy submission
// completed, so the GPU is no longer writing the buffer.
func (b *Buffer) readBack() error {
	size := uint64(len(b.shadow))
	mapping, err := b.dev.dev.MapBuffer(b.raw, 0, size)
	if err != nil {
		return err
	}
	copy(b.shadow, unsafe.Slice((*byte)(mapping.Ptr), size))
	return b.dev.dev.UnmapBuffer(b.raw)
}

// completeMap resolves the pending request (called from Device.Poll).
func (b *Buffer) completeMap(status framecap.MapStatus, view []byte) {
	b.mu.Lock()
	cb := b.cb
	b.cb = nil
	b.pending = false
	b.mapped = view
	b.mu.Unlock()

	if cb != nil {
		cb(status)
	}
}

// GetMappedRange returns the shadow copy of the buffer contents.
func (b *Buffer) GetMappedRange() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.mapped == nil {
		return nil, errors.New("wgpu: buffer not mapped")
	}
	return b.mapped, nil
}

// Unmap invalidates the mapped view.
func (b *Buffer) Unmap() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mapped = nil
	return nil
}

// Destroy releases the HAL buffer.
func (b *Buffer) Destroy() {
	b.mu.Lock()
	raw := b.raw
	b.raw = nil
	b.mapped = nil
	b.mu.Unlock()
	if raw != nil {
		b.dev.dev.DestroyBuffer(raw)
	}
}

var _ framecap.StagingBuffer = (*Buffer)(nil)
