// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package soft provides a pure Go in-memory implementation of the
// framecap device interfaces. It mimics the wgpu execution model --
// submitted copies and pending buffer maps only make progress during
// Poll -- so the capture pipeline exercises the same ordering and
// lifecycle it would against real hardware. Used by tests and the
// headless demo.
package soft

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/framecap"
	"github.com/gogpu/gputypes"
)

// Soft backend errors.
var (
	// ErrDeviceLost is returned by operations on a device marked lost.
	ErrDeviceLost = errors.New("soft: device lost")

	// ErrTextureDestroyed is returned when a copy references a destroyed
	// texture.
	ErrTextureDestroyed = errors.New("soft: texture destroyed")

	// ErrBufferDestroyed is returned when operating on a destroyed buffer.
	ErrBufferDestroyed = errors.New("soft: buffer destroyed")

	// ErrBufferBusy is returned when mapping a buffer that is already
	// mapped or has a map pending.
	ErrBufferBusy = errors.New("soft: buffer already mapped or map pending")

	// ErrNotMapped is returned when reading an unmapped buffer.
	ErrNotMapped = errors.New("soft: buffer not mapped")
)

// copyOp is one recorded texture-to-buffer copy awaiting execution.
type copyOp struct {
	src    *Texture
	dst    *Buffer
	layout framecap.Layout
}

// Device is an in-memory device. Work submitted to its queue and map
// requests on its buffers are deferred until Poll, matching the native
// wgpu model where the device makes no progress unless polled.
type Device struct {
	mu      sync.Mutex
	queue   *Queue
	pending []copyOp
	maps    []*Buffer
	lost    bool
}

// NewDevice creates an idle software device.
func NewDevice() *Device {
	d := &Device{}
	d.queue = &Queue{dev: d}
	return d
}

// Queue returns the device's submission queue.
func (d *Device) Queue() *Queue {
	return d.queue
}

// MarkLost simulates device loss: submitted work stops executing and
// pending maps complete with MapStatusDeviceLost on the next Poll.
func (d *Device) MarkLost() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lost = true
}

// CreateTexture creates an in-memory texture matching desc, for use as
// a render target by a software renderer.
func (d *Device) CreateTexture(desc framecap.TargetDescriptor) (*Texture, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return nil, fmt.Errorf("soft: invalid texture dimensions %dx%d", desc.Width, desc.Height)
	}
	rowBytes := int(desc.Width) * framecap.FormatPixelSize(desc.Format)
	return &Texture{
		width:  desc.Width,
		height: desc.Height,
		format: desc.Format,
		pix:    make([]byte, rowBytes*int(desc.Height)),
	}, nil
}

// CreateStagingBuffer creates a host-visible buffer of the given size.
func (d *Device) CreateStagingBuffer(size uint64, label string) (framecap.StagingBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return nil, ErrDeviceLost
	}
	if size == 0 {
		return nil, fmt.Errorf("soft: zero-size staging buffer %q", label)
	}
	return &Buffer{
		dev:   d,
		label: label,
		data:  make([]byte, size),
	}, nil
}

// CreateCommandEncoder creates an encoder recording into this device.
func (d *Device) CreateCommandEncoder(label string) (framecap.CommandEncoder, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return nil, ErrDeviceLost
	}
	return &Encoder{label: label}, nil
}

// Poll executes all submitted copies, then completes pending buffer
// maps, invoking their callbacks before returning. The soft device
// finishes everything in one call, so PollNonBlocking and PollWait
// behave identically.
func (d *Device) Poll(framecap.PollMode) error {
	d.mu.Lock()
	pending := d.pending
	d.pending = nil
	maps := d.maps
	d.maps = nil
	lost := d.lost
	d.mu.Unlock()

	if lost {
		for _, b := range maps {
			b.completeMap(framecap.MapStatusDeviceLost)
		}
		return ErrDeviceLost
	}

	var copyErr error
	for _, op := range pending {
		if err := op.execute(); err != nil && copyErr == nil {
			copyErr = err
		}
	}

	for _, b := range maps {
		if copyErr != nil {
			b.completeMap(framecap.MapStatusError)
		} else {
			b.completeMap(framecap.MapStatusSuccess)
		}
	}
	return copyErr
}

// enqueueCopies appends executed-on-poll copy ops (called by Queue).
func (d *Device) enqueueCopies(ops []copyOp) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return ErrDeviceLost
	}
	d.pending = append(d.pending, ops...)
	return nil
}

// enqueueMap registers a buffer whose map completes on the next Poll.
func (d *Device) enqueueMap(b *Buffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.maps = append(d.maps, b)
}

// execute copies the texture's tight rows into the buffer at the
// layout's padded pitch. Bytes past RowBytes in each padded row are
// left as-is (undefined content, like real hardware).
func (op copyOp) execute() error {
	op.src.mu.Lock()
	defer op.src.mu.Unlock()
	if op.src.destroyed {
		return ErrTextureDestroyed
	}

	op.dst.mu.Lock()
	defer op.dst.mu.Unlock()
	if op.dst.destroyed {
		return ErrBufferDestroyed
	}

	l := op.layout
	for row := uint32(0); row < l.Height; row++ {
		src := op.src.pix[uint64(row)*uint64(l.RowBytes):]
		dst := op.dst.data[uint64(row)*uint64(l.PaddedRowBytes):]
		copy(dst[:l.RowBytes], src[:l.RowBytes])
	}
	return nil
}

// Queue is the device's submission queue.
type Queue struct {
	dev *Device
}

// Submit enqueues the recorded copies of each command buffer for
// execution on the next Poll. Non-blocking.
func (q *Queue) Submit(buffers ...framecap.CommandBuffer) error {
	for _, cb := range buffers {
		cmds, ok := cb.(*CommandList)
		if !ok {
			return fmt.Errorf("soft: foreign command buffer %T", cb)
		}
		if err := q.dev.enqueueCopies(cmds.ops); err != nil {
			return err
		}
	}
	return nil
}

// Encoder records copy commands.
type Encoder struct {
	label    string
	ops      []copyOp
	finished bool
}

// CopyTextureToBuffer records a full-extent copy at the layout's padded
// row pitch.
func (e *Encoder) CopyTextureToBuffer(src framecap.Texture, dst framecap.StagingBuffer, layout framecap.Layout) error {
	if e.finished {
		return fmt.Errorf("soft: encoder %q already finished", e.label)
	}
	tex, ok := src.(*Texture)
	if !ok {
		return fmt.Errorf("soft: foreign texture %T", src)
	}
	buf, ok := dst.(*Buffer)
	if !ok {
		return fmt.Errorf("soft: foreign buffer %T", dst)
	}
	if uint64(len(buf.data)) < layout.TotalSize() {
		return fmt.Errorf("soft: buffer %q too small: %d < %d", buf.label, len(buf.data), layout.TotalSize())
	}
	e.ops = append(e.ops, copyOp{src: tex, dst: buf, layout: layout})
	return nil
}

// Finish completes recording.
func (e *Encoder) Finish() (framecap.CommandBuffer, error) {
	if e.finished {
		return nil, fmt.Errorf("soft: encoder %q already finished", e.label)
	}
	e.finished = true
	return &CommandList{ops: e.ops}, nil
}

// Discard drops the recorded copies without producing a command buffer.
func (e *Encoder) Discard() {
	if e.finished {
		return
	}
	e.finished = true
	e.ops = nil
}

// CommandList is a finished recording of copy ops.
type CommandList struct {
	ops []copyOp
}

var (
	_ framecap.Device         = (*Device)(nil)
	_ framecap.Queue          = (*Queue)(nil)
	_ framecap.CommandEncoder = (*Encoder)(nil)
)

// Texture is an in-memory render target. A software renderer fills it
// via WritePixels; the copy stage reads it back.
type Texture struct {
	mu        sync.Mutex
	width     uint32
	height    uint32
	format    gputypes.TextureFormat
	pix       []byte
	destroyed bool
}

// Width returns the texture width in pixels.
func (t *Texture) Width() uint32 { return t.width }

// Height returns the texture height in pixels.
func (t *Texture) Height() uint32 { return t.height }

// Format returns the texture pixel format.
func (t *Texture) Format() gputypes.TextureFormat { return t.format }

// Resolvable reports whether the texture still exists.
func (t *Texture) Resolvable() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.destroyed
}

// WritePixels replaces the texture contents with tightly packed rows.
// len(pix) must equal width * height * pixel size.
func (t *Texture) WritePixels(pix []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.destroyed {
		return ErrTextureDestroyed
	}
	if len(pix) != len(t.pix) {
		return fmt.Errorf("soft: pixel data length %d, texture holds %d", len(pix), len(t.pix))
	}
	copy(t.pix, pix)
	return nil
}

// Destroy releases the texture. Subsequent copies from it fail.
func (t *Texture) Destroy() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.destroyed = true
}

var _ framecap.Texture = (*Texture)(nil)

// mapState tracks a buffer's mapping lifecycle.
type mapState int

const (
	mapUnmapped mapState = iota
	mapPending
	mapMapped
)

// Buffer is an in-memory staging buffer following the wgpu map
// lifecycle: MapAsync marks it pending, the device completes the map
// during Poll and invokes the callback, Unmap releases it.
type Buffer struct {
	dev   *Device
	label string

	mu        sync.Mutex
	data      []byte
	state     mapState
	callback  func(framecap.MapStatus)
	destroyed bool
}

// Size returns the buffer size in bytes.
func (b *Buffer) Size() uint64 {
	return uint64(len(b.data))
}

// MapAsync requests a read mapping of the full buffer. The callback
// fires during the device's next Poll.
func (b *Buffer) MapAsync(mode gputypes.MapMode, callback func(framecap.MapStatus)) error {
	if mode != gputypes.MapModeRead {
		return fmt.Errorf("soft: unsupported map mode %v", mode)
	}
	b.mu.Lock()
	if b.destroyed {
		b.mu.Unlock()
		return ErrBufferDestroyed
	}
	if b.state != mapUnmapped {
		b.mu.Unlock()
		return ErrBufferBusy
	}
	b.state = mapPending
	b.callback = callback
	b.mu.Unlock()

	b.dev.enqueueMap(b)
	return nil
}

// completeMap resolves a pending map, invoking the callback outside
// the lock.
func (b *Buffer) completeMap(status framecap.MapStatus) {
	b.mu.Lock()
	cb := b.callback
	b.callback = nil
	if b.state == mapPending {
		if status == framecap.MapStatusSuccess {
			b.state = mapMapped
		} else {
			b.state = mapUnmapped
		}
	}
	b.mu.Unlock()

	if cb != nil {
		cb(status)
	}
}

// GetMappedRange returns the mapped bytes. Valid only while mapped.
func (b *Buffer) GetMappedRange() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return nil, ErrBufferDestroyed
	}
	if b.state != mapMapped {
		return nil, ErrNotMapped
	}
	return b.data, nil
}

// Unmap releases the mapping. No-op when unmapped.
func (b *Buffer) Unmap() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return ErrBufferDestroyed
	}
	b.state = mapUnmapped
	b.callback = nil
	return nil
}

// Destroy releases the buffer. Idempotent.
func (b *Buffer) Destroy() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.destroyed = true
	b.state = mapUnmapped
	b.callback = nil
}

var _ framecap.StagingBuffer = (*Buffer)(nil)
