// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package framecap

import (
	"errors"
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
)

// Capture pipeline errors.
var (
	// ErrTargetLost is returned when a capture target's source texture
	// can no longer be resolved (destroyed or never created). This is a
	// precondition violation, not a transient condition.
	ErrTargetLost = errors.New("framecap: capture target texture is not resolvable")

	// ErrMapFailed is returned when the device reports a failed buffer
	// map. A torn map cannot be partially recovered; the session ends.
	ErrMapFailed = errors.New("framecap: staging buffer map failed")

	// ErrDeviceLost is returned when the device is lost during a copy or
	// map operation.
	ErrDeviceLost = errors.New("framecap: device lost")

	// ErrFrameSizeMismatch is returned when a raw frame's length does not
	// match the layout it was supposedly copied with.
	ErrFrameSizeMismatch = errors.New("framecap: frame size does not match layout")

	// ErrChannelClosed is returned by consumer-side operations on a
	// closed frame channel.
	ErrChannelClosed = errors.New("framecap: frame channel closed")

	// ErrSaveFailed wraps an error from the save collaborator. Save
	// failures are fatal to the session: silently dropping frames after
	// one would produce a misleading output set.
	ErrSaveFailed = errors.New("framecap: frame save failed")

	// ErrInvalidConfig is returned when session configuration is invalid.
	ErrInvalidConfig = errors.New("framecap: invalid session config")
)

// DeviceHandle provides GPU device access from the host application.
//
// Key principle: framecap RECEIVES the device from the host, it does NOT
// create one. The host (e.g. a gogpu application) implements the
// gpucontext provider and passes it in, so capture shares the renderer's
// device and queue.
//
// DeviceHandle is an alias for gpucontext.DeviceProvider, giving the
// interface a framecap-local name while staying compatible with the
// gpucontext ecosystem.
type DeviceHandle = gpucontext.DeviceProvider

// HalProvider is implemented by hosts that can expose raw gogpu/wgpu
// HAL handles. The methods return `any` so this package does not force
// the HAL dependency on hosts that use other backends; the hal backend
// type-asserts the values.
type HalProvider interface {
	HalDevice() any
	HalQueue() any
}

// NullDeviceHandle is a DeviceHandle with nil implementations, for
// tests and software-only deployments.
type NullDeviceHandle struct{}

// Device returns nil for the null handle.
func (NullDeviceHandle) Device() gpucontext.Device { return nil }

// Queue returns nil for the null handle.
func (NullDeviceHandle) Queue() gpucontext.Queue { return nil }

// Adapter returns nil for the null handle.
func (NullDeviceHandle) Adapter() gpucontext.Adapter { return nil }

// SurfaceFormat returns undefined format for the null handle.
func (NullDeviceHandle) SurfaceFormat() gputypes.TextureFormat {
	return gputypes.TextureFormatUndefined
}

// AdapterInfo reports an unknown adapter for the null handle.
func (NullDeviceHandle) AdapterInfo() gpucontext.AdapterInfo {
	return gpucontext.AdapterInfo{Type: gpucontext.AdapterTypeUnknown}
}

var _ DeviceHandle = NullDeviceHandle{}

// PollMode controls how Device.Poll waits for pending work.
type PollMode int

const (
	// PollNonBlocking makes progress on pending device work without
	// waiting for it to finish.
	PollNonBlocking PollMode = iota

	// PollWait blocks until all submitted work has completed. Native
	// devices do not poll themselves, so a mapping callback only fires
	// after an explicit poll.
	PollWait
)

// MapStatus reports the outcome of an asynchronous buffer map request,
// delivered to the MapAsync callback.
type MapStatus int

const (
	// MapStatusSuccess indicates the buffer is mapped and readable.
	MapStatusSuccess MapStatus = iota
	// MapStatusError indicates the map failed (validation or internal).
	MapStatusError
	// MapStatusDeviceLost indicates the device was lost before mapping.
	MapStatusDeviceLost
)

// String returns the string representation of MapStatus.
func (s MapStatus) String() string {
	switch s {
	case MapStatusSuccess:
		return "Success"
	case MapStatusError:
		return "Error"
	case MapStatusDeviceLost:
		return "DeviceLost"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// Texture is the source side of a capture: a GPU texture the external
// renderer draws into, created with copy-out usage.
type Texture interface {
	// Width returns the texture width in pixels.
	Width() uint32

	// Height returns the texture height in pixels.
	Height() uint32

	// Format returns the texture pixel format.
	Format() gputypes.TextureFormat

	// Resolvable reports whether the underlying device texture still
	// exists. A false return during capture is a fatal precondition
	// violation, not a skippable condition.
	Resolvable() bool
}

// StagingBuffer is a host-visible linear buffer that device copies land
// in. It follows the wgpu mapping lifecycle: MapAsync initiates the
// map, the device completes it during Poll and invokes the callback,
// GetMappedRange exposes the bytes, Unmap releases them.
type StagingBuffer interface {
	// Size returns the buffer size in bytes.
	Size() uint64

	// MapAsync requests a read-only mapping of the full buffer and
	// registers callback to be invoked when the device completes (or
	// fails) the map. The callback fires during a Device.Poll call.
	// Returns an error if a map is already pending or the buffer is
	// destroyed.
	MapAsync(mode gputypes.MapMode, callback func(MapStatus)) error

	// GetMappedRange returns the mapped bytes. Only valid between a
	// successful map callback and Unmap; the slice must not be retained
	// past Unmap.
	GetMappedRange() ([]byte, error)

	// Unmap releases the mapping, returning buffer ownership to the
	// device so the next copy can be issued. Unmapping an unmapped
	// buffer is a no-op.
	Unmap() error

	// Destroy releases the buffer. Idempotent.
	Destroy()
}

// CommandBuffer is an opaque finished command recording.
type CommandBuffer interface{}

// CommandEncoder records copy commands for one submission.
type CommandEncoder interface {
	// CopyTextureToBuffer records a copy of src's full extent into dst,
	// laying rows out at layout.PaddedRowBytes pitch. dst must be at
	// least layout.TotalSize() bytes.
	CopyTextureToBuffer(src Texture, dst StagingBuffer, layout Layout) error

	// Finish completes recording and returns the command buffer for
	// submission.
	Finish() (CommandBuffer, error)

	// Discard abandons the recording without producing a command buffer.
	// Nothing recorded so far reaches the device. No-op after Finish.
	Discard()
}

// Queue submits recorded command buffers to the device for execution.
// Submit enqueues work and returns without waiting for it.
type Queue interface {
	Submit(buffers ...CommandBuffer) error
}

// Device is the subset of a GPU device the capture pipeline needs.
// Implementations: backend/wgpu (gogpu/wgpu) and backend/soft (pure Go,
// for tests and headless demos).
type Device interface {
	// CreateStagingBuffer creates a host-mappable buffer with MapRead
	// and CopyDst usage.
	CreateStagingBuffer(size uint64, label string) (StagingBuffer, error)

	// CreateCommandEncoder creates an encoder for recording copies.
	CreateCommandEncoder(label string) (CommandEncoder, error)

	// Poll prompts the device to make progress on submitted work and
	// pending map requests. With PollWait it blocks until the device has
	// drained; completion callbacks fire before Poll returns.
	Poll(mode PollMode) error
}
