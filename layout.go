// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package framecap

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// CopyBytesPerRowAlignment is the row pitch alignment required by
// CopyTextureToBuffer. WebGPU (and DX12) mandate that BytesPerRow of a
// linear buffer copy is a multiple of 256 bytes.
const CopyBytesPerRowAlignment = 256

// AlignRowBytes rounds rowBytes up to the next multiple of alignment.
// The alignment must be a power of two.
//
// Panics if rowBytes or alignment is zero, or alignment is not a power
// of two: callers pass compile-time device constants, so a bad value is
// a logic bug rather than a runtime condition.
func AlignRowBytes(rowBytes, alignment uint32) uint32 {
	if rowBytes == 0 {
		panic("framecap: AlignRowBytes called with zero row width")
	}
	if alignment == 0 || alignment&(alignment-1) != 0 {
		panic(fmt.Sprintf("framecap: AlignRowBytes alignment %d is not a power of two", alignment))
	}
	return (rowBytes + alignment - 1) &^ (alignment - 1)
}

// FormatPixelSize returns the size in bytes of one pixel of format.
//
// Only the 4-byte color formats used as render targets are supported.
// Panics on any other format: the capture target format is fixed at
// session setup, so an unsupported format is a configuration bug.
func FormatPixelSize(format gputypes.TextureFormat) int {
	switch format {
	case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatBGRA8Unorm:
		return 4
	default:
		panic(fmt.Sprintf("framecap: unsupported capture format %v", format))
	}
}

// Layout describes how one captured frame is laid out in a staging
// buffer. RowBytes is the tightly packed width of one row;
// PaddedRowBytes is RowBytes rounded up to the device's copy row
// alignment. Both the copy command (producer side) and the padding
// strip (consumer side) must be driven by the same Layout value --
// recomputing the alignment independently on each side is how images
// get corrupted.
//
// A Layout is computed once from a target's fixed dimensions and never
// changes for the lifetime of that target.
type Layout struct {
	// Width and Height are the logical image dimensions in pixels.
	Width  uint32
	Height uint32

	// RowBytes is the unpadded byte width of one row (Width * pixel size).
	RowBytes uint32

	// PaddedRowBytes is RowBytes aligned to CopyBytesPerRowAlignment.
	// Invariant: PaddedRowBytes >= RowBytes and
	// PaddedRowBytes % CopyBytesPerRowAlignment == 0.
	PaddedRowBytes uint32
}

// LayoutFor computes the staging buffer layout for a capture target of
// the given dimensions and pixel format.
//
// Panics if width or height is zero (programming error: dimensions are
// validated at session configuration time).
func LayoutFor(width, height uint32, format gputypes.TextureFormat) Layout {
	if width == 0 || height == 0 {
		panic(fmt.Sprintf("framecap: LayoutFor called with zero dimension %dx%d", width, height))
	}
	rowBytes := width * uint32(FormatPixelSize(format)) //nolint:gosec // pixel size is 4
	return Layout{
		Width:          width,
		Height:         height,
		RowBytes:       rowBytes,
		PaddedRowBytes: AlignRowBytes(rowBytes, CopyBytesPerRowAlignment),
	}
}

// TotalSize returns the staging buffer size in bytes:
// PaddedRowBytes * Height.
func (l Layout) TotalSize() uint64 {
	return uint64(l.PaddedRowBytes) * uint64(l.Height)
}

// Padded reports whether rows carry alignment padding. When false the
// buffer contents already are the tightly packed image and Strip is a
// no-op returning its input.
func (l Layout) Padded() bool {
	return l.PaddedRowBytes != l.RowBytes
}

// Strip removes per-row alignment padding from a raw frame, returning
// the tightly packed image bytes (RowBytes * Height).
//
// When the layout has no padding the input slice is returned as-is, no
// copy. Otherwise a new slice is allocated and the first RowBytes of
// each PaddedRowBytes chunk are concatenated.
//
// Returns an error if the input length does not match TotalSize: a
// mismatch means producer and consumer disagree on the layout, which is
// the alignment bug class this type exists to prevent.
func (l Layout) Strip(padded []byte) ([]byte, error) {
	if uint64(len(padded)) != l.TotalSize() {
		return nil, fmt.Errorf("%w: got %d bytes, layout expects %d",
			ErrFrameSizeMismatch, len(padded), l.TotalSize())
	}
	if !l.Padded() {
		return padded, nil
	}
	tight := make([]byte, uint64(l.RowBytes)*uint64(l.Height))
	for row := uint32(0); row < l.Height; row++ {
		srcOff := uint64(row) * uint64(l.PaddedRowBytes)
		dstOff := uint64(row) * uint64(l.RowBytes)
		copy(tight[dstOff:dstOff+uint64(l.RowBytes)], padded[srcOff:srcOff+uint64(l.RowBytes)])
	}
	return tight, nil
}
