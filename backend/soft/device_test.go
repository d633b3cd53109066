// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package soft

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/gogpu/framecap"
	"github.com/gogpu/gputypes"
)

func newTestTexture(t *testing.T, dev *Device, width, height uint32) *Texture {
	t.Helper()
	tex, err := dev.CreateTexture(framecap.TargetDescriptor{
		Label:  "test_target",
		Width:  width,
		Height: height,
		Format: gputypes.TextureFormatRGBA8Unorm,
	})
	if err != nil {
		t.Fatalf("CreateTexture: %v", err)
	}
	return tex
}

func TestCopyThenMapDeliversPaddedRows(t *testing.T) {
	dev := NewDevice()
	tex := newTestTexture(t, dev, 3, 2)
	layout := framecap.LayoutFor(3, 2, gputypes.TextureFormatRGBA8Unorm)

	tight := make([]byte, layout.RowBytes*layout.Height)
	for i := range tight {
		tight[i] = byte(i + 1)
	}
	if err := tex.WritePixels(tight); err != nil {
		t.Fatalf("WritePixels: %v", err)
	}

	buf, err := dev.CreateStagingBuffer(layout.TotalSize(), "test_staging")
	if err != nil {
		t.Fatalf("CreateStagingBuffer: %v", err)
	}

	enc, err := dev.CreateCommandEncoder("test_copy")
	if err != nil {
		t.Fatalf("CreateCommandEncoder: %v", err)
	}
	if err := enc.CopyTextureToBuffer(tex, buf, layout); err != nil {
		t.Fatalf("CopyTextureToBuffer: %v", err)
	}
	cmd, err := enc.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if err := dev.Queue().Submit(cmd); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	var status framecap.MapStatus = -1
	if err := buf.MapAsync(gputypes.MapModeRead, func(s framecap.MapStatus) { status = s }); err != nil {
		t.Fatalf("MapAsync: %v", err)
	}
	if status != -1 {
		t.Fatal("map callback fired before Poll")
	}
	if err := dev.Poll(framecap.PollWait); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if status != framecap.MapStatusSuccess {
		t.Fatalf("map status = %v, want Success", status)
	}

	mapped, err := buf.GetMappedRange()
	if err != nil {
		t.Fatalf("GetMappedRange: %v", err)
	}
	for row := uint32(0); row < layout.Height; row++ {
		got := mapped[row*layout.PaddedRowBytes:]
		want := tight[row*layout.RowBytes : (row+1)*layout.RowBytes]
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("row %d byte %d = %d, want %d", row, i, got[i], want[i])
			}
		}
	}

	if err := buf.Unmap(); err != nil {
		t.Fatalf("Unmap: %v", err)
	}
	if _, err := buf.GetMappedRange(); !errors.Is(err, ErrNotMapped) {
		t.Errorf("GetMappedRange after Unmap = %v, want ErrNotMapped", err)
	}
}

func TestMapAsyncRejectsDoubleMap(t *testing.T) {
	dev := NewDevice()
	buf, err := dev.CreateStagingBuffer(256, "test")
	if err != nil {
		t.Fatalf("CreateStagingBuffer: %v", err)
	}

	if err := buf.MapAsync(gputypes.MapModeRead, func(framecap.MapStatus) {}); err != nil {
		t.Fatalf("first MapAsync: %v", err)
	}
	if err := buf.MapAsync(gputypes.MapModeRead, func(framecap.MapStatus) {}); !errors.Is(err, ErrBufferBusy) {
		t.Errorf("second MapAsync = %v, want ErrBufferBusy", err)
	}
}

func TestDeviceLostCompletesMapsWithLostStatus(t *testing.T) {
	dev := NewDevice()
	buf, err := dev.CreateStagingBuffer(256, "test")
	if err != nil {
		t.Fatalf("CreateStagingBuffer: %v", err)
	}

	var status framecap.MapStatus = -1
	if err := buf.MapAsync(gputypes.MapModeRead, func(s framecap.MapStatus) { status = s }); err != nil {
		t.Fatalf("MapAsync: %v", err)
	}

	dev.MarkLost()
	if err := dev.Poll(framecap.PollWait); !errors.Is(err, ErrDeviceLost) {
		t.Errorf("Poll on lost device = %v, want ErrDeviceLost", err)
	}
	if status != framecap.MapStatusDeviceLost {
		t.Errorf("map status = %v, want DeviceLost", status)
	}

	if _, err := dev.CreateStagingBuffer(256, "test2"); !errors.Is(err, ErrDeviceLost) {
		t.Errorf("CreateStagingBuffer on lost device = %v, want ErrDeviceLost", err)
	}
}

func TestDestroyedTextureFailsCopy(t *testing.T) {
	dev := NewDevice()
	tex := newTestTexture(t, dev, 3, 2)
	layout := framecap.LayoutFor(3, 2, gputypes.TextureFormatRGBA8Unorm)

	buf, _ := dev.CreateStagingBuffer(layout.TotalSize(), "test")
	enc, _ := dev.CreateCommandEncoder("test")
	if err := enc.CopyTextureToBuffer(tex, buf, layout); err != nil {
		t.Fatalf("CopyTextureToBuffer: %v", err)
	}
	cmd, _ := enc.Finish()
	if err := dev.Queue().Submit(cmd); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	tex.Destroy()
	if tex.Resolvable() {
		t.Fatal("destroyed texture still resolvable")
	}

	var status framecap.MapStatus = -1
	_ = buf.MapAsync(gputypes.MapModeRead, func(s framecap.MapStatus) { status = s })

	if err := dev.Poll(framecap.PollWait); !errors.Is(err, ErrTextureDestroyed) {
		t.Errorf("Poll = %v, want ErrTextureDestroyed", err)
	}
	if status != framecap.MapStatusError {
		t.Errorf("map status = %v, want Error", status)
	}
}

func TestEncoderRejectsUndersizedBuffer(t *testing.T) {
	dev := NewDevice()
	tex := newTestTexture(t, dev, 3, 2)
	layout := framecap.LayoutFor(3, 2, gputypes.TextureFormatRGBA8Unorm)

	buf, _ := dev.CreateStagingBuffer(layout.TotalSize()-1, "small")
	enc, _ := dev.CreateCommandEncoder("test")
	if err := enc.CopyTextureToBuffer(tex, buf, layout); err == nil {
		t.Error("copy into undersized buffer accepted")
	}
}

type collectSaver struct {
	mu     sync.Mutex
	images []*image.RGBA
}

func (s *collectSaver) Save(img *image.RGBA) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images = append(s.images, img)
	return nil
}

func TestSessionOverSoftDevice(t *testing.T) {
	dev := NewDevice()
	renderer := NewRenderer(dev)
	saver := &collectSaver{}

	// 100 pixels wide puts real padding in the staging buffer (400-byte
	// rows at a 512-byte pitch), so this exercises the strip path.
	sess, err := framecap.NewSession(dev, dev.Queue(), renderer, saver, framecap.Config{
		Width:       100,
		Height:      10,
		PreRoll:     3,
		SingleImage: true,
		Interval:    time.Millisecond,
	}, nil)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := sess.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	saver.mu.Lock()
	defer saver.mu.Unlock()
	if len(saver.images) != 1 {
		t.Fatalf("saved %d images, want 1", len(saver.images))
	}
	img := saver.images[0]
	if img.Rect.Dx() != 100 || img.Rect.Dy() != 10 {
		t.Fatalf("image bounds %v, want 100x10", img.Rect)
	}

	// The gradient's green channel depends only on y, so every pixel of
	// a row must agree; a shear from stride confusion would break this.
	for y := 0; y < 10; y++ {
		rowGreen := img.Pix[y*img.Stride+1]
		for x := 1; x < 100; x++ {
			if got := img.Pix[y*img.Stride+x*4+1]; got != rowGreen {
				t.Fatalf("green at (%d,%d) = %d, want %d (sheared rows)", x, y, got, rowGreen)
			}
		}
		if a := img.Pix[y*img.Stride+3]; a != 0xFF {
			t.Fatalf("alpha at row %d = %d, want 255", y, a)
		}
	}
}
