// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package framecap

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
)

func TestNewTarget(t *testing.T) {
	dev := &fakeDevice{}
	tex := newFakeTexture(100, 10, gputypes.TextureFormatRGBA8Unorm)

	target, err := NewTarget(dev, tex)
	if err != nil {
		t.Fatalf("NewTarget: %v", err)
	}

	l := target.Layout()
	if l.Width != 100 || l.Height != 10 {
		t.Errorf("layout dimensions %dx%d, want 100x10", l.Width, l.Height)
	}
	if l.RowBytes != 400 || l.PaddedRowBytes != 512 {
		t.Errorf("layout rows %d/%d, want 400/512", l.RowBytes, l.PaddedRowBytes)
	}
	if target.staging.Size() != l.TotalSize() {
		t.Errorf("staging size %d, want %d", target.staging.Size(), l.TotalSize())
	}
	if !target.Enabled() {
		t.Error("new target not enabled")
	}
}

func TestNewTargetUnresolvable(t *testing.T) {
	dev := &fakeDevice{}

	if _, err := NewTarget(dev, nil); !errors.Is(err, ErrTargetLost) {
		t.Errorf("NewTarget(nil) error = %v, want ErrTargetLost", err)
	}

	tex := newFakeTexture(3, 2, gputypes.TextureFormatRGBA8Unorm)
	tex.lost = true
	if _, err := NewTarget(dev, tex); !errors.Is(err, ErrTargetLost) {
		t.Errorf("NewTarget(lost texture) error = %v, want ErrTargetLost", err)
	}
}

func TestTargetEnableDisable(t *testing.T) {
	dev := &fakeDevice{}
	target, _ := newFakeTarget(t, dev, 3, 2)

	target.SetEnabled(false)
	if target.Enabled() {
		t.Error("target enabled after SetEnabled(false)")
	}
	target.SetEnabled(true)
	if !target.Enabled() {
		t.Error("target disabled after SetEnabled(true)")
	}
}

func TestTargetDestroy(t *testing.T) {
	dev := &fakeDevice{}
	target, _ := newFakeTarget(t, dev, 3, 2)

	target.Destroy()
	if target.Enabled() {
		t.Error("target still enabled after Destroy")
	}
	if !target.staging.(*fakeBuffer).destroyed {
		t.Error("staging buffer not destroyed")
	}
}
