// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package wgpu

import (
	"errors"
	"testing"

	"github.com/gogpu/framecap"
)

// nonHalHandle exposes HAL accessors but returns values that are not
// hal.Device/hal.Queue.
type nonHalHandle struct {
	framecap.NullDeviceHandle
}

func (nonHalHandle) HalDevice() any { return "not a device" }
func (nonHalHandle) HalQueue() any  { return "not a queue" }

func TestFromHandleWithoutHalAccessors(t *testing.T) {
	// NullDeviceHandle satisfies framecap.DeviceHandle but does not
	// expose raw HAL handles, so the adapter must refuse it.
	_, err := FromHandle(framecap.NullDeviceHandle{})
	if !errors.Is(err, ErrNoHalHandles) {
		t.Errorf("FromHandle error = %v, want ErrNoHalHandles", err)
	}
}

func TestFromHandleForeignHalValues(t *testing.T) {
	_, err := FromHandle(nonHalHandle{})
	if !errors.Is(err, ErrNoHalHandles) {
		t.Errorf("FromHandle error = %v, want ErrNoHalHandles", err)
	}
}
