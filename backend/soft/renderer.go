// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package soft

import (
	"fmt"
	"sync"

	"github.com/gogpu/framecap"
	"github.com/gogpu/gputypes"
)

// Renderer is a synthetic scene renderer over a soft device. Each frame
// it fills the capture target with an animated diagonal gradient, which
// makes alignment and stride bugs visible in saved output: a stride
// mismatch shears the gradient instead of producing a plausible image.
type Renderer struct {
	dev *Device

	mu    sync.Mutex
	tex   *Texture
	frame uint32
}

// NewRenderer creates a renderer that allocates its target on dev.
func NewRenderer(dev *Device) *Renderer {
	return &Renderer{dev: dev}
}

// CreateTarget allocates the render target texture.
func (r *Renderer) CreateTarget(desc framecap.TargetDescriptor) (framecap.Texture, error) {
	tex, err := r.dev.CreateTexture(desc)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.tex = tex
	r.mu.Unlock()
	return tex, nil
}

// RenderFrame draws the next gradient frame into the target.
func (r *Renderer) RenderFrame() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tex == nil {
		return fmt.Errorf("soft: RenderFrame before CreateTarget")
	}
	r.frame++

	w := int(r.tex.Width())
	h := int(r.tex.Height())
	bgra := r.tex.Format() == gputypes.TextureFormatBGRA8Unorm

	pix := make([]byte, w*h*4)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := (y*w + x) * 4
			red := byte(x*255/max(w-1, 1)) + byte(r.frame)
			grn := byte(y * 255 / max(h-1, 1))
			blu := byte((x + y) * 255 / max(w+h-2, 1))
			if bgra {
				red, blu = blu, red
			}
			pix[i+0] = red
			pix[i+1] = grn
			pix[i+2] = blu
			pix[i+3] = 0xFF
		}
	}
	return r.tex.WritePixels(pix)
}

// Frames returns the number of frames rendered so far.
func (r *Renderer) Frames() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frame
}

var _ framecap.Renderer = (*Renderer)(nil)
