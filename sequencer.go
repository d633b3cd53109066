// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package framecap

import (
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/gogpu/gputypes"
)

// Saver is the external save collaborator. It receives a reconstructed
// logical image (tightly packed RGBA) and persists it; how and where is
// its business. A returned error is fatal to the capture session.
type Saver interface {
	Save(img *image.RGBA) error
}

// StateKind tags the capture state machine's variant.
type StateKind int

const (
	// StateBuildScene is the initial state: the scene is still being
	// assembled and capture is not armed.
	StateBuildScene StateKind = iota

	// StateRender means capture is armed. Remaining counts the pre-roll
	// ticks left before frames are accepted for saving.
	StateRender
)

// State is the sequencer's tagged state value. Remaining is only
// meaningful when Kind is StateRender.
type State struct {
	Kind      StateKind
	Remaining uint32
}

// Sequencer is the consumer-side state machine. One Tick per consumer
// invocation: it decides whether to ignore, discard, or consume the
// latest frame, strips row padding back to the logical image shape,
// and hands the result to the save collaborator.
//
// Lifecycle: BuildScene -> Render(n) on Arm; Render(n) -> Render(n-1)
// each tick while n >= 1 (frames discarded, scene still settling);
// Render(0) is terminal and accepts frames. In single-image mode the
// first successful save closes Done exactly once.
type Sequencer struct {
	frames      *LatestFrameChannel
	layout      Layout
	format      gputypes.TextureFormat
	saver       Saver
	singleImage bool
	log         *slog.Logger

	state    State
	saves    uint64
	done     chan struct{}
	doneOnce sync.Once
}

// NewSequencer creates a sequencer in the BuildScene state.
// logger may be nil, in which case the package logger is used.
func NewSequencer(
	frames *LatestFrameChannel,
	layout Layout,
	format gputypes.TextureFormat,
	saver Saver,
	singleImage bool,
	logger *slog.Logger,
) *Sequencer {
	if logger == nil {
		logger = Logger()
	}
	return &Sequencer{
		frames:      frames,
		layout:      layout,
		format:      format,
		saver:       saver,
		singleImage: singleImage,
		log:         logger,
		state:       State{Kind: StateBuildScene},
		done:        make(chan struct{}),
	}
}

// State returns the current state value.
func (s *Sequencer) State() State {
	return s.state
}

// Arm transitions BuildScene -> Render(preRoll). Frames arriving during
// the next preRoll ticks are discarded so transient rendering artifacts
// (transparent or placeholder frames) are never saved.
func (s *Sequencer) Arm(preRoll uint32) {
	s.state = State{Kind: StateRender, Remaining: preRoll}
}

// Done is closed exactly once, after the first successful save in
// single-image mode. It is the session-termination signal; framecap
// emits it but never consumes one.
func (s *Sequencer) Done() <-chan struct{} {
	return s.done
}

// Saves returns the number of successful saves so far.
func (s *Sequencer) Saves() uint64 {
	return s.saves
}

// Tick runs one consumer-side step. Returns whether a frame was saved
// this tick. A save error is returned as fatal; the caller must stop
// the session.
func (s *Sequencer) Tick() (saved bool, err error) {
	switch s.state.Kind {
	case StateBuildScene:
		// Capture not armed; nothing to do.
		return false, nil

	case StateRender:
		if s.state.Remaining >= 1 {
			if n := s.frames.DrainDiscard(); n > 0 {
				s.log.Debug("discarded pre-roll frames", "count", n, "remaining", s.state.Remaining)
			}
			s.state.Remaining--
			return false, nil
		}
		return s.consumeLatest()

	default:
		return false, fmt.Errorf("framecap: sequencer in unknown state %d", s.state.Kind)
	}
}

// consumeLatest drains the channel and saves the newest frame, if any.
// An empty channel is a benign no-op: the first post-pre-roll tick may
// run before the device has delivered a frame.
func (s *Sequencer) consumeLatest() (bool, error) {
	raw, ok := s.frames.DrainLatest()
	if !ok {
		return false, nil
	}

	tight, err := s.layout.Strip(raw)
	if err != nil {
		return false, err
	}

	img := &image.RGBA{
		Pix:    toRGBA(tight, s.format),
		Stride: int(s.layout.RowBytes),
		Rect:   image.Rect(0, 0, int(s.layout.Width), int(s.layout.Height)),
	}

	if err := s.saver.Save(img); err != nil {
		return false, fmt.Errorf("%w: %w", ErrSaveFailed, err)
	}
	s.saves++
	s.log.Info("frame saved", "saves", s.saves, "width", s.layout.Width, "height", s.layout.Height)

	if s.singleImage {
		s.doneOnce.Do(func() { close(s.done) })
	}
	return true, nil
}

// toRGBA returns tight as RGBA byte order. RGBA input passes through
// unchanged; BGRA is swizzled in place per pixel.
func toRGBA(tight []byte, format gputypes.TextureFormat) []byte {
	if format != gputypes.TextureFormatBGRA8Unorm {
		return tight
	}
	for i := 0; i+3 < len(tight); i += 4 {
		tight[i], tight[i+2] = tight[i+2], tight[i]
	}
	return tight
}
