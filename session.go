// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package framecap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gogpu/gputypes"
	"golang.org/x/sync/errgroup"
)

// Config holds the immutable settings of one capture session.
type Config struct {
	// Width and Height are the logical image dimensions in pixels.
	Width  uint32
	Height uint32

	// Format is the render-target pixel format. Zero value defaults to
	// RGBA8Unorm.
	Format gputypes.TextureFormat

	// PreRoll is the number of initial frames discarded before capture
	// begins, letting transient rendering artifacts settle.
	PreRoll uint32

	// SingleImage makes the session terminate after the first saved
	// frame; otherwise it saves at most one image per consumer tick
	// indefinitely.
	SingleImage bool

	// Interval is the tick cadence of the producer and consumer loops.
	// Zero value defaults to 1/60 s.
	Interval time.Duration
}

// withDefaults returns cfg with zero values replaced by defaults.
func (c Config) withDefaults() Config {
	if c.Format == gputypes.TextureFormatUndefined {
		c.Format = gputypes.TextureFormatRGBA8Unorm
	}
	if c.Interval == 0 {
		c.Interval = time.Second / 60
	}
	return c
}

// Validate checks the session configuration.
func (c Config) Validate() error {
	if c.Width == 0 || c.Height == 0 {
		return fmt.Errorf("%w: dimensions %dx%d", ErrInvalidConfig, c.Width, c.Height)
	}
	switch c.Format {
	case gputypes.TextureFormatUndefined, gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatBGRA8Unorm:
	default:
		return fmt.Errorf("%w: unsupported format %v", ErrInvalidConfig, c.Format)
	}
	return nil
}

// Session wires the capture pipeline end to end: the renderer draws
// into a capture target, the copy stage and map bridge move each frame
// through the staging buffer into the frame channel on the producer
// goroutine, and the sequencer consumes, strips, and saves frames on
// the consumer goroutine.
//
// Producer and consumer run logically in parallel with one frame of
// latency between them. Neither side ever blocks on the other: the
// producer's only blocking point is the device map rendezvous, and the
// consumer's drains are non-blocking by construction.
type Session struct {
	cfg      Config
	device   Device
	queue    Queue
	renderer Renderer
	log      *slog.Logger

	frames  *LatestFrameChannel
	targets []*Target
	stage   *CopyStage
	bridge  *MapBridge
	seq     *Sequencer
}

// NewSession creates a capture session: asks the renderer for a
// copy-out render target, allocates the staging buffer, and arms the
// sequencer with the configured pre-roll.
//
// logger may be nil, in which case the package logger is used (silent
// unless SetLogger was called).
func NewSession(
	device Device,
	queue Queue,
	renderer Renderer,
	saver Saver,
	cfg Config,
	logger *slog.Logger,
) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = Logger()
	}

	src, err := renderer.CreateTarget(TargetDescriptor{
		Label:  "framecap_target",
		Width:  cfg.Width,
		Height: cfg.Height,
		Format: cfg.Format,
		Usage:  gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc,
	})
	if err != nil {
		return nil, fmt.Errorf("framecap: create render target: %w", err)
	}

	target, err := NewTarget(device, src)
	if err != nil {
		return nil, fmt.Errorf("framecap: create capture target: %w", err)
	}

	frames := NewLatestFrameChannel()
	s := &Session{
		cfg:      cfg,
		device:   device,
		queue:    queue,
		renderer: renderer,
		log:      logger,
		frames:   frames,
		targets:  []*Target{target},
		stage:    NewCopyStage(device, queue),
		bridge:   NewMapBridge(device, frames),
		seq:      NewSequencer(frames, target.Layout(), cfg.Format, saver, cfg.SingleImage, logger),
	}
	s.seq.Arm(cfg.PreRoll)
	return s, nil
}

// Target returns the session's capture target, e.g. to toggle its
// enabled flag from outside the producer loop.
func (s *Session) Target() *Target {
	return s.targets[0]
}

// Frames returns the session's frame channel, for stats inspection.
func (s *Session) Frames() *LatestFrameChannel {
	return s.frames
}

// Done is closed after the first successful save in single-image mode.
func (s *Session) Done() <-chan struct{} {
	return s.seq.Done()
}

// Run drives the producer and consumer loops until ctx is canceled, a
// stage fails, or single-image capture completes. Any fatal error from
// a stage stops both loops and is returned; a clean single-image
// completion returns nil.
//
// Shutdown is cooperative: the producer stops issuing new copies and
// lets the in-flight cycle finish. There is no mid-copy cancellation.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.runProducer(ctx) })
	g.Go(func() error { return s.runConsumer(ctx, cancel) })

	err := g.Wait()
	s.frames.Close()
	if err != nil {
		s.log.Error("capture session failed", "error", err)
		return err
	}
	pushed, dropped := s.frames.Stats()
	s.log.Info("capture session finished",
		"saves", s.seq.Saves(), "frames", pushed, "dropped", dropped)
	return nil
}

// runProducer is one execution context: render, copy, map, push --
// once per tick.
func (s *Session) runProducer(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Cooperative shutdown: disable targets so no further copies
			// are issued; anything in flight has already completed via
			// the synchronous map rendezvous.
			for _, t := range s.targets {
				t.SetEnabled(false)
			}
			return nil
		case <-ticker.C:
		}

		if err := s.renderer.RenderFrame(); err != nil {
			return fmt.Errorf("framecap: render frame: %w", err)
		}
		if err := s.stage.Flush(s.targets); err != nil {
			return err
		}
		if err := s.bridge.Collect(s.targets); err != nil {
			return err
		}
	}
}

// runConsumer is the other execution context: one sequencer tick per
// interval. stop is invoked on clean single-image completion.
func (s *Session) runConsumer(ctx context.Context, stop context.CancelFunc) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if _, err := s.seq.Tick(); err != nil {
			return err
		}

		// The termination signal only ever fires inside Tick, so checking
		// here makes single-image completion deterministic: no extra tick
		// runs after the save.
		select {
		case <-s.seq.Done():
			stop()
			return nil
		default:
		}
	}
}
