// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package framecap captures frames from a real-time GPU renderer and
// delivers them, as raw pixel bytes, to a consumer goroutine without
// ever stalling the renderer.
//
// # Overview
//
// framecap solves the frame-capture handoff problem: pixel data must
// leave device memory through a row-aligned staging copy, cross the
// device's asynchronous map-completion boundary, cross a goroutine
// boundary with one frame of latency, and land in a consumer that may
// be slower than the producer. The design is latest-frame-wins: when
// the consumer falls behind, older frames are discarded, never queued.
//
// # Pipeline
//
//	Renderer (external)         producer goroutine           consumer goroutine
//	  render target --copy--> staging buffer --map--> LatestFrameChannel --> Sequencer --> Saver
//
//	CopyStage   issues the aligned CopyTextureToBuffer each tick
//	MapBridge   blocks on the map rendezvous, pushes owned bytes
//	Sequencer   pre-roll countdown, padding strip, save handoff
//
// Row alignment (256-byte copy pitch) is computed once per target by
// Layout and shared by the copy side and the strip side, so the two
// can never disagree.
//
// # Devices
//
// The pipeline talks to the GPU through the small Device/Queue/
// StagingBuffer interfaces in this package. backend/wgpu binds them to
// gogpu/wgpu for real hardware; backend/soft is a pure-Go device for
// tests and headless demos.
//
// # Quick Start
//
//	dev := soft.NewDevice()
//	sess, err := framecap.NewSession(dev, dev.Queue(), renderer, saver,
//		framecap.Config{Width: 1920, Height: 1080, PreRoll: 40, SingleImage: true}, nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	err = sess.Run(ctx)
//
// # Error policy
//
// There are no recoverable hot-path errors. Precondition violations
// panic or fail fatally, device faults and save failures terminate the
// session, and backpressure is handled structurally by the channel's
// latest-wins policy rather than by error signaling.
package framecap
