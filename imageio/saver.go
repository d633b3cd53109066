// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package imageio persists captured frames as image files. FileSaver
// implements the framecap save collaborator with sequentially numbered
// output files, in the format picked at construction time.
package imageio

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// Format selects the output image encoding.
type Format int

const (
	// FormatPNG encodes lossless PNG. The default.
	FormatPNG Format = iota
	// FormatJPEG encodes lossy JPEG at the configured quality.
	FormatJPEG
	// FormatBMP encodes uncompressed Windows bitmap.
	FormatBMP
	// FormatTIFF encodes deflate-compressed TIFF.
	FormatTIFF
)

// String returns the format's file extension without the dot.
func (f Format) String() string {
	switch f {
	case FormatPNG:
		return "png"
	case FormatJPEG:
		return "jpg"
	case FormatBMP:
		return "bmp"
	case FormatTIFF:
		return "tiff"
	default:
		return fmt.Sprintf("unknown(%d)", int(f))
	}
}

// ParseFormat maps a file extension (with or without dot, any case) to
// a Format.
func ParseFormat(ext string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "png", "":
		return FormatPNG, nil
	case "jpg", "jpeg":
		return FormatJPEG, nil
	case "bmp":
		return FormatBMP, nil
	case "tif", "tiff":
		return FormatTIFF, nil
	default:
		return FormatPNG, fmt.Errorf("imageio: unknown image format %q", ext)
	}
}

// Options configures a FileSaver. The zero value means PNG files named
// 000.png, 001.png, ... with default JPEG quality.
type Options struct {
	// Prefix is prepended to the sequence number in each filename.
	Prefix string

	// Format selects the encoding. Default PNG.
	Format Format

	// JPEGQuality is the encode quality for FormatJPEG, 1 to 100.
	// Zero means jpeg.DefaultQuality.
	JPEGQuality int
}

// FileSaver writes frames to sequentially numbered files in one
// directory. Safe for concurrent use, though a capture session only
// ever saves from its consumer goroutine.
type FileSaver struct {
	dir  string
	opts Options

	mu   sync.Mutex
	next uint64
	last string
}

// NewFileSaver creates a saver writing into dir, creating it if needed.
func NewFileSaver(dir string, opts Options) (*FileSaver, error) {
	if opts.JPEGQuality == 0 {
		opts.JPEGQuality = jpeg.DefaultQuality
	}
	if opts.JPEGQuality < 1 || opts.JPEGQuality > 100 {
		return nil, fmt.Errorf("imageio: jpeg quality %d out of range", opts.JPEGQuality)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("imageio: create output dir: %w", err)
	}
	return &FileSaver{dir: dir, opts: opts}, nil
}

// Save writes img as the next file in the sequence: <prefix>NNN.<ext>
// with a zero-padded three-digit sequence number.
func (s *FileSaver) Save(img *image.RGBA) error {
	s.mu.Lock()
	n := s.next
	s.next++
	s.mu.Unlock()

	name := fmt.Sprintf("%s%03d.%s", s.opts.Prefix, n, s.opts.Format)
	return s.SaveTo(img, name)
}

// SaveTo writes img under an explicit filename inside the saver's
// directory, bypassing the sequence counter. The encoding still follows
// the saver's format.
func (s *FileSaver) SaveTo(img *image.RGBA, name string) error {
	path := filepath.Join(s.dir, name)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("imageio: create %s: %w", path, err)
	}
	if err := s.encode(f, img); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("imageio: encode %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("imageio: close %s: %w", path, err)
	}

	s.mu.Lock()
	s.last = path
	s.mu.Unlock()
	return nil
}

// LastPath returns the path of the most recently written file, or ""
// when nothing has been saved yet.
func (s *FileSaver) LastPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Count returns how many sequence-numbered saves have been issued.
func (s *FileSaver) Count() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

func (s *FileSaver) encode(w io.Writer, img *image.RGBA) error {
	switch s.opts.Format {
	case FormatPNG:
		return png.Encode(w, img)
	case FormatJPEG:
		return jpeg.Encode(w, img, &jpeg.Options{Quality: s.opts.JPEGQuality})
	case FormatBMP:
		return bmp.Encode(w, img)
	case FormatTIFF:
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		return fmt.Errorf("imageio: unknown image format %d", int(s.opts.Format))
	}
}
