// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Command framecap runs a headless capture session over the software
// device, saving rendered frames as image files. It exists to exercise
// the full pipeline end to end without GPU hardware, and as a working
// example of wiring a session together.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gogpu/framecap"
	"github.com/gogpu/framecap/backend/soft"
	"github.com/gogpu/framecap/imageio"
	"github.com/gogpu/gputypes"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// fileConfig is the YAML configuration file shape. Flags override any
// value set here.
type fileConfig struct {
	Width       uint32 `yaml:"width"`
	Height      uint32 `yaml:"height"`
	Format      string `yaml:"format"` // rgba8 or bgra8
	PreRoll     uint32 `yaml:"pre_roll"`
	SingleImage bool   `yaml:"single_image"`
	IntervalMS  uint32 `yaml:"interval_ms"`

	Output struct {
		Dir         string `yaml:"dir"`
		Prefix      string `yaml:"prefix"`
		Format      string `yaml:"format"` // png, jpg, bmp, tiff
		JPEGQuality int    `yaml:"jpeg_quality"`
	} `yaml:"output"`
}

func defaultConfig() fileConfig {
	cfg := fileConfig{
		Width:       512,
		Height:      512,
		Format:      "rgba8",
		PreRoll:     40,
		SingleImage: true,
		IntervalMS:  16,
	}
	cfg.Output.Dir = "."
	cfg.Output.Format = "png"
	return cfg
}

func loadConfig(path string) (fileConfig, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

func parsePixelFormat(name string) (gputypes.TextureFormat, error) {
	switch name {
	case "", "rgba8":
		return gputypes.TextureFormatRGBA8Unorm, nil
	case "bgra8":
		return gputypes.TextureFormatBGRA8Unorm, nil
	default:
		return gputypes.TextureFormatUndefined, fmt.Errorf("unknown pixel format %q", name)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		outDir     string
		width      uint32
		height     uint32
		preRoll    uint32
		continuous bool
		logJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "framecap",
		Short: "Headless frame capture over the software device",
		Long: `Renders a synthetic animated scene on the pure Go software device and
captures frames through the full copy/map/save pipeline. By default it
discards a pre-roll of frames, saves one image, and exits; with
--continuous it keeps saving numbered frames until interrupted.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			handler := slog.Handler(slog.NewTextHandler(os.Stderr, nil))
			if logJSON {
				handler = slog.NewJSONHandler(os.Stderr, nil)
			}
			logger := slog.New(handler)

			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("width") {
				cfg.Width = width
			}
			if cmd.Flags().Changed("height") {
				cfg.Height = height
			}
			if cmd.Flags().Changed("pre-roll") {
				cfg.PreRoll = preRoll
			}
			if cmd.Flags().Changed("out") {
				cfg.Output.Dir = outDir
			}
			if continuous {
				cfg.SingleImage = false
			}

			return runCapture(cmd, cfg, logger)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "output directory")
	cmd.Flags().Uint32VarP(&width, "width", "W", 512, "capture width in pixels")
	cmd.Flags().Uint32VarP(&height, "height", "H", 512, "capture height in pixels")
	cmd.Flags().Uint32Var(&preRoll, "pre-roll", 40, "frames to discard before saving")
	cmd.Flags().BoolVar(&continuous, "continuous", false, "keep saving frames until interrupted")
	cmd.Flags().BoolVar(&logJSON, "log-json", false, "log as JSON")
	return cmd
}

func runCapture(cmd *cobra.Command, cfg fileConfig, logger *slog.Logger) error {
	pixelFormat, err := parsePixelFormat(cfg.Format)
	if err != nil {
		return err
	}
	outFormat, err := imageio.ParseFormat(cfg.Output.Format)
	if err != nil {
		return err
	}

	saver, err := imageio.NewFileSaver(cfg.Output.Dir, imageio.Options{
		Prefix:      cfg.Output.Prefix,
		Format:      outFormat,
		JPEGQuality: cfg.Output.JPEGQuality,
	})
	if err != nil {
		return err
	}

	dev := soft.NewDevice()
	renderer := soft.NewRenderer(dev)

	sess, err := framecap.NewSession(dev, dev.Queue(), renderer, saver, framecap.Config{
		Width:       cfg.Width,
		Height:      cfg.Height,
		Format:      pixelFormat,
		PreRoll:     cfg.PreRoll,
		SingleImage: cfg.SingleImage,
		Interval:    time.Duration(cfg.IntervalMS) * time.Millisecond,
	}, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting capture",
		"width", cfg.Width, "height", cfg.Height,
		"pre_roll", cfg.PreRoll, "single_image", cfg.SingleImage,
		"out", cfg.Output.Dir)

	if err := sess.Run(ctx); err != nil {
		return err
	}
	if last := saver.LastPath(); last != "" {
		logger.Info("capture complete", "last_file", last, "frames_rendered", renderer.Frames())
	} else {
		logger.Warn("capture ended before any frame was saved")
	}
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
