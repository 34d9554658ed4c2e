//go:build !nogpu

// Command hexgrid draws the hexagon-grid shader in a window, or headless,
// and captures frames to PNG when Space is pressed.
//
// Usage:
//
//	hexgrid [-config file.yaml] [-headless] [-backend vulkan|noop]
//	        [-frames N] [-capture-frame N] [-v]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gogpu/hexgrid"
	"github.com/gogpu/hexgrid/backend/native"
	"github.com/gogpu/hexgrid/integration/window"
	"github.com/gogpu/hexgrid/internal/input"
)

func main() {
	var (
		configPath   = flag.String("config", "", "YAML config file (defaults are used when empty)")
		headless     = flag.Bool("headless", false, "render offscreen without a window")
		backend      = flag.String("backend", "", "device backend for -headless: vulkan or noop")
		frames       = flag.Uint64("frames", 0, "stop after N frames (0 = run until closed)")
		captureFrame = flag.Uint64("capture-frame", 0, "capture once frame N has been submitted (0 = off)")
		verbose      = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	hexgrid.SetLogger(logger)

	cfg, err := loadConfig(*configPath, *backend, *frames, *captureFrame)
	if err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	setup := func(app *hexgrid.App) {
		if *captureFrame > 0 {
			app.OnFrame(func(n uint64) {
				if n == *captureFrame {
					app.Queue().Push(input.KeyDown(hexgrid.CaptureKey))
					app.Queue().Push(input.KeyUp(hexgrid.CaptureKey))
				}
			})
		}
		app.OnCapture(func(path string, err error) {
			if err == nil {
				logger.Info("frame captured", "path", path)
			}
		})
		go func() {
			<-ctx.Done()
			app.RequestQuit()
		}()
	}

	if *headless {
		err = runHeadless(ctx, cfg, setup)
	} else {
		err = window.Run(cfg, window.WithSetup(setup))
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("hexgrid failed", "err", err)
		stop()
		os.Exit(1)
	}
}

func loadConfig(path, backend string, frames, captureFrame uint64) (hexgrid.Config, error) {
	cfg := hexgrid.DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = hexgrid.LoadConfig(path); err != nil {
			return cfg, err
		}
	}

	var opts []hexgrid.Option
	if backend != "" {
		opts = append(opts, hexgrid.WithBackend(backend))
	}
	if frames > 0 {
		// Leave room for the capture to be armed and dispatched.
		if captureFrame > 0 && frames < captureFrame+2 {
			frames = captureFrame + 2
		}
		opts = append(opts, hexgrid.WithMaxFrames(frames))
	}
	cfg = cfg.With(opts...)
	return cfg, cfg.Validate()
}

func runHeadless(ctx context.Context, cfg hexgrid.Config, setup func(*hexgrid.App)) (err error) {
	device, err := native.Open(native.Options{Backend: cfg.Backend, PresentMode: cfg.Mode()})
	if err != nil {
		return fmt.Errorf("open device: %w", err)
	}
	app, err := hexgrid.New(device, cfg)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, app.Close())
	}()

	setup(app)
	return app.Run(ctx)
}
