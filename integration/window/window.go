// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

//go:build !nogpu

package window

import (
	"errors"
	"fmt"

	"github.com/gogpu/gogpu"
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/hexgrid"
	"github.com/gogpu/hexgrid/backend/native"
	"github.com/gogpu/hexgrid/internal/input"
)

// ErrNoProvider is returned when the gogpu App exposes no GPU context.
var ErrNoProvider = errors.New("window: GPU context provider not available")

// Option configures a Window.
type Option func(*Window)

// WithSetup registers fn to run once, right after the App is created on
// the window's device and before its first frame.
func WithSetup(fn func(*hexgrid.App)) Option {
	return func(w *Window) { w.setup = fn }
}

// Window drives a hexgrid App from gogpu's draw callback.
//
// Window is NOT safe for concurrent use; gogpu calls its handlers on the
// main thread.
type Window struct {
	cfg   hexgrid.Config
	gapp  *gogpu.App
	setup func(*hexgrid.App)

	device *native.Device
	app    *hexgrid.App

	err      error
	closeErr error
}

// Run opens a window sized from cfg and runs the loop until the window
// is closed, the App quits or cfg.MaxFrames frames were drawn. It returns
// the initialization error if the App could not be created, otherwise any
// error from shutdown.
func Run(cfg hexgrid.Config, opts ...Option) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	w := &Window{cfg: cfg}
	for _, opt := range opts {
		opt(w)
	}

	w.gapp = gogpu.NewApp(gogpu.DefaultConfig().
		WithTitle(cfg.Title).
		WithSize(int(cfg.Width), int(cfg.Height)).
		WithContinuousRender(true))

	w.gapp.OnDraw(w.draw)
	w.gapp.OnClose(w.close)

	events := w.gapp.EventSource()
	events.OnKeyPress(func(key gpucontext.Key, _ gpucontext.Modifiers) {
		w.keyPress(key)
	})
	events.OnKeyRelease(func(key gpucontext.Key, _ gpucontext.Modifiers) {
		w.keyRelease(key)
	})

	if err := w.gapp.Run(); err != nil {
		w.close()
		return fmt.Errorf("window: run: %w", err)
	}
	w.close()
	if w.err != nil {
		return w.err
	}
	return w.closeErr
}

func (w *Window) keyPress(key gpucontext.Key) {
	if w.app != nil {
		w.app.Queue().Push(input.KeyDown(key))
	}
}

func (w *Window) keyRelease(key gpucontext.Key) {
	if w.app != nil {
		w.app.Queue().Push(input.KeyUp(key))
	}
}

func (w *Window) draw(dc *gogpu.Context) {
	if w.err != nil {
		return
	}
	provider := w.gapp.GPUContextProvider()
	if w.app == nil {
		if err := w.init(provider); err != nil {
			w.err = err
			hexgrid.Logger().Error("window: init failed", "err", err)
			w.gapp.Quit()
			return
		}
	}

	sw, sh := dc.SurfaceSize()
	if sw == 0 || sh == 0 {
		return
	}
	done, err := w.frame(dc.SurfaceView(), sw, sh, provider.SurfaceFormat())
	if err != nil {
		hexgrid.Logger().Warn("window: present target", "err", err)
	}
	if done {
		w.gapp.Quit()
	}
}

// init creates the App on the device behind provider.
func (w *Window) init(provider gpucontext.DeviceProvider) error {
	if provider == nil {
		return ErrNoProvider
	}
	device, err := native.NewFromProvider(provider, native.Options{PresentMode: w.cfg.Mode()})
	if err != nil {
		return err
	}
	app, err := hexgrid.New(device, w.cfg)
	if err != nil {
		return err
	}
	w.device, w.app = device, app
	if w.setup != nil {
		w.setup(app)
	}
	return nil
}

// frame steps the App with view as the present target and reports whether
// the loop is done. A view that cannot be presented to still advances the
// App; its error is returned alongside.
func (w *Window) frame(view any, width, height uint32, format gputypes.TextureFormat) (bool, error) {
	err := w.device.SetPresentTarget(view, width, height, format)
	w.app.Step()
	w.device.ClearPresentTarget()

	done := w.app.Quitting() || (w.cfg.MaxFrames > 0 && w.app.Frames() >= w.cfg.MaxFrames)
	return done, err
}

// close shuts the App down while the window's device is still alive.
// Safe to call more than once.
func (w *Window) close() {
	if w.app == nil {
		return
	}
	w.closeErr = w.app.Close()
	w.app = nil
}
