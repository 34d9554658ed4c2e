package hexgrid

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/hexgrid/gpucore"
	"github.com/gogpu/hexgrid/internal/capture"
	"github.com/gogpu/hexgrid/internal/frame"
	"github.com/gogpu/hexgrid/internal/input"
	"github.com/gogpu/hexgrid/internal/registry"
	"github.com/gogpu/hexgrid/internal/timestep"
)

// CaptureKey is the key whose press captures the next frame.
const CaptureKey = gpucontext.KeySpace

// App runs the frame loop on a device it owns.
type App struct {
	cfg    Config
	device gpucore.Device

	registry  *registry.Registry
	renderer  *frame.Renderer
	capture   *capture.Coordinator
	scheduler *timestep.Scheduler
	session   *Session

	events input.Queue
	keys   *input.KeyTracker

	onFrame   func(frames uint64)
	onCapture func(path string, err error)

	closeOnce sync.Once
	closeErr  error
}

// New validates cfg and creates every resource on device. The App takes
// ownership of device and closes it in Close, including when New fails.
func New(device gpucore.Device, cfg Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		_ = device.Close()
		return nil, err
	}

	scheduler, err := timestep.New(cfg.Step, timestep.WithMaxFrameTime(cfg.MaxFrameTime))
	if err != nil {
		_ = device.Close()
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	reg, err := registry.New(device, cfg.descriptor())
	if err != nil {
		_ = device.Close()
		return nil, fmt.Errorf("hexgrid: create resources: %w", err)
	}

	a := &App{
		cfg:       cfg,
		device:    device,
		registry:  reg,
		renderer:  frame.New(device, reg),
		scheduler: scheduler,
		session:   newSession(scheduler.Clock(), cfg.Width, cfg.Height),
		keys:      input.NewKeyTracker(CaptureKey),
	}
	a.capture = capture.New(device, reg,
		capture.WithPath(cfg.CapturePath),
		capture.WithOnSaved(a.captureDone),
	)

	slogger().Info("hexgrid: app ready",
		"width", cfg.Width, "height", cfg.Height, "step", cfg.Step, "capture_path", a.capture.Path())
	return a, nil
}

// Config returns the configuration the App was created with.
func (a *App) Config() Config { return a.cfg }

// Queue returns the input queue the loop polls. Push is safe from any goroutine.
func (a *App) Queue() *input.Queue { return &a.events }

// Session returns the loop state.
func (a *App) Session() *Session { return a.session }

// Capture returns the capture coordinator.
func (a *App) Capture() *capture.Coordinator { return a.capture }

// Frames returns the number of frames submitted successfully.
func (a *App) Frames() uint64 { return a.renderer.Frames() }

// OnFrame registers fn to run on the loop goroutine after every
// successfully submitted frame. Call it before the loop starts.
func (a *App) OnFrame(fn func(frames uint64)) { a.onFrame = fn }

// OnCapture registers fn to run on the capture worker after each capture
// finishes. Call it before the loop starts.
func (a *App) OnCapture(fn func(path string, err error)) { a.onCapture = fn }

func (a *App) captureDone(path string, err error) {
	if a.onCapture != nil {
		a.onCapture(path, err)
	}
}

// RequestQuit makes the loop stop. Safe from any goroutine.
func (a *App) RequestQuit() { a.events.Push(input.Quit()) }

// Quitting reports whether the loop has observed a quit.
func (a *App) Quitting() bool { return a.session.Quit() }

// Step runs one loop iteration using wall-clock time since the previous
// Step. It reports whether a frame was drawn.
func (a *App) Step() bool {
	a.begin()
	updates, draw := a.scheduler.Tick(a.session.Quit, a.session.Update)
	return a.end(updates, draw)
}

// Advance runs one loop iteration as if frameTime had elapsed since the
// previous one. It reports whether a frame was drawn.
func (a *App) Advance(frameTime time.Duration) bool {
	a.begin()
	updates := a.scheduler.Advance(frameTime, a.session.Quit, a.session.Update)
	return a.end(updates, updates > 0 && !a.session.Quit())
}

// begin arms a capture requested during the previous iteration, then
// drains the input queue.
func (a *App) begin() {
	a.session.iterations++
	a.capture.Promote()

	for {
		ev, ok := a.events.Poll()
		if !ok {
			break
		}
		if ev.Type == input.EventQuit {
			a.session.RequestQuit()
			continue
		}
		a.keys.Observe(ev)
	}
	if a.keys.Consume() {
		a.capture.Request()
	}
}

func (a *App) end(updates int, draw bool) bool {
	if updates > 0 {
		slogger().Debug("hexgrid: updates", "n", updates, "t", a.session.clock.T())
	}
	if !draw {
		return false
	}

	a.session.draws++
	armed := a.capture.Armed()
	if err := a.renderer.Draw(a.session.Uniforms(), armed); err != nil {
		a.session.failed++
		slogger().Warn("hexgrid: frame failed", "frame", a.session.draws, "err", err)
		if armed {
			a.capture.Abort()
		}
		return true
	}
	if armed {
		a.capture.Dispatch()
	}
	if a.onFrame != nil {
		a.onFrame(a.Frames())
	}
	return true
}

// Run iterates until a quit event, ctx is done or Config.MaxFrames frames
// have been submitted. Between iterations that draw nothing it sleeps
// until the next step is due.
func (a *App) Run(ctx context.Context) error {
	a.scheduler.Reset()
	for !a.session.Quit() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if a.cfg.MaxFrames > 0 && a.Frames() >= a.cfg.MaxFrames {
			return nil
		}
		if !a.Step() {
			clock := a.scheduler.Clock()
			if wait := clock.Step() - clock.Accumulator(); wait > 0 {
				time.Sleep(wait)
			}
		}
	}
	return nil
}

// Close joins the capture worker, waits for the device, releases every
// resource and closes the device. It returns capture errors not yet
// reported along with any shutdown error. Close is idempotent.
func (a *App) Close() error {
	a.closeOnce.Do(func() {
		var errs []error
		if err := a.capture.Wait(); err != nil {
			errs = append(errs, err)
		}
		if err := a.device.Wait(); err != nil {
			errs = append(errs, fmt.Errorf("hexgrid: wait for device: %w", err))
		}
		a.registry.Release()
		if err := a.device.Close(); err != nil {
			errs = append(errs, fmt.Errorf("hexgrid: close device: %w", err))
		}
		a.closeErr = errors.Join(errs...)

		slogger().Info("hexgrid: app closed",
			"frames", a.Frames(), "captures", a.capture.Saved(), "failed_frames", a.session.failed)
	})
	return a.closeErr
}
