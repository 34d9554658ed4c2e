// Package capture coordinates single-in-flight frame captures.
//
// A capture moves through Idle → Requested → Armed → InFlight → Saving →
// Idle. The render loop drives the first transitions; a background worker
// waits for the GPU, reads the staging buffer and writes the image file.
// Only one capture can be outside Idle at a time, so the staging buffer and
// the readback array are never shared between two captures.
package capture

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/gogpu/hexgrid/gpucore"
	"github.com/gogpu/hexgrid/internal/image"
)

// DefaultPath is where captures are written unless WithPath is given.
const DefaultPath = "screenshot.png"

// State is the capture state.
type State int32

// Capture states.
const (
	Idle State = iota
	Requested
	Armed
	InFlight
	Saving
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Requested:
		return "requested"
	case Armed:
		return "armed"
	case InFlight:
		return "in-flight"
	case Saving:
		return "saving"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Source describes where captured pixels come from.
type Source interface {
	Staging() gpucore.BufferID
	StagingSize() uint64
	RowPitch() uint32
	Size() (width, height uint32)
}

// Coordinator owns the capture state machine and its worker.
type Coordinator struct {
	device gpucore.Device
	src    Source
	path   string

	state atomic.Int32
	group errgroup.Group
	pix   []byte
	saved atomic.Uint64

	onSaved func(path string, err error)

	errMu sync.Mutex
	errs  []error
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithPath sets the output file path.
func WithPath(path string) Option {
	return func(c *Coordinator) {
		if path != "" {
			c.path = path
		}
	}
}

// WithOnSaved registers fn to run on the worker after each capture
// finishes, with the write error if any. The coordinator is Idle again
// when fn runs.
func WithOnSaved(fn func(path string, err error)) Option {
	return func(c *Coordinator) {
		c.onSaved = fn
	}
}

// New returns an idle coordinator reading from src on device.
func New(device gpucore.Device, src Source, opts ...Option) *Coordinator {
	c := &Coordinator{
		device: device,
		src:    src,
		path:   DefaultPath,
		pix:    make([]byte, src.StagingSize()),
	}
	c.group.SetLimit(1)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Path returns the output file path.
func (c *Coordinator) Path() string { return c.path }

// State returns the current state.
func (c *Coordinator) State() State { return State(c.state.Load()) }

// Saved returns the number of captures written successfully.
func (c *Coordinator) Saved() uint64 { return c.saved.Load() }

// Request asks for a capture of an upcoming frame. It is rejected and
// returns false unless the coordinator is Idle.
func (c *Coordinator) Request() bool {
	if !c.state.CompareAndSwap(int32(Idle), int32(Requested)) {
		slogger().Debug("capture: request rejected", "state", c.State().String())
		return false
	}
	slogger().Debug("capture: requested")
	return true
}

// Promote arms a pending request. The loop calls it at the start of each
// iteration, so a request made during input polling is armed on the next one.
func (c *Coordinator) Promote() {
	if c.state.CompareAndSwap(int32(Requested), int32(Armed)) {
		slogger().Debug("capture: armed")
	}
}

// Armed reports whether the next drawn frame must record the staging copy.
func (c *Coordinator) Armed() bool { return c.State() == Armed }

// Abort returns an armed capture to Idle, used when the frame carrying
// the copy failed to submit.
func (c *Coordinator) Abort() {
	if c.state.CompareAndSwap(int32(Armed), int32(Idle)) {
		slogger().Warn("capture: frame submission failed, capture dropped")
	}
}

// Dispatch starts the worker for an armed capture whose copy has been
// submitted. It does nothing unless the state is Armed.
func (c *Coordinator) Dispatch() {
	if !c.state.CompareAndSwap(int32(Armed), int32(InFlight)) {
		return
	}
	if !c.group.TryGo(c.save) {
		// The previous worker has already returned to Idle but its
		// goroutine has not exited yet.
		c.group.Go(c.save)
	}
}

// save runs on the worker goroutine.
func (c *Coordinator) save() error {
	err := c.readAndWrite()
	if err != nil {
		slogger().Error("capture: failed", "path", c.path, "err", err)
		c.errMu.Lock()
		c.errs = append(c.errs, err)
		c.errMu.Unlock()
	} else {
		c.saved.Add(1)
		slogger().Info("capture: saved", "path", c.path)
	}

	c.state.Store(int32(Idle))
	if c.onSaved != nil {
		c.onSaved(c.path, err)
	}
	// Capture failures are not fatal to the render loop; they are
	// reported by Wait instead of stopping the group.
	return nil
}

func (c *Coordinator) readAndWrite() error {
	if err := c.device.Wait(); err != nil {
		return fmt.Errorf("capture: wait for device: %w", err)
	}
	if err := c.device.ReadBuffer(c.src.Staging(), 0, c.pix); err != nil {
		return fmt.Errorf("capture: read staging buffer: %w", err)
	}
	c.state.Store(int32(Saving))

	w, h := c.src.Size()
	img, err := image.Unpad(c.pix, int(w), int(h), int(c.src.RowPitch()))
	if err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	if err := img.SavePNG(c.path); err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	return nil
}

// Wait blocks until the worker, if any, has finished and returns every
// capture error seen since the last Wait.
func (c *Coordinator) Wait() error {
	_ = c.group.Wait()

	c.errMu.Lock()
	defer c.errMu.Unlock()
	err := errors.Join(c.errs...)
	c.errs = nil
	return err
}
