// Package timestep implements a fixed-step accumulator loop.
//
// Wall-clock time measured between outer iterations is added to an
// accumulator and drained in constant steps. Simulation time is derived
// from the integer step count, so it never drifts from steps*dt.
package timestep

import (
	"errors"
	"time"
)

// DefaultMaxFrameTime caps a single measured frame time. A longer stall
// (debugger pause, window drag) is treated as exactly this long.
const DefaultMaxFrameTime = 250 * time.Millisecond

// ErrInvalidStep is returned by New for a non-positive step.
var ErrInvalidStep = errors.New("timestep: step must be positive")

// Clock tracks simulation progress in whole steps.
type Clock struct {
	step  time.Duration
	steps uint64
	acc   time.Duration
}

// Step returns the fixed step size.
func (c *Clock) Step() time.Duration { return c.step }

// Steps returns the number of updates run so far.
func (c *Clock) Steps() uint64 { return c.steps }

// Accumulator returns the unconsumed wall-clock time.
func (c *Clock) Accumulator() time.Duration { return c.acc }

// T returns the simulation time in seconds.
func (c *Clock) T() float64 {
	return float64(c.steps) * c.step.Seconds()
}

// Alpha returns how far the accumulator is into the next step, in [0, 1).
func (c *Clock) Alpha() float64 {
	return float64(c.acc) / float64(c.step)
}

// Scheduler drives a Clock from a time source.
type Scheduler struct {
	clock    Clock
	maxFrame time.Duration
	now      func() time.Time
	last     time.Time
	started  bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithMaxFrameTime overrides DefaultMaxFrameTime. Non-positive values are ignored.
func WithMaxFrameTime(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.maxFrame = d
		}
	}
}

// WithNow sets the time source used by Tick. Defaults to time.Now.
func WithNow(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a Scheduler with the given fixed step.
func New(step time.Duration, opts ...Option) (*Scheduler, error) {
	if step <= 0 {
		return nil, ErrInvalidStep
	}
	s := &Scheduler{
		clock:    Clock{step: step},
		maxFrame: DefaultMaxFrameTime,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Clock returns the scheduler's clock.
func (s *Scheduler) Clock() *Clock { return &s.clock }

// MaxFrameTime returns the frame time clamp.
func (s *Scheduler) MaxFrameTime() time.Duration { return s.maxFrame }

// Reset restarts frame time measurement from the current time.
// The clock and accumulator are left untouched.
func (s *Scheduler) Reset() {
	s.last = s.now()
	s.started = true
}

// Tick measures the time since the previous Tick (or Reset) and advances.
// The first Tick without a prior Reset measures zero elapsed time.
//
// It returns the number of updates run and whether a frame should be drawn:
// at least one update ran and quit was not observed.
func (s *Scheduler) Tick(quit func() bool, update func(dt time.Duration)) (updates int, draw bool) {
	now := s.now()
	var frameTime time.Duration
	if s.started {
		frameTime = now.Sub(s.last)
	}
	s.last = now
	s.started = true

	updates = s.Advance(frameTime, quit, update)
	return updates, updates > 0 && !quit()
}

// Advance adds frameTime to the accumulator, clamped to [0, MaxFrameTime],
// and runs update once per whole step while quit reports false. The clock
// has already advanced when update is called. It returns the number of
// updates run.
func (s *Scheduler) Advance(frameTime time.Duration, quit func() bool, update func(dt time.Duration)) int {
	if frameTime < 0 {
		frameTime = 0
	}
	if frameTime > s.maxFrame {
		frameTime = s.maxFrame
	}
	s.clock.acc += frameTime

	n := 0
	for s.clock.acc >= s.clock.step && !quit() {
		s.clock.steps++
		s.clock.acc -= s.clock.step
		update(s.clock.step)
		n++
	}
	return n
}
