package hexgrid

import (
	"time"

	"github.com/gogpu/hexgrid/internal/frame"
	"github.com/gogpu/hexgrid/internal/timestep"
)

// Session is the mutable state of one run of the loop: the quit flag, the
// simulation clock, the uniforms of the next frame and loop counters.
// It is only touched from the loop goroutine.
type Session struct {
	quit     bool
	clock    *timestep.Clock
	uniforms frame.Uniforms

	iterations uint64
	updates    uint64
	draws      uint64
	failed     uint64
}

func newSession(clock *timestep.Clock, width, height uint32) *Session {
	return &Session{
		clock: clock,
		uniforms: frame.Uniforms{
			ResolutionX: float32(width),
			ResolutionY: float32(height),
		},
	}
}

// Quit reports whether a quit was requested.
func (s *Session) Quit() bool { return s.quit }

// RequestQuit stops the loop at the next check.
func (s *Session) RequestQuit() { s.quit = true }

// Update runs one fixed step. The uniform time is derived from the step
// count so it does not accumulate rounding error.
func (s *Session) Update(time.Duration) {
	s.updates++
	s.uniforms.Time = float32(s.clock.T())
}

// Uniforms returns the uniform block for the next frame.
func (s *Session) Uniforms() frame.Uniforms { return s.uniforms }

// Clock returns the simulation clock.
func (s *Session) Clock() *timestep.Clock { return s.clock }

// Iterations returns the number of outer loop iterations.
func (s *Session) Iterations() uint64 { return s.iterations }

// Updates returns the number of fixed updates run.
func (s *Session) Updates() uint64 { return s.updates }

// Draws returns the number of frames attempted, including failed ones.
func (s *Session) Draws() uint64 { return s.draws }

// Failed returns the number of frames whose recording or submission failed.
func (s *Session) Failed() uint64 { return s.failed }
