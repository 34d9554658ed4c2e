package timestep

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"
	"time"
)

const dt = 10 * time.Millisecond

func never() bool { return false }

func newScheduler(t *testing.T, opts ...Option) *Scheduler {
	t.Helper()
	s, err := New(dt, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func TestNewRejectsNonPositiveStep(t *testing.T) {
	for _, step := range []time.Duration{0, -time.Millisecond} {
		if _, err := New(step); !errors.Is(err, ErrInvalidStep) {
			t.Errorf("New(%v) error = %v, want ErrInvalidStep", step, err)
		}
	}
}

func TestAccumulatorStaysBelowStep(t *testing.T) {
	s := newScheduler(t)
	rng := rand.New(rand.NewPCG(1, 2))

	for i := range 10000 {
		frame := time.Duration(rng.Int64N(int64(400 * time.Millisecond)))
		s.Advance(frame, never, func(time.Duration) {})

		acc := s.Clock().Accumulator()
		if acc < 0 || acc >= dt {
			t.Fatalf("iteration %d: accumulator = %v, want [0, %v)", i, acc, dt)
		}
	}
}

func TestFrameTimeClamp(t *testing.T) {
	tests := []struct {
		name    string
		frame   time.Duration
		updates int
	}{
		{"below step", 5 * time.Millisecond, 0},
		{"exact step", 10 * time.Millisecond, 1},
		{"at clamp", 250 * time.Millisecond, 25},
		{"over clamp", 3 * time.Second, 25},
		{"negative", -time.Second, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newScheduler(t)
			got := s.Advance(tt.frame, never, func(time.Duration) {})
			if got != tt.updates {
				t.Errorf("Advance(%v) = %d updates, want %d", tt.frame, got, tt.updates)
			}
		})
	}
}

func TestCustomMaxFrameTime(t *testing.T) {
	s := newScheduler(t, WithMaxFrameTime(50*time.Millisecond))
	if got := s.Advance(time.Second, never, func(time.Duration) {}); got != 5 {
		t.Errorf("Advance(1s) with 50ms clamp = %d updates, want 5", got)
	}
}

func TestSimulationTimeDoesNotDrift(t *testing.T) {
	s := newScheduler(t)
	const n = 100000
	for s.Clock().Steps() < n {
		s.Advance(7*time.Millisecond, never, func(time.Duration) {})
	}
	// Advance may overshoot by the last batch; compare against the actual count.
	steps := s.Clock().Steps()
	want := float64(steps) * 0.01
	if got := s.Clock().T(); math.Abs(got-want) > 1e-9 {
		t.Errorf("T() after %d steps = %.12f, want %.12f", steps, got, want)
	}
}

func TestUpdateSeesAdvancedClock(t *testing.T) {
	s := newScheduler(t)
	var seen []float64
	s.Advance(30*time.Millisecond, never, func(step time.Duration) {
		if step != dt {
			t.Errorf("update step = %v, want %v", step, dt)
		}
		seen = append(seen, s.Clock().T())
	})
	want := []float64{0.01, 0.02, 0.03}
	if len(seen) != len(want) {
		t.Fatalf("updates = %d, want %d", len(seen), len(want))
	}
	for i := range want {
		if math.Abs(seen[i]-want[i]) > 1e-12 {
			t.Errorf("update %d saw T = %v, want %v", i, seen[i], want[i])
		}
	}
}

func TestQuitStopsCatchUp(t *testing.T) {
	s := newScheduler(t)
	quit := false
	calls := 0
	s.Advance(200*time.Millisecond, func() bool { return quit }, func(time.Duration) {
		calls++
		if calls == 3 {
			quit = true
		}
	})
	if calls != 3 {
		t.Errorf("updates after quit = %d, want 3", calls)
	}
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestTickDrawsOnlyAfterUpdate(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	s := newScheduler(t, WithNow(clk.now))
	s.Reset()

	draws := 0
	frames := []time.Duration{
		4 * time.Millisecond,  // 4
		4 * time.Millisecond,  // 8
		4 * time.Millisecond,  // 12 -> 1 update, acc 2
		1 * time.Millisecond,  // 3
		30 * time.Millisecond, // 33 -> 3 updates, acc 3
	}
	wantUpdates := []int{0, 0, 1, 0, 3}
	for i, f := range frames {
		clk.advance(f)
		n, draw := s.Tick(never, func(time.Duration) {})
		if n != wantUpdates[i] {
			t.Errorf("tick %d: updates = %d, want %d", i, n, wantUpdates[i])
		}
		if draw != (n > 0) {
			t.Errorf("tick %d: draw = %v with %d updates", i, draw, n)
		}
		if draw {
			draws++
		}
	}
	if draws != 2 {
		t.Errorf("draws = %d, want 2", draws)
	}
}

func TestTickNoDrawWhenQuitDuringUpdates(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	s := newScheduler(t, WithNow(clk.now))
	s.Reset()
	clk.advance(50 * time.Millisecond)

	quit := false
	n, draw := s.Tick(func() bool { return quit }, func(time.Duration) { quit = true })
	if n != 1 {
		t.Errorf("updates = %d, want 1", n)
	}
	if draw {
		t.Error("draw = true after quit was observed")
	}
}

func TestFirstTickWithoutReset(t *testing.T) {
	clk := &fakeClock{t: time.Unix(100, 0)}
	s := newScheduler(t, WithNow(clk.now))
	if n, draw := s.Tick(never, func(time.Duration) {}); n != 0 || draw {
		t.Errorf("first Tick = (%d, %v), want (0, false)", n, draw)
	}
}

func TestAlpha(t *testing.T) {
	s := newScheduler(t)
	s.Advance(25*time.Millisecond, never, func(time.Duration) {})
	if got := s.Clock().Alpha(); math.Abs(got-0.5) > 1e-12 {
		t.Errorf("Alpha() = %v, want 0.5", got)
	}
}
