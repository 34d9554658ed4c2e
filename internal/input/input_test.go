package input

import (
	"sync"
	"testing"

	"github.com/gogpu/gpucontext"
)

func TestQueueFIFO(t *testing.T) {
	var q Queue
	q.Push(KeyDown(gpucontext.KeySpace))
	q.Push(KeyUp(gpucontext.KeySpace))
	q.Push(Quit())

	want := []EventType{EventKeyDown, EventKeyUp, EventQuit}
	for i, w := range want {
		ev, ok := q.Poll()
		if !ok {
			t.Fatalf("Poll() %d: queue empty", i)
		}
		if ev.Type != w {
			t.Errorf("Poll() %d: type = %v, want %v", i, ev.Type, w)
		}
	}
	if _, ok := q.Poll(); ok {
		t.Error("Poll() on drained queue returned an event")
	}
}

func TestQueueConcurrentPush(t *testing.T) {
	var q Queue
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				q.Push(KeyDown(gpucontext.KeySpace))
			}
		}()
	}
	wg.Wait()
	if q.Len() != 800 {
		t.Errorf("Len() = %d, want 800", q.Len())
	}
}

func TestKeyTrackerHeldKeyFiresOnce(t *testing.T) {
	k := NewKeyTracker(gpucontext.KeySpace)
	k.Observe(KeyDown(gpucontext.KeySpace))

	fired := 0
	for range 10 {
		// Autorepeat delivers key-down on every polled frame while held.
		k.Observe(KeyDown(gpucontext.KeySpace))
		if k.Consume() {
			fired++
		}
	}
	if fired != 1 {
		t.Errorf("held key fired %d times, want 1", fired)
	}
	if k.State() != KeyStateDownConsumed {
		t.Errorf("State() = %v, want %v", k.State(), KeyStateDownConsumed)
	}
}

func TestKeyTrackerTransitions(t *testing.T) {
	k := NewKeyTracker(gpucontext.KeySpace)
	steps := []struct {
		ev      *Event
		consume bool
		fired   bool
		state   KeyState
	}{
		{ev: ptr(KeyDown(gpucontext.KeySpace)), state: KeyStateDownUnconsumed},
		{consume: true, fired: true, state: KeyStateDownConsumed},
		{consume: true, fired: false, state: KeyStateDownConsumed},
		{ev: ptr(KeyUp(gpucontext.KeySpace)), state: KeyStateUp},
		{consume: true, fired: false, state: KeyStateUp},
		{ev: ptr(KeyDown(gpucontext.KeySpace)), state: KeyStateDownUnconsumed},
		{consume: true, fired: true, state: KeyStateDownConsumed},
	}
	for i, s := range steps {
		if s.ev != nil {
			k.Observe(*s.ev)
		}
		if s.consume {
			if got := k.Consume(); got != s.fired {
				t.Errorf("step %d: Consume() = %v, want %v", i, got, s.fired)
			}
		}
		if k.State() != s.state {
			t.Errorf("step %d: State() = %v, want %v", i, k.State(), s.state)
		}
	}
}

func TestKeyTrackerReleasedBeforeConsume(t *testing.T) {
	k := NewKeyTracker(gpucontext.KeySpace)
	k.Observe(KeyDown(gpucontext.KeySpace))
	k.Observe(KeyUp(gpucontext.KeySpace))

	if !k.Consume() {
		t.Error("press released before consume was lost")
	}
	if k.Consume() {
		t.Error("press reported twice")
	}
	if k.State() != KeyStateUp {
		t.Errorf("State() = %v, want %v", k.State(), KeyStateUp)
	}
}

func TestKeyTrackerIgnoresOtherKeys(t *testing.T) {
	var other gpucontext.Key = gpucontext.KeySpace + 1
	k := NewKeyTracker(gpucontext.KeySpace)
	k.Observe(KeyDown(other))
	k.Observe(Quit())
	if k.Consume() {
		t.Error("foreign event produced an edge")
	}
}

func ptr(ev Event) *Event { return &ev }

func TestKeyStateString(t *testing.T) {
	tests := []struct {
		state KeyState
		want  string
	}{
		{KeyStateUp, "up"},
		{KeyStateDownUnconsumed, "down-unconsumed"},
		{KeyStateDownConsumed, "down-consumed"},
		{KeyState(42), "invalid"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("KeyState(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
	if NewKeyTracker(gpucontext.KeySpace).State() != KeyStateUp {
		t.Error("new tracker is not up")
	}
	if ev := KeyUp(gpucontext.KeySpace); ev.Type != EventKeyUp {
		t.Errorf("KeyUp() type = %v, want %v", ev.Type, EventKeyUp)
	}
}
