// Package input turns window callbacks into a polled event queue and
// tracks per-key press edges.
package input

import (
	"sync"

	"github.com/gogpu/gpucontext"
)

// EventType identifies the kind of input event.
type EventType uint8

// Event types.
const (
	EventQuit EventType = iota + 1
	EventKeyDown
	EventKeyUp
)

func (t EventType) String() string {
	switch t {
	case EventQuit:
		return "quit"
	case EventKeyDown:
		return "key-down"
	case EventKeyUp:
		return "key-up"
	default:
		return "unknown"
	}
}

// Event is one polled input event. Key is set for key events only.
type Event struct {
	Type EventType
	Key  gpucontext.Key
}

// Quit returns a quit event.
func Quit() Event { return Event{Type: EventQuit} }

// KeyDown returns a key-down event for key.
func KeyDown(key gpucontext.Key) Event { return Event{Type: EventKeyDown, Key: key} }

// KeyUp returns a key-up event for key.
func KeyUp(key gpucontext.Key) Event { return Event{Type: EventKeyUp, Key: key} }

// Queue is a FIFO of input events. Window callbacks push, the frame loop polls.
// Safe for concurrent use.
type Queue struct {
	mu     sync.Mutex
	events []Event
}

// Push appends an event.
func (q *Queue) Push(ev Event) {
	q.mu.Lock()
	q.events = append(q.events, ev)
	q.mu.Unlock()
}

// Poll removes and returns the oldest event.
func (q *Queue) Poll() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.events) == 0 {
		return Event{}, false
	}
	ev := q.events[0]
	q.events[0] = Event{}
	q.events = q.events[1:]
	return ev, true
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}
