package input

import "github.com/gogpu/gpucontext"

// KeyState is the state of a tracked key.
type KeyState uint8

// Key states.
const (
	// KeyStateUp: the key is released.
	KeyStateUp KeyState = iota
	// KeyStateDownUnconsumed: the key went down and the press has not been taken.
	KeyStateDownUnconsumed
	// KeyStateDownConsumed: the key is held and its press has been taken.
	KeyStateDownConsumed
)

func (s KeyState) String() string {
	switch s {
	case KeyStateUp:
		return "up"
	case KeyStateDownUnconsumed:
		return "down-unconsumed"
	case KeyStateDownConsumed:
		return "down-consumed"
	default:
		return "invalid"
	}
}

// KeyTracker detects up→down edges of a single key.
//
// Repeated key-down events while the key is held do not create new edges.
// A press that is released before Consume is called is still reported
// once; several presses between two Consume calls collapse into one.
type KeyTracker struct {
	key     gpucontext.Key
	state   KeyState
	pending bool
}

// NewKeyTracker returns a tracker for key, initially up.
func NewKeyTracker(key gpucontext.Key) *KeyTracker {
	return &KeyTracker{key: key}
}

// Key returns the tracked key.
func (k *KeyTracker) Key() gpucontext.Key { return k.key }

// State returns the current state.
func (k *KeyTracker) State() KeyState { return k.state }

// Observe feeds one polled event. Events for other keys are ignored.
func (k *KeyTracker) Observe(ev Event) {
	if ev.Key != k.key {
		return
	}
	switch ev.Type {
	case EventKeyDown:
		if k.state == KeyStateUp {
			k.state = KeyStateDownUnconsumed
			k.pending = true
		}
	case EventKeyUp:
		k.state = KeyStateUp
	}
}

// Consume reports whether a press edge occurred since the last Consume.
func (k *KeyTracker) Consume() bool {
	if !k.pending {
		return false
	}
	k.pending = false
	if k.state == KeyStateDownUnconsumed {
		k.state = KeyStateDownConsumed
	}
	return true
}
