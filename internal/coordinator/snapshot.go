package coordinator

import (
	"time"
)

// PlayState is the coordinator's logical playback state. It is derived
// from the player adapter's state plus the last reported error.
type PlayState int

const (
	StateIdle    PlayState = iota // no session has been active yet
	StatePlaying                  // actively playing
	StatePaused                   // paused, inactivity timer armed
	StateStopped                  // stopped after a previously active session
	StateError                    // a playback error is pending a fresh play
)

// String returns a human-readable representation of the PlayState.
func (s PlayState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Actions is the set of session commands currently allowed.
type Actions uint8

const (
	ActionPlay Actions = 1 << iota
	ActionPlayFromID
	ActionPause
)

// Has reports whether a contains all of the given actions.
func (a Actions) Has(actions Actions) bool {
	return a&actions == actions
}

// PositionUnknown is the Snapshot position when the player is not
// connected to a media backend.
const PositionUnknown = time.Duration(-1)

// Snapshot is the canonical publishable playback state.
type Snapshot struct {
	State    PlayState
	Position time.Duration // PositionUnknown when not available
	Err      string        // non-empty iff State == StateError
	ItemID   string        // active item, empty until the first play-by-id
	Actions  Actions
}
