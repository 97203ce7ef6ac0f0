package player

import (
	"time"

	"github.com/tonearm/tonearm/internal/catalog"
)

// State represents the playback state of the underlying player.
type State int

const (
	Stopped State = iota // no media loaded, or playback stopped
	Playing              // media is playing
	Paused               // media is paused
)

// String returns a human-readable representation of the State.
func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return "unknown"
	}
}

// Callback receives playback lifecycle events from a Player.
//
// Callbacks may be invoked from the player's own goroutines, including
// synchronously from within a command call. Implementations must marshal
// the events onto their own serialized context before acting on them.
type Callback interface {
	// OnStateChanged is invoked whenever the player's State changes,
	// through commands or through events from the playback backend.
	OnStateChanged(state State)

	// OnCompletion is invoked when the current media finishes playing.
	OnCompletion()

	// OnError is invoked when the backend reports a playback failure.
	// The player is not stopped automatically.
	OnError(message string)
}

// Player is an opaque audio player. The coordinator drives it through
// the command methods and reacts to its Callback events; it makes no
// assumption about how audio is decoded or output.
type Player interface {
	// Play loads the item's source and starts playback from the
	// beginning, replacing any current media.
	Play(item *catalog.Item) error

	// Pause pauses playback, keeping the current media loaded.
	Pause() error

	// Stop stops playback and unloads the current media.
	Stop() error

	// SeekTo seeks to an absolute position within the current media.
	// It does not change the playback state.
	SeekTo(pos time.Duration) error

	// State returns the current playback state.
	State() State

	// IsPlaying reports whether media is actively playing.
	IsPlaying() bool

	// Position returns the current playback position. ok is false when
	// the player is not connected to a media backend and the position
	// is unknown.
	Position() (pos time.Duration, ok bool)

	// SetCallback registers the single event receiver. Must be called
	// before the first command.
	SetCallback(cb Callback)

	// Close releases the player and its backend resources.
	Close() error
}
