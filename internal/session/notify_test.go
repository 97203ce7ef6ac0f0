package session

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/tonearm/tonearm/internal/coordinator"
)

func TestNotifierPost_NilItemIsNoOp(t *testing.T) {
	n := NewNotifier(t.TempDir(), zerolog.Nop())

	// No item means nothing to render; must return without touching
	// the bus.
	n.Post(nil, coordinator.Snapshot{State: coordinator.StatePaused})

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.conn != nil {
		t.Error("bus connection opened for an empty post")
	}
}
