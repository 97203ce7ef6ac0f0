package player

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tonearm/tonearm/internal/catalog"
)

type recordingCallback struct {
	mu          sync.Mutex
	states      []State
	completions int
	errs        []string
}

func (r *recordingCallback) OnStateChanged(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *recordingCallback) OnCompletion() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completions++
}

func (r *recordingCallback) OnError(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, msg)
}

func newTestMPV(t *testing.T) (*MPV, *recordingCallback) {
	t.Helper()
	m := NewMPV("mpv", "", zerolog.Nop())
	cb := &recordingCallback{}
	m.SetCallback(cb)
	return m, cb
}

func TestHandleProperty_TracksPositionAndDuration(t *testing.T) {
	m, _ := newTestMPV(t)
	m.mu.Lock()
	m.connected = true
	m.mu.Unlock()

	m.handleEvent(mpvEvent{Event: "property-change", ID: propTimePos,
		Data: json.RawMessage("12.5")})
	m.handleEvent(mpvEvent{Event: "property-change", ID: propDuration,
		Data: json.RawMessage("180")})

	pos, ok := m.Position()
	if !ok {
		t.Fatal("position unavailable")
	}
	if pos != 12500*time.Millisecond {
		t.Errorf("position = %v, want 12.5s", pos)
	}

	m.mu.Lock()
	dur := m.duration
	m.mu.Unlock()
	if dur != 3*time.Minute {
		t.Errorf("duration = %v, want 3m", dur)
	}
}

func TestHandleProperty_NullDataIsIgnored(t *testing.T) {
	m, _ := newTestMPV(t)

	m.handleEvent(mpvEvent{Event: "property-change", ID: propTimePos,
		Data: json.RawMessage("null")})

	m.mu.Lock()
	pos := m.position
	m.mu.Unlock()
	if pos != 0 {
		t.Errorf("position = %v after null property", pos)
	}
}

func TestHandleEndFile_EOFSignalsCompletion(t *testing.T) {
	m, cb := newTestMPV(t)
	m.mu.Lock()
	m.state = Playing
	m.mu.Unlock()

	m.handleEvent(mpvEvent{Event: "end-file", Reason: "eof"})

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.completions != 1 {
		t.Errorf("completions = %d, want 1", cb.completions)
	}
	if len(cb.states) != 1 || cb.states[0] != Stopped {
		t.Errorf("states = %v, want [stopped]", cb.states)
	}
	if len(cb.errs) != 0 {
		t.Errorf("errs = %v, want none", cb.errs)
	}
}

func TestHandleEvent_FailedReplySignalsError(t *testing.T) {
	m, cb := newTestMPV(t)

	m.handleEvent(mpvEvent{Error: "property unavailable", RequestID: 3})
	m.handleEvent(mpvEvent{Error: "success", RequestID: 4})

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if len(cb.errs) != 1 {
		t.Fatalf("errs = %v, want one entry", cb.errs)
	}
	if cb.errs[0] != "mpv: command failed: property unavailable" {
		t.Errorf("err = %q", cb.errs[0])
	}
}

func TestHandleEndFile_ErrorSignalsError(t *testing.T) {
	m, cb := newTestMPV(t)

	m.handleEvent(mpvEvent{Event: "end-file", Reason: "error"})

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if len(cb.errs) != 1 {
		t.Fatalf("errs = %v, want one entry", cb.errs)
	}
	if cb.completions != 0 {
		t.Errorf("completions = %d, want 0", cb.completions)
	}
}

func TestHandleEndFile_StopReasonIsSilent(t *testing.T) {
	m, cb := newTestMPV(t)

	m.handleEvent(mpvEvent{Event: "end-file", Reason: "stop"})

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.completions != 0 || len(cb.errs) != 0 || len(cb.states) != 0 {
		t.Errorf("unexpected callbacks: %+v", cb)
	}
}

func TestSend_WithoutConnectionFails(t *testing.T) {
	m, _ := newTestMPV(t)

	if err := m.Play(&catalog.Item{SourceURI: "http://x/a.mp3"}); err == nil {
		t.Error("expected error when mpv is not running")
	}
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		Stopped: "stopped",
		Playing: "playing",
		Paused:  "paused",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}
