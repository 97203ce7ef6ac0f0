package session

import (
	"sync"
	"testing"
	"time"

	"github.com/quarckster/go-mpris-server/pkg/types"
	"github.com/rs/zerolog"

	"github.com/tonearm/tonearm/internal/catalog"
	"github.com/tonearm/tonearm/internal/coordinator"
)

type fakeControls struct {
	mu       sync.Mutex
	commands []string
}

func (c *fakeControls) record(cmd string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commands = append(c.commands, cmd)
}

func (c *fakeControls) Play()  { c.record("play") }
func (c *fakeControls) Pause() { c.record("pause") }
func (c *fakeControls) Stop()  { c.record("stop") }
func (c *fakeControls) SeekTo(pos time.Duration) {
	c.record("seek:" + pos.String())
}

func (c *fakeControls) recorded() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.commands...)
}

func newTestHandler() (*MPRISHandler, *fakeControls) {
	controls := &fakeControls{}
	return NewMPRISHandler("tonearm", controls, zerolog.Nop()), controls
}

func TestPlayPause_TogglesOnState(t *testing.T) {
	m, controls := newTestHandler()

	m.SetPlaybackState(coordinator.Snapshot{State: coordinator.StatePlaying})
	if err := m.PlayPause(); err != nil {
		t.Fatalf("PlayPause: %v", err)
	}

	m.SetPlaybackState(coordinator.Snapshot{State: coordinator.StatePaused})
	if err := m.PlayPause(); err != nil {
		t.Fatalf("PlayPause: %v", err)
	}

	want := []string{"pause", "play"}
	got := controls.recorded()
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("commands = %v, want %v", got, want)
	}
}

func TestPlaybackStatus_MapsStates(t *testing.T) {
	m, _ := newTestHandler()

	cases := []struct {
		state coordinator.PlayState
		want  types.PlaybackStatus
	}{
		{coordinator.StatePlaying, types.PlaybackStatusPlaying},
		{coordinator.StatePaused, types.PlaybackStatusPaused},
		{coordinator.StateStopped, types.PlaybackStatusStopped},
		{coordinator.StateIdle, types.PlaybackStatusStopped},
		{coordinator.StateError, types.PlaybackStatusStopped},
	}
	for _, tc := range cases {
		m.SetPlaybackState(coordinator.Snapshot{State: tc.state})
		got, err := m.PlaybackStatus()
		if err != nil {
			t.Fatalf("PlaybackStatus(%v): %v", tc.state, err)
		}
		if got != tc.want {
			t.Errorf("PlaybackStatus(%v) = %q, want %q", tc.state, got, tc.want)
		}
	}
}

func TestMetadata_ReflectsCurrentItem(t *testing.T) {
	m, _ := newTestHandler()

	meta, err := m.Metadata()
	if err != nil {
		t.Fatalf("Metadata: %v", err)
	}
	if string(meta.TrackId) != noTrackObjectPath {
		t.Errorf("TrackId with no item = %q", meta.TrackId)
	}

	m.SetMetadata(&catalog.Item{
		ID:          "abc",
		Title:       "Song",
		Album:       "Album",
		Artist:      "Artist",
		Genre:       "Rock",
		TrackNumber: 3,
		Duration:    2 * time.Minute,
		ArtworkURI:  "http://x/cover.png",
	})

	meta, err = m.Metadata()
	if err != nil {
		t.Fatalf("Metadata: %v", err)
	}
	if string(meta.TrackId) != dbusTrackIDPrefix+"abc" {
		t.Errorf("TrackId = %q", meta.TrackId)
	}
	if meta.Title != "Song" || meta.Album != "Album" {
		t.Errorf("metadata = %+v", meta)
	}
	if len(meta.Artist) != 1 || meta.Artist[0] != "Artist" {
		t.Errorf("Artist = %v", meta.Artist)
	}
	if meta.Length != types.Microseconds(120_000_000) {
		t.Errorf("Length = %d", meta.Length)
	}
	if meta.ArtUrl != "http://x/cover.png" {
		t.Errorf("ArtUrl = %q", meta.ArtUrl)
	}
}

func TestSeek_RelativeToPositionAndClamped(t *testing.T) {
	m, controls := newTestHandler()

	m.SetPlaybackState(coordinator.Snapshot{
		State:    coordinator.StatePlaying,
		Position: 10 * time.Second,
	})
	if err := m.Seek(types.Microseconds(-30_000_000)); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if err := m.Seek(types.Microseconds(5_000_000)); err != nil {
		t.Fatalf("Seek: %v", err)
	}

	want := []string{"seek:0s", "seek:15s"}
	got := controls.recorded()
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("commands = %v, want %v", got, want)
	}
}

func TestSeek_UnknownPositionIsNoOp(t *testing.T) {
	m, controls := newTestHandler()

	m.SetPlaybackState(coordinator.Snapshot{
		State:    coordinator.StateStopped,
		Position: coordinator.PositionUnknown,
	})
	if err := m.Seek(types.Microseconds(1_000_000)); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if got := controls.recorded(); len(got) != 0 {
		t.Errorf("commands = %v, want none", got)
	}
}

func TestSetPosition_OnlyForCurrentTrack(t *testing.T) {
	m, controls := newTestHandler()

	m.SetMetadata(&catalog.Item{ID: "abc"})
	if err := m.SetPosition(dbusTrackIDPrefix+"other", types.Microseconds(1_000_000)); err != nil {
		t.Fatalf("SetPosition: %v", err)
	}
	if got := controls.recorded(); len(got) != 0 {
		t.Errorf("stale track id commanded a seek: %v", got)
	}

	if err := m.SetPosition(dbusTrackIDPrefix+"abc", types.Microseconds(3_000_000)); err != nil {
		t.Fatalf("SetPosition: %v", err)
	}
	if got := controls.recorded(); len(got) != 1 || got[0] != "seek:3s" {
		t.Errorf("commands = %v, want [seek:3s]", got)
	}
}

func TestCanPause_FollowsActions(t *testing.T) {
	m, _ := newTestHandler()

	m.SetPlaybackState(coordinator.Snapshot{
		Actions: coordinator.ActionPlay | coordinator.ActionPlayFromID,
	})
	if ok, _ := m.CanPause(); ok {
		t.Error("CanPause = true without the pause action")
	}

	m.SetPlaybackState(coordinator.Snapshot{
		Actions: coordinator.ActionPlay | coordinator.ActionPlayFromID | coordinator.ActionPause,
	})
	if ok, _ := m.CanPause(); !ok {
		t.Error("CanPause = false with the pause action")
	}
	if ok, _ := m.CanPlay(); !ok {
		t.Error("CanPlay = false with the play action")
	}
}
