package session

import (
	"errors"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/quarckster/go-mpris-server/pkg/events"
	"github.com/quarckster/go-mpris-server/pkg/server"
	"github.com/quarckster/go-mpris-server/pkg/types"
	"github.com/rs/zerolog"

	"github.com/tonearm/tonearm/internal/catalog"
	"github.com/tonearm/tonearm/internal/coordinator"
)

const (
	dbusTrackIDPrefix = "/Tonearm/Track/"
	noTrackObjectPath = "/org/mpris/MediaPlayer2/TrackList/NoTrack"
)

var (
	_ types.OrgMprisMediaPlayer2Adapter       = (*MPRISHandler)(nil)
	_ types.OrgMprisMediaPlayer2PlayerAdapter = (*MPRISHandler)(nil)
)

var errNotSupported = errors.New("not supported")

// Controls is the subset of playback commands the desktop session can
// issue. *coordinator.Coordinator satisfies it.
type Controls interface {
	Play()
	Pause()
	Stop()
	SeekTo(pos time.Duration)
}

// MPRISHandler exposes the playback session on the session bus as an
// org.mpris.MediaPlayer2 player. It implements coordinator.Session:
// metadata and playback-state publications from the coordinator are
// mirrored to D-Bus, and incoming MPRIS commands are forwarded to the
// Controls.
type MPRISHandler struct {
	// Called when a remote asks the player to quit. May be nil.
	OnQuit func() error

	controls Controls
	s        *server.Server
	evt      *events.EventHandler
	logger   zerolog.Logger

	mu       sync.Mutex
	item     *catalog.Item
	snap     coordinator.Snapshot
	listenOn bool
	connErr  error
}

// NewMPRISHandler creates a handler registered under
// org.mpris.MediaPlayer2.<playerName>. It does not touch the bus until
// the session first becomes active.
func NewMPRISHandler(playerName string, controls Controls, logger zerolog.Logger) *MPRISHandler {
	m := &MPRISHandler{
		controls: controls,
		logger:   logger.With().Str("component", "mpris").Logger(),
		connErr:  errors.New("not started"),
	}
	m.s = server.NewServer(playerName, m, m)
	m.evt = events.NewEventHandler(m.s)
	return m
}

// coordinator.Session implementation

func (m *MPRISHandler) SetMetadata(item *catalog.Item) {
	m.mu.Lock()
	m.item = item
	connected := m.connErr == nil
	m.mu.Unlock()

	if connected {
		m.evt.Player.OnTitle()
	}
}

func (m *MPRISHandler) SetPlaybackState(snap coordinator.Snapshot) {
	m.mu.Lock()
	m.snap = snap
	connected := m.connErr == nil
	m.mu.Unlock()

	if connected {
		m.evt.Player.OnPlayPause()
	}
}

func (m *MPRISHandler) SetActive(active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if active && !m.listenOn {
		m.listenOn = true
		m.connErr = nil
		go func() {
			if err := m.s.Listen(); err != nil {
				m.logger.Warn().Err(err).Msg("MPRIS bus connection failed")
				m.mu.Lock()
				m.connErr = err
				m.mu.Unlock()
			}
		}()
	}
}

func (m *MPRISHandler) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.listenOn && m.connErr == nil {
		m.s.Stop()
		m.connErr = errors.New("stopped")
	}
	m.listenOn = false
}

func (m *MPRISHandler) current() (*catalog.Item, coordinator.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.item, m.snap
}

// OrgMprisMediaPlayer2Adapter implementation

func (m *MPRISHandler) Identity() (string, error) {
	return "Tonearm", nil
}

func (m *MPRISHandler) CanQuit() (bool, error) {
	return m.OnQuit != nil, nil
}

func (m *MPRISHandler) Quit() error {
	if m.OnQuit != nil {
		return m.OnQuit()
	}
	return errNotSupported
}

func (m *MPRISHandler) CanRaise() (bool, error) { return false, nil }

func (m *MPRISHandler) Raise() error { return errNotSupported }

func (m *MPRISHandler) HasTrackList() (bool, error) { return false, nil }

func (m *MPRISHandler) SupportedUriSchemes() ([]string, error) { return nil, nil }

func (m *MPRISHandler) SupportedMimeTypes() ([]string, error) { return nil, nil }

// OrgMprisMediaPlayer2PlayerAdapter implementation

func (m *MPRISHandler) Next() error { return errNotSupported }

func (m *MPRISHandler) Previous() error { return errNotSupported }

func (m *MPRISHandler) Pause() error {
	m.controls.Pause()
	return nil
}

func (m *MPRISHandler) PlayPause() error {
	_, snap := m.current()
	if snap.State == coordinator.StatePlaying {
		m.controls.Pause()
	} else {
		m.controls.Play()
	}
	return nil
}

func (m *MPRISHandler) Stop() error {
	m.controls.Stop()
	return nil
}

func (m *MPRISHandler) Play() error {
	m.controls.Play()
	return nil
}

func (m *MPRISHandler) Seek(offset types.Microseconds) error {
	_, snap := m.current()
	if snap.Position == coordinator.PositionUnknown {
		return nil
	}
	pos := snap.Position + time.Duration(offset)*time.Microsecond
	if pos < 0 {
		pos = 0
	}
	m.controls.SeekTo(pos)
	return nil
}

func (m *MPRISHandler) SetPosition(trackID string, position types.Microseconds) error {
	item, _ := m.current()
	if item != nil && trackObjectPath(item.ID) == trackID {
		m.controls.SeekTo(time.Duration(position) * time.Microsecond)
	}
	return nil
}

func (m *MPRISHandler) OpenUri(uri string) error { return errNotSupported }

func (m *MPRISHandler) PlaybackStatus() (types.PlaybackStatus, error) {
	_, snap := m.current()
	switch snap.State {
	case coordinator.StatePlaying:
		return types.PlaybackStatusPlaying, nil
	case coordinator.StatePaused:
		return types.PlaybackStatusPaused, nil
	default:
		return types.PlaybackStatusStopped, nil
	}
}

func (m *MPRISHandler) Rate() (float64, error) { return 1, nil }

func (m *MPRISHandler) SetRate(float64) error { return errNotSupported }

func (m *MPRISHandler) Metadata() (types.Metadata, error) {
	item, _ := m.current()
	if item == nil {
		return types.Metadata{TrackId: dbus.ObjectPath(noTrackObjectPath)}, nil
	}
	return types.Metadata{
		TrackId:     dbus.ObjectPath(trackObjectPath(item.ID)),
		Length:      durationToMicroseconds(item.Duration),
		Title:       item.Title,
		Album:       item.Album,
		Artist:      []string{item.Artist},
		Genre:       []string{item.Genre},
		TrackNumber: item.TrackNumber,
		ArtUrl:      item.ArtworkURI,
	}, nil
}

func (m *MPRISHandler) Volume() (float64, error) { return 1, nil }

func (m *MPRISHandler) SetVolume(float64) error { return errNotSupported }

func (m *MPRISHandler) Position() (int64, error) {
	_, snap := m.current()
	if snap.Position == coordinator.PositionUnknown {
		return 0, nil
	}
	return int64(durationToMicroseconds(snap.Position)), nil
}

func (m *MPRISHandler) MinimumRate() (float64, error) { return 1, nil }

func (m *MPRISHandler) MaximumRate() (float64, error) { return 1, nil }

func (m *MPRISHandler) CanGoNext() (bool, error) { return false, nil }

func (m *MPRISHandler) CanGoPrevious() (bool, error) { return false, nil }

func (m *MPRISHandler) CanPlay() (bool, error) {
	_, snap := m.current()
	return snap.Actions.Has(coordinator.ActionPlay), nil
}

func (m *MPRISHandler) CanPause() (bool, error) {
	_, snap := m.current()
	return snap.Actions.Has(coordinator.ActionPause), nil
}

func (m *MPRISHandler) CanSeek() (bool, error) { return true, nil }

func (m *MPRISHandler) CanControl() (bool, error) { return true, nil }

func trackObjectPath(id string) string {
	return dbusTrackIDPrefix + id
}

func durationToMicroseconds(d time.Duration) types.Microseconds {
	return types.Microseconds(d / time.Microsecond)
}
