package session

import (
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog"

	"github.com/tonearm/tonearm/internal/catalog"
	"github.com/tonearm/tonearm/internal/coordinator"
)

const (
	notifyBusName   = "org.freedesktop.Notifications"
	notifyPath      = "/org/freedesktop/Notifications"
	notifyInterface = "org.freedesktop.Notifications"

	fallbackIcon = "audio-x-generic"
)

// Notifier renders now-playing presence as a desktop notification. It
// implements coordinator.Presence. One notification id is reused across
// posts so the bubble updates in place instead of stacking. While the
// presence is foreground the notification is posted without a timeout,
// which notification daemons treat as resident.
type Notifier struct {
	cacheDir string
	logger   zerolog.Logger

	mu         sync.Mutex
	conn       *dbus.Conn
	id         uint32
	foreground bool
}

// NewNotifier creates a Notifier that writes notification icons under
// cacheDir. The session bus connection is established lazily on the
// first post.
func NewNotifier(cacheDir string, logger zerolog.Logger) *Notifier {
	return &Notifier{
		cacheDir: cacheDir,
		logger:   logger.With().Str("component", "notify").Logger(),
	}
}

func (n *Notifier) connect() (*dbus.Conn, error) {
	if n.conn != nil {
		return n.conn, nil
	}
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("connecting to session bus: %w", err)
	}
	n.conn = conn
	return conn, nil
}

// Post publishes or updates the now-playing notification for item. A
// nil item is a no-op.
func (n *Notifier) Post(item *catalog.Item, snap coordinator.Snapshot) {
	if item == nil {
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	conn, err := n.connect()
	if err != nil {
		n.logger.Debug().Err(err).Msg("Notification skipped")
		return
	}

	body := item.Artist
	if item.Album != "" {
		body = item.Artist + " · " + item.Album
	}
	if snap.State == coordinator.StatePaused {
		body += " (paused)"
	}

	timeout := int32(5000)
	if n.foreground {
		timeout = 0
	}

	var newID uint32
	call := conn.Object(notifyBusName, notifyPath).Call(
		notifyInterface+".Notify", 0,
		"tonearm", n.id, n.iconFor(item), item.Title, body,
		[]string{}, map[string]dbus.Variant{}, timeout,
	)
	if err := call.Store(&newID); err != nil {
		n.logger.Debug().Err(err).Msg("Notification post failed")
		return
	}
	n.id = newID
}

// Cancel dismisses the notification if one is visible.
func (n *Notifier) Cancel() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.conn == nil || n.id == 0 {
		return
	}
	call := n.conn.Object(notifyBusName, notifyPath).Call(
		notifyInterface+".CloseNotification", 0, n.id,
	)
	if call.Err != nil {
		n.logger.Debug().Err(call.Err).Msg("Notification close failed")
	}
	n.id = 0
}

// Foreground marks whether the presence should be resident. The next
// Post picks up the change.
func (n *Notifier) Foreground(active bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.foreground = active
}

// iconFor returns an icon hint for the notification: a cached PNG of
// the item's small bitmap when one has been fetched, a themed fallback
// otherwise.
func (n *Notifier) iconFor(item *catalog.Item) string {
	if item.ArtworkSmall == nil {
		return fallbackIcon
	}

	path := filepath.Join(n.cacheDir, "icon-"+item.ID+".png")
	if _, err := os.Stat(path); err == nil {
		return path
	}

	f, err := os.Create(path)
	if err != nil {
		n.logger.Debug().Err(err).Msg("Icon cache write failed")
		return fallbackIcon
	}
	defer f.Close()

	if err := png.Encode(f, item.ArtworkSmall); err != nil {
		n.logger.Debug().Err(err).Str("path", path).Msg("Icon encode failed")
		os.Remove(path)
		return fallbackIcon
	}
	return path
}
