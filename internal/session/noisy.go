package session

import (
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog"
)

const (
	login1Interface = "org.freedesktop.login1.Manager"
	login1Path      = "/org/freedesktop/login1"
)

// NoisyWatcher watches the system bus for PrepareForSleep and invokes
// onNoisy when the machine is about to suspend, so playback pauses
// instead of resuming mid-track with audio blasting when the lid opens.
// It implements coordinator.NoisyObserver. Register and Unregister are
// idempotent.
type NoisyWatcher struct {
	onNoisy func()
	logger  zerolog.Logger

	mu         sync.Mutex
	conn       *dbus.Conn
	signals    chan *dbus.Signal
	done       chan struct{}
	registered bool
}

func NewNoisyWatcher(onNoisy func(), logger zerolog.Logger) *NoisyWatcher {
	return &NoisyWatcher{
		onNoisy: onNoisy,
		logger:  logger.With().Str("component", "noisy").Logger(),
	}
}

// Register starts watching for the suspend signal. A second call while
// registered is a no-op.
func (w *NoisyWatcher) Register() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.registered {
		return
	}

	if w.conn == nil {
		conn, err := dbus.SystemBus()
		if err != nil {
			w.logger.Debug().Err(err).Msg("System bus unavailable, suspend watch disabled")
			return
		}
		w.conn = conn
	}

	if err := w.conn.AddMatchSignal(
		dbus.WithMatchObjectPath(login1Path),
		dbus.WithMatchInterface(login1Interface),
		dbus.WithMatchMember("PrepareForSleep"),
	); err != nil {
		w.logger.Debug().Err(err).Msg("Suspend signal match failed")
		return
	}

	w.signals = make(chan *dbus.Signal, 8)
	w.done = make(chan struct{})
	w.conn.Signal(w.signals)
	w.registered = true

	go w.watch(w.signals, w.done)
}

// Unregister stops watching. A call while not registered is a no-op.
func (w *NoisyWatcher) Unregister() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.registered {
		return
	}

	if err := w.conn.RemoveMatchSignal(
		dbus.WithMatchObjectPath(login1Path),
		dbus.WithMatchInterface(login1Interface),
		dbus.WithMatchMember("PrepareForSleep"),
	); err != nil {
		w.logger.Debug().Err(err).Msg("Suspend signal unmatch failed")
	}
	w.conn.RemoveSignal(w.signals)
	close(w.done)
	w.registered = false
}

func (w *NoisyWatcher) watch(signals chan *dbus.Signal, done chan struct{}) {
	for {
		select {
		case sig, ok := <-signals:
			if !ok {
				return
			}
			if sig.Name != login1Interface+".PrepareForSleep" || len(sig.Body) == 0 {
				continue
			}
			// Body[0] is true on the way into sleep, false on resume.
			if entering, _ := sig.Body[0].(bool); entering {
				w.logger.Debug().Msg("Suspend imminent, pausing playback")
				w.onNoisy()
			}
		case <-done:
			return
		}
	}
}
