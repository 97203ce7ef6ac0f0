package player

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tonearm/tonearm/internal/catalog"
)

// Property observation ids on the mpv IPC connection.
const (
	propTimePos  = 1
	propDuration = 2
)

// MPV drives an mpv subprocess over its JSON IPC socket. mpv is started
// idle with video disabled; media is loaded per Play call.
type MPV struct {
	binary     string
	socketPath string
	logger     zerolog.Logger

	mu        sync.Mutex
	cmd       *exec.Cmd
	conn      net.Conn
	cb        Callback
	state     State
	position  time.Duration
	duration  time.Duration
	connected bool
	reqID     int64
}

// NewMPV creates an mpv-backed Player. binary is the mpv executable
// ("mpv" to use PATH); socketPath is where the IPC socket is created.
func NewMPV(binary, socketPath string, logger zerolog.Logger) *MPV {
	if binary == "" {
		binary = "mpv"
	}
	return &MPV{
		binary:     binary,
		socketPath: socketPath,
		logger:     logger.With().Str("component", "mpv").Logger(),
	}
}

// SetCallback registers the event receiver.
func (m *MPV) SetCallback(cb Callback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cb = cb
}

// Start launches the mpv subprocess and connects to its IPC socket.
func (m *MPV) Start(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, m.binary,
		"--idle=yes",
		"--no-video",
		"--no-terminal",
		"--input-ipc-server="+m.socketPath,
	)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start mpv: %w", err)
	}

	conn, err := m.dialSocket(ctx)
	if err != nil {
		_ = cmd.Process.Kill()
		return fmt.Errorf("failed to connect to mpv socket: %w", err)
	}

	m.mu.Lock()
	m.cmd = cmd
	m.conn = conn
	m.connected = true
	m.mu.Unlock()

	go m.readLoop(conn)

	// Observe position and duration so Position() stays current.
	if err := m.send("observe_property", propTimePos, "time-pos"); err != nil {
		return err
	}
	return m.send("observe_property", propDuration, "duration")
}

// dialSocket retries until mpv has created its IPC socket.
func (m *MPV) dialSocket(ctx context.Context) (net.Conn, error) {
	var lastErr error
	for i := 0; i < 50; i++ {
		conn, err := net.DialTimeout("unix", m.socketPath, time.Second)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
	return nil, lastErr
}

// Play loads and plays the item's source, replacing any current media.
func (m *MPV) Play(item *catalog.Item) error {
	if err := m.send("loadfile", item.SourceURI, "replace"); err != nil {
		return err
	}
	if err := m.send("set_property", "pause", false); err != nil {
		return err
	}
	m.setState(Playing)
	return nil
}

// Pause pauses playback.
func (m *MPV) Pause() error {
	if err := m.send("set_property", "pause", true); err != nil {
		return err
	}
	m.setState(Paused)
	return nil
}

// Stop stops playback and unloads the current media.
func (m *MPV) Stop() error {
	if err := m.send("stop"); err != nil {
		return err
	}
	m.mu.Lock()
	m.position = 0
	m.duration = 0
	m.mu.Unlock()
	m.setState(Stopped)
	return nil
}

// SeekTo seeks to an absolute position in the current media.
func (m *MPV) SeekTo(pos time.Duration) error {
	return m.send("seek", pos.Seconds(), "absolute")
}

// State returns the current playback state.
func (m *MPV) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsPlaying reports whether media is actively playing.
func (m *MPV) IsPlaying() bool {
	return m.State() == Playing
}

// Position returns the last observed playback position.
func (m *MPV) Position() (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return 0, false
	}
	return m.position, true
}

// Close shuts down the mpv subprocess.
func (m *MPV) Close() error {
	m.mu.Lock()
	conn := m.conn
	cmd := m.cmd
	m.conn = nil
	m.connected = false
	m.mu.Unlock()

	if conn != nil {
		_ = m.send("quit")
		_ = conn.Close()
	}
	if cmd != nil {
		return cmd.Wait()
	}
	return nil
}

func (m *MPV) setState(s State) {
	m.mu.Lock()
	changed := m.state != s
	m.state = s
	cb := m.cb
	m.mu.Unlock()

	if changed && cb != nil {
		cb.OnStateChanged(s)
	}
}

func (m *MPV) send(args ...any) error {
	m.mu.Lock()
	conn := m.conn
	m.reqID++
	id := m.reqID
	m.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("mpv is not running")
	}

	payload, err := json.Marshal(map[string]any{
		"command":    args,
		"request_id": id,
	})
	if err != nil {
		return err
	}
	payload = append(payload, '\n')
	if _, err := conn.Write(payload); err != nil {
		return fmt.Errorf("failed to send mpv command: %w", err)
	}
	return nil
}

// mpvEvent is a message from mpv's IPC connection, covering both command
// replies and asynchronous events.
type mpvEvent struct {
	Event     string          `json:"event"`
	ID        int             `json:"id"`
	Name      string          `json:"name"`
	Data      json.RawMessage `json:"data"`
	Reason    string          `json:"reason"`
	Error     string          `json:"error"`
	RequestID int64           `json:"request_id"`
}

func (m *MPV) readLoop(conn net.Conn) {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var ev mpvEvent
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			m.logger.Debug().Err(err).Msg("Unparseable mpv message")
			continue
		}
		m.handleEvent(ev)
	}

	m.mu.Lock()
	m.connected = false
	m.mu.Unlock()
	m.logger.Debug().Msg("mpv connection closed")
}

func (m *MPV) handleEvent(ev mpvEvent) {
	switch {
	case ev.Event == "property-change":
		m.handleProperty(ev)
	case ev.Event == "end-file":
		m.handleEndFile(ev)
	case ev.Event == "" && ev.Error != "" && ev.Error != "success":
		m.logger.Warn().Str("error", ev.Error).Int64("request_id", ev.RequestID).
			Msg("mpv command failed")
		m.mu.Lock()
		cb := m.cb
		m.mu.Unlock()
		if cb != nil {
			cb.OnError("mpv: command failed: " + ev.Error)
		}
	}
}

func (m *MPV) handleProperty(ev mpvEvent) {
	var seconds float64
	if len(ev.Data) == 0 || json.Unmarshal(ev.Data, &seconds) != nil {
		return
	}
	m.mu.Lock()
	switch ev.ID {
	case propTimePos:
		m.position = time.Duration(seconds * float64(time.Second))
	case propDuration:
		m.duration = time.Duration(seconds * float64(time.Second))
	}
	m.mu.Unlock()
}

func (m *MPV) handleEndFile(ev mpvEvent) {
	m.mu.Lock()
	cb := m.cb
	m.mu.Unlock()

	switch ev.Reason {
	case "eof":
		m.setState(Stopped)
		if cb != nil {
			cb.OnCompletion()
		}
	case "error":
		if cb != nil {
			cb.OnError("mpv: failed to play media")
		}
	case "stop", "quit":
		// initiated by us; Stop already updated state
	default:
		m.logger.Debug().Str("reason", ev.Reason).Msg("end-file")
	}
}
