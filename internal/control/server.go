package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/tonearm/tonearm/internal/catalog"
	"github.com/tonearm/tonearm/internal/coordinator"
	"github.com/tonearm/tonearm/internal/history"
)

const catalogWait = 30 * time.Second

// Playback is the command surface the control server drives.
// *coordinator.Coordinator satisfies it.
type Playback interface {
	PlayByID(id string)
	Play()
	Pause()
	Stop()
	SeekTo(pos time.Duration)
	Snapshot() coordinator.Snapshot
}

// HistorySource supplies recent playback history. May be absent.
type HistorySource interface {
	Recent(ctx context.Context, limit int) ([]history.Play, error)
}

// Server answers control requests on a unix socket. Each connection is
// classified once at accept time: a peer whose uid matches the daemon's
// own uid is trusted and may browse the catalog; any other peer gets
// the empty browse root. Playback commands are honored either way, the
// same as hardware media keys.
type Server struct {
	path     string
	cache    *catalog.Cache
	playback Playback
	history  HistorySource
	logger   zerolog.Logger

	mu sync.Mutex
	ln net.Listener
	wg sync.WaitGroup
}

func NewServer(path string, cache *catalog.Cache, playback Playback, history HistorySource, logger zerolog.Logger) *Server {
	return &Server{
		path:     path,
		cache:    cache,
		playback: playback,
		history:  history,
		logger:   logger.With().Str("component", "control").Logger(),
	}
}

// Start begins listening. A stale socket file from a previous run is
// removed first.
func (s *Server) Start() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing stale socket: %w", err)
	}

	ln, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.path, err)
	}

	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	s.wg.Add(1)
	go s.acceptLoop(ln)

	s.logger.Info().Str("socket", s.path).Msg("Control socket listening")
	return nil
}

// Stop closes the listener and waits for in-flight connections.
func (s *Server) Stop() {
	s.mu.Lock()
	ln := s.ln
	s.ln = nil
	s.mu.Unlock()

	if ln != nil {
		ln.Close()
	}
	s.wg.Wait()
	os.Remove(s.path)
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				s.logger.Warn().Err(err).Msg("Accept failed")
			}
			return
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer conn.Close()
			s.handleConn(conn)
		}()
	}
}

func (s *Server) handleConn(conn net.Conn) {
	trusted := s.peerTrusted(conn)
	if !trusted {
		s.logger.Debug().Msg("Untrusted peer connected, browsing disabled")
	}

	for {
		var req Request
		if err := readFrame(conn, opRequest, &req); err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Debug().Err(err).Msg("Request read failed")
			}
			return
		}

		resp := s.handle(req, trusted)
		if err := writeFrame(conn, opResponse, resp); err != nil {
			s.logger.Debug().Err(err).Msg("Response write failed")
			return
		}
	}
}

// peerTrusted reports whether the connecting process runs as the same
// uid as the daemon, checked via SO_PEERCRED.
func (s *Server) peerTrusted(conn net.Conn) bool {
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		return false
	}
	raw, err := uc.SyscallConn()
	if err != nil {
		return false
	}

	var cred *unix.Ucred
	var credErr error
	if err := raw.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	}); err != nil {
		return false
	}
	if credErr != nil {
		return false
	}
	return cred.Uid == uint32(os.Getuid())
}

func (s *Server) handle(req Request, trusted bool) Response {
	switch req.Cmd {
	case CmdRoot:
		if !trusted {
			return Response{OK: true, Root: EmptyRootID}
		}
		return Response{OK: true, Root: RootID}

	case CmdChildren:
		if !trusted || req.Parent != RootID {
			return Response{OK: true, Items: []ItemInfo{}}
		}
		if !s.waitCatalog() {
			return Response{Error: "catalog unavailable"}
		}
		items := s.cache.AllItems()
		infos := make([]ItemInfo, 0, len(items))
		for _, item := range items {
			infos = append(infos, ItemInfo{
				ID:          item.ID,
				Title:       item.Title,
				Album:       item.Album,
				Artist:      item.Artist,
				Genre:       item.Genre,
				TrackNumber: item.TrackNumber,
				DurationMS:  item.Duration.Milliseconds(),
			})
		}
		return Response{OK: true, Items: infos}

	case CmdPlayFromID:
		if !s.waitCatalog() {
			return Response{Error: "catalog unavailable"}
		}
		s.playback.PlayByID(req.ID)
		return Response{OK: true}

	case CmdPlay:
		s.playback.Play()
		return Response{OK: true}

	case CmdPause:
		s.playback.Pause()
		return Response{OK: true}

	case CmdStop:
		s.playback.Stop()
		return Response{OK: true}

	case CmdSeek:
		s.playback.SeekTo(time.Duration(req.Position) * time.Millisecond)
		return Response{OK: true}

	case CmdStatus:
		status := statusInfo(s.playback.Snapshot())
		return Response{OK: true, Status: &status}

	case CmdHistory:
		if s.history == nil {
			return Response{Error: "history disabled"}
		}
		limit := req.Limit
		if limit <= 0 {
			limit = 20
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		plays, err := s.history.Recent(ctx, limit)
		if err != nil {
			return Response{Error: err.Error()}
		}
		infos := make([]PlayInfo, 0, len(plays))
		for _, p := range plays {
			infos = append(infos, PlayInfo{
				ItemID:    p.ItemID,
				Title:     p.Title,
				Artist:    p.Artist,
				Album:     p.Album,
				StartedAt: p.StartedAt.Unix(),
				PlayedMS:  p.Played.Milliseconds(),
				Completed: p.Completed,
			})
		}
		return Response{OK: true, Plays: infos}

	default:
		return Response{Error: fmt.Sprintf("unknown command %q", req.Cmd)}
	}
}

// waitCatalog blocks until the catalog is populated, or reports false
// if population fails or takes too long.
func (s *Server) waitCatalog() bool {
	done := make(chan bool, 1)
	s.cache.EnsureReady(func(ok bool) { done <- ok })
	select {
	case ok := <-done:
		return ok
	case <-time.After(catalogWait):
		return false
	}
}

func statusInfo(snap coordinator.Snapshot) StatusInfo {
	pos := int64(-1)
	if snap.Position != coordinator.PositionUnknown {
		pos = snap.Position.Milliseconds()
	}

	var actions []string
	if snap.Actions.Has(coordinator.ActionPlay) {
		actions = append(actions, "play")
	}
	if snap.Actions.Has(coordinator.ActionPlayFromID) {
		actions = append(actions, "play_from_id")
	}
	if snap.Actions.Has(coordinator.ActionPause) {
		actions = append(actions, "pause")
	}

	return StatusInfo{
		State:      snap.State.String(),
		ItemID:     snap.ItemID,
		PositionMS: pos,
		Error:      snap.Err,
		Actions:    actions,
	}
}
