package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/tonearm/tonearm/internal/artwork"
	"github.com/tonearm/tonearm/internal/catalog"
	"github.com/tonearm/tonearm/internal/config"
	"github.com/tonearm/tonearm/internal/control"
	"github.com/tonearm/tonearm/internal/coordinator"
	"github.com/tonearm/tonearm/internal/history"
	"github.com/tonearm/tonearm/internal/player"
	"github.com/tonearm/tonearm/internal/session"
)

const historyRetention = 90 * 24 * time.Hour

// Daemon wires the catalog, player, coordinator, and the desktop and
// socket surfaces together.
type Daemon struct {
	cfg    *config.Config
	logger zerolog.Logger

	cache    *catalog.Cache
	player   *player.MPV
	coord    *coordinator.Coordinator
	server   *control.Server
	mpris    *session.MPRISHandler
	store    *history.Store
	recorder *history.Recorder

	cancel func()
}

// controlsProxy breaks the construction cycle between the coordinator
// and the session surfaces that send commands back to it.
type controlsProxy struct {
	mu    sync.Mutex
	coord *coordinator.Coordinator
}

func (p *controlsProxy) set(c *coordinator.Coordinator) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.coord = c
}

func (p *controlsProxy) get() *coordinator.Coordinator {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.coord
}

func (p *controlsProxy) Play() {
	if c := p.get(); c != nil {
		c.Play()
	}
}

func (p *controlsProxy) Pause() {
	if c := p.get(); c != nil {
		c.Pause()
	}
}

func (p *controlsProxy) Stop() {
	if c := p.get(); c != nil {
		c.Stop()
	}
}

func (p *controlsProxy) SeekTo(pos time.Duration) {
	if c := p.get(); c != nil {
		c.SeekTo(pos)
	}
}

// processLifetime implements coordinator.Lifetime. When the daemon is
// configured to exit on idle, releasing the lifetime shuts it down.
type processLifetime struct {
	exitWhenIdle bool
	onIdle       func()
	logger       zerolog.Logger
}

func (l *processLifetime) Acquire() {
	l.logger.Debug().Msg("Playback lifetime acquired")
}

func (l *processLifetime) Release() {
	l.logger.Debug().Msg("Playback lifetime released")
	if l.exitWhenIdle && l.onIdle != nil {
		l.logger.Info().Msg("Idle timeout reached, exiting")
		l.onIdle()
	}
}

// New creates a Daemon from configuration.
func New(cfg *config.Config, logger zerolog.Logger) (*Daemon, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	d := &Daemon{
		cfg:    cfg,
		logger: logger.With().Str("component", "daemon").Logger(),
	}

	var source catalog.Source
	if strings.Contains(cfg.CatalogURL, "://") {
		source = catalog.NewHTTPSource(cfg.CatalogURL)
	} else {
		source = catalog.NewFileSource(cfg.CatalogURL)
	}
	d.cache = catalog.New(source, logger)

	d.player = player.NewMPV(cfg.MPVPath, filepath.Join(cfg.DataDir, "mpv.sock"), logger)

	proxy := &controlsProxy{}
	deps := coordinator.Deps{
		Lifetime: &processLifetime{
			exitWhenIdle: cfg.ExitWhenIdle,
			onIdle:       func() { d.shutdownRequested() },
			logger:       d.logger,
		},
		Noisy:   session.NewNoisyWatcher(proxy.Pause, logger),
		Artwork: artwork.New(d.cache, func(itemID string) { d.coord.ArtworkFetched(itemID) }, logger),
	}
	if cfg.MPRIS {
		d.mpris = session.NewMPRISHandler("tonearm", proxy, logger)
		deps.Session = d.mpris
	}
	if cfg.Notifications {
		deps.Presence = session.NewNotifier(cfg.DataDir, logger)
	}

	d.coord = coordinator.New(coordinator.Config{
		IdleTimeout: cfg.IdleTimeoutDuration(),
	}, d.cache, d.player, deps, logger)
	proxy.set(d.coord)

	if cfg.History {
		store, err := history.NewStore(filepath.Join(cfg.DataDir, "history.db"))
		if err != nil {
			return nil, fmt.Errorf("failed to open history: %w", err)
		}
		d.store = store
		d.recorder = history.NewRecorder(store, d.cache, logger)
	}

	var historySource control.HistorySource
	if d.store != nil {
		historySource = d.store
	}
	d.server = control.NewServer(cfg.SocketPath, d.cache, d.coord, historySource, logger)

	return d, nil
}

// shutdownRequested cancels the daemon's run context, if running.
func (d *Daemon) shutdownRequested() {
	if d.cancel != nil {
		d.cancel()
	}
}

// Run starts the daemon and blocks until shutdown signal received
func (d *Daemon) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.cancel = cancel

	// Handle first signal gracefully, second signal forces exit
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		d.logger.Info().Msg("Shutdown signal received, initiating graceful shutdown")
		cancel()

		<-sigChan
		d.logger.Warn().Msg("Second shutdown signal received, forcing exit")
		os.Exit(1)
	}()

	if err := d.run(ctx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

func (d *Daemon) run(ctx context.Context) error {
	d.logger.Info().Msg("Starting daemon")

	// A missing player is not fatal: browsing and status still work,
	// and play commands surface an error state.
	if err := d.player.Start(ctx); err != nil {
		d.logger.Warn().Err(err).Msg("Player unavailable, playback disabled")
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		d.coord.Run(ctx)
	}()

	var cancelRecorder func()
	if d.recorder != nil {
		cancelRecorder = d.coord.OnSnapshot(d.recorder.Handle)
	}

	if err := d.server.Start(); err != nil {
		cancel := cancelRecorder
		if cancel != nil {
			cancel()
		}
		return fmt.Errorf("failed to start control socket: %w", err)
	}

	// Warm the catalog in the background so the first browse or play
	// does not pay the fetch latency.
	d.cache.EnsureReady(func(bool) {})

	<-ctx.Done()

	d.server.Stop()
	if cancelRecorder != nil {
		cancelRecorder()
	}
	wg.Wait()

	d.logger.Info().Msg("Daemon stopped")
	return ctx.Err()
}

// Shutdown releases resources held by the daemon.
func (d *Daemon) Shutdown() error {
	d.logger.Info().Msg("Shutting down daemon")

	if err := d.player.Close(); err != nil {
		d.logger.Warn().Err(err).Msg("Player shutdown failed")
	}

	if d.recorder != nil {
		d.recorder.Close()
	}
	if d.store != nil {
		ctx := context.Background()
		if _, err := d.store.Cleanup(ctx, historyRetention); err != nil {
			d.logger.Warn().Err(err).Msg("Failed to cleanup history")
		}
		if err := d.store.Close(); err != nil {
			return fmt.Errorf("failed to close history: %w", err)
		}
	}

	return nil
}
