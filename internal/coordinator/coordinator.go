package coordinator

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tonearm/tonearm/internal/catalog"
	"github.com/tonearm/tonearm/internal/player"
)

// DefaultIdleTimeout is how long the coordinator stays paused before it
// releases its background lifetime.
const DefaultIdleTimeout = 30 * time.Second

// Session is the control-surface publisher for metadata and state, e.g.
// an MPRIS handler. Implementations are invoked from the coordinator's
// serialized context and must not call back into the coordinator
// synchronously.
type Session interface {
	SetMetadata(item *catalog.Item)
	SetPlaybackState(snap Snapshot)
	SetActive(active bool)
	Release()
}

// Presence manages the notification presence tied to playback state.
// Foreground(true) is held only while actively playing.
type Presence interface {
	// Post shows or refreshes the notification for the item. The item
	// may have no artwork yet; implementations use a placeholder.
	Post(item *catalog.Item, snap Snapshot)
	Cancel()
	Foreground(active bool)
}

// NoisyObserver watches for the external audio-becoming-noisy signal.
// The coordinator keeps it registered only while playing.
type NoisyObserver interface {
	Register()
	Unregister()
}

// Lifetime pins the hosting process for background playback. Acquire is
// called when playback first starts; Release when the coordinator has
// been idle past the inactivity window.
type Lifetime interface {
	Acquire()
	Release()
}

// ArtworkFetcher fetches missing artwork asynchronously. A completed
// fetch reports back through Coordinator.ArtworkFetched.
type ArtworkFetcher interface {
	Fetch(itemID, artworkURI string)
}

// Config holds coordinator configuration.
type Config struct {
	// IdleTimeout is the inactivity window armed on pause.
	// DefaultIdleTimeout when zero.
	IdleTimeout time.Duration
}

// Deps are the coordinator's collaborators. Nil fields are replaced with
// no-op implementations.
type Deps struct {
	Session  Session
	Presence Presence
	Noisy    NoisyObserver
	Lifetime Lifetime
	Artwork  ArtworkFetcher
}

// Coordinator is the session-facing playback state machine. It owns the
// current item, derives the publishable state snapshot after every
// command and player event, manages the inactivity timer and the
// background lifetime, and triggers artwork enrichment.
//
// All state is confined to a single goroutine: commands, player
// callbacks, timer fires and artwork completions are marshaled onto an
// internal op channel and processed in arrival order by Run. One state
// publication, including its presence side effects, completes before the
// next op is handled.
type Coordinator struct {
	cache  *catalog.Cache
	player player.Player
	deps   Deps
	logger zerolog.Logger

	idleTimeout time.Duration

	ops  chan func()
	quit chan struct{}

	// Session state below is touched only from the Run goroutine.
	currentID         string
	lastErr           string
	lastKnownPos      time.Duration
	started           bool // background lifetime acquired
	sessionActive     bool
	sessionEverActive bool
	idleTimer         *time.Timer

	observers    map[int]func(Snapshot)
	nextObserver int
}

// New creates a Coordinator. Run must be called before commands have any
// effect. The coordinator registers itself as the player's callback.
func New(cfg Config, cache *catalog.Cache, p player.Player, deps Deps, logger zerolog.Logger) *Coordinator {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if deps.Session == nil {
		deps.Session = nopSession{}
	}
	if deps.Presence == nil {
		deps.Presence = nopPresence{}
	}
	if deps.Noisy == nil {
		deps.Noisy = nopNoisy{}
	}
	if deps.Lifetime == nil {
		deps.Lifetime = nopLifetime{}
	}
	if deps.Artwork == nil {
		deps.Artwork = nopArtwork{}
	}

	c := &Coordinator{
		cache:        cache,
		player:       p,
		deps:         deps,
		logger:       logger.With().Str("component", "coordinator").Logger(),
		idleTimeout:  cfg.IdleTimeout,
		lastKnownPos: PositionUnknown,
		ops:          make(chan func(), 64),
		quit:         make(chan struct{}),
		observers:    make(map[int]func(Snapshot)),
	}
	p.SetCallback(c)
	return c
}

// Run processes ops until ctx is cancelled, then tears the session down.
func (c *Coordinator) Run(ctx context.Context) {
	c.logger.Debug().Dur("idle_timeout", c.idleTimeout).Msg("Coordinator running")
	c.updateState("")

	for {
		select {
		case <-ctx.Done():
			c.teardown()
			close(c.quit)
			c.logger.Debug().Msg("Coordinator stopped")
			return
		case op := <-c.ops:
			op()
		}
	}
}

func (c *Coordinator) dispatch(op func()) {
	select {
	case c.ops <- op:
	case <-c.quit:
	}
}

// PlayByID sets the current item and starts playback. The catalog must
// already be ready; the coordinator does not trigger population. An
// unknown id is a silent no-op.
func (c *Coordinator) PlayByID(id string) {
	c.dispatch(func() {
		if _, ok := c.cache.Lookup(id); !ok {
			c.logger.Debug().Str("id", id).Msg("Ignoring play for unknown item")
			return
		}
		if id != c.currentID {
			c.lastKnownPos = PositionUnknown
		}
		c.currentID = id
		c.handlePlay()
	})
}

// Play resumes playback of the current item. No-op when no item has been
// selected yet.
func (c *Coordinator) Play() {
	c.dispatch(c.handlePlay)
}

// Pause pauses playback and arms the inactivity timer.
func (c *Coordinator) Pause() {
	c.dispatch(c.handlePause)
}

// Stop stops playback and runs the resource-reclaim check immediately.
func (c *Coordinator) Stop() {
	c.dispatch(c.handleStop)
}

// SeekTo forwards an absolute seek to the player. It does not alter the
// playback state.
func (c *Coordinator) SeekTo(pos time.Duration) {
	c.dispatch(func() {
		if err := c.player.SeekTo(pos); err != nil {
			c.logger.Debug().Err(err).Msg("Seek failed")
		}
	})
}

// Snapshot returns the current derived state. Returns an idle snapshot
// after shutdown.
func (c *Coordinator) Snapshot() Snapshot {
	reply := make(chan Snapshot, 1)
	c.dispatch(func() { reply <- c.deriveSnapshot() })
	select {
	case snap := <-reply:
		return snap
	case <-c.quit:
		return Snapshot{State: StateIdle, Position: PositionUnknown, Actions: ActionPlay | ActionPlayFromID}
	}
}

// CurrentItem returns the current item, if one is set and still present
// in the catalog.
func (c *Coordinator) CurrentItem() (*catalog.Item, bool) {
	reply := make(chan string, 1)
	c.dispatch(func() { reply <- c.currentID })
	select {
	case id := <-reply:
		if id == "" {
			return nil, false
		}
		return c.cache.Lookup(id)
	case <-c.quit:
		return nil, false
	}
}

// OnSnapshot registers an observer for state publications. The returned
// function unregisters it; both are safe to call from within a delivery.
func (c *Coordinator) OnSnapshot(fn func(Snapshot)) (cancel func()) {
	id := -1
	done := make(chan struct{})
	c.dispatch(func() {
		id = c.nextObserver
		c.nextObserver++
		c.observers[id] = fn
		close(done)
	})
	return func() {
		select {
		case <-done:
		case <-c.quit:
			return
		}
		c.dispatch(func() { delete(c.observers, id) })
	}
}

// ArtworkFetched reports a completed artwork fetch. The catalog entry
// has already been replaced; if the item is still current, metadata and
// notification are re-published so they pick up the new artwork. A stale
// completion is discarded.
func (c *Coordinator) ArtworkFetched(itemID string) {
	c.dispatch(func() {
		if itemID != c.currentID {
			c.logger.Debug().Str("id", itemID).Msg("Discarding stale artwork result")
			return
		}
		item, ok := c.cache.Lookup(itemID)
		if !ok {
			return
		}
		c.deps.Session.SetMetadata(item)
		c.deps.Presence.Post(item, c.deriveSnapshot())
	})
}

// OnStateChanged implements player.Callback.
func (c *Coordinator) OnStateChanged(player.State) {
	c.dispatch(func() { c.updateState("") })
}

// OnCompletion implements player.Callback. There is no play queue, so a
// finished item simply stops playback; no auto-advance.
func (c *Coordinator) OnCompletion() {
	c.dispatch(c.handleStop)
}

// OnError implements player.Callback.
func (c *Coordinator) OnError(message string) {
	c.dispatch(func() { c.updateState(message) })
}

func (c *Coordinator) handlePlay() {
	if c.currentID == "" {
		return
	}
	c.cancelIdleTimer()
	c.lastErr = ""

	if !c.started {
		c.logger.Debug().Msg("Acquiring background lifetime")
		c.deps.Lifetime.Acquire()
		c.started = true
	}
	if !c.sessionActive {
		c.deps.Session.SetActive(true)
		c.sessionActive = true
		c.sessionEverActive = true
	}

	c.publishMetadata()

	item, ok := c.cache.Lookup(c.currentID)
	if !ok {
		return
	}
	c.logger.Info().Str("id", item.ID).Str("title", item.Title).Msg("Playing")
	if err := c.player.Play(item); err != nil {
		c.updateState(err.Error())
	}
}

func (c *Coordinator) handlePause() {
	if !c.player.IsPlaying() {
		return
	}
	if err := c.player.Pause(); err != nil {
		c.updateState(err.Error())
		return
	}
	c.armIdleTimer()
}

func (c *Coordinator) handleStop() {
	if err := c.player.Stop(); err != nil {
		c.logger.Warn().Err(err).Msg("Player stop failed")
	}
	c.cancelIdleTimer()
	// The reclaim check that would normally wait for the inactivity
	// window runs immediately on stop.
	c.reclaimIfIdle()
	c.updateState("")
}

// publishMetadata publishes the current item as session metadata and
// triggers artwork enrichment when the bitmap is missing. Publication is
// never blocked on artwork; the notification goes out with a placeholder.
func (c *Coordinator) publishMetadata() {
	item, ok := c.cache.Lookup(c.currentID)
	if !ok {
		return
	}
	c.deps.Session.SetMetadata(item)

	if item.ArtworkLarge == nil && item.ArtworkURI != "" {
		c.deps.Artwork.Fetch(item.ID, item.ArtworkURI)
		c.deps.Presence.Post(item, c.deriveSnapshot())
	}
}

// updateState derives and publishes the state snapshot, then applies the
// presence side effects keyed on the resulting logical state. errMsg, if
// non-empty, puts the session in the error state until a fresh play.
func (c *Coordinator) updateState(errMsg string) {
	if errMsg != "" {
		c.lastErr = errMsg
	}
	snap := c.deriveSnapshot()

	if snap.State != StatePaused {
		c.cancelIdleTimer()
	}

	c.deps.Session.SetPlaybackState(snap)
	c.notifyObservers(snap)

	item, _ := c.cache.Lookup(c.currentID)
	switch snap.State {
	case StatePlaying:
		if item != nil {
			c.deps.Presence.Post(item, snap)
		}
		c.deps.Presence.Foreground(true)
		c.deps.Noisy.Register()
	case StatePaused:
		if item != nil {
			c.deps.Presence.Post(item, snap)
		}
		c.deps.Presence.Foreground(false)
		c.deps.Noisy.Unregister()
	default:
		c.deps.Presence.Cancel()
		c.deps.Presence.Foreground(false)
		c.deps.Noisy.Unregister()
	}

	c.logger.Debug().
		Stringer("state", snap.State).
		Str("item", snap.ItemID).
		Msg("Published state")
}

func (c *Coordinator) deriveSnapshot() Snapshot {
	pos := c.lastKnownPos
	if p, ok := c.player.Position(); ok {
		pos = p
		c.lastKnownPos = p
	}

	actions := ActionPlay | ActionPlayFromID
	if c.player.IsPlaying() {
		actions |= ActionPause
	}

	state := c.logicalState()
	snap := Snapshot{
		State:    state,
		Position: pos,
		ItemID:   c.currentID,
		Actions:  actions,
	}
	if state == StateError {
		snap.Err = c.lastErr
	}
	return snap
}

func (c *Coordinator) logicalState() PlayState {
	if c.lastErr != "" {
		return StateError
	}
	switch c.player.State() {
	case player.Playing:
		return StatePlaying
	case player.Paused:
		return StatePaused
	}
	if c.sessionEverActive {
		return StateStopped
	}
	return StateIdle
}

func (c *Coordinator) armIdleTimer() {
	c.cancelIdleTimer()
	c.idleTimer = time.AfterFunc(c.idleTimeout, func() {
		c.dispatch(func() {
			c.idleTimer = nil
			c.reclaimIfIdle()
		})
	})
}

func (c *Coordinator) cancelIdleTimer() {
	if c.idleTimer != nil {
		c.idleTimer.Stop()
		c.idleTimer = nil
	}
}

// reclaimIfIdle releases the background lifetime when nothing is
// playing. Idempotent: releasing an already-released lifetime is a no-op.
func (c *Coordinator) reclaimIfIdle() {
	if c.player.IsPlaying() {
		return
	}
	if !c.started {
		return
	}
	c.logger.Debug().Msg("Releasing background lifetime")
	c.deps.Lifetime.Release()
	c.started = false
}

func (c *Coordinator) teardown() {
	c.cancelIdleTimer()
	if err := c.player.Stop(); err != nil {
		c.logger.Debug().Err(err).Msg("Player stop during teardown")
	}
	c.reclaimIfIdle()
	c.deps.Presence.Cancel()
	c.deps.Presence.Foreground(false)
	c.deps.Noisy.Unregister()
	if c.sessionActive {
		c.deps.Session.SetActive(false)
		c.sessionActive = false
	}
	c.deps.Session.Release()
}

type nopSession struct{}

func (nopSession) SetMetadata(*catalog.Item) {}
func (nopSession) SetPlaybackState(Snapshot) {}
func (nopSession) SetActive(bool)            {}
func (nopSession) Release()                  {}

type nopPresence struct{}

func (nopPresence) Post(*catalog.Item, Snapshot) {}
func (nopPresence) Cancel()                      {}
func (nopPresence) Foreground(bool)              {}

type nopNoisy struct{}

func (nopNoisy) Register()   {}
func (nopNoisy) Unregister() {}

type nopLifetime struct{}

func (nopLifetime) Acquire() {}
func (nopLifetime) Release() {}

type nopArtwork struct{}

func (nopArtwork) Fetch(string, string) {}
