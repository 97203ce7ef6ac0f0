package history

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tonearm/tonearm/internal/catalog"
	"github.com/tonearm/tonearm/internal/coordinator"
)

// completionSlack is how close to the item's declared duration a play
// must get to count as completed.
const completionSlack = 2 * time.Second

// Recorder turns the coordinator's snapshot stream into history rows.
// It opens a row when playback of an item starts, accrues listened time
// across pause cycles, and finalizes the row when playback ends or the
// item changes. Store failures are logged and absorbed; playback never
// depends on history.
type Recorder struct {
	store  *Store
	cache  *catalog.Cache
	logger zerolog.Logger

	mu           sync.Mutex
	rowID        int64
	itemID       string
	playingSince time.Time
	accrued      time.Duration
}

func NewRecorder(store *Store, cache *catalog.Cache, logger zerolog.Logger) *Recorder {
	return &Recorder{
		store:  store,
		cache:  cache,
		logger: logger.With().Str("component", "history").Logger(),
	}
}

// Handle consumes one playback snapshot. Wire it to the coordinator's
// snapshot observer.
func (r *Recorder) Handle(snap coordinator.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	switch snap.State {
	case coordinator.StatePlaying:
		if r.rowID == 0 || r.itemID != snap.ItemID {
			r.finishLocked(now, false)
			r.startLocked(snap.ItemID, now)
		} else if r.playingSince.IsZero() {
			r.playingSince = now
		}
	case coordinator.StatePaused:
		if !r.playingSince.IsZero() {
			r.accrued += now.Sub(r.playingSince)
			r.playingSince = time.Time{}
		}
	default:
		r.finishLocked(now, snap.State == coordinator.StateStopped)
	}
}

// Close finalizes any in-flight row.
func (r *Recorder) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finishLocked(time.Now(), false)
}

func (r *Recorder) startLocked(itemID string, now time.Time) {
	item, ok := r.cache.Lookup(itemID)
	if !ok {
		return
	}

	id, err := r.store.Add(context.Background(), Play{
		ItemID:    itemID,
		Title:     item.Title,
		Artist:    item.Artist,
		Album:     item.Album,
		StartedAt: now,
	})
	if err != nil {
		r.logger.Warn().Err(err).Str("item", itemID).Msg("Failed to record play start")
		return
	}
	r.rowID = id
	r.itemID = itemID
	r.playingSince = now
	r.accrued = 0
}

// finishLocked closes the current row, if any. mayComplete limits the
// completion heuristic to clean stops; an error never counts as a full
// listen.
func (r *Recorder) finishLocked(now time.Time, mayComplete bool) {
	if r.rowID == 0 {
		return
	}

	played := r.accrued
	if !r.playingSince.IsZero() {
		played += now.Sub(r.playingSince)
	}

	completed := false
	if mayComplete {
		if item, ok := r.cache.Lookup(r.itemID); ok && item.Duration > 0 {
			threshold := item.Duration - completionSlack
			if threshold < item.Duration/2 {
				threshold = item.Duration / 2
			}
			completed = played >= threshold
		}
	}

	if err := r.store.Finish(context.Background(), r.rowID, played, completed); err != nil {
		r.logger.Warn().Err(err).Str("item", r.itemID).Msg("Failed to record play end")
	}

	r.rowID = 0
	r.itemID = ""
	r.playingSince = time.Time{}
	r.accrued = 0
}
