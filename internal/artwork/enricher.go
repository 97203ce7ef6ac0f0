package artwork

import (
	"fmt"
	"image"
	"io"
	"net/http"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"

	"github.com/tonearm/tonearm/internal/catalog"
)

const (
	// Bitmap dimensions published alongside metadata. The large variant
	// feeds the session metadata, the small one the notification icon.
	largeSize = 480
	smallSize = 128

	maxImageBytes = 10 << 20
)

// Enricher resolves artwork URIs into decoded bitmaps and stores them
// back on the catalog items. Fetches are deduplicated per item id:
// while a fetch for an id is in flight, further requests for the same
// id are dropped. Failures are logged and absorbed; the item simply
// keeps rendering without artwork.
type Enricher struct {
	cache     *catalog.Cache
	client    *retryablehttp.Client
	onFetched func(itemID string)
	logger    zerolog.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
}

// New creates an Enricher that writes decoded bitmaps into cache and
// reports each successful fetch through onFetched. onFetched is invoked
// from a background goroutine.
func New(cache *catalog.Cache, onFetched func(itemID string), logger zerolog.Logger) *Enricher {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.Logger = nil

	return &Enricher{
		cache:     cache,
		client:    client,
		onFetched: onFetched,
		logger:    logger.With().Str("component", "artwork").Logger(),
		inflight:  make(map[string]struct{}),
	}
}

// Fetch asynchronously downloads and decodes the artwork at uri for the
// given item. The call returns immediately; completion is signalled via
// the onFetched callback. A request for an id with a fetch already in
// flight is dropped.
func (e *Enricher) Fetch(itemID, uri string) {
	e.mu.Lock()
	if _, busy := e.inflight[itemID]; busy {
		e.mu.Unlock()
		return
	}
	e.inflight[itemID] = struct{}{}
	e.mu.Unlock()

	go e.fetch(itemID, uri)
}

func (e *Enricher) fetch(itemID, uri string) {
	defer func() {
		e.mu.Lock()
		delete(e.inflight, itemID)
		e.mu.Unlock()
	}()

	img, err := e.download(uri)
	if err != nil {
		e.logger.Debug().Err(err).Str("item", itemID).Str("uri", uri).Msg("Artwork fetch failed")
		return
	}

	item, ok := e.cache.Lookup(itemID)
	if !ok {
		return
	}

	// Items are immutable once stored; swap in a copy carrying the
	// bitmaps so concurrent readers of the old item stay safe.
	enriched := *item
	enriched.ArtworkLarge = imaging.Fit(img, largeSize, largeSize, imaging.Lanczos)
	enriched.ArtworkSmall = imaging.Thumbnail(img, smallSize, smallSize, imaging.Lanczos)
	e.cache.ReplaceItem(itemID, &enriched)

	e.logger.Debug().Str("item", itemID).Msg("Artwork cached")
	if e.onFetched != nil {
		e.onFetched(itemID)
	}
}

func (e *Enricher) download(uri string) (image.Image, error) {
	resp, err := e.client.Get(uri)
	if err != nil {
		return nil, fmt.Errorf("fetching artwork: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching artwork: unexpected status %d", resp.StatusCode)
	}

	img, err := imaging.Decode(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("decoding artwork: %w", err)
	}
	return img, nil
}
