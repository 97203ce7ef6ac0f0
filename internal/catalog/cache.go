package catalog

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// State is the catalog cache lifecycle state.
type State int

const (
	StateEmpty   State = iota // not yet populated, or last population failed
	StateLoading              // a population is in flight
	StateReady                // catalog is available
)

// String returns a human-readable representation of the State.
func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Cache holds the item catalog keyed by id, populated lazily from a
// Source. Population is single-flight: concurrent EnsureReady calls while
// a population is in flight never start a second fetch, and every waiter
// observes the same outcome. A failed population resets the cache to
// empty so a later call can retry.
type Cache struct {
	mu      sync.Mutex
	state   State
	items   map[string]*Item
	order   []string
	waiters []func(bool)

	source Source
	logger zerolog.Logger
}

// New creates an empty Cache that will populate itself from source on the
// first EnsureReady call.
func New(source Source, logger zerolog.Logger) *Cache {
	return &Cache{
		items:  make(map[string]*Item),
		source: source,
		logger: logger.With().Str("component", "catalog").Logger(),
	}
}

// State returns the current lifecycle state.
func (c *Cache) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// EnsureReady arranges for onReady to be invoked with the population
// outcome. If the catalog is already ready, onReady is invoked
// immediately with true. If a population is in flight, onReady is queued
// behind it. Otherwise a population is started on a background goroutine.
//
// onReady may be invoked from the populating goroutine; callers that need
// serialization must marshal the callback themselves.
func (c *Cache) EnsureReady(onReady func(success bool)) {
	c.mu.Lock()
	switch c.state {
	case StateReady:
		c.mu.Unlock()
		onReady(true)
		return
	case StateLoading:
		c.waiters = append(c.waiters, onReady)
		c.mu.Unlock()
		return
	}

	c.state = StateLoading
	c.waiters = append(c.waiters, onReady)
	c.mu.Unlock()

	go c.populate()
}

func (c *Cache) populate() {
	items, err := c.load(context.Background())

	c.mu.Lock()
	if err != nil {
		// No partial catalog is retained; empty state permits a retry.
		c.logger.Warn().Err(err).Msg("Catalog population failed")
		c.state = StateEmpty
	} else {
		for _, item := range items {
			if _, exists := c.items[item.ID]; !exists {
				c.order = append(c.order, item.ID)
			}
			c.items[item.ID] = item
		}
		c.state = StateReady
		c.logger.Info().Int("items", len(c.order)).Msg("Catalog ready")
	}
	ok := c.state == StateReady
	waiters := c.waiters
	c.waiters = nil
	c.mu.Unlock()

	for _, w := range waiters {
		w(ok)
	}
}

func (c *Cache) load(ctx context.Context) ([]*Item, error) {
	data, base, err := c.source.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	return parseCatalog(data, base)
}

// AllItems returns the catalog in source order, or an empty slice when
// the catalog is not ready.
func (c *Cache) AllItems() []*Item {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateReady {
		return nil
	}
	items := make([]*Item, 0, len(c.order))
	for _, id := range c.order {
		items = append(items, c.items[id])
	}
	return items
}

// Lookup returns the item with the given id, if present.
func (c *Cache) Lookup(id string) (*Item, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, ok := c.items[id]
	return item, ok
}

// ReplaceItem replaces the stored item for id. If id is absent the call
// is a no-op; it never inserts. Safe to call concurrently with Lookup and
// AllItems.
func (c *Cache) ReplaceItem(id string, item *Item) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.items[id]; ok {
		c.items[id] = item
	}
}

// Len returns the number of items in the catalog.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}
