package catalog

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakeSource serves a canned document and counts fetches. If failures is
// positive, that many fetches fail before one succeeds.
type fakeSource struct {
	data     []byte
	base     string
	fetches  atomic.Int32
	failures atomic.Int32
	release  chan struct{} // if non-nil, Fetch blocks until closed
}

func (s *fakeSource) Fetch(ctx context.Context) ([]byte, string, error) {
	s.fetches.Add(1)
	if s.release != nil {
		<-s.release
	}
	if s.failures.Load() > 0 {
		s.failures.Add(-1)
		return nil, "", errors.New("network unreachable")
	}
	return s.data, s.base, nil
}

const twoTrackDoc = `{"music": [
	{"title": "A", "album": "Alpha", "artist": "Ann", "genre": "Rock",
	 "source": "a.mp3", "image": "a.png", "trackNumber": 1,
	 "totalTrackCount": 2, "duration": 10},
	{"title": "B", "album": "Alpha", "artist": "Ann", "genre": "Rock",
	 "source": "b.mp3", "image": "b.png", "trackNumber": 2,
	 "totalTrackCount": 2, "duration": 20}
]}`

func newTestCache(t *testing.T, src Source) *Cache {
	t.Helper()
	return New(src, zerolog.Nop())
}

func waitReady(t *testing.T, c *Cache) bool {
	t.Helper()
	done := make(chan bool, 1)
	c.EnsureReady(func(ok bool) { done <- ok })
	select {
	case ok := <-done:
		return ok
	case <-time.After(5 * time.Second):
		t.Fatal("EnsureReady callback never fired")
		return false
	}
}

func TestEnsureReady_PopulatesOnce(t *testing.T) {
	src := &fakeSource{data: []byte(twoTrackDoc), base: "http://x/music.json"}
	c := newTestCache(t, src)

	if !waitReady(t, c) {
		t.Fatal("expected successful population")
	}
	if got := c.Len(); got != 2 {
		t.Errorf("Len() = %d, want 2", got)
	}

	// Second call must not fetch again and must complete inline.
	called := false
	c.EnsureReady(func(ok bool) {
		called = true
		if !ok {
			t.Error("expected true for ready catalog")
		}
	})
	if !called {
		t.Error("EnsureReady on ready catalog did not invoke callback inline")
	}
	if n := src.fetches.Load(); n != 1 {
		t.Errorf("expected 1 fetch, got %d", n)
	}
}

func TestEnsureReady_SingleFlightUnderConcurrency(t *testing.T) {
	src := &fakeSource{
		data:    []byte(twoTrackDoc),
		base:    "http://x/music.json",
		release: make(chan struct{}),
	}
	c := newTestCache(t, src)

	const callers = 16
	outcomes := make(chan bool, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.EnsureReady(func(ok bool) { outcomes <- ok })
		}()
	}
	wg.Wait()

	// All callers are enqueued; now let the single fetch finish.
	close(src.release)

	for i := 0; i < callers; i++ {
		select {
		case ok := <-outcomes:
			if !ok {
				t.Error("a waiter observed failure on a successful population")
			}
		case <-time.After(5 * time.Second):
			t.Fatal("waiter callback never fired")
		}
	}

	if n := src.fetches.Load(); n != 1 {
		t.Errorf("expected exactly 1 fetch, got %d", n)
	}
}

func TestEnsureReady_FailureResetsAndAllowsRetry(t *testing.T) {
	src := &fakeSource{data: []byte(twoTrackDoc), base: "http://x/music.json"}
	src.failures.Store(1)
	c := newTestCache(t, src)

	if waitReady(t, c) {
		t.Fatal("expected first population to fail")
	}
	if got := c.State(); got != StateEmpty {
		t.Errorf("state after failure = %v, want empty", got)
	}
	if items := c.AllItems(); len(items) != 0 {
		t.Errorf("expected no partial catalog, got %d items", len(items))
	}

	// Retry succeeds.
	if !waitReady(t, c) {
		t.Fatal("expected retry to succeed")
	}
	if got := c.Len(); got != 2 {
		t.Errorf("Len() after retry = %d, want 2", got)
	}
}

func TestAllItems_SourceOrder(t *testing.T) {
	src := &fakeSource{data: []byte(twoTrackDoc), base: "http://x/music.json"}
	c := newTestCache(t, src)
	waitReady(t, c)

	items := c.AllItems()
	if len(items) != 2 {
		t.Fatalf("AllItems() returned %d items, want 2", len(items))
	}
	if items[0].Title != "A" || items[1].Title != "B" {
		t.Errorf("items out of source order: %q, %q", items[0].Title, items[1].Title)
	}
}

func TestLookup_ResolvedLocatorsAndDerivedID(t *testing.T) {
	doc := `{"music": [{"title": "A", "album": "Al", "artist": "Ar",
		"genre": "G", "source": "s.mp3", "image": "i.png",
		"trackNumber": 1, "totalTrackCount": 1, "duration": 10}]}`
	src := &fakeSource{data: []byte(doc), base: "http://x/catalog.json"}
	c := newTestCache(t, src)
	waitReady(t, c)

	wantID := DeriveID("http://x/s.mp3")
	item, ok := c.Lookup(wantID)
	if !ok {
		t.Fatalf("Lookup(%q) missed", wantID)
	}
	if item.SourceURI != "http://x/s.mp3" {
		t.Errorf("SourceURI = %q, want %q", item.SourceURI, "http://x/s.mp3")
	}
	if item.ArtworkURI != "http://x/i.png" {
		t.Errorf("ArtworkURI = %q, want %q", item.ArtworkURI, "http://x/i.png")
	}
	if item.Duration != 10*time.Second {
		t.Errorf("Duration = %v, want 10s", item.Duration)
	}
}

func TestReplaceItem_AbsentIDIsNoOp(t *testing.T) {
	src := &fakeSource{data: []byte(twoTrackDoc), base: "http://x/music.json"}
	c := newTestCache(t, src)
	waitReady(t, c)

	before := c.Len()
	c.ReplaceItem("no-such-id", &Item{ID: "no-such-id", Title: "ghost"})

	if got := c.Len(); got != before {
		t.Errorf("Len() changed from %d to %d after absent-id replace", before, got)
	}
	if _, ok := c.Lookup("no-such-id"); ok {
		t.Error("ReplaceItem inserted an absent id")
	}
}

func TestReplaceItem_SwapsStoredItem(t *testing.T) {
	src := &fakeSource{data: []byte(twoTrackDoc), base: "http://x/music.json"}
	c := newTestCache(t, src)
	waitReady(t, c)

	id := DeriveID("http://x/a.mp3")
	orig, ok := c.Lookup(id)
	if !ok {
		t.Fatal("expected item present")
	}

	updated := *orig
	updated.ArtworkURI = "http://x/new.png"
	c.ReplaceItem(id, &updated)

	got, _ := c.Lookup(id)
	if got.ArtworkURI != "http://x/new.png" {
		t.Errorf("ArtworkURI = %q after replace, want %q", got.ArtworkURI, "http://x/new.png")
	}
	// Original pointer is untouched; items are immutable once stored.
	if orig.ArtworkURI != "http://x/a.png" {
		t.Errorf("original item mutated: ArtworkURI = %q", orig.ArtworkURI)
	}
}
