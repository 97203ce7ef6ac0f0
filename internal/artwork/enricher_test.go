package artwork

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tonearm/tonearm/internal/catalog"
)

type docSource struct{ data, base string }

func (s docSource) Fetch(ctx context.Context) ([]byte, string, error) {
	return []byte(s.data), s.base, nil
}

func readyCache(t *testing.T, base string) (*catalog.Cache, string) {
	t.Helper()

	doc := `{"music": [{"title": "A", "album": "Al", "artist": "Ar",
		"genre": "G", "source": "s.mp3", "image": "cover.png",
		"trackNumber": 1, "totalTrackCount": 1, "duration": 10}]}`
	cache := catalog.New(docSource{data: doc, base: base + "/music.json"}, zerolog.Nop())

	ready := make(chan bool, 1)
	cache.EnsureReady(func(ok bool) { ready <- ok })
	if !<-ready {
		t.Fatal("catalog population failed")
	}
	return cache, catalog.DeriveID(base + "/s.mp3")
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("encoding test image: %v", err)
	}
	return buf.Bytes()
}

func TestFetch_DecodesAndStoresBitmaps(t *testing.T) {
	data := pngBytes(t, 800, 600)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(data)
	}))
	defer srv.Close()

	cache, id := readyCache(t, srv.URL)
	fetched := make(chan string, 1)
	e := New(cache, func(itemID string) { fetched <- itemID }, zerolog.Nop())

	item, _ := cache.Lookup(id)
	e.Fetch(id, srv.URL+"/cover.png")

	select {
	case got := <-fetched:
		if got != id {
			t.Fatalf("onFetched id = %q, want %q", got, id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("fetch did not complete")
	}

	enriched, _ := cache.Lookup(id)
	if enriched.ArtworkLarge == nil || enriched.ArtworkSmall == nil {
		t.Fatal("bitmaps not stored on the item")
	}
	if b := enriched.ArtworkLarge.Bounds(); b.Dx() > 480 || b.Dy() > 480 {
		t.Errorf("large bitmap %dx%d exceeds bound", b.Dx(), b.Dy())
	}
	if b := enriched.ArtworkSmall.Bounds(); b.Dx() != 128 || b.Dy() != 128 {
		t.Errorf("small bitmap = %dx%d, want 128x128", b.Dx(), b.Dy())
	}
	if item.ArtworkLarge != nil {
		t.Error("original item mutated instead of replaced")
	}
}

func TestFetch_FailureLeavesItemUntouched(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	cache, id := readyCache(t, srv.URL)
	called := make(chan struct{}, 1)
	e := New(cache, func(string) { called <- struct{}{} }, zerolog.Nop())

	e.Fetch(id, srv.URL+"/cover.png")

	select {
	case <-called:
		t.Fatal("onFetched invoked for a failed fetch")
	case <-time.After(300 * time.Millisecond):
	}
	if item, _ := cache.Lookup(id); item.ArtworkLarge != nil {
		t.Error("failed fetch stored a bitmap")
	}
}

func TestFetch_DeduplicatesInflightRequests(t *testing.T) {
	var requests atomic.Int32
	release := make(chan struct{})
	data := pngBytes(t, 64, 64)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		<-release
		w.Write(data)
	}))
	defer srv.Close()

	cache, id := readyCache(t, srv.URL)
	fetched := make(chan string, 4)
	e := New(cache, func(itemID string) { fetched <- itemID }, zerolog.Nop())

	uri := srv.URL + "/cover.png"
	e.Fetch(id, uri)
	for i := 0; requests.Load() == 0 && i < 400; i++ {
		time.Sleep(5 * time.Millisecond)
	}
	e.Fetch(id, uri)
	e.Fetch(id, uri)
	close(release)

	select {
	case <-fetched:
	case <-time.After(2 * time.Second):
		t.Fatal("fetch did not complete")
	}
	time.Sleep(100 * time.Millisecond)
	if got := requests.Load(); got != 1 {
		t.Errorf("server saw %d requests, want 1", got)
	}
}

func TestFetch_UnknownItemIsDropped(t *testing.T) {
	data := pngBytes(t, 64, 64)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(data)
	}))
	defer srv.Close()

	cache, _ := readyCache(t, srv.URL)
	called := make(chan struct{}, 1)
	e := New(cache, func(string) { called <- struct{}{} }, zerolog.Nop())

	e.Fetch(fmt.Sprintf("%016x", 0), srv.URL+"/cover.png")

	select {
	case <-called:
		t.Fatal("onFetched invoked for an unknown item")
	case <-time.After(300 * time.Millisecond):
	}
}
