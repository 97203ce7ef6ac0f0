package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const maxCatalogSize = 4 * 1024 * 1024 // 4 MB

// A Source produces the raw catalog document.
type Source interface {
	// Fetch returns the raw catalog bytes and the locator they were
	// fetched from. The locator is used to resolve relative media and
	// artwork references in the document.
	Fetch(ctx context.Context) ([]byte, string, error)
}

// HTTPSource fetches the catalog document from an HTTP(S) URL.
type HTTPSource struct {
	url    string
	client *retryablehttp.Client
}

// NewHTTPSource creates a Source backed by the given URL.
func NewHTTPSource(url string) *HTTPSource {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.Logger = nil
	return &HTTPSource{url: url, client: client}
}

func (s *HTTPSource) Fetch(ctx context.Context) ([]byte, string, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch catalog: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxCatalogSize))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read catalog body: %w", err)
	}

	return data, s.url, nil
}

// FileSource reads the catalog document from a local file. Relative media
// references resolve against the file's directory.
type FileSource struct {
	path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) Fetch(ctx context.Context) ([]byte, string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read catalog file: %w", err)
	}
	return data, s.path, nil
}

// record is one entry in the raw catalog document. Duration is in seconds.
type record struct {
	Title           string `json:"title"`
	Album           string `json:"album"`
	Artist          string `json:"artist"`
	Genre           string `json:"genre"`
	Source          string `json:"source"`
	Image           string `json:"image"`
	TrackNumber     int    `json:"trackNumber"`
	TotalTrackCount int    `json:"totalTrackCount"`
	Duration        int    `json:"duration"`
}

type document struct {
	Music []record `json:"music"`
}

// parseCatalog parses the raw document into items in source order.
// Any malformed record aborts the whole parse; the caller must not retain
// a partial catalog.
func parseCatalog(data []byte, base string) ([]*Item, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	basePath := basePathOf(base)

	items := make([]*Item, 0, len(doc.Music))
	for i, rec := range doc.Music {
		if rec.Title == "" || rec.Artist == "" || rec.Album == "" || rec.Source == "" {
			return nil, fmt.Errorf("catalog record %d is missing a required field", i)
		}
		if rec.Duration < 0 {
			return nil, fmt.Errorf("catalog record %d has negative duration", i)
		}

		source := resolveRef(basePath, rec.Source)
		items = append(items, &Item{
			ID:          DeriveID(source),
			Title:       rec.Title,
			Album:       rec.Album,
			Artist:      rec.Artist,
			Genre:       rec.Genre,
			SourceURI:   source,
			ArtworkURI:  resolveRef(basePath, rec.Image),
			TrackNumber: rec.TrackNumber,
			TotalTracks: rec.TotalTrackCount,
			Duration:    time.Duration(rec.Duration) * time.Second,
		})
	}

	return items, nil
}

// basePathOf returns everything up to and including the final path
// separator of the catalog locator.
func basePathOf(locator string) string {
	idx := strings.LastIndex(locator, "/")
	if idx < 0 {
		return ""
	}
	return locator[:idx+1]
}

// resolveRef resolves a media or artwork reference against the catalog's
// base path. References that already carry a scheme are kept as-is.
func resolveRef(basePath, ref string) string {
	if ref == "" || strings.Contains(ref, "://") || strings.HasPrefix(ref, "/") {
		return ref
	}
	return basePath + ref
}
