package catalog

import (
	"fmt"
	"hash/fnv"
	"image"
	"time"
)

// Item is one playable entry in the catalog.
//
// Items are treated as immutable once stored in the Cache. The artwork
// enrichment path replaces the whole item via Cache.ReplaceItem rather
// than mutating fields in place, so a reader holding an *Item never
// observes a half-written value.
type Item struct {
	ID           string
	Title        string
	Album        string
	Artist       string
	Genre        string
	SourceURI    string
	ArtworkURI   string
	ArtworkSmall image.Image // set by artwork enrichment, nil until fetched
	ArtworkLarge image.Image
	TrackNumber  int
	TotalTracks  int
	Duration     time.Duration
}

// DeriveID computes a stable identifier for a catalog record that carries
// no server-side id, from its resolved source locator. The id is stable
// across process restarts for the same resolved locator.
func DeriveID(sourceURI string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(sourceURI))
	return fmt.Sprintf("%016x", h.Sum64())
}
