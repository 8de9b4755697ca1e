// package playlist contains the pure logic for assembling a best-of-the-month playlist.
//
// No I/O happens here; everything is deterministic so it can be unit tested
// without fakes.
package playlist

import "github.com/desertthunder/botm/internal/models"

// DefaultLimit is the maximum number of tracks in a generated playlist.
const DefaultLimit = 50

// Build turns a raw top-tracks response into the publishable track list.
//
// Duplicate track ids collapse to their first occurrence, preserving
// Spotify's ranking order; the service's ordering is the semantic ordering
// and is never re-sorted. The result is truncated to limit, never padded.
func Build(tracks []models.Track, limit int) []models.Track {
	if limit <= 0 {
		limit = DefaultLimit
	}

	seen := make(map[string]bool, len(tracks))
	out := make([]models.Track, 0, min(limit, len(tracks)))

	for _, track := range tracks {
		if track.ID == "" || seen[track.ID] {
			continue
		}
		seen[track.ID] = true
		out = append(out, track)
		if len(out) == limit {
			break
		}
	}

	return out
}

// URIs extracts the publish payload from a built track list.
func URIs(tracks []models.Track) []string {
	uris := make([]string, 0, len(tracks))
	for _, track := range tracks {
		uris = append(uris, track.URI)
	}
	return uris
}
