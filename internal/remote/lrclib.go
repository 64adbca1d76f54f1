package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
)

// maxDurationDiff is how far (seconds) a candidate may be from the hint
// and still be taken immediately.
const maxDurationDiff = 3

// lrclibTrack is one entry of the LRCLib search response
type lrclibTrack struct {
	ID           int     `json:"id"`
	TrackName    string  `json:"trackName"`
	ArtistName   string  `json:"artistName"`
	AlbumName    string  `json:"albumName"`
	Duration     float64 `json:"duration"`
	Instrumental bool    `json:"instrumental"`
	PlainLyrics  string  `json:"plainLyrics"`
	SyncedLyrics string  `json:"syncedLyrics"`
}

// LRCLibClient fetches synced lyrics from an LRCLib instance. It has no
// cover art.
type LRCLibClient struct {
	baseURL string
	req     *requester
	logger  *logrus.Logger
}

// NewLRCLibClient creates a client for baseURL (e.g. https://lrclib.net/api)
func NewLRCLibClient(baseURL string, opts Options, logger *logrus.Logger) *LRCLibClient {
	return &LRCLibClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		req:     newRequester("lrclib", opts, logger),
		logger:  logger,
	}
}

func (c *LRCLibClient) Name() string { return "lrclib" }

// SearchLyrics returns the synced lyrics of the best matching track.
func (c *LRCLibClient) SearchLyrics(ctx context.Context, title, artist string) (string, error) {
	params := url.Values{}
	params.Set("track_name", title)
	if artist != "" {
		params.Set("artist_name", artist)
	}

	body, err := c.req.get(ctx, c.baseURL+"/search?"+params.Encode())
	if err != nil {
		return "", err
	}

	var results []lrclibTrack
	if err := json.Unmarshal(body, &results); err != nil {
		return "", fmt.Errorf("lrclib: failed to decode response: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"title":   title,
		"artist":  artist,
		"results": len(results),
	}).Debug("LRCLib search finished")

	// Only synced lyrics are useful for a scrolling display.
	var synced []lrclibTrack
	for _, r := range results {
		if r.SyncedLyrics != "" {
			synced = append(synced, r)
		}
	}
	if len(synced) == 0 {
		return "", ErrNotFound
	}

	best := findBestMatch(synced, title, artist, durationHint(ctx))
	return best.SyncedLyrics, nil
}

// SearchCover is not offered by LRCLib
func (c *LRCLibClient) SearchCover(context.Context, string, string) ([]byte, error) {
	return nil, ErrUnsupported
}

// findBestMatch prefers title+artist matches, then title matches, then
// anything; within that pool the candidate closest to the duration hint
// wins. candidates must not be empty.
func findBestMatch(candidates []lrclibTrack, title, artist string, duration float64) lrclibTrack {
	var exact, titleOnly []lrclibTrack
	for _, c := range candidates {
		if !containsIgnoreCase(c.TrackName, title) {
			continue
		}
		if artist != "" && containsIgnoreCase(c.ArtistName, artist) {
			exact = append(exact, c)
		} else {
			titleOnly = append(titleOnly, c)
		}
	}

	pool := exact
	if len(pool) == 0 {
		pool = titleOnly
	}
	if len(pool) == 0 {
		pool = candidates
	}

	if duration <= 0 {
		return pool[0]
	}

	best := pool[0]
	bestDiff := absDiff(best.Duration, duration)
	for _, c := range pool {
		diff := absDiff(c.Duration, duration)
		if diff <= maxDurationDiff {
			return c
		}
		if diff < bestDiff {
			best, bestDiff = c, diff
		}
	}
	return best
}

func absDiff(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}

func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
