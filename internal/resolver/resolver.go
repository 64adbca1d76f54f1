// Package resolver turns a track path into a Track Record by walking the
// fallback chain: embedded tags, sidecar lyric file, fallback cache and,
// in the background, remote providers.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lyrebird/internal/cache"
	"lyrebird/internal/database"
	"lyrebird/internal/lyrics"
	"lyrebird/internal/metadata"
	"lyrebird/internal/remote"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Source records where a field of a Record came from
type Source string

const (
	SourceNone        Source = "none"
	SourceEmbedded    Source = "embedded"
	SourceSidecar     Source = "sidecar"
	SourceCache       Source = "cache"
	SourceRemote      Source = "remote"
	SourcePlaceholder Source = "placeholder"
)

// Resolve runs on the playback path. A slow cache backend is treated as a
// miss after this long.
const cacheLookupTimeout = 500 * time.Millisecond

// Record is the normalized metadata of one loaded track.
type Record struct {
	Path         string
	Title        string
	Artist       string
	Album        string
	Duration     float64
	Cover        []byte
	CoverMIME    string
	CoverSource  Source
	Tint         string
	Lyrics       *lyrics.Index
	LyricsSource Source
}

// NeedsLyrics reports whether no step produced lyrics
func (r *Record) NeedsLyrics() bool {
	return r.Lyrics.Empty()
}

// NeedsCover reports whether the cover is still the placeholder
func (r *Record) NeedsCover() bool {
	return r.CoverSource == SourcePlaceholder || r.CoverSource == SourceNone
}

// RemoteRequest describes what the remote step should still look for.
// ok is false when nothing is missing.
func (r *Record) RemoteRequest() (Request, bool) {
	req := Request{
		Title:    r.Title,
		Artist:   r.Artist,
		Duration: r.Duration,
		Lyrics:   r.NeedsLyrics(),
		Cover:    r.NeedsCover(),
	}
	return req, req.Lyrics || req.Cover
}

// SetCover replaces the cover and recomputes the tint
func (r *Record) SetCover(data []byte, source Source) {
	r.Cover = data
	r.CoverMIME = metadata.CoverMIME(data)
	r.CoverSource = source
	r.Tint = metadata.Tint(data)
}

// Request is a remote lookup for the fields a Record is missing
type Request struct {
	Title    string
	Artist   string
	Duration float64
	Lyrics   bool
	Cover    bool
}

// Result is what the remote step found. Nil fields found nothing.
type Result struct {
	Lyrics     *lyrics.Index
	LyricsText string
	Cover      []byte
}

// Empty reports whether the remote step found nothing at all
func (r Result) Empty() bool {
	return r.Lyrics.Empty() && len(r.Cover) == 0
}

// Ledger remembers remote misses so unknown titles aren't refetched on
// every load. *database.Database implements it.
type Ledger interface {
	LastMiss(cacheKey, kind string) (time.Time, bool, error)
	RecordFetch(rec database.FetchRecord) error
}

// Options wires the optional collaborators
type Options struct {
	Provider    remote.Provider // nil disables the remote step
	Ledger      Ledger          // nil disables miss back-off
	MissBackoff time.Duration
	Timeout     time.Duration // budget for one FetchRemote call
}

// Resolver produces Track Records
type Resolver struct {
	extractor *metadata.Extractor
	cache     *cache.FallbackCache
	opts      Options
	group     singleflight.Group
	logger    *logrus.Logger
}

// New creates a resolver. fc may be nil, which disables the cache step.
func New(extractor *metadata.Extractor, fc *cache.FallbackCache, opts Options, logger *logrus.Logger) *Resolver {
	return &Resolver{
		extractor: extractor,
		cache:     fc,
		opts:      opts,
		logger:    logger,
	}
}

// RemoteEnabled reports whether a remote provider is configured
func (r *Resolver) RemoteEnabled() bool {
	return r.opts.Provider != nil
}

// Resolve runs the local part of the fallback chain. It only touches local
// storage and never fails: every step that errors is treated as "no
// result" and the defaults fill whatever is left.
func (r *Resolver) Resolve(ctx context.Context, path string) *Record {
	tags, err := r.extractor.Extract(path)
	if err != nil {
		r.logger.WithError(err).WithField("path", path).Warn("Tag extraction failed, using defaults")
	}

	rec := &Record{
		Path:         path,
		Title:        tags.Title,
		Artist:       tags.Artist,
		Album:        tags.Album,
		Duration:     tags.Duration,
		CoverSource:  SourceNone,
		LyricsSource: SourceNone,
	}

	if len(tags.Cover) > 0 {
		rec.Cover = tags.Cover
		rec.CoverMIME = tags.CoverMIME
		rec.CoverSource = SourceEmbedded
	}

	if tags.Lyrics != "" {
		if idx := lyrics.Build(tags.Lyrics); !idx.Empty() {
			rec.Lyrics = idx
			rec.LyricsSource = SourceEmbedded
		}
	}

	if rec.NeedsLyrics() {
		if idx, ok := r.ReloadSidecar(path); ok {
			rec.Lyrics = idx
			rec.LyricsSource = SourceSidecar
		}
	}

	if r.cache != nil && (rec.NeedsLyrics() || rec.CoverSource == SourceNone) {
		lookupCtx, cancel := context.WithTimeout(ctx, cacheLookupTimeout)
		entry := r.cache.Get(lookupCtx, rec.Title)
		cancel()
		if rec.NeedsLyrics() && entry.HasLyrics {
			if idx := lyrics.Build(entry.Lyrics); !idx.Empty() {
				rec.Lyrics = idx
				rec.LyricsSource = SourceCache
			}
		}
		if rec.CoverSource == SourceNone && len(entry.Cover) > 0 {
			rec.Cover = entry.Cover
			rec.CoverMIME = metadata.CoverMIME(entry.Cover)
			rec.CoverSource = SourceCache
		}
	}

	if rec.CoverSource == SourceNone {
		rec.Cover = metadata.PlaceholderCover()
		rec.CoverMIME = "image/png"
		rec.CoverSource = SourcePlaceholder
	}
	rec.Tint = metadata.Tint(rec.Cover)

	r.logger.WithFields(logrus.Fields{
		"path":          path,
		"title":         rec.Title,
		"artist":        rec.Artist,
		"duration":      rec.Duration,
		"lyrics_source": rec.LyricsSource,
		"lyric_lines":   rec.Lyrics.Len(),
		"cover_source":  rec.CoverSource,
	}).Debug("Track resolved locally")

	return rec
}

// ReloadSidecar parses the sidecar lyric file next to path, if any.
func (r *Resolver) ReloadSidecar(path string) (*lyrics.Index, bool) {
	text, sidecar, ok := metadata.ReadSidecar(path)
	if !ok {
		return nil, false
	}
	idx := lyrics.Build(text)
	if idx.Empty() {
		r.logger.WithField("sidecar", sidecar).Debug("Sidecar has no timed lines")
		return nil, false
	}
	return idx, true
}

// FetchRemote asks the remote provider for whatever req is missing and
// writes anything found into the fallback cache. It blocks for as long as
// the providers take (bounded by Options.Timeout); run it off the
// playback path. Concurrent calls for the same title share one lookup.
func (r *Resolver) FetchRemote(ctx context.Context, req Request) Result {
	if r.opts.Provider == nil || (!req.Lyrics && !req.Cover) {
		return Result{}
	}

	flightKey := fmt.Sprintf("%s|%t|%t", cache.Key(req.Title), req.Lyrics, req.Cover)
	v, _, _ := r.group.Do(flightKey, func() (interface{}, error) {
		return r.fetch(ctx, req), nil
	})
	return v.(Result)
}

func (r *Resolver) fetch(ctx context.Context, req Request) Result {
	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
	}
	ctx = remote.WithDurationHint(ctx, req.Duration)

	artist := req.Artist
	if artist == metadata.UnknownArtist {
		artist = ""
	}
	key := cache.Key(req.Title)

	var (
		result Result
		entry  cache.Entry
	)

	if req.Lyrics && !r.recentlyMissed(key, cache.KindLyrics) {
		text, err := r.opts.Provider.SearchLyrics(ctx, req.Title, artist)
		if err == nil {
			if idx := lyrics.Build(text); !idx.Empty() {
				result.Lyrics = idx
				result.LyricsText = text
				entry.Lyrics = text
				entry.HasLyrics = true
			} else {
				err = fmt.Errorf("%w: lyrics have no timed lines", remote.ErrNotFound)
			}
		}
		r.record(key, req, cache.KindLyrics, err)
	}

	if req.Cover && !r.recentlyMissed(key, cache.KindCover) {
		data, err := r.opts.Provider.SearchCover(ctx, req.Title, artist)
		if err == nil {
			if metadata.CoverMIME(data) != "application/octet-stream" {
				result.Cover = data
				entry.Cover = data
			} else {
				err = fmt.Errorf("%w: cover is not an image", remote.ErrNotFound)
			}
		}
		r.record(key, req, cache.KindCover, err)
	}

	if r.cache != nil && (entry.HasLyrics || len(entry.Cover) > 0) {
		// The write-back outlives the caller's interest in the track.
		putCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.cache.Put(putCtx, req.Title, entry); err != nil {
			r.logger.WithError(err).WithField("title", req.Title).Warn("Failed to write remote result to cache")
		}
	}

	return result
}

func (r *Resolver) recentlyMissed(key string, kind cache.Kind) bool {
	if r.opts.Ledger == nil || r.opts.MissBackoff <= 0 {
		return false
	}

	at, missed, err := r.opts.Ledger.LastMiss(key, string(kind))
	if err != nil {
		r.logger.WithError(err).Debug("Ledger lookup failed")
		return false
	}
	if missed && time.Since(at) < r.opts.MissBackoff {
		r.logger.WithFields(logrus.Fields{
			"key":       key,
			"kind":      kind,
			"missed_at": at,
		}).Debug("Skipping remote lookup after recent miss")
		return true
	}
	return false
}

func (r *Resolver) record(key string, req Request, kind cache.Kind, err error) {
	// Shutdown and the lookup timeout say nothing about the track.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}

	rec := database.FetchRecord{
		CacheKey: key,
		Title:    req.Title,
		Artist:   req.Artist,
		Kind:     string(kind),
		Outcome:  database.OutcomeHit,
	}
	switch {
	case err == nil:
	case errors.Is(err, remote.ErrNotFound):
		rec.Outcome = database.OutcomeMiss
		rec.Error = err.Error()
	default:
		r.logger.WithError(err).WithFields(logrus.Fields{
			"title": req.Title,
			"kind":  kind,
		}).Warn("Remote lookup failed")
		rec.Outcome = database.OutcomeError
		rec.Error = err.Error()
	}

	if r.opts.Ledger == nil {
		return
	}
	rec.Provider = r.opts.Provider.Name()
	if lerr := r.opts.Ledger.RecordFetch(rec); lerr != nil {
		r.logger.WithError(lerr).Debug("Failed to record fetch")
	}
}
