// Package remote talks to online lyric and cover art providers.
//
// Every provider is slow and unreliable from the player's point of view:
// callers run these lookups off the playback path and treat any error as
// "no remote result".
package remote

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound means the provider answered but had nothing usable.
	ErrNotFound = errors.New("remote: no result")
	// ErrUnsupported means the provider cannot serve this kind of lookup.
	ErrUnsupported = errors.New("remote: lookup not supported by provider")
)

// Provider searches for lyrics and cover art by title and artist.
// artist may be empty when unknown.
type Provider interface {
	Name() string
	SearchLyrics(ctx context.Context, title, artist string) (string, error)
	SearchCover(ctx context.Context, title, artist string) ([]byte, error)
}

// Options are shared by the HTTP-backed providers
type Options struct {
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration // multiplied by the attempt number
	UserAgent  string
	Cookie     string
}

// DefaultOptions mirrors the config defaults
func DefaultOptions() Options {
	return Options{
		Timeout:    10 * time.Second,
		MaxRetries: 2,
		RetryDelay: 500 * time.Millisecond,
		UserAgent:  "lyrebird/1.0",
	}
}

type durationKey struct{}

// WithDurationHint attaches the track duration (seconds) to ctx so
// providers that can rank candidates by length do so.
func WithDurationHint(ctx context.Context, seconds float64) context.Context {
	return context.WithValue(ctx, durationKey{}, seconds)
}

func durationHint(ctx context.Context) float64 {
	if v, ok := ctx.Value(durationKey{}).(float64); ok {
		return v
	}
	return 0
}
