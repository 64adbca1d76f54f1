// Package audio wraps the platform audio output behind a small engine
// contract: start from an offset, pause, resume, report elapsed time.
package audio

import (
	"errors"
	"path/filepath"
	"strings"
)

// NotStarted is returned by PositionMillis before the first Play
const NotStarted int64 = -1

var (
	// ErrUnsupportedFormat means no decoder exists for the file type
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	// ErrUnavailable means this build or host has no audio output
	ErrUnavailable = errors.New("audio output unavailable")
	// ErrNotLoaded is returned by Play before a successful Load
	ErrNotLoaded = errors.New("no track loaded")
)

// Engine is the playback primitive the transport drives.
//
// PositionMillis reports milliseconds elapsed since the most recent Play or
// PlayFrom, or NotStarted. It does not include the PlayFrom offset; callers
// add that themselves. IsBusy is true while a started stream has audio
// left, paused or not.
type Engine interface {
	Load(path string) error
	Play() error
	PlayFrom(seconds float64) error
	Pause()
	Unpause()
	Stop()
	PositionMillis() int64
	IsBusy() bool
	Close() error
}

// Decodable reports whether the engine has a decoder for path
func Decodable(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3", ".flac", ".wav":
		return true
	}
	return false
}
