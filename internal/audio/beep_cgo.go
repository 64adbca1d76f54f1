//go:build (linux && cgo) || windows || darwin

package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/gopxl/beep/v2/wav"
	"github.com/sirupsen/logrus"
)

// Available indicates whether audio playback is supported in this build.
const Available = true

const outputRate = beep.SampleRate(44100)

// BeepEngine plays one file at a time through the system speaker.
type BeepEngine struct {
	mu sync.Mutex

	initialized bool
	path        string
	streamer    beep.StreamSeekCloser
	format      beep.Format
	ctrl        *beep.Ctrl
	startSample int
	started     bool

	// Touched from the speaker goroutine, so kept off mu.
	playID atomic.Uint64
	busy   atomic.Bool

	logger *logrus.Logger
}

// NewEngine creates the speaker-backed engine. The speaker itself is
// opened lazily on the first Play.
func NewEngine(logger *logrus.Logger) *BeepEngine {
	return &BeepEngine{logger: logger}
}

func (e *BeepEngine) initSpeaker() error {
	if e.initialized {
		return nil
	}
	if err := speaker.Init(outputRate, outputRate.N(time.Second/10)); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	e.initialized = true
	return nil
}

// Load opens and decodes path, replacing whatever was loaded.
func (e *BeepEngine) Load(path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stopLocked()
	e.closeStreamLocked()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open audio file: %w", err)
	}

	var (
		streamer beep.StreamSeekCloser
		format   beep.Format
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		streamer, format, err = mp3.Decode(f)
	case ".flac":
		streamer, format, err = flac.Decode(f)
	case ".wav":
		streamer, format, err = wav.Decode(f)
	default:
		f.Close()
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to decode %s: %w", filepath.Base(path), err)
	}

	e.path = path
	e.streamer = streamer
	e.format = format

	e.logger.WithFields(logrus.Fields{
		"path":       path,
		"sampleRate": format.SampleRate,
		"channels":   format.NumChannels,
		"length":     format.SampleRate.D(streamer.Len()),
	}).Debug("Audio loaded")

	return nil
}

// Play starts the loaded track from the beginning
func (e *BeepEngine) Play() error {
	return e.PlayFrom(0)
}

// PlayFrom starts the loaded track at seconds. The elapsed counter
// restarts at zero.
func (e *BeepEngine) PlayFrom(seconds float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.streamer == nil {
		return ErrNotLoaded
	}
	if err := e.initSpeaker(); err != nil {
		return err
	}

	e.stopLocked()

	sample := e.format.SampleRate.N(time.Duration(seconds * float64(time.Second)))
	if sample < 0 {
		sample = 0
	}
	if n := e.streamer.Len(); n > 0 && sample >= n {
		sample = n - 1
	}
	if err := e.streamer.Seek(sample); err != nil {
		return fmt.Errorf("failed to seek to %.2fs: %w", seconds, err)
	}

	e.startSample = sample
	e.started = true

	var stream beep.Streamer = e.streamer
	if e.format.SampleRate != outputRate {
		stream = beep.Resample(4, e.format.SampleRate, outputRate, e.streamer)
	}
	e.ctrl = &beep.Ctrl{Streamer: stream}

	id := e.playID.Add(1)
	e.busy.Store(true)
	speaker.Play(beep.Seq(e.ctrl, beep.Callback(func() {
		// A newer PlayFrom or Stop owns the busy flag now.
		if e.playID.Load() == id {
			e.busy.Store(false)
		}
	})))

	return nil
}

// Pause halts output without losing the position.
func (e *BeepEngine) Pause() {
	e.setPaused(true)
}

// Unpause resumes output
func (e *BeepEngine) Unpause() {
	e.setPaused(false)
}

func (e *BeepEngine) setPaused(paused bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.ctrl != nil {
		speaker.Lock()
		e.ctrl.Paused = paused
		speaker.Unlock()
	}
}

// Stop ends playback. The track stays loaded.
func (e *BeepEngine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
	e.started = false
}

func (e *BeepEngine) stopLocked() {
	e.playID.Add(1)
	e.busy.Store(false)
	if e.initialized {
		speaker.Clear()
	}
	e.ctrl = nil
}

func (e *BeepEngine) closeStreamLocked() {
	if e.streamer != nil {
		e.streamer.Close()
		e.streamer = nil
	}
	e.path = ""
	e.started = false
}

// PositionMillis returns milliseconds played since the last PlayFrom.
func (e *BeepEngine) PositionMillis() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.started || e.streamer == nil {
		return NotStarted
	}

	speaker.Lock()
	pos := e.streamer.Position()
	speaker.Unlock()

	elapsed := pos - e.startSample
	if elapsed < 0 {
		elapsed = 0
	}
	return e.format.SampleRate.D(elapsed).Milliseconds()
}

// IsBusy reports whether the current stream still has audio to play
func (e *BeepEngine) IsBusy() bool {
	return e.busy.Load()
}

// Close stops playback and releases the decoder.
func (e *BeepEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
	e.closeStreamLocked()
	return nil
}
