// Package audiotest provides a scriptable audio.Engine for tests.
package audiotest

import (
	"sync"

	"lyrebird/internal/audio"
)

// Engine records calls and reports whatever position and busy state the
// test sets. The zero value is ready to use.
type Engine struct {
	mu sync.Mutex

	// LoadErr and PlayErr are returned by the next Load / PlayFrom calls.
	LoadErr error
	PlayErr error

	loaded   string
	started  bool
	paused   bool
	busy     bool
	position int64
	lastFrom float64
	calls    []string
}

var _ audio.Engine = (*Engine)(nil)

// New returns an idle fake engine
func New() *Engine {
	return &Engine{}
}

func (e *Engine) record(call string) {
	e.calls = append(e.calls, call)
}

func (e *Engine) Load(path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("load")
	if e.LoadErr != nil {
		return e.LoadErr
	}
	e.loaded = path
	e.started = false
	e.busy = false
	return nil
}

func (e *Engine) Play() error {
	return e.PlayFrom(0)
}

func (e *Engine) PlayFrom(seconds float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("play")
	if e.PlayErr != nil {
		return e.PlayErr
	}
	if e.loaded == "" {
		return audio.ErrNotLoaded
	}
	e.started = true
	e.paused = false
	e.busy = true
	e.position = 0
	e.lastFrom = seconds
	return nil
}

func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("pause")
	e.paused = true
}

func (e *Engine) Unpause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("unpause")
	e.paused = false
}

func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("stop")
	e.started = false
	e.busy = false
}

func (e *Engine) PositionMillis() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started {
		return audio.NotStarted
	}
	return e.position
}

func (e *Engine) IsBusy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.busy
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("close")
	return nil
}

// SetPosition sets the raw elapsed milliseconds the engine reports
func (e *Engine) SetPosition(ms int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.position = ms
}

// Finish simulates the stream running out at elapsed ms.
func (e *Engine) Finish(ms int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.position = ms
	e.busy = false
}

// Loaded returns the last successfully loaded path
func (e *Engine) Loaded() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loaded
}

// Paused reports whether Pause was called more recently than Unpause or PlayFrom
func (e *Engine) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

// LastPlayFrom returns the offset of the most recent PlayFrom
func (e *Engine) LastPlayFrom() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastFrom
}

// Calls returns the recorded call names in order.
func (e *Engine) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

// Count returns how many times call was made
func (e *Engine) Count(call string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, c := range e.calls {
		if c == call {
			n++
		}
	}
	return n
}
