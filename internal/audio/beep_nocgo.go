//go:build !((linux && cgo) || windows || darwin)

package audio

import (
	"github.com/sirupsen/logrus"
)

// Available indicates whether audio playback is supported in this build.
// Audio output needs cgo for the native sound libraries.
const Available = false

// BeepEngine is a stand-in for builds without cgo. Every Load fails, so the
// transport reports a decode failure and stays Idle.
type BeepEngine struct {
	logger *logrus.Logger
}

// NewEngine creates the stand-in engine.
func NewEngine(logger *logrus.Logger) *BeepEngine {
	return &BeepEngine{logger: logger}
}

func (e *BeepEngine) Load(path string) error {
	e.logger.WithField("path", path).Debug("Audio output not compiled in")
	return ErrUnavailable
}

func (e *BeepEngine) Play() error            { return ErrUnavailable }
func (e *BeepEngine) PlayFrom(float64) error { return ErrUnavailable }
func (e *BeepEngine) Pause()                 {}
func (e *BeepEngine) Unpause()               {}
func (e *BeepEngine) Stop()                  {}
func (e *BeepEngine) PositionMillis() int64  { return NotStarted }
func (e *BeepEngine) IsBusy() bool           { return false }
func (e *BeepEngine) Close() error           { return nil }
