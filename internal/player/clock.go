package player

import (
	"lyrebird/internal/audio"
)

// Clock turns the engine's elapsed-since-play counter into a track
// position. The engine restarts its counter on every PlayFrom, so the
// clock remembers where that play started.
type Clock struct {
	engine     audio.Engine
	seekOffset float64
	total      float64
}

// NewClock creates a clock over engine
func NewClock(engine audio.Engine) *Clock {
	return &Clock{engine: engine}
}

// Reset forgets the seek offset and sets the track length for clamping.
func (c *Clock) Reset(total float64) {
	c.seekOffset = 0
	if total < 0 {
		total = 0
	}
	c.total = total
}

// Total returns the current track length in seconds
func (c *Clock) Total() float64 {
	return c.total
}

// SeekOffset returns where the last play started
func (c *Clock) SeekOffset() float64 {
	return c.seekOffset
}

// Position returns seconds into the track. A not-started engine counts as
// zero elapsed. The upper clamp only applies when the length is known.
func (c *Clock) Position() float64 {
	raw := c.engine.PositionMillis()
	if raw == audio.NotStarted || raw < 0 {
		raw = 0
	}
	return c.Clamp(float64(raw)/1000 + c.seekOffset)
}

// Clamp bounds t to the track
func (c *Clock) Clamp(t float64) float64 {
	if t < 0 {
		return 0
	}
	if c.total > 0 && t > c.total {
		return c.total
	}
	return t
}

// Seek restarts playback at target and returns the clamped target. The
// offset only moves when the engine accepted the seek.
func (c *Clock) Seek(target float64) (float64, error) {
	target = c.Clamp(target)
	if err := c.engine.PlayFrom(target); err != nil {
		return target, err
	}
	c.seekOffset = target
	return target, nil
}
