package player

import (
	"math"
	"sync"
)

const (
	// DefaultSmoothing is the fraction of the remaining gap closed per frame
	DefaultSmoothing = 0.2
	// SettleThreshold is the gap below which the animator snaps and stops
	SettleThreshold = 0.5
)

// Animator eases the lyric scroll offset toward its target. The target
// changes once per active-line change; Step runs once per frame.
type Animator struct {
	mu        sync.Mutex
	current   float64
	target    float64
	smoothing float64
}

// NewAnimator creates an animator at the origin. Smoothing outside (0, 1]
// falls back to DefaultSmoothing.
func NewAnimator(smoothing float64) *Animator {
	if smoothing <= 0 || smoothing > 1 {
		smoothing = DefaultSmoothing
	}
	return &Animator{smoothing: smoothing}
}

// SetTarget sets where the scroll should settle
func (a *Animator) SetTarget(target float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.target = target
}

// Reset puts both offsets back at the origin
func (a *Animator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.current = 0
	a.target = 0
}

// Step advances one frame. It returns false once settled, after snapping
// the offset onto the target.
func (a *Animator) Step() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	gap := a.target - a.current
	if math.Abs(gap) < SettleThreshold {
		a.current = a.target
		return false
	}
	a.current += gap * a.smoothing
	return true
}

// Offset returns the current scroll offset
func (a *Animator) Offset() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

// Target returns the scroll target
func (a *Animator) Target() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.target
}

// Settled reports whether Step would do nothing
func (a *Animator) Settled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return math.Abs(a.target-a.current) < SettleThreshold
}

// StepsToConverge returns how many moving frames the animator needs from
// its current state before it settles.
func (a *Animator) StepsToConverge() int {
	a.mu.Lock()
	gap, s := math.Abs(a.target-a.current), a.smoothing
	a.mu.Unlock()

	n := 0
	for gap >= SettleThreshold {
		gap -= gap * s
		n++
	}
	return n
}
