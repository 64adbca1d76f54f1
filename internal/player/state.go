package player

import (
	"sync"
	"time"
)

// Status is the transport state
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusPlaying Status = "playing"
	StatusPaused  Status = "paused"
)

// TrackSummary is the part of a Track Record a renderer needs
type TrackSummary struct {
	EntryID  string  `json:"entryId"`
	Path     string  `json:"path"`
	Title    string  `json:"title"`
	Artist   string  `json:"artist"`
	Album    string  `json:"album,omitempty"`
	Duration float64 `json:"duration"`
}

// State represents the current player state
type State struct {
	Status       Status        `json:"status"`
	Track        *TrackSummary `json:"track,omitempty"`
	Position     float64       `json:"position"` // in seconds
	Duration     float64       `json:"duration"` // in seconds
	ActiveLine   int           `json:"activeLine"`
	ActiveText   string        `json:"activeText"`
	ScrollOffset float64       `json:"scrollOffset"`
	Dragging     bool          `json:"dragging"`
	Index        int           `json:"index"`
	Length       int           `json:"length"`
	Tint         string        `json:"tint"`
	LyricsSource string        `json:"lyricsSource"`
	CoverSource  string        `json:"coverSource"`
	DecodeError  string        `json:"decodeError,omitempty"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// StateManager manages the player state and notifies listeners
type StateManager struct {
	state     *State
	mutex     sync.RWMutex
	listeners []chan *State
}

// NewStateManager creates a new player state manager
func NewStateManager() *StateManager {
	return &StateManager{
		state: &State{
			Status:     StatusIdle,
			ActiveLine: -1,
			Index:      -1,
			UpdatedAt:  time.Now(),
		},
		listeners: make([]chan *State, 0),
	}
}

// GetState returns the current player state (thread-safe)
func (sm *StateManager) GetState() *State {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()

	stateCopy := *sm.state
	if sm.state.Track != nil {
		track := *sm.state.Track
		stateCopy.Track = &track
	}
	return &stateCopy
}

// Set replaces the state, keeping the scroll offset which the animation
// loop owns, and notifies listeners.
func (sm *StateManager) Set(state State) {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	state.ScrollOffset = sm.state.ScrollOffset
	state.UpdatedAt = time.Now()
	sm.state = &state
	sm.notifyListeners()
}

// UpdateScroll records the animated offset. It runs every frame, so it
// does not notify.
func (sm *StateManager) UpdateScroll(offset float64) {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()
	sm.state.ScrollOffset = offset
}

// Subscribe adds a listener for state changes
func (sm *StateManager) Subscribe() <-chan *State {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	ch := make(chan *State, 10)
	sm.listeners = append(sm.listeners, ch)
	return ch
}

// Unsubscribe removes a listener (call this when done to prevent memory leaks)
func (sm *StateManager) Unsubscribe(ch <-chan *State) {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	for i, listener := range sm.listeners {
		if listener == ch {
			close(listener)
			sm.listeners = append(sm.listeners[:i], sm.listeners[i+1:]...)
			break
		}
	}
}

// notifyListeners sends state updates to all subscribers (must be called with lock held).
// A listener whose buffer is full misses this update.
func (sm *StateManager) notifyListeners() {
	for _, listener := range sm.listeners {
		stateCopy := *sm.state
		if sm.state.Track != nil {
			track := *sm.state.Track
			stateCopy.Track = &track
		}
		select {
		case listener <- &stateCopy:
		default:
		}
	}
}
