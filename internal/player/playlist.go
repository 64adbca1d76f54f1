package player

import (
	"sync"

	"github.com/google/uuid"
)

// Entry is one track reference in the playlist
type Entry struct {
	ID   string `json:"id"`
	Path string `json:"path"`
}

// EventKind names a playlist change
type EventKind string

const (
	EventAppended       EventKind = "appended"
	EventRemoved        EventKind = "removed"
	EventCurrentChanged EventKind = "current-changed"
	EventCleared        EventKind = "cleared"
)

// Event describes one playlist change. Index is the affected position
// for appended/removed events; Current and Len describe the list after
// the change.
type Event struct {
	Kind    EventKind `json:"kind"`
	Index   int       `json:"index"`
	Entry   Entry     `json:"entry"`
	Current int       `json:"current"`
	Len     int       `json:"len"`
}

// Playlist is an ordered list of tracks with a current pointer.
// current is -1 exactly when the list is empty.
type Playlist struct {
	mu        sync.RWMutex
	entries   []Entry
	current   int
	listeners []chan Event
}

// NewPlaylist creates an empty playlist
func NewPlaylist() *Playlist {
	return &Playlist{current: -1}
}

// Append adds paths in order. It reports whether the list was empty
// beforehand, in which case current now points at the first new entry.
func (p *Playlist) Append(paths ...string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(paths) == 0 {
		return false
	}

	wasEmpty := len(p.entries) == 0
	for _, path := range paths {
		e := Entry{ID: uuid.NewString(), Path: path}
		p.entries = append(p.entries, e)
		p.notify(Event{Kind: EventAppended, Index: len(p.entries) - 1, Entry: e})
	}

	if wasEmpty {
		p.current = 0
		p.notify(Event{Kind: EventCurrentChanged, Index: 0, Entry: p.entries[0]})
	}
	return wasEmpty
}

// RemoveAt deletes entry i. Removing the current entry moves current to
// the entry that slid into its place, or wraps to 0 when it was last.
// removedCurrent reports that case; ok is false for an out-of-range i.
func (p *Playlist) RemoveAt(i int) (removedCurrent, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if i < 0 || i >= len(p.entries) {
		return false, false
	}

	removed := p.entries[i]
	p.entries = append(p.entries[:i], p.entries[i+1:]...)
	removedCurrent = i == p.current
	before := p.current

	switch {
	case len(p.entries) == 0:
		p.current = -1
	case i < p.current:
		p.current--
	case removedCurrent && i >= len(p.entries):
		p.current = 0
	}

	p.notify(Event{Kind: EventRemoved, Index: i, Entry: removed})
	if removedCurrent || p.current != before {
		ev := Event{Kind: EventCurrentChanged, Index: p.current}
		if p.current >= 0 {
			ev.Entry = p.entries[p.current]
		}
		p.notify(ev)
	}
	return removedCurrent, true
}

// Step moves current by delta, wrapping in both directions, and returns
// the new index. It returns -1 on an empty list.
func (p *Playlist) Step(delta int) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.entries)
	if n == 0 {
		return -1
	}

	if p.current < 0 {
		p.current = 0
	} else {
		p.current = ((p.current+delta)%n + n) % n
	}
	p.notify(Event{Kind: EventCurrentChanged, Index: p.current, Entry: p.entries[p.current]})
	return p.current
}

// Select makes i current
func (p *Playlist) Select(i int) (Entry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if i < 0 || i >= len(p.entries) {
		return Entry{}, false
	}
	if i != p.current {
		p.current = i
		p.notify(Event{Kind: EventCurrentChanged, Index: i, Entry: p.entries[i]})
	}
	return p.entries[i], true
}

// Clear removes every entry
func (p *Playlist) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.entries = nil
	p.current = -1
	p.notify(Event{Kind: EventCleared, Index: -1})
}

// Current returns the current entry and its index
func (p *Playlist) Current() (Entry, int, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.current < 0 {
		return Entry{}, -1, false
	}
	return p.entries[p.current], p.current, true
}

// CurrentIndex returns the current index or -1
func (p *Playlist) CurrentIndex() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// IsLast reports whether current is the final entry
func (p *Playlist) IsLast() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current >= 0 && p.current == len(p.entries)-1
}

// Entries returns a copy of the entries
func (p *Playlist) Entries() []Entry {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]Entry, len(p.entries))
	copy(out, p.entries)
	return out
}

// Len returns the number of entries
func (p *Playlist) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}

// Subscribe returns a channel of playlist changes. Events are dropped for
// a subscriber whose buffer is full.
func (p *Playlist) Subscribe() <-chan Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch := make(chan Event, 32)
	p.listeners = append(p.listeners, ch)
	return ch
}

// Unsubscribe removes and closes a subscription
func (p *Playlist) Unsubscribe(ch <-chan Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, listener := range p.listeners {
		if listener == ch {
			close(listener)
			p.listeners = append(p.listeners[:i], p.listeners[i+1:]...)
			break
		}
	}
}

// notify must be called with the lock held
func (p *Playlist) notify(ev Event) {
	ev.Current = p.current
	ev.Len = len(p.entries)
	for _, listener := range p.listeners {
		select {
		case listener <- ev:
		default:
		}
	}
}
