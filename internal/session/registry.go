package session

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Renderer is a client attached to the player's event stream
type Renderer struct {
	ID          string    `json:"id"`
	Name        string    `json:"name,omitempty"`
	UserAgent   string    `json:"userAgent"`
	RemoteAddr  string    `json:"remoteAddr"`
	ConnectedAt time.Time `json:"connectedAt"`
	LastEvent   time.Time `json:"lastEvent"`
	Events      int       `json:"events"`

	seq uint64
}

// Registry tracks the renderers currently attached
type Registry struct {
	mutex     sync.RWMutex
	renderers map[string]*Renderer
	seq       uint64
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		renderers: make(map[string]*Renderer),
	}
}

// Attach registers a renderer and returns its ID
func (r *Registry) Attach(name, userAgent, remoteAddr string) string {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	now := time.Now()
	r.seq++
	renderer := &Renderer{
		seq:         r.seq,
		ID:          uuid.NewString(),
		Name:        name,
		UserAgent:   userAgent,
		RemoteAddr:  remoteAddr,
		ConnectedAt: now,
		LastEvent:   now,
	}
	r.renderers[renderer.ID] = renderer
	return renderer.ID
}

// Delivered records that an event reached renderer id
func (r *Registry) Delivered(id string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if renderer, ok := r.renderers[id]; ok {
		renderer.Events++
		renderer.LastEvent = time.Now()
	}
}

// Detach removes a renderer. Unknown IDs are ignored.
func (r *Registry) Detach(id string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	delete(r.renderers, id)
}

// Get returns a copy of renderer id
func (r *Registry) Get(id string) (Renderer, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	renderer, ok := r.renderers[id]
	if !ok {
		return Renderer{}, false
	}
	return *renderer, true
}

// List returns copies of all attached renderers, oldest first
func (r *Registry) List() []Renderer {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	result := make([]Renderer, 0, len(r.renderers))
	for _, renderer := range r.renderers {
		result = append(result, *renderer)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].seq < result[j].seq
	})
	return result
}

// Count returns how many renderers are attached
func (r *Registry) Count() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.renderers)
}
