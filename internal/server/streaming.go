package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const (
	// Comment line sent when nothing changed, so proxies keep the stream open
	keepAliveInterval = 15 * time.Second
)

// handleEvents streams state snapshots and playlist changes as
// server-sent events until the client goes away. A renderer may name
// itself with ?name= so it shows up in /api/renderers.
func (ps *PlayerServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		ps.respondWithError(w, r, http.StatusInternalServerError, "Streaming unsupported", nil)
		return
	}

	states := ps.transport.States()
	stateCh := states.Subscribe()
	defer states.Unsubscribe(stateCh)

	playlist := ps.transport.Playlist()
	playlistCh := playlist.Subscribe()
	defer playlist.Unsubscribe(playlistCh)

	id := ps.renderers.Attach(sanitizeInput(r.URL.Query().Get("name")), r.UserAgent(), r.RemoteAddr)
	defer ps.renderers.Detach(id)
	ps.logger.WithField("renderer", id).Debug("Renderer attached")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// Start from the current state so the client needn't poll first.
	if err := ps.writeEvent(w, "state", states.GetState()); err != nil {
		return
	}
	flusher.Flush()
	ps.renderers.Delivered(id)

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		var err error
		select {
		case <-r.Context().Done():
			return
		case st, ok := <-stateCh:
			if !ok {
				return
			}
			err = ps.writeEvent(w, "state", st)
		case ev, ok := <-playlistCh:
			if !ok {
				return
			}
			err = ps.writeEvent(w, "playlist", ev)
		case <-keepAlive.C:
			_, err = fmt.Fprint(w, ": keep-alive\n\n")
		}
		if err != nil {
			ps.logger.WithError(err).WithField("renderer", id).Debug("Event stream closed")
			return
		}
		flusher.Flush()
		ps.renderers.Delivered(id)
	}
}

// handleGetRenderers lists the clients attached to the event stream
func (ps *PlayerServer) handleGetRenderers(w http.ResponseWriter, r *http.Request) {
	ps.respondJSON(w, ps.renderers.List())
}

// writeEvent writes one server-sent event with a JSON payload
func (ps *PlayerServer) writeEvent(w http.ResponseWriter, name string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("error encoding %s event: %w", name, err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return fmt.Errorf("error writing %s event: %w", name, err)
	}
	return nil
}
