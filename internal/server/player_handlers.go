package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"lyrebird/internal/player"
)

// handleGetPlayerState returns the current player state
func (ps *PlayerServer) handleGetPlayerState(w http.ResponseWriter, r *http.Request) {
	ps.respondJSON(w, ps.transport.States().GetState())
}

// handleToggle switches between playing and paused
func (ps *PlayerServer) handleToggle(w http.ResponseWriter, r *http.Request) {
	ps.transport.TogglePlay()
	ps.respondJSON(w, ps.transport.States().GetState())
}

// handleNext advances to the next track, wrapping around
func (ps *PlayerServer) handleNext(w http.ResponseWriter, r *http.Request) {
	if err := ps.transport.Next(); err != nil {
		ps.respondWithError(w, r, http.StatusInternalServerError, "Failed to load next track", err)
		return
	}
	ps.respondJSON(w, ps.transport.States().GetState())
}

// handlePrev goes back one track, wrapping around
func (ps *PlayerServer) handlePrev(w http.ResponseWriter, r *http.Request) {
	if err := ps.transport.Prev(); err != nil {
		ps.respondWithError(w, r, http.StatusInternalServerError, "Failed to load previous track", err)
		return
	}
	ps.respondJSON(w, ps.transport.States().GetState())
}

// handleTrackPlay loads the playlist entry at {index}
func (ps *PlayerServer) handleTrackPlay(w http.ResponseWriter, r *http.Request) {
	index, verr := ps.validateIndex(r.PathValue("index"), ps.transport.Playlist().Len())
	if verr != nil {
		ps.respondWithValidationError(w, r, []ValidationError{*verr})
		return
	}

	if err := ps.transport.LoadTrack(index); err != nil {
		// The playlist may have shrunk since validation.
		if errors.Is(err, player.ErrIndexOutOfRange) {
			ps.respondWithError(w, r, http.StatusNotFound, "Playlist entry not found", err)
			return
		}
		ps.respondWithError(w, r, http.StatusInternalServerError, "Failed to load track", err)
		return
	}

	ps.respondJSON(w, ps.transport.States().GetState())
}

// handleSeek ends a seek gesture at the requested position
func (ps *PlayerServer) handleSeek(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Position *float64 `json:"position"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ps.respondWithError(w, r, http.StatusBadRequest, "Invalid JSON", err)
		return
	}

	if verr := ps.validateSeekPosition(req.Position); verr != nil {
		ps.respondWithValidationError(w, r, []ValidationError{*verr})
		return
	}

	// A renderer that never sent seek/begin still gets a full gesture.
	ps.transport.BeginSeekGesture()
	ps.transport.EndSeekGesture(*req.Position)

	ps.respondJSON(w, ps.transport.States().GetState())
}

// handleSeekBegin starts a drag; clock updates pause until the seek lands
func (ps *PlayerServer) handleSeekBegin(w http.ResponseWriter, r *http.Request) {
	ps.transport.BeginSeekGesture()
	ps.respondJSON(w, ps.transport.States().GetState())
}
