package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"lyrebird/internal/player"

	"github.com/sirupsen/logrus"
)

// PlaylistResponse is the playlist as the renderer sees it
type PlaylistResponse struct {
	Entries []player.Entry `json:"entries"`
	Current int            `json:"current"`
}

func (ps *PlayerServer) playlistResponse() PlaylistResponse {
	pl := ps.transport.Playlist()
	return PlaylistResponse{
		Entries: pl.Entries(),
		Current: pl.CurrentIndex(),
	}
}

// handleGetPlaylist returns all entries and the current index
func (ps *PlayerServer) handleGetPlaylist(w http.ResponseWriter, r *http.Request) {
	ps.respondJSON(w, ps.playlistResponse())
}

// handleAddToPlaylist appends files. Paths with unsupported extensions are
// skipped and listed in the response.
func (ps *PlayerServer) handleAddToPlaylist(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Paths []string `json:"paths"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ps.respondWithError(w, r, http.StatusBadRequest, "Invalid JSON", err)
		return
	}

	if errs := ps.validatePaths(req.Paths); len(errs) > 0 {
		ps.respondWithValidationError(w, r, errs)
		return
	}

	skipped := make([]ValidationError, 0)
	for _, p := range req.Paths {
		if verr := ps.validateContentType(p); verr != nil {
			skipped = append(skipped, *verr)
		}
	}

	added, err := ps.transport.Add(req.Paths...)
	if err != nil {
		ps.respondWithError(w, r, http.StatusInternalServerError, "Failed to start playback", err)
		return
	}

	ps.logger.WithFields(logrus.Fields{
		"added":   added,
		"skipped": len(skipped),
	}).Info("Tracks added to playlist")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	ps.respondJSON(w, map[string]interface{}{
		"added":    added,
		"skipped":  skipped,
		"playlist": ps.playlistResponse(),
	})
}

// handleClearPlaylist removes every entry and stops playback
func (ps *PlayerServer) handleClearPlaylist(w http.ResponseWriter, r *http.Request) {
	ps.transport.Clear()
	ps.respondJSON(w, ps.playlistResponse())
}

// handleRemoveFromPlaylist deletes the entry at {index}
func (ps *PlayerServer) handleRemoveFromPlaylist(w http.ResponseWriter, r *http.Request) {
	index, verr := ps.validateIndex(r.PathValue("index"), ps.transport.Playlist().Len())
	if verr != nil {
		ps.respondWithValidationError(w, r, []ValidationError{*verr})
		return
	}

	if err := ps.transport.Remove(index); err != nil {
		if errors.Is(err, player.ErrIndexOutOfRange) {
			ps.respondWithError(w, r, http.StatusNotFound, "Playlist entry not found", err)
			return
		}
		ps.respondWithError(w, r, http.StatusInternalServerError, "Failed to remove entry", err)
		return
	}

	ps.respondJSON(w, ps.playlistResponse())
}
