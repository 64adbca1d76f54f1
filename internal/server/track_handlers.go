package server

import (
	"net/http"
	"strconv"

	"lyrebird/internal/lyrics"
)

// LyricsResponse carries the whole index so the renderer can lay out
// every line once and only follow the active index afterwards.
type LyricsResponse struct {
	Source     string        `json:"source"`
	Lines      []lyrics.Line `json:"lines"`
	ActiveLine int           `json:"activeLine"`
	ActiveText string        `json:"activeText"`
	LRC        string        `json:"lrc,omitempty"`
}

// handleGetLyrics returns the lyric index of the current track
func (ps *PlayerServer) handleGetLyrics(w http.ResponseWriter, r *http.Request) {
	rec := ps.transport.Record()
	if rec == nil {
		ps.respondWithError(w, r, http.StatusNotFound, "No track loaded", nil)
		return
	}

	active := ps.transport.ActiveLine()
	resp := LyricsResponse{
		Source:     string(rec.LyricsSource),
		Lines:      rec.Lyrics.Lines(),
		ActiveLine: active,
		ActiveText: rec.Lyrics.TextAt(active),
	}
	if resp.Lines == nil {
		resp.Lines = []lyrics.Line{}
	}
	if r.URL.Query().Get("format") == "lrc" {
		resp.LRC = rec.Lyrics.LRC()
	}

	ps.respondJSON(w, resp)
}

// handleCover serves the cover of the current track, or the placeholder
func (ps *PlayerServer) handleCover(w http.ResponseWriter, r *http.Request) {
	rec := ps.transport.Record()
	if rec == nil || len(rec.Cover) == 0 {
		ps.respondWithError(w, r, http.StatusNotFound, "No cover available", nil)
		return
	}

	w.Header().Set("Content-Type", rec.CoverMIME)
	w.Header().Set("Content-Length", strconv.Itoa(len(rec.Cover)))
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Cover-Source", string(rec.CoverSource))
	w.Header().Set("X-Cover-Tint", rec.Tint)

	w.Write(rec.Cover)
}
