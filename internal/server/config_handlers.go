package server

import (
	"net/http"
)

// ConfigResponse represents the public configuration sent to the renderer
type ConfigResponse struct {
	Player PlayerConfigResponse `json:"player"`
	Remote RemoteConfigResponse `json:"remote"`
}

// PlayerConfigResponse lets a renderer animate with the same constants
// the engine uses.
type PlayerConfigResponse struct {
	TickIntervalMs   int      `json:"tick_interval_ms"`
	FrameIntervalMs  int      `json:"frame_interval_ms"`
	Smoothing        float64  `json:"smoothing"`
	LineHeight       float64  `json:"line_height"`
	Loop             bool     `json:"loop"`
	SupportedFormats []string `json:"supported_formats"`
}

// RemoteConfigResponse says whether missing metadata is looked up online.
// Endpoints and cookies stay private.
type RemoteConfigResponse struct {
	Enabled   bool     `json:"enabled"`
	Providers []string `json:"providers"`
}

// handleGetConfig returns public configuration settings for the renderer
func (ps *PlayerServer) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg := ps.config
	ps.respondJSON(w, ConfigResponse{
		Player: PlayerConfigResponse{
			TickIntervalMs:   cfg.Player.TickIntervalMs,
			FrameIntervalMs:  cfg.Player.FrameIntervalMs,
			Smoothing:        cfg.Player.Smoothing,
			LineHeight:       cfg.Player.LineHeight,
			Loop:             cfg.Player.Loop,
			SupportedFormats: cfg.Player.SupportedFormats,
		},
		Remote: RemoteConfigResponse{
			Enabled:   cfg.Remote.Enabled,
			Providers: cfg.Remote.Providers,
		},
	})
}
