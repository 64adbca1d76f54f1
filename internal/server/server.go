package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"lyrebird/internal/config"
	"lyrebird/internal/player"
	"lyrebird/internal/session"

	"github.com/sirupsen/logrus"
)

// LedgerPinger is the health probe of the fetch ledger
type LedgerPinger interface {
	Ping() error
}

// CachePinger is the health probe of the fallback cache
type CachePinger interface {
	Ping(ctx context.Context) error
}

// PlayerServer exposes the transport as a JSON API for an external renderer.
type PlayerServer struct {
	config    *config.Config
	transport *player.Transport
	ledger    LedgerPinger
	cache     CachePinger
	renderers *session.Registry
	logger    *logrus.Logger
}

// NewPlayerServer creates the API server. ledger and cache may be nil, in
// which case /health skips them.
func NewPlayerServer(cfg *config.Config, transport *player.Transport, ledger LedgerPinger, cache CachePinger, logger *logrus.Logger) *PlayerServer {
	return &PlayerServer{
		config:    cfg,
		transport: transport,
		ledger:    ledger,
		cache:     cache,
		renderers: session.NewRegistry(),
		logger:    logger,
	}
}

// Handler returns the routed API wrapped in the middleware chain.
func (ps *PlayerServer) Handler() http.Handler {
	mux := http.NewServeMux()
	ps.setupRoutes(mux)

	var h http.Handler = mux
	h = ps.corsMiddleware(h)
	h = ps.requestLoggingMiddleware(h)
	h = ps.panicRecoveryMiddleware(h)
	return h
}

func (ps *PlayerServer) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", ps.handleHealthCheck)
	mux.HandleFunc("GET /api/config", ps.handleGetConfig)

	// Player routes
	mux.HandleFunc("GET /api/player/state", ps.handleGetPlayerState)
	mux.HandleFunc("GET /api/player/events", ps.handleEvents)
	mux.HandleFunc("GET /api/renderers", ps.handleGetRenderers)
	mux.HandleFunc("POST /api/player/toggle", ps.handleToggle)
	mux.HandleFunc("POST /api/player/next", ps.handleNext)
	mux.HandleFunc("POST /api/player/prev", ps.handlePrev)
	mux.HandleFunc("POST /api/player/play/{index}", ps.handleTrackPlay)
	mux.HandleFunc("POST /api/player/seek", ps.handleSeek)
	mux.HandleFunc("POST /api/player/seek/begin", ps.handleSeekBegin)

	// Playlist routes
	mux.HandleFunc("GET /api/playlist", ps.handleGetPlaylist)
	mux.HandleFunc("POST /api/playlist", ps.handleAddToPlaylist)
	mux.HandleFunc("DELETE /api/playlist", ps.handleClearPlaylist)
	mux.HandleFunc("DELETE /api/playlist/{index}", ps.handleRemoveFromPlaylist)

	// Track metadata
	mux.HandleFunc("GET /api/lyrics", ps.handleGetLyrics)
	mux.HandleFunc("GET /api/cover", ps.handleCover)
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (ps *PlayerServer) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:        ps.config.GetAddress(),
		Handler:     ps.Handler(),
		ReadTimeout: time.Duration(ps.config.Server.ReadTimeout) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		ps.logger.WithField("address", fmt.Sprintf("http://%s", ps.config.GetAddress())).Info("Player API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("player API failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	ps.logger.Info("Shutting down player API...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down player API: %w", err)
	}
	return nil
}
