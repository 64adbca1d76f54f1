package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"lyrebird/internal/audio/audiotest"
	"lyrebird/internal/config"
	"lyrebird/internal/lyrics"
	"lyrebird/internal/metadata"
	"lyrebird/internal/player"
	"lyrebird/internal/resolver"
	"lyrebird/internal/session"

	"github.com/sirupsen/logrus"
)

type stubResolver struct{}

func (stubResolver) Resolve(_ context.Context, path string) *resolver.Record {
	title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	rec := &resolver.Record{
		Path:         path,
		Title:        title,
		Artist:       metadata.UnknownArtist,
		Duration:     120,
		Lyrics:       lyrics.Build("[00:01.00]first\n[00:04.00]second"),
		LyricsSource: resolver.SourceSidecar,
	}
	rec.SetCover(metadata.PlaceholderCover(), resolver.SourcePlaceholder)
	return rec
}

func (stubResolver) FetchRemote(context.Context, resolver.Request) resolver.Result {
	return resolver.Result{}
}

func (stubResolver) ReloadSidecar(string) (*lyrics.Index, bool) { return nil, false }

func (stubResolver) RemoteEnabled() bool { return false }

type fakePinger struct{ err error }

func (p fakePinger) Ping() error { return p.err }

type fakeCachePinger struct{ err error }

func (p fakeCachePinger) Ping(context.Context) error { return p.err }

type testEnv struct {
	server    *httptest.Server
	transport *player.Transport
	engine    *audiotest.Engine
	dir       string
}

func newTestEnv(t *testing.T, ledger LedgerPinger, cache CachePinger) *testEnv {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	cfg := config.DefaultConfig()
	cfg.Server.EnableCORS = true
	cfg.Logging.RequestLogging = true

	engine := audiotest.New()
	opts := player.OptionsFromConfig(cfg.Player)
	opts.WatchSidecars = false
	tr := player.NewTransport(engine, stubResolver{}, opts, logger)

	ps := NewPlayerServer(cfg, tr, ledger, cache, logger)
	srv := httptest.NewServer(ps.Handler())

	t.Cleanup(func() {
		srv.Close()
		tr.Close()
	})

	return &testEnv{server: srv, transport: tr, engine: engine, dir: t.TempDir()}
}

func (e *testEnv) track(t *testing.T, name string) string {
	t.Helper()
	p := filepath.Join(e.dir, name)
	if err := os.WriteFile(p, []byte("audio"), 0644); err != nil {
		t.Fatal(err)
	}
	return p
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestPlaylistEndpoints(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	a, b := env.track(t, "a.mp3"), env.track(t, "b.flac")
	notes := env.track(t, "notes.txt")

	resp := env.do(t, http.MethodPost, "/api/playlist", map[string][]string{"paths": {a, notes, b}})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("POST /api/playlist status = %d", resp.StatusCode)
	}
	var added struct {
		Added    int               `json:"added"`
		Skipped  []ValidationError `json:"skipped"`
		Playlist PlaylistResponse  `json:"playlist"`
	}
	decode(t, resp, &added)
	if added.Added != 2 || len(added.Skipped) != 1 || added.Playlist.Current != 0 {
		t.Errorf("add response = %+v", added)
	}
	if env.engine.Loaded() != a {
		t.Errorf("first track not started, engine holds %q", env.engine.Loaded())
	}

	resp = env.do(t, http.MethodGet, "/api/playlist", nil)
	var pl PlaylistResponse
	decode(t, resp, &pl)
	if len(pl.Entries) != 2 || pl.Entries[1].Path != b || pl.Entries[0].ID == "" {
		t.Errorf("GET /api/playlist = %+v", pl)
	}

	resp = env.do(t, http.MethodDelete, "/api/playlist/0", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("DELETE status = %d", resp.StatusCode)
	}
	decode(t, resp, &pl)
	if len(pl.Entries) != 1 || pl.Current != 0 || env.engine.Loaded() != b {
		t.Errorf("after delete: %+v, engine %q", pl, env.engine.Loaded())
	}

	resp = env.do(t, http.MethodDelete, "/api/playlist/7", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("DELETE out of range status = %d", resp.StatusCode)
	}
}

func TestAddMissingFileRejected(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	resp := env.do(t, http.MethodPost, "/api/playlist", map[string][]string{"paths": {filepath.Join(env.dir, "nope.mp3")}})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var result ValidationResult
	decode(t, resp, &result)
	if result.Valid || len(result.Errors) != 1 || result.Errors[0].Code != "FILE_NOT_FOUND" {
		t.Errorf("validation result = %+v", result)
	}
	if env.transport.Playlist().Len() != 0 {
		t.Errorf("rejected request changed the playlist")
	}
}

func TestAddNullBytePathRejected(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	a := env.track(t, "a.mp3")

	resp := env.do(t, http.MethodPost, "/api/playlist", map[string][]string{"paths": {a + "\x00"}})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	var result ValidationResult
	decode(t, resp, &result)
	if len(result.Errors) != 1 || result.Errors[0].Code != "INVALID_FILE_PATH" {
		t.Errorf("validation result = %+v", result)
	}
	if env.transport.Playlist().Len() != 0 {
		t.Errorf("rejected request changed the playlist")
	}
}

func TestClearPlaylistEndpoint(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	a, b := env.track(t, "a.mp3"), env.track(t, "b.wav")
	env.do(t, http.MethodPost, "/api/playlist", map[string][]string{"paths": {a, b}})

	resp := env.do(t, http.MethodDelete, "/api/playlist", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("DELETE /api/playlist status = %d", resp.StatusCode)
	}
	var pl PlaylistResponse
	decode(t, resp, &pl)
	if len(pl.Entries) != 0 || pl.Current != -1 {
		t.Errorf("playlist after clear = %+v", pl)
	}
	if env.transport.Status() != player.StatusIdle || env.transport.Record() != nil {
		t.Errorf("transport after clear: status %s, record %v", env.transport.Status(), env.transport.Record())
	}
}

func TestTransportEndpoints(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.transport.Add(env.track(t, "one.mp3"), env.track(t, "two.mp3"), env.track(t, "three.mp3"))

	var st player.State
	decode(t, env.do(t, http.MethodPost, "/api/player/toggle", nil), &st)
	if st.Status != player.StatusPaused {
		t.Errorf("toggle -> %s", st.Status)
	}

	decode(t, env.do(t, http.MethodPost, "/api/player/prev", nil), &st)
	if st.Index != 2 || st.Status != player.StatusPlaying || st.Track.Title != "three" {
		t.Errorf("prev from 0 -> %+v", st)
	}

	decode(t, env.do(t, http.MethodPost, "/api/player/next", nil), &st)
	if st.Index != 0 {
		t.Errorf("next from 2 -> %d", st.Index)
	}

	decode(t, env.do(t, http.MethodPost, "/api/player/play/1", nil), &st)
	if st.Index != 1 || st.Track.Title != "two" {
		t.Errorf("play/1 -> %+v", st)
	}

	resp := env.do(t, http.MethodPost, "/api/player/play/x", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("play/x status = %d", resp.StatusCode)
	}

	resp = env.do(t, http.MethodGet, "/api/player/toggle", nil)
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET toggle status = %d", resp.StatusCode)
	}
}

func TestSeekEndpoints(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.transport.Add(env.track(t, "one.mp3"))

	var st player.State
	decode(t, env.do(t, http.MethodPost, "/api/player/seek/begin", nil), &st)
	if !st.Dragging {
		t.Errorf("seek/begin did not start dragging")
	}

	decode(t, env.do(t, http.MethodPost, "/api/player/seek", map[string]float64{"position": 4.5}), &st)
	if st.Dragging || st.Position != 4.5 || st.ActiveLine != 1 || st.ActiveText != "second" {
		t.Errorf("after seek: %+v", st)
	}
	if env.engine.LastPlayFrom() != 4.5 {
		t.Errorf("engine started at %v", env.engine.LastPlayFrom())
	}

	decode(t, env.do(t, http.MethodPost, "/api/player/seek", map[string]float64{"position": 999}), &st)
	if st.Position != 120 {
		t.Errorf("seek past the end not clamped: %v", st.Position)
	}

	resp := env.do(t, http.MethodPost, "/api/player/seek", map[string]string{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("seek without position status = %d", resp.StatusCode)
	}
}

func TestLyricsAndCover(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	resp := env.do(t, http.MethodGet, "/api/lyrics", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("lyrics with nothing loaded status = %d", resp.StatusCode)
	}

	env.transport.Add(env.track(t, "one.mp3"))

	var ly LyricsResponse
	decode(t, env.do(t, http.MethodGet, "/api/lyrics?format=lrc", nil), &ly)
	if len(ly.Lines) != 2 || ly.ActiveLine != -1 || ly.ActiveText != lyrics.Placeholder || ly.Source != "sidecar" {
		t.Errorf("lyrics = %+v", ly)
	}
	if !strings.Contains(ly.LRC, "[00:04.00]second") {
		t.Errorf("LRC = %q", ly.LRC)
	}

	resp = env.do(t, http.MethodGet, "/api/cover", nil)
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/png" {
		t.Errorf("cover status = %d, type = %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	if resp.Header.Get("X-Cover-Source") != "placeholder" || resp.Header.Get("X-Cover-Tint") != "#111111" {
		t.Errorf("cover headers = %v", resp.Header)
	}
}

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name       string
		ledger     LedgerPinger
		cache      CachePinger
		wantStatus int
		wantHealth string
	}{
		{name: "no dependencies", wantStatus: http.StatusOK, wantHealth: "healthy"},
		{name: "all ok", ledger: fakePinger{}, cache: fakeCachePinger{}, wantStatus: http.StatusOK, wantHealth: "healthy"},
		{name: "database down", ledger: fakePinger{err: errors.New("locked")}, wantStatus: http.StatusServiceUnavailable, wantHealth: "unhealthy"},
		{name: "cache down", cache: fakeCachePinger{err: errors.New("refused")}, wantStatus: http.StatusServiceUnavailable, wantHealth: "unhealthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.ledger, tt.cache)
			resp := env.do(t, http.MethodGet, "/health", nil)
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			var health HealthStatus
			decode(t, resp, &health)
			if health.Status != tt.wantHealth || health.Player != "idle" {
				t.Errorf("health = %+v", health)
			}
		})
	}
}

func TestConfigEndpoint(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	var cfg ConfigResponse
	decode(t, env.do(t, http.MethodGet, "/api/config", nil), &cfg)
	if cfg.Player.TickIntervalMs != 500 || cfg.Player.Smoothing != 0.2 || len(cfg.Player.SupportedFormats) != 4 {
		t.Errorf("config = %+v", cfg)
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	resp := env.do(t, http.MethodOptions, "/api/player/toggle", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("preflight status = %d", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("missing CORS header")
	}
}

func TestEventStream(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, env.server.URL+"/api/player/events?name=desk", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %s", ct)
	}

	lines := make(chan string, 64)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	expect := func(event string) {
		t.Helper()
		for {
			select {
			case line, ok := <-lines:
				if !ok {
					t.Fatalf("stream ended before %q", event)
				}
				if line == "event: "+event {
					return
				}
			case <-ctx.Done():
				t.Fatalf("no %q event", event)
			}
		}
	}

	expect("state")

	var renderers []session.Renderer
	decode(t, env.do(t, http.MethodGet, "/api/renderers", nil), &renderers)
	if len(renderers) != 1 || renderers[0].Name != "desk" {
		t.Errorf("renderers = %+v", renderers)
	}

	env.transport.Add(env.track(t, "one.mp3"))
	expect("playlist")
}
