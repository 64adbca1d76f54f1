package server

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"lyrebird/internal/config"
	"lyrebird/internal/session"

	"github.com/sirupsen/logrus"
)

func createTestPlayerServer() *PlayerServer {
	cfg := config.DefaultConfig()

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel) // Reduce noise in tests

	return &PlayerServer{
		config:    cfg,
		renderers: session.NewRegistry(),
		logger:    logger,
	}
}

func TestValidateIndex(t *testing.T) {
	ps := createTestPlayerServer()

	tests := []struct {
		name      string
		raw       string
		length    int
		wantIndex int
		wantError bool
	}{
		{
			name:      "valid index",
			raw:       "2",
			length:    3,
			wantIndex: 2,
			wantError: false,
		},
		{
			name:      "first index",
			raw:       "0",
			length:    1,
			wantIndex: 0,
			wantError: false,
		},
		{
			name:      "missing index",
			raw:       "",
			length:    3,
			wantError: true,
		},
		{
			name:      "invalid index format",
			raw:       "abc",
			length:    3,
			wantError: true,
		},
		{
			name:      "negative index",
			raw:       "-1",
			length:    3,
			wantError: true,
		},
		{
			name:      "index past the end",
			raw:       "3",
			length:    3,
			wantError: true,
		},
		{
			name:      "empty playlist",
			raw:       "0",
			length:    0,
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			index, err := ps.validateIndex(tt.raw, tt.length)

			if tt.wantError && err == nil {
				t.Errorf("validateIndex() expected error but got none")
			}
			if !tt.wantError && err != nil {
				t.Errorf("validateIndex() unexpected error: %v", err)
			}
			if !tt.wantError && index != tt.wantIndex {
				t.Errorf("validateIndex() = %v, want %v", index, tt.wantIndex)
			}
		})
	}
}

func TestValidateSeekPosition(t *testing.T) {
	ps := createTestPlayerServer()

	f := func(v float64) *float64 { return &v }

	tests := []struct {
		name      string
		position  *float64
		wantError bool
	}{
		{name: "valid position", position: f(42.5), wantError: false},
		{name: "negative position is clamped later", position: f(-3), wantError: false},
		{name: "missing position", position: nil, wantError: true},
		{name: "not a number", position: f(math.NaN()), wantError: true},
		{name: "infinite", position: f(math.Inf(1)), wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ps.validateSeekPosition(tt.position)

			if tt.wantError && err == nil {
				t.Errorf("validateSeekPosition() expected error but got none")
			}
			if !tt.wantError && err != nil {
				t.Errorf("validateSeekPosition() unexpected error: %v", err)
			}
		})
	}
}

func TestValidateFilePath(t *testing.T) {
	ps := createTestPlayerServer()

	dir := t.TempDir()
	song := filepath.Join(dir, "song.mp3")
	if err := os.WriteFile(song, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		filePath  string
		wantError bool
	}{
		{
			name:      "existing file",
			filePath:  song,
			wantError: false,
		},
		{
			name:      "missing file",
			filePath:  filepath.Join(dir, "gone.mp3"),
			wantError: true,
		},
		{
			name:      "directory",
			filePath:  dir,
			wantError: true,
		},
		{
			name:      "empty path",
			filePath:  "",
			wantError: true,
		},
		{
			name:      "path with null byte",
			filePath:  song + "\x00",
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ps.validateFilePath(tt.filePath)

			if tt.wantError && err == nil {
				t.Errorf("validateFilePath() expected error but got none")
			}
			if !tt.wantError && err != nil {
				t.Errorf("validateFilePath() unexpected error: %v", err)
			}
		})
	}
}

func TestValidateContentType(t *testing.T) {
	ps := createTestPlayerServer()

	tests := []struct {
		name      string
		filePath  string
		wantError bool
	}{
		{name: "mp3", filePath: "a.mp3", wantError: false},
		{name: "upper-case flac", filePath: "a.FLAC", wantError: false},
		{name: "m4a", filePath: "a.m4a", wantError: false},
		{name: "ogg", filePath: "a.ogg", wantError: true},
		{name: "lyric file", filePath: "a.lrc", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ps.validateContentType(tt.filePath)

			if tt.wantError && err == nil {
				t.Errorf("validateContentType() expected error but got none")
			}
			if !tt.wantError && err != nil {
				t.Errorf("validateContentType() unexpected error: %v", err)
			}
		})
	}
}

func TestValidatePaths(t *testing.T) {
	ps := createTestPlayerServer()

	if errs := ps.validatePaths(nil); len(errs) != 1 || errs[0].Code != "MISSING_PATHS" {
		t.Errorf("validatePaths(nil) = %+v", errs)
	}

	many := make([]string, maxPathsPerRequest+1)
	if errs := ps.validatePaths(many); len(errs) != 1 || errs[0].Code != "TOO_MANY_PATHS" {
		t.Errorf("validatePaths(too many) = %+v", errs)
	}
}

func TestValidatePathsUsesRawPath(t *testing.T) {
	ps := createTestPlayerServer()

	dir := t.TempDir()
	song := filepath.Join(dir, "song.mp3")
	spaced := filepath.Join(dir, "take two.mp3 ")
	for _, p := range []string{song, spaced} {
		if err := os.WriteFile(p, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	if errs := ps.validatePaths([]string{spaced}); len(errs) != 0 {
		t.Errorf("trailing space in file name rejected: %+v", errs)
	}

	errs := ps.validatePaths([]string{song + "\x00"})
	if len(errs) != 1 || errs[0].Code != "INVALID_FILE_PATH" {
		t.Errorf("validatePaths(NUL) = %+v, want INVALID_FILE_PATH", errs)
	}

	// a missing file is not rescued by trimming
	errs = ps.validatePaths([]string{"  " + song})
	if len(errs) != 1 || errs[0].Code != "FILE_NOT_FOUND" {
		t.Errorf("validatePaths(leading spaces) = %+v, want FILE_NOT_FOUND", errs)
	}
}

func TestSanitizeInput(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "normal input",
			input: "living room",
			want:  "living room",
		},
		{
			name:  "input with null bytes",
			input: "kit\x00chen",
			want:  "kitchen",
		},
		{
			name:  "input with whitespace",
			input: "  desktop  ",
			want:  "desktop",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizeInput(tt.input); got != tt.want {
				t.Errorf("sanitizeInput() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes int
		want  string
	}{
		{0, "0B"},
		{512, "< 1KB"},
		{2048, "2KB"},
		{5 * 1024 * 1024, "5MB"},
	}

	for _, tt := range tests {
		if got := formatBytes(tt.bytes); got != tt.want {
			t.Errorf("formatBytes(%d) = %v, want %v", tt.bytes, got, tt.want)
		}
	}
}
