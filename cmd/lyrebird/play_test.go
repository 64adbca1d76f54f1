package main

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"lyrebird/internal/metadata"
)

func TestCollectTracks(t *testing.T) {
	dir := t.TempDir()
	album := filepath.Join(dir, "album")
	if err := os.MkdirAll(filepath.Join(album, "disc2"), 0755); err != nil {
		t.Fatal(err)
	}

	files := []string{
		filepath.Join(album, "02 b.flac"),
		filepath.Join(album, "01 a.mp3"),
		filepath.Join(album, "01 a.lrc"),
		filepath.Join(album, "cover.jpg"),
		filepath.Join(album, "disc2", "01 c.wav"),
		filepath.Join(dir, "single.m4a"),
	}
	for _, f := range files {
		if err := os.WriteFile(f, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	got, err := collectTracks([]string{filepath.Join(dir, "single.m4a"), album}, metadata.DefaultFormats)
	if err != nil {
		t.Fatalf("collectTracks() error = %v", err)
	}
	want := []string{
		filepath.Join(dir, "single.m4a"),
		filepath.Join(album, "01 a.mp3"),
		filepath.Join(album, "02 b.flac"),
		filepath.Join(album, "disc2", "01 c.wav"),
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("collectTracks() = %v, want %v", got, want)
	}

	if _, err := collectTracks([]string{filepath.Join(dir, "missing.mp3")}, metadata.DefaultFormats); err == nil {
		t.Error("collectTracks() expected error for a missing path")
	}
}

func TestFormatClock(t *testing.T) {
	tests := []struct {
		seconds float64
		want    string
	}{
		{0, "0:00"},
		{-3, "0:00"},
		{59.9, "0:59"},
		{180, "3:00"},
		{3725, "62:05"},
	}

	for _, tt := range tests {
		if got := formatClock(tt.seconds); got != tt.want {
			t.Errorf("formatClock(%v) = %v, want %v", tt.seconds, got, tt.want)
		}
	}
}
