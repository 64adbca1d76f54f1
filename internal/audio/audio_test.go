package audio

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
)

var _ Engine = (*BeepEngine)(nil)

func TestDecodable(t *testing.T) {
	tests := map[string]bool{
		"a.mp3":  true,
		"b.FLAC": true,
		"c.wav":  true,
		"d.m4a":  false,
		"e.ogg":  false,
	}
	for path, want := range tests {
		if got := Decodable(path); got != want {
			t.Errorf("Decodable(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestEngineRejectsBadInput(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	e := NewEngine(logger)
	defer e.Close()

	dir := t.TempDir()
	m4a := filepath.Join(dir, "song.m4a")
	garbage := filepath.Join(dir, "song.wav")
	for _, p := range []string{m4a, garbage} {
		if err := os.WriteFile(p, []byte("definitely not audio"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	if err := e.Load(m4a); err == nil {
		t.Errorf("Load(m4a) should fail")
	} else if Available && !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Load(m4a) error = %v, want ErrUnsupportedFormat", err)
	}
	if err := e.Load(garbage); err == nil {
		t.Errorf("Load(garbage wav) should fail")
	}
	if err := e.Load(filepath.Join(dir, "missing.mp3")); err == nil {
		t.Errorf("Load(missing) should fail")
	}

	if got := e.PositionMillis(); got != NotStarted {
		t.Errorf("PositionMillis() before play = %d, want NotStarted", got)
	}
	if e.IsBusy() {
		t.Errorf("IsBusy() before play")
	}
	if err := e.Play(); err == nil {
		t.Errorf("Play() with nothing loaded should fail")
	}
}
