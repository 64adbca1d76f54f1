package player

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"lyrebird/internal/metadata"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

const sidecarDebounce = 250 * time.Millisecond

// sidecarWatcher watches the directory of the current track and reports
// when its lyric file appears or changes. Editors often write a file in
// several steps, so events are debounced.
type sidecarWatcher struct {
	watcher  *fsnotify.Watcher
	onChange func(audioPath string)
	debounce time.Duration
	logger   *logrus.Logger

	mu        sync.Mutex
	dir       string
	audioPath string
	timer     *time.Timer
	closed    bool
}

func newSidecarWatcher(onChange func(string), logger *logrus.Logger) (*sidecarWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create sidecar watcher: %w", err)
	}
	return &sidecarWatcher{
		watcher:  w,
		onChange: onChange,
		debounce: sidecarDebounce,
		logger:   logger,
	}, nil
}

// Follow switches the watch to the directory of audioPath. An empty path
// stops watching.
func (w *sidecarWatcher) Follow(audioPath string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	w.stopTimerLocked()
	w.audioPath = audioPath

	dir := ""
	if audioPath != "" {
		dir = filepath.Dir(audioPath)
	}
	if dir == w.dir {
		return
	}

	if w.dir != "" {
		if err := w.watcher.Remove(w.dir); err != nil {
			w.logger.WithError(err).WithField("dir", w.dir).Debug("Failed to remove sidecar watch")
		}
	}
	w.dir = ""
	if dir == "" {
		return
	}
	if err := w.watcher.Add(dir); err != nil {
		w.logger.WithError(err).WithField("dir", dir).Warn("Failed to watch track directory for lyric files")
		return
	}
	w.dir = dir
}

// run handles filesystem events until ctx ends
func (w *sidecarWatcher) run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			w.schedule(event.Name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.WithError(err).Warn("Sidecar watcher error")
		}
	}
}

func (w *sidecarWatcher) schedule(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed || w.audioPath == "" || !metadata.IsSidecarFor(w.audioPath, name) {
		return
	}

	w.stopTimerLocked()
	audioPath := w.audioPath
	w.timer = time.AfterFunc(w.debounce, func() {
		w.logger.WithField("sidecar", name).Debug("Lyric file changed")
		w.onChange(audioPath)
	})
}

func (w *sidecarWatcher) stopTimerLocked() {
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

// Close stops the watcher and any pending reload
func (w *sidecarWatcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	w.stopTimerLocked()
	return w.watcher.Close()
}
