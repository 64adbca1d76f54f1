// Package player owns playback: the transport state machine, the playlist,
// the playback clock and the lyric scroll animation.
package player

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"lyrebird/internal/audio"
	"lyrebird/internal/config"
	"lyrebird/internal/lyrics"
	"lyrebird/internal/metadata"
	"lyrebird/internal/resolver"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ErrIndexOutOfRange is returned for playlist indices that don't exist
var ErrIndexOutOfRange = errors.New("playlist index out of range")

// Resolver is what the transport needs from the metadata resolver.
type Resolver interface {
	Resolve(ctx context.Context, path string) *resolver.Record
	FetchRemote(ctx context.Context, req resolver.Request) resolver.Result
	ReloadSidecar(path string) (*lyrics.Index, bool)
	RemoteEnabled() bool
}

// Options tune the transport
type Options struct {
	TickInterval  time.Duration
	FrameInterval time.Duration
	Smoothing     float64
	LineHeight    float64
	EndThreshold  float64 // seconds before the end that count as finished
	Loop          bool
	WatchSidecars bool
	Formats       []string
}

// DefaultOptions returns the stock cadence and scroll settings
func DefaultOptions() Options {
	return OptionsFromConfig(config.DefaultConfig().Player)
}

// OptionsFromConfig maps the player section of the config file
func OptionsFromConfig(cfg config.PlayerConfig) Options {
	return Options{
		TickInterval:  cfg.TickInterval(),
		FrameInterval: cfg.FrameInterval(),
		Smoothing:     cfg.Smoothing,
		LineHeight:    cfg.LineHeight,
		EndThreshold:  cfg.EndThresholdSeconds,
		Loop:          cfg.Loop,
		WatchSidecars: cfg.WatchSidecars,
		Formats:       cfg.SupportedFormats,
	}
}

// Transport is the player. All transitions are serialized by mu; metadata
// resolution and remote lookups run outside it.
type Transport struct {
	mu sync.Mutex

	engine   audio.Engine
	resolver Resolver
	playlist *Playlist
	clock    *Clock
	animator *Animator
	states   *StateManager
	watcher  *sidecarWatcher
	opts     Options
	logger   *logrus.Logger

	status     Status
	entry      Entry
	record     *resolver.Record
	cursor     *lyrics.Cursor
	activeLine int
	dragging   bool
	ended      bool
	decodeErr  error

	// generation identifies the current load. Anything started for an
	// older generation is discarded when it finishes.
	generation uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewTransport creates an idle transport with an empty playlist.
func NewTransport(engine audio.Engine, res Resolver, opts Options, logger *logrus.Logger) *Transport {
	defaults := DefaultOptions()
	if opts.TickInterval <= 0 {
		opts.TickInterval = defaults.TickInterval
	}
	if opts.FrameInterval <= 0 {
		opts.FrameInterval = defaults.FrameInterval
	}
	if opts.EndThreshold <= 0 {
		opts.EndThreshold = defaults.EndThreshold
	}
	if opts.LineHeight <= 0 {
		opts.LineHeight = defaults.LineHeight
	}
	if len(opts.Formats) == 0 {
		opts.Formats = metadata.DefaultFormats
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &Transport{
		engine:     engine,
		resolver:   res,
		playlist:   NewPlaylist(),
		clock:      NewClock(engine),
		animator:   NewAnimator(opts.Smoothing),
		states:     NewStateManager(),
		opts:       opts,
		logger:     logger,
		status:     StatusIdle,
		activeLine: -1,
		ctx:        ctx,
		cancel:     cancel,
	}

	if opts.WatchSidecars {
		w, err := newSidecarWatcher(t.reloadSidecar, logger)
		if err != nil {
			logger.WithError(err).Warn("Lyric file watching disabled")
		} else {
			t.watcher = w
		}
	}

	return t
}

// Playlist exposes the playlist for reads and subscriptions. Mutate it
// through Add and Remove so the transport can react.
func (t *Transport) Playlist() *Playlist {
	return t.playlist
}

// States exposes the state manager for snapshots and subscriptions
func (t *Transport) States() *StateManager {
	return t.states
}

// Animator exposes the scroll animator
func (t *Transport) Animator() *Animator {
	return t.animator
}

// Status returns the transport state
func (t *Transport) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Record returns the Track Record of the current load, or nil
func (t *Transport) Record() *resolver.Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.record
}

// ActiveLine returns the active lyric line, -1 when none
func (t *Transport) ActiveLine() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.activeLine
}

// Position returns the clock position in seconds
func (t *Transport) Position() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.clock.Position()
}

// LoadTrack stops whatever is playing and starts playlist entry i.
// Resolution happens outside the lock; if another load starts meanwhile,
// this one gives up quietly. Decode failures are not returned: the track's
// metadata is still published and the transport goes Idle.
func (t *Transport) LoadTrack(i int) error {
	t.mu.Lock()
	entry, gen, err := t.beginLoadLocked(i)
	t.mu.Unlock()
	if err != nil {
		return err
	}
	return t.finishLoad(i, entry, gen)
}

// beginLoadLocked makes entry i current, stops the engine and publishes
// the Loading state. The returned generation identifies this load.
func (t *Transport) beginLoadLocked(i int) (Entry, uint64, error) {
	entry, ok := t.playlist.Select(i)
	if !ok {
		return Entry{}, 0, fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}

	t.generation++
	t.guard("stop", func() error { t.engine.Stop(); return nil })
	t.status = StatusLoading
	t.entry = entry
	t.resetPlaybackLocked(0)
	if t.watcher != nil {
		t.watcher.Follow("")
	}
	t.publishLocked()
	return entry, t.generation, nil
}

// finishLoad resolves entry and starts the engine unless a newer load has
// begun in the meantime.
func (t *Transport) finishLoad(i int, entry Entry, gen uint64) error {
	t.logger.WithFields(logrus.Fields{
		"index": i,
		"path":  entry.Path,
	}).Info("Loading track")

	rec := t.resolver.Resolve(t.ctx, entry.Path)

	t.mu.Lock()
	defer t.mu.Unlock()

	if gen != t.generation {
		t.logger.WithField("path", entry.Path).Debug("Load superseded before it finished")
		return nil
	}

	t.record = rec
	t.cursor = lyrics.NewCursor(rec.Lyrics)
	t.resetPlaybackLocked(rec.Duration)
	if t.watcher != nil {
		t.watcher.Follow(entry.Path)
	}

	err := t.guard("load", func() error {
		if err := t.engine.Load(entry.Path); err != nil {
			return err
		}
		return t.engine.Play()
	})
	if err != nil {
		t.status = StatusIdle
		t.decodeErr = err
	} else {
		t.status = StatusPlaying
	}
	t.publishLocked()

	if req, ok := rec.RemoteRequest(); ok && t.resolver.RemoteEnabled() {
		t.fetchRemoteLocked(gen, req)
	}
	return nil
}

// resetPlaybackLocked puts clock, lyric cursor and scroll back at the start
func (t *Transport) resetPlaybackLocked(total float64) {
	t.clock.Reset(total)
	t.activeLine = -1
	t.dragging = false
	t.ended = false
	t.decodeErr = nil
	if t.cursor != nil {
		t.cursor.Reset()
	}
	t.animator.Reset()
	t.states.UpdateScroll(0)
}

func (t *Transport) fetchRemoteLocked(gen uint64, req resolver.Request) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		res := t.resolver.FetchRemote(t.ctx, req)
		if res.Empty() {
			return
		}
		t.applyRemote(gen, res)
	}()
}

// applyRemote installs a remote result if its load is still current.
func (t *Transport) applyRemote(gen uint64, res resolver.Result) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if gen != t.generation || t.record == nil {
		t.logger.WithField("generation", gen).Debug("Discarding remote result for a previous track")
		return
	}

	updated := *t.record
	changed := false
	if updated.NeedsLyrics() && !res.Lyrics.Empty() {
		updated.Lyrics = res.Lyrics
		updated.LyricsSource = resolver.SourceRemote
		t.cursor = lyrics.NewCursor(res.Lyrics)
		t.activeLine = -1
		changed = true
	}
	if updated.NeedsCover() && len(res.Cover) > 0 {
		updated.SetCover(res.Cover, resolver.SourceRemote)
		changed = true
	}
	if !changed {
		return
	}

	t.record = &updated
	t.updateActiveLocked(t.clock.Position())
	t.logger.WithFields(logrus.Fields{
		"title":        updated.Title,
		"lyric_lines":  updated.Lyrics.Len(),
		"cover_source": updated.CoverSource,
	}).Info("Applied remote metadata")
	t.publishLocked()
}

// reloadSidecar picks up a lyric file written next to the current track.
// Embedded lyrics always win.
func (t *Transport) reloadSidecar(audioPath string) {
	t.mu.Lock()
	if t.record == nil || t.record.Path != audioPath || t.record.LyricsSource == resolver.SourceEmbedded {
		t.mu.Unlock()
		return
	}
	gen := t.generation
	t.mu.Unlock()

	idx, ok := t.resolver.ReloadSidecar(audioPath)
	if !ok {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.generation || t.record == nil {
		return
	}

	updated := *t.record
	updated.Lyrics = idx
	updated.LyricsSource = resolver.SourceSidecar
	t.record = &updated
	t.cursor = lyrics.NewCursor(idx)
	t.activeLine = -1
	t.updateActiveLocked(t.clock.Position())

	t.logger.WithFields(logrus.Fields{
		"path":        audioPath,
		"lyric_lines": idx.Len(),
	}).Info("Reloaded lyrics from sidecar file")
	t.publishLocked()
}

// TogglePlay switches between Playing and Paused. It does nothing in
// other states.
func (t *Transport) TogglePlay() {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.status {
	case StatusPlaying:
		t.guard("pause", func() error { t.engine.Pause(); return nil })
		t.status = StatusPaused
	case StatusPaused:
		t.guard("unpause", func() error { t.engine.Unpause(); return nil })
		t.status = StatusPlaying
	default:
		return
	}
	t.publishLocked()
}

// Next loads the following track, wrapping to the first
func (t *Transport) Next() error {
	return t.step(1)
}

// Prev loads the previous track, wrapping to the last
func (t *Transport) Prev() error {
	return t.step(-1)
}

func (t *Transport) step(delta int) error {
	t.mu.Lock()
	idx := t.playlist.Step(delta)
	if idx < 0 {
		t.mu.Unlock()
		return nil
	}
	entry, gen, err := t.beginLoadLocked(idx)
	t.mu.Unlock()
	if err != nil {
		return err
	}
	return t.finishLoad(idx, entry, gen)
}

// Tick samples the clock, moves the active lyric line and detects the
// natural end of the track. It does nothing unless Playing, and nothing
// while a seek gesture is in progress.
func (t *Transport) Tick() {
	t.mu.Lock()

	if t.status != StatusPlaying || t.dragging {
		t.mu.Unlock()
		return
	}

	pos := t.clock.Position()
	t.updateActiveLocked(pos)

	finished := !t.ended &&
		!t.engine.IsBusy() &&
		t.clock.Total()-pos < t.opts.EndThreshold
	if !finished {
		t.publishLocked()
		t.mu.Unlock()
		return
	}

	t.ended = true
	if !t.opts.Loop && t.playlist.IsLast() {
		t.status = StatusIdle
		t.guard("stop", func() error { t.engine.Stop(); return nil })
		t.publishLocked()
		t.mu.Unlock()
		t.logger.Info("Reached the end of the playlist")
		return
	}

	// The successor is claimed under the same lock that saw the end.
	idx := t.playlist.Step(1)
	entry, gen, err := t.beginLoadLocked(idx)
	t.mu.Unlock()
	if err != nil {
		t.logger.WithError(err).Warn("Failed to advance to next track")
		return
	}

	t.logger.WithFields(logrus.Fields{
		"position": pos,
		"next":     idx,
	}).Debug("Track finished, advancing")
	if err := t.finishLoad(idx, entry, gen); err != nil {
		t.logger.WithError(err).Warn("Failed to advance to next track")
	}
}

// updateActiveLocked moves the active line and retargets the scroll when
// it changes.
func (t *Transport) updateActiveLocked(pos float64) {
	if t.cursor == nil {
		return
	}
	line := t.cursor.ActiveAt(pos)
	if line == t.activeLine {
		return
	}
	t.activeLine = line
	target := 0.0
	if line > 0 {
		target = float64(line) * t.opts.LineHeight
	}
	t.animator.SetTarget(target)
}

// Frame advances the scroll animation by one step
func (t *Transport) Frame() {
	if t.animator.Step() {
		t.states.UpdateScroll(t.animator.Offset())
	} else {
		t.states.UpdateScroll(t.animator.Target())
	}
}

// BeginSeekGesture suspends clock-driven position updates until
// EndSeekGesture.
func (t *Transport) BeginSeekGesture() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.record == nil || t.dragging {
		return
	}
	t.dragging = true
	t.publishLocked()
}

// EndSeekGesture finishes a drag by seeking to target and resuming
// playback. The target is clamped to the track.
func (t *Transport) EndSeekGesture(target float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	wasDragging := t.dragging
	t.dragging = false
	if t.status != StatusPlaying && t.status != StatusPaused {
		if wasDragging {
			t.publishLocked()
		}
		return
	}

	var pos float64
	err := t.guard("seek", func() error {
		var err error
		pos, err = t.clock.Seek(target)
		return err
	})
	if err != nil {
		t.status = StatusIdle
		t.decodeErr = err
		t.publishLocked()
		return
	}

	t.status = StatusPlaying
	t.ended = false
	t.updateActiveLocked(pos)
	t.publishLocked()
}

// Seek is a complete seek gesture
func (t *Transport) Seek(target float64) {
	t.BeginSeekGesture()
	t.EndSeekGesture(target)
}

// Add appends the playable paths to the playlist and starts the first one
// when the playlist was empty. It returns how many paths were accepted.
func (t *Transport) Add(paths ...string) (int, error) {
	accepted := metadata.FilterAudioFiles(paths, t.opts.Formats)
	if len(accepted) < len(paths) {
		t.logger.WithFields(logrus.Fields{
			"offered":  len(paths),
			"accepted": len(accepted),
		}).Debug("Skipped files with unsupported extensions")
	}

	t.mu.Lock()
	wasEmpty := t.playlist.Append(accepted...)
	t.publishLocked()
	t.mu.Unlock()

	if wasEmpty {
		return len(accepted), t.LoadTrack(0)
	}
	return len(accepted), nil
}

// Remove deletes playlist entry i. Removing the playing entry loads its
// successor, or goes Idle when the playlist is now empty.
func (t *Transport) Remove(i int) error {
	t.mu.Lock()
	removedCurrent, ok := t.playlist.RemoveAt(i)
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}

	if !removedCurrent {
		t.publishLocked()
		t.mu.Unlock()
		return nil
	}

	next := t.playlist.CurrentIndex()
	if next < 0 {
		t.idleLocked()
		t.mu.Unlock()
		return nil
	}
	entry, gen, err := t.beginLoadLocked(next)
	t.mu.Unlock()
	if err != nil {
		return err
	}
	return t.finishLoad(next, entry, gen)
}

// Clear empties the playlist and stops playback.
func (t *Transport) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.playlist.Len()
	t.playlist.Clear()
	t.idleLocked()
	t.logger.WithField("removed", n).Info("Playlist cleared")
}

// idleLocked stops the engine, drops the loaded track and abandons any
// load or remote lookup still in flight.
func (t *Transport) idleLocked() {
	t.generation++
	t.guard("stop", func() error { t.engine.Stop(); return nil })
	t.status = StatusIdle
	t.record = nil
	t.cursor = nil
	t.entry = Entry{}
	t.resetPlaybackLocked(0)
	if t.watcher != nil {
		t.watcher.Follow("")
	}
	t.publishLocked()
}

// Run drives the tick loop, the animation loop and the lyric file watcher
// until ctx ends.
func (t *Transport) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ticker := time.NewTicker(t.opts.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				t.Tick()
			}
		}
	})

	g.Go(func() error {
		ticker := time.NewTicker(t.opts.FrameInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				t.Frame()
			}
		}
	})

	if t.watcher != nil {
		g.Go(func() error {
			return t.watcher.run(ctx)
		})
	}

	return g.Wait()
}

// Close abandons background lookups and releases the audio engine.
func (t *Transport) Close() error {
	t.cancel()
	t.wg.Wait()

	t.mu.Lock()
	defer t.mu.Unlock()

	var errs []error
	if t.watcher != nil {
		errs = append(errs, t.watcher.Close())
	}
	errs = append(errs, t.guard("close", t.engine.Close))
	t.status = StatusIdle
	return errors.Join(errs...)
}

// guard runs an audio engine call. Engine errors and panics are logged
// and returned; they never escape as panics.
func (t *Transport) guard(op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("audio engine %s panicked: %v", op, r)
		}
		if err != nil {
			t.logger.WithError(err).WithFields(logrus.Fields{
				"op":   op,
				"path": t.entry.Path,
			}).Warn("Audio engine call failed")
		}
	}()
	return fn()
}

// publishLocked pushes a snapshot of the transport to the state manager
func (t *Transport) publishLocked() {
	st := State{
		Status:     t.status,
		Position:   t.clock.Position(),
		Duration:   t.clock.Total(),
		ActiveLine: t.activeLine,
		Dragging:   t.dragging,
		Index:      t.playlist.CurrentIndex(),
		Length:     t.playlist.Len(),
		Tint:       metadata.DefaultTint,
	}

	if rec := t.record; rec != nil {
		st.Track = &TrackSummary{
			EntryID:  t.entry.ID,
			Path:     rec.Path,
			Title:    rec.Title,
			Artist:   rec.Artist,
			Album:    rec.Album,
			Duration: rec.Duration,
		}
		st.ActiveText = rec.Lyrics.TextAt(t.activeLine)
		st.Tint = rec.Tint
		st.LyricsSource = string(rec.LyricsSource)
		st.CoverSource = string(rec.CoverSource)
	} else {
		st.ActiveText = lyrics.Placeholder
	}
	if t.decodeErr != nil {
		st.DecodeError = t.decodeErr.Error()
	}

	t.states.Set(st)
}
