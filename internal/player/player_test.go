package player

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"lyrebird/internal/audio"
	"lyrebird/internal/audio/audiotest"
)

func TestClockPosition(t *testing.T) {
	engine := audiotest.New()
	clock := NewClock(engine)
	clock.Reset(180)

	if got := clock.Position(); got != 0 {
		t.Errorf("Position() before play = %v, want 0", got)
	}

	if err := engine.Load("a.mp3"); err != nil {
		t.Fatal(err)
	}
	if _, err := clock.Seek(30); err != nil {
		t.Fatal(err)
	}
	engine.SetPosition(2500)
	if got := clock.Position(); got != 32.5 {
		t.Errorf("Position() = %v, want 32.5", got)
	}

	engine.SetPosition(500_000)
	if got := clock.Position(); got != 180 {
		t.Errorf("Position() past end = %v, want clamp to 180", got)
	}
}

func TestClockUnknownLength(t *testing.T) {
	engine := audiotest.New()
	clock := NewClock(engine)
	clock.Reset(0)
	_ = engine.Load("a.wav")
	_ = engine.Play()
	engine.SetPosition(400_000)

	if got := clock.Position(); got != 400 {
		t.Errorf("Position() with unknown length = %v, want 400", got)
	}
}

func TestClockSeek(t *testing.T) {
	engine := audiotest.New()
	clock := NewClock(engine)
	clock.Reset(100)
	_ = engine.Load("a.flac")

	got, err := clock.Seek(250)
	if err != nil || got != 100 || clock.SeekOffset() != 100 {
		t.Errorf("Seek(250) = %v, %v; offset %v", got, err, clock.SeekOffset())
	}
	if engine.LastPlayFrom() != 100 {
		t.Errorf("engine started at %v, want 100", engine.LastPlayFrom())
	}

	if got, _ := clock.Seek(-5); got != 0 {
		t.Errorf("Seek(-5) = %v, want 0", got)
	}

	engine.PlayErr = errors.New("device gone")
	if _, err := clock.Seek(40); err == nil {
		t.Fatalf("Seek() should surface engine errors")
	}
	if clock.SeekOffset() != 0 {
		t.Errorf("failed seek moved the offset to %v", clock.SeekOffset())
	}
}

func TestPlaylistWrap(t *testing.T) {
	p := NewPlaylist()
	p.Append("a.mp3", "b.mp3", "c.mp3")

	p.Select(2)
	if got := p.Step(1); got != 0 {
		t.Errorf("Step(1) at 2 = %d, want 0", got)
	}
	if got := p.Step(-1); got != 2 {
		t.Errorf("Step(-1) at 0 = %d, want 2", got)
	}

	empty := NewPlaylist()
	if got := empty.Step(1); got != -1 {
		t.Errorf("Step() on empty = %d, want -1", got)
	}
}

func TestPlaylistAppend(t *testing.T) {
	p := NewPlaylist()
	if p.CurrentIndex() != -1 {
		t.Fatalf("empty playlist current = %d", p.CurrentIndex())
	}

	if !p.Append("a.mp3") {
		t.Errorf("first Append() should report an empty list")
	}
	if p.CurrentIndex() != 0 {
		t.Errorf("current after first append = %d", p.CurrentIndex())
	}

	p.Select(0)
	if p.Append("b.mp3", "c.mp3") {
		t.Errorf("second Append() reported an empty list")
	}
	if p.CurrentIndex() != 0 || p.Len() != 3 {
		t.Errorf("current = %d, len = %d", p.CurrentIndex(), p.Len())
	}

	ids := map[string]bool{}
	for _, e := range p.Entries() {
		if e.ID == "" || ids[e.ID] {
			t.Errorf("entry id %q is empty or repeated", e.ID)
		}
		ids[e.ID] = true
	}
}

func TestPlaylistRemove(t *testing.T) {
	tests := []struct {
		name        string
		current     int
		remove      int
		wantCurrent int
		wantPath    string
	}{
		{name: "before current", current: 2, remove: 0, wantCurrent: 1, wantPath: "c"},
		{name: "after current", current: 0, remove: 2, wantCurrent: 0, wantPath: "a"},
		{name: "current in middle", current: 1, remove: 1, wantCurrent: 1, wantPath: "c"},
		{name: "current is last", current: 2, remove: 2, wantCurrent: 0, wantPath: "a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPlaylist()
			p.Append("a", "b", "c")
			p.Select(tt.current)

			removedCurrent, ok := p.RemoveAt(tt.remove)
			if !ok {
				t.Fatalf("RemoveAt(%d) not ok", tt.remove)
			}
			if removedCurrent != (tt.current == tt.remove) {
				t.Errorf("removedCurrent = %v", removedCurrent)
			}
			e, idx, _ := p.Current()
			if idx != tt.wantCurrent || e.Path != tt.wantPath {
				t.Errorf("current = %d (%s), want %d (%s)", idx, e.Path, tt.wantCurrent, tt.wantPath)
			}
		})
	}

	p := NewPlaylist()
	p.Append("only")
	if _, ok := p.RemoveAt(5); ok {
		t.Errorf("RemoveAt(out of range) should fail")
	}
	p.RemoveAt(0)
	if p.CurrentIndex() != -1 || p.Len() != 0 {
		t.Errorf("empty after remove: current = %d", p.CurrentIndex())
	}
}

func TestPlaylistRemoveInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	p := NewPlaylist()

	for i := 0; i < 5000; i++ {
		switch rng.Intn(4) {
		case 0, 1:
			p.Append("track")
		case 2:
			if n := p.Len(); n > 0 {
				p.RemoveAt(rng.Intn(n))
			}
		case 3:
			if n := p.Len(); n > 0 {
				// Removing the current entry is the interesting case.
				p.RemoveAt(p.CurrentIndex())
			}
		}

		n, cur := p.Len(), p.CurrentIndex()
		if n == 0 && cur != -1 {
			t.Fatalf("step %d: empty list with current %d", i, cur)
		}
		if n > 0 && (cur < 0 || cur >= n) {
			t.Fatalf("step %d: current %d out of range for len %d", i, cur, n)
		}
	}
}

func TestPlaylistEvents(t *testing.T) {
	p := NewPlaylist()
	events := p.Subscribe()
	defer p.Unsubscribe(events)

	p.Append("a", "b")
	p.Select(1)
	p.RemoveAt(1)
	p.Clear()

	want := []EventKind{
		EventAppended, EventAppended, EventCurrentChanged,
		EventCurrentChanged,
		EventRemoved, EventCurrentChanged,
		EventCleared,
	}
	for i, kind := range want {
		select {
		case ev := <-events:
			if ev.Kind != kind {
				t.Errorf("event %d = %s, want %s", i, ev.Kind, kind)
			}
		default:
			t.Fatalf("missing event %d (%s)", i, kind)
		}
	}
}

func TestAnimatorStep(t *testing.T) {
	a := NewAnimator(0.2)
	a.SetTarget(96)

	if !a.Step() {
		t.Fatalf("Step() settled immediately")
	}
	if got := a.Offset(); math.Abs(got-19.2) > 1e-9 {
		t.Errorf("Offset() after one step = %v, want 19.2", got)
	}
}

func TestAnimatorConverges(t *testing.T) {
	a := NewAnimator(0.2)
	a.SetTarget(96)

	want := a.StepsToConverge()
	if want != 24 {
		t.Errorf("StepsToConverge() = %d, want 24", want)
	}

	steps := 0
	for a.Step() {
		steps++
		if steps > 1000 {
			t.Fatalf("animator never settled")
		}
	}
	if steps != want {
		t.Errorf("moved %d frames, StepsToConverge() said %d", steps, want)
	}
	if a.Offset() != 96 || !a.Settled() {
		t.Errorf("Offset() = %v after settling, want 96", a.Offset())
	}
	if a.Step() {
		t.Errorf("settled animator moved again")
	}

	a.Reset()
	if a.Offset() != 0 || a.Target() != 0 {
		t.Errorf("Reset() left %v / %v", a.Offset(), a.Target())
	}
}

func TestAnimatorBadSmoothing(t *testing.T) {
	a := NewAnimator(3)
	a.SetTarget(10)
	a.Step()
	if got := a.Offset(); math.Abs(got-10*DefaultSmoothing) > 1e-9 {
		t.Errorf("Offset() = %v, want default smoothing", got)
	}
}

func TestStateManagerSlowSubscriber(t *testing.T) {
	sm := NewStateManager()
	ch := sm.Subscribe()

	for i := 0; i < 50; i++ {
		sm.Set(State{Status: StatusPlaying, Position: float64(i)})
	}

	// The subscriber is still open and got the first buffered updates.
	got := <-ch
	if got.Position != 0 {
		t.Errorf("first update position = %v", got.Position)
	}
	if sm.GetState().Position != 49 {
		t.Errorf("GetState().Position = %v, want 49", sm.GetState().Position)
	}

	sm.UpdateScroll(12)
	sm.Set(State{Status: StatusPaused})
	if sm.GetState().ScrollOffset != 12 {
		t.Errorf("Set() dropped the scroll offset")
	}

	sm.Unsubscribe(ch)
}

var _ audio.Engine = audiotest.New()
