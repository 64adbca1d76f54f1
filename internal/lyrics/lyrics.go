package lyrics

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Placeholder is shown in place of a lyric line when a track has none.
const Placeholder = "♪"

// timeTag matches one leading [mm:ss.ff] or [mm:ss.fff] tag.
var timeTag = regexp.MustCompile(`^\[(\d{1,3}):(\d{2})\.(\d{2,3})\]`)

// Line is a single timed lyric line
type Line struct {
	Time float64 `json:"time"` // seconds from track start
	Text string  `json:"text"`
}

// Index is an immutable, time-sorted sequence of lyric lines.
// A nil or empty Index means "no lyrics".
type Index struct {
	lines []Line
}

// Build parses LRC text into an Index. Lines without a leading time tag,
// or with nothing left after the tags, are skipped. It never fails: input
// that cannot be parsed yields an empty Index.
func Build(raw string) *Index {
	raw = strings.TrimPrefix(raw, "\ufeff")

	var lines []Line
	for _, row := range strings.Split(raw, "\n") {
		rest := strings.TrimSpace(row)

		var stamps []float64
		for {
			m := timeTag.FindStringSubmatch(rest)
			if m == nil {
				break
			}
			stamps = append(stamps, tagSeconds(m[1], m[2], m[3]))
			rest = strings.TrimLeft(rest[len(m[0]):], " \t")
		}

		text := strings.TrimSpace(rest)
		if len(stamps) == 0 || text == "" {
			continue
		}
		for _, ts := range stamps {
			lines = append(lines, Line{Time: ts, Text: text})
		}
	}

	// Stable so equal timestamps keep source order.
	sort.SliceStable(lines, func(i, j int) bool {
		return lines[i].Time < lines[j].Time
	})

	return &Index{lines: lines}
}

func tagSeconds(min, sec, frac string) float64 {
	m, _ := strconv.Atoi(min)
	s, _ := strconv.Atoi(sec)
	f, _ := strconv.Atoi(frac)

	scale := 100.0
	if len(frac) == 3 {
		scale = 1000.0
	}
	return float64(m)*60 + float64(s) + float64(f)/scale
}

// Len returns the number of lines
func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.lines)
}

// Empty reports whether the index holds no lines
func (idx *Index) Empty() bool {
	return idx.Len() == 0
}

// Line returns the i-th line. i must be in [0, Len()).
func (idx *Index) Line(i int) Line {
	return idx.lines[i]
}

// Lines returns a copy of all lines
func (idx *Index) Lines() []Line {
	if idx == nil {
		return nil
	}
	out := make([]Line, len(idx.lines))
	copy(out, idx.lines)
	return out
}

// ActiveAt returns the greatest i such that line i starts at or before t,
// or -1 when t precedes the first line.
func (idx *Index) ActiveAt(t float64) int {
	if idx == nil {
		return -1
	}
	n := sort.Search(len(idx.lines), func(i int) bool {
		return idx.lines[i].Time > t
	})
	return n - 1
}

// TextAt returns the text of line i, or the placeholder when i is out of range.
func (idx *Index) TextAt(i int) string {
	if i < 0 || i >= idx.Len() {
		return Placeholder
	}
	return idx.lines[i].Text
}

// LRC encodes the index back into LRC text with centisecond tags.
func (idx *Index) LRC() string {
	var b strings.Builder
	for _, l := range idx.Lines() {
		cs := int(math.Round(l.Time * 100))
		fmt.Fprintf(&b, "[%02d:%02d.%02d]%s\n", cs/6000, (cs/100)%60, cs%100, l.Text)
	}
	return b.String()
}

// Cursor answers ActiveAt for a playback clock that mostly moves forward.
// While t does not decrease it scans forward from the previous answer;
// when t goes backwards (a seek) it falls back to a binary search.
type Cursor struct {
	idx    *Index
	line   int
	at     float64
	primed bool
}

// NewCursor creates a cursor over idx. idx may be nil.
func NewCursor(idx *Index) *Cursor {
	return &Cursor{idx: idx, line: -1}
}

// ActiveAt returns the active line at t.
func (c *Cursor) ActiveAt(t float64) int {
	n := c.idx.Len()
	if n == 0 {
		return -1
	}

	if !c.primed || t < c.at {
		c.line = c.idx.ActiveAt(t)
	} else {
		for c.line+1 < n && c.idx.lines[c.line+1].Time <= t {
			c.line++
		}
	}

	c.at = t
	c.primed = true
	return c.line
}

// Reset forgets the previous answer, forcing a full search next time.
func (c *Cursor) Reset() {
	c.line = -1
	c.at = 0
	c.primed = false
}

// Index returns the underlying index
func (c *Cursor) Index() *Index {
	return c.idx
}
