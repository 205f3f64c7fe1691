package stabilizer

import (
	"strings"
	"time"
)

// Config contains stabilization tuning parameters
type Config struct {
	// RepeatThreshold is the number of consecutive cycles the same
	// provisional text must be seen (beyond the first) before it is
	// promoted to the committed transcript.
	RepeatThreshold int

	// PauseSentinelAfter is how long a run of empty engine results must
	// last before a silence sentinel is recorded.
	PauseSentinelAfter time.Duration

	// ShowStaleFor is how long previously rendered output should keep
	// being displayed during a run of empty engine results.
	ShowStaleFor time.Duration
}

// Line is a finalized transcript line with absolute stream offsets in seconds.
type Line struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Result is the outcome of one stabilization cycle.
type Result struct {
	// Committed holds the lines finalized by this cycle, in order.
	Committed []Line

	// Provisional is the current best guess for the still-open tail of the
	// window. Display only; it is not part of the committed transcript.
	Provisional string

	// Silence is true when the engine returned no segments this cycle.
	Silence bool

	// ShowStale is true during the grace period of a silence run, when the
	// previously rendered display text should keep being shown to avoid
	// flicker on brief engine misses.
	ShowStale bool

	// Promoted is true when a repeat-stall promotion committed the
	// provisional text this cycle.
	Promoted bool

	// SentinelAdded is true when this cycle recorded a silence sentinel.
	SentinelAdded bool
}

// Stabilizer turns raw per-window segment lists into a stable running
// transcript. It owns the window cursor, the committed lines, and the
// provisional tail for one session.
//
// All methods must be called from a single goroutine (the session's
// recognition cycle loop); the type performs no internal locking.
type Stabilizer struct {
	cfg Config
	now func() time.Time

	cursor        float64   // absolute offset (seconds) of the next window start
	committed     []string  // finalized lines; "" entries are silence sentinels
	prevCandidate string    // previous cycle's provisional tail
	provisional   string    // current provisional tail
	repeatCount   int       // consecutive cycles the tail repeated
	pauseStart    time.Time // start of the current run of empty results; zero when none
}

// New creates a Stabilizer with the cursor at stream offset zero.
func New(cfg Config) *Stabilizer {
	return &Stabilizer{
		cfg: cfg,
		now: time.Now,
	}
}

// RawSegment is one engine output span with offsets relative to the
// submitted window's start.
type RawSegment struct {
	Text  string
	Start float64
	End   float64
}

// Update processes one cycle's raw engine output for a window of
// windowDur seconds starting at the current cursor.
//
// All segments except the last are treated as complete and committed
// immediately; the last becomes the provisional tail. A tail that repeats
// across more than RepeatThreshold consecutive cycles is promoted to the
// transcript, since the engine will not revise it further. An empty segment
// list is a silence observation: the provisional tail is dropped and, once
// the silence run outlasts PauseSentinelAfter, a sentinel entry is recorded
// so later prompt and display context is cut at the gap.
func (s *Stabilizer) Update(segs []RawSegment, windowDur float64) Result {
	var res Result

	if len(segs) == 0 {
		return s.updateSilence()
	}

	// Any recognized speech ends the current silence run.
	s.pauseStart = time.Time{}
	res.Silence = false

	// advance accumulates how far the cursor moves this cycle. It is
	// applied once at the end so committed line offsets are all relative
	// to the window this cycle actually submitted.
	advance := -1.0

	if len(segs) >= 2 {
		for _, seg := range segs[:len(segs)-1] {
			end := seg.End
			if end > windowDur {
				end = windowDur
			}
			s.committed = append(s.committed, seg.Text)
			res.Committed = append(res.Committed, Line{
				Start: s.cursor + seg.Start,
				End:   s.cursor + end,
				Text:  seg.Text,
			})
			advance = end
		}
	}

	// The last segment is the incomplete tail.
	candidate := segs[len(segs)-1].Text
	norm := normalize(candidate)

	if norm != "" && norm == normalize(s.prevCandidate) {
		s.repeatCount++
	} else {
		s.repeatCount = 0
		s.prevCandidate = candidate
	}

	if s.repeatCount > s.cfg.RepeatThreshold {
		// The engine is stuck on this tail; commit it unless it already
		// ends the transcript.
		if len(s.committed) == 0 || normalize(s.committed[len(s.committed)-1]) != norm {
			s.committed = append(s.committed, candidate)
			res.Committed = append(res.Committed, Line{
				Start: s.cursor,
				End:   s.cursor + windowDur,
				Text:  candidate,
			})
		}
		res.Promoted = true
		advance = windowDur
		s.prevCandidate = ""
		s.repeatCount = 0
		s.provisional = ""
	} else {
		s.provisional = candidate
	}

	if advance >= 0 {
		s.cursor += advance
	}

	res.Provisional = s.provisional
	return res
}

// updateSilence handles a cycle in which the engine found no speech.
// The cursor never moves on silence.
func (s *Stabilizer) updateSilence() Result {
	now := s.now()
	if s.pauseStart.IsZero() {
		s.pauseStart = now
	}
	elapsed := now.Sub(s.pauseStart)

	sentinel := false
	if elapsed > s.cfg.PauseSentinelAfter &&
		len(s.committed) > 0 && s.committed[len(s.committed)-1] != "" {
		s.committed = append(s.committed, "")
		sentinel = true
	}

	s.provisional = ""
	s.prevCandidate = ""
	s.repeatCount = 0

	return Result{
		Silence:       true,
		ShowStale:     elapsed < s.cfg.ShowStaleFor,
		SentinelAdded: sentinel,
	}
}

// Cursor returns the absolute offset (seconds) of the next window start.
func (s *Stabilizer) Cursor() float64 {
	return s.cursor
}

// AdvanceCursor moves the cursor forward to the given absolute offset.
// Requests behind the current cursor are ignored; the cursor is monotonic.
func (s *Stabilizer) AdvanceCursor(to float64) {
	if to > s.cursor {
		s.cursor = to
	}
}

// Provisional returns the current provisional tail.
func (s *Stabilizer) Provisional() string {
	return s.provisional
}

// CommittedTexts returns the committed transcript entries in order,
// including silence sentinels. The returned slice is shared; callers must
// not modify it.
func (s *Stabilizer) CommittedTexts() []string {
	return s.committed
}

// CommittedCount returns the number of committed entries, sentinels included.
func (s *Stabilizer) CommittedCount() int {
	return len(s.committed)
}

// Prompt returns the text to pass to the engine as context for the next
// window: the most recent committed entry, unless the transcript is empty or
// ends at a silence sentinel.
func (s *Stabilizer) Prompt() string {
	if len(s.committed) == 0 {
		return ""
	}
	last := s.committed[len(s.committed)-1]
	if last == "" {
		return ""
	}
	return last
}

// normalize trims surrounding whitespace and lowercases for comparisons.
func normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}
