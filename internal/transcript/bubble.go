// Package transcript holds the live bubble stream produced by the
// transcription client and the cheap change detector used to gate syncs.
package transcript

import (
	"strings"
	"sync"
	"time"
)

// Source identifies which audio input produced a bubble.
type Source string

const (
	SourceMic    Source = "microphone"
	SourceSystem Source = "systemAudio"
)

// ParseSource maps a daemon source string to a Source. Anything that is not
// system audio is treated as the microphone.
func ParseSource(s string) Source {
	if s == string(SourceSystem) {
		return SourceSystem
	}
	return SourceMic
}

// Label returns the short speaker label used in exports and the TUI.
func (s Source) Label() string {
	if s == SourceSystem {
		return "SYS"
	}
	return "MIC"
}

// Bubble is one timestamped unit of transcript text. A bubble is immutable
// once IsDraft is false.
type Bubble struct {
	Source    Source    `json:"source"`
	Text      string    `json:"text"`
	IsDraft   bool      `json:"isDraft"`
	Timestamp time.Time `json:"timestamp"`
}

// Stream is the append/mutate log of bubbles owned by the transcription
// client. Bubbles are kept in append order and never reordered.
type Stream struct {
	mu      sync.Mutex
	bubbles []Bubble
	now     func() time.Time
}

// NewStream creates an empty stream.
func NewStream() *Stream {
	return &Stream{now: time.Now}
}

// Len returns the number of bubbles.
func (s *Stream) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bubbles)
}

// Snapshot returns a copy of the current bubbles.
func (s *Stream) Snapshot() []Bubble {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Clone(s.bubbles)
}

// Append adds a bubble at the end of the stream.
func (s *Stream) Append(b Bubble) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bubbles = append(s.bubbles, b)
}

// Replace swaps the whole stream for a copy of bubbles.
func (s *Stream) Replace(bubbles []Bubble) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bubbles = Clone(bubbles)
}

// Clear drops every bubble.
func (s *Stream) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bubbles = nil
}

// ApplyPartial grows the open draft bubble for src in place, or opens a new
// draft when the source has none.
func (s *Stream) ApplyPartial(src Source, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.openDraft(src); i >= 0 {
		s.bubbles[i].Text = text
		return
	}
	s.bubbles = append(s.bubbles, Bubble{
		Source:    src,
		Text:      text,
		IsDraft:   true,
		Timestamp: s.now(),
	})
}

// ApplyFinal finalizes the open draft for src with text, or appends a final
// bubble when there is no draft to close.
func (s *Stream) ApplyFinal(src Source, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.openDraft(src); i >= 0 {
		s.bubbles[i].Text = text
		s.bubbles[i].IsDraft = false
		return
	}
	s.bubbles = append(s.bubbles, Bubble{
		Source:    src,
		Text:      text,
		Timestamp: s.now(),
	})
}

// FinalizeDrafts closes drafts the backend never finalized, e.g. after a
// stop. Drafts with text become final as they stand; blank ones are dropped.
func (s *Stream) FinalizeDrafts() {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.bubbles[:0]
	for _, b := range s.bubbles {
		if b.IsDraft {
			if strings.TrimSpace(b.Text) == "" {
				continue
			}
			b.IsDraft = false
		}
		kept = append(kept, b)
	}
	s.bubbles = kept
}

// openDraft returns the index of the latest draft for src. Only drafts after
// the last final bubble of that source count as open.
func (s *Stream) openDraft(src Source) int {
	for i := len(s.bubbles) - 1; i >= 0; i-- {
		b := s.bubbles[i]
		if b.Source != src {
			continue
		}
		if b.IsDraft {
			return i
		}
		return -1
	}
	return -1
}

// Clone copies a bubble slice. A nil or empty input yields nil.
func Clone(bubbles []Bubble) []Bubble {
	if len(bubbles) == 0 {
		return nil
	}
	out := make([]Bubble, len(bubbles))
	copy(out, bubbles)
	return out
}

// Equal compares two bubble lists by length and, bubble by bubble, by text,
// draft flag and source. Timestamps are ignored.
func Equal(a, b []Bubble) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Text != b[i].Text || a[i].IsDraft != b[i].IsDraft || a[i].Source != b[i].Source {
			return false
		}
	}
	return true
}
