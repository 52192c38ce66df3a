package transcript

import (
	"testing"
	"time"
)

func fixedStream(t time.Time) *Stream {
	s := NewStream()
	s.now = func() time.Time { return t }
	return s
}

func TestStreamPartialGrowsDraftInPlace(t *testing.T) {
	s := fixedStream(time.Unix(100, 0))

	s.ApplyPartial(SourceMic, "hel")
	s.ApplyPartial(SourceMic, "hello")

	got := s.Snapshot()
	if len(got) != 1 {
		t.Fatalf("bubbles = %d, want 1", len(got))
	}
	if got[0].Text != "hello" || !got[0].IsDraft {
		t.Errorf("bubble = %+v, want draft %q", got[0], "hello")
	}
}

func TestStreamFinalClosesDraft(t *testing.T) {
	s := fixedStream(time.Unix(100, 0))

	s.ApplyPartial(SourceSystem, "good morn")
	s.ApplyFinal(SourceSystem, "Good morning.")
	s.ApplyPartial(SourceSystem, "next")

	got := s.Snapshot()
	if len(got) != 2 {
		t.Fatalf("bubbles = %d, want 2", len(got))
	}
	if got[0].IsDraft || got[0].Text != "Good morning." {
		t.Errorf("bubble[0] = %+v, want final %q", got[0], "Good morning.")
	}
	if !got[1].IsDraft {
		t.Error("bubble[1] should be a new draft")
	}
}

func TestStreamSourcesKeepSeparateDrafts(t *testing.T) {
	s := fixedStream(time.Unix(100, 0))

	s.ApplyPartial(SourceMic, "question")
	s.ApplyPartial(SourceSystem, "answer")
	s.ApplyPartial(SourceMic, "question two")

	got := s.Snapshot()
	if len(got) != 2 {
		t.Fatalf("bubbles = %d, want 2", len(got))
	}
	if got[0].Text != "question two" {
		t.Errorf("mic draft = %q, want %q", got[0].Text, "question two")
	}
}

func TestStreamFinalWithoutDraftAppends(t *testing.T) {
	s := fixedStream(time.Unix(100, 0))
	s.ApplyFinal(SourceMic, "one")
	s.ApplyFinal(SourceMic, "two")

	if s.Len() != 2 {
		t.Fatalf("len = %d, want 2", s.Len())
	}
}

func TestStreamFinalizeDrafts(t *testing.T) {
	s := fixedStream(time.Unix(100, 0))
	s.ApplyFinal(SourceMic, "kept")
	s.ApplyPartial(SourceSystem, "cut off mid")
	s.ApplyPartial(SourceMic, "  ")
	s.FinalizeDrafts()

	got := s.Snapshot()
	if len(got) != 2 || got[1].Text != "cut off mid" || got[1].IsDraft {
		t.Errorf("after FinalizeDrafts = %+v", got)
	}

	// A new partial opens a fresh draft instead of growing the finalized one.
	s.ApplyPartial(SourceSystem, "next turn")
	if got := s.Snapshot(); len(got) != 3 || got[1].Text != "cut off mid" {
		t.Errorf("after new partial = %+v", got)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	s := fixedStream(time.Unix(100, 0))
	s.ApplyFinal(SourceMic, "original")

	snap := s.Snapshot()
	snap[0].Text = "changed"

	if s.Snapshot()[0].Text != "original" {
		t.Error("mutating a snapshot leaked into the stream")
	}
}

func TestEqual(t *testing.T) {
	ts := time.Unix(100, 0)
	a := []Bubble{{Source: SourceMic, Text: "hi", IsDraft: true, Timestamp: ts}}
	b := []Bubble{{Source: SourceMic, Text: "hi", IsDraft: true, Timestamp: ts.Add(time.Second)}}

	if !Equal(a, b) {
		t.Error("bubbles differing only by timestamp should be equal")
	}

	b[0].Text = "hi there"
	if Equal(a, b) {
		t.Error("draft text growth should be detected")
	}

	b[0].Text = "hi"
	b[0].IsDraft = false
	if Equal(a, b) {
		t.Error("draft flag change should be detected")
	}

	b[0].IsDraft = true
	b[0].Source = SourceSystem
	if Equal(a, b) {
		t.Error("source change should be detected")
	}

	if !Equal(nil, []Bubble{}) {
		t.Error("nil and empty should be equal")
	}
}

func TestParseSource(t *testing.T) {
	if ParseSource("systemAudio") != SourceSystem {
		t.Error("systemAudio should parse as system")
	}
	if ParseSource("microphone") != SourceMic {
		t.Error("microphone should parse as mic")
	}
	if ParseSource("") != SourceMic {
		t.Error("empty source should default to mic")
	}
}
