package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/codev612/hearnow/internal/transcript"
)

type fakePersister struct {
	mu     sync.Mutex
	saves  []Session
	err    error
	nextID string
}

func (f *fakePersister) SaveSession(ctx context.Context, s Session) (Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves = append(f.saves, s.Clone())
	if f.err != nil {
		return Session{}, f.err
	}
	if IsLocalID(s.ID) && f.nextID != "" {
		s.ID = f.nextID
	}
	return s, nil
}

func (f *fakePersister) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saves)
}

func bubble(src transcript.Source, text string, sec int64) transcript.Bubble {
	return transcript.Bubble{Source: src, Text: text, Timestamp: time.Unix(sec, 0)}
}

func newTestSync() (*Synchronizer, *transcript.Stream, *fakePersister) {
	stream := transcript.NewStream()
	store := &fakePersister{}
	return NewSynchronizer(stream, store, zerolog.Nop()), stream, store
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		sess Session
		want State
	}{
		{"fresh", NewFresh(time.Unix(10, 0)), StateFresh},
		{"empty remote", Session{ID: "remote-123"}, StateEmpty},
		{"resumed", Session{ID: "remote-123", Bubbles: []transcript.Bubble{bubble(transcript.SourceMic, "hi", 1)}}, StateResumed},
		{"local with bubbles", Session{ID: "local-1", Bubbles: []transcript.Bubble{bubble(transcript.SourceMic, "hi", 1)}}, StateResumed},
	}
	for _, tc := range cases {
		if got := Classify(tc.sess); got != tc.want {
			t.Errorf("%s: Classify = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestActivateEmptySessionClearsStream(t *testing.T) {
	s, stream, store := newTestSync()
	stream.Append(bubble(transcript.SourceMic, "left over", 1))

	state, err := s.Activate(Session{ID: "remote-123"})
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if state != StateEmpty {
		t.Errorf("state = %v, want empty", state)
	}
	if stream.Len() != 0 {
		t.Errorf("stream len = %d, want 0", stream.Len())
	}
	if s.Sync(context.Background()) {
		t.Error("activation should not request a write")
	}
	if store.count() != 0 {
		t.Errorf("saves = %d, want 0", store.count())
	}
}

func TestResumeImportsOnce(t *testing.T) {
	s, stream, store := newTestSync()
	saved := Session{
		ID: "remote-1",
		Bubbles: []transcript.Bubble{
			bubble(transcript.SourceMic, "one", 1),
			bubble(transcript.SourceSystem, "two", 2),
			bubble(transcript.SourceMic, "three", 3),
		},
	}

	state, err := s.Activate(saved)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if state != StateResumed {
		t.Fatalf("state = %v, want resumed", state)
	}

	for i := 0; i < 5; i++ {
		if s.Sync(context.Background()) {
			t.Errorf("tick %d requested a write", i)
		}
	}

	// Re-entering the same session must not duplicate bubbles.
	if _, err := s.Activate(saved); err != nil {
		t.Fatalf("re-activate: %v", err)
	}

	got := stream.Snapshot()
	if !transcript.Equal(got, saved.Bubbles) {
		t.Errorf("stream = %+v, want %+v", got, saved.Bubbles)
	}
	if store.count() != 0 {
		t.Errorf("saves = %d, want 0", store.count())
	}
}

func TestFreshSessionNeverImportsPrevious(t *testing.T) {
	s, stream, _ := newTestSync()
	old := Session{ID: "remote-1", Bubbles: []transcript.Bubble{bubble(transcript.SourceMic, "old", 1)}}
	if _, err := s.Activate(old); err != nil {
		t.Fatalf("activate old: %v", err)
	}

	fresh := NewFresh(time.Unix(100, 0))
	state, err := s.Activate(fresh)
	if err != nil {
		t.Fatalf("activate fresh: %v", err)
	}
	if state != StateFresh {
		t.Errorf("state = %v, want fresh", state)
	}
	if stream.Len() != 0 {
		t.Errorf("stream len = %d, want 0", stream.Len())
	}
	cur, _ := s.Current()
	if len(cur.Bubbles) != 0 {
		t.Errorf("fresh session has %d bubbles", len(cur.Bubbles))
	}
}

func TestSyncWritesOnDraftGrowth(t *testing.T) {
	s, stream, store := newTestSync()
	if _, err := s.Activate(Session{ID: "remote-1"}); err != nil {
		t.Fatalf("activate: %v", err)
	}

	stream.ApplyPartial(transcript.SourceMic, "hel")
	if !s.Sync(context.Background()) {
		t.Fatal("new draft should request a write")
	}
	stream.ApplyPartial(transcript.SourceMic, "hello")
	if !s.Sync(context.Background()) {
		t.Fatal("draft growth should request a write")
	}
	if s.Sync(context.Background()) {
		t.Error("unchanged stream should not request a write")
	}

	if store.count() != 2 {
		t.Fatalf("saves = %d, want 2", store.count())
	}
	cur, _ := s.Current()
	if cur.Bubbles[0].Text != "hello" {
		t.Errorf("session bubble = %q, want hello", cur.Bubbles[0].Text)
	}
}

func TestSyncSkippedWhileGuardHeld(t *testing.T) {
	s, stream, store := newTestSync()
	if _, err := s.Activate(Session{ID: "remote-1"}); err != nil {
		t.Fatalf("activate: %v", err)
	}

	s.guard.Run(func() {
		for i := 0; i < 50; i++ {
			stream.Append(bubble(transcript.SourceSystem, "burst", int64(i)))
			if s.Sync(context.Background()) {
				t.Fatal("sync ran while the guard was held")
			}
		}
		if _, err := s.Activate(Session{ID: "remote-2"}); !errors.Is(err, ErrSyncInProgress) {
			t.Errorf("nested activate err = %v, want ErrSyncInProgress", err)
		}
	})

	if store.count() != 0 {
		t.Fatalf("saves while guarded = %d, want 0", store.count())
	}

	positive := 0
	for i := 0; i < 3; i++ {
		if s.Sync(context.Background()) {
			positive++
		}
	}
	if positive != 1 {
		t.Errorf("positive ticks after release = %d, want 1", positive)
	}
	if store.count() > positive {
		t.Errorf("saves = %d exceed positive ticks %d", store.count(), positive)
	}
	cur, _ := s.Current()
	if len(cur.Bubbles) != 50 {
		t.Errorf("session bubbles = %d, want 50", len(cur.Bubbles))
	}
}

func TestSyncWriteFailureKeepsMemoryState(t *testing.T) {
	s, stream, store := newTestSync()
	store.err = errors.New("backend down")
	if _, err := s.Activate(Session{ID: "remote-1"}); err != nil {
		t.Fatalf("activate: %v", err)
	}

	stream.ApplyFinal(transcript.SourceMic, "still here")
	if !s.Sync(context.Background()) {
		t.Fatal("expected a write request")
	}

	cur, _ := s.Current()
	if len(cur.Bubbles) != 1 {
		t.Errorf("session bubbles = %d, want 1 despite failed write", len(cur.Bubbles))
	}
	if store.count() != 1 {
		t.Errorf("write attempts = %d, want 1 (no retry loop)", store.count())
	}
}

func TestSyncAdoptsBackendID(t *testing.T) {
	s, stream, store := newTestSync()
	store.nextID = "srv-42"
	if _, err := s.Activate(NewFresh(time.Unix(5, 0))); err != nil {
		t.Fatalf("activate: %v", err)
	}

	stream.ApplyFinal(transcript.SourceMic, "first words")
	s.Sync(context.Background())

	cur, _ := s.Current()
	if cur.ID != "srv-42" {
		t.Errorf("id = %q, want srv-42", cur.ID)
	}
}

func TestSaveDefaultsTitle(t *testing.T) {
	s, _, store := newTestSync()
	created := time.Date(2026, 3, 4, 9, 30, 0, 0, time.UTC)
	if _, err := s.Activate(Session{ID: "remote-1", CreatedAt: created}); err != nil {
		t.Fatalf("activate: %v", err)
	}

	saved, err := s.Save(context.Background(), "")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.Title != "Meeting 2026-03-04 09:30" {
		t.Errorf("title = %q", saved.Title)
	}

	store.err = errors.New("offline")
	if _, err := s.Save(context.Background(), "Retro"); err == nil {
		t.Error("explicit save should surface the error")
	}
}

func TestGuardReleasedAfterPanic(t *testing.T) {
	var g Guard
	func() {
		defer func() { _ = recover() }()
		g.Run(func() { panic("boom") })
	}()
	if g.Busy() {
		t.Error("guard should be released after a panic")
	}
	if !g.Run(func() {}) {
		t.Error("guard should be usable again")
	}
}

// slowPersister mints a backend id for every local id it is handed and takes
// delay per write, so overlapping writes really overlap.
type slowPersister struct {
	delay   time.Duration
	entered chan struct{}

	mu     sync.Mutex
	minted []string
	writes []Session
}

func (f *slowPersister) SaveSession(ctx context.Context, s Session) (Session, error) {
	select {
	case f.entered <- struct{}{}:
	default:
	}
	time.Sleep(f.delay)

	f.mu.Lock()
	defer f.mu.Unlock()
	if IsLocalID(s.ID) {
		s.ID = fmt.Sprintf("row-%d", len(f.minted)+1)
		f.minted = append(f.minted, s.ID)
	}
	f.writes = append(f.writes, s.Clone())
	return s, nil
}

func TestSwitchBetweenSessionsOfEqualLength(t *testing.T) {
	s, stream, store := newTestSync()
	a := Session{ID: "remote-a", Bubbles: []transcript.Bubble{bubble(transcript.SourceMic, "alpha", 1)}}
	b := Session{ID: "remote-b", Bubbles: []transcript.Bubble{bubble(transcript.SourceSystem, "bravo", 2)}}

	if _, err := s.Activate(a); err != nil {
		t.Fatalf("activate a: %v", err)
	}
	if _, err := s.Activate(b); err != nil {
		t.Fatalf("activate b: %v", err)
	}
	if got := stream.Snapshot(); !transcript.Equal(got, b.Bubbles) {
		t.Fatalf("stream after switch = %+v, want b's transcript", got)
	}

	stream.ApplyFinal(transcript.SourceMic, "new")
	if !s.Sync(context.Background()) {
		t.Fatal("expected a write request")
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	last := store.saves[len(store.saves)-1]
	if last.ID != "remote-b" || len(last.Bubbles) != 2 || last.Bubbles[0].Text != "bravo" {
		t.Errorf("last write = %s %+v, want remote-b [bravo new]", last.ID, last.Bubbles)
	}
}

func TestOverlappingWritesMintOneSession(t *testing.T) {
	stream := transcript.NewStream()
	store := &slowPersister{delay: 50 * time.Millisecond, entered: make(chan struct{}, 1)}
	s := NewSynchronizer(stream, store, zerolog.Nop())
	if _, err := s.Activate(NewFresh(time.Unix(5, 0))); err != nil {
		t.Fatalf("activate: %v", err)
	}

	stream.ApplyFinal(transcript.SourceMic, "one")
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.Sync(context.Background())
	}()

	select {
	case <-store.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first write never started")
	}
	stream.ApplyFinal(transcript.SourceSystem, "two")
	go func() {
		defer wg.Done()
		s.Sync(context.Background())
		if _, err := s.Save(context.Background(), "Planning"); err != nil {
			t.Errorf("save: %v", err)
		}
	}()
	wg.Wait()

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.minted) != 1 {
		t.Fatalf("minted rows = %v, want exactly one", store.minted)
	}
	last := store.writes[len(store.writes)-1]
	if last.ID != "row-1" || len(last.Bubbles) != 2 || last.Title != "Planning" {
		t.Errorf("last write = %s %q %+v, want row-1 with both bubbles", last.ID, last.Title, last.Bubbles)
	}
	if cur, _ := s.Current(); cur.ID != "row-1" {
		t.Errorf("active id = %q, want row-1", cur.ID)
	}
}

func TestApplyOnlyTouchesActiveSession(t *testing.T) {
	s, stream, store := newTestSync()
	store.nextID = "srv-7"
	fresh := NewFresh(time.Unix(5, 0))
	if _, err := s.Activate(fresh); err != nil {
		t.Fatalf("activate: %v", err)
	}
	stream.ApplyFinal(transcript.SourceMic, "kickoff")
	s.Sync(context.Background())

	// The local id still addresses the session after adoption.
	saved, applied, err := s.Apply(context.Background(), fresh.ID, func(sess *Session) { sess.Summary = "notes" })
	if err != nil || !applied {
		t.Fatalf("apply = %v, %v", applied, err)
	}
	if saved.ID != "srv-7" || saved.Summary != "notes" {
		t.Errorf("saved = %s %q", saved.ID, saved.Summary)
	}
	if got := s.Resolve(fresh.ID); got != "srv-7" {
		t.Errorf("Resolve = %q, want srv-7", got)
	}

	other := Session{ID: "remote-9", Bubbles: []transcript.Bubble{bubble(transcript.SourceSystem, "other", 9)}}
	if _, err := s.Activate(other); err != nil {
		t.Fatalf("activate other: %v", err)
	}
	before := store.count()
	_, applied, err = s.Apply(context.Background(), "srv-7", func(sess *Session) { sess.Summary = "late" })
	if err != nil || applied {
		t.Errorf("apply on switched session = %v, %v, want not applied", applied, err)
	}
	if cur, _ := s.Current(); cur.Summary != "" {
		t.Errorf("active summary = %q, want untouched", cur.Summary)
	}
	if store.count() != before {
		t.Error("apply on switched session wrote to the store")
	}
}
