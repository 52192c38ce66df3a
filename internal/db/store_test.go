package db

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/codev612/hearnow/internal/catalog"
	"github.com/codev612/hearnow/internal/session"
	"github.com/codev612/hearnow/internal/transcript"
)

// createTestDB creates an in-memory SQLite database with the hearnow schema.
func createTestDB(t *testing.T) *Store {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	db.SetMaxOpenConns(1)
	if err := createTables(db); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	clock := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	return &Store{db: db, now: func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}}
}

func sampleBubbles() []transcript.Bubble {
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	return []transcript.Bubble{
		{Source: transcript.SourceMic, Text: "Good morning", Timestamp: base},
		{Source: transcript.SourceSystem, Text: "Morning, let's start with the roadmap", Timestamp: base.Add(5 * time.Second)},
		{Source: transcript.SourceMic, Text: "Sure", IsDraft: true, Timestamp: base.Add(9 * time.Second)},
	}
}

func TestSaveSessionAssignsPermanentID(t *testing.T) {
	store := createTestDB(t)
	ctx := context.Background()

	local := session.NewFresh(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	local.Bubbles = sampleBubbles()

	saved, err := store.SaveSession(ctx, local)
	if err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	if session.IsLocalID(saved.ID) {
		t.Fatalf("saved id %q should not be local", saved.ID)
	}

	got, err := store.GetSession(ctx, saved.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if !transcript.Equal(got.Bubbles, local.Bubbles) {
		t.Errorf("bubbles = %+v, want %+v", got.Bubbles, local.Bubbles)
	}
	if !got.Bubbles[1].Timestamp.Equal(local.Bubbles[1].Timestamp) {
		t.Errorf("timestamp = %v, want %v", got.Bubbles[1].Timestamp, local.Bubbles[1].Timestamp)
	}
	if !got.Bubbles[2].IsDraft {
		t.Error("draft flag lost")
	}
}

func TestSaveSessionReplacesBubbles(t *testing.T) {
	store := createTestDB(t)
	ctx := context.Background()

	sess := session.Session{ID: "s1", CreatedAt: time.Now(), Bubbles: sampleBubbles()}
	if _, err := store.SaveSession(ctx, sess); err != nil {
		t.Fatalf("first save: %v", err)
	}

	sess.Title = "Roadmap"
	sess.Summary = "Agreed on Q2 scope"
	sess.Bubbles = sess.Bubbles[:1]
	if _, err := store.SaveSession(ctx, sess); err != nil {
		t.Fatalf("second save: %v", err)
	}

	got, err := store.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if len(got.Bubbles) != 1 {
		t.Errorf("bubbles = %d, want 1", len(got.Bubbles))
	}
	if got.Title != "Roadmap" || got.Summary != "Agreed on Q2 scope" {
		t.Errorf("got %+v", got)
	}
}

func TestAddMarker(t *testing.T) {
	store := createTestDB(t)
	ctx := context.Background()

	if _, err := store.AddMarker(ctx, "missing", session.Marker{ID: "m0"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("marker on missing session: err = %v, want ErrNotFound", err)
	}

	if _, err := store.SaveSession(ctx, session.Session{ID: "s1", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("save: %v", err)
	}
	for _, label := range []string{"first", "second"} {
		if _, err := store.AddMarker(ctx, "s1", session.Marker{ID: label, At: "00:10", Label: label}); err != nil {
			t.Fatalf("AddMarker %s: %v", label, err)
		}
	}

	got, err := store.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if len(got.Markers) != 2 || got.Markers[0].Label != "first" || got.Markers[1].Label != "second" {
		t.Errorf("markers = %+v", got.Markers)
	}
}

func TestListSessionsSearchAndPaging(t *testing.T) {
	store := createTestDB(t)
	ctx := context.Background()

	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, title := range []string{"Standup", "Design review", "Standup follow-up", "1:1"} {
		sess := session.Session{
			ID:        title,
			Title:     title,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}
		if title == "1:1" {
			sess.Bubbles = []transcript.Bubble{{Text: "we skipped the standup today", Timestamp: base}}
		}
		if _, err := store.SaveSession(ctx, sess); err != nil {
			t.Fatalf("save %s: %v", title, err)
		}
	}

	page, err := store.ListSessions(ctx, "", 2, 0)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if page.Total != 4 || len(page.Items) != 2 {
		t.Fatalf("total=%d items=%d, want 4/2", page.Total, len(page.Items))
	}
	if page.Items[0].ID != "1:1" {
		t.Errorf("first item = %s, want newest", page.Items[0].ID)
	}

	page, err = store.ListSessions(ctx, "STANDUP", 10, 0)
	if err != nil {
		t.Fatalf("ListSessions search: %v", err)
	}
	if page.Total != 3 {
		t.Errorf("search total = %d, want 3", page.Total)
	}

	page, err = store.ListSessions(ctx, "standup", 10, 2)
	if err != nil {
		t.Fatalf("ListSessions skip: %v", err)
	}
	if page.Total != 3 || len(page.Items) != 1 || page.Items[0].ID != "Standup" {
		t.Errorf("skip page = %+v", page)
	}
}

func TestDeleteSession(t *testing.T) {
	store := createTestDB(t)
	ctx := context.Background()

	sess := session.Session{ID: "s1", CreatedAt: time.Now(), Bubbles: sampleBubbles(),
		Markers: []session.Marker{{ID: "m1", Label: "x"}}}
	if _, err := store.SaveSession(ctx, sess); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.DeleteSession(ctx, "s1"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if _, err := store.GetSession(ctx, "s1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetSession after delete: err = %v", err)
	}
	if err := store.DeleteSession(ctx, "s1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: err = %v, want ErrNotFound", err)
	}

	var orphans int
	store.db.QueryRow(`SELECT COUNT(*) FROM bubbles`).Scan(&orphans)
	if orphans != 0 {
		t.Errorf("orphan bubbles = %d", orphans)
	}
}

func TestLatestSession(t *testing.T) {
	store := createTestDB(t)
	ctx := context.Background()

	latest, err := store.LatestSession(ctx)
	if err != nil || latest != nil {
		t.Fatalf("empty db: latest=%v err=%v", latest, err)
	}

	for _, id := range []string{"a", "b"} {
		if _, err := store.SaveSession(ctx, session.Session{ID: id, CreatedAt: time.Now()}); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	latest, err = store.LatestSession(ctx)
	if err != nil {
		t.Fatalf("LatestSession: %v", err)
	}
	if latest == nil || latest.ID != "b" {
		t.Errorf("latest = %+v, want b", latest)
	}
}

func TestModeCRUD(t *testing.T) {
	store := createTestDB(t)
	ctx := context.Background()

	m := catalog.Mode{ID: "m1", Label: "Standup", Prompt: "track blockers"}
	if _, err := store.CreateMode(ctx, m); err != nil {
		t.Fatalf("CreateMode: %v", err)
	}
	if _, err := store.CreateMode(ctx, m); err == nil {
		t.Error("duplicate id should fail")
	}

	m.Label = "Daily"
	if _, err := store.UpdateMode(ctx, m); err != nil {
		t.Fatalf("UpdateMode: %v", err)
	}
	modes, err := store.ListModes(ctx)
	if err != nil {
		t.Fatalf("ListModes: %v", err)
	}
	if len(modes) != 1 || modes[0].Label != "Daily" || modes[0].CreatedAt.IsZero() {
		t.Errorf("modes = %+v", modes)
	}

	if err := store.DeleteMode(ctx, "m1"); err != nil {
		t.Fatalf("DeleteMode: %v", err)
	}
	if _, err := store.UpdateMode(ctx, m); !errors.Is(err, ErrNotFound) {
		t.Errorf("update after delete: err = %v, want ErrNotFound", err)
	}
}

func TestTemplateCRUD(t *testing.T) {
	store := createTestDB(t)
	ctx := context.Background()

	tmpl := catalog.Template{ID: "t1", Name: "Screening", Body: "Why us?"}
	if _, err := store.CreateTemplate(ctx, tmpl); err != nil {
		t.Fatalf("CreateTemplate: %v", err)
	}
	tmpl.Body = "Why us?\nWhy now?"
	if _, err := store.UpdateTemplate(ctx, tmpl); err != nil {
		t.Fatalf("UpdateTemplate: %v", err)
	}
	list, err := store.ListTemplates(ctx)
	if err != nil {
		t.Fatalf("ListTemplates: %v", err)
	}
	if len(list) != 1 || list[0].Body != tmpl.Body {
		t.Errorf("templates = %+v", list)
	}
	if err := store.DeleteTemplate(ctx, "t1"); err != nil {
		t.Fatalf("DeleteTemplate: %v", err)
	}
	if err := store.DeleteTemplate(ctx, "t1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: err = %v", err)
	}
}

func TestTimeFromUnix(t *testing.T) {
	if !timeFromUnix(0).IsZero() {
		t.Error("0 should map to zero time")
	}
	want := time.Date(2025, 3, 1, 9, 0, 0, 500_000_000, time.UTC)
	got := timeFromUnix(unixFromTime(want))
	if d := got.Sub(want); d > time.Millisecond || d < -time.Millisecond {
		t.Errorf("round trip drift %v", d)
	}
}

func TestSaveSessionKeepsMarkersAddedMeanwhile(t *testing.T) {
	store := createTestDB(t)
	ctx := context.Background()

	stale := session.Session{ID: "s1", CreatedAt: time.Now(), Bubbles: sampleBubbles()}
	if _, err := store.SaveSession(ctx, stale); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := store.AddMarker(ctx, "s1", session.Marker{ID: "m1", Label: "decision"}); err != nil {
		t.Fatalf("AddMarker: %v", err)
	}
	// A background sync still holding the marker-less copy.
	if _, err := store.SaveSession(ctx, stale); err != nil {
		t.Fatalf("stale save: %v", err)
	}

	got, err := store.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if len(got.Markers) != 1 || got.Markers[0].ID != "m1" {
		t.Errorf("markers = %+v, want m1 kept", got.Markers)
	}
}
