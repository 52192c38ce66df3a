package mcpserver

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"

	"github.com/codev612/hearnow/internal/catalog"
	"github.com/codev612/hearnow/internal/db"
	"github.com/codev612/hearnow/internal/session"
	"github.com/codev612/hearnow/internal/transcript"
)

func newTestTools(t *testing.T) (*Tools, *db.Store) {
	t.Helper()
	store, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return &Tools{store: store, log: zerolog.Nop()}, store
}

func callRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatal("empty result")
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T, want TextContent", res.Content[0])
	}
	return text.Text
}

func saveSession(t *testing.T, store *db.Store, title string, lines ...string) session.Session {
	t.Helper()
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	s := session.NewFresh(base)
	s.Title = title
	for i, l := range lines {
		s.Bubbles = append(s.Bubbles, transcript.Bubble{
			Source:    transcript.SourceMic,
			Text:      l,
			Timestamp: base.Add(time.Duration(i) * time.Second),
		})
	}
	saved, err := store.SaveSession(context.Background(), s)
	if err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	return saved
}

func TestListSessionsEmpty(t *testing.T) {
	tools, _ := newTestTools(t)
	res, err := tools.ListSessions(context.Background(), callRequest(nil))
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if got := resultText(t, res); got != "No sessions found." {
		t.Errorf("got %q, want %q", got, "No sessions found.")
	}
}

func TestListSessionsSearchAndPaging(t *testing.T) {
	tools, store := newTestTools(t)
	saveSession(t, store, "Roadmap review", "we cut the beta")
	saveSession(t, store, "Hiring sync", "two candidates left")
	saveSession(t, store, "Budget", "roadmap costs are up")

	res, _ := tools.ListSessions(context.Background(), callRequest(map[string]any{"search": "roadmap"}))
	text := resultText(t, res)
	if !strings.HasPrefix(text, "2 of 2 sessions") {
		t.Errorf("unexpected header:\n%s", text)
	}
	if strings.Contains(text, "Hiring sync") {
		t.Errorf("search should exclude Hiring sync:\n%s", text)
	}

	res, _ = tools.ListSessions(context.Background(), callRequest(map[string]any{"limit": float64(1)}))
	text = resultText(t, res)
	if !strings.HasPrefix(text, "1 of 3 sessions") {
		t.Errorf("unexpected header:\n%s", text)
	}
	if !strings.Contains(text, "2 more; call again with skip=1") {
		t.Errorf("missing paging hint:\n%s", text)
	}
}

func TestExportSession(t *testing.T) {
	tools, store := newTestTools(t)
	saved := saveSession(t, store, "Standup", "yesterday I fixed the login bug")

	res, _ := tools.ExportSession(context.Background(), callRequest(map[string]any{"id": saved.ID}))
	if res.IsError {
		t.Fatalf("unexpected error result: %s", resultText(t, res))
	}
	text := resultText(t, res)
	if !strings.HasPrefix(text, "Standup\n") {
		t.Errorf("export should start with the title:\n%s", text)
	}
	if !strings.Contains(text, "[00:00] MIC: yesterday I fixed the login bug") {
		t.Errorf("export missing transcript line:\n%s", text)
	}
}

func TestExportSessionErrors(t *testing.T) {
	tools, _ := newTestTools(t)

	res, _ := tools.ExportSession(context.Background(), callRequest(nil))
	if !res.IsError {
		t.Error("missing id should be an error result")
	}

	res, _ = tools.ExportSession(context.Background(), callRequest(map[string]any{"id": "nope"}))
	if !res.IsError {
		t.Error("unknown id should be an error result")
	}
	if text := resultText(t, res); !strings.Contains(text, "not found") {
		t.Errorf("got %q", text)
	}
}

func TestListModes(t *testing.T) {
	tools, store := newTestTools(t)

	res, _ := tools.ListModes(context.Background(), callRequest(nil))
	if got := resultText(t, res); got != "No custom modes." {
		t.Errorf("got %q", got)
	}

	mode := catalog.NewMode("Interview", "Answer concisely.")
	if _, err := store.CreateMode(context.Background(), mode); err != nil {
		t.Fatalf("CreateMode: %v", err)
	}
	res, _ = tools.ListModes(context.Background(), callRequest(nil))
	text := resultText(t, res)
	if !strings.Contains(text, "Interview ("+mode.ID+")") || !strings.Contains(text, "Answer concisely.") {
		t.Errorf("unexpected modes:\n%s", text)
	}
}

func TestNewServerRegistersTools(t *testing.T) {
	_, store := newTestTools(t)
	if s := NewServer(store, "test", zerolog.Nop()); s == nil {
		t.Fatal("NewServer returned nil")
	}
}
