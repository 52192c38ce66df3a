package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/codev612/hearnow/internal/db"
	"github.com/codev612/hearnow/internal/session"
	"github.com/codev612/hearnow/internal/transcript"
)

// setupCLI points config, database and logs at a temp dir.
func setupCLI(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "hearnow.sqlite")
	t.Setenv("HEARNOW_DB", dbPath)
	t.Setenv("HEARNOW_LOG_DIR", filepath.Join(dir, "logs"))
	t.Setenv("HEARNOW_AUTOSAVE_MS", "20")
	return dbPath
}

// execute runs the root command with args and stdin, resetting flags that
// persist between runs.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	searchFlag, limitFlag, skipFlag, copyFlag, forceFlag = "", 20, 0, false, false

	var out bytes.Buffer
	rootCmd.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "config")}, args...))
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func seedSession(t *testing.T, dbPath, title, text string) session.Session {
	t.Helper()
	store, err := db.Open(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	s := session.NewFresh(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	s.Title = title
	s.Bubbles = []transcript.Bubble{{Source: transcript.SourceSystem, Text: text, Timestamp: s.CreatedAt}}
	saved, err := store.SaveSession(context.Background(), s)
	if err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	return saved
}

func TestSessionsEmpty(t *testing.T) {
	setupCLI(t)
	out, err := execute(t, "", "sessions")
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	if !strings.Contains(out, "No sessions found.") {
		t.Errorf("output:\n%s", out)
	}
}

func TestSessionsAndExport(t *testing.T) {
	dbPath := setupCLI(t)
	saved := seedSession(t, dbPath, "Design review", "ship the cache layer first")
	seedSession(t, dbPath, "Lunch", "tacos again")

	out, err := execute(t, "", "sessions", "--search", "cache")
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	if !strings.Contains(out, saved.ID) || strings.Contains(out, "Lunch") {
		t.Errorf("output:\n%s", out)
	}
	if !strings.Contains(out, "Showing 1-1 of 1") {
		t.Errorf("missing footer:\n%s", out)
	}

	out, err = execute(t, "", "export", saved.ID)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.Contains(out, "SYS: ship the cache layer first") {
		t.Errorf("export output:\n%s", out)
	}
}

func TestExportUnknownID(t *testing.T) {
	setupCLI(t)
	_, err := execute(t, "", "export", "missing")
	if err == nil || !strings.Contains(err.Error(), "hearnow sessions") {
		t.Errorf("err = %v", err)
	}
}

func TestDeleteSession(t *testing.T) {
	dbPath := setupCLI(t)
	saved := seedSession(t, dbPath, "Old", "bye")

	if _, err := execute(t, "", "delete", saved.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := execute(t, "", "delete", saved.ID); err == nil {
		t.Error("second delete should fail")
	}
}

func TestModesAddFromPreset(t *testing.T) {
	setupCLI(t)

	out, err := execute(t, "", "modes", "add", "standup")
	if err != nil {
		t.Fatalf("modes add: %v", err)
	}
	if !strings.Contains(out, `Added mode "Standup"`) {
		t.Errorf("output:\n%s", out)
	}

	out, err = execute(t, "", "modes")
	if err != nil {
		t.Fatalf("modes: %v", err)
	}
	if !strings.Contains(out, "Standup") {
		t.Errorf("modes output:\n%s", out)
	}

	if _, err := execute(t, "", "modes", "add", "karaoke"); err == nil {
		t.Error("unknown preset should fail")
	}
}

func TestTemplatesAddAndEdit(t *testing.T) {
	dbPath := setupCLI(t)

	if _, err := execute(t, "What is the budget?\nWho owns it?\n", "templates", "add", "Kickoff"); err != nil {
		t.Fatalf("templates add: %v", err)
	}

	store, err := db.Open(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	templates, err := store.ListTemplates(context.Background())
	store.Close()
	if err != nil || len(templates) != 1 {
		t.Fatalf("templates = %+v, err = %v", templates, err)
	}
	id := templates[0].ID

	out, err := execute(t, "", "templates")
	if err != nil {
		t.Fatalf("templates: %v", err)
	}
	if !strings.Contains(out, "2 questions") {
		t.Errorf("templates output:\n%s", out)
	}

	if _, err := execute(t, "Timeline?\nRisks?\nBudget?\n", "templates", "edit", id); err != nil {
		t.Fatalf("templates edit: %v", err)
	}

	store, err = db.Open(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()
	templates, err = store.ListTemplates(context.Background())
	if err != nil {
		t.Fatalf("ListTemplates: %v", err)
	}
	if got, want := templates[0].Body, "Timeline?\nRisks?\nBudget?"; got != want {
		t.Errorf("body = %q, want %q", got, want)
	}
}

func TestConfigInit(t *testing.T) {
	setupCLI(t)
	dir := filepath.Join(t.TempDir(), "cfg")

	searchFlag, limitFlag, skipFlag, copyFlag, forceFlag = "", 20, 0, false, false
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"--config", dir, "config", "init"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out.String(), filepath.Join(dir, "config.yaml")) {
		t.Errorf("output:\n%s", out.String())
	}

	rootCmd.SetArgs([]string{"--config", dir, "config", "init"})
	if err := rootCmd.Execute(); err == nil {
		t.Error("second init without --force should fail")
	}
}
