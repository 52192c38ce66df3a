package app

import (
	"time"

	"github.com/codev612/hearnow/internal/assistant"
	"github.com/codev612/hearnow/internal/daemon"
	"github.com/codev612/hearnow/internal/session"
)

// DaemonConnectedMsg is sent when the transcription backend is connected.
type DaemonConnectedMsg struct{}

// DaemonConnectErrorMsg is sent when the connection attempt fails.
type DaemonConnectErrorMsg struct {
	Err error
}

// NoticeMsg wraps a non-transcript event from the backend (levels, status,
// errors, disconnects).
type NoticeMsg struct {
	Event daemon.Event
}

// ReconnectTickMsg triggers a reconnection attempt.
type ReconnectTickMsg struct{}

// RefreshTickMsg drives the periodic bubble sync and redraw.
type RefreshTickMsg struct{}

// SyncedMsg reports the outcome of one bubble sync.
type SyncedMsg struct {
	Wrote bool
}

// ClockTickMsg carries the recording clock's elapsed time.
type ClockTickMsg struct {
	Elapsed time.Duration
}

// RecordingStartedMsg carries the result of a start request.
type RecordingStartedMsg struct {
	Err error
}

// SessionSavedMsg carries the result of an explicit save.
type SessionSavedMsg struct {
	Session session.Session
	Err     error
}

// SessionLoadedMsg carries the result of opening a session.
type SessionLoadedMsg struct {
	State session.State
	Err   error
}

// MarkerAddedMsg carries the result of marking a moment.
type MarkerAddedMsg struct {
	Marker session.Marker
	Err    error
}

// ArtifactMsg carries a generated summary, insights or questions.
type ArtifactMsg struct {
	Kind assistant.Artifact
	Text string
	Err  error
}

// AnswerMsg carries the AI's answer to a question.
type AnswerMsg struct {
	Question string
	Text     string
	Err      error
}

// ClearTransientErrorMsg clears a transient error after a timeout.
type ClearTransientErrorMsg struct{}
