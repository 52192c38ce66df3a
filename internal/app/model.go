package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/codev612/hearnow/internal/assistant"
	"github.com/codev612/hearnow/internal/catalog"
	"github.com/codev612/hearnow/internal/daemon"
	"github.com/codev612/hearnow/internal/meeting"
	"github.com/codev612/hearnow/internal/session"

	tea "github.com/charmbracelet/bubbletea"
)

// PanelFocus tracks which panel has keyboard focus.
type PanelFocus int

const (
	FocusMarkers PanelFocus = iota
	FocusTranscript
)

// inputMode is what the one-line prompt is collecting.
type inputMode int

const (
	inputNone inputMode = iota
	inputMarker
	inputTitle
	inputAsk
)

// opTimeout bounds every backend or store call made from a command.
const opTimeout = 30 * time.Second

// Backend is the connection side of the transcription client.
type Backend interface {
	Connect(ctx context.Context) error
	Notices() <-chan daemon.Event
}

// Model is the root bubbletea model for the hearnow TUI.
type Model struct {
	ctrl    *meeting.Controller
	backend Backend
	modes   *catalog.Modes
	refresh time.Duration

	// Connection state
	connected        bool
	connError        string
	reconnecting     bool
	reconnectAttempt int

	// Audio levels
	micLevel float32
	sysLevel float32

	// Session state
	elapsed   string
	lastSaved time.Time

	// AI panel
	aiTitle string
	aiText  string
	aiBusy  bool

	// Prompt
	input     textinput.Model
	inputMode inputMode

	// UI state
	focusedPanel     PanelFocus
	width            int
	height           int
	transcriptScroll int
	transcriptLive   bool
	selectedMarker   int

	// Errors
	errorMessage   string
	errorTransient bool

	// Status
	statusText string
}

// New creates a Model over ctrl. backend is the same transcription client the
// controller records through; modes may be nil when no store is available.
func New(ctrl *meeting.Controller, backend Backend, modes *catalog.Modes, refresh time.Duration) Model {
	if refresh <= 0 {
		refresh = 250 * time.Millisecond
	}
	ti := textinput.New()
	ti.CharLimit = 500
	return Model{
		ctrl:           ctrl,
		backend:        backend,
		modes:          modes,
		refresh:        refresh,
		elapsed:        session.FormatElapsed(0),
		input:          ti,
		statusText:     "Connecting to transcription daemon...",
		transcriptLive: true,
		focusedPanel:   FocusTranscript,
	}
}

// Init connects to the daemon, starts listening for notices and starts the
// refresh loop.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		connectCmd(m.backend),
		waitNoticeCmd(m.backend.Notices()),
		refreshCmd(m.refresh),
	)
}

// connectCmd dials the daemon and subscribes to its events.
func connectCmd(b Backend) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := b.Connect(ctx); err != nil {
			return DaemonConnectErrorMsg{Err: err}
		}
		return DaemonConnectedMsg{}
	}
}

// waitNoticeCmd blocks until the next notice arrives.
func waitNoticeCmd(ch <-chan daemon.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return NoticeMsg{Event: ev}
	}
}

func refreshCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg {
		return RefreshTickMsg{}
	})
}

// syncCmd pushes new bubbles into the active session.
func syncCmd(ctrl *meeting.Controller) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		return SyncedMsg{Wrote: ctrl.Sync(ctx)}
	}
}

func startCmd(ctrl *meeting.Controller) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		return RecordingStartedMsg{Err: ctrl.StartRecording(ctx)}
	}
}

func saveCmd(ctrl *meeting.Controller, title string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		sess, err := ctrl.SaveSession(ctx, title)
		return SessionSavedMsg{Session: sess, Err: err}
	}
}

func markCmd(ctrl *meeting.Controller, label string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		marker, err := ctrl.MarkMoment(ctx, label)
		return MarkerAddedMsg{Marker: marker, Err: err}
	}
}

func openLatestCmd(ctrl *meeting.Controller) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		state, err := ctrl.ResumeLatest(ctx)
		return SessionLoadedMsg{State: state, Err: err}
	}
}

func artifactCmd(ctrl *meeting.Controller, kind assistant.Artifact, regenerate bool) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		text, err := ctrl.GenerateArtifact(ctx, kind, regenerate)
		return ArtifactMsg{Kind: kind, Text: text, Err: err}
	}
}

func askCmd(ctrl *meeting.Controller, question string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		text, err := ctrl.Ask(ctx, question)
		return AnswerMsg{Question: question, Text: text, Err: err}
	}
}

// copyExportCmd renders the active session as text and copies it.
func copyExportCmd(ctrl *meeting.Controller) tea.Cmd {
	return func() tea.Msg {
		sess, ok := ctrl.Current()
		if !ok {
			return exportedMsg{err: errors.New("no active session")}
		}
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		text, err := ctrl.ExportSessionAsText(ctx, sess.ID)
		if err != nil {
			return exportedMsg{err: err}
		}
		return exportedMsg{err: clipboard.WriteAll(text)}
	}
}

type exportedMsg struct{ err error }

// clearTransientErrorCmd fires after a delay to clear transient errors.
func clearTransientErrorCmd() tea.Cmd {
	return tea.Tick(5*time.Second, func(time.Time) tea.Msg {
		return ClearTransientErrorMsg{}
	})
}

// reconnectCmd schedules a reconnection attempt with exponential backoff.
func reconnectCmd(attempt int) tea.Cmd {
	delay := time.Duration(1<<min(attempt, 4)) * time.Second // 1s, 2s, 4s, 8s, 16s cap
	if delay > 30*time.Second {
		delay = 30 * time.Second
	}
	return tea.Tick(delay, func(time.Time) tea.Msg {
		return ReconnectTickMsg{}
	})
}

// Update processes messages and returns the updated model and any commands.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		if m.inputMode != inputNone {
			return m.handleInputKey(msg)
		}
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = max(10, msg.Width-20)
		return m, nil

	case DaemonConnectedMsg:
		m.connected = true
		m.connError = ""
		m.reconnecting = false
		m.reconnectAttempt = 0
		m.statusText = "Connected"
		return m, nil

	case DaemonConnectErrorMsg:
		m.connected = false
		m.connError = msg.Err.Error()
		m.reconnecting = true
		m.statusText = "Daemon not available"
		return m, reconnectCmd(m.reconnectAttempt)

	case ReconnectTickMsg:
		m.reconnectAttempt++
		return m, connectCmd(m.backend)

	case NoticeMsg:
		cmd := m.handleNotice(msg.Event)
		return m, tea.Batch(cmd, waitNoticeCmd(m.backend.Notices()))

	case RefreshTickMsg:
		m.elapsed = m.ctrl.Clock().Display()
		if m.transcriptLive {
			m.scrollToBottom()
		}
		return m, tea.Batch(syncCmd(m.ctrl), refreshCmd(m.refresh))

	case SyncedMsg:
		if msg.Wrote {
			m.lastSaved = time.Now()
		}
		return m, nil

	case ClockTickMsg:
		m.elapsed = session.FormatElapsed(msg.Elapsed)
		return m, nil

	case RecordingStartedMsg:
		if msg.Err != nil {
			return m, m.showError("Start failed: "+msg.Err.Error(), true)
		}
		m.statusText = "Recording"
		return m, nil

	case SessionSavedMsg:
		if msg.Err != nil {
			return m, m.showError("Save failed: "+msg.Err.Error(), false)
		}
		m.lastSaved = time.Now()
		m.statusText = "Saved " + msg.Session.DisplayTitle()
		return m, nil

	case SessionLoadedMsg:
		if msg.Err != nil {
			return m, m.showError("Open failed: "+msg.Err.Error(), false)
		}
		m.elapsed = m.ctrl.Clock().Display()
		m.selectedMarker = 0
		m.transcriptLive = true
		m.aiTitle, m.aiText = "", ""
		if msg.State == session.StateFresh {
			m.statusText = "No saved sessions; started a new one"
		} else {
			m.statusText = "Opened " + msg.State.String() + " session"
		}
		return m, nil

	case MarkerAddedMsg:
		if msg.Err != nil {
			return m, m.showError("Mark failed: "+msg.Err.Error(), true)
		}
		m.statusText = "Marked " + msg.Marker.At
		if n := len(m.ctrl.Markers().Markers()); n > 0 {
			m.selectedMarker = n - 1
		}
		return m, nil

	case ArtifactMsg:
		m.aiBusy = false
		if msg.Err != nil {
			return m, m.showAIError(msg.Err)
		}
		m.aiTitle = msg.Kind.String()
		m.aiText = msg.Text
		return m, nil

	case AnswerMsg:
		m.aiBusy = false
		if msg.Err != nil {
			return m, m.showAIError(msg.Err)
		}
		m.aiTitle = "Q: " + msg.Question
		m.aiText = msg.Text
		return m, nil

	case exportedMsg:
		if msg.err != nil {
			return m, m.showError("Copy failed: "+msg.err.Error(), true)
		}
		m.statusText = "Transcript copied to clipboard"
		return m, nil

	case ClearTransientErrorMsg:
		if m.errorTransient {
			m.errorMessage = ""
			m.errorTransient = false
		}
		return m, nil
	}

	return m, nil
}

// handleNotice processes a non-transcript daemon event.
func (m *Model) handleNotice(ev daemon.Event) tea.Cmd {
	switch ev.Event {
	case daemon.EventLevel:
		if ev.Mic != nil {
			m.micLevel = *ev.Mic
		}
		if ev.Sys != nil {
			m.sysLevel = *ev.Sys
		}

	case daemon.EventStatus:
		if ev.Recording != nil {
			if *ev.Recording {
				m.statusText = "Recording"
			} else {
				m.statusText = "Idle"
				m.micLevel, m.sysLevel = 0, 0
			}
		}

	case daemon.EventError:
		transient := ev.Transient != nil && *ev.Transient
		return m.showError(ev.Message, transient)

	case daemon.EventDisconnected:
		m.connected = false
		m.reconnecting = true
		m.reconnectAttempt = 0
		m.micLevel, m.sysLevel = 0, 0
		m.statusText = "Daemon disconnected"
		return reconnectCmd(m.reconnectAttempt)
	}
	return nil
}

func (m *Model) showError(text string, transient bool) tea.Cmd {
	m.errorMessage = text
	m.errorTransient = transient
	if transient {
		return clearTransientErrorCmd()
	}
	return nil
}

func (m *Model) showAIError(err error) tea.Cmd {
	switch {
	case errors.Is(err, assistant.ErrAskInFlight):
		return m.showError("AI is still working on the previous request", true)
	case errors.Is(err, assistant.ErrEmptyTranscript):
		return m.showError("Nothing transcribed yet", true)
	default:
		return m.showError("AI: "+err.Error(), false)
	}
}

// handleKey processes key presses outside the prompt.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case KeyQuit, "Q", KeyCtrlC:
		return m, tea.Quit

	case KeySpace:
		if !m.connected {
			return m, nil
		}
		if m.ctrl.Recording() {
			m.ctrl.StopRecording()
			m.statusText = "Stopping..."
			return m, nil
		}
		if m.ctrl.Stopping() {
			return m, nil
		}
		m.statusText = "Starting..."
		return m, startCmd(m.ctrl)

	case KeyTab:
		if m.focusedPanel == FocusMarkers {
			m.focusedPanel = FocusTranscript
		} else {
			m.focusedPanel = FocusMarkers
		}
		return m, nil

	case KeyUp, "k":
		if m.focusedPanel == FocusMarkers {
			if m.selectedMarker > 0 {
				m.selectedMarker--
			}
			return m, nil
		}
		m.transcriptLive = false
		if m.transcriptScroll > 0 {
			m.transcriptScroll--
		}
		return m, nil

	case KeyDown, "j":
		if m.focusedPanel == FocusMarkers {
			if m.selectedMarker < len(m.ctrl.Markers().Markers())-1 {
				m.selectedMarker++
			}
			return m, nil
		}
		maxScroll := m.maxTranscriptScroll()
		m.transcriptScroll++
		if m.transcriptScroll >= maxScroll {
			m.transcriptScroll = maxScroll
			m.transcriptLive = true
		}
		return m, nil

	case KeyMark:
		return m, m.openInput(inputMarker, "label (optional)", "")

	case KeySave:
		title := ""
		if sess, ok := m.ctrl.Current(); ok {
			title = sess.Title
		}
		return m, m.openInput(inputTitle, "session title", title)

	case KeyAsk:
		if m.aiBusy {
			return m, nil
		}
		return m, m.openInput(inputAsk, "ask about this meeting", "")

	case KeyNew:
		if m.ctrl.Recording() {
			return m, m.showError("Stop recording before starting a new session", true)
		}
		if _, err := m.ctrl.NewSession(); err != nil {
			return m, m.showError(err.Error(), true)
		}
		m.resetSessionView()
		m.statusText = "New session"
		return m, nil

	case KeyOpenLatest:
		if m.ctrl.Recording() {
			return m, m.showError("Stop recording before opening a session", true)
		}
		return m, openLatestCmd(m.ctrl)

	case KeyClear:
		m.ctrl.ClearTranscript()
		m.resetSessionView()
		m.statusText = "Transcript cleared"
		return m, nil

	case KeySummary, KeyRegenerate, KeyInsights, KeyQuestions:
		if m.aiBusy {
			return m, nil
		}
		kind := assistant.ArtifactSummary
		switch msg.String() {
		case KeyInsights:
			kind = assistant.ArtifactInsights
		case KeyQuestions:
			kind = assistant.ArtifactQuestions
		}
		m.aiBusy = true
		m.aiTitle = kind.String()
		return m, artifactCmd(m.ctrl, kind, msg.String() == KeyRegenerate)

	case KeyCycleMode:
		m.cycleMode()
		return m, nil

	case KeyCopyExport:
		return m, copyExportCmd(m.ctrl)
	}

	return m, nil
}

// handleInputKey feeds keys to the prompt until it is submitted or cancelled.
func (m Model) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case KeyCtrlC:
		return m, tea.Quit

	case KeyEsc:
		m.closeInput()
		return m, nil

	case KeyEnter:
		mode := m.inputMode
		value := m.input.Value()
		m.closeInput()
		switch mode {
		case inputMarker:
			return m, markCmd(m.ctrl, value)
		case inputTitle:
			m.statusText = "Saving..."
			return m, saveCmd(m.ctrl, value)
		case inputAsk:
			if value == "" {
				return m, nil
			}
			m.aiBusy = true
			m.aiTitle = "Q: " + value
			return m, askCmd(m.ctrl, value)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) openInput(mode inputMode, placeholder, value string) tea.Cmd {
	m.inputMode = mode
	m.input.Placeholder = placeholder
	m.input.SetValue(value)
	m.input.CursorEnd()
	return m.input.Focus()
}

func (m *Model) closeInput() {
	m.inputMode = inputNone
	m.input.Blur()
	m.input.Reset()
}

func (m *Model) resetSessionView() {
	m.elapsed = m.ctrl.Clock().Display()
	m.selectedMarker = 0
	m.transcriptScroll = 0
	m.transcriptLive = true
	m.aiTitle, m.aiText = "", ""
}

// cycleMode moves to the next custom mode, with "no mode" after the last.
func (m *Model) cycleMode() {
	if m.modes == nil || len(m.modes.Items()) == 0 {
		m.statusText = "No custom modes"
		return
	}
	items := m.modes.Items()
	next := 0
	if cur := m.ctrl.Mode(); cur != nil {
		next = len(items)
		for i, mode := range items {
			if mode.ID == cur.ID {
				next = i + 1
				break
			}
		}
	}
	if next >= len(items) {
		m.ctrl.SetMode(nil)
		m.modes.Select("")
		m.statusText = "Mode: default"
		return
	}
	mode := items[next]
	m.ctrl.SetMode(&mode)
	m.modes.Select(mode.ID)
	m.statusText = fmt.Sprintf("Mode: %s", mode.Label)
}
