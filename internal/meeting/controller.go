// Package meeting wires the transcription backend, the session synchronizer,
// the recording clock, the marker log, persistence and the AI assistant into
// the operations the UI drives.
package meeting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/codev612/hearnow/internal/assistant"
	"github.com/codev612/hearnow/internal/catalog"
	"github.com/codev612/hearnow/internal/db"
	"github.com/codev612/hearnow/internal/session"
	"github.com/codev612/hearnow/internal/transcript"
)

// ErrNotConnected is returned when recording is requested without a live
// transcription backend.
var ErrNotConnected = errors.New("transcription backend not connected")

// Transcriber is the live transcription backend.
type Transcriber interface {
	Start(ctx context.Context, useMic bool) error
	Stop(ctx context.Context) error
	Clear()
	Stream() *transcript.Stream
	Connected() bool
	Recording() bool
	Stopping() bool
}

// Store is the persistence backend the controller needs.
type Store interface {
	session.Persister
	GetSession(ctx context.Context, id string) (session.Session, error)
	LatestSession(ctx context.Context) (*session.Session, error)
	ListSessions(ctx context.Context, search string, limit, skip int) (db.SessionPage, error)
	DeleteSession(ctx context.Context, id string) error
	AddMarker(ctx context.Context, sessionID string, m session.Marker) (session.Marker, error)
}

// Options tune the controller's timing.
type Options struct {
	// StopSyncDelay defers the bubble sync after a stop so the backend can
	// deliver its trailing segments.
	StopSyncDelay time.Duration
	// ClockTick is the recording clock's tick interval.
	ClockTick time.Duration
	// OnClockTick is called on every clock tick while recording.
	OnClockTick func(elapsed time.Duration)
	// UseMic captures the microphone in addition to system audio.
	UseMic bool
}

// Controller owns the active session and its collaborators.
type Controller struct {
	tr    Transcriber
	store Store
	ai    *assistant.Assistant
	log   zerolog.Logger
	opts  Options
	now   func() time.Time

	sync    *session.Synchronizer
	clock   *session.Clock
	markers *session.MarkerLog

	mu        sync.Mutex
	stopTimer *time.Timer
	mode      *catalog.Mode
	stopWG    sync.WaitGroup
}

// New creates a controller. Call NewSession or OpenSession before recording.
func New(tr Transcriber, store Store, ai *assistant.Assistant, opts Options, log zerolog.Logger) *Controller {
	if opts.StopSyncDelay <= 0 {
		opts.StopSyncDelay = 300 * time.Millisecond
	}
	c := &Controller{
		tr:    tr,
		store: store,
		ai:    ai,
		log:   log,
		opts:  opts,
		now:   time.Now,
		sync:  session.NewSynchronizer(tr.Stream(), store, log),
		clock: session.NewClock(opts.ClockTick, opts.OnClockTick),
	}
	c.markers = session.NewMarkerLog(markerRemote{c: c}, log)
	return c
}

// Stream returns the live bubble stream.
func (c *Controller) Stream() *transcript.Stream { return c.tr.Stream() }

// Clock returns the recording clock.
func (c *Controller) Clock() *session.Clock { return c.clock }

// Markers returns the marker log of the active session.
func (c *Controller) Markers() *session.MarkerLog { return c.markers }

// Current returns a copy of the active session.
func (c *Controller) Current() (session.Session, bool) { return c.sync.Current() }

// State returns how the active session was activated.
func (c *Controller) State() session.State { return c.sync.State() }

// Connected reports whether the transcription backend is up.
func (c *Controller) Connected() bool { return c.tr.Connected() }

// Recording reports whether audio is being captured.
func (c *Controller) Recording() bool { return c.tr.Recording() }

// Stopping reports whether a stop is in flight.
func (c *Controller) Stopping() bool { return c.tr.Stopping() }

// NewSession activates a fresh local session with a cleared stream and clock.
func (c *Controller) NewSession() (session.Session, error) {
	sess := session.NewFresh(c.now())
	if mode := c.Mode(); mode != nil {
		sess.ModeKey = mode.ID
	}
	if _, err := c.sync.Activate(sess); err != nil {
		return session.Session{}, err
	}
	c.clock.Stop()
	c.clock.Reset()
	c.markers.Load(nil)
	return sess, nil
}

// OpenSession loads a stored session and activates it.
func (c *Controller) OpenSession(ctx context.Context, id string) (session.State, error) {
	sess, err := c.store.GetSession(ctx, id)
	if err != nil {
		return session.StateNone, fmt.Errorf("open session: %w", err)
	}
	return c.activate(sess)
}

// ResumeLatest activates the most recently updated session, or a fresh one
// when nothing is stored yet.
func (c *Controller) ResumeLatest(ctx context.Context) (session.State, error) {
	latest, err := c.store.LatestSession(ctx)
	if err != nil {
		return session.StateNone, fmt.Errorf("load latest session: %w", err)
	}
	if latest == nil {
		if _, err := c.NewSession(); err != nil {
			return session.StateNone, err
		}
		return c.sync.State(), nil
	}
	return c.activate(*latest)
}

func (c *Controller) activate(sess session.Session) (session.State, error) {
	state, err := c.sync.Activate(sess)
	if err != nil {
		return session.StateNone, err
	}
	c.clock.Stop()
	c.clock.Restore(sess.Bubbles, sess.CreatedAt)
	c.markers.Load(sess.Markers)
	return state, nil
}

// StartRecording starts the backend and the clock. Without an active session
// a fresh one is created first.
func (c *Controller) StartRecording(ctx context.Context) error {
	if !c.tr.Connected() {
		return ErrNotConnected
	}
	sess, ok := c.sync.Current()
	if !ok {
		var err error
		if sess, err = c.NewSession(); err != nil {
			return err
		}
	}

	c.mu.Lock()
	if c.stopTimer != nil {
		c.stopTimer.Stop()
		c.stopTimer = nil
	}
	c.mu.Unlock()

	if err := c.tr.Start(ctx, c.opts.UseMic); err != nil {
		return fmt.Errorf("start recording: %w", err)
	}
	c.clock.Start(c.tr.Stream().Snapshot(), sess.CreatedAt)
	return nil
}

// StopRecording stops the clock at once and the backend in the background.
// Backend errors are logged. After StopSyncDelay leftover drafts are
// finalized and the bubbles synced.
func (c *Controller) StopRecording() {
	c.clock.Stop()

	c.stopWG.Add(1)
	go func() {
		defer c.stopWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.tr.Stop(ctx); err != nil {
			c.log.Warn().Err(err).Msg("stop recording failed")
		}
	}()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopTimer != nil {
		c.stopTimer.Stop()
	}
	c.stopTimer = time.AfterFunc(c.opts.StopSyncDelay, func() {
		// Trailing segments had their window; whatever is still a draft
		// will not be finalized by the backend.
		if !c.tr.Recording() {
			c.tr.Stream().FinalizeDrafts()
		}
		c.Sync(context.Background())
	})
}

// ClearTranscript empties the stream and resets the clock. The next sync
// writes the empty transcript.
func (c *Controller) ClearTranscript() {
	c.tr.Clear()
	c.clock.Reset()
}

// Sync propagates stream changes to the active session. Called on every UI
// refresh tick.
func (c *Controller) Sync(ctx context.Context) bool {
	return c.sync.Sync(ctx)
}

// MarkMoment records a marker at the current clock position. A session that
// was never written is persisted first so the marker has an owner.
func (c *Controller) MarkMoment(ctx context.Context, label string) (session.Marker, error) {
	if _, ok := c.sync.Current(); !ok {
		return session.Marker{}, errors.New("no active session")
	}
	return c.markers.Add(ctx, c.clock, c.tr.Stream().Snapshot(), label)
}

// SaveSession writes the active session now, applying title if non-empty.
func (c *Controller) SaveSession(ctx context.Context, title string) (session.Session, error) {
	c.sync.Sync(ctx)
	return c.sync.Save(ctx, title)
}

// ExportSessionAsText renders a session as plain text. The active session is
// exported from memory so unsynced edits are included.
func (c *Controller) ExportSessionAsText(ctx context.Context, id string) (string, error) {
	if cur, ok := c.sync.Current(); ok && cur.ID == id {
		cur.Bubbles = c.tr.Stream().Snapshot()
		cur.Markers = c.markers.Markers()
		return session.ExportText(cur), nil
	}
	sess, err := c.store.GetSession(ctx, id)
	if err != nil {
		return "", fmt.Errorf("export session: %w", err)
	}
	return session.ExportText(sess), nil
}

// ListSessions returns one page of stored sessions.
func (c *Controller) ListSessions(ctx context.Context, search string, limit, skip int) (db.SessionPage, error) {
	page, err := c.store.ListSessions(ctx, search, limit, skip)
	if err != nil {
		return db.SessionPage{}, fmt.Errorf("list sessions: %w", err)
	}
	return page, nil
}

// DeleteSession removes a stored session. Deleting the active session
// activates a fresh one.
func (c *Controller) DeleteSession(ctx context.Context, id string) error {
	if c.tr.Recording() {
		if cur, ok := c.sync.Current(); ok && cur.ID == id {
			return errors.New("cannot delete the session being recorded")
		}
	}
	if err := c.store.DeleteSession(ctx, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if cur, ok := c.sync.Current(); ok && cur.ID == id {
		c.tr.Clear()
		if _, err := c.NewSession(); err != nil {
			return err
		}
	}
	return nil
}

// SetMode selects the mode used for questions and stamps it on the active
// session. A nil mode clears the selection.
func (c *Controller) SetMode(mode *catalog.Mode) {
	c.mu.Lock()
	c.mode = mode
	c.mu.Unlock()

	key := ""
	if mode != nil {
		key = mode.ID
	}
	c.sync.Update(func(s *session.Session) { s.ModeKey = key })
}

// Mode returns the selected mode, or nil.
func (c *Controller) Mode() *catalog.Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Ask asks the AI a question with the transcript so far as context, using
// the selected mode's prompt and model.
func (c *Controller) Ask(ctx context.Context, question string) (string, error) {
	var prompt, model string
	if mode := c.Mode(); mode != nil {
		prompt, model = mode.Prompt, mode.Model
	}
	q := strings.TrimSpace(question)
	if text := assistant.TranscriptText(c.tr.Stream().Snapshot()); text != "" && q != "" {
		q += "\n\nTranscript so far:\n" + text
	}
	return c.ai.Ask(ctx, q, prompt, model)
}

// GenerateArtifact produces (or reuses) an AI artifact for the active session
// and persists it. If another session was activated while the model was
// working, the artifact is stamped on the stored copy of the one it was
// generated for.
func (c *Controller) GenerateArtifact(ctx context.Context, kind assistant.Artifact, regenerate bool) (string, error) {
	c.sync.Sync(ctx)
	cur, ok := c.sync.Current()
	if !ok {
		return "", errors.New("no active session")
	}
	text, err := c.ai.Generate(ctx, kind, cur, regenerate)
	if err != nil {
		return "", err
	}
	if text == kind.Get(cur) {
		return text, nil
	}

	set := func(s *session.Session) { kind.Set(s, text) }
	_, applied, err := c.sync.Apply(ctx, cur.ID, set)
	if applied || err != nil {
		return text, err
	}

	id := c.sync.Resolve(cur.ID)
	if session.IsLocalID(id) {
		c.log.Warn().Str("session_id", id).Msg("artifact dropped, session was never saved")
		return text, nil
	}
	stored, err := c.store.GetSession(ctx, id)
	if err != nil {
		return text, fmt.Errorf("load session for artifact: %w", err)
	}
	set(&stored)
	if _, err := c.store.SaveSession(ctx, stored); err != nil {
		return text, fmt.Errorf("save artifact: %w", err)
	}
	return text, nil
}

// Close cancels the deferred stop sync and waits for an in-flight stop.
func (c *Controller) Close() {
	c.clock.Stop()
	c.mu.Lock()
	if c.stopTimer != nil {
		c.stopTimer.Stop()
		c.stopTimer = nil
	}
	c.mu.Unlock()
	c.stopWG.Wait()
}

// ensurePersisted writes a never-saved session so it has a backend id.
func (c *Controller) ensurePersisted(ctx context.Context) (string, error) {
	cur, ok := c.sync.Current()
	if !ok {
		return "", errors.New("no active session")
	}
	if !session.IsLocalID(cur.ID) {
		return cur.ID, nil
	}
	saved, err := c.sync.Save(ctx, "")
	if err != nil {
		return "", err
	}
	return saved.ID, nil
}

// markerRemote confirms markers against the store on behalf of the active
// session. Markers are append-only.
type markerRemote struct{ c *Controller }

func (r markerRemote) List(ctx context.Context) ([]session.Marker, error) {
	cur, _ := r.c.sync.Current()
	return cur.Markers, nil
}

func (r markerRemote) Create(ctx context.Context, m session.Marker) (session.Marker, error) {
	id, err := r.c.ensurePersisted(ctx)
	if err != nil {
		return session.Marker{}, err
	}
	saved, err := r.c.store.AddMarker(ctx, id, m)
	if err != nil {
		return session.Marker{}, err
	}
	r.c.sync.Update(func(s *session.Session) {
		if s.ID == id {
			s.Markers = append(s.Markers, saved)
		}
	})
	return saved, nil
}

func (r markerRemote) Update(ctx context.Context, m session.Marker) (session.Marker, error) {
	return session.Marker{}, errors.New("markers cannot be edited")
}

func (r markerRemote) Delete(ctx context.Context, id string) error {
	return errors.New("markers cannot be deleted")
}
