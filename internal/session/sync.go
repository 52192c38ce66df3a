package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/codev612/hearnow/internal/transcript"
)

// ErrSyncInProgress is returned when a session switch is attempted from
// inside a propagation.
var ErrSyncInProgress = errors.New("session sync in progress")

// Persister writes a session to the backend. It returns the stored session,
// whose ID may differ from the input when a local session is first saved.
type Persister interface {
	SaveSession(ctx context.Context, s Session) (Session, error)
}

// State is the outcome of classifying a session at activation.
type State int

const (
	StateNone State = iota
	StateFresh
	StateResumed
	StateEmpty
)

func (s State) String() string {
	switch s {
	case StateFresh:
		return "fresh"
	case StateResumed:
		return "resumed"
	case StateEmpty:
		return "empty"
	default:
		return "none"
	}
}

// Classify decides how a session is activated. Content decides first; the id
// shape only separates Fresh from Empty.
func Classify(s Session) State {
	switch {
	case IsSaved(s):
		return StateResumed
	case IsLocalID(s.ID):
		return StateFresh
	default:
		return StateEmpty
	}
}

// Synchronizer owns the active session while a recording or editing flow is
// running and propagates changes between it and the transcript stream.
type Synchronizer struct {
	stream *transcript.Stream
	store  Persister
	log    zerolog.Logger

	guard    Guard
	detector transcript.DiffDetector // only touched while guard is held

	// writeMu serializes backend writes so a local session is minted once
	// and the newest transcript always commits last.
	writeMu sync.Mutex

	mu      sync.Mutex
	session Session
	state   State
	active  bool
	adopted map[string]string // local id -> backend id
}

// NewSynchronizer creates a synchronizer over stream that persists to store.
func NewSynchronizer(stream *transcript.Stream, store Persister, log zerolog.Logger) *Synchronizer {
	return &Synchronizer{stream: stream, store: store, log: log, adopted: make(map[string]string)}
}

// Activate makes sess the active session and brings the stream in line with
// it: fresh and empty sessions clear the stream, a resumed session imports
// its bubbles. Re-entering the session that is already active keeps a
// stream of the same length, since it may hold newer drafts.
func (s *Synchronizer) Activate(sess Session) (State, error) {
	var state State
	ran := s.guard.Run(func() {
		s.mu.Lock()
		reentry := s.active && s.session.ID == s.resolveLocked(sess.ID)
		s.mu.Unlock()

		state = Classify(sess)
		switch state {
		case StateResumed:
			if n := s.stream.Len(); !reentry || n == 0 || n != len(sess.Bubbles) {
				s.stream.Replace(sess.Bubbles)
			}
		default:
			s.stream.Clear()
		}

		s.mu.Lock()
		s.session = sess.Clone()
		s.state = state
		s.active = true
		s.mu.Unlock()

		// Absorb the activation itself so it does not read as an edit.
		s.detector.Reset()
		s.detector.HasChanged(s.stream.Snapshot())
	})
	if !ran {
		return StateNone, ErrSyncInProgress
	}
	s.log.Debug().Str("session_id", sess.ID).Stringer("state", state).Msg("session activated")
	return state, nil
}

// Sync is called once per refresh tick. When the stream changed and differs
// from the session, the session's bubbles are overwritten and a write is
// requested. It reports whether a write was requested. Ticks that arrive
// while another propagation holds the guard are skipped.
func (s *Synchronizer) Sync(ctx context.Context) bool {
	var pending *Session
	s.guard.Run(func() {
		snap := s.stream.Snapshot()
		if !s.detector.HasChanged(snap) {
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if !s.active || transcript.Equal(snap, s.session.Bubbles) {
			return
		}
		s.session.Bubbles = snap
		cp := s.session.Clone()
		pending = &cp
	})
	if pending == nil {
		return false
	}

	if _, err := s.persist(ctx, *pending); err != nil {
		s.log.Warn().Err(err).Str("session_id", pending.ID).Msg("bubble sync write failed")
	}
	return true
}

// Save writes the active session now. A non-empty title replaces the current
// one; an untitled session gets a date-based title. Errors are returned to
// the caller.
func (s *Synchronizer) Save(ctx context.Context, title string) (Session, error) {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return Session{}, errors.New("no active session")
	}
	if t := strings.TrimSpace(title); t != "" {
		s.session.Title = t
	} else if strings.TrimSpace(s.session.Title) == "" {
		s.session.Title = DefaultTitle(s.session.CreatedAt)
	}
	cp := s.session.Clone()
	s.mu.Unlock()

	return s.persist(ctx, cp)
}

// Current returns a copy of the active session.
func (s *Synchronizer) Current() (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.Clone(), s.active
}

// State returns how the active session was activated.
func (s *Synchronizer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Update mutates the active session in memory. It does not touch the stream.
func (s *Synchronizer) Update(fn func(*Session)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		fn(&s.session)
	}
}

// Apply mutates the session with id and writes it, but only while that
// session is still the active one. It reports false when another session
// has been activated meanwhile.
func (s *Synchronizer) Apply(ctx context.Context, id string, fn func(*Session)) (Session, bool, error) {
	s.mu.Lock()
	if !s.active || s.session.ID != s.resolveLocked(id) {
		s.mu.Unlock()
		return Session{}, false, nil
	}
	fn(&s.session)
	cp := s.session.Clone()
	s.mu.Unlock()

	saved, err := s.persist(ctx, cp)
	return saved, true, err
}

// Resolve maps a local session id to the backend id it was saved under.
// Other ids are returned unchanged.
func (s *Synchronizer) Resolve(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolveLocked(id)
}

func (s *Synchronizer) resolveLocked(id string) string {
	if backend, ok := s.adopted[id]; ok {
		return backend
	}
	return id
}

// persist writes sess. Writes are serialized; when sess is still the active
// session its latest in-memory state is written instead of the captured one,
// so a slow earlier write can never land after a newer one. A backend id
// assigned on the first write of a local session is adopted and reused.
func (s *Synchronizer) persist(ctx context.Context, sess Session) (Session, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	origID := sess.ID
	sess.ID = s.resolveLocked(sess.ID)
	if s.active && s.session.ID == sess.ID {
		sess = s.session.Clone()
	}
	s.mu.Unlock()

	saved, err := s.store.SaveSession(ctx, sess)
	if err != nil {
		return Session{}, fmt.Errorf("save session: %w", err)
	}
	if saved.ID == "" || saved.ID == sess.ID {
		return saved, nil
	}

	s.mu.Lock()
	s.adopted[origID] = saved.ID
	s.adopted[sess.ID] = saved.ID
	if s.active && s.session.ID == sess.ID {
		s.session.ID = saved.ID
	}
	s.mu.Unlock()
	s.log.Debug().Str("local_id", sess.ID).Str("session_id", saved.ID).Msg("session id adopted")
	return saved, nil
}
