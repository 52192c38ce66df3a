// Package session owns the persisted meeting aggregate and keeps it in step
// with the live transcript stream.
package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/codev612/hearnow/internal/transcript"
)

// localPrefix marks ids minted on this client before the backend assigned one.
const localPrefix = "local-"

// Session is the persisted aggregate of one meeting or interview.
type Session struct {
	ID        string
	Title     string
	CreatedAt time.Time
	Bubbles   []transcript.Bubble
	ModeKey   string
	Summary   string
	Insights  string
	Questions string
	Markers   []Marker
}

// Marker is a user-created "moment" annotation.
type Marker struct {
	ID       string `json:"id"`
	At       string `json:"at"`
	WallTime string `json:"wallTime"`
	Source   string `json:"source"`
	Text     string `json:"text"`
	Label    string `json:"label"`
}

// EntityID implements optimistic.Entity.
func (m Marker) EntityID() string { return m.ID }

// NewFresh returns an empty session with a locally minted id.
func NewFresh(now time.Time) Session {
	return Session{
		ID:        fmt.Sprintf("%s%d", localPrefix, now.UnixMilli()),
		CreatedAt: now,
	}
}

// IsLocalID reports whether id was minted locally rather than by the backend.
func IsLocalID(id string) bool {
	return id == "" || strings.HasPrefix(id, localPrefix)
}

// IsSaved reports whether s has meaningful history. It is the only
// saved-ness predicate: the id shape is never consulted.
func IsSaved(s Session) bool {
	return len(s.Bubbles) > 0
}

// Clone returns a deep copy of s.
func (s Session) Clone() Session {
	out := s
	out.Bubbles = transcript.Clone(s.Bubbles)
	if len(s.Markers) > 0 {
		out.Markers = append([]Marker(nil), s.Markers...)
	} else {
		out.Markers = nil
	}
	return out
}

// DisplayTitle returns the title, or a date-based fallback.
func (s Session) DisplayTitle() string {
	if strings.TrimSpace(s.Title) != "" {
		return s.Title
	}
	return DefaultTitle(s.CreatedAt)
}

// DefaultTitle is the title given to sessions saved without one.
func DefaultTitle(t time.Time) string {
	return "Meeting " + t.Format("2006-01-02 15:04")
}
