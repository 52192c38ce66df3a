// Package db provides the SQLite persistence backend for sessions, markers,
// custom modes and question templates.
package db

import (
	"errors"
	"time"
)

// ErrNotFound is returned when an id-addressed record does not exist.
var ErrNotFound = errors.New("not found")

// SessionSummary is one row of the session browser.
type SessionSummary struct {
	ID          string
	Title       string
	ModeKey     string
	BubbleCount int
	MarkerCount int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SessionPage is one page of ListSessions along with the unpaged total.
type SessionPage struct {
	Items []SessionSummary
	Total int
}
