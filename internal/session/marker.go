package session

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/codev612/hearnow/internal/optimistic"
	"github.com/codev612/hearnow/internal/transcript"
)

// MarkerLog is the append-only list of moments for the active session.
type MarkerLog struct {
	markers *optimistic.Mutator[Marker]
	now     func() time.Time
	newID   func() string
}

// NewMarkerLog creates a marker log whose additions are confirmed by remote.
func NewMarkerLog(remote optimistic.Remote[Marker], log zerolog.Logger) *MarkerLog {
	return &MarkerLog{
		markers: optimistic.New[Marker](remote, optimistic.WithLogger[Marker](log)),
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Capture builds a marker from the state at call time without recording it.
func (l *MarkerLog) Capture(clock *Clock, bubbles []transcript.Bubble, label string) Marker {
	now := l.now()
	m := Marker{
		ID:       l.newID(),
		WallTime: now.Format(time.RFC3339),
		Label:    strings.TrimSpace(label),
	}
	if clock != nil && clock.Running() {
		m.At = clock.Display()
	} else {
		m.At = now.Format("15:04:05")
	}
	if b, ok := contextBubble(bubbles); ok {
		m.Source = string(b.Source)
		m.Text = b.Text
	}
	return m
}

// Add captures a marker and appends it. If the remote rejects it the marker
// is dropped again and the error returned.
func (l *MarkerLog) Add(ctx context.Context, clock *Clock, bubbles []transcript.Bubble, label string) (Marker, error) {
	m := l.Capture(clock, bubbles, label)
	if err := l.markers.Add(ctx, m); err != nil {
		return Marker{}, err
	}
	return m, nil
}

// Load replaces the markers, e.g. when another session is activated.
func (l *MarkerLog) Load(markers []Marker) {
	l.markers.Set(markers)
}

// Markers returns the markers in append order.
func (l *MarkerLog) Markers() []Marker {
	return l.markers.Items()
}

// Changes is published whenever the marker list changes.
func (l *MarkerLog) Changes() *optimistic.Notifier {
	return l.markers.Changes()
}

// contextBubble picks the latest final bubble, preferring system audio over
// the microphone. Without any final bubble the latest draft is used.
func contextBubble(bubbles []transcript.Bubble) (transcript.Bubble, bool) {
	isFinalFrom := func(src transcript.Source) func(transcript.Bubble) bool {
		return func(b transcript.Bubble) bool { return !b.IsDraft && b.Source == src }
	}
	if b, _, ok := lo.FindLastIndexOf(bubbles, isFinalFrom(transcript.SourceSystem)); ok {
		return b, true
	}
	if b, _, ok := lo.FindLastIndexOf(bubbles, isFinalFrom(transcript.SourceMic)); ok {
		return b, true
	}
	if len(bubbles) == 0 {
		return transcript.Bubble{}, false
	}
	return bubbles[len(bubbles)-1], true
}
