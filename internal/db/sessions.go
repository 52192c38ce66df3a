package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/codev612/hearnow/internal/session"
	"github.com/codev612/hearnow/internal/transcript"
)

// SaveSession upserts s together with its bubbles and markers. Bubbles are
// replaced wholesale; markers are only ever added. A session
// carrying a locally minted id is assigned a permanent one; the returned
// session carries the stored id.
func (s *Store) SaveSession(ctx context.Context, sess session.Session) (session.Session, error) {
	if session.IsLocalID(sess.ID) {
		sess.ID = uuid.NewString()
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = s.now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return session.Session{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, title, modeKey, summary, insights, questions, createdAt, updatedAt)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			modeKey = excluded.modeKey,
			summary = excluded.summary,
			insights = excluded.insights,
			questions = excluded.questions,
			updatedAt = excluded.updatedAt
	`, sess.ID, sess.Title, sess.ModeKey, sess.Summary, sess.Insights, sess.Questions,
		unixFromTime(sess.CreatedAt), unixFromTime(s.now()))
	if err != nil {
		return session.Session{}, fmt.Errorf("upsert session: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM bubbles WHERE sessionId = ?`, sess.ID); err != nil {
		return session.Session{}, fmt.Errorf("clear bubbles: %w", err)
	}
	for i, b := range sess.Bubbles {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO bubbles (sessionId, sequenceNumber, source, text, isDraft, timestamp)
			VALUES (?, ?, ?, ?, ?, ?)
		`, sess.ID, i, string(b.Source), b.Text, boolToInt(b.IsDraft), unixFromTime(b.Timestamp))
		if err != nil {
			return session.Session{}, fmt.Errorf("insert bubble %d: %w", i, err)
		}
	}

	// Markers are append-only: a save carrying an older marker list must not
	// drop one added through AddMarker in the meantime.
	for i, m := range sess.Markers {
		if err := insertMarker(ctx, tx, sess.ID, i, m); err != nil {
			return session.Session{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return session.Session{}, fmt.Errorf("commit: %w", err)
	}
	return sess, nil
}

// AddMarker appends one marker to an already stored session.
func (s *Store) AddMarker(ctx context.Context, sessionID string, m session.Marker) (session.Marker, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return session.Marker{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE id = ?`, sessionID).Scan(&exists)
	if err != nil {
		return session.Marker{}, fmt.Errorf("check session: %w", err)
	}
	if exists == 0 {
		return session.Marker{}, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}

	var next int
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequenceNumber) + 1, 0) FROM markers WHERE sessionId = ?`, sessionID,
	).Scan(&next)
	if err != nil {
		return session.Marker{}, fmt.Errorf("next marker sequence: %w", err)
	}
	if err := insertMarker(ctx, tx, sessionID, next, m); err != nil {
		return session.Marker{}, err
	}
	if err := tx.Commit(); err != nil {
		return session.Marker{}, fmt.Errorf("commit: %w", err)
	}
	return m, nil
}

func insertMarker(ctx context.Context, tx *sql.Tx, sessionID string, seq int, m session.Marker) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO markers (id, sessionId, sequenceNumber, at, wallTime, source, text, label)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			sessionId = excluded.sessionId,
			sequenceNumber = excluded.sequenceNumber,
			label = excluded.label
	`, m.ID, sessionID, seq, m.At, m.WallTime, m.Source, m.Text, m.Label)
	if err != nil {
		return fmt.Errorf("insert marker %s: %w", m.ID, err)
	}
	return nil
}

// GetSession loads a session with its bubbles and markers.
func (s *Store) GetSession(ctx context.Context, id string) (session.Session, error) {
	var (
		sess      session.Session
		createdAt float64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, modeKey, summary, insights, questions, createdAt
		FROM sessions WHERE id = ?
	`, id).Scan(&sess.ID, &sess.Title, &sess.ModeKey, &sess.Summary, &sess.Insights, &sess.Questions, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return session.Session{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return session.Session{}, fmt.Errorf("query session: %w", err)
	}
	sess.CreatedAt = timeFromUnix(createdAt)

	if sess.Bubbles, err = s.bubbles(ctx, id); err != nil {
		return session.Session{}, err
	}
	if sess.Markers, err = s.markers(ctx, id); err != nil {
		return session.Session{}, err
	}
	return sess, nil
}

// LatestSession returns the most recently updated session, or nil if none.
func (s *Store) LatestSession(ctx context.Context) (*session.Session, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM sessions ORDER BY updatedAt DESC LIMIT 1
	`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest session: %w", err)
	}
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *Store) bubbles(ctx context.Context, sessionID string) ([]transcript.Bubble, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source, text, isDraft, timestamp
		FROM bubbles WHERE sessionId = ?
		ORDER BY sequenceNumber ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query bubbles: %w", err)
	}
	defer rows.Close()

	var out []transcript.Bubble
	for rows.Next() {
		var (
			b       transcript.Bubble
			source  string
			isDraft int
			ts      float64
		)
		if err := rows.Scan(&source, &b.Text, &isDraft, &ts); err != nil {
			return nil, fmt.Errorf("scan bubble: %w", err)
		}
		b.Source = transcript.ParseSource(source)
		b.IsDraft = isDraft != 0
		b.Timestamp = timeFromUnix(ts)
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) markers(ctx context.Context, sessionID string) ([]session.Marker, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, at, wallTime, source, text, label
		FROM markers WHERE sessionId = ?
		ORDER BY sequenceNumber ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query markers: %w", err)
	}
	defer rows.Close()

	var out []session.Marker
	for rows.Next() {
		var m session.Marker
		if err := rows.Scan(&m.ID, &m.At, &m.WallTime, &m.Source, &m.Text, &m.Label); err != nil {
			return nil, fmt.Errorf("scan marker: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListSessions returns one page of sessions, newest first. A non-empty
// search matches titles and transcript text case-insensitively. The total
// counts every match regardless of paging.
func (s *Store) ListSessions(ctx context.Context, search string, limit, skip int) (SessionPage, error) {
	where := ""
	var args []any
	if q := strings.TrimSpace(search); q != "" {
		pattern := "%" + strings.ToLower(q) + "%"
		where = `WHERE LOWER(s.title) LIKE ? OR EXISTS (
			SELECT 1 FROM bubbles b WHERE b.sessionId = s.id AND LOWER(b.text) LIKE ?
		)`
		args = append(args, pattern, pattern)
	}

	var page SessionPage
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions s `+where, args...).Scan(&page.Total)
	if err != nil {
		return SessionPage{}, fmt.Errorf("count sessions: %w", err)
	}

	if limit <= 0 {
		limit = -1
	}
	if skip < 0 {
		skip = 0
	}
	query := `
		SELECT s.id, s.title, s.modeKey, s.createdAt, s.updatedAt,
			(SELECT COUNT(*) FROM bubbles b WHERE b.sessionId = s.id),
			(SELECT COUNT(*) FROM markers m WHERE m.sessionId = s.id)
		FROM sessions s ` + where + `
		ORDER BY s.createdAt DESC
		LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, query, append(args, limit, skip)...)
	if err != nil {
		return SessionPage{}, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			sum                  SessionSummary
			createdAt, updatedAt float64
		)
		if err := rows.Scan(&sum.ID, &sum.Title, &sum.ModeKey, &createdAt, &updatedAt, &sum.BubbleCount, &sum.MarkerCount); err != nil {
			return SessionPage{}, fmt.Errorf("scan session: %w", err)
		}
		sum.CreatedAt = timeFromUnix(createdAt)
		sum.UpdatedAt = timeFromUnix(updatedAt)
		page.Items = append(page.Items, sum)
	}
	return page, rows.Err()
}

// DeleteSession removes a session with its bubbles and markers.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM bubbles WHERE sessionId = ?`,
		`DELETE FROM markers WHERE sessionId = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return fmt.Errorf("delete session children: %w", err)
		}
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return tx.Commit()
}
