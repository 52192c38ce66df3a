package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/codev612/hearnow/internal/catalog"
)

// ListModes returns all custom modes in creation order.
func (s *Store) ListModes(ctx context.Context) ([]catalog.Mode, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, label, prompt, model, createdAt FROM modes ORDER BY createdAt ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query modes: %w", err)
	}
	defer rows.Close()

	var out []catalog.Mode
	for rows.Next() {
		var (
			m  catalog.Mode
			ts float64
		)
		if err := rows.Scan(&m.ID, &m.Label, &m.Prompt, &m.Model, &ts); err != nil {
			return nil, fmt.Errorf("scan mode: %w", err)
		}
		m.CreatedAt = timeFromUnix(ts)
		out = append(out, m)
	}
	return out, rows.Err()
}

// CreateMode inserts a new mode.
func (s *Store) CreateMode(ctx context.Context, m catalog.Mode) (catalog.Mode, error) {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO modes (id, label, prompt, model, createdAt) VALUES (?, ?, ?, ?, ?)
	`, m.ID, m.Label, m.Prompt, m.Model, unixFromTime(m.CreatedAt))
	if err != nil {
		return catalog.Mode{}, fmt.Errorf("insert mode: %w", err)
	}
	return m, nil
}

// UpdateMode overwrites an existing mode.
func (s *Store) UpdateMode(ctx context.Context, m catalog.Mode) (catalog.Mode, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE modes SET label = ?, prompt = ?, model = ? WHERE id = ?
	`, m.Label, m.Prompt, m.Model, m.ID)
	if err := affectedOne(res, err, "mode", m.ID); err != nil {
		return catalog.Mode{}, err
	}
	return m, nil
}

// DeleteMode removes a mode.
func (s *Store) DeleteMode(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM modes WHERE id = ?`, id)
	return affectedOne(res, err, "mode", id)
}

// ListTemplates returns all question templates in creation order.
func (s *Store) ListTemplates(ctx context.Context) ([]catalog.Template, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, body, createdAt FROM templates ORDER BY createdAt ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query templates: %w", err)
	}
	defer rows.Close()

	var out []catalog.Template
	for rows.Next() {
		var (
			t  catalog.Template
			ts float64
		)
		if err := rows.Scan(&t.ID, &t.Name, &t.Body, &ts); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		t.CreatedAt = timeFromUnix(ts)
		out = append(out, t)
	}
	return out, rows.Err()
}

// CreateTemplate inserts a new template.
func (s *Store) CreateTemplate(ctx context.Context, t catalog.Template) (catalog.Template, error) {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO templates (id, name, body, createdAt) VALUES (?, ?, ?, ?)
	`, t.ID, t.Name, t.Body, unixFromTime(t.CreatedAt))
	if err != nil {
		return catalog.Template{}, fmt.Errorf("insert template: %w", err)
	}
	return t, nil
}

// UpdateTemplate overwrites an existing template.
func (s *Store) UpdateTemplate(ctx context.Context, t catalog.Template) (catalog.Template, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE templates SET name = ?, body = ? WHERE id = ?
	`, t.Name, t.Body, t.ID)
	if err := affectedOne(res, err, "template", t.ID); err != nil {
		return catalog.Template{}, err
	}
	return t, nil
}

// DeleteTemplate removes a template.
func (s *Store) DeleteTemplate(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM templates WHERE id = ?`, id)
	return affectedOne(res, err, "template", id)
}

func affectedOne(res sql.Result, err error, kind, id string) error {
	if err != nil {
		return fmt.Errorf("write %s: %w", kind, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}
