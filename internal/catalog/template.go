package catalog

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/codev612/hearnow/internal/debounce"
	"github.com/codev612/hearnow/internal/optimistic"
)

// Template is a question template: a named block of questions the user
// wants to cover in a meeting.
type Template struct {
	ID        string
	Name      string
	Body      string
	CreatedAt time.Time
}

// EntityID implements optimistic.Entity.
func (t Template) EntityID() string { return t.ID }

// TemplateStore is the persistence backend for question templates.
type TemplateStore interface {
	ListTemplates(ctx context.Context) ([]Template, error)
	CreateTemplate(ctx context.Context, t Template) (Template, error)
	UpdateTemplate(ctx context.Context, t Template) (Template, error)
	DeleteTemplate(ctx context.Context, id string) error
}

type templateRemote struct{ store TemplateStore }

func (r templateRemote) List(ctx context.Context) ([]Template, error) {
	return r.store.ListTemplates(ctx)
}

func (r templateRemote) Create(ctx context.Context, t Template) (Template, error) {
	return r.store.CreateTemplate(ctx, t)
}

func (r templateRemote) Update(ctx context.Context, t Template) (Template, error) {
	return r.store.UpdateTemplate(ctx, t)
}

func (r templateRemote) Delete(ctx context.Context, id string) error {
	return r.store.DeleteTemplate(ctx, id)
}

// Templates is the optimistic list of question templates.
type Templates = optimistic.Mutator[Template]

// NewTemplates creates the template list backed by store.
func NewTemplates(store TemplateStore, log zerolog.Logger) *Templates {
	return optimistic.New[Template](templateRemote{store: store},
		optimistic.WithValidator(validateTemplate),
		optimistic.WithLogger[Template](log),
	)
}

// NewTemplate builds a template with a fresh id.
func NewTemplate(name, body string) Template {
	return Template{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(name),
		Body:      body,
		CreatedAt: time.Now(),
	}
}

func validateTemplate(t Template) error {
	if strings.TrimSpace(t.ID) == "" {
		return &optimistic.ValidationError{Field: "id", Reason: "required"}
	}
	if strings.TrimSpace(t.Name) == "" {
		return &optimistic.ValidationError{Field: "name", Reason: "required"}
	}
	return nil
}

// Field names an editable free-text field of a template.
type Field int

const (
	FieldName Field = iota
	FieldBody
)

func (f Field) get(t Template) string {
	if f == FieldName {
		return t.Name
	}
	return t.Body
}

func (f Field) set(t *Template, v string) {
	if f == FieldName {
		t.Name = v
		return
	}
	t.Body = v
}

// Editor autosaves one field of one template. Close must be called when the
// editor goes away so the last edits are flushed.
type Editor struct {
	persister *debounce.Persister
}

// OpenEditor starts editing field of the template with id. Saves go through
// templates as autosaves, so a template deleted meanwhile is never written
// back and a failed save is retried on Close.
func OpenEditor(ctx context.Context, templates *Templates, id string, field Field, window time.Duration) (*Editor, bool) {
	t, ok := templates.Get(id)
	if !ok {
		return nil, false
	}
	flush := func(value string) error {
		cur, ok := templates.Get(id)
		if !ok {
			return nil
		}
		field.set(&cur, value)
		return templates.Autosave(ctx, cur)
	}
	return &Editor{persister: debounce.New(window, field.get(t), flush)}, true
}

// Edit records a keystroke burst.
func (e *Editor) Edit(value string) { e.persister.Edit(value) }

// Close cancels the pending save and flushes unsaved edits.
func (e *Editor) Close() error { return e.persister.Dispose() }
