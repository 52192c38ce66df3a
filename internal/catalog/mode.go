// Package catalog holds the user-defined configuration entities (custom
// modes and question templates) and wires them to optimistic mutators.
package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/codev612/hearnow/internal/optimistic"
)

// Mode is a custom assistant mode: a label plus the system prompt and model
// used when asking the AI during a session.
type Mode struct {
	ID        string
	Label     string
	Prompt    string
	Model     string
	CreatedAt time.Time
}

// EntityID implements optimistic.Entity.
func (m Mode) EntityID() string { return m.ID }

// ModeStore is the persistence backend for modes.
type ModeStore interface {
	ListModes(ctx context.Context) ([]Mode, error)
	CreateMode(ctx context.Context, m Mode) (Mode, error)
	UpdateMode(ctx context.Context, m Mode) (Mode, error)
	DeleteMode(ctx context.Context, id string) error
}

type modeRemote struct{ store ModeStore }

func (r modeRemote) List(ctx context.Context) ([]Mode, error)         { return r.store.ListModes(ctx) }
func (r modeRemote) Create(ctx context.Context, m Mode) (Mode, error) { return r.store.CreateMode(ctx, m) }
func (r modeRemote) Update(ctx context.Context, m Mode) (Mode, error) { return r.store.UpdateMode(ctx, m) }
func (r modeRemote) Delete(ctx context.Context, id string) error      { return r.store.DeleteMode(ctx, id) }

// Modes is the optimistic list of custom modes.
type Modes = optimistic.Mutator[Mode]

// NewModes creates the mode list backed by store.
func NewModes(store ModeStore, log zerolog.Logger) *Modes {
	return optimistic.New[Mode](modeRemote{store: store},
		optimistic.WithValidator(validateMode),
		optimistic.WithLogger[Mode](log),
	)
}

// NewMode builds a mode with a fresh id.
func NewMode(label, prompt string) Mode {
	return Mode{
		ID:        uuid.NewString(),
		Label:     strings.TrimSpace(label),
		Prompt:    prompt,
		CreatedAt: time.Now(),
	}
}

func validateMode(m Mode) error {
	if strings.TrimSpace(m.ID) == "" {
		return &optimistic.ValidationError{Field: "id", Reason: "required"}
	}
	if strings.TrimSpace(m.Label) == "" {
		return &optimistic.ValidationError{Field: "label", Reason: "required"}
	}
	return nil
}

// Preset is a built-in mode template offered in the gallery.
type Preset struct {
	Key    string
	Label  string
	Prompt string
}

// Presets are the built-in mode templates.
var Presets = []Preset{
	{
		Key:    "interview",
		Label:  "Interview",
		Prompt: "You are assisting a candidate in a job interview. Answer the interviewer's latest question concisely, using concrete examples.",
	},
	{
		Key:    "standup",
		Label:  "Standup",
		Prompt: "You are assisting in a daily standup. Track what each person did, what they plan next, and any blockers.",
	},
	{
		Key:    "sales",
		Label:  "Sales call",
		Prompt: "You are assisting a salesperson. Surface the customer's needs and objections and suggest short replies.",
	},
	{
		Key:    "lecture",
		Label:  "Lecture",
		Prompt: "You are assisting a student in a lecture. Explain terms as they come up and note likely exam material.",
	},
}

// PresetByKey looks up a built-in preset.
func PresetByKey(key string) (Preset, bool) {
	for _, p := range Presets {
		if p.Key == key {
			return p, true
		}
	}
	return Preset{}, false
}

// AddFromPreset copies a preset into a new custom mode. Only the mode list
// and its selection roll back on failure.
func AddFromPreset(ctx context.Context, modes *Modes, key string) (Mode, error) {
	p, ok := PresetByKey(key)
	if !ok {
		return Mode{}, &optimistic.ValidationError{Field: "preset", Reason: fmt.Sprintf("unknown preset %q", key)}
	}
	m := NewMode(p.Label, p.Prompt)
	if err := modes.Add(ctx, m); err != nil {
		return Mode{}, err
	}
	return m, nil
}
