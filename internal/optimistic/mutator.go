// Package optimistic mirrors a remote collection in a local list and applies
// user edits before the remote confirms them, rolling back on failure.
package optimistic

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// Entity is anything addressable by a stable id.
type Entity interface {
	EntityID() string
}

// Remote is the id-addressed backend collection a Mutator mirrors.
type Remote[T Entity] interface {
	List(ctx context.Context) ([]T, error)
	Create(ctx context.Context, item T) (T, error)
	Update(ctx context.Context, item T) (T, error)
	Delete(ctx context.Context, id string) error
}

// ValidationError rejects an edit before anything is applied locally.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Option configures a Mutator.
type Option[T Entity] func(*Mutator[T])

// WithValidator rejects adds and updates for which fn returns an error.
func WithValidator[T Entity](fn func(T) error) Option[T] {
	return func(m *Mutator[T]) { m.validate = fn }
}

// WithLogger sets the logger used for swallowed background failures.
func WithLogger[T Entity](log zerolog.Logger) Option[T] {
	return func(m *Mutator[T]) { m.log = log }
}

// Mutator owns the local list and current selection for one collection.
// The list and the selection are always changed together.
type Mutator[T Entity] struct {
	remote   Remote[T]
	validate func(T) error
	log      zerolog.Logger
	changes  *Notifier

	mu         sync.Mutex
	items      []T
	selected   string
	deletingID string
}

// New creates a Mutator over remote.
func New[T Entity](remote Remote[T], opts ...Option[T]) *Mutator[T] {
	m := &Mutator[T]{
		remote:  remote,
		log:     zerolog.Nop(),
		changes: NewNotifier(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Changes returns the notifier published after every local list change.
func (m *Mutator[T]) Changes() *Notifier { return m.changes }

// Load replaces the local list with the remote one. The selection is kept
// if it still exists.
func (m *Mutator[T]) Load(ctx context.Context) error {
	items, err := m.remote.List(ctx)
	if err != nil {
		return fmt.Errorf("list: %w", err)
	}
	m.Set(items)
	return nil
}

// Set replaces the local list without touching the remote.
func (m *Mutator[T]) Set(items []T) {
	m.mu.Lock()
	m.items = append([]T(nil), items...)
	if _, ok := m.indexLocked(m.selected); !ok {
		m.selected = ""
	}
	m.mu.Unlock()
	m.changes.Publish()
}

// Items returns a copy of the local list.
func (m *Mutator[T]) Items() []T {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]T(nil), m.items...)
}

// Get returns the local entity with id.
func (m *Mutator[T]) Get(id string) (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.indexLocked(id)
	if !ok {
		var zero T
		return zero, false
	}
	return m.items[i], true
}

// Selected returns the selected entity, if any.
func (m *Mutator[T]) Selected() (T, bool) {
	m.mu.Lock()
	id := m.selected
	m.mu.Unlock()
	if id == "" {
		var zero T
		return zero, false
	}
	return m.Get(id)
}

// Select points the selection at id. Unknown ids clear the selection.
func (m *Mutator[T]) Select(id string) {
	m.mu.Lock()
	if _, ok := m.indexLocked(id); ok {
		m.selected = id
	} else {
		m.selected = ""
	}
	m.mu.Unlock()
	m.changes.Publish()
}

// Add appends item, selects it, and creates it remotely. On failure the item
// is removed again and the previous selection restored.
func (m *Mutator[T]) Add(ctx context.Context, item T) error {
	if err := m.check(item); err != nil {
		return err
	}
	id := item.EntityID()

	m.mu.Lock()
	if _, exists := m.indexLocked(id); exists {
		m.mu.Unlock()
		return &ValidationError{Field: "id", Reason: id + " already exists"}
	}
	prevSelected := m.selected
	m.items = append(m.items, item)
	m.selected = id
	m.mu.Unlock()
	m.changes.Publish()

	confirmed, err := m.remote.Create(ctx, item)
	if err != nil {
		m.mu.Lock()
		m.items = lo.Reject(m.items, func(it T, _ int) bool { return it.EntityID() == id })
		m.selected = prevSelected
		m.mu.Unlock()
		m.changes.Publish()
		return fmt.Errorf("create %s: %w", id, err)
	}

	m.mu.Lock()
	if i, ok := m.indexLocked(id); ok {
		m.items[i] = confirmed
	}
	m.mu.Unlock()
	m.changes.Publish()
	return nil
}

// Update saves item. A silent update comes from autosave: it never moves the
// selection and its failures are logged instead of returned. Updates for an
// entity that is being deleted or is no longer in the list are dropped.
func (m *Mutator[T]) Update(ctx context.Context, item T, silent bool) error {
	err := m.update(ctx, item, silent)
	if silent {
		return nil
	}
	return err
}

// Autosave is a silent Update that still reports a remote failure, so a
// debounced writer knows the value is not confirmed and can flush it again.
// The failure is logged and the local edit is kept.
func (m *Mutator[T]) Autosave(ctx context.Context, item T) error {
	return m.update(ctx, item, true)
}

func (m *Mutator[T]) update(ctx context.Context, item T, silent bool) error {
	if err := m.check(item); err != nil {
		if silent {
			m.log.Debug().Err(err).Str("entity_id", item.EntityID()).Msg("autosave skipped")
			return nil
		}
		return err
	}
	id := item.EntityID()

	m.mu.Lock()
	if m.deletingID == id {
		m.mu.Unlock()
		return nil
	}
	i, ok := m.indexLocked(id)
	if !ok {
		m.mu.Unlock()
		return nil
	}
	prevItem := m.items[i]
	prevSelected := m.selected
	m.items[i] = item
	if !silent {
		m.selected = id
	}
	m.mu.Unlock()
	m.changes.Publish()

	saved, err := m.remote.Update(ctx, item)
	if err != nil {
		if silent {
			m.log.Warn().Err(err).Str("entity_id", id).Msg("autosave failed")
			return fmt.Errorf("autosave %s: %w", id, err)
		}
		m.mu.Lock()
		if i, ok := m.indexLocked(id); ok {
			m.items[i] = prevItem
		}
		m.selected = prevSelected
		m.mu.Unlock()
		m.changes.Publish()
		return fmt.Errorf("update %s: %w", id, err)
	}

	m.mu.Lock()
	if i, ok := m.indexLocked(id); ok && m.deletingID != id {
		m.items[i] = saved
	}
	m.mu.Unlock()
	m.changes.Publish()
	return nil
}

// Delete removes id locally, then remotely. On failure the previous list and
// selection are restored verbatim.
func (m *Mutator[T]) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	i, ok := m.indexLocked(id)
	if !ok {
		m.mu.Unlock()
		return nil
	}
	prevItems := append([]T(nil), m.items...)
	prevSelected := m.selected
	m.items = append(m.items[:i:i], m.items[i+1:]...)
	if m.selected == id {
		m.selected = ""
	}
	m.deletingID = id
	m.mu.Unlock()
	m.changes.Publish()

	defer func() {
		m.mu.Lock()
		if m.deletingID == id {
			m.deletingID = ""
		}
		m.mu.Unlock()
	}()

	if err := m.remote.Delete(ctx, id); err != nil {
		m.mu.Lock()
		m.items = prevItems
		m.selected = prevSelected
		m.mu.Unlock()
		m.changes.Publish()
		return fmt.Errorf("delete %s: %w", id, err)
	}
	return nil
}

// Deleting reports whether a delete for id is in flight.
func (m *Mutator[T]) Deleting(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return id != "" && m.deletingID == id
}

func (m *Mutator[T]) check(item T) error {
	if m.validate == nil {
		return nil
	}
	return m.validate(item)
}

func (m *Mutator[T]) indexLocked(id string) (int, bool) {
	if id == "" {
		return -1, false
	}
	_, i, ok := lo.FindIndexOf(m.items, func(it T) bool { return it.EntityID() == id })
	return i, ok
}
