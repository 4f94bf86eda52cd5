// Package styles manages the per-scope stack of history entries and keeps the
// persisted effective stylesheet equal to the fold of that stack.
package styles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pagemagic/pagemagic/internal/metrics"
	"github.com/pagemagic/pagemagic/internal/storage"
	"github.com/pagemagic/pagemagic/pkg/models"
)

var (
	// ErrEntryNotFound is returned when an entry id is not in the scope's stack
	ErrEntryNotFound = errors.New("history entry not found")
	// ErrEmptyCSS is returned when appending an entry with no CSS
	ErrEmptyCSS = errors.New("css is empty")
)

// Store defines the persistence the stack needs
type Store interface {
	storage.Tx
	Update(ctx context.Context, fn func(tx storage.Tx) error) error
}

// Stack is the style layer stack service
type Stack struct {
	store  Store
	logger *slog.Logger

	// For mocking in tests
	now   func() time.Time
	newID func() string
}

// Option configures the stack
type Option func(*Stack)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Stack) {
		s.logger = logger
	}
}

// WithTimeFunc sets a custom time function (for testing)
func WithTimeFunc(fn func() time.Time) Option {
	return func(s *Stack) {
		s.now = fn
	}
}

// WithIDFunc sets a custom entry id generator (for testing)
func WithIDFunc(fn func() string) Option {
	return func(s *Stack) {
		s.newID = fn
	}
}

// New creates a new stack service
func New(store Store, opts ...Option) *Stack {
	s := &Stack{
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
		newID:  newEntryID,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// newEntryID returns a time-ordered UUID so ids sort in creation order
func newEntryID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

// Load reads the stack of a scope inside tx. It never returns nil.
func Load(ctx context.Context, tx storage.Tx, scope models.ScopeKey) ([]models.HistoryEntry, error) {
	var entries []models.HistoryEntry
	if _, err := tx.Get(ctx, storage.HistoryKey(scope), &entries); err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []models.HistoryEntry{}
	}
	return entries, nil
}

// Save writes the stack of a scope and its recomputed effective stylesheet
// inside tx. An empty stack or an empty fold deletes the respective key.
func Save(ctx context.Context, tx storage.Tx, scope models.ScopeKey, entries []models.HistoryEntry) error {
	if len(entries) == 0 {
		if err := tx.Delete(ctx, storage.HistoryKey(scope)); err != nil {
			return err
		}
	} else if err := tx.Set(ctx, storage.HistoryKey(scope), entries); err != nil {
		return err
	}

	if css := models.EffectiveStylesheet(entries); css != "" {
		return tx.Set(ctx, storage.CSSKey(scope), css)
	}
	return tx.Delete(ctx, storage.CSSKey(scope))
}

// mutate loads the stack, applies fn and saves the result in one transaction
func (s *Stack) mutate(ctx context.Context, op string, scope models.ScopeKey, fn func([]models.HistoryEntry) ([]models.HistoryEntry, error)) error {
	err := s.store.Update(ctx, func(tx storage.Tx) error {
		entries, err := Load(ctx, tx, scope)
		if err != nil {
			return err
		}
		updated, err := fn(entries)
		if err != nil {
			return err
		}
		return Save(ctx, tx, scope, updated)
	})
	if err != nil {
		return fmt.Errorf("failed to %s styles for %s: %w", op, scope, err)
	}

	metrics.RecordStyleMutation(op)
	return nil
}

// List returns the entries of a scope in insertion order
func (s *Stack) List(ctx context.Context, scope models.ScopeKey) ([]models.HistoryEntry, error) {
	entries, err := Load(ctx, s.store, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to list styles for %s: %w", scope, err)
	}
	return entries, nil
}

// Effective returns the persisted effective stylesheet of a scope. The bool is
// false when nothing is stored.
func (s *Stack) Effective(ctx context.Context, scope models.ScopeKey) (string, bool, error) {
	var css string
	found, err := s.store.Get(ctx, storage.CSSKey(scope), &css)
	if err != nil {
		return "", false, fmt.Errorf("failed to read stylesheet for %s: %w", scope, err)
	}
	return css, found && css != "", nil
}

// Append adds a new enabled entry at the end of the stack
func (s *Stack) Append(ctx context.Context, scope models.ScopeKey, prompt, css string) (models.HistoryEntry, error) {
	if css == "" {
		return models.HistoryEntry{}, ErrEmptyCSS
	}

	entry := models.HistoryEntry{
		ID:        s.newID(),
		Prompt:    prompt,
		CSS:       css,
		CreatedAt: s.now().UTC(),
	}

	err := s.mutate(ctx, "append", scope, func(entries []models.HistoryEntry) ([]models.HistoryEntry, error) {
		return append(entries, entry), nil
	})
	if err != nil {
		return models.HistoryEntry{}, err
	}

	s.logger.Info("style entry appended",
		slog.String("scope", string(scope)),
		slog.String("entry_id", entry.ID),
		slog.Int("css_bytes", len(css)))

	return entry, nil
}

// Remove deletes the entry with id. A missing id is a no-op.
func (s *Stack) Remove(ctx context.Context, scope models.ScopeKey, id string) error {
	return s.mutate(ctx, "remove", scope, func(entries []models.HistoryEntry) ([]models.HistoryEntry, error) {
		kept := entries[:0]
		for _, e := range entries {
			if e.ID != id {
				kept = append(kept, e)
			}
		}
		return kept, nil
	})
}

// Toggle flips the disabled flag of the entry with id. A missing id is a no-op.
func (s *Stack) Toggle(ctx context.Context, scope models.ScopeKey, id string) error {
	return s.mutate(ctx, "toggle", scope, func(entries []models.HistoryEntry) ([]models.HistoryEntry, error) {
		for i := range entries {
			if entries[i].ID == id {
				entries[i].Disabled = !entries[i].Disabled
			}
		}
		return entries, nil
	})
}

// ToggleAll enables every entry when all are disabled, otherwise disables
// every entry. It reports whether the entries are enabled afterwards.
func (s *Stack) ToggleAll(ctx context.Context, scope models.ScopeKey) (bool, error) {
	var enabled bool
	err := s.mutate(ctx, "toggle_all", scope, func(entries []models.HistoryEntry) ([]models.HistoryEntry, error) {
		enabled = models.AllDisabled(entries)
		for i := range entries {
			entries[i].Disabled = !enabled
		}
		return entries, nil
	})
	return enabled, err
}

// Clear empties the stack and deletes the effective stylesheet
func (s *Stack) Clear(ctx context.Context, scope models.ScopeKey) error {
	err := s.mutate(ctx, "clear", scope, func([]models.HistoryEntry) ([]models.HistoryEntry, error) {
		return nil, nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("styles cleared", slog.String("scope", string(scope)))
	return nil
}

// Edit removes the entry with id and returns its prompt so it can be revised
// and resubmitted.
func (s *Stack) Edit(ctx context.Context, scope models.ScopeKey, id string) (string, error) {
	var prompt string
	err := s.mutate(ctx, "edit", scope, func(entries []models.HistoryEntry) ([]models.HistoryEntry, error) {
		for i, e := range entries {
			if e.ID == id {
				prompt = e.Prompt
				return append(entries[:i], entries[i+1:]...), nil
			}
		}
		return nil, ErrEntryNotFound
	})
	if err != nil {
		return "", err
	}
	return prompt, nil
}
