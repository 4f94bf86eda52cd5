// Package settings manages the synced credential and model selection, the
// model display-name lookup and the data management actions of the settings
// dashboard.
package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/pagemagic/pagemagic/internal/logging"
	"github.com/pagemagic/pagemagic/internal/pricing"
	"github.com/pagemagic/pagemagic/internal/storage"
	"github.com/pagemagic/pagemagic/pkg/models"
)

const defaultCacheSize = 128

// DefaultModel is used when no model has been selected
const DefaultModel = "claude-3-5-haiku-20241022"

// ErrInvalidModel is returned when selecting an empty model id
var ErrInvalidModel = errors.New("model id is required")

// Store defines the persistence the settings service needs
type Store interface {
	storage.Tx
	Update(ctx context.Context, fn func(tx storage.Tx) error) error
}

// ModelLister lists the models offered by the model API
type ModelLister interface {
	ListModels(ctx context.Context) ([]models.Model, error)
}

// UsageClearer deletes recorded usage
type UsageClearer interface {
	Clear(ctx context.Context) (int64, error)
}

// Service owns the credential, the selected model and the model lookup
type Service struct {
	store        Store
	models       ModelLister
	usage        UsageClearer
	defaultModel string
	cacheSize    int
	logger       *slog.Logger

	names *lru.Cache[string, string]
}

// Option configures the service
type Option func(*Service)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithDefaultModel sets the model used when none is selected
func WithDefaultModel(model string) Option {
	return func(s *Service) {
		if model != "" {
			s.defaultModel = model
		}
	}
}

// WithCacheSize sets the display-name cache capacity
func WithCacheSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.cacheSize = n
		}
	}
}

// New creates a new settings service
func New(store Store, lister ModelLister, usage UsageClearer, opts ...Option) (*Service, error) {
	s := &Service{
		store:        store,
		models:       lister,
		usage:        usage,
		defaultModel: DefaultModel,
		cacheSize:    defaultCacheSize,
		logger:       slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	names, err := lru.New[string, string](s.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create model name cache: %w", err)
	}
	s.names = names

	return s, nil
}

// APIKey returns the stored credential, or "" when none is stored
func (s *Service) APIKey(ctx context.Context) (string, error) {
	var key string
	if _, err := s.store.Get(ctx, storage.APIKeyKey(), &key); err != nil {
		return "", fmt.Errorf("failed to read API key: %w", err)
	}
	return key, nil
}

// SetAPIKey stores the credential. An empty key removes it.
func (s *Service) SetAPIKey(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)

	var err error
	if key == "" {
		err = s.store.Delete(ctx, storage.APIKeyKey())
	} else {
		err = s.store.Set(ctx, storage.APIKeyKey(), key)
	}
	if err != nil {
		return fmt.Errorf("failed to store API key: %w", err)
	}

	logging.Audit(ctx, "api_key_changed", slog.Bool("cleared", key == ""))
	return nil
}

// SeedAPIKey stores key only when no credential is stored yet. It reports
// whether the key was stored.
func (s *Service) SeedAPIKey(ctx context.Context, key string) (bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return false, nil
	}

	seeded := false
	err := s.store.Update(ctx, func(tx storage.Tx) error {
		var existing string
		found, err := tx.Get(ctx, storage.APIKeyKey(), &existing)
		if err != nil {
			return err
		}
		if found && existing != "" {
			return nil
		}
		seeded = true
		return tx.Set(ctx, storage.APIKeyKey(), key)
	})
	if err != nil {
		return false, fmt.Errorf("failed to seed API key: %w", err)
	}

	if seeded {
		s.logger.Info("seeded API key from configuration")
	}
	return seeded, nil
}

// Model returns the selected model, or the default when none is selected
func (s *Service) Model(ctx context.Context) (string, error) {
	var model string
	found, err := s.store.Get(ctx, storage.SelectedModelKey(), &model)
	if err != nil {
		return "", fmt.Errorf("failed to read selected model: %w", err)
	}
	if !found || model == "" {
		return s.defaultModel, nil
	}
	return model, nil
}

// SetModel stores the selected model id
func (s *Service) SetModel(ctx context.Context, model string) error {
	model = strings.TrimSpace(model)
	if model == "" {
		return ErrInvalidModel
	}
	if err := s.store.Set(ctx, storage.SelectedModelKey(), model); err != nil {
		return fmt.Errorf("failed to store selected model: %w", err)
	}
	s.logger.Info("model selected", slog.String("model", model))
	return nil
}

// Get returns the current settings with the credential masked
func (s *Service) Get(ctx context.Context) (models.Settings, error) {
	key, err := s.APIKey(ctx)
	if err != nil {
		return models.Settings{}, err
	}
	model, err := s.Model(ctx)
	if err != nil {
		return models.Settings{}, err
	}

	return models.Settings{
		APIKey:        MaskKey(key),
		APIKeySet:     key != "",
		Model:         model,
		ModelName:     s.DisplayName(ctx, model),
		PricedByTable: pricing.Known(model),
	}, nil
}

// UpdateRequest carries the settings fields to change. Nil fields are left alone.
type UpdateRequest struct {
	APIKey *string
	Model  *string
}

// Update applies the non-nil fields of req
func (s *Service) Update(ctx context.Context, req UpdateRequest) (models.Settings, error) {
	if req.APIKey != nil {
		if err := s.SetAPIKey(ctx, *req.APIKey); err != nil {
			return models.Settings{}, err
		}
	}
	if req.Model != nil {
		if err := s.SetModel(ctx, *req.Model); err != nil {
			return models.Settings{}, err
		}
	}
	return s.Get(ctx)
}

// MaskKey hides all but the prefix and the last four characters of a credential
func MaskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 12 {
		return strings.Repeat("*", len(key))
	}
	return key[:7] + strings.Repeat("*", 8) + key[len(key)-4:]
}
