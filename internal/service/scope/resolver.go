// Package scope derives storage scopes from page URLs and moves style data
// between the page scope and the domain scope.
package scope

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/pagemagic/pagemagic/internal/metrics"
	"github.com/pagemagic/pagemagic/internal/service/styles"
	"github.com/pagemagic/pagemagic/internal/storage"
	"github.com/pagemagic/pagemagic/pkg/models"
)

// ErrInvalidURL is returned for URLs that do not identify a page
var ErrInvalidURL = errors.New("invalid page url")

// Store defines the persistence the resolver needs
type Store interface {
	storage.Tx
	Update(ctx context.Context, fn func(tx storage.Tx) error) error
}

// KeyFor returns origin when domainWide is set, otherwise origin+pathname
func KeyFor(origin, pathname string, domainWide bool) models.ScopeKey {
	if domainWide {
		return models.ScopeKey(origin)
	}
	return models.ScopeKey(origin + pathname)
}

// SplitURL returns the origin (scheme://host[:port]) and path of a page URL.
// Query and fragment are not part of either. A default port is dropped, so
// https://a.example:443/ and https://a.example/ share an origin.
func SplitURL(raw string) (origin, pathname string, err error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme == "" || u.Opaque != "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	scheme := strings.ToLower(u.Scheme)
	if u.Host == "" && scheme != "file" {
		return "", "", fmt.Errorf("%w: %q has no host", ErrInvalidURL, raw)
	}

	pathname = u.EscapedPath()
	if pathname == "" {
		pathname = "/"
	}
	host := strings.ToLower(u.Host)
	if port := u.Port(); port != "" && port == defaultPorts[scheme] {
		host = strings.TrimSuffix(host, ":"+port)
	}
	return scheme + "://" + host, pathname, nil
}

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
	"ws":    "80",
	"wss":   "443",
}

// KeyForURL is KeyFor applied to a full page URL
func KeyForURL(raw string, domainWide bool) (models.ScopeKey, error) {
	origin, pathname, err := SplitURL(raw)
	if err != nil {
		return "", err
	}
	return KeyFor(origin, pathname, domainWide), nil
}

// Resolver owns the domain-wide flag and scope migration
type Resolver struct {
	store  Store
	logger *slog.Logger
}

// Option configures the resolver
type Option func(*Resolver)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// New creates a new resolver
func New(store Store, opts ...Option) *Resolver {
	r := &Resolver{
		store:  store,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// DomainWide reports the stored domain-wide flag, false when unset
func (r *Resolver) DomainWide(ctx context.Context) (bool, error) {
	var flag bool
	if _, err := r.store.Get(ctx, storage.DomainWideKey(), &flag); err != nil {
		return false, fmt.Errorf("failed to read domain-wide flag: %w", err)
	}
	return flag, nil
}

// Resolve returns the active scope for a page under the current flag
func (r *Resolver) Resolve(ctx context.Context, pageURL string) (models.ScopeKey, error) {
	domainWide, err := r.DomainWide(ctx)
	if err != nil {
		return "", err
	}
	return KeyForURL(pageURL, domainWide)
}

// Migrate moves the stack under oldKey to newKey, recomputing the effective
// stylesheet from the moved stack, and deletes both entries at oldKey. When
// oldKey holds nothing, newKey's stylesheet is recomputed from its own stack.
// It runs as one transaction.
func (r *Resolver) Migrate(ctx context.Context, oldKey, newKey models.ScopeKey) error {
	var moved int
	err := r.store.Update(ctx, func(tx storage.Tx) error {
		n, err := migrate(ctx, tx, oldKey, newKey)
		moved = n
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to migrate %s to %s: %w", oldKey, newKey, err)
	}

	r.logMigration(oldKey, newKey, moved)
	return nil
}

// SetDomainWide stores the flag and migrates the page's styles from the
// previously active scope to the newly active one. It returns the new scope.
func (r *Resolver) SetDomainWide(ctx context.Context, pageURL string, enabled bool) (models.ScopeKey, error) {
	origin, pathname, err := SplitURL(pageURL)
	if err != nil {
		return "", err
	}
	oldKey := KeyFor(origin, pathname, !enabled)
	newKey := KeyFor(origin, pathname, enabled)

	var moved int
	err = r.store.Update(ctx, func(tx storage.Tx) error {
		var current bool
		if _, err := tx.Get(ctx, storage.DomainWideKey(), &current); err != nil {
			return err
		}
		if err := tx.Set(ctx, storage.DomainWideKey(), enabled); err != nil {
			return err
		}

		from := oldKey
		if current == enabled {
			// Flag unchanged: only make sure the active scope is consistent.
			from = newKey
		}
		n, err := migrate(ctx, tx, from, newKey)
		moved = n
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to set domain-wide mode: %w", err)
	}

	r.logMigration(oldKey, newKey, moved)
	return newKey, nil
}

func (r *Resolver) logMigration(oldKey, newKey models.ScopeKey, moved int) {
	if moved == 0 {
		return
	}
	metrics.RecordStyleMutation("migrate")
	r.logger.Info("styles migrated",
		slog.String("from", string(oldKey)),
		slog.String("to", string(newKey)),
		slog.Int("entries", moved))
}

// migrate performs the move inside tx and returns the number of entries moved
func migrate(ctx context.Context, tx storage.Tx, oldKey, newKey models.ScopeKey) (int, error) {
	if oldKey == newKey {
		entries, err := styles.Load(ctx, tx, newKey)
		if err != nil {
			return 0, err
		}
		return 0, styles.Save(ctx, tx, newKey, entries)
	}

	moved, err := styles.Load(ctx, tx, oldKey)
	if err != nil {
		return 0, err
	}

	if len(moved) == 0 {
		// Nothing live at oldKey; drop any stray stylesheet and resync newKey.
		if err := tx.Delete(ctx, storage.CSSKey(oldKey), storage.HistoryKey(oldKey)); err != nil {
			return 0, err
		}
		current, err := styles.Load(ctx, tx, newKey)
		if err != nil {
			return 0, err
		}
		return 0, styles.Save(ctx, tx, newKey, current)
	}

	if err := styles.Save(ctx, tx, newKey, moved); err != nil {
		return 0, err
	}
	if err := tx.Delete(ctx, storage.CSSKey(oldKey), storage.HistoryKey(oldKey)); err != nil {
		return 0, err
	}
	return len(moved), nil
}
