// Package ledger keeps daily and all-time usage totals for model API calls.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/pagemagic/pagemagic/internal/storage"
	"github.com/pagemagic/pagemagic/pkg/models"
)

// ErrInvalidDate is returned for dates not in YYYY-MM-DD form
var ErrInvalidDate = errors.New("invalid date, expected YYYY-MM-DD")

// Store defines the persistence the ledger needs
type Store interface {
	storage.Tx
	Update(ctx context.Context, fn func(tx storage.Tx) error) error
}

// Ledger accumulates request counts, spend and per-model token sums
type Ledger struct {
	store  Store
	logger *slog.Logger

	// For time mocking in tests
	now func() time.Time
}

// Option configures the ledger
type Option func(*Ledger)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

// WithTimeFunc sets a custom time function (for testing). The returned time's
// location decides which calendar day a call is booked to.
func WithTimeFunc(fn func() time.Time) Option {
	return func(l *Ledger) {
		l.now = fn
	}
}

// New creates a new ledger
func New(store Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Today returns the current local calendar date used for daily keys
func (l *Ledger) Today() string {
	return models.FormatDate(l.now())
}

// Record adds one call to today's entry and to the all-time entry. Both
// read-modify-writes happen in one transaction.
func (l *Ledger) Record(ctx context.Context, usage models.UsageEvent, cost float64) error {
	if cost < 0 {
		cost = 0
	}
	date := l.Today()

	err := l.store.Update(ctx, func(tx storage.Tx) error {
		for _, key := range []storage.Key{storage.DailyUsageKey(date), storage.TotalUsageKey()} {
			var entry models.LedgerEntry
			if _, err := tx.Get(ctx, key, &entry); err != nil {
				return err
			}
			entry.Add(usage, cost)
			if err := tx.Set(ctx, key, entry); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record usage: %w", err)
	}

	l.logger.Debug("usage recorded",
		slog.String("date", date),
		slog.String("model", usage.Model),
		slog.Float64("cost", cost))

	return nil
}

// GetDaily returns the entry for date, or for today when date is empty. A day
// with no recorded calls yields a zero entry.
func (l *Ledger) GetDaily(ctx context.Context, date string) (models.LedgerEntry, error) {
	if date == "" {
		date = l.Today()
	}
	if _, err := time.Parse(models.DateLayout, date); err != nil {
		return models.LedgerEntry{}, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	return l.get(ctx, storage.DailyUsageKey(date))
}

// GetTotal returns the all-time entry
func (l *Ledger) GetTotal(ctx context.Context) (models.LedgerEntry, error) {
	return l.get(ctx, storage.TotalUsageKey())
}

func (l *Ledger) get(ctx context.Context, key storage.Key) (models.LedgerEntry, error) {
	var entry models.LedgerEntry
	if _, err := l.store.Get(ctx, key, &entry); err != nil {
		return models.LedgerEntry{Models: map[string]models.ModelUsage{}}, fmt.Errorf("failed to read usage: %w", err)
	}
	entry.Normalize()
	return entry, nil
}

// Days returns every recorded day, newest first
func (l *Ledger) Days(ctx context.Context) ([]models.DailyUsage, error) {
	entries, err := l.store.List(ctx, storage.KindDailyUsage)
	if err != nil {
		return nil, fmt.Errorf("failed to list usage days: %w", err)
	}

	days := make([]models.DailyUsage, 0, len(entries))
	for _, e := range entries {
		var entry models.LedgerEntry
		if err := e.Decode(&entry); err != nil {
			l.logger.Warn("skipping unreadable usage entry",
				slog.String("key", e.Key.String()),
				slog.String("error", err.Error()))
			continue
		}
		entry.Normalize()
		days = append(days, models.DailyUsage{Date: e.Key.Scope(), Entry: entry})
	}

	sort.Slice(days, func(i, j int) bool { return days[i].Date > days[j].Date })
	return days, nil
}

// Clear deletes every daily entry and the all-time entry
func (l *Ledger) Clear(ctx context.Context) (int64, error) {
	var removed int64
	err := l.store.Update(ctx, func(tx storage.Tx) error {
		n, err := tx.DeleteKinds(ctx, storage.KindDailyUsage, storage.KindTotalUsage)
		removed = n
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to clear usage: %w", err)
	}

	l.logger.Info("usage ledger cleared", slog.Int64("keys_removed", removed))
	return removed, nil
}
