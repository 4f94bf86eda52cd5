package settings

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pagemagic/pagemagic/internal/logging"
	"github.com/pagemagic/pagemagic/internal/storage"
	"github.com/pagemagic/pagemagic/pkg/models"
)

// RefreshModels fetches the model list and records every display name in the
// cache and the persisted lookup table. Persisting the lookup is best-effort.
func (s *Service) RefreshModels(ctx context.Context) ([]models.Model, error) {
	list, err := s.models.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}

	lookup := make(map[string]string, len(list))
	for _, m := range list {
		if m.DisplayName != "" {
			lookup[m.ID] = m.DisplayName
		}
	}

	for id, name := range lookup {
		s.names.Add(id, name)
	}

	if err := s.store.Set(ctx, storage.ModelLookupKey(), lookup); err != nil {
		logging.Warn(ctx, "failed to persist model lookup", slog.String("error", err.Error()))
	}

	return list, nil
}

// DisplayName returns the human-readable name of a model id, or the id itself
// when it is unknown. Cache misses fall through to the persisted lookup.
func (s *Service) DisplayName(ctx context.Context, id string) string {
	if name, ok := s.names.Get(id); ok {
		return name
	}

	var lookup map[string]string
	found, err := s.store.Get(ctx, storage.ModelLookupKey(), &lookup)
	if err != nil {
		logging.Warn(ctx, "failed to read model lookup", slog.String("error", err.Error()))
		return id
	}
	if !found {
		return id
	}

	name, ok := lookup[id]
	if !ok {
		return id
	}
	s.names.Add(id, name)
	return name
}

// DisplayNames resolves the display name of every model in a ledger entry
func (s *Service) DisplayNames(ctx context.Context, entry models.LedgerEntry) map[string]string {
	names := make(map[string]string, len(entry.Models))
	for id := range entry.Models {
		names[id] = s.DisplayName(ctx, id)
	}
	return names
}

// ClearUsageData deletes all recorded usage and the model lookup table
func (s *Service) ClearUsageData(ctx context.Context) (int64, error) {
	removed, err := s.usage.Clear(ctx)
	if err != nil {
		return 0, err
	}

	var lookup map[string]string
	found, err := s.store.Get(ctx, storage.ModelLookupKey(), &lookup)
	if err != nil {
		return removed, fmt.Errorf("failed to read model lookup: %w", err)
	}
	if found {
		if err := s.store.Delete(ctx, storage.ModelLookupKey()); err != nil {
			return removed, fmt.Errorf("failed to delete model lookup: %w", err)
		}
		removed++
	}
	s.names.Purge()

	logging.Audit(ctx, "usage_cleared", slog.Int64("keys_removed", removed))
	return removed, nil
}

// FactoryReset deletes the credential, the model selection and every local
// key in one transaction
func (s *Service) FactoryReset(ctx context.Context) (int64, error) {
	var removed int64
	err := s.store.Update(ctx, func(tx storage.Tx) error {
		n, err := tx.ClearPartition(ctx, storage.PartitionSync)
		if err != nil {
			return err
		}
		removed += n
		n, err = tx.ClearPartition(ctx, storage.PartitionLocal)
		if err != nil {
			return err
		}
		removed += n
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("factory reset failed: %w", err)
	}
	s.names.Purge()

	logging.Audit(ctx, "factory_reset", slog.Int64("keys_removed", removed))
	return removed, nil
}

