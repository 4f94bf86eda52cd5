package styles

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/pagemagic/pagemagic/internal/metrics"
	"github.com/pagemagic/pagemagic/internal/storage"
	"github.com/pagemagic/pagemagic/pkg/models"
)

// Sites summarizes every scope with stored history or styles, sorted by scope
func (s *Stack) Sites(ctx context.Context) ([]models.SiteSummary, error) {
	histories, err := s.store.List(ctx, storage.KindHistory)
	if err != nil {
		return nil, fmt.Errorf("failed to list sites: %w", err)
	}
	sheets, err := s.store.List(ctx, storage.KindCSS)
	if err != nil {
		return nil, fmt.Errorf("failed to list sites: %w", err)
	}

	sites := make(map[models.ScopeKey]*models.SiteSummary)
	site := func(scope string) *models.SiteSummary {
		key := models.ScopeKey(scope)
		if sites[key] == nil {
			sites[key] = &models.SiteSummary{Scope: key}
		}
		return sites[key]
	}

	for _, e := range histories {
		var entries []models.HistoryEntry
		if err := e.Decode(&entries); err != nil {
			s.logger.Warn("skipping unreadable history",
				slog.String("key", e.Key.String()),
				slog.String("error", err.Error()))
			continue
		}
		sum := site(e.Key.Scope())
		sum.Entries = len(entries)
		for _, h := range entries {
			if !h.Disabled {
				sum.Enabled++
			}
		}
		if len(entries) > 0 {
			sum.LatestPrompt = entries[len(entries)-1].Prompt
		}
	}

	for _, e := range sheets {
		var css string
		if err := e.Decode(&css); err != nil {
			continue
		}
		sum := site(e.Key.Scope())
		sum.HasStyles = css != ""
		sum.StyleBytes = len(css)
	}

	out := make([]models.SiteSummary, 0, len(sites))
	for _, sum := range sites {
		out = append(out, *sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Scope < out[j].Scope })

	metrics.SetCustomizedScopes(len(histories))
	return out, nil
}

// Stats returns storage statistics across all scopes
func (s *Stack) Stats(ctx context.Context) (models.StorageStats, error) {
	var stats models.StorageStats

	for _, kind := range []storage.Kind{storage.KindHistory, storage.KindCSS} {
		entries, err := s.store.List(ctx, kind)
		if err != nil {
			return stats, fmt.Errorf("failed to compute storage stats: %w", err)
		}
		for _, e := range entries {
			stats.TotalBytes += int64(e.Size())
			switch kind {
			case storage.KindHistory:
				stats.Sites++
				var entries []models.HistoryEntry
				if err := e.Decode(&entries); err == nil {
					stats.HistoryEntries += len(entries)
				}
			case storage.KindCSS:
				stats.StyleBytes += int64(e.Size())
			}
		}
	}

	return stats, nil
}

// ClearAll deletes every stored stack and effective stylesheet
func (s *Stack) ClearAll(ctx context.Context) (int64, error) {
	var removed int64
	err := s.store.Update(ctx, func(tx storage.Tx) error {
		n, err := tx.DeleteKinds(ctx, storage.KindCSS, storage.KindHistory)
		removed = n
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to clear styles: %w", err)
	}

	metrics.RecordStyleMutation("clear_all")
	metrics.SetCustomizedScopes(0)
	s.logger.Info("all styles cleared", slog.Int64("keys_removed", removed))
	return removed, nil
}
