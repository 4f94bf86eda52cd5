package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pagemagic/pagemagic/pkg/models"
)

func TestRow(t *testing.T) {
	t.Run("exact match", func(t *testing.T) {
		row := Row("claude-3-5-haiku-20241022")
		assert.Equal(t, 0.80, row.InputPerM)
		assert.Equal(t, 4.00, row.OutputPerM)
		assert.Equal(t, 0.08, row.CacheHitPerM)
	})

	t.Run("unknown model falls back to default", func(t *testing.T) {
		assert.Equal(t, table[DefaultModel], Row("claude-9-mystery"))
		assert.Equal(t, table[DefaultModel], Row(""))
	})
}

func TestKnown(t *testing.T) {
	assert.True(t, Known("claude-3-haiku-20240307"))
	assert.False(t, Known("claude-3-haiku"))
	assert.False(t, Known(DefaultModel))
}

func TestModels(t *testing.T) {
	ids := Models()
	assert.Len(t, ids, len(table)-1)
	assert.NotContains(t, ids, DefaultModel)
	assert.IsIncreasing(t, ids)
}

func TestRowsNonNegative(t *testing.T) {
	for id, row := range table {
		assert.GreaterOrEqual(t, row.InputPerM, 0.0, id)
		assert.GreaterOrEqual(t, row.OutputPerM, 0.0, id)
		assert.GreaterOrEqual(t, row.CacheWrite5mPerM, 0.0, id)
		assert.GreaterOrEqual(t, row.CacheWrite1hPerM, 0.0, id)
		assert.GreaterOrEqual(t, row.CacheHitPerM, 0.0, id)
	}
}

func TestCost(t *testing.T) {
	tests := []struct {
		name     string
		model    string
		usage    models.UsageEvent
		expected float64
	}{
		{
			name:     "zero usage",
			model:    "claude-sonnet-4-20250514",
			expected: 0,
		},
		{
			name:     "input and output",
			model:    "claude-sonnet-4-20250514",
			usage:    models.UsageEvent{InputTokens: 1_000_000, OutputTokens: 1_000_000},
			expected: 18.00,
		},
		{
			name:  "all buckets",
			model: "claude-3-5-haiku-20241022",
			usage: models.UsageEvent{
				InputTokens:     500_000,
				OutputTokens:    100_000,
				CacheCreated5m:  1_000_000,
				CacheCreated1h:  1_000_000,
				CacheReadTokens: 2_000_000,
			},
			expected: 0.40 + 0.40 + 1.00 + 1.60 + 0.16,
		},
		{
			name:     "unknown model priced at default",
			model:    "not-a-model",
			usage:    models.UsageEvent{InputTokens: 1_000_000},
			expected: 3.00,
		},
		{
			name:     "negative counts ignored",
			model:    "claude-3-haiku-20240307",
			usage:    models.UsageEvent{InputTokens: -50, OutputTokens: 1_000_000},
			expected: 1.25,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, Cost(tt.model, tt.usage), 1e-9)
		})
	}
}

func TestCostLinearInEachField(t *testing.T) {
	base := models.UsageEvent{
		InputTokens:     1234,
		OutputTokens:    567,
		CacheCreated5m:  890,
		CacheCreated1h:  321,
		CacheReadTokens: 4321,
	}

	fields := map[string]func(u *models.UsageEvent) *int64{
		"input":     func(u *models.UsageEvent) *int64 { return &u.InputTokens },
		"output":    func(u *models.UsageEvent) *int64 { return &u.OutputTokens },
		"cache_5m":  func(u *models.UsageEvent) *int64 { return &u.CacheCreated5m },
		"cache_1h":  func(u *models.UsageEvent) *int64 { return &u.CacheCreated1h },
		"cache_hit": func(u *models.UsageEvent) *int64 { return &u.CacheReadTokens },
	}

	for model := range table {
		for name, field := range fields {
			t.Run(model+"/"+name, func(t *testing.T) {
				// Isolate the contribution of one field.
				only := models.UsageEvent{}
				*field(&only) = *field(&base)
				contribution := Cost(model, only)
				assert.GreaterOrEqual(t, contribution, 0.0)

				for _, k := range []int64{0, 1, 2, 7, 1000} {
					scaled := base
					*field(&scaled) = *field(&base) * k

					expected := Cost(model, base) - contribution + contribution*float64(k)
					assert.InDelta(t, expected, Cost(model, scaled), 1e-9)
				}
			})
		}
	}
}
