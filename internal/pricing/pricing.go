// Package pricing prices generation calls from their reported token usage.
package pricing

import (
	"sort"

	"github.com/pagemagic/pagemagic/pkg/models"
)

// DefaultModel is the table key used for model identifiers without their own row
const DefaultModel = "default"

const perMillion = 1_000_000

// table maps exact model identifiers to their USD rates per million tokens
var table = map[string]models.PricingRow{
	"claude-opus-4-20241022":     {InputPerM: 15.00, OutputPerM: 75.00, CacheWrite5mPerM: 18.75, CacheWrite1hPerM: 30.00, CacheHitPerM: 1.50},
	"claude-sonnet-4-20250514":   {InputPerM: 3.00, OutputPerM: 15.00, CacheWrite5mPerM: 3.75, CacheWrite1hPerM: 6.00, CacheHitPerM: 0.30},
	"claude-3-7-sonnet-20250219": {InputPerM: 3.00, OutputPerM: 15.00, CacheWrite5mPerM: 3.75, CacheWrite1hPerM: 6.00, CacheHitPerM: 0.30},
	"claude-3-5-sonnet-20241022": {InputPerM: 3.00, OutputPerM: 15.00, CacheWrite5mPerM: 3.75, CacheWrite1hPerM: 6.00, CacheHitPerM: 0.30},
	"claude-3-5-haiku-20241022":  {InputPerM: 0.80, OutputPerM: 4.00, CacheWrite5mPerM: 1.00, CacheWrite1hPerM: 1.60, CacheHitPerM: 0.08},
	"claude-3-opus-20240229":     {InputPerM: 15.00, OutputPerM: 75.00, CacheWrite5mPerM: 18.75, CacheWrite1hPerM: 30.00, CacheHitPerM: 1.50},
	"claude-3-haiku-20240307":    {InputPerM: 0.25, OutputPerM: 1.25, CacheWrite5mPerM: 0.30, CacheWrite1hPerM: 0.50, CacheHitPerM: 0.03},
	DefaultModel:                 {InputPerM: 3.00, OutputPerM: 15.00, CacheWrite5mPerM: 3.75, CacheWrite1hPerM: 6.00, CacheHitPerM: 0.30},
}

// Row returns the pricing row for model, falling back to the default row
func Row(model string) models.PricingRow {
	if row, ok := table[model]; ok {
		return row
	}
	return table[DefaultModel]
}

// Known reports whether model has its own pricing row
func Known(model string) bool {
	if model == DefaultModel {
		return false
	}
	_, ok := table[model]
	return ok
}

// Models returns the priced model identifiers, sorted, without the default row
func Models() []string {
	ids := make([]string, 0, len(table)-1)
	for id := range table {
		if id == DefaultModel {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Cost returns the USD cost of one call. Unknown models use the default row;
// negative counts are treated as zero.
func Cost(model string, usage models.UsageEvent) float64 {
	row := Row(model)

	return term(usage.InputTokens, row.InputPerM) +
		term(usage.OutputTokens, row.OutputPerM) +
		term(usage.CacheCreated5m, row.CacheWrite5mPerM) +
		term(usage.CacheCreated1h, row.CacheWrite1hPerM) +
		term(usage.CacheReadTokens, row.CacheHitPerM)
}

func term(tokens int64, ratePerM float64) float64 {
	if tokens <= 0 {
		return 0
	}
	return float64(tokens) / perMillion * ratePerM
}
