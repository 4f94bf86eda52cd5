package models

import "time"

// PricingRow is the USD rate per million tokens for one model class
type PricingRow struct {
	InputPerM        float64 `json:"input_per_m"`
	OutputPerM       float64 `json:"output_per_m"`
	CacheWrite5mPerM float64 `json:"cache_write_5m_per_m"`
	CacheWrite1hPerM float64 `json:"cache_write_1h_per_m"`
	CacheHitPerM     float64 `json:"cache_hit_per_m"`
}

// UsageEvent holds the raw token counts reported for one generation call
type UsageEvent struct {
	Model           string `json:"model"`
	InputTokens     int64  `json:"input_tokens"`
	OutputTokens    int64  `json:"output_tokens"`
	CacheCreated5m  int64  `json:"cache_created_5m"`
	CacheCreated1h  int64  `json:"cache_created_1h"`
	CacheReadTokens int64  `json:"cache_read_tokens"`
}

// TokenTotals are the summed prompt and completion tokens for a model
type TokenTotals struct {
	Input  int64 `json:"input"`
	Output int64 `json:"output"`
}

// ModelUsage is the per-model slice of a ledger entry
type ModelUsage struct {
	Requests int64       `json:"requests"`
	Cost     float64     `json:"cost"`
	Tokens   TokenTotals `json:"tokens"`
}

// LedgerEntry accumulates request count and spend for one day or for all time.
// The zero value (after Normalize) is a valid empty entry.
type LedgerEntry struct {
	Requests  int64                 `json:"requests"`
	TotalCost float64               `json:"totalCost"`
	Models    map[string]ModelUsage `json:"models"`
}

// Normalize makes sure Models is non-nil so callers never see a null map
func (e *LedgerEntry) Normalize() {
	if e.Models == nil {
		e.Models = make(map[string]ModelUsage)
	}
}

// Add folds one usage event and its cost into the entry
func (e *LedgerEntry) Add(usage UsageEvent, cost float64) {
	e.Normalize()
	e.Requests++
	e.TotalCost += cost

	m := e.Models[usage.Model]
	m.Requests++
	m.Cost += cost
	m.Tokens.Input += usage.InputTokens
	m.Tokens.Output += usage.OutputTokens
	e.Models[usage.Model] = m
}

// DailyUsage pairs a ledger entry with the calendar date it covers
type DailyUsage struct {
	Date  string      `json:"date"` // YYYY-MM-DD, local time
	Entry LedgerEntry `json:"entry"`
}

// DateLayout is the calendar date format used for daily ledger keys
const DateLayout = "2006-01-02"

// FormatDate renders t as a daily ledger date in t's own location
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}
