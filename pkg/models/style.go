package models

import (
	"strings"
	"time"
)

// ScopeKey identifies where a set of style overrides lives: either an origin
// (domain-wide) or an origin plus pathname (single page).
type ScopeKey string

func (k ScopeKey) String() string {
	return string(k)
}

// LayerSeparator is placed between fragments of an effective stylesheet
const LayerSeparator = "\n\n/* --- */\n\n"

// HistoryEntry is one applied styling request
type HistoryEntry struct {
	ID        string    `json:"id"`
	Prompt    string    `json:"prompt"`
	CSS       string    `json:"css"`
	Disabled  bool      `json:"disabled"`
	CreatedAt time.Time `json:"created_at"`
}

// EffectiveStylesheet folds the enabled entries, in order, into the text that is
// injected into a page. An empty result means there is nothing to inject.
func EffectiveStylesheet(entries []HistoryEntry) string {
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Disabled {
			continue
		}
		parts = append(parts, e.CSS)
	}
	return strings.Join(parts, LayerSeparator)
}

// AllDisabled reports whether every entry is disabled. An empty stack is not
// considered all-disabled.
func AllDisabled(entries []HistoryEntry) bool {
	if len(entries) == 0 {
		return false
	}
	for _, e := range entries {
		if !e.Disabled {
			return false
		}
	}
	return true
}

// SiteSummary describes the stored customizations for one scope
type SiteSummary struct {
	Scope        ScopeKey `json:"scope"`
	Entries      int      `json:"entries"`
	Enabled      int      `json:"enabled"`
	HasStyles    bool     `json:"has_styles"`
	StyleBytes   int      `json:"style_bytes"`
	LatestPrompt string   `json:"latest_prompt,omitempty"`
}

// StorageStats summarizes everything stored for style overrides
type StorageStats struct {
	Sites          int   `json:"sites"`
	HistoryEntries int   `json:"history_entries"`
	StyleBytes     int64 `json:"style_bytes"`
	TotalBytes     int64 `json:"total_bytes"`
}
