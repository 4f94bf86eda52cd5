package cmd

import "github.com/pagemagic/pagemagic/pkg/models"

// Re-export server models for CLI use
type (
	PageInfo         = models.PageInfo
	HistoryEntry     = models.HistoryEntry
	GenerationResult = models.GenerationResult
	LedgerEntry      = models.LedgerEntry
	DailyUsage       = models.DailyUsage
	Model            = models.Model
	Settings         = models.Settings
	SiteSummary      = models.SiteSummary
	StorageStats     = models.StorageStats
)

// HistoryResponse is the history listing of a page's active scope
type HistoryResponse struct {
	Scope       string         `json:"scope"`
	Entries     []HistoryEntry `json:"entries"`
	Count       int            `json:"count"`
	AllDisabled bool           `json:"all_disabled"`
}

// UsageResponse is a ledger entry with display names for its models
type UsageResponse struct {
	Date       string            `json:"date,omitempty"`
	Entry      LedgerEntry       `json:"entry"`
	ModelNames map[string]string `json:"model_names"`
}

// ScopeResponse describes the domain-wide flag and, optionally, a page's scope
type ScopeResponse struct {
	DomainWide bool   `json:"domain_wide"`
	PageID     string `json:"page_id,omitempty"`
	Scope      string `json:"scope,omitempty"`
}
