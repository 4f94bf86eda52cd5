package models

import "time"

// PageInfo describes a hosted page
type PageInfo struct {
	ID         string    `json:"id"`
	URL        string    `json:"url"`
	Title      string    `json:"title"`
	Scope      ScopeKey  `json:"scope"`
	DomainWide bool      `json:"domain_wide"`
	HasHandle  bool      `json:"has_file_handle"`
	HasChanges bool      `json:"has_changes"`
	StyleBytes int       `json:"style_bytes"`
	OpenedAt   time.Time `json:"opened_at"`
}

// BridgeResult is the outcome of a page-level style operation
type BridgeResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// GenerationResult is returned after a styling request has been applied
type GenerationResult struct {
	Entry    HistoryEntry `json:"entry"`
	Scope    ScopeKey     `json:"scope"`
	Model    string       `json:"model"`
	Usage    UsageEvent   `json:"usage"`
	Cost     float64      `json:"cost"`
	Retried  bool         `json:"retried"`
	Applied  bool         `json:"applied"`
	Warnings []string     `json:"warnings,omitempty"`
}

// Model is a generation model offered by the API
type Model struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

// Settings are the user's synced preferences. APIKey is masked when returned
// over the API.
type Settings struct {
	APIKey        string `json:"api_key,omitempty"`
	APIKeySet     bool   `json:"api_key_set"`
	Model         string `json:"model"`
	ModelName     string `json:"model_name,omitempty"`
	PricedByTable bool   `json:"priced_by_table"`
}
