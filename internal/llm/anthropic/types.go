package anthropic

import (
	"time"

	"github.com/pagemagic/pagemagic/pkg/models"
)

// FileResponse is the response from POST /v1/files
type FileResponse struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Filename  string    `json:"filename"`
	MimeType  string    `json:"mime_type"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

// MessagesRequest is the body of POST /v1/messages
type MessagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []Message `json:"messages"`
}

// Message is one conversation turn
type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// ContentBlock is a request content block. Only the fields for its Type are set.
type ContentBlock struct {
	Type         string          `json:"type"`
	Text         string          `json:"text,omitempty"`
	Source       *DocumentSource `json:"source,omitempty"`
	CacheControl *CacheControl   `json:"cache_control,omitempty"`
}

// DocumentSource references an uploaded file
type DocumentSource struct {
	Type   string `json:"type"`
	FileID string `json:"file_id"`
}

// CacheControl marks a block for prompt caching
type CacheControl struct {
	Type string `json:"type"`
}

// MessagesResponse is the response from POST /v1/messages
type MessagesResponse struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Role       string          `json:"role"`
	Model      string          `json:"model"`
	Content    []ResponseBlock `json:"content"`
	StopReason string          `json:"stop_reason"`
	Usage      Usage           `json:"usage"`
}

// ResponseBlock is a reply content block
type ResponseBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Usage is the token accounting reported with a reply
type Usage struct {
	InputTokens              int64          `json:"input_tokens"`
	OutputTokens             int64          `json:"output_tokens"`
	CacheCreationInputTokens int64          `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int64          `json:"cache_read_input_tokens"`
	CacheCreation            *CacheCreation `json:"cache_creation,omitempty"`
}

// CacheCreation splits cache writes by TTL
type CacheCreation struct {
	Ephemeral5mInputTokens int64 `json:"ephemeral_5m_input_tokens"`
	Ephemeral1hInputTokens int64 `json:"ephemeral_1h_input_tokens"`
}

// ToUsageEvent converts reported usage to a ledger usage event. Without a TTL
// breakdown all cache writes are billed at the 5 minute rate.
func (u Usage) ToUsageEvent(model string) models.UsageEvent {
	ev := models.UsageEvent{
		Model:           model,
		InputTokens:     u.InputTokens,
		OutputTokens:    u.OutputTokens,
		CacheReadTokens: u.CacheReadInputTokens,
	}
	if u.CacheCreation != nil {
		ev.CacheCreated5m = u.CacheCreation.Ephemeral5mInputTokens
		ev.CacheCreated1h = u.CacheCreation.Ephemeral1hInputTokens
	} else {
		ev.CacheCreated5m = u.CacheCreationInputTokens
	}
	return ev
}

// ModelsResponse is the response from GET /v1/models
type ModelsResponse struct {
	Data    []ModelInfo `json:"data"`
	HasMore bool        `json:"has_more"`
	FirstID string      `json:"first_id"`
	LastID  string      `json:"last_id"`
}

// ModelInfo describes one model
type ModelInfo struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

// ToModel converts to the shared model type
func (m ModelInfo) ToModel() models.Model {
	return models.Model{
		ID:          m.ID,
		DisplayName: m.DisplayName,
		CreatedAt:   m.CreatedAt,
	}
}

// ErrorResponse is the error envelope returned on failures
type ErrorResponse struct {
	Type  string      `json:"type"`
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the error type and message
type ErrorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
