package llm

import (
	"context"

	"github.com/pagemagic/pagemagic/pkg/models"
)

// Operation names used in errors and metrics
const (
	OpUpload     = "upload"
	OpGenerate   = "generate"
	OpRelease    = "release"
	OpListModels = "list_models"
)

// FileHandle identifies a page snapshot uploaded to the model API
type FileHandle string

// String returns the raw file id
func (h FileHandle) String() string {
	return string(h)
}

// ModelAPI defines the remote text-generation service used for styling requests
type ModelAPI interface {
	// UploadSnapshot uploads the page HTML so later requests can reference it
	UploadSnapshot(ctx context.Context, content string) (FileHandle, error)

	// Generate sends a styling request against an uploaded snapshot
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error)

	// ReleaseHandle deletes an uploaded snapshot
	ReleaseHandle(ctx context.Context, handle FileHandle) error

	// ListModels returns the models available to the configured credential,
	// newest first
	ListModels(ctx context.Context) ([]models.Model, error)
}

// KeySource supplies the credential for each call. An empty key means the
// API is not configured.
type KeySource interface {
	APIKey(ctx context.Context) (string, error)
}

// StaticKey is a KeySource that always returns the same key
type StaticKey string

// APIKey returns the key
func (k StaticKey) APIKey(context.Context) (string, error) {
	return string(k), nil
}

// GenerateRequest contains everything needed for one styling call
type GenerateRequest struct {
	Handle    FileHandle
	System    string
	Prompt    string
	Model     string
	MaxTokens int
}

// GenerateResult is the first text block of the reply plus reported usage
type GenerateResult struct {
	Text       string
	Model      string
	StopReason string
	Usage      models.UsageEvent
}
