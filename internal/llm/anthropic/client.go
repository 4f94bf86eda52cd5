package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/pagemagic/pagemagic/internal/llm"
	"github.com/pagemagic/pagemagic/internal/metrics"
	"github.com/pagemagic/pagemagic/pkg/models"
)

const (
	defaultBaseURL    = "https://api.anthropic.com"
	defaultTimeout    = 2 * time.Minute
	defaultMaxTokens  = 1024
	apiVersion        = "2023-06-01"
	filesBeta         = "files-api-2025-04-14"
	snapshotFilename  = "page.txt"
	snapshotMediaType = "text/plain"
	modelListLimit    = 1000
	maxErrorBody      = 64 << 10
)

// DeprecatedModels are hidden from model listings
var DeprecatedModels = map[string]bool{
	"claude-2.0":               true,
	"claude-2.1":               true,
	"claude-3-sonnet-20240229": true,
}

// Client implements llm.ModelAPI against the Anthropic REST API
type Client struct {
	keys       llm.KeySource
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxTokens  int
	logger     *slog.Logger
}

// ClientOption configures the Anthropic client
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL (for testing)
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithRateLimit sets the request pacing. A non-positive rate disables pacing.
func WithRateLimit(perSecond float64) ClientOption {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// WithMaxTokens sets the default reply token cap
func WithMaxTokens(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a new Anthropic client reading its credential from keys
func NewClient(keys llm.KeySource, opts ...ClientOption) *Client {
	c := &Client{
		keys:       keys,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(2), 1),
		maxTokens:  defaultMaxTokens,
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// UploadSnapshot uploads the page HTML as a plain-text file
func (c *Client) UploadSnapshot(ctx context.Context, content string) (llm.FileHandle, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, snapshotFilename))
	header.Set("Content-Type", snapshotMediaType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return "", fmt.Errorf("failed to create multipart part: %w", err)
	}
	if _, err := io.WriteString(part, content); err != nil {
		return "", fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	resp, err := c.do(ctx, llm.OpUpload, http.MethodPost, "/v1/files", &body, mw.FormDataContentType())
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", c.handleError(resp, llm.OpUpload)
	}

	var result FileResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", llm.NewAPIError(llm.OpUpload, resp.StatusCode, "failed to decode response", fmt.Errorf("%w: %v", llm.ErrUploadFailed, err))
	}
	if result.ID == "" {
		return "", llm.NewAPIError(llm.OpUpload, resp.StatusCode, "response has no file id", llm.ErrUploadFailed)
	}

	metrics.RecordFileHandle("upload")
	c.logger.Debug("uploaded page snapshot",
		slog.String("file_id", result.ID),
		slog.Int("bytes", len(content)))

	return llm.FileHandle(result.ID), nil
}

// Generate sends a styling request referencing an uploaded snapshot and
// returns the first content block's text
func (c *Client) Generate(ctx context.Context, req llm.GenerateRequest) (*llm.GenerateResult, error) {
	if req.Handle == "" {
		return nil, llm.NewAPIError(llm.OpGenerate, 0, "file handle is required, upload the page first", llm.ErrRequestFailed)
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}

	body, err := json.Marshal(MessagesRequest{
		Model:     req.Model,
		MaxTokens: maxTokens,
		System:    req.System,
		Messages: []Message{
			{
				Role: "user",
				Content: []ContentBlock{
					{
						Type:         "document",
						Source:       &DocumentSource{Type: "file", FileID: req.Handle.String()},
						CacheControl: &CacheControl{Type: "ephemeral"},
					},
					{
						Type: "text",
						Text: req.Prompt,
					},
				},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := c.do(ctx, llm.OpGenerate, http.MethodPost, "/v1/messages", bytes.NewReader(body), "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.handleError(resp, llm.OpGenerate)
	}

	var result MessagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, llm.NewAPIError(llm.OpGenerate, resp.StatusCode, "failed to decode response", fmt.Errorf("%w: %v", llm.ErrInvalidResponse, err))
	}

	if len(result.Content) == 0 || result.Content[0].Type != "text" {
		return nil, llm.NewAPIError(llm.OpGenerate, resp.StatusCode, "unexpected response type", llm.ErrInvalidResponse)
	}

	model := result.Model
	if model == "" {
		model = req.Model
	}

	return &llm.GenerateResult{
		Text:       result.Content[0].Text,
		Model:      model,
		StopReason: result.StopReason,
		Usage:      result.Usage.ToUsageEvent(req.Model),
	}, nil
}

// ReleaseHandle deletes an uploaded snapshot. A snapshot that is already gone
// counts as released.
func (c *Client) ReleaseHandle(ctx context.Context, handle llm.FileHandle) error {
	if handle == "" {
		return nil
	}

	resp, err := c.do(ctx, llm.OpRelease, http.MethodDelete, "/v1/files/"+url.PathEscape(handle.String()), nil, "")
	if err != nil {
		metrics.RecordFileHandle("release_failed")
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		metrics.RecordFileHandle("release")
		return nil
	default:
		metrics.RecordFileHandle("release_failed")
		return c.handleError(resp, llm.OpRelease)
	}
}

// ListModels returns the available models, without deprecated ids, newest first
func (c *Client) ListModels(ctx context.Context) ([]models.Model, error) {
	path := fmt.Sprintf("/v1/models?limit=%d", modelListLimit)
	resp, err := c.do(ctx, llm.OpListModels, http.MethodGet, path, nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.handleError(resp, llm.OpListModels)
	}

	var result ModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, llm.NewAPIError(llm.OpListModels, resp.StatusCode, "failed to decode response", fmt.Errorf("%w: %v", llm.ErrInvalidResponse, err))
	}

	out := make([]models.Model, 0, len(result.Data))
	for _, m := range result.Data {
		if m.Type != "model" || DeprecatedModels[m.ID] {
			continue
		}
		out = append(out, m.ToModel())
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	return out, nil
}

// do paces, authenticates and sends one request, recording its latency
func (c *Client) do(ctx context.Context, operation, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	key, err := c.keys.APIKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read API key: %w", err)
	}
	if key == "" {
		return nil, llm.ErrNotConfigured
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("x-api-key", key)
	req.Header.Set("anthropic-version", apiVersion)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if operation != llm.OpListModels {
		req.Header.Set("anthropic-beta", filesBeta)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordModelAPICall(operation, "error", time.Since(start))
		base := llm.ErrRequestFailed
		if operation == llm.OpUpload {
			base = llm.ErrUploadFailed
		}
		return nil, llm.NewAPIError(operation, 0, err.Error(), base)
	}

	status := "success"
	if resp.StatusCode >= 400 {
		status = "error"
	}
	metrics.RecordModelAPICall(operation, status, time.Since(start))

	return resp, nil
}

// handleError converts HTTP errors to model API errors
func (c *Client) handleError(resp *http.Response, operation string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	message := strings.TrimSpace(string(body))

	var envelope ErrorResponse
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		message = envelope.Error.Message
	}

	err := llm.Classify(operation, resp.StatusCode, message)
	c.logger.Warn("model API call failed",
		slog.String("operation", operation),
		slog.Int("status", resp.StatusCode),
		slog.String("error", message))
	return err
}

var _ llm.ModelAPI = (*Client)(nil)
