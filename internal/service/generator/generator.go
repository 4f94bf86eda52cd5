// Package generator runs styling requests: it uploads the page snapshot,
// calls the model API, extracts the CSS, books the usage and appends the
// result to the scope's style stack.
package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pagemagic/pagemagic/internal/llm"
	"github.com/pagemagic/pagemagic/internal/logging"
	"github.com/pagemagic/pagemagic/internal/metrics"
	"github.com/pagemagic/pagemagic/internal/pricing"
	"github.com/pagemagic/pagemagic/pkg/models"
)

// DefaultSystemPrompt instructs the model to answer with CSS rules only
const DefaultSystemPrompt = `You are a CSS expert. Given an HTML page and a user request, generate CSS rules that will apply the requested changes to the page.

CRITICAL: Respond with CSS rules ONLY. Do not include any explanations, descriptions, or text outside of CSS rules.

Guidelines:
- Return ONLY CSS rules - no explanations, no descriptions, no markdown formatting, no code fences
- DO NOT include any text before or after the CSS rules
- DO NOT explain what the CSS does
- DO NOT wrap your response in ` + "```css" + ` or any other markdown formatting
- Use highly specific selectors to override existing styles (e.g., html body element, or multiple class selectors)
- ALWAYS use !important to ensure styles override existing CSS
- Consider the page structure when choosing selectors
- Use maximum specificity to ensure your styles take precedence
- Keep changes minimal and focused on the request
- For elements like code, pre, use selectors like "html body code, html body pre" for higher specificity
- When changing background-color, ALWAYS include background-image: none !important to remove any existing background images
- When changing the main content/text width, always override the width/max-width of the body element

Your response must contain ONLY valid CSS rules and nothing else.`

const (
	defaultReleaseTimeout = 10 * time.Second
	defaultRetryDelay     = 250 * time.Millisecond
)

var (
	// ErrEmptyPrompt is returned for blank requests
	ErrEmptyPrompt = errors.New("prompt is required")
	// ErrEmptyResponse is returned when the model reply holds no text
	ErrEmptyResponse = errors.New("model returned an empty response")
	// ErrSessionClosed is returned when generating on a closed session
	ErrSessionClosed = errors.New("session is closed")
)

// StyleAppender appends generated CSS to a scope's style stack
type StyleAppender interface {
	Append(ctx context.Context, scope models.ScopeKey, prompt, css string) (models.HistoryEntry, error)
}

// UsageRecorder books the usage and cost of a call
type UsageRecorder interface {
	Record(ctx context.Context, usage models.UsageEvent, cost float64) error
}

// SettingsReader supplies the credential and selected model
type SettingsReader interface {
	APIKey(ctx context.Context) (string, error)
	Model(ctx context.Context) (string, error)
}

// Service creates generation sessions sharing one model API client
type Service struct {
	api      llm.ModelAPI
	styles   StyleAppender
	ledger   UsageRecorder
	settings SettingsReader

	system         string
	maxTokens      int
	releaseTimeout time.Duration
	retryDelay     time.Duration
	logger         *slog.Logger
}

// Option configures the service
type Option func(*Service)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithSystemPrompt overrides the system instructions
func WithSystemPrompt(prompt string) Option {
	return func(s *Service) {
		s.system = prompt
	}
}

// WithMaxTokens sets the reply token cap
func WithMaxTokens(n int) Option {
	return func(s *Service) {
		s.maxTokens = n
	}
}

// WithReleaseTimeout bounds best-effort handle releases
func WithReleaseTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.releaseTimeout = d
		}
	}
}

// WithRetryDelay sets the pause before the stale-handle retry
func WithRetryDelay(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.retryDelay = d
		}
	}
}

// New creates a new generation service
func New(api llm.ModelAPI, styles StyleAppender, ledger UsageRecorder, settings SettingsReader, opts ...Option) *Service {
	s := &Service{
		api:            api,
		styles:         styles,
		ledger:         ledger,
		settings:       settings,
		system:         DefaultSystemPrompt,
		releaseTimeout: defaultReleaseTimeout,
		retryDelay:     defaultRetryDelay,
		logger:         slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// NewSession creates a session for one page
func (s *Service) NewSession() *Session {
	return &Session{svc: s}
}

// Request is one styling request
type Request struct {
	Prompt string
	Scope  models.ScopeKey
	// Snapshot returns the current page HTML; it is called for every upload
	Snapshot func() (string, error)
}

// book prices the call and records it. Ledger failures are logged only.
func (s *Service) book(ctx context.Context, usage models.UsageEvent) float64 {
	cost := pricing.Cost(usage.Model, usage)
	metrics.RecordUsage(usage.Model, usage.InputTokens, usage.OutputTokens,
		usage.CacheCreated5m, usage.CacheCreated1h, usage.CacheReadTokens, cost)

	if err := s.ledger.Record(ctx, usage, cost); err != nil {
		logging.Warn(ctx, "failed to record usage",
			slog.String("error", err.Error()),
			slog.Float64("cost", cost))
	}
	return cost
}

// release deletes a handle on a context detached from ctx's cancellation.
// Failures are logged only.
func (s *Service) release(ctx context.Context, handle llm.FileHandle) {
	if handle == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.releaseTimeout)
	defer cancel()

	if err := s.api.ReleaseHandle(ctx, handle); err != nil {
		s.logger.WarnContext(ctx, "failed to release file handle",
			slog.String("file_id", handle.String()),
			slog.String("error", err.Error()))
		return
	}
	s.logger.DebugContext(ctx, "released file handle", slog.String("file_id", handle.String()))
}

func trimPrompt(prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", ErrEmptyPrompt
	}
	return prompt, nil
}

func requireKey(ctx context.Context, settings SettingsReader) error {
	key, err := settings.APIKey(ctx)
	if err != nil {
		return fmt.Errorf("failed to read settings: %w", err)
	}
	if key == "" {
		return llm.ErrNotConfigured
	}
	return nil
}
