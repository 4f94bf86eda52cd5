package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/pagemagic/pagemagic/internal/llm"
	"github.com/pagemagic/pagemagic/internal/service/generator"
	"github.com/pagemagic/pagemagic/internal/service/ledger"
	"github.com/pagemagic/pagemagic/internal/service/pages"
	"github.com/pagemagic/pagemagic/internal/service/scope"
	"github.com/pagemagic/pagemagic/internal/service/settings"
	"github.com/pagemagic/pagemagic/internal/service/styles"
	"github.com/pagemagic/pagemagic/internal/storage"
)

// Request/Response types

// ErrorResponse is the standard error response
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// HealthResponse is the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services,omitempty"`
}

// ReadyResponse is the readiness check response
type ReadyResponse struct {
	Ready     bool      `json:"ready"`
	Timestamp time.Time `json:"timestamp"`
}

// OpenPageRequest opens a page. HTML is fetched from URL when omitted.
type OpenPageRequest struct {
	URL  string `json:"url" binding:"required,max=2048"`
	HTML string `json:"html,omitempty"`
}

// InjectCSSRequest appends CSS to a page's style node
type InjectCSSRequest struct {
	CSS string `json:"css" binding:"required"`
}

// GenerateRequest is a natural-language styling request
type GenerateRequest struct {
	Prompt string `json:"prompt" binding:"required,max=4000"`
}

// SetScopeRequest switches domain-wide mode using a page as the anchor
type SetScopeRequest struct {
	PageID     string `json:"page_id" binding:"required"`
	DomainWide *bool  `json:"domain_wide" binding:"required"`
}

// UpdateSettingsRequest changes the stored settings. Omitted fields are kept;
// an empty api_key removes the stored credential.
type UpdateSettingsRequest struct {
	APIKey *string `json:"api_key,omitempty" binding:"omitempty,max=512"`
	Model  *string `json:"model,omitempty" binding:"omitempty,min=1,max=200"`
}

// Handlers

func (s *Server) handleHealth(c *gin.Context) {
	response := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Services:  make(map[string]string),
	}

	if key, err := s.settings.APIKey(c.Request.Context()); err != nil {
		response.Services["storage"] = "error"
	} else {
		response.Services["storage"] = "ok"
		if key == "" {
			response.Services["model_api"] = "not_configured"
		} else {
			response.Services["model_api"] = "configured"
		}
	}

	c.JSON(http.StatusOK, response)
}

func (s *Server) handleReady(c *gin.Context) {
	response := ReadyResponse{
		Ready:     s.ready.Load(),
		Timestamp: time.Now(),
	}

	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}

	c.JSON(http.StatusOK, response)
}

// errorStatus maps service errors to HTTP status codes
func errorStatus(err error) int {
	switch {
	case errors.Is(err, llm.ErrNotConfigured):
		return http.StatusPreconditionFailed
	case llm.IsRateLimited(err):
		return http.StatusTooManyRequests
	case llm.IsContentTooLarge(err), errors.Is(err, pages.ErrPageTooLarge):
		return http.StatusRequestEntityTooLarge
	case llm.IsAuth(err):
		return http.StatusUnauthorized
	case errors.Is(err, llm.ErrUploadFailed),
		errors.Is(err, llm.ErrRequestFailed),
		errors.Is(err, llm.ErrStaleFileHandle),
		errors.Is(err, llm.ErrInvalidResponse),
		errors.Is(err, generator.ErrEmptyResponse),
		errors.Is(err, pages.ErrFetchFailed):
		return http.StatusBadGateway
	case errors.Is(err, pages.ErrPageNotFound),
		errors.Is(err, storage.ErrNotFound),
		errors.Is(err, styles.ErrEntryNotFound):
		return http.StatusNotFound
	case errors.Is(err, generator.ErrEmptyPrompt),
		errors.Is(err, generator.ErrSessionClosed),
		errors.Is(err, scope.ErrInvalidURL),
		errors.Is(err, ledger.ErrInvalidDate),
		errors.Is(err, settings.ErrInvalidModel),
		errors.Is(err, styles.ErrEmptyCSS):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err with its mapped status. Model API failures use the
// user-facing message where one exists.
func (s *Server) respondError(c *gin.Context, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			slog.String("path", c.FullPath()),
			slog.Int("status", status),
			slog.String("error", err.Error()),
			slog.String("request_id", c.GetString("request_id")))
	}

	c.JSON(status, ErrorResponse{
		Error:     llm.UserMessage(err),
		RequestID: c.GetString("request_id"),
	})
}

func (s *Server) respondBadRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:     sanitizeValidationError(err),
		RequestID: c.GetString("request_id"),
	})
}

// sanitizeValidationError converts internal field names to JSON field names
// in validation error messages.
func sanitizeValidationError(err error) string {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err.Error()
	}

	var messages []string
	for _, fe := range validationErrs {
		jsonFieldName := toSnakeCase(fe.Field())
		switch fe.Tag() {
		case "required":
			messages = append(messages, fmt.Sprintf("%s is required", jsonFieldName))
		case "min":
			messages = append(messages, fmt.Sprintf("%s must be at least %s characters", jsonFieldName, fe.Param()))
		case "max":
			messages = append(messages, fmt.Sprintf("%s must be at most %s characters", jsonFieldName, fe.Param()))
		default:
			messages = append(messages, fmt.Sprintf("%s failed validation (%s)", jsonFieldName, fe.Tag()))
		}
	}
	return strings.Join(messages, "; ")
}

var camelBoundary = regexp.MustCompile("([a-z0-9])([A-Z])")

// toSnakeCase converts a PascalCase or camelCase string to snake_case
func toSnakeCase(s string) string {
	fieldMappings := map[string]string{
		"URL":        "url",
		"HTML":       "html",
		"CSS":        "css",
		"PageID":     "page_id",
		"DomainWide": "domain_wide",
		"APIKey":     "api_key",
	}
	if mapped, ok := fieldMappings[s]; ok {
		return mapped
	}
	return strings.ToLower(camelBoundary.ReplaceAllString(s, "${1}_${2}"))
}
