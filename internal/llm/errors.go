package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error taxonomy for model API calls
var (
	ErrNotConfigured   = errors.New("API key not configured")
	ErrUploadFailed    = errors.New("page upload failed")
	ErrRequestFailed   = errors.New("model API request failed")
	ErrRateLimited     = errors.New("rate limit exceeded")
	ErrContentTooLarge = errors.New("page content too large")
	ErrStaleFileHandle = errors.New("uploaded page snapshot no longer exists")
	ErrAuth            = errors.New("model API authentication failed")
	ErrInvalidResponse = errors.New("invalid model API response")
)

// User-facing messages
const (
	MsgRateLimited     = "Rate limit exceeded. Please try again later."
	MsgContentTooLarge = "Page content is too long (> 200k tokens). Try a simpler page."
	MsgNotConfigured   = "API key not configured. Set it with 'pagemagic-cli settings set --api-key'."
)

// APIError wraps a model API failure with operation context
type APIError struct {
	Operation  string
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("anthropic %s failed (HTTP %d): %s", e.Operation, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("anthropic %s failed: %s", e.Operation, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// NewAPIError creates a new APIError
func NewAPIError(operation string, statusCode int, message string, err error) *APIError {
	return &APIError{
		Operation:  operation,
		StatusCode: statusCode,
		Message:    message,
		Err:        err,
	}
}

// Classify maps a failed response to the error taxonomy. Message matching
// covers errors that arrive with a generic status code.
func Classify(operation string, statusCode int, message string) *APIError {
	lower := strings.ToLower(message)

	var base error
	switch {
	case statusCode == http.StatusTooManyRequests || strings.Contains(lower, "rate limit"):
		base = ErrRateLimited
	case statusCode == http.StatusRequestEntityTooLarge || strings.Contains(lower, "prompt is too long"):
		base = ErrContentTooLarge
	case operation == OpGenerate && strings.Contains(lower, "file not found"):
		// Other 404s on generate, e.g. an unknown model id, are not retryable
		base = ErrStaleFileHandle
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		base = ErrAuth
	case operation == OpUpload:
		base = ErrUploadFailed
	default:
		base = ErrRequestFailed
	}

	if operation == OpUpload && base != ErrUploadFailed {
		base = &uploadError{cause: base}
	}

	return NewAPIError(operation, statusCode, message, base)
}

// uploadError marks an upload failure while keeping its specific cause
// matchable, so a rate-limited upload is both ErrUploadFailed and ErrRateLimited.
type uploadError struct {
	cause error
}

func (e *uploadError) Error() string {
	return ErrUploadFailed.Error() + ": " + e.cause.Error()
}

func (e *uploadError) Unwrap() []error {
	return []error{ErrUploadFailed, e.cause}
}

// IsRateLimited checks if the error is a rate limit error
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// IsContentTooLarge checks if the page was too large for the model
func IsContentTooLarge(err error) bool {
	return errors.Is(err, ErrContentTooLarge)
}

// IsStaleHandle checks if the referenced snapshot has expired
func IsStaleHandle(err error) bool {
	return errors.Is(err, ErrStaleFileHandle)
}

// IsAuth checks if the credential was rejected
func IsAuth(err error) bool {
	if errors.Is(err, ErrAuth) {
		return true
	}
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.StatusCode == http.StatusUnauthorized || ae.StatusCode == http.StatusForbidden
	}
	return false
}

// UserMessage returns the message shown to the user for err
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrNotConfigured):
		return MsgNotConfigured
	case IsRateLimited(err):
		return MsgRateLimited
	case IsContentTooLarge(err):
		return MsgContentTooLarge
	}
	var ae *APIError
	if errors.As(err, &ae) && ae.Message != "" {
		return ae.Message
	}
	return err.Error()
}

// Status returns a short metric label for err
func Status(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrNotConfigured):
		return "not_configured"
	case IsRateLimited(err):
		return "rate_limited"
	case IsContentTooLarge(err):
		return "content_too_large"
	case IsStaleHandle(err):
		return "stale_handle"
	case IsAuth(err):
		return "auth"
	case errors.Is(err, ErrUploadFailed):
		return "upload_failed"
	default:
		return "error"
	}
}
