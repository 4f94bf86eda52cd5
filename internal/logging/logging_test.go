package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "sk-ant-REDACTED"

// setupJSON installs a JSON logger writing to the returned buffer
func setupJSON(t *testing.T, level string) (*slog.Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger := Setup(Config{Level: level, Format: "json", Output: &buf})
	return logger, &buf
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	return entry
}

func TestSetup_Formats(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		logger, buf := setupJSON(t, "info")
		logger.Info("page opened", "page_id", "p1")

		entry := decodeLine(t, buf)
		assert.Equal(t, "page opened", entry["msg"])
		assert.Equal(t, "p1", entry["page_id"])
		assert.Equal(t, "INFO", entry["level"])
	})

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		logger := Setup(Config{Level: "info", Format: "TEXT", Output: &buf})
		logger.Info("page opened", "page_id", "p1")

		assert.Contains(t, buf.String(), "page opened")
		assert.Contains(t, buf.String(), "page_id=p1")
	})
}

func TestSetup_LevelFilters(t *testing.T) {
	tests := []struct {
		level   string
		logFunc func(ctx context.Context, msg string, args ...any)
		written bool
	}{
		{"info", Debug, false},
		{"info", Info, true},
		{"warn", Info, false},
		{"warn", Warn, true},
		{"error", Warn, false},
		{"error", Error, true},
		{"debug", Debug, true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s level", tt.level), func(t *testing.T) {
			_, buf := setupJSON(t, tt.level)
			tt.logFunc(context.Background(), "styles applied")
			assert.Equal(t, tt.written, buf.Len() > 0)
		})
	}
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestContextValues(t *testing.T) {
	ctx := context.Background()
	ctx = WithRequestID(ctx, "req-123")
	ctx = WithPageID(ctx, "page-456")
	ctx = WithScope(ctx, "https://a.example/foo")
	ctx = WithModel(ctx, "claude-3-haiku-20240307")

	_, buf := setupJSON(t, "info")
	Info(ctx, "generation finished")

	entry := decodeLine(t, buf)
	assert.Equal(t, "req-123", entry["request_id"])
	assert.Equal(t, "page-456", entry["page_id"])
	assert.Equal(t, "https://a.example/foo", entry["scope"])
	assert.Equal(t, "claude-3-haiku-20240307", entry["model"])
}

func TestContextValues_EmptyOmitted(t *testing.T) {
	_, buf := setupJSON(t, "info")
	Info(WithPageID(context.Background(), ""), "no page")

	entry := decodeLine(t, buf)
	_, ok := entry["page_id"]
	assert.False(t, ok)
}

func TestLogger_BindsContext(t *testing.T) {
	_, buf := setupJSON(t, "info")

	ctx := WithPageID(WithRequestID(context.Background(), "req-9"), "page-9")

	// The bound logger keeps the values after the context is gone
	Logger(ctx).Info("handle released")

	entry := decodeLine(t, buf)
	assert.Equal(t, "req-9", entry["request_id"])
	assert.Equal(t, "page-9", entry["page_id"])
}

func TestContextHandler_DerivedLoggerKeepsContext(t *testing.T) {
	logger, buf := setupJSON(t, "info")

	ctx := WithPageID(context.Background(), "page-1")
	logger.With("component", "injector").WithGroup("style").InfoContext(ctx, "attached", "bytes", 42)

	entry := decodeLine(t, buf)
	assert.Equal(t, "injector", entry["component"])
	assert.NotNil(t, entry["style"])
}

func TestAudit(t *testing.T) {
	_, buf := setupJSON(t, "info")

	Audit(WithScope(context.Background(), "https://a.example"), "factory_reset", "deleted_keys", 12)

	entry := decodeLine(t, buf)
	assert.Equal(t, "AUDIT", entry["msg"])
	assert.Equal(t, true, entry["audit"])
	assert.Equal(t, "factory_reset", entry["operation"])
	assert.Equal(t, float64(12), entry["deleted_keys"])
	assert.Equal(t, "https://a.example", entry["scope"])
}

func TestRedact(t *testing.T) {
	tests := []struct {
		name string
		log  func(logger *slog.Logger)
		key  string
		want string
	}{
		{
			name: "secret attribute name",
			log:  func(l *slog.Logger) { l.Info("settings updated", "api_key", "anything") },
			key:  "api_key",
			want: Redacted,
		},
		{
			name: "secret attribute name is case insensitive",
			log:  func(l *slog.Logger) { l.Info("request", "Authorization", "Bearer x") },
			key:  "Authorization",
			want: Redacted,
		},
		{
			name: "key inside a string value",
			log:  func(l *slog.Logger) { l.Info("request", "header", "x-api-key: "+testKey) },
			key:  "header",
			want: "x-api-key: " + Redacted,
		},
		{
			name: "key inside an error",
			log: func(l *slog.Logger) {
				l.Warn("model API call failed", "error", errors.New("invalid key "+testKey+" rejected"))
			},
			key:  "error",
			want: "invalid key " + Redacted + " rejected",
		},
		{
			name: "key inside the message",
			log:  func(l *slog.Logger) { l.Info("seeded " + testKey) },
			key:  "msg",
			want: "seeded " + Redacted,
		},
		{
			name: "ordinary value untouched",
			log:  func(l *slog.Logger) { l.Info("generation", "model", "claude-3-5-haiku-20241022") },
			key:  "model",
			want: "claude-3-5-haiku-20241022",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, buf := setupJSON(t, "info")
			tt.log(logger)

			assert.NotContains(t, buf.String(), testKey)
			entry := decodeLine(t, buf)
			assert.Equal(t, tt.want, entry[tt.key])
		})
	}
}
