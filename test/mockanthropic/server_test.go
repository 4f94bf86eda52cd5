package mockanthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagemagic/pagemagic/internal/llm"
	"github.com/pagemagic/pagemagic/internal/llm/anthropic"
)

func TestState_NewState(t *testing.T) {
	state := NewState()

	assert.Len(t, state.Models(), 4)
	assert.Equal(t, 0, state.FileCount())

	uploads, messages, deletes := state.Counts()
	assert.Zero(t, uploads)
	assert.Zero(t, messages)
	assert.Zero(t, deletes)
}

func TestState_Authorized(t *testing.T) {
	state := NewState()

	assert.False(t, state.Authorized(""))
	assert.True(t, state.Authorized("anything"))

	state.SetAPIKey("sk-ant-test")
	assert.True(t, state.Authorized("sk-ant-test"))
	assert.False(t, state.Authorized("sk-ant-other"))
}

func TestState_Files(t *testing.T) {
	state := NewState()

	f := state.AddFile("page.txt", "text/plain", "<html></html>")
	assert.NotEmpty(t, f.ID)

	got, ok := state.GetFile(f.ID)
	require.True(t, ok)
	assert.Equal(t, "<html></html>", got.Content)

	assert.True(t, state.DeleteFile(f.ID))
	assert.False(t, state.DeleteFile(f.ID))

	state.AddFile("a.txt", "text/plain", "a")
	state.AddFile("b.txt", "text/plain", "b")
	assert.Equal(t, 2, state.ExpireFiles())
	assert.Equal(t, 0, state.FileCount())
}

func TestState_TakeFailure(t *testing.T) {
	state := NewState()

	state.SetFailure("messages", Failure{Status: 429, Message: "slow down", Count: 2})

	_, ok := state.takeFailure("messages")
	assert.True(t, ok)
	_, ok = state.takeFailure("messages")
	assert.True(t, ok)
	_, ok = state.takeFailure("messages")
	assert.False(t, ok, "failure should be used up")

	state.SetFailure("upload", Failure{Status: 500, Message: "down"})
	for i := 0; i < 3; i++ {
		_, ok = state.takeFailure("upload")
		assert.True(t, ok, "persistent failure should not be consumed")
	}

	state.ClearFailures()
	_, ok = state.takeFailure("upload")
	assert.False(t, ok)
}

func TestServer_Health(t *testing.T) {
	server := NewServer(NewState())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
}

func TestServer_RequiresAPIKey(t *testing.T) {
	server := NewServer(NewState())

	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	req.Header.Set("anthropic-version", "2023-06-01")
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)

	var resp anthropic.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "error", resp.Type)
	assert.Equal(t, "authentication_error", resp.Error.Type)
}

func TestServer_FilesRequireBeta(t *testing.T) {
	server := NewServer(NewState())

	req := httptest.NewRequest(http.MethodDelete, "/v1/files/file_1", nil)
	req.Header.Set("x-api-key", "k")
	req.Header.Set("anthropic-version", "2023-06-01")
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_TestConfig(t *testing.T) {
	server := NewServer(NewState())

	body, _ := json.Marshal(TestConfig{
		Reply:      "a { color: red; }",
		StopReason: "max_tokens",
		Failures: map[string]Failure{
			"upload": {Status: 413, Type: "request_too_large", Message: "too big", Count: 1},
		},
	})
	req := httptest.NewRequest(http.MethodPost, "/_test/config", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	reply, stop, _ := server.State().recordMessage(&anthropic.MessagesRequest{})
	assert.Equal(t, "a { color: red; }", reply)
	assert.Equal(t, "max_tokens", stop)

	f, ok := server.State().takeFailure("upload")
	require.True(t, ok)
	assert.Equal(t, 413, f.Status)

	req = httptest.NewRequest(http.MethodPost, "/_test/reset", nil)
	w = httptest.NewRecorder()
	server.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	reply, stop, _ = server.State().recordMessage(&anthropic.MessagesRequest{})
	assert.Equal(t, DefaultReply, reply)
	assert.Equal(t, "end_turn", stop)
}

// Tests that drive the mock through the real client

func newClient(t *testing.T) (*anthropic.Client, *Server) {
	t.Helper()
	mock := NewServer(NewState())
	ts := httptest.NewServer(mock)
	t.Cleanup(ts.Close)

	client := anthropic.NewClient(llm.StaticKey("sk-ant-test"),
		anthropic.WithBaseURL(ts.URL),
		anthropic.WithRateLimit(0),
	)
	return client, mock
}

func TestClient_UploadGenerateRelease(t *testing.T) {
	client, mock := newClient(t)
	ctx := context.Background()

	handle, err := client.UploadSnapshot(ctx, "<html><body>hi</body></html>")
	require.NoError(t, err)
	assert.NotEmpty(t, handle)

	f, ok := mock.State().GetFile(handle.String())
	require.True(t, ok)
	assert.Equal(t, "<html><body>hi</body></html>", f.Content)

	result, err := client.Generate(ctx, llm.GenerateRequest{
		Handle: handle,
		System: "You write CSS.",
		Prompt: "dark mode",
		Model:  "claude-3-5-haiku-20241022",
	})
	require.NoError(t, err)
	assert.Equal(t, DefaultReply, result.Text)
	assert.Equal(t, "end_turn", result.StopReason)
	assert.Equal(t, int64(1200), result.Usage.InputTokens)
	assert.Equal(t, int64(80), result.Usage.OutputTokens)

	last := mock.State().LastRequest()
	require.NotNil(t, last)
	assert.Equal(t, "You write CSS.", last.System)
	require.Len(t, last.Messages, 1)
	require.Len(t, last.Messages[0].Content, 2)
	assert.Equal(t, handle.String(), last.Messages[0].Content[0].Source.FileID)
	assert.Equal(t, "dark mode", last.Messages[0].Content[1].Text)

	require.NoError(t, client.ReleaseHandle(ctx, handle))
	assert.Equal(t, 0, mock.State().FileCount())

	// Already gone counts as released
	require.NoError(t, client.ReleaseHandle(ctx, handle))

	uploads, messages, deletes := mock.State().Counts()
	assert.Equal(t, 1, uploads)
	assert.Equal(t, 1, messages)
	assert.Equal(t, 2, deletes)
}

func TestClient_StaleHandle(t *testing.T) {
	client, mock := newClient(t)
	ctx := context.Background()

	handle, err := client.UploadSnapshot(ctx, "<html></html>")
	require.NoError(t, err)

	mock.State().ExpireFiles()

	_, err = client.Generate(ctx, llm.GenerateRequest{
		Handle: handle,
		Prompt: "bigger text",
		Model:  "claude-3-5-haiku-20241022",
	})
	require.Error(t, err)
	assert.True(t, llm.IsStaleHandle(err))
}

func TestClient_InjectedFailures(t *testing.T) {
	tests := []struct {
		name    string
		op      string
		failure Failure
		check   func(error) bool
	}{
		{
			name:    "rate limited generate",
			op:      "messages",
			failure: Failure{Status: 429, Type: "rate_limit_error", Message: "Number of requests has exceeded your rate limit"},
			check:   llm.IsRateLimited,
		},
		{
			name:    "prompt too long",
			op:      "messages",
			failure: Failure{Status: 400, Type: "invalid_request_error", Message: "prompt is too long: 250000 tokens > 200000 maximum"},
			check:   llm.IsContentTooLarge,
		},
		{
			name:    "rejected key",
			op:      "messages",
			failure: Failure{Status: 401, Type: "authentication_error", Message: "invalid x-api-key"},
			check:   llm.IsAuth,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, mock := newClient(t)
			ctx := context.Background()

			handle, err := client.UploadSnapshot(ctx, "<html></html>")
			require.NoError(t, err)

			mock.State().SetFailure(tt.op, tt.failure)

			_, err = client.Generate(ctx, llm.GenerateRequest{
				Handle: handle,
				Prompt: "dark mode",
				Model:  "claude-3-5-haiku-20241022",
			})
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error: %v", err)
		})
	}
}

func TestClient_UploadFailure(t *testing.T) {
	client, mock := newClient(t)

	mock.State().SetFailure("upload", Failure{Status: 429, Type: "rate_limit_error", Message: "rate limit", Count: 1})

	_, err := client.UploadSnapshot(context.Background(), "<html></html>")
	require.Error(t, err)
	assert.ErrorIs(t, err, llm.ErrUploadFailed)
	assert.True(t, llm.IsRateLimited(err))

	// Failure was single use
	_, err = client.UploadSnapshot(context.Background(), "<html></html>")
	require.NoError(t, err)
}

func TestClient_ListModels(t *testing.T) {
	client, _ := newClient(t)

	list, err := client.ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 4)

	assert.Equal(t, "claude-sonnet-4-20250514", list[0].ID)
	assert.Equal(t, "claude-3-opus-20240229", list[3].ID)
	for i := 1; i < len(list); i++ {
		assert.False(t, list[i].CreatedAt.After(list[i-1].CreatedAt), "models should be newest first")
	}
}

func TestClient_WrongKey(t *testing.T) {
	client, mock := newClient(t)
	mock.State().SetAPIKey("sk-ant-real")

	_, err := client.ListModels(context.Background())
	require.Error(t, err)
	assert.True(t, llm.IsAuth(err))
}
