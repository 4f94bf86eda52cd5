// Package mockanthropic is an in-memory stand-in for the Anthropic Files,
// Messages and Models endpoints used by the generation client.
package mockanthropic

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/pagemagic/pagemagic/internal/llm/anthropic"
)

const filesBeta = "files-api-2025-04-14"

// Server is the mock model API server
type Server struct {
	state  *State
	router *gin.Engine
	logger *slog.Logger
}

// NewServer creates a new mock server
func NewServer(state *State) *Server {
	if state == nil {
		state = NewState()
	}

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		state:  state,
		router: router,
		logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})),
	}

	s.setupRoutes()
	return s
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// State returns the underlying state for test manipulation
func (s *Server) State() *State {
	return s.state
}

func (s *Server) setupRoutes() {
	v1 := s.router.Group("/v1", s.authMiddleware())
	{
		v1.POST("/files", s.requireBeta(), s.handleUpload)
		v1.DELETE("/files/:id", s.requireBeta(), s.handleDeleteFile)
		v1.POST("/messages", s.handleMessages)
		v1.GET("/models", s.handleListModels)
	}

	s.router.GET("/health", s.handleHealth)

	// Test control endpoints
	s.router.POST("/_test/reset", s.handleTestReset)
	s.router.POST("/_test/config", s.handleTestConfig)
	s.router.POST("/_test/expire", s.handleTestExpire)
}

func apiError(c *gin.Context, status int, errType, message string) {
	c.AbortWithStatusJSON(status, anthropic.ErrorResponse{
		Type:  "error",
		Error: anthropic.ErrorDetail{Type: errType, Message: message},
	})
}

func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.state.Authorized(c.GetHeader("x-api-key")) {
			apiError(c, http.StatusUnauthorized, "authentication_error", "invalid x-api-key")
			return
		}
		if c.GetHeader("anthropic-version") == "" {
			apiError(c, http.StatusBadRequest, "invalid_request_error", "anthropic-version header is required")
			return
		}
		c.Next()
	}
}

func (s *Server) requireBeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !strings.Contains(c.GetHeader("anthropic-beta"), filesBeta) {
			apiError(c, http.StatusBadRequest, "invalid_request_error", "the Files API requires the "+filesBeta+" beta header")
			return
		}
		c.Next()
	}
}

// fail writes the configured failure for op, if any
func (s *Server) fail(c *gin.Context, op string) bool {
	f, ok := s.state.takeFailure(op)
	if !ok {
		return false
	}
	errType := f.Type
	if errType == "" {
		errType = "api_error"
	}
	s.logger.Debug("injected failure", "op", op, "status", f.Status)
	apiError(c, f.Status, errType, f.Message)
	return true
}

func (s *Server) handleUpload(c *gin.Context) {
	if s.fail(c, "upload") {
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		apiError(c, http.StatusBadRequest, "invalid_request_error", "file is required")
		return
	}
	f, err := header.Open()
	if err != nil {
		apiError(c, http.StatusBadRequest, "invalid_request_error", err.Error())
		return
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		apiError(c, http.StatusBadRequest, "invalid_request_error", err.Error())
		return
	}

	mimeType := header.Header.Get("Content-Type")
	file := s.state.AddFile(header.Filename, mimeType, string(content))

	c.JSON(http.StatusOK, anthropic.FileResponse{
		ID:        file.ID,
		Type:      "file",
		Filename:  file.Filename,
		MimeType:  file.MimeType,
		SizeBytes: int64(len(content)),
		CreatedAt: file.CreatedAt,
	})
}

func (s *Server) handleDeleteFile(c *gin.Context) {
	if s.fail(c, "delete") {
		return
	}

	id := c.Param("id")
	if !s.state.DeleteFile(id) {
		apiError(c, http.StatusNotFound, "not_found_error", fmt.Sprintf("File not found: %s", id))
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "type": "file_deleted"})
}

func (s *Server) handleMessages(c *gin.Context) {
	if s.fail(c, "messages") {
		return
	}

	var req anthropic.MessagesRequest
	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		apiError(c, http.StatusBadRequest, "invalid_request_error", err.Error())
		return
	}
	if req.Model == "" || req.MaxTokens <= 0 || len(req.Messages) == 0 {
		apiError(c, http.StatusBadRequest, "invalid_request_error", "model, max_tokens and messages are required")
		return
	}

	for _, m := range req.Messages {
		for _, block := range m.Content {
			if block.Type != "document" || block.Source == nil || block.Source.Type != "file" {
				continue
			}
			if !strings.Contains(c.GetHeader("anthropic-beta"), filesBeta) {
				apiError(c, http.StatusBadRequest, "invalid_request_error", "file sources require the "+filesBeta+" beta header")
				return
			}
			if _, ok := s.state.GetFile(block.Source.FileID); !ok {
				apiError(c, http.StatusNotFound, "not_found_error", fmt.Sprintf("File not found: %s", block.Source.FileID))
				return
			}
		}
	}

	reply, stop, usage := s.state.recordMessage(&req)
	_, messages, _ := s.state.Counts()

	c.JSON(http.StatusOK, anthropic.MessagesResponse{
		ID:         fmt.Sprintf("msg_%d", messages),
		Type:       "message",
		Role:       "assistant",
		Model:      req.Model,
		Content:    []anthropic.ResponseBlock{{Type: "text", Text: reply}},
		StopReason: stop,
		Usage:      usage,
	})
}

func (s *Server) handleListModels(c *gin.Context) {
	if s.fail(c, "models") {
		return
	}

	list := s.state.Models()
	resp := anthropic.ModelsResponse{Data: list}
	if len(list) > 0 {
		resp.FirstID = list[0].ID
		resp.LastID = list[len(list)-1].ID
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"type":   "mock-anthropic",
		"files":  s.state.FileCount(),
	})
}

// Test control handlers

func (s *Server) handleTestReset(c *gin.Context) {
	s.state.Reset()
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}

// TestConfig is the configuration for test behavior
type TestConfig struct {
	APIKey     string             `json:"api_key"`
	Reply      string             `json:"reply"`
	StopReason string             `json:"stop_reason"`
	Usage      *anthropic.Usage   `json:"usage"`
	Failures   map[string]Failure `json:"failures"`
}

func (s *Server) handleTestConfig(c *gin.Context) {
	var config TestConfig
	if err := c.ShouldBindJSON(&config); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if config.APIKey != "" {
		s.state.SetAPIKey(config.APIKey)
	}
	if config.Reply != "" || config.StopReason != "" {
		s.state.SetReply(config.Reply, config.StopReason)
	}
	if config.Usage != nil {
		s.state.SetUsage(*config.Usage)
	}
	s.state.ClearFailures()
	for op, f := range config.Failures {
		s.state.SetFailure(op, f)
	}

	c.JSON(http.StatusOK, gin.H{"status": "configured"})
}

func (s *Server) handleTestExpire(c *gin.Context) {
	n := s.state.ExpireFiles()
	c.JSON(http.StatusOK, gin.H{"expired": n})
}

// Run starts the server on the specified address
func (s *Server) Run(addr string) error {
	s.logger.Info("starting mock model API server", "addr", addr)
	return s.router.Run(addr)
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
