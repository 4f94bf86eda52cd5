package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"runtime/debug"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pagemagic/pagemagic/internal/logging"
	"github.com/pagemagic/pagemagic/internal/metrics"
	"github.com/pagemagic/pagemagic/internal/service/ledger"
	"github.com/pagemagic/pagemagic/internal/service/pages"
	"github.com/pagemagic/pagemagic/internal/service/scope"
	"github.com/pagemagic/pagemagic/internal/service/settings"
	"github.com/pagemagic/pagemagic/internal/service/styles"
)

// Pages can be posted inline, so the body limit tracks the page size cap
// plus room for the JSON envelope.
const defaultMaxBodyBytes = 10<<20 + 64<<10

// Server is the HTTP API server
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	logger     *slog.Logger

	// Services
	pages    *pages.Registry
	styles   *styles.Stack
	resolver *scope.Resolver
	ledger   *ledger.Ledger
	settings *settings.Service

	// Configuration
	host         string
	port         int
	maxBodyBytes int64

	// Readiness state (atomic for thread-safe access)
	ready atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithHost sets the server host
func WithHost(host string) Option {
	return func(s *Server) {
		s.host = host
	}
}

// WithPort sets the server port
func WithPort(port int) Option {
	return func(s *Server) {
		s.port = port
	}
}

// WithMaxBodyBytes sets the request body limit
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBodyBytes = n
		}
	}
}

// New creates a new API server
func New(
	reg *pages.Registry,
	stack *styles.Stack,
	resolver *scope.Resolver,
	usage *ledger.Ledger,
	settingsSvc *settings.Service,
	opts ...Option,
) *Server {
	s := &Server{
		logger:       slog.Default(),
		pages:        reg,
		styles:       stack,
		resolver:     resolver,
		ledger:       usage,
		settings:     settingsSvc,
		host:         "127.0.0.1",
		port:         8080,
		maxBodyBytes: defaultMaxBodyBytes,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.setupRouter()
	return s
}

// SetReady sets the server readiness state
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
	s.logger.Info("server readiness changed", slog.Bool("ready", ready))
}

// IsReady returns whether the server is ready to accept traffic
func (s *Server) IsReady() bool {
	return s.ready.Load()
}

// setupRouter configures the Gin router
func (s *Server) setupRouter() {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(s.requestIDMiddleware())
	router.Use(s.metricsMiddleware())
	router.Use(s.bodySizeLimitMiddleware(s.maxBodyBytes))
	router.Use(s.loggingMiddleware())
	router.Use(s.recoveryMiddleware())

	router.GET("/health", s.handleHealth)
	router.GET("/ready", s.handleReady)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		// Pages
		v1.POST("/pages", s.handleOpenPage)
		v1.GET("/pages", s.handleListPages)
		v1.GET("/pages/:id", s.handleGetPage)
		v1.DELETE("/pages/:id", s.handleClosePage)
		v1.GET("/pages/:id/html", s.handleGetPageHTML)
		v1.GET("/pages/:id/title", s.handleGetPageTitle)
		v1.POST("/pages/:id/css/inject", s.handleInjectCSS)
		v1.POST("/pages/:id/css/remove", s.handleRemoveCSS)
		v1.POST("/pages/:id/css/reload", s.handleReloadCSS)

		// Generation
		v1.POST("/pages/:id/generate", s.handleGenerate)

		// History of the page's active scope
		v1.GET("/pages/:id/history", s.handleListHistory)
		v1.POST("/pages/:id/history/toggle-all", s.handleToggleAllHistory)
		v1.DELETE("/pages/:id/history", s.handleClearHistory)
		v1.POST("/pages/:id/history/:entry/toggle", s.handleToggleHistory)
		v1.POST("/pages/:id/history/:entry/edit", s.handleEditHistory)
		v1.DELETE("/pages/:id/history/:entry", s.handleRemoveHistory)

		// Scope
		v1.GET("/scope", s.handleGetScope)
		v1.PUT("/scope", s.handleSetScope)

		// Usage
		v1.GET("/usage/daily", s.handleGetDailyUsage)
		v1.GET("/usage/days", s.handleListUsageDays)
		v1.GET("/usage/total", s.handleGetTotalUsage)
		v1.DELETE("/usage", s.handleClearUsage)

		// Settings
		v1.GET("/settings", s.handleGetSettings)
		v1.PUT("/settings", s.handleUpdateSettings)
		v1.GET("/models", s.handleListModels)

		// Data management
		v1.GET("/sites", s.handleListSites)
		v1.DELETE("/sites", s.handleClearSite)
		v1.DELETE("/styles", s.handleClearAllStyles)
		v1.POST("/reset", s.handleFactoryReset)
	}

	s.router = router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	// Generation calls can take most of a minute, so writes get a long deadline.
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      3 * time.Minute,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	s.logger.Info("starting API server", slog.String("addr", addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Router returns the Gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Middleware

// validRequestIDRegex allows alphanumeric, dots, underscores, and hyphens up to 128 chars.
var validRequestIDRegex = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,128}$`)

func isValidRequestID(id string) bool {
	return id != "" && validRequestIDRegex.MatchString(id)
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if !isValidRequestID(requestID) {
			requestID = uuid.New().String()
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)
		c.Request = c.Request.WithContext(logging.WithRequestID(c.Request.Context(), requestID))
		c.Next()
	}
}

func (s *Server) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		// Route patterns keep page ids out of the label set
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		metrics.RecordHTTPRequest(c.Request.Method, path, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		s.logger.Info("request completed",
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("latency", time.Since(start)),
			slog.String("request_id", c.GetString("request_id")),
			slog.String("client_ip", c.ClientIP()))
	}
}

func (s *Server) recoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic recovered",
					slog.Any("error", err),
					slog.String("stack", string(debug.Stack())),
					slog.String("request_id", c.GetString("request_id")))

				c.JSON(http.StatusInternalServerError, ErrorResponse{
					Error:     "internal server error",
					RequestID: c.GetString("request_id"),
				})
				c.Abort()
			}
		}()
		c.Next()
	}
}

func (s *Server) bodySizeLimitMiddleware(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
