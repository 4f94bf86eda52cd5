package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pagemagic/pagemagic/internal/api"
	"github.com/pagemagic/pagemagic/internal/config"
	"github.com/pagemagic/pagemagic/internal/llm/anthropic"
	"github.com/pagemagic/pagemagic/internal/logging"
	"github.com/pagemagic/pagemagic/internal/metrics"
	"github.com/pagemagic/pagemagic/internal/service/generator"
	"github.com/pagemagic/pagemagic/internal/service/ledger"
	"github.com/pagemagic/pagemagic/internal/service/pages"
	"github.com/pagemagic/pagemagic/internal/service/scope"
	"github.com/pagemagic/pagemagic/internal/service/settings"
	"github.com/pagemagic/pagemagic/internal/service/styles"
	"github.com/pagemagic/pagemagic/internal/storage"
)

// Version is set at build time
var Version = "0.1.0"

func loadConfig() (*config.Config, error) {
	if path := os.Getenv("PAGEMAGIC_CONFIG"); path != "" {
		return config.Load(path)
	}
	return config.LoadFromEnv()
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := logging.Setup(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	logger.Info("starting pagemagic server",
		slog.String("version", Version),
		slog.String("host", cfg.Server.Host),
		slog.Int("port", cfg.Server.Port))

	db, err := storage.New(cfg.Database.Path)
	if err != nil {
		logger.Error("failed to initialize database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.Migrate(ctx); err != nil {
		logger.Error("failed to run migrations", slog.String("error", err.Error()))
		os.Exit(1)
	}

	store := storage.NewKVStore(db)

	// Services
	stack := styles.New(store, styles.WithLogger(logger))
	resolver := scope.New(store, scope.WithLogger(logger))
	usage := ledger.New(store, ledger.WithLogger(logger))

	// The client reads the credential from settings on every call, so the
	// two are wired through a late-bound key source.
	keys := &lateKeys{}
	client := anthropic.NewClient(keys,
		anthropic.WithBaseURL(cfg.Anthropic.BaseURL),
		anthropic.WithHTTPClient(&http.Client{Timeout: cfg.Anthropic.Timeout}),
		anthropic.WithRateLimit(cfg.Anthropic.RequestsPerSecond),
		anthropic.WithMaxTokens(cfg.Anthropic.MaxTokens),
		anthropic.WithLogger(logger))

	settingsSvc, err := settings.New(store, client, usage,
		settings.WithLogger(logger),
		settings.WithDefaultModel(cfg.Anthropic.DefaultModel),
		settings.WithCacheSize(cfg.Models.CacheSize))
	if err != nil {
		logger.Error("failed to initialize settings", slog.String("error", err.Error()))
		os.Exit(1)
	}
	keys.src = settingsSvc

	if cfg.Anthropic.APIKey != "" {
		seeded, err := settingsSvc.SeedAPIKey(ctx, cfg.Anthropic.APIKey)
		if err != nil {
			logger.Error("failed to seed API key", slog.String("error", err.Error()))
			os.Exit(1)
		}
		if seeded {
			logger.Info("stored API key from configuration")
		}
	}

	gen := generator.New(client, stack, usage, settingsSvc,
		generator.WithLogger(logger),
		generator.WithMaxTokens(cfg.Anthropic.MaxTokens))

	registry := pages.New(gen, resolver, stack,
		pages.WithLogger(logger),
		pages.WithFetchTimeout(cfg.Pages.FetchTimeout),
		pages.WithMaxBodyBytes(cfg.Pages.MaxBodyBytes),
		pages.WithUserAgent(cfg.Pages.UserAgent),
		pages.WithFallbackTimeout(cfg.Injector.FallbackTimeout))

	if sites, err := stack.Sites(ctx); err != nil {
		logger.Warn("failed to count customized sites", slog.String("error", err.Error()))
	} else {
		metrics.InitializeScopeMetrics(len(sites))
	}

	server := api.New(registry, stack, resolver, usage, settingsSvc,
		api.WithLogger(logger),
		api.WithHost(cfg.Server.Host),
		api.WithPort(cfg.Server.Port),
		api.WithMaxBodyBytes(cfg.Pages.MaxBodyBytes+64<<10))

	server.SetReady(true)

	// Handle shutdown
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		logger.Info("shutting down...")
		server.SetReady(false)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", slog.String("error", err.Error()))
		}

		// Release every uploaded snapshot once no request can start a new one
		registry.CloseAll(shutdownCtx)
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	<-stopped
	logger.Info("server stopped")
}

// lateKeys forwards to the settings service once it exists
type lateKeys struct {
	src *settings.Service
}

func (k *lateKeys) APIKey(ctx context.Context) (string, error) {
	if k.src == nil {
		return "", nil
	}
	return k.src.APIKey(ctx)
}
