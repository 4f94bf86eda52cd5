package metrics

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP request metrics for API server
var (
	// HTTPRequestDuration tracks the duration of HTTP requests
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests by method, path, and status",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestsTotal counts the total number of HTTP requests
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests by method, path, and status",
		},
		[]string{"method", "path", "status"},
	)
)

// Generation pipeline metrics
var (
	// GenerationsTotal counts styling requests by model and outcome
	GenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagemagic_generations_total",
			Help: "Total number of styling requests by model and status",
		},
		[]string{"model", "status"},
	)

	// GenerationDuration tracks end-to-end generation latency
	GenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pagemagic_generation_duration_seconds",
			Help:    "Duration of styling requests from upload to injection",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10), // 250ms to ~2min
		},
		[]string{"model"},
	)

	// CostUSD accumulates spend by model
	CostUSD = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagemagic_cost_usd_total",
			Help: "Total model API spend in USD by model",
		},
		[]string{"model"},
	)

	// TokensTotal counts tokens by model and bucket
	TokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagemagic_tokens_total",
			Help: "Total tokens by model and type (input, output, cache_5m, cache_1h, cache_read)",
		},
		[]string{"model", "type"},
	)

	// SanitizerFallbacks counts responses where no CSS boundaries were found
	SanitizerFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pagemagic_sanitizer_fallbacks_total",
			Help: "Total number of model responses returned unchanged because no CSS boundaries were detected",
		},
	)

	// FileHandles counts page snapshot uploads and releases
	FileHandles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagemagic_file_handles_total",
			Help: "Total file handle operations by op (upload, release, release_failed)",
		},
		[]string{"op"},
	)

	// StaleHandleRetries counts automatic re-upload retries
	StaleHandleRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pagemagic_stale_handle_retries_total",
			Help: "Total number of generations retried after the uploaded page snapshot expired",
		},
	)

	// ModelAPICalls counts model API calls by operation and status
	ModelAPICalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagemagic_model_api_calls_total",
			Help: "Total model API calls by operation and status",
		},
		[]string{"operation", "status"},
	)

	// ModelAPIResponseTime tracks model API latency by operation
	ModelAPIResponseTime = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pagemagic_model_api_response_time_seconds",
			Help:    "Model API response time by operation",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)

// Style state metrics
var (
	// StyleMutations counts style layer stack mutations by operation
	StyleMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagemagic_style_mutations_total",
			Help: "Total style layer mutations by op (append, remove, toggle, toggle_all, clear, migrate)",
		},
		[]string{"op"},
	)

	// CustomizedScopes tracks how many scopes currently have history
	CustomizedScopes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pagemagic_customized_scopes",
			Help: "Number of scopes with stored style history",
		},
	)

	// PagesOpen tracks hosted pages
	PagesOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pagemagic_pages_open",
			Help: "Number of pages currently hosted",
		},
	)

	// InjectorFallbacks counts style nodes attached by the fallback timer
	InjectorFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pagemagic_injector_fallback_attach_total",
			Help: "Total number of style nodes attached by the fallback timer instead of the document observer",
		},
	)
)

// RecordHTTPRequest records the duration and increments the counter for an HTTP request
func RecordHTTPRequest(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordGeneration records a finished styling request
// status should be "success" or the error class, e.g. "rate_limited"
func RecordGeneration(model, status string, duration time.Duration) {
	GenerationsTotal.WithLabelValues(model, status).Inc()
	if status == "success" {
		GenerationDuration.WithLabelValues(model).Observe(duration.Seconds())
	}
}

// RecordUsage records the tokens and spend of one call
func RecordUsage(model string, input, output, cache5m, cache1h, cacheRead int64, cost float64) {
	TokensTotal.WithLabelValues(model, "input").Add(float64(input))
	TokensTotal.WithLabelValues(model, "output").Add(float64(output))
	TokensTotal.WithLabelValues(model, "cache_5m").Add(float64(cache5m))
	TokensTotal.WithLabelValues(model, "cache_1h").Add(float64(cache1h))
	TokensTotal.WithLabelValues(model, "cache_read").Add(float64(cacheRead))
	CostUSD.WithLabelValues(model).Add(cost)
}

// RecordSanitizerFallback increments the sanitizer fallback counter
func RecordSanitizerFallback() {
	SanitizerFallbacks.Inc()
}

// RecordFileHandle records an upload or release of a page snapshot
func RecordFileHandle(op string) {
	FileHandles.WithLabelValues(op).Inc()
}

// RecordStaleHandleRetry increments the stale handle retry counter
func RecordStaleHandleRetry() {
	StaleHandleRetries.Inc()
}

// RecordModelAPICall records a model API call with its status and latency
// status should be "success" or "error"
func RecordModelAPICall(operation, status string, duration time.Duration) {
	ModelAPICalls.WithLabelValues(operation, status).Inc()
	ModelAPIResponseTime.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordStyleMutation increments the style mutation counter
func RecordStyleMutation(op string) {
	StyleMutations.WithLabelValues(op).Inc()
}

// SetPagesOpen sets the hosted page gauge
func SetPagesOpen(n int) {
	PagesOpen.Set(float64(n))
}

// RecordInjectorFallback increments the injector fallback counter
func RecordInjectorFallback() {
	InjectorFallbacks.Inc()
}

// InitializeScopeMetrics populates the customized scope gauge from storage on startup
func InitializeScopeMetrics(count int) {
	CustomizedScopes.Set(float64(count))
	slog.Info("initialized scope metrics from storage", slog.Int("customized_scopes", count))
}

// SetCustomizedScopes updates the customized scope gauge
func SetCustomizedScopes(count int) {
	CustomizedScopes.Set(float64(count))
}
