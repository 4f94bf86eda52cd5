// Package pages hosts the documents being styled. Each page owns a live
// document, the injector applying its stylesheet and a generation session.
package pages

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/pagemagic/pagemagic/internal/injector"
	"github.com/pagemagic/pagemagic/internal/logging"
	"github.com/pagemagic/pagemagic/internal/metrics"
	"github.com/pagemagic/pagemagic/internal/service/generator"
	"github.com/pagemagic/pagemagic/internal/service/scope"
	"github.com/pagemagic/pagemagic/pkg/models"
)

const (
	defaultFetchTimeout = 30 * time.Second
	defaultMaxBodyBytes = 10 << 20
	defaultUserAgent    = "pagemagic/1.0"
	closeConcurrency    = 8
)

var (
	// ErrPageNotFound is returned for unknown page ids
	ErrPageNotFound = errors.New("page not found")
	// ErrFetchFailed is returned when a page URL could not be loaded
	ErrFetchFailed = errors.New("failed to fetch page")
	// ErrPageTooLarge is returned when a fetched page exceeds the size cap
	ErrPageTooLarge = errors.New("page exceeds size limit")
)

// ScopeResolver resolves the active scope of a page URL
type ScopeResolver interface {
	Resolve(ctx context.Context, pageURL string) (models.ScopeKey, error)
	DomainWide(ctx context.Context) (bool, error)
}

// SessionFactory creates a generation session per page
type SessionFactory interface {
	NewSession() *generator.Session
}

// OpenRequest opens a page from a URL, with HTML supplied by the caller or
// fetched from the URL when empty
type OpenRequest struct {
	URL  string
	HTML string
}

// Registry tracks the open pages
type Registry struct {
	sessions SessionFactory
	resolver ScopeResolver
	styles   injector.StylesheetSource

	httpClient   *http.Client
	maxBodyBytes int64
	userAgent    string
	fallback     time.Duration
	logger       *slog.Logger

	// For time mocking in tests
	now func() time.Time

	mu    sync.RWMutex
	pages map[string]*Page
}

// Option configures the registry
type Option func(*Registry)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithHTTPClient sets the client used to fetch pages
func WithHTTPClient(client *http.Client) Option {
	return func(r *Registry) {
		r.httpClient = client
	}
}

// WithFetchTimeout sets the page fetch timeout
func WithFetchTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.httpClient = &http.Client{Timeout: d}
		}
	}
}

// WithMaxBodyBytes caps the size of fetched pages
func WithMaxBodyBytes(n int64) Option {
	return func(r *Registry) {
		if n > 0 {
			r.maxBodyBytes = n
		}
	}
}

// WithUserAgent sets the User-Agent of page fetches
func WithUserAgent(ua string) Option {
	return func(r *Registry) {
		if ua != "" {
			r.userAgent = ua
		}
	}
}

// WithFallbackTimeout sets the injector's head wait
func WithFallbackTimeout(d time.Duration) Option {
	return func(r *Registry) {
		r.fallback = d
	}
}

// WithTimeFunc sets a custom time function (for testing)
func WithTimeFunc(fn func() time.Time) Option {
	return func(r *Registry) {
		r.now = fn
	}
}

// New creates a new page registry
func New(sessions SessionFactory, resolver ScopeResolver, styles injector.StylesheetSource, opts ...Option) *Registry {
	r := &Registry{
		sessions:     sessions,
		resolver:     resolver,
		styles:       styles,
		httpClient:   &http.Client{Timeout: defaultFetchTimeout},
		maxBodyBytes: defaultMaxBodyBytes,
		userAgent:    defaultUserAgent,
		fallback:     injector.DefaultFallbackTimeout,
		logger:       slog.Default(),
		now:          time.Now,
		pages:        make(map[string]*Page),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Open hosts a new page. The stored stylesheet is applied before the content
// is loaded, so it attaches as soon as the document has a head.
func (r *Registry) Open(ctx context.Context, req OpenRequest) (*Page, error) {
	pageURL := strings.TrimSpace(req.URL)
	if _, _, err := scope.SplitURL(pageURL); err != nil {
		return nil, err
	}

	content := req.HTML
	if content == "" {
		fetched, err := r.fetch(ctx, pageURL)
		if err != nil {
			return nil, err
		}
		content = fetched
	}

	id := uuid.New().String()
	ctx = logging.WithPageID(ctx, id)

	p := &Page{
		id:       id,
		url:      pageURL,
		openedAt: r.now(),
		doc:      injector.NewDocument(),
		session:  r.sessions.NewSession(),
		resolver: r.resolver,
	}
	p.injector = injector.New(p.doc, r.styles, p.Scope,
		injector.WithFallbackTimeout(r.fallback),
		injector.WithLogger(r.logger.With(slog.String("page_id", id))))

	if res := p.ReloadCSS(ctx); !res.Success {
		r.logger.Warn("failed to apply stored styles on open",
			slog.String("page_id", id),
			slog.String("error", res.Error))
	}

	if err := p.doc.Load(strings.NewReader(content)); err != nil {
		p.close(ctx)
		return nil, err
	}

	r.mu.Lock()
	r.pages[id] = p
	count := len(r.pages)
	r.mu.Unlock()

	metrics.SetPagesOpen(count)
	logging.Info(ctx, "page opened",
		slog.String("url", pageURL),
		slog.Int("bytes", len(content)),
		slog.Bool("fetched", req.HTML == ""))

	return p, nil
}

// Get returns an open page
func (r *Registry) Get(id string) (*Page, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.pages[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPageNotFound, id)
	}
	return p, nil
}

// List returns every open page, oldest first
func (r *Registry) List(ctx context.Context) []models.PageInfo {
	r.mu.RLock()
	open := make([]*Page, 0, len(r.pages))
	for _, p := range r.pages {
		open = append(open, p)
	}
	r.mu.RUnlock()

	sort.Slice(open, func(i, j int) bool {
		if open[i].openedAt.Equal(open[j].openedAt) {
			return open[i].id < open[j].id
		}
		return open[i].openedAt.Before(open[j].openedAt)
	})

	infos := make([]models.PageInfo, len(open))
	for i, p := range open {
		infos[i] = p.Info(ctx)
	}
	return infos
}

// Close removes a page and releases its snapshot
func (r *Registry) Close(ctx context.Context, id string) error {
	r.mu.Lock()
	p, ok := r.pages[id]
	delete(r.pages, id)
	count := len(r.pages)
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrPageNotFound, id)
	}

	p.close(logging.WithPageID(ctx, id))
	metrics.SetPagesOpen(count)
	r.logger.Info("page closed", slog.String("page_id", id))
	return nil
}

// CloseAll closes every page, releasing their snapshots concurrently
func (r *Registry) CloseAll(ctx context.Context) {
	r.mu.Lock()
	open := r.pages
	r.pages = make(map[string]*Page)
	r.mu.Unlock()

	var g errgroup.Group
	g.SetLimit(closeConcurrency)
	for id, p := range open {
		id, p := id, p
		g.Go(func() error {
			p.close(logging.WithPageID(ctx, id))
			return nil
		})
	}
	_ = g.Wait()

	metrics.SetPagesOpen(0)
	if len(open) > 0 {
		r.logger.Info("all pages closed", slog.Int("count", len(open)))
	}
}

// ReloadAll reapplies stored styles on every page, after changes that affect
// more than one scope
func (r *Registry) ReloadAll(ctx context.Context) {
	r.mu.RLock()
	open := make([]*Page, 0, len(r.pages))
	for _, p := range r.pages {
		open = append(open, p)
	}
	r.mu.RUnlock()

	for _, p := range open {
		p.ReloadCSS(logging.WithPageID(ctx, p.id))
	}
}

// fetch loads a page body, capped at maxBodyBytes
func (r *Registry) fetch(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	req.Header.Set("User-Agent", r.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: HTTP %d", ErrFetchFailed, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, r.maxBodyBytes+1))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	if int64(len(body)) > r.maxBodyBytes {
		return "", fmt.Errorf("%w: more than %d bytes", ErrPageTooLarge, r.maxBodyBytes)
	}
	return string(body), nil
}
