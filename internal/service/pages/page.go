package pages

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pagemagic/pagemagic/internal/injector"
	"github.com/pagemagic/pagemagic/internal/logging"
	"github.com/pagemagic/pagemagic/internal/service/generator"
	"github.com/pagemagic/pagemagic/pkg/models"
)

// Page is one hosted document with its injector and generation session.
// Its bridge methods report failures in a BridgeResult instead of an error.
type Page struct {
	id       string
	url      string
	openedAt time.Time

	doc      *injector.Document
	injector *injector.Injector
	session  *generator.Session
	resolver ScopeResolver

	mu         sync.Mutex
	hasChanges bool
}

// ID returns the page id
func (p *Page) ID() string { return p.id }

// URL returns the page URL
func (p *Page) URL() string { return p.url }

// HTML renders the document, including the style node when attached
func (p *Page) HTML() (string, error) {
	return p.doc.HTML()
}

// Title returns the document title
func (p *Page) Title() string {
	return p.doc.Title()
}

// Scope returns the page's active scope under the current domain-wide flag
func (p *Page) Scope(ctx context.Context) (models.ScopeKey, error) {
	return p.resolver.Resolve(ctx, p.url)
}

// InjectCSS appends css to the page's style node
func (p *Page) InjectCSS(css string) models.BridgeResult {
	if css == "" {
		return models.BridgeResult{Success: false, Error: "css is required"}
	}
	p.injector.Inject(css)
	p.MarkChanged()
	return models.BridgeResult{Success: true}
}

// RemoveCSS removes the page's style node
func (p *Page) RemoveCSS() models.BridgeResult {
	p.injector.RemoveAll()
	return models.BridgeResult{Success: true}
}

// ReloadCSS applies the stored stylesheet of the page's current scope
func (p *Page) ReloadCSS(ctx context.Context) models.BridgeResult {
	if err := p.injector.ReapplyFromPersisted(ctx); err != nil {
		logging.Warn(ctx, "failed to reload page styles", slog.String("error", err.Error()))
		return models.BridgeResult{Success: false, Error: err.Error()}
	}
	return models.BridgeResult{Success: true}
}

// Generate runs a styling request for this page and applies the result
func (p *Page) Generate(ctx context.Context, prompt string) (*models.GenerationResult, error) {
	ctx = logging.WithPageID(ctx, p.id)

	scope, err := p.Scope(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve scope: %w", err)
	}

	result, err := p.session.Generate(ctx, generator.Request{
		Prompt:   prompt,
		Scope:    scope,
		Snapshot: p.HTML,
	})
	if err != nil {
		return nil, err
	}

	p.MarkChanged()
	reload := p.ReloadCSS(ctx)
	result.Applied = reload.Success
	if !reload.Success {
		result.Warnings = append(result.Warnings, "generated CSS was saved but could not be applied: "+reload.Error)
	}
	return result, nil
}

// MarkChanged records that styles were changed while the page was open
func (p *Page) MarkChanged() {
	p.mu.Lock()
	p.hasChanges = true
	p.mu.Unlock()
}

// Info returns a summary of the page
func (p *Page) Info(ctx context.Context) models.PageInfo {
	p.mu.Lock()
	changed := p.hasChanges
	p.mu.Unlock()

	info := models.PageInfo{
		ID:         p.id,
		URL:        p.url,
		Title:      p.Title(),
		HasHandle:  p.session.Handle() != "",
		HasChanges: changed,
		StyleBytes: len(p.injector.Content()),
		OpenedAt:   p.openedAt,
	}

	if scope, err := p.Scope(ctx); err == nil {
		info.Scope = scope
	}
	if domainWide, err := p.resolver.DomainWide(ctx); err == nil {
		info.DomainWide = domainWide
	}
	return info
}

// close stops the injector and releases the snapshot. An in-flight
// generation is left to finish.
func (p *Page) close(ctx context.Context) {
	p.injector.Close()
	p.session.Close(ctx)
}
