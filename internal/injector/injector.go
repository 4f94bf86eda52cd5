// Package injector applies an effective stylesheet to a live HTML document
// through a single marked <style> node.
package injector

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/pagemagic/pagemagic/internal/metrics"
	"github.com/pagemagic/pagemagic/pkg/models"
)

const (
	// MarkerAttr tags the style node owned by the injector
	MarkerAttr = "data-pagemagic"

	// DefaultFallbackTimeout bounds how long attachment waits for <head>
	DefaultFallbackTimeout = 100 * time.Millisecond
)

// StylesheetSource reads the persisted effective stylesheet of a scope
type StylesheetSource interface {
	Effective(ctx context.Context, scope models.ScopeKey) (string, bool, error)
}

// ScopeFunc resolves the scope currently active for the injector's page
type ScopeFunc func(ctx context.Context) (models.ScopeKey, error)

// Injector owns the style node of one document
type Injector struct {
	doc      *Document
	source   StylesheetSource
	scope    ScopeFunc
	fallback time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	node    *html.Node
	buffer  []string
	waiting chan struct{} // closed to stop a pending deferred attach
}

// Option configures the injector
type Option func(*Injector)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(i *Injector) {
		i.logger = logger
	}
}

// WithFallbackTimeout sets how long to wait for <head> before attaching to
// the document element instead
func WithFallbackTimeout(d time.Duration) Option {
	return func(i *Injector) {
		if d > 0 {
			i.fallback = d
		}
	}
}

// New creates the injector for doc
func New(doc *Document, source StylesheetSource, scope ScopeFunc, opts ...Option) *Injector {
	i := &Injector{
		doc:      doc,
		source:   source,
		scope:    scope,
		fallback: DefaultFallbackTimeout,
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(i)
	}

	return i
}

// Apply replaces the style content with text. Empty text removes the node.
func (i *Injector) Apply(text string) {
	if text == "" {
		i.RemoveAll()
		return
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	i.buffer = []string{text}
	i.render()
}

// Inject appends css to the current content
func (i *Injector) Inject(css string) {
	if css == "" {
		return
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	i.buffer = append(i.buffer, css)
	i.render()
}

// ReapplyFromPersisted applies the stored stylesheet of the current scope,
// or removes the style node when nothing is stored.
func (i *Injector) ReapplyFromPersisted(ctx context.Context) error {
	scope, err := i.scope(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve scope: %w", err)
	}

	css, ok, err := i.source.Effective(ctx, scope)
	if err != nil {
		return err
	}
	if !ok {
		i.RemoveAll()
		return nil
	}

	i.Apply(css)
	return nil
}

// RemoveAll deletes the style node and clears the content buffer
func (i *Injector) RemoveAll() {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.stopWaiting()
	node := i.node
	i.node = nil
	i.buffer = nil

	i.doc.Mutate(func(root *html.Node) bool {
		changed := false
		if node != nil && node.Parent != nil {
			node.Parent.RemoveChild(node)
			changed = true
		}
		// Markers left in loaded content are ours too.
		for _, n := range findMarkers(root) {
			n.Parent.RemoveChild(n)
			changed = true
		}
		return changed
	})
}

// Content returns the text currently held for the style node
func (i *Injector) Content() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return strings.Join(i.buffer, models.LayerSeparator)
}

// Attached reports whether the style node is in the document
func (i *Injector) Attached() bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.node == nil {
		return false
	}
	attached := false
	i.doc.Read(func(root *html.Node) {
		attached = contains(root, i.node)
	})
	return attached
}

// Close stops any pending deferred attachment
func (i *Injector) Close() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.stopWaiting()
}

// render writes the buffer into the style node and attaches it. Callers hold i.mu.
func (i *Injector) render() {
	if i.node == nil {
		i.node = newStyleNode()
	}
	text := strings.Join(i.buffer, models.LayerSeparator)

	attached := false
	i.doc.Mutate(func(root *html.Node) bool {
		setText(i.node, text)
		changed := dropStrayMarkers(root, i.node)
		if contains(root, i.node) {
			attached = true
			return changed
		}
		if head := findElement(root, atom.Head); head != nil {
			detach(i.node)
			head.AppendChild(i.node)
			attached = true
			return true
		}
		return changed
	})

	if attached {
		i.stopWaiting()
		return
	}
	i.deferAttach()
}

// deferAttach waits for <head> to appear. When the fallback timer fires first
// the node goes to the front of the document element instead; if there is no
// document element yet either, it keeps waiting. Callers hold i.mu.
func (i *Injector) deferAttach() {
	if i.waiting != nil {
		return
	}
	stop := make(chan struct{})
	i.waiting = stop

	changes, unsubscribe := i.doc.Observe()
	go func() {
		defer unsubscribe()

		timer := time.NewTimer(i.fallback)
		defer timer.Stop()

		force := false
		for {
			select {
			case <-stop:
				return
			case <-changes:
			case <-timer.C:
				force = true
			}
			if i.tryAttach(stop, force) {
				return
			}
		}
	}()
}

// tryAttach attaches the node if possible and reports whether waiting is over
func (i *Injector) tryAttach(stop chan struct{}, force bool) bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.waiting != stop || i.node == nil {
		return true
	}

	attached, fellBack := false, false
	i.doc.Mutate(func(root *html.Node) bool {
		dropStrayMarkers(root, i.node)
		if contains(root, i.node) {
			attached = true
			return false
		}
		if head := findElement(root, atom.Head); head != nil {
			detach(i.node)
			head.AppendChild(i.node)
			attached = true
			return true
		}
		if !force {
			return false
		}
		if el := documentElement(root); el != nil {
			detach(i.node)
			el.InsertBefore(i.node, el.FirstChild)
			attached, fellBack = true, true
			return true
		}
		return false
	})

	if !attached {
		return false
	}

	i.waiting = nil
	if fellBack {
		metrics.RecordInjectorFallback()
		i.logger.Debug("style attached by fallback timer")
	}
	return true
}

// stopWaiting cancels a pending deferred attach. Callers hold i.mu.
func (i *Injector) stopWaiting() {
	if i.waiting != nil {
		close(i.waiting)
		i.waiting = nil
	}
}

func newStyleNode() *html.Node {
	return &html.Node{
		Type:     html.ElementNode,
		Data:     "style",
		DataAtom: atom.Style,
		Attr:     []html.Attribute{{Key: MarkerAttr, Val: "true"}},
	}
}

func setText(n *html.Node, text string) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
	n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
}

func detach(n *html.Node) {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

func isMarker(n *html.Node) bool {
	if n.Type != html.ElementNode || n.DataAtom != atom.Style {
		return false
	}
	for _, a := range n.Attr {
		if a.Key == MarkerAttr {
			return true
		}
	}
	return false
}

// dropStrayMarkers removes marker nodes other than keep and reports whether
// any were removed
func dropStrayMarkers(root, keep *html.Node) bool {
	removed := false
	for _, n := range findMarkers(root) {
		if n != keep {
			detach(n)
			removed = true
		}
	}
	return removed
}

func findMarkers(root *html.Node) []*html.Node {
	var found []*html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if isMarker(n) {
			found = append(found, n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return found
}
