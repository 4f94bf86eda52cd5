package injector

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Document is a live HTML tree. Every read and write goes through its lock,
// and structural changes are announced to observers.
type Document struct {
	mu   sync.Mutex
	root *html.Node
	subs map[uint64]chan struct{}
	next uint64
}

// NewDocument returns an empty document, the state of a page before any
// content has arrived.
func NewDocument() *Document {
	return &Document{
		root: &html.Node{Type: html.DocumentNode},
		subs: make(map[uint64]chan struct{}),
	}
}

// ParseDocument parses r into a new document
func ParseDocument(r io.Reader) (*Document, error) {
	d := NewDocument()
	if err := d.Load(r); err != nil {
		return nil, err
	}
	return d, nil
}

// Load parses r and replaces the document's content with it
func (d *Document) Load(r io.Reader) error {
	parsed, err := html.Parse(r)
	if err != nil {
		return fmt.Errorf("failed to parse document: %w", err)
	}

	d.Mutate(func(root *html.Node) bool {
		for c := root.FirstChild; c != nil; {
			next := c.NextSibling
			root.RemoveChild(c)
			c = next
		}
		for c := parsed.FirstChild; c != nil; {
			next := c.NextSibling
			parsed.RemoveChild(c)
			root.AppendChild(c)
			c = next
		}
		return true
	})
	return nil
}

// Mutate runs fn with the document locked. Observers are notified when fn
// reports that it changed the tree.
func (d *Document) Mutate(fn func(root *html.Node) bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if fn(d.root) {
		for _, ch := range d.subs {
			select {
			case ch <- struct{}{}:
			default:
			}
		}
	}
}

// Read runs fn with the document locked. fn must not modify the tree.
func (d *Document) Read(fn func(root *html.Node)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(d.root)
}

// Observe subscribes to structural changes. Notifications coalesce; the
// returned func unsubscribes.
func (d *Document) Observe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	d.mu.Lock()
	id := d.next
	d.next++
	d.subs[id] = ch
	d.mu.Unlock()

	return ch, func() {
		d.mu.Lock()
		delete(d.subs, id)
		d.mu.Unlock()
	}
}

// HTML renders the whole document
func (d *Document) HTML() (string, error) {
	var buf bytes.Buffer
	var err error
	d.Read(func(root *html.Node) {
		err = html.Render(&buf, root)
	})
	if err != nil {
		return "", fmt.Errorf("failed to render document: %w", err)
	}
	return buf.String(), nil
}

// Title returns the trimmed text of the first <title> element
func (d *Document) Title() string {
	var title string
	d.Read(func(root *html.Node) {
		if n := findElement(root, atom.Title); n != nil {
			title = strings.TrimSpace(textContent(n))
		}
	})
	return title
}

// documentElement returns the <html> element, if present
func documentElement(root *html.Node) *html.Node {
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return c
		}
	}
	return nil
}

// findElement returns the first element with the given tag in document order
func findElement(n *html.Node, tag atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func textContent(n *html.Node) string {
	var buf strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			buf.WriteString(c.Data)
		}
	}
	return buf.String()
}

// contains reports whether n is currently part of the tree under root
func contains(root, n *html.Node) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if p == root {
			return true
		}
	}
	return false
}
