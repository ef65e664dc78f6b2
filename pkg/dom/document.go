// Package dom is the document surface the engine works on: an HTML tree parsed
// with golang.org/x/net/html plus mutation observation, queries and inline
// style edits.
//
// A Document is not safe for concurrent use. Callers serialise access the way a
// browser's UI thread would (see pkg/session).
package dom

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Mutation describes one change to the tree. A navigation is reported with the
// root as Target, no added or removed nodes and Navigated set.
type Mutation struct {
	Target    *html.Node
	Added     []*html.Node
	Removed   []*html.Node
	Navigated bool
}

// Document wraps a parsed page.
type Document struct {
	Root *html.Node
	URL  *url.URL

	mu        sync.Mutex
	observers map[int]func(Mutation)
	nextID    int
}

// Parse reads an HTML page. pageURL is the address the page was loaded from and
// drives layout detection (watch paths and the like).
func Parse(r io.Reader, pageURL string) (*Document, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &Document{Root: root, URL: u, observers: make(map[int]func(Mutation))}, nil
}

// ParseString is Parse over a string.
func ParseString(s, pageURL string) (*Document, error) {
	return Parse(strings.NewReader(s), pageURL)
}

// Path returns the page's URL path.
func (d *Document) Path() string {
	if d.URL == nil {
		return ""
	}
	return d.URL.Path
}

// Navigate moves the document to ref, resolved against the current URL, the way
// client-side routing changes the address without reloading the page. The new
// URL must keep the current origin. Navigating to the current URL is a no-op.
func (d *Document) Navigate(ref string) error {
	next, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return fmt.Errorf("navigate: %w", err)
	}
	if d.URL != nil {
		next = d.URL.ResolveReference(next)
		if next.Scheme != d.URL.Scheme || next.Host != d.URL.Host {
			return fmt.Errorf("navigate: %s is outside %s://%s", next, d.URL.Scheme, d.URL.Host)
		}
		if next.String() == d.URL.String() {
			return nil
		}
	}
	d.URL = next
	d.notify(Mutation{Target: d.Root, Navigated: true})
	return nil
}

// Render writes the current tree as HTML.
func (d *Document) Render(w io.Writer) error {
	return html.Render(w, d.Root)
}

// Observe registers fn for every subsequent mutation made through the Document.
// The returned function unregisters it.
func (d *Document) Observe(fn func(Mutation)) (cancel func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextID
	d.nextID++
	d.observers[id] = fn
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.observers, id)
	}
}

func (d *Document) notify(m Mutation) {
	d.mu.Lock()
	fns := make([]func(Mutation), 0, len(d.observers))
	for _, fn := range d.observers {
		fns = append(fns, fn)
	}
	d.mu.Unlock()

	for _, fn := range fns {
		fn(m)
	}
}

// AppendChild appends child to parent, detaching it from any previous parent.
func (d *Document) AppendChild(parent, child *html.Node) {
	var removed []*html.Node
	if old := child.Parent; old != nil {
		old.RemoveChild(child)
		removed = []*html.Node{child}
	}
	parent.AppendChild(child)
	d.notify(Mutation{Target: parent, Added: []*html.Node{child}, Removed: removed})
}

// Remove detaches n from its parent. Removing a detached node is a no-op.
func (d *Document) Remove(n *html.Node) {
	parent := n.Parent
	if parent == nil {
		return
	}
	parent.RemoveChild(n)
	d.notify(Mutation{Target: parent, Removed: []*html.Node{n}})
}

// AppendHTML parses fragment in the context of parent and appends the result.
func (d *Document) AppendHTML(parent *html.Node, fragment string) ([]*html.Node, error) {
	if parent == nil || parent.Type != html.ElementNode {
		return nil, fmt.Errorf("append html: parent must be an element")
	}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), parent)
	if err != nil {
		return nil, fmt.Errorf("parse fragment: %w", err)
	}
	for _, n := range nodes {
		parent.AppendChild(n)
	}
	if len(nodes) > 0 {
		d.notify(Mutation{Target: parent, Added: nodes})
	}
	return nodes, nil
}

// Body returns the <body> element.
func (d *Document) Body() *html.Node {
	return FindFirst(d.Root, Tag(atom.Body))
}

// Head returns the <head> element.
func (d *Document) Head() *html.Node {
	return FindFirst(d.Root, Tag(atom.Head))
}

// ElementByID returns the attached element with the given id attribute.
func (d *Document) ElementByID(id string) *html.Node {
	return FindFirst(d.Root, func(n *html.Node) bool {
		v, ok := Attr(n, "id")
		return ok && v == id
	})
}

// Contains reports whether n is attached to this document.
func (d *Document) Contains(n *html.Node) bool {
	return IsAncestor(d.Root, n)
}

// Select finds the parent for fragment insertion: "#id", "body", or a tag name.
func (d *Document) Select(selector string) *html.Node {
	selector = strings.TrimSpace(selector)
	switch {
	case selector == "" || selector == "body":
		return d.Body()
	case strings.HasPrefix(selector, "#"):
		return d.ElementByID(selector[1:])
	case strings.HasPrefix(selector, "."):
		return FindFirst(d.Root, Class(selector[1:]))
	default:
		return FindFirst(d.Root, TagName(selector))
	}
}

// AddScript appends an inline <script> to <head>. The tree is modified without
// notifying observers.
func (d *Document) AddScript(body string) *html.Node {
	head := d.Head()
	if head == nil {
		return nil
	}
	script := NewElement("script")
	script.AppendChild(&html.Node{Type: html.TextNode, Data: body})
	head.AppendChild(script)
	return script
}
