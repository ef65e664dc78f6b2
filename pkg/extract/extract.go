// Package extract derives item identifiers from page containers. Each strategy
// is a pure function of the current tree; Extract applies them in order and the
// first match wins.
package extract

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/cases"

	"media-augment-go/pkg/dom"
	"media-augment-go/pkg/types"
)

// IDAttributes are the identifying attributes checked by ByAttribute, in order.
// Generic names such as data-id are left out; page wrappers use them for their
// own purposes.
var IDAttributes = []string{"data-gif-id", "data-item-id"}

var (
	pagePathPattern  = regexp.MustCompile(`/(?:watch|ifr)/([^/?#]+)`)
	watchPathPattern = regexp.MustCompile(`/watch/([^/?#]+)`)
)

// View is what a strategy sees: the container plus page context.
type View struct {
	Container *html.Node
	// PagePath is the document's URL path.
	PagePath string
	// Videos are the page's video elements in document order.
	Videos []*html.Node
}

// Strategy yields an identifier for a view, or false.
type Strategy func(View) (types.ItemID, bool)

// Extractor composes strategies.
type Extractor struct {
	strategies []Strategy
}

// New returns the default chain for a site domain such as "redgifs.com":
// attribute, media URL, page path, anchor href.
func New(domain string) *Extractor {
	return NewWith(
		ByAttribute,
		ByMediaURL(MediaURLPattern(domain)),
		ByPagePath,
		ByAnchorHref,
	)
}

// NewWith builds an extractor from an explicit strategy list.
func NewWith(strategies ...Strategy) *Extractor {
	return &Extractor{strategies: strategies}
}

// Extract returns the first strategy match.
func (e *Extractor) Extract(v View) (types.ItemID, bool) {
	if v.Container == nil {
		return "", false
	}
	for _, s := range e.strategies {
		if id, ok := s(v); ok && id != "" {
			return id, true
		}
	}
	return "", false
}

// ByAttribute reads an identifying attribute from the container or its nearest
// ancestor carrying one. An ancestor only counts when it encloses no more than
// one video; a wrapper around several items identifies none of them.
//
// Precondition: none.
func ByAttribute(v View) (types.ItemID, bool) {
	for n := v.Container; n != nil; n = n.Parent {
		val, ok := idAttribute(n)
		if !ok {
			continue
		}
		if n != v.Container && len(dom.FindAll(n, dom.Tag(atom.Video))) > 1 {
			return "", false
		}
		return types.ItemID(val), true
	}
	return "", false
}

func idAttribute(n *html.Node) (string, bool) {
	for _, key := range IDAttributes {
		if val, ok := dom.Attr(n, key); ok && strings.TrimSpace(val) != "" {
			return strings.TrimSpace(val), true
		}
	}
	return "", false
}

// MediaURLPattern matches media and thumbnail host URLs of the form
// https://media.<domain>/<Id>[-suffix].<ext> and https://thumbs<n>.<domain>/...
func MediaURLPattern(domain string) *regexp.Regexp {
	return regexp.MustCompile(`^(?:https?:)?//(?:media|thumbs\d*)\.` + regexp.QuoteMeta(domain) +
		`/([A-Za-z0-9]+)(?:-[^/?#]*)?\.(?:mp4|webm|m4v|jpg|jpeg|png|webp)(?:[?#].*)?$`)
}

// ByMediaURL matches the src or poster of video elements in the container
// (including the container itself) and the src of nested <source> elements.
//
// Precondition: the container holds a video whose media URL is on a known host.
func ByMediaURL(pattern *regexp.Regexp) Strategy {
	return func(v View) (types.ItemID, bool) {
		for _, candidate := range mediaURLs(v.Container) {
			if m := pattern.FindStringSubmatch(candidate); m != nil {
				return types.ItemID(m[1]), true
			}
		}
		return "", false
	}
}

func mediaURLs(container *html.Node) []string {
	videos := dom.FindAll(container, dom.Tag(atom.Video))
	if dom.Tag(atom.Video)(container) {
		videos = append([]*html.Node{container}, videos...)
	}
	var out []string
	for _, video := range videos {
		for _, key := range []string{"src", "poster"} {
			if val, ok := dom.Attr(video, key); ok && val != "" {
				out = append(out, val)
			}
		}
		for _, source := range dom.FindAll(video, dom.Tag(atom.Source)) {
			if val, ok := dom.Attr(source, "src"); ok && val != "" {
				out = append(out, val)
			}
		}
	}
	return out
}

// PageID returns the identifier embedded in a watch or embed path.
func PageID(path string) (types.ItemID, bool) {
	m := pagePathPattern.FindStringSubmatch(path)
	if m == nil {
		return "", false
	}
	return types.ItemID(m[1]), true
}

// WatchID returns the identifier embedded in a /watch/<id> href.
func WatchID(href string) (types.ItemID, bool) {
	if u, err := url.Parse(href); err == nil {
		href = u.Path
	}
	m := watchPathPattern.FindStringSubmatch(href)
	if m == nil {
		return "", false
	}
	return types.ItemID(m[1]), true
}

// SelectTarget picks the video a single-item page is about: the first whose
// src or poster contains id case-insensitively, otherwise the only video on the
// page, otherwise none.
func SelectTarget(videos []*html.Node, id types.ItemID) *html.Node {
	fold := cases.Fold() // a Caser is stateful; one per call
	needle := fold.String(string(id))
	for _, video := range videos {
		for _, key := range []string{"src", "poster"} {
			val, _ := dom.Attr(video, key)
			if val != "" && strings.Contains(fold.String(val), needle) {
				return video
			}
		}
	}
	if len(videos) == 1 {
		return videos[0]
	}
	return nil
}

// ByPagePath applies on single-item pages: the path identifier is used when the
// container holds the disambiguated target video.
//
// Precondition: the page path matches /watch/<id> or /ifr/<id>.
func ByPagePath(v View) (types.ItemID, bool) {
	id, ok := PageID(v.PagePath)
	if !ok {
		return "", false
	}
	target := SelectTarget(v.Videos, id)
	if target == nil || !dom.IsAncestor(v.Container, target) {
		return "", false
	}
	return id, true
}

// ByAnchorHref reads the identifier from a grid anchor's destination.
//
// Precondition: the container is an <a> element.
func ByAnchorHref(v View) (types.ItemID, bool) {
	if !dom.Tag(atom.A)(v.Container) {
		return "", false
	}
	href, ok := dom.Attr(v.Container, "href")
	if !ok {
		return "", false
	}
	return WatchID(href)
}
