// Package scanner walks a page and injects a control into every item container
// it can correlate with an item identifier. Scans are idempotent: a container
// that already holds a control is left alone.
package scanner

import (
	"fmt"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"media-augment-go/pkg/control"
	"media-augment-go/pkg/dom"
	"media-augment-go/pkg/extract"
	"media-augment-go/pkg/logging"
	"media-augment-go/pkg/types"
)

// PlayerClass is the class token of player wrappers.
const PlayerClass = "Player"

// Injection records one control added by a scan.
type Injection struct {
	ID      types.ItemID    `json:"id"`
	Variant types.Variant   `json:"variant"`
	Shape   types.PageShape `json:"shape"`
}

// Report summarizes one scan.
type Report struct {
	Injected []Injection `json:"injected"`
	// Present counts containers that already held a control.
	Present int `json:"present"`
	// Unresolved counts containers without an identifier this pass.
	Unresolved int `json:"unresolved"`
	// Failures counts passes or items that panicked and were skipped.
	Failures int `json:"failures"`
}

// Scanner injects controls through a Controller.
type Scanner struct {
	extractor  *extract.Extractor
	controller *control.Controller
	log        *logging.Logger
}

// New returns a scanner.
func New(extractor *extract.Extractor, controller *control.Controller, log *logging.Logger) *Scanner {
	if log == nil {
		log = logging.NewNop()
	}
	return &Scanner{
		extractor:  extractor,
		controller: controller,
		log:        log.WithComponent("scanner"),
	}
}

// Scan runs the single-item, feed and grid passes. The caller must hold the UI
// lock of doc.
func (s *Scanner) Scan(doc *dom.Document) Report {
	var r Report
	videos := dom.FindAll(doc.Root, dom.Tag(atom.Video))

	s.guard("single", &r, func() { s.scanSingle(doc, videos, &r) })
	s.guard("feed", &r, func() { s.scanFeed(doc, videos, &r) })
	s.guard("grid", &r, func() { s.scanGrid(doc, &r) })

	s.log.Debug("scan finished",
		"path", doc.Path(),
		"injected", len(r.Injected),
		"present", r.Present,
		"unresolved", r.Unresolved,
		"failures", r.Failures)
	return r
}

func (s *Scanner) guard(pass string, r *Report, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.Failures++
			s.log.Error("scan pass failed", "pass", pass, "panic", fmt.Sprint(rec))
		}
	}()
	fn()
}

func (s *Scanner) scanSingle(doc *dom.Document, videos []*html.Node, r *Report) {
	id, ok := extract.PageID(doc.Path())
	if !ok {
		return
	}
	target := extract.SelectTarget(videos, id)
	if target == nil {
		r.Unresolved++
		return
	}
	anchor := dom.Closest(target, dom.Class(PlayerClass))
	if anchor == nil {
		anchor = dom.ParentElement(target)
	}
	if anchor == nil {
		return
	}
	if dom.FindFirst(anchor, dom.Class(control.ClassName)) != nil {
		r.Present++
		return
	}
	s.inject(doc, anchor, id, types.VariantLarge, types.ShapeSingle, r)
}

// scanFeed covers player wrappers. Grid anchors are left to scanGrid even when
// they carry the player class.
func (s *Scanner) scanFeed(doc *dom.Document, videos []*html.Node, r *Report) {
	for _, container := range dom.FindAll(doc.Root, dom.Class(PlayerClass)) {
		if _, ok := gridItem(container); ok {
			continue
		}
		s.guard("feed item", r, func() {
			if dom.FindFirst(container, dom.Class(control.ClassName)) != nil {
				r.Present++
				return
			}
			id, ok := s.extractor.Extract(extract.View{
				Container: container,
				PagePath:  doc.Path(),
				Videos:    videos,
			})
			if !ok {
				r.Unresolved++
				return
			}
			s.inject(doc, container, id, types.VariantLarge, types.ShapeFeed, r)
		})
	}
}

func (s *Scanner) scanGrid(doc *dom.Document, r *Report) {
	for _, anchor := range dom.FindAll(doc.Root, dom.Tag(atom.A)) {
		s.guard("grid item", r, func() {
			id, ok := gridItem(anchor)
			if !ok {
				return
			}
			if dom.FindFirst(anchor, controlFor(id)) != nil {
				r.Present++
				return
			}
			s.inject(doc, anchor, id, types.VariantSmall, types.ShapeGrid, r)
		})
	}
}

// gridItem reports whether n is a thumbnail link to a watch page: an anchor
// whose href names an item and which holds an image or video.
func gridItem(n *html.Node) (types.ItemID, bool) {
	if !dom.Tag(atom.A)(n) {
		return "", false
	}
	href, _ := dom.Attr(n, "href")
	id, ok := extract.WatchID(href)
	if !ok {
		return "", false
	}
	if dom.FindFirst(n, dom.Any(dom.Tag(atom.Img), dom.Tag(atom.Video))) == nil {
		return "", false
	}
	return id, true
}

func (s *Scanner) inject(doc *dom.Document, anchor *html.Node, id types.ItemID, variant types.Variant, shape types.PageShape, r *Report) {
	ctl := s.controller.Create(id, variant, shape)
	if ctl == nil {
		r.Present++
		return
	}
	if dom.Position(anchor) == "static" {
		dom.SetStyleProperty(anchor, "position", "relative")
	}
	doc.AppendChild(anchor, ctl.Node)
	r.Injected = append(r.Injected, Injection{ID: id, Variant: variant, Shape: shape})
	s.log.Debug("control injected", "item", id.String(), "variant", variant, "shape", shape)
}

func controlFor(id types.ItemID) dom.Matcher {
	return func(n *html.Node) bool {
		v, ok := dom.Attr(n, control.ItemAttr)
		return ok && v == string(id) && dom.HasClass(n, control.ClassName)
	}
}
