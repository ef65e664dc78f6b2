package extract

import (
	"testing"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"media-augment-go/pkg/dom"
	"media-augment-go/pkg/types"
)

func parse(t *testing.T, body, pageURL string) *dom.Document {
	t.Helper()
	doc, err := dom.ParseString("<html><body>"+body+"</body></html>", pageURL)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func view(doc *dom.Document, container *html.Node) View {
	return View{
		Container: container,
		PagePath:  doc.Path(),
		Videos:    dom.FindAll(doc.Root, dom.Tag(atom.Video)),
	}
}

func TestAttributeBeatsMediaURL(t *testing.T) {
	doc := parse(t, `<div data-gif-id="fromattr"><div class="Player"><video src="https://media.redgifs.com/FromUrl.mp4"></video></div></div>`,
		"https://www.redgifs.com/")
	player := dom.FindFirst(doc.Root, dom.Class("Player"))

	id, ok := New("redgifs.com").Extract(view(doc, player))
	if !ok || id != "fromattr" {
		t.Fatalf("Extract() = %q, %v; want fromattr", id, ok)
	}

	id, ok = NewWith(ByMediaURL(MediaURLPattern("redgifs.com"))).Extract(view(doc, player))
	if !ok || id != "FromUrl" {
		t.Fatalf("ByMediaURL = %q, %v; want FromUrl", id, ok)
	}
}

func TestByAttributeScope(t *testing.T) {
	tests := []struct {
		name   string
		markup string
		want   types.ItemID
		ok     bool
	}{
		{
			name:   "own attribute",
			markup: `<div class="Player" data-item-id="own"><video></video></div>`,
			want:   "own",
			ok:     true,
		},
		{
			name:   "single-item ancestor",
			markup: `<article data-gif-id="card"><div class="Player"><video></video></div></article>`,
			want:   "card",
			ok:     true,
		},
		{
			name: "wrapper around several items",
			markup: `<section data-gif-id="home-feed">
				<div class="Player"><video></video></div>
				<div class="Player"><video></video></div></section>`,
		},
		{
			name:   "generic data-id ignored",
			markup: `<section data-id="home-feed"><div class="Player"><video></video></div></section>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := parse(t, tt.markup, "https://www.redgifs.com/")
			player := dom.FindFirst(doc.Root, dom.Class("Player"))
			id, ok := ByAttribute(view(doc, player))
			if ok != tt.ok || id != tt.want {
				t.Errorf("ByAttribute() = %q, %v; want %q, %v", id, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestByMediaURL(t *testing.T) {
	strategy := ByMediaURL(MediaURLPattern("redgifs.com"))
	tests := []struct {
		name   string
		markup string
		want   types.ItemID
		wantOK bool
	}{
		{"media src", `<div><video src="https://media.redgifs.com/SomeClip.mp4"></video></div>`, "SomeClip", true},
		{"mobile suffix", `<div><video src="https://media.redgifs.com/SomeClip-mobile.mp4"></video></div>`, "SomeClip", true},
		{"poster on thumbs host", `<div><video poster="https://thumbs44.redgifs.com/PosterId-poster.jpg"></video></div>`, "PosterId", true},
		{"nested source", `<div><video><source src="https://media.redgifs.com/Nested.webm"></video></div>`, "Nested", true},
		{"foreign host", `<div><video src="https://cdn.example.com/Other.mp4"></video></div>`, "", false},
		{"blob url", `<div><video src="blob:https://www.redgifs.com/1234"></video></div>`, "", false},
		{"no video", `<div><img src="https://thumbs.redgifs.com/Img.jpg"></div>`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := parse(t, tt.markup, "https://www.redgifs.com/")
			container := dom.FindFirst(doc.Body(), dom.Tag(atom.Div))
			got, ok := strategy(view(doc, container))
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("got %q, %v; want %q, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestSelectTarget(t *testing.T) {
	tests := []struct {
		name   string
		markup string
		want   int // index of expected video, -1 for none
	}{
		{
			name: "one of three matches by src",
			markup: `<video src="https://media.redgifs.com/Other1.mp4"></video>
				<video src="https://media.redgifs.com/ABC123.mp4"></video>
				<video src="https://media.redgifs.com/Other2.mp4"></video>`,
			want: 1,
		},
		{
			name:   "matches by poster",
			markup: `<video src="blob:x"></video><video poster="https://thumbs2.redgifs.com/abc123-poster.jpg"></video>`,
			want:   1,
		},
		{
			name:   "single video without textual match",
			markup: `<video src="blob:https://www.redgifs.com/aaaa"></video>`,
			want:   0,
		},
		{
			name:   "several videos without match",
			markup: `<video src="blob:1"></video><video src="blob:2"></video>`,
			want:   -1,
		},
		{
			name:   "no videos",
			markup: `<p>empty</p>`,
			want:   -1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := parse(t, tt.markup, "https://www.redgifs.com/watch/abc123")
			videos := dom.FindAll(doc.Root, dom.Tag(atom.Video))
			got := SelectTarget(videos, "abc123")
			if tt.want < 0 {
				if got != nil {
					t.Errorf("SelectTarget() = %v, want nil", got)
				}
				return
			}
			if got != videos[tt.want] {
				t.Errorf("SelectTarget() picked the wrong video")
			}
		})
	}
}

func TestByPagePath(t *testing.T) {
	doc := parse(t, `<div class="Player" id="p1"><video src="https://media.redgifs.com/Other.mp4"></video></div>
		<div class="Player" id="p2"><video poster="https://thumbs.redgifs.com/Abc123.jpg"></video></div>`,
		"https://www.redgifs.com/ifr/abc123?autoplay=1")

	if id, ok := ByPagePath(view(doc, doc.ElementByID("p2"))); !ok || id != "abc123" {
		t.Errorf("ByPagePath(p2) = %q, %v", id, ok)
	}
	if _, ok := ByPagePath(view(doc, doc.ElementByID("p1"))); ok {
		t.Error("ByPagePath(p1) should not match")
	}

	browse := parse(t, `<div class="Player"><video></video></div>`, "https://www.redgifs.com/browse")
	if _, ok := ByPagePath(view(browse, dom.FindFirst(browse.Root, dom.Class("Player")))); ok {
		t.Error("ByPagePath should not apply off watch pages")
	}
}

func TestByAnchorHref(t *testing.T) {
	tests := []struct {
		href   string
		want   types.ItemID
		wantOK bool
	}{
		{"/watch/abc123", "abc123", true},
		{"https://www.redgifs.com/watch/def456?from=grid#top", "def456", true},
		{"/users/someone", "", false},
		{"/ifr/abc123", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.href, func(t *testing.T) {
			a := dom.NewElement("a", html.Attribute{Key: "href", Val: tt.href})
			got, ok := ByAnchorHref(View{Container: a})
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("got %q, %v; want %q, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}

	if _, ok := ByAnchorHref(View{Container: dom.NewElement("div", html.Attribute{Key: "href", Val: "/watch/x"})}); ok {
		t.Error("non-anchor containers must not match")
	}
}

func TestExtractAbsent(t *testing.T) {
	doc := parse(t, `<div class="Player"><video src="blob:1"></video></div>`, "https://www.redgifs.com/browse")
	if _, ok := New("redgifs.com").Extract(view(doc, dom.FindFirst(doc.Root, dom.Class("Player")))); ok {
		t.Error("Extract() should be absent")
	}
	if _, ok := New("redgifs.com").Extract(View{}); ok {
		t.Error("Extract() on nil container should be absent")
	}
}
