package dom

import (
	"strings"
	"testing"

	"golang.org/x/net/html/atom"
)

const page = `<!DOCTYPE html><html><head><title>t</title></head><body>
<div id="feed">
  <div class="Player active" data-gif-id="abc"><video src="https://media.redgifs.com/Abc.mp4"></video></div>
  <a href="/watch/def"><img src="x.jpg"></a>
</div>
</body></html>`

func TestQueries(t *testing.T) {
	doc, err := ParseString(page, "https://www.redgifs.com/browse")
	if err != nil {
		t.Fatalf("ParseString() error = %v", err)
	}
	if doc.Path() != "/browse" {
		t.Errorf("Path() = %q", doc.Path())
	}

	players := FindAll(doc.Root, Class("Player"))
	if len(players) != 1 {
		t.Fatalf("players = %d, want 1", len(players))
	}
	if v, _ := Attr(players[0], "data-gif-id"); v != "abc" {
		t.Errorf("data-gif-id = %q", v)
	}

	video := FindFirst(doc.Root, Tag(atom.Video))
	if got := Closest(video, Class("Player")); got != players[0] {
		t.Error("Closest() did not find the player")
	}
	if Closest(video, Tag(atom.Video)) != video {
		t.Error("Closest() must consider the node itself")
	}
	if !doc.Contains(video) {
		t.Error("video should be attached")
	}
	if doc.Select("#feed") == nil || doc.Select("body") == nil || doc.Select(".Player") == nil {
		t.Error("Select() failed to resolve selectors")
	}
	if doc.Select("#missing") != nil {
		t.Error("Select(#missing) should be nil")
	}
}

func TestMutationsNotifyObservers(t *testing.T) {
	doc, err := ParseString(page, "https://www.redgifs.com/")
	if err != nil {
		t.Fatal(err)
	}
	var got []Mutation
	cancel := doc.Observe(func(m Mutation) { got = append(got, m) })

	feed := doc.ElementByID("feed")
	nodes, err := doc.AppendHTML(feed, `<div class="Player"></div><div class="Player"></div>`)
	if err != nil {
		t.Fatalf("AppendHTML() error = %v", err)
	}
	if len(nodes) != 2 {
		t.Fatalf("AppendHTML() nodes = %d, want 2", len(nodes))
	}
	doc.Remove(nodes[0])
	doc.Remove(nodes[0]) // already detached
	el := NewElement("span")
	doc.AppendChild(feed, el)

	if len(got) != 3 {
		t.Fatalf("mutations = %d, want 3", len(got))
	}
	if len(got[0].Added) != 2 || len(got[1].Removed) != 1 {
		t.Errorf("unexpected mutation records: %+v", got)
	}
	if doc.Contains(nodes[0]) {
		t.Error("removed node still attached")
	}

	cancel()
	doc.AppendChild(feed, NewElement("span"))
	if len(got) != 3 {
		t.Error("observer notified after cancel")
	}
}

func TestStyle(t *testing.T) {
	n := NewElement("div")
	if Position(n) != "static" {
		t.Errorf("Position() = %q, want static", Position(n))
	}
	SetAttr(n, "style", "color: red; POSITION: absolute")
	if Position(n) != "absolute" {
		t.Errorf("Position() = %q, want absolute", Position(n))
	}
	SetStyleProperty(n, "position", "relative")
	style, _ := Attr(n, "style")
	if style != "color: red; position: relative" {
		t.Errorf("style = %q", style)
	}
	SetStyleProperty(n, "z-index", "9999")
	if StyleProperty(n, "z-index") != "9999" {
		t.Error("z-index not set")
	}
}

func TestRenderAndScript(t *testing.T) {
	doc, err := ParseString(page, "https://www.redgifs.com/")
	if err != nil {
		t.Fatal(err)
	}
	notified := false
	doc.Observe(func(Mutation) { notified = true })
	doc.AddScript("window.x = 1;")
	if notified {
		t.Error("AddScript must not notify observers")
	}

	var b strings.Builder
	if err := doc.Render(&b); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !strings.Contains(b.String(), "<script>window.x = 1;</script></head>") {
		t.Errorf("rendered page missing script: %s", b.String())
	}
}

func TestTextAndAttrs(t *testing.T) {
	n := NewElement("button")
	SetText(n, "Download")
	SetText(n, "…")
	if Text(n) != "…" {
		t.Errorf("Text() = %q", Text(n))
	}
	SetAttr(n, "disabled", "")
	if _, ok := Attr(n, "disabled"); !ok {
		t.Error("disabled attr missing")
	}
	RemoveAttr(n, "disabled")
	if _, ok := Attr(n, "disabled"); ok {
		t.Error("disabled attr not removed")
	}
	SetAttr(n, "class", "a  rg-dl-btn b")
	if !HasClass(n, "rg-dl-btn") || HasClass(n, "rg") {
		t.Error("HasClass() mismatch")
	}
}

func TestNavigate(t *testing.T) {
	doc, err := ParseString(page, "https://www.redgifs.com/watch/abc")
	if err != nil {
		t.Fatal(err)
	}
	var got []Mutation
	doc.Observe(func(m Mutation) { got = append(got, m) })

	if err := doc.Navigate("/watch/def?x=1"); err != nil {
		t.Fatalf("Navigate() error = %v", err)
	}
	if doc.Path() != "/watch/def" {
		t.Errorf("Path() = %q", doc.Path())
	}
	if len(got) != 1 || !got[0].Navigated || got[0].Target != doc.Root || len(got[0].Added) != 0 {
		t.Errorf("mutations = %+v", got)
	}

	if err := doc.Navigate("https://www.redgifs.com/watch/def?x=1"); err != nil || len(got) != 1 {
		t.Errorf("same url: err = %v, mutations = %d", err, len(got))
	}
	if err := doc.Navigate("https://example.com/watch/zzz"); err == nil {
		t.Error("cross-origin navigation should fail")
	}
	if doc.Path() != "/watch/def" || len(got) != 1 {
		t.Errorf("failed navigation changed state: %q, %d", doc.Path(), len(got))
	}
}
