package control

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"media-augment-go/pkg/clock"
	"media-augment-go/pkg/dom"
	"media-augment-go/pkg/types"
)

type stubResolver struct {
	desc *types.ItemDescriptor
	err  error
}

func (s *stubResolver) Resolve(_ context.Context, id types.ItemID) (*types.ItemDescriptor, error) {
	if s.err != nil {
		return nil, s.err
	}
	d := *s.desc
	d.ID = id
	return &d, nil
}

type recordingDownloader struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (r *recordingDownloader) Download(_ context.Context, url, filename string) types.DownloadResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, url+" -> "+filename)
	if r.err != nil {
		return types.DownloadResult{Err: r.err}
	}
	return types.DownloadResult{Path: "/tmp/" + filename, Bytes: 42}
}

type recordingNotifier struct {
	messages []string
}

func (n *recordingNotifier) Notify(_ types.ItemID, message string) {
	n.messages = append(n.messages, message)
}

func newFixture(t *testing.T, resolver *stubResolver, dl *recordingDownloader) (*Controller, *dom.Document, *clock.Fake, *recordingNotifier) {
	t.Helper()
	doc, err := dom.ParseString(`<html><body><div class="Player"></div></body></html>`, "https://www.redgifs.com/watch/abc123")
	if err != nil {
		t.Fatal(err)
	}
	clk := clock.NewFake(time.Unix(1_700_000_000, 0))
	notes := &recordingNotifier{}
	c := NewController(doc, resolver, dl, WithClock(clk), WithNotifier(notes))
	return c, doc, clk, notes
}

func inject(t *testing.T, c *Controller, doc *dom.Document, id types.ItemID) *Control {
	t.Helper()
	ctl := c.Create(id, types.VariantLarge, types.ShapeSingle)
	if ctl == nil {
		t.Fatalf("Create(%s) returned nil", id)
	}
	doc.AppendChild(dom.FindFirst(doc.Root, dom.Class("Player")), ctl.Node)
	return ctl
}

func TestCreate(t *testing.T) {
	c, doc, _, _ := newFixture(t, &stubResolver{}, &recordingDownloader{})
	ctl := inject(t, c, doc, "abc123")

	if v, _ := dom.Attr(ctl.Node, "id"); v != "rg-dl-btn-abc123" {
		t.Errorf("id = %q", v)
	}
	style, _ := dom.Attr(ctl.Node, "style")
	for _, want := range []string{"background-color: #e31010", "top: 20px", "padding: 10px 15px", "z-index: 9999"} {
		if !strings.Contains(style, want) {
			t.Errorf("style %q missing %q", style, want)
		}
	}
	if dom.Text(ctl.Node) != "Download" {
		t.Errorf("label = %q", dom.Text(ctl.Node))
	}

	if c.Create("abc123", types.VariantSmall, types.ShapeGrid) != nil {
		t.Error("second Create for an attached id must return nil")
	}

	doc.Remove(ctl.Node)
	if c.Create("abc123", types.VariantSmall, types.ShapeGrid) == nil {
		t.Error("Create after detach should build a new control")
	}

	small := c.Create("zzz", types.VariantSmall, types.ShapeGrid)
	style, _ = dom.Attr(small.Node, "style")
	if !strings.Contains(style, "padding: 4px 8px") || !strings.Contains(style, "font-size: 10px") {
		t.Errorf("small style = %q", style)
	}
}

func TestActivateSuccess(t *testing.T) {
	tests := []struct {
		name     string
		urls     map[string]string
		wantCall string
	}{
		{"prefers hd", map[string]string{"hd": "https://media.redgifs.com/Abc.mp4", "sd": "https://media.redgifs.com/Abc-mobile.mp4"}, "https://media.redgifs.com/Abc.mp4 -> abc123.mp4"},
		{"falls back to sd", map[string]string{"sd": "https://media/x.mp4"}, "https://media/x.mp4 -> abc123.mp4"},
		{"extension from url", map[string]string{"hd": "https://media.redgifs.com/Abc.webm?x=1"}, "https://media.redgifs.com/Abc.webm?x=1 -> abc123.webm"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dl := &recordingDownloader{}
			c, doc, clk, notes := newFixture(t, &stubResolver{desc: &types.ItemDescriptor{URLs: tt.urls}}, dl)
			ctl := inject(t, c, doc, "abc123")

			if err := c.Activate(context.Background(), "abc123"); err != nil {
				t.Fatalf("Activate() error = %v", err)
			}
			if len(dl.calls) != 1 || dl.calls[0] != tt.wantCall {
				t.Fatalf("download calls = %v, want [%s]", dl.calls, tt.wantCall)
			}
			if ctl.State() != types.StateSuccess || dom.Text(ctl.Node) != "Done" {
				t.Errorf("state = %+v, label %q", ctl.State(), dom.Text(ctl.Node))
			}
			if len(notes.messages) != 0 {
				t.Errorf("unexpected notifications: %v", notes.messages)
			}

			clk.Advance(DefaultRevertDelay - time.Millisecond)
			if ctl.State() != types.StateSuccess {
				t.Error("reverted too early")
			}
			clk.Advance(time.Millisecond)
			if ctl.State() != types.StateIdle {
				t.Errorf("state after revert = %+v", ctl.State())
			}
			if _, disabled := dom.Attr(ctl.Node, "disabled"); disabled {
				t.Error("idle control should be enabled")
			}
		})
	}
}

func TestActivateFailure(t *testing.T) {
	tests := []struct {
		name      string
		resolver  *stubResolver
		dlErr     error
		wantErr   error
		wantCalls int
	}{
		{"auth", &stubResolver{err: types.ErrAuth}, nil, types.ErrAuth, 0},
		{"not found", &stubResolver{err: types.ErrNotFound}, nil, types.ErrNotFound, 0},
		{"no media", &stubResolver{desc: &types.ItemDescriptor{URLs: map[string]string{"poster": "p.jpg"}}}, nil, types.ErrNoMedia, 0},
		{"download", &stubResolver{desc: &types.ItemDescriptor{URLs: map[string]string{"sd": "https://media/x.mp4"}}}, errors.New("disk full"), types.ErrDownload, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dl := &recordingDownloader{err: tt.dlErr}
			c, doc, clk, notes := newFixture(t, tt.resolver, dl)
			ctl := inject(t, c, doc, "abc123")

			err := c.Activate(context.Background(), "abc123")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Activate() error = %v, want %v", err, tt.wantErr)
			}
			if len(dl.calls) != tt.wantCalls {
				t.Errorf("download calls = %d, want %d", len(dl.calls), tt.wantCalls)
			}
			if ctl.State() != types.StateFailure || dom.Text(ctl.Node) != "Error" {
				t.Errorf("state = %+v", ctl.State())
			}
			if len(notes.messages) != 1 {
				t.Errorf("notifications = %v, want one", notes.messages)
			}

			if err := c.Activate(context.Background(), "abc123"); !errors.Is(err, ErrBusy) {
				t.Errorf("re-activation while showing failure: %v, want ErrBusy", err)
			}

			clk.Advance(DefaultRevertDelay)
			if ctl.State() != types.StateIdle {
				t.Errorf("state after revert = %+v", ctl.State())
			}
		})
	}
}

func TestActivateDetachedIsSilent(t *testing.T) {
	c, doc, _, notes := newFixture(t, &stubResolver{err: types.ErrMetadata}, &recordingDownloader{})
	ctl := inject(t, c, doc, "abc123")
	doc.Remove(ctl.Node)

	if err := c.Activate(context.Background(), "abc123"); !errors.Is(err, types.ErrMetadata) {
		t.Fatalf("Activate() error = %v", err)
	}
	if len(notes.messages) != 0 {
		t.Errorf("detached control notified: %v", notes.messages)
	}
	snaps := c.Snapshots()
	if len(snaps) != 1 || snaps[0].Attached || snaps[0].State.Phase != types.PhaseFailure {
		t.Errorf("snapshots = %+v", snaps)
	}
}

func TestBeginClaimsControl(t *testing.T) {
	dl := &recordingDownloader{}
	c, doc, _, _ := newFixture(t, &stubResolver{desc: &types.ItemDescriptor{URLs: map[string]string{"sd": "https://media/x.mp4"}}}, dl)
	inject(t, c, doc, "abc123")

	a, err := c.Begin("abc123")
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if got, _ := c.Snapshot("abc123"); got.State != types.StatePending {
		t.Errorf("state after Begin = %+v, want pending", got.State)
	}
	if len(dl.calls) != 0 {
		t.Error("Begin must not start the transfer")
	}

	// A second click before the first runs is rejected.
	if _, err := c.Begin("abc123"); !errors.Is(err, ErrBusy) {
		t.Errorf("second Begin() error = %v, want ErrBusy", err)
	}
	if err := c.Activate(context.Background(), "abc123"); !errors.Is(err, ErrBusy) {
		t.Errorf("Activate() while pending error = %v, want ErrBusy", err)
	}

	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got, _ := c.Snapshot("abc123"); got.State != types.StateSuccess || len(dl.calls) != 1 {
		t.Errorf("after Run: state %+v, downloads %v", got.State, dl.calls)
	}
	if _, err := c.Begin("missing"); !errors.Is(err, ErrUnknownControl) {
		t.Errorf("Begin(missing) error = %v, want ErrUnknownControl", err)
	}
}

func TestActivateUnknown(t *testing.T) {
	c, _, _, _ := newFixture(t, &stubResolver{}, &recordingDownloader{})
	if err := c.Activate(context.Background(), "nope"); !errors.Is(err, ErrUnknownControl) {
		t.Errorf("Activate() error = %v, want ErrUnknownControl", err)
	}
}

func TestSelectURL(t *testing.T) {
	if _, err := SelectURL(nil); !errors.Is(err, types.ErrNoMedia) {
		t.Errorf("SelectURL(nil) error = %v", err)
	}
	got, err := SelectURL(&types.ItemDescriptor{URLs: map[string]string{"hd": "", "sd": "s"}})
	if err != nil || got != "s" {
		t.Errorf("SelectURL() = %q, %v; empty hd must fall back to sd", got, err)
	}
}

func TestFilename(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://media.redgifs.com/Abc.mp4", "abc.mp4"},
		{"https://media.redgifs.com/Abc.M4V", "abc.m4v"},
		{"https://media.redgifs.com/stream", "abc.mp4"},
		{"::bad", "abc.mp4"},
	}
	for _, tt := range tests {
		if got := Filename("abc", tt.url); got != tt.want {
			t.Errorf("Filename(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestBootstrapScript(t *testing.T) {
	s := BootstrapScript("/api/sessions/s1", 500)
	for _, want := range []string{`"/api/sessions/s1"`, "preventDefault", "stopPropagation", ".rg-dl-btn", "data-rg-item"} {
		if !strings.Contains(s, want) {
			t.Errorf("script missing %q", want)
		}
	}
}
