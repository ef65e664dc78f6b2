// Package control injects per-item download controls into a page and drives
// each control through its download lifecycle.
package control

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"

	"media-augment-go/pkg/clock"
	"media-augment-go/pkg/dom"
	"media-augment-go/pkg/interfaces"
	"media-augment-go/pkg/logging"
	"media-augment-go/pkg/types"
)

const (
	// IDPrefix prefixes the element id of every control.
	IDPrefix = "rg-dl-btn-"
	// ClassName marks control elements.
	ClassName = "rg-dl-btn"
	// ItemAttr and VariantAttr carry the control's item and variant.
	ItemAttr    = "data-rg-item"
	VariantAttr = "data-rg-variant"

	// DefaultRevertDelay is how long Success and Failure stay visible.
	DefaultRevertDelay = 2 * time.Second

	defaultExt = "mp4"
)

var (
	// ErrUnknownControl is returned when no control exists for an item.
	ErrUnknownControl = errors.New("unknown control")
	// ErrBusy is returned when a control is disabled.
	ErrBusy = errors.New("control is busy")
)

var baseStyle = []string{
	"position: absolute",
	"z-index: 9999",
	"background-color: #e31010",
	"color: #fff",
	"border: none",
	"border-radius: 4px",
	"cursor: pointer",
	"font-family: sans-serif",
	"font-weight: bold",
	"box-shadow: 0 2px 4px rgba(0,0,0,0.5)",
}

var variantStyle = map[types.Variant][]string{
	types.VariantSmall: {"top: 5px", "right: 5px", "padding: 4px 8px", "font-size: 10px"},
	types.VariantLarge: {"top: 20px", "right: 20px", "padding: 10px 15px", "font-size: 14px"},
}

// ElementID returns the element id used for an item's control.
func ElementID(id types.ItemID) string {
	return IDPrefix + string(id)
}

// Control is one injected control.
type Control struct {
	ID      types.ItemID
	Variant types.Variant
	Shape   types.PageShape
	Node    *html.Node

	state       types.ControlState
	lastMessage string
	lastFile    string
	revert      clock.Timer
}

// State returns the current state. The caller must hold the UI lock.
func (c *Control) State() types.ControlState {
	return c.state
}

// Controller creates controls for one document and runs their activations.
type Controller struct {
	doc        *dom.Document
	lock       sync.Locker
	resolver   interfaces.ItemResolver
	downloader interfaces.DownloadMechanism
	notifier   interfaces.Notifier
	clock      clock.Clock
	revert     time.Duration
	logger     *logging.Logger

	controls map[types.ItemID]*Control
	order    []types.ItemID
}

// Option customises a Controller.
type Option func(*Controller)

// WithUILock sets the lock that serialises access to the document. Activations
// hold it only while changing control state.
func WithUILock(l sync.Locker) Option {
	return func(c *Controller) { c.lock = l }
}

// WithClock overrides the clock used for the revert delay.
func WithClock(clk clock.Clock) Option {
	return func(c *Controller) { c.clock = clk }
}

// WithRevertDelay overrides how long Success and Failure are shown.
func WithRevertDelay(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.revert = d
		}
	}
}

// WithNotifier sets where failure messages go.
func WithNotifier(n interfaces.Notifier) Option {
	return func(c *Controller) { c.notifier = n }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// NewController returns a controller for doc.
func NewController(doc *dom.Document, resolver interfaces.ItemResolver, downloader interfaces.DownloadMechanism, opts ...Option) *Controller {
	c := &Controller{
		doc:        doc,
		lock:       &sync.Mutex{},
		resolver:   resolver,
		downloader: downloader,
		clock:      clock.Real{},
		revert:     DefaultRevertDelay,
		logger:     logging.NewNop(),
		controls:   make(map[types.ItemID]*Control),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithComponent("control")
	return c
}

// Attached reports whether a control for id is currently in the document.
// The caller must hold the UI lock.
func (c *Controller) Attached(id types.ItemID) bool {
	ctl, ok := c.controls[id]
	return ok && c.doc.Contains(ctl.Node)
}

// Create builds a detached control element for id. It returns nil when a
// control for id is already attached to the document. The caller must hold the
// UI lock and is responsible for inserting Node.
func (c *Controller) Create(id types.ItemID, variant types.Variant, shape types.PageShape) *Control {
	if id == "" || c.Attached(id) {
		return nil
	}
	if _, ok := variantStyle[variant]; !ok {
		variant = types.VariantLarge
	}

	style := append(append([]string{}, baseStyle...), variantStyle[variant]...)
	node := dom.NewElement("button",
		html.Attribute{Key: "type", Val: "button"},
		html.Attribute{Key: "id", Val: ElementID(id)},
		html.Attribute{Key: "class", Val: ClassName + " " + ClassName + "-" + string(variant)},
		html.Attribute{Key: ItemAttr, Val: string(id)},
		html.Attribute{Key: VariantAttr, Val: string(variant)},
		html.Attribute{Key: "style", Val: strings.Join(style, "; ")},
	)

	ctl := &Control{ID: id, Variant: variant, Shape: shape, Node: node}
	ctl.apply(types.StateIdle)

	if _, seen := c.controls[id]; !seen {
		c.order = append(c.order, id)
	}
	c.controls[id] = ctl
	return ctl
}

// Activation is a started activation. Its control already shows Pending.
type Activation struct {
	c   *Controller
	ctl *Control
}

// Begin moves the control of id to Pending and returns the activation to run.
// It fails with ErrUnknownControl or ErrBusy without touching any state, so a
// caller can answer a click before the transfer starts.
func (c *Controller) Begin(id types.ItemID) (*Activation, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	ctl, ok := c.controls[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownControl, id)
	}
	if ctl.state.Disabled {
		return nil, fmt.Errorf("%w: %s", ErrBusy, id)
	}
	if ctl.revert != nil {
		ctl.revert.Stop()
		ctl.revert = nil
	}
	ctl.apply(types.StatePending)
	ctl.lastMessage = ""
	return &Activation{c: c, ctl: ctl}, nil
}

// Activate runs the download lifecycle for the control of id and blocks until
// the transfer ends. It returns the activation error, which has already been
// reported to the notifier.
func (c *Controller) Activate(ctx context.Context, id types.ItemID) error {
	a, err := c.Begin(id)
	if err != nil {
		return err
	}
	return a.Run(ctx)
}

// Run resolves, downloads and settles the control. It blocks until the
// transfer ends.
func (a *Activation) Run(ctx context.Context) error {
	c, ctl, id := a.c, a.ctl, a.ctl.ID
	log := c.logger.WithItem(id.String())
	log.Info("activation started")
	started := c.clock.Now()

	result, err := c.run(ctx, ctl)

	c.lock.Lock()
	attached := c.doc.Contains(ctl.Node)
	var message string
	if err != nil {
		message = types.Describe(err)
		ctl.apply(types.StateFailure)
		ctl.lastMessage = message
	} else {
		ctl.apply(types.StateSuccess)
		ctl.lastFile = result.Path
	}
	ctl.revert = c.clock.AfterFunc(c.revert, func() { c.reset(ctl) })
	c.lock.Unlock()

	log = log.WithDuration(c.clock.Now().Sub(started))
	if err != nil {
		log.WithError(err).Warn("activation failed", "attached", attached)
		if attached && c.notifier != nil {
			c.notifier.Notify(id, message)
		}
		return err
	}
	log.Info("activation finished", "path", result.Path, "bytes", result.Bytes)
	return nil
}

func (c *Controller) run(ctx context.Context, ctl *Control) (types.DownloadResult, error) {
	desc, err := c.resolver.Resolve(ctx, ctl.ID)
	if err != nil {
		return types.DownloadResult{}, err
	}
	mediaURL, err := SelectURL(desc)
	if err != nil {
		return types.DownloadResult{}, err
	}
	result := c.downloader.Download(ctx, mediaURL, Filename(ctl.ID, mediaURL))
	if result.Err != nil {
		if !errors.Is(result.Err, types.ErrDownload) {
			result.Err = fmt.Errorf("%w: %v", types.ErrDownload, result.Err)
		}
		return result, result.Err
	}
	return result, nil
}

func (c *Controller) reset(ctl *Control) {
	c.lock.Lock()
	defer c.lock.Unlock()
	ctl.revert = nil
	ctl.apply(types.StateIdle)
}

// Snapshots returns every control in creation order.
func (c *Controller) Snapshots() []types.ControlSnapshot {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.SnapshotsLocked()
}

// SnapshotsLocked is Snapshots for callers already holding the UI lock.
func (c *Controller) SnapshotsLocked() []types.ControlSnapshot {
	out := make([]types.ControlSnapshot, 0, len(c.order))
	for _, id := range c.order {
		ctl := c.controls[id]
		out = append(out, types.ControlSnapshot{
			ItemID:      ctl.ID,
			Variant:     ctl.Variant,
			Shape:       ctl.Shape,
			State:       ctl.state,
			Attached:    c.doc.Contains(ctl.Node),
			LastMessage: ctl.lastMessage,
			LastFile:    ctl.lastFile,
		})
	}
	return out
}

// Snapshot returns the control for id.
func (c *Controller) Snapshot(id types.ItemID) (types.ControlSnapshot, bool) {
	for _, s := range c.Snapshots() {
		if s.ItemID == id {
			return s, true
		}
	}
	return types.ControlSnapshot{}, false
}

// Stop cancels pending reverts.
func (c *Controller) Stop() {
	c.lock.Lock()
	defer c.lock.Unlock()
	for _, ctl := range c.controls {
		if ctl.revert != nil {
			ctl.revert.Stop()
			ctl.revert = nil
		}
	}
}

func (ctl *Control) apply(s types.ControlState) {
	ctl.state = s
	dom.SetText(ctl.Node, s.Label)
	if s.Disabled {
		dom.SetAttr(ctl.Node, "disabled", "")
	} else {
		dom.RemoveAttr(ctl.Node, "disabled")
	}
	dom.SetAttr(ctl.Node, "data-rg-state", string(s.Phase))
}

// SelectURL prefers the hd candidate, then sd.
func SelectURL(desc *types.ItemDescriptor) (string, error) {
	for _, q := range []string{types.QualityHD, types.QualitySD} {
		if u, ok := desc.URL(q); ok {
			return u, nil
		}
	}
	id := types.ItemID("")
	if desc != nil {
		id = desc.ID
	}
	return "", fmt.Errorf("%w: %s", types.ErrNoMedia, id)
}

// Filename returns "<id>.<ext>", taking the extension from the media URL path.
func Filename(id types.ItemID, mediaURL string) string {
	ext := defaultExt
	if u, err := url.Parse(mediaURL); err == nil {
		if e := strings.TrimPrefix(path.Ext(u.Path), "."); e != "" && isAlnum(e) {
			ext = strings.ToLower(e)
		}
	}
	return string(id) + "." + ext
}

func isAlnum(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
