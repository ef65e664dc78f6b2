// Package session keeps an augmented page alive: its document, the controls
// injected into it and the scheduler that re-scans it as it mutates.
//
// Each session has one lock that plays the role of the page's UI thread. Every
// read or write of the document happens while holding it; activations take it
// only to flip control state, so scans and downloads interleave freely.
package session

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"media-augment-go/pkg/clock"
	"media-augment-go/pkg/control"
	"media-augment-go/pkg/dom"
	"media-augment-go/pkg/extract"
	"media-augment-go/pkg/interfaces"
	"media-augment-go/pkg/logging"
	"media-augment-go/pkg/scanner"
	"media-augment-go/pkg/scheduler"
	"media-augment-go/pkg/types"
)

const maxNotifications = 50

// Notification is a user-visible message raised by a failed activation.
type Notification struct {
	ItemID  types.ItemID `json:"item_id"`
	Message string       `json:"message"`
	At      time.Time    `json:"at"`
}

// Deps are the collaborators shared by all sessions.
type Deps struct {
	Resolver    interfaces.ItemResolver
	Downloader  interfaces.DownloadMechanism
	Clock       clock.Clock
	Domain      string
	QuietPeriod time.Duration
	RevertDelay time.Duration
	// ScriptBase, when set, adds the click bootstrap script pointing at
	// ScriptBase + "/" + session id.
	ScriptBase string
	Logger     *logging.Logger
}

// Session is one augmented page.
type Session struct {
	ID string
	// URL is the current page address. Navigate changes it under the session
	// lock; read it through Info.
	URL       string
	CreatedAt time.Time

	mu         sync.Mutex
	doc        *dom.Document
	controller *control.Controller
	scanner    *scanner.Scanner
	scheduler  *scheduler.Scheduler
	scans      int
	last       scanner.Report
	closed     bool

	notesMu sync.Mutex
	notes   []Notification

	clock clock.Clock
	log   *logging.Logger
}

var _ interfaces.Notifier = (*Session)(nil)

// New builds a session around doc. Call Start to run the initial scan.
func New(id string, doc *dom.Document, deps Deps) *Session {
	clk := deps.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	log := deps.Logger
	if log == nil {
		log = logging.NewNop()
	}
	quiet := deps.QuietPeriod
	if quiet <= 0 {
		quiet = scheduler.DefaultQuietPeriod
	}
	domain := deps.Domain
	if domain == "" {
		domain = "redgifs.com"
	}

	s := &Session{
		ID:        id,
		CreatedAt: clk.Now(),
		doc:       doc,
		clock:     clk,
		log:       log.WithComponent("session").WithSession(id),
	}
	if doc.URL != nil {
		s.URL = doc.URL.String()
	}

	s.controller = control.NewController(doc, deps.Resolver, deps.Downloader,
		control.WithUILock(&s.mu),
		control.WithClock(clk),
		control.WithRevertDelay(deps.RevertDelay),
		control.WithNotifier(s),
		control.WithLogger(s.log),
	)
	s.scanner = scanner.New(extract.New(domain), s.controller, s.log)
	s.scheduler = scheduler.New(doc, &s.mu, clk, quiet, s.scanLocked,
		scheduler.WithFilter(ignoreControlInsertions),
		scheduler.WithLogger(s.log),
	)

	if deps.ScriptBase != "" {
		doc.AddScript(control.BootstrapScript(deps.ScriptBase+"/"+id, int(quiet/time.Millisecond)))
	}
	return s
}

// ignoreControlInsertions drops the mutations a scan causes itself.
func ignoreControlInsertions(m dom.Mutation) bool {
	if len(m.Removed) > 0 || len(m.Added) == 0 {
		return true
	}
	for _, n := range m.Added {
		if !dom.HasClass(n, control.ClassName) {
			return true
		}
	}
	return false
}

// Start runs the initial scan and begins observing mutations.
func (s *Session) Start() {
	s.scheduler.Start()
}

func (s *Session) scanLocked() {
	if s.closed {
		return
	}
	s.last = s.scanner.Scan(s.doc)
	s.scans++
}

// Scan runs a scan immediately and returns its report.
func (s *Session) Scan() scanner.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scanLocked()
	return s.last
}

// LastReport returns the report of the most recent scan.
func (s *Session) LastReport() scanner.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// AppendHTML inserts fragment under the element matched by selector ("#id",
// ".class", a tag name, or "" for body). The mutation schedules a re-scan.
func (s *Session) AppendHTML(selector, fragment string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, fmt.Errorf("session %s is closed", s.ID)
	}
	parent := s.doc.Select(selector)
	if parent == nil {
		return 0, fmt.Errorf("no element matches %q", selector)
	}
	nodes, err := s.doc.AppendHTML(parent, fragment)
	if err != nil {
		return 0, err
	}
	return len(nodes), nil
}

// Navigate changes the page address as client-side routing would. The
// single-item pass follows the new path on the next scan.
func (s *Session) Navigate(ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("session %s is closed", s.ID)
	}
	if err := s.doc.Navigate(ref); err != nil {
		return err
	}
	s.URL = s.doc.URL.String()
	s.log.Debug("navigated", "url", s.URL)
	return nil
}

// RemoveElement detaches the element with the given id attribute.
func (s *Session) RemoveElement(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.doc.ElementByID(id)
	if n == nil {
		return false
	}
	s.doc.Remove(n)
	return true
}

// Render writes the current page.
func (s *Session) Render(w io.Writer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Render(w)
}

// Controls returns every control created for this page.
func (s *Session) Controls() []types.ControlSnapshot {
	return s.controller.Snapshots()
}

// Control returns the control for id.
func (s *Session) Control(id types.ItemID) (types.ControlSnapshot, bool) {
	return s.controller.Snapshot(id)
}

// Begin moves the control of id to Pending; run the returned activation to
// perform the transfer.
func (s *Session) Begin(id types.ItemID) (*control.Activation, error) {
	return s.controller.Begin(id)
}

// Activate runs the download lifecycle for id and blocks until it ends.
func (s *Session) Activate(ctx context.Context, id types.ItemID) error {
	return s.controller.Activate(ctx, id)
}

// Notify records a user-visible message.
func (s *Session) Notify(id types.ItemID, message string) {
	s.notesMu.Lock()
	defer s.notesMu.Unlock()
	s.notes = append(s.notes, Notification{ItemID: id, Message: message, At: s.clock.Now()})
	if len(s.notes) > maxNotifications {
		s.notes = s.notes[len(s.notes)-maxNotifications:]
	}
	s.log.WithItem(id.String()).Warn("user notified", "message", message)
}

// Notifications returns the recorded messages, oldest first.
func (s *Session) Notifications() []Notification {
	s.notesMu.Lock()
	defer s.notesMu.Unlock()
	return append([]Notification(nil), s.notes...)
}

// Info summarizes the session.
func (s *Session) Info() types.SessionInfo {
	controls := len(s.controller.Snapshots())
	s.mu.Lock()
	defer s.mu.Unlock()
	return types.SessionInfo{
		ID:        s.ID,
		URL:       s.URL,
		CreatedAt: s.CreatedAt,
		Controls:  controls,
		Scans:     s.scans,
	}
}

// Pending reports whether a re-scan is scheduled.
func (s *Session) Pending() bool {
	return s.scheduler.Pending()
}

// Close stops observing the page. In-flight activations finish on their own.
func (s *Session) Close() {
	s.scheduler.Stop()
	s.controller.Stop()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}
