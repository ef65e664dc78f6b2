// Package scheduler turns bursts of document mutations into single scans using
// trailing-edge debouncing.
package scheduler

import (
	"fmt"
	"sync"
	"time"

	"media-augment-go/pkg/clock"
	"media-augment-go/pkg/dom"
	"media-augment-go/pkg/logging"
)

// DefaultQuietPeriod is the debounce interval.
const DefaultQuietPeriod = 500 * time.Millisecond

// Debouncer runs fn once no Trigger has arrived for the quiet period.
type Debouncer struct {
	clock clock.Clock
	quiet time.Duration
	fn    func()

	mu      sync.Mutex
	timer   clock.Timer
	gen     uint64
	stopped bool
}

// Debounce returns a trailing-edge debouncer for fn.
func Debounce(clk clock.Clock, quiet time.Duration, fn func()) *Debouncer {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Debouncer{clock: clk, quiet: quiet, fn: fn}
}

// Trigger cancels any pending run and schedules a new one after the quiet period.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = d.clock.AfterFunc(d.quiet, func() { d.fire(gen) })
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if d.stopped || gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	d.mu.Unlock()
	d.fn()
}

// Pending reports whether a run is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Stop cancels the pending run and ignores later triggers.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Scheduler scans a document once at start and again after every burst of
// mutations.
type Scheduler struct {
	doc    *dom.Document
	lock   sync.Locker
	scan   func()
	filter func(dom.Mutation) bool
	log    *logging.Logger

	debouncer *Debouncer
	cancel    func()
	runs      int
	mu        sync.Mutex
}

// Option customises a Scheduler.
type Option func(*Scheduler)

// WithFilter drops mutations for which keep returns false.
func WithFilter(keep func(dom.Mutation) bool) Option {
	return func(s *Scheduler) { s.filter = keep }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

// New returns a scheduler that calls scan while holding lock.
func New(doc *dom.Document, lock sync.Locker, clk clock.Clock, quiet time.Duration, scan func(), opts ...Option) *Scheduler {
	s := &Scheduler{doc: doc, lock: lock, scan: scan, log: logging.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.WithComponent("scheduler")
	s.debouncer = Debounce(clk, quiet, s.run)
	return s
}

// Start runs the initial scan and subscribes to mutations. The caller must not
// hold the lock.
func (s *Scheduler) Start() {
	s.run()
	s.cancel = s.doc.Observe(s.onMutation)
}

// onMutation runs synchronously inside the mutating call and must not take the
// UI lock.
func (s *Scheduler) onMutation(m dom.Mutation) {
	if s.filter != nil && !s.filter(m) {
		return
	}
	s.debouncer.Trigger()
}

func (s *Scheduler) run() {
	s.lock.Lock()
	defer s.lock.Unlock()
	defer func() {
		if rec := recover(); rec != nil {
			s.log.Error("scan failed", "panic", fmt.Sprint(rec))
		}
	}()
	s.mu.Lock()
	s.runs++
	s.mu.Unlock()
	s.scan()
}

// Runs returns how many scans have started.
func (s *Scheduler) Runs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}

// Pending reports whether a scan is scheduled.
func (s *Scheduler) Pending() bool {
	return s.debouncer.Pending()
}

// Stop unsubscribes from the document and cancels any scheduled scan.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.debouncer.Stop()
}
