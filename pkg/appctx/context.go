// Package appctx provides the application context that holds all runtime dependencies.
package appctx

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"media-augment-go/pkg/clock"
	"media-augment-go/pkg/config"
	"media-augment-go/pkg/dom"
	"media-augment-go/pkg/interfaces"
	"media-augment-go/pkg/logging"
	"media-augment-go/pkg/registry"
	"media-augment-go/pkg/session"
)

// PageFetcher loads a site page into a document.
type PageFetcher interface {
	Fetch(ctx context.Context, pageURL string) (*dom.Document, error)
}

// Context holds all application runtime dependencies.
// Pass this single struct to components instead of individual parameters.
type Context struct {
	Config      *config.Config
	Log         *logging.Logger
	Clock       clock.Clock
	Sessions    *registry.SessionRegistry
	Fetcher     PageFetcher
	Credentials interfaces.CredentialSource
	Resolver    interfaces.ItemResolver
	Downloader  interfaces.DownloadMechanism
	NewID       func() string
	BaseURL     string
}

// New creates a new application context.
func New(cfg *config.Config, log *logging.Logger) *Context {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://localhost:%d", cfg.Port)
	}
	return &Context{
		Config:   cfg,
		Log:      log,
		Clock:    clock.Real{},
		Sessions: registry.NewSessionRegistry(cfg.MaxSessions),
		NewID:    uuid.NewString,
		BaseURL:  baseURL,
	}
}

// WithFetcher sets the page fetcher.
func (c *Context) WithFetcher(f PageFetcher) *Context {
	c.Fetcher = f
	return c
}

// WithCredentials sets the credential cache.
func (c *Context) WithCredentials(cs interfaces.CredentialSource) *Context {
	c.Credentials = cs
	return c
}

// WithResolver sets the metadata resolver.
func (c *Context) WithResolver(r interfaces.ItemResolver) *Context {
	c.Resolver = r
	return c
}

// WithDownloader sets the download mechanism.
func (c *Context) WithDownloader(d interfaces.DownloadMechanism) *Context {
	c.Downloader = d
	return c
}

// WithClock overrides the clock.
func (c *Context) WithClock(clk clock.Clock) *Context {
	c.Clock = clk
	return c
}

// OpenSession wraps doc in a session, registers it and runs the initial scan.
// scriptBase is passed through to session.Deps; leave it empty when no browser
// will talk back to the session.
func (c *Context) OpenSession(doc *dom.Document, scriptBase string) *session.Session {
	s := session.New(c.NewID(), doc, session.Deps{
		Resolver:    c.Resolver,
		Downloader:  c.Downloader,
		Clock:       c.Clock,
		Domain:      c.Config.SiteDomain(),
		QuietPeriod: c.Config.QuietPeriod,
		RevertDelay: c.Config.RevertDelay,
		ScriptBase:  scriptBase,
		Logger:      c.Log,
	})
	if evicted := c.Sessions.Register(s); evicted != nil {
		c.Log.Info("evicted oldest session", "session", evicted.ID)
	}
	s.Start()
	return s
}
