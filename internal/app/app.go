// Package app provides the main application setup and dependency injection.
package app

import (
	"fmt"
	"io"

	"media-augment-go/pkg/appctx"
	"media-augment-go/pkg/config"
	"media-augment-go/pkg/credential"
	"media-augment-go/pkg/download"
	"media-augment-go/pkg/handlers/api"
	"media-augment-go/pkg/httpclient"
	"media-augment-go/pkg/interfaces"
	"media-augment-go/pkg/kvstore"
	"media-augment-go/pkg/logging"
	"media-augment-go/pkg/metadata"
	"media-augment-go/pkg/pagefetch"
	"media-augment-go/pkg/server"
)

// App is the main application container.
type App struct {
	Ctx        *appctx.Context
	Server     *server.Server
	HTTPClient *httpclient.Client
	Store      interfaces.KVStore

	closers []io.Closer
}

// Options tune New for the CLI commands.
type Options struct {
	ConfigPath string
	// LogLevel overrides the configured level when set.
	LogLevel string
	// LogOutput receives log lines; nil means stdout.
	LogOutput io.Writer
	// Progress receives download progress bars; nil disables them.
	Progress io.Writer
}

// New loads configuration and wires every component.
func New(opts Options) (*App, error) {
	// Load configuration
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}

	// Initialize logger
	log := logging.New(cfg.LogLevel, cfg.LogFormat, opts.LogOutput)
	log.Info("initializing MediaAugment", "port", cfg.Port, "site", cfg.SiteURL, "log_level", cfg.LogLevel)

	a := &App{}

	// Create application context
	ctx := appctx.New(cfg, log)
	a.Ctx = ctx

	// Create HTTP client
	a.HTTPClient = httpclient.New(cfg, log)

	// Credential store
	if cfg.StorePath != "" {
		store, err := kvstore.OpenSQLite(cfg.StorePath)
		if err != nil {
			return nil, fmt.Errorf("open credential store: %w", err)
		}
		a.Store = store
		a.closers = append(a.closers, store)
		log.Info("credential store opened", "path", store.Path())
	} else {
		a.Store = kvstore.NewMemory()
	}

	credOpts := []credential.Option{
		credential.WithStore(a.Store),
		credential.WithValidity(cfg.TokenValidity),
		credential.WithClock(ctx.Clock),
		credential.WithLogger(log),
	}
	if cfg.LockPath != "" {
		credOpts = append(credOpts, credential.WithFileLock(cfg.LockPath))
	}
	creds := credential.New(cfg.APIBase, a.HTTPClient, credOpts...)
	ctx.WithCredentials(creds)
	ctx.WithResolver(metadata.NewClient(cfg.APIBase, a.HTTPClient, creds, log))

	// Download mechanism
	dlOpts := []download.Option{
		download.WithReferer(cfg.SiteURL + "/"),
		download.WithLogger(log),
	}
	if opts.Progress != nil {
		dlOpts = append(dlOpts, download.WithProgress(opts.Progress))
	}
	downloader, err := download.New(cfg.DownloadMode, a.HTTPClient, cfg.DownloadDir, dlOpts...)
	if err != nil {
		a.Close()
		return nil, err
	}
	ctx.WithDownloader(downloader)

	// Page fetcher, with the challenge solver when configured
	solver := pagefetch.NewSolver(cfg.FlareSolverrURL, cfg.FlareSolverrTimeout, log)
	if solver != nil {
		log.Info("challenge solver enabled", "url", cfg.FlareSolverrURL)
	}
	ctx.WithFetcher(pagefetch.New(a.HTTPClient, solver, log))

	// Create HTTP server
	a.Server = server.New(cfg, log)
	api.NewHandlers(ctx).RegisterRoutes(a.Server.Router())
	a.Server.OnShutdown(a.Close)

	return a, nil
}

// Run starts the server and blocks until it stops.
func (a *App) Run() error {
	a.Ctx.Log.Info("starting MediaAugment server", "port", a.Ctx.Config.Port, "base_url", a.Ctx.BaseURL)
	return a.Server.Start()
}

// Close releases sessions and the credential store. It is safe to call twice.
func (a *App) Close() {
	if a.Ctx != nil {
		a.Ctx.Sessions.Close()
	}
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.Ctx.Log.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}
