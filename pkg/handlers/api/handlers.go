// Package api provides HTTP handlers for the augmenting proxy.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"

	"media-augment-go/pkg/appctx"
	"media-augment-go/pkg/control"
	"media-augment-go/pkg/logging"
	"media-augment-go/pkg/pagefetch"
	"media-augment-go/pkg/registry"
	"media-augment-go/pkg/scanner"
	"media-augment-go/pkg/session"
	"media-augment-go/pkg/types"
	"media-augment-go/pkg/urlutil"
)

// Version is reported by /api/info.
const Version = "1.0.0"

const (
	sessionsPath    = "/api/sessions"
	maxFragmentBody = 1 << 20
)

// Handlers contains all API handlers.
type Handlers struct {
	ctx *appctx.Context
	log *logging.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(ctx *appctx.Context) *Handlers {
	return &Handlers{
		ctx: ctx,
		log: ctx.Log.WithComponent("api"),
	}
}

// RegisterRoutes registers all API routes.
func (h *Handlers) RegisterRoutes(mux *http.ServeMux) {
	// Public routes
	mux.HandleFunc("GET /{$}", h.handleIndex)
	mux.HandleFunc("GET /favicon.ico", h.handleFavicon)
	mux.HandleFunc("GET /api/info", h.handleAPIInfo)

	// Augmented pages
	mux.HandleFunc("GET /page", h.handlePage)

	// Sessions
	mux.HandleFunc("GET /api/sessions", h.handleListSessions)
	mux.HandleFunc("GET /api/sessions/{sid}", h.handleGetSession)
	mux.HandleFunc("DELETE /api/sessions/{sid}", h.handleDeleteSession)
	mux.HandleFunc("POST /api/sessions/{sid}/fragments", h.handleAppendFragment)
	mux.HandleFunc("DELETE /api/sessions/{sid}/elements/{id}", h.handleRemoveElement)
	mux.HandleFunc("POST /api/sessions/{sid}/scan", h.handleScan)
	mux.HandleFunc("POST /api/sessions/{sid}/navigate", h.handleNavigate)
	mux.HandleFunc("GET /api/sessions/{sid}/controls", h.handleListControls)
	mux.HandleFunc("POST /api/sessions/{sid}/controls/{id}/activate", h.handleActivate)

	// Metadata
	mux.HandleFunc("GET /api/items/{id}", h.handleGetItem)
}

// handleIndex serves a small form for opening a site page through the proxy.
func (h *Handlers) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>MediaAugment</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; background: #0f0f0f; color: #fff; }
        .container { max-width: 720px; margin: 0 auto; padding: 40px 20px; }
        h1 { color: #e31010; }
        input[type=url] { width: 100%%; padding: 10px; border-radius: 4px; border: 1px solid #333; background: #1a1a1a; color: #fff; }
        button { margin-top: 12px; padding: 10px 15px; background: #e31010; color: #fff; border: none; border-radius: 4px; font-weight: bold; cursor: pointer; }
        footer { margin-top: 48px; color: #a0a0a0; font-size: 0.9rem; }
        footer a { color: #a0a0a0; }
    </style>
</head>
<body>
    <div class="container">
        <h1>MediaAugment</h1>
        <p>Open a page from %s with a download button on every video.</p>
        <form action="/page" method="get">
            <input type="url" name="url" placeholder="%s/watch/..." required>
            <button type="submit">Open</button>
        </form>
        <footer><a href="/api/info">API Status</a> · Version %s</footer>
    </div>
</body>
</html>`, html.EscapeString(h.ctx.Config.SiteDomain()), html.EscapeString(h.ctx.Config.SiteURL), Version)
}

// handleFavicon serves the favicon.
func (h *Handlers) handleFavicon(w http.ResponseWriter, r *http.Request) {
	http.NotFound(w, r)
}

// handleAPIInfo returns server status as JSON.
func (h *Handlers) handleAPIInfo(w http.ResponseWriter, r *http.Request) {
	info := map[string]any{
		"status":   "running",
		"version":  Version,
		"site":     h.ctx.Config.SiteURL,
		"sessions": h.ctx.Sessions.Len(),
	}
	if c, ok := h.ctx.Credentials.(interface{ Cached() bool }); ok {
		info["credential_cached"] = c.Cached()
	}
	h.writeJSON(w, http.StatusOK, info)
}

// handlePage fetches a site page, augments it and renders it.
func (h *Handlers) handlePage(w http.ResponseWriter, r *http.Request) {
	target := strings.TrimSpace(r.URL.Query().Get("url"))
	if target == "" {
		h.writeError(w, http.StatusBadRequest, "url parameter required")
		return
	}
	target = urlutil.ResolveURL(target, h.ctx.Config.SiteURL+"/")
	if !urlutil.HostMatches(target, h.ctx.Config.SiteDomain()) {
		h.writeError(w, http.StatusBadRequest, "url must point to "+h.ctx.Config.SiteDomain())
		return
	}

	doc, err := h.ctx.Fetcher.Fetch(r.Context(), target)
	if err != nil {
		h.log.WithError(err).Warn("page fetch failed", "url", target)
		h.writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	s := h.ctx.OpenSession(doc, sessionsPath)

	report := s.LastReport()
	h.log.Info("page augmented", "session", s.ID, "url", target, "controls", len(report.Injected))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Session-ID", s.ID)
	if err := s.Render(w); err != nil {
		h.log.WithError(err).Warn("render failed", "session", s.ID)
	}
}

func (h *Handlers) handleListSessions(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.ctx.Sessions.Infos())
}

type sessionDetail struct {
	types.SessionInfo
	Pending       bool                   `json:"pending"`
	LastScan      scanner.Report         `json:"last_scan"`
	Notifications []session.Notification `json:"notifications"`
}

func (h *Handlers) handleGetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, sessionDetail{
		SessionInfo:   s.Info(),
		Pending:       s.Pending(),
		LastScan:      s.LastReport(),
		Notifications: s.Notifications(),
	})
}

func (h *Handlers) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.ctx.Sessions.Remove(r.PathValue("sid")); err != nil {
		h.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type fragmentRequest struct {
	Selector string `json:"selector"`
	HTML     string `json:"html"`
}

// handleAppendFragment inserts markup into a live page, as infinite scroll or
// client-side navigation would.
func (h *Handlers) handleAppendFragment(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req fragmentRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxFragmentBody)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	n, err := s.AppendHTML(req.Selector, req.HTML)
	if err != nil {
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	h.writeJSON(w, http.StatusAccepted, map[string]any{"nodes": n, "pending": s.Pending()})
}

// handleRemoveElement detaches an element by id attribute.
func (h *Handlers) handleRemoveElement(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if !s.RemoveElement(r.PathValue("id")) {
		h.writeError(w, http.StatusNotFound, "no such element")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleScan runs a scan now instead of waiting for the quiet period.
func (h *Handlers) handleScan(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, s.Scan())
}

func (h *Handlers) handleListControls(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, s.Controls())
}

// handleActivate claims the control and starts the download in the
// background; clients follow progress through the controls listing.
func (h *Handlers) handleActivate(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	id := types.ItemID(r.PathValue("id"))
	activation, err := s.Begin(id)
	switch {
	case errors.Is(err, control.ErrUnknownControl):
		h.writeError(w, http.StatusNotFound, "unknown control")
		return
	case errors.Is(err, control.ErrBusy):
		h.writeError(w, http.StatusConflict, "control is busy")
		return
	case err != nil:
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	log := logging.FromContext(r.Context()).WithSession(s.ID).WithItem(id.String())
	go func() {
		// The activation outlives the request.
		if err := activation.Run(context.Background()); err != nil {
			log.Debug("activation ended", "error", types.Describe(err))
		}
	}()
	h.writeJSON(w, http.StatusAccepted, map[string]string{"status": "pending", "item_id": id.String()})
}

type navigateRequest struct {
	URL string `json:"url"`
}

// handleNavigate changes the page address, as client-side routing does.
func (h *Handlers) handleNavigate(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req navigateRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxFragmentBody)).Decode(&req); err != nil || strings.TrimSpace(req.URL) == "" {
		h.writeError(w, http.StatusBadRequest, "url required")
		return
	}
	if err := s.Navigate(req.URL); err != nil {
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	h.writeJSON(w, http.StatusAccepted, map[string]any{"url": s.Info().URL, "pending": s.Pending()})
}

// handleGetItem resolves item metadata directly.
func (h *Handlers) handleGetItem(w http.ResponseWriter, r *http.Request) {
	id := types.ItemID(r.PathValue("id"))
	desc, err := h.ctx.Resolver.Resolve(r.Context(), id)
	if err != nil {
		h.writeError(w, statusFor(err), types.Describe(err))
		return
	}
	selected, err := control.SelectURL(desc)
	resp := map[string]any{
		"id":       desc.ID,
		"urls":     desc.URLs,
		"filename": control.Filename(id, selected),
	}
	if err == nil {
		resp["selected"] = selected
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// Helper methods

func (h *Handlers) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := h.ctx.Sessions.Get(r.PathValue("sid"))
	if err != nil {
		h.writeError(w, http.StatusNotFound, err.Error())
		return nil, false
	}
	return s, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrNotFound), errors.Is(err, registry.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrAuth), errors.Is(err, types.ErrMetadata), errors.Is(err, pagefetch.ErrFetch):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
