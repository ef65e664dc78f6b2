// Package pagefetch loads site pages into documents. Pages behind a browser
// challenge are retried through a FlareSolverr instance when one is configured,
// and the cookies it earns are reused for later direct fetches.
package pagefetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"media-augment-go/pkg/dom"
	"media-augment-go/pkg/httpclient"
	"media-augment-go/pkg/interfaces"
	"media-augment-go/pkg/logging"
	"media-augment-go/pkg/urlutil"
)

const maxPageSize = 10 << 20

// ErrFetch wraps page load failures.
var ErrFetch = errors.New("page fetch failed")

// Fetcher loads pages.
type Fetcher struct {
	client interfaces.HTTPClient
	solver *Solver
	log    *logging.Logger

	mu        sync.Mutex
	cookies   map[string][]*http.Cookie // by host
	userAgent string
}

// New returns a fetcher. solver may be nil.
func New(client interfaces.HTTPClient, solver *Solver, log *logging.Logger) *Fetcher {
	if log == nil {
		log = logging.NewNop()
	}
	return &Fetcher{
		client:  client,
		solver:  solver,
		log:     log.WithComponent("pagefetch"),
		cookies: make(map[string][]*http.Cookie),
	}
}

// Fetch loads pageURL and returns its document with media references made
// absolute.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (*dom.Document, error) {
	u, err := url.Parse(pageURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid page url %q", ErrFetch, pageURL)
	}

	body, finalURL, status, err := f.direct(ctx, u)
	if err != nil {
		return nil, err
	}
	if challenged(status) {
		if f.solver == nil {
			return nil, fmt.Errorf("%w: %s answered %d", ErrFetch, u.Host, status)
		}
		f.log.Info("page is challenge-protected, using solver", "url", pageURL, "status", status)
		sol, err := f.solver.Solve(ctx, pageURL, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFetch, err)
		}
		f.remember(u.Host, sol)
		body = []byte(sol.Response)
		if sol.URL != "" {
			finalURL = sol.URL
		}
	} else if status < 200 || status >= 300 {
		return nil, fmt.Errorf("%w: %s answered %d", ErrFetch, u.Host, status)
	}

	doc, err := dom.Parse(bytes.NewReader(body), finalURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	Absolutize(doc)
	return doc, nil
}

func challenged(status int) bool {
	return status == http.StatusForbidden || status == http.StatusServiceUnavailable
}

func (f *Fetcher) direct(ctx context.Context, u *url.URL) ([]byte, string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, "", 0, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	f.mu.Lock()
	ua := f.userAgent
	for _, c := range f.cookies[u.Host] {
		req.AddCookie(c)
	}
	f.mu.Unlock()
	if ua == "" {
		ua = httpclient.UserAgent
	}
	req.Header.Set("User-Agent", ua)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", 0, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return nil, "", 0, fmt.Errorf("%w: read: %v", ErrFetch, err)
	}
	finalURL := u.String()
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}
	return body, finalURL, resp.StatusCode, nil
}

func (f *Fetcher) remember(host string, sol *Solution) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(sol.Cookies) > 0 {
		f.cookies[host] = HTTPCookies(sol.Cookies)
	}
	// Challenge cookies are bound to the browser that earned them.
	if sol.UserAgent != "" {
		f.userAgent = sol.UserAgent
	}
}

var urlAttrs = map[atom.Atom][]string{
	atom.A:      {"href"},
	atom.Img:    {"src"},
	atom.Video:  {"src", "poster"},
	atom.Source: {"src"},
}

// Absolutize rewrites link and media references against the document URL.
func Absolutize(doc *dom.Document) {
	if doc.URL == nil {
		return
	}
	base := doc.URL.String()
	for _, n := range dom.FindAll(doc.Root, func(n *html.Node) bool {
		_, ok := urlAttrs[n.DataAtom]
		return n.Type == html.ElementNode && ok
	}) {
		for _, key := range urlAttrs[n.DataAtom] {
			v, ok := dom.Attr(n, key)
			if !ok || strings.HasPrefix(v, "#") {
				continue
			}
			dom.SetAttr(n, key, urlutil.ResolveURL(v, base))
		}
	}
}
