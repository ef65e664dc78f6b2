package pagefetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"media-augment-go/pkg/interfaces"
	"media-augment-go/pkg/logging"
)

// Cookie is a cookie returned by the challenge solver.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
}

// Solution is a page fetched by the solver's browser.
type Solution struct {
	URL       string   `json:"url"`
	Status    int      `json:"status"`
	Response  string   `json:"response"`
	Cookies   []Cookie `json:"cookies"`
	UserAgent string   `json:"userAgent"`
}

type solverRequest struct {
	Cmd        string   `json:"cmd"`
	URL        string   `json:"url"`
	MaxTimeout int      `json:"maxTimeout"`
	Cookies    []Cookie `json:"cookies,omitempty"`
}

type solverResponse struct {
	Status   string   `json:"status"`
	Message  string   `json:"message"`
	Solution Solution `json:"solution"`
}

// Solver fetches challenge-protected pages through a FlareSolverr instance.
type Solver struct {
	endpoint string
	timeout  time.Duration
	client   interfaces.HTTPClient
	log      *logging.Logger
}

// NewSolver returns a solver for the FlareSolverr instance at baseURL, or nil
// when baseURL is empty.
func NewSolver(baseURL string, timeout time.Duration, log *logging.Logger) *Solver {
	if strings.TrimSpace(baseURL) == "" {
		return nil
	}
	if log == nil {
		log = logging.NewNop()
	}
	return &Solver{
		endpoint: strings.TrimRight(baseURL, "/") + "/v1",
		timeout:  timeout,
		// The solver drives a real browser; leave headroom over its own budget.
		client: &http.Client{Timeout: timeout + 10*time.Second},
		log:    log.WithComponent("solver"),
	}
}

// Solve fetches targetURL through the solver.
func (s *Solver) Solve(ctx context.Context, targetURL string, cookies []Cookie) (*Solution, error) {
	s.log.Debug("solving page", "url", targetURL)

	body, err := json.Marshal(solverRequest{
		Cmd:        "request.get",
		URL:        targetURL,
		MaxTimeout: int(s.timeout.Milliseconds()),
		Cookies:    cookies,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal solver request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create solver request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send solver request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return nil, fmt.Errorf("read solver response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("solver returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var out solverResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("parse solver response: %w", err)
	}
	if out.Status != "ok" {
		return nil, fmt.Errorf("solver error: %s", out.Message)
	}

	s.log.Debug("page solved",
		"url", targetURL,
		"status", out.Solution.Status,
		"cookies", len(out.Solution.Cookies),
		"bytes", len(out.Solution.Response))
	return &out.Solution, nil
}

// HTTPCookies converts solver cookies for reuse on direct requests.
func HTTPCookies(cookies []Cookie) []*http.Cookie {
	result := make([]*http.Cookie, len(cookies))
	for i, c := range cookies {
		result[i] = &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		}
		if c.Expires > 0 {
			result[i].Expires = time.Unix(int64(c.Expires), 0)
		}
	}
	return result
}
