// Package metadata resolves item identifiers to descriptors through the
// site's authenticated API.
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"media-augment-go/pkg/interfaces"
	"media-augment-go/pkg/logging"
	"media-augment-go/pkg/types"
)

const maxBody = 1 << 20

// Client looks up item metadata.
type Client struct {
	apiBase     string
	http        interfaces.HTTPClient
	credentials interfaces.CredentialSource
	log         *logging.Logger
}

// NewClient creates a metadata client for the API rooted at apiBase.
func NewClient(apiBase string, httpClient interfaces.HTTPClient, credentials interfaces.CredentialSource, log *logging.Logger) *Client {
	if log == nil {
		log = logging.NewNop()
	}
	return &Client{
		apiBase:     strings.TrimRight(apiBase, "/"),
		http:        httpClient,
		credentials: credentials,
		log:         log.WithComponent("metadata"),
	}
}

type gifResponse struct {
	Gif *struct {
		ID   string            `json:"id"`
		URLs map[string]string `json:"urls"`
	} `json:"gif"`
}

// Resolve fetches the descriptor for id. It does not retry.
func (c *Client) Resolve(ctx context.Context, id types.ItemID) (*types.ItemDescriptor, error) {
	if strings.TrimSpace(id.String()) == "" {
		return nil, fmt.Errorf("%w: empty item id", types.ErrMetadata)
	}

	cred, err := c.credentials.Get(ctx)
	if err != nil {
		return nil, err
	}

	endpoint := c.apiBase + "/gifs/" + url.PathEscape(id.String())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", types.ErrMetadata, err)
	}
	req.Header.Set("Authorization", "Bearer "+cred.Token)
	req.Header.Set("Accept", "application/json")

	log := c.log.WithItem(id.String())
	log.Debug("resolving item", "url", endpoint)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrMetadata, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", types.ErrMetadata, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		// The token was revoked early; the next activation issues a fresh one.
		if invErr := c.credentials.Invalidate(ctx); invErr != nil {
			log.Warn("failed to invalidate credential", "error", invErr)
		}
		return nil, fmt.Errorf("%w: credential rejected (status 401)", types.ErrMetadata)
	case resp.StatusCode == http.StatusNotFound:
		// Decided by the body below.
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("%w: status %d", types.ErrMetadata, resp.StatusCode)
	}

	var parsed gifResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		if resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", types.ErrNotFound, id)
		}
		return nil, fmt.Errorf("%w: parse response: %v", types.ErrMetadata, err)
	}
	if parsed.Gif == nil {
		return nil, fmt.Errorf("%w: %s", types.ErrNotFound, id)
	}

	desc := &types.ItemDescriptor{ID: id, URLs: make(map[string]string, len(parsed.Gif.URLs))}
	for quality, u := range parsed.Gif.URLs {
		desc.URLs[quality] = u
	}
	log.Debug("resolved item", "qualities", len(desc.URLs))
	return desc, nil
}

var _ interfaces.ItemResolver = (*Client)(nil)
