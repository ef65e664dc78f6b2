// Package credential obtains and memoizes the short-lived bearer token used for
// metadata lookups. Tokens are kept in memory and in a persistent key-value
// store together with their issue time, and are only reused while inside the
// validity window.
package credential

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"media-augment-go/pkg/clock"
	"media-augment-go/pkg/interfaces"
	"media-augment-go/pkg/kvstore"
	"media-augment-go/pkg/logging"
	"media-augment-go/pkg/types"
)

// Persistent store keys.
const (
	KeyToken     = "token"
	KeyTokenTime = "token_time"
)

const (
	// DefaultValidity is how long an issued token is trusted.
	DefaultValidity = time.Hour

	authPath       = "/auth/temporary"
	lockRetryDelay = 50 * time.Millisecond
	maxAuthBody    = 64 << 10
)

// Option customises Cache construction.
type Option func(*Cache)

// WithClock overrides the time source.
func WithClock(c clock.Clock) Option {
	return func(cache *Cache) {
		cache.clock = c
	}
}

// WithStore injects the persistence layer.
func WithStore(store interfaces.KVStore) Option {
	return func(cache *Cache) {
		cache.store = store
	}
}

// WithValidity overrides the validity window.
func WithValidity(d time.Duration) Option {
	return func(cache *Cache) {
		if d > 0 {
			cache.validity = d
		}
	}
}

// WithFileLock serialises issuance across processes sharing the same store.
func WithFileLock(path string) Option {
	return func(cache *Cache) {
		if strings.TrimSpace(path) != "" {
			cache.fileLock = flock.New(path)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *logging.Logger) Option {
	return func(cache *Cache) {
		if log != nil {
			cache.log = log
		}
	}
}

// Cache owns the current credential.
type Cache struct {
	authURL  string
	client   interfaces.HTTPClient
	store    interfaces.KVStore
	clock    clock.Clock
	validity time.Duration
	fileLock *flock.Flock
	log      *logging.Logger

	// mu makes the read-check-issue-write sequence a single critical section.
	mu   sync.Mutex
	cred *types.Credential
}

// New creates a cache that issues tokens from apiBase.
func New(apiBase string, client interfaces.HTTPClient, opts ...Option) *Cache {
	c := &Cache{
		authURL:  strings.TrimRight(apiBase, "/") + authPath,
		client:   client,
		clock:    clock.Real{},
		validity: DefaultValidity,
		log:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.store == nil {
		c.store = kvstore.NewMemory()
	}
	if c.client == nil {
		c.client = &http.Client{Timeout: 30 * time.Second}
	}
	c.log = c.log.WithComponent("credential")
	return c
}

// Get returns a credential inside its validity window. It reuses the in-memory
// credential, then a persisted one, and only then asks the auth endpoint.
func (c *Cache) Get(ctx context.Context) (types.Credential, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cred != nil && c.cred.ValidAt(c.clock.Now(), c.validity) {
		return *c.cred, nil
	}

	if c.fileLock != nil {
		locked, err := c.fileLock.TryLockContext(ctx, lockRetryDelay)
		if err != nil || !locked {
			return types.Credential{}, lockError(err)
		}
		defer func() {
			if err := c.fileLock.Unlock(); err != nil {
				c.log.Warn("failed to release issuance lock", "error", err)
			}
		}()
	}

	// The persisted credential may have been written by another process.
	if cred, ok := c.loadPersisted(ctx); ok {
		c.cred = &cred
		c.log.Debug("adopted persisted credential", "issued_at", cred.IssuedAt)
		return cred, nil
	}

	token, err := c.issue(ctx)
	if err != nil {
		c.log.Warn("credential issuance failed", "error", err)
		return types.Credential{}, err
	}

	cred := types.Credential{Token: token, IssuedAt: c.clock.Now()}
	c.persist(ctx, cred)
	c.cred = &cred
	c.log.Info("issued new credential")
	return cred, nil
}

func lockError(err error) error {
	if err != nil {
		return fmt.Errorf("%w: acquire issuance lock: %v", types.ErrAuth, err)
	}
	return fmt.Errorf("%w: issuance lock is held by another process", types.ErrAuth)
}

// Invalidate drops the in-memory and persisted credential.
func (c *Cache) Invalidate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cred = nil
	if err := c.store.Delete(ctx, KeyToken); err != nil {
		return err
	}
	return c.store.Delete(ctx, KeyTokenTime)
}

// Cached reports whether a valid credential is held in memory.
func (c *Cache) Cached() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cred != nil && c.cred.ValidAt(c.clock.Now(), c.validity)
}

func (c *Cache) loadPersisted(ctx context.Context) (types.Credential, bool) {
	token, err := c.store.Get(ctx, KeyToken, "")
	if err != nil {
		c.log.Warn("failed to read persisted token", "error", err)
		return types.Credential{}, false
	}
	if token == "" {
		return types.Credential{}, false
	}

	raw, err := c.store.Get(ctx, KeyTokenTime, "0")
	if err != nil {
		c.log.Warn("failed to read persisted token time", "error", err)
		return types.Credential{}, false
	}
	millis, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || millis <= 0 {
		return types.Credential{}, false
	}

	cred := types.Credential{Token: token, IssuedAt: time.UnixMilli(millis)}
	if !cred.ValidAt(c.clock.Now(), c.validity) {
		return types.Credential{}, false
	}
	return cred, true
}

func (c *Cache) persist(ctx context.Context, cred types.Credential) {
	if err := c.store.Set(ctx, KeyToken, cred.Token); err != nil {
		c.log.Warn("failed to persist token", "error", err)
		return
	}
	stamp := strconv.FormatInt(cred.IssuedAt.UnixMilli(), 10)
	if err := c.store.Set(ctx, KeyTokenTime, stamp); err != nil {
		c.log.Warn("failed to persist token time", "error", err)
	}
}

type authResponse struct {
	Token string `json:"token"`
}

func (c *Cache) issue(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.authURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", types.ErrAuth, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrAuth, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAuthBody))
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", types.ErrAuth, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: auth endpoint returned status %d", types.ErrAuth, resp.StatusCode)
	}

	var parsed authResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("%w: parse response: %v", types.ErrAuth, err)
	}
	if strings.TrimSpace(parsed.Token) == "" {
		return "", fmt.Errorf("%w: no token in response", types.ErrAuth)
	}
	return parsed.Token, nil
}

var _ interfaces.CredentialSource = (*Cache)(nil)
