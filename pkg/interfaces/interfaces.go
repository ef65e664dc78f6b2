// Package interfaces defines the seams between the page-augmentation engine and
// its external collaborators: the credential and metadata services, the
// persistent key-value store, and the download mechanism. Each has a production
// implementation and can be replaced in tests.
package interfaces

import (
	"context"
	"net/http"

	"media-augment-go/pkg/types"
)

// KVStore is the persistent key-value store used by the credential cache.
type KVStore interface {
	// Get returns the value stored under key, or def when absent.
	Get(ctx context.Context, key, def string) (string, error)

	// Set stores value under key.
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}

// CredentialSource hands out a currently valid bearer credential.
type CredentialSource interface {
	// Get returns a credential inside its validity window, issuing one if needed.
	Get(ctx context.Context) (types.Credential, error)

	// Invalidate forgets the cached credential so the next Get issues a new one.
	Invalidate(ctx context.Context) error
}

// ItemResolver resolves an item identifier to its descriptor.
type ItemResolver interface {
	Resolve(ctx context.Context, id types.ItemID) (*types.ItemDescriptor, error)
}

// DownloadMechanism transfers a URL to a named file.
//
// Implementations report the outcome in the returned result rather than
// through callbacks. A failed transfer sets Result.Err wrapping types.ErrDownload.
type DownloadMechanism interface {
	Download(ctx context.Context, url, filename string) types.DownloadResult
}

// Notifier surfaces a message to the user of a page.
type Notifier interface {
	Notify(id types.ItemID, message string)
}

// HTTPClient abstracts HTTP operations for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}
