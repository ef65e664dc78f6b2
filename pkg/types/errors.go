package types

import (
	"errors"
	"strings"
)

var (
	// ErrAuth indicates the bearer credential could not be issued.
	ErrAuth = errors.New("auth error")
	// ErrMetadata indicates the item lookup failed in transport or parsing.
	ErrMetadata = errors.New("metadata error")
	// ErrNotFound indicates the item has no metadata.
	ErrNotFound = errors.New("item not found")
	// ErrNoMedia indicates the item has no usable playback URL.
	ErrNoMedia = errors.New("no media url")
	// ErrDownload indicates the transfer failed after a URL was obtained.
	ErrDownload = errors.New("download failed")
)

// Describe turns an activation error into a message suitable for showing to a user.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	var prefix string
	switch {
	case errors.Is(err, ErrAuth):
		prefix = "Could not obtain an access token"
	case errors.Is(err, ErrNotFound):
		prefix = "This item no longer exists"
	case errors.Is(err, ErrNoMedia):
		prefix = "No downloadable video was found for this item"
	case errors.Is(err, ErrMetadata):
		prefix = "Could not load item details"
	case errors.Is(err, ErrDownload):
		prefix = "The download did not complete"
	default:
		prefix = "Unexpected error"
	}
	detail := strings.TrimSpace(err.Error())
	if detail == "" {
		return prefix
	}
	return prefix + ": " + detail
}
