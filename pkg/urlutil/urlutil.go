// Package urlutil provides URL helpers that preserve the original encoding of
// page attributes.
package urlutil

import (
	"net/url"
	"strings"
)

// ResolveURL resolves a possibly relative page reference against the page URL.
// It works on strings so that CDN paths with parentheses or brackets keep their
// exact encoding. data:, blob: and javascript: references are returned as is.
func ResolveURL(ref string, pageURL string) string {
	ref = strings.TrimSpace(ref)
	switch {
	case ref == "":
		return ref
	case IsAbsolute(ref), hasOpaqueScheme(ref):
		return ref
	case strings.HasPrefix(ref, "//"):
		if parsed, err := url.Parse(pageURL); err == nil && parsed.Scheme != "" {
			return parsed.Scheme + ":" + ref
		}
		return "https:" + ref
	case strings.HasPrefix(ref, "/"):
		origin := Origin(pageURL)
		if origin == "" {
			return ref
		}
		return origin + ref
	case strings.HasPrefix(ref, "?"), strings.HasPrefix(ref, "#"):
		return stripQuery(pageURL) + ref
	}

	dir := Directory(pageURL)
	for strings.HasPrefix(ref, "../") {
		ref = ref[3:]
		trimmed := strings.TrimSuffix(dir, "/")
		if lastSlash := strings.LastIndex(trimmed, "/"); lastSlash >= len(Origin(pageURL)) {
			dir = trimmed[:lastSlash+1]
		}
	}
	return dir + strings.TrimPrefix(ref, "./")
}

// IsAbsolute reports whether ref carries an http(s) scheme.
func IsAbsolute(ref string) bool {
	lower := strings.ToLower(ref)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

func hasOpaqueScheme(ref string) bool {
	lower := strings.ToLower(ref)
	for _, scheme := range []string{"data:", "blob:", "javascript:", "mailto:"} {
		if strings.HasPrefix(lower, scheme) {
			return true
		}
	}
	return false
}

func stripQuery(u string) string {
	if idx := strings.IndexAny(u, "?#"); idx >= 0 {
		return u[:idx]
	}
	return u
}

// Directory returns the page URL up to and including the last path slash.
func Directory(pageURL string) string {
	base := stripQuery(pageURL)
	if len(base) <= len(Origin(pageURL)) {
		return Origin(pageURL) + "/"
	}
	if lastSlash := strings.LastIndex(base, "/"); lastSlash > 0 {
		return base[:lastSlash+1]
	}
	return base
}

// Origin returns scheme://host of u, or "" when u is not absolute.
func Origin(u string) string {
	parsed, err := url.Parse(u)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return ""
	}
	return parsed.Scheme + "://" + parsed.Host
}

// HostMatches reports whether the host of u is domain or one of its subdomains.
func HostMatches(u, domain string) bool {
	parsed, err := url.Parse(u)
	if err != nil {
		return false
	}
	host := strings.ToLower(parsed.Hostname())
	domain = strings.ToLower(strings.TrimSpace(domain))
	if host == "" || domain == "" {
		return false
	}
	return host == domain || strings.HasSuffix(host, "."+domain)
}
