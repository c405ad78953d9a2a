// Package urlutil provides URL manipulation helpers shared by the
// resolver, the playback transports, and anything that logs or persists
// stream URLs.
package urlutil

import (
	"net/url"
	"strings"
)

// NormalizeBaseURL normalizes a base URL for consistent path joining:
// a missing scheme defaults to http:// and a trailing slash is removed.
//
//	"console.local:8000/"  -> "http://console.local:8000"
//	"https://c.example/"   -> "https://c.example"
func NormalizeBaseURL(baseURL string) string {
	if baseURL == "" {
		return ""
	}

	baseURL = strings.TrimSpace(baseURL)
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "http://" + baseURL
	}
	return strings.TrimSuffix(baseURL, "/")
}

// JoinPath joins a base URL with a path, ensuring a single separating
// slash.
func JoinPath(baseURL, path string) string {
	if baseURL == "" {
		return path
	}

	baseURL = strings.TrimSuffix(baseURL, "/")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return baseURL + path
}

// ResolveReference resolves a possibly-relative reference (a segment or
// variant URI from a playlist) against the URL the playlist was fetched
// from. Absolute references pass through unchanged.
func ResolveReference(baseURL, ref string) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	target, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(target).String(), nil
}

// credentialParams are query parameter names whose values never belong in
// logs, snapshots, or the events table.
var credentialParams = map[string]struct{}{
	"token":     {},
	"auth":      {},
	"key":       {},
	"apikey":    {},
	"api_key":   {},
	"secret":    {},
	"password":  {},
	"sign":      {},
	"signature": {},
}

// Sanitize strips credentials from a URL for display: userinfo passwords
// are masked and known credential query parameters are redacted. Unparsable
// input is returned unchanged.
func Sanitize(rawURL string) string {
	if rawURL == "" {
		return ""
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	query := u.Query()
	changed := false
	for name := range query {
		if _, ok := credentialParams[strings.ToLower(name)]; ok {
			query.Set(name, "REDACTED")
			changed = true
		}
	}
	if changed {
		u.RawQuery = query.Encode()
	}

	// Redacted masks the userinfo password as "xxxxx".
	return u.Redacted()
}

// IsRemoteURL reports whether the URL uses a fetchable remote scheme.
func IsRemoteURL(rawURL string) bool {
	return strings.HasPrefix(rawURL, "http://") || strings.HasPrefix(rawURL, "https://")
}
