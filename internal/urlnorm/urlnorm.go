// Package urlnorm absolutizes, cleans and canonicalizes URLs found in feeds
// and scraped pages. Every function reports failure with an ok flag or an
// empty string and never panics on malformed input.
package urlnorm

import (
	"net/url"
	"regexp"
	"strings"
)

var multiSlash = regexp.MustCompile(`/{2,}`)

// sizingParams are query parameters that select an image variant.
var sizingParams = map[string]struct{}{
	"width":   {},
	"height":  {},
	"w":       {},
	"h":       {},
	"quality": {},
	"q":       {},
	"crop":    {},
	"fit":     {},
}

// IsDataURI reports whether s is an inline data: URI.
func IsDataURI(s string) bool {
	return len(s) >= 5 && strings.EqualFold(s[:5], "data:")
}

func isHTTP(s string) bool {
	l := strings.ToLower(s)
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}

// Absolutize resolves candidate against base. Data URIs pass through
// unchanged, absolute http(s) URLs only get their path slashes collapsed.
func Absolutize(candidate, base string) (string, bool) {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return "", false
	}
	if IsDataURI(candidate) {
		return candidate, true
	}
	if isHTTP(candidate) {
		return collapse(candidate)
	}

	b, err := url.Parse(strings.TrimSpace(base))
	if err != nil || b.Host == "" || (b.Scheme != "http" && b.Scheme != "https") {
		return "", false
	}

	switch {
	case strings.HasPrefix(candidate, "//"):
		return collapse(b.Scheme + ":" + candidate)
	case strings.HasPrefix(candidate, "/"):
		return collapse(b.Scheme + "://" + b.Host + candidate)
	}

	ref, err := url.Parse(candidate)
	if err != nil {
		return "", false
	}
	// javascript:, mailto: and friends are not fetchable resources
	if ref.Scheme != "" {
		return "", false
	}
	return collapse(b.ResolveReference(ref).String())
}

func collapse(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", false
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	u.Path = multiSlash.ReplaceAllString(u.Path, "/")
	if u.RawPath != "" {
		u.RawPath = multiSlash.ReplaceAllString(u.RawPath, "/")
	}
	return u.String(), true
}

// Clean drops query parameters that do not affect which image variant is
// served. The result is used as a stable identity for image candidates.
func Clean(raw string) string {
	if IsDataURI(raw) {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if u.RawQuery != "" {
		q := u.Query()
		for k := range q {
			if _, ok := sizingParams[strings.ToLower(k)]; !ok {
				q.Del(k)
			}
		}
		u.RawQuery = q.Encode()
	}
	u.Fragment = ""
	return u.String()
}

// Canonical returns the deduplication form of an article URL: lowercase
// scheme and host, no fragment, no tracking parameters, collapsed slashes,
// no trailing slash. Returns "" for input that is not an http(s) URL.
func Canonical(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return ""
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	u.Path = multiSlash.ReplaceAllString(u.Path, "/")
	u.RawPath = ""

	if u.RawQuery != "" {
		q := u.Query()
		for k := range q {
			lk := strings.ToLower(k)
			if strings.HasPrefix(lk, "utm_") || lk == "fbclid" || lk == "gclid" {
				q.Del(k)
			}
		}
		u.RawQuery = q.Encode()
	}

	return strings.TrimRight(u.String(), "/")
}

// Host returns the lowercase hostname of raw, or "".
func Host(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
