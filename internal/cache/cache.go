// Package cache holds search results for a fixed TTL. Every store is a
// best-effort optimisation: read failures are misses and write failures are
// logged, never returned.
package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"strings"
	"time"
)

// DefaultTTL is how long a stored payload stays valid.
const DefaultTTL = 24 * time.Hour

// Scopes used when deriving keys.
const (
	ScopeRSSSearch = "rss_search"
	ScopeNewsAbout = "news_about"
	ScopeSummary   = "summary"
)

// Store is a key/value store with expiry.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Put(ctx context.Context, key string, payload []byte)
}

// Results is a cached result list together with the limit it was produced
// under. Complete is set when the search ran out of candidates before
// reaching the limit, so the list answers any larger request too.
type Results[T any] struct {
	Limit    int  `json:"limit"`
	Complete bool `json:"complete"`
	Items    []T  `json:"items"`
}

// Covers reports whether the entry can answer a request for n items.
func (r Results[T]) Covers(n int) bool { return r.Complete || r.Limit >= n }

// Key derives a stable key from the query text and a scope string such as
// ScopeRSSSearch or a feed URL.
func Key(query, scope string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	sum := md5.Sum([]byte(normalized + ":" + scope))
	return hex.EncodeToString(sum[:])
}

// Load decodes the payload stored under key into a T.
func Load[T any](ctx context.Context, s Store, key string) (T, bool) {
	var out T
	if s == nil {
		return out, false
	}
	raw, ok := s.Get(ctx, key)
	if !ok {
		return out, false
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		slog.Default().Warn("cache: discarding undecodable payload", "key", key, "err", err)
		var zero T
		return zero, false
	}
	return out, true
}

// Save encodes v and stores it under key.
func Save[T any](ctx context.Context, s Store, key string, v T) {
	if s == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		slog.Default().Warn("cache: cannot encode payload", "key", key, "err", err)
		return
	}
	s.Put(ctx, key, raw)
}
