// Package storage keeps the list of feeds and their last poll outcome.
package storage

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/deusflow/newspulse/internal/models"
)

var (
	ErrFeedNotFound = errors.New("feed not found")
	ErrInvalidURL   = errors.New("feed url must start with http:// or https://")
)

func validFeedURL(url string) bool {
	return strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// MemoryRegistry holds feeds in memory. Insertion order is kept.
type MemoryRegistry struct {
	mu    sync.RWMutex
	feeds []models.FeedDescriptor
}

// NewMemoryRegistry registers every url as an active feed.
func NewMemoryRegistry(urls ...string) *MemoryRegistry {
	r := &MemoryRegistry{}
	for _, u := range urls {
		_ = r.AddFeed(context.Background(), u)
	}
	return r
}

func (r *MemoryRegistry) index(url string) int {
	for i, f := range r.feeds {
		if f.URL == url {
			return i
		}
	}
	return -1
}

func (r *MemoryRegistry) ListFeeds(_ context.Context) ([]models.FeedDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]models.FeedDescriptor(nil), r.feeds...), nil
}

func (r *MemoryRegistry) ListActiveFeeds(_ context.Context) ([]models.FeedDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return activeOnly(r.feeds), nil
}

func (r *MemoryRegistry) AddFeed(_ context.Context, url string) error {
	url = strings.TrimSpace(url)
	if !validFeedURL(url) {
		return ErrInvalidURL
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if i := r.index(url); i >= 0 {
		r.feeds[i].IsActive = true
		return nil
	}
	r.feeds = append(r.feeds, models.FeedDescriptor{URL: url, IsActive: true})
	return nil
}

func (r *MemoryRegistry) SetActive(_ context.Context, url string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.index(url)
	if i < 0 {
		return ErrFeedNotFound
	}
	r.feeds[i].IsActive = active
	return nil
}

func (r *MemoryRegistry) RecordPollResult(_ context.Context, url string, pollErr error, checkedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.index(url)
	if i < 0 {
		return ErrFeedNotFound
	}
	checked := checkedAt.UTC()
	r.feeds[i].LastChecked = &checked
	r.feeds[i].LastError = errorText(pollErr)
	return nil
}

func activeOnly(feeds []models.FeedDescriptor) []models.FeedDescriptor {
	out := make([]models.FeedDescriptor, 0, len(feeds))
	for _, f := range feeds {
		if f.IsActive {
			out = append(out, f)
		}
	}
	return out
}

// SortByURL orders feeds for display.
func SortByURL(feeds []models.FeedDescriptor) {
	sort.SliceStable(feeds, func(i, j int) bool { return feeds[i].URL < feeds[j].URL })
}
