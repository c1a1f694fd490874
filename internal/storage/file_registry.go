package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/deusflow/newspulse/internal/models"
)

// feedEntry is the on-disk form. Active is a pointer so entries written by
// hand without the field default to active.
type feedEntry struct {
	URL         string     `yaml:"url"`
	Active      *bool      `yaml:"active,omitempty"`
	LastChecked *time.Time `yaml:"last_checked,omitempty"`
	LastError   string     `yaml:"last_error,omitempty"`
}

type feedsDocument struct {
	Feeds []yaml.Node `yaml:"feeds"`
}

// FileRegistry keeps feeds in a YAML file. It accepts both the plain form
//
//	feeds:
//	  - https://...
//
// and the full form with active/last_checked/last_error per feed. Every
// change rewrites the whole file through a temp file and rename.
type FileRegistry struct {
	path  string
	mu    sync.Mutex
	feeds []models.FeedDescriptor
}

// OpenFileRegistry loads path. A missing file yields an empty registry that
// is created on the first write.
func OpenFileRegistry(path string) (*FileRegistry, error) {
	r := &FileRegistry{path: path}
	feeds, err := loadFeedsFile(path)
	if err != nil {
		return nil, err
	}
	r.feeds = feeds
	return r, nil
}

func loadFeedsFile(path string) ([]models.FeedDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read feeds file: %w", err)
	}

	var doc feedsDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse feeds file: %w", err)
	}

	seen := make(map[string]bool)
	feeds := make([]models.FeedDescriptor, 0, len(doc.Feeds))
	for i := range doc.Feeds {
		node := &doc.Feeds[i]
		var entry feedEntry
		switch node.Kind {
		case yaml.ScalarNode:
			entry.URL = node.Value
		case yaml.MappingNode:
			if err := node.Decode(&entry); err != nil {
				return nil, fmt.Errorf("feeds[%d]: %w", i, err)
			}
		default:
			return nil, fmt.Errorf("feeds[%d]: expected url or mapping", i)
		}

		url := strings.TrimSpace(entry.URL)
		if url == "" || seen[url] {
			continue
		}
		seen[url] = true
		feeds = append(feeds, models.FeedDescriptor{
			URL:         url,
			IsActive:    entry.Active == nil || *entry.Active,
			LastChecked: entry.LastChecked,
			LastError:   entry.LastError,
		})
	}
	return feeds, nil
}

func (r *FileRegistry) index(url string) int {
	for i, f := range r.feeds {
		if f.URL == url {
			return i
		}
	}
	return -1
}

func (r *FileRegistry) ListFeeds(_ context.Context) ([]models.FeedDescriptor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.FeedDescriptor(nil), r.feeds...), nil
}

func (r *FileRegistry) ListActiveFeeds(_ context.Context) ([]models.FeedDescriptor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return activeOnly(r.feeds), nil
}

func (r *FileRegistry) AddFeed(_ context.Context, url string) error {
	url = strings.TrimSpace(url)
	if !validFeedURL(url) {
		return ErrInvalidURL
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	next := r.snapshot()
	if i := r.index(url); i >= 0 {
		next[i].IsActive = true
	} else {
		next = append(next, models.FeedDescriptor{URL: url, IsActive: true})
	}
	return r.commit(next)
}

func (r *FileRegistry) SetActive(_ context.Context, url string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.index(url)
	if i < 0 {
		return ErrFeedNotFound
	}
	next := r.snapshot()
	next[i].IsActive = active
	return r.commit(next)
}

func (r *FileRegistry) RecordPollResult(_ context.Context, url string, pollErr error, checkedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.index(url)
	if i < 0 {
		return ErrFeedNotFound
	}
	checked := checkedAt.UTC()
	next := r.snapshot()
	next[i].LastChecked = &checked
	next[i].LastError = errorText(pollErr)
	return r.commit(next)
}

func (r *FileRegistry) snapshot() []models.FeedDescriptor {
	return append([]models.FeedDescriptor(nil), r.feeds...)
}

// commit writes feeds to disk and only then makes them visible, so a failed
// write leaves the registry as it was. Must be called with r.mu held.
func (r *FileRegistry) commit(feeds []models.FeedDescriptor) error {
	if err := r.save(feeds); err != nil {
		return err
	}
	r.feeds = feeds
	return nil
}

func (r *FileRegistry) save(feeds []models.FeedDescriptor) error {
	entries := make([]feedEntry, len(feeds))
	for i, f := range feeds {
		active := f.IsActive
		entries[i] = feedEntry{URL: f.URL, Active: &active, LastChecked: f.LastChecked, LastError: f.LastError}
	}
	data, err := yaml.Marshal(struct {
		Feeds []feedEntry `yaml:"feeds"`
	}{entries})
	if err != nil {
		return fmt.Errorf("failed to marshal feeds: %w", err)
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create feeds dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write feeds: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write feeds: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		return fmt.Errorf("failed to replace feeds file: %w", err)
	}
	return nil
}
