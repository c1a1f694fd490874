package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

type envelope struct {
	StoredAt time.Time       `json:"stored_at"`
	Payload  json.RawMessage `json:"payload"`
}

// FileStore keeps one JSON file per key in a directory. Files are replaced
// atomically so concurrent readers never see a partial write.
type FileStore struct {
	dir string
	ttl time.Duration
	now func() time.Time
	log *slog.Logger
}

func NewFileStore(dir string, ttl time.Duration, log *slog.Logger) *FileStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = slog.Default()
	}
	return &FileStore{dir: dir, ttl: ttl, now: time.Now, log: log}
}

// SetClock replaces the time source.
func (f *FileStore) SetClock(now func() time.Time) { f.now = now }

func (f *FileStore) path(key string) string {
	return filepath.Join(f.dir, key+".json")
}

// Get returns the payload for key if it was stored within the TTL. Files
// written without an envelope fall back to their modification time.
func (f *FileStore) Get(_ context.Context, key string) ([]byte, bool) {
	p := f.path(key)
	info, err := os.Stat(p)
	if err != nil {
		if !os.IsNotExist(err) {
			f.log.Warn("cache: stat failed", "key", key, "err", err)
		}
		return nil, false
	}

	data, err := os.ReadFile(p)
	if err != nil {
		f.log.Warn("cache: read failed", "key", key, "err", err)
		return nil, false
	}

	storedAt := info.ModTime()
	payload := data

	var env envelope
	if err := json.Unmarshal(data, &env); err == nil && !env.StoredAt.IsZero() && len(env.Payload) > 0 {
		storedAt = env.StoredAt
		payload = env.Payload
	}

	if f.now().Sub(storedAt) >= f.ttl {
		f.log.Debug("cache: entry expired", "key", key, "stored_at", storedAt)
		return nil, false
	}
	return payload, true
}

func (f *FileStore) Put(_ context.Context, key string, payload []byte) {
	if err := f.write(key, payload); err != nil {
		f.log.Warn("cache: write failed", "key", key, "err", err)
	}
}

func (f *FileStore) write(key string, payload []byte) error {
	if !json.Valid(payload) {
		return fmt.Errorf("payload for %s is not valid JSON", key)
	}
	data, err := json.Marshal(envelope{StoredAt: f.now().UTC(), Payload: payload})
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(f.dir, key+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path(key)); err != nil {
		return fmt.Errorf("failed to replace cache file: %w", err)
	}
	return nil
}

// Prune deletes entries older than the TTL and reports how many went.
func (f *FileStore) Prune() (int, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to list cache dir: %w", err)
	}

	removed := 0
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		key := e.Name()[:len(e.Name())-len(".json")]
		if _, ok := f.Get(context.Background(), key); ok {
			continue
		}
		if err := os.Remove(filepath.Join(f.dir, e.Name())); err == nil {
			removed++
		}
	}
	if removed > 0 {
		f.log.Info("cache: pruned expired entries", "count", removed)
	}
	return removed, nil
}
