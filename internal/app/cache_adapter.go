package app

import (
	"context"

	"github.com/deusflow/newspulse/internal/cache"
	"github.com/deusflow/newspulse/internal/logger"
)

// openCache picks the result cache backend. A Redis dial failure falls
// back to the file store so searches keep working without Redis.
func (a *App) openCache(ctx context.Context) cache.Store {
	cfg := a.Config
	log := logger.With("cache")

	switch cfg.CacheBackend {
	case "memory":
		m := cache.NewMemoryStore(cfg.CacheTTL, cfg.CacheTTL/4)
		a.closers = append(a.closers, func() { _ = m.Close() })
		return m
	case "redis":
		rdb, err := cache.DialRedis(ctx, cfg.RedisAddr, cfg.RedisDB)
		if err == nil {
			r := cache.NewRedisStore(rdb, cfg.CacheTTL, log)
			a.closers = append(a.closers, func() { _ = r.Close() })
			return r
		}
		log.Warn("Redis unavailable, using file cache", "addr", cfg.RedisAddr, "err", err)
	}

	fs := cache.NewFileStore(cfg.CacheDir, cfg.CacheTTL, log)
	if n, err := fs.Prune(); err != nil {
		log.Debug("Cache prune failed", "dir", cfg.CacheDir, "err", err)
	} else if n > 0 {
		log.Info("Pruned expired cache entries", "count", n)
	}
	return fs
}
