package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisPrefix = "newspulse:cache:"

// RedisStore shares cached results between processes. Expiry is left to
// Redis via the key TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	log    *slog.Logger
}

func NewRedisStore(client *redis.Client, ttl time.Duration, log *slog.Logger) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = slog.Default()
	}
	return &RedisStore{client: client, ttl: ttl, log: log}
}

// DialRedis connects and pings. A failed ping is returned so the caller can
// pick another backend.
func DialRedis(ctx context.Context, addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: db})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}
	return rdb, nil
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := r.client.Get(ctx, redisPrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.log.Warn("cache: redis get failed", "key", key, "err", err)
		}
		return nil, false
	}
	return val, true
}

func (r *RedisStore) Put(ctx context.Context, key string, payload []byte) {
	if err := r.client.Set(ctx, redisPrefix+key, payload, r.ttl).Err(); err != nil {
		r.log.Warn("cache: redis set failed", "key", key, "err", err)
	}
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
