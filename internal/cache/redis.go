package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Redis stores values in a shared Redis so every service instance sees the
// same entries and evictions.
type Redis struct {
	client *redis.Client
	cfg    Config
}

// NewRedis connects to cfg.RedisAddr and pings it.
func NewRedis(ctx context.Context, cfg Config) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.RedisAddr, err)
	}
	return &Redis{client: client, cfg: cfg}, nil
}

func (r *Redis) Get(ctx context.Context, ns Namespace, key string, dst any) (bool, error) {
	k := storageKey(ns, key)
	payload, err := r.client.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get %s: %w", k, err)
	}
	if err := json.Unmarshal(payload, dst); err != nil {
		return false, fmt.Errorf("decode cached %s: %w", k, err)
	}
	return true, nil
}

func (r *Redis) Put(ctx context.Context, ns Namespace, key string, value any) error {
	k := storageKey(ns, key)
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", k, err)
	}
	if err := r.client.Set(ctx, k, payload, r.cfg.TTL).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", k, err)
	}
	return nil
}

func (r *Redis) Evict(ctx context.Context, ns Namespace, key string) error {
	k := storageKey(ns, key)
	if err := r.client.Del(ctx, k).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", k, err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

// Open returns a Redis cache when cfg.RedisAddr is set and reachable, and an
// in-process cache otherwise. The returned close func is never nil.
func Open(ctx context.Context, cfg Config, logger *zap.SugaredLogger) (Cache, func() error) {
	if cfg.RedisAddr != "" {
		r, err := NewRedis(ctx, cfg)
		if err == nil {
			logger.Infow("cache backend", "backend", "redis", "addr", cfg.RedisAddr)
			return r, r.Close
		}
		logger.Warnw("redis unavailable, falling back to in-process cache", "err", err)
	}
	logger.Infow("cache backend", "backend", "memory", "max_entries", cfg.MaxEntries)
	return NewMemory(cfg.MaxEntries, cfg.TTL), func() error { return nil }
}
