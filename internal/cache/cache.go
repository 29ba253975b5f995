// Package cache is the read-through cache used by the user and card
// services. Values are stored JSON-encoded under "<namespace>::<key>".
package cache

import (
	"context"
	"time"
)

// Namespace separates entity kinds sharing one backend.
type Namespace string

const (
	Users Namespace = "users"
	Cards Namespace = "cards"
)

// Cache is a namespaced key/value store with last-write-wins semantics.
type Cache interface {
	// Get decodes the value stored under key into dst and reports whether it was present.
	Get(ctx context.Context, ns Namespace, key string, dst any) (bool, error)
	Put(ctx context.Context, ns Namespace, key string, value any) error
	Evict(ctx context.Context, ns Namespace, key string) error
}

// Config selects and sizes the cache backend.
type Config struct {
	RedisAddr     string        `env:"REDIS_ADDR"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB" envDefault:"0"`
	TTL           time.Duration `env:"CACHE_TTL" envDefault:"10m"`
	MaxEntries    int           `env:"CACHE_MAX_ENTRIES" envDefault:"10000"`
}

func storageKey(ns Namespace, key string) string {
	return string(ns) + "::" + key
}
