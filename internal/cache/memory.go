package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/golang/groupcache/lru"
)

type memoryEntry struct {
	payload   []byte
	expiresAt time.Time
}

// Memory is an in-process LRU cache. It is used when no Redis is configured
// and in tests.
type Memory struct {
	mu  sync.Mutex
	lru *lru.Cache
	ttl time.Duration
	now func() time.Time
}

// NewMemory returns a cache holding at most maxEntries values, each for ttl
// (zero ttl keeps values until evicted or pushed out).
func NewMemory(maxEntries int, ttl time.Duration) *Memory {
	return &Memory{lru: lru.New(maxEntries), ttl: ttl, now: time.Now}
}

func (m *Memory) Get(_ context.Context, ns Namespace, key string, dst any) (bool, error) {
	k := storageKey(ns, key)
	m.mu.Lock()
	v, ok := m.lru.Get(k)
	if ok {
		e := v.(memoryEntry)
		if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
			m.lru.Remove(k)
			ok = false
		}
	}
	m.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(v.(memoryEntry).payload, dst); err != nil {
		return false, fmt.Errorf("decode cached %s: %w", k, err)
	}
	return true, nil
}

func (m *Memory) Put(_ context.Context, ns Namespace, key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", storageKey(ns, key), err)
	}
	e := memoryEntry{payload: payload}
	if m.ttl > 0 {
		e.expiresAt = m.now().Add(m.ttl)
	}
	m.mu.Lock()
	m.lru.Add(storageKey(ns, key), e)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Evict(_ context.Context, ns Namespace, key string) error {
	m.mu.Lock()
	m.lru.Remove(storageKey(ns, key))
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lru.Len()
}
