package cache

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Coherent wraps a Cache for read-through use. Concurrent loads of one key
// share a single call, and an Evict of a key invalidates loads of that key
// still in flight: later readers start a fresh load and the overlapped
// result is never written back. Services whose entries depend on each other
// must share one Coherent.
type Coherent struct {
	Cache

	group    singleflight.Group
	mu       sync.Mutex
	inflight map[string]*flight
}

// flight tracks the loads of one key. gen counts evictions seen while any
// of them ran; mu orders write-backs against evictions.
type flight struct {
	mu   sync.Mutex
	refs int
	gen  uint64
}

// NewCoherent wraps c. Wrapping a *Coherent returns it unchanged.
func NewCoherent(c Cache) *Coherent {
	if cc, ok := c.(*Coherent); ok {
		return cc
	}
	return &Coherent{Cache: c, inflight: make(map[string]*flight)}
}

// Evict invalidates in-flight loads of key, then removes it from the backend.
func (c *Coherent) Evict(ctx context.Context, ns Namespace, key string) error {
	k := storageKey(ns, key)
	c.mu.Lock()
	f := c.inflight[k]
	c.mu.Unlock()
	if f != nil {
		f.mu.Lock()
		f.gen++
		f.mu.Unlock()
	}
	c.group.Forget(k)
	return c.Cache.Evict(ctx, ns, key)
}

// Load runs load once for all concurrent callers of key and hands its result
// to store, unless key was evicted while load ran. store runs before any
// later eviction of key completes, so it must not evict key itself.
func (c *Coherent) Load(ns Namespace, key string, load func() (any, error), store func(any)) (any, error) {
	v, err, _ := c.group.Do(storageKey(ns, key), func() (any, error) {
		return c.Refresh(ns, key, load, store)
	})
	return v, err
}

// Refresh is Load without sharing the call. Writers use it to re-cache what
// they just stored.
func (c *Coherent) Refresh(ns Namespace, key string, load func() (any, error), store func(any)) (any, error) {
	k := storageKey(ns, key)
	f, token := c.begin(k)
	defer c.end(k)

	v, err := load()
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	if f.gen == token {
		store(v)
	}
	f.mu.Unlock()
	return v, nil
}

func (c *Coherent) begin(k string) (*flight, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.inflight[k]
	if !ok {
		f = &flight{}
		c.inflight[k] = f
	}
	f.refs++
	f.mu.Lock()
	defer f.mu.Unlock()
	return f, f.gen
}

func (c *Coherent) end(k string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if f := c.inflight[k]; f != nil {
		if f.refs--; f.refs == 0 {
			delete(c.inflight, k)
		}
	}
}
