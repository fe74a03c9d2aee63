package pool

import (
	"context"
	"sync"

	"github.com/kbukum/nitai/logger"
)

type entry struct {
	pool *Pool
	refs int
}

// Registry holds pools by key with reference counts.
type Registry struct {
	mu    sync.Mutex
	pools map[string]*entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{pools: make(map[string]*entry)}
}

var shared = NewRegistry()

// Shared returns the process-wide registry.
func Shared() *Registry { return shared }

// Retain returns the pool for cfg.Key, creating it on first use, and adds a
// reference. Settings of later callers are ignored while the pool exists.
func (r *Registry) Retain(cfg Config) *Pool {
	cfg.ApplyDefaults()

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.pools[cfg.Key]; ok {
		e.refs++
		if cfg.Size != e.pool.Size() {
			e.pool.log.Debug("pool exists with a different size", logger.Fields(
				"requested", cfg.Size, "size", e.pool.Size(),
			))
		}
		return e.pool
	}

	p := New(cfg)
	r.pools[cfg.Key] = &entry{pool: p, refs: 1}
	p.log.Debug("pool created", logger.Fields("size", p.Size()))
	return p
}

// Drop removes a reference. The last Drop for a key shuts the pool down and
// forgets it, so a later Retain starts a fresh pool.
func (r *Registry) Drop(ctx context.Context, key string) error {
	if key == "" {
		key = DefaultKey
	}

	r.mu.Lock()
	e, ok := r.pools[key]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	e.refs--
	if e.refs > 0 {
		r.mu.Unlock()
		return nil
	}
	delete(r.pools, key)
	r.mu.Unlock()

	return e.pool.Shutdown(ctx)
}

// Lookup returns the live pool for key.
func (r *Registry) Lookup(key string) (*Pool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.pools[key]
	if !ok {
		return nil, false
	}
	return e.pool, true
}

// Refs returns the reference count for key.
func (r *Registry) Refs(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.pools[key]; ok {
		return e.refs
	}
	return 0
}

// Len returns the number of live pools.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pools)
}
