// Package threadregistry implements the Thread Registry: the
// process-wide resource every worker thread touching a table's append
// path must register with before it may append, per spec.md §5 and
// §9's "Global thread registry" design note (init-on-first-use, no
// hidden thread-locals).
package threadregistry

import (
	"sync"
	"sync/atomic"
)

// HandlerID identifies a registered worker. Values are >= 0.
type HandlerID int64

// Registry issues and tracks handler ids.
type Registry struct {
	next int64 // atomic

	mu    sync.Mutex
	alive map[HandlerID]bool
}

func New() *Registry {
	return &Registry{alive: make(map[HandlerID]bool)}
}

// Register mints a fresh handler id and marks it alive.
func (r *Registry) Register() (HandlerID, error) {
	id := HandlerID(atomic.AddInt64(&r.next, 1) - 1)

	r.mu.Lock()
	r.alive[id] = true
	r.mu.Unlock()

	return id, nil
}

// Deregister removes id from the registry. Deregistering an id that
// isn't registered is a no-op, mirroring mandatory-but-idempotent
// teardown at session close.
func (r *Registry) Deregister(id HandlerID) error {
	r.mu.Lock()
	delete(r.alive, id)
	r.mu.Unlock()
	return nil
}

// IsRegistered reports whether id is currently alive.
func (r *Registry) IsRegistered(id HandlerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.alive[id]
}

var (
	globalOnce sync.Once
	global     *Registry
)

// Global returns the process-wide registry, initializing it on first
// use.
func Global() *Registry {
	globalOnce.Do(func() {
		global = New()
	})
	return global
}
