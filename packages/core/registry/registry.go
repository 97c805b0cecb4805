// Package registry implements the process-wide numeric-context-id to
// LocalClock lookup the simulator uses whenever an operation needs to
// translate a local delay into a global one (spec.md §4.3).
package registry

import (
	"fmt"
	"sync"

	"github.com/clockdomain/ltsim/packages/core/clock"
)

// NoEntity is the sentinel context id meaning "no entity", used by the
// simulator for post-simulation application-stop events and for any
// operation not performed on behalf of a registered entity.
const NoEntity uint32 = 0xFFFFFFFF

// EntityRegistry is a process-wide {context_id: *clock.LocalClock}
// mapping populated during simulation setup. It is safe for concurrent
// registration, though in practice every entity is registered before
// the simulator's Run begins.
type EntityRegistry struct {
	mu     sync.RWMutex
	clocks map[uint32]*clock.LocalClock
}

// New creates an empty EntityRegistry.
func New() *EntityRegistry {
	return &EntityRegistry{clocks: make(map[uint32]*clock.LocalClock)}
}

// Register binds contextID to lc. Registering the same contextID twice
// replaces the previous binding.
func (r *EntityRegistry) Register(contextID uint32, lc *clock.LocalClock) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clocks[contextID] = lc
}

// Lookup returns the LocalClock registered for contextID, or (nil,
// false) if none exists.
func (r *EntityRegistry) Lookup(contextID uint32) (*clock.LocalClock, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lc, ok := r.clocks[contextID]
	return lc, ok
}

// MustLookup returns the LocalClock registered for contextID, panicking
// if none exists. Used on paths where the caller has already
// established (e.g. via Schedule's own context) that the entity must be
// registered; spec.md §7 classifies a miss here as the fatal
// "no-such-entity" error kind.
func (r *EntityRegistry) MustLookup(contextID uint32) *clock.LocalClock {
	lc, ok := r.Lookup(contextID)
	if !ok {
		panic(fmt.Sprintf("registry: no LocalClock registered for context %d", contextID))
	}
	return lc
}

// Unregister removes contextID's binding, if any.
func (r *EntityRegistry) Unregister(contextID uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clocks, contextID)
}

// Len returns the number of registered contexts.
func (r *EntityRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clocks)
}
