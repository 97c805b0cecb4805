package clock

import (
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Payload is the event body a LocalClock re-schedules on behalf of its
// owning entity. The simulator (packages/simulation/localtime) uses this
// interface directly as its own payload contract; defining it here lets
// LocalClock re-enter the scheduling path without importing the
// simulator package — a
// dependency the other direction (simulator depends on clock) already
// exists, and package clock is a lower layer in the dependency order
// described in spec.md §2.
type Payload interface {
	Invoke()
	Cancel()
	IsCancelled() bool
	Ref()
	Unref()
}

// EventID is the opaque handle a scheduling operation returns: a weak
// reference to a Payload, the global timestamp it is currently
// scheduled for, the owning context, and a uid unique for the lifetime
// of the simulator. Equality is by UID alone.
type EventID struct {
	UID     uint32
	Context uint32
	ts      Time
	payload Payload
}

// Ts returns the global timestamp this handle was scheduled for at the
// time the handle was issued. LocalClock uses this to compute the
// remaining delay during a re-schedule; it is not updated afterward.
func (e EventID) Ts() Time { return e.ts }

// Payload returns the handle's payload reference.
func (e EventID) Payload() Payload { return e.payload }

// Valid reports whether the handle carries a live payload reference and
// a uid outside the reserved range {0,1,2}.
func (e EventID) Valid() bool {
	return e.payload != nil && e.UID > 2
}

// NewEventID builds an EventID. Exported for use by
// packages/simulation/localtime, the only package expected to
// construct handles.
func NewEventID(uid, context uint32, ts Time, payload Payload) EventID {
	return EventID{UID: uid, Context: context, ts: ts, payload: payload}
}

// Host is the minimal simulator surface a LocalClock needs in order to
// run the re-schedule protocol and to answer GetLocalTime/delay queries
// against the simulator's current global time. Simulator (see
// packages/simulation/localtime) implements this interface; LocalClock
// holds only the interface, never a concrete type, keeping the import
// direction clock -> (nothing) and simulator -> clock, never the
// reverse.
type Host interface {
	// Now returns the simulator's current global time.
	Now() Time

	// Reschedule re-enters the simulator's schedule path on behalf of
	// context, interpreting localDelay in the entity's newly installed
	// clock (SetClock installs it before calling), and returns the
	// freshly minted handle.
	Reschedule(context uint32, localDelay Duration, payload Payload) EventID

	// Supersede records that oldUID has been replaced by newID, so the
	// dispatcher silently drops oldUID when it is eventually popped.
	Supersede(oldUID uint32, newID EventID)
}

// LocalClock is the per-entity façade onto a ClockModel: it owns the
// model exclusively, tracks every event the entity currently has
// outstanding in the simulator, and performs the re-schedule protocol
// (see SetClock) whenever the model is replaced mid-run.
type LocalClock struct {
	mu      sync.Mutex
	context uint32
	model   Model
	host    Host
	events  []EventID
	log     *zerolog.Logger
}

// WithLogger attaches a logger used for the wrong-runtime warning
// SetClock emits when no Host has been bound yet (spec.md §7). Optional;
// if unset, the package-level zerolog logger is used.
func (c *LocalClock) WithLogger(logger zerolog.Logger) *LocalClock {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log = &logger
	return c
}

// NewLocalClock builds a LocalClock bound to context and seeded with the
// given initial model. host may be nil at construction time (e.g. when
// wiring the registry before the simulator exists) but must be set via
// BindHost before the first GetLocalTime or delay query (SetClock
// without a host only swaps the model, see SetClock); this mirrors the
// setup/lifecycle split spec.md §4.2 and §9 describe (created by setup
// code, attached to the simulator's bookkeeping once the run begins).
func NewLocalClock(context uint32, model Model) *LocalClock {
	return &LocalClock{context: context, model: model}
}

// BindHost attaches the simulator surface used by the re-schedule
// protocol. Called once, by the code wiring entities into a simulator.
func (c *LocalClock) BindHost(host Host) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.host = host
}

// Model returns the currently installed clock model.
func (c *LocalClock) Model() Model {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.model
}

// GetLocalTime returns this entity's current local time, derived from
// the simulator's current global time under the installed model.
func (c *LocalClock) GetLocalTime() Time {
	c.mu.Lock()
	model, host := c.model, c.host
	c.mu.Unlock()
	return model.GlobalToLocalTime(host.Now())
}

// GlobalToLocalTime delegates to the installed model.
func (c *LocalClock) GlobalToLocalTime(global Time) Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.model.GlobalToLocalTime(global)
}

// LocalToGlobalTime delegates to the installed model.
func (c *LocalClock) LocalToGlobalTime(local Time) Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.model.LocalToGlobalTime(local)
}

// GlobalToLocalDelay delegates to the installed model, anchored at the
// simulator's current global time.
func (c *LocalClock) GlobalToLocalDelay(delay Duration) Duration {
	c.mu.Lock()
	model, host := c.model, c.host
	c.mu.Unlock()
	return model.GlobalToLocalDelay(host.Now(), delay)
}

// LocalToGlobalDelay delegates to the installed model, anchored at the
// simulator's current global time.
func (c *LocalClock) LocalToGlobalDelay(delay Duration) Duration {
	c.mu.Lock()
	model, host := c.model, c.host
	c.mu.Unlock()
	return model.LocalToGlobalDelay(host.Now(), delay)
}

// isLive reports whether handle e still denotes an outstanding,
// non-expired event: its payload is present and not cancelled, and its
// scheduled time has not already elapsed. SetClock and InsertEvent both
// use this to prune events lazily rather than eagerly tracking pops.
func isLive(e EventID, now Time) bool {
	return e.payload != nil && !e.payload.IsCancelled() && e.ts >= now
}

// InsertEvent records a newly scheduled event on behalf of the owning
// entity. Before inserting, it lazily evicts every expired handle
// already on file; the same uid must never be inserted twice (the
// simulator enforces this by construction — every Schedule* call mints
// a fresh uid).
func (c *LocalClock) InsertEvent(id EventID, now Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evictExpiredLocked(now)
	c.events = append(c.events, id)
}

func (c *LocalClock) evictExpiredLocked(now Time) {
	live := c.events[:0]
	for _, e := range c.events {
		if isLive(e, now) {
			live = append(live, e)
		}
	}
	c.events = live
}

// SetClock atomically replaces the installed model and re-expresses
// every outstanding event under the new model, the central re-schedule
// protocol of spec.md §4.2:
//
//  1. Evict expired handles.
//  2. Snapshot the survivors and clear the tracked list.
//  3. Install the new model.
//  4. For each survivor, in original order: compute its remaining local
//     duration under the old model, re-enter the simulator's schedule
//     path under the new model, and register the supersession so the
//     dispatcher silently drops the stale handle when it is popped.
//
// Atomicity is with respect to the simulator loop, not goroutines: this
// must only be called from within an event payload, which the
// simulator guarantees never runs concurrently with a queue pop (see
// packages/simulation/localtime.Simulator).
func (c *LocalClock) SetClock(newModel Model) {
	c.mu.Lock()
	host := c.host
	if host == nil {
		// wrong-runtime (spec.md §7): no simulator bound to re-enter the
		// schedule path through. The model swap still happens — future
		// GetLocalTime/delay queries observe newModel immediately — but
		// outstanding events cannot be re-expressed and will run at the
		// global timestamp they were originally queued under.
		ctx := c.context
		c.model = newModel
		c.mu.Unlock()
		logger := c.log
		if logger == nil {
			logger = &log.Logger
		}
		logger.Warn().Uint32("context", ctx).Msg("localclock: SetClock called with no simulator bound; outstanding events will not be re-expressed")
		return
	}

	now := host.Now()
	c.evictExpiredLocked(now)
	survivors := c.events
	c.events = nil
	oldModel := c.model
	ctx := c.context
	c.model = newModel
	c.mu.Unlock()

	for _, e := range survivors {
		remaining := oldModel.GlobalToLocalDelay(now, Duration(e.ts-now))
		newID := host.Reschedule(ctx, remaining, e.payload)
		host.Supersede(e.UID, newID)
	}
}
