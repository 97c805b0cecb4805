// Package localtime implements the discrete-event simulation core: a
// priority queue of clock.EventID handles ordered by global timestamp, extended
// with two behaviours an ordinary discrete-event loop does not have —
// Schedule interprets its delay in the scheduling entity's local time,
// and a cancellation-by-supersession table lets the clock re-schedule
// protocol replace a queued event without destroying its payload.
package localtime

import (
	"fmt"
	"math"
	"sync"

	"github.com/rs/zerolog"

	"github.com/clockdomain/ltsim/packages/core/clock"
	"github.com/clockdomain/ltsim/packages/core/registry"
)

// Reserved uids, per spec.md §3: 0 is invalid, 1 denotes "now", 2
// denotes the destroy category. Real uids are minted starting at 4.
const (
	UIDInvalid uint32 = 0
	UIDNow     uint32 = 1
	UIDDestroy uint32 = 2
)

// Observer receives lifecycle notifications from a Simulator run. It is
// the core's only outbound dependency (spec.md §1's tracing/plotting
// collaborator), shaped like the teacher's own EventEmitter so the rest
// of this repo's visualization wiring needs no adapter.
type Observer interface {
	Emit(eventType string, data map[string]interface{})
}

type crossContextEvent struct {
	context uint32
	delay   clock.Duration
	payload clock.Payload
}

// Simulator is the LocalTimeSimulator of spec.md §4.4. Every field
// except crossPending is owned exclusively by the goroutine that calls
// Run — this is the single-threaded cooperative model of spec.md §5,
// not an oversight; ScheduleWithContext is the one operation meant to
// be called from any goroutine, and it is the only state guarded by a
// mutex.
type Simulator struct {
	registry *registry.EntityRegistry
	log      *zerolog.Logger
	observer Observer

	scheduler     Scheduler
	destroyEvents []clock.EventID
	destroyUIDs   map[uint32]struct{}
	superseded    map[uint32]clock.EventID

	currentTs        clock.Time
	currentUID       uint32
	currentContext   uint32
	nextUID          uint32
	unscheduledCount int
	eventCount       int
	stopFlag         bool
	running          bool

	crossMu      sync.Mutex
	crossPending []crossContextEvent
}

// Option configures a Simulator at construction time.
type Option func(*Simulator)

// WithLogger attaches a zerolog.Logger used for the fatal diagnostics
// spec.md §7 describes. The wrong-runtime warning is logged by
// LocalClock.SetClock, not through this logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Simulator) { s.log = &logger }
}

// WithObserver attaches an Observer notified of schedule/dispatch/stop
// lifecycle events; nil (the default) disables notification entirely.
func WithObserver(o Observer) Option {
	return func(s *Simulator) { s.observer = o }
}

// WithScheduler overrides the default heap-backed Scheduler.
func WithScheduler(sch Scheduler) Option {
	return func(s *Simulator) { s.scheduler = sch }
}

// New constructs a Simulator bound to reg, the EntityRegistry used to
// translate a scheduling entity's context id into its LocalClock.
func New(reg *registry.EntityRegistry, opts ...Option) *Simulator {
	s := &Simulator{
		registry:       reg,
		scheduler:      NewHeapScheduler(),
		destroyUIDs:    make(map[uint32]struct{}),
		superseded:     make(map[uint32]clock.EventID),
		currentContext: registry.NoEntity,
		nextUID:        4,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Simulator) emit(eventType string, data map[string]interface{}) {
	if s.observer != nil {
		s.observer.Emit(eventType, data)
	}
}

// fatal logs a diagnostic (when a logger is attached) and aborts the
// simulation, per spec.md §7's precondition-violation/inconsistency
// handling: "the process aborts with a diagnostic identifying the
// operation and, where available, the offending EventId uid."
func (s *Simulator) fatal(op string, uid uint32, msg string) {
	if s.log != nil {
		s.log.Error().Str("op", op).Uint32("uid", uid).Msg(msg)
	}
	panic(fmt.Sprintf("localtime: %s: %s (uid=%d)", op, msg, uid))
}

// SetScheduler replaces the priority queue implementation, draining the
// old one into the new one if non-empty. Callable only between runs.
func (s *Simulator) SetScheduler(sch Scheduler) {
	if s.running {
		s.fatal("SetScheduler", UIDInvalid, "called while the simulator is running")
	}
	for !s.scheduler.IsEmpty() {
		e, ok := s.scheduler.RemoveNext()
		if !ok {
			break
		}
		sch.Insert(e)
	}
	s.scheduler = sch
}

// Now returns the simulator's current global time. Implements
// clock.Host.
func (s *Simulator) Now() clock.Time {
	return s.currentTs
}

// Context returns the context id of the entity currently executing, or
// registry.NoEntity if none.
func (s *Simulator) Context() uint32 {
	return s.currentContext
}

// EventCount returns the number of events dispatched so far.
func (s *Simulator) EventCount() int {
	return s.eventCount
}

// MaxSimulationTime returns the largest representable tick count.
func (s *Simulator) MaxSimulationTime() clock.Time {
	return clock.Time(math.MaxInt64)
}

// SystemID is always 0: this core does not support distributed
// simulation (spec.md §1's explicit Non-goal).
func (s *Simulator) SystemID() int {
	return 0
}

// Schedule enqueues payload after delay, interpreted in the local time
// of the currently executing entity (or as a global delay if no entity
// is executing). It is the entry point both for ordinary application
// scheduling and for the re-schedule protocol's re-entry (see
// Simulator.Reschedule below).
func (s *Simulator) Schedule(delay clock.Duration, payload clock.Payload) clock.EventID {
	if delay < 0 {
		s.fatal("Schedule", UIDInvalid, "negative delay")
	}

	ctx := s.currentContext
	var lc *clock.LocalClock
	var tAbs clock.Time

	if ctx == registry.NoEntity {
		tAbs = s.currentTs + clock.Time(delay)
	} else {
		var ok bool
		lc, ok = s.registry.Lookup(ctx)
		if !ok {
			s.fatal("Schedule", UIDInvalid, fmt.Sprintf("no LocalClock registered for context %d", ctx))
		}
		globalDelay := lc.LocalToGlobalDelay(delay)
		tAbs = s.currentTs + clock.Time(globalDelay)
	}

	uid := s.nextUID
	s.nextUID++
	id := clock.NewEventID(uid, ctx, tAbs, payload)
	s.scheduler.Insert(id)
	s.unscheduledCount++

	if lc != nil {
		lc.InsertEvent(id, s.currentTs)
	}

	s.emit("event_scheduled", map[string]interface{}{"uid": uid, "context": ctx, "ts": int64(tAbs)})
	return id
}

// ScheduleNow is Schedule(0, payload): when a non-sentinel entity is
// active, the resulting global timestamp equals
// clock.LocalToGlobalTime(current local time).
func (s *Simulator) ScheduleNow(payload clock.Payload) clock.EventID {
	return s.Schedule(0, payload)
}

// ScheduleWithContext enqueues payload for context after a delay that
// is always interpreted in global time, regardless of context's clock
// (spec.md §4.4's rationale: transmission delay is a medium property,
// not a function of the destination's clock skew). Unlike Schedule, no
// LocalClock.InsertEvent call is made — the event is not tracked as
// "outstanding" by any entity's re-schedule protocol.
//
// This is the one operation spec.md allows calling from outside the
// simulator's own goroutine. Rather than branching on the caller's
// identity, every call is parked in the mutex-guarded pending queue and
// materialised at the next drain point (before each pop and after each
// dispatch); a call made from the simulator's own goroutine is drained
// within the same loop iteration, which is observationally equivalent
// to the immediate-enqueue path spec.md describes for that case.
func (s *Simulator) ScheduleWithContext(context uint32, delay clock.Duration, payload clock.Payload) {
	if delay < 0 {
		s.fatal("ScheduleWithContext", UIDInvalid, "negative delay")
	}
	s.crossMu.Lock()
	s.crossPending = append(s.crossPending, crossContextEvent{context: context, delay: delay, payload: payload})
	s.crossMu.Unlock()
}

// ScheduleDestroy appends payload to the destroy list, run in insertion
// order at Destroy time, unless cancelled first.
func (s *Simulator) ScheduleDestroy(payload clock.Payload) clock.EventID {
	uid := s.nextUID
	s.nextUID++
	id := clock.NewEventID(uid, s.currentContext, s.MaxSimulationTime(), payload)
	s.destroyUIDs[uid] = struct{}{}
	s.destroyEvents = append(s.destroyEvents, id)
	return id
}

// Cancel marks id's payload cancelled; the dispatcher will still pop it
// but will skip invocation. Idempotent (P7).
func (s *Simulator) Cancel(id clock.EventID) {
	if id.Payload() != nil {
		id.Payload().Cancel()
	}
}

// CancelRescheduling registers that oldID has been superseded by newID;
// it does not itself invalidate oldID's payload. LocalClock.SetClock
// records its supersessions through Supersede (below), which writes the
// same table.
func (s *Simulator) CancelRescheduling(oldID, newID clock.EventID) {
	s.superseded[oldID.UID] = newID
}

// Remove eagerly removes id from the queue (or the destroy list) and
// cancels its payload.
func (s *Simulator) Remove(id clock.EventID) {
	if id.Payload() != nil {
		id.Payload().Cancel()
	}
	if _, isDestroy := s.destroyUIDs[id.UID]; isDestroy {
		for i, e := range s.destroyEvents {
			if e.UID == id.UID {
				s.destroyEvents = append(s.destroyEvents[:i], s.destroyEvents[i+1:]...)
				break
			}
		}
		return
	}
	if s.scheduler.Remove(id) {
		s.unscheduledCount--
	}
}

// IsExpired reports whether id denotes an event that will never (again)
// run: it has been superseded and the superseding event's time has
// already arrived, its payload is gone or cancelled, its scheduled time
// has already passed, or it was scheduled for the current instant but
// at or behind the event currently dispatching. Destroy-category
// handles use a separate rule: expired iff no longer present in the
// pending destroy list.
func (s *Simulator) IsExpired(id clock.EventID) bool {
	if _, isDestroy := s.destroyUIDs[id.UID]; isDestroy {
		for _, e := range s.destroyEvents {
			if e.UID == id.UID {
				return false
			}
		}
		return true
	}

	if newID, ok := s.superseded[id.UID]; ok && newID.Ts() <= s.currentTs {
		return true
	}
	if id.Payload() == nil || id.Payload().IsCancelled() {
		return true
	}
	if id.Ts() < s.currentTs {
		return true
	}
	if id.Ts() == s.currentTs && id.UID <= s.currentUID {
		return true
	}
	return false
}

// DelayLeft returns the remaining global delay until id would run, or 0
// if it is already expired.
func (s *Simulator) DelayLeft(id clock.EventID) clock.Duration {
	if s.IsExpired(id) {
		return 0
	}
	return clock.Duration(id.Ts() - s.currentTs)
}

// Stop halts the run loop before its next iteration. StopAfter
// instead schedules a stop event delay ticks from now.
func (s *Simulator) Stop() {
	s.stopFlag = true
}

// StopAfter schedules a stop delay ticks from now, under the current
// entity's clock exactly like any other Schedule call.
func (s *Simulator) StopAfter(delay clock.Duration) clock.EventID {
	return s.Schedule(delay, NewFuncPayload(func() { s.stopFlag = true }))
}

// drainCrossContext moves every call parked by ScheduleWithContext into
// the queue, timestamping each at current_ts plus its global delay.
func (s *Simulator) drainCrossContext() {
	s.crossMu.Lock()
	pending := s.crossPending
	s.crossPending = nil
	s.crossMu.Unlock()

	for _, p := range pending {
		uid := s.nextUID
		s.nextUID++
		ts := s.currentTs + clock.Time(p.delay)
		id := clock.NewEventID(uid, p.context, ts, p.payload)
		s.scheduler.Insert(id)
		s.unscheduledCount++
	}
}

// Run drains any pending cross-context events, then loops: drain,
// pop the earliest event, drop it silently if superseded, otherwise
// advance current_ts/current_uid/current_context and invoke its
// payload, until the queue empties or Stop is called.
func (s *Simulator) Run() {
	s.running = true
	s.drainCrossContext()

	for !s.scheduler.IsEmpty() && !s.stopFlag {
		s.drainCrossContext()

		id, ok := s.scheduler.RemoveNext()
		if !ok {
			break
		}

		if newID, ok := s.superseded[id.UID]; ok {
			_ = newID
			delete(s.superseded, id.UID)
			s.unscheduledCount--
			continue
		}

		if id.Ts() < s.currentTs {
			s.fatal("Run", id.UID, fmt.Sprintf("popped event ts=%d behind current_ts=%d", id.Ts(), s.currentTs))
		}

		s.currentTs = id.Ts()
		s.currentUID = id.UID
		if id.Context != registry.NoEntity {
			s.currentContext = id.Context
		}
		s.unscheduledCount--

		s.emit("event_dispatched", map[string]interface{}{"uid": id.UID, "context": id.Context, "ts": int64(id.Ts())})

		payload := id.Payload()
		payload.Invoke()
		s.eventCount++
		payload.Unref()

		s.drainCrossContext()
	}

	if s.scheduler.IsEmpty() && s.unscheduledCount != 0 {
		s.fatal("Run", UIDInvalid, fmt.Sprintf("unscheduled_count=%d with an empty queue", s.unscheduledCount))
	}

	s.running = false
	s.emit("simulation_stopped", map[string]interface{}{"ts": int64(s.currentTs), "events": s.eventCount})
}

// Destroy invokes every non-cancelled destroy-category event, in
// insertion order, and clears the destroy list (making every handle
// that was in it expired per IsExpired's destroy-category rule).
func (s *Simulator) Destroy() {
	events := s.destroyEvents
	s.destroyEvents = nil
	for _, e := range events {
		if e.Payload() != nil && !e.Payload().IsCancelled() {
			e.Payload().Invoke()
		}
	}
}

// --- clock.Host implementation: the re-schedule protocol's re-entry point ---

// Reschedule re-enters Schedule on behalf of a LocalClock.SetClock call
// in progress: context becomes the current context for the duration of
// the call, so the new delay is interpreted under the newly installed
// model that LocalClock has already swapped in before calling this.
func (s *Simulator) Reschedule(context uint32, localDelay clock.Duration, payload clock.Payload) clock.EventID {
	savedContext := s.currentContext
	s.currentContext = context
	defer func() { s.currentContext = savedContext }()
	return s.Schedule(localDelay, payload)
}

// Supersede implements clock.Host by recording oldUID -> newID in the
// same supersession table CancelRescheduling writes.
func (s *Simulator) Supersede(oldUID uint32, newID clock.EventID) {
	s.superseded[oldUID] = newID
}

var _ clock.Host = (*Simulator)(nil)
