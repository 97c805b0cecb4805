package localtime

import (
	"sync/atomic"

	"github.com/clockdomain/ltsim/packages/core/clock"
)

// FuncPayload adapts a plain func() into the refcounted clock.Payload
// contract every scheduled event carries (spec.md's EventImpl). It is
// the payload every call site in this repo uses; a supersession shares
// one FuncPayload between the stale and the re-expressed handle, which
// is exactly why Payload must be refcounted rather than copied (see
// spec.md §4.2's rationale and §9's "payload identity without
// copy-construction").
type FuncPayload struct {
	fn        func()
	refs      int32
	cancelled int32
}

// NewFuncPayload wraps fn as a Payload with an initial reference count
// of one, owned by the caller that is about to hand it to Schedule.
func NewFuncPayload(fn func()) *FuncPayload {
	return &FuncPayload{fn: fn, refs: 1}
}

// Invoke runs fn unless the payload has been cancelled in the meantime.
func (p *FuncPayload) Invoke() {
	if atomic.LoadInt32(&p.cancelled) != 0 {
		return
	}
	p.fn()
}

// Cancel marks the payload so a future Invoke is a no-op. Idempotent:
// cancelling an already-cancelled payload has the same observable
// effect as cancelling it once (spec.md P7).
func (p *FuncPayload) Cancel() {
	atomic.StoreInt32(&p.cancelled, 1)
}

// IsCancelled reports whether Cancel has been called.
func (p *FuncPayload) IsCancelled() bool {
	return atomic.LoadInt32(&p.cancelled) != 0
}

// Ref increments the reference count. The simulator itself does not call
// it: a superseded handle is dropped at pop time without Unref, so the
// replacement handle inherits the single reference.
func (p *FuncPayload) Ref() {
	atomic.AddInt32(&p.refs, 1)
}

// Unref decrements the reference count. The simulator core never frees
// Go-managed memory explicitly (the garbage collector does that once
// the last EventID referencing this payload is gone); Unref exists so
// Payload implementations that do own external resources have a
// symmetric hook, matching ns-3's Ref()/Unref() EventImpl contract.
func (p *FuncPayload) Unref() {
	atomic.AddInt32(&p.refs, -1)
}

var _ clock.Payload = (*FuncPayload)(nil)
