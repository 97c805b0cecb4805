package localtime

import (
	"container/heap"

	"github.com/clockdomain/ltsim/packages/core/clock"
)

// Scheduler is the pluggable priority-queue abstraction behind the
// simulator's events_queue (spec.md §3, §6's SetScheduler). Ordering
// must be primary by global timestamp ascending, secondary by uid
// ascending, matching I1 and P3.
type Scheduler interface {
	// Insert adds e to the queue.
	Insert(e clock.EventID)

	// RemoveNext pops and returns the earliest-ordered event. ok is
	// false if the queue is empty.
	RemoveNext() (e clock.EventID, ok bool)

	// Remove eagerly deletes e from the queue by uid, reporting whether
	// it was present.
	Remove(e clock.EventID) bool

	// IsEmpty reports whether the queue holds no events.
	IsEmpty() bool

	// Len returns the number of events currently queued.
	Len() int
}

// heapScheduler is the default Scheduler: a container/heap-backed
// min-heap ordered by (ts, uid), grounded on the same pattern the
// retrieved pack's own event-loop project (eventloop.timerHeap) uses
// for its timer queue. Unlike that minimal example, heapScheduler also
// tracks each event's heap index so Remove can use heap.Remove directly
// instead of a linear scan, keeping eager removal O(log n) as spec.md
// §5 requires.
type heapScheduler struct {
	items   []clock.EventID
	indexOf map[uint32]int
}

// NewHeapScheduler constructs the default Scheduler implementation.
func NewHeapScheduler() Scheduler {
	s := &heapScheduler{indexOf: make(map[uint32]int)}
	heap.Init(s)
	return s
}

func (s *heapScheduler) Len() int { return len(s.items) }

func (s *heapScheduler) Less(i, j int) bool {
	a, b := s.items[i], s.items[j]
	if a.Ts() != b.Ts() {
		return a.Ts() < b.Ts()
	}
	return a.UID < b.UID
}

func (s *heapScheduler) Swap(i, j int) {
	s.items[i], s.items[j] = s.items[j], s.items[i]
	s.indexOf[s.items[i].UID] = i
	s.indexOf[s.items[j].UID] = j
}

func (s *heapScheduler) Push(x any) {
	e := x.(clock.EventID)
	s.indexOf[e.UID] = len(s.items)
	s.items = append(s.items, e)
}

func (s *heapScheduler) Pop() any {
	old := s.items
	n := len(old)
	e := old[n-1]
	s.items = old[:n-1]
	delete(s.indexOf, e.UID)
	return e
}

func (s *heapScheduler) Insert(e clock.EventID) {
	heap.Push(s, e)
}

func (s *heapScheduler) RemoveNext() (clock.EventID, bool) {
	if len(s.items) == 0 {
		return clock.EventID{}, false
	}
	return heap.Pop(s).(clock.EventID), true
}

func (s *heapScheduler) Remove(e clock.EventID) bool {
	idx, ok := s.indexOf[e.UID]
	if !ok {
		return false
	}
	heap.Remove(s, idx)
	return true
}

func (s *heapScheduler) IsEmpty() bool {
	return len(s.items) == 0
}
