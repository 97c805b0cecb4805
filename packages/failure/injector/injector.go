package injector

import (
	"sync"

	"github.com/google/uuid"

	"github.com/clockdomain/ltsim/packages/core/clock"
	"github.com/clockdomain/ltsim/packages/simulation/localtime"
)

// FailureType categorizes failures
type FailureType int

const (
	FailureCrash FailureType = iota
	FailurePartition
	FailureDelay
)

func (f FailureType) String() string {
	switch f {
	case FailureCrash:
		return "crash"
	case FailurePartition:
		return "partition"
	case FailureDelay:
		return "delay"
	default:
		return "unknown"
	}
}

// Failure represents a scheduled or active failure
type Failure struct {
	ID        string
	Type      FailureType
	Target    string // Node ID or "partition:A:B"
	StartTime clock.Duration
	Duration  clock.Duration // how long the failure lasts (0 = permanent)
	Params    map[string]interface{}
	Active    bool
}

// NodeManager interface for controlling nodes
type NodeManager interface {
	CrashNode(nodeID string)
	RecoverNode(nodeID string)
	SetNodeDelay(nodeID string, delay clock.Duration)
	ClearNodeDelay(nodeID string)
}

// NetworkManager interface for controlling network
type NetworkManager interface {
	CreatePartition(from, to string)
	HealPartition(from, to string)
	SetLatency(min, max clock.Duration)
}

// EventEmitter interface for emitting events
type EventEmitter interface {
	Emit(eventType string, data map[string]interface{})
}

// Injector manages failure injection, driven by the simulator's event
// queue rather than a wall-clock ticker: every failure and recovery is
// itself a scheduled event, so failure timing reproduces exactly like
// everything else the simulator dispatches.
type Injector struct {
	mu sync.RWMutex

	sim *localtime.Simulator

	failures       map[string]*Failure
	nodeManager    NodeManager
	networkManager NetworkManager
	emitter        EventEmitter
}

// NewInjector creates a new failure injector bound to sim.
func NewInjector(sim *localtime.Simulator, nodeManager NodeManager, networkManager NetworkManager, emitter EventEmitter) *Injector {
	return &Injector{
		sim:            sim,
		failures:       make(map[string]*Failure),
		nodeManager:    nodeManager,
		networkManager: networkManager,
		emitter:        emitter,
	}
}

// InjectCrash immediately crashes a node
func (i *Injector) InjectCrash(nodeID string) *Failure {
	i.mu.Lock()
	defer i.mu.Unlock()

	failure := &Failure{
		ID:     uuid.New().String(),
		Type:   FailureCrash,
		Target: nodeID,
		Active: true,
	}

	i.failures[failure.ID] = failure

	if i.nodeManager != nil {
		i.nodeManager.CrashNode(nodeID)
	}

	if i.emitter != nil {
		i.emitter.Emit("node_crashed", map[string]interface{}{
			"nodeId":    nodeID,
			"failureId": failure.ID,
		})
	}

	return failure
}

// RecoverNode recovers a crashed node
func (i *Injector) RecoverNode(nodeID string) {
	i.mu.Lock()
	defer i.mu.Unlock()

	for id, f := range i.failures {
		if f.Target == nodeID && f.Type == FailureCrash && f.Active {
			f.Active = false
			delete(i.failures, id)
			break
		}
	}

	if i.nodeManager != nil {
		i.nodeManager.RecoverNode(nodeID)
	}

	if i.emitter != nil {
		i.emitter.Emit("node_recovered", map[string]interface{}{
			"nodeId": nodeID,
		})
	}
}

// InjectPartition creates a network partition between two nodes
func (i *Injector) InjectPartition(from, to string, bidirectional bool) *Failure {
	i.mu.Lock()
	defer i.mu.Unlock()

	target := from + ":" + to
	if bidirectional {
		target = target + ":bidirectional"
	}

	failure := &Failure{
		ID:     uuid.New().String(),
		Type:   FailurePartition,
		Target: target,
		Params: map[string]interface{}{
			"from":          from,
			"to":            to,
			"bidirectional": bidirectional,
		},
		Active: true,
	}

	i.failures[failure.ID] = failure

	if i.networkManager != nil {
		i.networkManager.CreatePartition(from, to)
		if bidirectional {
			i.networkManager.CreatePartition(to, from)
		}
	}

	if i.emitter != nil {
		i.emitter.Emit("partition_created", map[string]interface{}{
			"from":          from,
			"to":            to,
			"bidirectional": bidirectional,
			"failureId":     failure.ID,
		})
	}

	return failure
}

// HealPartition removes a network partition
func (i *Injector) HealPartition(from, to string, bidirectional bool) {
	i.mu.Lock()
	defer i.mu.Unlock()

	for id, f := range i.failures {
		if f.Type == FailurePartition && f.Active {
			params := f.Params
			if params["from"] == from && params["to"] == to {
				f.Active = false
				delete(i.failures, id)
				break
			}
		}
	}

	if i.networkManager != nil {
		i.networkManager.HealPartition(from, to)
		if bidirectional {
			i.networkManager.HealPartition(to, from)
		}
	}

	if i.emitter != nil {
		i.emitter.Emit("partition_healed", map[string]interface{}{
			"from":          from,
			"to":            to,
			"bidirectional": bidirectional,
		})
	}
}

// ScheduleFailure schedules f and, if it has a Duration, its matching
// recovery, as events on the simulator's own queue via Schedule.
// StartTime and Duration are ticks relative to the simulator's current
// time, read as global ticks when no entity context is current and in
// that entity's local time otherwise (Schedule's rule).
func (i *Injector) ScheduleFailure(f *Failure) {
	i.sim.Schedule(f.StartTime, localtime.NewFuncPayload(func() {
		i.executeFailure(f)
	}))

	if f.Duration > 0 {
		i.sim.Schedule(f.StartTime+f.Duration, localtime.NewFuncPayload(func() {
			i.executeRecovery(f)
		}))
	}
}

// executeFailure executes a failure
func (i *Injector) executeFailure(f *Failure) {
	switch f.Type {
	case FailureCrash:
		i.InjectCrash(f.Target)
	case FailurePartition:
		from := f.Params["from"].(string)
		to := f.Params["to"].(string)
		bidir := false
		if b, ok := f.Params["bidirectional"].(bool); ok {
			bidir = b
		}
		i.InjectPartition(from, to, bidir)
	case FailureDelay:
		if i.nodeManager != nil {
			delay := f.Params["delay"].(clock.Duration)
			i.nodeManager.SetNodeDelay(f.Target, delay)
		}
	}
}

// executeRecovery executes a recovery
func (i *Injector) executeRecovery(f *Failure) {
	switch f.Type {
	case FailureCrash:
		i.RecoverNode(f.Target)
	case FailurePartition:
		from := f.Params["from"].(string)
		to := f.Params["to"].(string)
		bidir := false
		if b, ok := f.Params["bidirectional"].(bool); ok {
			bidir = b
		}
		i.HealPartition(from, to, bidir)
	case FailureDelay:
		if i.nodeManager != nil {
			i.nodeManager.ClearNodeDelay(f.Target)
		}
	}
}

// GetActiveFailures returns all active failures
func (i *Injector) GetActiveFailures() []*Failure {
	i.mu.RLock()
	defer i.mu.RUnlock()

	failures := make([]*Failure, 0, len(i.failures))
	for _, f := range i.failures {
		if f.Active {
			failures = append(failures, f)
		}
	}
	return failures
}

// ClearAll clears all active failures
func (i *Injector) ClearAll() {
	i.mu.Lock()
	defer i.mu.Unlock()

	for _, f := range i.failures {
		if f.Active {
			switch f.Type {
			case FailureCrash:
				if i.nodeManager != nil {
					i.nodeManager.RecoverNode(f.Target)
				}
			case FailurePartition:
				if i.networkManager != nil {
					from := f.Params["from"].(string)
					to := f.Params["to"].(string)
					i.networkManager.HealPartition(from, to)
					if bidir, ok := f.Params["bidirectional"].(bool); ok && bidir {
						i.networkManager.HealPartition(to, from)
					}
				}
			}
		}
	}

	i.failures = make(map[string]*Failure)
}
