// Package transport implements the channel/medium model spec.md §1
// names as an out-of-scope collaborator: message delivery between
// simulated entities, scheduled through the core simulator rather than
// a real clock.
package transport

import (
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clockdomain/ltsim/packages/core/clock"
	"github.com/clockdomain/ltsim/packages/simulation/localtime"
)

// MessageType identifies the type of message
type MessageType string

// Envelope wraps a message with routing metadata
type Envelope struct {
	ID         string                 `json:"id"`
	From       string                 `json:"from"`
	To         string                 `json:"to"`
	Type       MessageType            `json:"type"`
	Payload    interface{}            `json:"payload"`
	SentAt     clock.Time             `json:"sentAt"`
	ReceivedAt clock.Time             `json:"receivedAt,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// NewEnvelope creates a new message envelope. SentAt is left zero;
// NetworkTransport.Send does not set it, so callers that want it set it
// themselves before sending.
func NewEnvelope(from, to string, msgType MessageType, payload interface{}) *Envelope {
	return &Envelope{
		ID:       uuid.New().String(),
		From:     from,
		To:       to,
		Type:     msgType,
		Payload:  payload,
		Metadata: make(map[string]interface{}),
	}
}

// DeliveryHandler is called when a message is delivered
type DeliveryHandler func(env *Envelope)

// DropHandler is called when a message is dropped
type DropHandler func(env *Envelope, reason string)

// Transport defines the network transport interface
type Transport interface {
	// Send schedules a message for delivery (may drop it depending on
	// configured reliability characteristics).
	Send(env *Envelope) error

	// RegisterHandler registers a handler for incoming messages, bound
	// to nodeID's simulator context (so delivery lands as that entity's
	// event, per spec.md's schedule_with_context contract).
	RegisterHandler(nodeID string, ctx uint32, handler DeliveryHandler)

	// Configure failure characteristics
	SetLatency(min, max clock.Duration)
	SetPacketLoss(probability float64)
	SetPartition(from, to string, enabled bool)
	ClearPartition(from, to string)
	ClearAllPartitions()

	// Event handlers
	OnDrop(handler DropHandler)

	// Close shuts down the transport
	Close()
}

// NetworkTransport implements Transport by scheduling delivery through
// a LocalTimeSimulator's ScheduleWithContext, instead of a real-time
// goroutine + time.After: transmission latency is a medium property,
// not a function of the receiving entity's clock skew, which is
// exactly ScheduleWithContext's rationale (spec.md §4.4).
type NetworkTransport struct {
	mu sync.RWMutex

	sim *localtime.Simulator

	handlers    map[string]DeliveryHandler
	contextOf   map[string]uint32
	dropHandler DropHandler

	minLatency clock.Duration
	maxLatency clock.Duration
	packetLoss float64 // 0.0 to 1.0

	// partitions[from][to] = true means messages from->to are blocked
	partitions map[string]map[string]bool

	closed bool
}

// NewNetworkTransport creates a transport that schedules delivery
// through sim.
func NewNetworkTransport(sim *localtime.Simulator) *NetworkTransport {
	return &NetworkTransport{
		sim:        sim,
		handlers:   make(map[string]DeliveryHandler),
		contextOf:  make(map[string]uint32),
		partitions: make(map[string]map[string]bool),
	}
}

// RegisterHandler registers a delivery handler for a node, bound to its
// simulator context id.
func (t *NetworkTransport) RegisterHandler(nodeID string, ctx uint32, handler DeliveryHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[nodeID] = handler
	t.contextOf[nodeID] = ctx
}

// OnDrop sets the drop handler
func (t *NetworkTransport) OnDrop(handler DropHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dropHandler = handler
}

// Send schedules env for delivery to its destination's registered
// handler, subject to configured packet loss and partitions. The
// delivery itself always runs as an event on the destination's
// simulator context, dispatched by Simulator.Run — never directly by
// the calling goroutine.
func (t *NetworkTransport) Send(env *Envelope) error {
	t.mu.RLock()
	if t.closed {
		t.mu.RUnlock()
		return nil
	}

	if t.isPartitioned(env.From, env.To) {
		dropHandler := t.dropHandler
		t.mu.RUnlock()
		if dropHandler != nil {
			dropHandler(env, "network_partition")
		}
		return nil
	}

	if t.packetLoss > 0 && rand.Float64() < t.packetLoss {
		dropHandler := t.dropHandler
		t.mu.RUnlock()
		if dropHandler != nil {
			dropHandler(env, "packet_loss")
		}
		return nil
	}

	handler, hasHandler := t.handlers[env.To]
	ctx, hasContext := t.contextOf[env.To]
	minLat, maxLat := t.minLatency, t.maxLatency
	t.mu.RUnlock()

	if !hasHandler || !hasContext {
		return nil // No handler registered
	}

	latency := minLat
	if maxLat > minLat {
		latency = minLat + clock.Duration(rand.Int63n(int64(maxLat-minLat)))
	}

	t.sim.ScheduleWithContext(ctx, latency, localtime.NewFuncPayload(func() {
		envCopy := *env
		envCopy.ReceivedAt = t.sim.Now()
		handler(&envCopy)
	}))

	return nil
}

// SetLatency sets the min and max latency for message delivery, in
// global simulator ticks.
func (t *NetworkTransport) SetLatency(min, max clock.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.minLatency = min
	t.maxLatency = max
}

// SetPacketLoss sets the probability of packet loss (0.0 to 1.0)
func (t *NetworkTransport) SetPacketLoss(probability float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if probability < 0 {
		probability = 0
	}
	if probability > 1 {
		probability = 1
	}
	t.packetLoss = probability
}

// SetPartition creates a network partition between two nodes
func (t *NetworkTransport) SetPartition(from, to string, enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if enabled {
		if t.partitions[from] == nil {
			t.partitions[from] = make(map[string]bool)
		}
		t.partitions[from][to] = true
	} else if t.partitions[from] != nil {
		delete(t.partitions[from], to)
	}
}

// ClearPartition removes a partition between two nodes
func (t *NetworkTransport) ClearPartition(from, to string) {
	t.SetPartition(from, to, false)
}

// ClearAllPartitions removes all network partitions
func (t *NetworkTransport) ClearAllPartitions() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.partitions = make(map[string]map[string]bool)
}

func (t *NetworkTransport) isPartitioned(from, to string) bool {
	return t.partitions[from] != nil && t.partitions[from][to]
}

// CreateBidirectionalPartition creates a partition in both directions
func (t *NetworkTransport) CreateBidirectionalPartition(a, b string) {
	t.SetPartition(a, b, true)
	t.SetPartition(b, a, true)
}

// ClearBidirectionalPartition clears a partition in both directions
func (t *NetworkTransport) ClearBidirectionalPartition(a, b string) {
	t.SetPartition(a, b, false)
	t.SetPartition(b, a, false)
}

// Close shuts down the transport
func (t *NetworkTransport) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
}

// GetNetworkStats returns current network configuration
func (t *NetworkTransport) GetNetworkStats() map[string]interface{} {
	t.mu.RLock()
	defer t.mu.RUnlock()

	partitionList := make([]map[string]string, 0)
	for from, tos := range t.partitions {
		for to := range tos {
			partitionList = append(partitionList, map[string]string{
				"from": from,
				"to":   to,
			})
		}
	}

	return map[string]interface{}{
		"minLatency": time.Duration(t.minLatency).String(),
		"maxLatency": time.Duration(t.maxLatency).String(),
		"packetLoss": t.packetLoss,
		"partitions": partitionList,
	}
}
