// Package clocks implements the per-entity local clock visualization:
// a handful of nodes, each running under its own clock.Model, trading
// messages through a simulated network while the simulator's
// discrete-event core drives delivery and a scripted mid-run clock
// swap exercises the re-schedule protocol live.
package clocks

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/clockdomain/ltsim/packages/core/clock"
	"github.com/clockdomain/ltsim/packages/core/registry"
	"github.com/clockdomain/ltsim/packages/network/transport"
	"github.com/clockdomain/ltsim/packages/protocol"
	"github.com/clockdomain/ltsim/packages/simulation/localtime"
	"github.com/clockdomain/ltsim/packages/visualization/events"
)

const (
	MsgEvent   transport.MessageType = "event"
	MsgRequest transport.MessageType = "request"
	MsgReply   transport.MessageType = "reply"
)

// Simulation implements the per-entity clock visualization
type Simulation struct {
	mu sync.RWMutex

	sim       *localtime.Simulator
	registry  *registry.EntityRegistry
	transport *transport.NetworkTransport
	bus       *events.EventBus
	broadcast func(interface{})

	nodes    []*ClockNode
	scenario string
	running  bool
	cancel   context.CancelFunc
}

// ClockNode represents a node with its own local clock, hosted as an
// entity in the simulator's registry.
type ClockNode struct {
	mu sync.RWMutex

	id         string
	ctx        uint32
	lc         *clock.LocalClock
	status     string
	eventCount int

	simulation *Simulation
	nodeIDs    []string
}

// Config for Clocks simulation
type Config struct {
	NodeCount int
	Scenario  string
}

// contextFor maps a 0-indexed node slot to a stable simulator context
// id, starting at 1 (registry.NoEntity is 0xFFFFFFFF).
func contextFor(i int) uint32 {
	return uint32(i + 1)
}

// NewSimulation creates a new Clocks simulation
func NewSimulation(broadcast func(interface{}), config Config) *Simulation {
	if config.NodeCount == 0 {
		config.NodeCount = 3
	}

	reg := registry.New()
	bus := events.NewEventBus()
	sim := localtime.New(reg, localtime.WithObserver(events.NewSimulatorObserver(bus)))
	trans := transport.NewNetworkTransport(sim)

	s := &Simulation{
		sim:       sim,
		registry:  reg,
		transport: trans,
		bus:       bus,
		broadcast: broadcast,
		scenario:  config.Scenario,
	}

	trans.SetLatency(2, 6)
	trans.SetPacketLoss(0)
	trans.OnDrop(func(env *transport.Envelope, reason string) {
		s.broadcast(&protocol.MessageEventResponse{
			Type:        protocol.MsgMessageDropped,
			MessageID:   env.ID,
			From:        env.From,
			To:          env.To,
			MessageType: string(env.Type),
			Reason:      reason,
		})
	})

	bus.Subscribe(func(evt events.Event) {
		s.broadcast(map[string]interface{}{
			"type": string(evt.EventType()),
			"data": evt.Data(),
		})
	})

	nodeIDs := make([]string, config.NodeCount)
	for i := 0; i < config.NodeCount; i++ {
		nodeIDs[i] = fmt.Sprintf("node-%d", i+1)
	}

	s.nodes = make([]*ClockNode, config.NodeCount)
	for i := 0; i < config.NodeCount; i++ {
		node := s.newClockNode(nodeIDs[i], contextFor(i), nodeIDs, config.Scenario)
		s.nodes[i] = node
		trans.RegisterHandler(nodeIDs[i], node.ctx, node.handleMessage)
	}

	// Scripted re-schedule: at global tick 30, node 0's affine
	// frequency doubles; its own outstanding tick event (queued via
	// Schedule) is re-expressed under the new model rather than
	// dropped or duplicated (spec.md's re-schedule protocol). Message
	// deliveries queued through ScheduleWithContext are not tracked by
	// the LocalClock and keep their global timestamps.
	if len(s.nodes) > 0 {
		swapNode := s.nodes[0]
		sim.ScheduleWithContext(registry.NoEntity, 30, localtime.NewFuncPayload(func() {
			newModel := clock.NewAffine(swapNode.lc.Model().(*clock.Affine).Frequency()*2, 0)
			swapNode.lc.SetClock(newModel)
			s.broadcast(events.NewClockSwappedEvent(swapNode.id, int64(sim.Now())).Data())
		}))
	}

	return s
}

func (s *Simulation) newClockNode(id string, ctx uint32, nodeIDs []string, scenario string) *ClockNode {
	freq := 1.0
	switch {
	case scenario == "fast_slow" && ctx == contextFor(0):
		freq = 0.5
	case scenario == "fast_slow" && ctx == contextFor(1):
		freq = 2.0
	}

	lc := clock.NewLocalClock(ctx, clock.NewAffine(freq, 0))
	lc.BindHost(s.sim)
	s.registry.Register(ctx, lc)

	node := &ClockNode{
		id:         id,
		ctx:        ctx,
		lc:         lc,
		status:     "running",
		simulation: s,
		nodeIDs:    nodeIDs,
	}

	// Each node kicks off its own periodic local-event / send loop via
	// a bootstrap event scheduled under its own context.
	s.sim.ScheduleWithContext(ctx, 0, localtime.NewFuncPayload(func() {
		node.tick()
	}))

	return node
}

// Start starts the simulation's discrete-event loop in the background.
// Everything that mutates simulator state after this point — crashes,
// recoveries, injected messages — must go through ScheduleWithContext,
// since Simulator.Run owns its own goroutine from here on.
func (s *Simulation) Start(ctx context.Context) error {
	s.mu.Lock()
	s.running = true
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	go func() {
		s.sim.Run()
		s.sim.Destroy()
		<-runCtx.Done()
	}()

	return nil
}

// Stop stops the simulation
func (s *Simulation) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.running = false
	s.sim.Stop()
	if s.cancel != nil {
		s.cancel()
	}
	s.transport.Close()

	return nil
}

// GetState returns the current simulation state
func (s *Simulation) GetState() *protocol.SimulationStateResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	nodes := make(map[string]protocol.NodeState)
	for _, node := range s.nodes {
		nodes[node.id] = node.state()
	}

	return &protocol.SimulationStateResponse{
		Type:        protocol.MsgSimulationState,
		VirtualTime: int64(s.sim.Now()),
		Mode:        "running",
		Speed:       1.0,
		Running:     s.running,
		Nodes:       nodes,
	}
}

// GetNodes returns node states
func (s *Simulation) GetNodes() map[string]protocol.NodeState {
	return s.GetState().Nodes
}

// CrashNode crashes a node. Status is flipped through a scheduled
// event on the node's own context, not directly, since the simulator
// may be mid-Run on another goroutine.
func (s *Simulation) CrashNode(nodeID string) error {
	node, err := s.findNode(nodeID)
	if err != nil {
		return err
	}
	s.sim.ScheduleWithContext(node.ctx, 0, localtime.NewFuncPayload(func() {
		node.mu.Lock()
		node.status = "crashed"
		node.mu.Unlock()
	}))
	return nil
}

// RecoverNode recovers a crashed node
func (s *Simulation) RecoverNode(nodeID string) error {
	node, err := s.findNode(nodeID)
	if err != nil {
		return err
	}
	s.sim.ScheduleWithContext(node.ctx, 0, localtime.NewFuncPayload(func() {
		node.mu.Lock()
		node.status = "running"
		node.mu.Unlock()
	}))
	return nil
}

func (s *Simulation) findNode(nodeID string) (*ClockNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, node := range s.nodes {
		if node.id == nodeID {
			return node, nil
		}
	}
	return nil, fmt.Errorf("unknown node: %s", nodeID)
}

func (n *ClockNode) state() protocol.NodeState {
	n.mu.RLock()
	defer n.mu.RUnlock()

	model := n.lc.Model()
	freq := 1.0
	if affine, ok := model.(*clock.Affine); ok {
		freq = affine.Frequency()
	}

	return protocol.NodeState{
		ID:         n.id,
		Status:     n.status,
		Role:       "participant",
		LocalTime:  int64(n.lc.GetLocalTime()),
		GlobalTime: int64(n.simulation.sim.Now()),
		Frequency:  freq,
		CustomState: map[string]interface{}{
			"eventCount": n.eventCount,
		},
	}
}

func (n *ClockNode) handleMessage(env *transport.Envelope) {
	n.mu.Lock()
	status := n.status
	n.mu.Unlock()
	if status != "running" {
		return
	}

	n.mu.Lock()
	n.eventCount++
	n.mu.Unlock()

	n.simulation.broadcast(&protocol.MessageEventResponse{
		Type:        protocol.MsgMessageReceived,
		MessageID:   env.ID,
		From:        env.From,
		To:          env.To,
		MessageType: string(env.Type),
		GlobalTime:  int64(env.ReceivedAt),
	})
}

// tick fires a local event or a send, then reschedules itself under
// the node's own context so its pace follows its own local clock.
func (n *ClockNode) tick() {
	n.mu.RLock()
	status := n.status
	n.mu.RUnlock()

	if status == "running" {
		if rand.Float64() < 0.5 {
			n.performLocalEvent()
		} else {
			n.sendRandomMessage()
		}
	}

	n.simulation.sim.Schedule(4, localtime.NewFuncPayload(func() {
		n.tick()
	}))
}

func (n *ClockNode) performLocalEvent() {
	n.mu.Lock()
	n.eventCount++
	n.mu.Unlock()

	n.simulation.broadcast(map[string]interface{}{
		"type":       string(events.EventClockUpdate),
		"nodeId":     n.id,
		"localTime":  int64(n.lc.GetLocalTime()),
		"globalTime": int64(n.simulation.sim.Now()),
		"eventType":  "local",
	})
}

func (n *ClockNode) sendRandomMessage() {
	var targetID string
	for {
		targetID = n.nodeIDs[rand.Intn(len(n.nodeIDs))]
		if targetID != n.id {
			break
		}
	}

	n.mu.Lock()
	n.eventCount++
	eventCount := n.eventCount
	n.mu.Unlock()

	eventID := fmt.Sprintf("%s-send-%d", n.id, eventCount)
	env := transport.NewEnvelope(n.id, targetID, MsgEvent, map[string]interface{}{
		"eventId": eventID,
		"message": fmt.Sprintf("message from %s", n.id),
	})
	env.SentAt = n.simulation.sim.Now()

	n.simulation.broadcast(&protocol.MessageEventResponse{
		Type:        protocol.MsgMessageSent,
		MessageID:   env.ID,
		From:        env.From,
		To:          env.To,
		MessageType: string(env.Type),
		GlobalTime:  int64(env.SentAt),
	})

	n.simulation.transport.Send(env)
}
