package simulation

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/clockdomain/ltsim/packages/protocol"
)

// Broadcaster interface for sending messages to clients
type Broadcaster interface {
	BroadcastJSON(v interface{}) error
}

// ProjectSimulation interface that all project simulations must implement
type ProjectSimulation interface {
	Start(ctx context.Context) error
	Stop() error
	GetState() *protocol.SimulationStateResponse
	GetNodes() map[string]protocol.NodeState
	CrashNode(nodeID string) error
	RecoverNode(nodeID string) error
}

// PartitionedSimulation is implemented by simulations that expose
// network partition controls. Neither the clocks simulation nor
// DemoSimulation implements it, so for them Manager.InjectPartition and
// Manager.HealPartition do nothing.
type PartitionedSimulation interface {
	InjectPartition(from, to string, bidirectional bool)
	HealPartition(from, to string, bidirectional bool)
}

// Manager orchestrates the active simulation. Unlike a tick-paced
// engine, the underlying localtime.Simulator runs to completion on its
// own goroutine once started: there is no pause/step/speed control
// here, since those concepts describe wall-clock pacing that this
// simulator does not have.
type Manager struct {
	mu sync.RWMutex

	broadcaster Broadcaster
	simulation  ProjectSimulation

	currentProject  string
	currentScenario string
	ctx             context.Context
	cancel          context.CancelFunc

	timeline []protocol.TimelineEvent
}

// NewManager creates a new simulation manager
func NewManager(broadcaster Broadcaster) *Manager {
	return &Manager{
		broadcaster: broadcaster,
		timeline:    make([]protocol.TimelineEvent, 0),
	}
}

// handleEvent records a timeline entry and broadcasts it to clients.
func (m *Manager) handleEvent(eventType string, data map[string]interface{}) {
	m.mu.Lock()
	event := protocol.TimelineEvent{
		Time: time.Now().UnixMilli(),
		Type: eventType,
		Data: data,
	}
	m.timeline = append(m.timeline, event)
	if len(m.timeline) > 100 {
		m.timeline = m.timeline[1:]
	}
	m.mu.Unlock()

	msg := map[string]interface{}{
		"type":  "timeline_event",
		"event": event,
	}
	if err := m.broadcaster.BroadcastJSON(msg); err != nil {
		log.Printf("Error broadcasting event: %v", err)
	}
}

// Start starts a simulation for the given project
func (m *Manager) Start(project, scenario string, config protocol.StartSimulationRequest) error {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
	}
	m.mu.Unlock()

	m.mu.Lock()
	m.currentProject = project
	m.currentScenario = scenario
	m.timeline = make([]protocol.TimelineEvent, 0)
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.mu.Unlock()

	var err error
	switch project {
	case "clocks":
		m.mu.Lock()
		m.simulation, err = m.createClocksSimulation(scenario, config)
		m.mu.Unlock()
	default:
		m.mu.Lock()
		m.simulation, err = m.createDemoSimulation(project, config)
		m.mu.Unlock()
	}

	if err != nil {
		return err
	}

	if err := m.simulation.Start(m.ctx); err != nil {
		return err
	}

	m.broadcastState()

	return nil
}

// Stop stops the current simulation
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.simulation != nil {
		m.simulation.Stop()
	}
	if m.cancel != nil {
		m.cancel()
	}

	m.simulation = nil
	m.currentProject = ""

	return nil
}

// CrashNode crashes a node
func (m *Manager) CrashNode(nodeID string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.simulation != nil {
		err := m.simulation.CrashNode(nodeID)
		if err == nil {
			m.handleEvent("node_crashed", map[string]interface{}{
				"nodeId": nodeID,
			})
			m.broadcastState()
		}
		return err
	}
	return nil
}

// RecoverNode recovers a crashed node
func (m *Manager) RecoverNode(nodeID string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.simulation != nil {
		err := m.simulation.RecoverNode(nodeID)
		if err == nil {
			m.handleEvent("node_recovered", map[string]interface{}{
				"nodeId": nodeID,
			})
			m.broadcastState()
		}
		return err
	}
	return nil
}

// InjectPartition creates a network partition
func (m *Manager) InjectPartition(from, to string, bidirectional bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if p, ok := m.simulation.(PartitionedSimulation); ok {
		p.InjectPartition(from, to, bidirectional)
		m.handleEvent("partition_created", map[string]interface{}{
			"from":          from,
			"to":            to,
			"bidirectional": bidirectional,
		})
		m.broadcastState()
	}
}

// HealPartition heals a network partition
func (m *Manager) HealPartition(from, to string, bidirectional bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if p, ok := m.simulation.(PartitionedSimulation); ok {
		p.HealPartition(from, to, bidirectional)
		m.handleEvent("partition_healed", map[string]interface{}{
			"from":          from,
			"to":            to,
			"bidirectional": bidirectional,
		})
		m.broadcastState()
	}
}

// GetState returns the current simulation state
func (m *Manager) GetState() *protocol.SimulationStateResponse {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.simulation != nil {
		state := m.simulation.GetState()
		state.Timeline = m.timeline
		return state
	}

	return &protocol.SimulationStateResponse{
		Type:        protocol.MsgSimulationState,
		VirtualTime: time.Now().UnixMilli(),
		Mode:        "stopped",
		Speed:       1.0,
		Running:     false,
		Nodes:       make(map[string]protocol.NodeState),
	}
}

// broadcastState sends current state to all clients
func (m *Manager) broadcastState() {
	if m.simulation != nil {
		state := m.simulation.GetState()
		state.Timeline = m.timeline
		m.broadcaster.BroadcastJSON(state)
	}
}

// BroadcastMessage sends a specific message to clients
func (m *Manager) BroadcastMessage(msg interface{}) {
	if err := m.broadcaster.BroadcastJSON(msg); err != nil {
		log.Printf("Error broadcasting message: %v", err)
	}
}

// IsRunning returns whether a simulation is running
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.simulation != nil
}

// Helper to marshal interface to JSON bytes
func toJSON(v interface{}) []byte {
	data, _ := json.Marshal(v)
	return data
}
