package simulation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/clockdomain/ltsim/apps/api/internal/projects/clocks"
	"github.com/clockdomain/ltsim/packages/protocol"
)

// createClocksSimulation creates a per-entity local clock simulation
func (m *Manager) createClocksSimulation(scenario string, config protocol.StartSimulationRequest) (ProjectSimulation, error) {
	nodeCount := config.Config.NodeCount
	if nodeCount == 0 {
		nodeCount = 3
	}

	sim := clocks.NewSimulation(
		m.BroadcastMessage,
		clocks.Config{
			NodeCount: nodeCount,
			Scenario:  scenario,
		},
	)

	return sim, nil
}

// createDemoSimulation creates a placeholder simulation for projects
// that don't have a local-clock demo of their own.
func (m *Manager) createDemoSimulation(project string, config protocol.StartSimulationRequest) (ProjectSimulation, error) {
	nodeCount := config.Config.NodeCount
	if nodeCount == 0 {
		nodeCount = 5
	}

	demo := &DemoSimulation{
		project:   project,
		nodeCount: nodeCount,
		nodes:     make(map[string]*DemoNode),
	}

	for i := 0; i < nodeCount; i++ {
		nodeID := fmt.Sprintf("node-%d", i+1)
		demo.nodes[nodeID] = &DemoNode{
			id:     nodeID,
			status: "running",
			role:   "participant",
		}
	}

	return demo, nil
}

// DemoSimulation is a placeholder simulation for projects not yet
// built on the local-clock core.
type DemoSimulation struct {
	mu sync.RWMutex

	project   string
	nodeCount int
	nodes     map[string]*DemoNode

	running bool
	cancel  context.CancelFunc
}

// DemoNode is a placeholder node
type DemoNode struct {
	mu sync.RWMutex

	id     string
	status string
	role   string
}

func (d *DemoSimulation) Start(ctx context.Context) error {
	d.mu.Lock()
	d.running = true
	_, d.cancel = context.WithCancel(ctx)
	d.mu.Unlock()
	return nil
}

func (d *DemoSimulation) Stop() error {
	d.mu.Lock()
	d.running = false
	if d.cancel != nil {
		d.cancel()
	}
	d.mu.Unlock()
	return nil
}

func (d *DemoSimulation) GetState() *protocol.SimulationStateResponse {
	d.mu.RLock()
	defer d.mu.RUnlock()

	nodes := make(map[string]protocol.NodeState)
	for id, node := range d.nodes {
		nodes[id] = protocol.NodeState{
			ID:     id,
			Status: node.status,
			Role:   node.role,
			CustomState: map[string]interface{}{
				"message": fmt.Sprintf("Project '%s' simulation coming soon!", d.project),
			},
		}
	}

	return &protocol.SimulationStateResponse{
		Type:        protocol.MsgSimulationState,
		VirtualTime: time.Now().UnixMilli(),
		Mode:        "stopped",
		Speed:       1.0,
		Running:     d.running,
		Nodes:       nodes,
	}
}

func (d *DemoSimulation) GetNodes() map[string]protocol.NodeState {
	return d.GetState().Nodes
}

func (d *DemoSimulation) CrashNode(nodeID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if node, ok := d.nodes[nodeID]; ok {
		node.status = "crashed"
		return nil
	}
	return fmt.Errorf("unknown node: %s", nodeID)
}

func (d *DemoSimulation) RecoverNode(nodeID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if node, ok := d.nodes[nodeID]; ok {
		node.status = "running"
		return nil
	}
	return fmt.Errorf("unknown node: %s", nodeID)
}
