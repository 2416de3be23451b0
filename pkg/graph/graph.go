// Package graph builds the immutable adjacency view of a workflow that the
// validator and the execution engine walk. Construction enforces structural
// integrity only; business rules live in the validator.
package graph

import (
	"errors"
	"fmt"
	"sort"

	"github.com/jobdeck/automation/pkg/models"
)

// ErrMalformedGraph is wrapped by every structural defect reported here.
var ErrMalformedGraph = errors.New("malformed graph")

// MalformedGraphError describes a structural defect that prevents building
// the graph at all: duplicate node ids or connections referencing nodes that
// do not exist.
type MalformedGraphError struct {
	WorkflowID string
	Detail     string
}

func (e *MalformedGraphError) Error() string {
	return fmt.Sprintf("malformed graph in workflow %s: %s", e.WorkflowID, e.Detail)
}

func (e *MalformedGraphError) Unwrap() error {
	return ErrMalformedGraph
}

// Graph is a passive value object over a workflow's nodes and connections.
// Nodes and edges are addressed by their stable string ids, never by object
// identity, so the same graph can be rebuilt from persisted rows at any time.
type Graph struct {
	workflowID string
	nodes      map[string]*models.WorkflowNode
	outgoing   map[string][]*models.Connection
	incoming   map[string][]*models.Connection
}

// Build constructs a Graph from persisted workflow rows. It fails with a
// MalformedGraphError on duplicate node ids or dangling edge endpoints.
func Build(workflow *models.Workflow) (*Graph, error) {
	g := &Graph{
		workflowID: workflow.ID,
		nodes:      make(map[string]*models.WorkflowNode, len(workflow.Nodes)),
		outgoing:   make(map[string][]*models.Connection),
		incoming:   make(map[string][]*models.Connection),
	}

	for _, node := range workflow.Nodes {
		if node.ID == "" {
			return nil, &MalformedGraphError{WorkflowID: workflow.ID, Detail: "node with empty id"}
		}

		if _, exists := g.nodes[node.ID]; exists {
			return nil, &MalformedGraphError{
				WorkflowID: workflow.ID,
				Detail:     fmt.Sprintf("duplicate node id %q", node.ID),
			}
		}

		g.nodes[node.ID] = node
	}

	for _, conn := range workflow.Connections {
		if _, ok := g.nodes[conn.SourceNodeID]; !ok {
			return nil, &MalformedGraphError{
				WorkflowID: workflow.ID,
				Detail:     fmt.Sprintf("connection %s references unknown source node %q", conn.ID, conn.SourceNodeID),
			}
		}

		if _, ok := g.nodes[conn.TargetNodeID]; !ok {
			return nil, &MalformedGraphError{
				WorkflowID: workflow.ID,
				Detail:     fmt.Sprintf("connection %s references unknown target node %q", conn.ID, conn.TargetNodeID),
			}
		}

		g.outgoing[conn.SourceNodeID] = append(g.outgoing[conn.SourceNodeID], conn)
		g.incoming[conn.TargetNodeID] = append(g.incoming[conn.TargetNodeID], conn)
	}

	// Deterministic adjacency order regardless of row order.
	for _, conns := range g.outgoing {
		sort.SliceStable(conns, func(i, j int) bool { return conns[i].ID < conns[j].ID })
	}

	return g, nil
}

// WorkflowID returns the id of the workflow this graph was built from.
func (g *Graph) WorkflowID() string {
	return g.workflowID
}

// Node returns the node with the given id, or nil.
func (g *Graph) Node(nodeID string) *models.WorkflowNode {
	return g.nodes[nodeID]
}

// Nodes returns all nodes in id order.
func (g *Graph) Nodes() []*models.WorkflowNode {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	nodes := make([]*models.WorkflowNode, 0, len(ids))
	for _, id := range ids {
		nodes = append(nodes, g.nodes[id])
	}

	return nodes
}

// Outgoing returns the ordered outgoing connections of a node.
func (g *Graph) Outgoing(nodeID string) []*models.Connection {
	return g.outgoing[nodeID]
}

// Incoming returns the incoming connections of a node.
func (g *Graph) Incoming(nodeID string) []*models.Connection {
	return g.incoming[nodeID]
}

// OutgoingBranch returns the outgoing connection carrying the given branch
// label, or nil when the branch has no edge.
func (g *Graph) OutgoingBranch(nodeID, label string) *models.Connection {
	for _, conn := range g.outgoing[nodeID] {
		if conn.BranchLabel() == label {
			return conn
		}
	}

	return nil
}

// TriggerNode returns the unique trigger node, or nil when the workflow has
// none or more than one (both validator errors).
func (g *Graph) TriggerNode() *models.WorkflowNode {
	var trigger *models.WorkflowNode

	for _, node := range g.nodes {
		if node.IsTrigger() {
			if trigger != nil {
				return nil
			}

			trigger = node
		}
	}

	return trigger
}

// ReachableFrom returns the set of node ids reachable from start, including
// start itself.
func (g *Graph) ReachableFrom(start string) map[string]bool {
	visited := make(map[string]bool)
	stack := []string{start}

	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if visited[current] {
			continue
		}

		visited[current] = true

		for _, conn := range g.outgoing[current] {
			if !visited[conn.TargetNodeID] {
				stack = append(stack, conn.TargetNodeID)
			}
		}
	}

	return visited
}

// HasCycleFrom reports whether any cycle is reachable from the given node,
// together with a node id on the offending cycle.
func (g *Graph) HasCycleFrom(start string) (bool, string) {
	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)

	state := make(map[string]int)

	var visit func(id string) (bool, string)
	visit = func(id string) (bool, string) {
		state[id] = inStack

		for _, conn := range g.outgoing[id] {
			switch state[conn.TargetNodeID] {
			case inStack:
				return true, conn.TargetNodeID
			case unvisited:
				if found, offender := visit(conn.TargetNodeID); found {
					return true, offender
				}
			}
		}

		state[id] = done

		return false, ""
	}

	return visit(start)
}
