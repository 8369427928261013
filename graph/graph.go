//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.
// All rights reserved.
//
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the  Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.
//
//

// Package graph provides a small graph execution engine: nodes produce
// state patches, edges and conditional edges route between them, and
// nodes that share a superstep run concurrently before their patches are
// joined.
package graph

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dcs-sim/simengine/state"
)

const (
	// Start represents the virtual start node for routing.
	Start = "__start__"
	// End represents the virtual end node for routing.
	End = "__end__"
)

// Error types carried by graph error events.
const (
	ErrorTypeGraphExecution  = "graph_execution_error"
	ErrorTypeNodeExecution   = "node_execution_error"
	ErrorTypeConditionalEdge = "conditional_edge_error"
	ErrorTypeMaxSteps        = "max_steps_error"
)

// NodeType represents the type of a graph node.
type NodeType string

// Node types.
const (
	NodeTypeFunction NodeType = "function"
	NodeTypeModel    NodeType = "model"
	NodeTypeBuiltin  NodeType = "builtin"
	NodeTypeSubgraph NodeType = "subgraph"
	NodeTypeJoin     NodeType = "join"
)

// NodeFunc runs a node. It must not mutate st; all changes are returned
// as a patch and merged by the executor.
type NodeFunc func(ctx context.Context, st *state.State) (state.Patch, error)

// ConditionalFunc picks the next node. The result is looked up in the
// edge's PathMap when one is set, and used as a node ID otherwise.
type ConditionalFunc func(ctx context.Context, st *state.State) (string, error)

// Node is a unit of execution.
type Node struct {
	ID          string
	Name        string
	Description string
	Function    NodeFunc
	Type        NodeType

	// Subgraph, when set, is run in place of Function. Its nodes report
	// their own completions and their patches are merged as they arrive.
	Subgraph *Graph
}

// Edge is an unconditional edge.
type Edge struct {
	From string
	To   string
}

// ConditionalEdge routes from a node through a ConditionalFunc.
type ConditionalEdge struct {
	From      string
	Condition ConditionalFunc
	PathMap   map[string]string // Maps condition result to target node.
}

// Graph is a validated, executable graph. Build one with StateGraph.
type Graph struct {
	mu               sync.RWMutex
	name             string
	nodes            map[string]*Node
	edges            map[string][]*Edge
	conditionalEdges map[string]*ConditionalEdge
}

// New creates an empty graph.
func New(name string) *Graph {
	return &Graph{
		name:             name,
		nodes:            make(map[string]*Node),
		edges:            make(map[string][]*Edge),
		conditionalEdges: make(map[string]*ConditionalEdge),
	}
}

// Name returns the graph name.
func (g *Graph) Name() string {
	return g.name
}

// Node returns the node with id.
func (g *Graph) Node(id string) (*Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	node, exists := g.nodes[id]
	return node, exists
}

// NodeIDs returns every node ID in sorted order.
func (g *Graph) NodeIDs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Edges returns the unconditional edges leaving nodeID.
func (g *Graph) Edges(nodeID string) []*Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.edges[nodeID]
}

// ConditionalEdge returns the conditional edge leaving nodeID.
func (g *Graph) ConditionalEdge(nodeID string) (*ConditionalEdge, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	edge, exists := g.conditionalEdges[nodeID]
	return edge, exists
}

// EntryPoints returns the static successors of Start.
func (g *Graph) EntryPoints() []string {
	var out []string
	for _, e := range g.Edges(Start) {
		out = append(out, e.To)
	}
	return out
}

func (g *Graph) validate() error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, hasCond := g.conditionalEdges[Start]
	if len(g.edges[Start]) == 0 && !hasCond {
		return fmt.Errorf("graph %s must have an edge from %s", g.name, Start)
	}
	for id, n := range g.nodes {
		if n.Function == nil && n.Subgraph == nil {
			return fmt.Errorf("node %s has neither a function nor a subgraph", id)
		}
		if n.Subgraph != nil {
			if err := n.Subgraph.validate(); err != nil {
				return fmt.Errorf("subgraph %s: %w", id, err)
			}
		}
	}
	return nil
}

func (g *Graph) addNode(node *Node) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if node.ID == "" {
		return fmt.Errorf("node ID cannot be empty for %+v", node)
	}
	if node.ID == Start || node.ID == End {
		return fmt.Errorf("node ID %s is reserved", node.ID)
	}
	if _, exists := g.nodes[node.ID]; exists {
		return fmt.Errorf("node with ID %s already exists", node.ID)
	}
	g.nodes[node.ID] = node
	return nil
}

func (g *Graph) addEdge(edge *Edge) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if edge.From == "" || edge.To == "" {
		return fmt.Errorf("edge from and to cannot be empty")
	}
	if edge.From == End {
		return fmt.Errorf("edge cannot leave %s", End)
	}
	if edge.To == Start {
		return fmt.Errorf("edge cannot enter %s", Start)
	}
	if edge.From != Start {
		if _, exists := g.nodes[edge.From]; !exists {
			return fmt.Errorf("source node %s does not exist", edge.From)
		}
	}
	if edge.To != End {
		if _, exists := g.nodes[edge.To]; !exists {
			return fmt.Errorf("target node %s does not exist", edge.To)
		}
	}
	for _, e := range g.edges[edge.From] {
		if e.To == edge.To {
			return nil
		}
	}
	g.edges[edge.From] = append(g.edges[edge.From], edge)
	return nil
}

func (g *Graph) addConditionalEdge(condEdge *ConditionalEdge) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if condEdge.From == "" {
		return fmt.Errorf("conditional edge from cannot be empty")
	}
	if condEdge.Condition == nil {
		return fmt.Errorf("conditional edge from %s has no condition", condEdge.From)
	}
	if condEdge.From != Start {
		if _, exists := g.nodes[condEdge.From]; !exists {
			return fmt.Errorf("source node %s does not exist", condEdge.From)
		}
	}
	if _, exists := g.conditionalEdges[condEdge.From]; exists {
		return fmt.Errorf("node %s already has a conditional edge", condEdge.From)
	}
	for _, to := range condEdge.PathMap {
		if to != End {
			if _, exists := g.nodes[to]; !exists {
				return fmt.Errorf("target node %s does not exist", to)
			}
		}
	}
	g.conditionalEdges[condEdge.From] = condEdge
	return nil
}
