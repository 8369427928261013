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

package graph

import (
	"errors"
)

// StateGraph provides a fluent interface for building graphs.
//
// Example usage:
//
//	g, err := NewStateGraph("turn").
//	  AddNode("greet", greetFunc).
//	  SetEntryPoint("greet").
//	  SetFinishPoint("greet").
//	  Compile()
//
// Builder errors are collected and reported by Compile.
type StateGraph struct {
	graph *Graph
	errs  []error
}

// NewStateGraph creates a new graph builder.
func NewStateGraph(name string) *StateGraph {
	return &StateGraph{graph: New(name)}
}

// Option is a function that configures a Node.
type Option func(*Node)

// WithName sets the name of the node.
func WithName(name string) Option {
	return func(node *Node) {
		node.Name = name
	}
}

// WithDescription sets the description of the node.
func WithDescription(description string) Option {
	return func(node *Node) {
		node.Description = description
	}
}

// WithNodeType sets the type of the node.
func WithNodeType(t NodeType) Option {
	return func(node *Node) {
		node.Type = t
	}
}

// AddNode adds a node with the given ID and function.
func (sg *StateGraph) AddNode(id string, function NodeFunc, opts ...Option) *StateGraph {
	node := &Node{
		ID:       id,
		Name:     id,
		Function: function,
		Type:     NodeTypeFunction,
	}
	for _, opt := range opts {
		opt(node)
	}
	sg.record(sg.graph.addNode(node))
	return sg
}

// AddSubgraphNode adds a node that runs sub as part of this graph.
func (sg *StateGraph) AddSubgraphNode(id string, sub *Graph, opts ...Option) *StateGraph {
	node := &Node{
		ID:       id,
		Name:     id,
		Subgraph: sub,
		Type:     NodeTypeSubgraph,
	}
	for _, opt := range opts {
		opt(node)
	}
	if sub == nil {
		sg.record(errors.New("subgraph node " + id + " has a nil graph"))
		return sg
	}
	sg.record(sg.graph.addNode(node))
	return sg
}

// AddEdge adds a normal edge between two nodes. Several edges leaving the
// same node fan out: their targets run concurrently in the next superstep.
func (sg *StateGraph) AddEdge(from, to string) *StateGraph {
	sg.record(sg.graph.addEdge(&Edge{From: from, To: to}))
	return sg
}

// AddConditionalEdges adds conditional routing from a node.
func (sg *StateGraph) AddConditionalEdges(
	from string,
	condition ConditionalFunc,
	pathMap map[string]string,
) *StateGraph {
	sg.record(sg.graph.addConditionalEdge(&ConditionalEdge{
		From:      from,
		Condition: condition,
		PathMap:   pathMap,
	}))
	return sg
}

// SetEntryPoint adds an edge from Start to nodeID.
func (sg *StateGraph) SetEntryPoint(nodeID string) *StateGraph {
	return sg.AddEdge(Start, nodeID)
}

// SetFinishPoint adds an edge from nodeID to End.
func (sg *StateGraph) SetFinishPoint(nodeID string) *StateGraph {
	return sg.AddEdge(nodeID, End)
}

// Compile validates and returns the graph.
func (sg *StateGraph) Compile() (*Graph, error) {
	if err := errors.Join(sg.errs...); err != nil {
		return nil, err
	}
	if err := sg.graph.validate(); err != nil {
		return nil, err
	}
	return sg.graph, nil
}

// MustCompile compiles the graph or panics.
func (sg *StateGraph) MustCompile() *Graph {
	g, err := sg.Compile()
	if err != nil {
		panic(err)
	}
	return g
}

func (sg *StateGraph) record(err error) {
	if err != nil {
		sg.errs = append(sg.errs, err)
	}
}
