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
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/dcs-sim/simengine/event"
	itelemetry "github.com/dcs-sim/simengine/internal/telemetry"
	"github.com/dcs-sim/simengine/log"
	"github.com/dcs-sim/simengine/state"
	"github.com/dcs-sim/simengine/telemetry/trace"
)

const (
	// AuthorGraphExecutor is the author of the graph executor.
	AuthorGraphExecutor = "graph-executor"

	defaultChannelBufferSize = 256
	defaultMaxSteps          = 100
	defaultWorkerPoolSize    = 8
)

// Executor runs a graph in supersteps. Every node of a superstep reads the
// same state snapshot; their patches are merged in completion order and
// the next superstep is the union of their successors.
type Executor struct {
	graph             *Graph
	channelBufferSize int
	maxSteps          int
	pool              *ants.Pool
}

// ExecutorOption is a function that configures an Executor.
type ExecutorOption func(*ExecutorOptions)

// ExecutorOptions contains configuration options for creating an Executor.
type ExecutorOptions struct {
	// ChannelBufferSize is the buffer size for event channels (default: 256).
	ChannelBufferSize int
	// MaxSteps bounds the supersteps of each graph level (default: 100).
	MaxSteps int
	// WorkerPoolSize bounds concurrently running nodes (default: 8).
	WorkerPoolSize int
}

// WithChannelBufferSize sets the buffer size for event channels.
func WithChannelBufferSize(size int) ExecutorOption {
	return func(opts *ExecutorOptions) {
		opts.ChannelBufferSize = size
	}
}

// WithMaxSteps sets the maximum number of supersteps for graph execution.
func WithMaxSteps(maxSteps int) ExecutorOption {
	return func(opts *ExecutorOptions) {
		opts.MaxSteps = maxSteps
	}
}

// WithWorkerPoolSize sets the size of the node worker pool.
func WithWorkerPoolSize(size int) ExecutorOption {
	return func(opts *ExecutorOptions) {
		opts.WorkerPoolSize = size
	}
}

// NewExecutor creates a new graph executor.
func NewExecutor(graph *Graph, opts ...ExecutorOption) (*Executor, error) {
	if graph == nil {
		return nil, errors.New("graph is nil")
	}
	if err := graph.validate(); err != nil {
		return nil, fmt.Errorf("invalid graph: %w", err)
	}
	options := ExecutorOptions{
		ChannelBufferSize: defaultChannelBufferSize,
		MaxSteps:          defaultMaxSteps,
		WorkerPoolSize:    defaultWorkerPoolSize,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.WorkerPoolSize <= 0 {
		options.WorkerPoolSize = defaultWorkerPoolSize
	}
	pool, err := ants.NewPool(options.WorkerPoolSize, ants.WithNonblocking(true))
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	return &Executor{
		graph:             graph,
		channelBufferSize: options.ChannelBufferSize,
		maxSteps:          options.MaxSteps,
		pool:              pool,
	}, nil
}

// Graph returns the graph the executor runs.
func (e *Executor) Graph() *Graph {
	return e.graph
}

// Close releases the worker pool.
func (e *Executor) Close() {
	e.pool.Release()
}

// executionContext is shared by every node of one Execute call, including
// nodes of nested subgraphs.
type executionContext struct {
	invocationID string
	eventChan    chan<- *event.Event

	mu    sync.Mutex
	state *state.State
}

func (ec *executionContext) snapshot() *state.State {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return ec.state.Clone()
}

// Execute runs the graph from initial. The returned channel carries one
// node-complete event per node, in completion order, then either a done
// event or an error event. Both carry the final state. initial is not
// modified.
func (e *Executor) Execute(
	ctx context.Context,
	initial *state.State,
	invocationID string,
) (<-chan *event.Event, error) {
	if initial == nil {
		return nil, errors.New("initial state is nil")
	}
	eventChan := make(chan *event.Event, e.channelBufferSize)
	ec := &executionContext{
		invocationID: invocationID,
		eventChan:    eventChan,
		state:        initial.Clone(),
	}
	go func() {
		defer close(eventChan)
		ctx, span := trace.Tracer.Start(ctx, itelemetry.SpanNameExecuteGraph)
		defer span.End()
		span.SetAttributes(
			attribute.String(itelemetry.KeyGraphName, e.graph.Name()),
			attribute.String(itelemetry.KeyInvocationID, invocationID),
		)

		if _, err := e.run(ctx, ec, e.graph, nil); err != nil {
			span.SetStatus(codes.Error, err.Error())
			errorEvent := event.NewErrorEvent(invocationID, AuthorGraphExecutor, errorType(err), err.Error())
			errorEvent.State = ec.snapshot()
			// The caller's context may already be done; the error event is best effort.
			_ = send(ctx, eventChan, errorEvent)
			return
		}
		done := event.New(invocationID, AuthorGraphExecutor,
			event.WithObject(event.ObjectTypeGraphDone),
			event.WithState(ec.snapshot()),
		)
		_ = send(ctx, eventChan, done)
	}()
	return eventChan, nil
}

// run executes g to completion and returns the union of the patches its
// nodes produced.
func (e *Executor) run(ctx context.Context, ec *executionContext, g *Graph, path []string) (state.Patch, error) {
	aggregate := state.Patch{}
	frontier, err := e.successors(ctx, g, []string{Start}, ec.snapshot())
	if err != nil {
		return aggregate, err
	}
	for step := 0; len(frontier) > 0; step++ {
		if err := ctx.Err(); err != nil {
			return aggregate, err
		}
		if step >= e.maxSteps {
			return aggregate, &ExecutionError{
				Type: ErrorTypeMaxSteps,
				Err:  fmt.Errorf("%w (%d) in graph %s", ErrMaxSteps, e.maxSteps, g.Name()),
			}
		}
		if err := e.runStep(ctx, ec, g, path, frontier, aggregate); err != nil {
			return aggregate, err
		}
		frontier, err = e.successors(ctx, g, frontier, ec.snapshot())
		if err != nil {
			return aggregate, err
		}
	}
	return aggregate, nil
}

// runStep runs the nodes of one superstep concurrently and merges their
// patches into aggregate. The first failure cancels the remaining nodes.
func (e *Executor) runStep(
	ctx context.Context,
	ec *executionContext,
	g *Graph,
	path []string,
	frontier []string,
	aggregate state.Patch,
) error {
	stepCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	snapshot := ec.snapshot()
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for _, nodeID := range frontier {
		node, ok := g.Node(nodeID)
		if !ok {
			return &ExecutionError{Type: ErrorTypeGraphExecution, NodeID: nodeID, Err: ErrNodeNotFound}
		}
		input := snapshot.Clone()
		wg.Add(1)
		task := func() {
			defer wg.Done()
			patch, err := e.executeNode(stepCtx, ec, node, input, path)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
					cancel()
				}
				return
			}
			aggregate.Merge(patch)
		}
		if err := e.pool.Submit(task); err != nil {
			// Pool saturated, typically by nested subgraphs.
			go task()
		}
	}
	wg.Wait()
	return firstErr
}

// executeNode runs a single node, merges its patch and emits its
// completion event. A subgraph node runs its inner graph in place; the
// inner nodes merge their own patches, so the subgraph's aggregate patch
// is reported but not applied again.
func (e *Executor) executeNode(
	ctx context.Context,
	ec *executionContext,
	node *Node,
	input *state.State,
	path []string,
) (state.Patch, error) {
	ctx, span := trace.Tracer.Start(ctx, itelemetry.SpanNamePrefixExecuteNode+" "+node.ID)
	defer span.End()
	itelemetry.TraceNode(span, ec.invocationID, node.ID, string(node.Type), path)

	if node.Subgraph != nil {
		innerPath := append(append([]string(nil), path...), node.ID)
		patch, err := e.run(ctx, ec, node.Subgraph, innerPath)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			var execErr *ExecutionError
			if errors.As(err, &execErr) {
				return nil, err
			}
			return nil, &ExecutionError{Type: ErrorTypeNodeExecution, NodeID: node.ID, Err: err}
		}
		ec.mu.Lock()
		defer ec.mu.Unlock()
		return patch, e.emit(ctx, ec, node.ID, path, patch)
	}

	patch, err := node.Function(ctx, input)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, &ExecutionError{Type: ErrorTypeNodeExecution, NodeID: node.ID, Err: err}
	}
	if patch == nil {
		patch = state.Patch{}
	}

	ec.mu.Lock()
	defer ec.mu.Unlock()
	if err := ec.state.Apply(patch); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, &ExecutionError{
			Type:   ErrorTypeNodeExecution,
			NodeID: node.ID,
			Err:    fmt.Errorf("apply patch: %w", err),
		}
	}
	log.Debugf("node %s merged keys %v", node.ID, patchKeys(patch))
	return patch, e.emit(ctx, ec, node.ID, path, patch)
}

// emit sends a node-complete event. ec.mu must be held so events leave in
// merge order.
func (e *Executor) emit(ctx context.Context, ec *executionContext, nodeID string, path []string, patch state.Patch) error {
	ev := event.New(ec.invocationID, nodeID,
		event.WithObject(event.ObjectTypeNodeComplete),
		event.WithStateDelta(patch),
		event.WithState(ec.state.Clone()),
	)
	if len(path) > 0 {
		ev.Path = append([]string(nil), path...)
	}
	return send(ctx, ec.eventChan, ev)
}

// successors returns the deduplicated next frontier of the given nodes,
// evaluated against st. End is dropped.
func (e *Executor) successors(ctx context.Context, g *Graph, from []string, st *state.State) ([]string, error) {
	var (
		next []string
		seen = make(map[string]bool)
	)
	add := func(id string) {
		if id == End || seen[id] {
			return
		}
		seen[id] = true
		next = append(next, id)
	}
	for _, nodeID := range from {
		if condEdge, ok := g.ConditionalEdge(nodeID); ok {
			target, err := resolveConditional(ctx, g, condEdge, st)
			if err != nil {
				return nil, err
			}
			add(target)
			continue
		}
		for _, edge := range g.Edges(nodeID) {
			add(edge.To)
		}
	}
	return next, nil
}

func resolveConditional(ctx context.Context, g *Graph, condEdge *ConditionalEdge, st *state.State) (string, error) {
	result, err := condEdge.Condition(ctx, st)
	if err != nil {
		return "", &ExecutionError{Type: ErrorTypeConditionalEdge, NodeID: condEdge.From, Err: err}
	}
	target := result
	if condEdge.PathMap != nil {
		mapped, ok := condEdge.PathMap[result]
		if !ok {
			return "", &ExecutionError{
				Type:   ErrorTypeConditionalEdge,
				NodeID: condEdge.From,
				Err:    fmt.Errorf("%w %q", ErrNoPath, result),
			}
		}
		target = mapped
	}
	if target != End {
		if _, ok := g.Node(target); !ok {
			return "", &ExecutionError{
				Type:   ErrorTypeConditionalEdge,
				NodeID: condEdge.From,
				Err:    fmt.Errorf("%w: %s", ErrNodeNotFound, target),
			}
		}
	}
	return target, nil
}

func send(ctx context.Context, ch chan<- *event.Event, ev *event.Event) error {
	select {
	case ch <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func patchKeys(p state.Patch) []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	return keys
}
