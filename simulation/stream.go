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

package simulation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/dcs-sim/simengine/event"
	itelemetry "github.com/dcs-sim/simengine/internal/telemetry"
	"github.com/dcs-sim/simengine/log"
	"github.com/dcs-sim/simengine/state"
	"github.com/dcs-sim/simengine/telemetry/trace"
)

const defaultStreamBufferSize = 16

// Turn outcomes recorded on the turns counter.
const (
	outcomeDone      = "done"
	outcomeRejected  = "rejected"
	outcomeCancelled = "cancelled"
	outcomeTimeout   = "timeout"
	outcomeError     = "error"
)

// StreamOption configures one Stream call.
type StreamOption func(*streamOptions)

type streamOptions struct {
	timeout      time.Duration
	longRunning  time.Duration
	cancel       <-chan struct{}
	invocationID string
	bufferSize   int
}

// WithTimeout stops the turn with an error once d has elapsed.
func WithTimeout(d time.Duration) StreamOption {
	return func(o *streamOptions) {
		o.timeout = d
	}
}

// WithCancel stops the turn with a cancellation notice once ch is closed.
// Cancelling the context passed to Stream has the same effect.
func WithCancel(ch <-chan struct{}) StreamOption {
	return func(o *streamOptions) {
		o.cancel = ch
	}
}

// WithLongRunning sets the turn duration above which a warning is logged.
func WithLongRunning(d time.Duration) StreamOption {
	return func(o *streamOptions) {
		o.longRunning = d
	}
}

// WithInvocationID sets the ID stamped on the turn's events.
func WithInvocationID(id string) StreamOption {
	return func(o *streamOptions) {
		o.invocationID = id
	}
}

// WithStreamBufferSize sets the buffer size of the returned channel.
func WithStreamBufferSize(n int) StreamOption {
	return func(o *streamOptions) {
		if n >= 0 {
			o.bufferSize = n
		}
	}
}

// Stream runs one turn of the graph from st. The returned channel carries
// the turn's {type, content} messages and always ends with exactly one
// final_state event holding the merged state; it is closed afterwards.
// The caller must drain it. st is not modified.
//
// After every node completes, Stream checks in order: cancellation,
// timeout, a validator rejection and finally new simulator output. The
// first three end the turn at once; work still in flight is discarded.
func (g *Graph) Stream(ctx context.Context, st *state.State, rc *state.Context, opts ...StreamOption) (<-chan *event.Event, error) {
	if st == nil {
		return nil, errors.New("state is nil")
	}
	o := &streamOptions{longRunning: LongTurnWarn, bufferSize: defaultStreamBufferSize}
	for _, opt := range opts {
		opt(o)
	}
	if o.invocationID == "" {
		o.invocationID = uuid.NewString()
	}
	if rc == nil {
		rc = state.DefaultContext()
	}

	input := st.Clone()
	input.SimulatorOutput = nil
	input.ValidatorResponse = nil
	input.UpdaterResponse = nil

	ctx, span := trace.Tracer.Start(ctx, itelemetry.SpanNameTurn)
	span.SetAttributes(
		attribute.String(itelemetry.KeyGraphName, g.name),
		attribute.String(itelemetry.KeyInvocationID, o.invocationID),
	)
	runCtx, stop := context.WithCancel(NewRunContext(ctx, rc))
	events, err := g.executor.Execute(runCtx, input, o.invocationID)
	if err != nil {
		stop()
		span.End()
		return nil, fmt.Errorf("execute graph %s: %w", g.name, err)
	}

	c := &controller{
		graph:   g,
		opts:    o,
		ctx:     ctx,
		span:    span,
		current: input,
		out:     make(chan *event.Event, o.bufferSize),
	}
	go func() {
		defer close(c.out)
		defer span.End()
		defer func() {
			stop()
			// Let the executor finish whatever it is doing.
			go func() {
				for range events {
				}
			}()
		}()
		c.run(events)
	}()
	return c.out, nil
}

type controller struct {
	graph   *Graph
	opts    *streamOptions
	ctx     context.Context
	span    oteltrace.Span
	current *state.State
	out     chan *event.Event
	start   time.Time
}

func (c *controller) run(events <-chan *event.Event) {
	c.start = time.Now()
	var timer <-chan time.Time
	if c.opts.timeout > 0 {
		t := time.NewTimer(c.opts.timeout)
		defer t.Stop()
		timer = t.C
	}

	outcome := outcomeDone
	defer func() {
		c.finish(outcome)
	}()
	for {
		select {
		case <-c.opts.cancel:
			outcome = c.cancelled()
			return
		case <-c.ctx.Done():
			outcome = c.cancelled()
			return
		case <-timer:
			outcome = c.timedOut()
			return
		case ev, ok := <-events:
			if !ok {
				if c.isCancelled() {
					outcome = c.cancelled()
				}
				return
			}
			if ev.State != nil {
				c.current = ev.State
			}
			if done, result := c.handle(ev); done {
				outcome = result
				return
			}
		}
	}
}

// handle applies the per-node checks to ev and reports whether the turn
// is over.
func (c *controller) handle(ev *event.Event) (bool, string) {
	if c.isCancelled() {
		return true, c.cancelled()
	}
	if c.opts.timeout > 0 && time.Since(c.start) > c.opts.timeout {
		return true, c.timedOut()
	}
	switch ev.Object {
	case event.ObjectTypeGraphDone:
		return true, outcomeDone
	case event.ObjectTypeGraphError:
		msg := "graph execution failed"
		if ev.Error != nil {
			msg = ev.Error.Message
		}
		log.Errorf("graph %s turn failed: %s", c.graph.name, msg)
		c.send(event.NewMessageEvent(c.opts.invocationID, state.TypeError, msg))
		return true, outcomeError
	case event.ObjectTypeNodeComplete:
	default:
		return false, ""
	}

	if ev.Author == ValidatorName {
		if _, ok := ev.StateDelta[state.KeyValidatorResponse]; ok {
			if v := c.current.ValidatorResponse; v != nil && v.Type == state.TypeError {
				c.reject(v)
				return true, outcomeRejected
			}
		}
	}

	if ev.Author == SubgraphNodeName {
		return false, ""
	}
	if v, ok := ev.StateDelta[state.KeySimulatorOutput]; ok && v != nil && c.current.SimulatorOutput != nil {
		out := c.current.SimulatorOutput
		log.Debugf("forwarding simulator_output from node %s", ev.Author)
		c.send(event.NewMessageEvent(c.opts.invocationID, out.Type, out.Content))
	}
	return false, ""
}

// reject spends one retry on a rejected action and reports it. A
// rejection with no retries left forces the run to exit.
func (c *controller) reject(verdict *state.Message) {
	budget := c.current.UserRetryBudget
	exhausted := budget <= 0
	if !exhausted {
		budget--
	} else {
		budget = 0
	}
	content := verdict.Content
	patch := state.Patch{state.KeyUserRetryBudget: budget}
	if exhausted {
		content += msgBudgetExhausted
		patch[state.KeyExitReason] = ExitReasonRetryBudget
		patch[state.KeyLifecycle] = string(state.LifecycleExit)
	}
	content += fmt.Sprintf(msgRetriesLeft, budget)
	patch[state.KeySimulatorOutput] = state.NewMessage(state.TypeError, content)

	next := c.current.Clone()
	if err := next.Apply(patch); err != nil {
		log.Errorf("apply rejection to state: %v", err)
	} else {
		c.current = next
	}
	c.graph.metrics.rejection(c.ctx, c.graph.name, exhausted)
	log.Infof("graph %s rejected user action, %d retries left", c.graph.name, budget)
	c.send(event.NewMessageEvent(c.opts.invocationID, state.TypeError, content))
}

func (c *controller) isCancelled() bool {
	select {
	case <-c.opts.cancel:
		return true
	case <-c.ctx.Done():
		return true
	default:
		return false
	}
}

func (c *controller) cancelled() string {
	log.Infof("graph %s turn cancelled", c.graph.name)
	c.send(event.NewMessageEvent(c.opts.invocationID, state.TypeInfo, msgCancelled))
	return outcomeCancelled
}

func (c *controller) timedOut() string {
	log.Warnf("graph %s turn timed out after %.2fs", c.graph.name, time.Since(c.start).Seconds())
	c.send(event.NewMessageEvent(c.opts.invocationID, state.TypeError,
		fmt.Sprintf(msgTimeout, c.opts.timeout.Seconds())))
	return outcomeTimeout
}

// finish emits the final state. It runs on every exit path.
func (c *controller) finish(outcome string) {
	if c.current.UserInput == nil {
		log.Debugf("final state of graph %s has no user_input", c.graph.name)
	}
	if c.current.SimulatorOutput == nil {
		log.Warnf("final state of graph %s has no simulator_output", c.graph.name)
	}
	c.send(event.NewFinalStateEvent(c.opts.invocationID, c.current.Clone()))

	c.span.SetAttributes(attribute.String("simengine.turn_outcome", outcome))
	// The turn's own context may be cancelled; counters still record it.
	c.graph.metrics.turn(context.WithoutCancel(c.ctx), c.graph.name, outcome)
	if d := time.Since(c.start); c.opts.longRunning > 0 && d > c.opts.longRunning {
		log.Warnf("graph %s turn took %.3fs, over the long-running threshold of %.3fs",
			c.graph.name, d.Seconds(), c.opts.longRunning.Seconds())
	}
}

// send delivers ev to the caller. The caller drains the stream, so sends
// block rather than drop.
func (c *controller) send(ev *event.Event) {
	c.out <- ev
}
