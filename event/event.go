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

// Package event defines the events produced while a graph runs and the
// caller-facing events a turn streams back.
package event

import (
	"time"

	"github.com/google/uuid"

	"github.com/dcs-sim/simengine/state"
)

// Object types.
const (
	// ObjectTypeNodeComplete is emitted after a node's patch was merged.
	ObjectTypeNodeComplete = "graph.node.complete"
	// ObjectTypeGraphError is emitted when graph execution fails.
	ObjectTypeGraphError = "graph.execution.error"
	// ObjectTypeGraphDone is the last event of a successful graph run.
	ObjectTypeGraphDone = "graph.execution.done"
	// ObjectTypeTurnMessage is a caller-facing {type, content} message.
	ObjectTypeTurnMessage = "turn.message"
	// ObjectTypeTurnFinal is the caller-facing terminal event of a turn.
	ObjectTypeTurnFinal = "turn.final_state"
)

// TypeFinalState is the Type of the terminal event of every turn.
const TypeFinalState = "final_state"

// Error describes a failure carried by an event.
type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Event is a single unit of output from a graph run or a turn.
type Event struct {
	// ID is the unique identifier of the event.
	ID string `json:"id"`
	// InvocationID identifies the turn that produced the event.
	InvocationID string `json:"invocationId,omitempty"`
	// Author is the node, or component, that produced the event.
	Author string `json:"author,omitempty"`
	// Object is one of the ObjectType constants.
	Object string `json:"object"`
	// Path lists the enclosing nodes of a node running inside a subgraph.
	Path []string `json:"path,omitempty"`

	// Type and Content form the caller-facing message.
	Type    string `json:"type,omitempty"`
	Content string `json:"content,omitempty"`

	// StateDelta is the patch a node returned.
	StateDelta state.Patch `json:"stateDelta,omitempty"`
	// State is a snapshot taken after the event was produced.
	State *state.State `json:"state,omitempty"`

	Error     *Error    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// New creates an event.
func New(invocationID, author string, opts ...Option) *Event {
	e := &Event{
		ID:           uuid.New().String(),
		Timestamp:    time.Now(),
		InvocationID: invocationID,
		Author:       author,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewErrorEvent creates a graph error event.
func NewErrorEvent(invocationID, author, errorType, errorMessage string) *Event {
	return New(invocationID, author,
		WithObject(ObjectTypeGraphError),
		WithError(errorType, errorMessage),
	)
}

// NewMessageEvent creates a caller-facing {type, content} event.
func NewMessageEvent(invocationID, msgType, content string) *Event {
	return New(invocationID, "", WithObject(ObjectTypeTurnMessage), WithMessage(msgType, content))
}

// NewFinalStateEvent creates the terminal event of a turn.
func NewFinalStateEvent(invocationID string, s *state.State) *Event {
	return New(invocationID, "",
		WithObject(ObjectTypeTurnFinal),
		func(e *Event) { e.Type = TypeFinalState },
		WithState(s),
	)
}

// IsFinal reports whether e terminates a turn.
func (e *Event) IsFinal() bool {
	return e != nil && e.Type == TypeFinalState
}

// Message returns the caller-facing message, or nil for final and graph events.
func (e *Event) Message() *state.Message {
	if e == nil || e.Object != ObjectTypeTurnMessage {
		return nil
	}
	return state.NewMessage(e.Type, e.Content)
}

// Clone returns a deep copy of e.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	c := *e
	if e.Path != nil {
		c.Path = append([]string(nil), e.Path...)
	}
	if e.StateDelta != nil {
		c.StateDelta = make(state.Patch, len(e.StateDelta))
		for k, v := range e.StateDelta {
			c.StateDelta[k] = v
		}
	}
	c.State = e.State.Clone()
	if e.Error != nil {
		errCopy := *e.Error
		c.Error = &errCopy
	}
	return &c
}
