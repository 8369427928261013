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

package event

import "github.com/dcs-sim/simengine/state"

// Option is a function that can be used to configure the Event.
type Option func(*Event)

// WithObject sets the object type.
func WithObject(o string) Option {
	return func(e *Event) {
		e.Object = o
	}
}

// WithPath sets the enclosing subgraph path.
func WithPath(path ...string) Option {
	return func(e *Event) {
		e.Path = path
	}
}

// WithMessage sets the caller-facing message.
func WithMessage(msgType, content string) Option {
	return func(e *Event) {
		e.Type = msgType
		e.Content = content
	}
}

// WithStateDelta sets the patch carried by the event.
func WithStateDelta(delta state.Patch) Option {
	return func(e *Event) {
		e.StateDelta = delta
	}
}

// WithState sets the state snapshot.
func WithState(s *state.State) Option {
	return func(e *Event) {
		e.State = s
	}
}

// WithError attaches an error.
func WithError(errType, message string) Option {
	return func(e *Event) {
		e.Error = &Error{Type: errType, Message: message}
	}
}
