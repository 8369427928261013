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
	"errors"
	"fmt"
)

var (
	// ErrMissingOutputFormat is returned for a custom node whose system
	// template has no "Output Format: {...}" block.
	ErrMissingOutputFormat = errors.New(`system_template must include an "Output Format: {...}" block`)
	// ErrUnknownBuiltin is returned for a builtin kind nothing is registered under.
	ErrUnknownBuiltin = errors.New("unknown builtin")
	// ErrNoJSON is returned when a model reply holds no JSON object.
	ErrNoJSON = errors.New("no JSON object found")
	// ErrNoRunContext is returned when a node runs outside Graph.Stream.
	ErrNoRunContext = errors.New("no run context")
)

// ConfigError is a compile-time failure of one node or edge.
type ConfigError struct {
	// Node is the offending node, or the source node of an edge.
	Node string
	// Field is the configuration field that failed, when known.
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("node %q: %v", e.Node, e.Err)
	}
	return fmt.Sprintf("node %q: %s: %v", e.Node, e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ParseError reports a model reply that could not be turned into a patch.
type ParseError struct {
	Node string
	// Text is the raw model reply.
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("node %q returned an unparsable reply: %v", e.Node, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
