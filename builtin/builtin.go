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

// Package builtin holds the rule functions available to graph nodes of
// kind "builtin.<name>". Each builtin declares a typed parameter struct;
// parameters are decoded and validated once, when the node is bound, so
// configuration mistakes surface at compile time.
package builtin

import (
	"context"
	"fmt"
	"sort"

	"github.com/mitchellh/mapstructure"

	"github.com/dcs-sim/simengine/state"
)

// Func is a builtin bound to its parameters.
type Func func(ctx context.Context, s *state.State, c *state.Context) (state.Patch, error)

// Builtin is a named rule function.
type Builtin interface {
	// Name returns the registry name, without the "builtin." prefix.
	Name() string
	// Bind decodes and validates kwargs and returns the executable.
	Bind(kwargs map[string]any) (Func, error)
}

// validator is implemented by parameter structs that check themselves.
type validator interface {
	validate() error
}

// handler adapts a typed run function into a Builtin.
type handler[P any] struct {
	name string
	run  func(ctx context.Context, s *state.State, c *state.Context, p *P) (state.Patch, error)
}

func (h handler[P]) Name() string {
	return h.name
}

func (h handler[P]) Bind(kwargs map[string]any) (Func, error) {
	p := new(P)
	if err := decodeParams(kwargs, p); err != nil {
		return nil, fmt.Errorf("builtin %s: %w", h.name, err)
	}
	if v, ok := any(p).(validator); ok {
		if err := v.validate(); err != nil {
			return nil, fmt.Errorf("builtin %s: %w", h.name, err)
		}
	}
	return func(ctx context.Context, s *state.State, c *state.Context) (state.Patch, error) {
		return h.run(ctx, s, c, p)
	}, nil
}

var registry = map[string]Builtin{}

func register(b Builtin) {
	registry[b.Name()] = b
}

func init() {
	register(handler[UpdateStateParams]{name: "update_state", run: updateState})
	register(handler[RaiseErrorParams]{name: "raise_error", run: raiseError})
	register(handler[CommandFilterParams]{name: "command_filter", run: commandFilter})
	register(handler[RetryParams]{name: "retry", run: retry})
	register(handler[FormParams]{name: "form", run: form})
}

// Lookup returns the builtin registered under name.
func Lookup(name string) (Builtin, bool) {
	b, ok := registry[name]
	return b, ok
}

// Names returns the registered builtin names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func decodeParams(in map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      out,
		TagName:     "json",
		ErrorUnused: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(in)
}
