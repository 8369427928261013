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

package builtin

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/dcs-sim/simengine/log"
	"github.com/dcs-sim/simengine/prompt"
	"github.com/dcs-sim/simengine/state"
)

// UpdateStateParams configures update_state.
type UpdateStateParams struct {
	// StateUpdates maps state keys to values. String values may be templates.
	StateUpdates map[string]any `json:"state_updates"`
}

func (p *UpdateStateParams) validate() error {
	if len(p.StateUpdates) == 0 {
		return fmt.Errorf("%w: state_updates", ErrMissingParam)
	}
	return checkKeys(p.StateUpdates)
}

func updateState(_ context.Context, s *state.State, c *state.Context, p *UpdateStateParams) (state.Patch, error) {
	return renderPatch(p.StateUpdates, state.Vars(s, c))
}

// RaiseErrorParams configures raise_error.
type RaiseErrorParams struct {
	Message string `json:"message"`
}

func (p *RaiseErrorParams) validate() error {
	if p.Message == "" {
		return fmt.Errorf("%w: message", ErrMissingParam)
	}
	return nil
}

func raiseError(_ context.Context, s *state.State, c *state.Context, p *RaiseErrorParams) (state.Patch, error) {
	msg, err := prompt.Render(p.Message, state.Vars(s, c))
	if err != nil {
		return nil, err
	}
	log.Errorf("raise_error: %s", msg)
	return nil, &RaisedError{Message: msg}
}

// CommandFilterParams configures command_filter.
type CommandFilterParams struct {
	// CommandHandlers maps a command name, without the leading slash, to
	// the state patch applied when it is entered.
	CommandHandlers map[string]map[string]any `json:"command_handlers"`
}

func (p *CommandFilterParams) validate() error {
	for cmd, patch := range p.CommandHandlers {
		if err := checkKeys(patch); err != nil {
			return fmt.Errorf("command %s: %w", cmd, err)
		}
	}
	return nil
}

var commandRe = regexp.MustCompile(`^[\\/](?P<cmd>[\w-]+)\b`)

// ParseCommand returns the command named by a leading "/name" or "\name".
func ParseCommand(input string) (string, bool) {
	m := commandRe.FindStringSubmatch(strings.TrimSpace(input))
	if m == nil {
		return "", false
	}
	return m[1], true
}

func commandFilter(_ context.Context, s *state.State, c *state.Context, p *CommandFilterParams) (state.Patch, error) {
	if s.UserInput == nil {
		return nil, nil
	}
	cmd, ok := ParseCommand(s.UserInput.Content)
	if !ok {
		return nil, nil
	}
	handler, ok := p.CommandHandlers[cmd]
	if !ok {
		log.Warnf("command %q has no handler", cmd)
		return nil, nil
	}
	patch, err := renderPatch(handler, state.Vars(s, c, map[string]any{"command": cmd}))
	if err != nil {
		return nil, fmt.Errorf("command %s: %w", cmd, err)
	}
	if _, set := patch[state.KeyUserInput]; !set {
		patch[state.KeyUserInput] = nil
	}
	log.Debugf("command %q matched, patch keys %v", cmd, sortedPatchKeys(patch))
	return patch, nil
}

func checkKeys(m map[string]any) error {
	var unknown []string
	for k := range m {
		if !state.IsKey(k) {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("%w: %s", state.ErrUnknownKey, strings.Join(unknown, ", "))
	}
	return nil
}

func renderPatch(values map[string]any, vars map[string]any) (state.Patch, error) {
	patch := make(state.Patch, len(values))
	for k, v := range values {
		rendered, err := prompt.RenderAny(v, vars)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		patch[k] = rendered
	}
	return patch, nil
}

func sortedPatchKeys(p state.Patch) []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
