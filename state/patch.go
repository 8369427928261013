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

package state

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dcs-sim/simengine/log"
)

// ErrUnknownKey is returned when a patch names a field State does not have.
var ErrUnknownKey = errors.New("unknown state key")

// Patch is a partial State update keyed by state key. Events are appended;
// forms and scratchpad are merged by name; every other key overwrites.
// A nil value clears an optional field.
type Patch map[string]any

// Merge copies the entries of o into p, concatenating events.
func (p Patch) Merge(o Patch) {
	for k, v := range o {
		if k == KeyEvents {
			if prev, ok := p[k]; ok {
				p[k] = appendEvents(prev, v)
				continue
			}
		}
		p[k] = v
	}
}

func appendEvents(a, b any) []any {
	var out []any
	for _, v := range []any{a, b} {
		switch t := v.(type) {
		case []Message:
			for _, m := range t {
				out = append(out, m)
			}
		case []any:
			out = append(out, t...)
		case nil:
		default:
			out = append(out, t)
		}
	}
	return out
}

// UnknownKeys returns the keys of p that are not State fields.
func (p Patch) UnknownKeys() []string {
	var unknown []string
	for k := range p {
		if !IsKey(k) {
			unknown = append(unknown, k)
		}
	}
	return unknown
}

// Apply merges p into s. Apply is atomic: on error s is unchanged.
// A terminal lifecycle is never moved back to a live one.
func (s *State) Apply(p Patch) error {
	if len(p) == 0 {
		return nil
	}
	if unknown := p.UnknownKeys(); len(unknown) > 0 {
		return fmt.Errorf("%w: %s", ErrUnknownKey, strings.Join(unknown, ", "))
	}
	next := s.Clone()
	for _, k := range sortedKeys(p) {
		if err := next.set(k, p[k]); err != nil {
			return fmt.Errorf("state key %s: %w", k, err)
		}
	}
	*s = *next
	return nil
}

func (s *State) set(key string, v any) error {
	switch key {
	case KeyEvents:
		msgs, err := toMessages(v)
		if err != nil {
			return err
		}
		s.Events = append(s.Events, msgs...)
	case KeyLifecycle:
		var l string
		if err := decode(v, &l); err != nil {
			return err
		}
		next := Lifecycle(strings.ToUpper(l))
		if !next.valid() {
			return fmt.Errorf("invalid lifecycle %q", l)
		}
		if s.Lifecycle.Terminal() && next != s.Lifecycle {
			log.Warnf("ignoring lifecycle change %s -> %s: state is terminal", s.Lifecycle, next)
			return nil
		}
		s.Lifecycle = next
	case KeyExitReason:
		return decode(v, &s.ExitReason)
	case KeyUserInput:
		return setMessage(&s.UserInput, v)
	case KeySimulatorOutput:
		return setMessage(&s.SimulatorOutput, v)
	case KeyValidatorResponse:
		return setMessage(&s.ValidatorResponse, v)
	case KeyUpdaterResponse:
		return setMessage(&s.UpdaterResponse, v)
	case KeyUserRetryBudget:
		var n int
		if err := decode(v, &n); err != nil {
			return err
		}
		if n < 0 {
			n = 0
		}
		s.UserRetryBudget = n
	case KeyForms:
		if v == nil {
			s.Forms = nil
			return nil
		}
		var forms map[string]Form
		if typed, ok := v.(map[string]Form); ok {
			forms = typed
		} else if err := decode(v, &forms); err != nil {
			return err
		}
		if s.Forms == nil {
			s.Forms = make(map[string]Form, len(forms))
		}
		for name, f := range forms {
			s.Forms[name] = f.Clone()
		}
	case KeyScratchpad:
		if v == nil {
			s.Scratchpad = nil
			return nil
		}
		var scratch map[string]any
		if err := decode(v, &scratch); err != nil {
			return err
		}
		if s.Scratchpad == nil {
			s.Scratchpad = make(map[string]any, len(scratch))
		}
		for k, val := range scratch {
			s.Scratchpad[k] = deepCopyValue(val)
		}
	default:
		return ErrUnknownKey
	}
	return nil
}

func setMessage(dst **Message, v any) error {
	switch t := v.(type) {
	case nil:
		*dst = nil
	case *Message:
		*dst = cloneMessage(t)
	case Message:
		*dst = &t
	default:
		var m Message
		if err := decode(v, &m); err != nil {
			return err
		}
		*dst = &m
	}
	return nil
}

func toMessages(v any) ([]Message, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []Message:
		out := make([]Message, len(t))
		copy(out, t)
		return out, nil
	case Message:
		return []Message{t}, nil
	case *Message:
		return []Message{*t}, nil
	case []any:
		out := make([]Message, 0, len(t))
		for _, item := range t {
			var m Message
			switch it := item.(type) {
			case Message:
				m = it
			case *Message:
				m = *it
			default:
				if err := decode(item, &m); err != nil {
					return nil, err
				}
			}
			out = append(out, m)
		}
		return out, nil
	default:
		var out []Message
		if err := decode(v, &out); err != nil {
			return nil, err
		}
		return out, nil
	}
}
