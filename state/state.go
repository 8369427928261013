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

// Package state defines the per-run simulation State, the read-only run
// Context shared by every node, and the Patch type nodes return.
package state

import (
	"fmt"
	"sort"

	"github.com/mitchellh/mapstructure"

	"github.com/dcs-sim/simengine/log"
)

// Lifecycle is the coarse phase of a simulation run.
type Lifecycle string

// Lifecycle values.
const (
	LifecycleInit     Lifecycle = "INIT"
	LifecycleEnter    Lifecycle = "ENTER"
	LifecycleUpdate   Lifecycle = "UPDATE"
	LifecycleExit     Lifecycle = "EXIT"
	LifecycleComplete Lifecycle = "COMPLETE"
)

// Terminal reports whether no further transition may leave l.
func (l Lifecycle) Terminal() bool {
	return l == LifecycleExit || l == LifecycleComplete
}

func (l Lifecycle) valid() bool {
	switch l {
	case LifecycleInit, LifecycleEnter, LifecycleUpdate, LifecycleExit, LifecycleComplete:
		return true
	}
	return false
}

// Message types.
const (
	TypeUser      = "user"
	TypeAI        = "ai"
	TypeAssistant = "assistant"
	TypeSystem    = "system"
	TypeInfo      = "info"
	TypeError     = "error"
	TypeWarning   = "warning"
	TypeCommand   = "command"
)

// State keys, as seen by templates, expressions and patches.
const (
	KeyEvents            = "events"
	KeyLifecycle         = "lifecycle"
	KeyExitReason        = "exit_reason"
	KeyUserInput         = "user_input"
	KeySimulatorOutput   = "simulator_output"
	KeyValidatorResponse = "validator_response"
	KeyUpdaterResponse   = "updater_response"
	KeyUserRetryBudget   = "user_retry_budget"
	KeyForms             = "forms"
	KeyScratchpad        = "scratchpad"
)

// DefaultUserRetryBudget is the number of rejected actions tolerated before
// a run is forced to exit.
const DefaultUserRetryBudget = 6

var keys = []string{
	KeyEvents, KeyLifecycle, KeyExitReason, KeyUserInput, KeySimulatorOutput,
	KeyValidatorResponse, KeyUpdaterResponse, KeyUserRetryBudget, KeyForms, KeyScratchpad,
}

// Keys returns every valid state key.
func Keys() []string {
	out := make([]string, len(keys))
	copy(out, keys)
	return out
}

// IsKey reports whether k names a State field.
func IsKey(k string) bool {
	for _, key := range keys {
		if key == k {
			return true
		}
	}
	return false
}

// Message is a role-tagged simulation message.
type Message struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// NewMessage returns a pointer to a message, handy for optional fields.
func NewMessage(typ, content string) *Message {
	return &Message{Type: typ, Content: content}
}

// FormQuestion is one question of a Form.
type FormQuestion struct {
	Key    string `json:"key,omitempty"`
	Text   string `json:"text"`
	Answer string `json:"answer,omitempty"`
}

// Form is a named list of questions answered one at a time.
type Form struct {
	Questions []FormQuestion `json:"questions"`
}

// Clone returns a deep copy of f.
func (f Form) Clone() Form {
	qs := make([]FormQuestion, len(f.Questions))
	copy(qs, f.Questions)
	return Form{Questions: qs}
}

// State is the mutable per-run simulation state. Events only ever grow;
// every other field may be overwritten by a patch.
type State struct {
	Events            []Message       `json:"events"`
	Lifecycle         Lifecycle       `json:"lifecycle"`
	ExitReason        string          `json:"exit_reason"`
	UserInput         *Message        `json:"user_input"`
	SimulatorOutput   *Message        `json:"simulator_output"`
	ValidatorResponse *Message        `json:"validator_response"`
	UpdaterResponse   *Message        `json:"updater_response"`
	UserRetryBudget   int             `json:"user_retry_budget"`
	Forms             map[string]Form `json:"forms,omitempty"`
	Scratchpad        map[string]any  `json:"scratchpad,omitempty"`
}

// New returns a State with defaults applied, then overrides merged in.
// Unknown override keys are logged and dropped.
func New(overrides map[string]any) (*State, error) {
	s := &State{
		Events:          []Message{},
		Lifecycle:       LifecycleInit,
		UserRetryBudget: DefaultUserRetryBudget,
	}
	if len(overrides) == 0 {
		return s, nil
	}
	p := make(Patch, len(overrides))
	for k, v := range overrides {
		if !IsKey(k) {
			log.Warnf("unknown state override key ignored: %s", k)
			continue
		}
		p[k] = v
	}
	if err := s.Apply(p); err != nil {
		return nil, fmt.Errorf("apply state overrides: %w", err)
	}
	return s, nil
}

// Clone returns a deep copy of s.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	c := *s
	c.Events = make([]Message, len(s.Events))
	copy(c.Events, s.Events)
	c.UserInput = cloneMessage(s.UserInput)
	c.SimulatorOutput = cloneMessage(s.SimulatorOutput)
	c.ValidatorResponse = cloneMessage(s.ValidatorResponse)
	c.UpdaterResponse = cloneMessage(s.UpdaterResponse)
	if s.Forms != nil {
		c.Forms = make(map[string]Form, len(s.Forms))
		for k, f := range s.Forms {
			c.Forms[k] = f.Clone()
		}
	}
	if s.Scratchpad != nil {
		c.Scratchpad = deepCopyMap(s.Scratchpad)
	}
	return &c
}

// LastEvent returns the most recent event, or nil.
func (s *State) LastEvent() *Message {
	if len(s.Events) == 0 {
		return nil
	}
	m := s.Events[len(s.Events)-1]
	return &m
}

// Map returns a plain-value view of s for templates and expressions. It
// only contains maps, slices, strings and ints.
func (s *State) Map() map[string]any {
	events := make([]any, len(s.Events))
	for i := range s.Events {
		events[i] = messageMap(&s.Events[i])
	}
	forms := make(map[string]any, len(s.Forms))
	for name, f := range s.Forms {
		qs := make([]any, len(f.Questions))
		for i, q := range f.Questions {
			qs[i] = map[string]any{"key": q.Key, "text": q.Text, "answer": q.Answer}
		}
		forms[name] = map[string]any{"questions": qs}
	}
	scratch := map[string]any{}
	if s.Scratchpad != nil {
		scratch = deepCopyMap(s.Scratchpad)
	}
	return map[string]any{
		KeyEvents:            events,
		KeyLifecycle:         string(s.Lifecycle),
		KeyExitReason:        s.ExitReason,
		KeyUserInput:         optionalMessage(s.UserInput),
		KeySimulatorOutput:   optionalMessage(s.SimulatorOutput),
		KeyValidatorResponse: optionalMessage(s.ValidatorResponse),
		KeyUpdaterResponse:   optionalMessage(s.UpdaterResponse),
		KeyUserRetryBudget:   s.UserRetryBudget,
		KeyForms:             forms,
		KeyScratchpad:        scratch,
	}
}

func messageMap(m *Message) map[string]any {
	return map[string]any{"type": m.Type, "content": m.Content}
}

func optionalMessage(m *Message) any {
	if m == nil {
		return nil
	}
	return messageMap(m)
}

func cloneMessage(m *Message) *Message {
	if m == nil {
		return nil
	}
	c := *m
	return &c
}

func deepCopyMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopyMap(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = deepCopyValue(t[i])
		}
		return out
	default:
		return v
	}
}

func sortedKeys(m map[string]any) []string {
	ks := make([]string, 0, len(m))
	for k := range m {
		ks = append(ks, k)
	}
	sort.Strings(ks)
	return ks
}

func decode(in, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(in)
}
