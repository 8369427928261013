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
	"fmt"

	"github.com/dcs-sim/simengine/model"
)

// Character is a player or non-player character record as loaded from a
// characters file.
type Character map[string]any

// HID returns the character's human-readable id.
func (c Character) HID() string {
	if hid, ok := c["hid"].(string); ok {
		return hid
	}
	return ""
}

// Context is the read-only per-run context shared by every node. It must
// not be mutated once a run has started.
type Context struct {
	PC                       Character
	NPC                      Character
	Models                   map[string]model.Model
	AdditionalValidatorRules string
	AdditionalUpdaterRules   string
}

// Model returns the model registered under name.
func (c *Context) Model(name string) (model.Model, error) {
	if c == nil || c.Models == nil {
		return nil, fmt.Errorf("no model registered for %q", name)
	}
	m, ok := c.Models[name]
	if !ok || m == nil {
		return nil, fmt.Errorf("no model registered for %q", name)
	}
	return m, nil
}

// DefaultCharacter is the stand-in character used when validating a graph
// before any real characters are chosen.
func DefaultCharacter() Character {
	return Character{
		"hid":               "temp-character-for-validation",
		"short_description": "An adult human with typical sensory, motor and cognitive abilities.",
		"long_description": "A typical adult human. They perceive through sight, hearing, touch, " +
			"taste and smell, move on two legs and communicate with spoken language.",
		"abilities": "Normative human perception, movement, memory and speech.",
		"scenarios": "Everyday indoor and outdoor settings.",
	}
}

// DefaultContext returns a Context carrying default characters and no models.
func DefaultContext() *Context {
	return &Context{
		PC:     DefaultCharacter(),
		NPC:    DefaultCharacter(),
		Models: map[string]model.Model{},
	}
}

// Vars builds the variable set templates are rendered against: every state
// key, the whole state under "state", the characters and rule overrides,
// followed by extra in order.
func Vars(s *State, c *Context, extra ...map[string]any) map[string]any {
	m := s.Map()
	vars := make(map[string]any, len(m)+6)
	for k, v := range m {
		vars[k] = v
	}
	vars["state"] = m
	if c != nil {
		vars["pc"] = map[string]any(c.PC)
		vars["npc"] = map[string]any(c.NPC)
		vars["additional_validator_rules"] = c.AdditionalValidatorRules
		vars["additional_updater_rules"] = c.AdditionalUpdaterRules
	}
	for _, e := range extra {
		for k, v := range e {
			vars[k] = v
		}
	}
	return vars
}
