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

package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"
)

var semverRe = regexp.MustCompile(`^(0|[1-9]\d*)\.(0|[1-9]\d*)\.(0|[1-9]\d*)` +
	`(?:-[0-9A-Za-z-]+(?:\.[0-9A-Za-z-]+)*)?(?:\+[0-9A-Za-z-]+(?:\.[0-9A-Za-z-]+)*)?$`)

// StringList decodes from a YAML scalar or sequence of scalars.
type StringList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *StringList) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		*l = StringList{value.Value}
		return nil
	}
	var items []string
	if err := value.Decode(&items); err != nil {
		return err
	}
	*l = items
	return nil
}

// Selector chooses characters by hid. An empty Valid list admits every
// known character; Invalid is subtracted afterwards.
type Selector struct {
	Valid   []string `yaml:"valid,omitempty" json:"valid,omitempty"`
	Invalid []string `yaml:"invalid,omitempty" json:"invalid,omitempty"`
}

// Choose applies the selector to the known hids and returns the result sorted.
func (s Selector) Choose(known []string) []string {
	candidates := s.Valid
	if len(candidates) == 0 {
		candidates = known
	}
	knownSet := make(map[string]bool, len(known))
	for _, hid := range known {
		knownSet[hid] = true
	}
	excluded := make(map[string]bool, len(s.Invalid))
	for _, hid := range s.Invalid {
		excluded[hid] = true
	}
	var out []string
	seen := map[string]bool{}
	for _, hid := range candidates {
		if !knownSet[hid] || excluded[hid] || seen[hid] {
			continue
		}
		seen[hid] = true
		out = append(out, hid)
	}
	sort.Strings(out)
	return out
}

// CharacterSettings selects player and non-player characters.
type CharacterSettings struct {
	PC                 Selector `yaml:"pc" json:"pc"`
	NPC                Selector `yaml:"npc" json:"npc"`
	DisplayPCChoiceAs  string   `yaml:"display_pc_choice_as,omitempty" json:"display_pc_choice_as,omitempty"`
	DisplayNPCChoiceAs string   `yaml:"display_npc_choice_as,omitempty" json:"display_npc_choice_as,omitempty"`
}

// GameConfig is the top-level description of a game.
type GameConfig struct {
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description" json:"description"`
	Version     string   `yaml:"version" json:"version"`
	Authors     []string `yaml:"authors,omitempty" json:"authors,omitempty"`

	// StoppingConditions maps a run attribute to conditions such as ">500".
	StoppingConditions map[string]StringList `yaml:"stopping_conditions,omitempty" json:"stopping_conditions,omitempty"`
	StateOverrides     map[string]any        `yaml:"state_overrides,omitempty" json:"state_overrides,omitempty"`

	// AccessSettings and DataCollectionSettings are passed through to the
	// run record.
	AccessSettings         map[string]any `yaml:"access_settings,omitempty" json:"access_settings,omitempty"`
	DataCollectionSettings map[string]any `yaml:"data_collection_settings,omitempty" json:"data_collection_settings,omitempty"`

	CharacterSettings CharacterSettings `yaml:"character_settings" json:"character_settings"`
	Graph             GraphConfig       `yaml:"graph_config" json:"graph_config"`
}

// StoppingConditionMap returns the stopping conditions as plain slices.
func (g *GameConfig) StoppingConditionMap() map[string][]string {
	out := make(map[string][]string, len(g.StoppingConditions))
	for k, v := range g.StoppingConditions {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// MergedStateOverrides returns the graph overrides with the game's applied on top.
func (g *GameConfig) MergedStateOverrides() map[string]any {
	out := make(map[string]any, len(g.Graph.StateOverrides)+len(g.StateOverrides))
	for k, v := range g.Graph.StateOverrides {
		out[k] = v
	}
	for k, v := range g.StateOverrides {
		out[k] = v
	}
	return out
}

// ValidCharacters returns the hids players may pick for each role.
func (g *GameConfig) ValidCharacters(chars Characters) (pcs, npcs []string) {
	known := chars.HIDs()
	return g.CharacterSettings.PC.Choose(known), g.CharacterSettings.NPC.Choose(known)
}

// Validate checks the metadata and graph structure.
func (g *GameConfig) Validate() error {
	var errs []error
	if g.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if !semverRe.MatchString(g.Version) {
		errs = append(errs, fmt.Errorf("version %q is not a semantic version", g.Version))
	}
	g.Graph.ApplyDefaults()
	if err := g.Graph.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("graph_config: %w", err))
	}
	return errors.Join(errs...)
}

// ParseGame decodes a game document.
func ParseGame(data []byte) (*GameConfig, error) {
	g := GameConfig{Authors: []string{"DCS"}}
	if err := decodeYAMLStrict(data, &g); err != nil {
		return nil, fmt.Errorf("parse game config: %w", err)
	}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid game config %s: %w", g.Name, err)
	}
	return &g, nil
}

// LoadGame reads and decodes a game document.
func LoadGame(path string) (*GameConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read game config: %w", err)
	}
	return ParseGame(data)
}
