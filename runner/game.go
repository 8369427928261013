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

package runner

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/dcs-sim/simengine/config"
	"github.com/dcs-sim/simengine/log"
	"github.com/dcs-sim/simengine/model"
	"github.com/dcs-sim/simengine/simulation"
	"github.com/dcs-sim/simengine/state"
)

// Subgraph model defaults.
const (
	DefaultSubgraphProvider = "openrouter"
	DefaultSubgraphModel    = "openai/gpt-oss-20b:free"
)

// ModelFactory creates the client for a provider and model name.
type ModelFactory func(provider, name string) (model.Model, error)

// NewFromGame compiles a game's graph, picks its characters, builds the
// models every node needs and creates a run. Game stopping conditions are
// merged into the configured ones. The run owns the compiled graph.
func NewFromGame(game *config.GameConfig, chars config.Characters, factory ModelFactory, opts ...Option) (*Run, error) {
	if game == nil {
		return nil, errors.New("game config is nil")
	}
	if factory == nil {
		return nil, errors.New("model factory is nil")
	}
	o := newOptions(opts)

	pcs, npcs := game.ValidCharacters(chars)
	pc, err := chooseCharacter("pc", o.pc, pcs)
	if err != nil {
		return nil, err
	}
	npc, err := chooseCharacter("npc", o.npc, npcs)
	if err != nil {
		return nil, err
	}
	pcRec, err := chars.Get(pc)
	if err != nil {
		return nil, err
	}
	npcRec, err := chars.Get(npc)
	if err != nil {
		return nil, err
	}

	models, err := buildModels(&game.Graph, factory, o)
	if err != nil {
		return nil, err
	}
	rc := &state.Context{PC: pcRec, NPC: npcRec, Models: models}
	if o.rc != nil {
		rc.AdditionalValidatorRules = o.rc.AdditionalValidatorRules
		rc.AdditionalUpdaterRules = o.rc.AdditionalUpdaterRules
	}

	st := o.state
	if st == nil {
		if st, err = state.New(game.MergedStateOverrides()); err != nil {
			return nil, fmt.Errorf("create initial state: %w", err)
		}
	}

	g, err := simulation.Compile(&game.Graph, o.simOpts...)
	if err != nil {
		return nil, fmt.Errorf("compile game %s: %w", game.Name, err)
	}

	runOpts := append([]Option{}, opts...)
	runOpts = append(runOpts,
		WithGame(game.Name),
		WithCharacters(pc, npc),
		WithRunContext(rc),
		WithState(st),
		WithStoppingConditions(game.StoppingConditionMap()),
	)
	r, err := New(g, runOpts...)
	if err != nil {
		g.Close()
		return nil, err
	}
	r.ownsGraph = true
	return r, nil
}

func chooseCharacter(role, choice string, valid []string) (string, error) {
	if len(valid) == 0 {
		return "", fmt.Errorf("no valid %s choices found in game config", role)
	}
	if choice == "" {
		return valid[rand.IntN(len(valid))], nil
	}
	if !slices.Contains(valid, choice) {
		return "", fmt.Errorf("invalid %s choice %q; valid choices: %v", role, choice, valid)
	}
	return choice, nil
}

// buildModels creates one client per distinct model name used by a
// custom node, plus the subgraph validator and updater models.
func buildModels(cfg *config.GraphConfig, factory ModelFactory, o *options) (map[string]model.Model, error) {
	provider, name := o.subgraphProvider, o.subgraphModel
	if provider == "" {
		provider = DefaultSubgraphProvider
	}
	if name == "" {
		name = DefaultSubgraphModel
	}
	sub, err := factory(provider, name)
	if err != nil {
		return nil, fmt.Errorf("create subgraph model %s/%s: %w", provider, name, err)
	}
	models := map[string]model.Model{
		simulation.ValidatorName: sub,
		simulation.UpdaterName:   sub,
	}
	for _, n := range cfg.Nodes {
		if n.Provider == "" || n.Model == "" {
			continue
		}
		if _, ok := models[n.Model]; ok {
			continue
		}
		m, err := factory(n.Provider, n.Model)
		if err != nil {
			return nil, fmt.Errorf("node %s: create model %s/%s: %w", n.Name, n.Provider, n.Model, err)
		}
		log.Debugf("created model %s/%s for node %s", n.Provider, n.Model, n.Name)
		models[n.Model] = m
	}
	return models, nil
}
