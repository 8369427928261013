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
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcs-sim/simengine/config"
	"github.com/dcs-sim/simengine/model"
	"github.com/dcs-sim/simengine/simulation"
	"github.com/dcs-sim/simengine/state"
)

func testGame() *config.GameConfig {
	g := &config.GameConfig{
		Name:               "explore",
		Version:            "1.0.0",
		StoppingConditions: map[string]config.StringList{AttrTurns: {">40"}},
		StateOverrides:     map[string]any{state.KeyUserRetryBudget: 2},
		CharacterSettings: config.CharacterSettings{
			NPC: config.Selector{Invalid: []string{"human"}},
		},
		Graph: *subgraphOnly(),
	}
	g.Graph.Nodes = []config.NodeSpec{{
		Name:           "narrator",
		Kind:           config.KindCustom,
		Provider:       "openai",
		Model:          "gpt-test",
		SystemTemplate: "Say hi.\nOutput Format: {\"events\": []}",
	}}
	return g
}

func testCharacters() config.Characters {
	return config.Characters{
		"human":  state.Character{"hid": "human"},
		"robot":  state.Character{"hid": "robot"},
		"falcon": state.Character{"hid": "falcon"},
	}
}

type factoryCall struct{ provider, name string }

func recordingFactory(calls *[]factoryCall, m model.Model) ModelFactory {
	return func(provider, name string) (model.Model, error) {
		*calls = append(*calls, factoryCall{provider, name})
		return m, nil
	}
}

func TestNewFromGame(t *testing.T) {
	var calls []factoryCall
	stub := &stubModel{reply: accept}
	r, err := NewFromGame(testGame(), testCharacters(), recordingFactory(&calls, stub),
		WithCharacters("human", "robot"),
		WithSubgraphModel("openrouter", "sub-model"),
	)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, []factoryCall{{"openrouter", "sub-model"}, {"openai", "gpt-test"}}, calls)
	assert.Equal(t, "explore", r.Game())

	rec := r.Record()
	assert.Equal(t, "human", rec.PC)
	assert.Equal(t, "robot", rec.NPC)
	assert.Equal(t, []string{">500", ">40"}, rec.StoppingConditions[AttrTurns])
	assert.Equal(t, 2, rec.State.UserRetryBudget)
	assert.Equal(t, state.LifecycleEnter, rec.State.Lifecycle)

	for _, name := range []string{simulation.ValidatorName, simulation.UpdaterName, "gpt-test"} {
		m, err := r.rc.Model(name)
		require.NoError(t, err, name)
		assert.Same(t, stub, m)
	}
	assert.Equal(t, "robot", r.rc.NPC.HID())
}

func TestNewFromGame_RandomCharacters(t *testing.T) {
	var calls []factoryCall
	r, err := NewFromGame(testGame(), testCharacters(), recordingFactory(&calls, &stubModel{}))
	require.NoError(t, err)
	defer r.Close()
	rec := r.Record()
	assert.Contains(t, []string{"falcon", "human", "robot"}, rec.PC)
	assert.Contains(t, []string{"falcon", "robot"}, rec.NPC)
	assert.Equal(t, factoryCall{DefaultSubgraphProvider, DefaultSubgraphModel}, calls[0])
}

func TestNewFromGame_Errors(t *testing.T) {
	ok := recordingFactory(new([]factoryCall), &stubModel{})

	_, err := NewFromGame(nil, testCharacters(), ok)
	assert.Error(t, err)

	_, err = NewFromGame(testGame(), testCharacters(), nil)
	assert.Error(t, err)

	_, err = NewFromGame(testGame(), testCharacters(), ok, WithCharacters("", "human"))
	assert.ErrorContains(t, err, `invalid npc choice "human"`)

	_, err = NewFromGame(testGame(), config.Characters{}, ok)
	assert.ErrorContains(t, err, "no valid pc choices")

	failing := func(provider, name string) (model.Model, error) {
		if provider == "openai" {
			return nil, errors.New("provider not implemented")
		}
		return &stubModel{}, nil
	}
	_, err = NewFromGame(testGame(), testCharacters(), failing)
	assert.ErrorContains(t, err, "node narrator")

	bad := testGame()
	bad.Graph.Nodes[0].SystemTemplate = "no contract"
	_, err = NewFromGame(bad, testCharacters(), ok)
	assert.ErrorContains(t, err, "compile game explore")
}

func TestNewFromGame_Step(t *testing.T) {
	g := testGame()
	g.Graph.Nodes = nil
	factory := func(provider, name string) (model.Model, error) {
		return &stubModel{reply: `{"type": "info", "content": "Hello."}`}, nil
	}
	r, err := NewFromGame(g, testCharacters(), factory, WithCharacters("robot", "falcon"))
	require.NoError(t, err)
	defer r.Close()

	res, err := r.Advance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []state.Message{{Type: state.TypeInfo, Content: "Hello."}}, res.Messages)
	require.Len(t, res.State.Events, 1)
	assert.Equal(t, state.TypeAI, res.State.Events[0].Type)
}
