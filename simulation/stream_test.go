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
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcs-sim/simengine/config"
	"github.com/dcs-sim/simengine/model"
	"github.com/dcs-sim/simengine/state"
)

const (
	validReply   = `{"type": "info", "content": "Valid action"}`
	invalidReply = `Sure. {"type": "error", "content": "You cannot hear."}`
	updaterReply = `{"type": "ai", "content": "The door creaks open."}`
)

func subgraphModels(validator, updater *stubModel) *state.Context {
	return runContextWith(map[string]model.Model{ValidatorName: validator, UpdaterName: updater})
}

func withInput(t *testing.T, content string, overrides map[string]any) *state.State {
	t.Helper()
	st := newState(t, overrides)
	st.UserInput = state.NewMessage(state.TypeUser, content)
	return st
}

func TestStream_CustomNodeCommitsEvents(t *testing.T) {
	cfg := &config.GraphConfig{
		Nodes: []config.NodeSpec{customNode("A", "Greet {{ pc.hid }}."+outputFormat)},
		Edges: []config.EdgeSpec{edge(config.StartNode, "A"), edge("A", config.EndNode)},
	}
	g := mustCompileGraph(t, cfg)
	stub := replying(`{"events":[{"type":"ai","content":"H"}]}`)
	var prompt string
	stub.reply = func(req *model.Request) (string, error) {
		prompt = req.Messages[0].Content
		return `{"events":[{"type":"ai","content":"H"}]}`, nil
	}

	msgs, final := runTurn(t, g, newState(t, nil), runContextWith(map[string]model.Model{"m": stub}))
	assert.Empty(t, msgs)
	assert.Equal(t, []state.Message{{Type: state.TypeAI, Content: "H"}}, final.Events)
	assert.Contains(t, prompt, "Greet temp-character-for-validation.")
}

func TestStream_CustomNodeUnparsableReply(t *testing.T) {
	cfg := &config.GraphConfig{
		Nodes: []config.NodeSpec{customNode("A", "Go."+outputFormat)},
		Edges: []config.EdgeSpec{edge(config.StartNode, "A")},
	}
	g := mustCompileGraph(t, cfg)
	rc := runContextWith(map[string]model.Model{"m": replying("I would rather not.")})

	msgs, final := runTurn(t, g, newState(t, nil), rc)
	require.Len(t, msgs, 1)
	assert.Equal(t, state.TypeError, msgs[0].Type)
	assert.Contains(t, msgs[0].Content, `node "A"`)
	assert.Empty(t, final.Events)
}

func TestStream_CustomNodeDropsUnknownKeys(t *testing.T) {
	cfg := &config.GraphConfig{
		Nodes: []config.NodeSpec{customNode("A", "Go."+outputFormat)},
		Edges: []config.EdgeSpec{edge(config.StartNode, "A")},
	}
	g := mustCompileGraph(t, cfg)
	rc := runContextWith(map[string]model.Model{
		"m": replying(`{"mood": "happy", "simulator_output": {"type": "ai", "content": "Hi"}}`),
	})

	msgs, final := runTurn(t, g, newState(t, nil), rc)
	assert.Equal(t, []state.Message{{Type: state.TypeAI, Content: "Hi"}}, msgs)
	assert.Equal(t, &state.Message{Type: state.TypeAI, Content: "Hi"}, final.SimulatorOutput)
}

func TestStream_ModelErrorEndsTurn(t *testing.T) {
	cfg := &config.GraphConfig{
		Nodes: []config.NodeSpec{customNode("A", "Go."+outputFormat)},
		Edges: []config.EdgeSpec{edge(config.StartNode, "A")},
	}
	g := mustCompileGraph(t, cfg)
	failing := &stubModel{name: "down", reply: func(*model.Request) (string, error) {
		return "", errors.New("rate limited")
	}}

	msgs, _ := runTurn(t, g, newState(t, nil), runContextWith(map[string]model.Model{"m": failing}))
	require.Len(t, msgs, 1)
	assert.Equal(t, state.TypeError, msgs[0].Type)
	assert.Contains(t, msgs[0].Content, "rate limited")
}

func TestStream_SubgraphAccepts(t *testing.T) {
	g := mustCompileGraph(t, subgraphOnly())
	validator, updater := replying(validReply), replying(updaterReply)
	prior := map[string]any{"events": []any{map[string]any{"type": "ai", "content": "You enter a new space."}}}

	msgs, final := runTurn(t, g, withInput(t, "I open the door", prior), subgraphModels(validator, updater))

	assert.Equal(t, []state.Message{{Type: state.TypeAI, Content: "The door creaks open."}}, msgs)
	want := []state.Message{
		{Type: state.TypeAI, Content: "You enter a new space."},
		{Type: state.TypeUser, Content: "I open the door"},
		{Type: state.TypeAI, Content: "The door creaks open."},
	}
	if diff := cmp.Diff(want, final.Events); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, int32(1), validator.calls.Load())
	assert.Equal(t, int32(1), updater.calls.Load())
	assert.Equal(t, state.DefaultUserRetryBudget, final.UserRetryBudget)
}

func TestStream_SubgraphRejectionKeepsEvents(t *testing.T) {
	g := mustCompileGraph(t, subgraphOnly())
	prior := map[string]any{"events": []any{map[string]any{"type": "ai", "content": "A quiet room."}}}
	st := withInput(t, "I listen for footsteps", prior)

	msgs, final := runTurn(t, g, st, subgraphModels(replying(invalidReply), replying(updaterReply)))

	require.Len(t, msgs, 1)
	assert.Equal(t, state.Message{Type: state.TypeError, Content: "You cannot hear. Retries left: 5"}, msgs[0])
	assert.Equal(t, st.Events, final.Events)
	assert.Equal(t, 5, final.UserRetryBudget)
	assert.Equal(t, state.LifecycleInit, final.Lifecycle)
}

func TestStream_RetryBudgetExhaustion(t *testing.T) {
	g := mustCompileGraph(t, subgraphOnly())
	rc := subgraphModels(replying(invalidReply), replying(updaterReply))

	st := withInput(t, "I listen", map[string]any{"user_retry_budget": 1, "lifecycle": "UPDATE"})
	msgs, st := runTurn(t, g, st, rc)
	require.Len(t, msgs, 1)
	assert.True(t, strings.HasSuffix(msgs[0].Content, "Retries left: 0"))
	assert.Equal(t, state.LifecycleUpdate, st.Lifecycle)

	st.UserInput = state.NewMessage(state.TypeUser, "I listen again")
	msgs, st = runTurn(t, g, st, rc)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Content, "User retry budget exhausted")
	assert.Equal(t, state.LifecycleExit, st.Lifecycle)
	assert.Equal(t, ExitReasonRetryBudget, st.ExitReason)
	assert.Empty(t, st.Events)
}

func TestStream_ValidatorFastPaths(t *testing.T) {
	tests := []struct {
		name       string
		input      *state.Message
		wantMsg    state.Message
		wantEvents int
	}{
		{
			name:       "no input opens the scene",
			input:      nil,
			wantMsg:    state.Message{Type: state.TypeAI, Content: "The door creaks open."},
			wantEvents: 1,
		},
		{
			name:       "blank input",
			input:      state.NewMessage(state.TypeUser, "   "),
			wantMsg:    state.Message{Type: state.TypeAI, Content: "The door creaks open."},
			wantEvents: 1,
		},
		{
			name:    "overlong input",
			input:   state.NewMessage(state.TypeUser, strings.Repeat("a", MaxUserInputLength+1)),
			wantMsg: state.Message{Type: state.TypeError, Content: "User input exceeds maximum length of 350 characters. Retries left: 5"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := mustCompileGraph(t, subgraphOnly())
			validator := replying(invalidReply)
			st := newState(t, nil)
			st.UserInput = tt.input

			msgs, final := runTurn(t, g, st, subgraphModels(validator, replying(updaterReply)))
			require.Len(t, msgs, 1)
			assert.Equal(t, tt.wantMsg, msgs[0])
			assert.Len(t, final.Events, tt.wantEvents)
			assert.Zero(t, validator.calls.Load())
		})
	}
}

func TestStream_UpdaterWithoutResult(t *testing.T) {
	g := mustCompileGraph(t, subgraphOnly())
	st := withInput(t, "I wave", nil)

	msgs, final := runTurn(t, g, st, subgraphModels(replying(validReply), replying("no json here")))
	assert.Equal(t, []state.Message{{Type: state.TypeError, Content: msgNoUpdate}}, msgs)
	assert.Empty(t, final.Events)
}

func TestStream_ValidatorReplyMustMatchSchema(t *testing.T) {
	g := mustCompileGraph(t, subgraphOnly())
	st := withInput(t, "I wave", nil)

	msgs, final := runTurn(t, g, st, subgraphModels(replying(`{"type": "maybe", "content": "?"}`), replying(updaterReply)))
	assert.Equal(t, []state.Message{{Type: state.TypeError, Content: msgValidationMissing}}, msgs)
	assert.Empty(t, final.Events)
}

func TestStream_Cancel(t *testing.T) {
	g := mustCompileGraph(t, subgraphOnly())
	slow := replying(validReply)
	slow.delay = time.Second
	cancel := make(chan struct{})
	close(cancel)

	msgs, final := runTurn(t, g, withInput(t, "I wait", nil), subgraphModels(slow, replying(updaterReply)), WithCancel(cancel))
	assert.Equal(t, []state.Message{{Type: state.TypeInfo, Content: msgCancelled}}, msgs)
	assert.Empty(t, final.Events)
}

func TestStream_ContextCancel(t *testing.T) {
	g := mustCompileGraph(t, subgraphOnly())
	slow := replying(validReply)
	slow.delay = time.Second
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ch, err := g.Stream(ctx, withInput(t, "I wait", nil), subgraphModels(slow, replying(updaterReply)))
	require.NoError(t, err)
	var types []string
	for ev := range ch {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []string{state.TypeInfo, "final_state"}, types)
}

func TestStream_Timeout(t *testing.T) {
	g := mustCompileGraph(t, subgraphOnly())
	slow := replying(validReply)
	slow.delay = 2 * time.Second

	start := time.Now()
	msgs, _ := runTurn(t, g, withInput(t, "I wait", nil), subgraphModels(slow, replying(updaterReply)),
		WithTimeout(100*time.Millisecond))
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, []state.Message{{Type: state.TypeError, Content: "Simulation timed out after 0.1 seconds."}}, msgs)
}

func TestStream_DoesNotModifyInput(t *testing.T) {
	g := mustCompileGraph(t, subgraphOnly())
	st := withInput(t, "I open the door", nil)
	before := st.Clone()

	_, _ = runTurn(t, g, st, subgraphModels(replying(validReply), replying(updaterReply)))
	assert.Equal(t, before, st)
}

func TestStream_NilState(t *testing.T) {
	g := mustCompileGraph(t, subgraphOnly())
	_, err := g.Stream(context.Background(), nil, nil)
	assert.Error(t, err)
}

func TestStream_ModelCallbacks(t *testing.T) {
	var seen []string
	cbs := model.NewModelCallbacks().RegisterBeforeModel(func(_ context.Context, req *model.Request) (*model.Response, error) {
		seen = append(seen, req.Messages[0].Role.String())
		return &model.Response{Choices: []model.Choice{{
			Message: model.NewAssistantMessage(`{"simulator_output": {"type": "ai", "content": "cached"}}`),
		}}}, nil
	})
	cfg := &config.GraphConfig{
		Nodes: []config.NodeSpec{customNode("A", "Go."+outputFormat)},
		Edges: []config.EdgeSpec{edge(config.StartNode, "A")},
	}
	g := mustCompileGraph(t, cfg, WithModelCallbacks(cbs))
	stub := replying(`{}`)

	msgs, _ := runTurn(t, g, newState(t, nil), runContextWith(map[string]model.Model{"m": stub}))
	assert.Equal(t, []state.Message{{Type: state.TypeAI, Content: "cached"}}, msgs)
	assert.Equal(t, []string{"system"}, seen)
	assert.Zero(t, stub.calls.Load())
}

func TestFinalize(t *testing.T) {
	info := state.NewMessage(state.TypeInfo, "Valid action")
	ai := state.NewMessage(state.TypeAI, "It moves.")
	tests := []struct {
		name       string
		validator  *state.Message
		updater    *state.Message
		wantOutput *state.Message
		wantEvents []state.Message
	}{
		{"no verdict", nil, ai, state.NewMessage(state.TypeError, msgValidationMissing), nil},
		{"rejected", state.NewMessage(state.TypeError, "No."), ai, state.NewMessage(state.TypeError, "No."), nil},
		{"accepted", info, ai, ai, []state.Message{{Type: state.TypeUser, Content: "I poke it"}, *ai}},
		{"accepted without update", info, nil, state.NewMessage(state.TypeError, msgNoUpdate), nil},
		{
			"updater type is committed as ai",
			info,
			state.NewMessage(state.TypeError, "I cannot narrate that."),
			state.NewMessage(state.TypeError, "I cannot narrate that."),
			[]state.Message{{Type: state.TypeUser, Content: "I poke it"}, {Type: state.TypeAI, Content: "I cannot narrate that."}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := withInput(t, "I poke it", nil)
			st.ValidatorResponse, st.UpdaterResponse = tt.validator, tt.updater
			patch, err := finalize(context.Background(), st)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOutput, patch[state.KeySimulatorOutput])
			if tt.wantEvents == nil {
				assert.NotContains(t, patch, state.KeyEvents)
				return
			}
			assert.Equal(t, tt.wantEvents, patch[state.KeyEvents])
		})
	}
}
