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
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dcs-sim/simengine/config"
	"github.com/dcs-sim/simengine/event"
	"github.com/dcs-sim/simengine/model"
	"github.com/dcs-sim/simengine/state"
)

const outputFormat = "\nOutput Format: {\"events\": [{\"type\": str, \"content\": str}]}"

// stubModel replies with canned text, optionally after a delay.
type stubModel struct {
	name  string
	reply func(req *model.Request) (string, error)
	delay time.Duration
	calls atomic.Int32
}

func replying(text string) *stubModel {
	return &stubModel{name: "stub", reply: func(*model.Request) (string, error) { return text, nil }}
}

func (m *stubModel) GenerateContent(ctx context.Context, req *model.Request) (<-chan *model.Response, error) {
	m.calls.Add(1)
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	text, err := m.reply(req)
	if err != nil {
		return nil, err
	}
	ch := make(chan *model.Response, 1)
	ch <- &model.Response{Choices: []model.Choice{{Message: model.NewAssistantMessage(text)}}}
	close(ch)
	return ch, nil
}

func (m *stubModel) Info() model.Info {
	return model.Info{Name: m.name, Provider: "stub"}
}

func customNode(name, tmpl string) config.NodeSpec {
	return config.NodeSpec{Name: name, Kind: config.KindCustom, Provider: "openrouter", Model: "m", SystemTemplate: tmpl}
}

func builtinNode(name, kind string, kwargs map[string]any) config.NodeSpec {
	return config.NodeSpec{Name: name, Kind: config.BuiltinPrefix + kind, Kwargs: kwargs}
}

func edge(from, to string) config.EdgeSpec {
	return config.EdgeSpec{From: from, To: config.Target{Node: to}}
}

func condEdge(from string, clauses ...config.Clause) config.EdgeSpec {
	return config.EdgeSpec{From: from, To: config.Target{Conditional: clauses}}
}

func mustCompileGraph(t *testing.T, cfg *config.GraphConfig, opts ...Option) *Graph {
	t.Helper()
	g, err := Compile(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(g.Close)
	return g
}

func subgraphOnly() *config.GraphConfig {
	return &config.GraphConfig{
		Name: "subgraph-only",
		Edges: []config.EdgeSpec{
			edge(config.StartNode, config.SubgraphNode),
			edge(config.SubgraphNode, config.EndNode),
		},
	}
}

func runContextWith(models map[string]model.Model) *state.Context {
	rc := state.DefaultContext()
	for k, m := range models {
		rc.Models[k] = m
	}
	return rc
}

func newState(t *testing.T, overrides map[string]any) *state.State {
	t.Helper()
	st, err := state.New(overrides)
	require.NoError(t, err)
	return st
}

// runTurn streams one turn and splits it into messages and the final state.
func runTurn(t *testing.T, g *Graph, st *state.State, rc *state.Context, opts ...StreamOption) ([]state.Message, *state.State) {
	t.Helper()
	ch, err := g.Stream(context.Background(), st, rc, opts...)
	require.NoError(t, err)
	var (
		msgs  []state.Message
		final *state.State
		n     int
	)
	for ev := range ch {
		if ev.IsFinal() {
			n++
			final = ev.State
			continue
		}
		require.Equal(t, event.ObjectTypeTurnMessage, ev.Object)
		msgs = append(msgs, *ev.Message())
	}
	require.Equal(t, 1, n, "exactly one final_state event")
	require.NotNil(t, final)
	return msgs, final
}
