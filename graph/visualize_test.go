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

package graph

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcs-sim/simengine/state"
)

func vizGraph(t *testing.T) *Graph {
	t.Helper()
	inner := NewStateGraph("inner").
		AddNode("check", noop, WithNodeType(NodeTypeModel)).
		SetEntryPoint("check").
		SetFinishPoint("check").
		MustCompile()
	route := func(context.Context, *state.State) (string, error) { return "else", nil }
	return NewStateGraph("outer").
		AddNode("filter", noop, WithNodeType(NodeTypeBuiltin), WithName("command \"filter\"")).
		AddSubgraphNode("sim", inner).
		SetEntryPoint("filter").
		AddConditionalEdges("filter", route, map[string]string{"user_input": "sim", "else": End}).
		SetFinishPoint("sim").
		MustCompile()
}

func TestDOT_Default(t *testing.T) {
	dot := vizGraph(t).DOT()

	assert.Contains(t, dot, "digraph G {")
	assert.Contains(t, dot, "rankdir=TB;")
	assert.Contains(t, dot, `"filter" [label="command \"filter\"", shape=box, style=filled, fillcolor="#fff3e0"`)
	assert.Contains(t, dot, `subgraph "cluster_sim" {`)
	assert.Contains(t, dot, `"sim/check" [label="check", shape=box, style=filled, fillcolor="#e3f2fd"`)
	assert.Contains(t, dot, `"__start__" -> "filter";`)
	assert.Contains(t, dot, `"filter" -> "sim/__start__" [style=dashed, color="#999999", label="user_input"];`)
	assert.Contains(t, dot, `"filter" -> "__end__" [style=dashed, color="#999999", label="else"];`)
	assert.Contains(t, dot, `"sim/__end__" -> "__end__";`)
}

func TestDOT_Options(t *testing.T) {
	dot := vizGraph(t).DOT(
		WithRankDir(RankDirLR),
		WithIncludeStartEnd(false),
		WithExpandSubgraphs(false),
		WithGraphLabel("demo"),
	)
	assert.Contains(t, dot, "rankdir=LR;")
	assert.Contains(t, dot, `label="demo";`)
	assert.NotContains(t, dot, "__start__")
	assert.NotContains(t, dot, "cluster_")
	assert.Contains(t, dot, `"sim" [label="sim", shape=box, style=filled, fillcolor="#e8f5e9"`)
	assert.Contains(t, dot, `"filter" -> "sim" [style=dashed`)

	assert.Contains(t, vizGraph(t).DOT(WithRankDir("bogus")), "rankdir=TB;")
}

func TestWriteDOT(t *testing.T) {
	g := vizGraph(t)
	var buf bytes.Buffer
	require.NoError(t, g.WriteDOT(&buf))
	assert.Equal(t, g.DOT(), buf.String())
}
