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

package event

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcs-sim/simengine/state"
)

func TestNew(t *testing.T) {
	e := New("inv-1", "node_a",
		WithObject(ObjectTypeNodeComplete),
		WithPath("__SIMULATION_SUBGRAPH__"),
		WithStateDelta(state.Patch{state.KeyExitReason: "done"}),
	)
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, "inv-1", e.InvocationID)
	assert.Equal(t, "node_a", e.Author)
	assert.Equal(t, []string{"__SIMULATION_SUBGRAPH__"}, e.Path)
	assert.False(t, e.Timestamp.IsZero())
	assert.Nil(t, e.Message())
}

func TestMessageAndFinalEvents(t *testing.T) {
	m := NewMessageEvent("inv", state.TypeInfo, "hello")
	assert.Equal(t, state.NewMessage(state.TypeInfo, "hello"), m.Message())
	assert.False(t, m.IsFinal())

	s, _ := state.New(nil)
	f := NewFinalStateEvent("inv", s)
	assert.True(t, f.IsFinal())
	assert.Nil(t, f.Message())

	raw, err := json.Marshal(f)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, TypeFinalState, decoded["type"])
	assert.Contains(t, decoded, "state")
}

func TestNewErrorEvent(t *testing.T) {
	e := NewErrorEvent("inv", "node_a", "model_error", "rate limited")
	assert.Equal(t, ObjectTypeGraphError, e.Object)
	require.NotNil(t, e.Error)
	assert.Equal(t, "rate limited", e.Error.Message)
}

func TestClone(t *testing.T) {
	s, _ := state.New(nil)
	e := New("inv", "a", WithPath("p"), WithState(s), WithError("x", "y"),
		WithStateDelta(state.Patch{state.KeyExitReason: "r"}))
	c := e.Clone()
	c.Path[0] = "q"
	c.State.ExitReason = "changed"
	c.Error.Message = "z"
	c.StateDelta[state.KeyExitReason] = "s"

	assert.Equal(t, "p", e.Path[0])
	assert.Empty(t, e.State.ExitReason)
	assert.Equal(t, "y", e.Error.Message)
	assert.Equal(t, "r", e.StateDelta[state.KeyExitReason])
	assert.Nil(t, (*Event)(nil).Clone())
}
