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
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	s, err := New(nil)
	require.NoError(t, err)
	assert.Equal(t, LifecycleInit, s.Lifecycle)
	assert.Equal(t, DefaultUserRetryBudget, s.UserRetryBudget)
	assert.Empty(t, s.Events)
	assert.Nil(t, s.UserInput)
}

func TestNew_OverridesDropUnknownKeys(t *testing.T) {
	s, err := New(map[string]any{
		"user_retry_budget": 2,
		"lifecycle":         "ENTER",
		"not_a_field":       true,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, s.UserRetryBudget)
	assert.Equal(t, LifecycleEnter, s.Lifecycle)
}

func TestApply(t *testing.T) {
	tests := []struct {
		name    string
		start   func() *State
		patch   Patch
		check   func(t *testing.T, s *State)
		wantErr bool
	}{
		{
			name:  "events append from decoded json",
			start: func() *State { s, _ := New(nil); s.Events = []Message{{Type: TypeUser, Content: "hi"}}; return s },
			patch: jsonPatch(t, `{"events":[{"type":"ai","content":"H"}]}`),
			check: func(t *testing.T, s *State) {
				assert.Equal(t, []Message{{Type: TypeUser, Content: "hi"}, {Type: TypeAI, Content: "H"}}, s.Events)
			},
		},
		{
			name:  "optional message set and cleared",
			start: func() *State { s, _ := New(nil); s.UserInput = NewMessage(TypeUser, "x"); return s },
			patch: Patch{KeyUserInput: nil, KeySimulatorOutput: map[string]any{"type": "info", "content": "ok"}},
			check: func(t *testing.T, s *State) {
				assert.Nil(t, s.UserInput)
				assert.Equal(t, NewMessage(TypeInfo, "ok"), s.SimulatorOutput)
			},
		},
		{
			name:  "retry budget from float",
			start: func() *State { s, _ := New(nil); return s },
			patch: jsonPatch(t, `{"user_retry_budget": 3}`),
			check: func(t *testing.T, s *State) { assert.Equal(t, 3, s.UserRetryBudget) },
		},
		{
			name:  "terminal lifecycle is kept",
			start: func() *State { s, _ := New(nil); s.Lifecycle = LifecycleExit; return s },
			patch: Patch{KeyLifecycle: "UPDATE"},
			check: func(t *testing.T, s *State) { assert.Equal(t, LifecycleExit, s.Lifecycle) },
		},
		{
			name:  "forms merge by name",
			start: func() *State { s, _ := New(nil); s.Forms = map[string]Form{"a": {}}; return s },
			patch: Patch{KeyForms: map[string]any{"b": map[string]any{"questions": []any{map[string]any{"text": "q"}}}}},
			check: func(t *testing.T, s *State) {
				require.Len(t, s.Forms, 2)
				assert.Equal(t, "q", s.Forms["b"].Questions[0].Text)
			},
		},
		{
			name:    "unknown key rejected atomically",
			start:   func() *State { s, _ := New(nil); return s },
			patch:   Patch{KeyExitReason: "x", "goal": 1},
			wantErr: true,
			check:   func(t *testing.T, s *State) { assert.Empty(t, s.ExitReason) },
		},
		{
			name:    "invalid lifecycle",
			start:   func() *State { s, _ := New(nil); return s },
			patch:   Patch{KeyLifecycle: "PAUSED"},
			wantErr: true,
			check:   func(t *testing.T, s *State) { assert.Equal(t, LifecycleInit, s.Lifecycle) },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := tt.start()
			err := s.Apply(tt.patch)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			tt.check(t, s)
		})
	}
}

func TestCloneIsDeep(t *testing.T) {
	s, _ := New(nil)
	s.Events = []Message{{Type: TypeAI, Content: "a"}}
	s.UserInput = NewMessage(TypeUser, "u")
	s.Scratchpad = map[string]any{"notes": []any{"x"}}
	s.Forms = map[string]Form{"intake": {Questions: []FormQuestion{{Text: "name?"}}}}

	c := s.Clone()
	c.Events[0].Content = "changed"
	c.UserInput.Content = "changed"
	c.Scratchpad["notes"].([]any)[0] = "y"
	c.Forms["intake"].Questions[0].Answer = "bob"

	assert.Equal(t, "a", s.Events[0].Content)
	assert.Equal(t, "u", s.UserInput.Content)
	assert.Equal(t, "x", s.Scratchpad["notes"].([]any)[0])
	assert.Empty(t, s.Forms["intake"].Questions[0].Answer)
}

func TestPatchMergeConcatenatesEvents(t *testing.T) {
	p := Patch{KeyEvents: []Message{{Type: TypeUser, Content: "u"}}}
	p.Merge(Patch{KeyEvents: []any{map[string]any{"type": "ai", "content": "a"}}, KeySimulatorOutput: nil})

	s, _ := New(nil)
	require.NoError(t, s.Apply(p))
	assert.Len(t, s.Events, 2)
	assert.Equal(t, TypeAI, s.Events[1].Type)
}

func TestMapAndVars(t *testing.T) {
	s, _ := New(nil)
	s.Events = []Message{{Type: TypeUser, Content: "look"}}
	c := DefaultContext()
	c.AdditionalUpdaterRules = "no magic"

	vars := Vars(s, c, map[string]any{"command": "help"})
	want := map[string]any{"type": "user", "content": "look"}
	if diff := cmp.Diff([]any{want}, vars[KeyEvents]); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}
	assert.Nil(t, vars[KeyUserInput])
	assert.Equal(t, "no magic", vars["additional_updater_rules"])
	assert.Equal(t, "help", vars["command"])
	assert.Equal(t, "temp-character-for-validation", vars["pc"].(map[string]any)["hid"])
	assert.Equal(t, DefaultUserRetryBudget, vars["state"].(map[string]any)[KeyUserRetryBudget])
}

func TestContextModel(t *testing.T) {
	c := DefaultContext()
	_, err := c.Model("missing")
	assert.Error(t, err)
}

func TestLifecycleTerminal(t *testing.T) {
	assert.True(t, LifecycleExit.Terminal())
	assert.True(t, LifecycleComplete.Terminal())
	assert.False(t, LifecycleUpdate.Terminal())
}

func jsonPatch(t *testing.T, raw string) Patch {
	t.Helper()
	var p Patch
	require.NoError(t, json.Unmarshal([]byte(raw), &p))
	return p
}
