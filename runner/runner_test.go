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
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcs-sim/simengine/config"
	"github.com/dcs-sim/simengine/event"
	"github.com/dcs-sim/simengine/model"
	"github.com/dcs-sim/simengine/runstore"
	"github.com/dcs-sim/simengine/simulation"
	"github.com/dcs-sim/simengine/state"
)

const (
	accept = `{"type": "info", "content": "ok"}`
	reject = `{"type": "error", "content": "You cannot fly."}`
)

type stubModel struct {
	reply string
	calls atomic.Int32
}

func (m *stubModel) GenerateContent(ctx context.Context, req *model.Request) (<-chan *model.Response, error) {
	m.calls.Add(1)
	ch := make(chan *model.Response, 1)
	ch <- &model.Response{Choices: []model.Choice{{Message: model.NewAssistantMessage(m.reply)}}}
	close(ch)
	return ch, nil
}

func (m *stubModel) Info() model.Info { return model.Info{Name: "stub", Provider: "stub"} }

// countingStore counts saves.
type countingStore struct {
	*runstore.Memory
	saves atomic.Int32
}

func (s *countingStore) Save(ctx context.Context, r *runstore.Record) error {
	s.saves.Add(1)
	return s.Memory.Save(ctx, r)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func subgraphOnly() *config.GraphConfig {
	return &config.GraphConfig{
		Name: "subgraph-only",
		Edges: []config.EdgeSpec{
			{From: config.StartNode, To: config.Target{Node: config.SubgraphNode}},
			{From: config.SubgraphNode, To: config.Target{Node: config.EndNode}},
		},
	}
}

type fixture struct {
	validator *stubModel
	updater   *stubModel
	store     *countingStore
	clock     *fakeClock
}

func newFixture(validatorReply, updaterReply string) *fixture {
	return &fixture{
		validator: &stubModel{reply: validatorReply},
		updater:   &stubModel{reply: updaterReply},
		store:     &countingStore{Memory: runstore.NewMemory()},
		clock:     &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)},
	}
}

func (f *fixture) newRun(t *testing.T, opts ...Option) *Run {
	t.Helper()
	g, err := simulation.Compile(subgraphOnly())
	require.NoError(t, err)
	t.Cleanup(g.Close)
	rc := state.DefaultContext()
	rc.Models[simulation.ValidatorName] = f.validator
	rc.Models[simulation.UpdaterName] = f.updater
	base := []Option{
		WithRunContext(rc),
		WithStore(f.store),
		WithClock(f.clock.Now),
		WithSource("cli"),
	}
	r, err := New(g, append(base, opts...)...)
	require.NoError(t, err)
	return r
}

func narration(text string) string {
	return `{"type": "ai", "content": "` + text + `"}`
}

func TestNew_Defaults(t *testing.T) {
	f := newFixture(accept, narration("x"))
	r := f.newRun(t)

	assert.Equal(t, "cli-subgraph-only-20250301-120000", r.Name())
	assert.Equal(t, "subgraph-only", r.Game())
	assert.Len(t, r.ID(), 26)
	assert.Equal(t, state.LifecycleEnter, r.State().Lifecycle)
	exited, _ := r.Exited()
	assert.False(t, exited)
}

func TestNew_RejectsBadStoppingConditions(t *testing.T) {
	g, err := simulation.Compile(subgraphOnly())
	require.NoError(t, err)
	defer g.Close()

	_, err = New(g, WithStoppingConditions(map[string][]string{"mood": {"sad"}}))
	assert.ErrorContains(t, err, `unknown attribute "mood"`)

	_, err = New(g, WithStoppingConditions(map[string][]string{AttrTurns: {"> 'many'"}}))
	assert.ErrorContains(t, err, "stopping condition for turns")

	_, err = New(g, WithStoppingConditions(map[string][]string{AttrGame: {" "}}))
	assert.ErrorContains(t, err, "is empty")

	_, err = New(nil)
	assert.Error(t, err)
}

func TestRun_StepCommitsTurn(t *testing.T) {
	f := newFixture(accept, narration("You see a door."))
	r := f.newRun(t)

	res, err := r.Step(context.Background(), "I look around.")
	require.NoError(t, err)
	assert.Equal(t, []state.Message{{Type: state.TypeAI, Content: "You see a door."}}, res.Messages)
	require.NotNil(t, res.State)
	assert.Equal(t, []state.Message{
		{Type: state.TypeUser, Content: "I look around."},
		{Type: state.TypeAI, Content: "You see a door."},
	}, res.State.Events)
	assert.Equal(t, state.LifecycleUpdate, res.State.Lifecycle)
	assert.Nil(t, res.State.UserInput)
	assert.False(t, res.Exited)
	assert.Equal(t, int32(0), f.store.saves.Load())
}

func TestRun_StoppingConditionOnTurns(t *testing.T) {
	f := newFixture(accept, narration("x"))
	st, err := state.New(nil)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		st.Events = append(st.Events, state.Message{Type: state.TypeAI, Content: "e"})
	}
	r := f.newRun(t, WithState(st), WithStoppingConditions(map[string][]string{AttrTurns: {">2"}}))

	res, err := r.Advance(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Exited)
	assert.Contains(t, res.ExitReason, "turns")
	assert.Equal(t, "stopping condition met: turns >2", res.ExitReason)
	assert.Equal(t, state.LifecycleExit, res.State.Lifecycle)
	assert.Equal(t, int32(0), f.updater.calls.Load(), "graph not invoked")
	assert.Equal(t, int32(1), f.store.saves.Load())
}

func TestRun_StoppingConditionAfterTurn(t *testing.T) {
	f := newFixture(accept, narration("x"))
	r := f.newRun(t, WithStoppingConditions(map[string][]string{AttrTurns: {">=2"}}))

	res, err := r.Step(context.Background(), "go")
	require.NoError(t, err)
	assert.True(t, res.Exited)
	assert.Equal(t, "stopping condition met: turns >=2", res.ExitReason)
	assert.Len(t, res.State.Events, 2)
}

func TestRun_StoppingConditionOnRuntime(t *testing.T) {
	f := newFixture(accept, narration("x"))
	r := f.newRun(t, WithStoppingConditions(map[string][]string{AttrRuntimeSeconds: {">60"}}))

	res, err := r.Advance(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Exited)

	f.clock.Advance(61 * time.Second)
	res, err = r.Advance(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Exited)
	assert.Equal(t, "stopping condition met: runtime_seconds >60", res.ExitReason)
}

func TestRun_StringStoppingCondition(t *testing.T) {
	f := newFixture(accept, narration("x"))
	r := f.newRun(t, WithStoppingConditions(map[string][]string{AttrGame: {"only"}}))

	res, err := r.Advance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "stopping condition met: game contains 'only'", res.ExitReason)
}

func TestRun_ExitIsIdempotent(t *testing.T) {
	f := newFixture(accept, narration("x"))
	r := f.newRun(t)
	ctx := context.Background()

	r.Exit(ctx, "first")
	f.clock.Advance(time.Minute)
	r.Exit(ctx, "second")

	exited, reason := r.Exited()
	assert.True(t, exited)
	assert.Equal(t, "first", reason)
	assert.Equal(t, "first", r.State().ExitReason)
	assert.Equal(t, int32(1), f.store.saves.Load())
	assert.True(t, r.Saved())

	rec, err := f.store.Load(ctx, r.ID())
	require.NoError(t, err)
	assert.Equal(t, "first", rec.ExitReason)
	assert.Equal(t, state.LifecycleExit, rec.State.Lifecycle)

	// Steps after exit do nothing.
	res, err := r.Step(ctx, "hello")
	require.NoError(t, err)
	assert.Empty(t, res.Messages)
	assert.Empty(t, res.State.Events)
	assert.Equal(t, int32(0), f.updater.calls.Load())
}

func TestRun_Commands(t *testing.T) {
	ctx := context.Background()

	t.Run("exit commands", func(t *testing.T) {
		for _, cmd := range []string{"/quit", "/stop", "\\exit", "/QUIT now"} {
			f := newFixture(accept, narration("x"))
			r := f.newRun(t)
			res, err := r.Step(ctx, cmd)
			require.NoError(t, err)
			assert.True(t, res.Exited, cmd)
			assert.Equal(t, ReasonExitCommand, res.ExitReason, cmd)
			assert.Equal(t, int32(0), f.validator.calls.Load())
		}
	})

	t.Run("feedback", func(t *testing.T) {
		f := newFixture(accept, narration("x"))
		r := f.newRun(t)
		res, err := r.Step(ctx, "/feedback great game")
		require.NoError(t, err)
		assert.Equal(t, []state.Message{{Type: state.TypeInfo, Content: "Feedback received, thank you."}}, res.Messages)
		assert.False(t, res.Exited)
		assert.Empty(t, res.State.Events)

		_, err = r.Step(ctx, "/fb")
		require.NoError(t, err)
		assert.Equal(t, []string{"great game", ""}, r.Record().Feedback)
		assert.Equal(t, int32(0), f.updater.calls.Load())
	})

	t.Run("unknown command is staged as input", func(t *testing.T) {
		f := newFixture(accept, narration("You dance."))
		r := f.newRun(t)
		res, err := r.Step(ctx, "/dance")
		require.NoError(t, err)
		assert.Equal(t, []state.Message{
			{Type: state.TypeUser, Content: "/dance"},
			{Type: state.TypeAI, Content: "You dance."},
		}, res.State.Events)
	})
}

func TestRun_RetryBudgetExhaustion(t *testing.T) {
	f := newFixture(reject, narration("never shown"))
	st, err := state.New(map[string]any{state.KeyUserRetryBudget: 1})
	require.NoError(t, err)
	r := f.newRun(t, WithState(st))
	ctx := context.Background()

	res, err := r.Step(ctx, "I fly away.")
	require.NoError(t, err)
	assert.False(t, res.Exited)
	assert.Empty(t, res.State.Events)
	assert.Equal(t, state.LifecycleUpdate, res.State.Lifecycle)

	res, err = r.Step(ctx, "I fly away again.")
	require.NoError(t, err)
	assert.True(t, res.Exited)
	assert.Equal(t, simulation.ExitReasonRetryBudget, res.ExitReason)
	assert.Equal(t, state.LifecycleExit, res.State.Lifecycle)
	assert.Empty(t, res.State.Events)
	assert.Equal(t, int32(1), f.store.saves.Load())
}

func TestRun_Play(t *testing.T) {
	f := newFixture(accept, narration("Something happens."))
	r := f.newRun(t)

	inputs := []string{"I wave.", "I wait."}
	next := func(context.Context) (string, error) {
		if len(inputs) == 0 {
			return "", io.EOF
		}
		in := inputs[0]
		inputs = inputs[1:]
		return in, nil
	}
	var finals int
	err := r.Play(context.Background(), next, func(ev *event.Event) {
		if ev.IsFinal() {
			finals++
		}
	})
	require.NoError(t, err)

	exited, reason := r.Exited()
	assert.True(t, exited)
	assert.Equal(t, ReasonInterrupted, reason)
	assert.Equal(t, 3, finals)

	st := r.State()
	require.Len(t, st.Events, 5)
	assert.Equal(t, state.TypeAI, st.Events[0].Type)
	assert.Equal(t, state.Message{Type: state.TypeUser, Content: "I wave."}, st.Events[1])
	assert.Equal(t, state.Message{Type: state.TypeUser, Content: "I wait."}, st.Events[3])
	assert.Equal(t, int32(1), f.store.saves.Load())
}

func TestRun_PlayAsksForInputWhenAdvanceStalls(t *testing.T) {
	f := newFixture(accept, `no json here`)
	r := f.newRun(t)

	asked := 0
	err := r.Play(context.Background(), func(context.Context) (string, error) {
		asked++
		return "", io.EOF
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, asked)
	_, reason := r.Exited()
	assert.Equal(t, ReasonInterrupted, reason)
}

func TestRun_PlayStopsOnCancelledContext(t *testing.T) {
	f := newFixture(accept, narration("x"))
	r := f.newRun(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, r.Play(ctx, func(context.Context) (string, error) { return "", nil }, nil))
	_, reason := r.Exited()
	assert.Equal(t, ReasonInterrupted, reason)
}

func TestRun_Record(t *testing.T) {
	f := newFixture(accept, narration("x"))
	r := f.newRun(t, WithPlayerID("p-7"), WithName("custom"))

	f.clock.Advance(time.Hour + 2*time.Minute + 5*time.Second)
	rec := r.Record()
	assert.Equal(t, "custom", rec.Name)
	assert.Equal(t, "p-7", rec.PlayerID)
	assert.Equal(t, 3725, rec.RuntimeSeconds)
	assert.Equal(t, "01:02:05", rec.RuntimeString)
	assert.Equal(t, []string{">500"}, rec.StoppingConditions[AttrTurns])

	r.Exit(context.Background(), "done")
	f.clock.Advance(time.Hour)
	assert.Equal(t, "01:02:05", r.Record().RuntimeString, "runtime stops at exit")
}

func TestRun_NoStore(t *testing.T) {
	g, err := simulation.Compile(subgraphOnly())
	require.NoError(t, err)
	defer g.Close()
	r, err := New(g)
	require.NoError(t, err)
	r.Exit(context.Background(), "bye")
	assert.False(t, r.Saved())
}
