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
	"time"

	"github.com/dcs-sim/simengine/condition"
	"github.com/dcs-sim/simengine/runstore"
	"github.com/dcs-sim/simengine/simulation"
	"github.com/dcs-sim/simengine/state"
)

// Option configures a Run.
type Option func(*options)

type options struct {
	id       string
	name     string
	game     string
	source   string
	playerID string
	pc, npc  string

	cfg   Config
	store runstore.Store
	eval  *condition.Evaluator
	now   func() time.Time
	state *state.State
	rc    *state.Context

	// Used by NewFromGame only.
	subgraphProvider string
	subgraphModel    string
	simOpts          []simulation.Option
}

func newOptions(opts []Option) *options {
	o := &options{cfg: DefaultConfig()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithID sets the run ID. A ULID is generated by default.
func WithID(id string) Option {
	return func(o *options) { o.id = id }
}

// WithName sets the run name. It defaults to <source>-<game>-<start time>.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithGame sets the game name. It defaults to the graph name.
func WithGame(game string) Option {
	return func(o *options) { o.game = game }
}

// WithSource records where the run was started from, such as "cli".
func WithSource(source string) Option {
	return func(o *options) { o.source = source }
}

// WithPlayerID records the player.
func WithPlayerID(id string) Option {
	return func(o *options) { o.playerID = id }
}

// WithCharacters chooses the player and non-player characters by hid.
// NewFromGame picks at random among the allowed ones when empty.
func WithCharacters(pc, npc string) Option {
	return func(o *options) { o.pc, o.npc = pc, npc }
}

// WithConfig replaces the run configuration, stopping conditions included.
func WithConfig(cfg Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithStoppingConditions adds stopping conditions to the configured ones.
func WithStoppingConditions(conds map[string][]string) Option {
	return func(o *options) { o.cfg = o.cfg.WithStoppingConditions(conds) }
}

// WithStore sets where the run is saved on exit.
func WithStore(s runstore.Store) Option {
	return func(o *options) { o.store = s }
}

// WithEvaluator sets the evaluator used for stopping conditions.
func WithEvaluator(e *condition.Evaluator) Option {
	return func(o *options) { o.eval = e }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithState sets the initial state. It is copied.
func WithState(s *state.State) Option {
	return func(o *options) { o.state = s }
}

// WithRunContext sets the run context handed to every node.
func WithRunContext(rc *state.Context) Option {
	return func(o *options) { o.rc = rc }
}

// WithSubgraphModel sets the provider and model NewFromGame uses for the
// validator and updater.
func WithSubgraphModel(provider, name string) Option {
	return func(o *options) { o.subgraphProvider, o.subgraphModel = provider, name }
}

// WithSimulationOptions passes options to simulation.Compile in NewFromGame.
func WithSimulationOptions(opts ...simulation.Option) Option {
	return func(o *options) { o.simOpts = append(o.simOpts, opts...) }
}
