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

// Package runner owns a simulation run: its State, lifecycle, retry and
// stopping policy, and persistence on exit.
package runner

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/dcs-sim/simengine/builtin"
	"github.com/dcs-sim/simengine/condition"
	"github.com/dcs-sim/simengine/event"
	"github.com/dcs-sim/simengine/log"
	"github.com/dcs-sim/simengine/runstore"
	"github.com/dcs-sim/simengine/simulation"
	"github.com/dcs-sim/simengine/state"
)

// Exit reasons set by the run itself.
const (
	ReasonExitCommand = "received exit command"
	ReasonInterrupted = "user interrupted"
)

const (
	defaultSource    = "unknown"
	feedbackReceived = "Feedback received, thank you."
)

var nameRe = regexp.MustCompile(`[^a-z0-9_-]+`)

// Run is one simulation run. Turns are serialized; the accessors are safe
// for concurrent use.
type Run struct {
	id       string
	name     string
	game     string
	source   string
	playerID string
	pc, npc  string

	graph     *simulation.Graph
	ownsGraph bool
	rc        *state.Context
	cfg       Config
	store     runstore.Store
	eval      *condition.Evaluator
	now       func() time.Time

	turnMu sync.Mutex

	mu        sync.RWMutex
	st        *state.State
	startedAt time.Time
	endedAt   time.Time
	exited    bool
	saved     bool
	reason    string
	feedback  []string
}

// TurnResult is what one step produced.
type TurnResult struct {
	// Messages are the messages surfaced during the turn, in order.
	Messages []state.Message
	// State is the run state after the turn.
	State *state.State
	// Exited reports whether the run has ended.
	Exited     bool
	ExitReason string
}

// New creates a run over a compiled graph. The state lifecycle moves to
// ENTER unless it is already terminal.
func New(g *simulation.Graph, opts ...Option) (*Run, error) {
	if g == nil {
		return nil, errors.New("graph is nil")
	}
	o := newOptions(opts)
	r := &Run{
		id:       o.id,
		game:     o.game,
		source:   o.source,
		playerID: o.playerID,
		pc:       o.pc,
		npc:      o.npc,
		graph:    g,
		rc:       o.rc,
		cfg:      o.cfg,
		store:    o.store,
		eval:     o.eval,
		now:      o.now,
		st:       o.state,
	}
	if r.id == "" {
		r.id = ulid.Make().String()
	}
	if r.game == "" {
		r.game = g.Name()
	}
	if r.source == "" {
		r.source = defaultSource
	}
	if r.rc == nil {
		r.rc = state.DefaultContext()
	}
	if r.eval == nil {
		r.eval = condition.Default()
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.st == nil {
		st, err := state.New(nil)
		if err != nil {
			return nil, err
		}
		r.st = st
	} else {
		r.st = r.st.Clone()
	}
	if r.cfg.BufferSize <= 0 {
		r.cfg.BufferSize = DefaultConfig().BufferSize
	}
	if err := r.validateStoppingConditions(); err != nil {
		return nil, err
	}
	r.startedAt = r.now()
	r.name = o.name
	if r.name == "" {
		r.name = defaultName(r.source, r.game, r.startedAt)
	}
	if !r.st.Lifecycle.Terminal() {
		r.st.Lifecycle = state.LifecycleEnter
	}
	log.Infof("created run %s (%s) for game %s", r.name, r.id, r.game)
	return r, nil
}

func defaultName(source, game string, t time.Time) string {
	name := fmt.Sprintf("%s-%s-%s", source, game, t.Format("20060102-150405"))
	return strings.Trim(nameRe.ReplaceAllString(strings.ToLower(name), "-"), "-")
}

// ID returns the run's sortable unique ID.
func (r *Run) ID() string { return r.id }

// Name returns the run name.
func (r *Run) Name() string { return r.name }

// Game returns the game name.
func (r *Run) Game() string { return r.game }

// State returns a copy of the current state.
func (r *Run) State() *state.State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.st.Clone()
}

// Exited reports whether the run has ended, and why.
func (r *Run) Exited() (bool, string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.exited, r.reason
}

// Step stages input as the user's action and runs one turn.
func (r *Run) Step(ctx context.Context, input string) (*TurnResult, error) {
	return r.step(ctx, &input, nil)
}

// Advance runs one turn with no pending user action.
func (r *Run) Advance(ctx context.Context) (*TurnResult, error) {
	return r.step(ctx, nil, nil)
}

func (r *Run) step(ctx context.Context, input *string, output func(*event.Event)) (*TurnResult, error) {
	events, err := r.Stream(ctx, input)
	if err != nil {
		return nil, err
	}
	res := &TurnResult{}
	for ev := range events {
		if output != nil {
			output(ev)
		}
		if ev.IsFinal() {
			res.State = ev.State
			continue
		}
		if msg := ev.Message(); msg != nil {
			res.Messages = append(res.Messages, *msg)
		}
	}
	res.Exited, res.ExitReason = r.Exited()
	return res, nil
}

// Stream runs one turn and returns its events, ending with exactly one
// final state event. A nil input advances without a user action. Commands
// (a leading "/" or "\") are handled without running the graph, except
// unknown ones, which are staged as ordinary input. The caller must drain
// the channel; turns of the same run never overlap.
func (r *Run) Stream(ctx context.Context, input *string) (<-chan *event.Event, error) {
	r.turnMu.Lock()
	invocationID := uuid.NewString()
	out := make(chan *event.Event, r.cfg.BufferSize)

	local, staged := r.prepare(ctx, invocationID, input)
	if staged == nil {
		go func() {
			defer r.turnMu.Unlock()
			defer close(out)
			for _, ev := range local {
				out <- ev
			}
			out <- event.NewFinalStateEvent(invocationID, r.State())
		}()
		return out, nil
	}

	events, err := r.graph.Stream(ctx, staged, r.rc,
		simulation.WithTimeout(r.cfg.Timeout),
		simulation.WithLongRunning(r.cfg.LongRunning),
		simulation.WithInvocationID(invocationID),
		simulation.WithStreamBufferSize(r.cfg.BufferSize),
	)
	if err != nil {
		r.turnMu.Unlock()
		return nil, err
	}
	go func() {
		defer r.turnMu.Unlock()
		defer close(out)
		var final *state.State
		for ev := range events {
			if ev.IsFinal() {
				final = ev.State
				continue
			}
			out <- ev
		}
		r.commit(ctx, final)
		out <- event.NewFinalStateEvent(invocationID, r.State())
	}()
	return out, nil
}

// prepare checks stopping conditions and commands. It returns the
// messages to surface and, when the graph should run, the staged state.
func (r *Run) prepare(ctx context.Context, invocationID string, input *string) ([]*event.Event, *state.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.exited {
		log.Debugf("run %s has exited; turn skipped", r.name)
		return nil, nil
	}
	if reason, ok := r.stoppingReason(); ok {
		r.exitLocked(ctx, reason)
		return nil, nil
	}

	if input != nil {
		if cmd, ok := builtin.ParseCommand(*input); ok {
			switch strings.ToLower(cmd) {
			case "quit", "stop", "exit":
				r.exitLocked(ctx, ReasonExitCommand)
				return nil, nil
			case "feedback", "fb":
				text := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(*input)[1:], cmd))
				r.feedback = append(r.feedback, text)
				log.Infof("feedback for run %s: %s", r.name, text)
				return []*event.Event{
					event.NewMessageEvent(invocationID, state.TypeInfo, feedbackReceived),
				}, nil
			default:
				log.Warnf("unknown command %q in run %s; treating it as input", cmd, r.name)
			}
		}
	}

	staged := r.st.Clone()
	staged.UserInput = nil
	if input != nil {
		staged.UserInput = state.NewMessage(state.TypeUser, *input)
	}
	return nil, staged
}

// commit replaces the state with a turn's result and applies the
// lifecycle and stopping policy.
func (r *Run) commit(ctx context.Context, final *state.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.exited {
		log.Debugf("run %s exited during the turn; result discarded", r.name)
		return
	}
	if final != nil {
		if len(final.Events) < len(r.st.Events) {
			log.Errorf("run %s: turn result lost events (%d < %d); result discarded",
				r.name, len(final.Events), len(r.st.Events))
		} else {
			r.st = final
		}
	}
	r.st.UserInput = nil
	if r.st.Lifecycle == state.LifecycleEnter || r.st.Lifecycle == state.LifecycleInit {
		r.st.Lifecycle = state.LifecycleUpdate
	}
	if reason, ok := r.stoppingReason(); ok {
		r.exitLocked(ctx, reason)
	}
}

// Exit ends the run and persists it. Only the first call has any effect.
func (r *Run) Exit(ctx context.Context, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exitLocked(ctx, reason)
}

func (r *Run) exitLocked(ctx context.Context, reason string) {
	if r.exited {
		log.Debugf("run %s already exited (%s); ignoring exit: %s", r.name, r.reason, reason)
		return
	}
	r.exited = true
	r.reason = reason
	r.endedAt = r.now()
	if !r.st.Lifecycle.Terminal() {
		r.st.Lifecycle = state.LifecycleExit
	}
	if r.st.ExitReason == "" {
		r.st.ExitReason = reason
	}
	log.Infof("run %s exited: %s", r.name, reason)
	r.persistLocked(ctx)
}

func (r *Run) persistLocked(ctx context.Context) {
	if r.store == nil {
		log.Warnf("run %s has no store; record not saved", r.name)
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.SaveTimeout)
	defer cancel()
	if err := r.store.Save(ctx, r.recordLocked()); err != nil {
		log.Errorf("save run %s: %v", r.name, err)
		return
	}
	r.saved = true
	log.Infof("saved run %s", r.name)
}

// Saved reports whether the exit record was persisted.
func (r *Run) Saved() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.saved
}

// Record returns the run metadata and a copy of its state.
func (r *Run) Record() *runstore.Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.recordLocked()
}

func (r *Run) recordLocked() *runstore.Record {
	secs := runtimeSeconds(r.startedAt, r.end(r.now()))
	return &runstore.Record{
		ID:                 r.id,
		Name:               r.name,
		Game:               r.game,
		Source:             r.source,
		PlayerID:           r.playerID,
		PC:                 r.pc,
		NPC:                r.npc,
		StartedAt:          r.startedAt,
		EndedAt:            r.endedAt,
		ExitReason:         r.reason,
		Turns:              len(r.st.Events),
		RuntimeSeconds:     secs,
		RuntimeString:      formatRuntime(secs),
		StoppingConditions: MergeStoppingConditions(r.cfg.StoppingConditions, nil),
		Feedback:           append([]string(nil), r.feedback...),
		State:              r.st.Clone(),
	}
}

// Close releases the graph when the run created it.
func (r *Run) Close() {
	if r.ownsGraph {
		r.graph.Close()
	}
}
