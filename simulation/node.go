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
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/dcs-sim/simengine/builtin"
	"github.com/dcs-sim/simengine/graph"
	itelemetry "github.com/dcs-sim/simengine/internal/telemetry"
	"github.com/dcs-sim/simengine/log"
	"github.com/dcs-sim/simengine/model"
	"github.com/dcs-sim/simengine/prompt"
	"github.com/dcs-sim/simengine/state"
	"github.com/dcs-sim/simengine/telemetry/trace"
)

// nodeRuntime is what every compiled node shares.
type nodeRuntime struct {
	callbacks *model.ModelCallbacks
	metrics   *instruments
}

// runContext returns the run Context of ctx, or the default context when
// the node runs outside a turn.
func runContext(ctx context.Context) *state.Context {
	if rc, ok := RunContextFrom(ctx); ok {
		return rc
	}
	return state.DefaultContext()
}

// builtinNode wraps a bound builtin as a graph node.
func (rt *nodeRuntime) builtinNode(name string, fn builtin.Func) graph.NodeFunc {
	return func(ctx context.Context, st *state.State) (state.Patch, error) {
		warnLargeState(name, st)
		patch, err := fn(ctx, st, runContext(ctx))
		if err != nil {
			return nil, err
		}
		log.Debugf("node %s returned keys %v", name, sortedKeys(patch))
		return patch, nil
	}
}

// customNode renders tmpl, asks the node's model and returns the JSON
// object of the reply as the patch. A reply with no usable object becomes
// an error-typed simulator_output instead of failing the turn.
func (rt *nodeRuntime) customNode(name, modelName string, tmpl *prompt.Template, cfg model.GenerationConfig) graph.NodeFunc {
	return func(ctx context.Context, st *state.State) (state.Patch, error) {
		rc := runContext(ctx)
		warnLargeState(name, st)
		m, err := rc.Model(modelName)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", name, err)
		}
		system, err := tmpl.Render(state.Vars(st, rc))
		if err != nil {
			return nil, fmt.Errorf("node %s failed to render system_template with current state: %w", name, err)
		}
		text, err := rt.callModel(ctx, name, m, system, cfg)
		if err != nil {
			return nil, err
		}
		obj, err := ExtractJSON(text)
		if err != nil {
			perr := &ParseError{Node: name, Text: text, Err: err}
			log.Warnf("%v", perr)
			return state.Patch{
				state.KeySimulatorOutput: state.NewMessage(state.TypeError, perr.Error()),
			}, nil
		}
		patch := state.Patch(obj)
		for _, k := range patch.UnknownKeys() {
			log.Warnf("node %s returned unknown state key %q, dropping it", name, k)
			delete(patch, k)
		}
		log.Infof("%s response => %v", name, sortedKeys(patch))
		return patch, nil
	}
}

// callModel sends system as a single system message to m.
func (rt *nodeRuntime) callModel(
	ctx context.Context,
	node string,
	m model.Model,
	system string,
	cfg model.GenerationConfig,
) (string, error) {
	if n := len(system); n > LargePromptWarnBytes {
		log.Warnf("prompt size large: %.1f KB in node %s", float64(n)/1024, node)
	}
	log.Debugf("node %s called with:\n%s", node, system)
	req := &model.Request{
		Messages:         []model.Message{model.NewSystemMessage(system)},
		GenerationConfig: cfg,
	}

	ctx, span := trace.Tracer.Start(ctx, itelemetry.SpanNameCallModel)
	defer span.End()
	start := time.Now()
	rsp, err := rt.callbacks.Generate(ctx, m, req)
	elapsed := time.Since(start)

	var text string
	if rsp != nil {
		text = rsp.Text()
	}
	info := m.Info()
	itelemetry.TraceModelCall(span, info.Name, info.Provider, len(system), len(text), err)
	rt.metrics.modelCall(ctx, node, err)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("node %s model invocation failed (rate limit/timeout/permissions?): %w", node, err)
	}
	if elapsed > LongModelWarn {
		log.Warnf("node %s running model %s took %.3fs which is quite long", node, info.Name, elapsed.Seconds())
	} else {
		log.Debugf("node %s running model %s took %.3fs", node, info.Name, elapsed.Seconds())
	}
	return text, nil
}

func warnLargeState(node string, st *state.State) {
	b, err := json.Marshal(st)
	if err != nil {
		log.Debugf("state size check failed in node %s: %v", node, err)
		return
	}
	if len(b) > LargeStateWarnBytes {
		log.Warnf("state size large: %.1f KB in node %s", float64(len(b))/1024, node)
	}
}

func sortedKeys(p state.Patch) []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
