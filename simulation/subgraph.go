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
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/dcs-sim/simengine/graph"
	"github.com/dcs-sim/simengine/log"
	"github.com/dcs-sim/simengine/model"
	"github.com/dcs-sim/simengine/prompt"
	"github.com/dcs-sim/simengine/state"
)

var (
	validatorTemplate = mustCompile(ValidatorTemplate)
	updaterTemplate   = mustCompile(UpdaterTemplate)

	validatorSchema = jsonschema.MustCompileString("validator_response.json", `{
		"type": "object",
		"required": ["type", "content"],
		"properties": {
			"type": {"enum": ["info", "error"]},
			"content": {"type": "string"}
		}
	}`)
	updaterSchema = jsonschema.MustCompileString("updater_response.json", `{
		"type": "object",
		"required": ["type", "content"],
		"properties": {
			"type": {"type": "string", "minLength": 1},
			"content": {"type": "string"}
		}
	}`)
)

func mustCompile(content string) *prompt.Template {
	t, err := prompt.Compile(content)
	if err != nil {
		panic(fmt.Sprintf("compile builtin template: %v", err))
	}
	return t
}

// newSubgraph builds the validate/update/finalize graph. The validator
// and updater share the first superstep; the finalizer runs once both
// are done.
func newSubgraph(rt *nodeRuntime) (*graph.Graph, error) {
	return graph.NewStateGraph(SubgraphNodeName).
		AddNode(ValidatorName, rt.validate,
			graph.WithNodeType(graph.NodeTypeModel),
			graph.WithDescription("Decides whether the user's action is valid.")).
		AddNode(UpdaterName, rt.update,
			graph.WithNodeType(graph.NodeTypeModel),
			graph.WithDescription("Narrates the next observable step.")).
		AddNode(FinalizerName, finalize,
			graph.WithDescription("Commits the turn when the action was valid.")).
		SetEntryPoint(ValidatorName).
		SetEntryPoint(UpdaterName).
		AddEdge(ValidatorName, FinalizerName).
		AddEdge(UpdaterName, FinalizerName).
		SetFinishPoint(FinalizerName).
		Compile()
}

// validate sets validator_response. Missing or blank input passes without
// a model call and overlong input fails without one.
func (rt *nodeRuntime) validate(ctx context.Context, st *state.State) (state.Patch, error) {
	var verdict *state.Message
	switch {
	case st.UserInput == nil:
		log.Warnf("%s called with no user_input in state", ValidatorName)
		verdict = state.NewMessage(state.TypeInfo, msgNoInput)
	case strings.TrimSpace(st.UserInput.Content) == "":
		verdict = state.NewMessage(state.TypeInfo, msgEmptyInput)
	case utf8.RuneCountInString(st.UserInput.Content) > MaxUserInputLength:
		verdict = state.NewMessage(state.TypeError, fmt.Sprintf(msgInputTooLong, MaxUserInputLength))
	default:
		msg, err := rt.askWorker(ctx, ValidatorName, validatorTemplate, validatorSchema, st, nil)
		if err != nil {
			return nil, err
		}
		if msg == nil {
			return state.Patch{}, nil
		}
		verdict = msg
	}
	log.Infof("%s response => %s: %s", strings.ToUpper(ValidatorName), verdict.Type, verdict.Content)
	return state.Patch{state.KeyValidatorResponse: verdict}, nil
}

// update sets updater_response. It runs whatever the validator decides;
// the finalizer discards its work on rejection.
func (rt *nodeRuntime) update(ctx context.Context, st *state.State) (state.Patch, error) {
	var content string
	if st.UserInput != nil {
		content = st.UserInput.Content
	}
	msg, err := rt.askWorker(ctx, UpdaterName, updaterTemplate, updaterSchema, st,
		map[string]any{"user_input_content": content})
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return state.Patch{}, nil
	}
	log.Infof("%s response => %s: %s", strings.ToUpper(UpdaterName), msg.Type, msg.Content)
	return state.Patch{state.KeyUpdaterResponse: msg}, nil
}

// askWorker renders tmpl, calls the model registered under name and
// checks the reply against schema. A reply that does not parse or match
// is logged and yields a nil message, which the finalizer reports.
func (rt *nodeRuntime) askWorker(
	ctx context.Context,
	name string,
	tmpl *prompt.Template,
	schema *jsonschema.Schema,
	st *state.State,
	extra map[string]any,
) (*state.Message, error) {
	rc := runContext(ctx)
	warnLargeState(name, st)
	m, err := rc.Model(name)
	if err != nil {
		return nil, fmt.Errorf("node %s: %w", name, err)
	}
	system, err := tmpl.Render(state.Vars(st, rc, extra))
	if err != nil {
		return nil, fmt.Errorf("node %s failed to render system_template with current state: %w", name, err)
	}
	text, err := rt.callModel(ctx, name, m, system, model.GenerationConfig{})
	if err != nil {
		return nil, err
	}
	obj, err := ExtractJSON(text)
	if err == nil {
		err = schema.Validate(obj)
	}
	if err != nil {
		log.Warnf("%v", &ParseError{Node: name, Text: text, Err: err})
		return nil, nil
	}
	return &state.Message{Type: obj["type"].(string), Content: obj["content"].(string)}, nil
}

// finalize commits the user's action and the updater's narration to
// events when the validator accepted the action. It is the only node of
// the subgraph that touches events.
func finalize(_ context.Context, st *state.State) (state.Patch, error) {
	var patch state.Patch
	switch v, u := st.ValidatorResponse, st.UpdaterResponse; {
	case v == nil:
		patch = state.Patch{state.KeySimulatorOutput: state.NewMessage(state.TypeError, msgValidationMissing)}
	case v.Type == state.TypeError:
		patch = state.Patch{state.KeySimulatorOutput: state.NewMessage(v.Type, v.Content)}
	case u != nil:
		var committed []state.Message
		if in := st.UserInput; in != nil && strings.TrimSpace(in.Content) != "" {
			committed = append(committed, state.Message{Type: state.TypeUser, Content: in.Content})
		}
		committed = append(committed, state.Message{Type: state.TypeAI, Content: u.Content})
		patch = state.Patch{
			state.KeyEvents:          committed,
			state.KeySimulatorOutput: state.NewMessage(u.Type, u.Content),
		}
	default:
		log.Warnf("%s: validation passed but no updater_response present in state", FinalizerName)
		patch = state.Patch{state.KeySimulatorOutput: state.NewMessage(state.TypeError, msgNoUpdate)}
	}
	log.Infof("%s response => %v", strings.ToUpper(FinalizerName), sortedKeys(patch))
	return patch, nil
}
