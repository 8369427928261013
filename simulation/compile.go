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
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"

	"github.com/hashicorp/go-multierror"
	"github.com/mitchellh/mapstructure"

	"github.com/dcs-sim/simengine/builtin"
	"github.com/dcs-sim/simengine/condition"
	"github.com/dcs-sim/simengine/config"
	"github.com/dcs-sim/simengine/graph"
	"github.com/dcs-sim/simengine/log"
	"github.com/dcs-sim/simengine/model"
	"github.com/dcs-sim/simengine/prompt"
	"github.com/dcs-sim/simengine/state"
)

// outputFormatRe matches the structured output block a custom node's
// system template must carry.
var outputFormatRe = regexp.MustCompile(`(?is)output\s*format\s*:\s*\{.*?\}`)

// Graph is a compiled simulation graph. It is safe to stream turns of
// different runs concurrently; turns of one run must be sequential.
type Graph struct {
	name        string
	description string
	graph       *graph.Graph
	executor    *graph.Executor
	routers     map[string]*Router
	metrics     *instruments
}

// Option configures Compile.
type Option func(*options)

type options struct {
	callbacks    *model.ModelCallbacks
	executorOpts []graph.ExecutorOption
	evaluator    *condition.Evaluator
}

// WithModelCallbacks runs cbs around every model call of the graph.
func WithModelCallbacks(cbs *model.ModelCallbacks) Option {
	return func(o *options) {
		o.callbacks = cbs
	}
}

// WithExecutorOptions passes options to the underlying graph executor.
func WithExecutorOptions(opts ...graph.ExecutorOption) Option {
	return func(o *options) {
		o.executorOpts = append(o.executorOpts, opts...)
	}
}

// WithEvaluator sets the evaluator routers use.
func WithEvaluator(e *condition.Evaluator) Option {
	return func(o *options) {
		o.evaluator = e
	}
}

// Compile validates cfg and builds the executable graph. Every node is
// checked before any error is returned; the result is a *multierror.Error
// of *ConfigError values, one per failure.
func Compile(cfg *config.GraphConfig, opts ...Option) (*Graph, error) {
	if cfg == nil {
		return nil, errors.New("graph config is nil")
	}
	o := &options{evaluator: condition.Default()}
	for _, opt := range opts {
		opt(o)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid graph config: %w", configErrors(err))
	}
	log.Infof("compiling simulation graph %s", cfg.Name)

	defaults, err := state.New(cfg.StateOverrides)
	if err != nil {
		return nil, fmt.Errorf("graph %s: %w", cfg.Name, err)
	}
	vars := state.Vars(defaults, state.DefaultContext())

	rt := &nodeRuntime{callbacks: o.callbacks, metrics: newInstruments()}
	sub, err := newSubgraph(rt)
	if err != nil {
		return nil, fmt.Errorf("build simulation subgraph: %w", err)
	}

	var errs *multierror.Error
	sg := graph.NewStateGraph(cfg.Name).
		AddSubgraphNode(SubgraphNodeName, sub, graph.WithDescription("Validates and applies the user's action."))
	for _, spec := range cfg.Nodes {
		fn, typ, err := rt.compileNode(spec, vars)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		sg.AddNode(spec.Name, fn, graph.WithNodeType(typ), graph.WithDescription(spec.Kind))
	}

	routers := make(map[string]*Router)
	for _, e := range cfg.Edges {
		from := graphNodeID(e.From)
		if !e.To.IsConditional() {
			sg.AddEdge(from, graphNodeID(e.To.Node))
			continue
		}
		r, err := NewRouter(e.From, e.To.Conditional, o.evaluator)
		if err != nil {
			errs = multierror.Append(errs, &ConfigError{Node: e.From, Field: "edges", Err: err})
			continue
		}
		routers[e.From] = r
		sg.AddConditionalEdges(from, r.Route, r.PathMap())
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}

	g, err := sg.Compile()
	if err != nil {
		return nil, fmt.Errorf("compile graph %s: %w", cfg.Name, err)
	}
	exec, err := graph.NewExecutor(g, o.executorOpts...)
	if err != nil {
		return nil, fmt.Errorf("create executor for graph %s: %w", cfg.Name, err)
	}
	log.Debugf("graph %s built:\n%s", cfg.Name, g.DOT())
	return &Graph{
		name:        cfg.Name,
		description: cfg.Description,
		graph:       g,
		executor:    exec,
		routers:     routers,
		metrics:     rt.metrics,
	}, nil
}

// configErrors turns structural validation failures into ConfigErrors.
func configErrors(err error) error {
	var merr *multierror.Error
	if !errors.As(err, &merr) {
		return err
	}
	var out *multierror.Error
	for _, e := range merr.Errors {
		var verr *config.ValidationError
		if errors.As(e, &verr) {
			e = &ConfigError{Node: verr.Node, Field: verr.Field, Err: verr.Err}
		}
		out = multierror.Append(out, e)
	}
	return out
}

// Name returns the graph name.
func (g *Graph) Name() string { return g.name }

// Description returns the graph description.
func (g *Graph) Description() string { return g.description }

// Graph returns the underlying executable graph.
func (g *Graph) Graph() *graph.Graph { return g.graph }

// Router returns the router of the conditional edge leaving node.
func (g *Graph) Router(node string) (*Router, bool) {
	r, ok := g.routers[node]
	return r, ok
}

// DOT renders the compiled graph, subgraph included, as Graphviz DOT.
func (g *Graph) DOT(opts ...graph.VizOption) string {
	return g.graph.DOT(append([]graph.VizOption{graph.WithGraphLabel(g.name)}, opts...)...)
}

// WriteDOT writes DOT output to w.
func (g *Graph) WriteDOT(w io.Writer, opts ...graph.VizOption) error {
	_, err := io.WriteString(w, g.DOT(opts...))
	return err
}

// Close releases the executor's workers.
func (g *Graph) Close() {
	g.executor.Close()
}

// compileNode checks every template of spec against vars and builds its
// node function.
func (rt *nodeRuntime) compileNode(spec config.NodeSpec, vars map[string]any) (graph.NodeFunc, graph.NodeType, error) {
	cerr := func(field string, err error) error {
		return &ConfigError{Node: spec.Name, Field: field, Err: err}
	}
	var errs *multierror.Error
	for _, f := range stringFields(spec) {
		if _, err := renderField(f.value, vars); err != nil {
			errs = multierror.Append(errs, cerr(f.name, err))
		}
	}

	if spec.IsCustom() {
		if !outputFormatRe.MatchString(spec.SystemTemplate) {
			errs = multierror.Append(errs, cerr("system_template", ErrMissingOutputFormat))
		}
		var genCfg model.GenerationConfig
		if err := decodeGenerationConfig(spec.AdditionalKwargs, &genCfg); err != nil {
			errs = multierror.Append(errs, cerr("additional_kwargs", err))
		}
		if err := errs.ErrorOrNil(); err != nil {
			return nil, "", err
		}
		tmpl, err := prompt.Compile(spec.SystemTemplate)
		if err != nil {
			return nil, "", cerr("system_template", err)
		}
		return rt.customNode(spec.Name, spec.Model, tmpl, genCfg), graph.NodeTypeModel, nil
	}

	name, _ := spec.BuiltinName()
	b, ok := builtin.Lookup(name)
	if !ok {
		errs = multierror.Append(errs, cerr("kind", fmt.Errorf("%w %q, known: %v", ErrUnknownBuiltin, name, builtin.Names())))
		return nil, "", errs.ErrorOrNil()
	}
	fn, err := b.Bind(spec.Kwargs)
	if err != nil {
		errs = multierror.Append(errs, cerr("kwargs", err))
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, "", err
	}
	return rt.builtinNode(spec.Name, fn), graph.NodeTypeBuiltin, nil
}

type field struct {
	name  string
	value string
}

// stringFields lists every string of spec, kwargs included, by path.
func stringFields(spec config.NodeSpec) []field {
	fields := []field{
		{"name", spec.Name},
		{"kind", spec.Kind},
		{"provider", spec.Provider},
		{"model", spec.Model},
		{"system_template", spec.SystemTemplate},
	}
	fields = collectStrings(fields, "kwargs", spec.Kwargs)
	return collectStrings(fields, "additional_kwargs", spec.AdditionalKwargs)
}

func collectStrings(out []field, path string, v any) []field {
	switch t := v.(type) {
	case string:
		out = append(out, field{path, t})
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out = collectStrings(out, path+"."+k, t[k])
		}
	case []any:
		for i, item := range t {
			out = collectStrings(out, fmt.Sprintf("%s[%d]", path, i), item)
		}
	}
	return out
}

// renderField compiles and renders s, failing on either.
func renderField(s string, vars map[string]any) (string, error) {
	tmpl, err := prompt.Compile(s)
	if err != nil {
		return "", err
	}
	return tmpl.Render(vars)
}

func decodeGenerationConfig(in map[string]any, out *model.GenerationConfig) error {
	if len(in) == 0 {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "json",
		ErrorUnused:      true,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(in)
}
