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

// Package config loads game, graph and character definitions from YAML.
// Decoding is strict: unknown keys are errors.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

// Reserved node names in graph configuration.
const (
	StartNode = "__START__"
	EndNode   = "__END__"
	// SubgraphNode is the built-in validate/update subgraph every graph carries.
	SubgraphNode = "__SIMULATION_SUBGRAPH__"
)

// Node kinds.
const (
	KindCustom    = "custom"
	BuiltinPrefix = "builtin."
)

// NodeSpec describes one node of a simulation graph.
type NodeSpec struct {
	Name string `yaml:"name" json:"name"`
	// Kind is "custom" or "builtin.<name>".
	Kind string `yaml:"kind" json:"kind"`

	// Kwargs are the parameters of a builtin.
	Kwargs map[string]any `yaml:"kwargs,omitempty" json:"kwargs,omitempty"`

	// Custom node fields.
	Provider         string         `yaml:"provider,omitempty" json:"provider,omitempty"`
	Model            string         `yaml:"model,omitempty" json:"model,omitempty"`
	SystemTemplate   string         `yaml:"system_template,omitempty" json:"system_template,omitempty"`
	AdditionalKwargs map[string]any `yaml:"additional_kwargs,omitempty" json:"additional_kwargs,omitempty"`
}

// BuiltinName returns the builtin a node runs, if it is a builtin node.
func (n NodeSpec) BuiltinName() (string, bool) {
	if !strings.HasPrefix(n.Kind, BuiltinPrefix) {
		return "", false
	}
	return strings.TrimPrefix(n.Kind, BuiltinPrefix), true
}

// IsCustom reports whether n is a model-backed node.
func (n NodeSpec) IsCustom() bool {
	return n.Kind == KindCustom
}

// Clause is one branch of a conditional edge: either If/Then or Else.
type Clause struct {
	If   string `yaml:"if,omitempty" json:"if,omitempty"`
	Then string `yaml:"then,omitempty" json:"then,omitempty"`
	Else string `yaml:"else,omitempty" json:"else,omitempty"`
}

// IsElse reports whether c is an else clause.
func (c Clause) IsElse() bool {
	return c.Else != ""
}

// Target returns the node the clause routes to.
func (c Clause) Target() string {
	if c.IsElse() {
		return c.Else
	}
	return c.Then
}

func (c Clause) validate() error {
	switch {
	case c.IsElse() && (c.If != "" || c.Then != ""):
		return errors.New("else clause cannot have if or then")
	case !c.IsElse() && (c.If == "" || c.Then == ""):
		return errors.New("clause needs both if and then, or else")
	}
	return nil
}

// Target is the destination of an edge: a node name or an ordered list of
// conditional clauses.
type Target struct {
	Node        string
	Conditional []Clause
}

// IsConditional reports whether t routes through clauses.
func (t Target) IsConditional() bool {
	return len(t.Conditional) > 0
}

// UnmarshalYAML accepts either a scalar node name or {conditional: [...]}.
func (t *Target) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		return value.Decode(&t.Node)
	case yaml.MappingNode:
		for i := 0; i < len(value.Content); i += 2 {
			if key := value.Content[i].Value; key != "conditional" {
				return fmt.Errorf("line %d: unknown edge target key %q", value.Content[i].Line, key)
			}
		}
		var body struct {
			Conditional []Clause `yaml:"conditional"`
		}
		if err := value.Decode(&body); err != nil {
			return err
		}
		if len(body.Conditional) == 0 {
			return fmt.Errorf("line %d: conditional target has no clauses", value.Line)
		}
		t.Conditional = body.Conditional
		return nil
	default:
		return fmt.Errorf("line %d: edge target must be a node name or a conditional", value.Line)
	}
}

// MarshalYAML mirrors UnmarshalYAML.
func (t Target) MarshalYAML() (any, error) {
	if t.IsConditional() {
		return map[string][]Clause{"conditional": t.Conditional}, nil
	}
	return t.Node, nil
}

// EdgeSpec connects a node to a target.
type EdgeSpec struct {
	From string `yaml:"from" json:"from"`
	To   Target `yaml:"to" json:"to"`
}

// GraphConfig is the declarative description of a simulation graph.
type GraphConfig struct {
	Name           string         `yaml:"name,omitempty" json:"name,omitempty"`
	Description    string         `yaml:"description,omitempty" json:"description,omitempty"`
	StateOverrides map[string]any `yaml:"state_overrides,omitempty" json:"state_overrides,omitempty"`
	Nodes          []NodeSpec     `yaml:"nodes" json:"nodes"`
	Edges          []EdgeSpec     `yaml:"edges" json:"edges"`
}

// Node returns the node named name.
func (g *GraphConfig) Node(name string) (NodeSpec, bool) {
	for _, n := range g.Nodes {
		if n.Name == name {
			return n, true
		}
	}
	return NodeSpec{}, false
}

// NodeNames lists node names in declaration order.
func (g *GraphConfig) NodeNames() []string {
	names := make([]string, len(g.Nodes))
	for i, n := range g.Nodes {
		names[i] = n.Name
	}
	return names
}

// ApplyDefaults fills the name and description when they are empty.
func (g *GraphConfig) ApplyDefaults() {
	if g.Name == "" {
		g.Name = "graph-config"
	}
	if g.Description == "" {
		g.Description = fmt.Sprintf("A simulation graph with %d nodes and %d edges.", len(g.Nodes), len(g.Edges))
	}
}

// ValidationError is a structural failure of one node or edge. For an
// edge, Node is the edge's source.
type ValidationError struct {
	Node  string
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("node %q: %s: %v", e.Node, e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Validate checks the structure of the graph. Template, expression and
// builtin parameter checks happen when the graph is compiled. The error is
// a *multierror.Error of *ValidationError values.
func (g *GraphConfig) Validate() error {
	var errs *multierror.Error
	fail := func(node, field string, err error) {
		errs = multierror.Append(errs, &ValidationError{Node: node, Field: field, Err: err})
	}
	names := map[string]bool{}
	for i, n := range g.Nodes {
		switch {
		case n.Name == "":
			fail(fmt.Sprintf("nodes[%d]", i), "name", errors.New("name is required"))
			continue
		case n.Name == StartNode || n.Name == EndNode || n.Name == SubgraphNode:
			fail(n.Name, "name", errors.New("name is reserved"))
		case names[n.Name]:
			fail(n.Name, "name", errors.New("duplicate name"))
		}
		names[n.Name] = true
		if err := n.validate(); err != nil {
			fail(n.Name, "kind", err)
		}
	}
	known := func(name string) bool {
		return names[name] || name == StartNode || name == EndNode || name == SubgraphNode
	}
	routed := map[string]int{}
	for i, e := range g.Edges {
		field := fmt.Sprintf("edges[%d]", i)
		if e.From == "" || !known(e.From) || e.From == EndNode {
			fail(e.From, field, fmt.Errorf("invalid source %q", e.From))
		}
		if !e.To.IsConditional() {
			if e.To.Node == "" || !known(e.To.Node) || e.To.Node == StartNode {
				fail(e.From, field, fmt.Errorf("invalid target %q", e.To.Node))
			}
			continue
		}
		if prev, ok := routed[e.From]; ok {
			fail(e.From, field, fmt.Errorf("duplicate conditional edge, already routed by edges[%d]", prev))
		} else {
			routed[e.From] = i
		}
		for j, c := range e.To.Conditional {
			clause := fmt.Sprintf("%s.conditional[%d]", field, j)
			if err := c.validate(); err != nil {
				fail(e.From, clause, err)
				continue
			}
			if t := c.Target(); !known(t) || t == StartNode {
				fail(e.From, clause, fmt.Errorf("invalid target %q", t))
			}
		}
	}
	return errs.ErrorOrNil()
}

func (n NodeSpec) validate() error {
	if n.IsCustom() {
		var missing []string
		if n.Provider == "" {
			missing = append(missing, "provider")
		}
		if n.Model == "" {
			missing = append(missing, "model")
		}
		if n.SystemTemplate == "" {
			missing = append(missing, "system_template")
		}
		if len(missing) > 0 {
			return fmt.Errorf("custom node missing: %s", strings.Join(missing, ", "))
		}
		if len(n.Kwargs) > 0 {
			return errors.New("custom node must not define kwargs")
		}
		return nil
	}
	if name, ok := n.BuiltinName(); ok && name != "" {
		return nil
	}
	return fmt.Errorf("unsupported kind %q: use %q or %q", n.Kind, KindCustom, BuiltinPrefix+"<name>")
}

// ParseGraph decodes a graph document.
func ParseGraph(data []byte) (*GraphConfig, error) {
	var g GraphConfig
	if err := decodeYAMLStrict(data, &g); err != nil {
		return nil, fmt.Errorf("parse graph config: %w", err)
	}
	g.ApplyDefaults()
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid graph config: %w", err)
	}
	return &g, nil
}

// LoadGraph reads and decodes a graph document.
func LoadGraph(path string) (*GraphConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read graph config: %w", err)
	}
	return ParseGraph(data)
}

func decodeYAMLStrict(b []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return err
	}
	var trailing any
	if err := dec.Decode(&trailing); err != io.EOF {
		if err == nil {
			return errors.New("yaml: multiple documents are not allowed")
		}
		return err
	}
	return nil
}
