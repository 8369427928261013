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

	"github.com/dcs-sim/simengine/condition"
	"github.com/dcs-sim/simengine/config"
	"github.com/dcs-sim/simengine/graph"
	"github.com/dcs-sim/simengine/log"
	"github.com/dcs-sim/simengine/state"
)

// Route labels that do not come from a clause.
const (
	elseLabel = "else"
	endLabel  = config.EndNode
)

// Router picks the destination of a conditional edge. Clauses are tried
// in declaration order: the first if-clause whose expression holds wins,
// an else clause always matches when reached, and when nothing matches the
// turn ends.
type Router struct {
	from    string
	clauses []config.Clause
	labels  []string
	eval    *condition.Evaluator
}

// NewRouter builds a Router over clauses. Every if expression must parse.
func NewRouter(from string, clauses []config.Clause, eval *condition.Evaluator) (*Router, error) {
	if eval == nil {
		eval = condition.Default()
	}
	r := &Router{from: from, clauses: clauses, eval: eval}
	used := map[string]bool{endLabel: true}
	for i, c := range clauses {
		label := elseLabel
		if !c.IsElse() {
			if err := eval.Check(c.If); err != nil {
				return nil, fmt.Errorf("clause %d: %w", i, err)
			}
			label = c.If
		}
		if used[label] {
			label = fmt.Sprintf("%s#%d", label, i)
		}
		used[label] = true
		r.labels = append(r.labels, label)
	}
	return r, nil
}

// PathMap maps every label Route can return to its graph node.
func (r *Router) PathMap() map[string]string {
	m := make(map[string]string, len(r.clauses)+1)
	for i, c := range r.clauses {
		m[r.labels[i]] = graphNodeID(c.Target())
	}
	m[endLabel] = graph.End
	return m
}

// Route returns the label of the chosen clause.
func (r *Router) Route(_ context.Context, st *state.State) (string, error) {
	for i, c := range r.clauses {
		if c.IsElse() || r.eval.Predicate(c.If, st) {
			log.Debugf("router from %s chose %s", r.from, c.Target())
			return r.labels[i], nil
		}
	}
	log.Debugf("router from %s matched no clause, ending turn", r.from)
	return endLabel, nil
}

// Target returns the configured node name Route would choose for st.
func (r *Router) Target(st *state.State) string {
	label, _ := r.Route(context.Background(), st)
	for i, l := range r.labels {
		if l == label {
			return r.clauses[i].Target()
		}
	}
	return config.EndNode
}

// graphNodeID maps configuration node names to graph node IDs.
func graphNodeID(name string) string {
	switch name {
	case config.StartNode:
		return graph.Start
	case config.EndNode:
		return graph.End
	}
	return name
}
