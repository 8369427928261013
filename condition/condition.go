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

// Package condition evaluates the small boolean expressions used for edge
// routing. Expressions are CEL with a handful of conveniences: an optional
// {{ }} wrapper, Python-style literals and operators, substring tests with
// in, bare state keys, and the functions len, any, all, min and max.
package condition

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	celenv "github.com/google/cel-go/common/env"
	"github.com/google/cel-go/common/operators"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"

	"github.com/dcs-sim/simengine/log"
	"github.com/dcs-sim/simengine/state"
)

// TurnsVar is the derived variable holding len(events).
const TurnsVar = "turns"

// Evaluator compiles and evaluates expressions. It is safe for concurrent use.
type Evaluator struct {
	env      *cel.Env
	mu       sync.RWMutex
	programs map[string]cel.Program
}

// NewEvaluator builds an Evaluator.
func NewEvaluator() (*Evaluator, error) {
	opts := []cel.EnvOption{
		cel.StdLib(cel.StdLibSubset(celenv.NewLibrarySubset().
			AddExcludedFunctions(celenv.NewFunction(operators.In)))),
		cel.Variable("state", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable(TurnsVar, cel.IntType),
		cel.CrossTypeNumericComparisons(true),
	}
	for _, k := range state.Keys() {
		opts = append(opts, cel.Variable(k, cel.DynType))
	}
	opts = append(opts, functions()...)
	env, err := cel.NewCustomEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("create expression environment: %w", err)
	}
	return &Evaluator{env: env, programs: make(map[string]cel.Program)}, nil
}

var (
	defaultOnce sync.Once
	defaultEval *Evaluator
)

// Default returns the shared Evaluator.
func Default() *Evaluator {
	defaultOnce.Do(func() {
		e, err := NewEvaluator()
		if err != nil {
			panic(err)
		}
		defaultEval = e
	})
	return defaultEval
}

// Check reports whether expr is syntactically valid. Unknown identifiers
// are not an error here; they only fail, as false, at evaluation.
func (e *Evaluator) Check(expr string) error {
	if _, ok := parseReplyContains(expr); ok {
		return nil
	}
	src := Normalize(expr)
	if src == "" {
		return fmt.Errorf("empty expression")
	}
	if _, iss := e.env.Parse(src); iss != nil && iss.Err() != nil {
		return fmt.Errorf("invalid expression %q: %w", expr, iss.Err())
	}
	return nil
}

// Eval evaluates expr against s. Any failure is logged and reported as false.
func (e *Evaluator) Eval(expr string, s *state.State) bool {
	src := Normalize(expr)
	if src == "" {
		return false
	}
	prg, err := e.program(src)
	if err != nil {
		log.Errorf("condition compile error for %q using source %q: %v", expr, src, err)
		return false
	}
	out, _, err := prg.Eval(activation(s))
	if err != nil {
		log.Errorf("condition eval error for %q using source %q: %v", expr, src, err)
		return false
	}
	result := truthy(out)
	log.Debugf("condition %q evaluated to %v", expr, result)
	return result
}

// Predicate is the routing form of Eval: an empty expression always
// matches and reply_contains('text') checks the last event text,
// case-insensitively.
func (e *Evaluator) Predicate(expr string, s *state.State) bool {
	if strings.TrimSpace(expr) == "" {
		return true
	}
	if needle, ok := parseReplyContains(expr); ok {
		last := s.LastEvent()
		if last == nil {
			return false
		}
		return strings.Contains(strings.ToLower(last.Content), strings.ToLower(needle))
	}
	return e.Eval(expr, s)
}

// Compare evaluates a threshold comparison such as ">500" against value.
// The result must be boolean.
func (e *Evaluator) Compare(value float64, cond string) (bool, error) {
	src := strconv.FormatFloat(value, 'f', -1, 64) + " " + Normalize(cond)
	ast, iss := e.env.Compile(src)
	if iss != nil && iss.Err() != nil {
		return false, fmt.Errorf("invalid comparison %q: %w", cond, iss.Err())
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return false, fmt.Errorf("invalid comparison %q: %w", cond, err)
	}
	out, _, err := prg.Eval(map[string]any{})
	if err != nil {
		return false, fmt.Errorf("evaluate comparison %q: %w", cond, err)
	}
	b, ok := out.(types.Bool)
	if !ok {
		return false, fmt.Errorf("comparison %q is not boolean", cond)
	}
	return bool(b), nil
}

func (e *Evaluator) program(src string) (cel.Program, error) {
	e.mu.RLock()
	prg, ok := e.programs[src]
	e.mu.RUnlock()
	if ok {
		return prg, nil
	}
	ast, iss := e.env.Compile(src)
	if iss != nil && iss.Err() != nil {
		return nil, iss.Err()
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.programs[src] = prg
	e.mu.Unlock()
	return prg, nil
}

func activation(s *state.State) map[string]any {
	m := s.Map()
	m[TurnsVar] = len(s.Events)
	vars := make(map[string]any, len(m)+1)
	for k, v := range m {
		vars[k] = v
	}
	vars["state"] = m
	return vars
}

var replyContainsRe = regexp.MustCompile(`^reply_contains\(\s*(?:'([^']*)'|"([^"]*)"|([^)]*))\s*\)$`)

func parseReplyContains(expr string) (string, bool) {
	m := replyContainsRe.FindStringSubmatch(strings.TrimSpace(expr))
	if m == nil {
		return "", false
	}
	return m[1] + m[2] + strings.TrimSpace(m[3]), true
}

var pythonTokens = map[string]string{
	"True":  "true",
	"False": "false",
	"None":  "null",
	"and":   "&&",
	"or":    "||",
	"not":   "!",
}

var identRe = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

// Normalize strips an optional {{ }} wrapper and rewrites Python-style
// literals and boolean operators outside string literals.
func Normalize(expr string) string {
	s := strings.TrimSpace(expr)
	if strings.HasPrefix(s, "{{") && strings.HasSuffix(s, "}}") {
		s = strings.TrimSpace(s[2 : len(s)-2])
	}
	var (
		b     strings.Builder
		quote byte
		start int
	)
	flush := func(end int) {
		seg := s[start:end]
		b.WriteString(identRe.ReplaceAllStringFunc(seg, func(w string) string {
			if r, ok := pythonTokens[w]; ok {
				return r
			}
			return w
		}))
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
				continue
			}
			if c == quote {
				b.WriteString(s[start : i+1])
				start = i + 1
				quote = 0
			}
		case c == '\'' || c == '"':
			flush(i)
			start = i
			quote = c
		}
	}
	if quote != 0 {
		b.WriteString(s[start:])
	} else {
		flush(len(s))
	}
	return strings.TrimSpace(b.String())
}

func truthy(v ref.Val) bool {
	switch t := v.(type) {
	case types.Bool:
		return bool(t)
	case types.Int:
		return t != 0
	case types.Uint:
		return t != 0
	case types.Double:
		return t != 0
	case types.String:
		return t != ""
	case types.Null:
		return false
	case traits.Sizer:
		if n, ok := t.Size().(types.Int); ok {
			return n > 0
		}
	}
	return false
}

func functions() []cel.EnvOption {
	paramA := cel.TypeParamType("A")
	paramB := cel.TypeParamType("B")
	return []cel.EnvOption{
		cel.Function(operators.In,
			cel.Overload("in_list", []*cel.Type{paramA, cel.ListType(paramA)}, cel.BoolType),
			cel.Overload("in_map", []*cel.Type{paramA, cel.MapType(paramA, paramB)}, cel.BoolType),
			cel.Overload("in_string", []*cel.Type{cel.StringType, cel.StringType}, cel.BoolType),
			cel.SingletonBinaryBinding(membership)),
		cel.Function("len",
			cel.Overload("len_dyn", []*cel.Type{cel.DynType}, cel.IntType,
				cel.UnaryBinding(func(v ref.Val) ref.Val {
					if s, ok := v.(traits.Sizer); ok {
						return s.Size()
					}
					return types.NewErr("len() unsupported for %s", v.Type().TypeName())
				}))),
		cel.Function("any",
			cel.Overload("any_list", []*cel.Type{cel.ListType(cel.DynType)}, cel.BoolType,
				cel.UnaryBinding(func(v ref.Val) ref.Val {
					return reduceBool(v, true)
				}))),
		cel.Function("all",
			cel.Overload("all_list", []*cel.Type{cel.ListType(cel.DynType)}, cel.BoolType,
				cel.UnaryBinding(func(v ref.Val) ref.Val {
					return reduceBool(v, false)
				}))),
		cel.Function("min",
			cel.Overload("min_list", []*cel.Type{cel.ListType(cel.DynType)}, cel.DynType,
				cel.UnaryBinding(func(v ref.Val) ref.Val { return extreme(v, -1) })),
			cel.Overload("min_dyn_dyn", []*cel.Type{cel.DynType, cel.DynType}, cel.DynType,
				cel.BinaryBinding(func(a, b ref.Val) ref.Val { return pick(a, b, -1) }))),
		cel.Function("max",
			cel.Overload("max_list", []*cel.Type{cel.ListType(cel.DynType)}, cel.DynType,
				cel.UnaryBinding(func(v ref.Val) ref.Val { return extreme(v, 1) })),
			cel.Overload("max_dyn_dyn", []*cel.Type{cel.DynType, cel.DynType}, cel.DynType,
				cel.BinaryBinding(func(a, b ref.Val) ref.Val { return pick(a, b, 1) }))),
	}
}

// membership implements the in operator. A string on the right is
// searched for a substring; lists and maps use their own membership test.
func membership(lhs, rhs ref.Val) ref.Val {
	if s, ok := rhs.(types.String); ok {
		sub, ok := lhs.(types.String)
		if !ok {
			return types.NewErr("no such overload: %s in string", lhs.Type().TypeName())
		}
		return types.Bool(strings.Contains(string(s), string(sub)))
	}
	if c, ok := rhs.(traits.Container); ok {
		return c.Contains(lhs)
	}
	return types.ValOrErr(rhs, "no such overload")
}

// reduceBool implements any (stopOn true) and all (stopOn false).
func reduceBool(v ref.Val, stopOn bool) ref.Val {
	l, ok := v.(traits.Lister)
	if !ok {
		return types.NewErr("expected a list, got %s", v.Type().TypeName())
	}
	it := l.Iterator()
	for it.HasNext() == types.True {
		if truthy(it.Next()) == stopOn {
			return types.Bool(stopOn)
		}
	}
	return types.Bool(!stopOn)
}

func extreme(v ref.Val, dir int) ref.Val {
	l, ok := v.(traits.Lister)
	if !ok {
		return types.NewErr("expected a list, got %s", v.Type().TypeName())
	}
	it := l.Iterator()
	if it.HasNext() != types.True {
		return types.NewErr("empty list has no extreme value")
	}
	best := it.Next()
	for it.HasNext() == types.True {
		best = pick(best, it.Next(), dir)
		if types.IsError(best) {
			return best
		}
	}
	return best
}

func pick(a, b ref.Val, dir int) ref.Val {
	c, ok := a.(traits.Comparer)
	if !ok {
		return types.NewErr("%s values are not comparable", a.Type().TypeName())
	}
	res := c.Compare(b)
	n, ok := res.(types.Int)
	if !ok {
		return res
	}
	if int(n)*dir < 0 {
		return b
	}
	return a
}
