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

// Package prompt renders Jinja-style templates against simulation state.
// Templates are used both to build model prompts at run time and to
// validate configuration before a run is created.
package prompt

import (
	"fmt"
	"strings"
	"sync"

	"github.com/flosch/pongo2/v6"
)

func init() {
	// Prompts are plain text, not HTML.
	pongo2.SetAutoescape(false)
}

// Error codes.
var (
	ErrInvalidTemplate = PromptError{Code: "invalid_template", Message: "invalid template format"}
	ErrRenderingError  = PromptError{Code: "rendering_error", Message: "error rendering template"}
)

// PromptError represents errors in the prompt system.
type PromptError struct {
	Code    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e PromptError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// WithCause returns a copy of e wrapping cause.
func (e PromptError) WithCause(cause error) PromptError {
	e.Cause = cause
	return e
}

// Is matches errors by code so errors.Is(err, ErrInvalidTemplate) works
// regardless of cause.
func (e PromptError) Is(target error) bool {
	t, ok := target.(PromptError)
	return ok && t.Code == e.Code
}

// Unwrap returns the cause.
func (e PromptError) Unwrap() error {
	return e.Cause
}

// Template is a compiled template.
type Template struct {
	// Content is the raw template source.
	Content string

	tpl *pongo2.Template
}

// Compile parses content into a Template.
func Compile(content string) (*Template, error) {
	tpl, err := pongo2.FromString(content)
	if err != nil {
		return nil, ErrInvalidTemplate.WithCause(err)
	}
	return &Template{Content: content, tpl: tpl}, nil
}

// Render executes t with vars.
func (t *Template) Render(vars map[string]any) (string, error) {
	out, err := t.tpl.Execute(pongo2.Context(vars))
	if err != nil {
		return "", ErrRenderingError.WithCause(err)
	}
	return out, nil
}

// IsTemplate reports whether s contains template syntax.
func IsTemplate(s string) bool {
	return strings.Contains(s, "{{") || strings.Contains(s, "{%")
}

// Renderer compiles and caches templates by content.
type Renderer struct {
	cache sync.Map // content -> *Template
}

// NewRenderer creates a Renderer.
func NewRenderer() *Renderer {
	return &Renderer{}
}

// Default is the shared renderer.
var Default = NewRenderer()

// Template returns the compiled template for content.
func (r *Renderer) Template(content string) (*Template, error) {
	if t, ok := r.cache.Load(content); ok {
		return t.(*Template), nil
	}
	t, err := Compile(content)
	if err != nil {
		return nil, err
	}
	actual, _ := r.cache.LoadOrStore(content, t)
	return actual.(*Template), nil
}

// Render renders content with vars. Strings without template syntax are
// returned unchanged.
func (r *Renderer) Render(content string, vars map[string]any) (string, error) {
	if !IsTemplate(content) {
		return content, nil
	}
	t, err := r.Template(content)
	if err != nil {
		return "", err
	}
	return t.Render(vars)
}

// RenderAny renders every string found in v, recursing into maps and
// slices. Other values are returned as is.
func (r *Renderer) RenderAny(v any, vars map[string]any) (any, error) {
	switch t := v.(type) {
	case string:
		return r.Render(t, vars)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			rendered, err := r.RenderAny(item, vars)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = rendered
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			rendered, err := r.RenderAny(item, vars)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = rendered
		}
		return out, nil
	default:
		return v, nil
	}
}

// Render renders content with the default renderer.
func Render(content string, vars map[string]any) (string, error) {
	return Default.Render(content, vars)
}

// RenderAny renders v with the default renderer.
func RenderAny(v any, vars map[string]any) (any, error) {
	return Default.RenderAny(v, vars)
}
