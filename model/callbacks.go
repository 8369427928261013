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

package model

import (
	"context"
)

// BeforeModelCallback runs before a model call and may rewrite the request.
// A non-nil response short-circuits the call; a non-nil error aborts it.
type BeforeModelCallback func(ctx context.Context, req *Request) (*Response, error)

// AfterModelCallback runs after a model call. A non-nil response replaces
// the model's; a non-nil error replaces the outcome.
type AfterModelCallback func(ctx context.Context, req *Request, rsp *Response, modelErr error) (*Response, error)

// ModelCallbacks holds hooks run around every model call a node makes.
type ModelCallbacks struct {
	BeforeModel []BeforeModelCallback
	AfterModel  []AfterModelCallback
}

// NewModelCallbacks creates an empty ModelCallbacks.
func NewModelCallbacks() *ModelCallbacks {
	return &ModelCallbacks{}
}

// RegisterBeforeModel registers a before-model callback.
func (c *ModelCallbacks) RegisterBeforeModel(cb BeforeModelCallback) *ModelCallbacks {
	c.BeforeModel = append(c.BeforeModel, cb)
	return c
}

// RegisterAfterModel registers an after-model callback.
func (c *ModelCallbacks) RegisterAfterModel(cb AfterModelCallback) *ModelCallbacks {
	c.AfterModel = append(c.AfterModel, cb)
	return c
}

// Generate calls Generate(ctx, m, req) with the callbacks around it. A nil
// receiver behaves like an empty set of callbacks.
func (c *ModelCallbacks) Generate(ctx context.Context, m Model, req *Request) (*Response, error) {
	if c != nil {
		for _, cb := range c.BeforeModel {
			rsp, err := cb(ctx, req)
			if err != nil {
				return nil, err
			}
			if rsp != nil {
				return rsp, nil
			}
		}
	}
	rsp, modelErr := Generate(ctx, m, req)
	if c == nil {
		return rsp, modelErr
	}
	for _, cb := range c.AfterModel {
		override, err := cb(ctx, req, rsp, modelErr)
		if err != nil {
			return nil, err
		}
		if override != nil {
			return override, nil
		}
	}
	return rsp, modelErr
}
