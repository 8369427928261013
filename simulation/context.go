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

	"github.com/dcs-sim/simengine/state"
)

type runContextKey struct{}

// NewRunContext returns a copy of ctx carrying the run Context nodes read
// their characters and models from.
func NewRunContext(ctx context.Context, rc *state.Context) context.Context {
	return context.WithValue(ctx, runContextKey{}, rc)
}

// RunContextFrom returns the run Context carried by ctx.
func RunContextFrom(ctx context.Context) (*state.Context, bool) {
	rc, ok := ctx.Value(runContextKey{}).(*state.Context)
	return rc, ok && rc != nil
}
