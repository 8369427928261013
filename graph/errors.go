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

package graph

import (
	"errors"
	"fmt"
)

// Errors.
var (
	ErrMaxSteps     = errors.New("maximum execution steps exceeded")
	ErrNodeNotFound = errors.New("node not found")
	ErrNoPath       = errors.New("conditional edge has no path for result")
)

// ExecutionError reports the node, and the kind of failure, that stopped a run.
type ExecutionError struct {
	Type   string
	NodeID string
	Err    error
}

func (e *ExecutionError) Error() string {
	if e.NodeID == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("node %s: %v", e.NodeID, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// errorType returns the ErrorType constant that best describes err.
func errorType(err error) string {
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		return execErr.Type
	}
	return ErrorTypeGraphExecution
}
