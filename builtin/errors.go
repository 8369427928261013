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

package builtin

import "errors"

var (
	// ErrMissingParam is returned when a required parameter is absent.
	ErrMissingParam = errors.New("missing required parameter")
	// ErrUnknownForm is returned by form when the named form is not in state.
	ErrUnknownForm = errors.New("unknown form")
)

// RaisedError is the failure produced by the raise_error builtin. It ends
// the turn.
type RaisedError struct {
	Message string
}

func (e *RaisedError) Error() string {
	return e.Message
}
