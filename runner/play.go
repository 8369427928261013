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

package runner

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dcs-sim/simengine/event"
	"github.com/dcs-sim/simengine/state"
)

// InputProvider returns the user's next input. io.EOF ends the run as
// interrupted.
type InputProvider func(ctx context.Context) (string, error)

// Play runs turns until the run exits. When there are no events yet, or
// the last one is the user's, the graph is advanced without input;
// otherwise input is read from next. Every turn event is passed to output
// when it is not nil.
func (r *Run) Play(ctx context.Context, next InputProvider, output func(*event.Event)) error {
	if next == nil {
		return errors.New("input provider is nil")
	}
	// stalled is set when advancing produced no new event, so the next
	// iteration asks for input instead of advancing forever.
	stalled := false
	for {
		if exited, _ := r.Exited(); exited {
			return nil
		}
		if ctx.Err() != nil {
			r.Exit(ctx, ReasonInterrupted)
			return nil
		}

		before := r.State()
		last := before.LastEvent()
		var input *string
		if stalled || (last != nil && last.Type != state.TypeUser) {
			text, err := next(ctx)
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
				r.Exit(ctx, ReasonInterrupted)
				return nil
			}
			if err != nil {
				r.Exit(ctx, ReasonInterrupted)
				return fmt.Errorf("read input: %w", err)
			}
			input = &text
		}

		res, err := r.step(ctx, input, output)
		if err != nil {
			return err
		}
		stalled = input == nil && res.State != nil && len(res.State.Events) == len(before.Events)
	}
}
