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

import (
	"context"
	"fmt"
	"strings"

	"github.com/dcs-sim/simengine/log"
	"github.com/dcs-sim/simengine/prompt"
	"github.com/dcs-sim/simengine/state"
)

// ExitReasonRetryBudget is recorded when the user runs out of retries.
const ExitReasonRetryBudget = "user retry budget exhausted"

// DefaultRetryMessage is used when retry has no retry_message.
const DefaultRetryMessage = "Please revise your action. Use /help if you need a rules refresher. " +
	"Previous action: {{ user_input.content }} " +
	"Invalid reason: {{ validator_response.content }} " +
	"{{ remaining }} retries left."

// RetryParams configures retry.
type RetryParams struct {
	RetryMessage string `json:"retry_message"`
}

func (p *RetryParams) validate() error {
	if p.RetryMessage == "" {
		p.RetryMessage = DefaultRetryMessage
	}
	return nil
}

func retry(_ context.Context, s *state.State, c *state.Context, p *RetryParams) (state.Patch, error) {
	remaining := s.UserRetryBudget - 1
	if remaining < 0 {
		remaining = 0
	}
	guidance, err := prompt.Render(p.RetryMessage, state.Vars(s, c, map[string]any{"remaining": remaining}))
	if err != nil {
		return nil, err
	}
	log.Debugf("retry: %d retries remaining", remaining)
	patch := state.Patch{
		state.KeyUserRetryBudget: remaining,
		state.KeySimulatorOutput: state.NewMessage(state.TypeInfo, guidance),
	}
	if remaining == 0 {
		patch[state.KeyLifecycle] = string(state.LifecycleExit)
		patch[state.KeyExitReason] = ExitReasonRetryBudget
	}
	return patch, nil
}

// FormParams configures form.
type FormParams struct {
	FormName string `json:"form_name"`
}

func (p *FormParams) validate() error {
	if p.FormName == "" {
		return fmt.Errorf("%w: form_name", ErrMissingParam)
	}
	return nil
}

// form records the pending user input as the answer to the first
// unanswered question and asks the next one. When every question has an
// answer the run exits.
func form(_ context.Context, s *state.State, c *state.Context, p *FormParams) (state.Patch, error) {
	current, ok := s.Forms[p.FormName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownForm, p.FormName)
	}
	f := current.Clone()
	patch := state.Patch{}

	idx := firstUnanswered(f, 0)
	if idx >= 0 && s.UserInput != nil && s.UserInput.Type == state.TypeUser {
		if answer := strings.TrimSpace(s.UserInput.Content); answer != "" {
			f.Questions[idx].Answer = answer
			patch[state.KeyUserInput] = nil
			idx = firstUnanswered(f, idx+1)
		}
	}
	patch[state.KeyForms] = map[string]state.Form{p.FormName: f}

	if idx < 0 {
		patch[state.KeyLifecycle] = string(state.LifecycleExit)
		return patch, nil
	}
	question, err := prompt.Render(f.Questions[idx].Text, state.Vars(s, c))
	if err != nil {
		return nil, fmt.Errorf("form %s question %d: %w", p.FormName, idx, err)
	}
	patch[state.KeySimulatorOutput] = state.NewMessage(state.TypeInfo, question)
	return patch, nil
}

func firstUnanswered(f state.Form, start int) int {
	for i := start; i < len(f.Questions); i++ {
		if f.Questions[i].Answer == "" {
			return i
		}
	}
	return -1
}
