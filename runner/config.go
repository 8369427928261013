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
	"slices"
	"time"

	"github.com/dcs-sim/simengine/simulation"
)

const (
	// AttrTurns is the number of recorded events.
	AttrTurns = "turns"
	// AttrRuntimeSeconds is the whole seconds since the run started.
	AttrRuntimeSeconds = "runtime_seconds"
	// AttrRuntimeString is the run time formatted as HH:MM:SS.
	AttrRuntimeString = "runtime_string"
	AttrExitReason    = "exit_reason"
	AttrLifecycle     = "lifecycle"
	AttrName          = "name"
	AttrGame          = "game"
	AttrSource        = "source"
	AttrPlayerID      = "player_id"
)

// Config defines configuration options for a run.
type Config struct {
	// Timeout bounds a single turn. Zero disables it.
	Timeout time.Duration `json:"timeout"`

	// LongRunning is the turn duration above which a warning is logged.
	LongRunning time.Duration `json:"long_running"`

	// BufferSize is the size of turn event channels.
	BufferSize int `json:"buffer_size"`

	// SaveTimeout bounds the persistence call made on exit.
	SaveTimeout time.Duration `json:"save_timeout"`

	// StoppingConditions maps a run attribute to comparison strings.
	StoppingConditions map[string][]string `json:"stopping_conditions"`
}

// DefaultStoppingConditions returns a fresh copy of the default policy:
// stop after 500 turns or an hour.
func DefaultStoppingConditions() map[string][]string {
	return map[string][]string{
		AttrTurns:          {">500"},
		AttrRuntimeSeconds: {">3600"},
	}
}

// DefaultConfig returns a default run configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:            2 * time.Minute,
		LongRunning:        simulation.LongTurnWarn,
		BufferSize:         16,
		SaveTimeout:        10 * time.Second,
		StoppingConditions: DefaultStoppingConditions(),
	}
}

// WithTimeout sets the per-turn timeout.
func (c Config) WithTimeout(timeout time.Duration) Config {
	c.Timeout = timeout
	return c
}

// WithLongRunning sets the long turn warning threshold.
func (c Config) WithLongRunning(d time.Duration) Config {
	c.LongRunning = d
	return c
}

// WithBufferSize sets the buffer size for event channels.
func (c Config) WithBufferSize(size int) Config {
	c.BufferSize = size
	return c
}

// WithSaveTimeout sets the persistence timeout.
func (c Config) WithSaveTimeout(d time.Duration) Config {
	c.SaveTimeout = d
	return c
}

// WithStoppingConditions merges conds into the configured conditions.
func (c Config) WithStoppingConditions(conds map[string][]string) Config {
	c.StoppingConditions = MergeStoppingConditions(c.StoppingConditions, conds)
	return c
}

// MergeStoppingConditions returns a new map holding every condition of a
// followed by those of b that a does not already have.
func MergeStoppingConditions(a, b map[string][]string) map[string][]string {
	out := make(map[string][]string, len(a)+len(b))
	for _, m := range []map[string][]string{a, b} {
		for attr, conds := range m {
			for _, cond := range conds {
				if !slices.Contains(out[attr], cond) {
					out[attr] = append(out[attr], cond)
				}
			}
		}
	}
	return out
}
