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

// Package runstore defines the persistence collaborator invoked when a
// simulation run exits, and the record it receives.
package runstore

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/dcs-sim/simengine/state"
)

// ErrNotFound is returned by Load when no record has the requested ID.
var ErrNotFound = errors.New("run record not found")

// Record is the serializable snapshot of a finished run.
type Record struct {
	ID                 string              `json:"id"`
	Name               string              `json:"name"`
	Game               string              `json:"game"`
	Source             string              `json:"source"`
	PlayerID           string              `json:"player_id,omitempty"`
	PC                 string              `json:"pc,omitempty"`
	NPC                string              `json:"npc,omitempty"`
	StartedAt          time.Time           `json:"started_at"`
	EndedAt            time.Time           `json:"ended_at"`
	ExitReason         string              `json:"exit_reason"`
	Turns              int                 `json:"turns"`
	RuntimeSeconds     int                 `json:"runtime_seconds"`
	RuntimeString      string              `json:"runtime_string"`
	StoppingConditions map[string][]string `json:"stopping_conditions,omitempty"`
	Feedback           []string            `json:"feedback,omitempty"`
	State              *state.State        `json:"state"`
}

// Store persists run records.
type Store interface {
	// Save writes r, replacing any record with the same ID.
	Save(ctx context.Context, r *Record) error
	// Load returns the record with the given ID or ErrNotFound.
	Load(ctx context.Context, id string) (*Record, error)
	// List returns every record, oldest start time first.
	List(ctx context.Context) ([]*Record, error)
}

// SortByStart orders records by start time, then ID.
func SortByStart(rs []*Record) {
	sort.SliceStable(rs, func(i, j int) bool {
		if !rs[i].StartedAt.Equal(rs[j].StartedAt) {
			return rs[i].StartedAt.Before(rs[j].StartedAt)
		}
		return rs[i].ID < rs[j].ID
	})
}
