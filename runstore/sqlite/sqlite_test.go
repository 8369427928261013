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

package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3" // Import SQLite driver.
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcs-sim/simengine/runstore"
	"github.com/dcs-sim/simengine/state"
)

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	return db
}

func record(id string, started time.Time) *runstore.Record {
	st, _ := state.New(nil)
	st.Lifecycle = state.LifecycleExit
	return &runstore.Record{
		ID:                 id,
		Name:               "cli-explore",
		Game:               "explore",
		PlayerID:           "p1",
		StartedAt:          started.UTC(),
		StoppingConditions: map[string][]string{"turns": {">500"}},
		State:              st,
	}
}

func TestStore_SaveLoadList(t *testing.T) {
	s, err := New(setupTestDB(t))
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.Save(ctx, record("b", base.Add(time.Minute))))
	require.NoError(t, s.Save(ctx, record("a", base)))

	got, err := s.Load(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "p1", got.PlayerID)
	assert.Equal(t, []string{">500"}, got.StoppingConditions["turns"])
	assert.Equal(t, state.LifecycleExit, got.State.Lifecycle)
	assert.True(t, got.StartedAt.Equal(base))

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].ID)
	assert.Equal(t, "b", all[1].ID)
}

func TestStore_Upsert(t *testing.T) {
	s, err := New(setupTestDB(t))
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	r := record("a", time.Now())
	require.NoError(t, s.Save(ctx, r))
	r.ExitReason = "stopping condition met: turns >500"
	r.EndedAt = time.Now()
	require.NoError(t, s.Save(ctx, r))

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, r.ExitReason, all[0].ExitReason)
}

func TestStore_Errors(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	s, err := New(setupTestDB(t))
	require.NoError(t, err)
	defer s.Close()
	_, err = s.Load(context.Background(), "missing")
	assert.ErrorIs(t, err, runstore.ErrNotFound)
	assert.Error(t, s.Save(context.Background(), nil))
}
