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

package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcs-sim/simengine/runstore"
	"github.com/dcs-sim/simengine/state"
)

func record(id, name string, started time.Time) *runstore.Record {
	st, _ := state.New(nil)
	return &runstore.Record{
		ID:        id,
		Name:      name,
		Game:      "explore",
		StartedAt: started.UTC(),
		State:     st,
	}
}

func TestStore_SaveLoadList(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)
	ctx := context.Background()

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.Save(ctx, record("01B", "CLI Explore", base.Add(time.Second))))
	require.NoError(t, s.Save(ctx, record("01A", "CLI Explore", base)))

	// Same name, different runs: two files.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.FileExists(t, filepath.Join(dir, "cli-explore_01A.json"))

	got, err := s.Load(ctx, "01B")
	require.NoError(t, err)
	assert.Equal(t, "CLI Explore", got.Name)
	assert.Equal(t, state.LifecycleInit, got.State.Lifecycle)

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "01A", all[0].ID)
}

func TestStore_SaveReplaces(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, WithIndent(false))
	require.NoError(t, err)
	ctx := context.Background()

	r := record("01A", "first", time.Now())
	require.NoError(t, s.Save(ctx, r))
	r.Name = "renamed"
	r.ExitReason = "done"
	require.NoError(t, s.Save(ctx, r))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "renamed_01A.json", entries[0].Name())

	got, err := s.Load(ctx, "01A")
	require.NoError(t, err)
	assert.Equal(t, "done", got.ExitReason)
}

func TestStore_Errors(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)

	s, err := New(t.TempDir())
	require.NoError(t, err)
	_, err = s.Load(context.Background(), "missing")
	assert.ErrorIs(t, err, runstore.ErrNotFound)
	assert.Error(t, s.Save(context.Background(), &runstore.Record{}))

	require.NoError(t, os.WriteFile(filepath.Join(s.dir, "bad_x.json"), []byte("{"), 0o644))
	_, err = s.List(context.Background())
	assert.ErrorContains(t, err, "decode run record bad_x.json")
}
