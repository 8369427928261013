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

// Package sqlite stores run records in a SQLite "runs" table.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dcs-sim/simengine/runstore"
)

const (
	sqliteCreateRuns = "CREATE TABLE IF NOT EXISTS runs (" +
		"id TEXT PRIMARY KEY, " +
		"name TEXT NOT NULL, " +
		"game TEXT NOT NULL, " +
		"player_id TEXT, " +
		"exit_reason TEXT, " +
		"started_at INTEGER NOT NULL, " +
		"ended_at INTEGER, " +
		"record_json BLOB NOT NULL" +
		")"

	sqliteCreateStartedIndex = "CREATE INDEX IF NOT EXISTS runs_started_at ON runs(started_at)"

	sqliteUpsertRun = "INSERT INTO runs (id, name, game, player_id, exit_reason, started_at, ended_at, record_json) " +
		"VALUES (?, ?, ?, ?, ?, ?, ?, ?) " +
		"ON CONFLICT(id) DO UPDATE SET name = excluded.name, game = excluded.game, " +
		"player_id = excluded.player_id, exit_reason = excluded.exit_reason, " +
		"started_at = excluded.started_at, ended_at = excluded.ended_at, record_json = excluded.record_json"

	sqliteSelectRun = "SELECT record_json FROM runs WHERE id = ?"

	sqliteSelectRuns = "SELECT record_json FROM runs ORDER BY started_at ASC, id ASC"
)

var _ runstore.Store = (*Store)(nil)

// Store is a SQLite-backed run store. It expects an initialized *sql.DB
// using a SQLite driver and creates its schema on construction.
type Store struct {
	db *sql.DB
}

// New creates a store on db.
func New(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if _, err := db.Exec(sqliteCreateRuns); err != nil {
		return nil, fmt.Errorf("create runs table: %w", err)
	}
	if _, err := db.Exec(sqliteCreateStartedIndex); err != nil {
		return nil, fmt.Errorf("create runs index: %w", err)
	}
	return &Store{db: db}, nil
}

// Save upserts r.
func (s *Store) Save(ctx context.Context, r *runstore.Record) error {
	if r == nil || r.ID == "" {
		return errors.New("sqlite: record id is required")
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal run record: %w", err)
	}
	var ended sql.NullInt64
	if !r.EndedAt.IsZero() {
		ended = sql.NullInt64{Int64: r.EndedAt.UnixNano(), Valid: true}
	}
	_, err = s.db.ExecContext(ctx, sqliteUpsertRun,
		r.ID, r.Name, r.Game, r.PlayerID, r.ExitReason,
		r.StartedAt.UnixNano(), ended, data)
	if err != nil {
		return fmt.Errorf("save run record %s: %w", r.ID, err)
	}
	return nil
}

// Load returns the record with the given ID.
func (s *Store) Load(ctx context.Context, id string) (*runstore.Record, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, sqliteSelectRun, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", runstore.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load run record %s: %w", id, err)
	}
	return decode(data)
}

// List returns every record, oldest first.
func (s *Store) List(ctx context.Context) ([]*runstore.Record, error) {
	rows, err := s.db.QueryContext(ctx, sqliteSelectRuns)
	if err != nil {
		return nil, fmt.Errorf("list run records: %w", err)
	}
	defer rows.Close()
	var out []*runstore.Record
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan run record: %w", err)
		}
		r, err := decode(data)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func decode(data []byte) (*runstore.Record, error) {
	var r runstore.Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode run record: %w", err)
	}
	return &r, nil
}
