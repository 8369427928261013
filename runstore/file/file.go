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

// Package file stores run records as one JSON document per run.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/dcs-sim/simengine/runstore"
)

var _ runstore.Store = (*Store)(nil)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9.-]+`)

// Store writes records under a directory. Files are named
// <run name>_<run id>.json, so two runs never share a file.
type Store struct {
	dir    string
	indent bool
}

// Option configures a Store.
type Option func(*Store)

// WithIndent pretty-prints saved documents.
func WithIndent(indent bool) Option {
	return func(s *Store) {
		s.indent = indent
	}
}

// New creates a store rooted at dir, creating it when missing.
func New(dir string, opts ...Option) (*Store, error) {
	if dir == "" {
		return nil, errors.New("file store: directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create run directory: %w", err)
	}
	s := &Store{dir: dir, indent: true}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func fileName(r *runstore.Record) string {
	name := unsafeChars.ReplaceAllString(strings.ToLower(r.Name), "-")
	if name == "" {
		name = "run"
	}
	return name + "_" + unsafeChars.ReplaceAllString(r.ID, "-") + ".json"
}

// Save writes r atomically, replacing an earlier save of the same run.
func (s *Store) Save(_ context.Context, r *runstore.Record) error {
	if r == nil || r.ID == "" {
		return errors.New("file store: record id is required")
	}
	var (
		data []byte
		err  error
	)
	if s.indent {
		data, err = json.MarshalIndent(r, "", "  ")
	} else {
		data, err = json.Marshal(r)
	}
	if err != nil {
		return fmt.Errorf("marshal run record: %w", err)
	}
	prev, err := s.find(r.ID)
	if err != nil && !errors.Is(err, runstore.ErrNotFound) {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, ".run-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write run record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write run record: %w", err)
	}
	dst := filepath.Join(s.dir, fileName(r))
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("save run record %s: %w", r.ID, err)
	}
	if prev != "" && prev != dst {
		_ = os.Remove(prev)
	}
	return nil
}

// find returns the path of the record with the given ID.
func (s *Store) find(id string) (string, error) {
	pattern := "*_" + unsafeChars.ReplaceAllString(id, "-") + ".json"
	matches, err := doublestar.Glob(os.DirFS(s.dir), pattern)
	if err != nil {
		return "", fmt.Errorf("find run record %s: %w", id, err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("%w: %s", runstore.ErrNotFound, id)
	}
	return filepath.Join(s.dir, matches[0]), nil
}

// Load returns the record with the given ID.
func (s *Store) Load(_ context.Context, id string) (*runstore.Record, error) {
	path, err := s.find(id)
	if err != nil {
		return nil, err
	}
	return readRecord(path)
}

// List returns every record in the directory, oldest first.
func (s *Store) List(_ context.Context) ([]*runstore.Record, error) {
	matches, err := doublestar.Glob(os.DirFS(s.dir), "*.json")
	if err != nil {
		return nil, fmt.Errorf("list run records: %w", err)
	}
	out := make([]*runstore.Record, 0, len(matches))
	for _, m := range matches {
		r, err := readRecord(filepath.Join(s.dir, m))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	runstore.SortByStart(out)
	return out, nil
}

func readRecord(path string) (*runstore.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read run record: %w", err)
	}
	var r runstore.Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode run record %s: %w", filepath.Base(path), err)
	}
	return &r, nil
}
