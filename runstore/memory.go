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

package runstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

var _ Store = (*Memory)(nil)

// Memory is an in-process Store. Records are copied on the way in and out.
type Memory struct {
	mu      sync.RWMutex
	records map[string][]byte
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{records: make(map[string][]byte)}
}

// Save implements Store.
func (m *Memory) Save(_ context.Context, r *Record) error {
	if r == nil || r.ID == "" {
		return errors.New("memory store: record id is required")
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal run record: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[r.ID] = data
	return nil
}

// Load implements Store.
func (m *Memory) Load(_ context.Context, id string) (*Record, error) {
	m.mu.RLock()
	data, ok := m.records[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return decode(data)
}

// List implements Store.
func (m *Memory) List(_ context.Context) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Record, 0, len(m.records))
	for _, data := range m.records {
		r, err := decode(data)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	SortByStart(out)
	return out, nil
}

func decode(data []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode run record: %w", err)
	}
	return &r, nil
}
