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

// Package redis stores run records in Redis as JSON values, indexed by
// start time in a sorted set.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/dcs-sim/simengine/runstore"
)

var _ runstore.Store = (*Store)(nil)

// Store is the redis run store.
type Store struct {
	client    redis.UniversalClient
	ownClient bool
	opts      options
}

// New creates a redis run store. One of WithClient, WithURL or
// WithInstanceName is required.
func New(opts ...Option) (*Store, error) {
	o := options{keyPrefix: defaultKeyPrefix, indexKey: defaultIndexKey}
	for _, opt := range opts {
		opt(&o)
	}
	if o.client != nil {
		return &Store{client: o.client, opts: o}, nil
	}
	var builderOpts []ClientBuilderOpt
	switch {
	case o.url != "":
		builderOpts = []ClientBuilderOpt{WithClientBuilderURL(o.url)}
	case o.instanceName != "":
		var ok bool
		if builderOpts, ok = instance(o.instanceName); !ok {
			return nil, fmt.Errorf("redis instance %s not found", o.instanceName)
		}
	default:
		return nil, errors.New("redis: one of client, url or instance name is required")
	}
	client, err := clientBuilder(builderOpts...)
	if err != nil {
		return nil, fmt.Errorf("create redis client: %w", err)
	}
	return &Store{client: client, ownClient: true, opts: o}, nil
}

func (s *Store) key(id string) string {
	return s.opts.keyPrefix + id
}

// Save writes r and indexes it by start time.
func (s *Store) Save(ctx context.Context, r *runstore.Record) error {
	if r == nil || r.ID == "" {
		return errors.New("redis: record id is required")
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal run record: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(r.ID), data, 0)
		pipe.ZAdd(ctx, s.opts.indexKey, redis.Z{
			Score:  float64(r.StartedAt.UnixMilli()),
			Member: r.ID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("save run record %s: %w", r.ID, err)
	}
	return nil
}

// Load returns the record with the given ID.
func (s *Store) Load(ctx context.Context, id string) (*runstore.Record, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", runstore.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load run record %s: %w", id, err)
	}
	var r runstore.Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("unmarshal run record %s: %w", id, err)
	}
	return &r, nil
}

// List returns every indexed record, oldest first. Index entries whose
// value has disappeared are skipped.
func (s *Store) List(ctx context.Context) ([]*runstore.Record, error) {
	ids, err := s.client.ZRange(ctx, s.opts.indexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list run records: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("list run records: %w", err)
	}
	out := make([]*runstore.Record, 0, len(vals))
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var r runstore.Record
		if err := json.Unmarshal([]byte(str), &r); err != nil {
			return nil, fmt.Errorf("unmarshal run record %s: %w", ids[i], err)
		}
		out = append(out, &r)
	}
	runstore.SortByStart(out)
	return out, nil
}

// Close closes the client if the store created it.
func (s *Store) Close() error {
	if s.ownClient {
		return s.client.Close()
	}
	return nil
}
