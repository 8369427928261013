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

package main

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3" // Import SQLite driver.

	"github.com/dcs-sim/simengine/model"
	"github.com/dcs-sim/simengine/model/openai"
	"github.com/dcs-sim/simengine/runner"
	"github.com/dcs-sim/simengine/runstore"
	"github.com/dcs-sim/simengine/runstore/file"
	"github.com/dcs-sim/simengine/runstore/redis"
	"github.com/dcs-sim/simengine/runstore/sqlite"
)

// Store kinds accepted by --store.
const (
	storeFile   = "file"
	storeRedis  = "redis"
	storeSQLite = "sqlite"
	storeNone   = "none"
)

// newModel is the factory used by play.
var newModel runner.ModelFactory = modelFactory

// modelFactory builds OpenAI-compatible clients. Other providers are
// rejected.
func modelFactory(provider, name string) (model.Model, error) {
	switch provider {
	case openai.ProviderOpenRouter:
		if os.Getenv(openai.OpenRouterAPIKeyEnv) == "" {
			return nil, fmt.Errorf("%s is not set", openai.OpenRouterAPIKeyEnv)
		}
		return openai.NewOpenRouter(name), nil
	case openai.ProviderOpenAI:
		return openai.New(name), nil
	default:
		return nil, fmt.Errorf("provider not implemented: %s", provider)
	}
}

// openStore opens the run store named by kind. The returned close func is
// never nil.
func openStore(kind, path, redisURL string) (runstore.Store, func() error, error) {
	noop := func() error { return nil }
	switch kind {
	case storeFile:
		s, err := file.New(path)
		if err != nil {
			return nil, noop, err
		}
		return s, noop, nil
	case storeRedis:
		s, err := redis.New(redis.WithURL(redisURL))
		if err != nil {
			return nil, noop, err
		}
		return s, s.Close, nil
	case storeSQLite:
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, noop, fmt.Errorf("create sqlite directory: %w", err)
		}
		db, err := sql.Open("sqlite3", path)
		if err != nil {
			return nil, noop, fmt.Errorf("open sqlite database: %w", err)
		}
		s, err := sqlite.New(db)
		if err != nil {
			db.Close()
			return nil, noop, err
		}
		return s, s.Close, nil
	case storeNone, "":
		return nil, noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown store %q (use file, redis, sqlite or none)", kind)
	}
}
