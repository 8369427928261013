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

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/dcs-sim/simengine/log"
)

// GamePattern matches game documents below a games directory.
const GamePattern = "**/*.{yml,yaml}"

// GameFile is a discovered game document.
type GameFile struct {
	Name string
	Path string
}

// Discover returns every valid game document under dir, sorted by path.
// Files that fail to parse are logged and skipped.
func Discover(dir string) ([]GameFile, error) {
	matches, err := doublestar.Glob(os.DirFS(dir), GamePattern)
	if err != nil {
		return nil, fmt.Errorf("searching games with pattern '%s': %w", GamePattern, err)
	}
	var games []GameFile
	for _, match := range matches {
		path := filepath.Join(dir, filepath.FromSlash(match))
		g, err := LoadGame(path)
		if err != nil {
			log.Debugf("skipping %s: %v", path, err)
			continue
		}
		games = append(games, GameFile{Name: g.Name, Path: path})
	}
	return games, nil
}

// FindGame resolves ref to a game document. ref may be a path or a game
// name, matched case-insensitively, under dir.
func FindGame(dir, ref string) (*GameConfig, string, error) {
	if info, err := os.Stat(ref); err == nil && !info.IsDir() {
		g, err := LoadGame(ref)
		return g, ref, err
	}
	games, err := Discover(dir)
	if err != nil {
		return nil, "", err
	}
	for _, gf := range games {
		if strings.EqualFold(gf.Name, ref) {
			g, err := LoadGame(gf.Path)
			return g, gf.Path, err
		}
	}
	return nil, "", fmt.Errorf("game %q not found under %s", ref, dir)
}
