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
	"sort"

	"github.com/dcs-sim/simengine/state"
)

// Characters indexes character records by hid.
type Characters map[string]state.Character

// ParseCharacters decodes a YAML sequence of character records, each with
// a unique "hid".
func ParseCharacters(data []byte) (Characters, error) {
	var records []map[string]any
	if err := decodeYAMLStrict(data, &records); err != nil {
		return nil, fmt.Errorf("parse characters: %w", err)
	}
	out := make(Characters, len(records))
	for i, r := range records {
		c := state.Character(r)
		hid := c.HID()
		if hid == "" {
			return nil, fmt.Errorf("character %d: hid is required", i)
		}
		if _, dup := out[hid]; dup {
			return nil, fmt.Errorf("character %s: duplicate hid", hid)
		}
		out[hid] = c
	}
	return out, nil
}

// LoadCharacters reads a characters file.
func LoadCharacters(path string) (Characters, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read characters: %w", err)
	}
	return ParseCharacters(data)
}

// Get returns the character with hid.
func (c Characters) Get(hid string) (state.Character, error) {
	ch, ok := c[hid]
	if !ok {
		return nil, fmt.Errorf("unknown character %q", hid)
	}
	return ch, nil
}

// HIDs returns every hid in sorted order.
func (c Characters) HIDs() []string {
	out := make([]string, 0, len(c))
	for hid := range c {
		out = append(out, hid)
	}
	sort.Strings(out)
	return out
}
