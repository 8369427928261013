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

package simulation

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON returns the first top-level JSON object in text, tolerating
// prose around it. The first balanced {...} span is tried, then the span
// from the first '{' to the last '}'.
func ExtractJSON(text string) (map[string]any, error) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return nil, ErrNoJSON
	}
	var candidates []string
	if end := balancedEnd(text, start); end > start {
		candidates = append(candidates, text[start:end+1])
	}
	if last := strings.LastIndexByte(text, '}'); last > start {
		if greedy := text[start : last+1]; len(candidates) == 0 || greedy != candidates[0] {
			candidates = append(candidates, greedy)
		}
	}
	if len(candidates) == 0 {
		return nil, ErrNoJSON
	}
	var firstErr error
	for _, c := range candidates {
		var out map[string]any
		err := json.Unmarshal([]byte(c), &out)
		if err == nil && out != nil {
			return out, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	if firstErr == nil {
		return nil, ErrNoJSON
	}
	return nil, fmt.Errorf("%w: %v", ErrNoJSON, firstErr)
}

// balancedEnd returns the index of the brace closing the one at start,
// skipping braces inside JSON strings, or -1.
func balancedEnd(text string, start int) int {
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
