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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    map[string]any
		wantErr bool
	}{
		{
			name: "bare object",
			text: `{"type": "info", "content": "ok"}`,
			want: map[string]any{"type": "info", "content": "ok"},
		},
		{
			name: "surrounding prose",
			text: "Here you go:\n{\"type\": \"ai\", \"content\": \"Hi\"}\nHope that helps!",
			want: map[string]any{"type": "ai", "content": "Hi"},
		},
		{
			name: "first of two objects",
			text: `{"a": 1} and then {"b": 2}`,
			want: map[string]any{"a": float64(1)},
		},
		{
			name: "braces inside strings",
			text: `{"content": "a } and a { inside"} trailing }`,
			want: map[string]any{"content": "a } and a { inside"},
		},
		{
			name: "nested objects",
			text: "```json\n{\"events\": [{\"type\": \"ai\", \"content\": \"H\"}]}\n```",
			want: map[string]any{"events": []any{map[string]any{"type": "ai", "content": "H"}}},
		},
		{
			name: "escaped quotes",
			text: `{"note": "say \"}\" twice"} {"x": 1}`,
			want: map[string]any{"note": `say "}" twice`},
		},
		{name: "no braces", text: "nothing to see", wantErr: true},
		{name: "not json", text: "{type: info}", wantErr: true},
		{name: "unclosed", text: `{"type": "info"`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.text)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNoJSON)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
