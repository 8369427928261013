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

package model

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelCallbacks_Generate(t *testing.T) {
	canned := textResponse("from callback")
	stop := errors.New("stop")
	m := &chunkModel{chunks: []*Response{textResponse("from model")}}

	tests := []struct {
		name    string
		build   func() *ModelCallbacks
		want    string
		wantErr error
	}{
		{
			name:  "nil callbacks",
			build: func() *ModelCallbacks { return nil },
			want:  "from model",
		},
		{
			name: "before short-circuits",
			build: func() *ModelCallbacks {
				return NewModelCallbacks().RegisterBeforeModel(func(context.Context, *Request) (*Response, error) {
					return canned, nil
				})
			},
			want: "from callback",
		},
		{
			name: "before aborts",
			build: func() *ModelCallbacks {
				return NewModelCallbacks().RegisterBeforeModel(func(context.Context, *Request) (*Response, error) {
					return nil, stop
				})
			},
			wantErr: stop,
		},
		{
			name: "after sees the model response and replaces it",
			build: func() *ModelCallbacks {
				return NewModelCallbacks().RegisterAfterModel(
					func(_ context.Context, _ *Request, rsp *Response, err error) (*Response, error) {
						if err == nil && rsp.Text() == "from model" {
							return canned, nil
						}
						return nil, nil
					})
			},
			want: "from callback",
		},
		{
			name: "after passes through",
			build: func() *ModelCallbacks {
				return NewModelCallbacks().RegisterAfterModel(
					func(context.Context, *Request, *Response, error) (*Response, error) { return nil, nil })
			},
			want: "from model",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &Request{Messages: []Message{NewSystemMessage("hi")}}
			rsp, err := tt.build().Generate(context.Background(), m, req)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, rsp.Text())
		})
	}
}

func TestModelCallbacks_BeforeCanRewriteRequest(t *testing.T) {
	var seen *Request
	cbs := NewModelCallbacks().
		RegisterBeforeModel(func(_ context.Context, req *Request) (*Response, error) {
			req.Messages = append(req.Messages, NewUserMessage("appended"))
			return nil, nil
		}).
		RegisterAfterModel(func(_ context.Context, req *Request, _ *Response, _ error) (*Response, error) {
			seen = req
			return nil, nil
		})
	_, err := cbs.Generate(context.Background(), &chunkModel{chunks: []*Response{textResponse("x")}},
		&Request{Messages: []Message{NewSystemMessage("s")}})
	require.NoError(t, err)
	require.NotNil(t, seen)
	assert.Len(t, seen.Messages, 2)
}
