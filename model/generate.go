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
	"fmt"
)

// ErrNoResponse is returned when a model closes its channel without
// producing any response.
var ErrNoResponse = errors.New("model returned no response")

// Generate sends req to m and drains the response channel. The returned
// response carries the concatenated text of every chunk. Provider errors
// reported through Response.Error are returned as *ResponseError.
func Generate(ctx context.Context, m Model, req *Request) (*Response, error) {
	ch, err := m.GenerateContent(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("generate content with %s: %w", m.Info().Name, err)
	}
	var (
		last    *Response
		content string
	)
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case rsp, ok := <-ch:
			if !ok {
				if last == nil {
					return nil, ErrNoResponse
				}
				last.Choices = []Choice{{Message: NewAssistantMessage(content)}}
				return last, nil
			}
			if rsp == nil {
				continue
			}
			if rsp.Error != nil {
				return nil, rsp.Error
			}
			content += rsp.Text()
			last = rsp
		}
	}
}
