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
	"strings"
	"time"
)

// Error type constants for ResponseError.Type.
const (
	ErrorTypeAPIError     = "api_error"
	ErrorTypeTimeout      = "timeout"
	ErrorTypeRateLimit    = "rate_limit"
	ErrorTypePermission   = "permission"
	ErrorTypeEmptyMessage = "empty_message"
)

// ObjectTypeChatCompletion is the object type of a complete chat response.
const ObjectTypeChatCompletion = "chat.completion"

// Choice represents a single completion choice.
type Choice struct {
	// Index is the index of the choice in the list of choices.
	Index int `json:"index"`
	// Message is the completed message.
	Message Message `json:"message,omitempty"`
	// FinishReason is the reason the model stopped generating tokens.
	FinishReason *string `json:"finish_reason,omitempty"`
}

// Usage describes token usage of one request.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ResponseError represents an error reported by the provider.
type ResponseError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
}

// Error implements the error interface.
func (e *ResponseError) Error() string {
	if e.Code != "" {
		return e.Type + " (" + e.Code + "): " + e.Message
	}
	return e.Type + ": " + e.Message
}

// Response is the unified response a Model sends back.
type Response struct {
	ID        string         `json:"id"`
	Object    string         `json:"object"`
	Created   int64          `json:"created"`
	Model     string         `json:"model"`
	Choices   []Choice       `json:"choices"`
	Usage     *Usage         `json:"usage,omitempty"`
	Error     *ResponseError `json:"error,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	// Done marks the last response of a request.
	Done bool `json:"done"`
}

// Text concatenates the message content of every choice.
func (rsp *Response) Text() string {
	if rsp == nil {
		return ""
	}
	var b strings.Builder
	for _, c := range rsp.Choices {
		b.WriteString(c.Message.Content)
	}
	return b.String()
}
