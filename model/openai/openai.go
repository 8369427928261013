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

// Package openai provides an OpenAI-compatible model, used for both the
// OpenAI API and OpenRouter.
package openai

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	openai "github.com/openai/openai-go"
	openaiopt "github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/dcs-sim/simengine/log"
	"github.com/dcs-sim/simengine/model"
)

const (
	// defaultChannelBufferSize is the default channel buffer size.
	defaultChannelBufferSize = 16

	// ProviderOpenAI talks to api.openai.com or any compatible endpoint.
	ProviderOpenAI = "openai"
	// ProviderOpenRouter talks to openrouter.ai.
	ProviderOpenRouter = "openrouter"

	// OpenRouterBaseURL is the OpenAI-compatible OpenRouter endpoint.
	OpenRouterBaseURL = "https://openrouter.ai/api/v1"
	// OpenRouterAPIKeyEnv holds the OpenRouter API key.
	OpenRouterAPIKeyEnv = "OPENROUTER_API_KEY"
)

// Model implements model.Model on top of the chat completions API.
type Model struct {
	client            openai.Client
	name              string
	provider          string
	channelBufferSize int
	extraFields       map[string]any
	generationConfig  model.GenerationConfig
}

type options struct {
	// API key for the OpenAI client.
	APIKey string
	// Base URL for the OpenAI client. It is optional for OpenAI-compatible APIs.
	BaseURL string
	// Buffer size for response channels.
	ChannelBufferSize int
	// HTTPClient overrides the default http client.
	HTTPClient *http.Client
	// MaxRetries is forwarded to the SDK; negative keeps the SDK default.
	MaxRetries int
	// Extra fields to be added to the HTTP request body.
	ExtraFields map[string]any
	// GenerationConfig is applied when a request does not set its own.
	GenerationConfig model.GenerationConfig
	provider         string
}

// Option configures a Model.
type Option func(*options)

// WithAPIKey sets the API key for the OpenAI client.
func WithAPIKey(key string) Option {
	return func(opts *options) {
		opts.APIKey = key
	}
}

// WithBaseURL sets the base URL for the OpenAI client.
func WithBaseURL(url string) Option {
	return func(opts *options) {
		opts.BaseURL = url
	}
}

// WithChannelBufferSize sets the channel buffer size for the OpenAI client.
func WithChannelBufferSize(size int) Option {
	return func(opts *options) {
		if size <= 0 {
			size = defaultChannelBufferSize
		}
		opts.ChannelBufferSize = size
	}
}

// WithHTTPClient sets the http client used by the SDK.
func WithHTTPClient(c *http.Client) Option {
	return func(opts *options) {
		opts.HTTPClient = c
	}
}

// WithMaxRetries sets how many times the SDK retries a failed request.
func WithMaxRetries(n int) Option {
	return func(opts *options) {
		opts.MaxRetries = n
	}
}

// WithExtraFields sets extra fields to be added to the HTTP request body.
// These fields will be included in every chat completion request.
func WithExtraFields(extraFields map[string]any) Option {
	return func(opts *options) {
		if opts.ExtraFields == nil {
			opts.ExtraFields = make(map[string]any)
		}
		for k, v := range extraFields {
			opts.ExtraFields[k] = v
		}
	}
}

// WithGenerationConfig sets defaults for requests without their own settings.
func WithGenerationConfig(cfg model.GenerationConfig) Option {
	return func(opts *options) {
		opts.GenerationConfig = cfg
	}
}

// New creates a new OpenAI-compatible model.
func New(name string, opts ...Option) *Model {
	o := &options{
		ChannelBufferSize: defaultChannelBufferSize,
		MaxRetries:        -1,
		provider:          ProviderOpenAI,
	}
	for _, opt := range opts {
		opt(o)
	}
	var clientOpts []openaiopt.RequestOption
	if o.APIKey != "" {
		clientOpts = append(clientOpts, openaiopt.WithAPIKey(o.APIKey))
	}
	if o.BaseURL != "" {
		clientOpts = append(clientOpts, openaiopt.WithBaseURL(o.BaseURL))
	}
	if o.HTTPClient != nil {
		clientOpts = append(clientOpts, openaiopt.WithHTTPClient(o.HTTPClient))
	}
	if o.MaxRetries >= 0 {
		clientOpts = append(clientOpts, openaiopt.WithMaxRetries(o.MaxRetries))
	}
	return &Model{
		client:            openai.NewClient(clientOpts...),
		name:              name,
		provider:          o.provider,
		channelBufferSize: o.ChannelBufferSize,
		extraFields:       o.ExtraFields,
		generationConfig:  o.GenerationConfig,
	}
}

// NewOpenRouter creates a model served by OpenRouter. The API key defaults
// to the OPENROUTER_API_KEY environment variable.
func NewOpenRouter(name string, opts ...Option) *Model {
	base := []Option{
		WithBaseURL(OpenRouterBaseURL),
		WithAPIKey(os.Getenv(OpenRouterAPIKeyEnv)),
		func(o *options) { o.provider = ProviderOpenRouter },
	}
	return New(name, append(base, opts...)...)
}

// Info implements the model.Model interface.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:     m.name,
		Provider: m.provider,
	}
}

// GenerateContent implements the model.Model interface.
func (m *Model) GenerateContent(
	ctx context.Context,
	request *model.Request,
) (<-chan *model.Response, error) {
	if request == nil {
		return nil, errors.New("request cannot be nil")
	}

	responseChan := make(chan *model.Response, m.channelBufferSize)

	chatRequest := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(m.name),
		Messages: convertMessages(request.Messages),
	}
	cfg := request.GenerationConfig
	if cfg.MaxTokens == nil {
		cfg.MaxTokens = m.generationConfig.MaxTokens
	}
	if cfg.Temperature == nil {
		cfg.Temperature = m.generationConfig.Temperature
	}
	if cfg.TopP == nil {
		cfg.TopP = m.generationConfig.TopP
	}
	if len(cfg.Stop) == 0 {
		cfg.Stop = m.generationConfig.Stop
	}
	if cfg.MaxTokens != nil {
		chatRequest.MaxCompletionTokens = openai.Int(int64(*cfg.MaxTokens))
	}
	if cfg.Temperature != nil {
		chatRequest.Temperature = openai.Float(*cfg.Temperature)
	}
	if cfg.TopP != nil {
		chatRequest.TopP = openai.Float(*cfg.TopP)
	}
	if len(cfg.Stop) > 0 {
		chatRequest.Stop = openai.ChatCompletionNewParamsStopUnion{
			OfString: openai.String(cfg.Stop[0]),
		}
	}

	var opts []openaiopt.RequestOption
	for key, value := range m.extraFields {
		opts = append(opts, openaiopt.WithJSONSet(key, value))
	}

	go func() {
		defer close(responseChan)
		m.handleNonStreamingResponse(ctx, chatRequest, responseChan, opts...)
	}()

	return responseChan, nil
}

// convertMessages converts our Message format to OpenAI's format.
func convertMessages(messages []model.Message) []openai.ChatCompletionMessageParamUnion {
	result := make([]openai.ChatCompletionMessageParamUnion, len(messages))
	for i, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			result[i] = openai.SystemMessage(msg.Content)
		case model.RoleAssistant:
			result[i] = openai.AssistantMessage(msg.Content)
		default:
			result[i] = openai.UserMessage(msg.Content)
		}
	}
	return result
}

func (m *Model) handleNonStreamingResponse(
	ctx context.Context,
	chatRequest openai.ChatCompletionNewParams,
	responseChan chan<- *model.Response,
	opts ...openaiopt.RequestOption,
) {
	chatCompletion, err := m.client.Chat.Completions.New(ctx, chatRequest, opts...)
	if err != nil {
		log.Debugf("chat completion with %s failed: %v", m.name, err)
		errorResponse := &model.Response{
			Error:     classifyError(ctx, err),
			Timestamp: time.Now(),
			Done:      true,
		}
		select {
		case responseChan <- errorResponse:
		case <-ctx.Done():
		}
		return
	}

	response := &model.Response{
		ID:        chatCompletion.ID,
		Object:    string(chatCompletion.Object),
		Created:   chatCompletion.Created,
		Model:     chatCompletion.Model,
		Timestamp: time.Now(),
		Done:      true,
	}
	if len(chatCompletion.Choices) > 0 {
		response.Choices = make([]model.Choice, len(chatCompletion.Choices))
		for i, choice := range chatCompletion.Choices {
			response.Choices[i] = model.Choice{
				Index:   int(choice.Index),
				Message: model.NewAssistantMessage(choice.Message.Content),
			}
			if choice.FinishReason != "" {
				finishReason := choice.FinishReason
				response.Choices[i].FinishReason = &finishReason
			}
		}
	} else {
		response.Error = &model.ResponseError{
			Type:    model.ErrorTypeEmptyMessage,
			Message: "completion returned no choices",
		}
	}
	if chatCompletion.Usage.PromptTokens > 0 || chatCompletion.Usage.CompletionTokens > 0 {
		response.Usage = &model.Usage{
			PromptTokens:     int(chatCompletion.Usage.PromptTokens),
			CompletionTokens: int(chatCompletion.Usage.CompletionTokens),
			TotalTokens:      int(chatCompletion.Usage.TotalTokens),
		}
	}

	select {
	case responseChan <- response:
	case <-ctx.Done():
	}
}

// classifyError maps SDK failures onto model error types.
func classifyError(ctx context.Context, err error) *model.ResponseError {
	rspErr := &model.ResponseError{Message: err.Error(), Type: model.ErrorTypeAPIError}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		rspErr.Type = model.ErrorTypeTimeout
		return rspErr
	}
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return rspErr
	}
	rspErr.Code = apiErr.Code
	switch apiErr.StatusCode {
	case http.StatusTooManyRequests:
		rspErr.Type = model.ErrorTypeRateLimit
	case http.StatusUnauthorized, http.StatusForbidden:
		rspErr.Type = model.ErrorTypePermission
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		rspErr.Type = model.ErrorTypeTimeout
	}
	return rspErr
}
