// Package openai provides a caseflow.Generator backed by the OpenAI chat
// completions API or any compatible endpoint.
package openai

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-kratos/caseflow"
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/packages/param"
)

var _ caseflow.Generator = (*Generator)(nil)

// Option configures the Generator.
type Option func(*Options)

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(o *Options) {
		o.Temperature = &t
	}
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int64) Option {
	return func(o *Options) {
		o.MaxTokens = n
	}
}

// WithRequestOptions sets request options such as the API key or base URL.
func WithRequestOptions(opts ...option.RequestOption) Option {
	return func(o *Options) {
		o.RequestOpts = append(o.RequestOpts, opts...)
	}
}

// Options holds configuration for the Generator.
type Options struct {
	Temperature *float64
	MaxTokens   int64
	RequestOpts []option.RequestOption
}

// Generator answers prompts with a single chat completion.
type Generator struct {
	model  string
	opts   Options
	client openai.Client
}

// NewGenerator constructs an OpenAI generator. The API key is read from
// the OPENAI_API_KEY environment variable and OPENAI_BASE_URL, when set,
// overrides the API base URL.
func NewGenerator(model string, opts ...Option) *Generator {
	o := Options{}
	for _, opt := range opts {
		opt(&o)
	}
	return &Generator{
		model:  model,
		opts:   o,
		client: openai.NewClient(o.RequestOpts...),
	}
}

// Name returns the model name.
func (g *Generator) Name() string {
	return g.model
}

// Generate executes a non-streaming chat completion request.
func (g *Generator) Generate(ctx context.Context, prompt *caseflow.Prompt) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:    g.model,
		Messages: make([]openai.ChatCompletionMessageParamUnion, 0, 2),
	}
	if g.opts.Temperature != nil {
		params.Temperature = param.NewOpt(*g.opts.Temperature)
	}
	if g.opts.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(g.opts.MaxTokens)
	}
	if prompt.System != "" {
		params.Messages = append(params.Messages, openai.SystemMessage(prompt.System))
	}
	params.Messages = append(params.Messages, openai.UserMessage(prompt.User))
	resp, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", caseflow.ErrEmptyResponse
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", caseflow.ErrEmptyResponse
	}
	return text, nil
}
