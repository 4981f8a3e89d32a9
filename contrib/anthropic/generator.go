// Package anthropic provides a caseflow.Generator backed by the Claude
// messages API.
package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/go-kratos/caseflow"
)

var _ caseflow.Generator = (*Generator)(nil)

const defaultMaxTokens = 1024

// Option is a functional option for configuring the Claude client.
type Option func(*Options)

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(o *Options) {
		o.Temperature = &t
	}
}

// WithMaxTokens caps the reply length. Defaults to 1024.
func WithMaxTokens(n int64) Option {
	return func(o *Options) {
		o.MaxTokens = n
	}
}

// WithRequestOptions sets request options of the underlying SDK client.
func WithRequestOptions(opts ...option.RequestOption) Option {
	return func(o *Options) {
		o.RequestOpts = append(o.RequestOpts, opts...)
	}
}

// Options holds configuration for the Claude client.
type Options struct {
	Temperature *float64
	MaxTokens   int64
	RequestOpts []option.RequestOption
}

// Generator answers prompts with a single Claude message.
type Generator struct {
	model  string
	opts   Options
	client anthropic.Client
}

// NewGenerator creates a new Claude generator.
// Accepts official Anthropic SDK RequestOptions for maximum flexibility:
//   - Direct API: option.WithAPIKey("sk-...")
//   - AWS Bedrock: bedrock.WithLoadDefaultConfig(ctx)
//   - Google Vertex: vertex.WithGoogleAuth(ctx, region, projectID)
func NewGenerator(model string, opts ...Option) *Generator {
	o := Options{MaxTokens: defaultMaxTokens}
	for _, apply := range opts {
		apply(&o)
	}
	return &Generator{
		model:  model,
		opts:   o,
		client: anthropic.NewClient(o.RequestOpts...),
	}
}

// Name returns the model name.
func (g *Generator) Name() string {
	return g.model
}

// Generate sends the prompt and returns the concatenated text blocks.
func (g *Generator) Generate(ctx context.Context, prompt *caseflow.Prompt) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: g.opts.MaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt.User)),
		},
	}
	if prompt.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: prompt.System}}
	}
	if g.opts.Temperature != nil {
		params.Temperature = anthropic.Float(*g.opts.Temperature)
	}
	message, err := g.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic: generating content: %w", err)
	}
	var b strings.Builder
	for _, block := range message.Content {
		switch v := block.AsAny().(type) {
		case anthropic.TextBlock:
			b.WriteString(v.Text)
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", caseflow.ErrEmptyResponse
	}
	return text, nil
}
