// Package gemini provides a caseflow.Generator backed by the Gemini API.
package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-kratos/caseflow"
	"google.golang.org/genai"
)

var _ caseflow.Generator = (*Generator)(nil)

// Config holds configuration for the Gemini model.
type Config struct {
	APIKey          string
	BaseURL         string
	Temperature     *float32
	MaxOutputTokens int32
}

// Generator provides a caseflow.Generator over the Gemini API.
type Generator struct {
	model  string
	config Config
	client *genai.Client
}

// NewGenerator creates a new Gemini generator.
func NewGenerator(ctx context.Context, model string, config Config) (*Generator, error) {
	cc := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: config.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	return &Generator{
		model:  model,
		config: config,
		client: client,
	}, nil
}

// Name returns the name of the model.
func (g *Generator) Name() string {
	return g.model
}

// Generate asks the model for a single reply.
func (g *Generator) Generate(ctx context.Context, prompt *caseflow.Prompt) (string, error) {
	config := &genai.GenerateContentConfig{
		Temperature: g.config.Temperature,
	}
	if g.config.MaxOutputTokens > 0 {
		config.MaxOutputTokens = g.config.MaxOutputTokens
	}
	if prompt.System != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: prompt.System}}}
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt.User), config)
	if err != nil {
		return "", fmt.Errorf("gemini: generate content: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", caseflow.ErrEmptyResponse
	}
	return text, nil
}
