package caseflow

import "context"

// Prompt is a single request to a text-generation collaborator.
type Prompt struct {
	System string
	User   string
}

// Generator is the text-generation collaborator consumed by stage handlers.
// Implementations must be safe for concurrent use; latency is unbounded.
type Generator interface {
	Name() string
	Generate(ctx context.Context, prompt *Prompt) (string, error)
}

// Middleware wraps a Generator and returns a new Generator with additional behavior.
// It is applied in a chain (outermost first) using ChainMiddlewares.
type Middleware func(Generator) Generator

// ChainMiddlewares composes middlewares into one, applying them in order.
// The first middleware becomes the outermost wrapper.
func ChainMiddlewares(mws ...Middleware) Middleware {
	return func(next Generator) Generator {
		h := next
		for i := len(mws) - 1; i >= 0; i-- { // apply in reverse to make mws[0] outermost
			h = mws[i](h)
		}
		return h
	}
}

// HandleFunc is a helper to easily create a Generator from a function.
// It is especially useful for testing, lightweight adapters, or wrapping logic with middleware.
type HandleFunc struct {
	ModelName string
	Handle    func(context.Context, *Prompt) (string, error)
}

// Name returns the name of the generator.
func (f *HandleFunc) Name() string {
	if f.ModelName == "" {
		return "func"
	}
	return f.ModelName
}

// Generate calls Handle.
func (f *HandleFunc) Generate(ctx context.Context, prompt *Prompt) (string, error) {
	return f.Handle(ctx, prompt)
}
