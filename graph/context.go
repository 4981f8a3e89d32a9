package graph

import "context"

type ctxStageKey struct{}

// StageContext describes the stage a handler is running for. Branch is the
// fan-out branch key and is empty for sequential stages.
type StageContext struct {
	Name   string
	CaseID string
	Branch string
}

// NewStageContext returns a new context with the given StageContext.
func NewStageContext(ctx context.Context, stage *StageContext) context.Context {
	return context.WithValue(ctx, ctxStageKey{}, stage)
}

// FromStageContext retrieves the StageContext from the context, if present.
func FromStageContext(ctx context.Context) (*StageContext, bool) {
	stage, ok := ctx.Value(ctxStageKey{}).(*StageContext)
	return stage, ok
}
