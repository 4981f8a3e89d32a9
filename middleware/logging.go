package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-kratos/caseflow"
	"github.com/go-kratos/caseflow/graph"
)

// Logging returns a middleware that logs every generator call with its
// latency. The stage and branch are taken from the stage context when present.
func Logging(logger *slog.Logger) caseflow.Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next caseflow.Generator) caseflow.Generator {
		return &caseflow.HandleFunc{
			ModelName: next.Name(),
			Handle: func(ctx context.Context, prompt *caseflow.Prompt) (string, error) {
				attrs := []any{"model", next.Name()}
				if sc, ok := graph.FromStageContext(ctx); ok {
					attrs = append(attrs, "case", sc.CaseID, "stage", sc.Name)
					if sc.Branch != "" {
						attrs = append(attrs, "branch", sc.Branch)
					}
				}
				start := time.Now()
				text, err := next.Generate(ctx, prompt)
				attrs = append(attrs, "latency", time.Since(start))
				if err != nil {
					logger.WarnContext(ctx, "generate failed", append(attrs, "error", err)...)
					return "", err
				}
				logger.DebugContext(ctx, "generate", append(attrs, "chars", len(text))...)
				return text, nil
			},
		}
	}
}
