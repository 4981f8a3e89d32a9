package middleware

import (
	"context"

	"github.com/go-kratos/caseflow"
	"github.com/go-kratos/kit/retry"
)

// Retry returns a middleware that retries generator calls with configurable retry behavior.
//
// Parameters:
//
//	attempts: The total number of attempts, including the initial call.
//	          For example, attempts=3 means up to 3 tries (1 initial + 2 retries).
//	opts:     Optional configuration for retry behavior. See retry.Option (from github.com/go-kratos/kit/retry) for details.
//
// Behavior:
//   - The same prompt is passed on each attempt.
//   - If all attempts are exhausted the last error is returned.
//   - Context cancellation is respected between attempts.
//
// Example usage:
//
//	mw := Retry(5,
//	    retry.WithBackoff(retry.NewExponentialBackoff()),
//	    retry.WithRetryable(func(err error) bool {
//	        return !errors.Is(err, caseflow.ErrEmptyResponse)
//	    }),
//	)
func Retry(attempts int, opts ...retry.Option) caseflow.Middleware {
	r := retry.New(attempts, opts...)
	return func(next caseflow.Generator) caseflow.Generator {
		return &caseflow.HandleFunc{
			ModelName: next.Name(),
			Handle: func(ctx context.Context, prompt *caseflow.Prompt) (string, error) {
				var text string
				err := r.Do(ctx, func(ctx context.Context) error {
					var err error
					text, err = next.Generate(ctx, prompt)
					return err
				})
				if err != nil {
					return "", err
				}
				return text, nil
			},
		}
	}
}
