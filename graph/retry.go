package graph

import (
	"context"

	"github.com/go-kratos/kit/retry"
)

// Retry returns a middleware that retries stage handlers with the given
// retry policy.
//
// attempts counts the initial call: attempts=3 means one call and up to two
// retries. The same View is passed to every attempt. When all attempts fail
// the last error is returned. Backoff and the set of retryable errors are
// configured through retry.Option, for example:
//
//	mw := Retry(5,
//	    retry.WithBackoff(retry.NewExponentialBackoff()),
//	    retry.WithRetryable(func(err error) bool {
//	        return errors.Is(err, ErrTemporary)
//	    }),
//	)
func Retry(attempts int, opts ...retry.Option) Middleware {
	r := retry.New(attempts, opts...)
	return func(next Handler) Handler {
		return func(ctx context.Context, view View) (Update, error) {
			var output Update
			if err := r.Do(ctx, func(ctx context.Context) error {
				var err error
				output, err = next(ctx, view)
				return err
			}); err != nil {
				return nil, err
			}
			return output, nil
		}
	}
}
