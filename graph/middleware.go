package graph

import "context"

// Handler is the work of a stage. It observes the case through a read-only
// View and returns only the fields it changes; the executor merges the
// update into the running State according to each field's merge policy.
// Handlers may run concurrently with other handlers and must not retain the
// values they read.
type Handler func(ctx context.Context, view View) (Update, error)

// Middleware is a function that wraps a Handler with additional functionality.
type Middleware func(Handler) Handler

// ChainMiddlewares composes middlewares into one, applying them in order.
// The first middleware becomes the outermost wrapper.
func ChainMiddlewares(mws ...Middleware) Middleware {
	return func(next Handler) Handler {
		h := next
		for i := len(mws) - 1; i >= 0; i-- { // apply in reverse to make mws[0] outermost
			h = mws[i](h)
		}
		return h
	}
}
