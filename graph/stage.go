package graph

import (
	"context"
	"fmt"
	"slices"
)

// Stage is a named unit of work. Outputs lists every field the handler is
// allowed to write.
type Stage struct {
	Name    string
	Handler Handler
	Outputs []string
}

type compiledStage struct {
	name    string
	handler Handler
	outputs []string
}

func (s compiledStage) checkOutputs(update Update) error {
	for _, field := range sortedKeys(update) {
		if !slices.Contains(s.outputs, field) {
			return &SchemaViolation{Stage: s.name, Field: field, Reason: "not a declared output"}
		}
	}
	return nil
}

// call invokes handler and converts a panic into an error.
func call(ctx context.Context, handler Handler, view View) (update Update, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return handler(ctx, view)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
