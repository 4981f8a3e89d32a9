package graph

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"
)

type branchResult struct {
	update Update
	err    error
}

// fanOut runs every branch against its isolated payload and merges the
// successful updates into the running state in branch-index order. A failed
// branch is recorded under branch_errors; a schema violation is fatal.
func (t *task) fanOut(ctx context.Context, from string, tr transition, branches []Branch) error {
	e := t.executor
	if tr.join == "" {
		return &RoutingContractViolation{Stage: from, Reason: "fan-out on an edge without a join stage"}
	}
	keys := make([]string, len(branches))
	seen := make(map[string]bool, len(branches))
	var targets []string
	for i, b := range branches {
		if !slices.Contains(tr.targets, b.Target) {
			return &RoutingContractViolation{Stage: from, Target: b.Target, Reason: "undeclared target"}
		}
		key := b.Key
		if key == "" {
			key = fmt.Sprintf("%s#%d", b.Target, i)
		}
		if seen[key] {
			return &RoutingContractViolation{Stage: from, Target: b.Target, Reason: fmt.Sprintf("duplicate branch key %q", key)}
		}
		seen[key] = true
		keys[i] = key
		if !slices.Contains(targets, b.Target) {
			targets = append(targets, b.Target)
		}
	}
	label := strings.Join(targets, "|")
	t.logger.Info("fan-out dispatched", "stage", from, "target", label, "branches", keys)

	payloads := make([]map[string]any, len(branches))
	for i, b := range branches {
		payloads[i] = t.payload(b, tr.carry)
	}

	results := make([]branchResult, len(branches))
	eg, egCtx := errgroup.WithContext(ctx)
	if e.maxConcurrency > 0 {
		eg.SetLimit(e.maxConcurrency)
	}
	for i, b := range branches {
		eg.Go(func() error {
			update, err := t.runBranch(egCtx, b.Target, keys[i], payloads[i])
			var sv *SchemaViolation
			if errors.As(err, &sv) {
				return err
			}
			results[i] = branchResult{update: update, err: err}
			return nil
		})
	}
	// Branches that ignore cancellation are abandoned: each one only writes
	// its own results slot, and results is not read after an abort.
	done := make(chan error, 1)
	go func() {
		done <- eg.Wait()
	}()
	select {
	case err := <-done:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		t.logger.Warn("fan-out abandoned", "stage", from, "branches", keys)
		return fmt.Errorf("%w: %w", ErrAborted, ctx.Err())
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrAborted, err)
	}

	state := t.state
	touched := make(map[string]struct{})
	var failed []string
	branchErrors := make(map[string]any)
	for i, result := range results {
		if result.err != nil {
			failed = append(failed, keys[i])
			branchErrors[keys[i]] = result.err.Error()
			t.logger.Warn("branch failed", "stage", branches[i].Target, "branch", keys[i], "error", result.err)
			continue
		}
		next, err := e.schema.ApplyPartial(state, result.update)
		if err != nil {
			return withStage(err, branches[i].Target)
		}
		state = next
		for field := range result.update {
			touched[field] = struct{}{}
		}
	}
	if len(branchErrors) > 0 {
		next, err := e.schema.ApplyPartial(state, Update{FieldBranchErrors: branchErrors})
		if err != nil {
			return err
		}
		state = next
		touched[FieldBranchErrors] = struct{}{}
	}
	t.state = state
	t.c.Trace = append(t.c.Trace, StepRecord{
		Stage:    label,
		Fields:   sortedKeys(touched),
		Branches: keys,
		Failed:   failed,
	})
	t.logger.Info("fan-out merged", "stage", from, "join", tr.join, "succeeded", len(branches)-len(failed), "failed", len(failed))
	t.save(ctx, label)
	return nil
}

// payload builds the isolated values a branch may read. Containers are deep
// copied so a branch never holds a reference into the running state.
func (t *task) payload(b Branch, carry []string) map[string]any {
	out := make(map[string]any, len(b.Payload)+len(carry))
	for _, field := range carry {
		if v, ok := t.state.Get(field); ok {
			out[field] = cloneValue(v)
		}
	}
	for k, v := range b.Payload {
		out[k] = cloneValue(v)
	}
	return out
}

// runBranch runs target against a view holding only the branch payload.
func (t *task) runBranch(ctx context.Context, target, key string, payload map[string]any) (Update, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stage := t.executor.stages[target]
	branchCtx := NewStageContext(ctx, &StageContext{Name: target, CaseID: t.c.ID, Branch: key})
	update, err := call(branchCtx, stage.handler, View{values: payload})
	if err != nil {
		return nil, &HandlerError{Stage: target, Branch: key, Err: err}
	}
	if err := stage.checkOutputs(update); err != nil {
		return nil, err
	}
	return update, nil
}
