package graph

import "context"

// CheckpointSink receives a snapshot of the running state after every stage
// and after every fan-out merge. Save failures are logged and never abort a run.
type CheckpointSink interface {
	Save(ctx context.Context, caseID, stage string, state State) error
}

// CheckpointFunc adapts a function to a CheckpointSink.
type CheckpointFunc func(ctx context.Context, caseID, stage string, state State) error

// Save calls f.
func (f CheckpointFunc) Save(ctx context.Context, caseID, stage string, state State) error {
	return f(ctx, caseID, stage, state)
}
