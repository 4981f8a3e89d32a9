package complaint

import (
	"context"
	"errors"

	"github.com/go-kratos/caseflow"
	"github.com/go-kratos/caseflow/graph"
)

// Process stores a new case, runs it through the executor and records the
// result. A failed run is recorded as an error on the case; the record is
// returned together with the run error.
func Process(ctx context.Context, store caseflow.CaseStore, executor *graph.Executor, complaint string) (*caseflow.Record, *graph.Case, error) {
	record, err := store.Create(ctx, complaint)
	if err != nil {
		return nil, nil, err
	}
	if err := store.MarkRunning(ctx, record.ID); err != nil {
		return record, nil, err
	}
	c, runErr := executor.Run(ctx, record.ID, Initial(record.Complaint))
	// bookkeeping must survive a cancelled run
	bg := context.WithoutCancel(ctx)
	if runErr != nil {
		if err := store.MarkError(bg, record.ID, runErr.Error()); err != nil {
			return record, c, errors.Join(runErr, err)
		}
	} else if err := store.SaveResult(bg, record.ID, c.Final.Map()); err != nil {
		return record, c, err
	}
	latest, err := store.Get(bg, record.ID)
	if err != nil {
		return record, c, errors.Join(runErr, err)
	}
	return latest, c, runErr
}
