// Package complaint implements the five-stage complaint workflow: intake,
// validation, per-category investigation, resolution and closure.
package complaint

import (
	"log/slog"
	"time"

	"github.com/go-kratos/caseflow"
	"github.com/go-kratos/caseflow/graph"
)

// Option configures the workflow.
type Option func(*options)

type options struct {
	now         func() time.Time
	logger      *slog.Logger
	middlewares []caseflow.Middleware
	graphOpts   []graph.Option
}

// WithClock sets the time source used for closure timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithLogger sets the logger used by the stages and the executor.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMiddleware wraps the generator with the given middlewares, outermost first.
func WithMiddleware(ms ...caseflow.Middleware) Option {
	return func(o *options) {
		o.middlewares = append(o.middlewares, ms...)
	}
}

// WithGraphOptions passes options through to the underlying graph.
func WithGraphOptions(opts ...graph.Option) Option {
	return func(o *options) {
		o.graphOpts = append(o.graphOpts, opts...)
	}
}

// NewWorkflow compiles the complaint workflow around gen.
//
//	intake -> validate -> investigate (one branch per valid category) -> resolve -> close
//	                  \-> close (nothing to investigate)
func NewWorkflow(gen caseflow.Generator, opts ...Option) (*graph.Executor, error) {
	o := options{now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if len(o.middlewares) > 0 {
		gen = caseflow.ChainMiddlewares(o.middlewares...)(gen)
	}
	s := &stages{gen: gen, now: o.now, logger: o.logger}

	graphOpts := append([]graph.Option{
		graph.WithLogger(o.logger),
		graph.WithStatusField(FieldStatus),
	}, o.graphOpts...)
	g := graph.NewGraph(graphOpts...)
	g.AddField(Fields()...)
	g.AddStage(graph.Stage{
		Name:    StageIntake,
		Handler: s.intake,
		Outputs: []string{FieldCategories, FieldWorkflowPath, FieldStatus},
	})
	g.AddStage(graph.Stage{
		Name:    StageValidate,
		Handler: s.validate,
		Outputs: []string{FieldValidationResults, FieldValidCategories, FieldWorkflowPath, FieldStatus},
	})
	g.AddStage(graph.Stage{
		Name:    StageInvestigate,
		Handler: s.investigate,
		Outputs: []string{FieldInvestigationFindings, FieldWorkflowPath},
	})
	g.AddStage(graph.Stage{
		Name:    StageResolve,
		Handler: s.resolve,
		Outputs: []string{FieldResolution, FieldEffectivenessRating, FieldRequiresEscalation, FieldWorkflowPath, FieldStatus},
	})
	g.AddStage(graph.Stage{
		Name:    StageClose,
		Handler: s.close,
		Outputs: []string{FieldClosureLog, FieldSatisfactionVerified, FieldFollowUpRequired, FieldClosedAt, FieldWorkflowPath, FieldStatus},
	})
	g.AddEdge(StageIntake, StageValidate)
	g.AddConditionalEdge(StageValidate, routeInvestigations,
		[]string{StageInvestigate, StageClose},
		graph.WithJoin(StageResolve),
		graph.WithFallback(StageClose),
		graph.WithBranchFields(FieldComplaint),
	)
	g.AddEdge(StageResolve, StageClose)
	g.SetEntryPoint(StageIntake)
	g.SetFinishPoint(StageClose)
	return g.Compile()
}

// Initial returns the initial update for a complaint text.
func Initial(complaint string) graph.Update {
	return graph.Update{
		FieldComplaint: complaint,
		FieldStatus:    StatusNew,
	}
}
