package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
)

// Status is the lifecycle state of a Case.
type Status string

const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusTerminal Status = "terminal"
	StatusAborted  Status = "aborted"
)

// Outcomes set by the executor itself. Every other outcome is the final value
// of the status field.
const (
	OutcomeError   = "error"
	OutcomeAborted = "aborted"
)

// StepRecord is one entry of the audit trace: a sequential stage, or a whole
// fan-out. Branches lists branch keys in dispatch order and Failed the keys of
// branches whose handler failed.
type StepRecord struct {
	Stage    string   `json:"stage"`
	Fields   []string `json:"fields,omitempty"`
	Branches []string `json:"branches,omitempty"`
	Failed   []string `json:"failed,omitempty"`
}

// Case is one end-to-end run through an Executor. It is immutable once Run
// returns.
type Case struct {
	ID      string       `json:"id"`
	Initial State        `json:"initial"`
	Final   State        `json:"final"`
	Trace   []StepRecord `json:"trace"`
	Status  Status       `json:"status"`
	Outcome string       `json:"outcome"`
	Err     error        `json:"-"`
}

// Stages returns the stage labels of the trace in order.
func (c *Case) Stages() []string {
	out := make([]string, 0, len(c.Trace))
	for _, step := range c.Trace {
		out = append(out, step.Stage)
	}
	return out
}

// EdgeInfo describes one transition of a compiled graph.
type EdgeInfo struct {
	From string
	To   string
	Kind string // edge, route, join or fallback
}

// Executor is a compiled graph. It is immutable and safe for concurrent runs.
type Executor struct {
	schema         *Schema
	stages         map[string]compiledStage
	order          []string
	transitions    map[string]transition
	entryPoint     string
	finishPoint    string
	logger         *slog.Logger
	maxConcurrency int
	maxSteps       int
	checkpoint     CheckpointSink
	statusField    string
}

func newExecutor(g *Graph, schema *Schema) *Executor {
	e := &Executor{
		schema:         schema,
		stages:         make(map[string]compiledStage, len(g.stages)),
		order:          append([]string{}, g.order...),
		transitions:    make(map[string]transition, len(g.transitions)),
		entryPoint:     g.entryPoint,
		finishPoint:    g.finishPoint,
		logger:         g.logger,
		maxConcurrency: g.maxConcurrency,
		maxSteps:       g.maxSteps,
		checkpoint:     g.checkpoint,
		statusField:    g.statusField,
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.maxSteps <= 0 {
		// an acyclic graph visits every stage at most once
		e.maxSteps = len(g.stages) + 1
	}
	for name, stage := range g.stages {
		handler := stage.Handler
		if len(g.middlewares) > 0 {
			handler = ChainMiddlewares(g.middlewares...)(handler)
		}
		e.stages[name] = compiledStage{
			name:    name,
			handler: handler,
			outputs: append([]string{}, stage.Outputs...),
		}
	}
	for from, ts := range g.transitions {
		e.transitions[from] = ts[0]
	}
	return e
}

// Schema returns the field policy table.
func (e *Executor) Schema() *Schema {
	return e.schema
}

// EntryPoint returns the entry stage name.
func (e *Executor) EntryPoint() string {
	return e.entryPoint
}

// FinishPoint returns the terminal stage name.
func (e *Executor) FinishPoint() string {
	return e.finishPoint
}

// Stages returns the stage names in registration order.
func (e *Executor) Stages() []string {
	return append([]string{}, e.order...)
}

// Edges lists every transition in stage registration order.
func (e *Executor) Edges() []EdgeInfo {
	var out []EdgeInfo
	for _, from := range e.order {
		t, ok := e.transitions[from]
		if !ok {
			continue
		}
		if t.router == nil {
			out = append(out, EdgeInfo{From: from, To: t.to, Kind: "edge"})
			continue
		}
		for _, target := range t.targets {
			kind := "route"
			if target == t.fallback {
				kind = "fallback"
			}
			out = append(out, EdgeInfo{From: from, To: target, Kind: kind})
		}
		if t.join != "" {
			out = append(out, EdgeInfo{From: from, To: t.join, Kind: "join"})
		}
	}
	return out
}

// Run drives one case from the entry stage to the finish stage. The initial
// update is applied to an empty State first.
//
// A structural or handler failure ends the run with Status terminal and
// Outcome "error"; cancellation ends it with Status aborted. In both cases
// the partial Case is returned together with the error.
func (e *Executor) Run(ctx context.Context, caseID string, initial Update) (*Case, error) {
	c := &Case{ID: caseID, Status: StatusPending}
	t := &task{
		executor: e,
		c:        c,
		logger:   e.logger.With("case", caseID),
	}
	state, err := e.schema.ApplyPartial(State{}, initial)
	if err != nil {
		return t.fail(ctx, err)
	}
	c.Initial = state
	t.state = state
	c.Status = StatusRunning
	if err := t.execute(ctx); err != nil {
		return t.fail(ctx, err)
	}
	c.Final = t.state
	c.Status = StatusTerminal
	if e.statusField != "" {
		c.Outcome = t.state.View().String(e.statusField)
	}
	t.logger.Info("case finished", "outcome", c.Outcome, "steps", len(c.Trace))
	return c, nil
}

// task holds the mutable state of a single run.
type task struct {
	executor *Executor
	c        *Case
	state    State
	logger   *slog.Logger
}

func (t *task) fail(ctx context.Context, err error) (*Case, error) {
	t.c.Final = t.state
	if ctx.Err() != nil {
		t.c.Status = StatusAborted
		t.c.Outcome = OutcomeAborted
		if !errors.Is(err, ErrAborted) {
			err = fmt.Errorf("%w: %w", ErrAborted, ctx.Err())
		}
		t.c.Err = err
		t.logger.Warn("case aborted", "error", err)
		return t.c, err
	}
	t.c.Status = StatusTerminal
	t.c.Outcome = OutcomeError
	t.c.Err = err
	t.logger.Error("case failed", "error", err)
	return t.c, err
}

func (t *task) execute(ctx context.Context) error {
	e := t.executor
	current := e.entryPoint
	for steps := 0; ; steps++ {
		if steps >= e.maxSteps {
			return fmt.Errorf("graph: exceeded maximum steps limit (%d)", e.maxSteps)
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrAborted, err)
		}
		if err := t.runStage(ctx, current); err != nil {
			return err
		}
		if current == e.finishPoint {
			return nil
		}
		next, err := t.advance(ctx, current)
		if err != nil {
			return err
		}
		current = next
	}
}

func (t *task) runStage(ctx context.Context, name string) error {
	stage := t.executor.stages[name]
	t.logger.Debug("stage started", "stage", name)
	stageCtx := NewStageContext(ctx, &StageContext{Name: name, CaseID: t.c.ID})
	update, err := call(stageCtx, stage.handler, t.state.View())
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", ErrAborted, ctx.Err())
		}
		return &HandlerError{Stage: name, Err: err}
	}
	if err := stage.checkOutputs(update); err != nil {
		return err
	}
	next, err := t.executor.schema.ApplyPartial(t.state, update)
	if err != nil {
		return withStage(err, name)
	}
	t.state = next
	t.c.Trace = append(t.c.Trace, StepRecord{Stage: name, Fields: sortedKeys(update)})
	t.logger.Debug("stage finished", "stage", name, "fields", sortedKeys(update))
	t.save(ctx, name)
	return nil
}

// advance resolves the transition out of from, running a fan-out if the
// router asks for one, and returns the next stage to run.
func (t *task) advance(ctx context.Context, from string) (string, error) {
	e := t.executor
	tr := e.transitions[from]
	if tr.router == nil {
		return tr.to, nil
	}
	view := t.state.View().restrict(e.stages[from].outputs)
	routerCtx := NewStageContext(ctx, &StageContext{Name: from, CaseID: t.c.ID})
	decision, err := route(routerCtx, tr.router, view)
	if err != nil {
		return "", &HandlerError{Stage: from, Err: fmt.Errorf("router: %w", err)}
	}
	switch decision.Kind {
	case DecisionTerminal:
		return e.finishPoint, nil
	case DecisionGoto:
		if err := e.checkGoto(from, tr, decision.Target); err != nil {
			return "", err
		}
		return decision.Target, nil
	case DecisionFanOut:
		if len(decision.Branches) == 0 {
			if tr.fallback == "" {
				return "", &RoutingContractViolation{Stage: from, Reason: "fan-out without branches and no fallback"}
			}
			t.logger.Info("fan-out has no branches", "stage", from, "fallback", tr.fallback)
			return tr.fallback, nil
		}
		if err := t.fanOut(ctx, from, tr, decision.Branches); err != nil {
			return "", err
		}
		return tr.join, nil
	default:
		return "", &RoutingContractViolation{Stage: from, Reason: fmt.Sprintf("unknown decision %s", decision.Kind)}
	}
}

func (e *Executor) checkGoto(from string, tr transition, target string) error {
	if !slices.Contains(tr.targets, target) {
		return &RoutingContractViolation{Stage: from, Target: target, Reason: "undeclared target"}
	}
	if _, ok := e.transitions[target]; !ok && target != e.finishPoint {
		return &RoutingContractViolation{Stage: from, Target: target, Reason: "stage runs only as a fan-out branch"}
	}
	return nil
}

func (t *task) save(ctx context.Context, stage string) {
	sink := t.executor.checkpoint
	if sink == nil {
		return
	}
	if err := sink.Save(ctx, t.c.ID, stage, t.state); err != nil {
		t.logger.Warn("checkpoint failed", "stage", stage, "error", err)
	}
}

func route(ctx context.Context, router Router, view View) (decision Decision, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return router(ctx, view)
}

func withStage(err error, stage string) error {
	var sv *SchemaViolation
	if errors.As(err, &sv) && sv.Stage == "" {
		return &SchemaViolation{Stage: stage, Field: sv.Field, Reason: sv.Reason}
	}
	return err
}
