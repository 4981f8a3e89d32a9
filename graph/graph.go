package graph

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
)

// Option configures the Graph behavior.
type Option func(*Graph)

// WithMiddleware adds global middlewares applied to all stage handlers,
// fan-out branches included. Repeated options append, outermost first.
func WithMiddleware(ms ...Middleware) Option {
	return func(g *Graph) {
		g.middlewares = append(g.middlewares, ms...)
	}
}

// WithLogger sets the logger used by the executor. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(g *Graph) {
		g.logger = logger
	}
}

// WithMaxConcurrency bounds the number of fan-out branches running at once.
// Zero or a negative value means unbounded.
func WithMaxConcurrency(n int) Option {
	return func(g *Graph) {
		g.maxConcurrency = n
	}
}

// WithMaxSteps caps the number of transitions in a single run. Zero, the
// default, allows one step per registered stage.
func WithMaxSteps(n int) Option {
	return func(g *Graph) {
		g.maxSteps = n
	}
}

// WithCheckpointSink sets the sink notified after every stage and merge.
func WithCheckpointSink(sink CheckpointSink) Option {
	return func(g *Graph) {
		g.checkpoint = sink
	}
}

// WithStatusField names the field whose final value becomes Case.Outcome.
func WithStatusField(field string) Option {
	return func(g *Graph) {
		g.statusField = field
	}
}

// Graph is the static registry of fields, stages and transitions. It is
// mutable while being built and compiled once into an Executor.
type Graph struct {
	fields         []Field
	stages         map[string]Stage
	order          []string
	transitions    map[string][]transition
	duplicates     []string
	entryPoint     string
	finishPoint    string
	middlewares    []Middleware
	logger         *slog.Logger
	maxConcurrency int
	maxSteps       int
	checkpoint     CheckpointSink
	statusField    string
}

// NewGraph creates a new empty Graph.
func NewGraph(opts ...Option) *Graph {
	g := &Graph{
		stages:      make(map[string]Stage),
		transitions: make(map[string][]transition),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// AddField declares state fields and their merge policies.
// Returns the graph for chaining.
func (g *Graph) AddField(fields ...Field) *Graph {
	g.fields = append(g.fields, fields...)
	return g
}

// AddStage registers a stage. Registering a name twice is reported by Compile.
// Returns the graph for chaining.
func (g *Graph) AddStage(stage Stage) *Graph {
	if _, ok := g.stages[stage.Name]; ok {
		g.duplicates = append(g.duplicates, stage.Name)
		return g
	}
	g.stages[stage.Name] = stage
	g.order = append(g.order, stage.Name)
	return g
}

// AddEdge adds a direct transition from one stage to another.
// Returns the graph for chaining.
func (g *Graph) AddEdge(from, to string) *Graph {
	g.transitions[from] = append(g.transitions[from], transition{to: to})
	return g
}

// AddConditionalEdge attaches a router to from. Every stage the router may
// return, including fan-out targets and the fallback, must be listed in targets.
// Returns the graph for chaining.
func (g *Graph) AddConditionalEdge(from string, router Router, targets []string, opts ...EdgeOption) *Graph {
	t := transition{router: router, targets: slices.Clone(targets)}
	for _, opt := range opts {
		opt(&t)
	}
	g.transitions[from] = append(g.transitions[from], t)
	return g
}

// SetEntryPoint marks a stage as the entry point.
// Returns the graph for chaining.
func (g *Graph) SetEntryPoint(start string) *Graph {
	g.entryPoint = start
	return g
}

// SetFinishPoint marks a stage as the single terminal stage.
// Returns the graph for chaining.
func (g *Graph) SetFinishPoint(end string) *Graph {
	g.finishPoint = end
	return g
}

func invalid(kind ValidationKind, stage, format string, args ...any) error {
	return &ValidationError{Kind: kind, Stage: stage, Detail: fmt.Sprintf(format, args...)}
}

// validate ensures the graph configuration is correct before compiling.
func (g *Graph) validate() error {
	if len(g.duplicates) > 0 {
		return invalid(InvalidDuplicateStage, g.duplicates[0], "registered more than once")
	}
	for _, name := range g.order {
		if name == "" {
			return invalid(InvalidUnknownStage, "", "stage name is empty")
		}
		if g.stages[name].Handler == nil {
			return invalid(InvalidUnknownStage, name, "handler missing")
		}
	}
	if g.entryPoint == "" {
		return invalid(InvalidMissingEntry, "", "entry point not set")
	}
	if g.finishPoint == "" {
		return invalid(InvalidMissingFinish, "", "finish point not set")
	}
	if _, ok := g.stages[g.entryPoint]; !ok {
		return invalid(InvalidMissingEntry, g.entryPoint, "entry stage not registered")
	}
	if _, ok := g.stages[g.finishPoint]; !ok {
		return invalid(InvalidMissingFinish, g.finishPoint, "finish stage not registered")
	}
	for _, from := range sortedKeys(g.transitions) {
		if _, ok := g.stages[from]; !ok {
			return invalid(InvalidUnknownStage, from, "transition from unknown stage")
		}
	}
	branchOnly := g.branchTargets()
	for _, name := range g.order {
		ts := g.transitions[name]
		switch {
		case name == g.finishPoint && len(ts) > 0:
			return invalid(InvalidTransition, name, "finish stage must not have outgoing transitions")
		case name == g.finishPoint:
			continue
		case len(ts) > 1:
			return invalid(InvalidTransition, name, "%d outgoing transitions, want exactly one", len(ts))
		case len(ts) == 0 && !branchOnly[name]:
			return invalid(InvalidTransition, name, "no outgoing transition")
		case len(ts) == 0:
			continue
		}
		if err := g.validateTransition(name, ts[0]); err != nil {
			return err
		}
	}
	return nil
}

func (g *Graph) validateTransition(from string, t transition) error {
	if t.router == nil {
		if _, ok := g.stages[t.to]; !ok {
			return invalid(InvalidUndeclaredTarget, from, "edge to unknown stage %q", t.to)
		}
		return nil
	}
	if len(t.targets) == 0 {
		return invalid(InvalidTransition, from, "conditional edge declares no targets")
	}
	for _, target := range t.targets {
		if _, ok := g.stages[target]; !ok {
			return invalid(InvalidUndeclaredTarget, from, "conditional edge to unknown stage %q", target)
		}
	}
	if t.fallback != "" && !slices.Contains(t.targets, t.fallback) {
		return invalid(InvalidUndeclaredTarget, from, "fallback %q is not a declared target", t.fallback)
	}
	if t.join != "" {
		if _, ok := g.stages[t.join]; !ok {
			return invalid(InvalidJoin, from, "join stage %q not registered", t.join)
		}
		if slices.Contains(t.targets, t.join) {
			return invalid(InvalidJoin, from, "join stage %q is also a branch target", t.join)
		}
	}
	return nil
}

// branchTargets returns the stages that may run only as fan-out branches:
// targets of a joined conditional edge other than its fallback.
func (g *Graph) branchTargets() map[string]bool {
	out := make(map[string]bool)
	for _, ts := range g.transitions {
		for _, t := range ts {
			if t.router == nil || t.join == "" {
				continue
			}
			for _, target := range t.targets {
				if target != t.fallback {
					out[target] = true
				}
			}
		}
	}
	return out
}

// validateFields checks that stage outputs, branch fields and the status
// field are declared.
func (g *Graph) validateFields(schema *Schema) error {
	for _, name := range g.order {
		for _, field := range g.stages[name].Outputs {
			if !schema.Has(field) {
				return invalid(InvalidUndeclaredField, name, "output %q is not a declared field", field)
			}
		}
	}
	for _, from := range sortedKeys(g.transitions) {
		for _, t := range g.transitions[from] {
			for _, field := range t.carry {
				if !schema.Has(field) {
					return invalid(InvalidUndeclaredField, from, "branch field %q is not a declared field", field)
				}
			}
		}
	}
	if g.statusField != "" && !schema.Has(g.statusField) {
		return invalid(InvalidUndeclaredField, "", "status field %q is not declared", g.statusField)
	}
	return nil
}

// ensureReachable verifies that every stage can be reached from the entry stage.
func (g *Graph) ensureReachable() error {
	queue := []string{g.entryPoint}
	visited := make(map[string]bool, len(g.stages))
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		if visited[node] {
			continue
		}
		visited[node] = true
		for _, t := range g.transitions[node] {
			queue = append(queue, t.successors()...)
		}
	}
	for _, name := range g.order {
		if !visited[name] {
			return invalid(InvalidUnreachable, name, "not reachable from %s", g.entryPoint)
		}
	}
	return nil
}

// ensureAcyclic verifies that the graph does not contain directed cycles.
func (g *Graph) ensureAcyclic() error {
	const (
		stateUnvisited = iota
		stateVisiting
		stateVisited
	)
	states := make(map[string]int, len(g.stages))
	stack := make([]string, 0, len(g.stages))

	var visit func(string) error
	visit = func(node string) error {
		states[node] = stateVisiting
		stack = append(stack, node)

		for _, t := range g.transitions[node] {
			for _, next := range t.successors() {
				switch states[next] {
				case stateVisiting:
					cycleStart := slices.Index(stack, next)
					cycle := append(slices.Clone(stack[cycleStart:]), next)
					return invalid(InvalidCycle, next, "cycles are not supported (cycle: %s)", strings.Join(cycle, " -> "))
				case stateUnvisited:
					if err := visit(next); err != nil {
						return err
					}
				}
			}
		}

		stack = stack[:len(stack)-1]
		states[node] = stateVisited
		return nil
	}

	for _, name := range g.order {
		if states[name] == stateUnvisited {
			if err := visit(name); err != nil {
				return err
			}
		}
	}
	return nil
}

// Compile validates the graph and compiles it into an Executor. All
// structural defects are reported here, never while a case is running.
func (g *Graph) Compile() (*Executor, error) {
	if err := g.validate(); err != nil {
		return nil, err
	}
	fields := slices.Clone(g.fields)
	if !slices.ContainsFunc(fields, func(f Field) bool { return f.Name == FieldBranchErrors }) {
		fields = append(fields, Field{Name: FieldBranchErrors, Policy: UnionMerge})
	}
	schema, err := NewSchema(fields...)
	if err != nil {
		return nil, &ValidationError{Kind: InvalidField, Detail: strings.TrimPrefix(err.Error(), "graph: ")}
	}
	if err := g.validateFields(schema); err != nil {
		return nil, err
	}
	if err := g.ensureAcyclic(); err != nil {
		return nil, err
	}
	if err := g.ensureReachable(); err != nil {
		return nil, err
	}
	return newExecutor(g, schema), nil
}
