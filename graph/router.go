package graph

import "context"

// DecisionKind tells the executor how to leave a routed stage.
type DecisionKind int

const (
	// DecisionGoto proceeds to a single named stage.
	DecisionGoto DecisionKind = iota
	// DecisionTerminal proceeds to the finish stage.
	DecisionTerminal
	// DecisionFanOut dispatches branches and rejoins at the edge's join stage.
	DecisionFanOut
)

func (k DecisionKind) String() string {
	switch k {
	case DecisionGoto:
		return "goto"
	case DecisionTerminal:
		return "terminal"
	case DecisionFanOut:
		return "fan-out"
	default:
		return "unknown"
	}
}

// Branch describes one fan-out branch. The target stage sees Payload and
// nothing else. Key identifies the branch in the trace and in branch_errors;
// it defaults to "<target>#<index>".
type Branch struct {
	Key     string
	Target  string
	Payload map[string]any
}

// Decision is the result of a Router.
type Decision struct {
	Kind     DecisionKind
	Target   string
	Branches []Branch
}

// Goto routes to stage.
func Goto(stage string) Decision {
	return Decision{Kind: DecisionGoto, Target: stage}
}

// Terminal routes to the finish stage.
func Terminal() Decision {
	return Decision{Kind: DecisionTerminal}
}

// FanOut dispatches branches in the given order. An empty list routes to the
// edge's fallback stage.
func FanOut(branches ...Branch) Decision {
	return Decision{Kind: DecisionFanOut, Branches: branches}
}

// Router picks the transition out of a stage. It sees only the outputs of
// the stage it follows.
type Router func(ctx context.Context, view View) (Decision, error)

// EdgeOption configures a conditional edge.
type EdgeOption func(*transition)

// WithJoin sets the stage where fan-out branches rejoin.
func WithJoin(stage string) EdgeOption {
	return func(t *transition) {
		t.join = stage
	}
}

// WithFallback sets the stage taken when a fan-out has no branches. The
// fallback must be one of the edge's targets.
func WithFallback(stage string) EdgeOption {
	return func(t *transition) {
		t.fallback = stage
	}
}

// WithBranchFields copies the named state fields into every branch payload.
// A field the router set explicitly in a payload is left as is.
func WithBranchFields(fields ...string) EdgeOption {
	return func(t *transition) {
		t.carry = append(t.carry, fields...)
	}
}

// transition is the single way out of a stage: a static edge or a router.
type transition struct {
	to       string
	router   Router
	targets  []string
	join     string
	fallback string
	carry    []string
}

// successors returns every stage the transition may lead to directly.
func (t transition) successors() []string {
	if t.router == nil {
		return []string{t.to}
	}
	out := append([]string{}, t.targets...)
	if t.join != "" {
		out = append(out, t.join)
	}
	return out
}
