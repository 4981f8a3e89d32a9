package complaint

import "github.com/go-kratos/caseflow/graph"

// Outcome is the coarse result of a case, as reported by the entry command.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeRejected Outcome = "rejected"
	OutcomeBlocked  Outcome = "blocked"
	OutcomeError    Outcome = "error"
)

// OutcomeOf maps the terminal status of a case to an Outcome. A cancelled
// run is reported as blocked.
func OutcomeOf(c *graph.Case) Outcome {
	if c == nil {
		return OutcomeError
	}
	if c.Status == graph.StatusAborted {
		return OutcomeBlocked
	}
	switch c.Outcome {
	case StatusClosed:
		return OutcomeSuccess
	case StatusRejected, StatusEscalated:
		return OutcomeRejected
	case StatusIntakeBlocked, StatusResolutionBlocked, StatusClosureBlocked:
		return OutcomeBlocked
	default:
		return OutcomeError
	}
}

// ExitCode returns the process exit code for the outcome.
func (o Outcome) ExitCode() int {
	switch o {
	case OutcomeSuccess:
		return 0
	case OutcomeRejected:
		return 2
	case OutcomeBlocked:
		return 3
	default:
		return 1
	}
}
