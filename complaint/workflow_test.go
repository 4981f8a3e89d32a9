package complaint

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-kratos/caseflow"
	"github.com/go-kratos/caseflow/graph"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

// script answers prompts by stage: "intake", "resolve", "close",
// "validate:<category>" and "investigate:<category>".
type script struct {
	replies map[string]string
	errs    map[string]error
	delays  map[string]time.Duration

	mu    sync.Mutex
	calls []string
}

func (s *script) generator() caseflow.Generator {
	return &caseflow.HandleFunc{
		ModelName: "script",
		Handle: func(ctx context.Context, prompt *caseflow.Prompt) (string, error) {
			key := s.key(ctx, prompt)
			s.mu.Lock()
			s.calls = append(s.calls, key)
			s.mu.Unlock()
			if d := s.delays[key]; d > 0 {
				select {
				case <-time.After(d):
				case <-ctx.Done():
					return "", ctx.Err()
				}
			}
			if err := s.errs[key]; err != nil {
				return "", err
			}
			reply, ok := s.replies[key]
			if !ok {
				return "", fmt.Errorf("no scripted reply for %s", key)
			}
			return reply, nil
		},
	}
}

func (s *script) key(ctx context.Context, prompt *caseflow.Prompt) string {
	sc, ok := graph.FromStageContext(ctx)
	if !ok {
		return "unknown"
	}
	switch sc.Name {
	case StageInvestigate:
		return sc.Name + ":" + sc.Branch
	case StageValidate:
		for _, category := range Categories {
			if strings.Contains(prompt.User, fmt.Sprintf("%q category", category)) {
				return sc.Name + ":" + category
			}
		}
	}
	return sc.Name
}

func (s *script) called() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.calls...)
}

func newTestWorkflow(t *testing.T, s *script, opts ...Option) *graph.Executor {
	t.Helper()
	opts = append([]Option{
		WithClock(func() time.Time { return fixedNow }),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}, opts...)
	executor, err := NewWorkflow(s.generator(), opts...)
	require.NoError(t, err)
	return executor
}

const resolutionReply = `RESOLUTION:
Per Downside Up Protocol DU-117, keep a portal log and avoid the lab at dusk.

ESCALATION: NO

EFFECTIVENESS: HIGH`

func TestWorkflowSingleCategory(t *testing.T) {
	s := &script{replies: map[string]string{
		"intake":             "portal",
		"validate:portal":    "VALID\nNames the lab and the daily timing drift.",
		"investigate:portal": "EVIDENCE GATHERED:\n- openings drift by 12 minutes a day",
		"resolve":            resolutionReply,
		"close":              "SATISFIED\nThe log answers the question.",
	}}
	executor := newTestWorkflow(t, s)

	c, err := executor.Run(context.Background(), "case-a", Initial(Samples[0]))
	require.NoError(t, err)
	view := c.Final.View()

	require.Equal(t, graph.StatusTerminal, c.Status)
	require.Equal(t, StatusClosed, c.Outcome)
	require.Equal(t, OutcomeSuccess, OutcomeOf(c))
	require.Equal(t, []string{"intake", "validation", "investigation:portal", "resolution", "closure"}, view.Strings(FieldWorkflowPath))
	require.Equal(t, []string{StageIntake, StageValidate, StageInvestigate, StageResolve, StageClose}, c.Stages())
	require.Equal(t, []string{"portal"}, c.Trace[2].Branches)
	require.Equal(t, "Per Downside Up Protocol DU-117, keep a portal log and avoid the lab at dusk.", view.String(FieldResolution))
	require.Equal(t, EffectivenessHigh, view.String(FieldEffectivenessRating))
	require.False(t, view.Bool(FieldRequiresEscalation))
	require.True(t, view.Bool(FieldSatisfactionVerified))
	require.False(t, view.Bool(FieldFollowUpRequired))
	require.Equal(t, fixedNow.Format(time.RFC3339), view.String(FieldClosedAt))
	require.Contains(t, view.String(FieldClosureLog), "Workflow Path: intake -> validation -> investigation:portal -> resolution -> closure")
	require.Contains(t, view.String(FieldClosureLog), "Outcome: Satisfied")
}

func TestWorkflowMultiCategoryMergeOrder(t *testing.T) {
	s := &script{
		replies: map[string]string{
			"intake":                    "Monster, environmental, monster",
			"validate:monster":          "VALID\nDescribes pack behavior.",
			"validate:environmental":    "VALID\nMentions power lines.",
			"investigate:monster":       "pack hunts near substations",
			"investigate:environmental": "lines hum before sightings",
			"resolve":                   "RESOLUTION:\nHand over to Creature Containment Division.\nESCALATION: YES\nEFFECTIVENESS: LOW",
			"close":                     "UNSATISFIED\nThe customer wanted an explanation.",
		},
		// the first branch finishes last
		delays: map[string]time.Duration{"investigate:monster": 30 * time.Millisecond},
	}
	executor := newTestWorkflow(t, s)

	c, err := executor.Run(context.Background(), "case-b", Initial(Samples[3]))
	require.NoError(t, err)
	view := c.Final.View()

	require.Equal(t, StatusClosed, c.Outcome)
	require.Equal(t, []string{"monster", "environmental"}, view.Strings(FieldCategories))
	require.Equal(t, []string{"intake", "validation", "investigation:monster", "investigation:environmental", "resolution", "closure"},
		view.Strings(FieldWorkflowPath))
	require.Equal(t, map[string]string{
		"monster":       "pack hunts near substations",
		"environmental": "lines hum before sightings",
	}, view.StringMap(FieldInvestigationFindings))
	require.Equal(t, []string{"monster", "environmental"}, c.Trace[2].Branches)
	require.True(t, view.Bool(FieldRequiresEscalation))
	require.False(t, view.Bool(FieldSatisfactionVerified))
	require.True(t, view.Bool(FieldFollowUpRequired))
	require.Contains(t, view.String(FieldClosureLog), "Follow-up Required: Yes - 30-day checkpoint scheduled")
}

func TestWorkflowRejected(t *testing.T) {
	s := &script{replies: map[string]string{
		"intake":          "portal",
		"validate:portal": "REJECT\nNo location or timing given.",
	}}
	executor := newTestWorkflow(t, s)

	c, err := executor.Run(context.Background(), "case-c", Initial("portals are bad"))
	require.NoError(t, err)
	view := c.Final.View()

	require.Equal(t, StatusRejected, c.Outcome)
	require.Equal(t, OutcomeRejected, OutcomeOf(c))
	require.Equal(t, []string{"intake", "validation", "closure"}, view.Strings(FieldWorkflowPath))
	require.Equal(t, []string{StageIntake, StageValidate, StageClose}, c.Stages())
	results, ok := graph.Lookup[map[string]ValidationResult](view, FieldValidationResults)
	require.True(t, ok)
	require.Equal(t, ValidationResult{Status: VerdictRejected, Message: "No location or timing given."}, results["portal"])
	require.Contains(t, view.String(FieldClosureLog), "Outcome: rejected")
	require.NotContains(t, s.called(), "close")
}

func TestWorkflowEscalatedWithoutRule(t *testing.T) {
	s := &script{replies: map[string]string{"intake": "bananas"}}
	executor := newTestWorkflow(t, s)

	c, err := executor.Run(context.Background(), "case-d", Initial(Samples[4]))
	require.NoError(t, err)
	view := c.Final.View()

	require.Equal(t, StatusEscalated, c.Outcome)
	require.Equal(t, OutcomeRejected, OutcomeOf(c))
	require.Equal(t, []string{CategoryOther}, view.Strings(FieldCategories))
	require.Equal(t, []string{"intake"}, s.called())
	results, _ := graph.Lookup[map[string]ValidationResult](view, FieldValidationResults)
	require.Equal(t, VerdictEscalate, results[CategoryOther].Status)
}

func TestWorkflowBranchFailure(t *testing.T) {
	s := &script{
		replies: map[string]string{
			"intake":              "monster, psychic",
			"validate:monster":    "VALID\nok",
			"validate:psychic":    "VALID\nok",
			"investigate:monster": "tracks found",
			"resolve":             resolutionReply,
			"close":               "SATISFIED\nok",
		},
		errs: map[string]error{"investigate:psychic": errors.New("provider unavailable")},
	}
	executor := newTestWorkflow(t, s)

	c, err := executor.Run(context.Background(), "case-e", Initial(Samples[2]))
	require.NoError(t, err)
	view := c.Final.View()

	require.Equal(t, StatusClosed, c.Outcome)
	require.Equal(t, map[string]string{"monster": "tracks found"}, view.StringMap(FieldInvestigationFindings))
	require.Equal(t, []string{"psychic"}, c.Trace[2].Failed)
	branchErrors := view.StringMap(graph.FieldBranchErrors)
	require.Contains(t, branchErrors["psychic"], "provider unavailable")
	require.Contains(t, RenderTrace(c), "psychic:")
}

func TestWorkflowAllBranchesFail(t *testing.T) {
	s := &script{
		replies: map[string]string{
			"intake":          "portal",
			"validate:portal": "VALID\nok",
		},
		errs: map[string]error{"investigate:portal": errors.New("timeout")},
	}
	executor := newTestWorkflow(t, s)

	c, err := executor.Run(context.Background(), "case-f", Initial(Samples[0]))
	require.NoError(t, err)
	view := c.Final.View()

	require.Equal(t, StatusClosureBlocked, c.Outcome)
	require.Equal(t, OutcomeBlocked, OutcomeOf(c))
	require.Equal(t, []string{"intake", "validation", "resolution_blocked", "closure_blocked"}, view.Strings(FieldWorkflowPath))
	require.Equal(t, "", view.String(FieldResolution))
}

func TestWorkflowEmptyComplaint(t *testing.T) {
	s := &script{}
	executor := newTestWorkflow(t, s)

	c, err := executor.Run(context.Background(), "case-g", Initial("   "))
	require.NoError(t, err)
	view := c.Final.View()

	require.Equal(t, StatusClosureBlocked, c.Outcome)
	require.Equal(t, OutcomeBlocked, OutcomeOf(c))
	require.Equal(t, []string{"intake_blocked", "validation_blocked", "closure_blocked"}, view.Strings(FieldWorkflowPath))
	require.Empty(t, s.called())
}

func TestWorkflowEscalationNeedsEscalatableCategory(t *testing.T) {
	s := &script{replies: map[string]string{
		"intake":             "portal",
		"validate:portal":    "VALID\nok",
		"investigate:portal": "drift",
		"resolve":            "RESOLUTION: Recalibrate the gate.\nESCALATION: YES\nEFFECTIVENESS: MEDIUM",
		"close":              "SATISFIED\nok",
	}}
	executor := newTestWorkflow(t, s)

	c, err := executor.Run(context.Background(), "case-h", Initial(Samples[0]))
	require.NoError(t, err)
	view := c.Final.View()
	require.False(t, view.Bool(FieldRequiresEscalation))
	require.Equal(t, "Recalibrate the gate.", view.String(FieldResolution))
}

func TestWorkflowStageError(t *testing.T) {
	s := &script{errs: map[string]error{"intake": errors.New("quota exceeded")}}
	executor := newTestWorkflow(t, s)

	c, err := executor.Run(context.Background(), "case-i", Initial(Samples[0]))
	require.Error(t, err)
	var he *graph.HandlerError
	require.ErrorAs(t, err, &he)
	require.Equal(t, StageIntake, he.Stage)
	require.Equal(t, graph.OutcomeError, c.Outcome)
	require.Equal(t, OutcomeError, OutcomeOf(c))
}

func TestWorkflowEmptyGeneratorReply(t *testing.T) {
	s := &script{replies: map[string]string{"intake": "  \n"}}
	executor := newTestWorkflow(t, s)

	_, err := executor.Run(context.Background(), "case-j", Initial(Samples[0]))
	require.ErrorIs(t, err, caseflow.ErrEmptyResponse)
}

func TestWorkflowReproducible(t *testing.T) {
	replies := map[string]string{
		"intake":                    "environmental, psychic",
		"validate:environmental":    "VALID\nok",
		"validate:psychic":          "REJECT\ntoo vague",
		"investigate:environmental": "storm cells",
		"resolve":                   resolutionReply,
		"close":                     "SATISFIED\nok",
	}
	var finals []map[string]any
	for range 3 {
		executor := newTestWorkflow(t, &script{replies: replies})
		c, err := executor.Run(context.Background(), "case-k", Initial(Samples[3]))
		require.NoError(t, err)
		finals = append(finals, c.Final.Map())
	}
	require.Equal(t, finals[0], finals[1])
	require.Equal(t, finals[1], finals[2])
}

func TestWorkflowMiddleware(t *testing.T) {
	var seen []string
	var mu sync.Mutex
	record := func(next caseflow.Generator) caseflow.Generator {
		return &caseflow.HandleFunc{
			ModelName: next.Name(),
			Handle: func(ctx context.Context, prompt *caseflow.Prompt) (string, error) {
				mu.Lock()
				seen = append(seen, "call")
				mu.Unlock()
				return next.Generate(ctx, prompt)
			},
		}
	}
	s := &script{replies: map[string]string{"intake": "other"}}
	executor := newTestWorkflow(t, s, WithMiddleware(record))

	_, err := executor.Run(context.Background(), "case-l", Initial(Samples[4]))
	require.NoError(t, err)
	require.Equal(t, []string{"call"}, seen)
}

func TestWorkflowStructure(t *testing.T) {
	executor := newTestWorkflow(t, &script{})
	require.Equal(t, StageIntake, executor.EntryPoint())
	require.Equal(t, StageClose, executor.FinishPoint())
	require.Equal(t, []string{StageIntake, StageValidate, StageInvestigate, StageResolve, StageClose}, executor.Stages())
	require.Equal(t, []graph.EdgeInfo{
		{From: StageIntake, To: StageValidate, Kind: "edge"},
		{From: StageValidate, To: StageInvestigate, Kind: "route"},
		{From: StageValidate, To: StageClose, Kind: "fallback"},
		{From: StageValidate, To: StageResolve, Kind: "join"},
		{From: StageResolve, To: StageClose, Kind: "edge"},
	}, executor.Edges())
}
