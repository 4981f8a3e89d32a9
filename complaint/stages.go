package complaint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/go-kratos/caseflow"
	"github.com/go-kratos/caseflow/graph"
)

// Workflow path markers written by the stages.
const (
	stepIntake            = "intake"
	stepIntakeBlocked     = "intake_blocked"
	stepValidation        = "validation"
	stepValidationBlocked = "validation_blocked"
	stepInvestigation     = "investigation"
	stepResolution        = "resolution"
	stepResolutionBlocked = "resolution_blocked"
	stepClosure           = "closure"
	stepClosureBlocked    = "closure_blocked"
	investigationPrefix   = stepInvestigation + ":"
)

// stages holds the collaborators shared by the stage handlers.
type stages struct {
	gen    caseflow.Generator
	now    func() time.Time
	logger *slog.Logger
}

// generate renders the user template and asks the generator for a reply.
// A blank reply is an error.
func (s *stages) generate(ctx context.Context, tmpl string, params map[string]any) (string, error) {
	prompt, err := caseflow.NewPromptTemplate().
		System(systemPrompt).
		User(tmpl, params).
		Build()
	if err != nil {
		return "", fmt.Errorf("build prompt: %w", err)
	}
	text, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", caseflow.ErrEmptyResponse
	}
	return text, nil
}

func (s *stages) intake(ctx context.Context, view graph.View) (graph.Update, error) {
	complaint := strings.TrimSpace(view.String(FieldComplaint))
	if complaint == "" {
		s.logger.WarnContext(ctx, "intake blocked: empty complaint")
		return graph.Update{
			FieldCategories:   []string{},
			FieldWorkflowPath: []string{stepIntakeBlocked},
			FieldStatus:       StatusIntakeBlocked,
		}, nil
	}
	text, err := s.generate(ctx, intakePrompt, map[string]any{"complaint": complaint})
	if err != nil {
		return nil, err
	}
	categories := parseCategories(text)
	s.logger.InfoContext(ctx, "complaint categorized", "categories", categories)
	status := view.String(FieldStatus)
	if status == "" {
		status = StatusNew
	}
	return graph.Update{
		FieldCategories:   categories,
		FieldWorkflowPath: []string{stepIntake},
		FieldStatus:       status,
	}, nil
}

func (s *stages) validate(ctx context.Context, view graph.View) (graph.Update, error) {
	categories := view.Strings(FieldCategories)
	if len(categories) == 0 {
		s.logger.WarnContext(ctx, "validation blocked: no categories")
		return graph.Update{
			FieldValidCategories: []string{},
			FieldWorkflowPath:    []string{stepValidationBlocked},
		}, nil
	}
	complaint := view.String(FieldComplaint)
	results := make(map[string]ValidationResult, len(categories))
	valid := []string{}
	escalated := 0
	for _, category := range categories {
		rule, ok := validationRules[category]
		if !ok {
			results[category] = ValidationResult{
				Status:  VerdictEscalate,
				Message: "no validation rule for this category; escalated for manual review",
			}
			escalated++
			continue
		}
		text, err := s.generate(ctx, validationPrompt, map[string]any{
			"category":  category,
			"rule":      rule,
			"complaint": complaint,
		})
		if err != nil {
			return nil, fmt.Errorf("validate %s: %w", category, err)
		}
		ok, reason := parseVerdict(text, "VALID")
		if !ok {
			results[category] = ValidationResult{Status: VerdictRejected, Message: reason}
			continue
		}
		results[category] = ValidationResult{Status: VerdictValid, Message: reason}
		valid = append(valid, category)
	}
	status := StatusRejected
	switch {
	case len(valid) > 0:
		status = StatusValidated
	case escalated > 0:
		status = StatusEscalated
	}
	s.logger.InfoContext(ctx, "complaint validated", "status", status, "valid", valid)
	return graph.Update{
		FieldValidationResults: results,
		FieldValidCategories:   valid,
		FieldWorkflowPath:      []string{stepValidation},
		FieldStatus:            status,
	}, nil
}

// routeInvestigations opens one investigation branch per valid category, in
// category order. With no valid category the edge falls back to closing.
func routeInvestigations(_ context.Context, view graph.View) (graph.Decision, error) {
	valid := view.Strings(FieldValidCategories)
	branches := make([]graph.Branch, 0, len(valid))
	for _, category := range valid {
		branches = append(branches, graph.Branch{
			Key:     category,
			Target:  StageInvestigate,
			Payload: map[string]any{fieldCategory: category},
		})
	}
	return graph.FanOut(branches...), nil
}

func (s *stages) investigate(ctx context.Context, view graph.View) (graph.Update, error) {
	category := view.String(fieldCategory)
	if category == "" {
		return nil, errors.New("investigate: branch payload has no category")
	}
	protocol, ok := investigationProtocols[category]
	if !ok {
		protocol = "gather all relevant evidence and document the findings."
	}
	text, err := s.generate(ctx, investigationPrompt, map[string]any{
		"category":  category,
		"protocol":  protocol,
		"complaint": view.String(FieldComplaint),
	})
	if err != nil {
		return nil, err
	}
	return graph.Update{
		FieldInvestigationFindings: map[string]string{category: text},
		FieldWorkflowPath:          []string{investigationPrefix + category},
	}, nil
}

type finding struct {
	Category string
	Findings string
}

// investigated returns the findings in valid-category order, followed by any
// other category in name order.
func investigated(view graph.View) []finding {
	findings := view.StringMap(FieldInvestigationFindings)
	out := make([]finding, 0, len(findings))
	for _, category := range view.Strings(FieldValidCategories) {
		if text, ok := findings[category]; ok {
			out = append(out, finding{Category: category, Findings: text})
			delete(findings, category)
		}
	}
	rest := make([]string, 0, len(findings))
	for category := range findings {
		rest = append(rest, category)
	}
	slices.Sort(rest)
	for _, category := range rest {
		out = append(out, finding{Category: category, Findings: findings[category]})
	}
	return out
}

func (s *stages) resolve(ctx context.Context, view graph.View) (graph.Update, error) {
	findings := investigated(view)
	if len(findings) == 0 {
		s.logger.WarnContext(ctx, "resolution blocked: no investigation findings")
		return graph.Update{
			FieldResolution:         "",
			FieldRequiresEscalation: false,
			FieldWorkflowPath:       []string{stepResolutionBlocked},
			FieldStatus:             StatusResolutionBlocked,
		}, nil
	}
	names := make([]string, 0, len(findings))
	for _, f := range findings {
		names = append(names, f.Category)
	}
	text, err := s.generate(ctx, resolutionPrompt, map[string]any{
		"categories": strings.Join(names, ", "),
		"findings":   findings,
		"complaint":  view.String(FieldComplaint),
	})
	if err != nil {
		return nil, err
	}
	report := parseResolution(text)
	escalate := report.Escalate && slices.ContainsFunc(names, func(c string) bool { return escalatable[c] })
	status := StatusResolved
	if escalate {
		status = StatusEscalatedResolution
	}
	s.logger.InfoContext(ctx, "complaint resolved", "status", status, "effectiveness", report.Effectiveness)
	return graph.Update{
		FieldResolution:          report.Resolution,
		FieldEffectivenessRating: report.Effectiveness,
		FieldRequiresEscalation:  escalate,
		FieldWorkflowPath:        []string{stepResolution},
		FieldStatus:              status,
	}, nil
}

// missingSteps lists the steps a case must have passed before it can close.
func missingSteps(path []string) []string {
	var missing []string
	for _, step := range []string{stepIntake, stepValidation} {
		if !slices.Contains(path, step) {
			missing = append(missing, step)
		}
	}
	if !slices.ContainsFunc(path, func(p string) bool { return strings.HasPrefix(p, investigationPrefix) }) {
		missing = append(missing, stepInvestigation)
	}
	if !slices.Contains(path, stepResolution) {
		missing = append(missing, stepResolution)
	}
	return missing
}

func (s *stages) close(ctx context.Context, view graph.View) (graph.Update, error) {
	path := view.Strings(FieldWorkflowPath)
	status := view.String(FieldStatus)
	if len(view.Strings(FieldValidCategories)) == 0 {
		if status != StatusRejected && status != StatusEscalated {
			s.logger.WarnContext(ctx, "closure blocked: nothing was validated", "status", status)
			return closureBlocked(), nil
		}
		now := s.now().Format(time.RFC3339)
		log := closureLog{
			Timestamp:  now,
			Categories: view.Strings(FieldCategories),
			Outcome:    status,
			Path:       append(path, stepClosure),
		}
		return graph.Update{
			FieldClosureLog:           log.String(),
			FieldSatisfactionVerified: false,
			FieldFollowUpRequired:     false,
			FieldClosedAt:             now,
			FieldWorkflowPath:         []string{stepClosure},
			FieldStatus:               status,
		}, nil
	}
	if missing := missingSteps(path); len(missing) > 0 {
		s.logger.WarnContext(ctx, "closure blocked: missing steps", "missing", missing)
		return closureBlocked(), nil
	}
	resolution := view.String(FieldResolution)
	if resolution == "" {
		s.logger.WarnContext(ctx, "closure blocked: no resolution was applied")
		return closureBlocked(), nil
	}
	categories := view.Strings(FieldValidCategories)
	text, err := s.generate(ctx, satisfactionPrompt, map[string]any{
		"complaint":  view.String(FieldComplaint),
		"categories": strings.Join(categories, ", "),
		"resolution": resolution,
	})
	if err != nil {
		return nil, err
	}
	satisfied, reason := parseVerdict(text, "SATISFIED")
	effectiveness := view.String(FieldEffectivenessRating)
	if effectiveness == "" {
		effectiveness = EffectivenessMedium
	}
	followUp := effectiveness == EffectivenessLow
	now := s.now().Format(time.RFC3339)
	log := closureLog{
		Timestamp:     now,
		Categories:    categories,
		Resolution:    resolution,
		Outcome:       "Unsatisfied",
		Detail:        reason,
		Effectiveness: effectiveness,
		FollowUp:      followUp,
		Path:          append(path, stepClosure),
		Verified:      true,
	}
	if satisfied {
		log.Outcome = "Satisfied"
	}
	s.logger.InfoContext(ctx, "complaint closed", "satisfied", satisfied, "follow_up", followUp)
	return graph.Update{
		FieldClosureLog:           log.String(),
		FieldSatisfactionVerified: satisfied,
		FieldFollowUpRequired:     followUp,
		FieldClosedAt:             now,
		FieldWorkflowPath:         []string{stepClosure},
		FieldStatus:               StatusClosed,
	}, nil
}

func closureBlocked() graph.Update {
	return graph.Update{
		FieldClosureLog:           "",
		FieldSatisfactionVerified: false,
		FieldFollowUpRequired:     false,
		FieldClosedAt:             "",
		FieldWorkflowPath:         []string{stepClosureBlocked},
		FieldStatus:               StatusClosureBlocked,
	}
}

type closureLog struct {
	Timestamp     string
	Categories    []string
	Resolution    string
	Outcome       string
	Detail        string
	Effectiveness string
	FollowUp      bool
	Path          []string
	Verified      bool
}

func (l closureLog) String() string {
	var b strings.Builder
	b.WriteString("=== COMPLAINT CLOSURE LOG ===\n")
	fmt.Fprintf(&b, "Timestamp: %s\n", l.Timestamp)
	fmt.Fprintf(&b, "Categories: %s\n", strings.Join(l.Categories, ", "))
	if l.Verified {
		fmt.Fprintf(&b, "Resolution: %s\n", l.Resolution)
	}
	fmt.Fprintf(&b, "Outcome: %s\n", l.Outcome)
	if l.Verified {
		fmt.Fprintf(&b, "Satisfaction Detail: %s\n", l.Detail)
		fmt.Fprintf(&b, "Effectiveness Rating: %s\n", l.Effectiveness)
		followUp := "No"
		if l.FollowUp {
			followUp = "Yes - 30-day checkpoint scheduled"
		}
		fmt.Fprintf(&b, "Follow-up Required: %s\n", followUp)
	}
	fmt.Fprintf(&b, "Workflow Path: %s\n", strings.Join(l.Path, " -> "))
	b.WriteString("=============================")
	return b.String()
}
