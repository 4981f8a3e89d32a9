package complaint

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/go-kratos/caseflow/graph"
)

var stepLabels = map[string]string{
	stepIntake:            "Intake",
	stepIntakeBlocked:     "Intake (blocked)",
	stepValidation:        "Validation",
	stepValidationBlocked: "Validation (blocked)",
	stepResolution:        "Resolution",
	stepResolutionBlocked: "Resolution (blocked)",
	stepClosure:           "Closure",
	stepClosureBlocked:    "Closure (blocked)",
}

var statusIcons = map[string]string{
	StatusClosed:              "[OK]",
	StatusResolved:            "[OK]",
	StatusEscalated:           "[!!]",
	StatusEscalatedResolution: "[!!]",
	StatusRejected:            "[X]",
	StatusIntakeBlocked:       "[X]",
	StatusResolutionBlocked:   "[X]",
	StatusClosureBlocked:      "[X]",
}

const divider = "===================================================="

// RenderTrace draws the workflow path of a finished case with the details of
// each step, the failed investigation branches and the final status.
func RenderTrace(c *graph.Case) string {
	view := c.Final.View()
	path := view.Strings(FieldWorkflowPath)
	if len(path) == 0 {
		return "No workflow path recorded."
	}
	lines := []string{divider, "  WORKFLOW PATH", divider}
	for i, step := range path {
		if i > 0 {
			lines = append(lines, "      |", "      v")
		}
		lines = append(lines, fmt.Sprintf("  --> %s%s", stepLabel(step), stepDetail(view, step)))
	}
	if failed := view.StringMap(graph.FieldBranchErrors); len(failed) > 0 {
		lines = append(lines, "", "  Failed branches:")
		for _, key := range slices.Sorted(maps.Keys(failed)) {
			lines = append(lines, fmt.Sprintf("    %s: %s", key, failed[key]))
		}
	}
	status := view.String(FieldStatus)
	if status == "" {
		status = "unknown"
	}
	icon, ok := statusIcons[status]
	if !ok {
		icon = "[?]"
	}
	lines = append(lines, "", fmt.Sprintf("  Result: %s %s", icon, status))
	if closedAt := view.String(FieldClosedAt); closedAt != "" {
		lines = append(lines, "  Closed at: "+closedAt)
	}
	if c.Err != nil {
		lines = append(lines, "  Error: "+c.Err.Error())
	}
	lines = append(lines, divider)
	return strings.Join(lines, "\n")
}

// LogTrace logs every step of the workflow path at info level.
func LogTrace(logger *slog.Logger, c *graph.Case) {
	view := c.Final.View()
	for i, step := range view.Strings(FieldWorkflowPath) {
		logger.Info("workflow step", "case", c.ID, "step", i+1, "label", stepLabel(step), "detail", strings.TrimSpace(stepDetail(view, step)))
	}
	logger.Info("workflow finished", "case", c.ID, "status", view.String(FieldStatus), "outcome", c.Outcome)
}

func stepLabel(step string) string {
	if category, ok := strings.CutPrefix(step, investigationPrefix); ok {
		return fmt.Sprintf("Investigation [%s]", category)
	}
	if label, ok := stepLabels[step]; ok {
		return label
	}
	return step
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func stepDetail(view graph.View, step string) string {
	if category, ok := strings.CutPrefix(step, investigationPrefix); ok {
		_, found := view.StringMap(FieldInvestigationFindings)[category]
		if found {
			return "  findings=yes"
		}
		return "  findings=none"
	}
	switch step {
	case stepIntake:
		return fmt.Sprintf("  categories=%q", strings.Join(view.Strings(FieldCategories), ","))
	case stepValidation:
		return fmt.Sprintf("  valid=%q", strings.Join(view.Strings(FieldValidCategories), ","))
	case stepResolution:
		return fmt.Sprintf("  effectiveness=%s  escalation=%s",
			view.String(FieldEffectivenessRating), yesNo(view.Bool(FieldRequiresEscalation)))
	case stepClosure:
		return fmt.Sprintf("  satisfied=%s  follow_up=%s",
			yesNo(view.Bool(FieldSatisfactionVerified)), yesNo(view.Bool(FieldFollowUpRequired)))
	}
	return ""
}
