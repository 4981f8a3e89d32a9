package complaint

import (
	"github.com/go-kratos/caseflow/graph"
	"github.com/google/jsonschema-go/jsonschema"
)

// State fields of the complaint workflow. The names match the persisted record.
const (
	FieldComplaint             = "complaint"
	FieldCategories            = "categories"
	FieldValidationResults     = "validation_results"
	FieldValidCategories       = "valid_categories"
	FieldInvestigationFindings = "investigation_findings"
	FieldResolution            = "resolution"
	FieldEffectivenessRating   = "effectiveness_rating"
	FieldRequiresEscalation    = "requires_escalation"
	FieldClosureLog            = "closure_log"
	FieldSatisfactionVerified  = "satisfaction_verified"
	FieldFollowUpRequired      = "follow_up_required"
	FieldClosedAt              = "closed_at"
	FieldWorkflowPath          = "workflow_path"
	FieldStatus                = "status"

	// fieldCategory is only present in investigation branch payloads.
	fieldCategory = "category"
)

// Stage names.
const (
	StageIntake      = "intake"
	StageValidate    = "validate"
	StageInvestigate = "investigate"
	StageResolve     = "resolve"
	StageClose       = "close"
)

// Complaint categories.
const (
	CategoryPortal        = "portal"
	CategoryMonster       = "monster"
	CategoryPsychic       = "psychic"
	CategoryEnvironmental = "environmental"
	CategoryOther         = "other"
)

// Categories lists every known category in prompt order.
var Categories = []string{CategoryPortal, CategoryMonster, CategoryPsychic, CategoryEnvironmental, CategoryOther}

// escalatable categories may be handed to a specialised team by the resolution.
var escalatable = map[string]bool{CategoryEnvironmental: true, CategoryMonster: true}

// Workflow statuses written to FieldStatus.
const (
	StatusNew                 = "new"
	StatusIntakeBlocked       = "intake_blocked"
	StatusValidated           = "validated"
	StatusEscalated           = "escalated"
	StatusRejected            = "rejected"
	StatusResolutionBlocked   = "resolution_blocked"
	StatusResolved            = "resolved"
	StatusEscalatedResolution = "escalated_resolution"
	StatusClosureBlocked      = "closure_blocked"
	StatusClosed              = "closed"
)

// Per-category validation verdicts.
const (
	VerdictValid    = "valid"
	VerdictRejected = "rejected"
	VerdictEscalate = "escalate"
)

// ValidationResult is the verdict for one category.
type ValidationResult struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Effectiveness ratings.
const (
	EffectivenessHigh   = "high"
	EffectivenessMedium = "medium"
	EffectivenessLow    = "low"
)

func stringSchema() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "string"}
}

func boolSchema() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "boolean"}
}

func stringListSchema() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "array", Items: stringSchema()}
}

// Fields returns the field table of the workflow.
func Fields() []graph.Field {
	return []graph.Field{
		{Name: FieldComplaint, Schema: stringSchema()},
		{Name: FieldCategories, Schema: stringListSchema()},
		{Name: FieldValidationResults, Policy: graph.UnionMerge, Schema: &jsonschema.Schema{Type: "object"}},
		{Name: FieldValidCategories, Schema: stringListSchema()},
		{Name: FieldInvestigationFindings, Policy: graph.UnionMerge, Schema: &jsonschema.Schema{
			Type:                 "object",
			AdditionalProperties: stringSchema(),
		}},
		{Name: FieldResolution, Schema: stringSchema()},
		{Name: FieldEffectivenessRating, Schema: &jsonschema.Schema{
			Type: "string",
			Enum: []any{EffectivenessHigh, EffectivenessMedium, EffectivenessLow},
		}},
		{Name: FieldRequiresEscalation, Schema: boolSchema()},
		{Name: FieldClosureLog, Schema: stringSchema()},
		{Name: FieldSatisfactionVerified, Schema: boolSchema()},
		{Name: FieldFollowUpRequired, Schema: boolSchema()},
		{Name: FieldClosedAt, Schema: stringSchema()},
		{Name: FieldWorkflowPath, Policy: graph.Append, Schema: stringListSchema()},
		{Name: FieldStatus, Schema: stringSchema()},
	}
}
