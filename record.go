package caseflow

import (
	"context"
	"maps"
	"slices"
	"time"
)

// RecordStatus is the processing status of a stored case.
type RecordStatus string

const (
	RecordSubmitted  RecordStatus = "submitted"
	RecordProcessing RecordStatus = "processing"
	RecordClosed     RecordStatus = "closed"
	RecordError      RecordStatus = "error"
)

// Record is the persisted form of a case.
type Record struct {
	ID                    string            `json:"id"`
	Complaint             string            `json:"complaint"`
	Status                RecordStatus      `json:"status"`
	Outcome               string            `json:"outcome,omitempty"`
	Categories            []string          `json:"categories,omitempty"`
	InvestigationFindings map[string]string `json:"investigation_findings,omitempty"`
	Resolution            string            `json:"resolution,omitempty"`
	ClosureLog            string            `json:"closure_log,omitempty"`
	WorkflowPath          []string          `json:"workflow_path,omitempty"`
	State                 map[string]any    `json:"state,omitempty"`
	Error                 string            `json:"error,omitempty"`
	CreatedAt             time.Time         `json:"created_at"`
	UpdatedAt             time.Time         `json:"updated_at"`
}

// CaseStore persists case records. It is used by the process that hosts the
// executor, never by the executor itself.
type CaseStore interface {
	Create(ctx context.Context, complaint string) (*Record, error)
	MarkRunning(ctx context.Context, id string) error
	SaveResult(ctx context.Context, id string, final map[string]any) error
	MarkError(ctx context.Context, id string, reason string) error
	Get(ctx context.Context, id string) (*Record, error)
	List(ctx context.Context) ([]*Record, error)
}

// Clone returns a copy of the record that shares no mutable data.
func (r *Record) Clone() *Record {
	out := *r
	out.Categories = slices.Clone(r.Categories)
	out.InvestigationFindings = maps.Clone(r.InvestigationFindings)
	out.WorkflowPath = slices.Clone(r.WorkflowPath)
	out.State = maps.Clone(r.State)
	return &out
}

// ApplyResult copies the well-known fields of a final workflow state onto the
// record and marks it closed.
func (r *Record) ApplyResult(final map[string]any, now time.Time) {
	r.Status = RecordClosed
	r.Outcome = stringOf(final["status"])
	r.Categories = stringsOf(final["categories"])
	r.InvestigationFindings = stringMapOf(final["investigation_findings"])
	r.Resolution = stringOf(final["resolution"])
	r.ClosureLog = stringOf(final["closure_log"])
	r.WorkflowPath = stringsOf(final["workflow_path"])
	r.State = maps.Clone(final)
	r.Error = ""
	r.UpdatedAt = now
}

// SortRecords orders records newest first, breaking ties by id.
func SortRecords(records []*Record) {
	slices.SortFunc(records, func(a, b *Record) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
}

func stringOf(v any) string {
	s, _ := v.(string)
	return s
}

// stringsOf accepts both typed slices and the []any produced by JSON decoding.
func stringsOf(v any) []string {
	switch vv := v.(type) {
	case []string:
		return slices.Clone(vv)
	case []any:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func stringMapOf(v any) map[string]string {
	switch vv := v.(type) {
	case map[string]string:
		return maps.Clone(vv)
	case map[string]any:
		out := make(map[string]string, len(vv))
		for k, item := range vv {
			if s, ok := item.(string); ok {
				out[k] = s
			}
		}
		return out
	}
	return nil
}
