package graph

import (
	"errors"
	"fmt"
)

// ErrAborted reports a run that was cancelled before it reached the finish stage.
var ErrAborted = errors.New("graph: run aborted")

// ValidationKind classifies a structural defect found while compiling a graph.
type ValidationKind string

const (
	InvalidMissingEntry     ValidationKind = "missing entry"
	InvalidMissingFinish    ValidationKind = "missing finish"
	InvalidUnknownStage     ValidationKind = "unknown stage"
	InvalidDuplicateStage   ValidationKind = "duplicate stage"
	InvalidTransition       ValidationKind = "invalid transition"
	InvalidUndeclaredTarget ValidationKind = "undeclared target"
	InvalidUndeclaredField  ValidationKind = "undeclared field"
	InvalidJoin             ValidationKind = "invalid join"
	InvalidField            ValidationKind = "invalid field"
	InvalidUnreachable      ValidationKind = "unreachable stage"
	InvalidCycle            ValidationKind = "cycle"
)

// ValidationError is returned by Compile when the graph is malformed.
// It is never produced while a case is running.
type ValidationError struct {
	Kind   ValidationKind
	Stage  string
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Stage == "" {
		return fmt.Sprintf("graph: %s: %s", e.Kind, e.Detail)
	}
	return fmt.Sprintf("graph: %s: stage %s: %s", e.Kind, e.Stage, e.Detail)
}

// SchemaViolation reports an update that writes a field the stage did not
// declare, a field unknown to the graph, or a value the field does not accept.
type SchemaViolation struct {
	Stage  string
	Field  string
	Reason string
}

func (e *SchemaViolation) Error() string {
	if e.Stage == "" {
		return fmt.Sprintf("graph: schema violation: field %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("graph: schema violation: stage %s: field %s: %s", e.Stage, e.Field, e.Reason)
}

// RoutingContractViolation reports a routing decision that names a stage the
// conditional edge did not declare, or a fan-out the edge cannot join.
type RoutingContractViolation struct {
	Stage  string
	Target string
	Reason string
}

func (e *RoutingContractViolation) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("graph: routing violation: stage %s: %s", e.Stage, e.Reason)
	}
	return fmt.Sprintf("graph: routing violation: stage %s -> %s: %s", e.Stage, e.Target, e.Reason)
}

// HandlerError wraps a failure returned (or raised) by a stage handler or router.
// Branch is empty for sequential stages.
type HandlerError struct {
	Stage  string
	Branch string
	Err    error
}

func (e *HandlerError) Error() string {
	if e.Branch == "" {
		return fmt.Sprintf("graph: node %s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("graph: node %s [%s]: %v", e.Stage, e.Branch, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}
