package caseflow

import "errors"

var (
	// ErrCaseNotFound is returned by a CaseStore when no record has the given id.
	ErrCaseNotFound = errors.New("case not found")
	// ErrEmptyResponse is returned by a Generator whose provider answered with no text.
	ErrEmptyResponse = errors.New("generator returned an empty response")
	// ErrEmptyInput is returned when a case is submitted without any text.
	ErrEmptyInput = errors.New("case input is empty")
)
