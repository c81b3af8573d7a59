package engine

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes run-fatal evaluation errors.
type ErrorCode string

const (
	// ErrCodeUnknownPhase indicates the selected phase is not declared.
	ErrCodeUnknownPhase ErrorCode = "UNKNOWN_PHASE"

	// ErrCodeUnknownParameter indicates a caller binding names a
	// variable the schema never declares.
	ErrCodeUnknownParameter ErrorCode = "UNKNOWN_PARAMETER"

	// ErrCodeLetEval indicates a variable binding expression failed.
	ErrCodeLetEval ErrorCode = "LET_EVAL"

	// ErrCodeContextEval indicates a rule context expression failed or
	// did not select nodes.
	ErrCodeContextEval ErrorCode = "CONTEXT_EVAL"

	// ErrCodeTestEval indicates an assertion test expression failed.
	ErrCodeTestEval ErrorCode = "TEST_EVAL"

	// ErrCodeMessageEval indicates a malformed placeholder expression in
	// a diagnostic message. Distinct from an unbound placeholder, which
	// is recoverable.
	ErrCodeMessageEval ErrorCode = "MESSAGE_EVAL"
)

// EvaluationError is a run-fatal evaluation failure. It carries enough
// context to locate the offending expression in the schema. A schema
// bug never masquerades as a document validity failure: these propagate
// to the caller instead of producing failing firing records.
type EvaluationError struct {
	Code        ErrorCode
	PatternID   string
	RuleID      string
	AssertionID string
	Expression  string
	Message     string
	Err         error
}

// Error implements the error interface.
func (e *EvaluationError) Error() string {
	where := ""
	if e.PatternID != "" {
		where = fmt.Sprintf(" (pattern=%s", e.PatternID)
		if e.RuleID != "" {
			where += fmt.Sprintf(", rule=%s", e.RuleID)
		}
		where += ")"
	}
	if e.Expression != "" {
		return fmt.Sprintf("%s: %s%s: %q", e.Code, e.Message, where, e.Expression)
	}
	return fmt.Sprintf("%s: %s%s", e.Code, e.Message, where)
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}

// IsSchemaEvaluation reports whether the error is a schema-side
// evaluation failure (phase selection, bindings, context expressions).
func IsSchemaEvaluation(err error) bool {
	var ee *EvaluationError
	if !errors.As(err, &ee) {
		return false
	}
	switch ee.Code {
	case ErrCodeUnknownPhase, ErrCodeUnknownParameter, ErrCodeLetEval, ErrCodeContextEval:
		return true
	}
	return false
}

// IsAssertionEvaluation reports whether the error is an assertion-side
// evaluation failure (test or message placeholder expressions).
func IsAssertionEvaluation(err error) bool {
	var ee *EvaluationError
	if !errors.As(err, &ee) {
		return false
	}
	return ee.Code == ErrCodeTestEval || ee.Code == ErrCodeMessageEval
}

// CancelledError indicates the run was aborted by caller-requested
// cancellation or deadline. It carries no partial report.
type CancelledError struct {
	Err error
}

// Error implements the error interface.
func (e *CancelledError) Error() string {
	return fmt.Sprintf("run cancelled: %v", e.Err)
}

func (e *CancelledError) Unwrap() error {
	return e.Err
}

// IsCancelled reports whether the error is a cancellation outcome.
// Uses errors.As to handle wrapped errors.
func IsCancelled(err error) bool {
	var ce *CancelledError
	return errors.As(err, &ce)
}
