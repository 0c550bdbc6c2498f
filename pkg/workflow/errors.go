package workflow

import (
	"errors"
	"fmt"
)

// ErrorClass classifies a workflow error for routing and termination decisions.
type ErrorClass string

const (
	// ErrorClassStructural indicates a collaborator crashed or timed out.
	// It is converted into a generation_failure syntax error and consumes a retry.
	ErrorClassStructural ErrorClass = "structural"

	// ErrorClassSyntax indicates the artifact failed syntax or deep validation.
	ErrorClassSyntax ErrorClass = "syntax"

	// ErrorClassCompleteness indicates required components are missing from the artifact.
	ErrorClassCompleteness ErrorClass = "completeness"

	// ErrorClassPolicy indicates security or compliance violations.
	ErrorClassPolicy ErrorClass = "policy"

	// ErrorClassBudgetExhausted indicates the global retry ceiling, a violation
	// streak, a stage failure ceiling or the run deadline was reached.
	ErrorClassBudgetExhausted ErrorClass = "budget-exhausted"

	// ErrorClassCollaboratorDegraded indicates a non-critical collaborator
	// returned its fallback value instead of a real result.
	ErrorClassCollaboratorDegraded ErrorClass = "collaborator-degraded"

	// ErrorClassClarificationRequired indicates the request is too ambiguous
	// to plan and the clarifier asked for more information.
	ErrorClassClarificationRequired ErrorClass = "clarification-required"
)

// WorkflowError represents a classified error with context.
// nolint:revive // WorkflowError is intentionally named to distinguish from standard errors
type WorkflowError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Stage is the stage that produced the error, if applicable.
	Stage Stage `json:"stage,omitempty"`

	// Resource is the resource address that caused the error, if applicable.
	Resource string `json:"resource,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *WorkflowError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Class, e.Message)
	if e.Stage != "" {
		msg += fmt.Sprintf(" (stage=%s)", e.Stage)
	}
	if e.Resource != "" {
		msg += fmt.Sprintf(" (resource=%s)", e.Resource)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *WorkflowError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *WorkflowError) Is(target error) bool {
	t, ok := target.(*WorkflowError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewError creates a classified error.
func NewError(class ErrorClass, message string, err error) *WorkflowError {
	return &WorkflowError{
		Class:   class,
		Message: message,
		Err:     err,
	}
}

// NewStructuralError creates an error for a collaborator that failed outright.
func NewStructuralError(stage Stage, err error) *WorkflowError {
	return &WorkflowError{
		Class:   ErrorClassStructural,
		Message: "collaborator failed",
		Stage:   stage,
		Err:     err,
	}
}

// NewBudgetExhaustedError creates a fatal budget error.
func NewBudgetExhaustedError(message string) *WorkflowError {
	return &WorkflowError{
		Class:   ErrorClassBudgetExhausted,
		Message: message,
	}
}

// WithStage adds stage context to an error.
func (e *WorkflowError) WithStage(stage Stage) *WorkflowError {
	e.Stage = stage
	return e
}

// WithResource adds resource context to an error.
func (e *WorkflowError) WithResource(resource string) *WorkflowError {
	e.Resource = resource
	return e
}

// WithCode adds an error code to an error.
func (e *WorkflowError) WithCode(code string) *WorkflowError {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *WorkflowError) WithDetail(key string, value interface{}) *WorkflowError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ClassOf returns the class of err, or an empty class when err is not a WorkflowError.
func ClassOf(err error) ErrorClass {
	var e *WorkflowError
	if errors.As(err, &e) {
		return e.Class
	}
	return ""
}

// IsFatal returns true if the error ends the run instead of looping back to generation.
func IsFatal(err error) bool {
	switch ClassOf(err) {
	case ErrorClassBudgetExhausted, ErrorClassClarificationRequired:
		return true
	default:
		return false
	}
}

// IsBudgetExhausted returns true if the error is classified as budget-exhausted.
func IsBudgetExhausted(err error) bool {
	return ClassOf(err) == ErrorClassBudgetExhausted
}

// Common error codes.
const (
	ErrCodeMaxRetries       = "MAX_RETRIES"
	ErrCodeViolationStreak  = "VIOLATION_STREAK"
	ErrCodeStageCeiling     = "STAGE_FAILURE_CEILING"
	ErrCodeDeadline         = "RUN_DEADLINE"
	ErrCodeNeedsInformation = "NEEDS_INFORMATION"
)

// ErrEmptyRequest is returned by Engine.Run when the request is blank.
var ErrEmptyRequest = errors.New("workflow request is empty")
