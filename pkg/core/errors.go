package core

import (
	"errors"
	"fmt"
)

// Standard sentinel errors for comparison using errors.Is()
// These are generic errors that can be wrapped with additional context
var (
	// Class analysis errors
	ErrClassNotAnalyzable = errors.New("class not analyzable")
	ErrHierarchyCycle     = errors.New("hierarchy cycle detected")

	// Weaving errors
	ErrAdviceBinding     = errors.New("advice binding not available at call site")
	ErrWeaveGeneration   = errors.New("weave generation failed")
	ErrInvalidDescriptor = errors.New("invalid advice descriptor")

	// Build-time verification errors
	ErrReachabilityMismatch = errors.New("reachability closure mismatch")

	// Configuration errors
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrMissingConfiguration = errors.New("missing required configuration")
)

// WeaveError provides structured error information with context.
// It implements the error interface and supports error wrapping
type WeaveError struct {
	Op      string // Operation that failed (e.g., "hierarchy.Resolve")
	Kind    string // Error kind (e.g., "class", "method", "config")
	Class   string // Optional class the failure is scoped to
	Method  string // Optional method key the failure is scoped to
	Message string // Human-readable message
	Err     error  // Underlying error for wrapping
}

// Error returns the string representation of the error
func (e *WeaveError) Error() string {
	subject := e.Class
	if e.Method != "" {
		subject = e.Class + "." + e.Method
	}
	if e.Op != "" && e.Err != nil {
		if subject != "" {
			if e.Message != "" {
				return fmt.Sprintf("%s [%s]: %s: %v", e.Op, subject, e.Message, e.Err)
			}
			return fmt.Sprintf("%s [%s]: %v", e.Op, subject, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s error", e.Kind)
}

// Unwrap returns the underlying error for use with errors.Is/As
func (e *WeaveError) Unwrap() error {
	return e.Err
}

// NewWeaveError creates a new WeaveError
func NewWeaveError(op, kind string, err error) *WeaveError {
	return &WeaveError{
		Op:   op,
		Kind: kind,
		Err:  err,
	}
}

// ClassError scopes err to a single class.
func ClassError(op, class, msg string, err error) *WeaveError {
	return &WeaveError{Op: op, Kind: "class", Class: class, Message: msg, Err: err}
}

// MethodError scopes err to a single method of a class.
func MethodError(op, class, method, msg string, err error) *WeaveError {
	return &WeaveError{Op: op, Kind: "method", Class: class, Method: method, Message: msg, Err: err}
}

// IsRecoverable reports whether err is a per-class or per-method failure that
// leaves the affected unit unwoven while everything else proceeds.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrClassNotAnalyzable) ||
		errors.Is(err, ErrHierarchyCycle) ||
		errors.Is(err, ErrAdviceBinding) ||
		errors.Is(err, ErrWeaveGeneration)
}

// IsConfigurationError checks if an error is configuration-related
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration) ||
		errors.Is(err, ErrMissingConfiguration) ||
		errors.Is(err, ErrInvalidDescriptor)
}
