package models

import (
	"fmt"
	"strings"
)

// SchemaError reports required columns missing from a raw sales table.
type SchemaError struct {
	Missing   []string
	Available []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("missing required columns: %s", strings.Join(e.Missing, ", "))
}

// IsTransient returns false as a malformed file stays malformed
func (e *SchemaError) IsTransient() bool {
	return false
}

// FormatError reports an unreadable file or unsupported extension.
type FormatError struct {
	Path   string
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cannot read %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("cannot read %s: %s", e.Path, e.Reason)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

func (e *FormatError) IsTransient() bool {
	return false
}

// InsufficientDataError reports too few rows, days or weeks for Scope.
type InsufficientDataError struct {
	Scope string
	Need  int
	Got   int
}

func (e *InsufficientDataError) Error() string {
	if e.Need > 0 {
		return fmt.Sprintf("insufficient data for %s: need %d, got %d", e.Scope, e.Need, e.Got)
	}
	return fmt.Sprintf("insufficient data for %s", e.Scope)
}

func (e *InsufficientDataError) IsTransient() bool {
	return false
}

// MetricComputationError reports a metric that cannot be computed as a
// finite number.
type MetricComputationError struct {
	Metric string
	Reason string
}

func (e *MetricComputationError) Error() string {
	return fmt.Sprintf("cannot compute %s: %s", e.Metric, e.Reason)
}

func (e *MetricComputationError) IsTransient() bool {
	return false
}

// UnsupportedModelTypeError reports a model type outside the known families.
type UnsupportedModelTypeError struct {
	ModelType string
}

func (e *UnsupportedModelTypeError) Error() string {
	return fmt.Sprintf("unsupported model type: %q", e.ModelType)
}

func (e *UnsupportedModelTypeError) IsTransient() bool {
	return false
}

// ProcessingError wraps an unexpected lower-level failure in Op.
type ProcessingError struct {
	Op  string
	Err error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// IsTransient returns true for I/O style failures that may succeed on retry
func (e *ProcessingError) IsTransient() bool {
	return true
}

// SkippedError marks a product that was deliberately left out of a batch,
// e.g. because it has too few weekly points to build features.
type SkippedError struct {
	ItemCode string
	Reason   string
}

func (e *SkippedError) Error() string {
	return fmt.Sprintf("product %s skipped: %s", e.ItemCode, e.Reason)
}

func (e *SkippedError) IsTransient() bool {
	return false
}

// ValidationError represents a request or data validation error
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsTransient returns false as validation errors are permanent
func (e *ValidationError) IsTransient() bool {
	return false
}

// InvalidTransitionError reports a job status change the state machine
// does not allow.
type InvalidTransitionError struct {
	From JobStatus
	To   JobStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid job transition %s -> %s", e.From, e.To)
}

func (e *InvalidTransitionError) IsTransient() bool {
	return false
}
