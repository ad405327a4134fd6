package common

import (
	"fmt"

	"go.uber.org/multierr"
)

// TaskFailure records a single archive or delete write that did not succeed.
type TaskFailure struct {
	TaskID string
	Op     string
	Err    error
}

func (f TaskFailure) Error() string {
	return fmt.Sprintf("%s task %s: %v", f.Op, f.TaskID, f.Err)
}

func (f TaskFailure) Unwrap() error { return f.Err }

// PartialArchiveError aggregates per-task write failures of one reset run.
// It is reported to callers but never aborts the cycle roll-over.
type PartialArchiveError struct {
	Failures []TaskFailure
}

// NewPartialArchiveError returns nil when there is nothing to report.
func NewPartialArchiveError(failures []TaskFailure) *PartialArchiveError {
	if len(failures) == 0 {
		return nil
	}
	return &PartialArchiveError{Failures: failures}
}

func (e *PartialArchiveError) Error() string {
	var combined error
	for _, f := range e.Failures {
		combined = multierr.Append(combined, f)
	}
	return fmt.Sprintf("%v: %d task write(s) failed: %v", ErrPartialArchive, len(e.Failures), combined)
}

// Is lets errors.Is(err, ErrPartialArchive) match.
func (e *PartialArchiveError) Is(target error) bool {
	return target == ErrPartialArchive
}

// Errors returns the individual failures as plain errors.
func (e *PartialArchiveError) Errors() []error {
	var combined error
	for _, f := range e.Failures {
		combined = multierr.Append(combined, f)
	}
	return multierr.Errors(combined)
}
