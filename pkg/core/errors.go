package core

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors
var (
	ErrInvalidJobID       = errors.New("jobsuite: invalid job id")
	ErrJobIDTooLong       = errors.New("jobsuite: job id too long")
	ErrDuplicateJobID     = errors.New("jobsuite: duplicate job id")
	ErrInvalidNamespace   = errors.New("jobsuite: invalid namespace")
	ErrNamespaceTooLong   = errors.New("jobsuite: namespace too long")
	ErrNilExecutor        = errors.New("jobsuite: leaf job has no executor")
	ErrEmptyGroup         = errors.New("jobsuite: group has no children")
	ErrNilStore           = errors.New("jobsuite: no session store configured")
	ErrSuiteRunning       = errors.New("jobsuite: suite is already running")
	ErrNotRunning         = errors.New("jobsuite: suite is not running")
	ErrStopped            = errors.New("jobsuite: job stopped")
	ErrAlreadyRequested   = errors.New("jobsuite: stop already requested")
	ErrInvalidIndex       = errors.New("jobsuite: invalid status index")
	ErrCorruptRecord      = errors.New("jobsuite: corrupt status record")
	ErrUnknownJob         = errors.New("jobsuite: unknown job id")
	ErrAtomicMoveDisabled = errors.New("jobsuite: atomic move not supported")
)

// ConfigurationError reports an invalid suite or job construction.
type ConfigurationError struct {
	JobID string
	Err   error
}

func (e *ConfigurationError) Error() string {
	if e.JobID == "" {
		return fmt.Sprintf("configuration: %v", e.Err)
	}
	return fmt.Sprintf("configuration: job %q: %v", e.JobID, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// ExecutionError wraps an error raised from a job body.
type ExecutionError struct {
	JobID string
	Err   error
	Panic bool
}

func (e *ExecutionError) Error() string {
	if e.Panic {
		return fmt.Sprintf("job %q panicked: %v", e.JobID, e.Err)
	}
	return fmt.Sprintf("job %q failed: %v", e.JobID, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// GroupFailureError is raised by a job group when one or more children failed.
type GroupFailureError struct {
	GroupID string
	Failed  []string
}

func (e *GroupFailureError) Error() string {
	return fmt.Sprintf("group %q: %d child job(s) failed: %s",
		e.GroupID, len(e.Failed), strings.Join(e.Failed, ", "))
}

// FailedCount returns the number of failed children.
func (e *GroupFailureError) FailedCount() int {
	return len(e.Failed)
}

// PersistenceError reports an I/O failure in the session store.
type PersistenceError struct {
	Op        string
	Namespace string
	JobID     string
	Err       error
}

func (e *PersistenceError) Error() string {
	if e.JobID == "" {
		return fmt.Sprintf("persistence: %s %s: %v", e.Op, e.Namespace, e.Err)
	}
	return fmt.Sprintf("persistence: %s %s/%s: %v", e.Op, e.Namespace, e.JobID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// ShutdownError reports a failure to validate or signal a running suite.
type ShutdownError struct {
	IndexPath string
	Err       error
}

func (e *ShutdownError) Error() string {
	return fmt.Sprintf("shutdown %s: %v", e.IndexPath, e.Err)
}

func (e *ShutdownError) Unwrap() error {
	return e.Err
}
