package core

import "time"

// Event names fired on the suite's event bus.
const (
	SuiteStarted               = "SUITE_STARTED"
	SuiteStopping              = "SUITE_STOPPING"
	SuiteStopped               = "SUITE_STOPPED"
	SuiteAborted               = "SUITE_ABORTED"
	SuiteTerminatedPrematurely = "SUITE_TERMINATED_PREMATURELY"
	SuiteCompleted             = "SUITE_COMPLETED"

	JobStarted               = "JOB_STARTED"
	JobResumed               = "JOB_RESUMED"
	JobProgressed            = "JOB_PROGRESSED"
	JobSkipped               = "JOB_SKIPPED"
	JobStopping              = "JOB_STOPPING"
	JobStopped               = "JOB_STOPPED"
	JobCompleted             = "JOB_COMPLETED"
	JobTerminatedPrematurely = "JOB_TERMINATED_PREMATURELY"
	JobError                 = "JOB_ERROR"
)

// SuiteEvents lists the suite-level event names.
var SuiteEvents = []string{
	SuiteStarted, SuiteStopping, SuiteStopped, SuiteAborted,
	SuiteTerminatedPrematurely, SuiteCompleted,
}

// JobEvents lists the job-level event names.
var JobEvents = []string{
	JobStarted, JobResumed, JobProgressed, JobSkipped, JobStopping,
	JobStopped, JobCompleted, JobTerminatedPrematurely, JobError,
}

// Event is an immutable lifecycle notification.
//
// Source is the job id for job events and the suite namespace for suite
// events. Status, when present, is a snapshot the receiver may keep.
type Event struct {
	Name   string
	Source string
	RunID  string
	Status *Status
	Err    error
	Time   time.Time
}

// NewEvent creates an event stamped with the current time.
func NewEvent(name, source string) Event {
	return Event{Name: name, Source: source, Time: time.Now()}
}

// WithStatus returns a copy of e carrying a snapshot of s.
func (e Event) WithStatus(s *Status) Event {
	e.Status = s.Clone()
	return e
}

// WithError returns a copy of e carrying err.
func (e Event) WithError(err error) Event {
	e.Err = err
	return e
}

// WithRun returns a copy of e tagged with runID.
func (e Event) WithRun(runID string) Event {
	e.RunID = runID
	return e
}

// IsSuiteEvent reports whether name is a suite-level event.
func IsSuiteEvent(name string) bool {
	for _, n := range SuiteEvents {
		if n == name {
			return true
		}
	}
	return false
}
