package core

import (
	"time"
)

// Status is the durable snapshot of one job's execution.
//
// Exactly one Status per job id is current; PriorAttempts holds the archived
// records of earlier attempts, oldest first, and is never mutated once filled.
type Status struct {
	JobID         string
	State         State
	Progress      float64
	Note          string
	StartTime     time.Time
	EndTime       time.Time // set only in terminal states
	LastActivity  time.Time
	StopRequested bool
	Error         string
	Properties    Properties

	PriorAttempts []*Status
}

// NewStatus returns a fresh IDLE record for jobID.
func NewStatus(jobID string) *Status {
	return &Status{JobID: jobID, State: StateIdle}
}

// Fresh reports whether the record has never been started.
func (s *Status) Fresh() bool {
	return s.State == StateIdle && s.StartTime.IsZero() && len(s.PriorAttempts) == 0
}

// SetProgress stores p clamped to [0, 1].
func (s *Status) SetProgress(p float64) {
	s.Progress = ClampProgress(p)
}

// ClampProgress clamps p to [0, 1]. NaN becomes 0.
func ClampProgress(p float64) float64 {
	if p != p || p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// Transition moves the record to state at t, maintaining the EndTime invariant.
func (s *Status) Transition(state State, t time.Time) {
	s.State = state
	s.LastActivity = t
	if state.Terminal() {
		s.EndTime = t
	} else {
		s.EndTime = time.Time{}
	}
}

// Begin starts a new attempt on this record at t.
func (s *Status) Begin(t time.Time) {
	s.Progress = 0
	s.Note = ""
	s.Error = ""
	s.StopRequested = false
	s.StartTime = t
	s.Transition(StateRunning, t)
}

// IsResume reports whether earlier attempts exist.
func (s *Status) IsResume() bool {
	return len(s.PriorAttempts) > 0
}

// Attempt returns the 1-based number of the current attempt.
func (s *Status) Attempt() int {
	return len(s.PriorAttempts) + 1
}

// Duration returns the run time of the current attempt, up to now when the
// attempt has not ended.
func (s *Status) Duration(now time.Time) time.Duration {
	if s.StartTime.IsZero() {
		return 0
	}
	end := s.EndTime
	if end.IsZero() {
		end = now
	}
	if end.Before(s.StartTime) {
		return 0
	}
	return end.Sub(s.StartTime)
}

// SessionDuration returns the cumulative run time of all attempts.
func (s *Status) SessionDuration(now time.Time) time.Duration {
	total := s.Duration(now)
	for _, prior := range s.PriorAttempts {
		total += prior.Duration(prior.LastActivity)
	}
	return total
}

// Clone returns a deep copy, including prior attempts.
func (s *Status) Clone() *Status {
	if s == nil {
		return nil
	}
	out := *s
	out.Properties = s.Properties.Clone()
	if s.PriorAttempts != nil {
		out.PriorAttempts = make([]*Status, len(s.PriorAttempts))
		for i, p := range s.PriorAttempts {
			out.PriorAttempts[i] = p.Clone()
		}
	}
	return &out
}

// Equal compares every field, including prior attempts.
func (s *Status) Equal(o *Status) bool {
	if s == nil || o == nil {
		return s == o
	}
	if s.JobID != o.JobID ||
		s.State != o.State ||
		s.Progress != o.Progress ||
		s.Note != o.Note ||
		!s.StartTime.Equal(o.StartTime) ||
		!s.EndTime.Equal(o.EndTime) ||
		!s.LastActivity.Equal(o.LastActivity) ||
		s.StopRequested != o.StopRequested ||
		s.Error != o.Error ||
		!s.Properties.Equal(o.Properties) ||
		len(s.PriorAttempts) != len(o.PriorAttempts) {
		return false
	}
	for i := range s.PriorAttempts {
		if !s.PriorAttempts[i].Equal(o.PriorAttempts[i]) {
			return false
		}
	}
	return true
}
