package core

import (
	"fmt"
	"strings"
)

// State represents the lifecycle state of one job attempt.
//
// NOTE: These values are persisted in status records and the status index and
// are part of the stable on-disk contract.
type State string

const (
	StateIdle      State = "IDLE"
	StateRunning   State = "RUNNING"
	StateCompleted State = "COMPLETED"
	StateFailed    State = "FAILED"
	StateStopping  State = "STOPPING" // Stop requested, body still running
	StateStopped   State = "STOPPED"  // Stop honored
)

// Terminal reports whether the state ends the current attempt.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateStopped:
		return true
	}
	return false
}

// Active reports whether a job body is executing in this state.
func (s State) Active() bool {
	return s == StateRunning || s == StateStopping
}

// Valid reports whether s is one of the known states.
func (s State) Valid() bool {
	switch s {
	case StateIdle, StateRunning, StateCompleted, StateFailed, StateStopping, StateStopped:
		return true
	}
	return false
}

func (s State) String() string { return string(s) }

// ParseState parses a persisted state name, case-insensitively.
func ParseState(v string) (State, error) {
	s := State(strings.ToUpper(strings.TrimSpace(v)))
	if s == "" {
		return StateIdle, nil
	}
	if !s.Valid() {
		return "", fmt.Errorf("jobsuite: unknown state %q", v)
	}
	return s, nil
}
