package job

import (
	"log/slog"

	"github.com/jdziat/jobsuite/pkg/core"
)

// Updater is the narrow handle a job body uses to report on itself.
//
// All methods are safe for concurrent use. Mutating methods persist the
// record before returning; an error means the change could not be stored.
type Updater interface {
	JobID() string
	Namespace() string

	// Resumed reports whether an earlier attempt of this job exists.
	Resumed() bool
	// Attempt is the 1-based attempt number.
	Attempt() int

	SetProgress(p float64) error
	SetNote(note string) error
	// Update sets progress and note in one write.
	Update(p float64, note string) error

	SetProperty(key string, values ...string) error
	AddProperty(key, value string) error
	// Properties returns a copy of the current properties.
	Properties() core.Properties

	StopRequested() bool
	// Stopping is closed once a stop has been requested for this job.
	Stopping() <-chan struct{}

	// Touch refreshes the liveness timestamp without rewriting the record.
	Touch() error

	Logger() *slog.Logger
}
