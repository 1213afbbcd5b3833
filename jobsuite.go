// Package jobsuite runs trees of resumable jobs.
//
// This is the main package users should import. It re-exports the public
// types of the pkg/ packages for a clean API surface.
//
// Basic usage:
//
//	store, _ := jobsuite.NewFileStore("/var/lib/myapp/jobs")
//	root := jobsuite.Sync("nightly",
//	    jobsuite.Leaf("nightly/extract", jobsuite.Func(extract)),
//	    jobsuite.Async("nightly/load", 4,
//	        jobsuite.Leaf("nightly/load/users", jobsuite.Func(loadUsers)),
//	        jobsuite.Leaf("nightly/load/orders", jobsuite.Func(loadOrders)),
//	    ),
//	)
//	s, _ := jobsuite.New("nightly", root, store,
//	    jobsuite.WithIndexPath("/run/myapp/nightly.json"))
//	completed, err := s.Execute(ctx)
//
// A suite that did not complete can be executed again: completed jobs are
// skipped and interrupted ones resume.
package jobsuite

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/jdziat/jobsuite/pkg/bus"
	"github.com/jdziat/jobsuite/pkg/core"
	"github.com/jdziat/jobsuite/pkg/index"
	"github.com/jdziat/jobsuite/pkg/job"
	"github.com/jdziat/jobsuite/pkg/jobctx"
	"github.com/jdziat/jobsuite/pkg/joblog"
	"github.com/jdziat/jobsuite/pkg/security"
	"github.com/jdziat/jobsuite/pkg/shutdown"
	"github.com/jdziat/jobsuite/pkg/storage"
	"github.com/jdziat/jobsuite/pkg/suite"
)

type (
	// Suite executes a job tree against a session store.
	Suite = suite.Suite

	// Option configures a Suite.
	Option = suite.Option

	// Node is one job of a tree.
	Node = job.Node

	// Executor is the body of a leaf job.
	Executor = job.Executor

	// Resumer is implemented by executors that continue interrupted attempts.
	Resumer = job.Resumer

	// Stopper is implemented by executors that want to hear about stops.
	Stopper = job.Stopper

	// Func adapts a function to Executor.
	Func = job.Func

	// Updater is the handle a running job reports through.
	Updater = job.Updater

	// Status is the durable record of one job.
	Status = core.Status

	// State is the lifecycle state of a job attempt.
	State = core.State

	// Properties is the ordered key/values bag a job persists.
	Properties = core.Properties

	// Event is a lifecycle notification.
	Event = core.Event

	// Store persists status records.
	Store = core.Store

	// Bus delivers events to observers.
	Bus = bus.Bus

	// Index is a published status index document.
	Index = index.Snapshot

	// RunContext describes the run a job belongs to.
	RunContext = jobctx.RunContext

	// FileStore is the file-backed Store.
	FileStore = storage.FileStore

	// GormStore is the SQL-backed Store.
	GormStore = storage.GormStore

	ConfigurationError = core.ConfigurationError
	ExecutionError     = core.ExecutionError
	GroupFailureError  = core.GroupFailureError
	PersistenceError   = core.PersistenceError
	ShutdownError      = core.ShutdownError
)

// Job states.
const (
	StateIdle      = core.StateIdle
	StateRunning   = core.StateRunning
	StateCompleted = core.StateCompleted
	StateFailed    = core.StateFailed
	StateStopping  = core.StateStopping
	StateStopped   = core.StateStopped
)

// Event names.
const (
	SuiteStarted               = core.SuiteStarted
	SuiteStopping              = core.SuiteStopping
	SuiteStopped               = core.SuiteStopped
	SuiteAborted               = core.SuiteAborted
	SuiteTerminatedPrematurely = core.SuiteTerminatedPrematurely
	SuiteCompleted             = core.SuiteCompleted

	JobStarted               = core.JobStarted
	JobResumed               = core.JobResumed
	JobProgressed            = core.JobProgressed
	JobSkipped               = core.JobSkipped
	JobStopping              = core.JobStopping
	JobStopped               = core.JobStopped
	JobCompleted             = core.JobCompleted
	JobTerminatedPrematurely = core.JobTerminatedPrematurely
	JobError                 = core.JobError
)

// Security limits
const (
	MaxJobIDLength        = security.MaxJobIDLength
	MaxNamespaceLength    = security.MaxNamespaceLength
	MaxConcurrency        = security.MaxConcurrency
	MaxErrorMessageLength = security.MaxErrorMessageLength
	MaxNoteLength         = security.MaxNoteLength
)

// Error variables
var (
	ErrInvalidJobID     = core.ErrInvalidJobID
	ErrDuplicateJobID   = core.ErrDuplicateJobID
	ErrInvalidNamespace = core.ErrInvalidNamespace
	ErrNilExecutor      = core.ErrNilExecutor
	ErrEmptyGroup       = core.ErrEmptyGroup
	ErrNilStore         = core.ErrNilStore
	ErrSuiteRunning     = core.ErrSuiteRunning
	ErrNotRunning       = core.ErrNotRunning
	ErrStopped          = core.ErrStopped
	ErrAlreadyRequested = core.ErrAlreadyRequested
	ErrInvalidIndex     = core.ErrInvalidIndex
	ErrCorruptRecord    = core.ErrCorruptRecord
	ErrUnknownJob       = core.ErrUnknownJob
)

// New creates a suite running root under namespace.
func New(namespace string, root *Node, store Store, opts ...Option) (*Suite, error) {
	return suite.New(namespace, root, store, opts...)
}

// Leaf creates a leaf job.
func Leaf(id string, exec Executor) *Node {
	return job.Leaf(id, exec)
}

// Sync creates a group running its children one after another.
func Sync(id string, children ...*Node) *Node {
	return job.Sync(id, children...)
}

// Async creates a group running up to maxConcurrency children at once.
// Zero or less means all of them.
func Async(id string, maxConcurrency int, children ...*Node) *Node {
	return job.Async(id, maxConcurrency, children...)
}

// NewFileStore creates a file-backed store rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	return storage.NewFileStore(dir)
}

// OpenSQLite opens a SQLite-backed store.
func OpenSQLite(ctx context.Context, path string) (*GormStore, error) {
	return storage.OpenSQLite(ctx, path)
}

// OpenPostgres opens a PostgreSQL-backed store.
func OpenPostgres(ctx context.Context, dsn string) (*GormStore, error) {
	return storage.OpenPostgres(ctx, dsn)
}

// ReadIndex loads a status index published by a running or finished suite.
func ReadIndex(path string) (*Index, error) {
	return index.Read(path)
}

// RequestStop asks the suite publishing the index at indexPath to stop.
// It works across processes.
func RequestStop(indexPath string) error {
	return shutdown.Signal(indexPath)
}

// Suite option functions

// WithBus sets the event bus.
func WithBus(b *Bus) Option { return suite.WithBus(b) }

// WithLogger sets the framework logger.
func WithLogger(l *slog.Logger) Option { return suite.WithLogger(l) }

// WithIndexPath enables the status index and the stop sentinel at path.
func WithIndexPath(path string) Option { return suite.WithIndexPath(path) }

// WithPollInterval sets how often the stop sentinel is checked.
func WithPollInterval(d time.Duration) Option { return suite.WithPollInterval(d) }

// WithIndexInterval bounds how often progress rewrites the index.
func WithIndexInterval(d time.Duration) Option { return suite.WithIndexInterval(d) }

// WithLogSink routes each job's logger to its own log file.
func WithLogSink(s joblog.Sink) Option { return suite.WithLogSink(s) }

// WithTracer records one span per job attempt.
func WithTracer(t trace.Tracer) Option { return suite.WithTracer(t) }

// WithConfig exposes configuration to jobs through their RunContext.
func WithConfig(c jobctx.ConfigReader) Option { return suite.WithConfig(c) }

// WithRetry sets the retry policy for store writes.
func WithRetry(cfg storage.RetryConfig) Option { return suite.WithRetry(cfg) }

// RunContextFromContext returns the run description of the job executing
// with ctx.
func RunContextFromContext(ctx context.Context) (RunContext, bool) {
	return jobctx.FromContext(ctx)
}

// JobIDFromContext returns the id of the job executing with ctx, or "".
func JobIDFromContext(ctx context.Context) string {
	return jobctx.JobIDFromContext(ctx)
}
