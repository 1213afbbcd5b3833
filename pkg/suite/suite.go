package suite

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"

	"github.com/jdziat/jobsuite/pkg/bus"
	"github.com/jdziat/jobsuite/pkg/core"
	"github.com/jdziat/jobsuite/pkg/index"
	"github.com/jdziat/jobsuite/pkg/job"
	"github.com/jdziat/jobsuite/pkg/security"
)

// Suite executes one job tree under a namespace.
type Suite struct {
	namespace string
	root      *job.Node
	store     core.Store
	opts      *Options
	logger    *slog.Logger

	errMu        sync.RWMutex
	errObservers []func(jobID string, err error)

	mu        sync.Mutex
	run       *run
	lastRunID string
	lastState core.State

	// starting is set while a run loads its records; stopPending holds a
	// Stop that arrived in that window.
	starting    bool
	stopPending bool
}

// New creates a suite. The tree is validated; problems are reported as
// *core.ConfigurationError.
func New(namespace string, root *job.Node, store core.Store, opts ...Option) (*Suite, error) {
	if err := security.ValidateNamespace(namespace); err != nil {
		return nil, &core.ConfigurationError{Err: err}
	}
	if store == nil {
		return nil, &core.ConfigurationError{Err: core.ErrNilStore}
	}
	if err := job.Validate(root); err != nil {
		return nil, err
	}

	o := NewOptions()
	for _, opt := range opts {
		opt.Apply(o)
	}
	o.finish()

	return &Suite{
		namespace: namespace,
		root:      root,
		store:     store,
		opts:      o,
		logger:    o.Logger.With("namespace", namespace),
		lastState: core.StateIdle,
	}, nil
}

// Namespace returns the namespace the suite persists under.
func (s *Suite) Namespace() string { return s.namespace }

// RootJob returns the root of the job tree.
func (s *Suite) RootJob() *job.Node { return s.root }

// Bus returns the event bus lifecycle events are fired on.
func (s *Suite) Bus() *bus.Bus { return s.opts.Bus }

// IndexPath returns the status index location, or "" when none is written.
func (s *Suite) IndexPath() string { return s.opts.IndexPath }

// RunID returns the id of the current run, or of the last one once it ended.
func (s *Suite) RunID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run != nil {
		return s.run.id
	}
	return s.lastRunID
}

// Running reports whether Execute or RunJob is in progress.
func (s *Suite) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run != nil || s.starting
}

// OnError registers an observer for errors raised by job bodies.
func (s *Suite) OnError(fn func(jobID string, err error)) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	s.errObservers = append(s.errObservers, fn)
}

func (s *Suite) reportError(jobID string, err error) {
	s.errMu.RLock()
	observers := make([]func(string, error), len(s.errObservers))
	copy(observers, s.errObservers)
	s.errMu.RUnlock()

	for _, fn := range observers {
		func() {
			defer func() {
				if p := recover(); p != nil {
					s.logger.Error("error observer panicked", "job_id", jobID, "panic", p)
				}
			}()
			fn(jobID, err)
		}()
	}
}

func (s *Suite) current() *run {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run
}

// Execute runs the whole tree. It returns true when the root job completed.
// Job failures and honored stop requests yield false with a nil error; a
// non-nil error means the framework itself failed (SUITE_ABORTED).
func (s *Suite) Execute(ctx context.Context) (bool, error) {
	return s.execute(ctx, s.root, true)
}

// RunJob runs the subtree rooted at n, which must belong to the suite's
// tree. Records of jobs outside the subtree are left alone. Suite-level
// start and outcome events are not fired.
func (s *Suite) RunJob(ctx context.Context, n *job.Node) (bool, error) {
	if n == nil || job.Find(s.root, n.ID()) != n {
		return false, fmt.Errorf("%w: job is not part of suite %s", core.ErrUnknownJob, s.namespace)
	}
	return s.execute(ctx, n, false)
}

// Stop requests a cooperative stop of the current run and returns without
// waiting for jobs to finish.
func (s *Suite) Stop(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	r := s.run
	if r == nil {
		defer s.mu.Unlock()
		if !s.starting {
			return core.ErrNotRunning
		}
		s.stopPending = true
		return nil
	}
	s.mu.Unlock()
	s.requestStop(r, "stop requested")
	return nil
}

// JobStatus returns a copy of a job's status record: the live record while
// running, the persisted one otherwise.
func (s *Suite) JobStatus(ctx context.Context, jobID string) (*core.Status, error) {
	if job.Find(s.root, jobID) == nil {
		return nil, fmt.Errorf("%w: %s", core.ErrUnknownJob, jobID)
	}
	if r := s.current(); r != nil {
		if rt, ok := r.jobs[jobID]; ok {
			return rt.snapshot(), nil
		}
	}
	return s.store.Read(ctx, s.namespace, jobID)
}

// StatusIndex returns a snapshot of the whole tree.
func (s *Suite) StatusIndex(ctx context.Context) (*index.Snapshot, error) {
	if r := s.current(); r != nil {
		return s.buildIndex(r), nil
	}

	statuses := make(map[string]*core.Status)
	for _, id := range job.IDs(s.root) {
		st, err := s.store.Read(ctx, s.namespace, id)
		if err != nil {
			return nil, err
		}
		statuses[id] = st
	}
	s.mu.Lock()
	runID, state := s.lastRunID, s.lastState
	s.mu.Unlock()

	host, _ := os.Hostname()
	return &index.Snapshot{
		Namespace: s.namespace,
		RunID:     runID,
		Host:      host,
		State:     state,
		Updated:   time.Now(),
		Root:      index.Build(s.root, func(id string) *core.Status { return statuses[id] }),
	}, nil
}

// Reset removes the persisted records of jobs whose ids match any of the
// doublestar patterns, or of every job when no pattern is given. It returns
// the removed ids. Records of ids no longer in the tree are included.
func (s *Suite) Reset(ctx context.Context, patterns ...string) ([]string, error) {
	if s.Running() {
		return nil, core.ErrSuiteRunning
	}
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, &core.ConfigurationError{Err: fmt.Errorf("invalid pattern %q", p)}
		}
	}

	stored, err := s.store.List(ctx, s.namespace)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var candidates []string
	for _, id := range append(job.IDs(s.root), stored...) {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		candidates = append(candidates, id)
	}

	var removed []string
	for _, id := range candidates {
		if !matchAny(patterns, id) {
			continue
		}
		if err := s.store.Remove(ctx, s.namespace, id); err != nil {
			return removed, err
		}
		removed = append(removed, id)
	}
	s.logger.Info("reset job records", "count", len(removed))
	return removed, nil
}

// MatchJobID reports whether id matches any pattern. No patterns match all.
func MatchJobID(patterns []string, id string) bool {
	return matchAny(patterns, id)
}

func matchAny(patterns []string, id string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, id); ok {
			return true
		}
	}
	return false
}

// Backup moves the namespace's records to a timestamped archive and rotates
// the job logs. It is refused while the suite runs.
func (s *Suite) Backup(ctx context.Context) (string, error) {
	if s.Running() {
		return "", core.ErrSuiteRunning
	}
	loc, err := s.store.Backup(ctx, s.namespace, time.Now())
	if err != nil {
		return "", err
	}
	if s.opts.LogSink != nil {
		if err := s.opts.LogSink.Rotate(s.namespace); err != nil {
			s.logger.Warn("failed to rotate job logs", "error", err)
		}
	}
	if loc != "" {
		s.logger.Info("backed up job records", "location", loc)
	}
	return loc, nil
}

func newRunID() string {
	return uuid.NewString()
}
