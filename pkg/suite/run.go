package suite

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jdziat/jobsuite/pkg/core"
	"github.com/jdziat/jobsuite/pkg/job"
	"github.com/jdziat/jobsuite/pkg/jobctx"
	"github.com/jdziat/jobsuite/pkg/security"
	"github.com/jdziat/jobsuite/pkg/shutdown"
	"github.com/jdziat/jobsuite/pkg/storage"
)

func (s *Suite) execute(ctx context.Context, target *job.Node, full bool) (bool, error) {
	s.mu.Lock()
	if s.run != nil || s.starting {
		s.mu.Unlock()
		return false, core.ErrSuiteRunning
	}
	s.starting = true
	s.mu.Unlock()

	r := &run{
		id:      newRunID(),
		target:  target,
		ctx:     context.WithoutCancel(ctx),
		started: time.Now(),
		jobs:    make(map[string]*jobRuntime),
		closed:  make(chan struct{}),
	}
	r.persist = r.ctx
	r.indexState = core.StateRunning
	r.sometimes.Interval = s.opts.IndexInterval
	s.load(r)

	// r.jobs and r.order are read without locks once the run is published.
	s.mu.Lock()
	s.run = r
	s.starting = false
	pending := s.stopPending
	s.stopPending = false
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.run = nil
		s.lastRunID = r.id
		r.indexMu.Lock()
		s.lastState = r.indexState
		r.indexMu.Unlock()
		s.mu.Unlock()
	}()

	logger := s.logger.With("run_id", r.id)
	if err := s.begin(r); err != nil {
		logger.Error("suite run could not start", "error", err)
		s.fireTerminal(r, core.NewEvent(core.SuiteAborted, s.namespace).WithError(err))
		r.indexMu.Lock()
		r.indexState = core.StateFailed
		r.indexMu.Unlock()
		return false, err
	}

	if full {
		s.fire(r, core.NewEvent(core.SuiteStarted, s.namespace))
	}
	logger.Info("suite run started", "target", target.ID(), "jobs", len(r.order))
	if pending {
		s.requestStop(r, "stop requested")
	}

	// Caller cancellation is a stop request, not an abort.
	go func() {
		select {
		case <-ctx.Done():
			s.requestStop(r, "context canceled")
		case <-r.closed:
		}
	}()

	root := r.jobs[target.ID()]
	root.report = func(float64) {}
	s.runJob(r, root)

	return s.teardown(r, root, full)
}

// load reads every record of the tree into r. A record that cannot be read
// starts fresh.
func (s *Suite) load(r *run) {
	parents := make(map[string]*jobRuntime)
	_ = job.Walk(s.root, func(n, parent *job.Node) error {
		st, err := s.store.Read(r.persist, s.namespace, n.ID())
		if err != nil {
			s.logger.Warn("failed to load job record, starting fresh",
				"job_id", n.ID(), "error", err)
			st = core.NewStatus(n.ID())
		}
		var prt *jobRuntime
		if parent != nil {
			prt = parents[parent.ID()]
		}
		rt := newJobRuntime(n, prt, st)
		r.jobs[n.ID()] = rt
		r.order = append(r.order, rt)
		parents[n.ID()] = rt
		return nil
	})
}

// begin writes the first index and starts the shutdown monitor.
func (s *Suite) begin(r *run) error {
	if s.opts.IndexPath == "" {
		return nil
	}
	if err := s.writeIndex(r); err != nil {
		return err
	}
	if s.opts.Monitor {
		r.monitor = shutdown.NewMonitor(s.opts.IndexPath, s.opts.PollInterval, func() {
			s.requestStop(r, "stop sentinel found")
		}, s.logger)
		r.monitor.Start()
	}
	return nil
}

func (s *Suite) teardown(r *run, root *jobRuntime, full bool) (bool, error) {
	r.stopMu.Lock()
	r.finished = true
	r.stopMu.Unlock()
	close(r.closed)

	if r.monitor != nil {
		r.monitor.Stop()
	}
	r.waiters.Wait()

	fatal := r.fatalErr()
	stopping := r.isStopping()

	var (
		state core.State
		event core.Event
		ok    bool
	)
	switch {
	case fatal != nil:
		state = core.StateFailed
		event = core.NewEvent(core.SuiteAborted, s.namespace).WithError(fatal)
	case root.outcome.ok():
		state = core.StateCompleted
		event = core.NewEvent(core.SuiteCompleted, s.namespace)
		ok = true
	case stopping:
		state = core.StateStopped
		event = core.NewEvent(core.SuiteStopped, s.namespace)
	default:
		state = core.StateFailed
		event = core.NewEvent(core.SuiteTerminatedPrematurely, s.namespace)
	}

	s.setIndexState(r, state)
	if full || event.Name == core.SuiteStopped {
		s.fireTerminal(r, event.WithStatus(root.snapshot()))
	}

	s.logger.Info("suite run finished", "run_id", r.id, "state", state, "event", event.Name)
	if fatal != nil {
		return false, fatal
	}
	return ok, nil
}

// runJob executes one job of the tree and records its outcome on rt. It
// closes rt.done when it returns.
func (s *Suite) runJob(r *run, rt *jobRuntime) {
	defer close(rt.done)
	id := rt.node.ID()

	defer func() {
		if p := recover(); p != nil {
			err := fmt.Errorf("jobsuite: panic running job %q: %v", id, p)
			s.logger.Error("framework panic", "job_id", id, "panic", p, "stack", string(debug.Stack()))
			rt.outcome = outcomeFailed
			rt.fatal = err
			r.setFatal(err)
		}
	}()

	rt.mu.Lock()
	skip := rt.status.State == core.StateCompleted
	rt.mu.Unlock()
	if skip {
		rt.outcome = outcomeCompleted
		s.fire(r, core.NewEvent(core.JobSkipped, id).WithStatus(rt.snapshot()))
		rt.forward(1)
		return
	}

	ctx, cancel := context.WithCancel(r.ctx)
	defer cancel()

	r.stopMu.Lock()
	if r.stopping {
		r.stopMu.Unlock()
		rt.outcome = outcomeNotStarted
		return
	}
	started, err := s.startAttempt(r, rt, cancel)
	r.stopMu.Unlock()
	if err != nil {
		s.logger.Error("failed to start job", "job_id", id, "error", err)
		rt.outcome = outcomeFailed
		rt.fatal = err
		r.setFatal(err)
		return
	}

	name := core.JobStarted
	if rt.resumed {
		name = core.JobResumed
	}
	s.fire(r, core.NewEvent(name, id).WithStatus(started))
	s.touchIndex(r, true)

	ctx, span := s.opts.Tracer.Start(ctx, "job "+id, trace.WithAttributes(
		attribute.String("jobsuite.namespace", s.namespace),
		attribute.String("jobsuite.job_id", id),
		attribute.String("jobsuite.kind", rt.node.Kind().String()),
		attribute.String("jobsuite.run_id", r.id),
		attribute.Int("jobsuite.attempt", started.Attempt()),
		attribute.Bool("jobsuite.resumed", rt.resumed),
	))
	defer span.End()

	bodyErr := s.invoke(ctx, r, rt)
	s.finishJob(r, rt, bodyErr)

	span.SetAttributes(attribute.String("jobsuite.state", rt.snapshot().State.String()))
	switch rt.outcome {
	case outcomeCompleted:
		span.SetStatus(codes.Ok, "")
	case outcomeFailed:
		err := bodyErr
		if err == nil {
			err = rt.fatal
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}
}

// startAttempt archives a previous attempt and moves the record to RUNNING.
// Called with r.stopMu held.
func (s *Suite) startAttempt(r *run, rt *jobRuntime, cancel context.CancelFunc) (*core.Status, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	id := rt.node.ID()
	if !rt.status.Fresh() {
		n, err := s.store.Archive(r.persist, s.namespace, id)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			prior := rt.status.Clone()
			prior.PriorAttempts = nil
			rt.status.PriorAttempts = append(rt.status.PriorAttempts, prior)
		}
	}
	rt.resumed = rt.status.IsResume()
	rt.cancel = cancel
	rt.status.Begin(time.Now())

	if err := s.persist(r, rt.status); err != nil {
		return nil, err
	}
	return rt.status.Clone(), nil
}

// invoke runs the job body: the executor for a leaf, the children for a
// group.
func (s *Suite) invoke(ctx context.Context, r *run, rt *jobRuntime) (err error) {
	switch rt.node.Kind() {
	case job.KindSync:
		return s.runSync(r, rt)
	case job.KindAsync:
		return s.runAsync(r, rt)
	}

	id := rt.node.ID()
	u := newUpdater(s, r, rt)
	rc := jobctx.RunContext{
		Namespace: s.namespace,
		JobID:     id,
		RunID:     r.id,
		Resumed:   rt.resumed,
		Attempt:   u.Attempt(),
		Config:    s.opts.Config,
	}
	ctx = jobctx.WithRunContext(ctx, rc)

	defer func() {
		if p := recover(); p != nil {
			u.Logger().Error("job panicked", "panic", p, "stack", string(debug.Stack()))
			err = &core.ExecutionError{JobID: id, Err: fmt.Errorf("%v", p), Panic: true}
		}
	}()

	exec := rt.node.Executor()
	if rt.resumed {
		if res, ok := exec.(job.Resumer); ok {
			return res.Resume(ctx, u)
		}
	}
	return exec.Execute(ctx, u)
}

// finishJob maps the body result to a terminal state, persists it and fires
// the matching events.
func (s *Suite) finishJob(r *run, rt *jobRuntime, bodyErr error) {
	id := rt.node.ID()
	leaf := !rt.node.IsGroup()
	stopReq := rt.stopRequested()
	stopErr := errors.Is(bodyErr, core.ErrStopped) || errors.Is(bodyErr, context.Canceled)

	var groupErr *core.GroupFailureError
	var fatal error
	var state core.State
	switch {
	case bodyErr == nil:
		state = core.StateCompleted
		if stopReq && rt.snapshot().Progress < 1 {
			state = core.StateStopped
		}
	case leaf && stopReq && stopErr:
		state = core.StateStopped
	case leaf && stopReq:
		state = core.StateFailed
		fatal = bodyErr
	case leaf:
		state = core.StateFailed
	case errors.Is(bodyErr, core.ErrStopped):
		state = core.StateStopped
	case errors.As(bodyErr, &groupErr):
		state = core.StateFailed
	default:
		// A framework fault raised by a descendant.
		state = core.StateFailed
		fatal = bodyErr
	}

	now := time.Now()
	rt.mu.Lock()
	switch state {
	case core.StateCompleted:
		rt.status.SetProgress(1)
	case core.StateFailed:
		rt.status.Error = security.SanitizeErrorMessage(bodyErr.Error())
	}
	rt.status.Transition(state, now)
	persistErr := s.persist(r, rt.status)
	snap := rt.status.Clone()
	rt.mu.Unlock()

	if fatal != nil {
		s.logger.Error("job failed while stopping", "job_id", id, "error", fatal)
		rt.fatal = fatal
		r.setFatal(fatal)
	}
	if persistErr != nil {
		s.logger.Error("failed to persist job outcome", "job_id", id, "error", persistErr)
		if rt.fatal == nil {
			rt.fatal = persistErr
		}
		r.setFatal(persistErr)
	}

	switch state {
	case core.StateCompleted:
		rt.outcome = outcomeCompleted
		s.fire(r, core.NewEvent(core.JobCompleted, id).WithStatus(snap))
		rt.forward(1)
	case core.StateStopped:
		rt.outcome = outcomeStopped
	case core.StateFailed:
		rt.outcome = outcomeFailed
		if leaf {
			var execErr *core.ExecutionError
			if !errors.As(bodyErr, &execErr) {
				bodyErr = &core.ExecutionError{JobID: id, Err: bodyErr}
			}
			s.fire(r, core.NewEvent(core.JobError, id).WithStatus(snap).WithError(bodyErr))
			s.reportError(id, bodyErr)
		}
		s.fire(r, core.NewEvent(core.JobTerminatedPrematurely, id).WithStatus(snap).WithError(bodyErr))
	}
	s.touchIndex(r, true)
}

// persist writes st through the retry policy. Callers hold the job's lock.
func (s *Suite) persist(r *run, st *core.Status) error {
	policy := s.opts.Retry
	if policy.OnRetry == nil {
		policy.OnRetry = func(attempt int, err error, wait time.Duration) {
			s.logger.Warn("retrying status write", "job_id", st.JobID,
				"attempt", attempt, "wait", wait, "error", err)
		}
	}
	err := storage.Retry(r.persist, policy, func() error {
		return s.store.Write(r.persist, s.namespace, st)
	})
	if err == nil {
		return nil
	}
	var pe *core.PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &core.PersistenceError{Op: "write", Namespace: s.namespace, JobID: st.JobID, Err: err}
}

func (s *Suite) fire(r *run, e core.Event) {
	s.opts.Bus.Fire(e.WithRun(r.id))
}

// fireTerminal fires the one terminal suite event of a run.
func (s *Suite) fireTerminal(r *run, e core.Event) {
	r.terminalOnce.Do(func() {
		s.fire(r, e)
	})
}
