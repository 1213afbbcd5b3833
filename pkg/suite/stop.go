package suite

import (
	"runtime/debug"
	"time"

	"github.com/jdziat/jobsuite/pkg/core"
	"github.com/jdziat/jobsuite/pkg/job"
	"github.com/jdziat/jobsuite/pkg/jobctx"
)

// requestStop runs the stop cascade of r at most once. It returns as soon as
// every running job has been asked to stop; waiters report completion.
func (s *Suite) requestStop(r *run, reason string) {
	r.stopMu.Lock()
	if r.stopping || r.finished {
		r.stopMu.Unlock()
		return
	}
	r.stopping = true
	var live []*jobRuntime
	for _, rt := range r.order {
		rt.mu.Lock()
		if rt.status.State == core.StateRunning && rt.cancel != nil {
			live = append(live, rt)
		}
		rt.mu.Unlock()
	}
	// Registered under stopMu so teardown cannot pass Wait before the
	// per-job waiters are added.
	r.waiters.Add(1)
	r.stopMu.Unlock()
	defer r.waiters.Done()

	s.logger.Info("stopping suite", "run_id", r.id, "reason", reason, "running", len(live))
	s.fire(r, core.NewEvent(core.SuiteStopping, s.namespace))
	s.setIndexState(r, core.StateStopping)

	for _, rt := range live {
		s.stopJob(r, rt)
	}
}

func (s *Suite) stopJob(r *run, rt *jobRuntime) {
	id := rt.node.ID()

	rt.mu.Lock()
	if rt.status.State != core.StateRunning {
		rt.mu.Unlock()
		return
	}
	rt.status.StopRequested = true
	rt.status.Transition(core.StateStopping, time.Now())
	err := s.persist(r, rt.status)
	snap := rt.status.Clone()
	cancel := rt.cancel
	rt.mu.Unlock()

	if err != nil {
		s.logger.Error("failed to persist stop request", "job_id", id, "error", err)
		r.setFatal(err)
	}
	s.fire(r, core.NewEvent(core.JobStopping, id).WithStatus(snap))
	s.touchIndex(r, true)

	r.waiters.Add(1)
	go s.awaitStopped(r, rt)

	rt.closeStop()
	cancel()
	if stopper, ok := rt.node.Executor().(job.Stopper); ok {
		s.callStopper(r, rt, stopper, snap)
	}
}

func (s *Suite) callStopper(r *run, rt *jobRuntime, stopper job.Stopper, snap *core.Status) {
	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("job stop hook panicked", "job_id", rt.node.ID(),
				"panic", p, "stack", string(debug.Stack()))
		}
	}()
	stopper.Stop(*snap, jobctx.RunContext{
		Namespace: s.namespace,
		JobID:     rt.node.ID(),
		RunID:     r.id,
		Resumed:   rt.resumed,
		Attempt:   snap.Attempt(),
		Config:    s.opts.Config,
	})
}

// awaitStopped blocks until the job has ended and reports the stop. The
// target's waiter also reports the suite stop.
func (s *Suite) awaitStopped(r *run, rt *jobRuntime) {
	defer r.waiters.Done()
	<-rt.done

	snap := rt.snapshot()
	if snap.State == core.StateStopped {
		s.fire(r, core.NewEvent(core.JobStopped, rt.node.ID()).WithStatus(snap))
	}
	if rt.node == r.target && !rt.outcome.ok() && r.fatalErr() == nil {
		s.setIndexState(r, core.StateStopped)
		s.fireTerminal(r, core.NewEvent(core.SuiteStopped, s.namespace).WithStatus(snap))
	}
}
