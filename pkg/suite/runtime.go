package suite

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jdziat/jobsuite/pkg/core"
	"github.com/jdziat/jobsuite/pkg/job"
	"github.com/jdziat/jobsuite/pkg/shutdown"
)

// outcome is the result of running one job within a run.
type outcome int

const (
	outcomeCompleted outcome = iota
	outcomeFailed
	outcomeStopped
	// outcomeNotStarted means a stop arrived before the job could start.
	outcomeNotStarted
)

func (o outcome) ok() bool { return o == outcomeCompleted }

// run is the state of one Execute or RunJob call.
type run struct {
	id      string
	target  *job.Node
	ctx     context.Context // never canceled by the caller; jobs get their own
	persist context.Context
	started time.Time

	jobs  map[string]*jobRuntime
	order []*jobRuntime // pre-order

	monitor *shutdown.Monitor

	// stopMu orders job starts against the stop cascade: a job either starts
	// before the cascade collects running jobs, or never starts.
	stopMu   sync.Mutex
	stopping bool
	finished bool
	waiters  sync.WaitGroup

	fatalMu sync.Mutex
	fatal   error

	terminalOnce sync.Once
	closed       chan struct{}

	indexMu      sync.Mutex // guards indexState
	indexState   core.State
	indexWriteMu sync.Mutex
	sometimes    rate.Sometimes
}

func (r *run) setFatal(err error) {
	if err == nil {
		return
	}
	r.fatalMu.Lock()
	if r.fatal == nil {
		r.fatal = err
	}
	r.fatalMu.Unlock()
}

func (r *run) fatalErr() error {
	r.fatalMu.Lock()
	defer r.fatalMu.Unlock()
	return r.fatal
}

func (r *run) isStopping() bool {
	r.stopMu.Lock()
	defer r.stopMu.Unlock()
	return r.stopping
}

// jobRuntime is the live state of one job during a run.
type jobRuntime struct {
	node   *job.Node
	parent *jobRuntime

	mu      sync.Mutex
	status  *core.Status
	resumed bool
	cancel  context.CancelFunc

	// report forwards this job's progress to its parent group's aggregator.
	// Set by the parent before the job runs.
	report func(p float64)

	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	// written by runJob before done is closed
	outcome outcome
	fatal   error
}

func newJobRuntime(n *job.Node, parent *jobRuntime, st *core.Status) *jobRuntime {
	return &jobRuntime{
		node:   n,
		parent: parent,
		status: st,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (rt *jobRuntime) snapshot() *core.Status {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.status.Clone()
}

func (rt *jobRuntime) stopRequested() bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.status.StopRequested
}

func (rt *jobRuntime) closeStop() {
	rt.stopOnce.Do(func() { close(rt.stopCh) })
}

func (rt *jobRuntime) forward(p float64) {
	if rt.report != nil {
		rt.report(p)
	}
}
