package suite

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/jdziat/jobsuite/pkg/core"
	"github.com/jdziat/jobsuite/pkg/job"
)

// runSync runs the children of a sync group in order. The first failed child
// ends the group with a *core.GroupFailureError.
func (s *Suite) runSync(r *run, rt *jobRuntime) error {
	children := rt.node.Children()
	agg := job.NewAggregator(len(children), s.groupListener(r, rt))

	for i, c := range children {
		select {
		case <-rt.stopCh:
			return core.ErrStopped
		default:
		}

		crt := r.jobs[c.ID()]
		crt.report = func(p float64) { agg.Set(i, p) }
		s.runJob(r, crt)

		switch crt.outcome {
		case outcomeCompleted:
		case outcomeFailed:
			if crt.fatal != nil {
				return crt.fatal
			}
			agg.Fail(c.ID())
			return &core.GroupFailureError{GroupID: rt.node.ID(), Failed: agg.Failed()}
		default:
			return core.ErrStopped
		}
	}
	return nil
}

// runAsync runs the children of an async group on a bounded worker pool and
// waits for all of them. Children not yet started when the group is asked to
// stop are skipped.
func (s *Suite) runAsync(r *run, rt *jobRuntime) error {
	children := rt.node.Children()
	agg := job.NewAggregator(len(children), s.groupListener(r, rt))

	feed := make(chan int)
	var (
		wg       sync.WaitGroup
		stopped  atomic.Bool
		fatalMu  sync.Mutex
		fatalErr error
	)

	for w := 0; w < rt.node.MaxConcurrency(); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range feed {
				c := children[i]
				select {
				case <-rt.stopCh:
					stopped.Store(true)
					continue
				default:
				}

				crt := r.jobs[c.ID()]
				crt.report = func(p float64) { agg.Set(i, p) }
				s.runJob(r, crt)

				switch crt.outcome {
				case outcomeCompleted:
				case outcomeFailed:
					if crt.fatal != nil {
						fatalMu.Lock()
						if fatalErr == nil {
							fatalErr = crt.fatal
						}
						fatalMu.Unlock()
						continue
					}
					agg.Fail(c.ID())
				default:
					stopped.Store(true)
				}
			}
		}()
	}

	for i := range children {
		feed <- i
	}
	close(feed)
	wg.Wait()

	if fatalErr != nil {
		return fatalErr
	}
	if failed := agg.Failed(); len(failed) > 0 {
		return &core.GroupFailureError{GroupID: rt.node.ID(), Failed: failed}
	}
	if stopped.Load() {
		return core.ErrStopped
	}
	return nil
}

// groupListener returns the aggregator listener of a group: it stores the
// combined progress and note on the group's record and forwards the
// progress to the group's own parent.
func (s *Suite) groupListener(r *run, rt *jobRuntime) func(float64, string) {
	return func(p float64, note string) {
		rt.mu.Lock()
		if !rt.status.State.Active() {
			rt.mu.Unlock()
			return
		}
		rt.status.SetProgress(p)
		rt.status.Note = note
		rt.status.LastActivity = time.Now()
		err := s.persist(r, rt.status)
		snap := rt.status.Clone()
		rt.mu.Unlock()

		if err != nil {
			s.logger.Error("failed to persist group progress", "job_id", rt.node.ID(), "error", err)
			r.setFatal(err)
		}
		s.fire(r, core.NewEvent(core.JobProgressed, rt.node.ID()).WithStatus(snap))
		s.touchIndex(r, false)
		rt.forward(p)
	}
}
