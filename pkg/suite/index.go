package suite

import (
	"os"
	"time"

	"github.com/jdziat/jobsuite/pkg/core"
	"github.com/jdziat/jobsuite/pkg/index"
)

func (s *Suite) buildIndex(r *run) *index.Snapshot {
	host, _ := os.Hostname()
	r.indexMu.Lock()
	state := r.indexState
	r.indexMu.Unlock()
	return &index.Snapshot{
		Namespace: s.namespace,
		RunID:     r.id,
		PID:       os.Getpid(),
		Host:      host,
		State:     state,
		StartTime: r.started,
		Updated:   time.Now(),
		Root: index.Build(s.root, func(id string) *core.Status {
			if rt, ok := r.jobs[id]; ok {
				return rt.snapshot()
			}
			return nil
		}),
	}
}

func (s *Suite) writeIndex(r *run) error {
	if s.opts.IndexPath == "" {
		return nil
	}
	r.indexWriteMu.Lock()
	defer r.indexWriteMu.Unlock()
	return index.Write(s.opts.IndexPath, s.buildIndex(r))
}

// touchIndex rewrites the index. Progress-driven rewrites (force false) are
// throttled to the configured interval.
func (s *Suite) touchIndex(r *run, force bool) {
	if s.opts.IndexPath == "" {
		return
	}
	write := func() {
		if err := s.writeIndex(r); err != nil {
			s.logger.Warn("failed to write status index", "path", s.opts.IndexPath, "error", err)
		}
	}
	if force || s.opts.IndexInterval == 0 {
		write()
		return
	}
	r.sometimes.Do(write)
}

func (s *Suite) setIndexState(r *run, state core.State) {
	r.indexMu.Lock()
	r.indexState = state
	r.indexMu.Unlock()
	s.touchIndex(r, true)
}
