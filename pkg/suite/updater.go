package suite

import (
	"log/slog"
	"time"

	"github.com/jdziat/jobsuite/pkg/core"
	"github.com/jdziat/jobsuite/pkg/job"
	"github.com/jdziat/jobsuite/pkg/security"
)

// updater is the job.Updater handed to a leaf body.
type updater struct {
	s      *Suite
	r      *run
	rt     *jobRuntime
	logger *slog.Logger
}

var _ job.Updater = (*updater)(nil)

func newUpdater(s *Suite, r *run, rt *jobRuntime) *updater {
	var logger *slog.Logger
	if s.opts.LogSink != nil {
		logger = s.opts.LogSink.Logger(s.namespace, rt.node.ID())
	} else {
		logger = s.logger.With("job_id", rt.node.ID())
	}
	return &updater{s: s, r: r, rt: rt, logger: logger.With("run_id", r.id)}
}

func (u *updater) JobID() string     { return u.rt.node.ID() }
func (u *updater) Namespace() string { return u.s.namespace }
func (u *updater) Resumed() bool     { return u.rt.resumed }

func (u *updater) Attempt() int {
	u.rt.mu.Lock()
	defer u.rt.mu.Unlock()
	return u.rt.status.Attempt()
}

func (u *updater) SetProgress(p float64) error {
	return u.mutate(true, func(st *core.Status) {
		st.SetProgress(p)
	})
}

func (u *updater) SetNote(note string) error {
	return u.mutate(true, func(st *core.Status) {
		st.Note = security.SanitizeNote(note)
	})
}

func (u *updater) Update(p float64, note string) error {
	return u.mutate(true, func(st *core.Status) {
		st.SetProgress(p)
		st.Note = security.SanitizeNote(note)
	})
}

func (u *updater) SetProperty(key string, values ...string) error {
	return u.mutate(false, func(st *core.Status) {
		st.Properties.Set(key, values...)
	})
}

func (u *updater) AddProperty(key, value string) error {
	return u.mutate(false, func(st *core.Status) {
		st.Properties.Add(key, value)
	})
}

func (u *updater) Properties() core.Properties {
	u.rt.mu.Lock()
	defer u.rt.mu.Unlock()
	return u.rt.status.Properties.Clone()
}

func (u *updater) StopRequested() bool {
	return u.rt.stopRequested()
}

func (u *updater) Stopping() <-chan struct{} {
	return u.rt.stopCh
}

func (u *updater) Touch() error {
	u.rt.mu.Lock()
	defer u.rt.mu.Unlock()
	if !u.rt.status.State.Active() {
		return nil
	}
	t, err := u.s.store.Touch(u.r.persist, u.s.namespace, u.rt.node.ID())
	if err != nil {
		return err
	}
	u.rt.status.LastActivity = t
	return nil
}

func (u *updater) Logger() *slog.Logger { return u.logger }

// mutate applies fn to the live record and persists it. Changes arriving
// after the job ended are ignored. progressed reports the change as
// JOB_PROGRESSED and forwards it to the parent group.
func (u *updater) mutate(progressed bool, fn func(st *core.Status)) error {
	rt := u.rt
	rt.mu.Lock()
	if !rt.status.State.Active() {
		rt.mu.Unlock()
		return nil
	}
	fn(rt.status)
	rt.status.LastActivity = time.Now()
	err := u.s.persist(u.r, rt.status)
	snap := rt.status.Clone()
	rt.mu.Unlock()

	if err != nil {
		u.s.logger.Error("failed to persist job update", "job_id", rt.node.ID(), "error", err)
		u.r.setFatal(err)
		return err
	}
	if progressed {
		u.s.fire(u.r, core.NewEvent(core.JobProgressed, rt.node.ID()).WithStatus(snap))
		u.s.touchIndex(u.r, false)
		rt.forward(snap.Progress)
	}
	return nil
}
