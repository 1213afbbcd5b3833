package suite

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/jobsuite/pkg/core"
	"github.com/jdziat/jobsuite/pkg/job"
)

func TestNew_Validation(t *testing.T) {
	store := newTestStore(t)
	leaf := job.Leaf("a", &counter{})

	_, err := New("bad namespace!", leaf, store)
	var cfg *core.ConfigurationError
	assert.ErrorAs(t, err, &cfg)

	_, err = New(testNamespace, leaf, nil)
	assert.ErrorIs(t, err, core.ErrNilStore)

	_, err = New(testNamespace, job.Sync("root", job.Leaf("a", &counter{}), job.Leaf("a", &counter{})), store)
	assert.ErrorIs(t, err, core.ErrDuplicateJobID)

	_, err = New(testNamespace, job.Leaf("a", nil), store)
	assert.ErrorIs(t, err, core.ErrNilExecutor)
}

func TestExecute_CompletesTree(t *testing.T) {
	store := newTestStore(t)
	a, b, c := &counter{}, &counter{}, &counter{}
	root := job.Sync("root",
		job.Leaf("a", a),
		job.Async("fan", 2, job.Leaf("b", b), job.Leaf("c", c)),
	)
	s := newTestSuite(t, root, store)
	rec := record(s)

	ok, err := s.Execute(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	for _, id := range []string{"root", "a", "fan", "b", "c"} {
		st, err := store.Read(context.Background(), testNamespace, id)
		require.NoError(t, err)
		assert.Equal(t, core.StateCompleted, st.State, id)
		assert.Equal(t, 1.0, st.Progress, id)
		assert.False(t, st.EndTime.IsZero(), id)
	}

	suiteEvents := rec.names(testNamespace)
	assert.Equal(t, []string{core.SuiteStarted, core.SuiteCompleted}, suiteEvents)
	assert.Equal(t, 1, rec.count(core.SuiteCompleted))
	assert.Equal(t, []string{core.JobStarted, core.JobProgressed, core.JobCompleted}, rec.names("a"))

	rootStatus, err := s.JobStatus(context.Background(), "root")
	require.NoError(t, err)
	assert.Equal(t, "2/2 jobs complete", rootStatus.Note)
	assert.False(t, s.Running())
	assert.NotEmpty(t, s.RunID())
}

func TestExecute_SkipsCompletedJobs(t *testing.T) {
	store := newTestStore(t)
	a := &counter{}
	s := newTestSuite(t, job.Sync("root", job.Leaf("a", a)), store)

	ok, err := s.Execute(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	rec := record(s)
	ok, err = s.Execute(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int32(1), a.calls.Load())
	assert.Equal(t, []string{core.JobSkipped}, rec.names("root"))
	assert.Equal(t, 0, rec.count(core.JobStarted))
}

func TestExecute_SyncGroupFailFast(t *testing.T) {
	store := newTestStore(t)
	first, second := &counter{err: errors.New("boom")}, &counter{}
	s := newTestSuite(t, job.Sync("root", job.Leaf("a", first), job.Leaf("b", second)), store)
	rec := record(s)

	var observed []string
	s.OnError(func(jobID string, err error) {
		observed = append(observed, jobID)
	})

	ok, err := s.Execute(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int32(0), second.calls.Load())
	assert.Equal(t, []string{"a"}, observed)

	a, err := store.Read(context.Background(), testNamespace, "a")
	require.NoError(t, err)
	assert.Equal(t, core.StateFailed, a.State)
	assert.Equal(t, "boom", a.Error)

	rootStatus, err := store.Read(context.Background(), testNamespace, "root")
	require.NoError(t, err)
	assert.Equal(t, core.StateFailed, rootStatus.State)
	assert.Contains(t, rootStatus.Error, "a")

	b, err := store.Read(context.Background(), testNamespace, "b")
	require.NoError(t, err)
	assert.Equal(t, core.StateIdle, b.State)

	e, found := rec.find(core.JobError, "a")
	require.True(t, found)
	var execErr *core.ExecutionError
	assert.ErrorAs(t, e.Err, &execErr)
	assert.Equal(t, []string{core.SuiteStarted, core.SuiteTerminatedPrematurely}, rec.names(testNamespace))
	assert.Contains(t, rec.names("root"), core.JobTerminatedPrematurely)
}

func TestExecute_AsyncGroupCollectsFailures(t *testing.T) {
	store := newTestStore(t)
	ok1, ok2 := &counter{}, &counter{}
	root := job.Async("root", 4,
		job.Leaf("a", &counter{err: errors.New("x")}),
		job.Leaf("b", ok1),
		job.Leaf("c", &counter{err: errors.New("y")}),
		job.Leaf("d", ok2),
	)
	s := newTestSuite(t, root, store)

	ok, err := s.Execute(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int32(1), ok1.calls.Load())
	assert.Equal(t, int32(1), ok2.calls.Load())

	st, err := store.Read(context.Background(), testNamespace, "root")
	require.NoError(t, err)
	assert.Equal(t, core.StateFailed, st.State)
	assert.Contains(t, st.Error, "2 child job(s) failed")
	assert.Equal(t, "2/4 jobs complete", st.Note)
}

func TestExecute_AsyncBoundsConcurrency(t *testing.T) {
	store := newTestStore(t)
	var active, peak atomic.Int32
	body := job.Func(func(ctx context.Context, u job.Updater) error {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		active.Add(-1)
		return nil
	})

	var leaves []*job.Node
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		leaves = append(leaves, job.Leaf(id, body))
	}
	s := newTestSuite(t, job.Async("root", 2, leaves...), store)

	ok, err := s.Execute(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Positive(t, peak.Load())
}

func TestExecute_ProgressAggregation(t *testing.T) {
	store := newTestStore(t)
	half := job.Func(func(ctx context.Context, u job.Updater) error {
		return u.Update(0.5, "halfway")
	})
	s := newTestSuite(t, job.Sync("root", job.Leaf("a", half), job.Leaf("b", &counter{})), store)

	var mu sync.Mutex
	var progress []float64
	var notes []string
	s.Bus().Subscribe(func(e core.Event) {
		if e.Source != "root" {
			return
		}
		mu.Lock()
		progress = append(progress, e.Status.Progress)
		notes = append(notes, e.Status.Note)
		mu.Unlock()
	}, core.JobProgressed)

	ok, err := s.Execute(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, progress)
	assert.Equal(t, 0.25, progress[0])
	assert.Equal(t, "0/2 jobs complete", notes[0])
	assert.Contains(t, notes, "1/2 jobs complete")
	assert.Equal(t, 1.0, progress[len(progress)-1])
	for i := 1; i < len(progress); i++ {
		assert.GreaterOrEqual(t, progress[i], progress[i-1])
	}
}

func TestExecute_ResumesFailedJob(t *testing.T) {
	store := newTestStore(t)
	body := &resumable{failFirst: true}
	s := newTestSuite(t, job.Sync("root", job.Leaf("a", body)), store)

	ok, err := s.Execute(context.Background())
	require.NoError(t, err)
	require.False(t, ok)

	body.failFirst = false
	rec := record(s)
	ok, err = s.Execute(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int32(1), body.executes.Load())
	assert.Equal(t, int32(1), body.resumes.Load())
	assert.Contains(t, rec.names("a"), core.JobResumed)

	st, err := store.Read(context.Background(), testNamespace, "a")
	require.NoError(t, err)
	assert.Equal(t, core.StateCompleted, st.State)
	require.Len(t, st.PriorAttempts, 1)
	assert.Equal(t, core.StateFailed, st.PriorAttempts[0].State)
	assert.Equal(t, 2, st.Attempt())
	assert.Equal(t, []string{"10", "20"}, st.Properties.Get("cursor"))
}

func TestExecute_RecoversLeafPanic(t *testing.T) {
	store := newTestStore(t)
	bad := job.Func(func(ctx context.Context, u job.Updater) error {
		panic("nil map")
	})
	s := newTestSuite(t, job.Leaf("a", bad), store)
	rec := record(s)

	ok, err := s.Execute(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	e, found := rec.find(core.JobError, "a")
	require.True(t, found)
	var execErr *core.ExecutionError
	require.ErrorAs(t, e.Err, &execErr)
	assert.True(t, execErr.Panic)
}

func TestExecute_ConcurrentRunRefused(t *testing.T) {
	store := newTestStore(t)
	b := newBlocker()
	s := newTestSuite(t, job.Leaf("a", b), store)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.Execute(context.Background())
	}()
	waitStarted(t, b.started)

	_, err := s.Execute(context.Background())
	assert.ErrorIs(t, err, core.ErrSuiteRunning)
	_, err = s.Reset(context.Background())
	assert.ErrorIs(t, err, core.ErrSuiteRunning)
	_, err = s.Backup(context.Background())
	assert.ErrorIs(t, err, core.ErrSuiteRunning)

	require.NoError(t, s.Stop(context.Background()))
	<-done
}

func TestExecute_PersistenceFailureAborts(t *testing.T) {
	flaky := &flakyStore{Store: newTestStore(t)}
	body := job.Func(func(ctx context.Context, u job.Updater) error {
		flaky.fail.Store(true)
		return u.SetProgress(0.5)
	})
	s := newTestSuite(t, job.Sync("root", job.Leaf("a", body)), flaky)
	rec := record(s)

	ok, err := s.Execute(context.Background())
	assert.False(t, ok)
	var pe *core.PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "a", pe.JobID)
	assert.Equal(t, 1, rec.count(core.SuiteAborted))
	assert.Equal(t, 0, rec.count(core.SuiteTerminatedPrematurely))
}

func TestStop_NotRunning(t *testing.T) {
	s := newTestSuite(t, job.Leaf("a", &counter{}), newTestStore(t))
	assert.ErrorIs(t, s.Stop(context.Background()), core.ErrNotRunning)
}

func TestJobStatus_UnknownJob(t *testing.T) {
	s := newTestSuite(t, job.Leaf("a", &counter{}), newTestStore(t))
	_, err := s.JobStatus(context.Background(), "nope")
	assert.ErrorIs(t, err, core.ErrUnknownJob)

	st, err := s.JobStatus(context.Background(), "a")
	require.NoError(t, err)
	assert.True(t, st.Fresh())
}
