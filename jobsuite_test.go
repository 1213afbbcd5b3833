package jobsuite_test

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/jobsuite"
)

func quiet() jobsuite.Option {
	return jobsuite.WithLogger(slog.New(slog.DiscardHandler))
}

func TestFacade_ExecuteTree(t *testing.T) {
	store, err := jobsuite.NewFileStore(t.TempDir())
	require.NoError(t, err)

	var mu sync.Mutex
	var ran []string
	leaf := func(id string) *jobsuite.Node {
		return jobsuite.Leaf(id, jobsuite.Func(func(ctx context.Context, u jobsuite.Updater) error {
			mu.Lock()
			ran = append(ran, jobsuite.JobIDFromContext(ctx))
			mu.Unlock()
			return u.SetProgress(1)
		}))
	}
	root := jobsuite.Sync("root",
		leaf("root/a"),
		jobsuite.Async("root/b", 2, leaf("root/b/1"), leaf("root/b/2")),
	)

	s, err := jobsuite.New("facade", root, store, quiet())
	require.NoError(t, err)

	var events []string
	var evMu sync.Mutex
	s.Bus().Subscribe(func(e jobsuite.Event) {
		evMu.Lock()
		events = append(events, e.Name)
		evMu.Unlock()
	}, jobsuite.SuiteStarted, jobsuite.SuiteCompleted)

	ok, err := s.Execute(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, ran, 3)
	assert.Equal(t, "root/a", ran[0])
	assert.Equal(t, []string{jobsuite.SuiteStarted, jobsuite.SuiteCompleted}, events)

	st, err := s.JobStatus(context.Background(), "root/b")
	require.NoError(t, err)
	assert.Equal(t, jobsuite.StateCompleted, st.State)
}

func TestFacade_Errors(t *testing.T) {
	store, err := jobsuite.NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = jobsuite.New("bad namespace!", jobsuite.Leaf("a", jobsuite.Func(nil)), store)
	var cfgErr *jobsuite.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)

	_, err = jobsuite.New("ok", jobsuite.Sync("g"), store)
	require.ErrorIs(t, err, jobsuite.ErrEmptyGroup)

	_, err = jobsuite.New("ok", jobsuite.Leaf("a", jobsuite.Func(func(context.Context, jobsuite.Updater) error {
		return nil
	})), nil)
	require.ErrorIs(t, err, jobsuite.ErrNilStore)
}

func TestFacade_RequestStopAndResume(t *testing.T) {
	dir := t.TempDir()
	store, err := jobsuite.NewFileStore(filepath.Join(dir, "records"))
	require.NoError(t, err)
	indexPath := filepath.Join(dir, "stoppable.json")

	started := make(chan struct{})
	var once sync.Once
	var resumed bool
	body := jobsuite.Func(func(ctx context.Context, u jobsuite.Updater) error {
		if u.Resumed() {
			resumed = true
			return nil
		}
		once.Do(func() { close(started) })
		<-u.Stopping()
		return jobsuite.ErrStopped
	})

	s, err := jobsuite.New("stoppable", jobsuite.Leaf("work", body), store,
		quiet(),
		jobsuite.WithIndexPath(indexPath),
		jobsuite.WithPollInterval(10*time.Millisecond),
		jobsuite.WithIndexInterval(0),
	)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		ok, err := s.Execute(context.Background())
		if err == nil && ok {
			err = errors.New("suite completed despite stop")
		}
		done <- err
	}()

	<-started
	snap, err := jobsuite.ReadIndex(indexPath)
	require.NoError(t, err)
	assert.Equal(t, jobsuite.StateRunning, snap.State)

	require.NoError(t, jobsuite.RequestStop(indexPath))
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("suite did not stop")
	}

	snap, err = jobsuite.ReadIndex(indexPath)
	require.NoError(t, err)
	assert.Equal(t, jobsuite.StateStopped, snap.State)

	ok, err := s.Execute(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, resumed)
}
