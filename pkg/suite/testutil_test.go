package suite

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jdziat/jobsuite/pkg/core"
	"github.com/jdziat/jobsuite/pkg/job"
	"github.com/jdziat/jobsuite/pkg/jobctx"
	"github.com/jdziat/jobsuite/pkg/storage"
)

const testNamespace = "nightly"

func newTestStore(t *testing.T) *storage.FileStore {
	t.Helper()
	store, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTestSuite(t *testing.T, root *job.Node, store core.Store, opts ...Option) *Suite {
	t.Helper()
	base := []Option{
		WithLogger(slog.New(slog.DiscardHandler)),
		WithRetry(storage.RetryConfig{MaxAttempts: 1}),
		WithIndexInterval(0),
	}
	s, err := New(testNamespace, root, store, append(base, opts...)...)
	require.NoError(t, err)
	return s
}

// recorder collects every event fired on a suite's bus.
type recorder struct {
	mu     sync.Mutex
	events []core.Event
}

func record(s *Suite) *recorder {
	r := &recorder{}
	s.Bus().Subscribe(func(e core.Event) {
		r.mu.Lock()
		r.events = append(r.events, e)
		r.mu.Unlock()
	})
	return r
}

// names returns the event names fired for source, or for every source when
// source is empty.
func (r *recorder) names(source string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		if source == "" || e.Source == source {
			out = append(out, e.Name)
		}
	}
	return out
}

func (r *recorder) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Name == name {
			n++
		}
	}
	return n
}

func (r *recorder) find(name, source string) (core.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.Name == name && e.Source == source {
			return e, true
		}
	}
	return core.Event{}, false
}

// counter is a leaf that counts its invocations.
type counter struct {
	calls atomic.Int32
	err   error
}

func (c *counter) Execute(ctx context.Context, u job.Updater) error {
	c.calls.Add(1)
	if c.err != nil {
		return c.err
	}
	return u.SetProgress(1)
}

// resumable records which entry point ran.
type resumable struct {
	failFirst bool
	executes  atomic.Int32
	resumes   atomic.Int32
}

func (r *resumable) Execute(ctx context.Context, u job.Updater) error {
	r.executes.Add(1)
	if err := u.SetProperty("cursor", "10"); err != nil {
		return err
	}
	if r.failFirst {
		return errors.New("disk full")
	}
	return nil
}

func (r *resumable) Resume(ctx context.Context, u job.Updater) error {
	r.resumes.Add(1)
	return u.AddProperty("cursor", "20")
}

// blocker runs until asked to stop.
type blocker struct {
	started   chan struct{}
	startOnce sync.Once
	result    error
	stops     atomic.Int32
}

func newBlocker() *blocker {
	return &blocker{started: make(chan struct{}), result: core.ErrStopped}
}

func (b *blocker) Execute(ctx context.Context, u job.Updater) error {
	b.startOnce.Do(func() { close(b.started) })
	if err := u.SetProgress(0.4); err != nil {
		return err
	}
	<-u.Stopping()
	return b.result
}

func (b *blocker) Stop(snapshot core.Status, _ jobctx.RunContext) {
	b.stops.Add(1)
}

func waitStarted(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("job did not start")
	}
}

// flakyStore fails writes once armed.
type flakyStore struct {
	core.Store
	fail atomic.Bool
}

func (f *flakyStore) Write(ctx context.Context, ns string, st *core.Status) error {
	if f.fail.Load() {
		return errors.New("disk unplugged")
	}
	return f.Store.Write(ctx, ns, st)
}

// gatedStore holds every Read until gate is closed and reports the first one
// on reading.
type gatedStore struct {
	core.Store
	gate     chan struct{}
	reading  chan struct{}
	readOnce sync.Once
}

func newGatedStore(inner core.Store) *gatedStore {
	return &gatedStore{Store: inner, gate: make(chan struct{}), reading: make(chan struct{})}
}

func (g *gatedStore) Read(ctx context.Context, ns, id string) (*core.Status, error) {
	g.readOnce.Do(func() { close(g.reading) })
	<-g.gate
	return g.Store.Read(ctx, ns, id)
}
