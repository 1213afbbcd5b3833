package definition

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/jobsuite/pkg/core"
	"github.com/jdziat/jobsuite/pkg/job"
)

const etlYAML = `
namespace: nightly
root:
  id: etl
  kind: sync
  jobs:
    - id: etl/extract
      kind: sleep
      with:
        duration: 10ms
        steps: 2
    - id: etl/load
      kind: async
      maxConcurrency: 2
      jobs:
        - {id: etl/load/users, kind: sleep, with: {duration: 5ms}}
        - {id: etl/load/orders, kind: shell, with: {command: "true"}}
`

func TestParse(t *testing.T) {
	s, err := Parse([]byte(etlYAML))
	require.NoError(t, err)
	assert.Equal(t, "nightly", s.Namespace)
	assert.Equal(t, "etl", s.Root.ID)
	require.Len(t, s.Root.Jobs, 2)
	assert.Equal(t, 2, s.Root.Jobs[1].MaxConcurrency)
	assert.Equal(t, "10ms", s.Root.Jobs[0].With["duration"])
}

func TestParse_JSON(t *testing.T) {
	s, err := Parse([]byte(`{"namespace": "n", "root": {"id": "a", "kind": "sleep", "with": {"duration": "1s"}}}`))
	require.NoError(t, err)
	assert.Equal(t, "a", s.Root.ID)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{name: "empty", input: "  \n", wantErr: "empty"},
		{name: "unknown field", input: "namespace: n\nroot: {id: a, kind: sleep, colour: red}", wantErr: "colour"},
		{name: "missing namespace", input: "root: {id: a, kind: sleep}", wantErr: "Namespace"},
		{name: "missing kind", input: "namespace: n\nroot: {id: a}", wantErr: "Kind"},
		{name: "empty group", input: "namespace: n\nroot: {id: a, kind: sync}", wantErr: "no children"},
		{name: "leaf with children", input: "namespace: n\nroot: {id: a, kind: sleep, jobs: [{id: b, kind: sleep}]}", wantErr: "cannot have children"},
		{name: "negative concurrency", input: "namespace: n\nroot: {id: a, kind: async, maxConcurrency: -1, jobs: [{id: b, kind: sleep}]}", wantErr: "MaxConcurrency"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "suite.yaml")
	require.NoError(t, os.WriteFile(path, []byte(etlYAML), 0o644))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "nightly", s.Namespace)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "not found")
}

func TestBuild(t *testing.T) {
	s, err := Parse([]byte(etlYAML))
	require.NoError(t, err)

	root, err := s.Build(NewRegistry())
	require.NoError(t, err)
	assert.Equal(t, job.KindSync, root.Kind())
	assert.Equal(t, []string{"etl", "etl/extract", "etl/load", "etl/load/users", "etl/load/orders"}, job.IDs(root))
	assert.Equal(t, 2, job.Find(root, "etl/load").MaxConcurrency())
}

func TestBuild_UnknownKind(t *testing.T) {
	s, err := Parse([]byte("namespace: n\nroot: {id: a, kind: rsync}"))
	require.NoError(t, err)

	_, err = s.Build(NewRegistry())
	var cfg *core.ConfigurationError
	require.ErrorAs(t, err, &cfg)
	assert.Equal(t, "a", cfg.JobID)
	assert.Contains(t, err.Error(), "rsync")
}

func TestBuild_BadArgs(t *testing.T) {
	s, err := Parse([]byte("namespace: n\nroot: {id: a, kind: sleep, with: {duration: soon}}"))
	require.NoError(t, err)

	_, err = s.Build(NewRegistry())
	assert.ErrorContains(t, err, "duration")
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, []string{"shell", "sleep"}, r.Kinds())

	assert.Error(t, r.Register("sync", Sleep))
	assert.Error(t, r.Register("bad kind!", Sleep))
	assert.Error(t, r.Register("broken", func() {}))

	called := false
	require.NoError(t, r.Register("noop", func(ctx context.Context, u job.Updater) error {
		called = true
		return nil
	}))
	assert.True(t, r.Has("noop"))

	exec, err := r.Executor("noop", nil)
	require.NoError(t, err)
	require.NoError(t, exec.Execute(context.Background(), nil))
	assert.True(t, called)

	assert.Panics(t, func() { r.MustRegister("async", Sleep) })
}
