package joblog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSink_WritesPerJobFile(t *testing.T) {
	dir := t.TempDir()
	s := NewFileSink(dir)
	defer func() { _ = s.Close() }()

	s.Logger("nightly", "etl/extract").Info("extracted", "rows", 10)
	s.Logger("nightly", "etl/extract").Debug("hidden")
	s.Logger("nightly", "load").Info("loaded")

	path := filepath.Join(dir, "nightly", "etl%2Fextract.log")
	assert.Equal(t, path, s.Path("nightly", "etl/extract"))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(b)
	assert.Contains(t, text, "msg=extracted")
	assert.Contains(t, text, "job_id=etl/extract")
	assert.Contains(t, text, "rows=10")
	assert.NotContains(t, text, "hidden")

	b, err = os.ReadFile(filepath.Join(dir, "nightly", "load.log"))
	require.NoError(t, err)
	assert.Contains(t, string(b), "msg=loaded")
}

func TestFileSink_JSON(t *testing.T) {
	dir := t.TempDir()
	s := NewFileSink(dir, JSON())
	defer func() { _ = s.Close() }()

	s.Logger("nightly", "a").Info("hello")

	b, err := os.ReadFile(s.Path("nightly", "a"))
	require.NoError(t, err)
	assert.Contains(t, string(b), `"msg":"hello"`)
}

func TestFileSink_Rotate(t *testing.T) {
	dir := t.TempDir()
	s := NewFileSink(dir, MaxBackups(3))
	defer func() { _ = s.Close() }()

	s.Logger("nightly", "a").Info("before")
	s.Logger("other", "a").Info("untouched")
	require.NoError(t, s.Rotate("nightly"))
	s.Logger("nightly", "a").Info("after")

	entries, err := os.ReadDir(filepath.Join(dir, "nightly"))
	require.NoError(t, err)
	assert.Len(t, entries, 2, "current file plus one rotated backup")

	b, err := os.ReadFile(s.Path("nightly", "a"))
	require.NoError(t, err)
	assert.Contains(t, string(b), "after")
	assert.NotContains(t, string(b), "before")

	entries, err = os.ReadDir(filepath.Join(dir, "other"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestDiscard(t *testing.T) {
	var s Sink = Discard{}
	s.Logger("ns", "a").Info("dropped")
	assert.NoError(t, s.Rotate("ns"))
	assert.NoError(t, s.Close())
}
