package storage

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/jobsuite/pkg/core"
)

func TestNewFileStore_RequiresRoot(t *testing.T) {
	_, err := NewFileStore("  ")
	assert.Error(t, err)
}

func TestFileStore_Layout(t *testing.T) {
	s := newTestFileStore(t)
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, "nightly", sampleStatus("etl/extract")))
	_, err := s.Archive(ctx, "nightly", "etl/extract")
	require.NoError(t, err)
	require.NoError(t, s.Write(ctx, "nightly", sampleStatus("etl/extract")))

	dir := filepath.Join(s.Root(), "nightly")
	assert.FileExists(t, filepath.Join(dir, "etl%2Fextract.status"))
	assert.FileExists(t, filepath.Join(dir, "etl%2Fextract.status.1"))

	data, err := os.ReadFile(filepath.Join(dir, "etl%2Fextract.status"))
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "jobId: etl/extract")
	assert.Contains(t, text, "state: RUNNING")
	assert.Less(t, strings.Index(text, "prop.cursor"), strings.Index(text, "prop.files"))
}

func TestFileStore_CorruptRecordReadsFresh(t *testing.T) {
	var logs bytes.Buffer
	s := newTestFileStore(t, WithFileLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	ctx := context.Background()
	require.NoError(t, s.Write(ctx, "nightly", sampleStatus("a")))

	path := filepath.Join(s.Root(), "nightly", "a.status")
	for _, content := range []string{"", "jobId: a\nstate: [unterminated", "- not\n- a mapping\n"} {
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		got, err := s.Read(ctx, "nightly", "a")
		require.NoError(t, err)
		assert.Equal(t, core.StateIdle, got.State)
		assert.Equal(t, "a", got.JobID)
	}
	assert.Contains(t, logs.String(), "status record unreadable")
}

func TestFileStore_IgnoresTempFiles(t *testing.T) {
	s := newTestFileStore(t)
	ctx := context.Background()
	require.NoError(t, s.Write(ctx, "nightly", sampleStatus("a")))
	require.NoError(t, os.WriteFile(filepath.Join(s.Root(), "nightly", ".a.status.tmp.123"), []byte("x"), 0o644))

	ids, err := s.List(ctx, "nightly")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids)
}

func TestFileStore_BackupKeepsDataIntact(t *testing.T) {
	s := newTestFileStore(t)
	ctx := context.Background()
	want := sampleStatus("a")
	require.NoError(t, s.Write(ctx, "nightly", want))
	_, err := s.Archive(ctx, "nightly", "a")
	require.NoError(t, err)
	require.NoError(t, s.Write(ctx, "nightly", want))

	at := time.Date(2024, 6, 1, 12, 30, 45, 500_000_000, time.UTC)
	loc, err := s.Backup(ctx, "nightly", at)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.BackupDir(), "nightly", "20240601T123045.500Z"), loc)

	data, err := os.ReadFile(filepath.Join(loc, "a.status"))
	require.NoError(t, err)
	archived, err := DecodeRecord(data)
	require.NoError(t, err)
	assert.True(t, want.Equal(archived))
	assert.FileExists(t, filepath.Join(loc, "a.status.1"))

	_, err = s.Backup(ctx, "nightly", at)
	require.NoError(t, err, "namespace is gone, nothing to move")

	require.NoError(t, s.Write(ctx, "nightly", want))
	_, err = s.Backup(ctx, "nightly", at)
	assert.Error(t, err, "existing backup must not be overwritten")
}

func TestFileStore_BackupFallsBackToCopy(t *testing.T) {
	var logs bytes.Buffer
	s := newTestFileStore(t, WithFileLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	renames := 0
	s.rename = func(oldpath, newpath string) error {
		renames++
		return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: syscall.EXDEV}
	}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Write(ctx, "nightly", sampleStatus("a")))
		loc, err := s.Backup(ctx, "nightly", time.Date(2024, 6, 1, 0, 0, i, 0, time.UTC))
		require.NoError(t, err)
		assert.FileExists(t, filepath.Join(loc, "a.status"))
		assert.NoDirExists(t, filepath.Join(s.Root(), "nightly"))
	}

	assert.True(t, s.AtomicMoveDisabled())
	assert.Equal(t, 1, renames, "atomic path disabled after the first failure")
	assert.Equal(t, 1, strings.Count(logs.String(), "atomic move not supported"), "logged once")
}

func TestFileStore_BackupOtherRenameErrorsFail(t *testing.T) {
	s := newTestFileStore(t)
	s.rename = func(oldpath, newpath string) error {
		return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: syscall.EACCES}
	}
	ctx := context.Background()
	require.NoError(t, s.Write(ctx, "nightly", sampleStatus("a")))

	_, err := s.Backup(ctx, "nightly", time.Now())
	var pe *core.PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "backup", pe.Op)
	assert.False(t, s.AtomicMoveDisabled())
}

func TestFileStore_Prune(t *testing.T) {
	s := newTestFileStore(t, WithBackupDir(filepath.Join(t.TempDir(), "backups")))
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		require.NoError(t, s.Write(ctx, "nightly", sampleStatus("a")))
		_, err := s.Backup(ctx, "nightly", base.Add(time.Duration(i)*time.Hour))
		require.NoError(t, err)
	}

	backups, err := s.Backups(ctx, "nightly")
	require.NoError(t, err)
	require.Len(t, backups, 4)
	assert.True(t, strings.HasSuffix(backups[0], "20240101T030000.000Z"), "newest first")

	removed, err := s.Prune(ctx, "nightly", 2)
	require.NoError(t, err)
	require.Len(t, removed, 2)
	assert.True(t, strings.HasSuffix(removed[1], "20240101T000000.000Z"))

	backups, err = s.Backups(ctx, "nightly")
	require.NoError(t, err)
	assert.Len(t, backups, 2)

	removed, err = s.Prune(ctx, "nightly", 5)
	require.NoError(t, err)
	assert.Empty(t, removed)
}

func TestFileStore_CanceledContext(t *testing.T) {
	s := newTestFileStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, s.Write(ctx, "nightly", sampleStatus("a")), context.Canceled)
}
