package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jdziat/jobsuite/pkg/core"
	"github.com/jdziat/jobsuite/pkg/internal/fsutil"
	"github.com/jdziat/jobsuite/pkg/security"
)

const (
	recordExt = ".status"

	// BackupTimeFormat names backup directories; it sorts chronologically.
	BackupTimeFormat = "20060102T150405.000Z"

	defaultBackupDir = ".backup"
)

// FileStore keeps one YAML record per job under <root>/<namespace>.
//
// The current attempt lives in <jobId>.status; archived attempts in
// <jobId>.status.1, .2, ... in creation order.
type FileStore struct {
	root      string
	backupDir string
	logger    *slog.Logger

	locks *KeyLock
	// nsMu lets Backup exclude writers of the whole namespace while ordinary
	// writes only contend on their own key.
	nsMu sync.RWMutex

	atomicMoveDisabled atomic.Bool
	fallbackOnce       sync.Once
	rename             func(oldpath, newpath string) error
}

var _ core.Store = (*FileStore)(nil)

// FileOption configures a FileStore.
type FileOption interface {
	applyFile(*FileStore)
}

type fileOptionFunc func(*FileStore)

func (f fileOptionFunc) applyFile(s *FileStore) { f(s) }

// WithBackupDir sets the directory that receives namespace backups.
// Default: <root>/.backup
func WithBackupDir(dir string) FileOption {
	return fileOptionFunc(func(s *FileStore) {
		s.backupDir = dir
	})
}

// WithFileLogger sets the logger used for degraded reads and fallbacks.
func WithFileLogger(l *slog.Logger) FileOption {
	return fileOptionFunc(func(s *FileStore) {
		if l != nil {
			s.logger = l
		}
	})
}

// NewFileStore creates a store rooted at root, creating the directory if
// needed.
func NewFileStore(root string, opts ...FileOption) (*FileStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("file store root dir is empty")
	}
	s := &FileStore{
		root:      root,
		backupDir: filepath.Join(root, defaultBackupDir),
		logger:    slog.Default(),
		locks:     NewKeyLock(),
		rename:    os.Rename,
	}
	for _, opt := range opts {
		opt.applyFile(s)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create store root: %w", err)
	}
	return s, nil
}

// Root returns the store's root directory.
func (s *FileStore) Root() string { return s.root }

// BackupDir returns the directory that receives namespace backups.
func (s *FileStore) BackupDir() string { return s.backupDir }

// AtomicMoveDisabled reports whether Backup has fallen back to copy and
// remove for this store.
func (s *FileStore) AtomicMoveDisabled() bool { return s.atomicMoveDisabled.Load() }

func (s *FileStore) namespaceDir(namespace string) string {
	return filepath.Join(s.root, namespace)
}

func (s *FileStore) recordPath(namespace, jobID string, attempt int) string {
	name := url.PathEscape(jobID) + recordExt
	if attempt > 0 {
		name += "." + strconv.Itoa(attempt)
	}
	return filepath.Join(s.namespaceDir(namespace), name)
}

func validateKey(namespace, jobID string) error {
	if err := security.ValidateNamespace(namespace); err != nil {
		return err
	}
	return security.ValidateJobID(jobID)
}

// Write persists the current attempt of status.
func (s *FileStore) Write(ctx context.Context, namespace string, status *core.Status) error {
	if status == nil {
		return &core.PersistenceError{Op: "write", Namespace: namespace, Err: errors.New("status is nil")}
	}
	if err := validateKey(namespace, status.JobID); err != nil {
		return &core.PersistenceError{Op: "write", Namespace: namespace, JobID: status.JobID, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := EncodeRecord(status)
	if err != nil {
		return &core.PersistenceError{Op: "write", Namespace: namespace, JobID: status.JobID, Err: err}
	}

	s.nsMu.RLock()
	defer s.nsMu.RUnlock()
	unlock := s.locks.Lock(storageKey(namespace, status.JobID))
	defer unlock()

	path := s.recordPath(namespace, status.JobID, 0)
	if err := fsutil.WriteAtomic(path, data, 0o644); err != nil {
		return &core.PersistenceError{Op: "write", Namespace: namespace, JobID: status.JobID, Err: err}
	}
	// The mtime doubles as the heartbeat; align it with the record so that
	// only a later Touch moves it forward.
	if la := status.LastActivity; !la.IsZero() {
		if err := os.Chtimes(path, la, la); err != nil {
			return &core.PersistenceError{Op: "write", Namespace: namespace, JobID: status.JobID, Err: err}
		}
	}
	return nil
}

// Read loads the current record and its archived attempts. Missing, torn or
// corrupt current records yield a fresh record; the failure is logged.
func (s *FileStore) Read(ctx context.Context, namespace, jobID string) (*core.Status, error) {
	if err := validateKey(namespace, jobID); err != nil {
		return nil, &core.PersistenceError{Op: "read", Namespace: namespace, JobID: jobID, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	current, err := s.readFile(s.recordPath(namespace, jobID, 0), true)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("status record unreadable, treating job as fresh",
				"namespace", namespace, "job_id", jobID, "error", err)
		}
		current = core.NewStatus(jobID)
	}
	current.JobID = jobID

	for n := 1; ; n++ {
		prior, err := s.readFile(s.recordPath(namespace, jobID, n), false)
		if errors.Is(err, fs.ErrNotExist) {
			break
		}
		if err != nil {
			s.logger.Warn("archived attempt unreadable, skipping",
				"namespace", namespace, "job_id", jobID, "attempt", n, "error", err)
			continue
		}
		current.PriorAttempts = append(current.PriorAttempts, prior)
	}
	return current, nil
}

func (s *FileStore) readFile(path string, withMtime bool) (*core.Status, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	st, err := DecodeRecord(data)
	if err != nil {
		return nil, err
	}
	if withMtime && !st.LastActivity.IsZero() {
		if info, err := os.Stat(path); err == nil && info.ModTime().After(st.LastActivity) {
			st.LastActivity = info.ModTime()
		}
	}
	return st, nil
}

// Remove deletes the current record and every archived attempt.
func (s *FileStore) Remove(ctx context.Context, namespace, jobID string) error {
	if err := validateKey(namespace, jobID); err != nil {
		return &core.PersistenceError{Op: "remove", Namespace: namespace, JobID: jobID, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.nsMu.RLock()
	defer s.nsMu.RUnlock()
	unlock := s.locks.Lock(storageKey(namespace, jobID))
	defer unlock()

	if err := os.Remove(s.recordPath(namespace, jobID, 0)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &core.PersistenceError{Op: "remove", Namespace: namespace, JobID: jobID, Err: err}
	}
	for n := 1; ; n++ {
		err := os.Remove(s.recordPath(namespace, jobID, n))
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return &core.PersistenceError{Op: "remove", Namespace: namespace, JobID: jobID, Err: err}
		}
	}
}

// Archive renames the current record to the next free attempt number.
func (s *FileStore) Archive(ctx context.Context, namespace, jobID string) (int, error) {
	if err := validateKey(namespace, jobID); err != nil {
		return 0, &core.PersistenceError{Op: "archive", Namespace: namespace, JobID: jobID, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.nsMu.RLock()
	defer s.nsMu.RUnlock()
	unlock := s.locks.Lock(storageKey(namespace, jobID))
	defer unlock()

	current := s.recordPath(namespace, jobID, 0)
	if _, err := os.Stat(current); errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}

	n := 1
	for {
		if _, err := os.Stat(s.recordPath(namespace, jobID, n)); errors.Is(err, fs.ErrNotExist) {
			break
		}
		n++
	}
	if err := os.Rename(current, s.recordPath(namespace, jobID, n)); err != nil {
		return 0, &core.PersistenceError{Op: "archive", Namespace: namespace, JobID: jobID, Err: err}
	}
	return n, nil
}

// Touch sets the modification time of the current record to now.
func (s *FileStore) Touch(ctx context.Context, namespace, jobID string) (time.Time, error) {
	if err := validateKey(namespace, jobID); err != nil {
		return time.Time{}, &core.PersistenceError{Op: "touch", Namespace: namespace, JobID: jobID, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}

	s.nsMu.RLock()
	defer s.nsMu.RUnlock()
	unlock := s.locks.Lock(storageKey(namespace, jobID))
	defer unlock()

	now := time.Now()
	if err := os.Chtimes(s.recordPath(namespace, jobID, 0), now, now); err != nil {
		return time.Time{}, &core.PersistenceError{Op: "touch", Namespace: namespace, JobID: jobID, Err: err}
	}
	return now, nil
}

// List returns the ids of jobs with a current record, sorted.
func (s *FileStore) List(ctx context.Context, namespace string) ([]string, error) {
	if err := security.ValidateNamespace(namespace); err != nil {
		return nil, &core.PersistenceError{Op: "list", Namespace: namespace, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.namespaceDir(namespace))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, &core.PersistenceError{Op: "list", Namespace: namespace, Err: err}
	}

	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || fsutil.IsTemp(name) || !strings.HasSuffix(name, recordExt) {
			continue
		}
		id, err := url.PathUnescape(strings.TrimSuffix(name, recordExt))
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Backup moves the namespace directory to <backupDir>/<namespace>/<at>.
//
// The move is a rename. When the filesystem cannot rename across the two
// locations, the store copies and removes instead and keeps doing so for the
// rest of its lifetime.
func (s *FileStore) Backup(ctx context.Context, namespace string, at time.Time) (string, error) {
	if err := security.ValidateNamespace(namespace); err != nil {
		return "", &core.PersistenceError{Op: "backup", Namespace: namespace, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.nsMu.Lock()
	defer s.nsMu.Unlock()

	src := s.namespaceDir(namespace)
	if _, err := os.Stat(src); errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}

	dst := filepath.Join(s.backupDir, namespace, at.UTC().Format(BackupTimeFormat))
	if _, err := os.Stat(dst); err == nil {
		return "", &core.PersistenceError{Op: "backup", Namespace: namespace, Err: fmt.Errorf("backup %s already exists", dst)}
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", &core.PersistenceError{Op: "backup", Namespace: namespace, Err: err}
	}

	if !s.atomicMoveDisabled.Load() {
		err := s.rename(src, dst)
		if err == nil {
			return dst, nil
		}
		if !fsutil.IsCrossDevice(err) {
			return "", &core.PersistenceError{Op: "backup", Namespace: namespace, Err: err}
		}
		s.atomicMoveDisabled.Store(true)
		s.fallbackOnce.Do(func() {
			s.logger.Warn("atomic move not supported, falling back to copy",
				"root", s.root, "backup_dir", s.backupDir, "error", err)
		})
	}

	if err := fsutil.CopyTree(src, dst); err != nil {
		_ = os.RemoveAll(dst)
		return "", &core.PersistenceError{Op: "backup", Namespace: namespace, Err: fmt.Errorf("%w: %v", core.ErrAtomicMoveDisabled, err)}
	}
	if err := os.RemoveAll(src); err != nil {
		return "", &core.PersistenceError{Op: "backup", Namespace: namespace, Err: err}
	}
	return dst, nil
}

// Backups returns the backup directories of namespace, newest first.
func (s *FileStore) Backups(ctx context.Context, namespace string) ([]string, error) {
	if err := security.ValidateNamespace(namespace); err != nil {
		return nil, &core.PersistenceError{Op: "backups", Namespace: namespace, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dir := filepath.Join(s.backupDir, namespace)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, &core.PersistenceError{Op: "backups", Namespace: namespace, Err: err}
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := time.Parse(BackupTimeFormat, e.Name()); err != nil {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Sort(sort.Reverse(sort.StringSlice(out)))
	return out, nil
}

// Prune deletes all but the newest keep backups of namespace and returns the
// removed paths.
func (s *FileStore) Prune(ctx context.Context, namespace string, keep int) ([]string, error) {
	backups, err := s.Backups(ctx, namespace)
	if err != nil {
		return nil, err
	}
	if keep < 0 {
		keep = 0
	}
	if len(backups) <= keep {
		return nil, nil
	}
	var removed []string
	for _, b := range backups[keep:] {
		if err := os.RemoveAll(b); err != nil {
			return removed, &core.PersistenceError{Op: "prune", Namespace: namespace, Err: err}
		}
		removed = append(removed, b)
	}
	return removed, nil
}

// Close releases nothing; it exists to satisfy core.Store.
func (s *FileStore) Close() error { return nil }
