// Package joblog gives every job its own append-only, rotated log file.
package joblog

import (
	"io"
	"log/slog"
	"net/url"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Sink hands out per-job loggers.
type Sink interface {
	// Logger returns the logger for one job of namespace.
	Logger(namespace, jobID string) *slog.Logger
	// Rotate starts new log files for every job of namespace.
	Rotate(namespace string) error
	Close() error
}

// FileSink writes one log file per (namespace, job id) under a directory,
// rotating by size and age.
type FileSink struct {
	dir        string
	maxSizeMB  int
	maxBackups int
	maxAgeDays int
	compress   bool
	level      slog.Leveler
	json       bool

	mu      sync.Mutex
	writers map[string]*lumberjack.Logger
}

var _ Sink = (*FileSink)(nil)

// Option configures a FileSink.
type Option func(*FileSink)

// MaxSize sets the size in megabytes at which a log file is rotated.
// Default: 10
func MaxSize(mb int) Option {
	return func(s *FileSink) { s.maxSizeMB = mb }
}

// MaxBackups sets how many rotated files are kept per job. 0 keeps all.
// Default: 5
func MaxBackups(n int) Option {
	return func(s *FileSink) { s.maxBackups = n }
}

// MaxAge sets how many days rotated files are kept. 0 keeps them forever.
func MaxAge(days int) Option {
	return func(s *FileSink) { s.maxAgeDays = days }
}

// Compress gzips rotated files.
func Compress(on bool) Option {
	return func(s *FileSink) { s.compress = on }
}

// Level sets the minimum level written to job logs.
// Default: slog.LevelInfo
func Level(l slog.Leveler) Option {
	return func(s *FileSink) { s.level = l }
}

// JSON switches the record format from text to JSON.
func JSON() Option {
	return func(s *FileSink) { s.json = true }
}

// NewFileSink creates a sink rooted at dir. Files are created lazily.
func NewFileSink(dir string, opts ...Option) *FileSink {
	s := &FileSink{
		dir:        dir,
		maxSizeMB:  10,
		maxBackups: 5,
		level:      slog.LevelInfo,
		writers:    make(map[string]*lumberjack.Logger),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the log file of a job.
func (s *FileSink) Path(namespace, jobID string) string {
	return filepath.Join(s.dir, namespace, url.PathEscape(jobID)+".log")
}

func (s *FileSink) writer(namespace, jobID string) *lumberjack.Logger {
	key := namespace + "/" + jobID
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.writers[key]; ok {
		return w
	}
	w := &lumberjack.Logger{
		Filename:   s.Path(namespace, jobID),
		MaxSize:    s.maxSizeMB,
		MaxBackups: s.maxBackups,
		MaxAge:     s.maxAgeDays,
		Compress:   s.compress,
	}
	s.writers[key] = w
	return w
}

// Logger returns a logger appending to the job's file.
func (s *FileSink) Logger(namespace, jobID string) *slog.Logger {
	var w io.Writer = s.writer(namespace, jobID)
	opts := &slog.HandlerOptions{Level: s.level}
	var h slog.Handler
	if s.json {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h).With("namespace", namespace, "job_id", jobID)
}

// Rotate rotates the open files of namespace. Jobs without an open file are
// left alone; their next write starts a file anyway.
func (s *FileSink) Rotate(namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefix := namespace + "/"
	keys := make([]string, 0, len(s.writers))
	for k := range s.writers {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := s.writers[k].Rotate(); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every open file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var first error
	for k, w := range s.writers {
		if err := w.Close(); err != nil && first == nil {
			first = err
		}
		delete(s.writers, k)
	}
	return first
}

// Discard is a Sink that drops every record.
type Discard struct{}

func (Discard) Logger(namespace, jobID string) *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func (Discard) Rotate(string) error { return nil }

func (Discard) Close() error { return nil }
