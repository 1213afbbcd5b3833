// Package config loads the jobsuite command's configuration.
package config

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/jdziat/jobsuite/pkg/core"
	"github.com/jdziat/jobsuite/pkg/index"
	"github.com/jdziat/jobsuite/pkg/joblog"
	"github.com/jdziat/jobsuite/pkg/storage"
)

// EnvPrefix prefixes environment overrides, e.g. JOBSUITE_STATE_DIR.
const EnvPrefix = "JOBSUITE"

// Store kinds.
const (
	StoreFile     = "file"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Config holds all configuration of the jobsuite command.
// The mapstructure tags are used by Viper to unmarshal the data.
type Config struct {
	StateDir      string        `mapstructure:"state_dir" validate:"required"`
	IndexDir      string        `mapstructure:"index_dir"`
	BackupDir     string        `mapstructure:"backup_dir"`
	Store         string        `mapstructure:"store" validate:"oneof=file sqlite postgres"`
	DSN           string        `mapstructure:"dsn" validate:"required_if=Store postgres"`
	PollInterval  time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
	IndexInterval time.Duration `mapstructure:"index_interval" validate:"gte=0"`

	Log     LogConfig     `mapstructure:"log"`
	JobLog  JobLogConfig  `mapstructure:"job_log"`
	Retry   RetryConfig   `mapstructure:"retry"`
	Pool    PoolConfig    `mapstructure:"pool"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Tracing TracingConfig `mapstructure:"tracing"`
	Notify  NotifyConfig  `mapstructure:"notify"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

// JobLogConfig controls the per-job rotating log files. An empty Dir
// disables them.
type JobLogConfig struct {
	Dir        string `mapstructure:"dir"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `mapstructure:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `mapstructure:"max_age_days" validate:"gte=0"`
	Compress   bool   `mapstructure:"compress"`
	JSON       bool   `mapstructure:"json"`
}

type RetryConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts" validate:"gte=1"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff" validate:"gte=0"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff" validate:"gte=0"`
}

// PoolConfig overrides the database pool of the sqlite and postgres stores.
// Zero values keep the store's defaults.
type PoolConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"gte=0"`
}

// MetricsConfig names a node-exporter textfile written after each run.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}

type NotifyConfig struct {
	Recipients []string `mapstructure:"recipients"`
	OnSuccess  bool     `mapstructure:"on_success"`
}

// SetDefaults registers the default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("state_dir", ".jobsuite")
	v.SetDefault("store", StoreFile)
	v.SetDefault("poll_interval", "250ms")
	v.SetDefault("index_interval", "250ms")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("job_log.max_size_mb", 10)
	v.SetDefault("job_log.max_backups", 5)
	v.SetDefault("job_log.max_age_days", 30)
	v.SetDefault("retry.max_attempts", 5)
	v.SetDefault("retry.initial_backoff", "100ms")
	v.SetDefault("retry.max_backoff", "5s")
	v.SetDefault("tracing.service_name", "jobsuite")
	v.SetDefault("pool.max_open_conns", 0)
	v.SetDefault("pool.max_idle_conns", 0)
	v.SetDefault("pool.conn_max_lifetime", "0s")

	// Registered so environment overrides reach Unmarshal.
	for _, key := range []string{"index_dir", "backup_dir", "dsn", "job_log.dir", "metrics.textfile"} {
		v.SetDefault(key, "")
	}
	v.SetDefault("job_log.compress", false)
	v.SetDefault("job_log.json", false)
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("notify.on_success", false)
}

// Load reads configuration from file (or jobsuite.yaml in the working
// directory when file is empty), the environment and defaults, in increasing
// order of precedence: defaults, file, environment. Flags bound to v win
// over all of them.
func Load(v *viper.Viper, file string) (*Config, error) {
	SetDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("jobsuite")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || file != "" {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return &core.ConfigurationError{Err: err}
	}
	return nil
}

// IndexPath returns the status index location of namespace.
func (c *Config) IndexPath(namespace string) string {
	dir := c.IndexDir
	if dir == "" {
		dir = c.StateDir
	}
	return index.DefaultPath(dir, namespace)
}

// RetryPolicy converts the retry settings.
func (c *Config) RetryPolicy() storage.RetryConfig {
	rc := storage.DefaultRetryConfig()
	rc.MaxAttempts = c.Retry.MaxAttempts
	rc.InitialBackoff = c.Retry.InitialBackoff
	rc.MaxBackoff = c.Retry.MaxBackoff
	return rc
}

// Logger builds the framework logger writing to w.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	var level slog.Level
	_ = level.UnmarshalText([]byte(c.Log.Level))
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// LogSink returns the per-job log sink, or nil when disabled.
func (c *Config) LogSink() joblog.Sink {
	if c.JobLog.Dir == "" {
		return nil
	}
	var level slog.Level
	_ = level.UnmarshalText([]byte(c.Log.Level))
	opts := []joblog.Option{
		joblog.MaxSize(c.JobLog.MaxSizeMB),
		joblog.MaxBackups(c.JobLog.MaxBackups),
		joblog.MaxAge(c.JobLog.MaxAgeDays),
		joblog.Compress(c.JobLog.Compress),
		joblog.Level(level),
	}
	if c.JobLog.JSON {
		opts = append(opts, joblog.JSON())
	}
	return joblog.NewFileSink(c.JobLog.Dir, opts...)
}

func (c *Config) poolOptions() []storage.PoolOption {
	opts := []storage.PoolOption{
		storage.MaxOpenConns(c.Pool.MaxOpenConns),
		storage.MaxIdleConns(c.Pool.MaxIdleConns),
	}
	if c.Pool.ConnMaxLifetime > 0 {
		opts = append(opts, storage.ConnMaxLifetime(c.Pool.ConnMaxLifetime))
	}
	return opts
}

// Store is a core.Store that also manages its backups.
type Store interface {
	core.Store
	Backups(ctx context.Context, namespace string) ([]string, error)
	Prune(ctx context.Context, namespace string, keep int) ([]string, error)
}

// OpenStore opens the configured session store.
func (c *Config) OpenStore(ctx context.Context, logger *slog.Logger) (Store, error) {
	switch c.Store {
	case StoreSQLite:
		if err := os.MkdirAll(c.StateDir, 0o755); err != nil {
			return nil, err
		}
		return storage.OpenSQLite(ctx, filepath.Join(c.StateDir, "jobsuite.db"), c.poolOptions()...)
	case StorePostgres:
		return storage.OpenPostgres(ctx, c.DSN, c.poolOptions()...)
	default:
		opts := []storage.FileOption{storage.WithFileLogger(logger)}
		if c.BackupDir != "" {
			opts = append(opts, storage.WithBackupDir(c.BackupDir))
		}
		return storage.NewFileStore(filepath.Join(c.StateDir, "records"), opts...)
	}
}
