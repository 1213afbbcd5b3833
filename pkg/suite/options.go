package suite

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/jdziat/jobsuite/pkg/bus"
	"github.com/jdziat/jobsuite/pkg/jobctx"
	"github.com/jdziat/jobsuite/pkg/joblog"
	"github.com/jdziat/jobsuite/pkg/shutdown"
	"github.com/jdziat/jobsuite/pkg/storage"
)

// TracerName is the instrumentation name of job spans.
const TracerName = "github.com/jdziat/jobsuite"

// DefaultIndexInterval bounds how often progress updates rewrite the index.
const DefaultIndexInterval = 250 * time.Millisecond

// Options holds suite configuration.
type Options struct {
	Bus           *bus.Bus
	Logger        *slog.Logger
	IndexPath     string
	PollInterval  time.Duration
	IndexInterval time.Duration
	LogSink       joblog.Sink
	Tracer        trace.Tracer
	Config        jobctx.ConfigReader
	Retry         storage.RetryConfig
	Monitor       bool
}

// NewOptions creates Options with defaults.
func NewOptions() *Options {
	return &Options{
		PollInterval:  shutdown.DefaultPollInterval,
		IndexInterval: DefaultIndexInterval,
		Retry:         storage.DefaultRetryConfig(),
		Monitor:       true,
	}
}

func (o *Options) finish() {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Bus == nil {
		o.Bus = bus.New()
		o.Bus.SetLogger(o.Logger)
	}
	if o.Tracer == nil {
		o.Tracer = otel.Tracer(TracerName)
	}
	if o.PollInterval <= 0 {
		o.PollInterval = shutdown.DefaultPollInterval
	}
	if o.IndexInterval < 0 {
		o.IndexInterval = 0
	}
}

// Option modifies Options.
type Option interface {
	Apply(*Options)
}

type optionFunc func(*Options)

func (f optionFunc) Apply(o *Options) { f(o) }

// WithBus sets the event bus. By default each suite gets its own.
func WithBus(b *bus.Bus) Option {
	return optionFunc(func(o *Options) {
		o.Bus = b
	})
}

// WithLogger sets the framework logger.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(o *Options) {
		o.Logger = l
	})
}

// WithIndexPath sets where the status index is written. Without it no index
// is written and the shutdown monitor is disabled.
func WithIndexPath(path string) Option {
	return optionFunc(func(o *Options) {
		o.IndexPath = path
	})
}

// WithPollInterval sets how often the shutdown monitor looks for the
// sentinel.
// Default: 250ms
func WithPollInterval(d time.Duration) Option {
	return optionFunc(func(o *Options) {
		o.PollInterval = d
	})
}

// WithIndexInterval sets the minimum spacing of index rewrites caused by
// progress updates. State transitions always rewrite the index.
// Default: 250ms
func WithIndexInterval(d time.Duration) Option {
	return optionFunc(func(o *Options) {
		o.IndexInterval = d
	})
}

// WithLogSink routes Updater.Logger to per-job log files.
func WithLogSink(s joblog.Sink) Option {
	return optionFunc(func(o *Options) {
		o.LogSink = s
	})
}

// WithTracer sets the tracer used for job spans.
// Default: the global provider's tracer
func WithTracer(t trace.Tracer) Option {
	return optionFunc(func(o *Options) {
		o.Tracer = t
	})
}

// WithConfig exposes a configuration reader to job bodies via
// jobctx.RunContext.
func WithConfig(c jobctx.ConfigReader) Option {
	return optionFunc(func(o *Options) {
		o.Config = c
	})
}

// WithRetry sets the retry policy for status writes.
func WithRetry(cfg storage.RetryConfig) Option {
	return optionFunc(func(o *Options) {
		o.Retry = cfg
	})
}

// WithoutMonitor disables the sentinel-file monitor. Stop still works.
func WithoutMonitor() Option {
	return optionFunc(func(o *Options) {
		o.Monitor = false
	})
}
