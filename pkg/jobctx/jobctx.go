// Package jobctx carries the identity of the running job through context.Context.
//
// Every job invocation receives its own RunContext value. Nothing is stored in
// goroutine-local or package-level state, so concurrent children of an async
// group never observe each other's identity.
package jobctx

import (
	"context"
	"time"
)

// ConfigReader is a typed key/value configuration source.
// *viper.Viper satisfies it.
type ConfigReader interface {
	IsSet(key string) bool
	GetString(key string) string
	GetInt(key string) int
	GetBool(key string) bool
	GetFloat64(key string) float64
	GetDuration(key string) time.Duration
	GetStringSlice(key string) []string
}

// RunContext identifies one job invocation within a suite run.
type RunContext struct {
	Namespace string
	JobID     string
	RunID     string
	Resumed   bool
	Attempt   int
	Config    ConfigReader
}

type runContextKey struct{}

// WithRunContext returns a copy of ctx carrying rc.
func WithRunContext(ctx context.Context, rc RunContext) context.Context {
	return context.WithValue(ctx, runContextKey{}, rc)
}

// FromContext returns the RunContext stored in ctx.
func FromContext(ctx context.Context) (RunContext, bool) {
	rc, ok := ctx.Value(runContextKey{}).(RunContext)
	return rc, ok
}

// JobIDFromContext returns the current job id, or "" outside a job body.
func JobIDFromContext(ctx context.Context) string {
	rc, _ := FromContext(ctx)
	return rc.JobID
}

// NamespaceFromContext returns the suite namespace, or "" outside a job body.
func NamespaceFromContext(ctx context.Context) string {
	rc, _ := FromContext(ctx)
	return rc.Namespace
}

// ConfigFromContext returns the suite's configuration reader, or nil.
func ConfigFromContext(ctx context.Context) ConfigReader {
	rc, _ := FromContext(ctx)
	return rc.Config
}
