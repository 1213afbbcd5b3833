// Package notify turns a suite's terminal events into notifications.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jdziat/jobsuite/pkg/bus"
	"github.com/jdziat/jobsuite/pkg/core"
)

// Message is one notification.
type Message struct {
	Subject    string
	Body       string
	Recipients []string
	Event      core.Event
}

// Notifier delivers messages.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, msg Message) error

func (f NotifierFunc) Notify(ctx context.Context, msg Message) error { return f(ctx, msg) }

// LogNotifier writes messages to a logger.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(ctx context.Context, msg Message) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelInfo
	if msg.Event.Name != core.SuiteCompleted {
		level = slog.LevelWarn
	}
	logger.Log(ctx, level, msg.Subject,
		"recipients", strings.Join(msg.Recipients, ","),
		"body", msg.Body)
	return nil
}

// Events lists the suite events that produce a notification.
var Events = []string{
	core.SuiteCompleted,
	core.SuiteTerminatedPrematurely,
	core.SuiteAborted,
	core.SuiteStopped,
}

// Config controls which outcomes are reported and to whom.
type Config struct {
	Recipients []string
	// OnSuccess also reports SUITE_COMPLETED.
	OnSuccess bool
	// Timeout bounds one delivery. Zero means 30s.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Attach subscribes a notification observer for n to b.
func Attach(b *bus.Bus, n Notifier, cfg Config) (detach func()) {
	return b.Subscribe(Observer(n, cfg), Events...)
}

// Observer returns a bus observer that reports terminal suite events to n.
// Delivery failures are logged.
func Observer(n Notifier, cfg Config) bus.Observer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return func(e core.Event) {
		if e.Name == core.SuiteCompleted && !cfg.OnSuccess {
			return
		}
		msg, ok := Render(e)
		if !ok {
			return
		}
		msg.Recipients = cfg.Recipients

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := n.Notify(ctx, msg); err != nil {
			logger.Error("failed to send notification", "event", e.Name, "error", err)
		}
	}
}

// Render builds the message for a terminal suite event. It returns false for
// any other event.
func Render(e core.Event) (Message, bool) {
	var outcome string
	switch e.Name {
	case core.SuiteCompleted:
		outcome = "completed"
	case core.SuiteTerminatedPrematurely:
		outcome = "failed"
	case core.SuiteAborted:
		outcome = "aborted"
	case core.SuiteStopped:
		outcome = "stopped"
	default:
		return Message{}, false
	}

	var body strings.Builder
	fmt.Fprintf(&body, "Suite %s %s at %s.\n", e.Source, outcome, e.Time.Format(time.RFC3339))
	if e.RunID != "" {
		fmt.Fprintf(&body, "Run: %s\n", e.RunID)
	}
	if st := e.Status; st != nil {
		fmt.Fprintf(&body, "Root job %s: %s, %.0f%% done", st.JobID, st.State, st.Progress*100)
		if st.Note != "" {
			fmt.Fprintf(&body, " (%s)", st.Note)
		}
		body.WriteString("\n")
		if st.Error != "" {
			fmt.Fprintf(&body, "Error: %s\n", st.Error)
		}
	}
	if e.Err != nil {
		fmt.Fprintf(&body, "Error: %v\n", e.Err)
	}

	return Message{
		Subject: fmt.Sprintf("[jobsuite] %s %s", e.Source, outcome),
		Body:    body.String(),
		Event:   e,
	}, true
}
