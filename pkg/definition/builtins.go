package definition

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/jdziat/jobsuite/pkg/core"
	"github.com/jdziat/jobsuite/pkg/job"
)

// DefaultShellGrace is how long a command may run after SIGTERM.
const DefaultShellGrace = 10 * time.Second

// ShellArgs configures the "shell" kind.
type ShellArgs struct {
	Command string   `mapstructure:"command" validate:"required"`
	Args    []string `mapstructure:"args"`
	Dir     string   `mapstructure:"dir"`
	Env     []string `mapstructure:"env"`
	// Shell runs Command through "sh -c".
	Shell bool          `mapstructure:"shell"`
	Grace time.Duration `mapstructure:"grace" validate:"gte=0"`
}

// Shell runs an external command. Output lines go to the job logger. A stop
// request sends SIGTERM and, after the grace period, kills the process.
func Shell(ctx context.Context, u job.Updater, a ShellArgs) error {
	var cmd *exec.Cmd
	if a.Shell {
		cmd = exec.CommandContext(ctx, "sh", append([]string{"-c", a.Command, "sh"}, a.Args...)...)
	} else {
		cmd = exec.CommandContext(ctx, a.Command, a.Args...)
	}
	cmd.Dir = a.Dir
	cmd.Env = append(os.Environ(), a.Env...)
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = a.Grace
	if cmd.WaitDelay == 0 {
		cmd.WaitDelay = DefaultShellGrace
	}

	stdout := &lineLogger{logger: u.Logger(), level: slog.LevelInfo, stream: "stdout"}
	stderr := &lineLogger{logger: u.Logger(), level: slog.LevelWarn, stream: "stderr"}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := u.SetNote("running " + a.Command); err != nil {
		return err
	}
	err := cmd.Run()
	stdout.flush()
	stderr.flush()

	code := 0
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.ExitCode()
	}
	if perr := u.SetProperty("exitCode", strconv.Itoa(code)); perr != nil {
		return perr
	}

	if err != nil {
		if u.StopRequested() {
			return core.ErrStopped
		}
		return fmt.Errorf("command %q: %w", a.Command, err)
	}
	return u.Update(1, "exit 0")
}

// lineLogger writes each complete output line as one log record.
type lineLogger struct {
	mu     sync.Mutex
	logger *slog.Logger
	level  slog.Level
	stream string
	buf    bytes.Buffer
}

func (w *lineLogger) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf.Write(p)
	for {
		i := bytes.IndexByte(w.buf.Bytes(), '\n')
		if i < 0 {
			break
		}
		line := string(w.buf.Next(i + 1))
		w.emit(line[:len(line)-1])
	}
	return len(p), nil
}

func (w *lineLogger) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf.Len() > 0 {
		w.emit(w.buf.String())
		w.buf.Reset()
	}
}

func (w *lineLogger) emit(line string) {
	w.logger.Log(context.Background(), w.level, line, "stream", w.stream)
}

// SleepArgs configures the "sleep" kind.
type SleepArgs struct {
	Duration time.Duration `mapstructure:"duration" validate:"gt=0"`
	Steps    int           `mapstructure:"steps" validate:"gte=0"`
}

// Sleep waits for Duration, reporting progress in Steps increments. A
// resumed attempt continues from the last completed step.
func Sleep(ctx context.Context, u job.Updater, a SleepArgs) error {
	steps := a.Steps
	if steps == 0 {
		steps = 10
	}
	start := 0
	if u.Resumed() {
		if n, err := strconv.Atoi(u.Properties().First("step")); err == nil && n >= 0 && n <= steps {
			start = n
		}
	}

	tick := a.Duration / time.Duration(steps)
	for i := start; i < steps; i++ {
		timer := time.NewTimer(tick)
		select {
		case <-u.Stopping():
			timer.Stop()
			return core.ErrStopped
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		if err := u.SetProperty("step", strconv.Itoa(i+1)); err != nil {
			return err
		}
		if err := u.Update(float64(i+1)/float64(steps), fmt.Sprintf("step %d/%d", i+1, steps)); err != nil {
			return err
		}
	}
	return nil
}
