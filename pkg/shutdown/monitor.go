package shutdown

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultPollInterval is how often a Monitor checks for the sentinel.
const DefaultPollInterval = 250 * time.Millisecond

// Monitor watches for the stop sentinel of one suite run.
type Monitor struct {
	sentinel string
	interval time.Duration
	onStop   func()
	logger   *slog.Logger

	mu      sync.Mutex
	started bool
	stopped bool
	stopCh  chan struct{}
	done    chan struct{}
}

// NewMonitor creates a monitor for the suite publishing indexPath. onStop is
// invoked on the monitor goroutine each time a sentinel is observed; it must
// not call Stop.
func NewMonitor(indexPath string, interval time.Duration, onStop func(), logger *slog.Logger) *Monitor {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		sentinel: SentinelPath(indexPath),
		interval: interval,
		onStop:   onStop,
		logger:   logger,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// SentinelPath returns the file the monitor polls for.
func (m *Monitor) SentinelPath() string { return m.sentinel }

// Start launches the polling goroutine. A stale sentinel left by an earlier
// run is removed first so it cannot stop the new run. Calling Start twice is
// a no-op.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started || m.stopped {
		return
	}
	m.started = true
	m.removeSentinel()
	go m.loop()
}

func (m *Monitor) loop() {
	defer close(m.done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			if _, err := os.Stat(m.sentinel); err != nil {
				continue
			}
			m.logger.Info("stop sentinel detected", "sentinel", m.sentinel)
			m.removeSentinel()
			if m.onStop != nil {
				m.onStop()
			}
		}
	}
}

// Stop ends polling, waits for the goroutine to exit and removes any
// residual sentinel. It is safe to call more than once.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	started := m.started
	m.mu.Unlock()

	close(m.stopCh)
	if started {
		<-m.done
	}
	m.removeSentinel()
}

func (m *Monitor) removeSentinel() {
	if err := os.Remove(m.sentinel); err != nil && !errors.Is(err, fs.ErrNotExist) {
		m.logger.Warn("failed to remove stop sentinel", "sentinel", m.sentinel, "error", err)
	}
}
