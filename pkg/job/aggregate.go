package job

import (
	"fmt"
	"sync"

	"github.com/jdziat/jobsuite/pkg/core"
)

// Aggregator combines child progress into the progress of a group.
//
// One Aggregator exists per group execution. Set may be called from any
// child goroutine; updates are serialized by a single mutex.
type Aggregator struct {
	mu       sync.Mutex
	ratios   []float64
	failed   []string
	listener func(progress float64, note string)
}

// NewAggregator creates an aggregator for a group with n children. listener, when non-nil, is called under the aggregator lock
// after every change so callers observe updates in order.
func NewAggregator(n int, listener func(progress float64, note string)) *Aggregator {
	return &Aggregator{ratios: make([]float64, n), listener: listener}
}

// Set records progress p for child i and returns the group progress and the
// number of completed children.
func (a *Aggregator) Set(i int, p float64) (float64, int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.ratios[i] = core.ClampProgress(p)
	progress, completed := a.compute()
	if a.listener != nil {
		a.listener(progress, note(completed, len(a.ratios)))
	}
	return progress, completed
}

// Fail records the id of a failed child.
func (a *Aggregator) Fail(id string) {
	a.mu.Lock()
	a.failed = append(a.failed, id)
	a.mu.Unlock()
}

// Failed returns the failed child ids in the order they were recorded.
func (a *Aggregator) Failed() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.failed...)
}

// Progress returns the current group progress.
func (a *Aggregator) Progress() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, _ := a.compute()
	return p
}

// Note renders "<completed>/<count> jobs complete".
func (a *Aggregator) Note() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, c := a.compute()
	return note(c, len(a.ratios))
}

// compute returns the mean child progress capped at 1. For a sync group this
// is the plain average; async children may report concurrently, so the cap
// guards against transient over-reporting.
func (a *Aggregator) compute() (float64, int) {
	n := len(a.ratios)
	if n == 0 {
		return 1, 0
	}
	var sum float64
	completed := 0
	for _, r := range a.ratios {
		sum += r
		if r >= 1 {
			completed++
		}
	}
	if completed == n {
		return 1, completed
	}
	return core.ClampProgress(sum / float64(n)), completed
}

func note(completed, total int) string {
	return fmt.Sprintf("%d/%d jobs complete", completed, total)
}
