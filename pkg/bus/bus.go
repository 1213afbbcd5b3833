package bus

import (
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/jdziat/jobsuite/pkg/core"
)

// Observer receives events fired on a Bus.
type Observer func(core.Event)

type subscription struct {
	id       uint64
	names    map[string]struct{} // nil matches every event
	observer Observer
}

func (s *subscription) matches(name string) bool {
	if s.names == nil {
		return true
	}
	_, ok := s.names[name]
	return ok
}

// Bus is a synchronous publish/subscribe dispatcher keyed by event name.
type Bus struct {
	mu     sync.RWMutex
	subs   []*subscription
	nextID uint64
	logger *slog.Logger
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{logger: slog.Default()}
}

// SetLogger sets the logger used to report observer panics.
func (b *Bus) SetLogger(l *slog.Logger) {
	if l == nil {
		return
	}
	b.mu.Lock()
	b.logger = l
	b.mu.Unlock()
}

// Subscribe registers obs for the given event names, or for every event when
// no names are given. The returned function removes the subscription.
func (b *Bus) Subscribe(obs Observer, names ...string) (cancel func()) {
	sub := &subscription{observer: obs}
	if len(names) > 0 {
		sub.names = make(map[string]struct{}, len(names))
		for _, n := range names {
			sub.names[n] = struct{}{}
		}
	}

	b.mu.Lock()
	b.nextID++
	sub.id = b.nextID
	// Copy on write so Fire can iterate a snapshot without holding the lock.
	subs := make([]*subscription, len(b.subs), len(b.subs)+1)
	copy(subs, b.subs)
	b.subs = append(subs, sub)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(sub.id) })
	}
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := make([]*subscription, 0, len(b.subs))
	for _, s := range b.subs {
		if s.id != id {
			subs = append(subs, s)
		}
	}
	b.subs = subs
}

// Fire delivers e to every matching observer on the calling goroutine.
func (b *Bus) Fire(e core.Event) {
	b.mu.RLock()
	subs := b.subs
	logger := b.logger
	b.mu.RUnlock()

	for _, s := range subs {
		if s.matches(e.Name) {
			b.deliver(logger, s.observer, e)
		}
	}
}

func (b *Bus) deliver(logger *slog.Logger, obs Observer, e core.Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("event observer panicked",
				"event", e.Name,
				"source", e.Source,
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	obs(e)
}

// Len returns the number of registered observers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
