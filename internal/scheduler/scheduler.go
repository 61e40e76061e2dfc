package scheduler

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

// PostFunc hands a callback to the goroutine that owns the scheduled work.
type PostFunc func(fn func())

// Scheduler creates one-shot and periodic timers whose callbacks are delivered
// through a PostFunc instead of running on timer goroutines. This keeps every
// callback on the owner's event loop.
type Scheduler struct {
	clock clockwork.Clock
	post  PostFunc

	mu     sync.Mutex
	active map[*Timer]struct{}
}

// Timer is a cancelable handle returned by After and Every.
type Timer struct {
	s        *Scheduler
	stopped  atomic.Bool
	stop     chan struct{}
	periodic bool
}

// New creates a scheduler on the given clock.
func New(clock clockwork.Clock, post PostFunc) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{
		clock:  clock,
		post:   post,
		active: make(map[*Timer]struct{}),
	}
}

// Clock returns the clock timers are measured on.
func (s *Scheduler) Clock() clockwork.Clock {
	return s.clock
}

// After runs fn once after d.
func (s *Scheduler) After(d time.Duration, fn func()) *Timer {
	t := s.track(false)
	timer := s.clock.NewTimer(d)

	go func() {
		select {
		case <-timer.Chan():
			s.post(func() {
				if t.stopped.Swap(true) {
					return
				}
				s.untrack(t)
				fn()
			})
		case <-t.stop:
			stopAndDrainTimer(timer)
		}
	}()

	return t
}

// Every runs fn every d until the timer is stopped. The first run happens
// after one full period.
func (s *Scheduler) Every(d time.Duration, fn func()) *Timer {
	t := s.track(true)
	ticker := s.clock.NewTicker(d)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.Chan():
				s.post(func() {
					if t.stopped.Load() {
						return
					}
					fn()
				})
			case <-t.stop:
				return
			}
		}
	}()

	return t
}

// StopAll cancels every timer that has not fired yet.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	timers := make([]*Timer, 0, len(s.active))
	for t := range s.active {
		timers = append(timers, t)
	}
	s.mu.Unlock()

	for _, t := range timers {
		t.Stop()
	}
}

// Pending returns the number of live timers.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

func (s *Scheduler) track(periodic bool) *Timer {
	t := &Timer{s: s, stop: make(chan struct{}), periodic: periodic}
	s.mu.Lock()
	s.active[t] = struct{}{}
	s.mu.Unlock()
	return t
}

func (s *Scheduler) untrack(t *Timer) {
	s.mu.Lock()
	delete(s.active, t)
	s.mu.Unlock()
}

// Stop cancels the timer. A callback already handed to the owner's loop
// becomes a no-op. Stop is safe to call more than once and on a nil timer.
func (t *Timer) Stop() {
	if t == nil {
		return
	}
	if t.stopped.Swap(true) {
		return
	}
	close(t.stop)
	t.s.untrack(t)
}

// Active reports whether the timer can still fire.
func (t *Timer) Active() bool {
	return t != nil && !t.stopped.Load()
}

// stopAndDrainTimer stops a timer and drains its channel if it already fired.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
