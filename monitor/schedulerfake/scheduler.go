// Package schedulerfake is a manually driven monitor.Scheduler for tests.
package schedulerfake

import (
	"sync"
	"time"

	"github.com/droniapp/go-auth-client/monitor"
)

// Scheduler records scheduled calls and runs them only when told to.
type Scheduler struct {
	mu     sync.Mutex
	timers []*Timer
}

var _ monitor.Scheduler = (*Scheduler)(nil)

func New() *Scheduler {
	return &Scheduler{}
}

type Timer struct {
	Delay time.Duration

	scheduler *Scheduler
	f         func()
	done      bool
}

func (t *Timer) Stop() bool {
	t.scheduler.mu.Lock()
	defer t.scheduler.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	return true
}

func (s *Scheduler) AfterFunc(d time.Duration, f func()) monitor.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &Timer{Delay: d, scheduler: s, f: f}
	s.timers = append(s.timers, t)
	return t
}

// Pending returns the delays of the calls that have neither run nor been
// stopped, in scheduling order.
func (s *Scheduler) Pending() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	var delays []time.Duration
	for _, t := range s.timers {
		if !t.done {
			delays = append(delays, t.Delay)
		}
	}
	return delays
}

// FireNext runs the pending call with the shortest delay on the calling
// goroutine. It reports false if nothing is pending.
func (s *Scheduler) FireNext() bool {
	s.mu.Lock()
	live := s.timers[:0]
	for _, t := range s.timers {
		if !t.done {
			live = append(live, t)
		}
	}
	s.timers = live
	if len(live) == 0 {
		s.mu.Unlock()
		return false
	}

	next := live[0]
	for _, t := range live[1:] {
		if t.Delay < next.Delay {
			next = t
		}
	}
	next.done = true
	s.mu.Unlock()

	next.f()
	return true
}
