package watch

import (
	"sync"
	"sync/atomic"
	"time"
)

// Scheduler invokes a poll cycle on a fixed interval with two guarantees:
// cycles never overlap, and a tick that fires while a cycle is still
// executing is dropped entirely rather than queued. Intervals are clamped
// to a per-scheduler minimum.
type Scheduler struct {
	cycle func()
	min   time.Duration

	mu       sync.Mutex
	interval time.Duration
	running  bool
	stop     chan struct{}
	wg       sync.WaitGroup

	// busy is set for the duration of one cycle. It is shared across loop
	// restarts so a reconfigured scheduler cannot start a cycle while an
	// in-flight one finishes.
	busy atomic.Bool
}

// NewScheduler creates a stopped scheduler. Both the minimum and the initial
// interval are required; the initial interval is clamped to the minimum.
func NewScheduler(min, interval time.Duration, cycle func()) *Scheduler {
	s := &Scheduler{
		cycle: cycle,
		min:   min,
	}
	s.interval = clamp(interval, min)
	return s
}

func clamp(d, min time.Duration) time.Duration {
	if d < min {
		return min
	}
	return d
}

// Start begins ticking at the configured interval. No-op if already running.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go s.loop(s.interval, s.stop)
}

// Stop cancels the timer. Idempotent. An in-flight cycle is allowed to
// finish; Stop does not wait for it (a cycle may itself trigger Stop).
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	close(s.stop)
}

// Wait blocks until the scheduler loop has exited. Must not be called from
// inside a poll cycle.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// SetInterval reconfigures the tick interval, clamped to the minimum. If the
// scheduler is running its loop is restarted with the new interval; the
// in-flight cycle, if any, completes first.
func (s *Scheduler) SetInterval(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interval = clamp(d, s.min)
	if !s.running {
		return
	}
	close(s.stop)
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go s.loop(s.interval, s.stop)
}

// Interval returns the effective (clamped) tick interval.
func (s *Scheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// Min returns the scheduler's minimum interval.
func (s *Scheduler) Min() time.Duration {
	return s.min
}

// Running reports whether the scheduler is armed.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) loop(interval time.Duration, stop chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !s.busy.CompareAndSwap(false, true) {
				// A cycle is still executing; this tick is skipped,
				// not queued.
				continue
			}
			s.cycle()
			s.busy.Store(false)

			// A slow cycle leaves at most one buffered tick behind.
			// Drain it so the skipped tick stays skipped.
			select {
			case <-ticker.C:
			default:
			}
		}
	}
}
