package actor

import (
	"container/heap"
	"sync"
	"sync/atomic"
	"time"
)

// Scheduler abstracts wall-clock time so tests can accelerate it. Production
// code uses RealScheduler; tests that need deterministic scheduled
// self-messages use NewAcceleratedScheduler.
type Scheduler interface {
	// Now returns the scheduler's current time.
	Now() time.Time
	// After fires once after d has elapsed on the scheduler's clock.
	After(d time.Duration) <-chan time.Time
	// NewGuard returns a handle that prevents an accelerated scheduler's
	// virtual clock from advancing until Release is called. RealScheduler
	// returns a no-op guard.
	NewGuard() *guardHandle
}

// guardHandle is the "no advance time" token an in-flight envelope carries.
// Releasing it more than once is safe.
type guardHandle struct {
	sched   *AcceleratedScheduler
	release sync.Once
}

func (g *guardHandle) Release() {
	if g == nil || g.sched == nil {
		return
	}
	g.release.Do(func() {
		g.sched.outstanding.Add(-1)
		g.sched.wake()
	})
}

// RealScheduler delegates directly to the time package.
type RealScheduler struct{}

func NewRealScheduler() *RealScheduler { return &RealScheduler{} }

func (RealScheduler) Now() time.Time                    { return time.Now() }
func (RealScheduler) After(d time.Duration) <-chan time.Time { return time.After(d) }
func (RealScheduler) NewGuard() *guardHandle             { return &guardHandle{} }

// timerEntry is one pending wakeup in the accelerated scheduler's min-heap.
type timerEntry struct {
	at    time.Time
	c     chan time.Time
	index int
}

type timerHeap []*timerEntry

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].at.Before(h[j].at) }
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index, h[j].index = i, j }
func (h *timerHeap) Push(x any)         { e := x.(*timerEntry); e.index = len(*h); *h = append(*h, e) }
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// AcceleratedScheduler is a virtual clock: it only advances to the next
// pending timer once no envelope is in flight (outstanding == 0), so a test
// can "sleep" 200 virtual seconds in a few real milliseconds while every
// scheduled self-message still fires in the order it would in production.
type AcceleratedScheduler struct {
	mu          sync.Mutex
	now         time.Time
	timers      timerHeap
	outstanding atomic.Int64
	wakeCh      chan struct{}
	closed      bool
}

// NewAcceleratedScheduler creates a virtual-clock scheduler starting at
// epoch and launches its drive loop.
func NewAcceleratedScheduler() *AcceleratedScheduler {
	s := &AcceleratedScheduler{
		now:    time.Unix(0, 0),
		wakeCh: make(chan struct{}, 1),
	}
	go s.driveLoop()
	return s
}

func (s *AcceleratedScheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *AcceleratedScheduler) After(d time.Duration) <-chan time.Time {
	s.mu.Lock()
	e := &timerEntry{at: s.now.Add(d), c: make(chan time.Time, 1)}
	heap.Push(&s.timers, e)
	s.mu.Unlock()
	s.wake()
	return e.c
}

func (s *AcceleratedScheduler) NewGuard() *guardHandle {
	s.outstanding.Add(1)
	return &guardHandle{sched: s}
}

func (s *AcceleratedScheduler) wake() {
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}

// Close stops the drive loop. Intended for test teardown.
func (s *AcceleratedScheduler) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.wake()
}

func (s *AcceleratedScheduler) driveLoop() {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		if s.outstanding.Load() > 0 || s.timers.Len() == 0 {
			s.mu.Unlock()
			<-s.wakeCh
			continue
		}
		next := heap.Pop(&s.timers).(*timerEntry)
		s.now = next.at
		s.mu.Unlock()
		next.c <- next.at
	}
}
