package ratelimit

import (
	"container/heap"
	"sync"
	"time"
)

type event struct {
	at  time.Time
	seq uint64
	fn  func()
}

type eventHeap []event

func (h eventHeap) Len() int { return len(h) }
func (h eventHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].seq < h[j].seq
	}
	return h[i].at.Before(h[j].at)
}
func (h eventHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *eventHeap) Push(x interface{}) { *h = append(*h, x.(event)) }
func (h *eventHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// Scheduler runs deferred callbacks from a single goroutine draining a
// min-heap of deadlines. Callbacks run in deadline order, ties in the order
// they were scheduled.
type Scheduler struct {
	mu      sync.Mutex
	events  eventHeap
	seq     uint64
	wake    chan struct{}
	done    chan struct{}
	stopped sync.Once
	exited  chan struct{}
}

// NewScheduler starts the scheduler goroutine. Call Stop to release it.
func NewScheduler() *Scheduler {
	s := &Scheduler{
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	go s.run()
	return s
}

// After schedules fn to run once d has elapsed.
func (s *Scheduler) After(d time.Duration, fn func()) {
	s.mu.Lock()
	s.seq++
	heap.Push(&s.events, event{at: time.Now().Add(d), seq: s.seq, fn: fn})
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Pending returns the number of callbacks not yet run.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// Stop terminates the scheduler. Pending callbacks are dropped.
func (s *Scheduler) Stop() {
	s.stopped.Do(func() { close(s.done) })
	<-s.exited
}

func (s *Scheduler) run() {
	defer close(s.exited)

	timer := time.NewTimer(time.Hour)
	timer.Stop()

	for {
		due, wait := s.popDue(time.Now())
		for _, fn := range due {
			fn()
		}
		if len(due) > 0 {
			continue
		}

		var timerC <-chan time.Time
		if wait >= 0 {
			timer.Reset(wait)
			timerC = timer.C
		}

		select {
		case <-s.done:
			timer.Stop()
			return
		case <-s.wake:
			if !timer.Stop() && timerC != nil {
				select {
				case <-timer.C:
				default:
				}
			}
		case <-timerC:
		}
	}
}

// popDue removes every event due at now. When none are due it returns the
// time until the next one, or -1 when the heap is empty.
func (s *Scheduler) popDue(now time.Time) ([]func(), time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []func()
	for len(s.events) > 0 && !s.events[0].at.After(now) {
		due = append(due, heap.Pop(&s.events).(event).fn)
	}
	if len(due) > 0 {
		return due, 0
	}
	if len(s.events) == 0 {
		return nil, -1
	}
	return nil, s.events[0].at.Sub(now)
}
