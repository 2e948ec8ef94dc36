// File: internal/concurrency/scheduler.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Timer service ticked by an engine loop between poll cycles.

package concurrency

import (
	"container/heap"
	"time"

	"github.com/benbjohnson/clock"
)

// TimerID identifies a scheduled timer. Zero is never issued.
type TimerID uint64

type timerTask struct {
	id        TimerID
	deadline  time.Time
	interval  time.Duration
	repeat    int // remaining firings, <= 0 means forever
	fn        func()
	index     int
	cancelled bool
}

type taskHeap []*timerTask

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].id < h[j].id
	}
	return h[i].deadline.Before(h[j].deadline)
}
func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *taskHeap) Push(x any) {
	t := x.(*timerTask)
	t.index = len(*h)
	*h = append(*h, t)
}
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

// Timers is a deadline-ordered timer queue. It is not safe for concurrent
// use; only the owning loop calls it.
type Timers struct {
	clk    clock.Clock
	timerQ taskHeap
	byID   map[TimerID]*timerTask
	nextID TimerID
}

// NewTimers creates a timer queue reading time from clk (nil means the
// wall clock).
func NewTimers(clk clock.Clock) *Timers {
	if clk == nil {
		clk = clock.New()
	}
	return &Timers{clk: clk, byID: make(map[TimerID]*timerTask)}
}

// Clock returns the time source.
func (s *Timers) Clock() clock.Clock { return s.clk }

// AddTimer schedules fn after delay, repeating every delay. repeat <= 0
// repeats until cancelled, otherwise fn fires repeat times.
func (s *Timers) AddTimer(delay time.Duration, repeat int, fn func()) TimerID {
	if delay < 0 {
		delay = 0
	}
	s.nextID++
	t := &timerTask{
		id:       s.nextID,
		deadline: s.clk.Now().Add(delay),
		interval: delay,
		repeat:   repeat,
		fn:       fn,
	}
	heap.Push(&s.timerQ, t)
	s.byID[t.id] = t
	return t.id
}

// CancelTimer removes a pending timer. It reports whether the timer was
// still scheduled.
func (s *Timers) CancelTimer(id TimerID) bool {
	t, ok := s.byID[id]
	if !ok {
		return false
	}
	delete(s.byID, id)
	t.cancelled = true
	if t.index >= 0 {
		heap.Remove(&s.timerQ, t.index)
	}
	return true
}

// Len returns the number of scheduled timers.
func (s *Timers) Len() int { return len(s.timerQ) }

// Tick fires every timer whose deadline has passed and returns how many
// callbacks ran. Timers added by callbacks wait for the next Tick.
func (s *Timers) Tick() int {
	now := s.clk.Now()
	var due []*timerTask
	for s.timerQ.Len() > 0 && !s.timerQ[0].deadline.After(now) {
		t := heap.Pop(&s.timerQ).(*timerTask)
		due = append(due, t)
	}
	fired := 0
	for _, t := range due {
		// an earlier callback in this batch may have cancelled it
		if t.cancelled {
			continue
		}
		if t.repeat == 1 {
			delete(s.byID, t.id)
		} else {
			if t.repeat > 1 {
				t.repeat--
			}
			t.deadline = now.Add(t.interval)
			heap.Push(&s.timerQ, t)
		}
		fired++
		t.fn()
	}
	return fired
}

// Idle returns the time until the next deadline, or -1 if nothing is
// scheduled.
func (s *Timers) Idle() time.Duration {
	if s.timerQ.Len() == 0 {
		return -1
	}
	d := s.timerQ[0].deadline.Sub(s.clk.Now())
	if d < 0 {
		return 0
	}
	return d
}
