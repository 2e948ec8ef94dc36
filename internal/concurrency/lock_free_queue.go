// File: internal/concurrency/lock_free_queue.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Multi-producer/single-consumer task queue feeding an engine loop.

package concurrency

import (
	"sync"

	"github.com/eapache/queue"
)

// TaskFunc is a unit of work to execute on the loop goroutine.
type TaskFunc func()

// TaskQueue collects tasks from any goroutine; the owning loop drains it.
type TaskQueue struct {
	mu sync.Mutex
	q  *queue.Queue
}

// NewTaskQueue creates an empty queue.
func NewTaskQueue() *TaskQueue {
	return &TaskQueue{q: queue.New()}
}

// Push appends a task.
func (t *TaskQueue) Push(task TaskFunc) {
	t.mu.Lock()
	t.q.Add(task)
	t.mu.Unlock()
}

// Len returns the number of queued tasks.
func (t *TaskQueue) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.q.Length()
}

// Drain moves every queued task into dst in submission order.
func (t *TaskQueue) Drain(dst []TaskFunc) []TaskFunc {
	t.mu.Lock()
	for t.q.Length() > 0 {
		dst = append(dst, t.q.Remove().(TaskFunc))
	}
	t.mu.Unlock()
	return dst
}
