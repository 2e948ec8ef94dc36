// File: internal/engine/base.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Shared substrate of the reactor and proactor engines: loop goroutine
// affinity, the deferred task queue, the polling phase flag and the timer
// service.

package engine

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/momentics/loofah/affinity"
	"github.com/momentics/loofah/api"
	"github.com/momentics/loofah/control"
	"github.com/momentics/loofah/internal/concurrency"
)

// Waker interrupts a blocked poll.
type Waker interface {
	Wake() error
}

// Base is embedded by each engine. All methods except RunLater, Wake,
// InLoop and MarkClosed must be called on the loop goroutine.
type Base struct {
	name    string
	log     *zap.Logger
	metrics *control.Metrics
	cpu     int

	owner   atomic.Int64 // goroutine id of the loop
	claimed atomic.Bool  // set by the first Poll
	polling atomic.Bool  // between entering the wait and the end of dispatch
	closed  atomic.Bool

	waker    Waker
	tasks    *concurrency.TaskQueue
	scratch  []concurrency.TaskFunc
	deferred []func()
	timers   *concurrency.Timers
}

// NewBase binds the engine to the calling goroutine until the first Poll.
func NewBase(name string, o Options) *Base {
	b := &Base{
		name:    name,
		log:     o.Logger.Named(name),
		metrics: o.Metrics,
		cpu:     o.CPU,
		tasks:   concurrency.NewTaskQueue(),
		timers:  concurrency.NewTimers(o.Clock),
	}
	b.owner.Store(concurrency.GoroutineID())
	if o.Probes != nil {
		o.Probes.RegisterProbe(name+".pending_tasks", func() any { return b.PendingTasks() })
		o.Probes.RegisterProbe(name+".closed", func() any { return b.Closed() })
	}
	return b
}

// PinLoop binds the calling goroutine to the configured CPU, if any.
// Engines call it when Run starts.
func (b *Base) PinLoop() {
	if b.cpu < 0 {
		return
	}
	if err := affinity.Pin(b.cpu); err != nil {
		b.log.Warn("loop pinning failed", zap.Int("cpu", b.cpu), zap.Error(err))
		return
	}
	b.log.Debug("loop pinned", zap.Int("cpu", b.cpu))
}

// SetWaker installs the platform wake primitive.
func (b *Base) SetWaker(w Waker) { b.waker = w }

// Name identifies the engine in logs and metrics.
func (b *Base) Name() string { return b.name }

func (b *Base) Logger() *zap.Logger { return b.log }
func (b *Base) Metrics() *control.Metrics { return b.metrics }
func (b *Base) Timers() *concurrency.Timers { return b.timers }
func (b *Base) Closed() bool { return b.closed.Load() }
func (b *Base) Claimed() bool { return b.claimed.Load() }
func (b *Base) PendingTasks() int { return b.tasks.Len() }

// MarkClosed flips the closed flag and reports whether this call did it.
func (b *Base) MarkClosed() bool { return b.closed.CompareAndSwap(false, true) }

// InLoop reports whether the caller runs on the loop goroutine.
func (b *Base) InLoop() bool {
	return b.owner.Load() == concurrency.GoroutineID()
}

// InLoopAndNotPolling is true on the loop goroutine between poll cycles,
// the only place where handler teardown may mutate dispatch state.
func (b *Base) InLoopAndNotPolling() bool {
	return !b.polling.Load() && b.InLoop()
}

// Claim is called at the start of every Poll. The first call moves loop
// ownership to the polling goroutine; later calls from another goroutine
// fail.
func (b *Base) Claim() error {
	id := concurrency.GoroutineID()
	if b.claimed.CompareAndSwap(false, true) {
		b.owner.Store(id)
		return nil
	}
	if b.owner.Load() != id {
		return api.ErrNotInLoop
	}
	return nil
}

// BeginPolling marks the start of the wait and dispatch phase.
func (b *Base) BeginPolling() { b.polling.Store(true) }

// EndDispatch leaves the polling phase and runs the work deferred by
// Defer during dispatch.
func (b *Base) EndDispatch() {
	b.polling.Store(false)
	for len(b.deferred) > 0 {
		fns := b.deferred
		b.deferred = nil
		for _, fn := range fns {
			fn()
		}
	}
}

// Defer runs fn once the current dispatch batch is over, or immediately
// when not polling.
func (b *Base) Defer(fn func()) {
	if b.polling.Load() {
		b.deferred = append(b.deferred, fn)
		return
	}
	fn()
}

// RunLater executes task right away when called on the loop goroutine,
// otherwise queues it and wakes the loop. Queued tasks run once, in
// submission order, between poll cycles.
func (b *Base) RunLater(task func()) {
	if b.InLoop() {
		task()
		return
	}
	if b.closed.Load() {
		b.log.Debug("task dropped, engine closed")
		return
	}
	b.tasks.Push(task)
	if err := b.Wake(); err != nil {
		b.log.Warn("wake failed", zap.Error(err))
	}
}

// RunLaterTasks drains the task queue. Call it after a poll cycle only.
func (b *Base) RunLaterTasks() int {
	b.scratch = b.tasks.Drain(b.scratch[:0])
	n := len(b.scratch)
	for i, task := range b.scratch {
		task()
		b.scratch[i] = nil
	}
	b.metrics.Tasks(b.name, n)
	return n
}

// Wake interrupts the blocked poll, if any.
func (b *Base) Wake() error {
	if b.waker == nil {
		return nil
	}
	return b.waker.Wake()
}

// PollTimeout clamps the caller's timeout in milliseconds by the next
// timer deadline. Negative means wait forever.
func (b *Base) PollTimeout(timeoutMs int) int {
	idle := b.timers.Idle()
	if idle < 0 {
		return timeoutMs
	}
	ms := int((idle + time.Millisecond - 1) / time.Millisecond)
	if timeoutMs < 0 || ms < timeoutMs {
		return ms
	}
	return timeoutMs
}

// AfterPoll runs deferred tasks and due timers; engines call it at the
// end of every Poll.
func (b *Base) AfterPoll() {
	b.RunLaterTasks()
	b.timers.Tick()
	b.metrics.Poll(b.name)
}

// AfterFunc schedules fn on the loop after d and returns its cancel func.
func (b *Base) AfterFunc(d time.Duration, fn func()) (cancel func()) {
	id := b.timers.AddTimer(d, 1, fn)
	return func() { b.timers.CancelTimer(id) }
}

// Event counts a dispatched event.
func (b *Base) Event(ev string) { b.metrics.Event(b.name, ev) }
