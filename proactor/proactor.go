// File: proactor/proactor.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Completion-based engine shared by the IOCP and POSIX backends.

package proactor

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/momentics/loofah/api"
	"github.com/momentics/loofah/inet"
	"github.com/momentics/loofah/internal/engine"
)

// backend performs requests and reports their results through
// Engine.complete.
type backend interface {
	register(st *handlerState) error
	// unregister detaches st after its requests were canceled. busy
	// reports that the OS may still reference their buffers.
	unregister(st *handlerState, canceled []*Request) (busy bool)
	submit(st *handlerState, r *Request)
	// update is called after requests of st completed.
	update(st *handlerState)
	wait(timeoutMs int) error
	Wake() error
	close() error
}

// Engine dispatches I/O completions to registered handlers.
type Engine struct {
	*engine.Base

	b      backend
	regs   map[api.Handle]*handlerState
	posted []*Request
	down   bool
}

// New creates the completion mechanism. Failure leaves nothing allocated.
func New(opts ...Option) (*Engine, error) {
	o := engine.Apply(opts)
	e := &Engine{
		Base: engine.NewBase("proactor", o),
		regs: make(map[api.Handle]*handlerState),
	}
	b, err := newBackend(e, o)
	if err != nil {
		o.Logger.Error("proactor: completion backend init failed", zap.Error(err))
		return nil, fmt.Errorf("proactor: %w", err)
	}
	e.b = b
	e.SetWaker(b)
	return e, nil
}

func (e *Engine) checkLoop() error {
	if !e.InLoop() {
		return api.ErrNotInLoop
	}
	if e.Closed() {
		return api.ErrEngineClosed
	}
	return nil
}

func (e *Engine) state(h Handler) (*handlerState, error) {
	st, ok := e.regs[h.Fd()]
	if !ok || st.h != h {
		return nil, api.ErrNotRegistered
	}
	return st, nil
}

// Register associates the handler's socket with the engine.
func (e *Engine) Register(h Handler) error {
	if err := e.checkLoop(); err != nil {
		return err
	}
	if _, ok := e.regs[h.Fd()]; ok {
		return api.ErrAlreadyRegistered
	}
	st := newHandlerState(h)
	if err := e.b.register(st); err != nil {
		e.Logger().Warn("register failed", zap.Any("fd", h.Fd()), zap.Error(err))
		return fmt.Errorf("proactor: register: %w", err)
	}
	e.regs[st.fd] = st
	return nil
}

// Unregister detaches h and cancels all its queued requests without
// dispatching them. Unknown handlers are ignored.
func (e *Engine) Unregister(h Handler) error {
	_, err := e.unregister(h)
	return err
}

func (e *Engine) unregister(h Handler) (busy bool, err error) {
	if !e.InLoop() {
		return false, api.ErrNotInLoop
	}
	st, err := e.state(h)
	if err != nil {
		return false, nil
	}
	delete(e.regs, st.fd)
	st.gone = true
	canceled := st.cancelAll()
	if e.down {
		return false, nil
	}
	return e.b.unregister(st, canceled), nil
}

// Release unregisters h and closes its socket after the current dispatch
// batch. busy reports that canceled overlapped requests may still write
// into their buffers, which must then not be recycled.
func (e *Engine) Release(h Handler) (busy bool) {
	fd := h.Fd()
	busy, err := e.unregister(h)
	if err != nil {
		e.Logger().Warn("release", zap.Error(err))
	}
	e.Defer(func() {
		if cerr := inet.Close(fd); cerr != nil {
			e.Logger().Debug("close", zap.Any("fd", fd), zap.Error(cerr))
		}
	})
	return busy
}

// Registered returns the number of registered handlers.
func (e *Engine) Registered() int { return len(e.regs) }

// Pending returns the number of queued requests of h.
func (e *Engine) Pending(h Handler) int {
	st, err := e.state(h)
	if err != nil {
		return 0
	}
	return st.pending()
}

func (e *Engine) launch(h Handler, op api.EventType, bufs [][]byte, addr inet.Addr) error {
	if err := e.checkLoop(); err != nil {
		return err
	}
	st, err := e.state(h)
	if err != nil {
		return err
	}
	r := &Request{Op: op, Bufs: bufs, st: st, addr: addr, conn: api.InvalidHandle}
	if op == api.EventConnect {
		if st.connect != nil {
			return api.ErrAlreadyRegistered
		}
		st.connect = r
	} else {
		st.queueFor(op).Add(r)
	}
	e.b.submit(st, r)
	return nil
}

// LaunchRead queues a scatter read into bufs.
func (e *Engine) LaunchRead(h Handler, bufs [][]byte) error {
	return e.launch(h, api.EventRead, bufs, inet.Addr{})
}

// LaunchWrite queues a gather write of bufs.
func (e *Engine) LaunchWrite(h Handler, bufs [][]byte) error {
	return e.launch(h, api.EventWrite, bufs, inet.Addr{})
}

// LaunchAccept queues one accept on a listening socket.
func (e *Engine) LaunchAccept(h Handler) error {
	return e.launch(h, api.EventAccept, nil, inet.Addr{})
}

// LaunchConnect starts connecting h's socket to addr.
func (e *Engine) LaunchConnect(h Handler, addr inet.Addr) error {
	return e.launch(h, api.EventConnect, nil, addr)
}

// LaunchReadLater is LaunchRead callable from any goroutine. The buffer
// list is copied; failures surface through OnIOError.
func (e *Engine) LaunchReadLater(h Handler, bufs [][]byte) {
	cp := append([][]byte(nil), bufs...)
	e.later(h, api.EventRead, func() error { return e.LaunchRead(h, cp) })
}

// LaunchWriteLater is LaunchWrite callable from any goroutine.
func (e *Engine) LaunchWriteLater(h Handler, bufs [][]byte) {
	cp := append([][]byte(nil), bufs...)
	e.later(h, api.EventWrite, func() error { return e.LaunchWrite(h, cp) })
}

// LaunchAcceptLater is LaunchAccept callable from any goroutine.
func (e *Engine) LaunchAcceptLater(h Handler) {
	e.later(h, api.EventAccept, func() error { return e.LaunchAccept(h) })
}

// LaunchConnectLater is LaunchConnect callable from any goroutine.
func (e *Engine) LaunchConnectLater(h Handler, addr inet.Addr) {
	e.later(h, api.EventConnect, func() error { return e.LaunchConnect(h, addr) })
}

func (e *Engine) later(h Handler, op api.EventType, fn func() error) {
	e.RunLater(func() {
		if err := fn(); err != nil {
			e.call(op, func() { h.OnIOError(op, asError(op, err)) })
		}
	})
}

func asError(op api.EventType, err error) *api.Error {
	var ae *api.Error
	if errors.As(err, &ae) {
		return ae
	}
	return api.WrapErrno(op.String(), err)
}

// post queues a completion produced outside the backend wait, such as a
// request that failed synchronously.
func (e *Engine) post(r *Request) {
	e.posted = append(e.posted, r)
}

// complete records the result of r and dispatches every finished request
// at the head of its queue, so completions of one direction are delivered
// in issue order even when the backend reports them out of order.
func (e *Engine) complete(r *Request) {
	if r.canceled || r.done {
		return
	}
	r.done = true
	st := r.st
	if r.Op == api.EventConnect {
		if st.connect == r {
			st.connect = nil
		}
		e.deliver(st, r)
	} else {
		q := st.queueFor(r.Op)
		for q.Length() > 0 && !st.gone {
			h := q.Peek().(*Request)
			if !h.done {
				break
			}
			q.Remove()
			e.deliver(st, h)
		}
	}
	if !st.gone && !e.down {
		e.b.update(st)
	}
}

func (e *Engine) deliver(st *handlerState, r *Request) {
	h := st.h
	if r.err != nil {
		err := asError(r.Op, r.err)
		e.call(r.Op, func() { h.OnIOError(r.Op, err) })
		return
	}
	switch r.Op {
	case api.EventAccept:
		e.call(r.Op, func() { h.OnAcceptCompleted(r.conn) })
	case api.EventConnect:
		e.call(r.Op, h.OnConnectCompleted)
	case api.EventRead:
		e.Metrics().BytesRead(r.n)
		e.call(r.Op, func() { h.OnReadCompleted(r.n) })
	case api.EventWrite:
		e.Metrics().BytesWritten(r.n)
		e.call(r.Op, func() { h.OnWriteCompleted(r.n) })
	}
}

// call runs one handler callback; a panic is logged and the loop goes on.
func (e *Engine) call(ev api.EventType, fn func()) {
	defer func() {
		if p := recover(); p != nil {
			e.Logger().Error("handler panic", zap.Stringer("event", ev), zap.Any("panic", p))
		}
	}()
	e.Event(ev.String())
	fn()
}

func (e *Engine) drainPosted() {
	for len(e.posted) > 0 {
		batch := e.posted
		e.posted = nil
		for _, r := range batch {
			e.complete(r)
		}
	}
}

// Poll waits up to timeoutMs (negative blocks) for completions, dispatches
// them, then runs deferred tasks and due timers. The first Poll binds the
// engine to the calling goroutine.
func (e *Engine) Poll(timeoutMs int) error {
	if err := e.Claim(); err != nil {
		return err
	}
	if e.Closed() {
		return multierr.Append(api.ErrEngineClosed, e.teardown())
	}
	timeout := e.PollTimeout(timeoutMs)
	if len(e.posted) > 0 {
		timeout = 0
	}
	e.BeginPolling()
	err := e.b.wait(timeout)
	e.drainPosted()
	e.EndDispatch()
	if err != nil {
		e.Logger().Error("wait failed", zap.Error(err))
		return fmt.Errorf("proactor: wait: %w", err)
	}
	e.AfterPoll()
	if e.Closed() {
		return multierr.Append(api.ErrEngineClosed, e.teardown())
	}
	return nil
}

// Run polls until ctx is done or the engine is closed, and closes the
// engine on the way out. It returns nil after Close. With WithCPU the
// calling goroutine is pinned first.
func (e *Engine) Run(ctx context.Context) error {
	e.PinLoop()
	stop := context.AfterFunc(ctx, func() { _ = e.Wake() })
	defer stop()
	defer e.Close()
	for ctx.Err() == nil {
		if err := e.Poll(-1); err != nil {
			if errors.Is(err, api.ErrEngineClosed) {
				return nil
			}
			return err
		}
	}
	return ctx.Err()
}

// Close shuts the engine down. Called on the loop between polls it
// releases the backend at once; otherwise the loop does it and Poll
// returns api.ErrEngineClosed.
func (e *Engine) Close() error {
	if !e.MarkClosed() {
		return nil
	}
	if e.InLoopAndNotPolling() {
		return e.teardown()
	}
	return e.Wake()
}

func (e *Engine) teardown() error {
	if e.down {
		return nil
	}
	e.down = true
	for fd, st := range e.regs {
		st.gone = true
		st.cancelAll()
		delete(e.regs, fd)
	}
	e.posted = nil
	return e.b.close()
}
