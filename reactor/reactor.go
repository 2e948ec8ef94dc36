//go:build linux || darwin || freebsd

// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Readiness-based engine on top of the epoll/kqueue poller.

package reactor

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/momentics/loofah/api"
	"github.com/momentics/loofah/inet"
	"github.com/momentics/loofah/internal/engine"
	"github.com/momentics/loofah/internal/poller"
)

// Handler consumes readiness events for one socket. Only the callbacks
// matching the enabled mask are delivered.
type Handler interface {
	Fd() api.Handle
	OnReadable()
	OnWritable()
	OnAccept()
	OnConnect()
	OnError(err error)
}

type registration struct {
	h        Handler
	mask     api.EventType
	interest poller.Ready
}

// Engine dispatches readiness events to registered handlers.
type Engine struct {
	*engine.Base

	p    *poller.Poller
	regs map[int]*registration
	down bool
}

// New opens the OS selector. Failure leaves nothing allocated.
func New(opts ...Option) (*Engine, error) {
	o := engine.Apply(opts)
	p, err := poller.Open(o.MaxEvents)
	if err != nil {
		o.Logger.Error("reactor: selector init failed", zap.Error(err))
		return nil, fmt.Errorf("reactor: %w", err)
	}
	e := &Engine{
		Base: engine.NewBase("reactor", o),
		p:    p,
		regs: make(map[int]*registration),
	}
	e.SetWaker(p)
	return e, nil
}

// interestOf folds the handler mask into OS interest: ACCEPT and READ wait
// for readability, CONNECT and WRITE for writability.
func interestOf(mask api.EventType) poller.Ready {
	in := poller.None
	if mask&(api.EventAccept|api.EventRead) != 0 {
		in |= poller.Readable
	}
	if mask&(api.EventConnect|api.EventWrite) != 0 {
		in |= poller.Writable
	}
	return in
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

// Register binds h to the selector with mask. On failure h stays
// unregistered.
func (e *Engine) Register(h Handler, mask api.EventType) error {
	if err := e.checkLoop(); err != nil {
		return err
	}
	fd := h.Fd()
	if _, ok := e.regs[fd]; ok {
		return api.ErrAlreadyRegistered
	}
	in := interestOf(mask)
	if err := e.p.Add(fd, in); err != nil {
		e.Logger().Warn("register failed", zap.Int("fd", fd), zap.Error(err))
		return fmt.Errorf("reactor: register fd %d: %w", fd, err)
	}
	e.regs[fd] = &registration{h: h, mask: mask & api.EventAll, interest: in}
	return nil
}

// Enable adds mask to the handler's enabled events.
func (e *Engine) Enable(h Handler, mask api.EventType) error {
	return e.update(h, func(m api.EventType) api.EventType { return m | mask })
}

// Disable removes mask from the handler's enabled events.
func (e *Engine) Disable(h Handler, mask api.EventType) error {
	return e.update(h, func(m api.EventType) api.EventType { return m &^ mask })
}

// update only reaches the selector when the OS interest changes.
func (e *Engine) update(h Handler, fn func(api.EventType) api.EventType) error {
	if err := e.checkLoop(); err != nil {
		return err
	}
	r, ok := e.regs[h.Fd()]
	if !ok || r.h != h {
		return api.ErrNotRegistered
	}
	mask := fn(r.mask) & api.EventAll
	in := interestOf(mask)
	if in != r.interest {
		if err := e.p.Mod(h.Fd(), r.interest, in); err != nil {
			e.Logger().Warn("interest update failed", zap.Int("fd", h.Fd()), zap.Error(err))
			return fmt.Errorf("reactor: modify fd %d: %w", h.Fd(), err)
		}
		r.interest = in
	}
	r.mask = mask
	return nil
}

// Enabled returns the handler's enabled mask, EventNone when unregistered.
func (e *Engine) Enabled(h Handler) api.EventType {
	if r, ok := e.regs[h.Fd()]; ok && r.h == h {
		return r.mask
	}
	return api.EventNone
}

// Unregister removes every interest of h. Unknown handlers are ignored.
func (e *Engine) Unregister(h Handler) error {
	if !e.InLoop() {
		return api.ErrNotInLoop
	}
	fd := h.Fd()
	r, ok := e.regs[fd]
	if !ok || r.h != h {
		return nil
	}
	delete(e.regs, fd)
	if e.down {
		return nil
	}
	if err := e.p.Del(fd, r.interest); err != nil {
		e.Logger().Debug("unregister", zap.Int("fd", fd), zap.Error(err))
	}
	return nil
}

// CloseHandler unregisters h and closes its socket once the current
// dispatch batch is over, so the descriptor number cannot be reused by a
// handler further down the same batch.
func (e *Engine) CloseHandler(h Handler) error {
	fd := h.Fd()
	err := e.Unregister(h)
	e.Defer(func() {
		if cerr := inet.Close(fd); cerr != nil {
			e.Logger().Debug("close", zap.Int("fd", fd), zap.Error(cerr))
		}
	})
	return err
}

// Registered returns the number of registered handlers.
func (e *Engine) Registered() int { return len(e.regs) }

// Poll waits up to timeoutMs (negative blocks) for readiness, dispatches
// it, then runs deferred tasks and due timers. The first Poll binds the
// engine to the calling goroutine.
func (e *Engine) Poll(timeoutMs int) error {
	if err := e.Claim(); err != nil {
		return err
	}
	if e.Closed() {
		return multierr.Append(api.ErrEngineClosed, e.teardown())
	}
	e.BeginPolling()
	_, err := e.p.Wait(e.PollTimeout(timeoutMs), e.dispatch)
	e.EndDispatch()
	if err != nil {
		e.Logger().Error("wait failed", zap.Error(err))
		return fmt.Errorf("reactor: wait: %w", err)
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
// releases the selector at once; otherwise the loop does it and Poll
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
	if n := len(e.regs); n > 0 {
		e.Logger().Debug("closing with registered handlers", zap.Int("handlers", n))
	}
	clear(e.regs)
	return e.p.Close()
}

// live reports whether the registration seen at the start of the
// dispatch is still in place with bit enabled.
func (e *Engine) live(fd int, r *registration, bit api.EventType) bool {
	cur, ok := e.regs[fd]
	return ok && cur == r && cur.mask.Has(bit)
}

func (e *Engine) dispatch(fd int, ev poller.Ready) {
	r, ok := e.regs[fd]
	if !ok {
		return
	}
	delivered := false
	if ev&poller.Readable != 0 {
		switch {
		case e.live(fd, r, api.EventAccept):
			e.call(api.EventAccept, r.h.OnAccept)
			delivered = true
		case e.live(fd, r, api.EventRead):
			e.call(api.EventRead, r.h.OnReadable)
			delivered = true
		}
	}
	if ev&poller.Writable != 0 {
		switch {
		case e.live(fd, r, api.EventConnect):
			e.call(api.EventConnect, r.h.OnConnect)
			delivered = true
		case e.live(fd, r, api.EventWrite):
			e.call(api.EventWrite, r.h.OnWritable)
			delivered = true
		}
	}
	if delivered || ev&(poller.Hangup|poller.Failed) == 0 {
		return
	}
	if cur, ok := e.regs[fd]; !ok || cur != r {
		return
	}
	err := inet.SocketError(fd)
	if err == nil {
		err = api.NewError(api.KindConnectionReset, "hangup", nil)
	} else {
		err = api.WrapErrno("poll", err)
	}
	e.call(api.EventNone, func() { r.h.OnError(err) })
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
