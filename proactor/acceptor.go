// File: proactor/acceptor.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package proactor

import (
	"fmt"
	"time"

	temperrcatcher "github.com/jbenet/go-temp-err-catcher"
	"go.uber.org/zap"

	"github.com/momentics/loofah/api"
	"github.com/momentics/loofah/inet"
)

// acceptBackoff delays relaunching after a temporary accept failure such
// as running out of descriptors.
const acceptBackoff = 10 * time.Millisecond

// AcceptFunc receives each accepted socket on the loop goroutine and owns
// it from then on.
type AcceptFunc func(conn api.Handle, peer inet.Addr)

// AcceptorOption customizes an Acceptor.
type AcceptorOption func(*Acceptor)

// WithPendingAccepts keeps n accepts in flight. Default 1.
func WithPendingAccepts(n int) AcceptorOption {
	return func(a *Acceptor) {
		if n > 0 {
			a.pending = n
		}
	}
}

// Acceptor is a listening socket that keeps accepts launched.
type Acceptor struct {
	HandlerBase

	e        *Engine
	fd       api.Handle
	addr     inet.Addr
	onAccept AcceptFunc
	pending  int
	log      *zap.Logger
	closed   bool
}

// NewAcceptor creates an idle acceptor; call Listen on the loop goroutine.
func NewAcceptor(e *Engine, onAccept AcceptFunc, opts ...AcceptorOption) *Acceptor {
	a := &Acceptor{
		e:        e,
		fd:       api.InvalidHandle,
		onAccept: onAccept,
		pending:  1,
		log:      e.Logger().Named("acceptor"),
	}
	for _, fn := range opts {
		fn(a)
	}
	return a
}

// Listen binds addr and launches the pending accepts. Every failure is
// logged and leaves no socket behind.
func (a *Acceptor) Listen(addr inet.Addr, backlog int) error {
	if a.fd != api.InvalidHandle {
		return api.ErrAlreadyRegistered
	}
	fd, err := inet.Listen(addr, backlog)
	if err != nil {
		a.log.Warn("listen failed", zap.Stringer("addr", addr), zap.Error(err))
		return err
	}
	a.fd = fd
	if err := a.e.Register(a); err != nil {
		inet.Close(fd)
		a.fd = api.InvalidHandle
		return fmt.Errorf("acceptor: %w", err)
	}
	if local, err := inet.LocalAddr(fd); err == nil {
		a.addr = local
	} else {
		a.addr = addr
	}
	for i := 0; i < a.pending; i++ {
		if err := a.e.LaunchAccept(a); err != nil {
			a.Close()
			return fmt.Errorf("acceptor: %w", err)
		}
	}
	a.log.Debug("listening", zap.Stringer("addr", a.addr), zap.Int("pending", a.pending))
	return nil
}

// Addr returns the bound address, with the kernel-chosen port filled in.
func (a *Acceptor) Addr() inet.Addr { return a.addr }

func (a *Acceptor) Fd() api.Handle { return a.fd }

// OnAcceptCompleted hands conn over and relaunches the accept.
func (a *Acceptor) OnAcceptCompleted(conn api.Handle) {
	if a.closed {
		inet.Close(conn)
		return
	}
	peer, _ := inet.PeerAddr(conn)
	a.onAccept(conn, peer)
	a.relaunch()
}

// OnIOError keeps accepting after temporary failures and gives up on
// anything else.
func (a *Acceptor) OnIOError(_ api.EventType, err *api.Error) {
	if a.closed {
		return
	}
	if temperrcatcher.ErrIsTemporary(err.Err) || err.Kind == api.KindConnectionAborted {
		a.log.Warn("temporary accept failure", zap.Error(err))
		a.e.AfterFunc(acceptBackoff, a.relaunch)
		return
	}
	a.log.Error("accept failed", zap.Error(err))
}

func (a *Acceptor) relaunch() {
	if a.closed {
		return
	}
	if err := a.e.LaunchAccept(a); err != nil {
		a.log.Warn("relaunch accept", zap.Error(err))
	}
}

// Close stops listening. It is idempotent and must run on the loop.
func (a *Acceptor) Close() {
	if a.closed {
		return
	}
	a.closed = true
	if a.fd != api.InvalidHandle {
		a.e.Release(a)
	}
}
