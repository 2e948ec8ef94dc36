//go:build linux || darwin || freebsd

// File: reactor/acceptor.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import (
	"fmt"

	temperrcatcher "github.com/jbenet/go-temp-err-catcher"
	"go.uber.org/zap"

	"github.com/momentics/loofah/api"
	"github.com/momentics/loofah/inet"
)

// maxAcceptBatch bounds the accepts served by one readiness event.
const maxAcceptBatch = 128

// AcceptFunc receives each accepted non-blocking socket on the loop
// goroutine and owns it from then on.
type AcceptFunc func(fd api.Handle, peer inet.Addr)

// Acceptor is a listening socket registered for ACCEPT.
type Acceptor struct {
	e        *Engine
	fd       api.Handle
	addr     inet.Addr
	onAccept AcceptFunc
	log      *zap.Logger
	closed   bool
}

// NewAcceptor creates an idle acceptor; call Listen on the loop goroutine.
func NewAcceptor(e *Engine, onAccept AcceptFunc) *Acceptor {
	return &Acceptor{
		e:        e,
		fd:       api.InvalidHandle,
		onAccept: onAccept,
		log:      e.Logger().Named("acceptor"),
	}
}

// Listen binds addr and starts accepting. Every failure is logged and
// leaves no socket behind.
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
	if err := a.e.Register(a, api.EventAccept); err != nil {
		inet.Close(fd)
		a.fd = api.InvalidHandle
		return fmt.Errorf("acceptor: %w", err)
	}
	if local, err := inet.LocalAddr(fd); err == nil {
		a.addr = local
	} else {
		a.addr = addr
	}
	a.log.Debug("listening", zap.Stringer("addr", a.addr), zap.Int("fd", fd))
	return nil
}

// Addr returns the bound address, with the kernel-chosen port filled in.
func (a *Acceptor) Addr() inet.Addr { return a.addr }

func (a *Acceptor) Fd() api.Handle { return a.fd }

// OnAccept drains the backlog until it would block.
func (a *Acceptor) OnAccept() {
	for i := 0; i < maxAcceptBatch && !a.closed; i++ {
		fd, peer, err := inet.Accept(a.fd)
		if err != nil {
			switch {
			case inet.IsWouldBlock(err):
			case temperrcatcher.ErrIsTemporary(err):
				a.log.Warn("temporary accept failure", zap.Error(err))
			default:
				a.log.Error("accept failed", zap.Error(err))
			}
			return
		}
		a.onAccept(fd, peer)
	}
}

func (a *Acceptor) OnReadable() {}
func (a *Acceptor) OnWritable() {}
func (a *Acceptor) OnConnect()  {}

func (a *Acceptor) OnError(err error) {
	a.log.Warn("listener error", zap.Int("fd", a.fd), zap.Error(err))
}

// Close stops listening. It is idempotent and must run on the loop.
func (a *Acceptor) Close() error {
	if a.closed || a.fd == api.InvalidHandle {
		a.closed = true
		return nil
	}
	a.closed = true
	return a.e.CloseHandler(a)
}
