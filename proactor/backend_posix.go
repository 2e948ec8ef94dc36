//go:build linux || darwin || freebsd

// File: proactor/backend_posix.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Completion emulation over the readiness poller: when a socket turns
// ready the oldest matching request is performed synchronously and its
// result dispatched as a completion.

package proactor

import (
	"go.uber.org/zap"

	"github.com/momentics/loofah/api"
	"github.com/momentics/loofah/inet"
	"github.com/momentics/loofah/internal/engine"
	"github.com/momentics/loofah/internal/poller"
)

// maxAcceptBatch bounds the accepts served by one readiness event.
const maxAcceptBatch = 128

type requestSys struct{}

type stateSys struct {
	interest poller.Ready
	detached bool
	hangup   error
}

type posixBackend struct {
	e *Engine
	p *poller.Poller
}

func newBackend(e *Engine, o engine.Options) (backend, error) {
	p, err := poller.Open(o.MaxEvents)
	if err != nil {
		return nil, err
	}
	return &posixBackend{e: e, p: p}, nil
}

func (b *posixBackend) Wake() error { return b.p.Wake() }

func (b *posixBackend) close() error { return b.p.Close() }

func (b *posixBackend) register(st *handlerState) error {
	return b.p.Add(st.fd, poller.None)
}

func (b *posixBackend) unregister(st *handlerState, _ []*Request) bool {
	if !st.sys.detached {
		if err := b.p.Del(st.fd, st.sys.interest); err != nil {
			b.e.Logger().Debug("unregister", zap.Int("fd", st.fd), zap.Error(err))
		}
	}
	return false
}

func (b *posixBackend) submit(st *handlerState, r *Request) {
	if r.Op == api.EventConnect {
		err := inet.Connect(st.fd, r.addr)
		switch {
		case err == nil:
			b.e.post(r)
			return
		case !inet.InProgress(err):
			r.err = err
			b.e.post(r)
			return
		}
	}
	b.update(st)
}

// update derives OS interest from the queued requests: accepts and reads
// wait for readability, connects and writes for writability.
func (b *posixBackend) update(st *handlerState) {
	in := poller.None
	if head(st.accepts) != nil || head(st.reads) != nil {
		in |= poller.Readable
	}
	if (st.connect != nil && !st.connect.done) || head(st.writes) != nil {
		in |= poller.Writable
	}
	if st.sys.detached {
		if in != poller.None {
			b.failAll(st, st.sys.hangup)
		}
		return
	}
	if in == st.sys.interest {
		return
	}
	if err := b.p.Mod(st.fd, st.sys.interest, in); err != nil {
		b.e.Logger().Warn("interest update failed", zap.Int("fd", st.fd), zap.Error(err))
		b.failAll(st, err)
		return
	}
	st.sys.interest = in
}

func (b *posixBackend) wait(timeoutMs int) error {
	_, err := b.p.Wait(timeoutMs, b.ready)
	return err
}

func (b *posixBackend) ready(fd int, ev poller.Ready) {
	st, ok := b.e.regs[fd]
	if !ok {
		return
	}
	served := false
	if ev&poller.Readable != 0 {
		served = b.serveAccepts(st) || served
		served = b.serveRead(st) || served
	}
	if ev&poller.Writable != 0 && !st.gone {
		served = b.serveConnect(st) || served
		served = b.serveWrite(st) || served
	}
	if served || st.gone || ev&(poller.Hangup|poller.Failed) == 0 {
		return
	}
	// hangup with nothing queued: stop watching, the next request fails
	err := inet.SocketError(fd)
	if err == nil {
		err = api.NewError(api.KindConnectionReset, "hangup", nil)
	}
	if derr := b.p.Del(fd, st.sys.interest); derr == nil {
		st.sys.detached = true
		st.sys.hangup = err
		st.sys.interest = poller.None
	}
	b.e.Logger().Debug("hangup on idle handler", zap.Int("fd", fd), zap.Error(err))
}

func (b *posixBackend) serveAccepts(st *handlerState) bool {
	served := false
	for i := 0; i < maxAcceptBatch && !st.gone; i++ {
		r := head(st.accepts)
		if r == nil {
			break
		}
		conn, _, err := inet.Accept(st.fd)
		if err != nil && inet.IsWouldBlock(err) {
			break
		}
		r.conn, r.err = conn, err
		served = true
		b.e.complete(r)
		if err != nil {
			break
		}
	}
	return served
}

func (b *posixBackend) serveRead(st *handlerState) bool {
	r := head(st.reads)
	if r == nil || st.gone {
		return false
	}
	n, err := inet.Readv(st.fd, r.Bufs)
	if err != nil && inet.IsWouldBlock(err) {
		return false
	}
	r.n, r.err = n, err
	b.e.complete(r)
	return true
}

func (b *posixBackend) serveConnect(st *handlerState) bool {
	r := st.connect
	if r == nil || r.done {
		return false
	}
	r.err = inet.SocketError(st.fd)
	b.e.complete(r)
	return true
}

func (b *posixBackend) serveWrite(st *handlerState) bool {
	r := head(st.writes)
	if r == nil || st.gone {
		return false
	}
	n, err := inet.Writev(st.fd, r.Bufs)
	if err != nil && inet.IsWouldBlock(err) {
		return false
	}
	r.n, r.err = n, err
	b.e.complete(r)
	return true
}

// failAll completes every queued request of st with err.
func (b *posixBackend) failAll(st *handlerState, err error) {
	var rs []*Request
	for _, r := range []*Request{head(st.accepts), head(st.reads), head(st.writes)} {
		if r != nil {
			rs = append(rs, r)
		}
	}
	if st.connect != nil && !st.connect.done {
		rs = append(rs, st.connect)
	}
	for _, r := range rs {
		r.err = err
		b.e.post(r)
	}
}
