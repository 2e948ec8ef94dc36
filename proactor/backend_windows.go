//go:build windows

// File: proactor/backend_windows.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// I/O completion port backend: overlapped WSARecv, WSASend, AcceptEx and
// ConnectEx, completions collected with GetQueuedCompletionStatus.

package proactor

import (
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sys/windows"

	"github.com/momentics/loofah/api"
	"github.com/momentics/loofah/inet"
	"github.com/momentics/loofah/internal/engine"
)

const (
	wakeKey = ^uintptr(0)

	// AcceptEx needs sizeof(sockaddr_in6)+16 per address.
	acceptAddrLen = 28 + 16

	errWaitTimeout      = windows.Errno(258)
	errInvalidParameter = windows.Errno(87)
)

type requestSys struct {
	ov      windows.Overlapped
	wsabufs []windows.WSABuf
	flags   uint32
	addrBuf [2 * acceptAddrLen]byte
}

type stateSys struct {
	inflight int
}

type iocpBackend struct {
	e         *Engine
	iocp      windows.Handle
	inflight  map[*windows.Overlapped]*Request
	maxEvents int
	woken     atomic.Bool
}

func newBackend(e *Engine, o engine.Options) (backend, error) {
	if err := inet.InitNetwork(); err != nil {
		return nil, err
	}
	port, err := windows.CreateIoCompletionPort(windows.InvalidHandle, 0, 0, 0)
	if err != nil {
		return nil, err
	}
	return &iocpBackend{
		e:         e,
		iocp:      port,
		inflight:  make(map[*windows.Overlapped]*Request),
		maxEvents: o.MaxEvents,
	}, nil
}

// Wake posts a packet with the wake key; repeated wakes collapse into one.
func (b *iocpBackend) Wake() error {
	if !b.woken.CompareAndSwap(false, true) {
		return nil
	}
	return windows.PostQueuedCompletionStatus(b.iocp, 0, wakeKey, nil)
}

func (b *iocpBackend) close() error {
	return windows.CloseHandle(b.iocp)
}

// register associates the socket with the port. A socket can only be
// associated once, so a handle that was associated by an earlier handler
// (a connector handing over to a channel) is accepted as is.
func (b *iocpBackend) register(st *handlerState) error {
	_, err := windows.CreateIoCompletionPort(st.fd, b.iocp, 0, 0)
	if err == errInvalidParameter {
		return nil
	}
	return err
}

// unregister cancels the overlapped requests of st. They stay in the
// inflight map until their aborted completions arrive; accept sockets are
// closed then.
func (b *iocpBackend) unregister(st *handlerState, _ []*Request) bool {
	if st.sys.inflight == 0 {
		return false
	}
	if err := windows.CancelIoEx(st.fd, nil); err != nil {
		b.e.Logger().Debug("cancel io", zap.Error(err))
	}
	return true
}

func (b *iocpBackend) update(*handlerState) {}

func (b *iocpBackend) submit(st *handlerState, r *Request) {
	var err error
	switch r.Op {
	case api.EventRead:
		r.sys.wsabufs = toWSABufs(r.Bufs)
		var n uint32
		err = windows.WSARecv(st.fd, wsaPtr(r.sys.wsabufs), uint32(len(r.sys.wsabufs)),
			&n, &r.sys.flags, &r.sys.ov, nil)
	case api.EventWrite:
		r.sys.wsabufs = toWSABufs(r.Bufs)
		var n uint32
		err = windows.WSASend(st.fd, wsaPtr(r.sys.wsabufs), uint32(len(r.sys.wsabufs)),
			&n, 0, &r.sys.ov, nil)
	case api.EventAccept:
		err = b.startAccept(st, r)
	case api.EventConnect:
		err = b.startConnect(st, r)
	}
	if err != nil && err != windows.ERROR_IO_PENDING {
		if r.conn != api.InvalidHandle {
			inet.Close(r.conn)
			r.conn = api.InvalidHandle
		}
		r.err = err
		b.e.post(r)
		return
	}
	// success and pending both produce a completion packet
	b.inflight[&r.sys.ov] = r
	st.sys.inflight++
}

func (b *iocpBackend) startAccept(st *handlerState, r *Request) error {
	local, err := inet.LocalAddr(st.fd)
	if err != nil {
		return err
	}
	conn, err := inet.NewSocket(local.Family())
	if err != nil {
		return err
	}
	r.conn = conn
	var n uint32
	return windows.AcceptEx(st.fd, conn, &r.sys.addrBuf[0], 0,
		acceptAddrLen, acceptAddrLen, &n, &r.sys.ov)
}

func (b *iocpBackend) startConnect(st *handlerState, r *Request) error {
	// ConnectEx requires a bound socket
	if err := windows.Bind(st.fd, r.addr.AnySockaddr()); err != nil {
		return err
	}
	return windows.ConnectEx(st.fd, r.addr.Sockaddr(), nil, 0, nil, &r.sys.ov)
}

func (b *iocpBackend) wait(timeoutMs int) error {
	timeout := uint32(windows.INFINITE)
	if timeoutMs >= 0 {
		timeout = uint32(timeoutMs)
	}
	for i := 0; i < b.maxEvents; i++ {
		var (
			qty uint32
			key uintptr
			ov  *windows.Overlapped
		)
		err := windows.GetQueuedCompletionStatus(b.iocp, &qty, &key, &ov, timeout)
		timeout = 0
		if ov == nil {
			if err == nil && key == wakeKey {
				b.woken.Store(false)
				continue
			}
			if err == nil || err == errWaitTimeout {
				return nil
			}
			return err
		}
		b.finish(ov, int(qty), err)
	}
	return nil
}

// finish maps one completion packet back to its request.
func (b *iocpBackend) finish(ov *windows.Overlapped, n int, err error) {
	r, ok := b.inflight[ov]
	if !ok {
		return
	}
	delete(b.inflight, ov)
	st := r.st
	st.sys.inflight--
	if r.canceled {
		if r.conn != api.InvalidHandle {
			inet.Close(r.conn)
		}
		return
	}
	if err == nil {
		switch r.Op {
		case api.EventAccept:
			err = inet.UpdateAcceptContext(r.conn, st.fd)
			if err != nil {
				inet.Close(r.conn)
				r.conn = api.InvalidHandle
			}
		case api.EventConnect:
			err = inet.UpdateConnectContext(st.fd)
		}
	}
	r.n, r.err = n, err
	b.e.complete(r)
}

func toWSABufs(bufs [][]byte) []windows.WSABuf {
	out := make([]windows.WSABuf, 0, len(bufs))
	for _, b := range bufs {
		if len(b) == 0 {
			continue
		}
		out = append(out, windows.WSABuf{Len: uint32(len(b)), Buf: &b[0]})
	}
	if len(out) == 0 {
		out = append(out, windows.WSABuf{})
	}
	return out
}

func wsaPtr(bufs []windows.WSABuf) *windows.WSABuf { return &bufs[0] }
