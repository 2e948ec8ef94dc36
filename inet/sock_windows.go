//go:build windows

// File: inet/sock_windows.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Winsock socket helpers.

package inet

import (
	"fmt"
	"net/netip"
	"strconv"
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/momentics/loofah/api"
)

const (
	soError                = 0x1007
	SoUpdateAcceptContext  = 0x700b
	SoUpdateConnectContext = 0x7010
	fionbio                = 0x8004667e

	wsaeWouldBlock = windows.Errno(10035)
)

var (
	netOnce sync.Once
	netErr  error
	netMu   sync.Mutex
	netUp   bool
)

// InitNetwork starts Winsock and resolves the ConnectEx extension once.
func InitNetwork() error {
	netOnce.Do(func() {
		var data windows.WSAData
		if err := windows.WSAStartup(uint32(0x0202), &data); err != nil {
			netErr = fmt.Errorf("WSAStartup: %w", err)
			return
		}
		if err := windows.LoadConnectEx(); err != nil {
			windows.WSACleanup()
			netErr = fmt.Errorf("load ConnectEx: %w", err)
			return
		}
		netMu.Lock()
		netUp = true
		netMu.Unlock()
	})
	return netErr
}

// ShutdownNetwork releases Winsock after the last engine is gone.
func ShutdownNetwork() error {
	netMu.Lock()
	defer netMu.Unlock()
	if !netUp {
		return nil
	}
	netUp = false
	return windows.WSACleanup()
}

// Family returns the socket domain matching the address.
func (a Addr) Family() int {
	if a.IsIPv6() {
		return windows.AF_INET6
	}
	return windows.AF_INET
}

// Sockaddr converts to the syscall form.
func (a Addr) Sockaddr() windows.Sockaddr {
	ip := a.ap.Addr()
	if !a.IsIPv6() {
		return &windows.SockaddrInet4{Port: int(a.ap.Port()), Addr: ip.Unmap().As4()}
	}
	sa := &windows.SockaddrInet6{Port: int(a.ap.Port()), Addr: ip.As16()}
	if z := ip.Zone(); z != "" {
		if n, err := strconv.ParseUint(z, 10, 32); err == nil {
			sa.ZoneId = uint32(n)
		}
	}
	return sa
}

// AnySockaddr is the unspecified address of the same family, used to
// bind a socket before ConnectEx.
func (a Addr) AnySockaddr() windows.Sockaddr {
	if a.IsIPv6() {
		return &windows.SockaddrInet6{}
	}
	return &windows.SockaddrInet4{}
}

// FromSockaddr converts a syscall address.
func FromSockaddr(sa windows.Sockaddr) (Addr, error) {
	switch v := sa.(type) {
	case *windows.SockaddrInet4:
		return Addr{ap: netip.AddrPortFrom(netip.AddrFrom4(v.Addr), uint16(v.Port))}, nil
	case *windows.SockaddrInet6:
		ip := netip.AddrFrom16(v.Addr)
		if v.ZoneId != 0 {
			ip = ip.WithZone(strconv.FormatUint(uint64(v.ZoneId), 10))
		}
		return Addr{ap: netip.AddrPortFrom(ip, uint16(v.Port))}, nil
	}
	return Addr{}, fmt.Errorf("unsupported sockaddr %T", sa)
}

// NewSocket creates an overlapped-capable TCP socket.
func NewSocket(family int) (api.Handle, error) {
	fd, err := windows.WSASocket(int32(family), int32(windows.SOCK_STREAM), int32(windows.IPPROTO_TCP),
		nil, 0, windows.WSA_FLAG_OVERLAPPED|windows.WSA_FLAG_NO_HANDLE_INHERIT)
	if err != nil {
		return api.InvalidHandle, fmt.Errorf("socket create: %w", err)
	}
	return fd, nil
}

// Listen creates a listening socket bound to addr. Nothing is leaked when
// a step fails.
func Listen(addr Addr, backlog int) (api.Handle, error) {
	fd, err := NewSocket(addr.Family())
	if err != nil {
		return api.InvalidHandle, err
	}
	if err := SetReuseAddr(fd, true); err != nil {
		windows.Closesocket(fd)
		return api.InvalidHandle, fmt.Errorf("reuse addr: %w", err)
	}
	if err := windows.Bind(fd, addr.Sockaddr()); err != nil {
		windows.Closesocket(fd)
		return api.InvalidHandle, fmt.Errorf("bind %s: %w", addr, err)
	}
	if err := windows.Listen(fd, backlog); err != nil {
		windows.Closesocket(fd)
		return api.InvalidHandle, fmt.Errorf("listen %s: %w", addr, err)
	}
	if err := SetNonblocking(fd, true); err != nil {
		windows.Closesocket(fd)
		return api.InvalidHandle, fmt.Errorf("set nonblock: %w", err)
	}
	return fd, nil
}

// SocketError fetches and clears SO_ERROR.
func SocketError(fd api.Handle) error {
	v, err := windows.GetsockoptInt(fd, windows.SOL_SOCKET, soError)
	if err != nil {
		return err
	}
	if v != 0 {
		return windows.Errno(v)
	}
	return nil
}

// SetNonblocking toggles FIONBIO.
func SetNonblocking(fd api.Handle, on bool) error {
	v := uint32(boolint(on))
	var ret uint32
	return windows.WSAIoctl(fd, fionbio, (*byte)(unsafe.Pointer(&v)), 4, nil, 0, &ret, nil, 0)
}

func SetReuseAddr(fd api.Handle, on bool) error {
	return windows.SetsockoptInt(fd, windows.SOL_SOCKET, windows.SO_REUSEADDR, boolint(on))
}

// SetReusePort has no Winsock equivalent.
func SetReusePort(api.Handle, bool) error { return api.ErrNotSupported }

func SetTCPNoDelay(fd api.Handle, on bool) error {
	return windows.SetsockoptInt(fd, windows.IPPROTO_TCP, windows.TCP_NODELAY, boolint(on))
}

func SetKeepAlive(fd api.Handle, on bool) error {
	return windows.SetsockoptInt(fd, windows.SOL_SOCKET, windows.SO_KEEPALIVE, boolint(on))
}

// SetLinger enables SO_LINGER with the given timeout in seconds, or
// disables it.
func SetLinger(fd api.Handle, on bool, seconds int) error {
	l := windows.Linger{Onoff: int32(boolint(on)), Linger: int32(seconds)}
	return windows.SetsockoptLinger(fd, windows.SOL_SOCKET, windows.SO_LINGER, &l)
}

func SetSendBuffer(fd api.Handle, n int) error {
	return windows.SetsockoptInt(fd, windows.SOL_SOCKET, windows.SO_SNDBUF, n)
}

func SetRecvBuffer(fd api.Handle, n int) error {
	return windows.SetsockoptInt(fd, windows.SOL_SOCKET, windows.SO_RCVBUF, n)
}

// UpdateAcceptContext makes an AcceptEx socket inherit the listener's
// properties so getpeername and shutdown work on it.
func UpdateAcceptContext(conn, listener api.Handle) error {
	return windows.Setsockopt(conn, int32(windows.SOL_SOCKET), SoUpdateAcceptContext,
		(*byte)(unsafe.Pointer(&listener)), int32(unsafe.Sizeof(listener)))
}

// UpdateConnectContext finishes a ConnectEx socket.
func UpdateConnectContext(fd api.Handle) error {
	return windows.Setsockopt(fd, int32(windows.SOL_SOCKET), SoUpdateConnectContext, nil, 0)
}

func ShutdownRead(fd api.Handle) error  { return windows.Shutdown(fd, windows.SHUT_RD) }
func ShutdownWrite(fd api.Handle) error { return windows.Shutdown(fd, windows.SHUT_WR) }
func Close(fd api.Handle) error         { return windows.Closesocket(fd) }

// LocalAddr returns the bound address of fd.
func LocalAddr(fd api.Handle) (Addr, error) {
	sa, err := windows.Getsockname(fd)
	if err != nil {
		return Addr{}, err
	}
	return FromSockaddr(sa)
}

// PeerAddr returns the remote address of a connected fd.
func PeerAddr(fd api.Handle) (Addr, error) {
	sa, err := windows.Getpeername(fd)
	if err != nil {
		return Addr{}, err
	}
	return FromSockaddr(sa)
}

// IsWouldBlock reports whether err is WSAEWOULDBLOCK.
func IsWouldBlock(err error) bool { return err == wsaeWouldBlock }

func boolint(b bool) int {
	if b {
		return 1
	}
	return 0
}
