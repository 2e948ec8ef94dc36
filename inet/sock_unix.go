//go:build unix

// File: inet/sock_unix.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// POSIX socket helpers.

package inet

import (
	"fmt"
	"net/netip"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/momentics/loofah/api"
)

// Family returns the socket domain matching the address.
func (a Addr) Family() int {
	if a.IsIPv6() {
		return unix.AF_INET6
	}
	return unix.AF_INET
}

// Sockaddr converts to the syscall form.
func (a Addr) Sockaddr() unix.Sockaddr {
	ip := a.ap.Addr()
	if !a.IsIPv6() {
		return &unix.SockaddrInet4{Port: int(a.ap.Port()), Addr: ip.Unmap().As4()}
	}
	sa := &unix.SockaddrInet6{Port: int(a.ap.Port()), Addr: ip.As16()}
	if z := ip.Zone(); z != "" {
		if n, err := strconv.ParseUint(z, 10, 32); err == nil {
			sa.ZoneId = uint32(n)
		}
	}
	return sa
}

// FromSockaddr converts a syscall address.
func FromSockaddr(sa unix.Sockaddr) (Addr, error) {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return Addr{ap: netip.AddrPortFrom(netip.AddrFrom4(v.Addr), uint16(v.Port))}, nil
	case *unix.SockaddrInet6:
		ip := netip.AddrFrom16(v.Addr)
		if v.ZoneId != 0 {
			ip = ip.WithZone(strconv.FormatUint(uint64(v.ZoneId), 10))
		}
		return Addr{ap: netip.AddrPortFrom(ip, uint16(v.Port))}, nil
	}
	return Addr{}, fmt.Errorf("unsupported sockaddr %T", sa)
}

// Listen creates a non-blocking listening socket bound to addr. Nothing
// is leaked when a step fails.
func Listen(addr Addr, backlog int) (api.Handle, error) {
	fd, err := NewSocket(addr.Family())
	if err != nil {
		return api.InvalidHandle, err
	}
	if err := SetReuseAddr(fd, true); err != nil {
		unix.Close(fd)
		return api.InvalidHandle, fmt.Errorf("reuse addr: %w", err)
	}
	// SO_REUSEPORT is best effort
	_ = SetReusePort(fd, true)
	if err := unix.Bind(fd, addr.Sockaddr()); err != nil {
		unix.Close(fd)
		return api.InvalidHandle, fmt.Errorf("bind %s: %w", addr, err)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return api.InvalidHandle, fmt.Errorf("listen %s: %w", addr, err)
	}
	return fd, nil
}

// Connect starts a connect on a non-blocking socket. It returns
// unix.EINPROGRESS while the handshake is pending.
func Connect(fd api.Handle, addr Addr) error {
	err := unix.Connect(fd, addr.Sockaddr())
	if err == unix.EINTR {
		return unix.EINPROGRESS
	}
	return err
}

// InProgress reports whether a Connect error means "wait for writability".
func InProgress(err error) bool {
	return err == unix.EINPROGRESS || err == unix.EALREADY || err == unix.EAGAIN
}

// SocketError fetches and clears SO_ERROR.
func SocketError(fd api.Handle) error {
	v, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if v != 0 {
		return unix.Errno(v)
	}
	return nil
}

// IsWouldBlock reports whether err is EAGAIN/EWOULDBLOCK.
func IsWouldBlock(err error) bool { return err == unix.EAGAIN || err == unix.EWOULDBLOCK }

// IsInterrupted reports whether err is EINTR.
func IsInterrupted(err error) bool { return err == unix.EINTR }

func SetNonblocking(fd api.Handle, on bool) error { return unix.SetNonblock(fd, on) }

func SetReuseAddr(fd api.Handle, on bool) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, boolint(on))
}

func SetReusePort(fd api.Handle, on bool) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, boolint(on))
}

func SetTCPNoDelay(fd api.Handle, on bool) error {
	return unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, boolint(on))
}

func SetKeepAlive(fd api.Handle, on bool) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, boolint(on))
}

// SetLinger enables SO_LINGER with the given timeout in seconds, or
// disables it.
func SetLinger(fd api.Handle, on bool, seconds int) error {
	l := unix.Linger{Onoff: int32(boolint(on)), Linger: int32(seconds)}
	return unix.SetsockoptLinger(fd, unix.SOL_SOCKET, unix.SO_LINGER, &l)
}

// SetSendBuffer sets SO_SNDBUF.
func SetSendBuffer(fd api.Handle, n int) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, n)
}

// SetRecvBuffer sets SO_RCVBUF.
func SetRecvBuffer(fd api.Handle, n int) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, n)
}

func ShutdownRead(fd api.Handle) error  { return unix.Shutdown(fd, unix.SHUT_RD) }
func ShutdownWrite(fd api.Handle) error { return unix.Shutdown(fd, unix.SHUT_WR) }
func Close(fd api.Handle) error         { return unix.Close(fd) }

// LocalAddr returns the bound address of fd.
func LocalAddr(fd api.Handle) (Addr, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return Addr{}, err
	}
	return FromSockaddr(sa)
}

// PeerAddr returns the remote address of a connected fd.
func PeerAddr(fd api.Handle) (Addr, error) {
	sa, err := unix.Getpeername(fd)
	if err != nil {
		return Addr{}, err
	}
	return FromSockaddr(sa)
}

// Read performs one read(2), retrying on EINTR.
func Read(fd api.Handle, b []byte) (int, error) {
	for {
		n, err := unix.Read(fd, b)
		if err == unix.EINTR {
			continue
		}
		if n < 0 {
			n = 0
		}
		return n, err
	}
}

// Write performs one write(2), retrying on EINTR.
func Write(fd api.Handle, b []byte) (int, error) {
	for {
		n, err := unix.Write(fd, b)
		if err == unix.EINTR {
			continue
		}
		if n < 0 {
			n = 0
		}
		return n, err
	}
}

// InitNetwork is a no-op on POSIX systems.
func InitNetwork() error { return nil }

// ShutdownNetwork is a no-op on POSIX systems.
func ShutdownNetwork() error { return nil }

func boolint(b bool) int {
	if b {
		return 1
	}
	return 0
}
