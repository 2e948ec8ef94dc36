//go:build unix && !linux

// File: inet/sock_bsd.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Fallbacks for systems without accept4 or SOCK_NONBLOCK.

package inet

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/momentics/loofah/api"
)

// NewSocket creates a non-blocking close-on-exec TCP socket.
func NewSocket(family int) (api.Handle, error) {
	fd, err := unix.Socket(family, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return api.InvalidHandle, fmt.Errorf("socket create: %w", err)
	}
	unix.CloseOnExec(fd)
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return api.InvalidHandle, fmt.Errorf("set nonblock: %w", err)
	}
	return fd, nil
}

// Accept takes one pending connection as a non-blocking socket.
func Accept(lfd api.Handle) (api.Handle, Addr, error) {
	for {
		fd, sa, err := unix.Accept(lfd)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return api.InvalidHandle, Addr{}, err
		}
		unix.CloseOnExec(fd)
		if err := unix.SetNonblock(fd, true); err != nil {
			unix.Close(fd)
			return api.InvalidHandle, Addr{}, err
		}
		peer, _ := FromSockaddr(sa)
		return fd, peer, nil
	}
}

// Readv reads into bufs in order until one comes back short.
func Readv(fd api.Handle, bufs [][]byte) (int, error) {
	total := 0
	for _, b := range bufs {
		if len(b) == 0 {
			continue
		}
		n, err := Read(fd, b)
		total += n
		if err != nil {
			if total > 0 && IsWouldBlock(err) {
				return total, nil
			}
			return total, err
		}
		if n < len(b) {
			break
		}
	}
	return total, nil
}

// Writev writes bufs in order until the socket stops accepting data.
func Writev(fd api.Handle, bufs [][]byte) (int, error) {
	total := 0
	for _, b := range bufs {
		if len(b) == 0 {
			continue
		}
		n, err := Write(fd, b)
		total += n
		if err != nil {
			if total > 0 && IsWouldBlock(err) {
				return total, nil
			}
			return total, err
		}
		if n < len(b) {
			break
		}
	}
	return total, nil
}
