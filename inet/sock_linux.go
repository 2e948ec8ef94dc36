//go:build linux

// File: inet/sock_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package inet

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/momentics/loofah/api"
)

// NewSocket creates a non-blocking close-on-exec TCP socket.
func NewSocket(family int) (api.Handle, error) {
	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return api.InvalidHandle, fmt.Errorf("socket create: %w", err)
	}
	return fd, nil
}

// Accept takes one pending connection as a non-blocking socket.
func Accept(lfd api.Handle) (api.Handle, Addr, error) {
	for {
		fd, sa, err := unix.Accept4(lfd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return api.InvalidHandle, Addr{}, err
		}
		peer, _ := FromSockaddr(sa)
		return fd, peer, nil
	}
}

// Readv scatters one read over bufs.
func Readv(fd api.Handle, bufs [][]byte) (int, error) {
	if len(bufs) == 1 {
		return Read(fd, bufs[0])
	}
	for {
		n, err := unix.Readv(fd, bufs)
		if err == unix.EINTR {
			continue
		}
		if n < 0 {
			n = 0
		}
		return n, err
	}
}

// Writev gathers one write from bufs.
func Writev(fd api.Handle, bufs [][]byte) (int, error) {
	if len(bufs) == 1 {
		return Write(fd, bufs[0])
	}
	for {
		n, err := unix.Writev(fd, bufs)
		if err == unix.EINTR {
			continue
		}
		if n < 0 {
			n = 0
		}
		return n, err
	}
}
