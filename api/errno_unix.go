//go:build unix

// File: api/errno_unix.go
// Author: momentics <momentics@gmail.com>
//
// errno classification for POSIX platforms.

package api

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// FromErrno maps a platform error onto the ErrorKind taxonomy.
func FromErrno(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var k ErrorKind
	if errors.As(err, &k) {
		return k
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return KindTimeout
	}
	var errno unix.Errno
	if !errors.As(err, &errno) {
		return KindUnknown
	}
	switch errno {
	case unix.EAGAIN, unix.EINPROGRESS, unix.EALREADY:
		return KindWouldBlock
	case unix.EBADF, unix.ENOTSOCK:
		return KindInvalidFd
	case unix.ENOTCONN:
		return KindNotConnected
	case unix.ECONNREFUSED:
		return KindConnRefused
	case unix.ECONNRESET:
		return KindConnectionReset
	case unix.ECONNABORTED:
		return KindConnectionAborted
	case unix.EPIPE:
		return KindBrokenPipe
	case unix.ETIMEDOUT:
		return KindTimeout
	}
	return KindUnknown
}
