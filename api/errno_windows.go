//go:build windows

// File: api/errno_windows.go
// Author: momentics <momentics@gmail.com>
//
// WSA and Win32 error classification.

package api

import (
	"errors"
	"os"

	"golang.org/x/sys/windows"
)

// Winsock and Win32 codes not exported by x/sys/windows on every version.
const (
	wsaEWouldBlock            = windows.Errno(10035)
	wsaEInProgress            = windows.Errno(10036)
	wsaENotSock               = windows.Errno(10038)
	wsaEConnAborted           = windows.Errno(10053)
	wsaEConnReset             = windows.Errno(10054)
	wsaENotConn               = windows.Errno(10057)
	wsaEShutdown              = windows.Errno(10058)
	wsaETimedOut              = windows.Errno(10060)
	wsaEConnRefused           = windows.Errno(10061)
	errorNetnameDeleted       = windows.Errno(64)
	errorConnectionRefused    = windows.Errno(1225)
	errorConnectionAborted    = windows.Errno(1236)
	errorSemTimeout           = windows.Errno(121)
	errorInvalidHandle        = windows.Errno(6)
	errorBrokenPipe           = windows.Errno(109)
	errorOperationAborted     = windows.Errno(995)
	errorPortUnreachable      = windows.Errno(1234)
	errorGracefulDisconnect   = windows.Errno(1226)
	errorIOPending            = windows.Errno(997)
	errorNetworkUnreachable   = windows.Errno(1231)
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
	var errno windows.Errno
	if !errors.As(err, &errno) {
		return KindUnknown
	}
	switch errno {
	case wsaEWouldBlock, wsaEInProgress, errorIOPending:
		return KindWouldBlock
	case wsaENotSock, errorInvalidHandle:
		return KindInvalidFd
	case wsaENotConn, wsaEShutdown:
		return KindNotConnected
	case wsaEConnRefused, errorConnectionRefused, errorPortUnreachable, errorNetworkUnreachable:
		return KindConnRefused
	case wsaEConnReset, errorNetnameDeleted:
		return KindConnectionReset
	case wsaEConnAborted, errorConnectionAborted, errorOperationAborted, errorGracefulDisconnect:
		return KindConnectionAborted
	case errorBrokenPipe:
		return KindBrokenPipe
	case wsaETimedOut, errorSemTimeout:
		return KindTimeout
	}
	return KindUnknown
}
