// File: proactor/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package proactor provides the completion-based event engine. Callers
// launch reads, writes, accepts and connects; the engine performs them and
// reports each result once through the handler.
//
// Windows uses I/O completion ports with overlapped WSARecv, WSASend,
// AcceptEx and ConnectEx. On POSIX systems completions are emulated: when
// the poller reports readiness the engine runs readv, writev, accept or
// checks SO_ERROR right away and dispatches the result as a completion.
//
// Requests of one handler complete in issue order per direction.
package proactor
