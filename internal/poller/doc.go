// File: internal/poller/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package poller is the readiness backend shared by the reactor and the
// POSIX proactor: level-triggered epoll on Linux, kqueue on Darwin and
// FreeBSD. Each Poller owns a wake channel (eventfd or an EVFILT_USER
// event) so that other goroutines can interrupt a blocked Wait.
package poller
