// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides the readiness-based event engine for POSIX
// systems (epoll on Linux, kqueue on Darwin and FreeBSD) together with the
// acceptor, connector and channel handlers built on it.
//
// An Engine is driven by exactly one goroutine calling Poll or Run.
// Registration changes must happen on that goroutine; other goroutines
// reach the loop through RunLater.
package reactor
