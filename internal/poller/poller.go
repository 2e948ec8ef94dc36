// File: internal/poller/poller.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package poller

// Ready is a set of readiness conditions; Readable and Writable double as
// the interest bits passed to Add and Mod.
type Ready uint8

const (
	Readable Ready = 1 << iota
	Writable
	Hangup
	Failed

	None Ready = 0
)

// Callback receives one ready descriptor. Hangup and Failed are reported
// together with Readable|Writable so handlers discover the condition
// through their next syscall.
type Callback func(fd int, ev Ready)
