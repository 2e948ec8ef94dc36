// File: api/events.go
// Package api defines core event types for loofah.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

import "strings"

// EventType is a bitmask of socket events a handler is interested in.
type EventType uint32

const (
	EventAccept EventType = 1 << iota
	EventConnect
	EventRead
	EventWrite

	EventNone EventType = 0
	EventAll            = EventAccept | EventConnect | EventRead | EventWrite
)

// Has reports whether all bits of ev are set in e.
func (e EventType) Has(ev EventType) bool {
	return e&ev == ev && ev != 0
}

func (e EventType) String() string {
	if e == EventNone {
		return "NONE"
	}
	var parts []string
	if e&EventAccept != 0 {
		parts = append(parts, "ACCEPT")
	}
	if e&EventConnect != 0 {
		parts = append(parts, "CONNECT")
	}
	if e&EventRead != 0 {
		parts = append(parts, "READ")
	}
	if e&EventWrite != 0 {
		parts = append(parts, "WRITE")
	}
	return strings.Join(parts, "|")
}
