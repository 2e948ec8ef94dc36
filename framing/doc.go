// File: framing/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package framing implements length-prefixed package channels on top of a
// byte stream: a 4-byte big-endian length header followed by the payload.
//
// Core holds the transport-independent part of a package channel: frame
// reassembly, the write queue and the Open -> Closing -> Closed state
// machine with its force-close timer. The reactor and proactor packages
// bind a Core to a socket through the Transport interface.
package framing
