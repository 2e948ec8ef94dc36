//go:build unix

// File: api/handle_unix.go
// Author: momentics <momentics@gmail.com>

package api

// Handle is a native socket descriptor.
type Handle = int

// InvalidHandle marks a handle that is not open.
const InvalidHandle Handle = -1
