//go:build windows

// File: api/handle_windows.go
// Author: momentics <momentics@gmail.com>

package api

import "golang.org/x/sys/windows"

// Handle is a native socket descriptor.
type Handle = windows.Handle

// InvalidHandle marks a handle that is not open.
const InvalidHandle Handle = windows.InvalidHandle
