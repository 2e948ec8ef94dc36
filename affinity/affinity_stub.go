//go:build !linux && !windows

// File: affinity/affinity_stub.go
// Author: momentics <momentics@gmail.com>
//
// Platforms without thread affinity control.

package affinity

import "github.com/momentics/loofah/api"

func setAffinityPlatform(int) error { return api.ErrNotSupported }
