//go:build !linux && !darwin && !freebsd && !windows

// File: proactor/backend_stub.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package proactor

import (
	"github.com/momentics/loofah/api"
	"github.com/momentics/loofah/internal/engine"
)

type requestSys struct{}

type stateSys struct{}

func newBackend(*Engine, engine.Options) (backend, error) {
	return nil, api.ErrNotSupported
}
