//go:build linux || darwin || freebsd

// File: reactor/options.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import (
	"github.com/momentics/loofah/internal/engine"
)

// Option customizes an Engine.
type Option = engine.Option

var (
	WithLogger    = engine.WithLogger
	WithMetrics   = engine.WithMetrics
	WithClock     = engine.WithClock
	WithMaxEvents = engine.WithMaxEvents
	WithConfig    = engine.WithConfig
	WithCPU       = engine.WithCPU
	WithProbes    = engine.WithProbes
)
