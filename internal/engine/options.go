// File: internal/engine/options.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package engine

import (
	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/momentics/loofah/control"
)

// Options collects engine construction parameters.
type Options struct {
	Logger    *zap.Logger
	Metrics   *control.Metrics
	Clock     clock.Clock
	MaxEvents int
	// CPU pins the loop thread when >= 0.
	CPU    int
	Probes *control.DebugProbes
}

// Option customizes engine initialization.
type Option func(*Options)

// Apply builds Options from defaults and opts.
func Apply(opts []Option) Options {
	o := Options{MaxEvents: control.DefaultMaxEvents, CPU: -1}
	for _, fn := range opts {
		fn(&o)
	}
	if o.Logger == nil {
		o.Logger = zap.L()
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	if o.MaxEvents <= 0 {
		o.MaxEvents = control.DefaultMaxEvents
	}
	return o
}

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// WithMetrics attaches a metrics collector.
func WithMetrics(m *control.Metrics) Option {
	return func(o *Options) { o.Metrics = m }
}

// WithClock replaces the timer service clock.
func WithClock(c clock.Clock) Option {
	return func(o *Options) { o.Clock = c }
}

// WithMaxEvents caps the events fetched per poll.
func WithMaxEvents(n int) Option {
	return func(o *Options) { o.MaxEvents = n }
}

// WithCPU pins the goroutine running the loop to one logical CPU. That
// goroutine stays locked to its OS thread after Run returns.
func WithCPU(cpu int) Option {
	return func(o *Options) { o.CPU = cpu }
}

// WithProbes publishes engine state through a debug probe registry.
func WithProbes(p *control.DebugProbes) Option {
	return func(o *Options) { o.Probes = p }
}

// WithConfig applies the engine-related fields of cfg.
func WithConfig(cfg control.Config) Option {
	return func(o *Options) {
		if cfg.MaxEvents > 0 {
			o.MaxEvents = cfg.MaxEvents
		}
		o.CPU = cfg.LoopCPU
	}
}
