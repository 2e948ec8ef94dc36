// File: framing/options.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package framing

import (
	"time"

	"go.uber.org/zap"

	"github.com/momentics/loofah/control"
)

// Options configures a package channel.
type Options struct {
	MaxPayloadSize  int
	ForceCloseDelay time.Duration
	ReadBufferSize  int
	Logger          *zap.Logger
	Metrics         *control.Metrics
}

// Option customizes a package channel.
type Option func(*Options)

// ApplyOptions builds Options from the defaults and opts.
func ApplyOptions(opts []Option) Options {
	o := Options{
		MaxPayloadSize:  control.DefaultMaxPackageSize,
		ForceCloseDelay: control.DefaultForceCloseDelay,
		ReadBufferSize:  control.DefaultReadBufferSize,
	}
	for _, fn := range opts {
		fn(&o)
	}
	if o.Logger == nil {
		o.Logger = zap.L()
	}
	if o.ReadBufferSize < HeaderSize {
		o.ReadBufferSize = control.DefaultReadBufferSize
	}
	return o
}

// WithMaxPayloadSize bounds the payload of incoming and outgoing frames.
func WithMaxPayloadSize(n int) Option {
	return func(o *Options) { o.MaxPayloadSize = n }
}

// WithForceCloseDelay sets the grace period of a graceful close. Zero
// closes immediately.
func WithForceCloseDelay(d time.Duration) Option {
	return func(o *Options) { o.ForceCloseDelay = d }
}

// WithReadBufferSize sets the minimum free space offered to each read.
func WithReadBufferSize(n int) Option {
	return func(o *Options) { o.ReadBufferSize = n }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

func WithMetrics(m *control.Metrics) Option {
	return func(o *Options) { o.Metrics = m }
}

// WithConfig applies the channel-related fields of cfg.
func WithConfig(cfg control.Config) Option {
	return func(o *Options) {
		o.MaxPayloadSize = cfg.MaxPackageSize
		o.ForceCloseDelay = cfg.ForceCloseDelay
		o.ReadBufferSize = cfg.ReadBufferSize
	}
}
