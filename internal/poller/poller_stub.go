//go:build !linux && !darwin && !freebsd

// File: internal/poller/poller_stub.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Stub implementation for platforms without epoll or kqueue support.

package poller

import "github.com/momentics/loofah/api"

// Poller is unavailable on this platform.
type Poller struct{}

// Open returns api.ErrNotSupported.
func Open(int) (*Poller, error) { return nil, api.ErrNotSupported }

func (p *Poller) Add(int, Ready) error            { return api.ErrNotSupported }
func (p *Poller) Mod(int, Ready, Ready) error     { return api.ErrNotSupported }
func (p *Poller) Del(int, Ready) error            { return api.ErrNotSupported }
func (p *Poller) Wait(int, Callback) (int, error) { return 0, api.ErrNotSupported }
func (p *Poller) Wake() error                     { return api.ErrNotSupported }
func (p *Poller) Close() error                    { return nil }
