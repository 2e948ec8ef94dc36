// File: framing/handler.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package framing

import (
	"github.com/momentics/loofah/inet"
	"github.com/momentics/loofah/pool"
)

// Channel is the application view of a package channel.
type Channel interface {
	// WriteLater queues pkg and takes ownership of it. It may be called
	// from any goroutine.
	WriteLater(pkg *pool.Package) error
	// CloseLater starts closing the channel. Unless discardWrite is set,
	// queued packages are flushed first, bounded by the force-close delay.
	CloseLater(discardWrite bool)
	Closing() bool
	LocalAddr() inet.Addr
	PeerAddr() inet.Addr
}

// Handler receives channel events on the loop goroutine. A channel
// reports zero or one OnError followed by exactly one OnClose.
type Handler interface {
	// OnPackage delivers one frame payload. The handler owns pkg and
	// must Release it.
	OnPackage(ch Channel, pkg *pool.Package)
	OnError(ch Channel, err error)
	OnClose(ch Channel)
}

// HandlerFuncs adapts plain functions to Handler. Nil fields are no-ops;
// packages reaching a nil OnPackageFunc are released.
type HandlerFuncs struct {
	OnPackageFunc func(ch Channel, pkg *pool.Package)
	OnErrorFunc   func(ch Channel, err error)
	OnCloseFunc   func(ch Channel)
}

func (h HandlerFuncs) OnPackage(ch Channel, pkg *pool.Package) {
	if h.OnPackageFunc == nil {
		pkg.Release()
		return
	}
	h.OnPackageFunc(ch, pkg)
}

func (h HandlerFuncs) OnError(ch Channel, err error) {
	if h.OnErrorFunc != nil {
		h.OnErrorFunc(ch, err)
	}
}

func (h HandlerFuncs) OnClose(ch Channel) {
	if h.OnCloseFunc != nil {
		h.OnCloseFunc(ch)
	}
}
