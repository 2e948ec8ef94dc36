// File: framing/core.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package framing

import (
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
	"go.uber.org/zap"

	"github.com/momentics/loofah/api"
	"github.com/momentics/loofah/pool"
)

// Loop is the part of an engine a channel needs.
type Loop interface {
	InLoop() bool
	RunLater(task func())
	AfterFunc(d time.Duration, fn func()) (cancel func())
}

// Transport is implemented by the engine-specific channel around a Core.
type Transport interface {
	// Flush starts writing PendingWrites unless a write is already under way.
	Flush()
	ShutdownRead()
	ShutdownWrite()
	// Release unregisters and closes the socket. busy reports that pending
	// I/O may still reference channel buffers, which then are not recycled.
	Release() (busy bool)
}

const (
	stateOpen int32 = iota
	stateClosing
	stateClosed
)

// maxIov caps the packages gathered into one write.
const maxIov = 64

// Core is the framing state of one package channel. Apart from
// WriteLater, CloseLater and Closing, methods run on the loop goroutine.
type Core struct {
	ch   Channel
	h    Handler
	loop Loop
	tr   Transport
	opts Options
	log  *zap.Logger

	asm    *Assembler
	writes *queue.Queue
	frames []*pool.Package
	iov    [][]byte

	state       atomic.Int32
	readShut    bool
	writeShut   bool
	cancelForce func()
}

// NewCore creates an open channel core.
func NewCore(ch Channel, h Handler, loop Loop, tr Transport, opts Options) *Core {
	c := &Core{
		ch:     ch,
		h:      h,
		loop:   loop,
		tr:     tr,
		opts:   opts,
		log:    opts.Logger,
		asm:    NewAssembler(opts.MaxPayloadSize, opts.ReadBufferSize),
		writes: queue.New(),
	}
	opts.Metrics.ChannelOpened()
	return c
}

// Closing reports whether CloseLater or an error started the close.
func (c *Core) Closing() bool { return c.state.Load() != stateOpen }

// Closed reports whether OnClose has been delivered.
func (c *Core) Closed() bool { return c.state.Load() == stateClosed }

// ReadShutdown reports whether no more input is wanted.
func (c *Core) ReadShutdown() bool { return c.readShut || c.state.Load() != stateOpen }

// ReadBuffer returns free space for the next socket read.
func (c *Core) ReadBuffer() []byte { return c.asm.Buffer() }

// HandleRead processes n bytes read into ReadBuffer. Zero means the peer
// shut down its write half.
func (c *Core) HandleRead(n int) {
	if c.state.Load() != stateOpen {
		return
	}
	if n == 0 {
		c.HandleEOF()
		return
	}
	c.asm.Commit(n)
	c.opts.Metrics.BytesRead(n)

	frames, oversize := c.asm.Split(c.frames[:0])
	for i, pkg := range frames {
		frames[i] = nil
		if c.ReadShutdown() {
			pkg.Release()
			continue
		}
		c.opts.Metrics.PackageReceived()
		c.h.OnPackage(c.ch, pkg)
	}
	c.frames = frames[:0]
	if oversize {
		c.HandleError(api.NewError(api.KindPackageOversize, "read", nil))
	}
}

// HandleEOF reacts to an orderly shutdown by the peer: pending writes are
// flushed and the channel closes.
func (c *Core) HandleEOF() {
	if c.state.Load() != stateOpen {
		return
	}
	c.log.Debug("peer closed")
	c.readShut = true
	c.CloseLater(false)
}

// PendingWrites returns the unwritten bytes of queued packages, oldest
// first. The slice is reused by the next call.
func (c *Core) PendingWrites() [][]byte {
	c.iov = c.iov[:0]
	n := c.writes.Length()
	if n > maxIov {
		n = maxIov
	}
	for i := 0; i < n; i++ {
		c.iov = append(c.iov, c.writes.Get(i).(*pool.Package).Bytes())
	}
	return c.iov
}

// HasPendingWrites reports whether the write queue is non-empty.
func (c *Core) HasPendingWrites() bool { return c.writes.Length() > 0 }

// HandleWritten consumes n bytes from the head of the write queue. When
// the queue drains on a closing channel the close completes.
func (c *Core) HandleWritten(n int) {
	if c.state.Load() == stateClosed {
		return
	}
	c.opts.Metrics.BytesWritten(n)
	for n > 0 && c.writes.Length() > 0 {
		pkg := c.writes.Peek().(*pool.Package)
		l := pkg.Len()
		if n < l {
			pkg.Skip(n)
			break
		}
		n -= l
		c.writes.Remove()
		pkg.Release()
		c.opts.Metrics.PackageSent()
	}
	if c.writes.Length() > 0 {
		c.tr.Flush()
		return
	}
	if c.state.Load() == stateClosing {
		c.shutdownWrite()
		c.closeNow()
	}
}

// HandleError reports err once and closes the channel without flushing.
// Errors on a closing channel only complete the close.
func (c *Core) HandleError(err error) {
	kind := api.KindOf(err)
	if kind == api.KindWouldBlock {
		return
	}
	switch c.state.Load() {
	case stateClosed:
		return
	case stateClosing:
		c.log.Debug("error while closing", zap.Error(err))
		c.closeNow()
		return
	}
	c.state.Store(stateClosing)
	c.opts.Metrics.ChannelError(kind.String())
	c.log.Debug("channel error", zap.Stringer("kind", kind), zap.Error(err))
	c.h.OnError(c.ch, err)
	c.closeNow()
}

// WriteLater frames pkg and queues it, taking ownership. Off-loop calls
// are relayed through the engine and always return nil.
func (c *Core) WriteLater(pkg *pool.Package) error {
	if !c.loop.InLoop() {
		c.loop.RunLater(func() {
			if err := c.WriteLater(pkg); err != nil {
				c.log.Debug("deferred write rejected", zap.Error(err))
			}
		})
		return nil
	}
	if c.state.Load() != stateOpen || c.writeShut {
		pkg.Release()
		c.log.Debug("write rejected, channel closing")
		return api.ErrChannelClosing
	}
	if pkg.Len() > c.opts.MaxPayloadSize {
		pkg.Release()
		return api.NewError(api.KindPackageOversize, "write", nil)
	}
	Encode(pkg)
	c.writes.Add(pkg)
	c.tr.Flush()
	return nil
}

// CloseLater closes the channel. Without discardWrite and with packages
// still queued, only the read half is shut down and the close completes
// once the queue drains or the force-close delay expires.
func (c *Core) CloseLater(discardWrite bool) {
	if !c.loop.InLoop() {
		c.loop.RunLater(func() { c.CloseLater(discardWrite) })
		return
	}
	switch c.state.Load() {
	case stateClosed:
		return
	case stateClosing:
		if discardWrite {
			c.closeNow()
		}
		return
	}
	c.state.Store(stateClosing)
	if discardWrite || c.writes.Length() == 0 || c.opts.ForceCloseDelay <= 0 {
		c.closeNow()
		return
	}
	c.shutdownRead()
	c.cancelForce = c.loop.AfterFunc(c.opts.ForceCloseDelay, func() {
		c.cancelForce = nil
		c.log.Debug("force close", zap.Int("queued", c.writes.Length()))
		c.closeNow()
	})
	c.tr.Flush()
}

func (c *Core) shutdownRead() {
	c.readShut = true
	c.tr.ShutdownRead()
}

func (c *Core) shutdownWrite() {
	if !c.writeShut {
		c.writeShut = true
		c.tr.ShutdownWrite()
	}
}

func (c *Core) closeNow() {
	if c.state.Swap(stateClosed) == stateClosed {
		return
	}
	if c.cancelForce != nil {
		c.cancelForce()
		c.cancelForce = nil
	}
	busy := c.tr.Release()
	for c.writes.Length() > 0 {
		pkg := c.writes.Remove().(*pool.Package)
		if !busy {
			pkg.Release()
		}
	}
	if busy {
		c.asm.Drop()
	} else {
		c.asm.Release()
	}
	c.opts.Metrics.ChannelClosed()
	c.h.OnClose(c.ch)
}
