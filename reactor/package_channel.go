//go:build linux || darwin || freebsd

// File: reactor/package_channel.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import (
	"go.uber.org/zap"

	"github.com/momentics/loofah/api"
	"github.com/momentics/loofah/framing"
	"github.com/momentics/loofah/inet"
	"github.com/momentics/loofah/pool"
)

// PackageChannel is a framed connection driven by readiness events.
type PackageChannel struct {
	e     *Engine
	fd    api.Handle
	core  *framing.Core
	log   *zap.Logger
	local inet.Addr
	peer  inet.Addr

	flushing bool
}

var (
	_ framing.Channel   = (*PackageChannel)(nil)
	_ framing.Transport = (*PackageChannel)(nil)
	_ Handler           = (*PackageChannel)(nil)
)

// NewPackageChannel wraps a connected socket and registers it for READ.
// It must be called on the loop goroutine. On error the caller still owns
// fd.
func NewPackageChannel(e *Engine, fd api.Handle, h framing.Handler, opts ...framing.Option) (*PackageChannel, error) {
	if !e.InLoop() {
		return nil, api.ErrNotInLoop
	}
	o := framing.ApplyOptions(append([]framing.Option{
		framing.WithLogger(e.Logger()),
		framing.WithMetrics(e.Metrics()),
	}, opts...))
	c := &PackageChannel{e: e, fd: fd}
	c.local, _ = inet.LocalAddr(fd)
	c.peer, _ = inet.PeerAddr(fd)
	c.log = o.Logger.With(zap.Int("fd", fd), zap.Stringer("peer", c.peer))
	o.Logger = c.log
	if err := inet.SetTCPNoDelay(fd, true); err != nil {
		c.log.Warn("set nodelay", zap.Error(err))
	}
	if err := inet.SetKeepAlive(fd, true); err != nil {
		c.log.Warn("set keepalive", zap.Error(err))
	}
	if err := e.Register(c, api.EventRead); err != nil {
		return nil, err
	}
	c.core = framing.NewCore(c, h, e, c, o)
	return c, nil
}

func (c *PackageChannel) Fd() api.Handle       { return c.fd }
func (c *PackageChannel) LocalAddr() inet.Addr { return c.local }
func (c *PackageChannel) PeerAddr() inet.Addr  { return c.peer }
func (c *PackageChannel) Closing() bool        { return c.core.Closing() }

// WriteLater queues pkg for sending and takes ownership of it. It is
// safe to call from any goroutine.
func (c *PackageChannel) WriteLater(pkg *pool.Package) error { return c.core.WriteLater(pkg) }

// Send copies b into a package and queues it.
func (c *PackageChannel) Send(b []byte) error { return c.core.WriteLater(pool.PackageOf(b)) }

// CloseLater closes the channel, flushing queued packages unless
// discardWrite is set. It is safe to call from any goroutine.
func (c *PackageChannel) CloseLater(discardWrite bool) { c.core.CloseLater(discardWrite) }

// OnReadable reads until the socket is drained or a short read.
func (c *PackageChannel) OnReadable() {
	for !c.core.ReadShutdown() {
		buf := c.core.ReadBuffer()
		n, err := inet.Read(c.fd, buf)
		if err != nil {
			if !inet.IsWouldBlock(err) {
				c.core.HandleError(api.WrapErrno("read", err))
			}
			return
		}
		c.core.HandleRead(n)
		if n < len(buf) {
			return
		}
	}
}

func (c *PackageChannel) OnWritable() { c.Flush() }

func (c *PackageChannel) OnError(err error) { c.core.HandleError(err) }

func (c *PackageChannel) OnAccept()  {}
func (c *PackageChannel) OnConnect() {}

// Flush writes queued packages until the socket would block, then waits
// for WRITE readiness.
func (c *PackageChannel) Flush() {
	if c.flushing || c.core.Closed() {
		return
	}
	c.flushing = true
	defer func() { c.flushing = false }()

	for c.core.HasPendingWrites() {
		iov := c.core.PendingWrites()
		want := 0
		for _, b := range iov {
			want += len(b)
		}
		n, err := inet.Writev(c.fd, iov)
		if err != nil && !inet.IsWouldBlock(err) {
			c.core.HandleError(api.WrapErrno("write", err))
			return
		}
		c.core.HandleWritten(n)
		if c.core.Closed() {
			return
		}
		if n < want {
			if err := c.e.Enable(c, api.EventWrite); err != nil {
				c.core.HandleError(err)
			}
			return
		}
	}
	c.e.Disable(c, api.EventWrite)
}

// ShutdownRead stops input; READ interest is dropped so a half-closed
// socket does not keep the loop busy.
func (c *PackageChannel) ShutdownRead() {
	c.e.Disable(c, api.EventRead)
	if err := inet.ShutdownRead(c.fd); err != nil {
		c.log.Debug("shutdown read", zap.Error(err))
	}
}

func (c *PackageChannel) ShutdownWrite() {
	if err := inet.ShutdownWrite(c.fd); err != nil {
		c.log.Debug("shutdown write", zap.Error(err))
	}
}

// Release unregisters the channel and closes its socket after the
// current dispatch batch. Nothing is in flight on a readiness engine.
func (c *PackageChannel) Release() bool {
	c.e.CloseHandler(c)
	return false
}
