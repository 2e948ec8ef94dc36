// File: proactor/package_channel.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package proactor

import (
	"go.uber.org/zap"

	"github.com/momentics/loofah/api"
	"github.com/momentics/loofah/framing"
	"github.com/momentics/loofah/inet"
	"github.com/momentics/loofah/pool"
)

// PackageChannel is a framed connection driven by completions. One read
// and one write are in flight at a time.
type PackageChannel struct {
	HandlerBase

	e     *Engine
	fd    api.Handle
	core  *framing.Core
	log   *zap.Logger
	local inet.Addr
	peer  inet.Addr

	reading bool
	writing bool
}

var (
	_ framing.Channel   = (*PackageChannel)(nil)
	_ framing.Transport = (*PackageChannel)(nil)
	_ Handler           = (*PackageChannel)(nil)
)

// NewPackageChannel wraps a connected socket and launches the first read.
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
	c.log = o.Logger.With(zap.Stringer("peer", c.peer))
	o.Logger = c.log
	if err := inet.SetTCPNoDelay(fd, true); err != nil {
		c.log.Warn("set nodelay", zap.Error(err))
	}
	if err := inet.SetKeepAlive(fd, true); err != nil {
		c.log.Warn("set keepalive", zap.Error(err))
	}
	if err := e.Register(c); err != nil {
		return nil, err
	}
	c.core = framing.NewCore(c, h, e, c, o)
	c.launchRead()
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

func (c *PackageChannel) launchRead() {
	if c.reading || c.core.ReadShutdown() {
		return
	}
	c.reading = true
	if err := c.e.LaunchRead(c, [][]byte{c.core.ReadBuffer()}); err != nil {
		c.reading = false
		c.core.HandleError(err)
	}
}

func (c *PackageChannel) OnReadCompleted(n int) {
	c.reading = false
	c.core.HandleRead(n)
	c.launchRead()
}

func (c *PackageChannel) OnWriteCompleted(n int) {
	c.writing = false
	c.core.HandleWritten(n)
}

func (c *PackageChannel) OnIOError(op api.EventType, err *api.Error) {
	switch op {
	case api.EventRead:
		c.reading = false
	case api.EventWrite:
		c.writing = false
	}
	c.core.HandleError(err)
}

// Flush launches a gather write of the queued packages unless one is in
// flight already.
func (c *PackageChannel) Flush() {
	if c.writing || c.core.Closed() {
		return
	}
	iov := c.core.PendingWrites()
	if len(iov) == 0 {
		return
	}
	c.writing = true
	if err := c.e.LaunchWrite(c, append([][]byte(nil), iov...)); err != nil {
		c.writing = false
		c.core.HandleError(err)
	}
}

func (c *PackageChannel) ShutdownRead() {
	if err := inet.ShutdownRead(c.fd); err != nil {
		c.log.Debug("shutdown read", zap.Error(err))
	}
}

func (c *PackageChannel) ShutdownWrite() {
	if err := inet.ShutdownWrite(c.fd); err != nil {
		c.log.Debug("shutdown write", zap.Error(err))
	}
}

// Release unregisters the channel, canceling its requests, and closes the
// socket after the current dispatch batch.
func (c *PackageChannel) Release() bool { return c.e.Release(c) }
