//go:build linux || darwin || freebsd

// File: reactor/connector.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/momentics/loofah/api"
	"github.com/momentics/loofah/inet"
)

// ConnectFunc receives the connected socket, which the callee then owns.
type ConnectFunc func(fd api.Handle)

// ErrorFunc is told why a connect attempt failed.
type ErrorFunc func(err error)

// Connector performs one non-blocking outbound connect. It is registered
// with the engine only while the handshake is in progress.
type Connector struct {
	e         *Engine
	fd        api.Handle
	addr      inet.Addr
	connected ConnectFunc
	failed    ErrorFunc
	log       *zap.Logger
	pending   bool
}

// NewConnector creates an idle connector.
func NewConnector(e *Engine, connected ConnectFunc, failed ErrorFunc) *Connector {
	return &Connector{
		e:         e,
		fd:        api.InvalidHandle,
		connected: connected,
		failed:    failed,
		log:       e.Logger().Named("connector"),
	}
}

// Connect starts connecting to addr on the loop goroutine. A handshake that
// completes at once calls the connected callback before Connect returns.
func (c *Connector) Connect(addr inet.Addr) error {
	if !c.e.InLoop() {
		return api.ErrNotInLoop
	}
	if c.pending {
		return api.ErrAlreadyRegistered
	}
	fd, err := inet.NewSocket(addr.Family())
	if err != nil {
		return err
	}
	c.fd, c.addr = fd, addr
	err = inet.Connect(fd, addr)
	switch {
	case err == nil:
		c.fd = api.InvalidHandle
		c.connected(fd)
		return nil
	case inet.InProgress(err):
	default:
		inet.Close(fd)
		c.fd = api.InvalidHandle
		return api.WrapErrno("connect", err)
	}
	if err := c.e.Register(c, api.EventConnect); err != nil {
		inet.Close(fd)
		c.fd = api.InvalidHandle
		return fmt.Errorf("connector: %w", err)
	}
	c.pending = true
	return nil
}

// ConnectLater is Connect relayed through the engine loop. Failures are
// reported through the error callback.
func (c *Connector) ConnectLater(addr inet.Addr) {
	c.e.RunLater(func() {
		if err := c.Connect(addr); err != nil {
			c.failed(err)
		}
	})
}

// Pending reports whether a handshake is in progress.
func (c *Connector) Pending() bool { return c.pending }

func (c *Connector) Fd() api.Handle { return c.fd }

// OnConnect checks SO_ERROR once the socket turns writable.
func (c *Connector) OnConnect() {
	if !c.pending {
		return
	}
	if err := inet.SocketError(c.fd); err != nil {
		c.fail(api.WrapErrno("connect", err))
		return
	}
	fd := c.fd
	c.pending = false
	c.e.Unregister(c)
	c.fd = api.InvalidHandle
	c.log.Debug("connected", zap.Stringer("addr", c.addr), zap.Int("fd", fd))
	c.connected(fd)
}

func (c *Connector) OnError(err error) { c.fail(err) }

func (c *Connector) OnReadable() {}
func (c *Connector) OnWritable() {}
func (c *Connector) OnAccept()   {}

// Cancel abandons a pending handshake and closes its socket.
func (c *Connector) Cancel() {
	if !c.pending {
		return
	}
	c.pending = false
	c.e.CloseHandler(c)
	c.fd = api.InvalidHandle
}

func (c *Connector) fail(err error) {
	if !c.pending {
		return
	}
	c.pending = false
	c.e.CloseHandler(c)
	c.fd = api.InvalidHandle
	c.log.Debug("connect failed", zap.Stringer("addr", c.addr), zap.Error(err))
	c.failed(err)
}
