// File: proactor/connector.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package proactor

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

// Connector performs one outbound connect through LaunchConnect. It is
// registered only while the connect is in flight.
type Connector struct {
	HandlerBase

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

// Connect starts connecting to addr on the loop goroutine. The socket
// domain follows the address family.
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
	if err := c.e.Register(c); err != nil {
		inet.Close(fd)
		c.fd = api.InvalidHandle
		return fmt.Errorf("connector: %w", err)
	}
	if err := c.e.LaunchConnect(c, addr); err != nil {
		c.e.Release(c)
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

func (c *Connector) Fd() api.Handle { return c.fd }

// Pending reports whether a connect is in flight.
func (c *Connector) Pending() bool { return c.pending }

func (c *Connector) OnConnectCompleted() {
	if !c.pending {
		return
	}
	fd := c.fd
	c.pending = false
	c.e.Unregister(c)
	c.fd = api.InvalidHandle
	c.log.Debug("connected", zap.Stringer("addr", c.addr))
	c.connected(fd)
}

func (c *Connector) OnIOError(_ api.EventType, err *api.Error) {
	if !c.pending {
		return
	}
	c.pending = false
	c.e.Release(c)
	c.fd = api.InvalidHandle
	c.log.Debug("connect failed", zap.Stringer("addr", c.addr), zap.Error(err))
	c.failed(err)
}

// Cancel abandons a pending connect and closes its socket.
func (c *Connector) Cancel() {
	if !c.pending {
		return
	}
	c.pending = false
	c.e.Release(c)
	c.fd = api.InvalidHandle
}
