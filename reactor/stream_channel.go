//go:build linux || darwin || freebsd

// File: reactor/stream_channel.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import (
	"go.uber.org/zap"

	"github.com/momentics/loofah/api"
	"github.com/momentics/loofah/control"
	"github.com/momentics/loofah/inet"
	"github.com/momentics/loofah/pool"
)

// StreamHandler consumes an unframed byte stream on the loop goroutine.
type StreamHandler interface {
	// OnData is called after new bytes were appended to in. Bytes left in
	// in stay buffered for the next call.
	OnData(ch *StreamChannel, in *pool.ByteRing)
	// OnClose is called once; err is nil for an orderly close.
	OnClose(ch *StreamChannel, err error)
}

// StreamChannel is a raw byte-stream connection with ring-buffered input
// and output.
type StreamChannel struct {
	e        *Engine
	fd       api.Handle
	h        StreamHandler
	in       *pool.ByteRing
	out      *pool.ByteRing
	readSize int
	log      *zap.Logger
	eof      bool
	closed   bool
}

// NewStreamChannel registers a connected socket for READ on the loop
// goroutine. readSize <= 0 selects the default read size.
func NewStreamChannel(e *Engine, fd api.Handle, h StreamHandler, readSize int) (*StreamChannel, error) {
	if readSize <= 0 {
		readSize = control.DefaultReadBufferSize
	}
	c := &StreamChannel{
		e:        e,
		fd:       fd,
		h:        h,
		in:       pool.NewByteRing(readSize + 1),
		out:      pool.NewByteRing(readSize + 1),
		readSize: readSize,
		log:      e.Logger().With(zap.Int("fd", fd)),
	}
	if err := e.Register(c, api.EventRead); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *StreamChannel) Fd() api.Handle { return c.fd }

// Buffered returns the number of bytes waiting to be written.
func (c *StreamChannel) Buffered() int { return c.out.ReadableSize() }

func (c *StreamChannel) OnReadable() {
	c.in.Reserve(c.readSize)
	n, err := inet.Readv(c.fd, c.in.WritablePointers())
	switch {
	case err != nil:
		if !inet.IsWouldBlock(err) {
			c.close(api.WrapErrno("read", err))
		}
		return
	case n == 0:
		// peer finished sending: flush what is left, then close
		c.eof = true
		c.e.Disable(c, api.EventRead)
		if c.out.Empty() {
			c.close(nil)
		}
		return
	}
	c.in.CommitWrite(n)
	c.e.Metrics().BytesRead(n)
	c.h.OnData(c, c.in)
}

func (c *StreamChannel) OnWritable() { c.flush() }

func (c *StreamChannel) OnError(err error) { c.close(err) }

func (c *StreamChannel) OnAccept()  {}
func (c *StreamChannel) OnConnect() {}

// Write buffers b and flushes as much as the socket takes. Off-loop calls
// copy b and are relayed through the engine.
func (c *StreamChannel) Write(b []byte) error {
	if !c.e.InLoop() {
		cp := append([]byte(nil), b...)
		c.e.RunLater(func() { c.Write(cp) })
		return nil
	}
	if c.closed {
		return api.ErrChannelClosing
	}
	c.out.Write(b)
	c.flush()
	return nil
}

// Close closes the connection, dropping unwritten bytes.
func (c *StreamChannel) Close() {
	if !c.e.InLoop() {
		c.e.RunLater(c.Close)
		return
	}
	c.close(nil)
}

func (c *StreamChannel) flush() {
	for !c.closed && !c.out.Empty() {
		n, err := inet.Writev(c.fd, c.out.ReadablePointers())
		if err != nil {
			if inet.IsWouldBlock(err) {
				break
			}
			c.close(api.WrapErrno("write", err))
			return
		}
		c.out.SkipRead(n)
		c.e.Metrics().BytesWritten(n)
		if n == 0 {
			break
		}
	}
	if c.closed {
		return
	}
	if c.out.Empty() {
		if c.eof {
			c.close(nil)
			return
		}
		c.e.Disable(c, api.EventWrite)
	} else if err := c.e.Enable(c, api.EventWrite); err != nil {
		c.close(err)
	}
}

func (c *StreamChannel) close(err error) {
	if c.closed {
		return
	}
	c.closed = true
	c.e.CloseHandler(c)
	if err != nil {
		c.log.Debug("stream closed", zap.Error(err))
	}
	c.h.OnClose(c, err)
}
