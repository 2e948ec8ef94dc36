//go:build linux || darwin || freebsd

// File: reactor/stream_channel_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import (
	"bytes"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/loofah/api"
	"github.com/momentics/loofah/inet"
	"github.com/momentics/loofah/pool"
)

type echoStream struct {
	closed chan error
}

func (h *echoStream) OnData(ch *StreamChannel, in *pool.ByteRing) {
	buf := make([]byte, in.ReadableSize())
	n, _ := in.Read(buf)
	ch.Write(buf[:n])
}

func (h *echoStream) OnClose(_ *StreamChannel, err error) { h.closed <- err }

func TestStreamChannelEcho(t *testing.T) {
	e := newEngine(t)
	h := &echoStream{closed: make(chan error, 1)}
	addr, err := inet.New("127.0.0.1", 0, false)
	require.NoError(t, err)
	acc := NewAcceptor(e, func(fd api.Handle, _ inet.Addr) {
		if _, err := NewStreamChannel(e, fd, h, 64); err != nil {
			inet.Close(fd)
			t.Errorf("stream: %v", err)
		}
	})
	require.NoError(t, acc.Listen(addr, 16))
	runEngine(t, e)

	conn, err := net.Dial("tcp", acc.Addr().String())
	require.NoError(t, err)
	payload := bytes.Repeat([]byte("0123456789abcdef"), 4096)
	go func() {
		conn.Write(payload)
		conn.(*net.TCPConn).CloseWrite()
	}()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	got, err := io.ReadAll(conn)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	conn.Close()

	select {
	case err := <-h.closed:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("stream not closed")
	}
	onLoop(t, e, func() { assert.NoError(t, acc.Close()) })
}
