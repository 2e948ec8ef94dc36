//go:build linux || darwin || freebsd

// File: reactor/package_channel_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import (
	"encoding/binary"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/loofah/api"
	"github.com/momentics/loofah/framing"
	"github.com/momentics/loofah/inet"
	"github.com/momentics/loofah/pool"
)

type channelEvents struct {
	mu       sync.Mutex
	pkgs     [][]byte
	errs     []error
	closes   int
	closed   chan struct{}
	received chan []byte
}

func newChannelEvents() *channelEvents {
	return &channelEvents{closed: make(chan struct{}), received: make(chan []byte, 64)}
}

func (ev *channelEvents) handler(echo bool) framing.Handler {
	return framing.HandlerFuncs{
		OnPackageFunc: func(ch framing.Channel, pkg *pool.Package) {
			b := append([]byte(nil), pkg.Bytes()...)
			ev.mu.Lock()
			ev.pkgs = append(ev.pkgs, b)
			ev.mu.Unlock()
			ev.received <- b
			if echo {
				ch.WriteLater(pkg)
				return
			}
			pkg.Release()
		},
		OnErrorFunc: func(_ framing.Channel, err error) {
			ev.mu.Lock()
			ev.errs = append(ev.errs, err)
			ev.mu.Unlock()
		},
		OnCloseFunc: func(framing.Channel) {
			ev.mu.Lock()
			ev.closes++
			n := ev.closes
			ev.mu.Unlock()
			if n == 1 {
				close(ev.closed)
			}
		},
	}
}

func (ev *channelEvents) waitClosed(t *testing.T, within time.Duration) {
	t.Helper()
	select {
	case <-ev.closed:
	case <-time.After(within):
		t.Fatalf("channel not closed within %v", within)
	}
}

// serve starts a listener whose accepted sockets become package channels.
func serve(t *testing.T, e *Engine, h framing.Handler, opts ...framing.Option) (inet.Addr, chan *PackageChannel) {
	t.Helper()
	chans := make(chan *PackageChannel, 8)
	addr, err := inet.New("127.0.0.1", 0, false)
	require.NoError(t, err)
	acc := NewAcceptor(e, func(fd api.Handle, _ inet.Addr) {
		ch, err := NewPackageChannel(e, fd, h, opts...)
		if err != nil {
			inet.Close(fd)
			t.Errorf("channel: %v", err)
			return
		}
		chans <- ch
	})
	require.NoError(t, acc.Listen(addr, 16))
	return acc.Addr(), chans
}

func readFrame(t *testing.T, conn net.Conn) []byte {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var hdr [framing.HeaderSize]byte
	_, err := io.ReadFull(conn, hdr[:])
	require.NoError(t, err)
	payload := make([]byte, binary.BigEndian.Uint32(hdr[:]))
	_, err = io.ReadFull(conn, payload)
	require.NoError(t, err)
	return payload
}

func TestPackageChannelEcho(t *testing.T) {
	e := newEngine(t)
	ev := newChannelEvents()
	addr, _ := serve(t, e, ev.handler(true))
	runEngine(t, e)

	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()

	var stream []byte
	payloads := [][]byte{[]byte("hello"), {}, make([]byte, 70000), []byte("bye")}
	for _, p := range payloads {
		stream = framing.AppendFrame(stream, p)
	}
	// dribble the stream to exercise reassembly across reads
	for off := 0; off < len(stream); off += 997 {
		end := min(off+997, len(stream))
		_, err := conn.Write(stream[off:end])
		require.NoError(t, err)
	}
	for _, want := range payloads {
		assert.Equal(t, want, readFrame(t, conn))
	}
}

func TestPackageChannelExampleScenario(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		conn.Write([]byte{0x00, 0x00, 0x00, 0x04})
		time.Sleep(50 * time.Millisecond)
		conn.Write([]byte{0x00, 0x00, 0x00, 0x2A})
		io.Copy(io.Discard, conn)
	}()

	e := newEngine(t)
	runEngine(t, e)
	target, err := inet.ParseAddr(ln.Addr().String())
	require.NoError(t, err)

	got := make(chan *pool.Package, 4)
	h := framing.HandlerFuncs{OnPackageFunc: func(_ framing.Channel, pkg *pool.Package) { got <- pkg }}
	onLoop(t, e, func() {
		c := NewConnector(e, func(fd api.Handle) {
			if _, err := NewPackageChannel(e, fd, h); err != nil {
				t.Errorf("channel: %v", err)
			}
		}, func(err error) { t.Errorf("connect: %v", err) })
		assert.NoError(t, c.Connect(target))
	})

	select {
	case pkg := <-got:
		assert.Equal(t, 4, pkg.Len())
		assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x2A}, pkg.Bytes())
		v, err := pkg.ReadUint32()
		require.NoError(t, err)
		assert.Equal(t, uint32(42), v)
		pkg.Release()
	case <-time.After(3 * time.Second):
		t.Fatal("package not delivered")
	}
	select {
	case <-got:
		t.Fatal("exactly one package expected")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPackageChannelPeerCloseClosesOnce(t *testing.T) {
	e := newEngine(t)
	ev := newChannelEvents()
	addr, _ := serve(t, e, ev.handler(false))
	runEngine(t, e)

	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	_, err = conn.Write(framing.AppendFrame(nil, []byte("last words")))
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	ev.waitClosed(t, 3*time.Second)
	onLoop(t, e, func() {})
	ev.mu.Lock()
	defer ev.mu.Unlock()
	assert.Equal(t, 1, ev.closes)
	assert.Empty(t, ev.errs)
	assert.Equal(t, [][]byte{[]byte("last words")}, ev.pkgs)
}

func TestPackageChannelOversizeFromPeer(t *testing.T) {
	e := newEngine(t)
	ev := newChannelEvents()
	addr, _ := serve(t, e, ev.handler(false), framing.WithMaxPayloadSize(16))
	runEngine(t, e)

	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()
	stream := framing.AppendFrame(nil, []byte("fine"))
	stream = append(stream, 0xff, 0xff, 0xff, 0xff)
	_, err = conn.Write(stream)
	require.NoError(t, err)

	ev.waitClosed(t, 3*time.Second)
	ev.mu.Lock()
	defer ev.mu.Unlock()
	require.Len(t, ev.errs, 1)
	assert.ErrorIs(t, ev.errs[0], api.KindPackageOversize)
	assert.Equal(t, [][]byte{[]byte("fine")}, ev.pkgs)
	assert.Equal(t, 1, ev.closes)
}

func TestPackageChannelForceCloseUnreadPeer(t *testing.T) {
	const delay = 300 * time.Millisecond
	e := newEngine(t)
	ev := newChannelEvents()
	addr, chans := serve(t, e, ev.handler(false), framing.WithForceCloseDelay(delay))
	runEngine(t, e)

	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()
	var ch *PackageChannel
	select {
	case ch = <-chans:
	case <-time.After(3 * time.Second):
		t.Fatal("no channel accepted")
	}

	// far more than the socket buffers hold; the peer never reads
	chunk := make([]byte, 512<<10)
	for i := 0; i < 64; i++ {
		require.NoError(t, ch.Send(chunk))
	}
	start := time.Now()
	ch.CloseLater(false)

	ev.waitClosed(t, delay+3*time.Second)
	assert.GreaterOrEqual(t, time.Since(start), delay-50*time.Millisecond)
	ev.mu.Lock()
	defer ev.mu.Unlock()
	assert.Equal(t, 1, ev.closes)
	assert.Empty(t, ev.errs)
}

func TestPackageChannelGracefulCloseFlushes(t *testing.T) {
	e := newEngine(t)
	ev := newChannelEvents()
	addr, chans := serve(t, e, ev.handler(false))
	runEngine(t, e)

	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()
	ch := <-chans
	require.NoError(t, ch.Send([]byte("one")))
	require.NoError(t, ch.Send([]byte("two")))
	ch.CloseLater(false)

	assert.Equal(t, []byte("one"), readFrame(t, conn))
	assert.Equal(t, []byte("two"), readFrame(t, conn))
	_, err = conn.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
	ev.waitClosed(t, 3*time.Second)
}

func TestConnectorRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	target, err := inet.ParseAddr(ln.Addr().String())
	require.NoError(t, err)
	ln.Close()

	e := newEngine(t)
	runEngine(t, e)
	failed := make(chan error, 1)
	onLoop(t, e, func() {
		c := NewConnector(e, func(fd api.Handle) {
			inet.Close(fd)
			t.Error("unexpected connect")
		}, func(err error) { failed <- err })
		if err := c.Connect(target); err != nil {
			failed <- err
		}
	})
	select {
	case err := <-failed:
		assert.Equal(t, api.KindConnRefused, api.KindOf(err))
	case <-time.After(3 * time.Second):
		t.Fatal("connect did not fail")
	}
}
