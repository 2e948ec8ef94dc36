//go:build unix

// File: inet/sock_unix_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package inet

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestSockaddrRoundTrip(t *testing.T) {
	for _, s := range []string{"192.168.1.2:443", "[fe80::1]:8443"} {
		a, err := ParseAddr(s)
		require.NoError(t, err)
		back, err := FromSockaddr(a.Sockaddr())
		require.NoError(t, err)
		assert.Equal(t, a.String(), back.String())
	}
}

func TestListenAcceptLoopback(t *testing.T) {
	addr, err := New("127.0.0.1", 0, false)
	require.NoError(t, err)
	lfd, err := Listen(addr, 16)
	require.NoError(t, err)
	defer Close(lfd)

	local, err := LocalAddr(lfd)
	require.NoError(t, err)
	require.NotZero(t, local.Port())

	_, _, err = Accept(lfd)
	require.True(t, IsWouldBlock(err), "empty backlog must not block: %v", err)

	conn, err := net.Dial("tcp", local.String())
	require.NoError(t, err)
	defer conn.Close()

	var fd int
	require.Eventually(t, func() bool {
		fd, _, err = Accept(lfd)
		return err == nil
	}, 2*time.Second, 5*time.Millisecond)
	defer Close(fd)

	assert.NoError(t, SetTCPNoDelay(fd, true))
	assert.NoError(t, SetKeepAlive(fd, true))
	assert.NoError(t, SocketError(fd))

	peer, err := PeerAddr(fd)
	require.NoError(t, err)
	assert.Equal(t, conn.LocalAddr().String(), peer.String())

	_, err = conn.Write([]byte("hello world"))
	require.NoError(t, err)
	a, b := make([]byte, 5), make([]byte, 16)
	var n int
	require.Eventually(t, func() bool {
		n, err = Readv(fd, [][]byte{a, b})
		return err == nil && n == 11
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "hello", string(a))
	assert.Equal(t, " world", string(b[:6]))

	n, err = Writev(fd, [][]byte{[]byte("ab"), []byte("cd")})
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	got := make([]byte, 4)
	_, err = conn.Read(got)
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(got))
}

func TestConnectInProgress(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	addr, err := ParseAddr(ln.Addr().String())
	require.NoError(t, err)

	fd, err := NewSocket(addr.Family())
	require.NoError(t, err)
	defer unix.Close(fd)
	err = Connect(fd, addr)
	if err != nil {
		assert.True(t, InProgress(err), "unexpected connect error %v", err)
	}
}
