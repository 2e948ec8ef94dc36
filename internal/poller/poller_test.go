//go:build linux || darwin || freebsd

// File: internal/poller/poller_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package poller

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func pair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func collect(t *testing.T, p *Poller, timeoutMs int) map[int]Ready {
	t.Helper()
	got := make(map[int]Ready)
	_, err := p.Wait(timeoutMs, func(fd int, ev Ready) { got[fd] |= ev })
	require.NoError(t, err)
	return got
}

func TestPollerReportsInterestOnly(t *testing.T) {
	p, err := Open(16)
	require.NoError(t, err)
	defer p.Close()
	a, b := pair(t)

	require.NoError(t, p.Add(a, None))
	assert.Empty(t, collect(t, p, 0))

	require.NoError(t, p.Mod(a, None, Writable))
	assert.Equal(t, Writable, collect(t, p, 100)[a]&(Readable|Writable))

	require.NoError(t, p.Mod(a, Writable, Readable))
	assert.Empty(t, collect(t, p, 0), "nothing to read yet")
	_, err = unix.Write(b, []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, Readable, collect(t, p, 100)[a]&(Readable|Writable))

	require.NoError(t, p.Del(a, Readable))
	assert.Empty(t, collect(t, p, 0))
}

func TestPollerWakeInterruptsWait(t *testing.T) {
	p, err := Open(16)
	require.NoError(t, err)
	defer p.Close()

	go func() {
		time.Sleep(20 * time.Millisecond)
		p.Wake()
		p.Wake()
	}()
	start := time.Now()
	n, err := p.Wait(5000, func(int, Ready) { t.Error("wake is not a descriptor event") })
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Less(t, time.Since(start), 4*time.Second)

	// the wake was consumed
	n, err = p.Wait(0, func(int, Ready) {})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPollerCloseIsIdempotent(t *testing.T) {
	p, err := Open(0)
	require.NoError(t, err)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.NoError(t, p.Wake())
}
