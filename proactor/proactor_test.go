//go:build linux || darwin || freebsd

// File: proactor/proactor_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package proactor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sys/unix"

	"github.com/momentics/loofah/api"
)

func runEngine(t *testing.T, e *Engine) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()
	require.Eventually(t, e.Claimed, 2*time.Second, time.Millisecond)
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				t.Errorf("run: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("engine loop did not stop")
		}
	})
}

func onLoop(t *testing.T, e *Engine, fn func()) {
	t.Helper()
	done := make(chan struct{})
	e.RunLater(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop task did not run")
	}
}

func newEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	return e
}

type completion struct {
	op  api.EventType
	n   int
	err *api.Error
}

type recorder struct {
	HandlerBase
	fd  int
	got []completion
}

func (r *recorder) Fd() api.Handle { return r.fd }
func (r *recorder) OnReadCompleted(n int) {
	r.got = append(r.got, completion{op: api.EventRead, n: n})
}
func (r *recorder) OnWriteCompleted(n int) {
	r.got = append(r.got, completion{op: api.EventWrite, n: n})
}
func (r *recorder) OnIOError(op api.EventType, err *api.Error) {
	r.got = append(r.got, completion{op: op, err: err})
}

func socketPair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	require.NoError(t, unix.SetNonblock(fds[0], true))
	require.NoError(t, unix.SetNonblock(fds[1], true))
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func TestReadCompletesWhenDataArrives(t *testing.T) {
	e := newEngine(t)
	defer e.Close()
	a, b := socketPair(t)
	h := &recorder{fd: a}
	require.NoError(t, e.Register(h))
	assert.ErrorIs(t, e.Register(h), api.ErrAlreadyRegistered)

	buf := make([]byte, 16)
	require.NoError(t, e.LaunchRead(h, [][]byte{buf}))
	require.NoError(t, e.Poll(0))
	assert.Empty(t, h.got)
	assert.Equal(t, 1, e.Pending(h))

	_, err := unix.Write(b, []byte("ping"))
	require.NoError(t, err)
	require.NoError(t, e.Poll(1000))
	require.Equal(t, []completion{{op: api.EventRead, n: 4}}, h.got)
	assert.Equal(t, "ping", string(buf[:4]))
	assert.Zero(t, e.Pending(h))
}

func TestWriteCompletesWithByteCount(t *testing.T) {
	e := newEngine(t)
	defer e.Close()
	a, b := socketPair(t)
	h := &recorder{fd: a}
	require.NoError(t, e.Register(h))

	require.NoError(t, e.LaunchWrite(h, [][]byte{[]byte("ab"), []byte("cde")}))
	require.NoError(t, e.Poll(1000))
	require.Equal(t, []completion{{op: api.EventWrite, n: 5}}, h.got)

	got := make([]byte, 8)
	n, err := unix.Read(b, got)
	require.NoError(t, err)
	assert.Equal(t, "abcde", string(got[:n]))
}

func TestCompletionsAreHeldInIssueOrder(t *testing.T) {
	e := newEngine(t)
	defer e.Close()
	a, _ := socketPair(t)
	h := &recorder{fd: a}
	require.NoError(t, e.Register(h))
	require.NoError(t, e.LaunchRead(h, [][]byte{make([]byte, 4)}))
	require.NoError(t, e.LaunchRead(h, [][]byte{make([]byte, 4)}))

	st := e.regs[a]
	r1 := st.reads.Get(0).(*Request)
	r2 := st.reads.Get(1).(*Request)
	r1.n, r2.n = 1, 2

	e.complete(r2)
	assert.Empty(t, h.got, "second request finished first and is held")
	e.complete(r1)
	assert.Equal(t, []completion{
		{op: api.EventRead, n: 1},
		{op: api.EventRead, n: 2},
	}, h.got)

	e.complete(r1)
	assert.Len(t, h.got, 2, "a request completes once")
}

func TestUnregisterCancelsWithoutDispatch(t *testing.T) {
	e := newEngine(t)
	defer e.Close()
	a, b := socketPair(t)
	h := &recorder{fd: a}
	require.NoError(t, e.Register(h))
	require.NoError(t, e.LaunchRead(h, [][]byte{make([]byte, 4)}))
	r := e.regs[a].reads.Peek().(*Request)

	require.NoError(t, e.Unregister(h))
	require.NoError(t, e.Unregister(h))
	assert.True(t, r.Canceled())
	assert.Zero(t, e.Registered())

	_, err := unix.Write(b, []byte("late"))
	require.NoError(t, err)
	require.NoError(t, e.Poll(50))
	assert.Empty(t, h.got)
	assert.ErrorIs(t, e.LaunchRead(h, [][]byte{make([]byte, 4)}), api.ErrNotRegistered)
}

func TestLaunchRejectsOffLoopCallers(t *testing.T) {
	e := newEngine(t)
	a, _ := socketPair(t)
	h := &recorder{fd: a}
	require.NoError(t, e.Register(h))
	runEngine(t, e)

	assert.ErrorIs(t, e.LaunchRead(h, [][]byte{make([]byte, 1)}), api.ErrNotInLoop)
	assert.ErrorIs(t, e.Poll(0), api.ErrNotInLoop)
}

func TestLaunchLaterReportsFailureThroughHandler(t *testing.T) {
	e := newEngine(t)
	runEngine(t, e)
	a, _ := socketPair(t)
	h := &recorder{fd: a}

	// never registered
	e.LaunchReadLater(h, [][]byte{make([]byte, 1)})
	var got []completion
	onLoop(t, e, func() { got = append(got, h.got...) })
	require.Len(t, got, 1)
	assert.Equal(t, api.EventRead, got[0].op)
	assert.ErrorIs(t, got[0].err, api.ErrNotRegistered)
}

func TestCloseFromAnotherGoroutineStopsRun(t *testing.T) {
	e := newEngine(t)
	done := make(chan error, 1)
	go func() { done <- e.Run(context.Background()) }()
	require.Eventually(t, e.Claimed, 2*time.Second, time.Millisecond)

	require.NoError(t, e.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Close")
	}
	assert.NoError(t, e.Close())
}
