//go:build linux

// File: internal/poller/poller_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Level-triggered epoll(7) poller with an eventfd wake channel.

package poller

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"

	"go.uber.org/multierr"
	"golang.org/x/sys/unix"
)

// Poller demultiplexes readiness events with epoll.
type Poller struct {
	epfd   int
	wakefd int
	events []unix.EpollEvent
	woken  atomic.Bool
	closed atomic.Bool
}

// Open creates the epoll instance and its wake channel.
func Open(maxEvents int) (*Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	wakefd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, fmt.Errorf("eventfd: %w", err)
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakefd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakefd, &ev); err != nil {
		unix.Close(wakefd)
		unix.Close(epfd)
		return nil, fmt.Errorf("epoll ctl add eventfd: %w", err)
	}
	if maxEvents <= 0 {
		maxEvents = 128
	}
	return &Poller{
		epfd:   epfd,
		wakefd: wakefd,
		events: make([]unix.EpollEvent, maxEvents),
	}, nil
}

func toEpoll(in Ready) uint32 {
	var ev uint32
	if in&Readable != 0 {
		ev |= unix.EPOLLIN | unix.EPOLLRDHUP
	}
	if in&Writable != 0 {
		ev |= unix.EPOLLOUT
	}
	return ev
}

// Add registers fd with the given interest. Zero interest is allowed.
func (p *Poller) Add(fd int, in Ready) error {
	ev := unix.EpollEvent{Events: toEpoll(in), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("epoll ctl add: %w", err)
	}
	return nil
}

// Mod replaces the interest of a registered fd.
func (p *Poller) Mod(fd int, _ Ready, in Ready) error {
	ev := unix.EpollEvent{Events: toEpoll(in), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return fmt.Errorf("epoll ctl mod: %w", err)
	}
	return nil
}

// Del removes fd from the interest list.
func (p *Poller) Del(fd int, _ Ready) error {
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("epoll ctl del: %w", err)
	}
	return nil
}

// Wait blocks up to timeoutMs (forever when negative) and calls fn for
// each ready descriptor. It returns the number of descriptors reported.
func (p *Poller) Wait(timeoutMs int, fn Callback) (int, error) {
	if timeoutMs < 0 {
		timeoutMs = -1
	}
	n, err := unix.EpollWait(p.epfd, p.events, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, fmt.Errorf("epoll wait: %w", err)
	}
	handled := 0
	for i := 0; i < n; i++ {
		raw := p.events[i]
		fd := int(raw.Fd)
		if fd == p.wakefd {
			p.drainWake()
			continue
		}
		var ev Ready
		if raw.Events&(unix.EPOLLIN|unix.EPOLLRDHUP|unix.EPOLLPRI) != 0 {
			ev |= Readable
		}
		if raw.Events&unix.EPOLLOUT != 0 {
			ev |= Writable
		}
		if raw.Events&unix.EPOLLHUP != 0 {
			ev |= Hangup | Readable | Writable
		}
		if raw.Events&unix.EPOLLERR != 0 {
			ev |= Failed | Readable | Writable
		}
		handled++
		fn(fd, ev)
	}
	return handled, nil
}

// Wake interrupts Wait. It is safe to call from any goroutine.
func (p *Poller) Wake() error {
	if p.closed.Load() || !p.woken.CompareAndSwap(false, true) {
		return nil
	}
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	_, err := unix.Write(p.wakefd, buf[:])
	if err == unix.EAGAIN {
		return nil
	}
	return err
}

func (p *Poller) drainWake() {
	var buf [8]byte
	p.woken.Store(false)
	for {
		if _, err := unix.Read(p.wakefd, buf[:]); err != nil {
			return
		}
	}
}

// Close releases the epoll instance and the wake channel.
func (p *Poller) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	return multierr.Combine(unix.Close(p.wakefd), unix.Close(p.epfd))
}
