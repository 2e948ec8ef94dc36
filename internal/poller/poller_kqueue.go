//go:build darwin || freebsd

// File: internal/poller/poller_kqueue.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// kqueue(2) poller. Read and write interest are separate filters; the wake
// channel is an EVFILT_USER event.

package poller

import (
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

const wakeIdent = 0

// Poller demultiplexes readiness events with kqueue.
type Poller struct {
	kq     int
	events []unix.Kevent_t
	ready  map[int]Ready
	order  []int
	woken  atomic.Bool
	closed atomic.Bool
}

// Open creates the kqueue and registers the user wake event.
func Open(maxEvents int) (*Poller, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, fmt.Errorf("kqueue: %w", err)
	}
	unix.CloseOnExec(kq)
	var ev unix.Kevent_t
	unix.SetKevent(&ev, wakeIdent, unix.EVFILT_USER, unix.EV_ADD|unix.EV_CLEAR)
	if _, err := unix.Kevent(kq, []unix.Kevent_t{ev}, nil, nil); err != nil {
		unix.Close(kq)
		return nil, fmt.Errorf("kevent add user filter: %w", err)
	}
	if maxEvents <= 0 {
		maxEvents = 128
	}
	return &Poller{
		kq:     kq,
		events: make([]unix.Kevent_t, maxEvents),
		ready:  make(map[int]Ready),
	}, nil
}

func (p *Poller) change(fd int, old, in Ready) error {
	var changes []unix.Kevent_t
	add := func(filter, flags int) {
		var ev unix.Kevent_t
		unix.SetKevent(&ev, fd, filter, flags)
		changes = append(changes, ev)
	}
	if in&Readable != 0 && old&Readable == 0 {
		add(unix.EVFILT_READ, unix.EV_ADD)
	}
	if in&Readable == 0 && old&Readable != 0 {
		add(unix.EVFILT_READ, unix.EV_DELETE)
	}
	if in&Writable != 0 && old&Writable == 0 {
		add(unix.EVFILT_WRITE, unix.EV_ADD)
	}
	if in&Writable == 0 && old&Writable != 0 {
		add(unix.EVFILT_WRITE, unix.EV_DELETE)
	}
	if len(changes) == 0 {
		return nil
	}
	if _, err := unix.Kevent(p.kq, changes, nil, nil); err != nil && err != unix.ENOENT {
		return err
	}
	return nil
}

// Add registers fd with the given interest.
func (p *Poller) Add(fd int, in Ready) error {
	if err := p.change(fd, None, in); err != nil {
		return fmt.Errorf("kevent add: %w", err)
	}
	return nil
}

// Mod moves fd from interest old to in.
func (p *Poller) Mod(fd int, old, in Ready) error {
	if err := p.change(fd, old, in); err != nil {
		return fmt.Errorf("kevent mod: %w", err)
	}
	return nil
}

// Del removes the filters of interest old.
func (p *Poller) Del(fd int, old Ready) error {
	if err := p.change(fd, old, None); err != nil {
		return fmt.Errorf("kevent del: %w", err)
	}
	return nil
}

// Wait blocks up to timeoutMs (forever when negative) and calls fn once
// per ready descriptor with its read and write conditions merged.
func (p *Poller) Wait(timeoutMs int, fn Callback) (int, error) {
	var ts *unix.Timespec
	if timeoutMs >= 0 {
		t := unix.NsecToTimespec(int64(time.Duration(timeoutMs) * time.Millisecond))
		ts = &t
	}
	n, err := unix.Kevent(p.kq, nil, p.events, ts)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, fmt.Errorf("kevent wait: %w", err)
	}
	p.order = p.order[:0]
	for i := 0; i < n; i++ {
		raw := p.events[i]
		if raw.Filter == unix.EVFILT_USER {
			p.woken.Store(false)
			continue
		}
		fd := int(raw.Ident)
		ev, seen := p.ready[fd]
		if !seen {
			p.order = append(p.order, fd)
		}
		switch raw.Filter {
		case unix.EVFILT_READ:
			ev |= Readable
		case unix.EVFILT_WRITE:
			ev |= Writable
		}
		if raw.Flags&unix.EV_EOF != 0 {
			ev |= Hangup | Readable
		}
		if raw.Flags&unix.EV_ERROR != 0 {
			ev |= Failed | Readable | Writable
		}
		p.ready[fd] = ev
	}
	for _, fd := range p.order {
		ev := p.ready[fd]
		delete(p.ready, fd)
		fn(fd, ev)
	}
	return len(p.order), nil
}

// Wake interrupts Wait. It is safe to call from any goroutine.
func (p *Poller) Wake() error {
	if p.closed.Load() || !p.woken.CompareAndSwap(false, true) {
		return nil
	}
	var ev unix.Kevent_t
	unix.SetKevent(&ev, wakeIdent, unix.EVFILT_USER, 0)
	ev.Fflags = unix.NOTE_TRIGGER
	_, err := unix.Kevent(p.kq, []unix.Kevent_t{ev}, nil, nil)
	return err
}

// Close releases the kqueue.
func (p *Poller) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	return unix.Close(p.kq)
}
