// File: pool/package.go
// Author: momentics <momentics@gmail.com>
//
// Package is the growable, reference-counted buffer carrying exactly one
// protocol message. A fixed prepend room in front of the read cursor lets
// the framing layer add the length header without copying the payload.

package pool

import (
	"encoding/binary"
	"errors"
	"io"
	"sync/atomic"
)

// PrependRoom is the space reserved in front of a fresh package.
const PrependRoom = 4

// ErrShortPackage is returned by the typed readers when too few bytes remain.
var ErrShortPackage = errors.New("pool: not enough readable bytes in package")

// Package holds bytes between a read and a write cursor:
// 0 <= r <= w <= len(buf).
type Package struct {
	buf  []byte
	r    int
	w    int
	refs atomic.Int32
}

// NewPackage returns a package with at least size writable bytes and a
// reference count of one.
func NewPackage(size int) *Package {
	p := getPackage(PrependRoom + size)
	p.r = PrependRoom
	p.w = PrependRoom
	p.refs.Store(1)
	return p
}

// PackageOf copies b into a new package.
func PackageOf(b []byte) *Package {
	p := NewPackage(len(b))
	p.Write(b)
	return p
}

// Len returns the number of readable bytes.
func (p *Package) Len() int { return p.w - p.r }

// Cap returns the total size of the backing region.
func (p *Package) Cap() int { return len(p.buf) }

// Writable returns how many bytes can be written without growing.
func (p *Package) Writable() int { return len(p.buf) - p.w }

// Prependable returns the space in front of the read cursor.
func (p *Package) Prependable() int { return p.r }

// Bytes returns the readable region. It aliases the package memory.
func (p *Package) Bytes() []byte { return p.buf[p.r:p.w] }

// Peek returns the first n readable bytes without consuming them.
func (p *Package) Peek(n int) []byte {
	if n > p.Len() {
		n = p.Len()
	}
	return p.buf[p.r : p.r+n]
}

// Skip consumes n readable bytes. Consuming everything rewinds both
// cursors to the prepend room.
func (p *Package) Skip(n int) {
	if n >= p.Len() {
		p.r = PrependRoom
		p.w = PrependRoom
		return
	}
	p.r += n
}

// Tail returns the writable region for direct reads from a socket.
// Follow with Commit.
func (p *Package) Tail() []byte { return p.buf[p.w:] }

// Commit advances the write cursor by n bytes written into Tail.
func (p *Package) Commit(n int) {
	if n > p.Writable() {
		n = p.Writable()
	}
	p.w += n
}

// EnsureWritable makes room for n more bytes, compacting readable data to
// the prepend room when that is enough, else growing by 1.5x.
func (p *Package) EnsureWritable(n int) {
	if p.Writable() >= n {
		return
	}
	readable := p.Len()
	if p.r-PrependRoom+p.Writable() >= n {
		copy(p.buf[PrependRoom:], p.buf[p.r:p.w])
		p.r = PrependRoom
		p.w = PrependRoom + readable
		return
	}
	size := len(p.buf) + len(p.buf)/2
	if need := PrependRoom + readable + n; size < need {
		size = need
	}
	nb := make([]byte, size)
	copy(nb[PrependRoom:], p.buf[p.r:p.w])
	p.buf = nb
	p.r = PrependRoom
	p.w = PrependRoom + readable
}

// Write appends b. It implements io.Writer and never fails.
func (p *Package) Write(b []byte) (int, error) {
	p.EnsureWritable(len(b))
	copy(p.buf[p.w:], b)
	p.w += len(b)
	return len(b), nil
}

// WriteString appends s.
func (p *Package) WriteString(s string) (int, error) {
	p.EnsureWritable(len(s))
	copy(p.buf[p.w:], s)
	p.w += len(s)
	return len(s), nil
}

// WriteByte appends c.
func (p *Package) WriteByte(c byte) error {
	p.EnsureWritable(1)
	p.buf[p.w] = c
	p.w++
	return nil
}

// WriteUint16 appends v in big-endian order.
func (p *Package) WriteUint16(v uint16) {
	p.EnsureWritable(2)
	binary.BigEndian.PutUint16(p.buf[p.w:], v)
	p.w += 2
}

// WriteUint32 appends v in big-endian order.
func (p *Package) WriteUint32(v uint32) {
	p.EnsureWritable(4)
	binary.BigEndian.PutUint32(p.buf[p.w:], v)
	p.w += 4
}

// WriteUint64 appends v in big-endian order.
func (p *Package) WriteUint64(v uint64) {
	p.EnsureWritable(8)
	binary.BigEndian.PutUint64(p.buf[p.w:], v)
	p.w += 8
}

// Read consumes up to len(b) bytes. It implements io.Reader.
func (p *Package) Read(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	if p.Len() == 0 {
		return 0, io.EOF
	}
	n := copy(b, p.buf[p.r:p.w])
	p.Skip(n)
	return n, nil
}

// ReadByte consumes one byte.
func (p *Package) ReadByte() (byte, error) {
	if p.Len() < 1 {
		return 0, io.EOF
	}
	c := p.buf[p.r]
	p.Skip(1)
	return c, nil
}

// ReadUint16 consumes a big-endian uint16.
func (p *Package) ReadUint16() (uint16, error) {
	if p.Len() < 2 {
		return 0, ErrShortPackage
	}
	v := binary.BigEndian.Uint16(p.buf[p.r:])
	p.Skip(2)
	return v, nil
}

// ReadUint32 consumes a big-endian uint32.
func (p *Package) ReadUint32() (uint32, error) {
	if p.Len() < 4 {
		return 0, ErrShortPackage
	}
	v := binary.BigEndian.Uint32(p.buf[p.r:])
	p.Skip(4)
	return v, nil
}

// ReadUint64 consumes a big-endian uint64.
func (p *Package) ReadUint64() (uint64, error) {
	if p.Len() < 8 {
		return 0, ErrShortPackage
	}
	v := binary.BigEndian.Uint64(p.buf[p.r:])
	p.Skip(8)
	return v, nil
}

// Prepend writes b in front of the readable region. It reports false when
// the prepend room is too small.
func (p *Package) Prepend(b []byte) bool {
	if len(b) > p.r {
		return false
	}
	p.r -= len(b)
	copy(p.buf[p.r:], b)
	return true
}

// PrependUint32 writes v big-endian in front of the readable region,
// moving the payload when the prepend room has been used up.
func (p *Package) PrependUint32(v uint32) {
	if p.r < 4 {
		readable := p.Len()
		p.EnsureWritable(4)
		copy(p.buf[p.r+4:], p.buf[p.r:p.w])
		p.w = p.r + 4 + readable
	} else {
		p.r -= 4
	}
	binary.BigEndian.PutUint32(p.buf[p.r:], v)
}

// Reset empties the package, keeping its memory.
func (p *Package) Reset() {
	p.r = PrependRoom
	p.w = PrependRoom
}

// Retain adds a reference and returns p.
func (p *Package) Retain() *Package {
	p.refs.Add(1)
	return p
}

// Refs returns the current reference count.
func (p *Package) Refs() int32 { return p.refs.Load() }

// Release drops a reference. The package is recycled when the last
// reference goes away and must not be used afterwards.
func (p *Package) Release() {
	switch n := p.refs.Add(-1); {
	case n == 0:
		putPackage(p)
	case n < 0:
		panic("pool: package released more times than retained")
	}
}
