// File: pool/ring.go
// Author: momentics <momentics@gmail.com>
//
// Elastic byte ring buffer backing raw socket I/O.
// Not safe for concurrent use; owned by a single engine loop.

package pool

import "io"

const minRingCapacity = 16

// ByteRing is a circular byte region with read and write cursors.
// One slot is always kept empty so that r == w means empty, and the
// region grows by reallocation when a write does not fit.
type ByteRing struct {
	buf []byte
	r   int
	w   int
}

// NewByteRing allocates a ring able to hold capacity-1 bytes before growing.
func NewByteRing(capacity int) *ByteRing {
	if capacity < minRingCapacity {
		capacity = minRingCapacity
	}
	return &ByteRing{buf: make([]byte, capacity)}
}

// Cap returns the size of the underlying region.
func (b *ByteRing) Cap() int { return len(b.buf) }

// ReadableSize returns the number of buffered bytes.
func (b *ByteRing) ReadableSize() int {
	n := len(b.buf)
	return (b.w - b.r + n) % n
}

// WritableSize returns how many bytes fit without growing.
func (b *ByteRing) WritableSize() int {
	return len(b.buf) - 1 - b.ReadableSize()
}

// Empty reports whether nothing is buffered.
func (b *ByteRing) Empty() bool { return b.r == b.w }

// Reserve grows the ring so that at least n bytes are writable.
func (b *ByteRing) Reserve(n int) {
	if n <= b.WritableSize() {
		return
	}
	readable := b.ReadableSize()
	size := len(b.buf) * 2
	if need := readable + n + 1; size < need {
		size = need
	}
	nb := make([]byte, size)
	b.copyOut(nb, readable)
	b.buf = nb
	b.r = 0
	b.w = readable
}

// Write appends p, growing as needed. It never fails.
func (b *ByteRing) Write(p []byte) (int, error) {
	b.Reserve(len(p))
	n := 0
	for _, seg := range b.WritablePointers() {
		c := copy(seg, p[n:])
		n += c
		if n == len(p) {
			break
		}
	}
	b.CommitWrite(n)
	return n, nil
}

// Read consumes up to len(p) bytes. It returns io.EOF when empty.
func (b *ByteRing) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if b.Empty() {
		return 0, io.EOF
	}
	n := b.Peek(p)
	b.SkipRead(n)
	return n, nil
}

// Peek copies up to len(p) bytes without consuming them.
func (b *ByteRing) Peek(p []byte) int {
	n := 0
	for _, seg := range b.ReadablePointers() {
		c := copy(p[n:], seg)
		n += c
		if n == len(p) {
			break
		}
	}
	return n
}

// SkipRead drops n buffered bytes. n is clamped to ReadableSize.
func (b *ByteRing) SkipRead(n int) {
	if r := b.ReadableSize(); n >= r {
		b.r, b.w = 0, 0
		return
	}
	b.r = (b.r + n) % len(b.buf)
}

// CommitWrite advances the write cursor after bytes were placed into
// the segments returned by WritablePointers.
func (b *ByteRing) CommitWrite(n int) {
	if n > b.WritableSize() {
		n = b.WritableSize()
	}
	b.w = (b.w + n) % len(b.buf)
}

// ReadablePointers returns the buffered bytes as at most two segments.
func (b *ByteRing) ReadablePointers() [][]byte {
	switch {
	case b.r == b.w:
		return nil
	case b.r < b.w:
		return [][]byte{b.buf[b.r:b.w]}
	case b.w == 0:
		return [][]byte{b.buf[b.r:]}
	}
	return [][]byte{b.buf[b.r:], b.buf[:b.w]}
}

// WritablePointers returns the free space as at most two segments,
// excluding the slot that is kept empty.
func (b *ByteRing) WritablePointers() [][]byte {
	n := len(b.buf)
	if b.WritableSize() == 0 {
		return nil
	}
	if b.w >= b.r {
		end := n
		if b.r == 0 {
			end = n - 1
		}
		first := b.buf[b.w:end]
		if b.r <= 1 {
			return [][]byte{first}
		}
		return [][]byte{first, b.buf[:b.r-1]}
	}
	return [][]byte{b.buf[b.w : b.r-1]}
}

// Reset drops all buffered bytes.
func (b *ByteRing) Reset() { b.r, b.w = 0, 0 }

func (b *ByteRing) copyOut(dst []byte, readable int) {
	if b.r <= b.w {
		copy(dst, b.buf[b.r:b.w])
		return
	}
	n := copy(dst, b.buf[b.r:])
	copy(dst[n:readable], b.buf[:b.w])
}
