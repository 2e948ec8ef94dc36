// File: framing/assembler.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package framing

import (
	"github.com/momentics/loofah/pool"
)

// Assembler cuts a byte stream into frames. Socket reads land directly in
// the carry package, which also keeps a partial frame between reads.
type Assembler struct {
	carry    *pool.Package
	max      int
	readSize int
}

// NewAssembler creates an assembler accepting payloads up to maxPayload
// bytes and offering at least readSize free bytes to every read.
func NewAssembler(maxPayload, readSize int) *Assembler {
	if readSize < HeaderSize {
		readSize = HeaderSize
	}
	return &Assembler{
		carry:    pool.NewPackage(readSize),
		max:      maxPayload,
		readSize: readSize,
	}
}

// Buffer returns free space at the tail of the carry package for the next
// read. Follow with Commit.
func (a *Assembler) Buffer() []byte {
	if a.carry == nil {
		return nil
	}
	a.carry.EnsureWritable(a.readSize)
	return a.carry.Tail()
}

// Commit records n bytes read into Buffer.
func (a *Assembler) Commit(n int) {
	if a.carry != nil {
		a.carry.Commit(n)
	}
}

// Feed copies p into the carry package.
func (a *Assembler) Feed(p []byte) {
	if a.carry != nil {
		a.carry.Write(p)
	}
}

// Buffered returns the number of bytes waiting for the rest of a frame.
func (a *Assembler) Buffered() int {
	if a.carry == nil {
		return 0
	}
	return a.carry.Len()
}

// Split appends every complete frame to dst in arrival order, with the
// header stripped. Scanning stops at the first header declaring more than
// the maximum payload and oversize is reported; frames before it are still
// returned. The caller owns the returned packages.
func (a *Assembler) Split(dst []*pool.Package) (frames []*pool.Package, oversize bool) {
	frames = dst
	if a.carry == nil {
		return frames, false
	}
	for {
		avail := a.carry.Len()
		n, ok := PeekLength(a.carry.Peek(HeaderSize))
		if !ok {
			return frames, false
		}
		if int64(n) > int64(a.max) {
			return frames, true
		}
		size := HeaderSize + int(n)
		switch {
		case avail < size:
			a.carry.EnsureWritable(size - avail)
			return frames, false
		case avail == size:
			// exactly one frame left: hand the carry over
			a.carry.Skip(HeaderSize)
			frames = append(frames, a.carry)
			a.carry = pool.NewPackage(a.readSize)
			return frames, false
		default:
			pkg := pool.NewPackage(int(n))
			pkg.Write(a.carry.Bytes()[HeaderSize:size])
			a.carry.Skip(size)
			frames = append(frames, pkg)
		}
	}
}

// Drop forgets the carry package without recycling it: a pending
// overlapped read may still write into it.
func (a *Assembler) Drop() { a.carry = nil }

// Release recycles the carry package.
func (a *Assembler) Release() {
	if a.carry != nil {
		a.carry.Release()
		a.carry = nil
	}
}
