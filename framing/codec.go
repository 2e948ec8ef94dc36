// File: framing/codec.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package framing

import (
	"encoding/binary"

	"github.com/momentics/loofah/pool"
)

// HeaderSize is the length prefix size in bytes.
const HeaderSize = 4

// Encode prepends the length header to pkg in place.
func Encode(pkg *pool.Package) {
	pkg.PrependUint32(uint32(pkg.Len()))
}

// AppendFrame appends one encoded frame carrying payload to dst.
func AppendFrame(dst, payload []byte) []byte {
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(payload)))
	return append(dst, payload...)
}

// PeekLength decodes the length header at the start of b. ok is false
// when b is shorter than the header.
func PeekLength(b []byte) (n uint32, ok bool) {
	if len(b) < HeaderSize {
		return 0, false
	}
	return binary.BigEndian.Uint32(b), true
}
