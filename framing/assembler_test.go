// File: framing/assembler_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package framing

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/loofah/pool"
)

func randomPayloads(r *rand.Rand, count, maxLen int) [][]byte {
	out := make([][]byte, count)
	for i := range out {
		p := make([]byte, r.Intn(maxLen+1))
		r.Read(p)
		out[i] = p
	}
	return out
}

func TestAssemblerRoundTripArbitraryChunks(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	payloads := randomPayloads(r, 200, 700)
	var stream []byte
	for _, p := range payloads {
		stream = AppendFrame(stream, p)
	}

	chunkers := map[string]func() int{
		"one byte": func() int { return 1 },
		"three":    func() int { return 3 },
		"header":   func() int { return HeaderSize },
		"large":    func() int { return 4096 },
		"random":   func() int { return 1 + r.Intn(900) },
	}
	for name, next := range chunkers {
		t.Run(name, func(t *testing.T) {
			a := NewAssembler(1024, 64)
			var got []*pool.Package
			for off := 0; off < len(stream); {
				n := next()
				if off+n > len(stream) {
					n = len(stream) - off
				}
				if name == "random" {
					buf := a.Buffer()
					n = copy(buf[:min(n, len(buf))], stream[off:off+n])
					a.Commit(n)
				} else {
					a.Feed(stream[off : off+n])
				}
				off += n
				var oversize bool
				got, oversize = a.Split(got)
				require.False(t, oversize)
			}
			require.Len(t, got, len(payloads))
			for i, pkg := range got {
				assert.True(t, bytes.Equal(payloads[i], pkg.Bytes()), "payload %d", i)
				pkg.Release()
			}
			assert.Zero(t, a.Buffered())
		})
	}
}

func TestAssemblerPipelinedFramesInOneRead(t *testing.T) {
	a := NewAssembler(64, 16)
	var stream []byte
	for _, s := range []string{"a", "", "bcd", "efgh"} {
		stream = AppendFrame(stream, []byte(s))
	}
	a.Feed(stream[:len(stream)-2])
	frames, oversize := a.Split(nil)
	require.False(t, oversize)
	require.Len(t, frames, 3)
	assert.Equal(t, "a", string(frames[0].Bytes()))
	assert.Zero(t, frames[1].Len())
	assert.Equal(t, "bcd", string(frames[2].Bytes()))
	assert.Equal(t, HeaderSize+2, a.Buffered())

	a.Feed(stream[len(stream)-2:])
	frames, _ = a.Split(frames[:0])
	require.Len(t, frames, 1)
	assert.Equal(t, "efgh", string(frames[0].Bytes()))
}

func TestAssemblerOversize(t *testing.T) {
	a := NewAssembler(8, 16)
	a.Feed(AppendFrame(nil, []byte("ok")))
	// header alone announces a frame that is too large
	a.Feed([]byte{0, 0, 0, 9})
	frames, oversize := a.Split(nil)
	assert.True(t, oversize)
	require.Len(t, frames, 1)
	assert.Equal(t, "ok", string(frames[0].Bytes()))

	b := NewAssembler(8, 16)
	b.Feed([]byte{0xff, 0xff, 0xff, 0xff})
	frames, oversize = b.Split(nil)
	assert.True(t, oversize)
	assert.Empty(t, frames)
}

func TestAssemblerWaitsForHeader(t *testing.T) {
	a := NewAssembler(8, 16)
	a.Feed([]byte{0, 0})
	frames, oversize := a.Split(nil)
	assert.False(t, oversize)
	assert.Empty(t, frames)
	assert.Equal(t, 2, a.Buffered())
}

func TestEncodePrependsHeader(t *testing.T) {
	pkg := pool.PackageOf([]byte("hello"))
	Encode(pkg)
	assert.Equal(t, AppendFrame(nil, []byte("hello")), pkg.Bytes())
	pkg.Release()
}
