// File: pool/ring_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool_test

import (
	"bytes"
	"io"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/loofah/pool"
)

func checkRing(t *testing.T, b *pool.ByteRing) {
	t.Helper()
	require.Equal(t, b.Cap()-1, b.ReadableSize()+b.WritableSize())
	n := 0
	for _, seg := range b.ReadablePointers() {
		n += len(seg)
	}
	require.Equal(t, b.ReadableSize(), n)
	n = 0
	for _, seg := range b.WritablePointers() {
		n += len(seg)
	}
	require.Equal(t, b.WritableSize(), n)
}

func TestByteRingKeepsOneSlotFree(t *testing.T) {
	b := pool.NewByteRing(16)
	checkRing(t, b)
	assert.True(t, b.Empty())
	assert.Equal(t, 15, b.WritableSize())

	n, err := b.Write(bytes.Repeat([]byte{'a'}, 15))
	require.NoError(t, err)
	assert.Equal(t, 15, n)
	assert.Equal(t, 16, b.Cap(), "15 bytes fit without growing")
	assert.Zero(t, b.WritableSize())
	assert.Nil(t, b.WritablePointers())
	checkRing(t, b)

	b.Write([]byte{'b'})
	assert.Greater(t, b.Cap(), 16)
	checkRing(t, b)
	got, err := io.ReadAll(b)
	require.NoError(t, err)
	assert.Equal(t, append(bytes.Repeat([]byte{'a'}, 15), 'b'), got)
}

func TestByteRingWrapsAround(t *testing.T) {
	b := pool.NewByteRing(16)
	b.Write([]byte("0123456789"))
	b.SkipRead(8)
	b.Write([]byte("abcdefghij"))
	checkRing(t, b)
	assert.Equal(t, 16, b.Cap())
	require.Len(t, b.ReadablePointers(), 2)

	peek := make([]byte, 4)
	assert.Equal(t, 4, b.Peek(peek))
	assert.Equal(t, "89ab", string(peek))
	assert.Equal(t, 12, b.ReadableSize())

	out := make([]byte, 32)
	n, err := b.Read(out)
	require.NoError(t, err)
	assert.Equal(t, "89abcdefghij", string(out[:n]))
	assert.True(t, b.Empty())
	_, err = b.Read(out)
	assert.ErrorIs(t, err, io.EOF)
}

func TestByteRingGrowthPreservesOrder(t *testing.T) {
	b := pool.NewByteRing(16)
	rng := rand.New(rand.NewSource(7))
	var want, got []byte
	for i := 0; i < 500; i++ {
		chunk := make([]byte, rng.Intn(40))
		rng.Read(chunk)
		b.Write(chunk)
		want = append(want, chunk...)
		checkRing(t, b)

		out := make([]byte, rng.Intn(40))
		n, _ := b.Read(out)
		got = append(got, out[:n]...)
		checkRing(t, b)
	}
	rest, _ := io.ReadAll(b)
	got = append(got, rest...)
	assert.Equal(t, want, got)
}

func TestByteRingDirectWriteSegments(t *testing.T) {
	b := pool.NewByteRing(32)
	b.Reserve(100)
	assert.GreaterOrEqual(t, b.WritableSize(), 100)
	segs := b.WritablePointers()
	require.NotEmpty(t, segs)
	n := copy(segs[0], "direct")
	b.CommitWrite(n)
	assert.Equal(t, [][]byte{[]byte("direct")}, b.ReadablePointers())
	b.Reset()
	assert.True(t, b.Empty())
	checkRing(t, b)
}
