// File: inet/addr_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package inet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLiteral(t *testing.T) {
	a, err := New("127.0.0.1", 8080, false)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", a.String())
	assert.False(t, a.IsIPv6())
	assert.Equal(t, uint16(8080), a.Port())

	b, err := New("::1", 9, true)
	require.NoError(t, err)
	assert.Equal(t, "[::1]:9", b.String())
	assert.True(t, b.IsIPv6())
}

func TestNewUnspecified(t *testing.T) {
	a, err := New("", 0, false)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:0", a.String())

	b, err := New("", 1, true)
	require.NoError(t, err)
	assert.Equal(t, "[::]:1", b.String())
}

func TestNewLocalhost(t *testing.T) {
	a, err := New("localhost", 80, false)
	if err != nil {
		t.Skipf("resolver unavailable: %v", err)
	}
	assert.True(t, a.IP().Is4())
	assert.True(t, a.IP().IsLoopback())
}

func TestParseAddr(t *testing.T) {
	a, err := ParseAddr("10.0.0.1:1234")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:1234", a.String())

	_, err = ParseAddr("nonsense")
	assert.Error(t, err)
}
