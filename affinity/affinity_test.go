//go:build linux

// File: affinity/affinity_test.go
// Author: momentics <momentics@gmail.com>

package affinity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestPinBindsCallingThread(t *testing.T) {
	var allowed unix.CPUSet
	require.NoError(t, unix.SchedGetaffinity(0, &allowed))
	cpu := -1
	for i := 0; i < 1024; i++ {
		if allowed.IsSet(i) {
			cpu = i
			break
		}
	}
	if cpu < 0 {
		t.Skip("no CPU in the affinity mask")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if !assert.NoError(t, Pin(cpu)) {
			return
		}
		var got unix.CPUSet
		assert.NoError(t, unix.SchedGetaffinity(0, &got))
		assert.Equal(t, 1, got.Count())
		assert.True(t, got.IsSet(cpu))
	}()
	<-done
}

func TestPinRejectsUnknownCPU(t *testing.T) {
	assert.Error(t, Pin(-1))
	assert.Error(t, Pin(1<<20))
}
