// File: affinity/affinity.go
// Author: momentics <momentics@gmail.com>
//
// CPU pinning for engine loop threads. Platform implementations live in
// build-tagged files.

package affinity

import (
	"fmt"
	"runtime"
)

// Pin locks the calling goroutine to its OS thread and binds that thread
// to the logical CPU cpuID. The lock is never released, so the narrowed
// thread exits with the goroutine instead of returning to the scheduler.
func Pin(cpuID int) error {
	if cpuID < 0 || cpuID >= runtime.NumCPU() {
		return fmt.Errorf("affinity: cpu %d out of range [0,%d)", cpuID, runtime.NumCPU())
	}
	runtime.LockOSThread()
	if err := setAffinityPlatform(cpuID); err != nil {
		runtime.UnlockOSThread()
		return err
	}
	return nil
}
