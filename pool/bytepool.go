// File: pool/bytepool.go
// Author: momentics <momentics@gmail.com>
//
// Size-classed recycling of Package objects and their backing memory.

package pool

import (
	"math/bits"
	"sync"
	"sync/atomic"
)

const (
	minClassShift = 6  // 64 B
	maxClassShift = 16 // 64 KiB
	numClasses    = maxClassShift - minClassShift + 1
)

var (
	classes [numClasses]sync.Pool

	allocs   atomic.Int64
	recycles atomic.Int64
)

// Stats reports package allocation and reuse counters.
type Stats struct {
	Allocated int64
	Recycled  int64
}

// ReadStats returns a snapshot of the package pool counters.
func ReadStats() Stats {
	return Stats{Allocated: allocs.Load(), Recycled: recycles.Load()}
}

// classFor returns the smallest size class holding n bytes, or -1 if n is
// larger than the biggest pooled class.
func classFor(n int) int {
	if n <= 1<<minClassShift {
		return 0
	}
	shift := bits.Len(uint(n - 1))
	if shift > maxClassShift {
		return -1
	}
	return shift - minClassShift
}

func getPackage(size int) *Package {
	c := classFor(size)
	if c < 0 {
		allocs.Add(1)
		return &Package{buf: make([]byte, size)}
	}
	if v := classes[c].Get(); v != nil {
		return v.(*Package)
	}
	allocs.Add(1)
	return &Package{buf: make([]byte, 1<<(c+minClassShift))}
}

func putPackage(p *Package) {
	n := len(p.buf)
	// only exact class sizes go back; grown buffers are left to the GC
	if n&(n-1) != 0 {
		return
	}
	c := classFor(n)
	if c < 0 || n != 1<<(c+minClassShift) {
		return
	}
	recycles.Add(1)
	p.r, p.w = PrependRoom, PrependRoom
	classes[c].Put(p)
}
