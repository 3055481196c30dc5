package optimizer

import (
	"math"
	"sync/atomic"
	"unsafe"
)

// addFloat64 atomically adds delta to *addr via a CAS retry loop over the
// IEEE-754 bit pattern, since Go has no native atomic float64
// (SPEC_FULL.md §4.8).
func addFloat64(addr *float64, delta float64) {
	bits := (*uint64)(unsafe.Pointer(addr))
	for {
		old := atomic.LoadUint64(bits)
		newVal := math.Float64bits(math.Float64frombits(old) + delta)
		if atomic.CompareAndSwapUint64(bits, old, newVal) {
			return
		}
	}
}
