package device

import (
	"math"
	"sync/atomic"
	"unsafe"
)

// AtomicAdd adds v to *p. The real and imaginary halves are each updated
// with a compare-and-swap loop, so concurrent adds to the same element are
// never lost.
func AtomicAdd(p *complex64, v complex64) {
	parts := (*[2]float32)(unsafe.Pointer(p))
	addFloat32(&parts[0], real(v))
	addFloat32(&parts[1], imag(v))
}

func addFloat32(f *float32, v float32) {
	addr := (*uint32)(unsafe.Pointer(f))
	for {
		old := atomic.LoadUint32(addr)
		sum := math.Float32bits(math.Float32frombits(old) + v)
		if atomic.CompareAndSwapUint32(addr, old, sum) {
			return
		}
	}
}
