package mm

import (
	"unsafe"

	"github.com/openfluke/pipeflow/streamorder"
)

// FixedOrder adapts an AsyncResource into a plain Resource by pinning every
// call to a fixed pair of access orders: allocations always use allocOrder,
// deallocations always use deallocOrder. This is what lets a Monotonic
// allocator (which only knows the synchronous Resource interface) sit on top
// of a stream-ordered upstream pool without knowing about streams at all.
type FixedOrder struct {
	upstream     AsyncResource
	allocOrder   streamorder.Order
	deallocOrder streamorder.Order
}

// NewFixedOrder returns an adapter pinning upstream's calls to the given
// orders. If deallocOrder is the zero value it defaults to allocOrder.
func NewFixedOrder(upstream AsyncResource, allocOrder, deallocOrder streamorder.Order) *FixedOrder {
	if !deallocOrder.HasValue() {
		deallocOrder = allocOrder
	}
	return &FixedOrder{upstream: upstream, allocOrder: allocOrder, deallocOrder: deallocOrder}
}

// Allocate implements Resource by forwarding to the upstream AsyncResource
// with this adapter's fixed allocation order.
func (f *FixedOrder) Allocate(bytes, align uintptr) (unsafe.Pointer, error) {
	return f.upstream.AllocateAsync(bytes, align, f.allocOrder)
}

// Deallocate implements Resource by forwarding to the upstream AsyncResource
// with this adapter's fixed deallocation order, so the upstream pool can
// defer the actual free until that order's stream has caught up.
func (f *FixedOrder) Deallocate(ptr unsafe.Pointer, bytes, align uintptr) {
	f.upstream.DeallocateAsync(ptr, bytes, align, f.deallocOrder)
}
