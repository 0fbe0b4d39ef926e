package mm

import (
	"fmt"
	"unsafe"

	"github.com/openfluke/pipeflow/streamorder"
)

// Resource allocates and frees memory of a single kind, synchronously.
type Resource interface {
	Allocate(bytes, align uintptr) (unsafe.Pointer, error)
	Deallocate(ptr unsafe.Pointer, bytes, align uintptr)
}

// AsyncResource is a Resource whose allocate/deallocate calls are sequenced
// against an access order (a device stream, typically). The returned memory
// must not be touched by a consumer until the order has been observed.
type AsyncResource interface {
	AllocateAsync(bytes, align uintptr, order streamorder.Order) (unsafe.Pointer, error)
	DeallocateAsync(ptr unsafe.Pointer, bytes, align uintptr, order streamorder.Order)
}

// HostResource is the process-wide default resource for plain (unpinned)
// host memory. Allocations are backed by Go byte slices aligned to the
// requested alignment (cache-line size when it is zero); deallocation only
// drops the bookkeeping entry, since the Go garbage collector owns the
// underlying storage once unreferenced — callers obtain a matching slice
// view through Bytes for the lifetime of the allocation.
type HostResource struct {
	live map[uintptr][]byte
}

// NewHostResource returns a fresh host memory resource.
func NewHostResource() *HostResource {
	return &HostResource{live: make(map[uintptr][]byte)}
}

func (r *HostResource) Allocate(bytes, align uintptr) (unsafe.Pointer, error) {
	if bytes == 0 {
		return nil, nil
	}
	buf := alignedBytes(int(bytes), align)
	ptr := unsafe.Pointer(&buf[0])
	r.live[uintptr(ptr)] = buf
	return ptr, nil
}

func (r *HostResource) Deallocate(ptr unsafe.Pointer, bytes, align uintptr) {
	if ptr == nil {
		return
	}
	delete(r.live, uintptr(ptr))
}

// Bytes returns the live slice backing a pointer previously returned by
// Allocate, or nil if the pointer is unknown (already freed, or zero-sized).
func (r *HostResource) Bytes(ptr unsafe.Pointer) []byte {
	if ptr == nil {
		return nil
	}
	return r.live[uintptr(ptr)]
}

func alignedBytes(size int, align uintptr) []byte {
	if size == 0 {
		return nil
	}
	if align == 0 {
		align = CacheLineSize
	}
	buf := make([]byte, uintptr(size)+align-1)
	ptr := uintptr(unsafe.Pointer(&buf[0]))
	offset := uintptr(0)
	if mod := ptr % align; mod != 0 {
		offset = align - mod
	}
	return buf[offset : offset+uintptr(size) : offset+uintptr(size)]
}

var errZeroAlign = fmt.Errorf("mm: alignment must be a power of two")
