package mm

import (
	"context"
	"fmt"
	"sync"
	"unsafe"

	"github.com/openfluke/pipeflow/gevent"
	"github.com/openfluke/pipeflow/gpu"
	"github.com/openfluke/pipeflow/streamorder"
	"github.com/openfluke/webgpu/wgpu"
)

// drainInOrder blocks until every device command submitted before this call
// against buf on order's device queue has completed, by recording a
// completion event that copies out of buf (so it cannot fire until prior
// writes to buf have landed) and waiting on it. Destroying buf before this
// returns would risk the device queue still reading or writing it —
// precisely the use-after-free stream-ordered deallocation exists to avoid.
func drainInOrder(events *gevent.Pool, order streamorder.Order, buf *wgpu.Buffer) {
	if !order.IsDevice() || buf == nil {
		return
	}
	ev, err := events.Get(order.DeviceID())
	if err != nil {
		return
	}
	defer events.Put(ev)
	if err := ev.Record(buf); err != nil {
		return
	}
	_ = ev.Wait(context.Background())
}

// DeviceResource is the upstream AsyncResource for device-kind memory. Each
// allocation is a dedicated storage buffer; Go cannot hand back a raw device
// pointer, so allocations are tracked behind an opaque handle value that
// callers treat exactly like any other unsafe.Pointer — they must never
// dereference it directly.
type DeviceResource struct {
	mu      sync.Mutex
	buffers map[uintptr]*wgpu.Buffer
	next    uintptr
	events  *gevent.Pool
}

// NewDeviceResource returns a device memory resource. It performs no device
// work until the first Allocate call.
func NewDeviceResource() *DeviceResource {
	return &DeviceResource{buffers: make(map[uintptr]*wgpu.Buffer), events: gevent.NewPool()}
}

func (r *DeviceResource) AllocateAsync(bytes, align uintptr, order streamorder.Order) (unsafe.Pointer, error) {
	if bytes == 0 {
		return nil, nil
	}
	c, err := gpu.GetContext()
	if err != nil {
		return nil, fmt.Errorf("mm: device allocation requires a GPU context: %w", err)
	}
	buf, err := c.NewStorageBuffer(uint64(AlignedSize(bytes, align)))
	if err != nil {
		return nil, fmt.Errorf("mm: device allocate: %w", err)
	}

	r.mu.Lock()
	r.next++
	h := r.next
	r.buffers[h] = buf
	r.mu.Unlock()

	return unsafe.Pointer(h), nil
}

// DeallocateAsync issues the deallocation in the order configured by the
// caller: if order is device-bound, the free blocks until a completion
// event recorded against buf has fired, so any write still in flight on
// that device queue has landed before the buffer is destroyed. A host order
// destroys immediately — there is no stream to wait on.
func (r *DeviceResource) DeallocateAsync(ptr unsafe.Pointer, bytes, align uintptr, order streamorder.Order) {
	if ptr == nil {
		return
	}
	h := uintptr(ptr)
	r.mu.Lock()
	buf, ok := r.buffers[h]
	delete(r.buffers, h)
	r.mu.Unlock()
	if !ok {
		return
	}
	drainInOrder(r.events, order, buf)
	buf.Destroy()
}

// Buffer resolves a handle previously returned by AllocateAsync back to its
// backing wgpu.Buffer, for callers that need to issue real device work
// against it. It returns nil for an unknown or freed handle.
func (r *DeviceResource) Buffer(ptr unsafe.Pointer) *wgpu.Buffer {
	if ptr == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buffers[uintptr(ptr)]
}

// PinnedResource is the upstream AsyncResource for pinned host memory: each
// allocation is a host-visible staging buffer created with map-write and
// copy-source usage. PinnedResource does not map the buffer itself.
type PinnedResource struct {
	mu      sync.Mutex
	buffers map[uintptr]*wgpu.Buffer
	next    uintptr
	events  *gevent.Pool
}

func NewPinnedResource() *PinnedResource {
	return &PinnedResource{buffers: make(map[uintptr]*wgpu.Buffer), events: gevent.NewPool()}
}

func (r *PinnedResource) AllocateAsync(bytes, align uintptr, order streamorder.Order) (unsafe.Pointer, error) {
	if bytes == 0 {
		return nil, nil
	}
	c, err := gpu.GetContext()
	if err != nil {
		return nil, fmt.Errorf("mm: pinned allocation requires a GPU context: %w", err)
	}
	buf, err := c.NewStagingBuffer(uint64(AlignedSize(bytes, align)), true)
	if err != nil {
		return nil, fmt.Errorf("mm: pinned allocate: %w", err)
	}

	r.mu.Lock()
	r.next++
	h := r.next
	r.buffers[h] = buf
	r.mu.Unlock()

	return unsafe.Pointer(h), nil
}

// DeallocateAsync mirrors DeviceResource.DeallocateAsync's stream-ordered
// discipline for pinned staging buffers.
func (r *PinnedResource) DeallocateAsync(ptr unsafe.Pointer, bytes, align uintptr, order streamorder.Order) {
	if ptr == nil {
		return
	}
	h := uintptr(ptr)
	r.mu.Lock()
	buf, ok := r.buffers[h]
	delete(r.buffers, h)
	r.mu.Unlock()
	if !ok {
		return
	}
	drainInOrder(r.events, order, buf)
	buf.Destroy()
}

func (r *PinnedResource) Buffer(ptr unsafe.Pointer) *wgpu.Buffer {
	if ptr == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buffers[uintptr(ptr)]
}
