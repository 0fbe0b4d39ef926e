// Package scratch implements the per-iteration dynamic scratchpad: a
// temporary-memory arena, one monotonic sub-allocator per memory kind, whose
// device-kind allocations and frees are bound to stream order for safe
// reclamation.
//
// A Dynamic value must be used as a local/temporary. Its allocations are
// reclaimed only at Close, so holding one alive across iteration boundaries
// is an undetectable functional memory leak — the buffers stay reachable and
// are only returned to upstream once Close runs.
package scratch

import (
	"fmt"
	"unsafe"

	"github.com/openfluke/pipeflow/mm"
	"github.com/openfluke/pipeflow/streamorder"
)

// defaultInitialSize is the initial block size requested from upstream for
// a kind on its first allocation, absent an override.
const defaultInitialSize = 0x10000 // 64 KiB

// Scratchpad is the contract operators consume scratch memory through.
type Scratchpad interface {
	Alloc(kind mm.Kind, bytes, alignment uintptr) (unsafe.Pointer, error)
	AllocBytes(kind mm.Kind, n int) ([]byte, error)
}

// Dynamic is the Scratchpad implementation. Kinds are materialized lazily:
// a kind whose upstream is never requested is never touched, so a pipeline
// that allocates only host scratch never requires a GPU context to exist.
type Dynamic struct {
	deviceOrder          streamorder.Order
	pinnedDeallocOrder   streamorder.Order
	managedDeallocOrder  streamorder.Order
	initialSizes         [mm.NumKinds]uintptr

	monotonic [mm.NumKinds]*mm.Monotonic
	fixed     [mm.NumKinds]*mm.FixedOrder // nil for host

	deviceRes  *mm.DeviceResource
	pinnedRes  *mm.PinnedResource
	managedRes *mm.PinnedResource
}

// Option configures a Dynamic scratchpad at construction.
type Option func(*Dynamic)

// WithDeviceOrder sets the allocation and deallocation order for device
// memory. Pinned/managed deallocation defaults to this order unless
// overridden.
func WithDeviceOrder(order streamorder.Order) Option {
	return func(d *Dynamic) { d.deviceOrder = order }
}

// WithPinnedDeallocOrder overrides the deallocation order for pinned memory
// (allocation is always host-ordered). order is marked explicitly set so New
// does not default it to the device order, even if the caller passes Host().
func WithPinnedDeallocOrder(order streamorder.Order) Option {
	return func(d *Dynamic) { d.pinnedDeallocOrder = order.WithValue() }
}

// WithManagedDeallocOrder overrides the deallocation order for managed
// memory (allocation is always host-ordered). order is marked explicitly set
// for the same reason as WithPinnedDeallocOrder.
func WithManagedDeallocOrder(order streamorder.Order) Option {
	return func(d *Dynamic) { d.managedDeallocOrder = order.WithValue() }
}

// WithInitialSize overrides the initial upstream block size for a kind, in
// bytes. A value of 0 falls back to the 64 KiB default.
func WithInitialSize(kind mm.Kind, bytes uintptr) Option {
	return func(d *Dynamic) { d.initialSizes[kind] = bytes }
}

// New constructs a Dynamic scratchpad. It performs no upstream allocation
// until the first Alloc call for a given kind.
func New(opts ...Option) *Dynamic {
	d := &Dynamic{}
	for _, opt := range opts {
		opt(d)
	}
	if !d.pinnedDeallocOrder.HasValue() {
		d.pinnedDeallocOrder = d.deviceOrder
	}
	if !d.managedDeallocOrder.HasValue() {
		d.managedDeallocOrder = d.deviceOrder
	}
	for k := range d.initialSizes {
		if d.initialSizes[k] == 0 {
			d.initialSizes[k] = defaultInitialSize
		}
	}
	return d
}

// Alloc returns bytes of the requested kind and alignment. A zero-byte
// request returns (nil, nil) without materializing the kind's upstream
// resource.
func (d *Dynamic) Alloc(kind mm.Kind, bytes, alignment uintptr) (unsafe.Pointer, error) {
	if bytes == 0 {
		return nil, nil
	}
	if alignment == 0 {
		alignment = mm.CacheLineSize
	}

	m := d.monotonic[kind]
	if m == nil {
		var err error
		m, err = d.initResource(kind)
		if err != nil {
			return nil, err
		}
	}

	ptr, err := m.Allocate(bytes, alignment)
	if err != nil {
		return nil, fmt.Errorf("scratch: alloc %d bytes of %s: %w", bytes, kind, err)
	}
	return ptr, nil
}

// AllocBytes is a convenience wrapper for the host kind that returns the
// allocation as a Go byte slice of length n. Pinned/device/managed
// allocations are opaque handles into GPU-resident or mapped buffers and
// have no valid Go-addressable byte view without an explicit map step, so
// AllocBytes rejects those kinds rather than reinterpreting their handle as
// a pointer.
func (d *Dynamic) AllocBytes(kind mm.Kind, n int) ([]byte, error) {
	if kind != mm.KindHost {
		return nil, fmt.Errorf("scratch: AllocBytes only supports the host kind, got %s", kind)
	}
	ptr, err := d.Alloc(kind, uintptr(n), mm.CacheLineSize)
	if err != nil {
		return nil, err
	}
	if ptr == nil {
		return nil, nil
	}
	return unsafe.Slice((*byte)(ptr), n), nil
}

func (d *Dynamic) initResource(kind mm.Kind) (*mm.Monotonic, error) {
	var upstream mm.Resource

	switch kind {
	case mm.KindHost:
		upstream = mm.DefaultHostResource()
	case mm.KindPinned:
		d.pinnedRes = mm.NewPinnedResource()
		d.fixed[kind] = mm.NewFixedOrder(d.pinnedRes, streamorder.Host(), d.pinnedDeallocOrder)
		upstream = d.fixed[kind]
	case mm.KindDevice:
		d.deviceRes = mm.NewDeviceResource()
		d.fixed[kind] = mm.NewFixedOrder(d.deviceRes, d.deviceOrder, d.deviceOrder)
		upstream = d.fixed[kind]
	case mm.KindManaged:
		d.managedRes = mm.NewPinnedResource()
		d.fixed[kind] = mm.NewFixedOrder(d.managedRes, streamorder.Host(), d.managedDeallocOrder)
		upstream = d.fixed[kind]
	default:
		return nil, fmt.Errorf("scratch: invalid memory kind %v", kind)
	}

	m := mm.NewMonotonic(upstream, d.initialSizes[kind])
	d.monotonic[kind] = m
	return m, nil
}

// Close releases every block acquired from upstream, in the access order
// configured for that kind's deallocation. Individual allocations are never
// freed one at a time — only here, at scratchpad destruction.
func (d *Dynamic) Close() {
	for k, m := range d.monotonic {
		if m == nil {
			continue
		}
		fixed := d.fixed[k]
		m.Close(func(ptr unsafe.Pointer, size, align uintptr) {
			if fixed != nil {
				fixed.Deallocate(ptr, size, align)
			} else {
				mm.DefaultHostResource().Deallocate(ptr, size, align)
			}
		})
	}
}
