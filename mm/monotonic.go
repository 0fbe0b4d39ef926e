package mm

import (
	"fmt"
	"unsafe"
)

type block struct {
	base unsafe.Pointer
	size uintptr
	used uintptr
}

// Monotonic is a bump sub-allocator layered over an upstream Resource. It
// grows geometrically on exhaustion and returns all blocks to upstream only
// on Close — individual Deallocate calls through this type are no-ops, since
// the scratchpad's contract is "free together, on destruction."
type Monotonic struct {
	upstream    Resource
	blocks      []block
	nextBlock   uintptr
	initialSize uintptr
}

// NewMonotonic returns a bump allocator over upstream, whose first block
// will be at least initialSize bytes (allocated lazily on first Allocate).
func NewMonotonic(upstream Resource, initialSize uintptr) *Monotonic {
	return &Monotonic{upstream: upstream, initialSize: initialSize}
}

// Upstream returns the resource this allocator is layered over, as passed to
// NewMonotonic.
func (m *Monotonic) Upstream() Resource {
	return m.upstream
}

// Allocate returns bytes from the current block, requesting a new block from
// upstream (geometric growth, factor 2) if the current block cannot satisfy
// the aligned request.
func (m *Monotonic) Allocate(bytes, align uintptr) (unsafe.Pointer, error) {
	if bytes == 0 {
		return nil, nil
	}
	if align == 0 {
		align = 1
	}

	if len(m.blocks) > 0 {
		b := &m.blocks[len(m.blocks)-1]
		start := alignUp(uintptr(b.base)+b.used, align) - uintptr(b.base)
		if start+bytes <= b.size {
			ptr := unsafe.Add(b.base, start)
			b.used = start + bytes
			return ptr, nil
		}
	}

	blockSize := m.nextBlockSize(bytes, align)
	base, err := m.upstream.Allocate(blockSize, align)
	if err != nil {
		return nil, fmt.Errorf("mm: monotonic block allocation failed: %w", err)
	}
	m.blocks = append(m.blocks, block{base: base, size: blockSize, used: bytes})
	return base, nil
}

func (m *Monotonic) nextBlockSize(want, align uintptr) uintptr {
	size := m.initialSize
	if size == 0 {
		size = 0x10000
	}
	if len(m.blocks) > 0 {
		size = m.blocks[len(m.blocks)-1].size * 2
	}
	min := want + align
	if size < min {
		size = min
	}
	return size
}

// Deallocate is a no-op: the monotonic allocator only releases memory on
// Close, in the order its owner configures.
func (m *Monotonic) Deallocate(ptr unsafe.Pointer, bytes, align uintptr) {}

// Close returns every block acquired from upstream. deallocFn is invoked once
// per block with that block's base pointer and size, and is responsible for
// issuing the actual upstream free (e.g. stream-ordered via FixedOrder).
func (m *Monotonic) Close(deallocFn func(ptr unsafe.Pointer, size, align uintptr)) {
	for _, b := range m.blocks {
		deallocFn(b.base, b.size, 1)
	}
	m.blocks = nil
}

func alignUp(p, align uintptr) uintptr {
	return (p + align - 1) &^ (align - 1)
}
