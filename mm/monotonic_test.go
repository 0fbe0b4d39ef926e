package mm

import (
	"testing"
	"unsafe"
)

// TestHostResourceAllocateDeallocate verifies the basic allocate/read/free
// round trip for the host resource's live-slice bookkeeping.
func TestHostResourceAllocateDeallocate(t *testing.T) {
	r := NewHostResource()

	ptr, err := r.Allocate(16, 8)
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if ptr == nil {
		t.Fatal("Allocate returned nil pointer for a non-zero request")
	}
	b := r.Bytes(ptr)
	if len(b) != 16 {
		t.Fatalf("expected a 16-byte slice, got %d", len(b))
	}
	b[0] = 0xAB
	if r.Bytes(ptr)[0] != 0xAB {
		t.Error("Bytes should return the same live backing slice on repeated calls")
	}

	r.Deallocate(ptr, 16, 8)
	if got := r.Bytes(ptr); got != nil {
		t.Errorf("Bytes after Deallocate should return nil, got %v", got)
	}
}

// TestHostResourceZeroBytesReturnsNil verifies a zero-size request never
// allocates.
func TestHostResourceZeroBytesReturnsNil(t *testing.T) {
	r := NewHostResource()
	ptr, err := r.Allocate(0, 8)
	if err != nil {
		t.Fatalf("Allocate(0, ...) returned an error: %v", err)
	}
	if ptr != nil {
		t.Errorf("Allocate(0, ...) should return a nil pointer")
	}
}

// TestMonotonicGrowsGeometrically verifies a single block satisfies requests
// until exhausted, then a new (larger) block is requested from upstream.
func TestMonotonicGrowsGeometrically(t *testing.T) {
	upstream := NewHostResource()
	m := NewMonotonic(upstream, 64)

	p1, err := m.Allocate(32, 8)
	if err != nil {
		t.Fatalf("first Allocate failed: %v", err)
	}
	p2, err := m.Allocate(16, 8)
	if err != nil {
		t.Fatalf("second Allocate failed: %v", err)
	}
	if uintptr(p2) < uintptr(p1) {
		t.Errorf("second allocation should land after the first within the same block")
	}

	// Exhaust the 64-byte block and force a new, larger block.
	p3, err := m.Allocate(64, 8)
	if err != nil {
		t.Fatalf("third Allocate (forcing growth) failed: %v", err)
	}
	if p3 == nil {
		t.Fatal("Allocate after exhaustion returned nil")
	}
	if len(m.blocks) != 2 {
		t.Errorf("expected 2 blocks after exhausting the first, got %d", len(m.blocks))
	}
	if m.blocks[1].size <= m.blocks[0].size {
		t.Errorf("second block should be larger than the first (geometric growth), got %d <= %d",
			m.blocks[1].size, m.blocks[0].size)
	}
}

// TestMonotonicZeroBytesReturnsNilWithoutUpstream verifies a zero-byte
// request never touches upstream, matching the scratchpad-level invariant.
func TestMonotonicZeroBytesReturnsNilWithoutUpstream(t *testing.T) {
	m := NewMonotonic(&countingResource{}, 64)
	ptr, err := m.Allocate(0, 8)
	if err != nil {
		t.Fatalf("Allocate(0, ...) returned an error: %v", err)
	}
	if ptr != nil {
		t.Errorf("Allocate(0, ...) should return nil")
	}
	cr := m.upstream.(*countingResource)
	if cr.allocs != 0 {
		t.Errorf("zero-byte request should not materialize upstream, got %d allocs", cr.allocs)
	}
}

// TestMonotonicCloseReturnsAllBlocks verifies Close invokes deallocFn once
// per acquired block and then forgets them.
func TestMonotonicCloseReturnsAllBlocks(t *testing.T) {
	upstream := NewHostResource()
	m := NewMonotonic(upstream, 16)

	if _, err := m.Allocate(8, 8); err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if _, err := m.Allocate(32, 8); err != nil { // forces a second block
		t.Fatalf("Allocate failed: %v", err)
	}

	var closed int
	m.Close(func(ptr unsafe.Pointer, size, align uintptr) {
		closed++
		upstream.Deallocate(ptr, size, align)
	})
	if closed != 2 {
		t.Errorf("expected Close to release 2 blocks, got %d", closed)
	}
	if len(m.blocks) != 0 {
		t.Errorf("Close should clear the block list")
	}
}

// countingResource is a test-only Resource that counts Allocate calls,
// used to assert upstream is never touched for zero-byte requests.
type countingResource struct {
	allocs int
}

func (c *countingResource) Allocate(bytes, align uintptr) (unsafe.Pointer, error) {
	c.allocs++
	buf := make([]byte, bytes)
	return unsafe.Pointer(&buf[0]), nil
}

func (c *countingResource) Deallocate(ptr unsafe.Pointer, bytes, align uintptr) {}
