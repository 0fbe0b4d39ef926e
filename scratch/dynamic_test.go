package scratch

import (
	"testing"

	"github.com/openfluke/pipeflow/mm"
)

// TestZeroByteAllocReturnsNilWithoutMaterializingUpstream verifies a
// zero-byte request never initializes the kind's upstream resource, so a
// host-only pipeline that only ever allocates zero bytes for a kind never
// requires that kind's backing device/context to exist.
func TestZeroByteAllocReturnsNilWithoutMaterializingUpstream(t *testing.T) {
	d := New()
	ptr, err := d.Alloc(mm.KindHost, 0, 8)
	if err != nil {
		t.Fatalf("Alloc(0, ...) returned an error: %v", err)
	}
	if ptr != nil {
		t.Errorf("Alloc(0, ...) should return nil")
	}
	if d.monotonic[mm.KindHost] != nil {
		t.Errorf("a zero-byte request should not materialize the kind's monotonic allocator")
	}
}

// TestHostAllocBytesRoundTrip verifies AllocBytes returns a usable,
// independently-addressable byte slice for the host kind.
func TestHostAllocBytesRoundTrip(t *testing.T) {
	d := New()
	defer d.Close()

	a, err := d.AllocBytes(mm.KindHost, 32)
	if err != nil {
		t.Fatalf("AllocBytes failed: %v", err)
	}
	if len(a) != 32 {
		t.Fatalf("expected a 32-byte slice, got %d", len(a))
	}
	b, err := d.AllocBytes(mm.KindHost, 16)
	if err != nil {
		t.Fatalf("AllocBytes failed: %v", err)
	}
	a[0] = 0x7F
	if b[0] == 0x7F {
		t.Errorf("two independent AllocBytes calls should not alias")
	}
}

// TestAllocBytesRejectsNonHostKinds verifies AllocBytes refuses to
// reinterpret an opaque device/pinned handle as a Go byte slice.
func TestAllocBytesRejectsNonHostKinds(t *testing.T) {
	d := New()
	if _, err := d.AllocBytes(mm.KindDevice, 16); err == nil {
		t.Errorf("AllocBytes(KindDevice, ...) should return an error")
	}
	if _, err := d.AllocBytes(mm.KindPinned, 16); err == nil {
		t.Errorf("AllocBytes(KindPinned, ...) should return an error")
	}
}

// TestCloseReleasesAllMaterializedKinds verifies Close tears down every kind
// that was actually used, and is safe to call on a scratchpad that never
// allocated anything.
func TestCloseReleasesAllMaterializedKinds(t *testing.T) {
	d := New()
	if _, err := d.AllocBytes(mm.KindHost, 8); err != nil {
		t.Fatalf("AllocBytes failed: %v", err)
	}
	d.Close() // must not panic

	empty := New()
	empty.Close() // must not panic even though nothing was ever allocated
}
