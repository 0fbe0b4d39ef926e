package tensor

import "testing"

// TestContiguousSampleBytes verifies per-sample slicing over a single
// backing allocation respects each sample's own shape.
func TestContiguousSampleBytes(t *testing.T) {
	l := New(Host, -1, Int32, "N")
	shapes := [][]int{{2, 2}, {2, 2}}
	data := make([]byte, 2*2*4*2) // two 2x2 int32 samples
	for i := range data {
		data[i] = byte(i)
	}
	l.SetContiguous(shapes, data)

	if l.NumSamples() != 2 {
		t.Fatalf("expected 2 samples, got %d", l.NumSamples())
	}
	s0 := l.SampleBytes(0)
	s1 := l.SampleBytes(1)
	if len(s0) != 16 || len(s1) != 16 {
		t.Fatalf("expected 16-byte samples, got %d and %d", len(s0), len(s1))
	}
	if s0[0] != data[0] || s1[0] != data[16] {
		t.Errorf("sample slices do not align with the backing allocation")
	}
}

// TestNonContiguousSampleBytes verifies per-sample storage works
// independently of any single backing allocation.
func TestNonContiguousSampleBytes(t *testing.T) {
	l := New(Host, -1, Uint8, "N")
	l.AppendSample([]int{3}, []byte{1, 2, 3})
	l.AppendSample([]int{2}, []byte{4, 5})

	if l.NumSamples() != 2 {
		t.Fatalf("expected 2 samples, got %d", l.NumSamples())
	}
	if got := l.SampleBytes(0); len(got) != 3 || got[2] != 3 {
		t.Errorf("unexpected sample 0: %v", got)
	}
	if got := l.SampleBytes(1); len(got) != 2 || got[1] != 5 {
		t.Errorf("unexpected sample 1: %v", got)
	}
}

// TestValidateCatchesByteCountMismatch verifies Validate rejects a
// contiguous list whose declared shapes do not account for all of Data.
func TestValidateCatchesByteCountMismatch(t *testing.T) {
	l := New(Host, -1, Float32, "N")
	l.SetContiguous([][]int{{4}}, make([]byte, 8)) // declares 16 bytes, backs 8
	if err := l.Validate(); err == nil {
		t.Errorf("expected Validate to reject a byte-count mismatch")
	}
}

// TestValidateCatchesInvalidDeviceID verifies a device-backend list without
// a valid device id is rejected.
func TestValidateCatchesInvalidDeviceID(t *testing.T) {
	l := New(Device, -1, Float32, "N")
	if err := l.Validate(); err == nil {
		t.Errorf("expected Validate to reject a device list with device id -1")
	}
}

// TestValidateAcceptsWellFormedList verifies a correctly constructed list
// passes validation.
func TestValidateAcceptsWellFormedList(t *testing.T) {
	l := New(Host, -1, Uint8, "N")
	l.SetContiguous([][]int{{2}, {3}}, make([]byte, 5))
	if err := l.Validate(); err != nil {
		t.Errorf("expected a well-formed list to validate, got %v", err)
	}
}

// TestCloneIsIndependentOfSource verifies mutating the source after Clone
// never affects the clone, the property FORCE_COPY semantics depend on.
func TestCloneIsIndependentOfSource(t *testing.T) {
	l := New(Host, -1, Uint8, "N")
	l.SetContiguous([][]int{{4}}, []byte{1, 2, 3, 4})

	clone := l.Clone()
	l.Data[0] = 0xFF

	if clone.Data[0] != 1 {
		t.Errorf("mutating the source after Clone should not affect the clone, got %v", clone.Data[0])
	}
}

// TestCloneNonContiguous verifies Clone deep-copies per-sample storage too.
func TestCloneNonContiguous(t *testing.T) {
	l := New(Host, -1, Uint8, "N")
	l.AppendSample([]int{2}, []byte{9, 9})

	clone := l.Clone()
	l.Samples[0][0] = 0

	if clone.Samples[0][0] != 9 {
		t.Errorf("Clone should deep-copy non-contiguous sample buffers")
	}
}

// TestResetClearsToZeroSampleState verifies Reset leaves a list ready for
// reuse while keeping its backend/dtype/layout identity.
func TestResetClearsToZeroSampleState(t *testing.T) {
	l := New(Host, -1, Float32, "HWC")
	l.SetContiguous([][]int{{4}}, make([]byte, 16))

	l.Reset()

	if l.NumSamples() != 0 {
		t.Errorf("Reset should clear all samples")
	}
	if l.Backend != Host || l.DType != Float32 || l.Layout != "HWC" {
		t.Errorf("Reset should preserve backend/dtype/layout identity")
	}
	if l.Contiguous {
		t.Errorf("Reset should clear the contiguous flag")
	}
}
