// Package tensor defines the batched tensor data model (TensorList in the
// wider literature) that flows between pipeline operators.
package tensor

import (
	"fmt"

	"github.com/openfluke/pipeflow/streamorder"
)

// Backend is the compute locus a List's storage lives in.
type Backend int

const (
	Host Backend = iota
	Device
)

func (b Backend) String() string {
	if b == Device {
		return "device"
	}
	return "host"
}

// DType is the element type tag carried by a List.
type DType int

const (
	Uint8 DType = iota
	Int32
	Float32
	Float64
)

// ItemSize returns the size in bytes of one element of dt.
func (dt DType) ItemSize() int {
	switch dt {
	case Uint8:
		return 1
	case Int32, Float32:
		return 4
	case Float64:
		return 8
	default:
		return 0
	}
}

// List is an ordered batch of N samples sharing a backend, device id, dtype,
// and layout, each with its own shape. If Contiguous, Data is a single
// backing allocation spanning every sample end to end in index order;
// otherwise each sample owns an independent slice and Data is unused.
type List struct {
	Backend    Backend
	DeviceID   int // -1 for host-only
	DType      DType
	Layout     string // e.g. "HWC"
	Pinned     bool   // meaningful only when Backend == Host
	Contiguous bool
	Order      streamorder.Order

	Shapes [][]int // one shape per sample

	Data     []byte   // valid when Contiguous
	Samples  [][]byte // valid when !Contiguous, len == len(Shapes)
}

// New returns an empty List with the given backend/dtype/layout. Samples are
// added via SetContiguous or AppendSample.
func New(backend Backend, deviceID int, dt DType, layout string) *List {
	if backend == Host {
		deviceID = -1
	}
	return &List{Backend: backend, DeviceID: deviceID, DType: dt, Layout: layout}
}

// NumSamples returns the batch size.
func (l *List) NumSamples() int {
	return len(l.Shapes)
}

// SampleBytes returns the byte slice for sample i, whether the list is
// contiguous or not.
func (l *List) SampleBytes(i int) []byte {
	if l.Contiguous {
		start, end := l.sampleOffset(i)
		return l.Data[start:end]
	}
	return l.Samples[i]
}

func (l *List) sampleOffset(i int) (start, end int) {
	itemSize := l.DType.ItemSize()
	for j := 0; j < i; j++ {
		start += numel(l.Shapes[j]) * itemSize
	}
	end = start + numel(l.Shapes[i])*itemSize
	return
}

func numel(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}

// AppendSample adds one sample with the given shape and data to a
// non-contiguous list.
func (l *List) AppendSample(shape []int, data []byte) {
	l.Contiguous = false
	l.Shapes = append(l.Shapes, shape)
	l.Samples = append(l.Samples, data)
}

// SetContiguous replaces the list's contents with a single backing
// allocation and the per-sample shapes that subdivide it.
func (l *List) SetContiguous(shapes [][]int, data []byte) {
	l.Contiguous = true
	l.Shapes = shapes
	l.Data = data
	l.Samples = nil
}

// Validate checks the invariants every List must satisfy: device-backend
// lists agree on a single device id, and a contiguous list's declared shapes
// account for exactly len(Data) bytes.
func (l *List) Validate() error {
	if l.Backend == Device {
		if l.DeviceID < 0 {
			return fmt.Errorf("tensor: device-backend list has invalid device id %d", l.DeviceID)
		}
	}
	if l.Contiguous {
		want := 0
		itemSize := l.DType.ItemSize()
		for _, s := range l.Shapes {
			want += numel(s) * itemSize
		}
		if want != len(l.Data) {
			return fmt.Errorf("tensor: contiguous list declares %d bytes but backs %d", want, len(l.Data))
		}
	} else if len(l.Samples) != len(l.Shapes) {
		return fmt.Errorf("tensor: non-contiguous list has %d shapes but %d sample buffers", len(l.Shapes), len(l.Samples))
	}
	return nil
}

// Clone returns a deep copy of l, used by the copy path of the input
// operator and by FORCE_COPY semantics.
func (l *List) Clone() *List {
	c := &List{
		Backend: l.Backend, DeviceID: l.DeviceID, DType: l.DType, Layout: l.Layout,
		Pinned: l.Pinned, Contiguous: l.Contiguous, Order: l.Order,
	}
	c.Shapes = make([][]int, len(l.Shapes))
	for i, s := range l.Shapes {
		c.Shapes[i] = append([]int(nil), s...)
	}
	if l.Contiguous {
		c.Data = append([]byte(nil), l.Data...)
	} else {
		c.Samples = make([][]byte, len(l.Samples))
		for i, s := range l.Samples {
			c.Samples[i] = append([]byte(nil), s...)
		}
	}
	return c
}

// Reset clears l back to its zero-sample state while keeping its backend,
// device id, dtype, and layout, and the capacity of its backing slices, so
// the same List can be refilled.
func (l *List) Reset() {
	l.Shapes = l.Shapes[:0]
	l.Data = l.Data[:0]
	l.Samples = l.Samples[:0]
	l.Contiguous = false
	l.Order = streamorder.Order{}
}
