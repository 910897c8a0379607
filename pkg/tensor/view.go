package tensor

import (
	"encoding/binary"
	"fmt"
)

// MemoryKind says where a buffer lives. The backend only ever sees CPU
// memory through this package; GPU placement is carried so an engine can
// refuse or route it.
type MemoryKind int

const (
	MemoryCPU MemoryKind = iota
	MemoryGPU
)

func (k MemoryKind) String() string {
	switch k {
	case MemoryCPU:
		return "cpu"
	case MemoryGPU:
		return "gpu"
	default:
		return fmt.Sprintf("memorykind(%d)", int(k))
	}
}

// View is a zero-copy lens over a buffer owned by the host. It never owns
// Data: input views borrow host memory for the duration of one execute
// call, output views borrow host-allocated response buffers until the
// response is sent. Callers must not retain Data past those windows.
type View struct {
	Name     string
	DataType DataType
	Shape    Shape
	Memory   MemoryKind
	DeviceID int
	Data     []byte
}

// Validate checks the size invariant: for fixed-size datatypes the buffer
// must hold exactly NumElements elements; for BYTES the length-prefixed
// framing must decode to exactly NumElements elements.
func (v *View) Validate() error {
	if err := v.Shape.Validate(); err != nil {
		return fmt.Errorf("tensor %q: %w", v.Name, err)
	}
	want := v.Shape.NumElements()
	if v.DataType == Bytes {
		elems, err := CountBytesElements(v.Data)
		if err != nil {
			return fmt.Errorf("tensor %q: %w", v.Name, err)
		}
		if elems != want {
			return fmt.Errorf("tensor %q: BYTES buffer holds %d elements, shape %s wants %d",
				v.Name, elems, v.Shape, want)
		}
		return nil
	}
	size := v.DataType.Size()
	if size == 0 {
		return fmt.Errorf("tensor %q: datatype %s has no element size", v.Name, v.DataType)
	}
	if int64(len(v.Data)) != want*int64(size) {
		return fmt.Errorf("tensor %q: buffer is %d bytes, shape %s of %s wants %d",
			v.Name, len(v.Data), v.Shape, v.DataType, want*int64(size))
	}
	return nil
}

// Strings decodes a BYTES view into its UTF-8 elements.
func (v *View) Strings() ([]string, error) {
	if v.DataType != Bytes {
		return nil, fmt.Errorf("tensor %q: Strings on datatype %s", v.Name, v.DataType)
	}
	return DecodeStrings(v.Data)
}

// Uint64 reads a single little-endian UINT64 element.
func (v *View) Uint64() (uint64, error) {
	if v.DataType != UInt64 {
		return 0, fmt.Errorf("tensor %q: Uint64 on datatype %s", v.Name, v.DataType)
	}
	if len(v.Data) != 8 {
		return 0, fmt.Errorf("tensor %q: Uint64 wants 8 bytes, have %d", v.Name, len(v.Data))
	}
	return binary.LittleEndian.Uint64(v.Data), nil
}
