// Package tensor defines the tensor vocabulary shared between a serving
// host and a backend: datatypes, shapes, and zero-copy views over
// host-owned buffers, plus the length-prefixed framing used for BYTES
// tensors on the wire.
package tensor

import "fmt"

// DataType identifies the element type of a tensor. The values mirror the
// host's wire datatypes; Invalid is the zero value so an unset field is
// never mistaken for BOOL.
type DataType int

const (
	Invalid DataType = iota
	Bool
	UInt8
	UInt16
	UInt32
	UInt64
	Int8
	Int16
	Int32
	Int64
	FP16
	FP32
	FP64
	Bytes
	BF16
)

// Size returns the byte size of one element, or 0 for variable-length
// datatypes (Bytes) and Invalid.
func (dt DataType) Size() int {
	switch dt {
	case Bool, UInt8, Int8:
		return 1
	case UInt16, Int16, FP16, BF16:
		return 2
	case UInt32, Int32, FP32:
		return 4
	case UInt64, Int64, FP64:
		return 8
	default:
		return 0
	}
}

// String returns the wire name of the datatype (e.g. "FP32", "BYTES").
func (dt DataType) String() string {
	if name, ok := dtypeNames[dt]; ok {
		return name
	}
	return fmt.Sprintf("INVALID(%d)", int(dt))
}

var dtypeNames = map[DataType]string{
	Bool:   "BOOL",
	UInt8:  "UINT8",
	UInt16: "UINT16",
	UInt32: "UINT32",
	UInt64: "UINT64",
	Int8:   "INT8",
	Int16:  "INT16",
	Int32:  "INT32",
	Int64:  "INT64",
	FP16:   "FP16",
	FP32:   "FP32",
	FP64:   "FP64",
	Bytes:  "BYTES",
	BF16:   "BF16",
}

var dtypeValues = func() map[string]DataType {
	m := make(map[string]DataType, len(dtypeNames))
	for dt, name := range dtypeNames {
		m[name] = dt
	}
	return m
}()

// ParseDataType resolves a wire name to a DataType.
func ParseDataType(name string) (DataType, error) {
	if dt, ok := dtypeValues[name]; ok {
		return dt, nil
	}
	return Invalid, fmt.Errorf("unknown datatype %q", name)
}

// MarshalText implements encoding.TextMarshaler so config files and JSON
// documents carry wire names instead of bare integers.
func (dt DataType) MarshalText() ([]byte, error) {
	if _, ok := dtypeNames[dt]; !ok {
		return nil, fmt.Errorf("cannot marshal invalid datatype %d", int(dt))
	}
	return []byte(dt.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (dt *DataType) UnmarshalText(text []byte) error {
	parsed, err := ParseDataType(string(text))
	if err != nil {
		return err
	}
	*dt = parsed
	return nil
}
