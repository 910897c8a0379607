package tensor

import (
	"encoding/binary"
	"fmt"
)

// BYTES tensors frame each element as a 4-byte little-endian length
// followed by that many bytes, elements concatenated in row-major order.

// AppendBytesElement appends one framed element to dst and returns the
// extended slice.
func AppendBytesElement(dst []byte, elem []byte) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(elem)))
	return append(dst, elem...)
}

// EncodeBytes frames a sequence of elements into one BYTES buffer.
func EncodeBytes(elems [][]byte) []byte {
	size := 0
	for _, e := range elems {
		size += 4 + len(e)
	}
	out := make([]byte, 0, size)
	for _, e := range elems {
		out = AppendBytesElement(out, e)
	}
	return out
}

// EncodeStrings frames a sequence of strings into one BYTES buffer.
func EncodeStrings(elems []string) []byte {
	size := 0
	for _, e := range elems {
		size += 4 + len(e)
	}
	out := make([]byte, 0, size)
	for _, e := range elems {
		out = binary.LittleEndian.AppendUint32(out, uint32(len(e)))
		out = append(out, e...)
	}
	return out
}

// DecodeBytes splits a framed BYTES buffer into its elements. The returned
// slices alias data. A truncated length prefix or a prefix pointing past
// the end of the buffer is an error, never an out-of-range read.
func DecodeBytes(data []byte) ([][]byte, error) {
	var elems [][]byte
	for off := 0; off < len(data); {
		if len(data)-off < 4 {
			return nil, fmt.Errorf("BYTES framing: truncated length prefix at offset %d", off)
		}
		n := int(binary.LittleEndian.Uint32(data[off:]))
		off += 4
		if n > len(data)-off {
			return nil, fmt.Errorf("BYTES framing: element of %d bytes at offset %d overruns buffer of %d", n, off-4, len(data))
		}
		elems = append(elems, data[off:off+n])
		off += n
	}
	return elems, nil
}

// DecodeStrings is DecodeBytes with elements copied out as strings.
func DecodeStrings(data []byte) ([]string, error) {
	elems, err := DecodeBytes(data)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(elems))
	for i, e := range elems {
		out[i] = string(e)
	}
	return out, nil
}

// CountBytesElements walks the framing without materializing elements.
func CountBytesElements(data []byte) (int64, error) {
	var count int64
	for off := 0; off < len(data); {
		if len(data)-off < 4 {
			return 0, fmt.Errorf("BYTES framing: truncated length prefix at offset %d", off)
		}
		n := int(binary.LittleEndian.Uint32(data[off:]))
		off += 4
		if n > len(data)-off {
			return 0, fmt.Errorf("BYTES framing: element of %d bytes at offset %d overruns buffer of %d", n, off-4, len(data))
		}
		off += n
		count++
	}
	return count, nil
}
