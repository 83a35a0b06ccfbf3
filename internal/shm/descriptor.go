package shm

import (
	"fmt"
	"math"
)

// Descriptor tells a receiver where a payload lives and how to interpret it.
type Descriptor struct {
	Identifier  string `json:"identifier" cbor:"identifier"`
	Shape       []int  `json:"shape" cbor:"shape"`
	ElementType string `json:"element_type" cbor:"element_type"`
}

var elementWidths = map[string]int{
	"uint8": 1, "int8": 1, "bool": 1,
	"uint16": 2, "int16": 2, "float16": 2,
	"uint32": 4, "int32": 4, "float32": 4,
	"uint64": 8, "int64": 8, "float64": 8,
}

// ElementWidth returns the size in bytes of one element of elementType.
func ElementWidth(elementType string) (int, error) {
	w, ok := elementWidths[elementType]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownElementType, elementType)
	}
	return w, nil
}

// ByteSize returns product(shape) * width(element type).
func ByteSize(shape []int, elementType string) (int, error) {
	width, err := ElementWidth(elementType)
	if err != nil {
		return 0, err
	}
	size := width
	for _, dim := range shape {
		if dim < 0 {
			return 0, fmt.Errorf("shm: negative dimension %d", dim)
		}
		if dim != 0 && size > math.MaxInt/dim {
			return 0, fmt.Errorf("shm: shape %v overflows", shape)
		}
		size *= dim
	}
	return size, nil
}

// ByteSize returns the payload size described by d.
func (d Descriptor) ByteSize() (int, error) {
	return ByteSize(d.Shape, d.ElementType)
}

// DescriptorFrom converts a decoded response payload back into a Descriptor.
func DescriptorFrom(v any) (Descriptor, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return Descriptor{}, fmt.Errorf("shm: descriptor must be a mapping, got %T", v)
	}

	var d Descriptor
	d.Identifier, _ = m["identifier"].(string)
	d.ElementType, _ = m["element_type"].(string)
	if d.Identifier == "" || d.ElementType == "" {
		return Descriptor{}, fmt.Errorf("shm: descriptor missing identifier or element_type")
	}

	dims, ok := m["shape"].([]any)
	if !ok {
		return Descriptor{}, fmt.Errorf("shm: descriptor shape must be a sequence")
	}
	for _, dim := range dims {
		n, ok := toInt(dim)
		if !ok {
			return Descriptor{}, fmt.Errorf("shm: invalid dimension %v", dim)
		}
		d.Shape = append(d.Shape, n)
	}
	return d, nil
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		if n > math.MaxInt32 {
			return 0, false
		}
		return int(n), true
	case float64:
		if n != math.Trunc(n) || n < 0 {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}
