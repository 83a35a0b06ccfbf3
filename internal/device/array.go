package device

import "encoding/binary"

// Array is a dense little-endian array returned by payload operations.
type Array struct {
	Shape       []int
	ElementType string
	Data        []byte
}

// NewUint16Array allocates a zeroed uint16 array of the given shape.
func NewUint16Array(shape ...int) *Array {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return &Array{
		Shape:       shape,
		ElementType: "uint16",
		Data:        make([]byte, 2*n),
	}
}

// Len returns the number of uint16 elements.
func (a *Array) Len() int {
	return len(a.Data) / 2
}

// SetUint16 stores v at flat index i.
func (a *Array) SetUint16(i int, v uint16) {
	binary.LittleEndian.PutUint16(a.Data[2*i:], v)
}

// Uint16 returns the value at flat index i.
func (a *Array) Uint16(i int) uint16 {
	return binary.LittleEndian.Uint16(a.Data[2*i:])
}
