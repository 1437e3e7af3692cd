// Package util holds small integer and on-disk marshalling helpers shared
// across the kernel core.
package util

import "encoding/binary"

// Int is satisfied by all built-in integer types.
type Int interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

// Min returns the smaller of a and b.
func Min[T Int](a, b T) T {
	if a < b {
		return a
	}
	return b
}

// Max returns the larger of a and b.
func Max[T Int](a, b T) T {
	if a > b {
		return a
	}
	return b
}

// Rounddown aligns v down to the nearest multiple of b.
func Rounddown[T Int](v, b T) T {
	return v - (v % b)
}

// Roundup aligns v up to the nearest multiple of b.
func Roundup[T Int](v, b T) T {
	return Rounddown(v+b-1, b)
}

// ReadFieldLE reads an n-byte (1, 2, 4, or 8) little-endian unsigned field
// from a at the given byte offset. The on-disk format (spec.md §6) is
// little-endian regardless of host byte order, so this never uses unsafe
// pointer casts the way the teacher's Readn does.
func ReadFieldLE(a []uint8, off, n int) uint64 {
	s := a[off : off+n]
	switch n {
	case 1:
		return uint64(s[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(s))
	case 4:
		return uint64(binary.LittleEndian.Uint32(s))
	case 8:
		return binary.LittleEndian.Uint64(s)
	default:
		panic("unsupported field width")
	}
}

// WriteFieldLE writes val into the n-byte little-endian field at offset off.
func WriteFieldLE(a []uint8, off, n int, val uint64) {
	s := a[off : off+n]
	switch n {
	case 1:
		s[0] = uint8(val)
	case 2:
		binary.LittleEndian.PutUint16(s, uint16(val))
	case 4:
		binary.LittleEndian.PutUint32(s, uint32(val))
	case 8:
		binary.LittleEndian.PutUint64(s, val)
	default:
		panic("unsupported field width")
	}
}
