// Package binutil composes and splits multi-word register values. The
// wire carries 16-bit words; wider values span consecutive registers in
// either high-word-first (ABCD) or swapped (CDAB) order.
package binutil

// ComposeUint32 assembles two words high-first.
// ABCD
func ComposeUint32(w []uint16) uint32 {
	return uint32(w[0])<<16 | uint32(w[1])
}

// ComposeUint32Swapped assembles two words low-first.
// CDAB
func ComposeUint32Swapped(w []uint16) uint32 {
	return uint32(w[1])<<16 | uint32(w[0])
}

// ComposeUint64 assembles four words high-first.
// ABCD EFGH
func ComposeUint64(w []uint16) uint64 {
	return uint64(w[0])<<48 |
		uint64(w[1])<<32 |
		uint64(w[2])<<16 |
		uint64(w[3])
}

// ComposeUint64Swapped assembles four words low-first.
// GHEF CDAB
func ComposeUint64Swapped(w []uint16) uint64 {
	return uint64(w[3])<<48 |
		uint64(w[2])<<32 |
		uint64(w[1])<<16 |
		uint64(w[0])
}

// SplitUint32 renders a 32-bit value as two words high-first.
func SplitUint32(v uint32) []uint16 {
	return []uint16{uint16(v >> 16), uint16(v)}
}

// SplitUint32Swapped renders a 32-bit value as two words low-first.
func SplitUint32Swapped(v uint32) []uint16 {
	return []uint16{uint16(v), uint16(v >> 16)}
}

// SplitUint64 renders a 64-bit value as four words high-first.
func SplitUint64(v uint64) []uint16 {
	return []uint16{uint16(v >> 48), uint16(v >> 32), uint16(v >> 16), uint16(v)}
}

// SplitUint64Swapped renders a 64-bit value as four words low-first.
func SplitUint64Swapped(v uint64) []uint16 {
	return []uint16{uint16(v), uint16(v >> 16), uint16(v >> 32), uint16(v >> 48)}
}
