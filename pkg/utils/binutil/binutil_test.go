package binutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComposeUint32(t *testing.T) {
	assert.Equal(t, uint32(0x12345678), ComposeUint32([]uint16{0x1234, 0x5678}))
	assert.Equal(t, uint32(0x56781234), ComposeUint32Swapped([]uint16{0x1234, 0x5678}))
}

func TestComposeUint64(t *testing.T) {
	w := []uint16{0x0011, 0x2233, 0x4455, 0x6677}
	assert.Equal(t, uint64(0x0011223344556677), ComposeUint64(w))
	assert.Equal(t, uint64(0x6677445522330011), ComposeUint64Swapped(w))
}

func TestSplitIsInverse(t *testing.T) {
	for _, v := range []uint32{0, 1, 0xDEADBEEF, 0xFFFFFFFF} {
		assert.Equal(t, v, ComposeUint32(SplitUint32(v)))
		assert.Equal(t, v, ComposeUint32Swapped(SplitUint32Swapped(v)))
	}
	for _, v := range []uint64{0, 1, 0x0123456789ABCDEF, 0xFFFFFFFFFFFFFFFF} {
		assert.Equal(t, v, ComposeUint64(SplitUint64(v)))
		assert.Equal(t, v, ComposeUint64Swapped(SplitUint64Swapped(v)))
	}
}
