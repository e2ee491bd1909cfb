package address

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"epibridge/pkg/runtime"
)

func TestToLinearBitKinds(t *testing.T) {
	linear, err := ToLinear(runtime.DigitalOutputCoil, "%QX0.0")
	require.NoError(t, err)
	assert.Equal(t, uint16(0), linear)

	linear, err = ToLinear(runtime.DigitalOutputCoil, "%QX12.3")
	require.NoError(t, err)
	assert.Equal(t, uint16(99), linear)

	linear, err = ToLinear(runtime.DigitalInputContact, "%IX99.7")
	require.NoError(t, err)
	assert.Equal(t, uint16(799), linear)

	linear, err = ToLinear(runtime.DigitalOutputSlaveCoil, "%QX100.0")
	require.NoError(t, err)
	assert.Equal(t, uint16(800), linear)
}

func TestToLinearWordKinds(t *testing.T) {
	linear, err := ToLinear(runtime.AnalogInputRegister, "%IW42")
	require.NoError(t, err)
	assert.Equal(t, uint16(42), linear)

	linear, err = ToLinear(runtime.MemoryRegister64, "%ML7")
	require.NoError(t, err)
	assert.Equal(t, uint16(7), linear)

	_, err = ToLinear(runtime.AnalogOutputHoldingRegister, "%QW3.1")
	assert.ErrorIs(t, err, ErrAddressFormat)
}

func TestToLinearRejectsMalformed(t *testing.T) {
	for _, hier := range []string{"", "QX1.1", "%QX", "%QX1.", "%QX1.8", "%QX1.12", "%qx1.1", "%QXa.1", "%QX1.1.1", "%QX-1.1"} {
		_, err := ToLinear(runtime.DigitalOutputCoil, hier)
		assert.ErrorIs(t, err, ErrAddressFormat, "input %q", hier)
	}

	// Prefix belonging to a different kind.
	_, err := ToLinear(runtime.DigitalOutputCoil, "%IX1.1")
	assert.ErrorIs(t, err, ErrAddressFormat)

	// Bit kind without the bit component.
	_, err = ToLinear(runtime.DigitalInputContact, "%IX5")
	assert.ErrorIs(t, err, ErrAddressFormat)
}

func TestToLinearUnknownKind(t *testing.T) {
	_, err := ToLinear(runtime.SignalKind(99), "%QX1.1")
	assert.ErrorIs(t, err, ErrUnknownSignalKind)
	_, err = ToHierarchical(runtime.SignalKind(99), 1)
	assert.ErrorIs(t, err, ErrUnknownSignalKind)
}

func TestRoundTrip(t *testing.T) {
	bitKinds := []runtime.SignalKind{
		runtime.DigitalOutputCoil,
		runtime.DigitalInputContact,
	}
	for _, kind := range bitKinds {
		for _, linear := range []uint16{0, 1, 7, 8, 99, 799, 800, 4095, 0xFFFF} {
			hier, err := ToHierarchical(kind, linear)
			require.NoError(t, err)
			back, err := ToLinear(kind, hier)
			require.NoError(t, err)
			assert.Equal(t, linear, back, "kind %s linear %d via %s", kind, linear, hier)
		}
	}

	wordKinds := []runtime.SignalKind{
		runtime.AnalogInputRegister,
		runtime.AnalogOutputHoldingRegister,
		runtime.MemoryRegister16,
		runtime.MemoryRegister32,
		runtime.MemoryRegister64,
	}
	for _, kind := range wordKinds {
		for _, linear := range []uint16{0, 1, 42, 0xFFFF} {
			hier, err := ToHierarchical(kind, linear)
			require.NoError(t, err)
			back, err := ToLinear(kind, hier)
			require.NoError(t, err)
			assert.Equal(t, linear, back)
		}
	}
}

func TestClassifyThreshold(t *testing.T) {
	assert.Equal(t, runtime.DigitalOutputCoil, Classify(runtime.DigitalOutputCoil, 799))
	assert.Equal(t, runtime.DigitalOutputSlaveCoil, Classify(runtime.DigitalOutputCoil, 800))
	assert.Equal(t, runtime.DigitalOutputCoil, Classify(runtime.DigitalOutputSlaveCoil, 0))
	assert.Equal(t, runtime.DigitalInputSlaveContact, Classify(runtime.DigitalInputContact, 2000))
	assert.Equal(t, runtime.DigitalInputContact, Classify(runtime.DigitalInputSlaveContact, 799))

	// Word kinds never reclassify.
	assert.Equal(t, runtime.MemoryRegister16, Classify(runtime.MemoryRegister16, 2000))
}

func TestIncrementCarry(t *testing.T) {
	next, err := Increment(runtime.DigitalOutputCoil, "%QX0.7")
	require.NoError(t, err)
	assert.Equal(t, "%QX1.0", next)

	next, err = Increment(runtime.DigitalOutputCoil, "%QX12.3")
	require.NoError(t, err)
	assert.Equal(t, "%QX12.4", next)

	next, err = Increment(runtime.MemoryRegister16, "%MW41")
	require.NoError(t, err)
	assert.Equal(t, "%MW42", next)

	_, err = Increment(runtime.MemoryRegister16, "%MW65535")
	assert.ErrorIs(t, err, ErrAddressFormat)
}

func TestDecrementBorrow(t *testing.T) {
	prev, err := Decrement(runtime.DigitalInputContact, "%IX1.0")
	require.NoError(t, err)
	assert.Equal(t, "%IX0.7", prev)

	prev, err = Decrement(runtime.DigitalInputContact, "%IX12.3")
	require.NoError(t, err)
	assert.Equal(t, "%IX12.2", prev)

	_, err = Decrement(runtime.DigitalInputContact, "%IX0.0")
	assert.ErrorIs(t, err, ErrAddressFormat)
}
