package poller

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"epibridge/pkg/runtime"
)

func signal(name string, kind runtime.SignalKind, addr uint16) *runtime.Signal {
	return &runtime.Signal{Name: name, Kind: kind, LinearAddress: addr}
}

func TestPlanBatchesGroupsByTable(t *testing.T) {
	batches := PlanBatches([]*runtime.Signal{
		signal("c1", runtime.DigitalOutputCoil, 10),
		signal("h1", runtime.AnalogOutputHoldingRegister, 5),
		signal("i1", runtime.DigitalInputContact, 3),
		signal("c2", runtime.DigitalOutputCoil, 12),
	})
	require.Len(t, batches, 3)

	byTable := make(map[runtime.TableType]*Batch)
	for _, b := range batches {
		byTable[b.Table] = b
	}

	coils := byTable[runtime.CoilTable]
	require.NotNil(t, coils)
	assert.Equal(t, uint16(10), coils.Start)
	assert.Equal(t, uint16(3), coils.Quantity)
	assert.Len(t, coils.Signals, 2)
	assert.True(t, coils.Bits())

	holding := byTable[runtime.HoldingRegisterTable]
	require.NotNil(t, holding)
	assert.Equal(t, uint16(5), holding.Start)
	assert.Equal(t, uint16(1), holding.Quantity)
	assert.False(t, holding.Bits())
}

func TestPlanBatchesSortsWithinTable(t *testing.T) {
	batches := PlanBatches([]*runtime.Signal{
		signal("b", runtime.MemoryRegister16, 20),
		signal("a", runtime.MemoryRegister16, 7),
		signal("c", runtime.MemoryRegister16, 90),
	})
	require.Len(t, batches, 1)
	b := batches[0]
	assert.Equal(t, uint16(7), b.Start)
	assert.Equal(t, uint16(84), b.Quantity)
	assert.Equal(t, "a", b.Signals[0].Name)
	assert.Equal(t, "c", b.Signals[2].Name)
}

func TestPlanBatchesSplitsAtRegisterLimit(t *testing.T) {
	batches := PlanBatches([]*runtime.Signal{
		signal("a", runtime.MemoryRegister16, 0),
		signal("b", runtime.MemoryRegister16, 124),
		signal("c", runtime.MemoryRegister16, 125),
	})
	require.Len(t, batches, 2)
	assert.Equal(t, uint16(0), batches[0].Start)
	assert.Equal(t, uint16(125), batches[0].Quantity)
	assert.Equal(t, uint16(125), batches[1].Start)
	assert.Equal(t, uint16(1), batches[1].Quantity)
}

func TestPlanBatchesAccountsForWideRegisters(t *testing.T) {
	// A 64 bit value ending at the limit boundary must not spill over.
	batches := PlanBatches([]*runtime.Signal{
		signal("a", runtime.MemoryRegister16, 0),
		signal("wide", runtime.MemoryRegister64, 122),
	})
	require.Len(t, batches, 2)
	assert.Equal(t, uint16(122), batches[1].Start)
	assert.Equal(t, uint16(4), batches[1].Quantity)
}

func TestPlanBatchesSplitsAtCoilLimit(t *testing.T) {
	batches := PlanBatches([]*runtime.Signal{
		signal("a", runtime.DigitalOutputCoil, 0),
		signal("b", runtime.DigitalOutputCoil, 1999),
		signal("c", runtime.DigitalOutputSlaveCoil, 2000),
	})
	require.Len(t, batches, 2)
	assert.Equal(t, uint16(2000), batches[0].Quantity)
	assert.Equal(t, uint16(2000), batches[1].Start)
}

func TestPlanBatchesEmpty(t *testing.T) {
	assert.Empty(t, PlanBatches(nil))
}
