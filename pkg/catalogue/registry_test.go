package catalogue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"epibridge/pkg/runtime"
)

type fakeFetcher struct {
	connections []connectionDoc
	actions     []actionDoc
	err         error
}

func (f *fakeFetcher) FetchConnections(ctx context.Context) ([]connectionDoc, error) {
	return f.connections, f.err
}

func (f *fakeFetcher) FetchActions(ctx context.Context) ([]actionDoc, error) {
	return f.actions, f.err
}

func plcDocs() []connectionDoc {
	return []connectionDoc{{
		Name:    "plc-1",
		Host:    "10.0.0.10",
		Port:    502,
		Unit:    1,
		Enabled: true,
		Signals: []signalDoc{
			{Name: "PICK_BIN_01", Kind: "Digital Output Coil", ModbusAddress: 2000},
			{Name: "CONVEYOR_RUN", Kind: "Digital Output Coil", ModbusAddress: 12},
			{Name: "ZONE_TEMP", Kind: "Analog Input Register", ModbusAddress: 42},
			{Name: "BATCH_COUNT", Kind: "Memory Register (32 bit)", ModbusAddress: 100},
		},
	}}
}

func TestLoadBuildsSnapshot(t *testing.T) {
	r := NewRegistry(&fakeFetcher{connections: plcDocs()}, nil)
	require.NoError(t, r.Load(context.Background()))

	snapshot := r.Snapshot()
	require.NotNil(t, snapshot)
	require.Len(t, snapshot.Connections, 1)

	conn, ok := snapshot.Connection("plc-1")
	require.True(t, ok)
	assert.Len(t, conn.Signals, 4)

	sig, ok := snapshot.Signal("ZONE_TEMP")
	require.True(t, ok)
	assert.Equal(t, runtime.AnalogInputRegister, sig.Kind)
	assert.Equal(t, "%IW42", sig.PLCAddress)
	assert.Same(t, conn, sig.Connection())
}

func TestLoadReclassifiesSlaveRange(t *testing.T) {
	r := NewRegistry(&fakeFetcher{connections: plcDocs()}, nil)
	require.NoError(t, r.Load(context.Background()))

	// Address 2000 is past the primary coil range, so the catalogue's
	// declared kind yields to the slave variant.
	sig, ok := r.Snapshot().Signal("PICK_BIN_01")
	require.True(t, ok)
	assert.Equal(t, runtime.DigitalOutputSlaveCoil, sig.Kind)
	assert.Equal(t, "%QX250.0", sig.PLCAddress)

	sig, ok = r.Snapshot().Signal("CONVEYOR_RUN")
	require.True(t, ok)
	assert.Equal(t, runtime.DigitalOutputCoil, sig.Kind)
	assert.Equal(t, "%QX1.4", sig.PLCAddress)
}

func TestLoadSkipsBadRows(t *testing.T) {
	docs := plcDocs()
	docs[0].Signals = append(docs[0].Signals,
		signalDoc{Name: "MYSTERY", Kind: "Quantum Register", ModbusAddress: 5},
		signalDoc{Name: "ZONE_TEMP", Kind: "Analog Input Register", ModbusAddress: 43})
	r := NewRegistry(&fakeFetcher{connections: docs}, nil)
	require.NoError(t, r.Load(context.Background()))

	snapshot := r.Snapshot()
	_, ok := snapshot.Signal("MYSTERY")
	assert.False(t, ok)

	// The duplicate keeps the first definition.
	sig, _ := snapshot.Signal("ZONE_TEMP")
	assert.Equal(t, uint16(42), sig.LinearAddress)

	conn, _ := snapshot.Connection("plc-1")
	assert.Len(t, conn.Signals, 4)
}

func TestLoadSkipsInvalidNames(t *testing.T) {
	docs := plcDocs()
	docs[0].Signals = append(docs[0].Signals,
		signalDoc{Name: "zone/adjacent", Kind: "Analog Input Register", ModbusAddress: 50},
		signalDoc{Name: "ZONE+TEMP", Kind: "Analog Input Register", ModbusAddress: 51})
	docs = append(docs, connectionDoc{Name: "bad\\name", Host: "10.0.0.12", Enabled: true})
	r := NewRegistry(&fakeFetcher{connections: docs}, nil)
	require.NoError(t, r.Load(context.Background()))

	snapshot := r.Snapshot()
	require.Len(t, snapshot.Connections, 1)
	_, ok := snapshot.Signal("zone/adjacent")
	assert.False(t, ok)
	_, ok = snapshot.Signal("ZONE+TEMP")
	assert.False(t, ok)
}

func TestLoadSortsConnectionsByName(t *testing.T) {
	docs := []connectionDoc{
		{Name: "plc-9", Host: "10.0.0.19", Enabled: true},
		{Name: "plc-1", Host: "10.0.0.10", Enabled: true},
		{Name: "plc-5", Host: "10.0.0.15", Enabled: true},
	}
	r := NewRegistry(&fakeFetcher{connections: docs}, nil)
	require.NoError(t, r.Load(context.Background()))

	snapshot := r.Snapshot()
	require.Len(t, snapshot.Connections, 3)
	assert.Equal(t, "plc-1", snapshot.Connections[0].GetName())
	assert.Equal(t, "plc-5", snapshot.Connections[1].GetName())
	assert.Equal(t, "plc-9", snapshot.Connections[2].GetName())
}

func TestRefreshCarriesValuesAndDiffs(t *testing.T) {
	fetcher := &fakeFetcher{connections: plcDocs()}
	r := NewRegistry(fetcher, nil)
	require.NoError(t, r.Load(context.Background()))

	sig, _ := r.Snapshot().Signal("ZONE_TEMP")
	sig.SetValue(uint16(512))

	fetcher.connections = append(plcDocs(), connectionDoc{
		Name: "plc-2", Host: "10.0.0.11", Enabled: true,
		Signals: []signalDoc{{Name: "DOOR_OPEN", Kind: "Digital Input Contact", ModbusAddress: 3}},
	})
	diff, err := r.Refresh(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"plc-2"}, diff.Added)
	assert.ElementsMatch(t, []string{"plc-1"}, diff.Kept)
	assert.Empty(t, diff.Removed)

	carried, _ := r.Snapshot().Signal("ZONE_TEMP")
	assert.Equal(t, uint16(512), carried.Value())

	fetcher.connections = fetcher.connections[1:]
	diff, err = r.Refresh(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"plc-1"}, diff.Removed)
}

func TestRefreshKeepsOldSnapshotOnFailure(t *testing.T) {
	fetcher := &fakeFetcher{connections: plcDocs()}
	r := NewRegistry(fetcher, nil)
	require.NoError(t, r.Load(context.Background()))
	before := r.Snapshot()

	fetcher.err = assert.AnError
	_, err := r.Refresh(context.Background())
	require.Error(t, err)
	assert.Same(t, before, r.Snapshot())
}
