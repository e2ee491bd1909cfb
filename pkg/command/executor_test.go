package command

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"epibridge/pkg/apis/response"
	"epibridge/pkg/protocol/modbus"
	"epibridge/pkg/publisher"
	"epibridge/pkg/runtime"
)

type fakeConn struct {
	writeErr  error
	lastAddr  uint16
	lastBit   *bool
	lastWord  *uint16
	lastWords []uint16
}

func (f *fakeConn) Open() error  { return nil }
func (f *fakeConn) Close() error { return nil }

func (f *fakeConn) ReadBits(table runtime.TableType, addr, quantity uint16) ([]bool, error) {
	return make([]bool, quantity), nil
}

func (f *fakeConn) ReadWords(table runtime.TableType, addr, quantity uint16) ([]uint16, error) {
	return make([]uint16, quantity), nil
}

func (f *fakeConn) WriteBit(addr uint16, value bool) error {
	f.lastAddr, f.lastBit = addr, &value
	return f.writeErr
}

func (f *fakeConn) WriteWord(addr uint16, value uint16) error {
	f.lastAddr, f.lastWord = addr, &value
	return f.writeErr
}

func (f *fakeConn) WriteWords(addr uint16, values []uint16) error {
	f.lastAddr, f.lastWords = addr, values
	return f.writeErr
}

type fakeSessions struct {
	sessions map[string]*modbus.Session
}

func (f *fakeSessions) Get(id string) (*modbus.Session, bool) {
	s, ok := f.sessions[id]
	return s, ok
}

type fakeCatalogue struct {
	signals map[string]*runtime.Signal
}

func (f *fakeCatalogue) Signal(name string) (*runtime.Signal, bool) {
	s, ok := f.signals[name]
	return s, ok
}

func (f *fakeCatalogue) Action(name string) (*runtime.Action, bool) { return nil, false }

type fixture struct {
	executor *Executor
	conn     *fakeConn
	events   []*runtime.Event
	detector *publisher.Detector
}

func newFixture(t *testing.T, signals ...*runtime.Signal) *fixture {
	t.Helper()

	connection := &runtime.Connection{
		ObjectMeta: runtime.ObjectMeta{Name: "plc-1", ID: "plc-1"},
		Host:       "127.0.0.1",
		Port:       502,
		Enabled:    true,
		Signals:    signals,
	}
	connection.Index()

	fc := &fakeConn{}
	session := modbus.NewSession(connection, func(host string, port int, unit uint8) (modbus.Conn, error) {
		return fc, nil
	}, nil)
	t.Cleanup(session.Close)

	deadline := time.Now().Add(3 * time.Second)
	for session.State() != runtime.LinkConnected {
		if time.Now().After(deadline) {
			t.Fatal("session never connected")
		}
		time.Sleep(2 * time.Millisecond)
	}

	fx := &fixture{conn: fc}
	fx.detector = publisher.NewDetector(nil, nil)
	cat := &fakeCatalogue{signals: make(map[string]*runtime.Signal)}
	for _, s := range signals {
		cat.signals[s.Name] = s
	}
	fx.executor = NewExecutor(
		func() Catalogue { return cat },
		&fakeSessions{sessions: map[string]*modbus.Session{"plc-1": session}},
		fx.detector,
		func(e *runtime.Event) { fx.events = append(fx.events, e) },
	)
	return fx
}

func TestWriteCoilScenario(t *testing.T) {
	// A pick-to-light bin beyond the primary coil range.
	sig := &runtime.Signal{Name: "PICK_BIN_01", Kind: runtime.DigitalOutputSlaveCoil, LinearAddress: 2000, PLCAddress: "%QX250.0"}
	fx := newFixture(t, sig)

	value, err := fx.executor.Write(context.Background(), "PICK_BIN_01", true)
	require.NoError(t, err)
	assert.Equal(t, true, value)
	require.NotNil(t, fx.conn.lastBit)
	assert.Equal(t, uint16(2000), fx.conn.lastAddr)
	assert.True(t, *fx.conn.lastBit)

	// The cache reflects the confirmed write immediately.
	assert.Equal(t, true, sig.Value())

	require.Len(t, fx.events, 1)
	assert.Equal(t, runtime.EventWrite, fx.events[0].Type)
	assert.Equal(t, runtime.EventSuccess, fx.events[0].Status)
}

func TestWriteRegisterWidths(t *testing.T) {
	w16 := &runtime.Signal{Name: "SETPOINT", Kind: runtime.AnalogOutputHoldingRegister, LinearAddress: 10}
	w32 := &runtime.Signal{Name: "BATCH_COUNT", Kind: runtime.MemoryRegister32, LinearAddress: 20}
	fx := newFixture(t, w16, w32)

	value, err := fx.executor.Write(context.Background(), "SETPOINT", float64(1500))
	require.NoError(t, err)
	assert.Equal(t, uint16(1500), value)
	require.NotNil(t, fx.conn.lastWord)
	assert.Equal(t, uint16(1500), *fx.conn.lastWord)
	assert.Equal(t, uint16(1500), w16.Value())

	value, err = fx.executor.Write(context.Background(), "BATCH_COUNT", float64(0x12345678))
	require.NoError(t, err)
	assert.Equal(t, uint32(0x12345678), value)
	assert.Equal(t, []uint16{0x1234, 0x5678}, fx.conn.lastWords)
}

func TestWriteValidation(t *testing.T) {
	coil := &runtime.Signal{Name: "CONVEYOR_RUN", Kind: runtime.DigitalOutputCoil, LinearAddress: 12}
	reg := &runtime.Signal{Name: "SETPOINT", Kind: runtime.AnalogOutputHoldingRegister, LinearAddress: 10}
	contact := &runtime.Signal{Name: "DOOR_OPEN", Kind: runtime.DigitalInputContact, LinearAddress: 3}
	fx := newFixture(t, coil, reg, contact)
	ctx := context.Background()

	_, err := fx.executor.Write(ctx, "NO_SUCH_SIGNAL", true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	_, err = fx.executor.Write(ctx, "DOOR_OPEN", true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read only")

	_, err = fx.executor.Write(ctx, "CONVEYOR_RUN", "yes")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boolean")

	_, err = fx.executor.Write(ctx, "SETPOINT", 1.5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "numeric")

	_, err = fx.executor.Write(ctx, "SETPOINT", float64(70000))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "register width")

	_, err = fx.executor.Write(ctx, "SETPOINT", float64(-1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "register width")

	// Validation failures never reach the wire.
	assert.Nil(t, fx.conn.lastBit)
	assert.Nil(t, fx.conn.lastWord)
	assert.Empty(t, fx.events)
}

func TestWriteFailureRecordsEventNoRetry(t *testing.T) {
	coil := &runtime.Signal{Name: "CONVEYOR_RUN", Kind: runtime.DigitalOutputCoil, LinearAddress: 12}
	fx := newFixture(t, coil)
	fx.conn.writeErr = errors.New("broken pipe")

	_, err := fx.executor.Write(context.Background(), "CONVEYOR_RUN", true)
	require.Error(t, err)

	require.Len(t, fx.events, 1)
	assert.Equal(t, runtime.EventError, fx.events[0].Type)
	assert.Equal(t, runtime.EventFailure, fx.events[0].Status)
	assert.Equal(t, true, fx.events[0].NewValue)
	assert.Contains(t, fx.events[0].Message, "broken pipe")
	// The cache keeps its last confirmed state.
	assert.Nil(t, coil.Value())

	// One event per attempt, no retries behind the caller's back.
	assert.Len(t, fx.events, 1)
}

func TestWriteWithoutCatalogue(t *testing.T) {
	executor := NewExecutor(func() Catalogue { return nil }, &fakeSessions{}, nil, nil)
	_, err := executor.Write(context.Background(), "ANY", true)
	assert.Equal(t, response.ErrCatalogueUnavailable, err)
}
