// Package command carries externally requested writes and actions down to
// the wire. Commands are validated against the catalogue before any I/O
// and never retried; the caller owns retry policy.
package command

import (
	"context"
	"math"
	"time"

	"k8s.io/klog/v2"

	"epibridge/pkg/apis/response"
	"epibridge/pkg/protocol/modbus"
	"epibridge/pkg/publisher"
	"epibridge/pkg/runtime"
	"epibridge/pkg/utils/binutil"
	"epibridge/pkg/utils/uuidutil"
)

// Catalogue is the registry view the executor needs.
type Catalogue interface {
	Signal(name string) (*runtime.Signal, bool)
	Action(name string) (*runtime.Action, bool)
}

// SessionProvider hands out live sessions by connection id.
type SessionProvider interface {
	Get(connectionID string) (*modbus.Session, bool)
}

// RecordFunc accepts audit events. May be nil.
type RecordFunc func(event *runtime.Event)

// Executor validates and performs signal writes.
type Executor struct {
	snapshot func() Catalogue
	sessions SessionProvider
	detector *publisher.Detector
	record   RecordFunc
}

func NewExecutor(snapshot func() Catalogue, sessions SessionProvider, detector *publisher.Detector, record RecordFunc) *Executor {
	return &Executor{
		snapshot: snapshot,
		sessions: sessions,
		detector: detector,
		record:   record,
	}
}

// Write validates the command fully before touching the wire, performs a
// single write attempt, and on success folds the confirmed value straight
// into the signal cache. Returns the coerced value as written.
func (e *Executor) Write(ctx context.Context, signalName string, raw interface{}) (interface{}, error) {
	snapshot := e.snapshot()
	if snapshot == nil {
		return nil, response.ErrCatalogueUnavailable
	}
	signal, ok := snapshot.Signal(signalName)
	if !ok {
		return nil, response.ErrSignalNotFound(signalName)
	}
	if !signal.Kind.Writable() {
		return nil, response.ErrSignalNotWritable(signalName)
	}
	value, err := CoerceValue(signal, raw)
	if err != nil {
		return nil, err
	}

	connection := signal.Connection()
	session, ok := e.sessions.Get(connection.ID)
	if !ok || session.State() != runtime.LinkConnected {
		return nil, response.ErrConnectionNotConnected(connection.Name)
	}

	err = session.Do(func(c modbus.Conn) error {
		return writeValue(c, signal, connection.WordOrder, value)
	})
	if err != nil {
		klog.V(2).InfoS("Write failed", "signal", signalName, "err", err)
		e.recordWrite(signal, connection, value, err)
		return nil, response.ErrWriteFailed(signalName, err)
	}

	klog.V(3).InfoS("Write confirmed", "signal", signalName, "value", value)
	e.recordWrite(signal, connection, value, nil)
	if e.detector != nil {
		e.detector.Apply(connection, signal, value)
	}
	return value, nil
}

func (e *Executor) recordWrite(signal *runtime.Signal, connection *runtime.Connection, value interface{}, err error) {
	if e.record == nil {
		return
	}
	event := &runtime.Event{
		ID:            uuidutil.UUID(),
		Type:          runtime.EventWrite,
		Status:        runtime.EventSuccess,
		Connection:    connection.ID,
		Signal:        signal.Name,
		PreviousValue: signal.Value(),
		NewValue:      value,
		Timestamp:     time.Now(),
	}
	if err != nil {
		event.Type = runtime.EventError
		event.Status = runtime.EventFailure
		event.Message = err.Error()
	}
	e.record(event)
}

// CoerceValue turns a loosely typed request value into the signal's wire
// type. Bit kinds take booleans or 0/1; word kinds take non-negative
// integers that fit the kind's register width.
func CoerceValue(signal *runtime.Signal, raw interface{}) (interface{}, error) {
	if signal.Kind.BitAddressed() {
		switch v := raw.(type) {
		case bool:
			return v, nil
		case float64:
			if v == 0 {
				return false, nil
			}
			if v == 1 {
				return true, nil
			}
		case int:
			if v == 0 {
				return false, nil
			}
			if v == 1 {
				return true, nil
			}
		}
		return nil, response.ErrBooleanInvalid(signal.Name)
	}

	var n float64
	switch v := raw.(type) {
	case float64:
		n = v
	case int:
		n = float64(v)
	case uint16:
		return coerceWidth(signal, uint64(v))
	case uint32:
		return coerceWidth(signal, uint64(v))
	case uint64:
		return coerceWidth(signal, v)
	default:
		return nil, response.ErrNumberInvalid(signal.Name)
	}
	if n != math.Trunc(n) {
		return nil, response.ErrNumberInvalid(signal.Name)
	}
	if n < 0 {
		return nil, response.ErrValueOutOfRange(signal.Name)
	}
	return coerceWidth(signal, uint64(n))
}

func coerceWidth(signal *runtime.Signal, v uint64) (interface{}, error) {
	switch signal.Kind.Words() {
	case 2:
		if v > math.MaxUint32 {
			return nil, response.ErrValueOutOfRange(signal.Name)
		}
		return uint32(v), nil
	case 4:
		return v, nil
	default:
		if v > math.MaxUint16 {
			return nil, response.ErrValueOutOfRange(signal.Name)
		}
		return uint16(v), nil
	}
}

func writeValue(c modbus.Conn, signal *runtime.Signal, order runtime.WordOrder, value interface{}) error {
	switch v := value.(type) {
	case bool:
		return c.WriteBit(signal.LinearAddress, v)
	case uint16:
		return c.WriteWord(signal.LinearAddress, v)
	case uint32:
		if order == runtime.CDAB {
			return c.WriteWords(signal.LinearAddress, binutil.SplitUint32Swapped(v))
		}
		return c.WriteWords(signal.LinearAddress, binutil.SplitUint32(v))
	case uint64:
		if order == runtime.CDAB {
			return c.WriteWords(signal.LinearAddress, binutil.SplitUint64Swapped(v))
		}
		return c.WriteWords(signal.LinearAddress, binutil.SplitUint64(v))
	default:
		return modbus.ErrUnknownTable
	}
}
