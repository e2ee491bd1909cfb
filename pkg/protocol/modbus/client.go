// Package modbus maintains the TCP sessions the bridge polls and writes
// through. One session per connection; requests on a session are strictly
// serialized.
package modbus

import (
	"fmt"
	"time"

	vetter "github.com/simonvetter/modbus"

	"epibridge/pkg/runtime"
)

// Conn is one open protocol channel. Implementations are not required to
// be goroutine safe; the owning session serializes access.
type Conn interface {
	Open() error
	Close() error
	ReadBits(table runtime.TableType, addr, quantity uint16) ([]bool, error)
	ReadWords(table runtime.TableType, addr, quantity uint16) ([]uint16, error)
	WriteBit(addr uint16, value bool) error
	WriteWord(addr uint16, value uint16) error
	WriteWords(addr uint16, values []uint16) error
}

// Dialer builds an unopened Conn for a connection's endpoint. Sessions
// and connection tests share it; tests substitute a fake.
type Dialer func(host string, port int, unit uint8) (Conn, error)

// TCPDialer returns the production dialer.
func TCPDialer(timeout time.Duration) Dialer {
	return func(host string, port int, unit uint8) (Conn, error) {
		client, err := vetter.NewClient(&vetter.ClientConfiguration{
			URL:     fmt.Sprintf("tcp://%s:%d", host, port),
			Timeout: timeout,
		})
		if err != nil {
			return nil, err
		}
		if err := client.SetUnitId(unit); err != nil {
			return nil, err
		}
		return &vetterConn{client: client}, nil
	}
}

type vetterConn struct {
	client *vetter.ModbusClient
}

var _ Conn = (*vetterConn)(nil)

func (vc *vetterConn) Open() error {
	return vc.client.Open()
}

func (vc *vetterConn) Close() error {
	return vc.client.Close()
}

func (vc *vetterConn) ReadBits(table runtime.TableType, addr, quantity uint16) ([]bool, error) {
	switch table {
	case runtime.CoilTable:
		return vc.client.ReadCoils(addr, quantity)
	case runtime.DiscreteInputTable:
		return vc.client.ReadDiscreteInputs(addr, quantity)
	default:
		return nil, ErrUnknownTable
	}
}

func (vc *vetterConn) ReadWords(table runtime.TableType, addr, quantity uint16) ([]uint16, error) {
	switch table {
	case runtime.HoldingRegisterTable:
		return vc.client.ReadRegisters(addr, quantity, vetter.HOLDING_REGISTER)
	case runtime.InputRegisterTable:
		return vc.client.ReadRegisters(addr, quantity, vetter.INPUT_REGISTER)
	default:
		return nil, ErrUnknownTable
	}
}

func (vc *vetterConn) WriteBit(addr uint16, value bool) error {
	return vc.client.WriteCoil(addr, value)
}

func (vc *vetterConn) WriteWord(addr uint16, value uint16) error {
	return vc.client.WriteRegister(addr, value)
}

func (vc *vetterConn) WriteWords(addr uint16, values []uint16) error {
	return vc.client.WriteRegisters(addr, values)
}
