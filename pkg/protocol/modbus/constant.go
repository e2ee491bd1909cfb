package modbus

import "errors"

// Per-request limits from the protocol. Read plans split batches so no
// single request exceeds them.
const (
	PerRequestMaxCoils     = 2000
	PerRequestMaxRegisters = 125
)

var (
	ErrNotConnected  = errors.New("modbus session is not connected")
	ErrSessionClosed = errors.New("modbus session is closed")
	ErrUnknownTable  = errors.New("unknown register table")
	ErrTableReadOnly = errors.New("register table is read only")
)
