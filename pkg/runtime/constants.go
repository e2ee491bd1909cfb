package runtime

import (
	"encoding/json"
	"fmt"
)

// ETagMaxInitialValue just a value, meaningless
const ETagMaxInitialValue int64 = 3294967296

// SignalKind classifies one monitored or controlled point the way the
// business system's signal catalogue names it.
type SignalKind int8

const (
	DigitalOutputCoil SignalKind = iota
	DigitalOutputSlaveCoil
	DigitalInputContact
	DigitalInputSlaveContact
	AnalogInputRegister
	AnalogOutputHoldingRegister
	MemoryRegister16
	MemoryRegister32
	MemoryRegister64
)

var SignalKindToString = map[SignalKind]string{
	DigitalOutputCoil:           "Digital Output Coil",
	DigitalOutputSlaveCoil:      "Digital Output Slave Coil",
	DigitalInputContact:         "Digital Input Contact",
	DigitalInputSlaveContact:    "Digital Input Slave Contact",
	AnalogInputRegister:         "Analog Input Register",
	AnalogOutputHoldingRegister: "Analog Output Holding Register",
	MemoryRegister16:            "Memory Register (16 bit)",
	MemoryRegister32:            "Memory Register (32 bit)",
	MemoryRegister64:            "Memory Register (64 bit)",
}

var StringToSignalKind = map[string]SignalKind{
	"Digital Output Coil":            DigitalOutputCoil,
	"Digital Output Slave Coil":      DigitalOutputSlaveCoil,
	"Digital Input Contact":          DigitalInputContact,
	"Digital Input Slave Contact":    DigitalInputSlaveContact,
	"Analog Input Register":          AnalogInputRegister,
	"Analog Output Holding Register": AnalogOutputHoldingRegister,
	"Memory Register (16 bit)":       MemoryRegister16,
	"Memory Register (32 bit)":       MemoryRegister32,
	"Memory Register (64 bit)":       MemoryRegister64,
}

func (sk SignalKind) String() string {
	return SignalKindToString[sk]
}

func (sk SignalKind) MarshalJSON() ([]byte, error) {
	if s, ok := SignalKindToString[sk]; ok {
		return json.Marshal(s)
	}
	return nil, fmt.Errorf("unknown signalKind %d", sk)
}

func (sk *SignalKind) UnmarshalJSON(bytes []byte) error {
	var s string
	if err := json.Unmarshal(bytes, &s); err != nil {
		return err
	}
	v, ok := StringToSignalKind[s]
	if !ok {
		return fmt.Errorf("unknown signalKind %s", s)
	}
	*sk = v
	return nil
}

// TableType is the Modbus address space a signal lives in.
type TableType int8

const (
	CoilTable TableType = iota
	DiscreteInputTable
	InputRegisterTable
	HoldingRegisterTable
)

var TableTypeToString = map[TableType]string{
	CoilTable:            "coil",
	DiscreteInputTable:   "discreteInput",
	InputRegisterTable:   "inputRegister",
	HoldingRegisterTable: "holdingRegister",
}

func (tt TableType) String() string {
	return TableTypeToString[tt]
}

// Table returns the Modbus address space the kind reads from.
func (sk SignalKind) Table() TableType {
	switch sk {
	case DigitalOutputCoil, DigitalOutputSlaveCoil:
		return CoilTable
	case DigitalInputContact, DigitalInputSlaveContact:
		return DiscreteInputTable
	case AnalogInputRegister:
		return InputRegisterTable
	default:
		return HoldingRegisterTable
	}
}

// BitAddressed reports whether the kind uses major.minor bit notation.
func (sk SignalKind) BitAddressed() bool {
	switch sk {
	case DigitalOutputCoil, DigitalOutputSlaveCoil, DigitalInputContact, DigitalInputSlaveContact:
		return true
	}
	return false
}

// Words is the number of 16 bit registers one value of the kind occupies.
// Bit kinds occupy a single coil or contact.
func (sk SignalKind) Words() uint16 {
	switch sk {
	case MemoryRegister32:
		return 2
	case MemoryRegister64:
		return 4
	default:
		return 1
	}
}

// Writable reports whether the kind accepts externally requested writes.
// Contacts and input registers are read only points.
func (sk SignalKind) Writable() bool {
	switch sk {
	case DigitalInputContact, DigitalInputSlaveContact, AnalogInputRegister:
		return false
	}
	return true
}

// LinkState is a connection's protocol session liveness.
type LinkState int32

const (
	LinkDisconnected LinkState = iota
	LinkConnecting
	LinkConnected
	LinkError
)

var LinkStateToString = map[LinkState]string{
	LinkDisconnected: "disconnected",
	LinkConnecting:   "connecting",
	LinkConnected:    "connected",
	LinkError:        "error",
}

func (ls LinkState) String() string {
	return LinkStateToString[ls]
}

// WordOrder is the register order for values spanning multiple registers.
type WordOrder int8

const (
	ABCD WordOrder = iota // high word first
	CDAB                  // word swapped
)

var WordOrderToString = map[WordOrder]string{
	ABCD: "ABCD",
	CDAB: "CDAB",
}

var StringToWordOrder = map[string]WordOrder{
	"ABCD": ABCD,
	"CDAB": CDAB,
}

func (wo WordOrder) MarshalJSON() ([]byte, error) {
	if s, ok := WordOrderToString[wo]; ok {
		return json.Marshal(s)
	}
	return nil, fmt.Errorf("unknown wordOrder %d", wo)
}

func (wo *WordOrder) UnmarshalJSON(bytes []byte) error {
	var s string
	if err := json.Unmarshal(bytes, &s); err != nil {
		return err
	}
	v, ok := StringToWordOrder[s]
	if !ok {
		return fmt.Errorf("unknown wordOrder %s", s)
	}
	*wo = v
	return nil
}

// TriggerType is how an action fires. The vocabulary follows the most
// complete catalogue schema the business system ships.
type TriggerType int8

const (
	TriggerAPI TriggerType = iota
	TriggerInterval
	TriggerDocumentEvent
	TriggerSignalChange
)

var TriggerTypeToString = map[TriggerType]string{
	TriggerAPI:           "API Call",
	TriggerInterval:      "Scheduled",
	TriggerDocumentEvent: "Document Event",
	TriggerSignalChange:  "Signal Change",
}

var StringToTriggerType = map[string]TriggerType{
	"API Call":       TriggerAPI,
	"Scheduled":      TriggerInterval,
	"Document Event": TriggerDocumentEvent,
	"Signal Change":  TriggerSignalChange,
}

func (tt TriggerType) MarshalJSON() ([]byte, error) {
	if s, ok := TriggerTypeToString[tt]; ok {
		return json.Marshal(s)
	}
	return nil, fmt.Errorf("unknown trigger %d", tt)
}

func (tt *TriggerType) UnmarshalJSON(bytes []byte) error {
	var s string
	if err := json.Unmarshal(bytes, &s); err != nil {
		return err
	}
	v, ok := StringToTriggerType[s]
	if !ok {
		return fmt.Errorf("unknown trigger %s", s)
	}
	*tt = v
	return nil
}

// Condition gates a signal-change trigger against a literal value.
type Condition int8

const (
	ConditionAny Condition = iota
	ConditionEquals
	ConditionGreaterThan
	ConditionLessThan
)

var ConditionToString = map[Condition]string{
	ConditionAny:         "Any Change",
	ConditionEquals:      "Equals",
	ConditionGreaterThan: "Greater Than",
	ConditionLessThan:    "Less Than",
}

var StringToCondition = map[string]Condition{
	"Any Change":   ConditionAny,
	"Equals":       ConditionEquals,
	"Greater Than": ConditionGreaterThan,
	"Less Than":    ConditionLessThan,
}

func (c Condition) MarshalJSON() ([]byte, error) {
	if s, ok := ConditionToString[c]; ok {
		return json.Marshal(s)
	}
	return nil, fmt.Errorf("unknown condition %d", c)
}

func (c *Condition) UnmarshalJSON(bytes []byte) error {
	var s string
	if err := json.Unmarshal(bytes, &s); err != nil {
		return err
	}
	v, ok := StringToCondition[s]
	if !ok {
		return fmt.Errorf("unknown condition %s", s)
	}
	*c = v
	return nil
}

// EventType classifies audit records.
type EventType int8

const (
	EventRead EventType = iota
	EventWrite
	EventSignalUpdate
	EventConnectionTest
	EventActionExecution
	EventError
)

var EventTypeToString = map[EventType]string{
	EventRead:            "read",
	EventWrite:           "write",
	EventSignalUpdate:    "signal-update",
	EventConnectionTest:  "connection-test",
	EventActionExecution: "action-execution",
	EventError:           "error",
}

func (et EventType) String() string {
	return EventTypeToString[et]
}

func (et EventType) MarshalJSON() ([]byte, error) {
	if s, ok := EventTypeToString[et]; ok {
		return json.Marshal(s)
	}
	return nil, fmt.Errorf("unknown eventType %d", et)
}

// EventStatus is the outcome carried by an audit record.
type EventStatus int8

const (
	EventSuccess EventStatus = iota
	EventFailure
)

var EventStatusToString = map[EventStatus]string{
	EventSuccess: "success",
	EventFailure: "failure",
}

func (es EventStatus) String() string {
	return EventStatusToString[es]
}

func (es EventStatus) MarshalJSON() ([]byte, error) {
	if s, ok := EventStatusToString[es]; ok {
		return json.Marshal(s)
	}
	return nil, fmt.Errorf("unknown eventStatus %d", es)
}
