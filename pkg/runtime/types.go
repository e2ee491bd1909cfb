package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/atomic"
)

var (
	ErrNotObject = fmt.Errorf("object does not implement the Object interfaces")
)

type LabeledCloser struct {
	Label  string
	Closer func(context.Context) error
}

type Object interface {
	GetName() string
	SetName(string)
	GetID() string
	SetID(string)
	GetVersion() string
	SetVersion(string)
	GetModTime() time.Time
	SetModTime(time.Time)
}

type ObjectMeta struct {
	Name    string    `json:"name"`
	ID      string    `json:"id"`
	Version string    `json:"eTag"`
	ModTime time.Time `json:"modTime"`
}

func (meta *ObjectMeta) GetName() string              { return meta.Name }
func (meta *ObjectMeta) SetName(name string)          { meta.Name = name }
func (meta *ObjectMeta) GetID() string                { return meta.ID }
func (meta *ObjectMeta) SetID(id string)              { meta.ID = id }
func (meta *ObjectMeta) GetVersion() string           { return meta.Version }
func (meta *ObjectMeta) SetVersion(version string)    { meta.Version = version }
func (meta *ObjectMeta) GetModTime() time.Time        { return meta.ModTime }
func (meta *ObjectMeta) SetModTime(modTime time.Time) { meta.ModTime = modTime }

func Accessor(obj interface{}) (Object, error) {
	switch t := obj.(type) {
	case Object:
		return t, nil
	default:
		return nil, ErrNotObject
	}
}

// Connection identifies one physical or simulated field device. It is
// read-mostly configuration owned by the business system; the bridge
// reloads it on a catalogue refresh and never edits it locally.
type Connection struct {
	ObjectMeta
	Host           string    `json:"host"`
	Port           int       `json:"port"`
	Unit           uint8     `json:"unit"`
	Enabled        bool      `json:"enabled"`
	WordOrder      WordOrder `json:"wordOrder"`
	PollIntervalMs uint      `json:"pollIntervalMs,omitempty"` // override, 0 means the global default
	Signals        []*Signal `json:"signals"`

	signalsByName map[string]*Signal
}

// Index builds the by-name signal lookup and back references. Called once
// while a catalogue snapshot is assembled, before the snapshot is published.
func (c *Connection) Index() {
	c.signalsByName = make(map[string]*Signal, len(c.Signals))
	for _, s := range c.Signals {
		s.connection = c
		c.signalsByName[s.Name] = s
	}
}

func (c *Connection) GetSignal(name string) (*Signal, bool) {
	s, ok := c.signalsByName[name]
	return s, ok
}

// ConnectionMeta is the folded list representation, the full signal set
// replaced by a count and the live session state mixed in.
type ConnectionMeta struct {
	ObjectMeta
	Host        string `json:"host"`
	Port        int    `json:"port"`
	Unit        uint8  `json:"unit"`
	Enabled     bool   `json:"enabled"`
	SignalCount int    `json:"signalCount"`
	LinkState   string `json:"linkState"`
}

// Signal is one monitored or controlled point on a Connection. The linear
// address is the single source of truth; the hierarchical form is derived
// by the address translator when the snapshot is built and is presentation
// only, so the two can never drift apart.
type Signal struct {
	Name          string     `json:"name"`
	Kind          SignalKind `json:"kind"`
	LinearAddress uint16     `json:"linearAddress"`
	PLCAddress    string     `json:"plcAddress"` // derived, read only
	Tolerance     float64    `json:"tolerance,omitempty"`

	connection *Connection
	value      atomic.Value
}

// Value returns the last known value, nil until the first successful read.
func (s *Signal) Value() interface{} {
	return s.value.Load()
}

func (s *Signal) SetValue(v interface{}) {
	s.value.Store(v)
}

// AdoptValue carries the cached value over from a previous catalogue
// snapshot so a refresh does not blank out last known state.
func (s *Signal) AdoptValue(prev *Signal) {
	if v := prev.value.Load(); v != nil {
		s.value.Store(v)
	}
}

func (s *Signal) Connection() *Connection {
	return s.connection
}

type signalAlias Signal

type signalJSON struct {
	*signalAlias
	Value interface{} `json:"value,omitempty"`
}

func (s *Signal) MarshalJSON() ([]byte, error) {
	return json.Marshal(&signalJSON{signalAlias: (*signalAlias)(s), Value: s.Value()})
}

func (s *Signal) UnmarshalJSON(bytes []byte) error {
	// the cached value is runtime state, not configuration; it is dropped
	return json.Unmarshal(bytes, (*signalAlias)(s))
}

// Parameter is one typed argument passed to an action's script.
type Parameter struct {
	Name  string      `json:"name"`
	Type  string      `json:"type"`
	Value interface{} `json:"value"`
}

// Action is a named automation rule bound to one signal and one script
// hosted by the business system.
type Action struct {
	Name       string       `json:"name"`
	Enabled    bool         `json:"enabled"`
	SignalName string       `json:"signalName"`
	ScriptName string       `json:"scriptName"`
	Trigger    TriggerType  `json:"trigger"`
	IntervalMs uint         `json:"intervalMs,omitempty"` // for scheduled triggers
	Condition  Condition    `json:"condition,omitempty"`
	Value      interface{}  `json:"value,omitempty"` // literal compared by the condition
	Parameters []*Parameter `json:"parameters,omitempty"`
}

// Event is one immutable audit record. Created by the change detector,
// the command executor, or the connection-test path; never mutated.
type Event struct {
	ID            string      `json:"id"`
	Type          EventType   `json:"type"`
	Status        EventStatus `json:"status"`
	Connection    string      `json:"connection,omitempty"`
	Signal        string      `json:"signal,omitempty"`
	Action        string      `json:"action,omitempty"`
	PreviousValue interface{} `json:"previousValue,omitempty"`
	NewValue      interface{} `json:"newValue,omitempty"`
	Timestamp     time.Time   `json:"timestamp"`
	Message       string      `json:"message,omitempty"`
	Trace         string      `json:"trace,omitempty"`
}

// SignalUpdate is one detected change, fanned out to the realtime channel
// and to signal-change action triggers.
type SignalUpdate struct {
	SignalName string      `json:"signal_name"`
	Value      interface{} `json:"value"`
	Previous   interface{} `json:"-"`
	Timestamp  time.Time   `json:"timestamp"`
}
