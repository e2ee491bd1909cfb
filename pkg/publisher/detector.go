package publisher

import (
	"sync"
	"time"

	"k8s.io/klog/v2"

	"epibridge/pkg/poller"
	"epibridge/pkg/runtime"
	"epibridge/pkg/utils/binutil"
	"epibridge/pkg/utils/uuidutil"
)

// RecordFunc accepts audit events. May be nil.
type RecordFunc func(event *runtime.Event)

// Detector compares decoded poll data against each signal's cached value
// and emits an update only when the value moved. Re-applying identical
// data is free: the cache absorbs it.
type Detector struct {
	realtime Realtime
	record   RecordFunc

	mu          sync.Mutex
	subscribers []chan *runtime.SignalUpdate
}

var _ poller.Sink = (*Detector)(nil)

func NewDetector(realtime Realtime, record RecordFunc) *Detector {
	return &Detector{realtime: realtime, record: record}
}

// Subscribe returns a channel of future updates. A slow consumer drops
// updates rather than stalling the poll path.
func (d *Detector) Subscribe() <-chan *runtime.SignalUpdate {
	ch := make(chan *runtime.SignalUpdate, 64)
	d.mu.Lock()
	d.subscribers = append(d.subscribers, ch)
	d.mu.Unlock()
	return ch
}

func (d *Detector) ApplyBits(connection *runtime.Connection, batch *poller.Batch, values []bool) {
	for _, s := range batch.Signals {
		idx := int(s.LinearAddress - batch.Start)
		if idx >= len(values) {
			klog.V(2).InfoS("Short read", "connection", connection.Name, "signal", s.Name)
			continue
		}
		d.Apply(connection, s, values[idx])
	}
}

func (d *Detector) ApplyWords(connection *runtime.Connection, batch *poller.Batch, values []uint16) {
	for _, s := range batch.Signals {
		offset := int(s.LinearAddress - batch.Start)
		width := int(s.Kind.Words())
		if offset+width > len(values) {
			klog.V(2).InfoS("Short read", "connection", connection.Name, "signal", s.Name)
			continue
		}
		d.Apply(connection, s, DecodeWords(s.Kind, connection.WordOrder, values[offset:offset+width]))
	}
}

// Apply runs one decoded value through change detection. The command
// executor calls it directly after a confirmed write so the cache and the
// realtime channel see the new value without waiting for the next poll.
func (d *Detector) Apply(connection *runtime.Connection, s *runtime.Signal, value interface{}) {
	prev := s.Value()
	if prev != nil && withinTolerance(prev, value, s.Tolerance) {
		return
	}
	s.SetValue(value)

	update := &runtime.SignalUpdate{
		SignalName: s.Name,
		Value:      value,
		Previous:   prev,
		Timestamp:  time.Now(),
	}
	klog.V(4).InfoS("Signal changed", "signal", s.Name, "previous", prev, "value", value)

	if d.record != nil {
		d.record(&runtime.Event{
			ID:            uuidutil.UUID(),
			Type:          runtime.EventSignalUpdate,
			Status:        runtime.EventSuccess,
			Connection:    connection.ID,
			Signal:        s.Name,
			PreviousValue: prev,
			NewValue:      value,
			Timestamp:     update.Timestamp,
		})
	}
	if d.realtime != nil {
		d.realtime.Publish(update)
	}

	d.mu.Lock()
	for _, ch := range d.subscribers {
		select {
		case ch <- update:
		default:
			klog.V(2).InfoS("Dropped update for slow subscriber", "signal", s.Name)
		}
	}
	d.mu.Unlock()
}

// DecodeWords assembles raw registers into the signal's value type.
func DecodeWords(kind runtime.SignalKind, order runtime.WordOrder, words []uint16) interface{} {
	switch kind.Words() {
	case 2:
		if order == runtime.CDAB {
			return binutil.ComposeUint32Swapped(words)
		}
		return binutil.ComposeUint32(words)
	case 4:
		if order == runtime.CDAB {
			return binutil.ComposeUint64Swapped(words)
		}
		return binutil.ComposeUint64(words)
	default:
		return words[0]
	}
}

// withinTolerance reports whether next is close enough to prev to count
// as unchanged. Zero tolerance means exact equality.
func withinTolerance(prev, next interface{}, tolerance float64) bool {
	if tolerance > 0 {
		pf, pok := toFloat(prev)
		nf, nok := toFloat(next)
		if pok && nok {
			diff := pf - nf
			if diff < 0 {
				diff = -diff
			}
			return diff <= tolerance
		}
	}
	return prev == next
}

func toFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case uint16:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	case float64:
		return t, true
	default:
		return 0, false
	}
}
