// Package poller drives the periodic read cycles. Each enabled connection
// gets one runner goroutine; raw table data flows to the change detector.
package poller

import (
	"sort"

	"epibridge/pkg/protocol/modbus"
	"epibridge/pkg/runtime"
)

// Batch is one contiguous read request covering every signal inside its
// span. Signals are kept in address order.
type Batch struct {
	Table    runtime.TableType
	Start    uint16
	Quantity uint16
	Signals  []*runtime.Signal
}

// Bits reports whether the batch reads a bit table.
func (b *Batch) Bits() bool {
	return b.Table == runtime.CoilTable || b.Table == runtime.DiscreteInputTable
}

// PlanBatches groups signals by table, orders them by address, and splits
// spans so no request exceeds the protocol's per-request limits. Gaps
// between signals are read and discarded; one request for a sparse span
// still beats many small ones.
func PlanBatches(signals []*runtime.Signal) []*Batch {
	byTable := make(map[runtime.TableType][]*runtime.Signal)
	for _, s := range signals {
		table := s.Kind.Table()
		byTable[table] = append(byTable[table], s)
	}

	var batches []*Batch
	for _, table := range []runtime.TableType{
		runtime.CoilTable,
		runtime.DiscreteInputTable,
		runtime.InputRegisterTable,
		runtime.HoldingRegisterTable,
	} {
		group := byTable[table]
		if len(group) == 0 {
			continue
		}
		sort.Slice(group, func(i, j int) bool {
			return group[i].LinearAddress < group[j].LinearAddress
		})

		limit := uint16(modbus.PerRequestMaxRegisters)
		if table == runtime.CoilTable || table == runtime.DiscreteInputTable {
			limit = modbus.PerRequestMaxCoils
		}

		var current *Batch
		for _, s := range group {
			end := s.LinearAddress + s.Kind.Words()
			if current == nil || end-current.Start > limit {
				current = &Batch{Table: table, Start: s.LinearAddress}
				batches = append(batches, current)
			}
			current.Signals = append(current.Signals, s)
			current.Quantity = end - current.Start
		}
	}
	return batches
}
