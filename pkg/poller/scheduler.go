package poller

import (
	"sync"
	"time"

	"k8s.io/klog/v2"

	"epibridge/pkg/protocol/modbus"
	"epibridge/pkg/runtime"
	"epibridge/pkg/utils/uuidutil"
)

// Sink receives the raw data of each completed batch read.
type Sink interface {
	ApplyBits(connection *runtime.Connection, batch *Batch, values []bool)
	ApplyWords(connection *runtime.Connection, batch *Batch, values []uint16)
}

// RecordFunc accepts audit events. May be nil.
type RecordFunc func(event *runtime.Event)

// Scheduler owns one runner per pollable connection. Rebuild swaps the
// runner set after a catalogue refresh.
type Scheduler struct {
	pool            *modbus.Pool
	sink            Sink
	record          RecordFunc
	defaultInterval time.Duration

	mu      sync.Mutex
	runners map[string]*runner
}

func NewScheduler(pool *modbus.Pool, sink Sink, record RecordFunc, defaultInterval time.Duration) *Scheduler {
	return &Scheduler{
		pool:            pool,
		sink:            sink,
		record:          record,
		defaultInterval: defaultInterval,
		runners:         make(map[string]*runner),
	}
}

// SetDefaultInterval changes the fallback poll interval. Takes effect on
// the next Rebuild.
func (s *Scheduler) SetDefaultInterval(interval time.Duration) {
	s.mu.Lock()
	s.defaultInterval = interval
	s.mu.Unlock()
}

// Rebuild replaces all runners with fresh ones planned from the given
// connections. Disabled connections and ones without signals get none.
func (s *Scheduler) Rebuild(connections []*runtime.Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, r := range s.runners {
		r.stop()
		delete(s.runners, id)
	}

	for _, c := range connections {
		if !c.Enabled || len(c.Signals) == 0 {
			continue
		}
		interval := s.defaultInterval
		if c.PollIntervalMs > 0 {
			interval = time.Duration(c.PollIntervalMs) * time.Millisecond
		}
		r := &runner{
			scheduler:  s,
			connection: c,
			batches:    PlanBatches(c.Signals),
			interval:   interval,
			stopCh:     make(chan struct{}),
			doneCh:     make(chan struct{}),
		}
		s.runners[c.ID] = r
		go r.loop()
		klog.V(2).InfoS("Scheduled poll runner", "connection", c.Name,
			"batches", len(r.batches), "interval", interval)
	}
}

// Stop halts every runner and waits for in-flight cycles to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.runners {
		r.stop()
		delete(s.runners, id)
	}
}

type runner struct {
	scheduler  *Scheduler
	connection *runtime.Connection
	batches    []*Batch
	interval   time.Duration
	stopCh     chan struct{}
	doneCh     chan struct{}
}

func (r *runner) stop() {
	close(r.stopCh)
	<-r.doneCh
}

func (r *runner) loop() {
	defer close(r.doneCh)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.cycle()
	for {
		select {
		case <-ticker.C:
			r.cycle()
		case <-r.stopCh:
			return
		}
	}
}

// cycle runs every batch once. A disconnected session skips the cycle;
// the session's own loop handles reconnecting. The first wire error aborts
// the cycle and yields a single error event, however many batches remain.
func (r *runner) cycle() {
	session, ok := r.scheduler.pool.Get(r.connection.ID)
	if !ok {
		return
	}
	if session.State() != runtime.LinkConnected {
		klog.V(4).InfoS("Skipped poll cycle", "connection", r.connection.Name,
			"state", session.State())
		return
	}

	for _, batch := range r.batches {
		err := session.Do(func(c modbus.Conn) error {
			if batch.Bits() {
				values, err := c.ReadBits(batch.Table, batch.Start, batch.Quantity)
				if err != nil {
					return err
				}
				r.scheduler.sink.ApplyBits(r.connection, batch, values)
				return nil
			}
			values, err := c.ReadWords(batch.Table, batch.Start, batch.Quantity)
			if err != nil {
				return err
			}
			r.scheduler.sink.ApplyWords(r.connection, batch, values)
			return nil
		})
		if err != nil {
			klog.V(3).InfoS("Poll cycle failed", "connection", r.connection.Name,
				"table", batch.Table, "err", err)
			if r.scheduler.record != nil {
				r.scheduler.record(&runtime.Event{
					ID:         uuidutil.UUID(),
					Type:       runtime.EventError,
					Status:     runtime.EventFailure,
					Connection: r.connection.ID,
					Timestamp:  time.Now(),
					Message:    err.Error(),
				})
			}
			return
		}
	}
}
