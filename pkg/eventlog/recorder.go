// Package eventlog buffers audit events. Recording never blocks the hot
// paths: events land in a bounded in-memory ring and drain to the business
// system asynchronously.
package eventlog

import (
	"context"
	"sync"
	"time"

	"go.uber.org/atomic"
	"k8s.io/klog/v2"

	"epibridge/pkg/runtime"
)

const (
	ringSize  = 512
	queueSize = 256

	consumeTimeout = 5 * time.Second
)

// Sink receives drained events, typically mirroring them into the
// business system. May be nil; the ring still works.
type Sink interface {
	Consume(ctx context.Context, event *runtime.Event) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, event *runtime.Event) error

func (f SinkFunc) Consume(ctx context.Context, event *runtime.Event) error {
	return f(ctx, event)
}

// Recorder keeps the newest events in a fixed ring and forwards them to
// the sink from a single worker. When the forward queue is full the
// oldest queued event is dropped and counted; the ring always keeps the
// newest ones.
type Recorder struct {
	sink    Sink
	queue   chan *runtime.Event
	dropped *atomic.Uint64

	mu    sync.RWMutex
	ring  []*runtime.Event
	next  int
	total int

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func NewRecorder(sink Sink) *Recorder {
	r := &Recorder{
		sink:    sink,
		queue:   make(chan *runtime.Event, queueSize),
		dropped: atomic.NewUint64(0),
		ring:    make([]*runtime.Event, ringSize),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	go r.drain()
	return r
}

// Record accepts one event. Never blocks, never panics; events recorded
// after Shutdown still reach the ring but are no longer forwarded.
func (r *Recorder) Record(event *runtime.Event) {
	r.mu.Lock()
	r.ring[r.next] = event
	r.next = (r.next + 1) % ringSize
	if r.total < ringSize {
		r.total++
	}
	r.mu.Unlock()

	if r.sink == nil {
		return
	}
	select {
	case <-r.stopCh:
		return
	default:
	}
	for {
		select {
		case r.queue <- event:
			return
		default:
		}
		select {
		case <-r.queue:
			r.dropped.Inc()
		default:
		}
	}
}

// Recent returns up to limit events, newest first.
func (r *Recorder) Recent(limit int) []*runtime.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 || limit > r.total {
		limit = r.total
	}
	out := make([]*runtime.Event, 0, limit)
	for i := 1; i <= limit; i++ {
		out = append(out, r.ring[(r.next-i+ringSize)%ringSize])
	}
	return out
}

// Dropped is the number of events that never reached the sink.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

func (r *Recorder) drain() {
	defer close(r.doneCh)
	for {
		select {
		case event := <-r.queue:
			r.consume(event)
		case <-r.stopCh:
			// flush what is already queued, then exit
			for {
				select {
				case event := <-r.queue:
					r.consume(event)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) consume(event *runtime.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), consumeTimeout)
	defer cancel()
	if err := r.sink.Consume(ctx, event); err != nil {
		klog.V(2).InfoS("Failed to forward event", "event", event.ID, "err", err)
	}
}

// Shutdown stops accepting forwards and waits for the queue to drain.
func (r *Recorder) Shutdown(ctx context.Context) error {
	r.stopOnce.Do(func() { close(r.stopCh) })
	if r.sink == nil {
		return nil
	}
	select {
	case <-r.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
