package eventlog

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"epibridge/pkg/runtime"
)

func event(id string) *runtime.Event {
	return &runtime.Event{ID: id, Type: runtime.EventSignalUpdate, Timestamp: time.Now()}
}

func TestRecentNewestFirst(t *testing.T) {
	r := NewRecorder(nil)
	defer r.Shutdown(context.Background())

	r.Record(event("a"))
	r.Record(event("b"))
	r.Record(event("c"))

	recent := r.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "c", recent[0].ID)
	assert.Equal(t, "b", recent[1].ID)

	all := r.Recent(0)
	assert.Len(t, all, 3)
}

func TestRingKeepsNewest(t *testing.T) {
	r := NewRecorder(nil)
	defer r.Shutdown(context.Background())

	for i := 0; i < ringSize+10; i++ {
		r.Record(event(fmt.Sprintf("e-%d", i)))
	}

	recent := r.Recent(0)
	require.Len(t, recent, ringSize)
	assert.Equal(t, fmt.Sprintf("e-%d", ringSize+9), recent[0].ID)
	assert.Equal(t, "e-10", recent[ringSize-1].ID)
}

func TestSinkReceivesEvents(t *testing.T) {
	var mu sync.Mutex
	var got []string
	sink := SinkFunc(func(ctx context.Context, e *runtime.Event) error {
		mu.Lock()
		got = append(got, e.ID)
		mu.Unlock()
		return nil
	})

	r := NewRecorder(sink)
	r.Record(event("a"))
	r.Record(event("b"))
	require.NoError(t, r.Shutdown(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestRecordAfterShutdown(t *testing.T) {
	sink := SinkFunc(func(ctx context.Context, e *runtime.Event) error { return nil })

	r := NewRecorder(sink)
	r.Record(event("a"))
	require.NoError(t, r.Shutdown(context.Background()))

	// Late events out of the shutdown window still reach the ring.
	r.Record(event("b"))
	r.Record(event("c"))

	recent := r.Recent(0)
	require.Len(t, recent, 3)
	assert.Equal(t, "c", recent[0].ID)

	// Shutdown is idempotent.
	require.NoError(t, r.Shutdown(context.Background()))
}

func TestSlowSinkDropsOldestQueued(t *testing.T) {
	block := make(chan struct{})
	sink := SinkFunc(func(ctx context.Context, e *runtime.Event) error {
		<-block
		return nil
	})

	r := NewRecorder(sink)
	// One event in flight with the sink, queueSize waiting, the rest pushed
	// out the front of the queue.
	for i := 0; i < queueSize+50; i++ {
		r.Record(event(fmt.Sprintf("e-%d", i)))
	}
	close(block)
	require.NoError(t, r.Shutdown(context.Background()))

	assert.Greater(t, r.Dropped(), uint64(0))
	// The ring is unaffected by sink pressure.
	assert.Len(t, r.Recent(0), queueSize+50)
}
