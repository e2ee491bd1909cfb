package poller

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"epibridge/pkg/protocol/modbus"
	"epibridge/pkg/runtime"
)

type pollConn struct {
	mu    sync.Mutex
	reads int
	delay <-chan struct{}
}

func (c *pollConn) Open() error  { return nil }
func (c *pollConn) Close() error { return nil }

func (c *pollConn) ReadBits(table runtime.TableType, addr, quantity uint16) ([]bool, error) {
	if c.delay != nil {
		<-c.delay
	}
	c.mu.Lock()
	c.reads++
	c.mu.Unlock()
	return make([]bool, quantity), nil
}

func (c *pollConn) ReadWords(table runtime.TableType, addr, quantity uint16) ([]uint16, error) {
	if c.delay != nil {
		<-c.delay
	}
	c.mu.Lock()
	c.reads++
	c.mu.Unlock()
	return make([]uint16, quantity), nil
}

func (c *pollConn) WriteBit(addr uint16, value bool) error        { return nil }
func (c *pollConn) WriteWord(addr uint16, value uint16) error     { return nil }
func (c *pollConn) WriteWords(addr uint16, values []uint16) error { return nil }

type countSink struct {
	mu     sync.Mutex
	cycles map[string]int
}

func newCountSink() *countSink {
	return &countSink{cycles: map[string]int{}}
}

func (s *countSink) ApplyBits(connection *runtime.Connection, batch *Batch, values []bool) {
	s.mu.Lock()
	s.cycles[connection.ID]++
	s.mu.Unlock()
}

func (s *countSink) ApplyWords(connection *runtime.Connection, batch *Batch, values []uint16) {
	s.mu.Lock()
	s.cycles[connection.ID]++
	s.mu.Unlock()
}

func (s *countSink) count(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cycles[id]
}

func pollConnection(id string) *runtime.Connection {
	c := &runtime.Connection{
		ObjectMeta: runtime.ObjectMeta{Name: id, ID: id},
		Host:       id + ".local",
		Port:       502,
		Enabled:    true,
		Signals: []*runtime.Signal{
			{Name: id + "-run", Kind: runtime.DigitalOutputCoil, LinearAddress: 1},
		},
	}
	c.Index()
	return c
}

func waitConnected(t *testing.T, pool *modbus.Pool, id string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if session, ok := pool.Get(id); ok && session.State() == runtime.LinkConnected {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("session %s never connected", id)
}

// A device that stops answering must not hold up polling of the others;
// every connection runs on its own session and runner.
func TestStalledConnectionDoesNotDelayOthers(t *testing.T) {
	stall := make(chan struct{})
	conns := map[string]*pollConn{
		"plc-fast": {},
		"plc-slow": {delay: stall},
	}
	dialer := func(host string, port int, unit uint8) (modbus.Conn, error) {
		return conns[host[:len(host)-len(".local")]], nil
	}

	pool := modbus.NewPool(dialer, nil)
	fast := pollConnection("plc-fast")
	slow := pollConnection("plc-slow")
	pool.Sync([]*runtime.Connection{fast, slow})
	waitConnected(t, pool, "plc-fast")
	waitConnected(t, pool, "plc-slow")

	sink := newCountSink()
	scheduler := NewScheduler(pool, sink, nil, 20*time.Millisecond)
	scheduler.Rebuild([]*runtime.Connection{fast, slow})

	deadline := time.Now().Add(3 * time.Second)
	for sink.count("plc-fast") < 5 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	assert.GreaterOrEqual(t, sink.count("plc-fast"), 5)
	// The stalled device is still sitting in its first read.
	assert.Equal(t, 0, sink.count("plc-slow"))

	close(stall)
	scheduler.Stop()
	require.NoError(t, pool.Shutdown(context.Background()))
}

func TestDisconnectedSessionSkipsCycle(t *testing.T) {
	pool := modbus.NewPool(func(host string, port int, unit uint8) (modbus.Conn, error) {
		return nil, assert.AnError
	}, nil)
	connection := pollConnection("plc-down")
	pool.Sync([]*runtime.Connection{connection})

	sink := newCountSink()
	scheduler := NewScheduler(pool, sink, nil, 10*time.Millisecond)
	scheduler.Rebuild([]*runtime.Connection{connection})

	time.Sleep(100 * time.Millisecond)
	scheduler.Stop()
	assert.Equal(t, 0, sink.count("plc-down"))

	require.NoError(t, pool.Shutdown(context.Background()))
}
