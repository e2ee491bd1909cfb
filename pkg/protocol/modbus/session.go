package modbus

import (
	"sync"
	"time"

	"go.uber.org/atomic"
	"k8s.io/klog/v2"

	"epibridge/pkg/runtime"
)

const (
	initialBackoff = 1 * time.Second
	maxBackoff     = 30 * time.Second
)

// StateNotify observes link state transitions. May be nil.
type StateNotify func(connectionID string, state runtime.LinkState)

// Session owns one protocol channel and its reconnect loop. All I/O goes
// through Do, which serializes callers; requests queue in lock order, so
// a poll cycle and a command never interleave on the wire.
type Session struct {
	connection *runtime.Connection
	dialer     Dialer
	notify     StateNotify

	mu     sync.Mutex // guards client and every wire operation
	client Conn

	state  *atomic.Int32
	kick   chan struct{}
	stopCh chan struct{}
	doneCh chan struct{}
}

func NewSession(connection *runtime.Connection, dialer Dialer, notify StateNotify) *Session {
	s := &Session{
		connection: connection,
		dialer:     dialer,
		notify:     notify,
		state:      atomic.NewInt32(int32(runtime.LinkDisconnected)),
		kick:       make(chan struct{}, 1),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
	go s.maintain()
	return s
}

func (s *Session) Connection() *runtime.Connection {
	return s.connection
}

func (s *Session) State() runtime.LinkState {
	return runtime.LinkState(s.state.Load())
}

func (s *Session) setState(state runtime.LinkState) {
	s.state.Store(int32(state))
	if s.notify != nil {
		s.notify(s.connection.ID, state)
	}
}

// Do runs one wire operation. It fails fast with ErrNotConnected while the
// link is down; callers skip the cycle rather than block behind a redial.
// A failed operation tears the channel down and wakes the reconnect loop.
func (s *Session) Do(op func(Conn) error) error {
	select {
	case <-s.stopCh:
		return ErrSessionClosed
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil || s.State() != runtime.LinkConnected {
		return ErrNotConnected
	}
	if err := op(s.client); err != nil {
		klog.V(3).InfoS("Session operation failed", "connection", s.connection.Name, "err", err)
		_ = s.client.Close()
		s.client = nil
		s.setState(runtime.LinkError)
		select {
		case s.kick <- struct{}{}:
		default:
		}
		return err
	}
	return nil
}

// maintain dials until the channel is up, then sleeps until the channel
// breaks or the session closes. Backoff doubles from one second to thirty
// and resets after any successful connect.
func (s *Session) maintain() {
	defer close(s.doneCh)
	backoff := initialBackoff

	for {
		select {
		case <-s.stopCh:
			s.teardown()
			return
		default:
		}

		s.setState(runtime.LinkConnecting)
		client, err := s.dial()
		if err != nil {
			klog.V(3).InfoS("Failed to connect", "connection", s.connection.Name,
				"backoff", backoff, "err", err)
			s.setState(runtime.LinkError)
			select {
			case <-time.After(backoff):
			case <-s.stopCh:
				s.teardown()
				return
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		s.mu.Lock()
		s.client = client
		s.mu.Unlock()
		s.setState(runtime.LinkConnected)
		klog.V(2).InfoS("Connected", "connection", s.connection.Name,
			"endpoint", s.connection.Host, "port", s.connection.Port)
		backoff = initialBackoff

		select {
		case <-s.kick:
		case <-s.stopCh:
			s.teardown()
			return
		}
	}
}

func (s *Session) dial() (Conn, error) {
	client, err := s.dialer(s.connection.Host, s.connection.Port, s.connection.Unit)
	if err != nil {
		return nil, err
	}
	if err := client.Open(); err != nil {
		return nil, err
	}
	return client, nil
}

func (s *Session) teardown() {
	s.mu.Lock()
	if s.client != nil {
		_ = s.client.Close()
		s.client = nil
	}
	s.mu.Unlock()
	s.setState(runtime.LinkDisconnected)
}

// Close stops the reconnect loop and releases the channel. Safe to call
// once; in-flight operations finish first.
func (s *Session) Close() {
	close(s.stopCh)
	select {
	case s.kick <- struct{}{}:
	default:
	}
	<-s.doneCh
}
