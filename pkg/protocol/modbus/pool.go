package modbus

import (
	"context"
	"sync"

	"k8s.io/klog/v2"

	"epibridge/pkg/runtime"
)

// Pool keeps one live session per enabled connection and reconciles the
// set against catalogue refreshes.
type Pool struct {
	dialer Dialer
	notify StateNotify

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewPool(dialer Dialer, notify StateNotify) *Pool {
	return &Pool{
		dialer:   dialer,
		notify:   notify,
		sessions: make(map[string]*Session),
	}
}

func (p *Pool) Get(connectionID string) (*Session, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.sessions[connectionID]
	return s, ok
}

// Sync reconciles sessions against the given connection set. Disabled
// connections count as absent. A kept connection whose endpoint moved is
// torn down and redialed; an unchanged one keeps its session and backoff
// state.
func (p *Pool) Sync(connections []*runtime.Connection) {
	desired := make(map[string]*runtime.Connection, len(connections))
	for _, c := range connections {
		if c.Enabled {
			desired[c.ID] = c
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for id, session := range p.sessions {
		c, keep := desired[id]
		if keep && !endpointChanged(session.Connection(), c) {
			continue
		}
		if keep {
			klog.V(2).InfoS("Redialing moved connection", "connection", c.Name)
		} else {
			klog.V(2).InfoS("Dropping removed connection", "connection", id)
		}
		session.Close()
		delete(p.sessions, id)
	}

	for id, c := range desired {
		if _, ok := p.sessions[id]; ok {
			continue
		}
		klog.V(2).InfoS("Opening connection", "connection", c.Name, "endpoint", c.Host, "port", c.Port)
		p.sessions[id] = NewSession(c, p.dialer, p.notify)
	}
}

func endpointChanged(old, next *runtime.Connection) bool {
	return old.Host != next.Host || old.Port != next.Port || old.Unit != next.Unit
}

// Test opens a transient channel to an arbitrary endpoint and closes it
// again. It never touches pooled sessions.
func (p *Pool) Test(ctx context.Context, host string, port int, unit uint8) error {
	errCh := make(chan error, 1)
	go func() {
		client, err := p.dialer(host, port, unit)
		if err != nil {
			errCh <- err
			return
		}
		if err := client.Open(); err != nil {
			errCh <- err
			return
		}
		errCh <- client.Close()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown closes every session. Blocks until reconnect loops exit or the
// context expires.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	sessions := make([]*Session, 0, len(p.sessions))
	for _, s := range p.sessions {
		sessions = append(sessions, s)
	}
	p.sessions = make(map[string]*Session)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		for _, s := range sessions {
			s.Close()
		}
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
