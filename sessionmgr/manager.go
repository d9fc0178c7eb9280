// Package sessionmgr keeps a live session.Session open to every instance
// currently registered for a service, reacting to registry.Watch as
// instances come and go. client.Client only ever needs one session at a
// time (whichever instance its balancer picks); Manager is for consumers
// that need to reach every known peer at once, such as a client tracking
// the liveness of an entire cluster rather than calling a single endpoint.
package sessionmgr

import (
	"context"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/raftkit/rpcsession/addr"
	"github.com/raftkit/rpcsession/registry"
	"github.com/raftkit/rpcsession/session"
)

var log = zap.NewNop().Sugar()

func init() {
	if l, err := zap.NewProduction(); err == nil {
		log = l.Sugar()
	}
}

// SetLogger replaces the package-level logger.
func SetLogger(l *zap.Logger) {
	log = l.Sugar()
}

// Manager tracks one session.Session per registered instance of one
// service, opened from registry.Discover when the Manager is built and kept
// in sync by a background goroutine consuming registry.Watch.
type Manager struct {
	reg              registry.Registry
	serviceName      string
	maxMessageLength uint32
	connectDeadline  time.Duration

	mu       sync.Mutex
	sessions map[string]*session.Session // addr -> session

	stop chan struct{}
	done chan struct{}
}

// New builds a Manager for serviceName, opens sessions to every instance
// registry.Discover currently reports, and starts a background goroutine
// that reconciles membership as reg.Watch reports changes.
func New(reg registry.Registry, serviceName string, maxMessageLength uint32) (*Manager, error) {
	m := &Manager{
		reg:              reg,
		serviceName:      serviceName,
		maxMessageLength: maxMessageLength,
		connectDeadline:  session.ConnectMaxDeadline,
		sessions:         make(map[string]*session.Session),
		stop:             make(chan struct{}),
		done:             make(chan struct{}),
	}

	instances, err := reg.Discover(serviceName)
	if err != nil {
		return nil, err
	}
	m.reconcile(instances)

	go m.watchLoop()
	return m, nil
}

// watchLoop reconciles the session map against every update reg.Watch
// emits, until Close is called.
func (m *Manager) watchLoop() {
	defer close(m.done)
	updates := m.reg.Watch(m.serviceName)
	for {
		select {
		case <-m.stop:
			return
		case instances, ok := <-updates:
			if !ok {
				return
			}
			m.reconcile(instances)
		}
	}
}

// reconcile opens sessions for newly-seen addresses and closes sessions for
// addresses no longer present, leaving existing sessions for addresses that
// are still present untouched (so in-flight RPCs on them survive a watch
// update for an unrelated instance).
func (m *Manager) reconcile(instances []registry.ServiceInstance) {
	seen := make(map[string]bool, len(instances))
	for _, inst := range instances {
		seen[inst.Addr] = true
	}

	m.mu.Lock()
	var toClose []*session.Session
	for addrStr, s := range m.sessions {
		if !seen[addrStr] {
			toClose = append(toClose, s)
			delete(m.sessions, addrStr)
		}
	}
	var toOpen []string
	for addrStr := range seen {
		if _, ok := m.sessions[addrStr]; !ok {
			toOpen = append(toOpen, addrStr)
		}
	}
	m.mu.Unlock()

	for _, s := range toClose {
		if err := s.Close(); err != nil {
			log.Warnw("failed to close retired session", "error", err)
		}
	}

	for _, addrStr := range toOpen {
		resolved := addr.Resolve(addrStr)
		s := session.MakeSession(context.Background(), resolved, m.maxMessageLength, time.Now().Add(m.connectDeadline))
		if s.ErrorMessage() != "" {
			log.Warnw("failed to open session to new instance", "address", addrStr, "error", s.ErrorMessage())
		}
		m.mu.Lock()
		m.sessions[addrStr] = s
		m.mu.Unlock()
	}
}

// Get returns the session for a known instance address, if any.
func (m *Manager) Get(addrStr string) (*session.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[addrStr]
	return s, ok
}

// All returns a snapshot of every currently tracked session.
func (m *Manager) All() []*session.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*session.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// Close stops the watch loop and closes every tracked session, combining
// any Close errors with go.uber.org/multierr rather than stopping at the
// first failure — one unreachable peer should not leak the rest.
func (m *Manager) Close() error {
	close(m.stop)
	<-m.done

	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*session.Session)
	m.mu.Unlock()

	var err error
	for _, s := range sessions {
		err = multierr.Append(err, s.Close())
	}
	return err
}
