// Package session implements the per-connection lifecycle: a connection must
// authenticate within a deadline, successful authentication registers it in
// the connection registry, and disconnects remove only the registry entry
// that still belongs to this connection.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/roadwatch/backend/internal/domain"
	"github.com/roadwatch/backend/internal/identity"
	"github.com/roadwatch/backend/internal/metrics"
	"github.com/roadwatch/backend/internal/registry"
)

// State of one session. Transitions are local to one connection; the only
// cross-session coordination is the shared registry.
type State int

const (
	StateConnecting State = iota
	StateAuthenticating
	StateAuthenticated
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Conn is the transport-level connection a session owns: the registry handle
// plus the ability to force-close it.
type Conn interface {
	registry.Handle
	Close() error
}

// Manager creates sessions bound to the shared registry and classifier.
type Manager struct {
	registry    *registry.Registry
	classifier  *identity.Classifier
	authTimeout time.Duration
	clock       clockwork.Clock
}

func NewManager(reg *registry.Registry, classifier *identity.Classifier, authTimeout time.Duration, clock clockwork.Clock) *Manager {
	return &Manager{
		registry:    reg,
		classifier:  classifier,
		authTimeout: authTimeout,
		clock:       clock,
	}
}

// Session tracks one connection through its lifecycle.
type Session struct {
	manager *Manager

	mu       sync.Mutex
	conn     Conn
	state    State
	identity string
	role     domain.Role
	deadline clockwork.Timer
}

// Open starts a session for a freshly accepted connection. The session enters
// Authenticating and the authentication deadline starts ticking; a session
// still unauthenticated when it expires is force-closed.
func (m *Manager) Open(conn Conn) *Session {
	s := &Session{
		manager: m,
		conn:    conn,
		state:   StateAuthenticating,
	}
	s.deadline = m.clock.AfterFunc(m.authTimeout, s.expire)
	return s
}

func (s *Session) expire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAuthenticating {
		return
	}
	metrics.AuthTimeoutsTotal.Inc()
	slog.Info("Authentication deadline elapsed, closing connection")
	_ = s.conn.Close()
}

// Authenticate runs the identity classifier for a client-supplied identity.
// Any authenticate call cancels the deadline; it is not restarted after a
// failed attempt. On success the connection is registered (overwriting any
// previous connection for the same identity) and an auth_success ack is
// emitted; on failure an auth_error ack is emitted and the session remains
// in Authenticating.
func (s *Session) Authenticate(id string) identity.Classification {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateDisconnected {
		return identity.Classification{Reason: "session closed"}
	}

	s.deadline.Stop()

	c := s.manager.classifier.Classify(id)
	if !c.Valid {
		metrics.AuthAttemptsTotal.WithLabelValues("invalid").Inc()
		slog.Info("Authentication rejected", "reason", c.Reason)
		s.send(domain.AuthError{Message: c.Reason})
		return c
	}

	s.identity = id
	s.role = c.Role
	s.state = StateAuthenticated
	s.manager.registry.Register(id, s.conn)
	metrics.AuthAttemptsTotal.WithLabelValues("success").Inc()
	metrics.RegisteredIdentities.Set(float64(s.manager.registry.Len()))
	slog.Info("Session authenticated", "identity", id, "role", c.Role)

	s.send(domain.AuthSuccess{Identity: id, Role: c.Role, Message: "authenticated"})
	return c
}

// Reconnect re-registers a session that already holds an identity from a
// prior grant on the same logical connection, without requiring a fresh
// authenticate call, and re-emits the success ack. Returns false if the
// session never authenticated.
func (s *Session) Reconnect() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.identity == "" || s.state == StateDisconnected {
		return false
	}

	s.state = StateAuthenticated
	s.manager.registry.Register(s.identity, s.conn)
	metrics.RegisteredIdentities.Set(float64(s.manager.registry.Len()))
	slog.Info("Session re-registered after reconnect", "identity", s.identity)

	s.send(domain.AuthSuccess{Identity: s.identity, Role: s.role, Message: "re-authenticated"})
	return true
}

// Disconnect finalizes the session. If it authenticated, the registry entry
// is removed only when it still points at this connection, so a stale
// disconnect never evicts a newer session for the same identity.
func (s *Session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateDisconnected {
		return
	}

	s.deadline.Stop()
	if s.identity != "" {
		if s.manager.registry.Unregister(s.identity, s.conn) {
			slog.Info("Session unregistered", "identity", s.identity)
		}
		metrics.RegisteredIdentities.Set(float64(s.manager.registry.Len()))
	}
	s.state = StateDisconnected
}

func (s *Session) send(ev domain.Event) {
	if err := s.conn.Send(domain.Envelope{Event: ev.EventName(), Data: ev}); err != nil {
		slog.Warn("Failed to send session ack", "event", ev.EventName(), "error", err)
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Identity returns the authenticated identity, or "" before authentication.
func (s *Session) Identity() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// Role returns the role derived at authentication time.
func (s *Session) Role() domain.Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role
}
