package session

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roadwatch/backend/internal/domain"
	"github.com/roadwatch/backend/internal/identity"
	"github.com/roadwatch/backend/internal/registry"
)

type fakeConn struct {
	mu     sync.Mutex
	sent   []domain.Envelope
	closed bool
}

func (f *fakeConn) Send(env domain.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, env)
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeConn) lastEnvelope() (domain.Envelope, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return domain.Envelope{}, false
	}
	return f.sent[len(f.sent)-1], true
}

const testAuthTimeout = 30 * time.Second

func newTestManager(clock clockwork.Clock) (*Manager, *registry.Registry) {
	reg := registry.New()
	return NewManager(reg, identity.NewClassifier(""), testAuthTimeout, clock), reg
}

func TestAuthenticate_Success(t *testing.T) {
	mgr, reg := newTestManager(clockwork.NewFakeClock())
	conn := &fakeConn{}
	sess := mgr.Open(conn)

	c := sess.Authenticate("user_alice")

	require.True(t, c.Valid)
	assert.Equal(t, domain.RoleUser, c.Role)
	assert.Equal(t, StateAuthenticated, sess.State())
	assert.Equal(t, "user_alice", sess.Identity())

	h, ok := reg.Lookup("user_alice")
	require.True(t, ok)
	assert.Same(t, conn, h.(*fakeConn))

	env, ok := conn.lastEnvelope()
	require.True(t, ok)
	assert.Equal(t, domain.EventAuthSuccess, env.Event)
}

func TestAuthenticate_InvalidStaysAuthenticating(t *testing.T) {
	mgr, reg := newTestManager(clockwork.NewFakeClock())
	conn := &fakeConn{}
	sess := mgr.Open(conn)

	c := sess.Authenticate("bob")

	assert.False(t, c.Valid)
	assert.Equal(t, StateAuthenticating, sess.State())
	assert.Equal(t, 0, reg.Len())
	assert.False(t, conn.isClosed())

	env, ok := conn.lastEnvelope()
	require.True(t, ok)
	assert.Equal(t, domain.EventAuthError, env.Event)
}

func TestAuthenticate_DeadlineClosesUnauthenticated(t *testing.T) {
	clock := clockwork.NewFakeClock()
	mgr, reg := newTestManager(clock)
	conn := &fakeConn{}
	sess := mgr.Open(conn)

	clock.Advance(testAuthTimeout + time.Second)

	require.Eventually(t, conn.isClosed, time.Second, time.Millisecond)
	assert.Equal(t, 0, reg.Len())
	_ = sess
}

func TestAuthenticate_CancelsDeadline(t *testing.T) {
	clock := clockwork.NewFakeClock()
	mgr, _ := newTestManager(clock)
	conn := &fakeConn{}
	sess := mgr.Open(conn)

	sess.Authenticate("user_alice")
	clock.Advance(testAuthTimeout + time.Second)

	assert.False(t, conn.isClosed())
}

func TestAuthenticate_FailedAttemptDoesNotRestartDeadline(t *testing.T) {
	clock := clockwork.NewFakeClock()
	mgr, _ := newTestManager(clock)
	conn := &fakeConn{}
	sess := mgr.Open(conn)

	// A failed attempt cancels the deadline and does not restart it; the
	// connection stays open in Authenticating.
	sess.Authenticate("bob")
	clock.Advance(testAuthTimeout + time.Second)

	assert.False(t, conn.isClosed())
	assert.Equal(t, StateAuthenticating, sess.State())
}

func TestDisconnect_RemovesRegistryEntry(t *testing.T) {
	mgr, reg := newTestManager(clockwork.NewFakeClock())
	conn := &fakeConn{}
	sess := mgr.Open(conn)
	sess.Authenticate("user_alice")

	sess.Disconnect()

	assert.Equal(t, StateDisconnected, sess.State())
	_, ok := reg.Lookup("user_alice")
	assert.False(t, ok)
}

func TestDisconnect_StaleSessionKeepsNewerEntry(t *testing.T) {
	mgr, reg := newTestManager(clockwork.NewFakeClock())

	conn1 := &fakeConn{}
	sess1 := mgr.Open(conn1)
	sess1.Authenticate("user_alice")

	conn2 := &fakeConn{}
	sess2 := mgr.Open(conn2)
	sess2.Authenticate("user_alice")

	// Disconnecting the overwritten session must not evict the newer one.
	sess1.Disconnect()
	h, ok := reg.Lookup("user_alice")
	require.True(t, ok)
	assert.Same(t, conn2, h.(*fakeConn))

	// Disconnecting the current session removes the entry.
	sess2.Disconnect()
	_, ok = reg.Lookup("user_alice")
	assert.False(t, ok)
}

func TestReconnect_ReRegistersWithoutFreshAuth(t *testing.T) {
	mgr, reg := newTestManager(clockwork.NewFakeClock())
	conn := &fakeConn{}
	sess := mgr.Open(conn)
	sess.Authenticate("admin_7")

	// Simulate the registry losing the entry (e.g. overwritten then cleaned).
	reg.Unregister("admin_7", conn)
	require.Equal(t, 0, reg.Len())

	ok := sess.Reconnect()

	assert.True(t, ok)
	_, found := reg.Lookup("admin_7")
	assert.True(t, found)

	env, hasEnv := conn.lastEnvelope()
	require.True(t, hasEnv)
	assert.Equal(t, domain.EventAuthSuccess, env.Event)
}

func TestReconnect_WithoutIdentity(t *testing.T) {
	mgr, _ := newTestManager(clockwork.NewFakeClock())
	sess := mgr.Open(&fakeConn{})

	assert.False(t, sess.Reconnect())
}

func TestAuthenticate_AfterDisconnect(t *testing.T) {
	mgr, reg := newTestManager(clockwork.NewFakeClock())
	conn := &fakeConn{}
	sess := mgr.Open(conn)
	sess.Disconnect()

	c := sess.Authenticate("user_alice")

	assert.False(t, c.Valid)
	assert.Equal(t, 0, reg.Len())
}

func TestDisconnect_Idempotent(t *testing.T) {
	mgr, _ := newTestManager(clockwork.NewFakeClock())
	conn := &fakeConn{}
	sess := mgr.Open(conn)
	sess.Authenticate("user_alice")

	sess.Disconnect()
	sess.Disconnect()

	assert.Equal(t, StateDisconnected, sess.State())
}
