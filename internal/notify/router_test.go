package notify

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roadwatch/backend/internal/domain"
	"github.com/roadwatch/backend/internal/identity"
	"github.com/roadwatch/backend/internal/registry"
)

type fakeHandle struct {
	mu     sync.Mutex
	sent   []domain.Envelope
	sendEr error
}

func (f *fakeHandle) Send(env domain.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendEr != nil {
		return f.sendEr
	}
	f.sent = append(f.sent, env)
	return nil
}

func (f *fakeHandle) envelopes() []domain.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Envelope(nil), f.sent...)
}

func newTestRouter(strategy Strategy) (*Router, *registry.Registry) {
	reg := registry.New()
	return NewRouter(reg, identity.NewClassifier(""), strategy), reg
}

func TestSend_SpecificUser_Delivered(t *testing.T) {
	router, reg := newTestRouter(StrategyDirect)
	h := &fakeHandle{}
	reg.Register("user_alice", h)

	result := router.Send(ToUser("user_alice"), domain.Notification{Title: "hi"})

	assert.Equal(t, StatusDelivered, result.Status)
	assert.Equal(t, 1, result.Delivered)
	envs := h.envelopes()
	require.Len(t, envs, 1)
	assert.Equal(t, domain.EventNotification, envs[0].Event)
	assert.Empty(t, envs[0].Target)
}

func TestSend_SpecificUser_NotConnected(t *testing.T) {
	router, reg := newTestRouter(StrategyDirect)

	result := router.Send(ToUser("user_ghost"), domain.Notification{Title: "hi"})

	assert.Equal(t, StatusNotConnected, result.Status)
	assert.Equal(t, 0, result.Delivered)
	// No side effect on the registry.
	assert.Equal(t, 0, reg.Len())
}

func TestSend_AllAdmins_SkipsUsers(t *testing.T) {
	router, reg := newTestRouter(StrategyDirect)
	admin1 := &fakeHandle{}
	admin2 := &fakeHandle{}
	user := &fakeHandle{}
	reg.Register("admin_1", admin1)
	reg.Register("admin_2", admin2)
	reg.Register("user_bob", user)

	result := router.Send(ToAdmins(), domain.AdminNotification{Title: "new entry"})

	assert.Equal(t, 2, result.Delivered)
	assert.Len(t, admin1.envelopes(), 1)
	assert.Len(t, admin2.envelopes(), 1)
	assert.Empty(t, user.envelopes())
}

func TestSend_Broadcast_ReachesEveryone(t *testing.T) {
	router, reg := newTestRouter(StrategyDirect)
	admin := &fakeHandle{}
	user := &fakeHandle{}
	reg.Register("admin_1", admin)
	reg.Register("user_bob", user)

	result := router.Send(Broadcast(), domain.Notification{Title: "maintenance"})

	assert.Equal(t, 2, result.Delivered)
	assert.Len(t, admin.envelopes(), 1)
	assert.Len(t, user.envelopes(), 1)
}

func TestSend_BroadcastFallback_TagsTarget(t *testing.T) {
	router, reg := newTestRouter(StrategyDirectWithBroadcast)
	alice := &fakeHandle{}
	bystander := &fakeHandle{}
	reg.Register("user_alice", alice)
	reg.Register("user_bob", bystander)

	result := router.Send(ToUser("user_alice"), domain.Notification{Title: "hi"})

	assert.Equal(t, StatusDelivered, result.Status)
	assert.Equal(t, 2, result.Delivered)

	// Direct copy has no target tag.
	direct := alice.envelopes()
	require.Len(t, direct, 1)
	assert.Empty(t, direct[0].Target)

	// Fallback copy is tagged for client-side filtering.
	fallback := bystander.envelopes()
	require.Len(t, fallback, 1)
	assert.Equal(t, "user_alice", fallback[0].Target)
}

func TestSend_BroadcastFallback_TargetOffline(t *testing.T) {
	router, reg := newTestRouter(StrategyDirectWithBroadcast)
	bystander := &fakeHandle{}
	reg.Register("user_bob", bystander)

	result := router.Send(ToUser("user_alice"), domain.Notification{Title: "hi"})

	// Direct miss is still reported, fallback copies still go out.
	assert.Equal(t, StatusNotConnected, result.Status)
	assert.Equal(t, 1, result.Delivered)
	require.Len(t, bystander.envelopes(), 1)
	assert.Equal(t, "user_alice", bystander.envelopes()[0].Target)
}

func TestSend_FailedWriteDoesNotAbortFanout(t *testing.T) {
	router, reg := newTestRouter(StrategyDirect)
	broken := &fakeHandle{sendEr: errors.New("send buffer full")}
	healthy := &fakeHandle{}
	reg.Register("admin_1", broken)
	reg.Register("admin_2", healthy)

	result := router.Send(ToAdmins(), domain.AdminNotification{Title: "x"})

	assert.Equal(t, 1, result.Delivered)
	assert.Len(t, healthy.envelopes(), 1)
	// Registry untouched by the failure.
	assert.Equal(t, 2, reg.Len())
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("")
	require.NoError(t, err)
	assert.Equal(t, StrategyDirect, s)

	s, err = ParseStrategy("direct+broadcast")
	require.NoError(t, err)
	assert.Equal(t, StrategyDirectWithBroadcast, s)

	_, err = ParseStrategy("queue")
	assert.Error(t, err)
}
