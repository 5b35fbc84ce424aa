// Package notify resolves target selectors against the connection registry
// and pushes events to live connections. Delivery is fire-and-forget,
// at-most-once: targets without a live connection are reported as not
// connected and the event is dropped, never queued or retried.
package notify

import (
	"fmt"
	"log/slog"

	"github.com/roadwatch/backend/internal/domain"
	"github.com/roadwatch/backend/internal/identity"
	"github.com/roadwatch/backend/internal/metrics"
	"github.com/roadwatch/backend/internal/registry"
)

type targetKind string

const (
	kindUser      targetKind = "user"
	kindAdmins    targetKind = "admins"
	kindBroadcast targetKind = "broadcast"
)

// Target selects who receives an event.
type Target struct {
	kind     targetKind
	identity string
}

// ToUser targets the single connection registered for an identity.
func ToUser(identity string) Target {
	return Target{kind: kindUser, identity: identity}
}

// ToAdmins targets every registered connection whose identity classifies as admin.
func ToAdmins() Target {
	return Target{kind: kindAdmins}
}

// Broadcast targets every registered connection.
func Broadcast() Target {
	return Target{kind: kindBroadcast}
}

// Strategy controls how direct sends to a specific user are delivered.
type Strategy int

const (
	// StrategyDirect delivers only to the registered connection.
	StrategyDirect Strategy = iota
	// StrategyDirectWithBroadcast additionally broadcasts a copy carrying a
	// target field, so clients the registry missed can self-filter.
	StrategyDirectWithBroadcast
)

// ParseStrategy maps a config string to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "", "direct":
		return StrategyDirect, nil
	case "direct+broadcast":
		return StrategyDirectWithBroadcast, nil
	default:
		return StrategyDirect, fmt.Errorf("unknown delivery strategy %q", s)
	}
}

// DeliveryStatus summarizes the outcome of a send.
type DeliveryStatus string

const (
	StatusDelivered    DeliveryStatus = "delivered"
	StatusNotConnected DeliveryStatus = "not_connected"
)

// DeliveryResult reports the outcome of one Send call. It exists for
// diagnostics only; no caller behavior may depend on delivery succeeding.
type DeliveryResult struct {
	Status    DeliveryStatus
	Delivered int
}

// Router delivers events to registry-resolved connections. It reads the
// registry and never mutates it.
type Router struct {
	registry   *registry.Registry
	classifier *identity.Classifier
	strategy   Strategy
}

func NewRouter(reg *registry.Registry, classifier *identity.Classifier, strategy Strategy) *Router {
	return &Router{registry: reg, classifier: classifier, strategy: strategy}
}

// Send delivers event to the selected targets. Iteration order across
// multiple targets is unspecified.
func (r *Router) Send(target Target, event domain.Event) DeliveryResult {
	switch target.kind {
	case kindUser:
		return r.sendToUser(target.identity, event)
	case kindAdmins:
		return r.sendToRole(event, true)
	case kindBroadcast:
		return r.sendToRole(event, false)
	default:
		slog.Warn("Unknown notification target kind", "kind", target.kind)
		return DeliveryResult{Status: StatusNotConnected}
	}
}

func (r *Router) sendToUser(identity string, event domain.Event) DeliveryResult {
	result := DeliveryResult{Status: StatusNotConnected}

	handle, ok := r.registry.Lookup(identity)
	if ok {
		if r.deliver(handle, domain.Envelope{Event: event.EventName(), Data: event}, kindUser) {
			result.Status = StatusDelivered
			result.Delivered++
		}
	} else {
		metrics.NotificationsDroppedTotal.WithLabelValues("not_connected").Inc()
		slog.Debug("Notification target not connected", "identity", identity, "event", event.EventName())
	}

	if r.strategy == StrategyDirectWithBroadcast {
		env := domain.Envelope{Event: event.EventName(), Target: identity, Data: event}
		for _, entry := range r.registry.Entries() {
			if entry.Handle == handle {
				continue
			}
			if r.deliver(entry.Handle, env, kindBroadcast) {
				result.Delivered++
			}
		}
	}

	return result
}

func (r *Router) sendToRole(event domain.Event, adminsOnly bool) DeliveryResult {
	env := domain.Envelope{Event: event.EventName(), Data: event}
	kind := kindBroadcast
	if adminsOnly {
		kind = kindAdmins
	}

	result := DeliveryResult{Status: StatusDelivered}
	for _, entry := range r.registry.Entries() {
		if adminsOnly {
			c := r.classifier.Classify(entry.Identity)
			if !c.Valid || c.Role != domain.RoleAdmin {
				continue
			}
		}
		if r.deliver(entry.Handle, env, kind) {
			result.Delivered++
		}
	}
	return result
}

func (r *Router) deliver(h registry.Handle, env domain.Envelope, kind targetKind) bool {
	if err := h.Send(env); err != nil {
		metrics.NotificationsDroppedTotal.WithLabelValues("send_failed").Inc()
		slog.Warn("Notification send failed", "event", env.Event, "error", err)
		return false
	}
	metrics.NotificationsDeliveredTotal.WithLabelValues(env.Event, string(kind)).Inc()
	return true
}
