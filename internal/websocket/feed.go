package websocket

import (
	"context"

	"github.com/receiptwise/alerting-backend-go/internal/core/governance"
)

// GovernanceFeed bridges the governance engine to the hub. It is both
// the engine's EventSink (lifecycle events for dashboards) and a
// Dispatcher (notification requests mirrored onto the feed so
// operators see what went out).
type GovernanceFeed struct {
	hub *Hub
}

// NewGovernanceFeed creates a feed bound to a hub.
func NewGovernanceFeed(hub *Hub) *GovernanceFeed {
	return &GovernanceFeed{hub: hub}
}

// Publish implements governance.EventSink. Non-blocking: a full
// broadcast channel drops the message rather than stalling evaluation.
func (f *GovernanceFeed) Publish(event governance.Event) {
	f.hub.BroadcastToAll(Message{
		Type: MessageTypeGovernanceEvent,
		Data: map[string]interface{}{
			"event":    event.Type,
			"alert_id": event.AlertID,
			"at":       event.Timestamp,
			"details":  event.Data,
		},
	})
}

// Dispatch implements governance.Dispatcher.
func (f *GovernanceFeed) Dispatch(_ context.Context, n *governance.Notification) error {
	f.hub.BroadcastToAll(Message{
		Type: MessageTypeNotification,
		Data: map[string]interface{}{
			"alert_id": n.AlertID,
			"title":    n.Title,
			"severity": n.Severity,
			"level":    n.Level,
			"targets":  n.Targets,
			"channels": n.Channels,
		},
	})
	return nil
}
