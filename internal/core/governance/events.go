package governance

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/receiptwise/alerting-backend-go/internal/database/models"
)

// Event types published to the ops feed.
const (
	EventAlertAdmitted     = "alert_admitted"
	EventAlertSuppressed   = "alert_suppressed"
	EventEscalationLevel   = "escalation_level"
	EventEscalationCapped  = "escalation_capped"
	EventAlertAcknowledged = "alert_acknowledged"
	EventAlertAutoResolved = "alert_auto_resolved"
)

// Event is a governance lifecycle event for dashboards.
type Event struct {
	Type      string                 `json:"type"`
	AlertID   string                 `json:"alert_id"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// EventSink receives governance events. Implementations must not
// block; the engine publishes from hot paths.
type EventSink interface {
	Publish(event Event)
}

// NoopSink discards events.
type NoopSink struct{}

func (NoopSink) Publish(Event) {}

// Notification is an escalation-triggered notification request. The
// engine does not send anything itself; requests are handed to a
// Dispatcher.
type Notification struct {
	AlertID   string          `json:"alert_id"`
	Title     string          `json:"title"`
	Severity  models.Severity `json:"severity"`
	Level     int             `json:"level"`
	Targets   []string        `json:"targets"`
	Channels  []string        `json:"channels"`
	CreatedAt time.Time       `json:"created_at"`
}

// Dispatcher delivers notification requests to the outside world
// (email, SMS, chat, webhook fan-out lives behind this boundary).
type Dispatcher interface {
	Dispatch(ctx context.Context, n *Notification) error
}

// LogDispatcher writes notification requests to the log. Used when no
// external dispatcher is wired up.
type LogDispatcher struct {
	Logger *logrus.Logger
}

// MultiDispatcher fans a notification out to several dispatchers. The
// first error is returned after all dispatchers ran.
type MultiDispatcher []Dispatcher

func (m MultiDispatcher) Dispatch(ctx context.Context, n *Notification) error {
	var first error
	for _, d := range m {
		if err := d.Dispatch(ctx, n); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (d *LogDispatcher) Dispatch(_ context.Context, n *Notification) error {
	d.Logger.WithFields(logrus.Fields{
		"alert_id": n.AlertID,
		"severity": n.Severity,
		"level":    n.Level,
		"targets":  n.Targets,
		"channels": n.Channels,
	}).Info("Notification request dispatched")
	return nil
}
