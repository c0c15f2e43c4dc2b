package governance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/receiptwise/alerting-backend-go/internal/database/models"
	"github.com/receiptwise/alerting-backend-go/internal/database/repositories"
)

// ErrEscalationNotFound is returned when an alert has no escalation
// state, either because it was suppressed or because no severity rule
// routed it.
var ErrEscalationNotFound = errors.New("no escalation state for alert")

// EscalationScheduler drives the per-alert escalation state machine:
// pending, level-1..N, then acknowledged, auto-resolved, or capped.
//
// Transitions are derived from persisted timestamps on every tick
// rather than from in-memory timers, so a missed tick or a process
// restart never loses a due transition.
type EscalationScheduler struct {
	states     repositories.EscalationRepository
	alerts     repositories.AlertRepository
	router     *SeverityRouter
	oncall     *OnCallResolver
	dispatcher Dispatcher
	events     EventSink
	metrics    *Metrics
	clock      Clock
	logger     *logrus.Logger

	// Serializes state transitions so an acknowledgement and an
	// escalation tick crossing over resolve in favor of not notifying.
	mu sync.Mutex
}

// NewEscalationScheduler creates an EscalationScheduler.
func NewEscalationScheduler(
	states repositories.EscalationRepository,
	alerts repositories.AlertRepository,
	router *SeverityRouter,
	oncall *OnCallResolver,
	dispatcher Dispatcher,
	events EventSink,
	metrics *Metrics,
	clock Clock,
	logger *logrus.Logger,
) *EscalationScheduler {
	return &EscalationScheduler{
		states:     states,
		alerts:     alerts,
		router:     router,
		oncall:     oncall,
		dispatcher: dispatcher,
		events:     events,
		metrics:    metrics,
		clock:      clock,
		logger:     logger,
	}
}

// Admit starts an escalation state machine for an admitted alert.
// Returns nil state when no severity rule is configured: the alert is
// admitted but unrouted, a configuration gap the caller logs rather
// than a failure.
func (es *EscalationScheduler) Admit(ctx context.Context, alert *models.Alert) (*models.EscalationState, error) {
	rule := es.router.Route(alert.Severity, alert.TeamID)
	if rule == nil {
		es.logger.WithFields(logrus.Fields{
			"alert_id": alert.ID,
			"severity": alert.Severity,
		}).Warn("No severity rule configured, alert admitted unrouted")
		return nil, nil
	}

	now := es.clock.Now()
	state := &models.EscalationState{
		ID:               uuid.New().String(),
		AlertID:          alert.ID,
		SeverityRuleID:   rule.ID,
		TeamID:           alert.TeamID,
		Severity:         alert.Severity,
		Level:            0,
		Status:           models.EscalationStatusPending,
		AdmittedAt:       now,
		LastTransitionAt: now,
	}

	if err := es.states.Create(ctx, state); err != nil {
		return nil, fmt.Errorf("create escalation state for alert %s: %w", alert.ID, err)
	}

	es.metrics.activeEscalations.Inc()
	return state, nil
}

// Acknowledge stops further escalation for an alert. Idempotent: a
// second acknowledgement of the same alert is a no-op.
func (es *EscalationScheduler) Acknowledge(ctx context.Context, alertID, user string) (*models.EscalationState, error) {
	es.mu.Lock()
	defer es.mu.Unlock()

	state, err := es.states.GetByAlertID(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, fmt.Errorf("alert %s: %w", alertID, ErrEscalationNotFound)
	}
	if state.Terminal() {
		return state, nil
	}

	now := es.clock.Now()
	state.Status = models.EscalationStatusAcknowledged
	state.AcknowledgedAt = &now
	state.AcknowledgedBy = &user
	state.LastTransitionAt = now

	if err := es.states.Update(ctx, state); err != nil {
		return nil, fmt.Errorf("persist acknowledgement for alert %s: %w", alertID, err)
	}

	es.metrics.activeEscalations.Dec()
	es.metrics.escalationsTotal.WithLabelValues("acknowledged").Inc()
	es.events.Publish(Event{
		Type:      EventAlertAcknowledged,
		AlertID:   alertID,
		Timestamp: now,
		Data:      map[string]interface{}{"acknowledged_by": user},
	})

	es.logger.WithFields(logrus.Fields{
		"alert_id": alertID,
		"user":     user,
		"level":    state.Level,
	}).Info("Alert acknowledged, escalation stopped")
	return state, nil
}

// Resolve terminates an alert's escalation on operator request. A nil
// or already-terminal state is a no-op: the caller resolves the alert
// itself either way.
func (es *EscalationScheduler) Resolve(ctx context.Context, alertID string) error {
	es.mu.Lock()
	defer es.mu.Unlock()

	state, err := es.states.GetByAlertID(ctx, alertID)
	if err != nil {
		return err
	}
	if state == nil || state.Terminal() {
		return nil
	}

	now := es.clock.Now()
	state.Status = models.EscalationStatusAutoResolved
	state.ResolvedAt = &now
	state.LastTransitionAt = now

	if err := es.states.Update(ctx, state); err != nil {
		return fmt.Errorf("terminate escalation for alert %s: %w", alertID, err)
	}

	es.metrics.activeEscalations.Dec()
	es.metrics.escalationsTotal.WithLabelValues("resolved").Inc()
	return nil
}

// ClearCondition records the external signal that the underlying alert
// condition is no longer met. Auto-resolve acts on it once the
// configured quiet period elapses.
func (es *EscalationScheduler) ClearCondition(ctx context.Context, alertID string) error {
	es.mu.Lock()
	defer es.mu.Unlock()

	state, err := es.states.GetByAlertID(ctx, alertID)
	if err != nil {
		return err
	}
	if state == nil {
		return fmt.Errorf("alert %s: %w", alertID, ErrEscalationNotFound)
	}
	if state.Terminal() || state.ConditionCleared {
		return nil
	}

	state.ConditionCleared = true
	if err := es.states.Update(ctx, state); err != nil {
		return fmt.Errorf("persist condition-cleared signal for alert %s: %w", alertID, err)
	}
	return nil
}

// Tick advances every active state machine whose next transition is
// due. Called on the engine's escalation tick; safe to call at any
// cadence since due times come from persisted state.
func (es *EscalationScheduler) Tick(ctx context.Context) {
	states, err := es.states.ListActive(ctx)
	if err != nil {
		es.logger.WithError(err).Error("Failed to list active escalations")
		return
	}

	for _, state := range states {
		es.mu.Lock()
		es.advance(ctx, state)
		es.mu.Unlock()
	}
}

// advance applies at most one transition to a state machine. Caller
// holds es.mu.
//
// The listed state is a snapshot taken before the lock was acquired; an
// acknowledgement may have landed in between. Re-read under the lock so
// a terminated machine is never advanced or overwritten.
func (es *EscalationScheduler) advance(ctx context.Context, listed *models.EscalationState) {
	state, err := es.states.GetByAlertID(ctx, listed.AlertID)
	if err != nil {
		es.logger.WithError(err).WithField("alert_id", listed.AlertID).Error("Failed to reload escalation state")
		return
	}
	if state == nil || state.Terminal() {
		return
	}

	rule := es.router.RuleByID(state.SeverityRuleID)
	if rule == nil {
		es.logger.WithFields(logrus.Fields{
			"alert_id": state.AlertID,
			"rule_id":  state.SeverityRuleID,
		}).Warn("Severity rule no longer configured, escalation stalled")
		return
	}

	now := es.clock.Now()

	// Policy-driven terminal transitions take precedence over level
	// advancement.
	if rule.AutoAcknowledgeMinutes != nil {
		due := state.AdmittedAt.Add(time.Duration(*rule.AutoAcknowledgeMinutes) * time.Minute)
		if !now.Before(due) {
			es.autoAcknowledge(ctx, state, now)
			return
		}
	}

	if rule.AutoResolveMinutes != nil && state.ConditionCleared {
		due := state.AdmittedAt.Add(time.Duration(*rule.AutoResolveMinutes) * time.Minute)
		if !now.Before(due) {
			es.autoResolve(ctx, state, now)
			return
		}
	}

	var due time.Time
	switch state.Status {
	case models.EscalationStatusPending:
		due = state.AdmittedAt.Add(time.Duration(rule.InitialDelayMinutes) * time.Minute)
	case models.EscalationStatusEscalating:
		due = state.LastTransitionAt.Add(time.Duration(rule.EscalationIntervalMinutes) * time.Minute)
	default:
		return
	}
	if now.Before(due) {
		return
	}

	if state.Level >= rule.MaxEscalationLevel {
		es.cap(ctx, state, now)
		return
	}

	teamID := ""
	if state.TeamID != nil {
		teamID = *state.TeamID
	}

	// Duty may have rotated since the previous level, so targets are
	// re-resolved on every transition.
	targets, gated := es.oncall.Resolve(rule, teamID, now)
	if gated {
		// Outside business hours or weekend policy: the transition
		// retries at the next gate-satisfying tick rather than firing
		// blind.
		return
	}

	state.Level++
	state.Status = models.EscalationStatusEscalating
	state.LastTransitionAt = now

	if err := es.states.Update(ctx, state); err != nil {
		es.logger.WithError(err).WithField("alert_id", state.AlertID).Error("Failed to persist escalation transition")
		return
	}

	es.metrics.escalationsTotal.WithLabelValues("escalated").Inc()
	es.events.Publish(Event{
		Type:      EventEscalationLevel,
		AlertID:   state.AlertID,
		Timestamp: now,
		Data: map[string]interface{}{
			"level":   state.Level,
			"targets": targets,
		},
	})

	if len(targets) == 0 {
		// Surfaced as an operational gap: the level advanced but no
		// one is on duty to notify.
		es.logger.WithFields(logrus.Fields{
			"alert_id": state.AlertID,
			"level":    state.Level,
			"team_id":  teamID,
		}).Warn("Escalation advanced but resolved no targets")
		return
	}

	es.notify(ctx, state, rule, targets)
}

// notify hands the notification request to the dispatcher. The
// acknowledgement check happens immediately before the send: if an ack
// crossed with this tick, the caller's lock guarantees we see it here
// and do not double-notify.
func (es *EscalationScheduler) notify(ctx context.Context, state *models.EscalationState, rule *models.SeverityRule, targets []string) {
	if state.Status == models.EscalationStatusAcknowledged {
		return
	}

	alert, err := es.alerts.GetByID(ctx, state.AlertID)
	title := state.AlertID
	if err == nil && alert != nil {
		title = alert.Title
	}

	n := &Notification{
		AlertID:   state.AlertID,
		Title:     title,
		Severity:  state.Severity,
		Level:     state.Level,
		Targets:   targets,
		Channels:  rule.NotifyChannels,
		CreatedAt: es.clock.Now(),
	}

	dispatchCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := es.dispatcher.Dispatch(dispatchCtx, n); err != nil {
		es.logger.WithError(err).WithFields(logrus.Fields{
			"alert_id": state.AlertID,
			"level":    state.Level,
		}).Error("Failed to dispatch escalation notification")
		return
	}
	es.metrics.notificationsSent.Inc()
}

func (es *EscalationScheduler) autoAcknowledge(ctx context.Context, state *models.EscalationState, now time.Time) {
	auto := "auto"
	state.Status = models.EscalationStatusAcknowledged
	state.AcknowledgedAt = &now
	state.AcknowledgedBy = &auto
	state.LastTransitionAt = now

	if err := es.states.Update(ctx, state); err != nil {
		es.logger.WithError(err).WithField("alert_id", state.AlertID).Error("Failed to persist auto-acknowledge")
		return
	}

	es.metrics.activeEscalations.Dec()
	es.metrics.escalationsTotal.WithLabelValues("auto_acknowledged").Inc()
	es.events.Publish(Event{
		Type:      EventAlertAcknowledged,
		AlertID:   state.AlertID,
		Timestamp: now,
		Data:      map[string]interface{}{"acknowledged_by": auto},
	})
	es.logger.WithField("alert_id", state.AlertID).Info("Alert auto-acknowledged by policy")
}

func (es *EscalationScheduler) autoResolve(ctx context.Context, state *models.EscalationState, now time.Time) {
	state.Status = models.EscalationStatusAutoResolved
	state.ResolvedAt = &now
	state.LastTransitionAt = now

	if err := es.states.Update(ctx, state); err != nil {
		es.logger.WithError(err).WithField("alert_id", state.AlertID).Error("Failed to persist auto-resolve")
		return
	}

	if err := es.alerts.UpdateStatus(ctx, state.AlertID, models.AlertStatusResolved); err != nil {
		es.logger.WithError(err).WithField("alert_id", state.AlertID).Warn("Failed to write resolved status back to alert")
	}

	es.metrics.activeEscalations.Dec()
	es.metrics.escalationsTotal.WithLabelValues("auto_resolved").Inc()
	es.events.Publish(Event{
		Type:      EventAlertAutoResolved,
		AlertID:   state.AlertID,
		Timestamp: now,
	})
	es.logger.WithField("alert_id", state.AlertID).Info("Alert auto-resolved")
}

// cap terminates escalation at the configured maximum level. The alert
// stays open; the distinct capped status keeps it visible to operators
// instead of silently stalling.
func (es *EscalationScheduler) cap(ctx context.Context, state *models.EscalationState, now time.Time) {
	state.Status = models.EscalationStatusCapped
	state.LastTransitionAt = now

	if err := es.states.Update(ctx, state); err != nil {
		es.logger.WithError(err).WithField("alert_id", state.AlertID).Error("Failed to persist capped state")
		return
	}

	es.metrics.activeEscalations.Dec()
	es.metrics.escalationsTotal.WithLabelValues("capped").Inc()
	es.events.Publish(Event{
		Type:      EventEscalationCapped,
		AlertID:   state.AlertID,
		Timestamp: now,
		Data:      map[string]interface{}{"level": state.Level},
	})

	es.logger.WithFields(logrus.Fields{
		"alert_id": state.AlertID,
		"level":    state.Level,
	}).Warn("Escalation reached maximum level without acknowledgement")
}
