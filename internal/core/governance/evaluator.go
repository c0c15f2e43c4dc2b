package governance

import (
	"context"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/receiptwise/alerting-backend-go/internal/database/models"
)

// RateLimitResult is the synchronous answer to an alert proposal.
type RateLimitResult struct {
	Allowed           bool                   `json:"allowed"`
	Reason            string                 `json:"reason,omitempty"`
	CurrentCount      int                    `json:"current_count"`
	MaxAllowed        int                    `json:"max_allowed"`
	WindowMinutes     int                    `json:"window_minutes"`
	ResetAt           time.Time              `json:"reset_at"`
	RetryAfterSeconds int                    `json:"retry_after_seconds,omitempty"`
	Metadata          map[string]interface{} `json:"metadata,omitempty"`
}

// RateLimitEvaluator runs the scope checks in strict priority order
// and owns the check-then-increment atomicity per scope key.
type RateLimitEvaluator struct {
	resolver     ScopeResolver
	windows      *WindowStore
	adaptive     *AdaptiveLimiter
	suppressions *SuppressionLogger
	events       EventSink
	metrics      *Metrics
	clock        Clock
	logger       *logrus.Logger
	storeTimeout time.Duration
}

// NewRateLimitEvaluator creates a RateLimitEvaluator.
func NewRateLimitEvaluator(
	windows *WindowStore,
	adaptive *AdaptiveLimiter,
	suppressions *SuppressionLogger,
	events EventSink,
	metrics *Metrics,
	clock Clock,
	logger *logrus.Logger,
	storeTimeout time.Duration,
) *RateLimitEvaluator {
	if storeTimeout <= 0 {
		storeTimeout = 5 * time.Second
	}
	return &RateLimitEvaluator{
		windows:      windows,
		adaptive:     adaptive,
		suppressions: suppressions,
		events:       events,
		metrics:      metrics,
		clock:        clock,
		logger:       logger,
		storeTimeout: storeTimeout,
	}
}

// Evaluate decides whether an alert may fire. Scopes are checked in
// priority order (rule, team, metric, severity, global) and the first
// rejection wins; capacity at a broader scope never overrides it. On
// full admission every scope counter is incremented. Internal failures
// fail open: an infrastructure problem must never silently swallow a
// critical alert.
func (e *RateLimitEvaluator) Evaluate(ctx context.Context, alert *models.Alert, rule *models.AlertRule) *RateLimitResult {
	scopes := e.resolver.Resolve(alert)

	// Locks are taken in priority order, which is identical for every
	// evaluation, so concurrent evaluations cannot deadlock.
	unlock := e.windows.LockKeys(scopes)
	defer unlock()

	ctx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()

	configs := make([]*models.RateLimitConfig, 0, len(scopes))
	for _, key := range scopes {
		cfg, err := e.windows.GetOrCreate(ctx, key, rule)
		if err != nil {
			return e.failOpen(alert, key, err)
		}
		if !cfg.Enabled {
			continue
		}

		adaptiveLimit, err := e.adaptive.EffectiveLimit(ctx, key, cfg.MaxAlerts)
		if err != nil {
			return e.failOpen(alert, key, err)
		}

		effective := cfg.MaxAlerts
		if adaptiveLimit < effective {
			effective = adaptiveLimit
		}

		if cfg.CurrentCount >= effective {
			result := e.reject(key, cfg, effective, adaptiveLimit)
			e.suppressions.LogRejection(ctx, alert, key, result)
			e.metrics.alertsSuppressed.WithLabelValues(string(key.Type)).Inc()
			e.events.Publish(Event{
				Type:      EventAlertSuppressed,
				AlertID:   alert.ID,
				Timestamp: e.clock.Now(),
				Data: map[string]interface{}{
					"reason":      result.Reason,
					"scope":       key.String(),
					"retry_after": result.RetryAfterSeconds,
				},
			})
			return result
		}

		configs = append(configs, cfg)
	}

	// All scopes passed: count the alert against every one of them.
	// An increment failure after the decision is logged but never
	// retracts the admission already promised to the caller.
	for _, cfg := range configs {
		if err := e.windows.Increment(ctx, cfg); err != nil {
			e.logger.WithError(err).WithFields(logrus.Fields{
				"alert_id":    alert.ID,
				"scope_type":  cfg.ScopeType,
				"scope_value": cfg.ScopeValue,
			}).Error("Failed to persist counter increment after admission")
		}
	}

	e.metrics.alertsAdmitted.Inc()

	result := &RateLimitResult{Allowed: true}
	if len(configs) > 0 {
		// Report the narrowest scope's window in the admission result.
		first := configs[0]
		result.CurrentCount = first.CurrentCount
		result.MaxAllowed = first.MaxAlerts
		result.WindowMinutes = first.WindowMinutes
		result.ResetAt = first.NextResetAt
	}
	return result
}

func (e *RateLimitEvaluator) reject(key ScopeKey, cfg *models.RateLimitConfig, effective, adaptiveLimit int) *RateLimitResult {
	now := e.clock.Now()
	retryAfter := int(math.Ceil(cfg.NextResetAt.Sub(now).Seconds()))
	if retryAfter < 0 {
		retryAfter = 0
	}

	return &RateLimitResult{
		Allowed:           false,
		Reason:            key.RejectionReason(),
		CurrentCount:      cfg.CurrentCount,
		MaxAllowed:        effective,
		WindowMinutes:     cfg.WindowMinutes,
		ResetAt:           cfg.NextResetAt,
		RetryAfterSeconds: retryAfter,
		Metadata: map[string]interface{}{
			"scope_type":     string(key.Type),
			"scope_value":    key.Value,
			"adaptive_limit": adaptiveLimit,
			"original_limit": cfg.MaxAlerts,
		},
	}
}

// failOpen admits the alert despite an internal failure, tagging the
// error so operators can see the governance gap. Deliberate: blocking
// a critical alert because the store hiccupped is the worse failure
// mode.
func (e *RateLimitEvaluator) failOpen(alert *models.Alert, key ScopeKey, err error) *RateLimitResult {
	e.logger.WithError(err).WithFields(logrus.Fields{
		"alert_id": alert.ID,
		"scope":    key.String(),
	}).Error("Rate limit evaluation failed, admitting alert")
	e.metrics.evaluationFailOpens.Inc()

	return &RateLimitResult{
		Allowed: true,
		Metadata: map[string]interface{}{
			"rate_limit_error": err.Error(),
			"scope":            key.String(),
		},
	}
}
