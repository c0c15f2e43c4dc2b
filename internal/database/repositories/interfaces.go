package repositories

import (
	"context"
	"time"

	"github.com/receiptwise/alerting-backend-go/internal/database/models"
)

// AlertRepository stores alert candidates and their terminal states.
type AlertRepository interface {
	Create(ctx context.Context, alert *models.Alert) error
	GetByID(ctx context.Context, id string) (*models.Alert, error)
	UpdateStatus(ctx context.Context, id, status string) error
}

// RateLimitRepository persists per-scope window counters.
type RateLimitRepository interface {
	GetByScope(ctx context.Context, scopeType, scopeValue string) (*models.RateLimitConfig, error)
	Save(ctx context.Context, cfg *models.RateLimitConfig) error
	List(ctx context.Context) ([]*models.RateLimitConfig, error)
	ListExpired(ctx context.Context, now time.Time) ([]*models.RateLimitConfig, error)
}

// AdaptiveRepository persists self-adjusting scope ceilings.
type AdaptiveRepository interface {
	GetByScope(ctx context.Context, scopeType, scopeValue string) (*models.AdaptiveLimit, error)
	Save(ctx context.Context, limit *models.AdaptiveLimit) error
	List(ctx context.Context) ([]*models.AdaptiveLimit, error)
}

// SuppressionRepository is the append-only audit store for rate-limit
// rejections.
type SuppressionRepository interface {
	Create(ctx context.Context, entry *models.SuppressionLogEntry) error
	List(ctx context.Context, since, until time.Time, limit int) ([]*models.SuppressionLogEntry, error)
	CountSince(ctx context.Context, since time.Time) (int, error)
}

// PolicyRepository stores severity rules and on-call schedules. Both
// are administered outside the engine; the engine only reads them.
type PolicyRepository interface {
	ListSeverityRules(ctx context.Context) ([]*models.SeverityRule, error)
	UpsertSeverityRule(ctx context.Context, rule *models.SeverityRule) error
	ListOnCallSchedules(ctx context.Context) ([]*models.OnCallSchedule, error)
	UpsertOnCallSchedule(ctx context.Context, schedule *models.OnCallSchedule) error
}

// EscalationRepository persists escalation state machines.
type EscalationRepository interface {
	Create(ctx context.Context, state *models.EscalationState) error
	Update(ctx context.Context, state *models.EscalationState) error
	GetByAlertID(ctx context.Context, alertID string) (*models.EscalationState, error)
	ListActive(ctx context.Context) ([]*models.EscalationState, error)
}
