package governance

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/receiptwise/alerting-backend-go/internal/database/models"
	"github.com/receiptwise/alerting-backend-go/internal/database/repositories"
)

// SuppressionLogger records every rate-limit rejection for audit and
// analytics. It is write-only: nothing in the engine reads it back.
type SuppressionLogger struct {
	repo   repositories.SuppressionRepository
	logger *logrus.Logger
}

// NewSuppressionLogger creates a SuppressionLogger.
func NewSuppressionLogger(repo repositories.SuppressionRepository, logger *logrus.Logger) *SuppressionLogger {
	return &SuppressionLogger{repo: repo, logger: logger}
}

// LogRejection appends an audit entry for a suppressed alert. A store
// failure here is logged and swallowed: the rejection decision has
// already been made and audit writes must never disturb it.
func (sl *SuppressionLogger) LogRejection(ctx context.Context, alert *models.Alert, key ScopeKey, result *RateLimitResult) {
	entry := &models.SuppressionLogEntry{
		ID:            uuid.New().String(),
		AlertID:       alert.ID,
		Suppressed:    true,
		Reason:        result.Reason,
		SuppressUntil: result.ResetAt,
		Metadata: map[string]interface{}{
			"scope_type":     string(key.Type),
			"scope_value":    key.Value,
			"current_count":  result.CurrentCount,
			"max_allowed":    result.MaxAllowed,
			"window_minutes": result.WindowMinutes,
			"retry_after_s":  result.RetryAfterSeconds,
		},
		CreatedAt: time.Now().UTC(),
	}

	if err := sl.repo.Create(ctx, entry); err != nil {
		sl.logger.WithError(err).WithFields(logrus.Fields{
			"alert_id": alert.ID,
			"reason":   result.Reason,
		}).Error("Failed to write suppression log entry")
		return
	}

	sl.logger.WithFields(logrus.Fields{
		"alert_id":    alert.ID,
		"reason":      result.Reason,
		"scope":       key.String(),
		"retry_after": result.RetryAfterSeconds,
	}).Info("Alert suppressed")
}
